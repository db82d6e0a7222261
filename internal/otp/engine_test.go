package otp

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/congo-pay/gatekeeper/internal/apperr"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type storeFactory func(t *testing.T, clock *fakeClock) Store

func stores() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T, _ *fakeClock) Store { return NewMemoryStore() },
		"redis": func(t *testing.T, clock *fakeClock) Store {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { client.Close() })
			s := NewRedisStore(client, "test", time.Hour)
			s.now = clock.Now
			return s
		},
	}
}

func newTestEngine(t *testing.T, factory storeFactory) (*Engine, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	engine, err := NewEngine(factory(t, clock), Config{})
	require.NoError(t, err)
	engine.now = clock.Now
	return engine, clock
}

const (
	email = "ada@example.com"
	phone = "+16502530000"
)

func TestEngineContract(t *testing.T) {
	for name, factory := range stores() {
		t.Run(name, func(t *testing.T) {
			t.Run("issue then verify once", func(t *testing.T) {
				engine, _ := newTestEngine(t, factory)
				ctx := context.Background()

				issued, err := engine.Issue(ctx, email, ChannelEmail, PurposeRegistrationEmail, 0)
				require.NoError(t, err)
				assert.Len(t, issued.Code, DefaultLength)

				outcome, err := engine.Verify(ctx, email, ChannelEmail, PurposeRegistrationEmail, issued.Code)
				require.NoError(t, err)
				assert.Equal(t, OutcomeOK, outcome)

				outcome, err = engine.Verify(ctx, email, ChannelEmail, PurposeRegistrationEmail, issued.Code)
				require.NoError(t, err)
				assert.Equal(t, OutcomeConsumed, outcome)
			})

			t.Run("not found before issue or for another tuple", func(t *testing.T) {
				engine, _ := newTestEngine(t, factory)
				ctx := context.Background()

				outcome, err := engine.Verify(ctx, email, ChannelEmail, PurposePasswordReset, "123456")
				require.NoError(t, err)
				assert.Equal(t, OutcomeNotFound, outcome)

				issued, err := engine.Issue(ctx, email, ChannelEmail, PurposePasswordReset, 0)
				require.NoError(t, err)

				outcome, err = engine.Verify(ctx, email, ChannelEmail, PurposeEmailChange, issued.Code)
				require.NoError(t, err)
				assert.Equal(t, OutcomeNotFound, outcome)

				outcome, err = engine.Verify(ctx, "eve@example.com", ChannelEmail, PurposePasswordReset, issued.Code)
				require.NoError(t, err)
				assert.Equal(t, OutcomeNotFound, outcome)

				outcome, err = engine.Verify(ctx, email, ChannelPhone, PurposePasswordReset, issued.Code)
				require.NoError(t, err)
				assert.Equal(t, OutcomeNotFound, outcome)
			})

			t.Run("expired even with the right code", func(t *testing.T) {
				engine, clock := newTestEngine(t, factory)
				ctx := context.Background()

				issued, err := engine.Issue(ctx, phone, ChannelPhone, PurposeRegistrationPhone, 0)
				require.NoError(t, err)
				assert.Equal(t, clock.Now().Add(DefaultTTL), issued.ExpiresAt)

				clock.Advance(DefaultTTL + time.Second)
				outcome, err := engine.Verify(ctx, phone, ChannelPhone, PurposeRegistrationPhone, issued.Code)
				require.NoError(t, err)
				assert.Equal(t, OutcomeExpired, outcome)
			})

			t.Run("custom ttl", func(t *testing.T) {
				engine, clock := newTestEngine(t, factory)
				ctx := context.Background()

				issued, err := engine.Issue(ctx, phone, ChannelPhone, PurposePhoneChange, time.Minute)
				require.NoError(t, err)

				clock.Advance(59 * time.Second)
				outcome, err := engine.Verify(ctx, phone, ChannelPhone, PurposePhoneChange, issued.Code)
				require.NoError(t, err)
				assert.Equal(t, OutcomeOK, outcome)
			})

			t.Run("mismatch", func(t *testing.T) {
				engine, _ := newTestEngine(t, factory)
				ctx := context.Background()

				issued, err := engine.Issue(ctx, email, ChannelEmail, PurposeEmailChange, 0)
				require.NoError(t, err)

				outcome, err := engine.Verify(ctx, email, ChannelEmail, PurposeEmailChange, wrongCode(issued.Code))
				require.NoError(t, err)
				assert.Equal(t, OutcomeMismatch, outcome)

				// a mismatch does not burn the code
				outcome, err = engine.Verify(ctx, email, ChannelEmail, PurposeEmailChange, issued.Code)
				require.NoError(t, err)
				assert.Equal(t, OutcomeOK, outcome)
			})

			t.Run("consumed is reported before expired", func(t *testing.T) {
				engine, clock := newTestEngine(t, factory)
				ctx := context.Background()

				issued, err := engine.Issue(ctx, email, ChannelEmail, PurposeRegistrationEmail, 0)
				require.NoError(t, err)
				outcome, err := engine.Verify(ctx, email, ChannelEmail, PurposeRegistrationEmail, issued.Code)
				require.NoError(t, err)
				require.Equal(t, OutcomeOK, outcome)

				clock.Advance(DefaultTTL * 2)
				outcome, err = engine.Verify(ctx, email, ChannelEmail, PurposeRegistrationEmail, wrongCode(issued.Code))
				require.NoError(t, err)
				assert.Equal(t, OutcomeConsumed, outcome)
			})

			t.Run("only the newest code is verifiable", func(t *testing.T) {
				engine, clock := newTestEngine(t, factory)
				ctx := context.Background()

				first, err := engine.Issue(ctx, email, ChannelEmail, PurposePasswordReset, 0)
				require.NoError(t, err)
				clock.Advance(time.Second)
				second, err := engine.Issue(ctx, email, ChannelEmail, PurposePasswordReset, 0)
				require.NoError(t, err)

				if first.Code != second.Code {
					outcome, err := engine.Verify(ctx, email, ChannelEmail, PurposePasswordReset, first.Code)
					require.NoError(t, err)
					assert.Equal(t, OutcomeMismatch, outcome)
				}

				outcome, err := engine.Verify(ctx, email, ChannelEmail, PurposePasswordReset, second.Code)
				require.NoError(t, err)
				assert.Equal(t, OutcomeOK, outcome)

				outcome, err = engine.Verify(ctx, email, ChannelEmail, PurposePasswordReset, first.Code)
				require.NoError(t, err)
				assert.NotEqual(t, OutcomeOK, outcome)
			})

			t.Run("concurrent verification has one winner", func(t *testing.T) {
				engine, _ := newTestEngine(t, factory)
				ctx := context.Background()

				issued, err := engine.Issue(ctx, phone, ChannelPhone, PurposeRegistrationPhone, 0)
				require.NoError(t, err)

				const workers = 16
				outcomes := make(chan Outcome, workers)
				start := make(chan struct{})
				var wg sync.WaitGroup
				for i := 0; i < workers; i++ {
					wg.Add(1)
					go func() {
						defer wg.Done()
						<-start
						outcome, err := engine.Verify(ctx, phone, ChannelPhone, PurposeRegistrationPhone, issued.Code)
						if err != nil {
							t.Errorf("verify: %v", err)
							return
						}
						outcomes <- outcome
					}()
				}
				close(start)
				wg.Wait()
				close(outcomes)

				counts := map[Outcome]int{}
				for o := range outcomes {
					counts[o]++
				}
				assert.Equal(t, 1, counts[OutcomeOK])
				assert.Equal(t, workers-1, counts[OutcomeConsumed])
			})
		})
	}
}

func TestConcurrentVerifyLeavesNoGoroutines(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	engine, _ := newTestEngine(t, stores()["memory"])
	ctx := context.Background()
	issued, err := engine.Issue(ctx, email, ChannelEmail, PurposeEmailChange, 0)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := engine.Verify(ctx, email, ChannelEmail, PurposeEmailChange, issued.Code)
			if err == nil && outcome == OutcomeOK {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestIssueRejectsBadTuple(t *testing.T) {
	engine, _ := newTestEngine(t, stores()["memory"])
	ctx := context.Background()

	_, err := engine.Issue(ctx, " ", ChannelEmail, PurposePasswordReset, 0)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, err = engine.Issue(ctx, email, Channel("fax"), PurposePasswordReset, 0)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, err = engine.Issue(ctx, email, ChannelEmail, Purpose("login"), 0)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, err = engine.Verify(ctx, email, ChannelEmail, Purpose("login"), "123456")
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestGeneratedCodesAreDigits(t *testing.T) {
	engine, err := NewEngine(NewMemoryStore(), Config{Length: 8})
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		code, err := engine.generate()
		require.NoError(t, err)
		require.Len(t, code, 8)
		assert.Empty(t, strings.Trim(code, "0123456789"))
	}
}

func TestNewEngineValidatesConfig(t *testing.T) {
	_, err := NewEngine(nil, Config{})
	assert.Error(t, err)

	_, err = NewEngine(NewMemoryStore(), Config{Length: 3})
	assert.Error(t, err)

	engine, err := NewEngine(NewMemoryStore(), Config{})
	require.NoError(t, err)
	assert.Equal(t, DefaultTTL, engine.TTL())
}

func TestMarkConsumedRequiresNewestRecord(t *testing.T) {
	for name, factory := range stores() {
		t.Run(name, func(t *testing.T) {
			clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
			s := factory(t, clock)
			ctx := context.Background()

			older := Record{ID: "code-a", Target: phone, Channel: ChannelPhone, Purpose: PurposePhoneChange,
				Code: "111111", ExpiresAt: clock.Now().Add(DefaultTTL), CreatedAt: clock.Now()}
			newer := older
			newer.ID, newer.Code, newer.CreatedAt = "code-b", "222222", clock.Now().Add(time.Second)
			require.NoError(t, s.Insert(ctx, older))
			require.NoError(t, s.Insert(ctx, newer))

			won, err := s.MarkConsumed(ctx, older.ID, clock.Now())
			require.NoError(t, err)
			assert.False(t, won, "superseded record must not be consumable")

			won, err = s.MarkConsumed(ctx, newer.ID, clock.Now())
			require.NoError(t, err)
			assert.True(t, won)
		})
	}
}

// resendingStore issues a newer code right after the first lookup.
type resendingStore struct {
	Store
	once   sync.Once
	resend func()
}

func (r *resendingStore) FindLatest(ctx context.Context, target string, channel Channel, purpose Purpose) (Record, error) {
	rec, err := r.Store.FindLatest(ctx, target, channel, purpose)
	r.once.Do(r.resend)
	return rec, err
}

func TestResendDuringVerifyRejectsOldCode(t *testing.T) {
	for name, factory := range stores() {
		t.Run(name, func(t *testing.T) {
			clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
			ctx := context.Background()
			wrapped := &resendingStore{Store: factory(t, clock)}
			engine, err := NewEngine(wrapped, Config{})
			require.NoError(t, err)
			engine.now = clock.Now

			first, err := engine.Issue(ctx, email, ChannelEmail, PurposeRegistrationEmail, 0)
			require.NoError(t, err)

			var second Issued
			wrapped.resend = func() {
				clock.Advance(time.Second)
				second, err = engine.Issue(ctx, email, ChannelEmail, PurposeRegistrationEmail, 0)
				require.NoError(t, err)
			}

			outcome, err := engine.Verify(ctx, email, ChannelEmail, PurposeRegistrationEmail, first.Code)
			require.NoError(t, err)
			assert.Equal(t, OutcomeMismatch, outcome)

			outcome, err = engine.Verify(ctx, email, ChannelEmail, PurposeRegistrationEmail, second.Code)
			require.NoError(t, err)
			assert.Equal(t, OutcomeOK, outcome)
		})
	}
}

type failingStore struct{ err error }

func (f failingStore) Insert(context.Context, Record) error { return f.err }
func (f failingStore) FindLatest(context.Context, string, Channel, Purpose) (Record, error) {
	return Record{}, f.err
}
func (f failingStore) MarkConsumed(context.Context, string, time.Time) (bool, error) {
	return false, f.err
}

func TestStoreFaultsSurface(t *testing.T) {
	engine, err := NewEngine(failingStore{err: errors.New("connection refused")}, Config{})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = engine.Issue(ctx, email, ChannelEmail, PurposePasswordReset, 0)
	assert.True(t, apperr.IsKind(err, apperr.KindStore))

	_, err = engine.Verify(ctx, email, ChannelEmail, PurposePasswordReset, "123456")
	assert.True(t, apperr.IsKind(err, apperr.KindStore))
}

func TestOutcomeErr(t *testing.T) {
	assert.NoError(t, OutcomeOK.Err())
	for _, o := range []Outcome{OutcomeNotFound, OutcomeConsumed, OutcomeExpired, OutcomeMismatch} {
		err := o.Err()
		assert.True(t, errors.Is(err, &apperr.Error{Kind: apperr.KindPolicy, Reason: string(o)}), string(o))
	}
}

func wrongCode(code string) string {
	b := []byte(code)
	if b[0] == '9' {
		b[0] = '0'
	} else {
		b[0]++
	}
	return string(b)
}
