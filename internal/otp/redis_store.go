package otp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisPrefix    = "otp:v1"
	defaultRedisRetention = 24 * time.Hour
)

// RedisStore keeps each record under its own key plus a per-tuple pointer
// to the newest record id. Consumption is a script that sets a per-record
// marker with NX only while the pointer still names the record, so exactly
// one verifier can win. Records outlive their expiry by the
// retention window so late submissions still report "expired".
type RedisStore struct {
	client    redis.UniversalClient
	prefix    string
	retention time.Duration
	now       func() time.Time
}

type redisRecord struct {
	ID        string    `json:"id"`
	Target    string    `json:"target"`
	Channel   Channel   `json:"channel"`
	Purpose   Purpose   `json:"purpose"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// NewRedisStore builds a Redis-backed code store.
func NewRedisStore(client redis.UniversalClient, prefix string, retention time.Duration) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	if retention <= 0 {
		retention = defaultRedisRetention
	}
	return &RedisStore{client: client, prefix: prefix, retention: retention, now: time.Now}
}

func (s *RedisStore) recordKey(id string) string { return s.prefix + ":rec:" + id }

func (s *RedisStore) consumedKey(id string) string { return s.prefix + ":used:" + id }

func (s *RedisStore) latestKey(target string, channel Channel, purpose Purpose) string {
	return s.prefix + ":latest:" + string(channel) + ":" + string(purpose) + ":" + target
}

// Insert stores the record and moves the tuple pointer to it.
func (s *RedisStore) Insert(ctx context.Context, rec Record) error {
	payload, err := json.Marshal(redisRecord{
		ID:        rec.ID,
		Target:    rec.Target,
		Channel:   rec.Channel,
		Purpose:   rec.Purpose,
		Code:      rec.Code,
		ExpiresAt: rec.ExpiresAt.UTC(),
		CreatedAt: rec.CreatedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode otp record: %w", err)
	}

	ttl := rec.ExpiresAt.Sub(s.now()) + s.retention
	if ttl <= 0 {
		ttl = s.retention
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.recordKey(rec.ID), payload, ttl)
		pipe.Set(ctx, s.latestKey(rec.Target, rec.Channel, rec.Purpose), rec.ID, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis insert otp: %w", err)
	}
	return nil
}

// FindLatest follows the tuple pointer to the newest record.
func (s *RedisStore) FindLatest(ctx context.Context, target string, channel Channel, purpose Purpose) (Record, error) {
	id, err := s.client.Get(ctx, s.latestKey(target, channel, purpose)).Result()
	if errors.Is(err, redis.Nil) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("redis load otp pointer: %w", err)
	}

	raw, err := s.client.Get(ctx, s.recordKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("redis load otp record: %w", err)
	}
	var stored redisRecord
	if err := json.Unmarshal(raw, &stored); err != nil {
		return Record{}, fmt.Errorf("decode otp record: %w", err)
	}
	rec := Record{
		ID:        stored.ID,
		Target:    stored.Target,
		Channel:   stored.Channel,
		Purpose:   stored.Purpose,
		Code:      stored.Code,
		ExpiresAt: stored.ExpiresAt,
		CreatedAt: stored.CreatedAt,
	}

	marker, err := s.client.Get(ctx, s.consumedKey(id)).Result()
	switch {
	case errors.Is(err, redis.Nil):
	case err != nil:
		return Record{}, fmt.Errorf("redis load otp marker: %w", err)
	default:
		nanos, err := strconv.ParseInt(marker, 10, 64)
		if err != nil {
			return Record{}, fmt.Errorf("decode otp marker: %w", err)
		}
		at := time.Unix(0, nanos).UTC()
		rec.ConsumedAt = &at
	}
	return rec, nil
}

// consumeScript claims the consumed marker only while the tuple pointer
// still names the record.
// KEYS: latest pointer, consumed marker, record. ARGV: id, timestamp, fallback ttl ms.
var consumeScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) ~= ARGV[1] then
  return 0
end
local ttl = redis.call('PTTL', KEYS[3])
if ttl <= 0 then
  ttl = tonumber(ARGV[3])
end
if redis.call('SET', KEYS[2], ARGV[2], 'NX', 'PX', ttl) then
  return 1
end
return 0
`)

// MarkConsumed claims the record's marker if it is still the newest for its tuple.
func (s *RedisStore) MarkConsumed(ctx context.Context, id string, at time.Time) (bool, error) {
	raw, err := s.client.Get(ctx, s.recordKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis load otp record: %w", err)
	}
	var stored redisRecord
	if err := json.Unmarshal(raw, &stored); err != nil {
		return false, fmt.Errorf("decode otp record: %w", err)
	}

	keys := []string{
		s.latestKey(stored.Target, stored.Channel, stored.Purpose),
		s.consumedKey(id),
		s.recordKey(id),
	}
	won, err := consumeScript.Run(ctx, s.client, keys, id, strconv.FormatInt(at.UnixNano(), 10), s.retention.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("redis consume otp: %w", err)
	}
	return won == 1, nil
}
