// Package otp issues and verifies purpose-scoped one-time codes.
package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/gatekeeper/internal/apperr"
	"github.com/congo-pay/gatekeeper/internal/metrics"
)

const (
	DefaultTTL    = 10 * time.Minute
	DefaultLength = 6

	minLength = 4
	maxLength = 10
)

// Config tunes code generation.
type Config struct {
	TTL    time.Duration
	Length int
}

// Engine issues codes into a Store and verifies submissions against the
// newest record of a (target, channel, purpose) tuple.
type Engine struct {
	store  Store
	ttl    time.Duration
	length int
	now    func() time.Time
	random io.Reader
}

// NewEngine builds an engine. Zero config values fall back to defaults.
func NewEngine(store Store, cfg Config) (*Engine, error) {
	if store == nil {
		return nil, errors.New("otp store is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Length == 0 {
		cfg.Length = DefaultLength
	}
	if cfg.Length < minLength || cfg.Length > maxLength {
		return nil, fmt.Errorf("otp length must be between %d and %d", minLength, maxLength)
	}
	return &Engine{
		store:  store,
		ttl:    cfg.TTL,
		length: cfg.Length,
		now:    time.Now,
		random: rand.Reader,
	}, nil
}

// TTL returns the default lifetime of issued codes.
func (e *Engine) TTL() time.Duration { return e.ttl }

// Issue generates and persists a new code. A non-positive ttl uses the
// engine default.
func (e *Engine) Issue(ctx context.Context, target string, channel Channel, purpose Purpose, ttl time.Duration) (Issued, error) {
	if err := validateTuple(target, channel, purpose); err != nil {
		return Issued{}, err
	}
	if ttl <= 0 {
		ttl = e.ttl
	}

	code, err := e.generate()
	if err != nil {
		return Issued{}, fmt.Errorf("generate code: %w", err)
	}

	now := e.now().UTC()
	rec := Record{
		ID:        uuid.NewString(),
		Target:    target,
		Channel:   channel,
		Purpose:   purpose,
		Code:      code,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	if err := e.store.Insert(ctx, rec); err != nil {
		return Issued{}, apperr.Store(err, "store verification code")
	}
	metrics.CodeIssued(string(purpose))

	return Issued{Target: target, Channel: channel, Purpose: purpose, Code: code, ExpiresAt: rec.ExpiresAt}, nil
}

// Verify checks submitted against the newest record for the tuple. Checks
// run in order existence, consumed, expiry, value, so the most specific
// failure is reported. On OutcomeOK the record has been consumed.
func (e *Engine) Verify(ctx context.Context, target string, channel Channel, purpose Purpose, submitted string) (Outcome, error) {
	if err := validateTuple(target, channel, purpose); err != nil {
		return "", err
	}
	outcome, err := e.verify(ctx, target, channel, purpose, strings.TrimSpace(submitted))
	if err != nil {
		return "", err
	}
	metrics.CodeVerified(string(purpose), string(outcome))
	return outcome, nil
}

func (e *Engine) verify(ctx context.Context, target string, channel Channel, purpose Purpose, submitted string) (Outcome, error) {
	rec, err := e.store.FindLatest(ctx, target, channel, purpose)
	if errors.Is(err, ErrNotFound) {
		return OutcomeNotFound, nil
	}
	if err != nil {
		return "", apperr.Store(err, "load verification code")
	}

	if rec.ConsumedAt != nil {
		return OutcomeConsumed, nil
	}
	now := e.now().UTC()
	if !now.Before(rec.ExpiresAt) {
		return OutcomeExpired, nil
	}
	if subtle.ConstantTimeCompare([]byte(rec.Code), []byte(submitted)) != 1 {
		return OutcomeMismatch, nil
	}

	won, err := e.store.MarkConsumed(ctx, rec.ID, now)
	if err != nil {
		return "", apperr.Store(err, "consume verification code")
	}
	if !won {
		return e.lost(ctx, target, channel, purpose, rec.ID)
	}
	return OutcomeOK, nil
}

// lost classifies a failed claim: a newer code issued since the lookup
// makes the submission a mismatch, otherwise another verifier consumed it.
func (e *Engine) lost(ctx context.Context, target string, channel Channel, purpose Purpose, id string) (Outcome, error) {
	latest, err := e.store.FindLatest(ctx, target, channel, purpose)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return "", apperr.Store(err, "load verification code")
	}
	if err == nil && latest.ID != id {
		return OutcomeMismatch, nil
	}
	return OutcomeConsumed, nil
}

// generate draws every digit independently and uniformly.
func (e *Engine) generate() (string, error) {
	var b strings.Builder
	b.Grow(e.length)
	ten := big.NewInt(10)
	for i := 0; i < e.length; i++ {
		n, err := rand.Int(e.random, ten)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}

func validateTuple(target string, channel Channel, purpose Purpose) error {
	if strings.TrimSpace(target) == "" {
		return apperr.Validation("code target is required")
	}
	if !channel.Valid() {
		return apperr.Validation("unknown code channel %q", channel)
	}
	if !purpose.Valid() {
		return apperr.Validation("unknown code purpose %q", purpose)
	}
	return nil
}
