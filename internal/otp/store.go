package otp

import (
	"context"
	"time"
)

// Store persists one-time codes.
type Store interface {
	// Insert writes a new record. Earlier records for the same tuple are
	// left untouched.
	Insert(ctx context.Context, rec Record) error
	// FindLatest returns the most recently created record for the tuple or
	// ErrNotFound.
	FindLatest(ctx context.Context, target string, channel Channel, purpose Purpose) (Record, error)
	// MarkConsumed sets the consumed timestamp if it is unset and the record
	// is still the newest for its tuple, and reports whether this call set
	// it. It must be a single atomic conditional mutation so concurrent
	// callers cannot both win and a record superseded after FindLatest
	// cannot be consumed.
	MarkConsumed(ctx context.Context, id string, at time.Time) (bool, error)
}
