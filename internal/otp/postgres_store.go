package otp

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"

	"github.com/congo-pay/gatekeeper/internal/store"
)

// PostgresStore keeps codes in the one_time_codes table.
type PostgresStore struct {
	db store.DB
}

// NewPostgresStore builds a Postgres-backed code store.
func NewPostgresStore(db store.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Insert writes a new code record.
func (s *PostgresStore) Insert(ctx context.Context, rec Record) error {
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		return oops.Code("OTP_INSERT_FAILED").With("id", rec.ID).Wrap(err)
	}
	_, err = s.db.Exec(ctx, `INSERT INTO one_time_codes (id, target, channel, purpose, code, expires_at, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, rec.Target, string(rec.Channel), string(rec.Purpose), rec.Code, rec.ExpiresAt.UTC(), rec.CreatedAt.UTC())
	if err != nil {
		return oops.Code("OTP_INSERT_FAILED").
			With("purpose", rec.Purpose).
			With("channel", rec.Channel).
			Wrap(err)
	}
	return nil
}

// FindLatest returns the newest record for the tuple.
func (s *PostgresStore) FindLatest(ctx context.Context, target string, channel Channel, purpose Purpose) (Record, error) {
	row := s.db.QueryRow(ctx, `SELECT id, target, channel, purpose, code, expires_at, consumed_at, created_at
        FROM one_time_codes
        WHERE target = $1 AND channel = $2 AND purpose = $3
        ORDER BY created_at DESC, seq DESC
        LIMIT 1`, target, string(channel), string(purpose))

	var (
		id         uuid.UUID
		ch, p      string
		consumedAt *time.Time
		rec        Record
	)
	if err := row.Scan(&id, &rec.Target, &ch, &p, &rec.Code, &rec.ExpiresAt, &consumedAt, &rec.CreatedAt); err != nil {
		if store.IsNoRows(err) {
			return Record{}, ErrNotFound
		}
		return Record{}, oops.Code("OTP_LOOKUP_FAILED").With("purpose", purpose).Wrap(err)
	}
	rec.ID = id.String()
	rec.Channel = Channel(ch)
	rec.Purpose = Purpose(p)
	rec.ExpiresAt = rec.ExpiresAt.UTC()
	rec.CreatedAt = rec.CreatedAt.UTC()
	if consumedAt != nil {
		at := consumedAt.UTC()
		rec.ConsumedAt = &at
	}
	return rec, nil
}

// MarkConsumed sets consumed_at only while it is still NULL and no newer
// code exists for the tuple; the row lock taken by UPDATE serialises
// concurrent verifications of the same code.
func (s *PostgresStore) MarkConsumed(ctx context.Context, id string, at time.Time) (bool, error) {
	codeID, err := uuid.Parse(id)
	if err != nil {
		return false, oops.Code("OTP_CONSUME_FAILED").With("id", id).Wrap(err)
	}
	tag, err := s.db.Exec(ctx, `UPDATE one_time_codes c SET consumed_at = $2
        WHERE c.id = $1 AND c.consumed_at IS NULL
        AND c.id = (SELECT l.id FROM one_time_codes l
            WHERE l.target = c.target AND l.channel = c.channel AND l.purpose = c.purpose
            ORDER BY l.created_at DESC, l.seq DESC
            LIMIT 1)`, codeID, at.UTC())
	if err != nil {
		return false, oops.Code("OTP_CONSUME_FAILED").With("id", id).Wrap(err)
	}
	return tag.RowsAffected() == 1, nil
}
