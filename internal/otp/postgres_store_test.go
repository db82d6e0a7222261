package otp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var codeColumns = []string{"id", "target", "channel", "purpose", "code", "expires_at", "consumed_at", "created_at"}

func TestPostgresStoreInsert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := Record{
		ID:        uuid.NewString(),
		Target:    email,
		Channel:   ChannelEmail,
		Purpose:   PurposeRegistrationEmail,
		Code:      "481236",
		ExpiresAt: now.Add(DefaultTTL),
		CreatedAt: now,
	}
	mock.ExpectExec(`INSERT INTO one_time_codes`).
		WithArgs(uuid.MustParse(rec.ID), email, "email", "registration-email", "481236", rec.ExpiresAt, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, NewPostgresStore(mock).Insert(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreFindLatest(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	id := uuid.New()

	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		wantErr   error
		consumed  bool
	}{
		{
			name: "unconsumed record",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				rows := pgxmock.NewRows(codeColumns).
					AddRow(id, phone, "phone", "phone-change", "902817", now.Add(time.Minute), (*time.Time)(nil), now)
				mock.ExpectQuery(`SELECT id, target, channel, purpose, code, expires_at, consumed_at, created_at`).
					WithArgs(phone, "phone", "phone-change").
					WillReturnRows(rows)
			},
		},
		{
			name: "consumed record",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				at := now.Add(time.Second)
				rows := pgxmock.NewRows(codeColumns).
					AddRow(id, phone, "phone", "phone-change", "902817", now.Add(time.Minute), &at, now)
				mock.ExpectQuery(`SELECT id, target`).
					WithArgs(phone, "phone", "phone-change").
					WillReturnRows(rows)
			},
			consumed: true,
		},
		{
			name: "no rows",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT id, target`).
					WithArgs(phone, "phone", "phone-change").
					WillReturnRows(pgxmock.NewRows(codeColumns))
			},
			wantErr: ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()
			tt.setupMock(mock)

			rec, err := NewPostgresStore(mock).FindLatest(context.Background(), phone, ChannelPhone, PurposePhoneChange)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, id.String(), rec.ID)
				assert.Equal(t, ChannelPhone, rec.Channel)
				assert.Equal(t, PurposePhoneChange, rec.Purpose)
				assert.Equal(t, tt.consumed, rec.ConsumedAt != nil)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresStoreMarkConsumed(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	id := uuid.New()

	tests := []struct {
		name     string
		result   pgconn.CommandTag
		execErr  error
		want     bool
		wantFail bool
	}{
		{name: "wins the update", result: pgxmock.NewResult("UPDATE", 1), want: true},
		{name: "already consumed or superseded", result: pgxmock.NewResult("UPDATE", 0), want: false},
		{name: "database error", execErr: errors.New("connection refused"), wantFail: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			exp := mock.ExpectExec(`UPDATE one_time_codes c SET consumed_at = \$2\s+WHERE c.id = \$1 AND c.consumed_at IS NULL\s+AND c.id = \(SELECT l.id FROM one_time_codes l`).
				WithArgs(id, at)
			if tt.execErr != nil {
				exp.WillReturnError(tt.execErr)
			} else {
				exp.WillReturnResult(tt.result)
			}

			won, err := NewPostgresStore(mock).MarkConsumed(context.Background(), id.String(), at)
			if tt.wantFail {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, won)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
