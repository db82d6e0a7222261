package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var userColumnNames = []string{"id", "email", "phone", "first_name", "last_name", "pin_hash", "password_hash",
	"role_id", "name", "email_verified_at", "phone_verified_at", "status", "created_at", "updated_at"}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func TestPostgresCreateMapsUniqueViolations(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	user := User{
		ID: uuid.NewString(), Email: "alice@example.com", Phone: alicePhone,
		FirstName: "Ada", LastName: "Lovelace", RoleID: uuid.NewString(),
		Status: StatusPending, CreatedAt: now, UpdatedAt: now,
	}

	tests := []struct {
		name    string
		dbErr   error
		wantErr error
	}{
		{name: "ok"},
		{name: "email taken", dbErr: &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "users_email_key"}, wantErr: ErrEmailTaken},
		{name: "phone taken", dbErr: &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "users_phone_key"}, wantErr: ErrPhoneTaken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMock(t)
			exp := mock.ExpectExec(`INSERT INTO users`).
				WithArgs(uuid.MustParse(user.ID), user.Email, user.Phone, user.FirstName, user.LastName,
					user.PINHash, user.PasswordHash, uuid.MustParse(user.RoleID),
					user.EmailVerifiedAt, user.PhoneVerifiedAt, "pending", now, now)
			if tt.dbErr != nil {
				exp.WillReturnError(tt.dbErr)
			} else {
				exp.WillReturnResult(pgxmock.NewResult("INSERT", 1))
			}

			err := NewPostgresRepository(mock).Create(context.Background(), user)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresCreateWrapsOtherFailures(t *testing.T) {
	mock := newMock(t)
	args := make([]any, 13)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	mock.ExpectExec(`INSERT INTO users`).WithArgs(args...).WillReturnError(errors.New("connection reset"))

	err := NewPostgresRepository(mock).Create(context.Background(), User{ID: uuid.NewString(), RoleID: uuid.NewString()})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrEmailTaken))
	assert.Contains(t, err.Error(), "connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFindByID(t *testing.T) {
	id, roleID := uuid.New(), uuid.New()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	verified := now.Add(time.Minute)

	mock := newMock(t)
	mock.ExpectQuery(`SELECT u.id, u.email`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(userColumnNames).AddRow(
			id, "alice@example.com", alicePhone, "Ada", "Lovelace", []byte("hash"), []byte(nil),
			roleID, RoleOwner, &verified, (*time.Time)(nil), "pending", now, now))

	user, err := NewPostgresRepository(mock).FindByID(context.Background(), id.String())
	require.NoError(t, err)
	assert.Equal(t, id.String(), user.ID)
	assert.Equal(t, roleID.String(), user.RoleID)
	assert.Equal(t, RoleOwner, user.Role)
	assert.Equal(t, StatusPending, user.Status)
	assert.True(t, user.HasPIN())
	require.NotNil(t, user.EmailVerifiedAt)
	assert.Nil(t, user.PhoneVerifiedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFindByIDNotFound(t *testing.T) {
	mock := newMock(t)
	id := uuid.New()
	mock.ExpectQuery(`SELECT u.id`).WithArgs(id).WillReturnRows(pgxmock.NewRows(userColumnNames))

	repo := NewPostgresRepository(mock)
	_, err := repo.FindByID(context.Background(), id.String())
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = repo.FindByID(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFindByEmailOrPhone(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`WHERE \(\$1 <> '' AND u.email = \$1\) OR \(\$2 <> '' AND u.phone = \$2\)`).
		WithArgs("", alicePhone).
		WillReturnRows(pgxmock.NewRows(userColumnNames))

	repo := NewPostgresRepository(mock)
	_, err := repo.FindByEmailOrPhone(context.Background(), "", alicePhone)
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = repo.FindByEmailOrPhone(context.Background(), "", "")
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateBuildsSetClause(t *testing.T) {
	id, roleID := uuid.New(), uuid.New()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	status := StatusBanned

	mock := newMock(t)
	mock.ExpectQuery(`UPDATE users SET status = \$2, updated_at = \$3\s+WHERE id = \$1\s+RETURNING \*`).
		WithArgs(id, "banned", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(userColumnNames).AddRow(
			id, "alice@example.com", alicePhone, "Ada", "Lovelace", []byte(nil), []byte(nil),
			roleID, RoleUser, (*time.Time)(nil), (*time.Time)(nil), "banned", now, now))

	user, err := NewPostgresRepository(mock).Update(context.Background(), id.String(), Patch{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, StatusBanned, user.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateEmailConflict(t *testing.T) {
	id := uuid.New()
	email := "bob@example.com"

	mock := newMock(t)
	mock.ExpectQuery(`UPDATE users SET email = \$2, updated_at = \$3`).
		WithArgs(id, email, pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "users_email_key"})

	_, err := NewPostgresRepository(mock).Update(context.Background(), id.String(), Patch{Email: &email})
	assert.ErrorIs(t, err, ErrEmailTaken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresActivate(t *testing.T) {
	for _, tt := range []struct {
		name     string
		affected int64
		want     bool
	}{
		{name: "promoted", affected: 1, want: true},
		{name: "not eligible", affected: 0, want: false},
	} {
		t.Run(tt.name, func(t *testing.T) {
			id := uuid.New()
			mock := newMock(t)
			mock.ExpectExec(`UPDATE users SET status = 'active'`).
				WithArgs(id, pgxmock.AnyArg()).
				WillReturnResult(pgxmock.NewResult("UPDATE", tt.affected))

			ok, err := NewPostgresRepository(mock).Activate(context.Background(), id.String(), time.Now())
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresRoles(t *testing.T) {
	mock := newMock(t)
	for _, name := range DefaultRoles {
		mock.ExpectExec(`INSERT INTO roles`).
			WithArgs(pgxmock.AnyArg(), name, pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	roleID := uuid.New()
	mock.ExpectQuery(`SELECT id, name, created_at FROM roles`).
		WithArgs(RoleAdmin).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "created_at"}).AddRow(roleID, RoleAdmin, time.Now()))
	mock.ExpectQuery(`SELECT id, name, created_at FROM roles`).
		WithArgs("ghost").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "created_at"}))

	repo := NewPostgresRepository(mock)
	require.NoError(t, repo.UpsertDefaultRoles(context.Background()))

	role, err := repo.FindRoleByName(context.Background(), RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, roleID.String(), role.ID)

	_, err = repo.FindRoleByName(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrRoleNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
