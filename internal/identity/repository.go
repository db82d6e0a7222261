package identity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/congo-pay/gatekeeper/internal/store"
)

// Repository persists users and roles.
type Repository interface {
	Create(ctx context.Context, user User) error
	FindByID(ctx context.Context, id string) (User, error)
	// FindByEmailOrPhone matches on whichever of email and phone is non-empty.
	FindByEmailOrPhone(ctx context.Context, email, phone string) (User, error)
	Update(ctx context.Context, id string, patch Patch) (User, error)
	// Activate moves a pending user with both contact points verified to
	// active. It reports whether the transition happened.
	Activate(ctx context.Context, id string, at time.Time) (bool, error)
	FindRoleByName(ctx context.Context, name string) (Role, error)
	UpsertDefaultRoles(ctx context.Context) error
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db store.DB
}

// NewPostgresRepository builds a Postgres-backed identity repository.
func NewPostgresRepository(db store.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const userColumns = `u.id, u.email, u.phone, u.first_name, u.last_name, u.pin_hash, u.password_hash,
        u.role_id, r.name, u.email_verified_at, u.phone_verified_at, u.status, u.created_at, u.updated_at`

// Create inserts a new user.
func (r *PostgresRepository) Create(ctx context.Context, user User) error {
	userID, err := uuid.Parse(user.ID)
	if err != nil {
		return oops.Code("USER_CREATE_FAILED").With("id", user.ID).Wrap(err)
	}
	roleID, err := uuid.Parse(user.RoleID)
	if err != nil {
		return oops.Code("USER_CREATE_FAILED").With("role_id", user.RoleID).Wrap(err)
	}
	_, err = r.db.Exec(ctx, `INSERT INTO users (id, email, phone, first_name, last_name, pin_hash, password_hash,
        role_id, email_verified_at, phone_verified_at, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		userID, user.Email, user.Phone, user.FirstName, user.LastName, user.PINHash, user.PasswordHash,
		roleID, user.EmailVerifiedAt, user.PhoneVerifiedAt, string(user.Status), user.CreatedAt.UTC(), user.UpdatedAt.UTC())
	if err != nil {
		if conflict := uniqueConflict(err); conflict != nil {
			return conflict
		}
		return oops.Code("USER_CREATE_FAILED").With("id", user.ID).Wrap(err)
	}
	return nil
}

// FindByID fetches a user by primary key.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (User, error) {
	userID, err := uuid.Parse(id)
	if err != nil {
		return User{}, ErrUserNotFound
	}
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+`
        FROM users u JOIN roles r ON r.id = u.role_id
        WHERE u.id = $1`, userID)
	return scanUser(row, "USER_LOOKUP_FAILED")
}

// FindByEmailOrPhone fetches the first user matching either contact point.
func (r *PostgresRepository) FindByEmailOrPhone(ctx context.Context, email, phone string) (User, error) {
	if email == "" && phone == "" {
		return User{}, ErrUserNotFound
	}
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+`
        FROM users u JOIN roles r ON r.id = u.role_id
        WHERE ($1 <> '' AND u.email = $1) OR ($2 <> '' AND u.phone = $2)
        ORDER BY u.created_at
        LIMIT 1`, email, phone)
	return scanUser(row, "USER_LOOKUP_FAILED")
}

// Update applies a patch and returns the updated row.
func (r *PostgresRepository) Update(ctx context.Context, id string, patch Patch) (User, error) {
	userID, err := uuid.Parse(id)
	if err != nil {
		return User{}, ErrUserNotFound
	}
	if patch.empty() {
		return r.FindByID(ctx, id)
	}

	var (
		sets []string
		args = []any{userID}
	)
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if patch.Email != nil {
		set("email", *patch.Email)
	}
	if patch.Phone != nil {
		set("phone", *patch.Phone)
	}
	if patch.PINHash != nil {
		set("pin_hash", patch.PINHash)
	}
	if patch.PasswordHash != nil {
		set("password_hash", patch.PasswordHash)
	}
	if patch.RoleID != nil {
		roleID, err := uuid.Parse(*patch.RoleID)
		if err != nil {
			return User{}, ErrRoleNotFound
		}
		set("role_id", roleID)
	}
	if patch.EmailVerifiedAt != nil {
		set("email_verified_at", patch.EmailVerifiedAt.UTC())
	}
	if patch.PhoneVerifiedAt != nil {
		set("phone_verified_at", patch.PhoneVerifiedAt.UTC())
	}
	if patch.Status != nil {
		set("status", string(*patch.Status))
	}
	set("updated_at", time.Now().UTC())

	row := r.db.QueryRow(ctx, `WITH u AS (
            UPDATE users SET `+strings.Join(sets, ", ")+`
            WHERE id = $1
            RETURNING *
        )
        SELECT `+userColumns+` FROM u JOIN roles r ON r.id = u.role_id`, args...)
	user, err := scanUser(row, "USER_UPDATE_FAILED")
	if err != nil {
		if conflict := uniqueConflict(err); conflict != nil {
			return User{}, conflict
		}
		return User{}, err
	}
	return user, nil
}

// Activate promotes a fully verified pending user.
func (r *PostgresRepository) Activate(ctx context.Context, id string, at time.Time) (bool, error) {
	userID, err := uuid.Parse(id)
	if err != nil {
		return false, ErrUserNotFound
	}
	cmd, err := r.db.Exec(ctx, `UPDATE users SET status = 'active', updated_at = $2
        WHERE id = $1 AND status = 'pending'
          AND email_verified_at IS NOT NULL AND phone_verified_at IS NOT NULL`, userID, at.UTC())
	if err != nil {
		return false, oops.Code("USER_ACTIVATE_FAILED").With("id", id).Wrap(err)
	}
	return cmd.RowsAffected() == 1, nil
}

// FindRoleByName resolves a role.
func (r *PostgresRepository) FindRoleByName(ctx context.Context, name string) (Role, error) {
	var (
		id   uuid.UUID
		role Role
	)
	err := r.db.QueryRow(ctx, `SELECT id, name, created_at FROM roles WHERE name = $1`, name).
		Scan(&id, &role.Name, &role.CreatedAt)
	if err != nil {
		if store.IsNoRows(err) {
			return Role{}, ErrRoleNotFound
		}
		return Role{}, oops.Code("ROLE_LOOKUP_FAILED").With("role", name).Wrap(err)
	}
	role.ID = id.String()
	role.CreatedAt = role.CreatedAt.UTC()
	return role, nil
}

// UpsertDefaultRoles ensures every default role row exists.
func (r *PostgresRepository) UpsertDefaultRoles(ctx context.Context) error {
	for _, name := range DefaultRoles {
		_, err := r.db.Exec(ctx, `INSERT INTO roles (id, name, created_at) VALUES ($1, $2, $3)
            ON CONFLICT (name) DO NOTHING`, uuid.New(), name, time.Now().UTC())
		if err != nil {
			return oops.Code("ROLE_SEED_FAILED").With("role", name).Wrap(err)
		}
	}
	return nil
}

func scanUser(row pgx.Row, code string) (User, error) {
	var (
		id, roleID uuid.UUID
		status     string
		user       User
	)
	err := row.Scan(&id, &user.Email, &user.Phone, &user.FirstName, &user.LastName, &user.PINHash, &user.PasswordHash,
		&roleID, &user.Role, &user.EmailVerifiedAt, &user.PhoneVerifiedAt, &status, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if store.IsNoRows(err) {
			return User{}, ErrUserNotFound
		}
		return User{}, oops.Code(code).Wrap(err)
	}
	user.ID = id.String()
	user.RoleID = roleID.String()
	user.Status = Status(status)
	user.CreatedAt = user.CreatedAt.UTC()
	user.UpdatedAt = user.UpdatedAt.UTC()
	user.EmailVerifiedAt = utcPtr(user.EmailVerifiedAt)
	user.PhoneVerifiedAt = utcPtr(user.PhoneVerifiedAt)
	return user, nil
}

// uniqueConflict maps a users unique violation to its domain error.
func uniqueConflict(err error) error {
	constraint, ok := store.IsUniqueViolation(err)
	if !ok {
		return nil
	}
	switch constraint {
	case "users_phone_key":
		return ErrPhoneTaken
	default:
		return ErrEmailTaken
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
