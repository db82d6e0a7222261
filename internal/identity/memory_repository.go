package identity

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryRepository struct {
	mu    sync.RWMutex
	users map[string]User
	roles map[string]Role
}

// NewMemoryRepository builds an in-memory user store for testing and
// single-process development runs.
func NewMemoryRepository() Repository {
	return &memoryRepository{users: make(map[string]User), roles: make(map[string]Role)}
}

func (r *memoryRepository) Create(_ context.Context, user User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == user.Email {
			return ErrEmailTaken
		}
		if existing.Phone == user.Phone {
			return ErrPhoneTaken
		}
	}
	if _, ok := r.roleByID(user.RoleID); !ok {
		return ErrRoleNotFound
	}
	r.users[user.ID] = cloneUser(user)
	return nil
}

func (r *memoryRepository) FindByID(_ context.Context, id string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return r.resolve(user), nil
}

func (r *memoryRepository) FindByEmailOrPhone(_ context.Context, email, phone string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var matches []User
	for _, user := range r.users {
		if (email != "" && user.Email == email) || (phone != "" && user.Phone == phone) {
			matches = append(matches, user)
		}
	}
	if len(matches) == 0 {
		return User{}, ErrUserNotFound
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].CreatedAt.Before(matches[j].CreatedAt) })
	return r.resolve(matches[0]), nil
}

func (r *memoryRepository) Update(_ context.Context, id string, patch Patch) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	for otherID, other := range r.users {
		if otherID == id {
			continue
		}
		if patch.Email != nil && other.Email == *patch.Email {
			return User{}, ErrEmailTaken
		}
		if patch.Phone != nil && other.Phone == *patch.Phone {
			return User{}, ErrPhoneTaken
		}
	}
	if patch.RoleID != nil {
		if _, ok := r.roleByID(*patch.RoleID); !ok {
			return User{}, ErrRoleNotFound
		}
		user.RoleID = *patch.RoleID
	}
	if patch.Email != nil {
		user.Email = *patch.Email
	}
	if patch.Phone != nil {
		user.Phone = *patch.Phone
	}
	if patch.PINHash != nil {
		user.PINHash = append([]byte(nil), patch.PINHash...)
	}
	if patch.PasswordHash != nil {
		user.PasswordHash = append([]byte(nil), patch.PasswordHash...)
	}
	if patch.EmailVerifiedAt != nil {
		user.EmailVerifiedAt = utcPtr(patch.EmailVerifiedAt)
	}
	if patch.PhoneVerifiedAt != nil {
		user.PhoneVerifiedAt = utcPtr(patch.PhoneVerifiedAt)
	}
	if patch.Status != nil {
		user.Status = *patch.Status
	}
	if !patch.empty() {
		user.UpdatedAt = time.Now().UTC()
	}
	r.users[id] = user
	return r.resolve(user), nil
}

func (r *memoryRepository) Activate(_ context.Context, id string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok || user.Status != StatusPending || !user.Verified() {
		return false, nil
	}
	user.Status = StatusActive
	user.UpdatedAt = at.UTC()
	r.users[id] = user
	return true, nil
}

func (r *memoryRepository) FindRoleByName(_ context.Context, name string) (Role, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	role, ok := r.roles[name]
	if !ok {
		return Role{}, ErrRoleNotFound
	}
	return role, nil
}

func (r *memoryRepository) UpsertDefaultRoles(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range DefaultRoles {
		if _, ok := r.roles[name]; ok {
			continue
		}
		r.roles[name] = Role{ID: uuid.NewString(), Name: name, CreatedAt: time.Now().UTC()}
	}
	return nil
}

func (r *memoryRepository) roleByID(id string) (Role, bool) {
	for _, role := range r.roles {
		if role.ID == id {
			return role, true
		}
	}
	return Role{}, false
}

// resolve fills the role name and hands out a copy.
func (r *memoryRepository) resolve(user User) User {
	if role, ok := r.roleByID(user.RoleID); ok {
		user.Role = role.Name
	}
	return cloneUser(user)
}

func cloneUser(user User) User {
	user.PINHash = append([]byte(nil), user.PINHash...)
	user.PasswordHash = append([]byte(nil), user.PasswordHash...)
	user.EmailVerifiedAt = utcPtr(user.EmailVerifiedAt)
	user.PhoneVerifiedAt = utcPtr(user.PhoneVerifiedAt)
	return user
}
