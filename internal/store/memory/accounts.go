package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-pos/internal/access"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
	"github.com/odyssey-erp/odyssey-pos/internal/users"
)

// UserRepository adapts the store to users.RepositoryPort.
type UserRepository struct {
	s *Store
}

func (s *Store) Users() *UserRepository {
	return &UserRepository{s: s}
}

func (r *UserRepository) ListUsers(_ context.Context) ([]users.User, error) {
	r.s.mu.Lock()
	out := make([]users.User, 0, len(r.s.users))
	for _, u := range r.s.users {
		out = append(out, u)
	}
	r.s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *UserRepository) GetUser(_ context.Context, id int64) (users.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return users.User{}, users.ErrNotFound
	}
	return u, nil
}

func (r *UserRepository) FindByUsername(_ context.Context, username string) (users.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if strings.EqualFold(u.Username, username) {
			return u, nil
		}
	}
	return users.User{}, users.ErrNotFound
}

func (r *UserRepository) CreateUser(_ context.Context, u users.User) (users.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, other := range r.s.users {
		if strings.EqualFold(other.Username, u.Username) {
			return users.User{}, fmt.Errorf("username already exists: %w", shared.ErrDuplicate)
		}
	}
	now := r.s.now()
	u.ID = r.s.nextID("users")
	u.CreatedAt, u.UpdatedAt = now, now
	r.s.users[u.ID] = u
	return u, nil
}

// SetUserActive flips a user's active flag.
func (r *UserRepository) SetUserActive(_ context.Context, id int64, active bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return users.ErrNotFound
	}
	u.IsActive = active
	u.UpdatedAt = r.s.now()
	r.s.users[id] = u
	return nil
}

// GrantRepository adapts the store to access.Repository.
type GrantRepository struct {
	s *Store
}

func (s *Store) Grants() *GrantRepository {
	return &GrantRepository{s: s}
}

func (r *GrantRepository) ListGrants(_ context.Context, userID int64) ([]access.Grant, error) {
	r.s.mu.Lock()
	var out []access.Grant
	for key, g := range r.s.grants {
		if key.userID == userID {
			out = append(out, g)
		}
	}
	r.s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].WarehouseID < out[j].WarehouseID })
	return out, nil
}

func (r *GrantRepository) UpsertGrant(_ context.Context, g access.Grant) (access.Grant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.now()
	g.IsDefault = g.IsDefault && g.IsActive
	if g.IsDefault {
		for key, other := range r.s.grants {
			if key.userID == g.UserID && key.warehouseID != g.WarehouseID && other.IsDefault {
				other.IsDefault = false
				other.UpdatedAt = now
				r.s.grants[key] = other
			}
		}
	}
	key := grantKey{g.UserID, g.WarehouseID}
	if prev, ok := r.s.grants[key]; ok {
		g.ID, g.CreatedAt = prev.ID, prev.CreatedAt
	} else {
		g.ID = r.s.nextID("user_warehouse_access")
		g.CreatedAt = now
	}
	g.UpdatedAt = now
	r.s.grants[key] = g
	return g, nil
}

// IdempotencyStore adapts the store to sales.IdempotencyStore.
type IdempotencyStore struct {
	s *Store
}

func (s *Store) Idempotency() *IdempotencyStore {
	return &IdempotencyStore{s: s}
}

func (r *IdempotencyStore) CheckAndInsert(_ context.Context, key, module string) error {
	k, err := shared.IdempotencyKey(module, key)
	if err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.idempotency[k]; ok {
		return shared.ErrIdempotencyConflict
	}
	r.s.idempotency[k] = r.s.now()
	return nil
}

func (r *IdempotencyStore) Delete(_ context.Context, key, module string) error {
	k, err := shared.IdempotencyKey(module, key)
	if err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.idempotency, k)
	return nil
}

// Cleanup drops keys older than olderThan.
func (r *IdempotencyStore) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("%w: retention must be positive", shared.ErrValidation)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cutoff := r.s.now().Add(-olderThan)
	var n int64
	for k, at := range r.s.idempotency {
		if at.Before(cutoff) {
			delete(r.s.idempotency, k)
			n++
		}
	}
	return n, nil
}

var (
	_ users.RepositoryPort = (*UserRepository)(nil)
	_ access.Repository    = (*GrantRepository)(nil)
)
