package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"bookbridge/internal/domain/user"
	apperrors "bookbridge/pkg/errors"
)

// UserRepo is an in-process Repository. It is the single source of truth
// when DB_DRIVER=memory and doubles as the fake store in tests.
type UserRepo struct {
	mu      sync.RWMutex
	users   []user.User
	byEmail map[string]struct{}
	nextID  int64
	now     func() time.Time
	log     *zap.Logger
}

// NewUserRepo creates an empty in-memory repository.
func NewUserRepo(log *zap.Logger) *UserRepo {
	return &UserRepo{
		users:   make([]user.User, 0, 16),
		byEmail: make(map[string]struct{}),
		now:     func() time.Time { return time.Now().UTC() },
		log:     log,
	}
}

// Create stores u, assigning ID and CreatedAt. Email uniqueness is checked
// under the write lock so concurrent duplicates cannot both succeed.
func (r *UserRepo) Create(ctx context.Context, u *user.User) (*user.User, error) {
	if u == nil {
		return nil, errors.New("user cannot be nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byEmail[u.Email]; taken {
		return nil, fmt.Errorf("failed to create user: %w", apperrors.ErrDuplicate)
	}

	r.nextID++
	stored := clone(u)
	stored.ID = r.nextID
	stored.CreatedAt = r.now()

	r.users = append(r.users, stored)
	r.byEmail[stored.Email] = struct{}{}

	r.log.Debug("user created in memory", zap.Int64("id", stored.ID))
	out := clone(&stored)
	return &out, nil
}

// List returns a copy of all users in insertion order.
func (r *UserRepo) List(ctx context.Context) ([]user.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]user.User, len(r.users))
	for i := range r.users {
		out[i] = clone(&r.users[i])
	}
	return out, nil
}

func clone(u *user.User) user.User {
	c := *u
	if u.Age != nil {
		age := *u.Age
		c.Age = &age
	}
	return c
}
