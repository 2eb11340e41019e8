package repo

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/ovaphlow/pitchfork/service-user-go/internal/user/entity"
)

// MemoryUserRepo is an in-process user store for local development and tests.
// It mirrors UserRepo, including the partial unique index on email.
type MemoryUserRepo struct {
	mu    sync.RWMutex
	seq   int64
	users map[int64]entity.User
	now   func() time.Time
}

func NewMemoryUserRepo() *MemoryUserRepo {
	return &MemoryUserRepo{users: make(map[int64]entity.User), now: time.Now}
}

func (r *MemoryUserRepo) List(ctx context.Context) ([]entity.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]entity.User, 0, len(r.users))
	for _, u := range r.users {
		if u.DeletedAt == nil {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryUserRepo) GetByID(ctx context.Context, id int64, includeDeleted bool) (*entity.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok || (u.DeletedAt != nil && !includeDeleted) {
		return nil, sql.ErrNoRows
	}
	return &u, nil
}

func (r *MemoryUserRepo) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.DeletedAt == nil && u.Email == email {
			return &u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *MemoryUserRepo) EmailTaken(ctx context.Context, email string, exceptID int64) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.emailTakenLocked(email, exceptID), nil
}

func (r *MemoryUserRepo) emailTakenLocked(email string, exceptID int64) bool {
	for _, u := range r.users {
		if u.DeletedAt == nil && u.Email == email && u.ID != exceptID {
			return true
		}
	}
	return false
}

func (r *MemoryUserRepo) Create(ctx context.Context, u *entity.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.emailTakenLocked(u.Email, 0) {
		return ErrDuplicateEmail
	}
	r.seq++
	now := r.now()
	u.ID = r.seq
	u.CreatedAt = now
	u.UpdatedAt = now
	r.users[u.ID] = *u
	return nil
}

func (r *MemoryUserRepo) Update(ctx context.Context, u *entity.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.users[u.ID]
	if !ok || cur.DeletedAt != nil {
		return sql.ErrNoRows
	}
	if r.emailTakenLocked(u.Email, u.ID) {
		return ErrDuplicateEmail
	}
	cur.Name = u.Name
	cur.Email = u.Email
	cur.PasswordHash = u.PasswordHash
	cur.UpdatedAt = r.now()
	r.users[u.ID] = cur
	u.UpdatedAt = cur.UpdatedAt
	return nil
}

func (r *MemoryUserRepo) SoftDelete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.users[id]
	if !ok || cur.DeletedAt != nil {
		return sql.ErrNoRows
	}
	now := r.now()
	cur.DeletedAt = &now
	cur.UpdatedAt = now
	r.users[id] = cur
	return nil
}

// MemoryTokenRepo is an in-process access token store.
type MemoryTokenRepo struct {
	mu     sync.RWMutex
	tokens map[int64]entity.AccessToken
}

func NewMemoryTokenRepo() *MemoryTokenRepo {
	return &MemoryTokenRepo{tokens: make(map[int64]entity.AccessToken)}
}

func (r *MemoryTokenRepo) ReplaceForUser(ctx context.Context, t *entity.AccessToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revokeAllLocked(t.UserID)
	r.tokens[t.ID] = *t
	return nil
}

func (r *MemoryTokenRepo) Find(ctx context.Context, id int64) (*entity.AccessToken, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tokens[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &t, nil
}

func (r *MemoryTokenRepo) Touch(ctx context.Context, id int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tokens[id]; ok {
		t.LastUsedAt = &at
		r.tokens[id] = t
	}
	return nil
}

func (r *MemoryTokenRepo) RevokeOne(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tokens, id)
	return nil
}

func (r *MemoryTokenRepo) RevokeAll(ctx context.Context, userID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.revokeAllLocked(userID), nil
}

func (r *MemoryTokenRepo) revokeAllLocked(userID int64) int64 {
	var n int64
	for id, t := range r.tokens {
		if t.UserID == userID {
			delete(r.tokens, id)
			n++
		}
	}
	return n
}
