package user

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// memStore is an in-memory Store used by the service and handler tests.
type memStore struct {
	mu    sync.Mutex
	users map[string]*User
}

func newMemStore() *memStore {
	return &memStore{users: make(map[string]*User)}
}

func newTestService() (*Service, *memStore) {
	store := newMemStore()
	svc := NewService(store)
	svc.hashCost = bcrypt.MinCost
	return svc, store
}

func clone(u *User) *User {
	cp := *u
	return &cp
}

func (m *memStore) Create(_ context.Context, u *User) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return nil, ErrEmailTaken
		}
		if u.GoogleID != nil && existing.GoogleID != nil && *existing.GoogleID == *u.GoogleID {
			return nil, ErrAlreadyExists
		}
	}
	cp := clone(u)
	cp.ID = uuid.NewString()
	cp.CreatedAt = time.Now().Add(time.Duration(len(m.users)) * time.Millisecond)
	cp.UpdatedAt = cp.CreatedAt
	if cp.Mobile != nil && *cp.Mobile == "" {
		cp.Mobile = nil
	}
	m.users[cp.ID] = cp
	return clone(cp), nil
}

func (m *memStore) find(match func(*User) bool) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if match(u) {
			return clone(u), nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) GetByID(_ context.Context, id string) (*User, error) {
	return m.find(func(u *User) bool { return u.ID == id })
}

func (m *memStore) GetByEmail(_ context.Context, email string) (*User, error) {
	return m.find(func(u *User) bool { return u.Email == email })
}

func (m *memStore) GetByGoogleID(_ context.Context, googleID string) (*User, error) {
	return m.find(func(u *User) bool { return u.GoogleID != nil && *u.GoogleID == googleID })
}

func (m *memStore) EmailTaken(_ context.Context, email, excludeID string) (bool, error) {
	_, err := m.find(func(u *User) bool { return u.Email == email && u.ID != excludeID })
	return err == nil, nil
}

func (m *memStore) List(_ context.Context, f Filter, opts ListOptions) ([]*User, int, error) {
	if _, err := orderClause(opts.SortBy); err != nil {
		return nil, 0, err
	}

	m.mu.Lock()
	var matched []*User
	for _, u := range m.users {
		if f.Name != "" && !strings.Contains(strings.ToLower(u.Name), strings.ToLower(f.Name)) {
			continue
		}
		if f.Role != "" && u.Role != f.Role {
			continue
		}
		if f.Search != "" {
			s := strings.ToLower(f.Search)
			if !strings.Contains(strings.ToLower(u.Name), s) && !strings.Contains(strings.ToLower(u.Email), s) {
				continue
			}
		}
		matched = append(matched, clone(u))
	}
	m.mu.Unlock()

	// only single-field sorts on email or name are needed by the tests
	field, dir, _ := strings.Cut(opts.SortBy, ":")
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		var less bool
		switch field {
		case "email":
			less = a.Email < b.Email
		case "name":
			less = a.Name < b.Name
		default:
			less = a.CreatedAt.Before(b.CreatedAt)
		}
		if dir == "desc" {
			return !less
		}
		return less
	})

	total := len(matched)
	start := (opts.Page - 1) * opts.Limit
	if start > total {
		start = total
	}
	end := start + opts.Limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (m *memStore) Update(_ context.Context, id string, f Fields) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	if f.Name != nil {
		u.Name = *f.Name
	}
	if f.Email != nil {
		u.Email = *f.Email
	}
	if f.PasswordHash != nil {
		u.PasswordHash = f.PasswordHash
	}
	if f.GoogleID != nil {
		u.GoogleID = f.GoogleID
	}
	if f.Picture != nil {
		u.Picture = f.Picture
	}
	if f.Role != nil {
		u.Role = *f.Role
	}
	if f.Mobile != nil {
		if *f.Mobile == "" {
			u.Mobile = nil
		} else {
			mobile := *f.Mobile
			u.Mobile = &mobile
		}
	}
	if f.IsEmailVerified != nil {
		u.IsEmailVerified = *f.IsEmailVerified
	}
	u.UpdatedAt = time.Now()
	return clone(u), nil
}

func (m *memStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return ErrNotFound
	}
	delete(m.users, id)
	return nil
}

func (m *memStore) CountByRole(_ context.Context) ([]RoleCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[string]int{}
	for _, u := range m.users {
		counts[u.Role]++
	}
	var out []RoleCount
	for role, n := range counts {
		out = append(out, RoleCount{Role: role, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Role < out[j].Role })
	return out, nil
}
