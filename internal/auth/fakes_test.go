package auth

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tessera/api/internal/token"
	"github.com/tessera/api/internal/user"
)

type userStore struct {
	mu    sync.Mutex
	users map[string]*user.User
}

func (s *userStore) Create(_ context.Context, u *user.User) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return nil, user.ErrEmailTaken
		}
	}
	cp := *u
	cp.ID = uuid.NewString()
	cp.CreatedAt = time.Now()
	s.users[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (s *userStore) find(match func(*user.User) bool) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, user.ErrNotFound
}

func (s *userStore) GetByID(_ context.Context, id string) (*user.User, error) {
	return s.find(func(u *user.User) bool { return u.ID == id })
}

func (s *userStore) GetByEmail(_ context.Context, email string) (*user.User, error) {
	return s.find(func(u *user.User) bool { return u.Email == email })
}

func (s *userStore) GetByGoogleID(_ context.Context, googleID string) (*user.User, error) {
	return s.find(func(u *user.User) bool { return u.GoogleID != nil && *u.GoogleID == googleID })
}

func (s *userStore) EmailTaken(_ context.Context, email, excludeID string) (bool, error) {
	_, err := s.find(func(u *user.User) bool { return u.Email == email && u.ID != excludeID })
	return err == nil, nil
}

func (s *userStore) List(context.Context, user.Filter, user.ListOptions) ([]*user.User, int, error) {
	return nil, 0, nil
}

func (s *userStore) Update(_ context.Context, id string, f user.Fields) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, user.ErrNotFound
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
	if f.IsEmailVerified != nil {
		u.IsEmailVerified = *f.IsEmailVerified
	}
	cp := *u
	return &cp, nil
}

func (s *userStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, id)
	return nil
}

func (s *userStore) CountByRole(context.Context) ([]user.RoleCount, error) {
	return nil, nil
}

type tokenStore struct {
	mu      sync.Mutex
	records map[string]*token.Record
	seq     int
}

func (s *tokenStore) Save(_ context.Context, rec *token.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	rec.ID = strconv.Itoa(s.seq)
	cp := *rec
	s.records[rec.ID] = &cp
	return nil
}

func (s *tokenStore) Find(_ context.Context, raw string, typ token.Type) (*token.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.Token == raw && r.Type == typ && !r.Blacklisted {
			cp := *r
			return &cp, nil
		}
	}
	return nil, token.ErrNotFound
}

func (s *tokenStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

func (s *tokenStore) DeleteByUser(_ context.Context, userID string, typ token.Type) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.records {
		if r.UserID == userID && r.Type == typ {
			delete(s.records, id)
		}
	}
	return nil
}

func (s *tokenStore) count(typ token.Type) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.records {
		if r.Type == typ {
			n++
		}
	}
	return n
}

type sentMail struct {
	kind, to, token string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

func (m *fakeMailer) SendResetPassword(_ context.Context, to, raw string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{"reset", to, raw})
	return nil
}

func (m *fakeMailer) SendVerification(_ context.Context, to, raw string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{"verify", to, raw})
	return nil
}

func (m *fakeMailer) last() sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent[len(m.sent)-1]
}

// stubGoogle accepts ID tokens that are keys of its map.
type stubGoogle map[string]*user.GoogleProfile

func (g stubGoogle) Verify(_ context.Context, raw string) (*user.GoogleProfile, error) {
	if p, ok := g[raw]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, ErrGoogleDisabled
}

type fixture struct {
	svc    *Service
	users  *user.Service
	tokens *token.Service
	tstore *tokenStore
	mailer *fakeMailer
	google stubGoogle
}

func newFixture() *fixture {
	users := user.NewService(&userStore{users: make(map[string]*user.User)})
	tstore := &tokenStore{records: make(map[string]*token.Record)}
	tokens := token.NewService(tstore, "test-secret", token.TTLs{
		Access:        30 * time.Minute,
		Refresh:       30 * 24 * time.Hour,
		ResetPassword: 10 * time.Minute,
		VerifyEmail:   10 * time.Minute,
	})
	mailer := &fakeMailer{}
	google := stubGoogle{}
	return &fixture{
		svc:    NewService(users, tokens, mailer, google),
		users:  users,
		tokens: tokens,
		tstore: tstore,
		mailer: mailer,
		google: google,
	}
}
