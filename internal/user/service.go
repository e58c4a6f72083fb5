package user

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/tessera/api/internal/roles"
)

const (
	defaultLimit = 10
	defaultPage  = 1
	maxLimit     = 100
	searchLimit  = 3
)

// maxOffset keeps (page-1)*limit well inside Postgres' bigint OFFSET.
const maxOffset = math.MaxInt32

// Store is the persistence the user Service depends on.
type Store interface {
	Create(ctx context.Context, u *User) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByGoogleID(ctx context.Context, googleID string) (*User, error)
	EmailTaken(ctx context.Context, email, excludeID string) (bool, error)
	List(ctx context.Context, f Filter, opts ListOptions) ([]*User, int, error)
	Update(ctx context.Context, id string, f Fields) (*User, error)
	Delete(ctx context.Context, id string) error
	CountByRole(ctx context.Context) ([]RoleCount, error)
}

// CreateInput holds the data for a password account.
type CreateInput struct {
	Name     string
	Email    string
	Password string
	Mobile   string
	Role     string
}

// UpdateInput is a partial profile update. Password is plain text and hashed before storage.
type UpdateInput struct {
	Name     *string
	Email    *string
	Password *string
	Mobile   *string
	Role     *string
}

// GoogleProfile is the identity extracted from a verified Google ID token.
type GoogleProfile struct {
	Subject string
	Email   string
	Name    string
	Picture string
}

// Service contains business logic for user management.
type Service struct {
	repo     Store
	hashCost int
}

// NewService creates a new user Service.
func NewService(repo Store) *Service {
	return &Service{repo: repo, hashCost: bcrypt.DefaultCost}
}

// HashPassword returns the bcrypt hash of password.
func (s *Service) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Create registers a password account. The role defaults to user.
func (s *Service) Create(ctx context.Context, in CreateInput) (*User, error) {
	email := normalizeEmail(in.Email)
	taken, err := s.repo.EmailTaken(ctx, email, "")
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrEmailTaken
	}

	hash, err := s.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	role := in.Role
	if role == "" {
		role = roles.User
	}
	var mobile *string
	if in.Mobile != "" {
		mobile = &in.Mobile
	}

	u, err := s.repo.Create(ctx, &User{
		Name:         strings.TrimSpace(in.Name),
		Email:        email,
		PasswordHash: &hash,
		Role:         role,
		Mobile:       mobile,
	})
	if err != nil {
		return nil, err
	}
	log.Ctx(ctx).Info().Str("user_id", u.ID).Str("role", u.Role).Msg("user created")
	return u, nil
}

// CreateFromGoogle creates a verified account backed only by a Google identity.
func (s *Service) CreateFromGoogle(ctx context.Context, p GoogleProfile) (*User, error) {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		name = strings.SplitN(p.Email, "@", 2)[0]
	}
	u := &User{
		Name:            name,
		Email:           normalizeEmail(p.Email),
		GoogleID:        &p.Subject,
		Role:            roles.User,
		IsEmailVerified: true,
	}
	if p.Picture != "" {
		u.Picture = &p.Picture
	}
	created, err := s.repo.Create(ctx, u)
	if err != nil {
		return nil, err
	}
	log.Ctx(ctx).Info().Str("user_id", created.ID).Msg("user created from google account")
	return created, nil
}

// Query returns one page of users. Zero or negative limit and page fall back to 10 and 1;
// limit is capped at 100.
func (s *Service) Query(ctx context.Context, f Filter, opts ListOptions) (*Page, error) {
	if opts.Limit <= 0 {
		opts.Limit = defaultLimit
	}
	if opts.Limit > maxLimit {
		opts.Limit = maxLimit
	}
	if opts.Page <= 0 {
		opts.Page = defaultPage
	}
	if opts.Page-1 > maxOffset/opts.Limit {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPage, opts.Page)
	}

	users, total, err := s.repo.List(ctx, f, opts)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []*User{}
	}
	return &Page{
		Results:      users,
		Page:         opts.Page,
		Limit:        opts.Limit,
		TotalPages:   (total + opts.Limit - 1) / opts.Limit,
		TotalResults: total,
	}, nil
}

// Search returns at most three users whose name or email contains text, ordered by email.
func (s *Service) Search(ctx context.Context, text string) ([]SearchResult, error) {
	users, _, err := s.repo.List(ctx,
		Filter{Search: strings.TrimSpace(text)},
		ListOptions{SortBy: "email:asc", Limit: searchLimit, Page: 1},
	)
	if err != nil {
		return nil, err
	}
	out := make([]SearchResult, 0, len(users))
	for _, u := range users {
		out = append(out, SearchResult{ID: u.ID, Email: u.Email, Mobile: u.Mobile, Name: u.Name})
	}
	return out, nil
}

// CountByRole returns the number of users per role.
func (s *Service) CountByRole(ctx context.Context) ([]RoleCount, error) {
	counts, err := s.repo.CountByRole(ctx)
	if err != nil {
		return nil, err
	}
	if counts == nil {
		counts = []RoleCount{}
	}
	return counts, nil
}

// GetByID returns a user by ID.
func (s *Service) GetByID(ctx context.Context, id string) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

// GetByEmail returns a user by email.
func (s *Service) GetByEmail(ctx context.Context, email string) (*User, error) {
	return s.repo.GetByEmail(ctx, normalizeEmail(email))
}

// GetByGoogleID returns a user by Google subject.
func (s *Service) GetByGoogleID(ctx context.Context, googleID string) (*User, error) {
	return s.repo.GetByGoogleID(ctx, googleID)
}

// RoleOf returns the role of the user with the given ID.
func (s *Service) RoleOf(ctx context.Context, id string) (string, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	return u.Role, nil
}

// UpdateByID applies in to the user, rejecting an email owned by someone else.
func (s *Service) UpdateByID(ctx context.Context, id string, in UpdateInput) (*User, error) {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return nil, err
	}

	f := Fields{Role: in.Role, Mobile: in.Mobile}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		f.Name = &name
	}
	if in.Email != nil {
		email := normalizeEmail(*in.Email)
		taken, err := s.repo.EmailTaken(ctx, email, id)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, ErrEmailTaken
		}
		f.Email = &email
	}
	if in.Password != nil {
		hash, err := s.HashPassword(*in.Password)
		if err != nil {
			return nil, err
		}
		f.PasswordHash = &hash
	}
	return s.repo.Update(ctx, id, f)
}

// SetPassword replaces the user's password.
func (s *Service) SetPassword(ctx context.Context, id, password string) error {
	_, err := s.UpdateByID(ctx, id, UpdateInput{Password: &password})
	return err
}

// MarkEmailVerified flags the user's email as verified.
func (s *Service) MarkEmailVerified(ctx context.Context, id string) error {
	verified := true
	_, err := s.repo.Update(ctx, id, Fields{IsEmailVerified: &verified})
	return err
}

// LinkGoogle attaches a Google identity to an existing account and refreshes its picture.
func (s *Service) LinkGoogle(ctx context.Context, id string, p GoogleProfile) (*User, error) {
	f := Fields{GoogleID: &p.Subject}
	if p.Picture != "" {
		f.Picture = &p.Picture
	}
	return s.repo.Update(ctx, id, f)
}

// RefreshPicture updates the stored Google avatar when it changed.
func (s *Service) RefreshPicture(ctx context.Context, u *User, picture string) (*User, error) {
	if picture == "" || (u.Picture != nil && *u.Picture == picture) {
		return u, nil
	}
	return s.repo.Update(ctx, u.ID, Fields{Picture: &picture})
}

// DeleteByID removes a user.
func (s *Service) DeleteByID(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	log.Ctx(ctx).Info().Str("user_id", id).Msg("user deleted")
	return nil
}

// IsNotFound reports whether err means the user does not exist.
func (s *Service) IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
