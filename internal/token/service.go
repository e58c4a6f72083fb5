// Package token issues and verifies the JWTs used for sessions, password resets and email
// verification.
package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Type distinguishes what a token may be used for.
type Type string

// Token types.
const (
	Access        Type = "access"
	Refresh       Type = "refresh"
	ResetPassword Type = "resetPassword"
	VerifyEmail   Type = "verifyEmail"
)

var (
	// ErrInvalid is returned for tokens with a bad signature, wrong type, or past expiry.
	ErrInvalid = errors.New("invalid token")
	// ErrNotFound is returned when no live record exists for a token.
	ErrNotFound = errors.New("token not found")
)

// Record is a persisted token.
type Record struct {
	ID          string
	Token       string
	UserID      string
	Type        Type
	ExpiresAt   time.Time
	Blacklisted bool
	CreatedAt   time.Time
}

// Claims are the JWT claims carried by every token.
type Claims struct {
	Type Type `json:"type"`
	jwt.RegisteredClaims
}

// Issued is a signed token and its expiry.
type Issued struct {
	Token   string    `json:"token"   example:"eyJhbGci..."`
	Expires time.Time `json:"expires" example:"2026-02-27T14:48:34Z"`
}

// AuthTokens is the access/refresh pair handed to clients after authentication.
type AuthTokens struct {
	Access  Issued `json:"access"`
	Refresh Issued `json:"refresh"`
}

// Store persists token records.
type Store interface {
	Save(ctx context.Context, rec *Record) error
	Find(ctx context.Context, token string, typ Type) (*Record, error)
	Delete(ctx context.Context, id string) error
	DeleteByUser(ctx context.Context, userID string, typ Type) error
}

// TTLs are the lifetimes of each token type.
type TTLs struct {
	Access        time.Duration
	Refresh       time.Duration
	ResetPassword time.Duration
	VerifyEmail   time.Duration
}

// Service signs, parses and persists tokens.
type Service struct {
	store  Store
	secret []byte
	ttl    TTLs
	now    func() time.Time
}

// NewService creates a new token Service.
func NewService(store Store, secret string, ttl TTLs) *Service {
	return &Service{store: store, secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Generate signs a token of type typ for userID expiring at expires.
func (s *Service) Generate(userID string, expires time.Time, typ Type) (string, error) {
	now := s.now()
	claims := Claims{
		Type: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Parse checks signature, expiry and type, and returns the claims.
func (s *Service) Parse(raw string, typ Type) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(t *jwt.Token) (interface{}, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if claims.Type != typ || claims.Subject == "" {
		return nil, ErrInvalid
	}
	return claims, nil
}

// ParseAccess validates an access token and returns its subject.
func (s *Service) ParseAccess(raw string) (string, error) {
	claims, err := s.Parse(raw, Access)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// Verify parses raw and returns its live persisted record.
func (s *Service) Verify(ctx context.Context, raw string, typ Type) (*Record, error) {
	claims, err := s.Parse(raw, typ)
	if err != nil {
		return nil, err
	}
	rec, err := s.store.Find(ctx, raw, typ)
	if err != nil {
		return nil, err
	}
	if rec.UserID != claims.Subject {
		return nil, ErrInvalid
	}
	return rec, nil
}

// Lookup returns the live record for raw without checking the signature.
func (s *Service) Lookup(ctx context.Context, raw string, typ Type) (*Record, error) {
	return s.store.Find(ctx, raw, typ)
}

// Delete removes a token record.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.Delete(ctx, id)
}

// DeleteForUser removes every token of typ belonging to userID.
func (s *Service) DeleteForUser(ctx context.Context, userID string, typ Type) error {
	return s.store.DeleteByUser(ctx, userID, typ)
}

// GenerateAuthTokens issues an access token and a persisted refresh token.
func (s *Service) GenerateAuthTokens(ctx context.Context, userID string) (*AuthTokens, error) {
	now := s.now()

	accessExp := now.Add(s.ttl.Access)
	access, err := s.Generate(userID, accessExp, Access)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	refreshExp := now.Add(s.ttl.Refresh)
	refresh, err := s.issue(ctx, userID, refreshExp, Refresh)
	if err != nil {
		return nil, err
	}

	return &AuthTokens{
		Access:  Issued{Token: access, Expires: accessExp},
		Refresh: Issued{Token: refresh, Expires: refreshExp},
	}, nil
}

// GenerateResetPasswordToken issues a persisted reset-password token.
func (s *Service) GenerateResetPasswordToken(ctx context.Context, userID string) (string, error) {
	return s.issue(ctx, userID, s.now().Add(s.ttl.ResetPassword), ResetPassword)
}

// GenerateVerifyEmailToken issues a persisted verify-email token.
func (s *Service) GenerateVerifyEmailToken(ctx context.Context, userID string) (string, error) {
	return s.issue(ctx, userID, s.now().Add(s.ttl.VerifyEmail), VerifyEmail)
}

func (s *Service) issue(ctx context.Context, userID string, expires time.Time, typ Type) (string, error) {
	raw, err := s.Generate(userID, expires, typ)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", typ, err)
	}
	if err := s.store.Save(ctx, &Record{Token: raw, UserID: userID, Type: typ, ExpiresAt: expires}); err != nil {
		return "", fmt.Errorf("save %s token: %w", typ, err)
	}
	return raw, nil
}
