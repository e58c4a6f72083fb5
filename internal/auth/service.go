// Package auth implements registration, login and the token-based account flows.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/tessera/api/internal/token"
	"github.com/tessera/api/internal/user"
)

var (
	// ErrInvalidCredentials is returned when the email or password is wrong.
	ErrInvalidCredentials = errors.New("incorrect email or password")
	// ErrRefreshTokenNotFound is returned on logout with no live refresh token.
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	// ErrUnauthenticated is returned when a refresh token cannot be exchanged.
	ErrUnauthenticated = errors.New("please authenticate")
	// ErrResetFailed is returned when a reset-password token is rejected.
	ErrResetFailed = errors.New("password reset failed")
	// ErrVerifyFailed is returned when a verify-email token is rejected.
	ErrVerifyFailed = errors.New("email verification failed")
	// ErrInvalidGoogleToken is returned when a Google ID token does not verify.
	ErrInvalidGoogleToken = errors.New("invalid google token")
	// ErrNoPassword is returned when changing the password of a Google-only account.
	ErrNoPassword = errors.New("account has no password")
	// ErrWrongPassword is returned when the current password does not match.
	ErrWrongPassword = errors.New("current password is incorrect")
)

// Mailer sends the emails of the reset and verification flows.
type Mailer interface {
	SendResetPassword(ctx context.Context, to, token string) error
	SendVerification(ctx context.Context, to, token string) error
}

// Session is a user together with a freshly issued token pair.
type Session struct {
	User   *user.User        `json:"user"`
	Tokens *token.AuthTokens `json:"tokens"`
}

// Service contains the business logic for authentication.
type Service struct {
	users  *user.Service
	tokens *token.Service
	mailer Mailer
	google IDTokenVerifier
}

// NewService creates a new auth Service.
func NewService(users *user.Service, tokens *token.Service, mailer Mailer, google IDTokenVerifier) *Service {
	return &Service{users: users, tokens: tokens, mailer: mailer, google: google}
}

// Register creates a password account with the user role and signs it in.
func (s *Service) Register(ctx context.Context, in user.CreateInput) (*Session, error) {
	in.Role = ""
	u, err := s.users.Create(ctx, in)
	if err != nil {
		return nil, err
	}
	return s.session(ctx, u)
}

// Login checks an email and password and signs the user in.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, user.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !u.PasswordMatches(password) {
		return nil, ErrInvalidCredentials
	}
	return s.session(ctx, u)
}

// Logout revokes a refresh token.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	rec, err := s.tokens.Lookup(ctx, refreshToken, token.Refresh)
	if errors.Is(err, token.ErrNotFound) {
		return ErrRefreshTokenNotFound
	}
	if err != nil {
		return err
	}
	return s.tokens.Delete(ctx, rec.ID)
}

// Refresh exchanges a refresh token for a new token pair. The old refresh token is revoked.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*token.AuthTokens, error) {
	rec, err := s.tokens.Verify(ctx, refreshToken, token.Refresh)
	if err != nil {
		return nil, unauthorized(ctx, ErrUnauthenticated, err)
	}
	u, err := s.users.GetByID(ctx, rec.UserID)
	if err != nil {
		return nil, unauthorized(ctx, ErrUnauthenticated, err)
	}
	if err := s.tokens.Delete(ctx, rec.ID); err != nil {
		return nil, unauthorized(ctx, ErrUnauthenticated, err)
	}
	return s.tokens.GenerateAuthTokens(ctx, u.ID)
}

// ForgotPassword mails a reset-password token to the account owning email.
// user.ErrNotFound is returned when there is no such account.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	raw, err := s.tokens.GenerateResetPasswordToken(ctx, u.ID)
	if err != nil {
		return err
	}
	if err := s.mailer.SendResetPassword(ctx, u.Email, raw); err != nil {
		return fmt.Errorf("send reset password email: %w", err)
	}
	return nil
}

// ResetPassword sets a new password using a reset-password token and revokes every outstanding
// reset token of the user.
func (s *Service) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	rec, err := s.tokens.Verify(ctx, resetToken, token.ResetPassword)
	if err != nil {
		return unauthorized(ctx, ErrResetFailed, err)
	}
	if err := s.users.SetPassword(ctx, rec.UserID, newPassword); err != nil {
		return unauthorized(ctx, ErrResetFailed, err)
	}
	if err := s.tokens.DeleteForUser(ctx, rec.UserID, token.ResetPassword); err != nil {
		return unauthorized(ctx, ErrResetFailed, err)
	}
	log.Ctx(ctx).Info().Str("user_id", rec.UserID).Msg("password reset")
	return nil
}

// SendVerificationEmail mails a verify-email token to the user.
func (s *Service) SendVerificationEmail(ctx context.Context, userID string) error {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	raw, err := s.tokens.GenerateVerifyEmailToken(ctx, u.ID)
	if err != nil {
		return err
	}
	if err := s.mailer.SendVerification(ctx, u.Email, raw); err != nil {
		return fmt.Errorf("send verification email: %w", err)
	}
	return nil
}

// VerifyEmail marks the user's email verified using a verify-email token.
func (s *Service) VerifyEmail(ctx context.Context, verifyToken string) error {
	rec, err := s.tokens.Verify(ctx, verifyToken, token.VerifyEmail)
	if err != nil {
		return unauthorized(ctx, ErrVerifyFailed, err)
	}
	if _, err := s.users.GetByID(ctx, rec.UserID); err != nil {
		return unauthorized(ctx, ErrVerifyFailed, err)
	}
	if err := s.tokens.DeleteForUser(ctx, rec.UserID, token.VerifyEmail); err != nil {
		return unauthorized(ctx, ErrVerifyFailed, err)
	}
	if err := s.users.MarkEmailVerified(ctx, rec.UserID); err != nil {
		return unauthorized(ctx, ErrVerifyFailed, err)
	}
	return nil
}

// LoginWithGoogle signs in with a Google ID token. The account is found by Google ID, else
// linked by email, else created.
func (s *Service) LoginWithGoogle(ctx context.Context, idToken string) (*Session, error) {
	profile, err := s.google.Verify(ctx, idToken)
	if err != nil {
		return nil, unauthorized(ctx, ErrInvalidGoogleToken, err)
	}

	u, err := s.users.GetByGoogleID(ctx, profile.Subject)
	switch {
	case err == nil:
		u, err = s.users.RefreshPicture(ctx, u, profile.Picture)
	case errors.Is(err, user.ErrNotFound):
		u, err = s.linkOrCreate(ctx, profile)
	}
	if err != nil {
		return nil, err
	}
	return s.session(ctx, u)
}

func (s *Service) linkOrCreate(ctx context.Context, profile *user.GoogleProfile) (*user.User, error) {
	existing, err := s.users.GetByEmail(ctx, profile.Email)
	if err == nil {
		log.Ctx(ctx).Info().Str("user_id", existing.ID).Msg("google account linked")
		return s.users.LinkGoogle(ctx, existing.ID, *profile)
	}
	if !errors.Is(err, user.ErrNotFound) {
		return nil, err
	}
	return s.users.CreateFromGoogle(ctx, *profile)
}

// ChangePassword replaces the password after checking the current one.
func (s *Service) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !u.HasPassword() {
		return ErrNoPassword
	}
	if !u.PasswordMatches(currentPassword) {
		return ErrWrongPassword
	}
	return s.users.SetPassword(ctx, userID, newPassword)
}

func (s *Service) session(ctx context.Context, u *user.User) (*Session, error) {
	tokens, err := s.tokens.GenerateAuthTokens(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	return &Session{User: u, Tokens: tokens}, nil
}

// unauthorized logs the underlying cause and returns the client-facing sentinel.
func unauthorized(ctx context.Context, sentinel, cause error) error {
	log.Ctx(ctx).Debug().Err(cause).Msg(sentinel.Error())
	return sentinel
}
