package auth

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/tessera/api/internal/middleware"
	"github.com/tessera/api/internal/response"
	"github.com/tessera/api/internal/token"
	"github.com/tessera/api/internal/user"
	"github.com/tessera/api/internal/validation"
)

// Handler holds HTTP handlers for auth endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates a new auth Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type registerRequest struct {
	Name     string `json:"name"     validate:"required"          example:"Jane Doe"`
	Email    string `json:"email"    validate:"required,email"    example:"jane@example.com"`
	Password string `json:"password" validate:"required,password" example:"password1"`
	Mobile   string `json:"mobile"   validate:"required"          example:"+8801610111111"`
}

type loginRequest struct {
	Email    string `json:"email"    validate:"required" example:"jane@example.com"`
	Password string `json:"password" validate:"required" example:"password1"`
}

type refreshTokenRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required" example:"eyJhbGci..."`
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email" example:"jane@example.com"`
}

type resetPasswordRequest struct {
	Password string `json:"password" validate:"required,password" example:"password1"`
}

type googleRequest struct {
	IDToken string `json:"idToken" validate:"required" example:"eyJhbGciOiJSUzI1NiIs..."`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"          example:"password1"`
	NewPassword     string `json:"newPassword"     validate:"required,password" example:"password2"`
}

// Register godoc
//
//	@Summary		Register
//	@Description	Creates a password account with the user role and returns a token pair.
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		registerRequest	true	"New account"
//	@Success		201		{object}	response.Envelope{data=Session}
//	@Failure		400		{object}	response.Envelope
//	@Router			/auth/register [post]
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decode(w, r, &req) {
		return
	}

	sess, err := h.svc.Register(r.Context(), user.CreateInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Mobile:   req.Mobile,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Created(w, sess)
}

// Login godoc
//
//	@Summary	Login
//	@Tags		auth
//	@Accept		json
//	@Produce	json
//	@Param		body	body		loginRequest	true	"Credentials"
//	@Success	200		{object}	response.Envelope{data=Session}
//	@Failure	400		{object}	response.Envelope
//	@Failure	401		{object}	response.Envelope
//	@Router		/auth/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decode(w, r, &req) {
		return
	}

	sess, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.OK(w, sess)
}

// Logout godoc
//
//	@Summary	Logout
//	@Tags		auth
//	@Accept		json
//	@Param		body	body	refreshTokenRequest	true	"Refresh token to revoke"
//	@Success	204
//	@Failure	400	{object}	response.Envelope
//	@Failure	404	{object}	response.Envelope
//	@Router		/auth/logout [post]
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var req refreshTokenRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.Logout(r.Context(), req.RefreshToken); err != nil {
		h.fail(w, r, err)
		return
	}
	response.NoContent(w)
}

// RefreshTokens godoc
//
//	@Summary	Refresh auth tokens
//	@Tags		auth
//	@Accept		json
//	@Produce	json
//	@Param		body	body		refreshTokenRequest	true	"Refresh token"
//	@Success	200		{object}	response.Envelope{data=token.AuthTokens}
//	@Failure	400		{object}	response.Envelope
//	@Failure	401		{object}	response.Envelope
//	@Router		/auth/refresh-tokens [post]
func (h *Handler) RefreshTokens(w http.ResponseWriter, r *http.Request) {
	var req refreshTokenRequest
	if !decode(w, r, &req) {
		return
	}
	tokens, err := h.svc.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.OK(w, tokens)
}

// ForgotPassword godoc
//
//	@Summary		Forgot password
//	@Description	Emails a reset password link to the account owner.
//	@Tags			auth
//	@Accept			json
//	@Param			body	body	forgotPasswordRequest	true	"Account email"
//	@Success		204
//	@Failure		400	{object}	response.Envelope
//	@Failure		404	{object}	response.Envelope
//	@Router			/auth/forgot-password [post]
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.ForgotPassword(r.Context(), req.Email); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			response.NotFound(w, "No users found with this email")
			return
		}
		h.fail(w, r, err)
		return
	}
	response.NoContent(w)
}

// ResetPassword godoc
//
//	@Summary	Reset password
//	@Tags		auth
//	@Accept		json
//	@Param		token	query	string					true	"Reset password token"
//	@Param		body	body	resetPasswordRequest	true	"New password"
//	@Success	204
//	@Failure	400	{object}	response.Envelope
//	@Failure	401	{object}	response.Envelope
//	@Router		/auth/reset-password [post]
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	raw, ok := tokenQuery(w, r)
	if !ok {
		return
	}
	var req resetPasswordRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.ResetPassword(r.Context(), raw, req.Password); err != nil {
		h.fail(w, r, err)
		return
	}
	response.NoContent(w)
}

// SendVerificationEmail godoc
//
//	@Summary	Send verification email
//	@Tags		auth
//	@Security	BearerAuth
//	@Success	204
//	@Failure	401	{object}	response.Envelope
//	@Router		/auth/send-verification-email [post]
func (h *Handler) SendVerificationEmail(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == "" {
		response.Unauthorized(w, "Please authenticate")
		return
	}
	if err := h.svc.SendVerificationEmail(r.Context(), userID); err != nil {
		h.fail(w, r, err)
		return
	}
	response.NoContent(w)
}

// VerifyEmail godoc
//
//	@Summary	Verify email
//	@Tags		auth
//	@Param		token	query	string	true	"Verify email token"
//	@Success	204
//	@Failure	400	{object}	response.Envelope
//	@Failure	401	{object}	response.Envelope
//	@Router		/auth/verify-email [post]
func (h *Handler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	raw, ok := tokenQuery(w, r)
	if !ok {
		return
	}
	if err := h.svc.VerifyEmail(r.Context(), raw); err != nil {
		h.fail(w, r, err)
		return
	}
	response.NoContent(w)
}

// Google godoc
//
//	@Summary		Sign in with Google
//	@Description	Verifies a Google ID token, then finds, links or creates the account.
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		googleRequest	true	"Google ID token"
//	@Success		200		{object}	response.Envelope{data=Session}
//	@Failure		400		{object}	response.Envelope
//	@Failure		401		{object}	response.Envelope
//	@Router			/auth/google [post]
func (h *Handler) Google(w http.ResponseWriter, r *http.Request) {
	var req googleRequest
	if !decode(w, r, &req) {
		return
	}
	sess, err := h.svc.LoginWithGoogle(r.Context(), req.IDToken)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.OK(w, sess)
}

// ChangePassword godoc
//
//	@Summary	Change password
//	@Tags		auth
//	@Accept		json
//	@Security	BearerAuth
//	@Param		body	body	changePasswordRequest	true	"Current and new password"
//	@Success	204
//	@Failure	400	{object}	response.Envelope
//	@Failure	401	{object}	response.Envelope
//	@Failure	404	{object}	response.Envelope
//	@Router		/auth/change-password [post]
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == "" {
		response.Unauthorized(w, "Please authenticate")
		return
	}
	var req changePasswordRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.ChangePassword(r.Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		h.fail(w, r, err)
		return
	}
	response.NoContent(w)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		response.Unauthorized(w, "Incorrect email or password")
	case errors.Is(err, ErrRefreshTokenNotFound):
		response.NotFound(w, "Not found")
	case errors.Is(err, ErrUnauthenticated):
		response.Unauthorized(w, "Please authenticate")
	case errors.Is(err, ErrResetFailed):
		response.Unauthorized(w, "Password reset failed")
	case errors.Is(err, ErrVerifyFailed):
		response.Unauthorized(w, "Email verification failed")
	case errors.Is(err, ErrInvalidGoogleToken):
		response.Unauthorized(w, "Invalid Google token")
	case errors.Is(err, ErrNoPassword):
		response.BadRequest(w, "Cannot change password for accounts without a password")
	case errors.Is(err, ErrWrongPassword):
		response.Unauthorized(w, "Current password is incorrect")
	case errors.Is(err, user.ErrEmailTaken):
		response.BadRequest(w, "Email already taken")
	case errors.Is(err, user.ErrNotFound):
		response.NotFound(w, "User not found")
	case errors.Is(err, token.ErrInvalid):
		response.Unauthorized(w, "Please authenticate")
	default:
		log.Ctx(r.Context()).Error().Err(err).Msg("auth request failed")
		response.InternalError(w)
	}
}

func decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := validation.DecodeJSON(r, dst); err != nil {
		response.BadRequest(w, err.Error())
		return false
	}
	return true
}

func tokenQuery(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := r.URL.Query().Get("token")
	if err := validation.Var("token", raw, "required"); err != nil {
		response.BadRequest(w, err.Error())
		return "", false
	}
	return raw, true
}
