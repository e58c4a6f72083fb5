package user

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/tessera/api/internal/middleware"
	"github.com/tessera/api/internal/response"
	"github.com/tessera/api/internal/validation"
)

// Handler holds HTTP handlers for user-related endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates a new user Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type createRequest struct {
	Name     string `json:"name"     validate:"required"                  example:"Jane Doe"`
	Email    string `json:"email"    validate:"required,email"            example:"jane@example.com"`
	Password string `json:"password" validate:"required,password"         example:"password1"`
	Mobile   string `json:"mobile"                                        example:"+8801610111111"`
	Role     string `json:"role"     validate:"required,oneof=user admin" example:"user"`
}

type updateRequest struct {
	Name     *string `json:"name"     validate:"omitempty,min=1"               example:"Jane Doe"`
	Email    *string `json:"email"    validate:"omitempty,email"               example:"jane@example.com"`
	Password *string `json:"password" validate:"omitempty,password"            example:"password1"`
	Mobile   *string `json:"mobile"                                            example:"+8801610111111"`
	Role     *string `json:"role"     validate:"omitempty,oneof=user admin"    example:"admin"`
}

func (r updateRequest) empty() bool {
	return r.Name == nil && r.Email == nil && r.Password == nil && r.Mobile == nil && r.Role == nil
}

type updateMeRequest struct {
	Name   *string `json:"name"   validate:"omitempty,min=1" example:"Jane Doe"`
	Mobile *string `json:"mobile"                            example:"+8801610111111"`
}

// CreateUser godoc
//
//	@Summary		Create a user
//	@Description	Only admins can create other users.
//	@Tags			users
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			body	body		createRequest	true	"New user"
//	@Success		201		{object}	response.Envelope{data=User}
//	@Failure		400		{object}	response.Envelope
//	@Failure		401		{object}	response.Envelope
//	@Failure		403		{object}	response.Envelope
//	@Router			/users [post]
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !decode(w, r, &req) {
		return
	}

	u, err := h.svc.Create(r.Context(), CreateInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Mobile:   req.Mobile,
		Role:     req.Role,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Created(w, u)
}

// GetUsers godoc
//
//	@Summary		List users
//	@Description	Only admins can retrieve all users.
//	@Tags			users
//	@Produce		json
//	@Security		BearerAuth
//	@Param			name	query		string	false	"Name contains (case-insensitive)"
//	@Param			role	query		string	false	"Exact role"
//	@Param			sortBy	query		string	false	"field:asc|desc, comma-separated"
//	@Param			limit	query		int		false	"Results per page (default 10)"
//	@Param			page	query		int		false	"Page number (default 1)"
//	@Success		200		{object}	response.Envelope{data=Page}
//	@Failure		400		{object}	response.Envelope
//	@Failure		401		{object}	response.Envelope
//	@Failure		403		{object}	response.Envelope
//	@Router			/users [get]
func (h *Handler) GetUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit, err := positiveInt(q.Get("limit"), "limit")
	if err != nil {
		response.BadRequest(w, err.Error())
		return
	}
	page, err := positiveInt(q.Get("page"), "page")
	if err != nil {
		response.BadRequest(w, err.Error())
		return
	}
	if role := q.Get("role"); role != "" {
		if err := validation.Var("role", role, "oneof=user admin"); err != nil {
			response.BadRequest(w, err.Error())
			return
		}
	}

	result, err := h.svc.Query(r.Context(),
		Filter{Name: q.Get("name"), Role: q.Get("role")},
		ListOptions{SortBy: q.Get("sortBy"), Limit: limit, Page: page},
	)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.OK(w, result)
}

// SearchUsers godoc
//
//	@Summary		Search users
//	@Description	Matches name or email; returns at most three users ordered by email.
//	@Tags			users
//	@Produce		json
//	@Security		BearerAuth
//	@Param			searchText	query		string	true	"Text to search for"
//	@Success		200			{object}	response.Envelope{data=[]SearchResult}
//	@Failure		400			{object}	response.Envelope
//	@Failure		401			{object}	response.Envelope
//	@Failure		403			{object}	response.Envelope
//	@Router			/users/search [get]
func (h *Handler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	text := r.URL.Query().Get("searchText")
	if err := validation.Var("searchText", text, "required"); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	results, err := h.svc.Search(r.Context(), text)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.OK(w, results)
}

// CountUsers godoc
//
//	@Summary	Count users by role
//	@Tags		users
//	@Produce	json
//	@Security	BearerAuth
//	@Success	200	{object}	response.Envelope{data=[]RoleCount}
//	@Failure	401	{object}	response.Envelope
//	@Failure	403	{object}	response.Envelope
//	@Router		/users/count [get]
func (h *Handler) CountUsers(w http.ResponseWriter, r *http.Request) {
	counts, err := h.svc.CountByRole(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.OK(w, counts)
}

// GetUser godoc
//
//	@Summary		Get a user
//	@Description	Logged in users can fetch only their own information; admins can fetch anyone.
//	@Tags			users
//	@Produce		json
//	@Security		BearerAuth
//	@Param			userId	path		string	true	"User ID"
//	@Success		200		{object}	response.Envelope{data=User}
//	@Failure		400		{object}	response.Envelope
//	@Failure		401		{object}	response.Envelope
//	@Failure		403		{object}	response.Envelope
//	@Failure		404		{object}	response.Envelope
//	@Router			/users/{userId} [get]
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}
	u, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.OK(w, u)
}

// UpdateUser godoc
//
//	@Summary		Update a user
//	@Description	Logged in users can update only their own information; admins can update anyone.
//	@Tags			users
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			userId	path		string			true	"User ID"
//	@Param			body	body		updateRequest	true	"Fields to change"
//	@Success		200		{object}	response.Envelope{data=User}
//	@Failure		400		{object}	response.Envelope
//	@Failure		401		{object}	response.Envelope
//	@Failure		403		{object}	response.Envelope
//	@Failure		404		{object}	response.Envelope
//	@Router			/users/{userId} [patch]
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}
	var req updateRequest
	if !decode(w, r, &req) {
		return
	}
	if req.empty() {
		response.BadRequest(w, "at least one field must be provided")
		return
	}

	u, err := h.svc.UpdateByID(r.Context(), id, UpdateInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Mobile:   req.Mobile,
		Role:     req.Role,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.OK(w, u)
}

// DeleteUser godoc
//
//	@Summary		Delete a user
//	@Description	Logged in users can delete only themselves; admins can delete anyone.
//	@Tags			users
//	@Security		BearerAuth
//	@Param			userId	path	string	true	"User ID"
//	@Success		204
//	@Failure		400	{object}	response.Envelope
//	@Failure		401	{object}	response.Envelope
//	@Failure		403	{object}	response.Envelope
//	@Failure		404	{object}	response.Envelope
//	@Router			/users/{userId} [delete]
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteByID(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	response.NoContent(w)
}

// GetMe godoc
//
//	@Summary		Get current user
//	@Description	Returns the profile of the currently authenticated user.
//	@Tags			me
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	response.Envelope{data=User}
//	@Failure		401	{object}	response.Envelope
//	@Failure		404	{object}	response.Envelope
//	@Router			/me [get]
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == "" {
		response.Unauthorized(w, "Please authenticate")
		return
	}

	u, err := h.svc.GetByID(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.OK(w, u)
}

// UpdateMe godoc
//
//	@Summary		Update current user
//	@Description	Only name and mobile can be changed here; send an empty mobile to clear it.
//	@Tags			me
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			body	body		updateMeRequest	true	"Fields to change"
//	@Success		200		{object}	response.Envelope{data=User}
//	@Failure		400		{object}	response.Envelope
//	@Failure		401		{object}	response.Envelope
//	@Failure		404		{object}	response.Envelope
//	@Router			/me [patch]
func (h *Handler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == "" {
		response.Unauthorized(w, "Please authenticate")
		return
	}
	var req updateMeRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Name == nil && req.Mobile == nil {
		response.BadRequest(w, "at least one field must be provided")
		return
	}

	u, err := h.svc.UpdateByID(r.Context(), userID, UpdateInput{Name: req.Name, Mobile: req.Mobile})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.OK(w, u)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		response.NotFound(w, "User not found")
	case errors.Is(err, ErrEmailTaken):
		response.BadRequest(w, "Email already taken")
	case errors.Is(err, ErrAlreadyExists):
		response.Conflict(w, "User already exists")
	case errors.Is(err, ErrInvalidSort), errors.Is(err, ErrInvalidPage):
		response.BadRequest(w, err.Error())
	default:
		log.Ctx(r.Context()).Error().Err(err).Msg("user request failed")
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

func userIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "userId")
	if err := validation.Var("userId", id, "required,uuid"); err != nil {
		response.BadRequest(w, err.Error())
		return "", false
	}
	return id, true
}

func positiveInt(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, &validation.Error{Message: `"` + name + `" must be a positive integer`}
	}
	return n, nil
}
