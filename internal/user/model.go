package user

import (
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// User represents a registered account.
type User struct {
	ID              string    `json:"id"              example:"e7eedc79-0707-4fe4-8734-526b7ef13a7b"`
	Name            string    `json:"name"            example:"Jane Doe"`
	Email           string    `json:"email"           example:"jane@example.com"`
	PasswordHash    *string   `json:"-"`
	GoogleID        *string   `json:"googleId,omitempty"`
	Picture         *string   `json:"picture,omitempty"`
	Role            string    `json:"role"            example:"user"`
	Mobile          *string   `json:"mobile,omitempty" example:"+8801610111111"`
	IsEmailVerified bool      `json:"isEmailVerified"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// HasPassword reports whether the account can log in with a password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

// PasswordMatches compares password with the stored bcrypt hash.
func (u *User) PasswordMatches(password string) bool {
	if !u.HasPassword() {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(*u.PasswordHash), []byte(password)) == nil
}

// SearchResult is the trimmed projection returned by user search.
type SearchResult struct {
	ID     string  `json:"id"`
	Email  string  `json:"email"`
	Mobile *string `json:"mobile,omitempty"`
	Name   string  `json:"name"`
}

// RoleCount is the number of users holding a role.
type RoleCount struct {
	Role  string `json:"role"  example:"user"`
	Count int    `json:"count" example:"42"`
}

// Page is one page of a user listing.
type Page struct {
	Results      []*User `json:"results"`
	Page         int     `json:"page"         example:"1"`
	Limit        int     `json:"limit"        example:"10"`
	TotalPages   int     `json:"totalPages"   example:"1"`
	TotalResults int     `json:"totalResults" example:"1"`
}

// Filter narrows a user listing. Name and Search are case-insensitive substring matches;
// Search matches name or email.
type Filter struct {
	Name   string
	Role   string
	Search string
}

// ListOptions controls ordering and pagination. SortBy is "field:asc|desc[,field:dir...]".
type ListOptions struct {
	SortBy string
	Limit  int
	Page   int
}

// Fields is a partial update; nil fields are left untouched.
type Fields struct {
	Name            *string
	Email           *string
	PasswordHash    *string
	GoogleID        *string
	Picture         *string
	Role            *string
	Mobile          *string
	IsEmailVerified *bool
}

func (f Fields) empty() bool {
	return f.Name == nil && f.Email == nil && f.PasswordHash == nil && f.GoogleID == nil &&
		f.Picture == nil && f.Role == nil && f.Mobile == nil && f.IsEmailVerified == nil
}

var (
	// ErrNotFound is returned when a user does not exist.
	ErrNotFound = errors.New("user not found")
	// ErrEmailTaken is returned when an email address belongs to another user.
	ErrEmailTaken = errors.New("email already taken")
	// ErrAlreadyExists is returned for any other uniqueness conflict.
	ErrAlreadyExists = errors.New("user already exists")
	// ErrInvalidSort is returned for a sortBy expression naming an unknown field.
	ErrInvalidSort = errors.New("invalid sortBy")
	// ErrInvalidPage is returned when a page lies beyond any addressable offset.
	ErrInvalidPage = errors.New("page out of range")
)
