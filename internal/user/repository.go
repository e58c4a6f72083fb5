// Package user manages user accounts and their persistence.
package user

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tessera/api/internal/db"
)

const userColumns = `id, name, email, password_hash, google_id, picture, role, mobile,
	is_email_verified, created_at, updated_at`

// sortColumns whitelists the fields accepted in sortBy.
var sortColumns = map[string]string{
	"name":      "name",
	"email":     "email",
	"role":      "role",
	"mobile":    "mobile",
	"createdAt": "created_at",
	"updatedAt": "updated_at",
}

// Repository handles all user database operations.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func scanUser(row pgx.Row) (*User, error) {
	u := &User{}
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.GoogleID, &u.Picture, &u.Role,
		&u.Mobile, &u.IsEmailVerified, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// Create inserts a new user and returns the created record.
func (r *Repository) Create(ctx context.Context, u *User) (*User, error) {
	created, err := scanUser(r.db.QueryRow(ctx,
		`INSERT INTO users (name, email, password_hash, google_id, picture, role, mobile, is_email_verified)
		 VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)
		 RETURNING `+userColumns,
		u.Name, u.Email, u.PasswordHash, u.GoogleID, u.Picture, u.Role, u.Mobile, u.IsEmailVerified,
	))
	if err != nil {
		return nil, uniqueErr(err, "create user")
	}
	return created, nil
}

// GetByID fetches a user by their UUID.
func (r *Repository) GetByID(ctx context.Context, id string) (*User, error) {
	return r.getBy(ctx, "id", id)
}

// GetByEmail fetches a user by email.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.getBy(ctx, "email", email)
}

// GetByGoogleID fetches a user by their Google subject identifier.
func (r *Repository) GetByGoogleID(ctx context.Context, googleID string) (*User, error) {
	return r.getBy(ctx, "google_id", googleID)
}

func (r *Repository) getBy(ctx context.Context, column, value string) (*User, error) {
	u, err := scanUser(r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+column+` = $1`,
		value,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user by %s: %w", column, err)
	}
	return u, nil
}

// EmailTaken reports whether email belongs to a user other than excludeID.
func (r *Repository) EmailTaken(ctx context.Context, email, excludeID string) (bool, error) {
	var taken bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE email = $1 AND ($2 = '' OR id::text <> $2))`,
		email, excludeID,
	).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("check email: %w", err)
	}
	return taken, nil
}

// List returns one page of users matching f, and the total number of matches.
func (r *Repository) List(ctx context.Context, f Filter, opts ListOptions) ([]*User, int, error) {
	orderBy, err := orderClause(opts.SortBy)
	if err != nil {
		return nil, 0, err
	}

	where, args := whereClause(f)

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM users`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	args = append(args, opts.Limit, (opts.Page-1)*opts.Limit)
	rows, err := r.db.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM users%s ORDER BY %s LIMIT $%d OFFSET $%d`,
			userColumns, where, orderBy, len(args)-1, len(args)),
		args...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]*User, 0, opts.Limit)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate users: %w", err)
	}
	return users, total, nil
}

// Update applies f to the user and returns the updated record.
func (r *Repository) Update(ctx context.Context, id string, f Fields) (*User, error) {
	if f.empty() {
		return r.GetByID(ctx, id)
	}

	var (
		sets []string
		args []interface{}
	)
	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if f.Name != nil {
		add("name", *f.Name)
	}
	if f.Email != nil {
		add("email", *f.Email)
	}
	if f.PasswordHash != nil {
		add("password_hash", *f.PasswordHash)
	}
	if f.GoogleID != nil {
		add("google_id", *f.GoogleID)
	}
	if f.Picture != nil {
		add("picture", *f.Picture)
	}
	if f.Role != nil {
		add("role", *f.Role)
	}
	if f.Mobile != nil {
		args = append(args, *f.Mobile)
		sets = append(sets, fmt.Sprintf("mobile = NULLIF($%d, '')", len(args)))
	}
	if f.IsEmailVerified != nil {
		add("is_email_verified", *f.IsEmailVerified)
	}
	args = append(args, id)

	u, err := scanUser(r.db.QueryRow(ctx,
		fmt.Sprintf(`UPDATE users SET %s, updated_at = NOW() WHERE id = $%d RETURNING %s`,
			strings.Join(sets, ", "), len(args), userColumns),
		args...,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, uniqueErr(err, "update user")
	}
	return u, nil
}

// Delete removes the user. Their tokens and files cascade.
func (r *Repository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CountByRole returns how many users hold each role, ordered by role.
func (r *Repository) CountByRole(ctx context.Context) ([]RoleCount, error) {
	rows, err := r.db.Query(ctx, `SELECT role, COUNT(*) FROM users GROUP BY role ORDER BY role`)
	if err != nil {
		return nil, fmt.Errorf("count users by role: %w", err)
	}
	defer rows.Close()

	var out []RoleCount
	for rows.Next() {
		var rc RoleCount
		if err := rows.Scan(&rc.Role, &rc.Count); err != nil {
			return nil, fmt.Errorf("scan role count: %w", err)
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}

func whereClause(f Filter) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	if f.Name != "" {
		args = append(args, "%"+escapeLike(f.Name)+"%")
		conds = append(conds, fmt.Sprintf("name ILIKE $%d", len(args)))
	}
	if f.Role != "" {
		args = append(args, f.Role)
		conds = append(conds, fmt.Sprintf("role = $%d", len(args)))
	}
	if f.Search != "" {
		args = append(args, "%"+escapeLike(f.Search)+"%")
		conds = append(conds, fmt.Sprintf("(name ILIKE $%d OR email ILIKE $%d)", len(args), len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// orderClause turns "name:desc,email:asc" into a whitelisted ORDER BY list.
func orderClause(sortBy string) (string, error) {
	if strings.TrimSpace(sortBy) == "" {
		return "created_at ASC, id ASC", nil
	}
	var parts []string
	for _, item := range strings.Split(sortBy, ",") {
		field, dir, _ := strings.Cut(strings.TrimSpace(item), ":")
		column, ok := sortColumns[field]
		if !ok {
			return "", fmt.Errorf("%w: unknown field %q", ErrInvalidSort, field)
		}
		direction := "ASC"
		if strings.EqualFold(dir, "desc") {
			direction = "DESC"
		}
		parts = append(parts, column+" "+direction)
	}
	parts = append(parts, "id ASC")
	return strings.Join(parts, ", "), nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func uniqueErr(err error, op string) error {
	if db.IsUniqueViolation(err) {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.ConstraintName == "users_email_key" {
			return ErrEmailTaken
		}
		return ErrAlreadyExists
	}
	return fmt.Errorf("%s: %w", op, err)
}
