package token

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists issued refresh, reset-password and verify-email tokens.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new token Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Save inserts rec and fills in its generated fields.
func (r *Repository) Save(ctx context.Context, rec *Record) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO tokens (token, user_id, type, expires_at, blacklisted)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		rec.Token, rec.UserID, string(rec.Type), rec.ExpiresAt, rec.Blacklisted,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

// Find returns the live (non-blacklisted) record for the given token string and type.
func (r *Repository) Find(ctx context.Context, token string, typ Type) (*Record, error) {
	rec := &Record{}
	var t string
	err := r.db.QueryRow(ctx,
		`SELECT id, token, user_id, type, expires_at, blacklisted, created_at
		 FROM tokens
		 WHERE token = $1 AND type = $2 AND blacklisted = FALSE
		 ORDER BY created_at DESC
		 LIMIT 1`,
		token, string(typ),
	).Scan(&rec.ID, &rec.Token, &rec.UserID, &t, &rec.ExpiresAt, &rec.Blacklisted, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find token: %w", err)
	}
	rec.Type = Type(t)
	return rec, nil
}

// Delete removes a single token record.
func (r *Repository) Delete(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM tokens WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	return nil
}

// DeleteByUser removes every token of the given type belonging to userID.
func (r *Repository) DeleteByUser(ctx context.Context, userID string, typ Type) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM tokens WHERE user_id = $1 AND type = $2`,
		userID, string(typ),
	)
	if err != nil {
		return fmt.Errorf("delete user tokens: %w", err)
	}
	return nil
}
