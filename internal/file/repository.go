// Package file stores uploaded images and serves them back.
package file

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// File is the metadata of a stored upload. The bytes live in object storage under StorageKey.
type File struct {
	ID           string    `json:"id"           example:"0b6f3c1e-8a52-4c36-9e36-0c3f8ad1d0f4"`
	Filename     string    `json:"filename"     example:"1767225600000-avatar.png"`
	OriginalName string    `json:"originalName" example:"avatar.png"`
	MimeType     string    `json:"mimeType"     example:"image/png"`
	Size         int64     `json:"size"         example:"48213"`
	StorageKey   string    `json:"-"`
	UploadedBy   string    `json:"uploadedBy"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// ErrNotFound is returned when a file does not exist.
var ErrNotFound = errors.New("file not found")

// Repository handles file metadata persistence.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new file Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Create inserts f and fills in its timestamps. f.ID must already be set.
func (r *Repository) Create(ctx context.Context, f *File) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO files (id, filename, original_name, mime_type, size, storage_key, uploaded_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at, updated_at`,
		f.ID, f.Filename, f.OriginalName, f.MimeType, f.Size, f.StorageKey, f.UploadedBy,
	).Scan(&f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert file: %w", err)
	}
	return nil
}

// GetByID fetches file metadata by UUID.
func (r *Repository) GetByID(ctx context.Context, id string) (*File, error) {
	f := &File{}
	err := r.db.QueryRow(ctx,
		`SELECT id, filename, original_name, mime_type, size, storage_key, uploaded_by, created_at, updated_at
		 FROM files WHERE id = $1`,
		id,
	).Scan(&f.ID, &f.Filename, &f.OriginalName, &f.MimeType, &f.Size, &f.StorageKey, &f.UploadedBy,
		&f.CreatedAt, &f.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}
	return f, nil
}
