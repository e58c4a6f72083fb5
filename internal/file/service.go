package file

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/tessera/api/internal/imaging"
	"github.com/tessera/api/internal/storage"
)

// ErrInvalidImage is returned when an upload cannot be decoded or re-encoded as an image.
var ErrInvalidImage = errors.New("unable to process image")

// ImageCompressor shrinks an image to the upload budget. *imaging.Pool satisfies it.
type ImageCompressor interface {
	Compress(ctx context.Context, data []byte, mimeType string) (*imaging.Result, error)
}

// Store persists file metadata.
type Store interface {
	Create(ctx context.Context, f *File) error
	GetByID(ctx context.Context, id string) (*File, error)
}

// Upload is an incoming file.
type Upload struct {
	OriginalName string
	MimeType     string
	Data         []byte
}

// Service uploads files to object storage and records their metadata.
type Service struct {
	repo   Store
	blobs  storage.Storage
	images ImageCompressor
	now    func() time.Time
}

// NewService creates a new file Service.
func NewService(repo Store, blobs storage.Storage, images ImageCompressor) *Service {
	return &Service{repo: repo, blobs: blobs, images: images, now: time.Now}
}

// Upload compresses images, writes the payload to storage and records the file for userID.
func (s *Service) Upload(ctx context.Context, userID string, in Upload) (*File, error) {
	data, mimeType := in.Data, in.MimeType

	if isImage(mimeType) {
		res, err := s.images.Compress(ctx, data, mimeType)
		if err != nil {
			if errors.Is(err, imaging.ErrDecode) || errors.Is(err, imaging.ErrEncode) {
				return nil, fmt.Errorf("%w: %w", ErrInvalidImage, err)
			}
			return nil, fmt.Errorf("compress image: %w", err)
		}
		log.Ctx(ctx).Debug().
			Int("input_bytes", len(data)).
			Int("output_bytes", len(res.Data)).
			Int("attempts", res.Attempts).
			Bool("fallback", res.Fallback).
			Str("mime_type", res.MIMEType).
			Msg("image compressed")
		data, mimeType = res.Data, res.MIMEType
	}

	name := cleanName(in.OriginalName)
	id := uuid.NewString()
	f := &File{
		ID:           id,
		Filename:     strconv.FormatInt(s.now().UnixMilli(), 10) + "-" + name,
		OriginalName: name,
		MimeType:     mimeType,
		Size:         int64(len(data)),
		StorageKey:   "files/" + id,
		UploadedBy:   userID,
	}

	if err := s.blobs.Upload(ctx, f.StorageKey, bytes.NewReader(data), f.Size, f.MimeType); err != nil {
		return nil, fmt.Errorf("store file: %w", err)
	}
	if err := s.repo.Create(ctx, f); err != nil {
		if derr := s.blobs.Delete(ctx, f.StorageKey); derr != nil {
			log.Ctx(ctx).Warn().Err(derr).Str("key", f.StorageKey).Msg("orphaned object after failed insert")
		}
		return nil, err
	}

	log.Ctx(ctx).Info().Str("file_id", f.ID).Int64("size", f.Size).Str("mime_type", f.MimeType).Msg("file uploaded")
	return f, nil
}

// Open returns the file's metadata and an open stream of its bytes. Callers must close the body.
func (s *Service) Open(ctx context.Context, id string) (*File, *storage.Object, error) {
	f, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	obj, err := s.blobs.Download(ctx, f.StorageKey)
	if errors.Is(err, storage.ErrNotFound) {
		log.Ctx(ctx).Error().Str("file_id", id).Str("key", f.StorageKey).Msg("file metadata without object")
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open file: %w", err)
	}
	return f, obj, nil
}

func isImage(mimeType string) bool {
	return strings.HasPrefix(mimeType, "image/")
}

// cleanName keeps only the base name of a client-supplied path.
func cleanName(name string) string {
	name = strings.TrimSpace(filepath.Base(strings.ReplaceAll(name, `\`, "/")))
	if name == "" || name == "." || name == "/" {
		return "file"
	}
	return name
}
