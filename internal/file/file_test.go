package file

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera/api/internal/imaging"
	"github.com/tessera/api/internal/middleware"
	"github.com/tessera/api/internal/response"
	"github.com/tessera/api/internal/storage"
)

const testUserID = "6a3c1f8e-9b0d-4c2e-8f71-2d5e4b3a1c90"

type memRepo struct {
	mu      sync.Mutex
	files   map[string]*File
	failing bool
}

func (m *memRepo) Create(_ context.Context, f *File) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return errors.New("db down")
	}
	f.CreatedAt = time.Now()
	f.UpdatedAt = f.CreatedAt
	cp := *f
	m.files[f.ID] = &cp
	return nil
}

func (m *memRepo) GetByID(_ context.Context, id string) (*File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *f
	return &cp, nil
}

type fixture struct {
	svc   *Service
	repo  *memRepo
	blobs *storage.MemoryStorage
}

func newFixture() *fixture {
	repo := &memRepo{files: make(map[string]*File)}
	blobs := storage.NewMemoryStorage()
	pool := imaging.NewPool(imaging.NewCompressor(imaging.DefaultOptions()), 2, nil)
	svc := NewService(repo, blobs, pool)
	svc.now = func() time.Time { return time.UnixMilli(1767225600000) }
	return &fixture{svc: svc, repo: repo, blobs: blobs}
}

func noisy(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x * 7), G: uint8(y * 13), B: uint8((x ^ y) * 3), A: 0xff})
		}
	}
	return img
}

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func jpegBytes(t *testing.T, img image.Image, q int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: q}))
	return buf.Bytes()
}

func TestUploadSmallImageIsStoredAsIs(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	data := pngBytes(t, noisy(16, 16))

	got, err := f.svc.Upload(ctx, testUserID, Upload{OriginalName: "dir/avatar.png", MimeType: "image/png", Data: data})
	require.NoError(t, err)

	assert.Equal(t, "avatar.png", got.OriginalName)
	assert.Equal(t, "1767225600000-avatar.png", got.Filename)
	assert.Equal(t, "image/png", got.MimeType)
	assert.Equal(t, int64(len(data)), got.Size)
	assert.Equal(t, "files/"+got.ID, got.StorageKey)
	assert.Equal(t, testUserID, got.UploadedBy)

	meta, obj, err := f.svc.Open(ctx, got.ID)
	require.NoError(t, err)
	defer obj.Body.Close()
	assert.Equal(t, got.ID, meta.ID)

	var buf bytes.Buffer
	_, err = buf.ReadFrom(obj.Body)
	require.NoError(t, err)
	assert.Equal(t, data, buf.Bytes())
}

func TestUploadLargeImageIsCompressed(t *testing.T) {
	f := newFixture()
	data := jpegBytes(t, noisy(1600, 1200), 95)
	require.Greater(t, len(data), imaging.DefaultMaxBytes)

	got, err := f.svc.Upload(context.Background(), testUserID, Upload{OriginalName: "big.jpg", MimeType: "image/jpeg", Data: data})
	require.NoError(t, err)

	assert.Equal(t, "image/jpeg", got.MimeType)
	assert.LessOrEqual(t, got.Size, int64(imaging.DefaultMaxBytes))
}

func TestUploadRejectsUndecodableImage(t *testing.T) {
	f := newFixture()

	_, err := f.svc.Upload(context.Background(), testUserID, Upload{OriginalName: "x.png", MimeType: "image/png", Data: []byte("not an image")})
	assert.ErrorIs(t, err, ErrInvalidImage)
	assert.ErrorIs(t, err, imaging.ErrDecode)
	assert.Empty(t, f.repo.files)
}

func TestUploadCleansUpBlobWhenInsertFails(t *testing.T) {
	f := newFixture()
	f.repo.failing = true

	_, err := f.svc.Upload(context.Background(), testUserID, Upload{OriginalName: "a.png", MimeType: "image/png", Data: pngBytes(t, noisy(8, 8))})
	require.Error(t, err)
	assert.Zero(t, f.blobs.Len())
}

func TestOpenMissing(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, _, err := f.svc.Open(ctx, "5f0f3c1e-8a52-4c36-9e36-0c3f8ad1d0f4")
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := f.svc.Upload(ctx, testUserID, Upload{OriginalName: "a.png", MimeType: "image/png", Data: pngBytes(t, noisy(8, 8))})
	require.NoError(t, err)
	require.NoError(t, f.blobs.Delete(ctx, got.StorageKey))

	_, _, err = f.svc.Open(ctx, got.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCleanName(t *testing.T) {
	tests := map[string]string{
		"photo.jpg":             "photo.jpg",
		"../../etc/passwd":      "passwd",
		`C:\Users\me\photo.png`: "photo.png",
		"":                      "file",
		"   ":                   "file",
	}
	for in, want := range tests {
		assert.Equal(t, want, cleanName(in), in)
	}
}

func newRouter(f *fixture, maxBytes int64) http.Handler {
	h := NewHandler(f.svc, maxBytes, "/api/v1/file")
	r := chi.NewRouter()
	r.With(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := context.WithValue(req.Context(), middleware.UserIDKey, testUserID)
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	}).Post("/file", h.Upload)
	r.Get("/file/{fileId}", h.Get)
	return r
}

func multipartBody(t *testing.T, field, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("note", "ignored"))

	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func upload(router http.Handler, body *bytes.Buffer, contentType string) (*httptest.ResponseRecorder, response.Envelope) {
	req := httptest.NewRequest(http.MethodPost, "/file", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var env response.Envelope
	_ = json.Unmarshal(rec.Body.Bytes(), &env)
	return rec, env
}

func TestUploadHandler(t *testing.T) {
	f := newFixture()
	router := newRouter(f, 64*1024)
	img := pngBytes(t, noisy(16, 16))

	t.Run("success", func(t *testing.T) {
		body, ct := multipartBody(t, "file", "avatar.png", "image/png", img)
		rec, env := upload(router, body, ct)
		require.Equal(t, http.StatusCreated, rec.Code)

		data := env.Data.(map[string]interface{})
		id := data["id"].(string)
		assert.Equal(t, "avatar.png", data["originalName"])
		assert.Equal(t, "image/png", data["mimeType"])
		assert.Equal(t, float64(len(img)), data["size"])
		assert.Equal(t, "/api/v1/file/"+id, data["link"])
	})

	t.Run("sniffed type wins over declared", func(t *testing.T) {
		body, ct := multipartBody(t, "file", "photo.png", "image/png", jpegBytes(t, noisy(16, 16), 80))
		rec, env := upload(router, body, ct)
		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "image/jpeg", env.Data.(map[string]interface{})["mimeType"])
	})

	tests := []struct {
		name   string
		field  string
		ctype  string
		data   []byte
		status int
		msg    string
	}{
		{"not an image", "file", "application/pdf", []byte("%PDF-1.4"), http.StatusBadRequest, "Only image files are allowed"},
		{"wrong field", "upload", "image/png", img, http.StatusBadRequest, "No file uploaded"},
		{"too large", "file", "image/png", make([]byte, 64*1024+1), http.StatusRequestEntityTooLarge, "File too large"},
		{"corrupt image", "file", "image/png", []byte("definitely not a png"), http.StatusBadRequest, "unable to process image"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			body, ct := multipartBody(t, tc.field, "x.bin", tc.ctype, tc.data)
			rec, env := upload(router, body, ct)
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.msg, env.Error)
		})
	}

	t.Run("not multipart", func(t *testing.T) {
		rec, env := upload(router, bytes.NewBufferString(`{"file":"x"}`), "application/json")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "No file uploaded", env.Error)
	})
}

func TestGetHandler(t *testing.T) {
	f := newFixture()
	router := newRouter(f, 1<<20)
	img := pngBytes(t, noisy(16, 16))

	stored, err := f.svc.Upload(context.Background(), testUserID, Upload{OriginalName: `my "cat".png`, MimeType: "image/png", Data: img})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/file/"+stored.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, fmt.Sprint(len(img)), rec.Header().Get("Content-Length"))
	assert.Equal(t, `inline; filename="my \"cat\".png"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, img, rec.Body.Bytes())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/file/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/file/5f0f3c1e-8a52-4c36-9e36-0c3f8ad1d0f4", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "File not found")
}
