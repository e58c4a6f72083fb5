package file

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/tessera/api/internal/middleware"
	"github.com/tessera/api/internal/response"
	"github.com/tessera/api/internal/validation"
)

const formField = "file"

// Handler holds HTTP handlers for file endpoints.
type Handler struct {
	svc      *Service
	maxBytes int64
	linkBase string
}

// NewHandler creates a new file Handler accepting uploads of at most maxBytes. Links in upload
// responses are linkBase + "/" + id.
func NewHandler(svc *Service, maxBytes int64, linkBase string) *Handler {
	return &Handler{svc: svc, maxBytes: maxBytes, linkBase: strings.TrimRight(linkBase, "/")}
}

type uploadResponse struct {
	ID           string `json:"id"           example:"0b6f3c1e-8a52-4c36-9e36-0c3f8ad1d0f4"`
	Filename     string `json:"filename"     example:"1767225600000-avatar.png"`
	OriginalName string `json:"originalName" example:"avatar.png"`
	MimeType     string `json:"mimeType"     example:"image/png"`
	Size         int64  `json:"size"         example:"48213"`
	Link         string `json:"link"         example:"/api/v1/file/0b6f3c1e-8a52-4c36-9e36-0c3f8ad1d0f4"`
}

var (
	errNoFile   = errors.New("no file uploaded")
	errNotImage = errors.New("only image files are allowed")
	errTooLarge = errors.New("file too large")
)

// Upload godoc
//
//	@Summary		Upload an image
//	@Description	Images are compressed to at most 100 KiB before storage. Maximum upload size is 5 MiB.
//	@Tags			files
//	@Accept			multipart/form-data
//	@Produce		json
//	@Security		BearerAuth
//	@Param			file	formData	file	true	"Image to upload"
//	@Success		201		{object}	response.Envelope{data=uploadResponse}
//	@Failure		400		{object}	response.Envelope
//	@Failure		401		{object}	response.Envelope
//	@Failure		413		{object}	response.Envelope
//	@Router			/file [post]
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == "" {
		response.Unauthorized(w, "Please authenticate")
		return
	}

	in, err := h.readUpload(r)
	if err != nil {
		switch {
		case errors.Is(err, errTooLarge):
			response.TooLarge(w, "File too large")
		case errors.Is(err, errNotImage):
			response.BadRequest(w, "Only image files are allowed")
		case errors.Is(err, errNoFile):
			response.BadRequest(w, "No file uploaded")
		default:
			log.Ctx(r.Context()).Warn().Err(err).Msg("malformed upload")
			response.BadRequest(w, "No file uploaded")
		}
		return
	}

	f, err := h.svc.Upload(r.Context(), userID, *in)
	if err != nil {
		if errors.Is(err, ErrInvalidImage) {
			log.Ctx(r.Context()).Warn().Err(err).Str("mime_type", in.MimeType).Msg("image rejected")
			response.BadRequest(w, ErrInvalidImage.Error())
			return
		}
		log.Ctx(r.Context()).Error().Err(err).Msg("upload failed")
		response.InternalError(w)
		return
	}

	response.Created(w, uploadResponse{
		ID:           f.ID,
		Filename:     f.Filename,
		OriginalName: f.OriginalName,
		MimeType:     f.MimeType,
		Size:         f.Size,
		Link:         h.linkBase + "/" + f.ID,
	})
}

// readUpload streams the multipart body until it finds the file field.
func (h *Handler) readUpload(r *http.Request) (*Upload, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, errNoFile
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, errNoFile
		}
		if err != nil {
			return nil, err
		}
		if part.FormName() != formField || part.FileName() == "" {
			_ = part.Close()
			continue
		}
		return h.readFilePart(part)
	}
}

func (h *Handler) readFilePart(part *multipart.Part) (*Upload, error) {
	defer part.Close()

	declared := part.Header.Get("Content-Type")
	if !strings.HasPrefix(declared, "image/") {
		return nil, errNotImage
	}

	data, err := io.ReadAll(io.LimitReader(part, h.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > h.maxBytes {
		return nil, errTooLarge
	}
	if len(data) == 0 {
		return nil, errNoFile
	}

	mimeType := declared
	if sniffed := mimetype.Detect(data); strings.HasPrefix(sniffed.String(), "image/") {
		mimeType = strings.SplitN(sniffed.String(), ";", 2)[0]
	}

	return &Upload{OriginalName: part.FileName(), MimeType: mimeType, Data: data}, nil
}

// Get godoc
//
//	@Summary		Get a file
//	@Description	Streams the stored bytes inline.
//	@Tags			files
//	@Produce		image/jpeg,image/png,image/webp,image/gif
//	@Param			fileId	path	string	true	"File ID"
//	@Success		200		{file}	binary
//	@Failure		400		{object}	response.Envelope
//	@Failure		404		{object}	response.Envelope
//	@Router			/file/{fileId} [get]
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "fileId")
	if err := validation.Var("fileId", id, "required,uuid"); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	f, obj, err := h.svc.Open(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(w, "File not found")
			return
		}
		log.Ctx(r.Context()).Error().Err(err).Str("file_id", id).Msg("open file failed")
		response.InternalError(w)
		return
	}
	defer obj.Body.Close()

	w.Header().Set("Content-Type", f.MimeType)
	w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	w.Header().Set("Content-Disposition", `inline; filename="`+quoteName(f.OriginalName)+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, obj.Body); err != nil {
		log.Ctx(r.Context()).Warn().Err(err).Str("file_id", id).Msg("file stream interrupted")
	}
}

var nameQuoter = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\r", "", "\n", "")

func quoteName(name string) string {
	return nameQuoter.Replace(name)
}
