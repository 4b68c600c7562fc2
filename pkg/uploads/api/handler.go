package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/tendant/catalog-uploads/pkg/uploads"
	"github.com/tendant/catalog-uploads/pkg/uploads/auth"
)

// maxBodyBytes bounds the JSON request bodies; uploads never pass through here.
const maxBodyBytes = 64 << 10

// AuthorizeRequest is the request body for a write grant
type AuthorizeRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

// AuthorizeResponse is the response body for a write grant
type AuthorizeResponse struct {
	UploadURL   string    `json:"uploadUrl"`
	PublicURL   string    `json:"publicUrl"`
	BlobName    string    `json:"blobName"`
	ContentType string    `json:"contentType"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// BlobRequest names an uploaded object
type BlobRequest struct {
	BlobName string `json:"blobName"`
}

// OKResponse is returned by verify and health
type OKResponse struct {
	OK bool `json:"ok"`
}

// ReadGrantResponse is the response body for a read grant
type ReadGrantResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Handler serves the upload endpoints
type Handler struct {
	service    uploads.Service
	authorizer auth.Authorizer
	logger     *slog.Logger
}

// NewHandler creates a handler. A nil logger uses slog.Default.
func NewHandler(service uploads.Service, authorizer auth.Authorizer, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service:    service,
		authorizer: authorizer,
		logger:     logger,
	}
}

// Routes returns the /api routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/health", h.Health)

	r.Route("/admin/blob", func(r chi.Router) {
		r.Use(h.Authenticate)
		r.Post("/", h.Authorize)
		r.Post("/verify", h.Verify)
		r.Post("/read-grant", h.ReadGrant)
	})

	return r
}

// Health reports liveness
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, OKResponse{OK: true})
}

// Authorize issues a presigned PUT for a new product image
func (h *Handler) Authorize(w http.ResponseWriter, r *http.Request) {
	log := h.log(r, "api.authorize")

	var req AuthorizeRequest
	if err := decode(w, r, &req); err != nil {
		log.Debug("bad request body", "error", err)
		WriteError(w, r, err)
		return
	}

	result, err := h.service.Authorize(r.Context(), auth.FromContext(r.Context()), uploads.UploadRequest{
		Filename:           req.Filename,
		ClaimedContentType: req.ContentType,
		SizeBytes:          req.Size,
	})
	if err != nil {
		h.logFailure(log, "authorize failed", err)
		WriteError(w, r, err)
		return
	}

	render.JSON(w, r, AuthorizeResponse{
		UploadURL:   result.UploadURL,
		PublicURL:   result.PublicURL,
		BlobName:    result.ObjectKey,
		ContentType: string(result.ContentType),
		ExpiresAt:   result.Grant.ExpiresAt,
	})
}

// Verify checks an uploaded object; rejected objects are purged
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	log := h.log(r, "api.verify")

	var req BlobRequest
	if err := decode(w, r, &req); err != nil {
		log.Debug("bad request body", "error", err)
		WriteError(w, r, err)
		return
	}

	outcome, err := h.service.Verify(r.Context(), auth.FromContext(r.Context()), req.BlobName)
	if err != nil {
		if outcome != nil {
			log = log.With("object_key", outcome.ObjectKey, "purged", outcome.Purged)
		}
		h.logFailure(log, "verify failed", err)
		WriteError(w, r, err)
		return
	}

	render.JSON(w, r, OKResponse{OK: outcome.Accepted})
}

// ReadGrant issues a presigned GET for an accepted object
func (h *Handler) ReadGrant(w http.ResponseWriter, r *http.Request) {
	log := h.log(r, "api.read_grant")

	var req BlobRequest
	if err := decode(w, r, &req); err != nil {
		log.Debug("bad request body", "error", err)
		WriteError(w, r, err)
		return
	}

	grant, err := h.service.ReadGrant(r.Context(), auth.FromContext(r.Context()), req.BlobName)
	if err != nil {
		h.logFailure(log, "read grant failed", err)
		WriteError(w, r, err)
		return
	}

	render.JSON(w, r, ReadGrantResponse{URL: grant.URL, ExpiresAt: grant.ExpiresAt})
}

func (h *Handler) log(r *http.Request, op string) *slog.Logger {
	return h.logger.With("op", op, "request_id", middleware.GetReqID(r.Context()))
}

// logFailure logs caller mistakes at info and everything else at error.
func (h *Handler) logFailure(log *slog.Logger, msg string, err error) {
	status, code, _ := MapError(err)
	if status >= http.StatusInternalServerError {
		log.Error(msg, "code", code, "error", err)
		return
	}
	log.Info(msg, "code", code, "status", status, "error", err)
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	if err := render.DecodeJSON(http.MaxBytesReader(w, r.Body, maxBodyBytes), v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", ErrMalformedBody)
		}
		return fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	return nil
}
