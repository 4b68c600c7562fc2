// Package devstore serves a small S3-compatible object endpoint for local
// development and end-to-end tests.
//
// Requests are path-style (/{bucket}/{key}) and must carry SigV4 authentication,
// either query-presigned or in the Authorization header. Presigned PUTs must sign
// Content-Type, which is how the stored content type is bound to the grant.
package devstore

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/tendant/catalog-uploads/pkg/uploads"
	"github.com/tendant/catalog-uploads/pkg/uploads/sigv4"
)

// DefaultMaxObjectBytes caps a single PUT body.
const DefaultMaxObjectBytes int64 = 64 * 1024 * 1024

// Handlers provides the object endpoints
type Handlers struct {
	store    uploads.BlobStore
	bucket   string
	verifier *sigv4.Verifier
	maxBytes int64
	logger   *slog.Logger
}

// Option configures Handlers
type Option func(*Handlers)

// WithMaxObjectBytes caps PUT bodies
func WithMaxObjectBytes(n int64) Option {
	return func(h *Handlers) {
		if n > 0 {
			h.maxBytes = n
		}
	}
}

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handlers) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHandlers creates object handlers for one bucket backed by store
func NewHandlers(store uploads.BlobStore, bucket string, verifier *sigv4.Verifier, opts ...Option) *Handlers {
	h := &Handlers{
		store:    store,
		bucket:   strings.Trim(bucket, "/"),
		verifier: verifier,
		maxBytes: DefaultMaxObjectBytes,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns a router serving /{bucket}/*
func (h *Handlers) Routes() http.Handler {
	r := chi.NewRouter()
	h.Mount(r)
	return r
}

// Mount mounts the object handlers on a chi router
func (h *Handlers) Mount(r chi.Router) {
	r.Put("/{bucket}/*", h.HandlePut)
	r.Get("/{bucket}/*", h.HandleGet)
	r.Head("/{bucket}/*", h.HandleHead)
	r.Delete("/{bucket}/*", h.HandleDelete)
}

// HandlePut stores the body under the key with the signed Content-Type
func (h *Handlers) HandlePut(w http.ResponseWriter, r *http.Request) {
	key, grant, ok := h.authorize(w, r)
	if !ok {
		return
	}

	contentType := r.Header.Get("Content-Type")
	if grant.Presigned && !grant.Signs("content-type") {
		writeError(w, r, http.StatusForbidden, "AccessDenied", "content-type must be signed")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "EntityTooLarge", "object exceeds maximum size")
			return
		}
		writeError(w, r, http.StatusBadRequest, "IncompleteBody", "could not read body")
		return
	}

	if hash := grant.PayloadHash; hash != sigv4.UnsignedPayload {
		sum := sha256.Sum256(body)
		if !strings.EqualFold(hash, hex.EncodeToString(sum[:])) {
			writeError(w, r, http.StatusBadRequest, "XAmzContentSHA256Mismatch", "payload hash does not match")
			return
		}
	}

	err = h.store.UploadWithParams(r.Context(), bytes.NewReader(body), uploads.UploadParams{
		ObjectKey: key,
		MimeType:  contentType,
		Size:      int64(len(body)),
	})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "devstore put failed", "op", "devstore.put", "object_key", key, "error", err)
		writeError(w, r, http.StatusInternalServerError, "InternalError", "could not store object")
		return
	}

	meta, err := h.store.GetObjectMeta(r.Context(), key)
	if err == nil && meta.ETag != "" {
		w.Header().Set("ETag", `"`+meta.ETag+`"`)
	}
	h.logger.DebugContext(r.Context(), "devstore put", "op", "devstore.put", "object_key", key, "size", len(body), "content_type", contentType)
	w.WriteHeader(http.StatusOK)
}

// HandleHead reports object metadata
func (h *Handlers) HandleHead(w http.ResponseWriter, r *http.Request) {
	key, _, ok := h.authorize(w, r)
	if !ok {
		return
	}

	meta, err := h.store.GetObjectMeta(r.Context(), key)
	if err != nil {
		h.storeError(w, r, key, err)
		return
	}
	writeMetaHeaders(w, meta)
	w.Header().Set("Content-Length", strconv.FormatInt(meta.Size, 10))
	w.WriteHeader(http.StatusOK)
}

// HandleGet serves the object, honouring a single bytes= Range
func (h *Handlers) HandleGet(w http.ResponseWriter, r *http.Request) {
	key, _, ok := h.authorize(w, r)
	if !ok {
		return
	}

	meta, err := h.store.GetObjectMeta(r.Context(), key)
	if err != nil {
		h.storeError(w, r, key, err)
		return
	}

	status := http.StatusOK
	start, length := int64(0), meta.Size
	if raw := r.Header.Get("Range"); raw != "" {
		s, e, err := parseRange(raw, meta.Size)
		if err != nil {
			w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", meta.Size))
			writeError(w, r, http.StatusRequestedRangeNotSatisfiable, "InvalidRange", "the requested range is not satisfiable")
			return
		}
		start, length = s, e-s+1
		status = http.StatusPartialContent
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", s, e, meta.Size))
	}

	rc, err := h.store.DownloadRange(r.Context(), key, start, length)
	if err != nil {
		h.storeError(w, r, key, err)
		return
	}
	defer rc.Close()

	writeMetaHeaders(w, meta)
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
	w.WriteHeader(status)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.WarnContext(r.Context(), "devstore copy error", "op", "devstore.get", "object_key", key, "error", err)
	}
}

// HandleDelete removes the object; a missing object still returns 204
func (h *Handlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	key, _, ok := h.authorize(w, r)
	if !ok {
		return
	}
	if err := h.store.Delete(r.Context(), key); err != nil {
		h.storeError(w, r, key, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) authorize(w http.ResponseWriter, r *http.Request) (string, *sigv4.Grant, bool) {
	if chi.URLParam(r, "bucket") != h.bucket {
		writeError(w, r, http.StatusNotFound, "NoSuchBucket", "the specified bucket does not exist")
		return "", nil, false
	}
	key := chi.URLParam(r, "*")
	if key == "" {
		writeError(w, r, http.StatusBadRequest, "InvalidRequest", "object key is required")
		return "", nil, false
	}

	grant, err := h.verifier.Verify(r)
	if err != nil {
		status, code := authStatus(err)
		h.logger.InfoContext(r.Context(), "devstore signature rejected",
			"op", "devstore.authorize", "method", r.Method, "object_key", key, "error", err)
		writeError(w, r, status, code, err.Error())
		return "", nil, false
	}
	return key, grant, true
}

func (h *Handlers) storeError(w http.ResponseWriter, r *http.Request, key string, err error) {
	if errors.Is(err, uploads.ErrObjectNotFound) {
		writeError(w, r, http.StatusNotFound, "NoSuchKey", "the specified key does not exist")
		return
	}
	h.logger.ErrorContext(r.Context(), "devstore store error", "op", "devstore.store", "object_key", key, "error", err)
	writeError(w, r, http.StatusInternalServerError, "InternalError", "store failure")
}

func authStatus(err error) (int, string) {
	switch {
	case errors.Is(err, sigv4.ErrMissingAuthentication):
		return http.StatusForbidden, "AccessDenied"
	case errors.Is(err, sigv4.ErrUnknownAccessKey):
		return http.StatusForbidden, "InvalidAccessKeyId"
	case errors.Is(err, sigv4.ErrExpired):
		return http.StatusForbidden, "AccessDenied"
	case errors.Is(err, sigv4.ErrRequestTimeTooSkewed):
		return http.StatusForbidden, "RequestTimeTooSkewed"
	case errors.Is(err, sigv4.ErrSignatureDoesNotMatch):
		return http.StatusForbidden, "SignatureDoesNotMatch"
	default:
		return http.StatusBadRequest, "AuthorizationQueryParametersError"
	}
}

func writeMetaHeaders(w http.ResponseWriter, meta *uploads.ObjectMeta) {
	w.Header().Set("Content-Type", meta.ContentType)
	if meta.ETag != "" {
		w.Header().Set("ETag", `"`+meta.ETag+`"`)
	}
	if !meta.UpdatedAt.IsZero() {
		w.Header().Set("Last-Modified", meta.UpdatedAt.UTC().Format(http.TimeFormat))
	}
}

// parseRange accepts "bytes=a-b", "bytes=a-" and "bytes=-n" and returns inclusive bounds.
func parseRange(raw string, size int64) (int64, int64, error) {
	byteRange, ok := strings.CutPrefix(raw, "bytes=")
	if !ok || strings.Contains(byteRange, ",") {
		return 0, 0, fmt.Errorf("unsupported range %q", raw)
	}
	first, last, ok := strings.Cut(byteRange, "-")
	if !ok {
		return 0, 0, fmt.Errorf("malformed range %q", raw)
	}

	var start, end int64
	switch {
	case first == "":
		n, err := strconv.ParseInt(last, 10, 64)
		if err != nil || n <= 0 {
			return 0, 0, fmt.Errorf("malformed range %q", raw)
		}
		start, end = max(size-n, 0), size-1
	default:
		s, err := strconv.ParseInt(first, 10, 64)
		if err != nil || s < 0 {
			return 0, 0, fmt.Errorf("malformed range %q", raw)
		}
		start, end = s, size-1
		if last != "" {
			e, err := strconv.ParseInt(last, 10, 64)
			if err != nil || e < s {
				return 0, 0, fmt.Errorf("malformed range %q", raw)
			}
			end = min(e, size-1)
		}
	}
	if start >= size {
		return 0, 0, fmt.Errorf("range %q beyond size %d", raw, size)
	}
	return start, end, nil
}

type errorBody struct {
	XMLName  xml.Name `xml:"Error"`
	Code     string   `xml:"Code"`
	Message  string   `xml:"Message"`
	Resource string   `xml:"Resource"`
}

// writeError writes an S3-style XML error response
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = io.WriteString(w, xml.Header)
	_ = xml.NewEncoder(w).Encode(errorBody{Code: code, Message: message, Resource: r.URL.Path})
}
