// Package signedhttp is a BlobStore that talks to an S3-compatible endpoint over
// plain net/http, signing every request with sigv4 header authentication.
// It keeps the request surface to the four calls verification needs.
package signedhttp

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tendant/catalog-uploads/pkg/uploads"
	"github.com/tendant/catalog-uploads/pkg/uploads/sigv4"
)

// Config options for the signed HTTP backend
type Config struct {
	Endpoint string // e.g., "https://<account>.r2.cloudflarestorage.com"
	Bucket   string
	Signer   *sigv4.Signer

	// HTTPClient defaults to a client with a 30 second timeout
	HTTPClient *http.Client
	Observer   uploads.StoreObserver
}

// Backend implements uploads.BlobStore with path-style addressing: <endpoint>/<bucket>/<key>.
type Backend struct {
	endpoint *url.URL
	bucket   string
	signer   *sigv4.Signer
	client   *http.Client
	observer uploads.StoreObserver
}

// New creates a new signed HTTP backend. A missing endpoint or signer is not an
// error here; every call then fails with uploads.ErrNotConfigured.
func New(config Config) (*Backend, error) {
	b := &Backend{
		bucket:   strings.Trim(config.Bucket, "/"),
		signer:   config.Signer,
		client:   config.HTTPClient,
		observer: config.Observer,
	}
	if b.client == nil {
		b.client = &http.Client{Timeout: 30 * time.Second}
	}
	if config.Endpoint != "" {
		u, err := url.Parse(strings.TrimSuffix(config.Endpoint, "/"))
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("invalid endpoint %q", config.Endpoint)
		}
		b.endpoint = u
	}
	return b, nil
}

// GetObjectMeta issues a signed HEAD
func (b *Backend) GetObjectMeta(ctx context.Context, objectKey string) (meta *uploads.ObjectMeta, err error) {
	defer b.observe("head", time.Now(), &err)

	resp, err := b.do(ctx, http.MethodHead, objectKey, nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, objectKey, http.StatusOK); err != nil {
		return nil, err
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	size := resp.ContentLength
	if size < 0 {
		size, _ = strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64)
	}
	updated, _ := http.ParseTime(resp.Header.Get("Last-Modified"))

	metadata := map[string]string{"content_type": contentType}
	for name, values := range resp.Header {
		if k, ok := strings.CutPrefix(strings.ToLower(name), "x-amz-meta-"); ok && len(values) > 0 {
			metadata[k] = values[0]
		}
	}

	return &uploads.ObjectMeta{
		Key:         objectKey,
		Size:        size,
		ContentType: contentType,
		UpdatedAt:   updated,
		ETag:        strings.Trim(resp.Header.Get("ETag"), "\""),
		Metadata:    metadata,
	}, nil
}

// DownloadRange issues a signed GET with a Range header
func (b *Backend) DownloadRange(ctx context.Context, objectKey string, offset, length int64) (rc io.ReadCloser, err error) {
	if length <= 0 {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	defer b.observe("get_range", time.Now(), &err)

	header := http.Header{"Range": {fmt.Sprintf("bytes=%d-%d", offset, offset+length-1)}}
	resp, err := b.do(ctx, http.MethodGet, objectKey, header, nil)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusRequestedRangeNotSatisfiable {
		resp.Body.Close()
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	if err := checkStatus(resp, objectKey, http.StatusOK, http.StatusPartialContent); err != nil {
		resp.Body.Close()
		return nil, err
	}

	// Servers that ignore Range send the whole object
	return struct {
		io.Reader
		io.Closer
	}{io.LimitReader(resp.Body, length), resp.Body}, nil
}

// Delete issues a signed DELETE; a missing object counts as deleted
func (b *Backend) Delete(ctx context.Context, objectKey string) (err error) {
	defer b.observe("delete", time.Now(), &err)

	resp, err := b.do(ctx, http.MethodDelete, objectKey, nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	err = checkStatus(resp, objectKey, http.StatusOK, http.StatusNoContent, http.StatusAccepted)
	if errors.Is(err, uploads.ErrObjectNotFound) {
		return nil
	}
	return err
}

// UploadWithParams issues a signed PUT. The body is buffered so its hash can be signed.
func (b *Backend) UploadWithParams(ctx context.Context, reader io.Reader, params uploads.UploadParams) (err error) {
	defer b.observe("put", time.Now(), &err)

	data, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("failed to read upload body: %w", err)
	}
	header := http.Header{}
	if params.MimeType != "" {
		header.Set("Content-Type", params.MimeType)
	}

	resp, err := b.do(ctx, http.MethodPut, params.ObjectKey, header, data)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return checkStatus(resp, params.ObjectKey, http.StatusOK, http.StatusCreated, http.StatusNoContent)
}

func (b *Backend) do(ctx context.Context, method, objectKey string, header http.Header, body []byte) (*http.Response, error) {
	if b.endpoint == nil || b.bucket == "" || b.signer == nil {
		return nil, uploads.ErrNotConfigured
	}

	u := *b.endpoint
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + b.bucket + "/" + strings.TrimPrefix(objectKey, "/")

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for name, values := range header {
		req.Header[name] = values
	}

	payloadHash := sigv4.EmptyPayloadHash
	if body != nil {
		sum := sha256.Sum256(body)
		payloadHash = hex.EncodeToString(sum[:])
	}
	if err := b.signer.SignRequest(req, payloadHash); err != nil {
		if errors.Is(err, sigv4.ErrMissingCredentials) {
			return nil, fmt.Errorf("%w: %v", uploads.ErrNotConfigured, err)
		}
		return nil, err
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, objectKey, err)
	}
	return resp, nil
}

func (b *Backend) observe(op string, start time.Time, err *error) {
	if b.observer != nil {
		b.observer.ObserveStoreRequest(op, time.Since(start), *err)
	}
}

// checkStatus maps unexpected statuses onto the uploads sentinels.
func checkStatus(resp *http.Response, objectKey string, ok ...int) error {
	for _, code := range ok {
		if resp.StatusCode == code {
			return nil
		}
	}

	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", uploads.ErrObjectNotFound, objectKey)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: store rejected credentials (status %d): %s",
			uploads.ErrNotConfigured, resp.StatusCode, strings.TrimSpace(string(detail)))
	default:
		return fmt.Errorf("unexpected status %d for %s: %s", resp.StatusCode, objectKey, strings.TrimSpace(string(detail)))
	}
}
