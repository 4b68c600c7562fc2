// Package client drives the browser upload flow from Go: ask the API for a
// write grant, PUT the bytes straight to the object store, then ask the API to
// verify what landed.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tendant/catalog-uploads/pkg/uploads/api"
)

// APIError is a non-2xx response from the upload API
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Reason     string
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("upload api: %d %s: %s (%s)", e.StatusCode, e.Code, e.Message, e.Reason)
	}
	return fmt.Sprintf("upload api: %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// ErrUploadRejected is returned by Upload when the object store refuses the PUT
var ErrUploadRejected = errors.New("object store rejected upload")

// Client talks to the upload API and to the presigned URLs it hands out
type Client struct {
	baseURL       string
	token         string
	httpClient    *http.Client
	retryAttempts int
	retryDelay    time.Duration
	progressFunc  ProgressFunc
}

// ProgressFunc is called during upload with the number of bytes sent so far
type ProgressFunc func(bytesUploaded int64)

// Option is a functional option for configuring a Client
type Option func(*Client)

// New creates a client for the API served at baseURL, e.g. http://localhost:8080
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
		retryAttempts: 3,
		retryDelay:    time.Second,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithToken sets the bearer token sent to the API. It is never sent to the object store.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithRetry configures retry behavior for the object store PUT
func WithRetry(attempts int, delay time.Duration) Option {
	return func(c *Client) {
		if attempts > 0 {
			c.retryAttempts = attempts
		}
		c.retryDelay = delay
	}
}

// WithProgress sets a progress callback function
func WithProgress(fn ProgressFunc) Option {
	return func(c *Client) {
		c.progressFunc = fn
	}
}

// Authorize requests a write grant
func (c *Client) Authorize(ctx context.Context, filename, contentType string, size int64) (*api.AuthorizeResponse, error) {
	var out api.AuthorizeResponse
	err := c.call(ctx, "/api/admin/blob", api.AuthorizeRequest{
		Filename:    filename,
		ContentType: contentType,
		Size:        size,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Verify asks the API to check an uploaded object. A rejected object has
// already been purged when this returns an *APIError.
func (c *Client) Verify(ctx context.Context, blobName string) error {
	var out api.OKResponse
	if err := c.call(ctx, "/api/admin/blob/verify", api.BlobRequest{BlobName: blobName}, &out); err != nil {
		return err
	}
	if !out.OK {
		return fmt.Errorf("upload api: verify returned ok=false for %s", blobName)
	}
	return nil
}

// ReadGrant requests a presigned GET for an accepted object
func (c *Client) ReadGrant(ctx context.Context, blobName string) (*api.ReadGrantResponse, error) {
	var out api.ReadGrantResponse
	if err := c.call(ctx, "/api/admin/blob/read-grant", api.BlobRequest{BlobName: blobName}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Upload PUTs data to a presigned URL with the exact content type the grant was
// signed for. 5xx responses and transport errors are retried; 4xx are not.
func (c *Client) Upload(ctx context.Context, uploadURL, contentType string, data io.ReadSeeker, size int64) error {
	var lastErr error
	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelay * time.Duration(attempt)):
			}
		}

		if _, err := data.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("failed to rewind upload body: %w", err)
		}

		var body io.Reader = data
		if c.progressFunc != nil {
			body = &progressReader{reader: data, callback: c.progressFunc}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, body)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.ContentLength = size
		req.Header.Set("Content-Type", contentType)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = fmt.Errorf("upload failed: %w", err)
			continue
		}

		io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}

		lastErr = fmt.Errorf("%w: %s", ErrUploadRejected, resp.Status)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return lastErr
		}
	}

	return fmt.Errorf("upload failed after %d attempts: %w", c.retryAttempts, lastErr)
}

// UploadImage runs the whole flow: authorize, PUT, verify. The returned grant
// carries the public URL to store in the product record.
func (c *Client) UploadImage(ctx context.Context, filename, contentType string, data io.ReadSeeker, size int64) (*api.AuthorizeResponse, error) {
	grant, err := c.Authorize(ctx, filename, contentType, size)
	if err != nil {
		return nil, err
	}

	if err := c.Upload(ctx, grant.UploadURL, grant.ContentType, data, size); err != nil {
		return nil, err
	}

	if err := c.Verify(ctx, grant.BlobName); err != nil {
		return nil, err
	}

	return grant, nil
}

func (c *Client) call(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Code: "unknown", Message: resp.Status}
		var body api.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
			apiErr.Code = body.Code
			apiErr.Message = body.Error
			apiErr.Reason = body.Reason
		}
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// progressReader wraps an io.Reader to track upload progress
type progressReader struct {
	reader    io.Reader
	bytesRead int64
	callback  ProgressFunc
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	pr.bytesRead += int64(n)
	if pr.callback != nil && n > 0 {
		pr.callback(pr.bytesRead)
	}
	return n, err
}
