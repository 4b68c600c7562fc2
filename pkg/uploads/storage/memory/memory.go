package memory

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/tendant/catalog-uploads/pkg/uploads"
)

type object struct {
	data        []byte
	contentType string
	etag        string
	updatedAt   time.Time
}

// Backend is an in-memory implementation of the uploads.BlobStore interface
type Backend struct {
	mu      sync.RWMutex
	objects map[string]object
	now     func() time.Time
}

// New creates a new in-memory storage backend
func New() *Backend {
	return &Backend{
		objects: make(map[string]object),
		now:     time.Now,
	}
}

// GetObjectMeta retrieves metadata for an object in memory
func (b *Backend) GetObjectMeta(ctx context.Context, objectKey string) (*uploads.ObjectMeta, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, exists := b.objects[objectKey]
	if !exists {
		return nil, fmt.Errorf("%w: %s", uploads.ErrObjectNotFound, objectKey)
	}

	return &uploads.ObjectMeta{
		Key:         objectKey,
		Size:        int64(len(obj.data)),
		ContentType: obj.contentType,
		UpdatedAt:   obj.updatedAt,
		ETag:        obj.etag,
		Metadata:    map[string]string{"mime_type": obj.contentType},
	}, nil
}

// Upload uploads content directly with the default MIME type
func (b *Backend) Upload(ctx context.Context, objectKey string, reader io.Reader) error {
	return b.UploadWithParams(ctx, reader, uploads.UploadParams{ObjectKey: objectKey})
}

// UploadWithParams uploads content with parameters
func (b *Backend) UploadWithParams(ctx context.Context, reader io.Reader, params uploads.UploadParams) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}

	mimeType := params.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	sum := md5.Sum(data)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.objects[params.ObjectKey] = object{
		data:        data,
		contentType: mimeType,
		etag:        hex.EncodeToString(sum[:]),
		updatedAt:   b.now().UTC(),
	}
	return nil
}

// Download downloads content directly
func (b *Backend) Download(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	return b.DownloadRange(ctx, objectKey, 0, -1)
}

// DownloadRange returns up to length bytes starting at offset. A negative length reads to the end.
func (b *Backend) DownloadRange(ctx context.Context, objectKey string, offset, length int64) (io.ReadCloser, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, exists := b.objects[objectKey]
	if !exists {
		return nil, fmt.Errorf("%w: %s", uploads.ErrObjectNotFound, objectKey)
	}

	size := int64(len(obj.data))
	start := min(max(offset, 0), size)
	end := size
	if length >= 0 {
		end = min(start+length, size)
	}

	// Copy so callers never alias the stored slice
	chunk := bytes.Clone(obj.data[start:end])
	return io.NopCloser(bytes.NewReader(chunk)), nil
}

// Delete deletes content. Deleting a missing object is not an error.
func (b *Backend) Delete(ctx context.Context, objectKey string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.objects, objectKey)
	return nil
}

// Len returns the number of stored objects
func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.objects)
}
