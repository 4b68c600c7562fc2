package uploads

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/tendant/catalog-uploads/pkg/uploads/sigv4"
)

// Service is the upload authorization and verification API.
type Service interface {
	// Authorize issues a presigned PUT for a new object key.
	Authorize(ctx context.Context, caller Capability, req UploadRequest) (*AuthorizeResult, error)

	// Verify checks an uploaded object and purges it when it is not an acceptable image.
	Verify(ctx context.Context, caller Capability, objectKey string) (*VerificationOutcome, error)

	// ReadGrant issues a presigned GET for an object under the upload prefix.
	ReadGrant(ctx context.Context, caller Capability, objectKey string) (*SignedGrant, error)
}

// BlobStore defines the object store calls the service needs
type BlobStore interface {
	// GetObjectMeta returns metadata, or an error wrapping ErrObjectNotFound
	GetObjectMeta(ctx context.Context, objectKey string) (*ObjectMeta, error)

	// DownloadRange returns up to length bytes starting at offset
	DownloadRange(ctx context.Context, objectKey string, offset, length int64) (io.ReadCloser, error)

	// Delete removes an object; deleting a missing object succeeds
	Delete(ctx context.Context, objectKey string) error

	// UploadWithParams writes an object with its content type
	UploadWithParams(ctx context.Context, reader io.Reader, params UploadParams) error
}

// URLSigner produces query-presigned URLs. *sigv4.Signer implements it.
type URLSigner interface {
	Presign(method string, u *url.URL, headers http.Header, expires time.Duration) (*sigv4.Presigned, error)
}

// URLStrategy computes the URL stored in the product record for an accepted object.
type URLStrategy interface {
	PublicURL(ctx context.Context, objectKey string) (string, error)
}

// Recorder receives counters for issued grants and verification outcomes.
type Recorder interface {
	GrantIssued(method string)
	VerificationFinished(reason Reason)
}

// StoreObserver receives the duration and result of each object store request.
type StoreObserver interface {
	ObserveStoreRequest(op string, d time.Duration, err error)
}

type noopRecorder struct{}

func (noopRecorder) GrantIssued(string)          {}
func (noopRecorder) VerificationFinished(Reason) {}
