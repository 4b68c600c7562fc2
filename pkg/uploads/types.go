package uploads

import (
	"time"

	"github.com/google/uuid"
	"github.com/tendant/catalog-uploads/pkg/uploads/contentpolicy"
)

// Capability is what the external authorization collaborator says about a caller.
type Capability struct {
	IsAdmin   bool
	SubjectID string
}

// UploadRequest is the browser's request for a write grant.
type UploadRequest struct {
	Filename           string
	ClaimedContentType string
	SizeBytes          int64
}

// SignedGrant is a single-purpose credential for one method on one object key.
type SignedGrant struct {
	// ID correlates the grant across log lines; it is not part of the signature.
	ID             uuid.UUID
	Method         string
	ObjectKey      string
	URL            string
	IssuedAt       time.Time
	ExpiresAt      time.Time
	SignatureToken string
}

// AuthorizeResult is returned by Service.Authorize.
type AuthorizeResult struct {
	Grant       SignedGrant
	UploadURL   string
	PublicURL   string
	ObjectKey   string
	ContentType contentpolicy.ContentType
}

// Reason explains a verification outcome.
type Reason string

const (
	ReasonOK                Reason = "ok"
	ReasonBadType           Reason = "badType"
	ReasonBadSize           Reason = "badSize"
	ReasonBadSignatureBytes Reason = "badSignatureBytes"
	ReasonNotFound          Reason = "notFound"
)

// VerificationOutcome is the accept or purge decision for one uploaded object.
type VerificationOutcome struct {
	ObjectKey string
	Accepted  bool
	Reason    Reason
	// Purged is true when the object was deleted; deletion is best-effort and
	// a failed delete leaves Purged false without changing Reason.
	Purged      bool
	ContentType string
	Size        int64
	// DetectedType is the allowed image type the stored bytes actually carry,
	// set on badSignatureBytes when one matches.
	DetectedType string
}

// ObjectMeta is what the store reports about an object.
type ObjectMeta struct {
	Key         string
	Size        int64
	ContentType string
	UpdatedAt   time.Time
	ETag        string
	Metadata    map[string]string
}

// UploadParams describes a server-side write.
type UploadParams struct {
	ObjectKey string
	MimeType  string
	Size      int64
}
