package uploads

import (
	"errors"
	"fmt"
)

// Error types
var (
	// ErrObjectNotFound indicates the object store has no object under the key
	ErrObjectNotFound = errors.New("object not found")

	// ErrNotConfigured indicates missing endpoint, bucket or credentials
	ErrNotConfigured = errors.New("object store not configured")

	// ErrUploadTooLarge indicates a declared or stored size above the ceiling
	ErrUploadTooLarge = errors.New("upload exceeds size limit")

	// ErrInvalidSize indicates a non-positive size
	ErrInvalidSize = errors.New("upload size must be positive")

	// ErrFilenameRequired indicates an empty filename
	ErrFilenameRequired = errors.New("filename required")

	// ErrObjectKeyRequired indicates an empty object key
	ErrObjectKeyRequired = errors.New("blob required")

	// ErrNotAdmin indicates the caller lacks administrator scope
	ErrNotAdmin = errors.New("administrator scope required")
)

// Kind classifies an Error for callers that map failures to transport statuses.
type Kind int

const (
	// KindInfrastructure covers store failures and timeouts
	KindInfrastructure Kind = iota
	KindConfiguration
	KindValidation
	KindUnauthenticated
	KindForbidden
	KindNotFound
	// KindIntegrity is a magic-byte mismatch; the object has been purged
	KindIntegrity
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindValidation:
		return "validation"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindIntegrity:
		return "integrity"
	default:
		return "infrastructure"
	}
}

// Error is the typed failure returned by Service methods.
type Error struct {
	Kind Kind
	// Reason is set for verification rejections
	Reason Reason
	Op     string
	// Message is short, human readable and safe to show to the caller
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of the first *Error in err's chain, or KindInfrastructure.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInfrastructure
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// ReasonOf returns the verification reason carried by err, if any.
func ReasonOf(err error) Reason {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}

// MessageOf returns the caller-safe message carried by err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return "internal error"
}

func newError(kind Kind, op, msg string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: msg, Err: err}
}
