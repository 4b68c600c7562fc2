package sigv4

import "errors"

// Signing errors
var (
	// ErrMissingCredentials is returned when the access key id or secret key is empty
	ErrMissingCredentials = errors.New("sigv4: missing credentials")

	// ErrMissingHost is returned when the request URL has no host to sign
	ErrMissingHost = errors.New("sigv4: missing host")

	// ErrInvalidExpires is returned when a presign expiry is outside [1s, 7d] or
	// not longer than the clock skew, which would expire the grant before it is issued
	ErrInvalidExpires = errors.New("sigv4: expires must be between 1 second and 7 days")
)

// Verification errors
var (
	// ErrMissingAuthentication is returned when a request carries neither an Authorization header nor presign parameters
	ErrMissingAuthentication = errors.New("sigv4: request is not signed")

	// ErrMalformedAuthorization is returned when the Authorization header or presign parameters cannot be parsed
	ErrMalformedAuthorization = errors.New("sigv4: malformed authorization")

	// ErrUnsupportedAlgorithm is returned for any algorithm other than AWS4-HMAC-SHA256
	ErrUnsupportedAlgorithm = errors.New("sigv4: unsupported signing algorithm")

	// ErrInvalidScope is returned when the credential scope names another date, region or service
	ErrInvalidScope = errors.New("sigv4: credential scope does not match")

	// ErrUnknownAccessKey is returned when the access key id is not known to the verifier
	ErrUnknownAccessKey = errors.New("sigv4: unknown access key id")

	// ErrExpired is returned when a presigned request is used after its expiry
	ErrExpired = errors.New("sigv4: request has expired")

	// ErrRequestTimeTooSkewed is returned when the request time is too far from the verifier's clock
	ErrRequestTimeTooSkewed = errors.New("sigv4: request time too skewed")

	// ErrSignatureDoesNotMatch is returned when the recomputed signature differs
	ErrSignatureDoesNotMatch = errors.New("sigv4: signature does not match")
)

// IsAuthError returns true if the error is a verification error
func IsAuthError(err error) bool {
	return errors.Is(err, ErrMissingAuthentication) ||
		errors.Is(err, ErrMalformedAuthorization) ||
		errors.Is(err, ErrUnsupportedAlgorithm) ||
		errors.Is(err, ErrInvalidScope) ||
		errors.Is(err, ErrUnknownAccessKey) ||
		errors.Is(err, ErrExpired) ||
		errors.Is(err, ErrRequestTimeTooSkewed) ||
		errors.Is(err, ErrSignatureDoesNotMatch)
}
