package sigv4

import "time"

// Option is a functional option for configuring a Signer
type Option func(*Signer)

// WithCredentials sets the access key pair used for signing
func WithCredentials(creds Credentials) Option {
	return func(s *Signer) {
		s.creds = creds
	}
}

// WithRegion sets the credential scope region
// Default is "auto", which is what R2 expects
func WithRegion(region string) Option {
	return func(s *Signer) {
		if region != "" {
			s.region = region
		}
	}
}

// WithService sets the credential scope service
// Default is "s3"
func WithService(service string) Option {
	return func(s *Signer) {
		if service != "" {
			s.service = service
		}
	}
}

// WithClockSkew sets how far the issue time is backdated
// Default is 2 minutes
func WithClockSkew(skew time.Duration) Option {
	return func(s *Signer) {
		if skew >= 0 {
			s.skew = skew
		}
	}
}

// WithClock replaces time.Now, mostly for tests
func WithClock(now func() time.Time) Option {
	return func(s *Signer) {
		if now != nil {
			s.now = now
		}
	}
}

// VerifierOption is a functional option for configuring a Verifier
type VerifierOption func(*Verifier)

// WithVerifierScope sets the region and service a Verifier expects in credential scopes
func WithVerifierScope(region, service string) VerifierOption {
	return func(v *Verifier) {
		if region != "" {
			v.region = region
		}
		if service != "" {
			v.service = service
		}
	}
}

// WithSkewAllowance sets how far a request time may lie ahead of the verifier's clock
// Default is 15 minutes, as in S3
func WithSkewAllowance(d time.Duration) VerifierOption {
	return func(v *Verifier) {
		if d >= 0 {
			v.allowance = d
		}
	}
}

// WithVerifierClock replaces time.Now, mostly for tests
func WithVerifierClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) {
		if now != nil {
			v.now = now
		}
	}
}
