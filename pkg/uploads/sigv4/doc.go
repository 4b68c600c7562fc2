// Package sigv4 implements AWS Signature Version 4 request signing for
// S3-compatible object stores (Cloudflare R2, MinIO, AWS S3).
//
// Two modes are supported:
//
//   - Header auth: the server signs a request it sends itself. SignRequest sets the
//     X-Amz-Date, X-Amz-Content-Sha256 and Authorization headers.
//   - Query presign: the server hands a URL to a browser. Presign returns a URL whose
//     query string carries the algorithm, credential scope, issue time, expiry,
//     signed header list and signature. The secret key never leaves the process.
//
// # Basic Usage
//
//	signer := sigv4.New(
//	    sigv4.WithCredentials(sigv4.Credentials{AccessKeyID: ak, SecretKey: sk}),
//	    sigv4.WithRegion("auto"),
//	)
//	u, _ := url.Parse("https://acct.r2.cloudflarestorage.com/imagenes/products/1700000000000-mesa.png")
//	grant, err := signer.Presign(http.MethodPut, u, http.Header{"Content-Type": {"image/png"}}, 10*time.Minute)
//
// The issue time is backdated by the configured clock skew (2 minutes by default) and
// the expiry is counted from the issue time, so a grant's window is fixed when it is made.
//
// # Verification
//
// Verifier recomputes signatures for incoming requests. It is used by the local
// development store and by tests:
//
//	v := sigv4.NewVerifier(sigv4.StaticCredentials{ak: sk})
//	grant, err := v.Verify(r)
//
// The signing key is derived from the secret on every call.
package sigv4
