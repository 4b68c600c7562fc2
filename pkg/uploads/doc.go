// Package uploads lets an administrator's browser put catalog images straight
// into an S3-compatible object store without the application proxying the bytes,
// while still making sure only size-bounded images of an allowed type are kept.
//
// It exposes a single Service interface with two main calls. Authorize checks the
// caller's capability, resolves the content type, builds an object key and returns
// a short-lived presigned PUT URL. Verify runs after the browser's upload: it reads
// the stored object's metadata and first bytes back from the store, re-checks type
// and size, compares magic numbers and deletes the object on any mismatch.
//
// Signing lives in the sigv4 subpackage, content rules in contentpolicy, and the
// object store backends (AWS SDK, raw signed HTTP, memory) under storage.
package uploads
