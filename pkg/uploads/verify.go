package uploads

import (
	"context"
	"errors"
	"io"

	"github.com/tendant/catalog-uploads/pkg/uploads/contentpolicy"
	"github.com/tendant/catalog-uploads/pkg/uploads/sigv4"
)

func (s *service) Verify(ctx context.Context, caller Capability, objectKey string) (*VerificationOutcome, error) {
	const op = "uploads.verify"

	if !caller.IsAdmin {
		return nil, newError(KindForbidden, op, "forbidden", ErrNotAdmin)
	}
	// Keys outside the prefix are rejected before the store is contacted.
	key, err := s.checkKey(op, objectKey)
	if err != nil {
		return nil, err
	}

	outcome := &VerificationOutcome{ObjectKey: key}

	meta, err := s.getMeta(ctx, key)
	if errors.Is(err, ErrObjectNotFound) {
		return s.notFound(ctx, op, outcome, err)
	}
	if err != nil {
		return nil, s.storeError(op, err)
	}
	outcome.ContentType = meta.ContentType
	outcome.Size = meta.Size

	if !contentpolicy.IsAllowed(meta.ContentType) {
		return s.reject(ctx, op, outcome, ReasonBadType, KindValidation, "invalid file")
	}
	if meta.Size <= 0 || meta.Size > s.maxBytes {
		return s.reject(ctx, op, outcome, ReasonBadSize, KindValidation, "invalid file")
	}

	head, err := s.readHead(ctx, key)
	if errors.Is(err, ErrObjectNotFound) {
		return s.notFound(ctx, op, outcome, err)
	}
	if err != nil {
		return nil, s.storeError(op, err)
	}
	if !contentpolicy.MatchesSignature(meta.ContentType, head) {
		if detected, ok := contentpolicy.Sniff(head); ok {
			outcome.DetectedType = string(detected)
		}
		return s.reject(ctx, op, outcome, ReasonBadSignatureBytes, KindIntegrity, "invalid file content")
	}

	outcome.Accepted = true
	outcome.Reason = ReasonOK
	s.recorder.VerificationFinished(ReasonOK)
	s.logger.InfoContext(ctx, "upload verified",
		"op", op,
		"subject_id", caller.SubjectID,
		"object_key", key,
		"content_type", meta.ContentType,
		"size", meta.Size,
	)
	return outcome, nil
}

func (s *service) getMeta(ctx context.Context, key string) (*ObjectMeta, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	return s.store.GetObjectMeta(ctx, key)
}

func (s *service) readHead(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	rc, err := s.store.DownloadRange(ctx, key, 0, contentpolicy.SniffLength)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return io.ReadAll(io.LimitReader(rc, contentpolicy.SniffLength))
}

func (s *service) notFound(ctx context.Context, op string, outcome *VerificationOutcome, err error) (*VerificationOutcome, error) {
	outcome.Reason = ReasonNotFound
	s.recorder.VerificationFinished(ReasonNotFound)
	s.logger.InfoContext(ctx, "upload not found", "op", op, "object_key", outcome.ObjectKey)

	e := newError(KindNotFound, op, "blob not found", err)
	e.Reason = ReasonNotFound
	return outcome, e
}

// reject purges the object and reports the reason. A failed delete is logged
// and leaves outcome.Purged false.
func (s *service) reject(ctx context.Context, op string, outcome *VerificationOutcome, reason Reason, kind Kind, msg string) (*VerificationOutcome, error) {
	outcome.Reason = reason

	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.storeTimeout)
	defer cancel()
	if err := s.store.Delete(dctx, outcome.ObjectKey); err != nil {
		s.logger.WarnContext(ctx, "purge failed",
			"op", op,
			"object_key", outcome.ObjectKey,
			"reason", string(reason),
			"error", err,
		)
	} else {
		outcome.Purged = true
	}

	s.recorder.VerificationFinished(reason)
	s.logger.WarnContext(ctx, "upload rejected",
		"op", op,
		"object_key", outcome.ObjectKey,
		"reason", string(reason),
		"content_type", outcome.ContentType,
		"detected_type", outcome.DetectedType,
		"size", outcome.Size,
		"purged", outcome.Purged,
	)

	e := newError(kind, op, msg, nil)
	e.Reason = reason
	return outcome, e
}

func (s *service) storeError(op string, err error) error {
	switch {
	case errors.Is(err, ErrNotConfigured), errors.Is(err, sigv4.ErrMissingCredentials):
		return newError(KindConfiguration, op, "upload storage not configured", err)
	case errors.Is(err, context.DeadlineExceeded):
		return newError(KindInfrastructure, op, "object store timeout", err)
	default:
		return newError(KindInfrastructure, op, "could not verify file", err)
	}
}
