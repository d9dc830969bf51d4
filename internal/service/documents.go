package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/internship-lifecycle-api/pkg/errors"
	"github.com/noah-isme/internship-lifecycle-api/pkg/retry"
	"github.com/noah-isme/internship-lifecycle-api/pkg/storage"
)

// storeDocument writes doc with retries. Every store failure counts as transient;
// once the budget is spent the caller sees DependencyUnavailable.
func storeDocument(ctx context.Context, r *retry.Retrier, store storage.DocumentStore, doc storage.Document, subject string) (storage.StoredDocument, error) {
	stored, err := retry.DoWithData(ctx, r, func(ctx context.Context) (storage.StoredDocument, error) {
		out, err := store.Store(ctx, doc)
		if err != nil {
			return storage.StoredDocument{}, retry.Retryable(err)
		}
		return out, nil
	})
	if err != nil {
		return storage.StoredDocument{}, appErrors.WrapAs(err, appErrors.ErrDependencyUnavailable,
			"document store unavailable while storing "+subject)
	}
	return stored, nil
}

// fetchDocument reads and verifies a stored document. A checksum mismatch or a
// missing object is an invariant violation: the row points at bytes we no longer have.
func fetchDocument(ctx context.Context, r *retry.Retrier, store storage.DocumentStore, logger *zap.Logger, path, checksum, subject string) ([]byte, error) {
	data, err := retry.DoWithData(ctx, r, func(ctx context.Context) ([]byte, error) {
		out, err := store.Fetch(ctx, path, checksum)
		if err != nil {
			if errors.Is(err, storage.ErrChecksumMismatch) || errors.Is(err, storage.ErrDocumentNotFound) {
				return nil, retry.Permanent(err)
			}
			return nil, retry.Retryable(err)
		}
		return out, nil
	})
	if err == nil {
		return data, nil
	}
	if errors.Is(err, storage.ErrChecksumMismatch) || errors.Is(err, storage.ErrDocumentNotFound) {
		logger.Error("stored document failed verification",
			zap.String("subject", subject), zap.String("path", path), zap.Error(err))
		return nil, appErrors.WrapAs(err, appErrors.ErrInvariantViolation, "document for "+subject+" failed verification")
	}
	return nil, appErrors.WrapAs(err, appErrors.ErrDependencyUnavailable, "document store unavailable while fetching "+subject)
}
