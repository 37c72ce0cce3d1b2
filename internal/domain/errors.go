package domain

import "errors"

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrScopeNotFound signals an unknown dataset or workspace.
	ErrScopeNotFound = errors.New("scope not found")
	// ErrVectorDimMismatch signals that a vector length disagrees with the configured feature dimension.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrInvalidQuery signals a query that cannot be ranked (empty, zero norm, undecodable image).
	ErrInvalidQuery = errors.New("invalid query")

	// ErrInputSkipped signals a source file that was not ingested.
	ErrInputSkipped = errors.New("input skipped")
	// ErrUnsupportedFormat signals content outside the accepted image formats.
	ErrUnsupportedFormat = errors.New("unsupported image format")
	// ErrDuplicateContent signals content whose hash is already in the content store.
	ErrDuplicateContent = errors.New("duplicate content")
	// ErrEnumeration signals that the input sequence failed before it was exhausted.
	ErrEnumeration = errors.New("input enumeration failed")

	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrEmbeddingQuotaExceeded signals that the provider call quota is used up.
	ErrEmbeddingQuotaExceeded = errors.New("embedding quota exceeded")
	// ErrStoreFailure signals a feature store read or write failure.
	ErrStoreFailure = errors.New("feature store failure")
)
