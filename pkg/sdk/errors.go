package clipsearch

import "github.com/U201311/clip-image-search-v2/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrNotFound               = domain.ErrNotFound
	ErrScopeNotFound          = domain.ErrScopeNotFound
	ErrInvalidQuery           = domain.ErrInvalidQuery
	ErrVectorDimMismatch      = domain.ErrVectorDimMismatch
	ErrInputSkipped           = domain.ErrInputSkipped
	ErrUnsupportedFormat      = domain.ErrUnsupportedFormat
	ErrDuplicateContent       = domain.ErrDuplicateContent
	ErrEnumeration            = domain.ErrEnumeration
	ErrEmbeddingProviderError = domain.ErrEmbeddingProviderError
	ErrEmbeddingQuotaExceeded = domain.ErrEmbeddingQuotaExceeded
	ErrStoreFailure           = domain.ErrStoreFailure
)
