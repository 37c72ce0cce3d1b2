package chi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ErrorCode is a machine readable error identifier.
type ErrorCode string

// Error codes returned in ErrorResponse.
const (
	ErrorCodeBadRequest             ErrorCode = "bad_request"
	ErrorCodeUnauthorized           ErrorCode = "unauthorized"
	ErrorCodeValidationFailed       ErrorCode = "validation_failed"
	ErrorCodeVectorDimMismatch      ErrorCode = "vector_dim_mismatch"
	ErrorCodeUnsupportedFormat      ErrorCode = "unsupported_format"
	ErrorCodeScopeNotFound          ErrorCode = "scope_not_found"
	ErrorCodeNotFound               ErrorCode = "not_found"
	ErrorCodeEmbeddingQuotaExceeded ErrorCode = "embedding_quota_exceeded"
	ErrorCodeEmbeddingProviderError ErrorCode = "embedding_provider_error"
	ErrorCodeStoreUnavailable       ErrorCode = "store_unavailable"
	ErrorCodeEnumerationFailed      ErrorCode = "enumeration_failed"
	ErrorCodeInternalError          ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// ScopeID accepts a JSON string or integer and keeps it as a string.
type ScopeID string

// UnmarshalJSON implements json.Unmarshaler.
func (id *ScopeID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("scope id: %w", err)
		}
		*id = ScopeID(s)
		return nil
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("scope id must be a string or an integer: %w", err)
	}
	*id = ScopeID(strconv.FormatInt(n, 10))
	return nil
}

// searchFilters are the metadata predicates shared by both search requests.
type searchFilters struct {
	TopN            int      `json:"topn"`
	MinimumWidth    int      `json:"minimum_width"`
	MinimumHeight   int      `json:"minimum_height"`
	ExtensionChoice []string `json:"extension_choice"`
}

// SearchTextRequest is the body of POST /search/text.
type SearchTextRequest struct {
	DatasetID ScopeID `json:"dataset_id"`
	Text      string  `json:"text"`
	searchFilters
}

// SearchImageRequest is the body of POST /search/image.
type SearchImageRequest struct {
	DatasetID ScopeID `json:"dataset_id"`
	Base64Str string  `json:"base64_str"`
	searchFilters
}

// MatchItem is one ranked image.
type MatchItem struct {
	ID        string  `json:"id"`
	ScopeID   string  `json:"scope_id,omitempty"`
	Location  string  `json:"location"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	Extension string  `json:"extension"`
	Score     float64 `json:"score"`
}

// SearchResponse lists matches best first. Data and Score are parallel arrays of
// store ids and scores; Matches carries the full records.
type SearchResponse struct {
	Success  bool        `json:"success"`
	Data     []string    `json:"data"`
	Score    []float64   `json:"score"`
	Matches  []MatchItem `json:"matches"`
	Partial  bool        `json:"partial"`
	Scanned  int         `json:"scanned"`
	Excluded int         `json:"excluded"`
}

// OutcomeItem reports one ingested item.
type OutcomeItem struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	StoreID string `json:"store_id,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// ImportResponse is the body of POST /search/import/{workspace_id}.
type ImportResponse struct {
	Success  bool           `json:"success"`
	Data     []OutcomeItem  `json:"data"`
	Inserted int            `json:"inserted"`
	Skipped  int            `json:"skipped"`
	Failed   int            `json:"failed"`
	Error    *ErrorResponse `json:"error,omitempty"`
}

// UploadImageRequest is the body of POST /search/upload.
type UploadImageRequest struct {
	Base64Str       string  `json:"base64_str"`
	WorkspaceFileID ScopeID `json:"workspace_file_id"`
}

// UploadResponse is the body of a successful upload.
type UploadResponse struct {
	Success bool        `json:"success"`
	Data    OutcomeItem `json:"data"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string            `json:"status"`
	Checks  map[string]string `json:"checks"`
	Version string            `json:"version,omitempty"`
}
