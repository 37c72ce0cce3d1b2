package chi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/U201311/clip-image-search-v2/internal/domain"
	"github.com/U201311/clip-image-search-v2/internal/domain/ingest"
	"github.com/U201311/clip-image-search-v2/internal/domain/search/query"
	"github.com/U201311/clip-image-search-v2/internal/domain/search/request"
	"github.com/U201311/clip-image-search-v2/internal/domain/search/result"
	logpkg "github.com/U201311/clip-image-search-v2/internal/logger"
	healthuc "github.com/U201311/clip-image-search-v2/internal/usecase/health"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Searcher ranks stored images against a query.
type Searcher interface {
	Search(ctx context.Context, req *request.Request) (result.Ranking, error)
}

// Ingester feeds images into the feature store.
type Ingester interface {
	IngestWorkspace(ctx context.Context, workspaceID string, opts ingest.Options) ([]ingest.Outcome, error)
	IngestUpload(ctx context.Context, id, scopeID string, data []byte) (ingest.Outcome, error)
}

// HealthChecker reports component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// Limits bounds request parameters at the HTTP edge.
type Limits struct {
	DefaultTopN    int
	MaxTopN        int
	MaxUploadBytes int64
}

// Server serves the retrieval HTTP API.
type Server struct {
	search        Searcher
	ingest        Ingester
	health        HealthChecker
	limits        Limits
	version       string
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(search Searcher, ingester Ingester, health HealthChecker, limits Limits, logger *zap.Logger) *Server {
	if limits.DefaultTopN <= 0 {
		limits.DefaultTopN = request.DefaultTopN
	}
	if limits.MaxTopN <= 0 || limits.MaxTopN > request.MaxTopN {
		limits.MaxTopN = request.MaxTopN
	}
	if limits.MaxUploadBytes <= 0 {
		limits.MaxUploadBytes = 32 << 20
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		search: search,
		ingest: ingester,
		health: health,
		limits: limits,
		logger: logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidQuery, http.StatusBadRequest, ErrorCodeValidationFailed),
		sentinelHandler(domain.ErrVectorDimMismatch, http.StatusBadRequest, ErrorCodeVectorDimMismatch),
		sentinelHandler(domain.ErrUnsupportedFormat, http.StatusBadRequest, ErrorCodeUnsupportedFormat),
		sentinelHandler(domain.ErrInputSkipped, http.StatusBadRequest, ErrorCodeValidationFailed),
		sentinelHandler(domain.ErrScopeNotFound, http.StatusNotFound, ErrorCodeScopeNotFound),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, ErrorCodeNotFound),
		sentinelHandler(domain.ErrEmbeddingQuotaExceeded,
			http.StatusTooManyRequests, ErrorCodeEmbeddingQuotaExceeded),
		sentinelHandler(domain.ErrEmbeddingProviderError,
			http.StatusBadGateway, ErrorCodeEmbeddingProviderError),
		sentinelHandler(domain.ErrStoreFailure, http.StatusServiceUnavailable, ErrorCodeStoreUnavailable),
		sentinelHandler(context.DeadlineExceeded, http.StatusGatewayTimeout, ErrorCodeInternalError),
	}
	return s
}

// WithVersion sets the build version reported by /health.
func (s *Server) WithVersion(v string) *Server {
	s.version = v
	return s
}

// log returns the request-scoped logger.
func (s *Server) log(r *http.Request) *zap.Logger {
	return logpkg.FromContextOr(r.Context(), s.logger)
}

// SearchText handles POST /search/text.
func (s *Server) SearchText(w http.ResponseWriter, r *http.Request) {
	var req SearchTextRequest
	if !s.decode(w, r, &req) {
		return
	}
	q, err := query.NewText(req.Text)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeValidationFailed, err.Error())
		return
	}
	s.runSearch(w, r, q, req.DatasetID, req.searchFilters)
}

// SearchImage handles POST /search/image.
func (s *Server) SearchImage(w http.ResponseWriter, r *http.Request) {
	var req SearchImageRequest
	if !s.decode(w, r, &req) {
		return
	}
	data, err := decodeBase64(req.Base64Str)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeValidationFailed, err.Error())
		return
	}
	q, err := query.NewImage(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeValidationFailed, err.Error())
		return
	}
	s.runSearch(w, r, q, req.DatasetID, req.searchFilters)
}

func (s *Server) runSearch(w http.ResponseWriter, r *http.Request, q query.Query, datasetID ScopeID, f searchFilters) {
	searchReq, err := s.searchRequest(q, datasetID, f)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeValidationFailed, err.Error())
		return
	}

	ranking, err := s.search.Search(r.Context(), &searchReq)
	if err != nil {
		if !ranking.Partial || !errors.Is(err, domain.ErrStoreFailure) {
			s.handleDomainError(w, r, err)
			return
		}
		s.log(r).Warn("Returning partial ranking", zap.Error(err), zap.Int("scanned", ranking.Scanned))
	}

	writeJSON(w, http.StatusOK, rankingToResponse(ranking))
}

func (s *Server) searchRequest(q query.Query, datasetID ScopeID, f searchFilters) (request.Request, error) {
	topN := f.TopN
	if topN == 0 {
		topN = s.limits.DefaultTopN
	}
	topN = min(topN, s.limits.MaxTopN)

	filters, err := request.NewFilters(f.MinimumWidth, f.MinimumHeight, f.ExtensionChoice)
	if err != nil {
		return request.Request{}, err
	}
	return request.New(q, string(datasetID), topN, filters)
}

// ImportWorkspace handles POST /search/import/{workspace_id}.
func (s *Server) ImportWorkspace(w http.ResponseWriter, r *http.Request, workspaceID string) {
	outcomes, err := s.ingest.IngestWorkspace(r.Context(), workspaceID, ingest.Options{CopyIntoStore: true})
	if err != nil && !errors.Is(err, domain.ErrEnumeration) {
		s.handleDomainError(w, r, err)
		return
	}

	resp := ImportResponse{Success: err == nil, Data: make([]OutcomeItem, len(outcomes))}
	for i, o := range outcomes {
		resp.Data[i] = outcomeToItem(o)
		switch o.Status() {
		case ingest.StatusInserted:
			resp.Inserted++
		case ingest.StatusSkipped:
			resp.Skipped++
		case ingest.StatusFailed:
			resp.Failed++
		}
	}
	if err != nil {
		s.log(r).Warn("Workspace import stopped early", zap.String("workspace_id", workspaceID), zap.Error(err))
		resp.Error = &ErrorResponse{Code: ErrorCodeEnumerationFailed, Message: domain.ErrEnumeration.Error()}
	}

	writeJSON(w, http.StatusOK, resp)
}

// UploadImage handles POST /search/upload.
func (s *Server) UploadImage(w http.ResponseWriter, r *http.Request) {
	var req UploadImageRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.WorkspaceFileID == "" {
		writeError(w, http.StatusBadRequest, ErrorCodeValidationFailed, "workspace_file_id is required")
		return
	}
	data, err := decodeBase64(req.Base64Str)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeValidationFailed, err.Error())
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, ErrorCodeValidationFailed, "base64_str is required")
		return
	}
	if int64(len(data)) > s.limits.MaxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, ErrorCodeValidationFailed,
			fmt.Sprintf("image exceeds %d bytes", s.limits.MaxUploadBytes))
		return
	}

	id := string(req.WorkspaceFileID)
	outcome, err := s.ingest.IngestUpload(r.Context(), id, id, data)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	if outcome.Status() != ingest.StatusInserted && !errors.Is(outcome.Err(), domain.ErrDuplicateContent) {
		s.handleDomainError(w, r, outcome.Err())
		return
	}

	writeJSON(w, http.StatusOK, UploadResponse{Success: true, Data: outcomeToItem(outcome)})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status:  string(report.Status),
		Checks:  checks,
		Version: s.version,
	})
}

// decode reads a JSON body bounded by the upload limit. Writes a 400 and returns false on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	// Body limit covers the base64 expansion of an image plus the other fields.
	limit := s.limits.MaxUploadBytes/3*4 + 64<<10
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrorCodeBadRequest, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

// decodeBase64 accepts standard base64 with or without a data URL prefix.
func decodeBase64(s string) ([]byte, error) {
	if strings.HasPrefix(s, "data:") {
		if _, payload, ok := strings.Cut(s, ","); ok {
			s = payload
		}
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("base64_str: %w", err)
	}
	return data, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrInvalidQuery,
		domain.ErrVectorDimMismatch,
		domain.ErrUnsupportedFormat,
		domain.ErrDuplicateContent,
		domain.ErrInputSkipped,
		domain.ErrScopeNotFound,
		domain.ErrNotFound,
		domain.ErrEmbeddingQuotaExceeded,
		domain.ErrEmbeddingProviderError,
		domain.ErrStoreFailure,
		context.DeadlineExceeded,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := s.log(r)
	log.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, "internal error")
}

func rankingToResponse(r result.Ranking) SearchResponse {
	resp := SearchResponse{
		Success:  true,
		Data:     make([]string, len(r.Matches)),
		Score:    make([]float64, len(r.Matches)),
		Matches:  make([]MatchItem, len(r.Matches)),
		Partial:  r.Partial,
		Scanned:  r.Scanned,
		Excluded: r.Excluded,
	}
	for i := range r.Matches {
		m := &r.Matches[i]
		resp.Data[i] = m.ID()
		resp.Score[i] = m.Score()
		resp.Matches[i] = matchToItem(m)
	}
	return resp
}

func matchToItem(m *result.Match) MatchItem {
	return MatchItem{
		ID:        m.ID(),
		ScopeID:   m.ScopeID(),
		Location:  m.Location(),
		Width:     m.Width(),
		Height:    m.Height(),
		Extension: string(m.Format()),
		Score:     m.Score(),
	}
}

func outcomeToItem(o ingest.Outcome) OutcomeItem {
	return OutcomeItem{
		ID:      o.ID(),
		Status:  string(o.Status()),
		StoreID: o.StoreID(),
		Reason:  safeReason(o),
	}
}

// safeReason hides store internals from failed outcomes.
func safeReason(o ingest.Outcome) string {
	if o.Err() == nil {
		return ""
	}
	if o.Status() == ingest.StatusFailed {
		return safeDomainMessage(o.Err())
	}
	return o.Reason()
}
