package clipsearch

import (
	"context"
	"iter"

	"github.com/U201311/clip-image-search-v2/internal/domain/ingest"
	"github.com/U201311/clip-image-search-v2/internal/domain/search/request"
	"github.com/U201311/clip-image-search-v2/internal/domain/search/result"
	healthuc "github.com/U201311/clip-image-search-v2/internal/usecase/health"
)

// --- searchUseCase mock ---

type mockSearchUC struct {
	searchFn func(ctx context.Context, req *request.Request) (result.Ranking, error)
}

func (m *mockSearchUC) Search(ctx context.Context, req *request.Request) (result.Ranking, error) {
	return m.searchFn(ctx, req)
}

// --- ingestUseCase mock ---

type mockIngestUC struct {
	ingestFn    func(ctx context.Context, items iter.Seq2[ingest.Item, error], opts ingest.Options) ([]ingest.Outcome, error)
	dirFn       func(ctx context.Context, root string, opts ingest.Options) ([]ingest.Outcome, error)
	workspaceFn func(ctx context.Context, id string, opts ingest.Options) ([]ingest.Outcome, error)
	uploadFn    func(ctx context.Context, id, scopeID string, data []byte) (ingest.Outcome, error)
}

func (m *mockIngestUC) Ingest(
	ctx context.Context, items iter.Seq2[ingest.Item, error], opts ingest.Options,
) ([]ingest.Outcome, error) {
	return m.ingestFn(ctx, items, opts)
}

func (m *mockIngestUC) IngestDir(ctx context.Context, root string, opts ingest.Options) ([]ingest.Outcome, error) {
	return m.dirFn(ctx, root, opts)
}

func (m *mockIngestUC) IngestWorkspace(
	ctx context.Context, id string, opts ingest.Options,
) ([]ingest.Outcome, error) {
	return m.workspaceFn(ctx, id, opts)
}

func (m *mockIngestUC) IngestUpload(ctx context.Context, id, scopeID string, data []byte) (ingest.Outcome, error) {
	return m.uploadFn(ctx, id, scopeID, data)
}

// --- scopeUseCase mock ---

type mockScopeUC struct {
	datasets   map[string][]string
	workspaces map[string]map[string]string
	err        error
}

func (m *mockScopeUC) RegisterDataset(_ context.Context, id, _ string, members ...string) error {
	if m.err != nil {
		return m.err
	}
	if m.datasets == nil {
		m.datasets = map[string][]string{}
	}
	m.datasets[id] = members
	return nil
}

func (m *mockScopeUC) RegisterWorkspaceFiles(_ context.Context, id string, files map[string]string) error {
	if m.err != nil {
		return m.err
	}
	if m.workspaces == nil {
		m.workspaces = map[string]map[string]string{}
	}
	m.workspaces[id] = files
	return nil
}

// --- healthUseCase mock ---

type mockHealthUC struct {
	report healthuc.Report
}

func (m *mockHealthUC) Check(context.Context) healthuc.Report { return m.report }

// --- Embedder mock ---

type mockEmbedder struct {
	textFn  func(ctx context.Context, text string) ([]float32, error)
	imageFn func(ctx context.Context, data []byte) (ImageEmbedding, error)
}

func (m *mockEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return m.textFn(ctx, text)
}

func (m *mockEmbedder) EmbedImage(ctx context.Context, data []byte) (ImageEmbedding, error) {
	return m.imageFn(ctx, data)
}
