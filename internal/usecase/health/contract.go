package health

import "context"

// DBPinger checks feature store availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// EmbeddingChecker checks embedding provider availability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}

// ContentChecker checks content store availability.
type ContentChecker interface {
	HealthCheck(ctx context.Context) error
}
