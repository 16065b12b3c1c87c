// Package store persists payee classifications, dedupe links, and batch
// jobs, with Postgres and SQLite backends.
package store

import (
	"context"
	"time"

	"github.com/sells-group/payee-cli/internal/model"
)

// Store defines the persistence interface for the classification pipeline.
// FetchDedupeMap and UpsertDedupeLinks satisfy dedupe.DedupeStore.
type Store interface {
	// Classifications
	SaveClassifications(ctx context.Context, jobID string, list []model.PayeeClassification) error
	ListClassifications(ctx context.Context, jobID string, limit int) ([]model.PayeeClassification, error)

	// Dedupe links. FetchDedupeMap returns entries only for names with a
	// known mapping; unknown names are omitted. UpsertDedupeLinks is
	// idempotent by duplicate_normalized (last write wins).
	FetchDedupeMap(ctx context.Context, normalized []string) (map[string]string, error)
	UpsertDedupeLinks(ctx context.Context, links []model.DedupeLink) error

	// Batch jobs
	CreateBatchJob(ctx context.Context, job *model.BatchJob) error
	CompleteBatchJob(ctx context.Context, job *model.BatchJob) error
	GetBatchJob(ctx context.Context, jobID string) (*model.BatchJob, error)
	ListBatchJobs(ctx context.Context, since time.Time, limit int) ([]model.BatchJob, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
