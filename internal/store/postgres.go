package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/payee-cli/internal/model"
	"github.com/sells-group/payee-cli/internal/normalize"
)

// Pool is the subset of pgxpool.Pool used by PostgresStore. pgxmock
// satisfies it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS payee_classifications (
	id               TEXT PRIMARY KEY,
	job_id           TEXT,
	payee_name       TEXT NOT NULL,
	normalized_name  TEXT NOT NULL,
	name_hash        TEXT NOT NULL,
	classification   TEXT NOT NULL,
	confidence       DOUBLE PRECISION NOT NULL DEFAULT 0,
	reasoning        TEXT NOT NULL DEFAULT '',
	processing_tier  TEXT NOT NULL DEFAULT '',
	matched_keywords TEXT,
	row_index        INTEGER NOT NULL DEFAULT 0,
	original_data    JSONB,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS dedupe_links (
	duplicate_normalized TEXT PRIMARY KEY,
	canonical_normalized TEXT NOT NULL,
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS batch_jobs (
	id           TEXT PRIMARY KEY,
	source       TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'running',
	total_names  INTEGER NOT NULL DEFAULT 0,
	classified   INTEGER NOT NULL DEFAULT 0,
	excluded     INTEGER NOT NULL DEFAULT 0,
	duplicates   INTEGER NOT NULL DEFAULT 0,
	error        TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_classifications_job_id ON payee_classifications(job_id);
CREATE INDEX IF NOT EXISTS idx_classifications_name_hash ON payee_classifications(name_hash);
CREATE INDEX IF NOT EXISTS idx_dedupe_links_canonical ON dedupe_links(canonical_normalized);
`

// Migrate creates the schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// SaveClassifications inserts classification rows, replacing any existing
// row with the same id.
func (s *PostgresStore) SaveClassifications(ctx context.Context, jobID string, list []model.PayeeClassification) error {
	for _, c := range list {
		nn := normalize.Name(c.PayeeName)

		keywords, err := json.Marshal(c.Result.MatchedKeywords)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal matched keywords")
		}
		var original []byte
		if c.OriginalData != nil {
			original, err = json.Marshal(c.OriginalData)
			if err != nil {
				return eris.Wrap(err, "postgres: marshal original data")
			}
		}

		_, err = s.pool.Exec(ctx,
			`INSERT INTO payee_classifications
				(id, job_id, payee_name, normalized_name, name_hash, classification,
				 confidence, reasoning, processing_tier, matched_keywords, row_index,
				 original_data, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			 ON CONFLICT (id) DO UPDATE SET
				classification = EXCLUDED.classification,
				confidence = EXCLUDED.confidence,
				reasoning = EXCLUDED.reasoning,
				processing_tier = EXCLUDED.processing_tier`,
			c.ID, jobID, c.PayeeName, nn.Normalized, nn.Hash,
			c.Result.Classification, c.Result.Confidence, c.Result.Reasoning,
			c.Result.ProcessingTier, string(keywords), c.RowIndex, original,
			c.Timestamp.UTC(),
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert classification %s", c.ID)
		}
	}
	return nil
}

// ListClassifications returns classifications for a job ordered by row index.
func (s *PostgresStore) ListClassifications(ctx context.Context, jobID string, limit int) ([]model.PayeeClassification, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, payee_name, classification, confidence, reasoning,
			processing_tier, matched_keywords, row_index, original_data, created_at
		 FROM payee_classifications
		 WHERE job_id = $1
		 ORDER BY row_index
		 LIMIT $2`,
		jobID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list classifications")
	}
	defer rows.Close()

	var out []model.PayeeClassification
	for rows.Next() {
		c, err := scanClassification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: rows iteration")
	}
	return out, nil
}

func scanClassification(rows pgx.Rows) (model.PayeeClassification, error) {
	var (
		c        model.PayeeClassification
		keywords *string
		original []byte
	)
	err := rows.Scan(
		&c.ID, &c.PayeeName, &c.Result.Classification, &c.Result.Confidence,
		&c.Result.Reasoning, &c.Result.ProcessingTier, &keywords,
		&c.RowIndex, &original, &c.Timestamp,
	)
	if err != nil {
		return c, eris.Wrap(err, "postgres: scan classification")
	}
	if keywords != nil && *keywords != "" {
		if err := json.Unmarshal([]byte(*keywords), &c.Result.MatchedKeywords); err != nil {
			return c, eris.Wrap(err, "postgres: unmarshal matched keywords")
		}
	}
	if len(original) > 0 {
		if err := json.Unmarshal(original, &c.OriginalData); err != nil {
			return c, eris.Wrap(err, "postgres: unmarshal original data")
		}
	}
	return c, nil
}

// FetchDedupeMap returns the stored canonical for each normalized name that
// has one. One query per call regardless of batch size.
func (s *PostgresStore) FetchDedupeMap(ctx context.Context, normalized []string) (map[string]string, error) {
	out := make(map[string]string)
	if len(normalized) == 0 {
		return out, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT duplicate_normalized, canonical_normalized
		 FROM dedupe_links
		 WHERE duplicate_normalized = ANY($1)`,
		normalized,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: fetch dedupe map")
	}
	defer rows.Close()

	for rows.Next() {
		var dup, canonical string
		if err := rows.Scan(&dup, &canonical); err != nil {
			return nil, eris.Wrap(err, "postgres: scan dedupe link")
		}
		out[dup] = canonical
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: rows iteration")
	}
	return out, nil
}

// UpsertDedupeLinks writes links in a single multi-row statement, last write
// winning per duplicate key.
func (s *PostgresStore) UpsertDedupeLinks(ctx context.Context, links []model.DedupeLink) error {
	if len(links) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO dedupe_links (duplicate_normalized, canonical_normalized) VALUES `)
	args := make([]any, 0, len(links)*2)
	for i, l := range links {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "($%d, $%d)", i*2+1, i*2+2)
		args = append(args, l.DuplicateNormalized, l.CanonicalNormalized)
	}
	sb.WriteString(` ON CONFLICT (duplicate_normalized) DO UPDATE SET
		canonical_normalized = EXCLUDED.canonical_normalized,
		updated_at = now()`)

	if _, err := s.pool.Exec(ctx, sb.String(), args...); err != nil {
		return eris.Wrap(err, "postgres: upsert dedupe links")
	}
	return nil
}

// CreateBatchJob inserts a new batch job row.
func (s *PostgresStore) CreateBatchJob(ctx context.Context, job *model.BatchJob) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO batch_jobs (id, source, status, total_names, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		job.ID, job.Source, string(job.Status), job.TotalNames, job.CreatedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: insert batch job %s", job.ID)
}

// CompleteBatchJob records the final counts and status of a job.
func (s *PostgresStore) CompleteBatchJob(ctx context.Context, job *model.BatchJob) error {
	now := time.Now().UTC()
	job.CompletedAt = &now
	_, err := s.pool.Exec(ctx,
		`UPDATE batch_jobs
		 SET status = $1, classified = $2, excluded = $3, duplicates = $4,
			 error = $5, completed_at = $6
		 WHERE id = $7`,
		string(job.Status), job.Classified, job.Excluded, job.Duplicates,
		job.Error, now, job.ID,
	)
	return eris.Wrapf(err, "postgres: complete batch job %s", job.ID)
}

// ListBatchJobs returns jobs created at or after since, newest first.
func (s *PostgresStore) ListBatchJobs(ctx context.Context, since time.Time, limit int) ([]model.BatchJob, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, source, status, total_names, classified, excluded,
			duplicates, error, created_at, completed_at
		 FROM batch_jobs
		 WHERE created_at >= $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		since.UTC(), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list batch jobs")
	}
	defer rows.Close()

	var out []model.BatchJob
	for rows.Next() {
		var (
			job    model.BatchJob
			status string
		)
		err := rows.Scan(&job.ID, &job.Source, &status, &job.TotalNames,
			&job.Classified, &job.Excluded, &job.Duplicates, &job.Error,
			&job.CreatedAt, &job.CompletedAt)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan batch job")
		}
		job.Status = model.BatchJobStatus(status)
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: rows iteration")
	}
	return out, nil
}

// GetBatchJob fetches a job by id. Returns nil when not found.
func (s *PostgresStore) GetBatchJob(ctx context.Context, jobID string) (*model.BatchJob, error) {
	var (
		job    model.BatchJob
		status string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, source, status, total_names, classified, excluded,
			duplicates, error, created_at, completed_at
		 FROM batch_jobs WHERE id = $1`,
		jobID,
	).Scan(&job.ID, &job.Source, &status, &job.TotalNames, &job.Classified,
		&job.Excluded, &job.Duplicates, &job.Error, &job.CreatedAt, &job.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get batch job %s", jobID)
	}
	job.Status = model.BatchJobStatus(status)
	return &job, nil
}
