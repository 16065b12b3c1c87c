package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/payee-cli/internal/model"
	"github.com/sells-group/payee-cli/internal/normalize"
)

// SQLiteStore implements Store using modernc.org/sqlite, for local and
// offline runs.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS payee_classifications (
	id               TEXT PRIMARY KEY,
	job_id           TEXT,
	payee_name       TEXT NOT NULL,
	normalized_name  TEXT NOT NULL,
	name_hash        TEXT NOT NULL,
	classification   TEXT NOT NULL,
	confidence       REAL NOT NULL DEFAULT 0,
	reasoning        TEXT NOT NULL DEFAULT '',
	processing_tier  TEXT NOT NULL DEFAULT '',
	matched_keywords TEXT,
	row_index        INTEGER NOT NULL DEFAULT 0,
	original_data    TEXT,
	created_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS dedupe_links (
	duplicate_normalized TEXT PRIMARY KEY,
	canonical_normalized TEXT NOT NULL,
	updated_at           DATETIME NOT NULL DEFAULT (datetime('now'))
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
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	completed_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_classifications_job_id ON payee_classifications(job_id);
CREATE INDEX IF NOT EXISTS idx_classifications_name_hash ON payee_classifications(name_hash);
CREATE INDEX IF NOT EXISTS idx_dedupe_links_canonical ON dedupe_links(canonical_normalized);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveClassifications(ctx context.Context, jobID string, list []model.PayeeClassification) error {
	for _, c := range list {
		nn := normalize.Name(c.PayeeName)

		keywords, err := json.Marshal(c.Result.MatchedKeywords)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal matched keywords")
		}
		var original []byte
		if c.OriginalData != nil {
			original, err = json.Marshal(c.OriginalData)
			if err != nil {
				return eris.Wrap(err, "sqlite: marshal original data")
			}
		}

		_, err = s.db.ExecContext(ctx,
			`INSERT INTO payee_classifications
				(id, job_id, payee_name, normalized_name, name_hash, classification,
				 confidence, reasoning, processing_tier, matched_keywords, row_index,
				 original_data, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (id) DO UPDATE SET
				classification = excluded.classification,
				confidence = excluded.confidence,
				reasoning = excluded.reasoning,
				processing_tier = excluded.processing_tier`,
			c.ID, jobID, c.PayeeName, nn.Normalized, nn.Hash,
			c.Result.Classification, c.Result.Confidence, c.Result.Reasoning,
			c.Result.ProcessingTier, string(keywords), c.RowIndex,
			nullableString(original), c.Timestamp.UTC(),
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert classification %s", c.ID)
		}
	}
	return nil
}

func (s *SQLiteStore) ListClassifications(ctx context.Context, jobID string, limit int) ([]model.PayeeClassification, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, payee_name, classification, confidence, reasoning,
			processing_tier, matched_keywords, row_index, original_data, created_at
		 FROM payee_classifications
		 WHERE job_id = ?
		 ORDER BY row_index
		 LIMIT ?`,
		jobID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list classifications")
	}
	defer rows.Close()

	var out []model.PayeeClassification
	for rows.Next() {
		var (
			c        model.PayeeClassification
			keywords sql.NullString
			original sql.NullString
		)
		err := rows.Scan(
			&c.ID, &c.PayeeName, &c.Result.Classification, &c.Result.Confidence,
			&c.Result.Reasoning, &c.Result.ProcessingTier, &keywords,
			&c.RowIndex, &original, &c.Timestamp,
		)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan classification")
		}
		if keywords.Valid && keywords.String != "" && keywords.String != "null" {
			if err := json.Unmarshal([]byte(keywords.String), &c.Result.MatchedKeywords); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal matched keywords")
			}
		}
		if original.Valid && original.String != "" {
			if err := json.Unmarshal([]byte(original.String), &c.OriginalData); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal original data")
			}
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: rows iteration")
	}
	return out, nil
}

func (s *SQLiteStore) FetchDedupeMap(ctx context.Context, normalized []string) (map[string]string, error) {
	out := make(map[string]string)
	if len(normalized) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(normalized)), ", ")
	args := make([]any, len(normalized))
	for i, n := range normalized {
		args[i] = n
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT duplicate_normalized, canonical_normalized FROM dedupe_links
		 WHERE duplicate_normalized IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: fetch dedupe map")
	}
	defer rows.Close()

	for rows.Next() {
		var dup, canonical string
		if err := rows.Scan(&dup, &canonical); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan dedupe link")
		}
		out[dup] = canonical
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: rows iteration")
	}
	return out, nil
}

func (s *SQLiteStore) UpsertDedupeLinks(ctx context.Context, links []model.DedupeLink) error {
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
		sb.WriteString("(?, ?)")
		args = append(args, l.DuplicateNormalized, l.CanonicalNormalized)
	}
	sb.WriteString(` ON CONFLICT (duplicate_normalized) DO UPDATE SET
		canonical_normalized = excluded.canonical_normalized,
		updated_at = datetime('now')`)

	if _, err := s.db.ExecContext(ctx, sb.String(), args...); err != nil {
		return eris.Wrap(err, "sqlite: upsert dedupe links")
	}
	return nil
}

func (s *SQLiteStore) CreateBatchJob(ctx context.Context, job *model.BatchJob) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO batch_jobs (id, source, status, total_names, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		job.ID, job.Source, string(job.Status), job.TotalNames, job.CreatedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: insert batch job %s", job.ID)
}

func (s *SQLiteStore) CompleteBatchJob(ctx context.Context, job *model.BatchJob) error {
	now := time.Now().UTC()
	job.CompletedAt = &now
	_, err := s.db.ExecContext(ctx,
		`UPDATE batch_jobs
		 SET status = ?, classified = ?, excluded = ?, duplicates = ?,
			 error = ?, completed_at = ?
		 WHERE id = ?`,
		string(job.Status), job.Classified, job.Excluded, job.Duplicates,
		job.Error, now, job.ID,
	)
	return eris.Wrapf(err, "sqlite: complete batch job %s", job.ID)
}

func (s *SQLiteStore) ListBatchJobs(ctx context.Context, since time.Time, limit int) ([]model.BatchJob, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, status, total_names, classified, excluded,
			duplicates, error, created_at, completed_at
		 FROM batch_jobs
		 WHERE created_at >= ?
		 ORDER BY created_at DESC
		 LIMIT ?`,
		since.UTC(), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list batch jobs")
	}
	defer rows.Close()

	var out []model.BatchJob
	for rows.Next() {
		var (
			job       model.BatchJob
			status    string
			completed sql.NullTime
		)
		err := rows.Scan(&job.ID, &job.Source, &status, &job.TotalNames,
			&job.Classified, &job.Excluded, &job.Duplicates, &job.Error,
			&job.CreatedAt, &completed)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan batch job")
		}
		job.Status = model.BatchJobStatus(status)
		if completed.Valid {
			t := completed.Time
			job.CompletedAt = &t
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: rows iteration")
	}
	return out, nil
}

func (s *SQLiteStore) GetBatchJob(ctx context.Context, jobID string) (*model.BatchJob, error) {
	var (
		job       model.BatchJob
		status    string
		completed sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, source, status, total_names, classified, excluded,
			duplicates, error, created_at, completed_at
		 FROM batch_jobs WHERE id = ?`,
		jobID,
	).Scan(&job.ID, &job.Source, &status, &job.TotalNames, &job.Classified,
		&job.Excluded, &job.Duplicates, &job.Error, &job.CreatedAt, &completed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get batch job %s", jobID)
	}
	job.Status = model.BatchJobStatus(status)
	if completed.Valid {
		t := completed.Time
		job.CompletedAt = &t
	}
	return &job, nil
}

// nullableString converts empty JSON payloads to NULL.
func nullableString(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
