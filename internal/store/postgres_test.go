package store

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/payee-cli/internal/model"
)

func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return &PostgresStore{pool: mock}, mock
}

func TestPostgresSaveClassifications(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO payee_classifications`).
		WithArgs(
			"id-1", "job-1", "Acme Supplies LLC", "ACME SUPPLIES", pgxmock.AnyArg(),
			model.ClassificationBusiness, 95.0, "Office supply wholesaler",
			model.TierAI, `["BANK"]`, 3, pgxmock.AnyArg(), pgxmock.AnyArg(),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.SaveClassifications(context.Background(), "job-1", []model.PayeeClassification{
		{
			ID:        "id-1",
			PayeeName: "Acme Supplies LLC",
			Result: model.ClassificationResult{
				Classification:  model.ClassificationBusiness,
				Confidence:      95.0,
				Reasoning:       "Office supply wholesaler",
				ProcessingTier:  model.TierAI,
				MatchedKeywords: []string{"BANK"},
			},
			RowIndex:     3,
			OriginalData: map[string]string{"Amount": "120.00"},
			Timestamp:    time.Now(),
		},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListClassifications(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	keywords := `["IRS"]`
	mock.ExpectQuery(`SELECT id, payee_name, classification`).
		WithArgs("job-1", 1000).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "payee_name", "classification", "confidence", "reasoning",
			"processing_tier", "matched_keywords", "row_index", "original_data", "created_at",
		}).AddRow(
			"id-1", "Internal Revenue Service", model.ClassificationBusiness, 100.0,
			"Government agency", model.TierKeywordExclusion, &keywords, 0,
			[]byte(`{"Amount":"500.00"}`), created,
		))

	out, err := s.ListClassifications(context.Background(), "job-1", 0)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "Internal Revenue Service", out[0].PayeeName)
	assert.Equal(t, []string{"IRS"}, out[0].Result.MatchedKeywords)
	assert.Equal(t, map[string]string{"Amount": "500.00"}, out[0].OriginalData)
	assert.Equal(t, model.TierKeywordExclusion, out[0].Result.ProcessingTier)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFetchDedupeMap(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT duplicate_normalized, canonical_normalized`).
		WithArgs([]string{"ACME SYSTEM", "ACME SYSTEMS"}).
		WillReturnRows(pgxmock.NewRows([]string{"duplicate_normalized", "canonical_normalized"}).
			AddRow("ACME SYSTEM", "ACME SYSTEMS"))

	got, err := s.FetchDedupeMap(context.Background(), []string{"ACME SYSTEM", "ACME SYSTEMS"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"ACME SYSTEM": "ACME SYSTEMS"}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFetchDedupeMapEmptyInput(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	got, err := s.FetchDedupeMap(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpsertDedupeLinks(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO dedupe_links`).
		WithArgs("ACME SYSTEM", "ACME SYSTEMS", "JOHNSON BROS", "JOHNSON BROTHERS").
		WillReturnResult(pgxmock.NewResult("INSERT", 2))

	err := s.UpsertDedupeLinks(context.Background(), []model.DedupeLink{
		{CanonicalNormalized: "ACME SYSTEMS", DuplicateNormalized: "ACME SYSTEM"},
		{CanonicalNormalized: "JOHNSON BROTHERS", DuplicateNormalized: "JOHNSON BROS"},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpsertDedupeLinksEmpty(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	require.NoError(t, s.UpsertDedupeLinks(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresBatchJobs(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	job := &model.BatchJob{
		ID:         "job-1",
		Source:     "payees.csv",
		Status:     model.BatchStatusRunning,
		TotalNames: 10,
		CreatedAt:  created,
	}

	mock.ExpectExec(`INSERT INTO batch_jobs`).
		WithArgs("job-1", "payees.csv", "running", 10, created).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, s.CreateBatchJob(context.Background(), job))

	job.Status = model.BatchStatusCompleted
	job.Classified = 7
	job.Excluded = 2
	job.Duplicates = 1
	mock.ExpectExec(`UPDATE batch_jobs`).
		WithArgs("completed", 7, 2, 1, "", pgxmock.AnyArg(), "job-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, s.CompleteBatchJob(context.Background(), job))
	require.NotNil(t, job.CompletedAt)

	mock.ExpectQuery(`SELECT id, source, status`).
		WithArgs("job-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "source", "status", "total_names", "classified", "excluded",
			"duplicates", "error", "created_at", "completed_at",
		}).AddRow("job-1", "payees.csv", "completed", 10, 7, 2, 1, "", created, job.CompletedAt))

	got, err := s.GetBatchJob(context.Background(), "job-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.BatchStatusCompleted, got.Status)
	assert.Equal(t, 7, got.Classified)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListBatchJobs(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT id, source, status(?s).*FROM batch_jobs(?s).*WHERE created_at >=`).
		WithArgs(since, 100).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "source", "status", "total_names", "classified", "excluded",
			"duplicates", "error", "created_at", "completed_at",
		}).
			AddRow("job-2", "b.csv", "running", 5, 0, 0, 0, "", since.Add(2*time.Hour), nil).
			AddRow("job-1", "a.csv", "completed", 10, 7, 2, 1, "", since.Add(time.Hour), nil))

	jobs, err := s.ListBatchJobs(context.Background(), since, 100)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "job-2", jobs[0].ID)
	assert.Equal(t, model.BatchStatusRunning, jobs[0].Status)
	assert.Equal(t, 7, jobs[1].Classified)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetBatchJobNotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, source, status`).
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "source", "status", "total_names", "classified", "excluded",
			"duplicates", "error", "created_at", "completed_at",
		}))

	got, err := s.GetBatchJob(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}
