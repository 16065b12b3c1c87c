package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/payee-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestSQLiteClassificationsRoundTrip(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	in := []model.PayeeClassification{
		{
			ID:        "id-2",
			PayeeName: "John Smith",
			Result: model.ClassificationResult{
				Classification: model.ClassificationIndividual,
				Confidence:     88.0,
				Reasoning:      "Personal name pattern",
				ProcessingTier: model.TierAI,
			},
			RowIndex:  1,
			Timestamp: time.Now().UTC(),
		},
		{
			ID:        "id-1",
			PayeeName: "First National Bank",
			Result: model.ClassificationResult{
				Classification:  model.ClassificationBusiness,
				Confidence:      100.0,
				Reasoning:       "Matched exclusion keywords",
				ProcessingTier:  model.TierKeywordExclusion,
				MatchedKeywords: []string{"BANK", "NATIONAL"},
			},
			RowIndex:     0,
			OriginalData: map[string]string{"Amount": "42.00", "Memo": "loan"},
			Timestamp:    time.Now().UTC(),
		},
	}
	require.NoError(t, s.SaveClassifications(ctx, "job-1", in))

	out, err := s.ListClassifications(ctx, "job-1", 0)
	require.NoError(t, err)
	require.Len(t, out, 2)

	// Ordered by row index, not insertion order.
	assert.Equal(t, "First National Bank", out[0].PayeeName)
	assert.Equal(t, []string{"BANK", "NATIONAL"}, out[0].Result.MatchedKeywords)
	assert.Equal(t, map[string]string{"Amount": "42.00", "Memo": "loan"}, out[0].OriginalData)
	assert.Equal(t, "John Smith", out[1].PayeeName)
	assert.Equal(t, model.ClassificationIndividual, out[1].Result.Classification)
	assert.Nil(t, out[1].OriginalData)
}

func TestSQLiteSaveClassificationsUpsert(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	c := model.PayeeClassification{
		ID:        "id-1",
		PayeeName: "Acme LLC",
		Result: model.ClassificationResult{
			Classification: model.ClassificationIndividual,
			Confidence:     50.0,
			ProcessingTier: model.TierAI,
		},
		Timestamp: time.Now().UTC(),
	}
	require.NoError(t, s.SaveClassifications(ctx, "job-1", []model.PayeeClassification{c}))

	c.Result.Classification = model.ClassificationBusiness
	c.Result.Confidence = 97.0
	require.NoError(t, s.SaveClassifications(ctx, "job-1", []model.PayeeClassification{c}))

	out, err := s.ListClassifications(ctx, "job-1", 0)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, model.ClassificationBusiness, out[0].Result.Classification)
	assert.Equal(t, 97.0, out[0].Result.Confidence)
}

func TestSQLiteDedupeLinks(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	got, err := s.FetchDedupeMap(ctx, []string{"ACME SYSTEMS"})
	require.NoError(t, err)
	assert.Empty(t, got)

	links := []model.DedupeLink{
		{CanonicalNormalized: "ACME SYSTEMS", DuplicateNormalized: "ACME SYSTEM"},
		{CanonicalNormalized: "JOHNSON BROTHERS", DuplicateNormalized: "JOHNSON BROS"},
	}
	require.NoError(t, s.UpsertDedupeLinks(ctx, links))

	got, err = s.FetchDedupeMap(ctx, []string{"ACME SYSTEM", "JOHNSON BROS", "UNRELATED"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"ACME SYSTEM":  "ACME SYSTEMS",
		"JOHNSON BROS": "JOHNSON BROTHERS",
	}, got)

	// Re-pointing a duplicate replaces the previous canonical.
	require.NoError(t, s.UpsertDedupeLinks(ctx, []model.DedupeLink{
		{CanonicalNormalized: "ACME", DuplicateNormalized: "ACME SYSTEM"},
	}))
	got, err = s.FetchDedupeMap(ctx, []string{"ACME SYSTEM"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"ACME SYSTEM": "ACME"}, got)
}

func TestSQLiteUpsertDedupeLinksIdempotent(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	links := []model.DedupeLink{
		{CanonicalNormalized: "ACME SYSTEMS", DuplicateNormalized: "ACME SYSTEM"},
	}
	require.NoError(t, s.UpsertDedupeLinks(ctx, links))
	require.NoError(t, s.UpsertDedupeLinks(ctx, links))

	got, err := s.FetchDedupeMap(ctx, []string{"ACME SYSTEM"})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestSQLiteBatchJobs(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	job := &model.BatchJob{
		ID:         "job-1",
		Source:     "payees.xlsx",
		Status:     model.BatchStatusRunning,
		TotalNames: 25,
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, s.CreateBatchJob(ctx, job))

	got, err := s.GetBatchJob(ctx, "job-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.BatchStatusRunning, got.Status)
	assert.Equal(t, 25, got.TotalNames)
	assert.Nil(t, got.CompletedAt)

	job.Status = model.BatchStatusCompleted
	job.Classified = 20
	job.Excluded = 3
	job.Duplicates = 2
	require.NoError(t, s.CompleteBatchJob(ctx, job))

	got, err = s.GetBatchJob(ctx, "job-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.BatchStatusCompleted, got.Status)
	assert.Equal(t, 20, got.Classified)
	assert.NotNil(t, got.CompletedAt)

	missing, err := s.GetBatchJob(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSQLiteListBatchJobs(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, s.CreateBatchJob(ctx, &model.BatchJob{
		ID: "old", Source: "a.csv", Status: model.BatchStatusCompleted,
		CreatedAt: now.Add(-48 * time.Hour),
	}))
	require.NoError(t, s.CreateBatchJob(ctx, &model.BatchJob{
		ID: "recent-1", Source: "b.csv", Status: model.BatchStatusCompleted,
		CreatedAt: now.Add(-2 * time.Hour),
	}))
	require.NoError(t, s.CreateBatchJob(ctx, &model.BatchJob{
		ID: "recent-2", Source: "c.csv", Status: model.BatchStatusRunning,
		CreatedAt: now.Add(-time.Hour),
	}))

	jobs, err := s.ListBatchJobs(ctx, now.Add(-24*time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "recent-2", jobs[0].ID)
	assert.Equal(t, "recent-1", jobs[1].ID)

	jobs, err = s.ListBatchJobs(ctx, now.Add(-24*time.Hour), 1)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "recent-2", jobs[0].ID)
}
