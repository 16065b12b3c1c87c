package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/payee-cli/internal/dedupe"
	"github.com/sells-group/payee-cli/internal/fetcher"
	"github.com/sells-group/payee-cli/internal/model"
)

type stubClassifier struct {
	verdicts map[string]model.ClassificationResult
	errNames map[string]bool
	batched  bool
}

func (s *stubClassifier) ClassifyName(ctx context.Context, name string) (model.ClassificationResult, error) {
	if s.errNames[name] {
		return model.ClassificationResult{}, eris.Errorf("api error for %s", name)
	}
	if v, ok := s.verdicts[name]; ok {
		return v, nil
	}
	return model.ClassificationResult{
		Classification: model.ClassificationBusiness,
		Confidence:     75,
		Reasoning:      "default stub verdict",
		ProcessingTier: model.TierAI,
	}, nil
}

func (s *stubClassifier) ClassifyBatch(ctx context.Context, items []model.QueueItem) (map[int]model.ClassificationResult, error) {
	s.batched = true
	out := make(map[int]model.ClassificationResult)
	for _, item := range items {
		v, err := s.ClassifyName(ctx, item.Name)
		if err != nil {
			continue
		}
		out[item.OriginalIndex] = v
	}
	return out, nil
}

type recordingStore struct {
	jobs       []*model.BatchJob
	saved      []model.PayeeClassification
	links      []model.DedupeLink
	saveErr    error
	saveJobID  string
	completed  []*model.BatchJob
	fetchCalls int
}

func (r *recordingStore) SaveClassifications(ctx context.Context, jobID string, list []model.PayeeClassification) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	r.saveJobID = jobID
	r.saved = append(r.saved, list...)
	return nil
}

func (r *recordingStore) ListClassifications(ctx context.Context, jobID string, limit int) ([]model.PayeeClassification, error) {
	return r.saved, nil
}

func (r *recordingStore) FetchDedupeMap(ctx context.Context, normalized []string) (map[string]string, error) {
	r.fetchCalls++
	return map[string]string{}, nil
}

func (r *recordingStore) UpsertDedupeLinks(ctx context.Context, links []model.DedupeLink) error {
	r.links = append(r.links, links...)
	return nil
}

func (r *recordingStore) CreateBatchJob(ctx context.Context, job *model.BatchJob) error {
	r.jobs = append(r.jobs, job)
	return nil
}

func (r *recordingStore) CompleteBatchJob(ctx context.Context, job *model.BatchJob) error {
	r.completed = append(r.completed, job)
	return nil
}

func (r *recordingStore) GetBatchJob(ctx context.Context, jobID string) (*model.BatchJob, error) {
	return nil, nil
}

func (r *recordingStore) ListBatchJobs(ctx context.Context, since time.Time, limit int) ([]model.BatchJob, error) {
	return nil, nil
}

func (r *recordingStore) Migrate(ctx context.Context) error { return nil }
func (r *recordingStore) Close() error                      { return nil }

func testDataset(names ...string) *fetcher.Dataset {
	ds := &fetcher.Dataset{
		Source:      "test.csv",
		Headers:     []string{"Payee", "Amount"},
		PayeeColumn: 0,
	}
	for i, n := range names {
		ds.Records = append(ds.Records, fetcher.Record{
			Index: i,
			Name:  n,
			Fields: map[string]string{
				"Payee":  n,
				"Amount": "10.00",
			},
		})
	}
	return ds
}

func newTestPipeline(t *testing.T, classifier Classifier, st *recordingStore, opts Options) *Pipeline {
	t.Helper()
	engine, err := dedupe.New()
	require.NoError(t, err)
	if st == nil {
		return New(engine, classifier, nil, opts)
	}
	return New(engine, classifier, st, opts)
}

func TestRunFullFlow(t *testing.T) {
	classifier := &stubClassifier{
		verdicts: map[string]model.ClassificationResult{
			"Acme Widgets": {
				Classification: model.ClassificationBusiness,
				Confidence:     95,
				Reasoning:      "Technology company",
				ProcessingTier: model.TierAI,
			},
			"John Smith": {
				Classification: model.ClassificationIndividual,
				Confidence:     90,
				Reasoning:      "Personal name",
				ProcessingTier: model.TierAI,
			},
		},
	}
	st := &recordingStore{}
	p := newTestPipeline(t, classifier, st, Options{})

	ds := testDataset(
		"First National Bank", // keyword excluded
		"Acme Widgets",
		"Acme Widgets LLC", // exact duplicate after normalization
		"John Smith",
		"Acme Widget", // fuzzy duplicate of Acme Widgets
	)
	res, err := p.Run(context.Background(), ds)
	require.NoError(t, err)
	require.Len(t, res.Results, 5)

	byRow := make(map[int]model.PayeeClassification)
	for _, r := range res.Results {
		byRow[r.RowIndex] = r
	}

	assert.Equal(t, model.TierKeywordExclusion, byRow[0].Result.ProcessingTier)
	assert.Equal(t, model.ClassificationBusiness, byRow[0].Result.Classification)
	assert.Equal(t, 100.0, byRow[0].Result.Confidence)

	assert.Equal(t, model.TierAI, byRow[1].Result.ProcessingTier)

	assert.Equal(t, model.TierDuplicate, byRow[2].Result.ProcessingTier)
	assert.Equal(t, model.ClassificationBusiness, byRow[2].Result.Classification)
	assert.NotContains(t, byRow[2].Result.Reasoning, "Fuzzy")

	assert.Equal(t, model.ClassificationIndividual, byRow[3].Result.Classification)

	assert.Equal(t, model.TierDuplicate, byRow[4].Result.ProcessingTier)
	assert.Contains(t, byRow[4].Result.Reasoning, "Fuzzy match with")

	// Persistence happened once each.
	require.Len(t, st.jobs, 1)
	require.Len(t, st.completed, 1)
	assert.Equal(t, model.BatchStatusCompleted, st.completed[0].Status)
	assert.Equal(t, 2, st.completed[0].Classified)
	assert.Equal(t, 1, st.completed[0].Excluded)
	assert.Equal(t, 2, st.completed[0].Duplicates)
	assert.Len(t, st.saved, 5)
	require.Len(t, st.links, 1)
	assert.Equal(t, "ACME WIDGETS", st.links[0].CanonicalNormalized)
	assert.Equal(t, "ACME WIDGET", st.links[0].DuplicateNormalized)
}

func TestRunResultsOrderedByRow(t *testing.T) {
	p := newTestPipeline(t, &stubClassifier{}, nil, Options{})

	ds := testDataset("Acme Widgets", "Internal Revenue Service", "Beta Fabrication")
	res, err := p.Run(context.Background(), ds)
	require.NoError(t, err)

	require.Len(t, res.Results, 3)
	for i, r := range res.Results {
		assert.Equal(t, i, r.RowIndex)
	}
}

func TestRunClassificationFailureSkipsName(t *testing.T) {
	classifier := &stubClassifier{errNames: map[string]bool{"Flaky Vendor": true}}
	p := newTestPipeline(t, classifier, nil, Options{})

	ds := testDataset("Flaky Vendor", "Solid Vendor")
	res, err := p.Run(context.Background(), ds)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "Solid Vendor", res.Results[0].PayeeName)
}

func TestRunFailedCanonicalSkipsDuplicates(t *testing.T) {
	classifier := &stubClassifier{errNames: map[string]bool{"Flaky Vendor": true}}
	p := newTestPipeline(t, classifier, nil, Options{})

	ds := testDataset("Flaky Vendor", "Flaky Vendor LLC")
	res, err := p.Run(context.Background(), ds)
	require.NoError(t, err)

	// Neither the canonical nor its duplicate produced a result.
	assert.Empty(t, res.Results)
	assert.Equal(t, 2, res.Failed)
}

func TestRunBatchAPI(t *testing.T) {
	classifier := &stubClassifier{}
	p := newTestPipeline(t, classifier, nil, Options{UseBatchAPI: true})

	ds := testDataset("Acme Widgets", "Beta Fabrication")
	res, err := p.Run(context.Background(), ds)
	require.NoError(t, err)

	assert.True(t, classifier.batched)
	assert.Len(t, res.Results, 2)
}

func TestRunStoreFailureStillReturnsResults(t *testing.T) {
	st := &recordingStore{saveErr: eris.New("disk full")}
	p := newTestPipeline(t, &stubClassifier{}, st, Options{})

	ds := testDataset("Acme Widgets")
	res, err := p.Run(context.Background(), ds)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	require.NotNil(t, res)
	assert.Len(t, res.Results, 1)
}

func TestRunEmptyDataset(t *testing.T) {
	p := newTestPipeline(t, &stubClassifier{}, nil, Options{})

	res, err := p.Run(context.Background(), testDataset())
	require.NoError(t, err)
	assert.Empty(t, res.Results)
	assert.Empty(t, res.Groups)
}
