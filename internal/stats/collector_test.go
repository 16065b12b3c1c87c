package stats

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/payee-cli/internal/model"
)

type fakeJobLister struct {
	jobs []model.BatchJob
	err  error
}

func (f *fakeJobLister) ListBatchJobs(ctx context.Context, since time.Time, limit int) ([]model.BatchJob, error) {
	return f.jobs, f.err
}

func TestCollect(t *testing.T) {
	lister := &fakeJobLister{jobs: []model.BatchJob{
		{Status: model.BatchStatusCompleted, TotalNames: 100, Classified: 60, Excluded: 25, Duplicates: 15},
		{Status: model.BatchStatusCompleted, TotalNames: 50, Classified: 40, Excluded: 5, Duplicates: 5},
		{Status: model.BatchStatusFailed, TotalNames: 10},
		{Status: model.BatchStatusRunning, TotalNames: 20},
	}}

	snap, err := NewCollector(lister).Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 4, snap.JobsTotal)
	assert.Equal(t, 2, snap.JobsCompleted)
	assert.Equal(t, 1, snap.JobsFailed)
	assert.Equal(t, 1, snap.JobsRunning)
	assert.InDelta(t, 0.25, snap.JobFailRate, 1e-9)

	assert.Equal(t, 180, snap.NamesTotal)
	assert.Equal(t, 100, snap.Classified)
	assert.Equal(t, 30, snap.Excluded)
	assert.Equal(t, 20, snap.Duplicates)
	assert.InDelta(t, 50.0/180.0, snap.DedupeRate, 1e-9)

	assert.Equal(t, 24, snap.LookbackHours)
}

func TestCollectEmpty(t *testing.T) {
	snap, err := NewCollector(&fakeJobLister{}).Collect(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, DefaultLookbackHours, snap.LookbackHours)
	assert.Zero(t, snap.JobsTotal)
	assert.Zero(t, snap.JobFailRate)
	assert.Zero(t, snap.DedupeRate)
}

func TestCollectStoreError(t *testing.T) {
	_, err := NewCollector(&fakeJobLister{err: errors.New("down")}).Collect(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list batch jobs")
}
