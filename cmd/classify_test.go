package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/payee-cli/internal/model"
	"github.com/sells-group/payee-cli/internal/pipeline"
)

func TestNewRunSummary(t *testing.T) {
	result := &pipeline.Result{
		Job: &model.BatchJob{
			ID:         "job-1",
			TotalNames: 5,
			Classified: 2,
			Excluded:   1,
			Duplicates: 1,
		},
		Results: []model.PayeeClassification{{}, {}, {}, {}},
		Failed:  1,
	}

	s := newRunSummary(result)
	assert.Equal(t, "job-1", s.JobID)
	// Total reflects the input row count, not the surviving results.
	assert.Equal(t, 5, s.Total)
	assert.Equal(t, 2, s.Classified)
	assert.Equal(t, 1, s.Excluded)
	assert.Equal(t, 1, s.Duplicates)
	assert.Equal(t, 1, s.Failed)
}

func TestNewRunSummaryNoJob(t *testing.T) {
	result := &pipeline.Result{
		Results: []model.PayeeClassification{{}, {}},
	}

	s := newRunSummary(result)
	assert.Empty(t, s.JobID)
	assert.Equal(t, 2, s.Total)
	assert.Zero(t, s.Failed)
}
