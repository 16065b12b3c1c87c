// Package stats summarizes classification activity recorded in the store.
package stats

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/payee-cli/internal/model"
)

// DefaultLookbackHours is the window used when callers pass zero.
const DefaultLookbackHours = 24

// Snapshot is a point-in-time summary of classification runs.
type Snapshot struct {
	JobsTotal     int     `json:"jobs_total"`
	JobsCompleted int     `json:"jobs_completed"`
	JobsFailed    int     `json:"jobs_failed"`
	JobsRunning   int     `json:"jobs_running"`
	JobFailRate   float64 `json:"job_fail_rate"`

	NamesTotal int `json:"names_total"`
	Classified int `json:"classified"`
	Excluded   int `json:"excluded"`
	Duplicates int `json:"duplicates"`

	// DedupeRate is the fraction of input names resolved without an API
	// call, via exclusion keywords or duplicate links.
	DedupeRate float64 `json:"dedupe_rate"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// JobLister is the store surface the collector needs.
type JobLister interface {
	ListBatchJobs(ctx context.Context, since time.Time, limit int) ([]model.BatchJob, error)
}

// Collector aggregates batch job rows into snapshots.
type Collector struct {
	store JobLister
}

// NewCollector creates a Collector.
func NewCollector(st JobLister) *Collector {
	return &Collector{store: st}
}

// Collect summarizes jobs created within the lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*Snapshot, error) {
	if lookbackHours <= 0 {
		lookbackHours = DefaultLookbackHours
	}
	snap := &Snapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   time.Now().UTC(),
	}

	cutoff := time.Now().UTC().Add(-time.Duration(lookbackHours) * time.Hour)
	jobs, err := c.store.ListBatchJobs(ctx, cutoff, 10000)
	if err != nil {
		return nil, eris.Wrap(err, "stats: list batch jobs")
	}

	snap.JobsTotal = len(jobs)
	for _, job := range jobs {
		switch job.Status {
		case model.BatchStatusCompleted:
			snap.JobsCompleted++
		case model.BatchStatusFailed:
			snap.JobsFailed++
		case model.BatchStatusRunning:
			snap.JobsRunning++
		}
		snap.NamesTotal += job.TotalNames
		snap.Classified += job.Classified
		snap.Excluded += job.Excluded
		snap.Duplicates += job.Duplicates
	}

	if snap.JobsTotal > 0 {
		snap.JobFailRate = float64(snap.JobsFailed) / float64(snap.JobsTotal)
	}
	if snap.NamesTotal > 0 {
		snap.DedupeRate = float64(snap.Excluded+snap.Duplicates) / float64(snap.NamesTotal)
	}
	return snap, nil
}
