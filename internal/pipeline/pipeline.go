// Package pipeline runs the full classification flow over a payee input
// file: keyword exclusion, deduplication, AI classification of the unique
// remainder, then persistence.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/payee-cli/internal/dedupe"
	"github.com/sells-group/payee-cli/internal/exclusion"
	"github.com/sells-group/payee-cli/internal/fetcher"
	"github.com/sells-group/payee-cli/internal/model"
	"github.com/sells-group/payee-cli/internal/store"
)

// DefaultConcurrency bounds parallel single-message classification calls.
const DefaultConcurrency = 4

// Classifier is the AI classification dependency.
type Classifier interface {
	ClassifyName(ctx context.Context, name string) (model.ClassificationResult, error)
	ClassifyBatch(ctx context.Context, items []model.QueueItem) (map[int]model.ClassificationResult, error)
}

// Options tunes a pipeline run.
type Options struct {
	// Concurrency bounds parallel ClassifyName calls. Ignored with UseBatchAPI.
	Concurrency int
	// UseBatchAPI routes classification through the Message Batches API.
	UseBatchAPI bool
}

// Pipeline wires the classification stages together. The store may be nil,
// in which case nothing is persisted.
type Pipeline struct {
	engine     *dedupe.Engine
	classifier Classifier
	store      store.Store
	opts       Options
}

// New creates a Pipeline.
func New(engine *dedupe.Engine, classifier Classifier, st store.Store, opts Options) *Pipeline {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	return &Pipeline{
		engine:     engine,
		classifier: classifier,
		store:      st,
		opts:       opts,
	}
}

// Result is the outcome of one pipeline run.
type Result struct {
	Job     *model.BatchJob
	Results []model.PayeeClassification
	Groups  []model.DuplicateGroup
	// Failed counts names whose classification call did not produce a
	// verdict. Duplicates of a failed canonical are included.
	Failed int
}

// Run classifies every payee in the dataset. Store failures do not abort the
// run: the in-memory results are returned alongside the error.
func (p *Pipeline) Run(ctx context.Context, ds *fetcher.Dataset) (*Result, error) {
	log := zap.L().With(zap.String("source", ds.Source))
	start := time.Now()

	job := &model.BatchJob{
		ID:         uuid.NewString(),
		Source:     ds.Source,
		Status:     model.BatchStatusRunning,
		TotalNames: len(ds.Records),
		CreatedAt:  time.Now().UTC(),
	}

	var storeErr error
	if p.store != nil {
		if err := p.store.CreateBatchJob(ctx, job); err != nil {
			log.Warn("pipeline: create batch job failed", zap.Error(err))
			storeErr = err
		}
	}

	// Stage 1: keyword exclusion. Excluded names are businesses by
	// definition of the keyword tables and skip the AI entirely.
	results := make([]model.PayeeClassification, 0, len(ds.Records))
	var kept []fetcher.Record
	for _, rec := range ds.Records {
		check := exclusion.Check(rec.Name)
		if !check.IsExcluded {
			kept = append(kept, rec)
			continue
		}
		results = append(results, model.PayeeClassification{
			ID:        uuid.NewString(),
			PayeeName: rec.Name,
			Result: model.ClassificationResult{
				Classification:  model.ClassificationBusiness,
				Confidence:      100,
				Reasoning:       fmt.Sprintf("Matched exclusion keywords: %s", strings.Join(check.MatchedKeywords, ", ")),
				ProcessingTier:  model.TierKeywordExclusion,
				MatchedKeywords: check.MatchedKeywords,
			},
			Timestamp:    time.Now().UTC(),
			RowIndex:     rec.Index,
			OriginalData: rec.Fields,
		})
	}
	excluded := len(results)
	log.Info("pipeline: exclusion stage done",
		zap.Int("excluded", excluded),
		zap.Int("remaining", len(kept)),
	)

	// Stage 2: dedupe the remainder. Queue positions index into kept.
	names := make([]string, len(kept))
	rows := make([]map[string]string, len(kept))
	for i, rec := range kept {
		names[i] = rec.Name
		rows[i] = rec.Fields
	}
	batch := p.engine.ProcessBatch(names, rows)
	log.Info("pipeline: dedupe stage done",
		zap.Int("unique", len(batch.Queue)),
		zap.Int("duplicates", len(batch.Duplicates)),
		zap.Int("fuzzy_links", len(batch.Links)),
	)

	// Stage 3: classify each unique name once.
	verdicts, err := p.classify(ctx, batch.Queue)
	if err != nil {
		job.Status = model.BatchStatusFailed
		job.Error = err.Error()
		if p.store != nil {
			if cerr := p.store.CompleteBatchJob(ctx, job); cerr != nil {
				log.Warn("pipeline: complete batch job failed", zap.Error(cerr))
			}
		}
		return nil, err
	}

	// Canonical results are shared with their duplicates.
	byCanonical := make(map[string]model.PayeeClassification)
	failed := 0
	aiClassified := 0
	for _, item := range batch.Queue {
		verdict, ok := verdicts[item.OriginalIndex]
		if !ok {
			failed++
			log.Warn("pipeline: no verdict for payee", zap.String("name", item.Name))
			continue
		}
		rec := kept[item.OriginalIndex]
		pc := model.PayeeClassification{
			ID:           uuid.NewString(),
			PayeeName:    item.Name,
			Result:       verdict,
			Timestamp:    time.Now().UTC(),
			RowIndex:     rec.Index,
			OriginalData: rec.Fields,
		}
		results = append(results, pc)
		byCanonical[item.NormalizedName] = pc
		aiClassified++
	}

	for _, dup := range batch.Duplicates {
		canonical, ok := byCanonical[dup.Canonical]
		if !ok {
			failed++
			continue
		}
		rec := kept[dup.RowIndex]
		copied := dedupe.CopyForDuplicate(canonical, dup)
		copied.RowIndex = rec.Index
		results = append(results, copied)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].RowIndex < results[j].RowIndex })

	// Stage 4: persist results and discovered links.
	job.Status = model.BatchStatusCompleted
	job.Classified = aiClassified
	job.Excluded = excluded
	job.Duplicates = len(batch.Duplicates)
	if p.store != nil {
		if err := p.store.SaveClassifications(ctx, job.ID, results); err != nil {
			log.Warn("pipeline: save classifications failed", zap.Error(err))
			storeErr = err
		}
		if err := p.store.UpsertDedupeLinks(ctx, batch.Links); err != nil {
			log.Warn("pipeline: upsert dedupe links failed", zap.Error(err))
			storeErr = err
		}
		if err := p.store.CompleteBatchJob(ctx, job); err != nil {
			log.Warn("pipeline: complete batch job failed", zap.Error(err))
			storeErr = err
		}
	}

	log.Info("pipeline: run complete",
		zap.String("job_id", job.ID),
		zap.Int("total", len(ds.Records)),
		zap.Int("excluded", excluded),
		zap.Int("duplicates", len(batch.Duplicates)),
		zap.Int("failed", failed),
		zap.Duration("elapsed", time.Since(start)),
	)

	res := &Result{
		Job:     job,
		Results: results,
		Groups:  batch.Groups,
		Failed:  failed,
	}
	if storeErr != nil {
		return res, eris.Wrap(storeErr, "pipeline: persistence")
	}
	return res, nil
}

// classify fans the queue out to the classifier, either via the Batches API
// or as bounded concurrent single calls. Per-name failures are tolerated and
// surface as missing keys.
func (p *Pipeline) classify(ctx context.Context, queue []model.QueueItem) (map[int]model.ClassificationResult, error) {
	if len(queue) == 0 {
		return map[int]model.ClassificationResult{}, nil
	}

	if p.opts.UseBatchAPI {
		verdicts, err := p.classifier.ClassifyBatch(ctx, queue)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: batch classification")
		}
		return verdicts, nil
	}

	var mu sync.Mutex
	verdicts := make(map[int]model.ClassificationResult, len(queue))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Concurrency)
	for _, item := range queue {
		g.Go(func() error {
			verdict, err := p.classifier.ClassifyName(gCtx, item.Name)
			if err != nil {
				if gCtx.Err() != nil {
					return gCtx.Err()
				}
				zap.L().Warn("pipeline: classification failed",
					zap.String("name", item.Name),
					zap.Error(err),
				)
				return nil
			}
			mu.Lock()
			verdicts[item.OriginalIndex] = verdict
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "pipeline: classification")
	}
	return verdicts, nil
}
