// Package dedupe groups exact and near-duplicate payee names so each unique
// payee is classified once per batch and once across runs.
package dedupe

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/payee-cli/internal/model"
	"github.com/sells-group/payee-cli/internal/normalize"
	"github.com/sells-group/payee-cli/internal/similarity"
)

// DefaultThreshold is the combined-similarity percentage above which two
// normalized names are considered duplicates.
const DefaultThreshold = 90.0

// DedupeStore is the durable mapping of duplicate-normalized to
// canonical-normalized names, consulted before intra-batch grouping and
// updated after. Implementations must make UpsertDedupeLinks idempotent by
// duplicate key.
type DedupeStore interface {
	FetchDedupeMap(ctx context.Context, normalized []string) (map[string]string, error)
	UpsertDedupeLinks(ctx context.Context, links []model.DedupeLink) error
}

// Engine performs payee-name deduplication. Canonical assignment is strictly
// first-seen in input order: the first name carrying a given normalized form
// becomes canonical for it, and fuzzy matches join the earliest-seen
// sufficiently-similar canonical. The normalization cache lives on the
// engine value, so its lifetime is one batch, not the process.
type Engine struct {
	threshold float64
	useFuzzy  bool
	weights   similarity.Weights
	normCache map[string]model.NormalizedName
}

// Option configures an Engine.
type Option func(*Engine)

// WithThreshold sets the fuzzy-match combined-similarity threshold.
func WithThreshold(threshold float64) Option {
	return func(e *Engine) { e.threshold = threshold }
}

// WithFuzzy enables or disables the fuzzy second pass. Exact grouping by
// normalized form always runs.
func WithFuzzy(enabled bool) Option {
	return func(e *Engine) { e.useFuzzy = enabled }
}

// WithWeights overrides the similarity metric weights.
func WithWeights(w similarity.Weights) Option {
	return func(e *Engine) { e.weights = w }
}

// New creates an Engine. It fails fast when configured weights do not sum
// to 1.0.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		threshold: DefaultThreshold,
		useFuzzy:  true,
		weights:   similarity.DefaultWeights(),
		normCache: make(map[string]model.NormalizedName),
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.weights.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

// normalizeCached memoizes normalization per unique raw string for the
// lifetime of the engine (one batch).
func (e *Engine) normalizeCached(raw string) model.NormalizedName {
	if nn, ok := e.normCache[raw]; ok {
		return nn
	}
	nn := normalize.Name(raw)
	e.normCache[raw] = nn
	return nn
}

// Duplicate describes one input name that resolved to an earlier canonical.
type Duplicate struct {
	Name          string
	Normalized    string
	Canonical     string // canonical normalized form
	CanonicalName string // raw name that established the canonical
	RowIndex      int
	OriginalData  map[string]string
	Similarity    float64 // combined score against the canonical; 100 for exact
	Exact         bool
}

// BatchResult is the outcome of in-memory batch deduplication.
type BatchResult struct {
	Queue      []model.QueueItem      // unique names requiring classification
	Duplicates []Duplicate            // names resolved to an earlier canonical
	Groups     []model.DuplicateGroup // one entry per canonical, input order
	Links      []model.DedupeLink     // duplicate→canonical edges discovered
}

// group tracks one canonical during a batch run.
type group struct {
	canonical     string // normalized
	canonicalName string // raw
	members       []string
	indices       []int
}

// ProcessBatch deduplicates a batch of names in memory. rows, when supplied,
// is indexed in parallel with names and carried through untouched. Exact
// matches on the normalized form always group; when fuzzy matching is
// enabled, remaining names are compared against already-established
// canonicals in input order and join the first group clearing the threshold.
func (e *Engine) ProcessBatch(names []string, rows []map[string]string) *BatchResult {
	res := &BatchResult{}
	var order []*group
	byNorm := make(map[string]*group)

	rowFor := func(i int) map[string]string {
		if i < len(rows) {
			return rows[i]
		}
		return nil
	}

	for i, name := range names {
		nn := e.normalizeCached(name)

		if g, ok := byNorm[nn.Normalized]; ok {
			g.members = append(g.members, name)
			g.indices = append(g.indices, i)
			res.Duplicates = append(res.Duplicates, Duplicate{
				Name:          name,
				Normalized:    nn.Normalized,
				Canonical:     g.canonical,
				CanonicalName: g.canonicalName,
				RowIndex:      i,
				OriginalData:  rowFor(i),
				Similarity:    100,
				Exact:         true,
			})
			continue
		}

		if e.useFuzzy && nn.Normalized != "" {
			if g, score := e.findFuzzyGroup(nn.Normalized, order); g != nil {
				g.members = append(g.members, name)
				g.indices = append(g.indices, i)
				byNorm[nn.Normalized] = g
				res.Duplicates = append(res.Duplicates, Duplicate{
					Name:          name,
					Normalized:    nn.Normalized,
					Canonical:     g.canonical,
					CanonicalName: g.canonicalName,
					RowIndex:      i,
					OriginalData:  rowFor(i),
					Similarity:    score,
				})
				res.Links = append(res.Links, model.DedupeLink{
					CanonicalNormalized: g.canonical,
					DuplicateNormalized: nn.Normalized,
				})
				continue
			}
		}

		g := &group{
			canonical:     nn.Normalized,
			canonicalName: name,
			members:       []string{name},
			indices:       []int{i},
		}
		order = append(order, g)
		byNorm[nn.Normalized] = g
		res.Queue = append(res.Queue, model.QueueItem{
			Name:           name,
			NormalizedName: nn.Normalized,
			OriginalIndex:  i,
			OriginalData:   rowFor(i),
		})
	}

	for _, g := range order {
		res.Groups = append(res.Groups, model.DuplicateGroup{
			Canonical:  g.canonical,
			Members:    g.members,
			RowIndices: g.indices,
		})
	}
	return res
}

// findFuzzyGroup compares a normalized name against established canonicals
// in input order and returns the first clearing the threshold. Comparing
// canonicals only (not all members) keeps the cost O(n·k); group membership
// is transitive through the canonical, not pairwise.
func (e *Engine) findFuzzyGroup(normalized string, order []*group) (*group, float64) {
	for _, g := range order {
		if g.canonical == "" {
			continue
		}
		scores, err := similarity.CombinedWeighted(normalized, g.canonical, e.weights)
		if err != nil {
			// Weights were validated at construction.
			return nil, 0
		}
		if scores.Combined >= e.threshold {
			return g, scores.Combined
		}
	}
	return nil, 0
}

// DeduplicateNames groups names exactly like ProcessBatch but first consults
// the persistent store for known duplicate→canonical mappings and afterwards
// persists newly discovered links. The store is hit at most twice: one batch
// fetch and one batch upsert, regardless of batch size.
//
// On a store failure the locally computed grouping is still returned
// alongside the error, so callers can proceed in memory while treating the
// links as not durable for this run.
func (e *Engine) DeduplicateNames(ctx context.Context, store DedupeStore, names []string) (map[string][]string, error) {
	normalized := make([]string, len(names))
	uniqueSet := make(map[string]struct{})
	var unique []string
	for i, name := range names {
		nn := e.normalizeCached(name)
		normalized[i] = nn.Normalized
		if _, ok := uniqueSet[nn.Normalized]; !ok {
			uniqueSet[nn.Normalized] = struct{}{}
			unique = append(unique, nn.Normalized)
		}
	}

	var storeErr error
	existing, err := store.FetchDedupeMap(ctx, unique)
	if err != nil {
		storeErr = eris.Wrap(err, "dedupe: fetch dedupe map")
		zap.L().Warn("dedupe: persistent fetch failed, falling back to local grouping",
			zap.Error(err),
		)
		existing = nil
	}

	groups := make(map[string][]string)
	var order []*group
	byNorm := make(map[string]*group)
	var newLinks []model.DedupeLink
	seenCanonical := make(map[string]struct{})

	// Registering the canonical in byNorm keeps a batch name that IS the
	// canonical out of the fuzzy pass, which would otherwise match it against
	// itself and emit a self-referential link.
	addCanonical := func(norm string) {
		if _, ok := seenCanonical[norm]; ok {
			return
		}
		seenCanonical[norm] = struct{}{}
		g := &group{canonical: norm}
		order = append(order, g)
		byNorm[norm] = g
	}

	for i, name := range names {
		norm := normalized[i]

		// Names with a stored mapping group directly under their canonical.
		if canonical, ok := existing[norm]; ok {
			groups[canonical] = append(groups[canonical], name)
			addCanonical(canonical)
			continue
		}

		if g, ok := byNorm[norm]; ok {
			groups[g.canonical] = append(groups[g.canonical], name)
			continue
		}

		if e.useFuzzy && norm != "" {
			if g, _ := e.findFuzzyGroup(norm, order); g != nil {
				byNorm[norm] = g
				groups[g.canonical] = append(groups[g.canonical], name)
				newLinks = append(newLinks, model.DedupeLink{
					CanonicalNormalized: g.canonical,
					DuplicateNormalized: norm,
				})
				continue
			}
		}

		addCanonical(norm)
		groups[norm] = append(groups[norm], name)
	}

	if len(newLinks) > 0 && storeErr == nil {
		if err := store.UpsertDedupeLinks(ctx, newLinks); err != nil {
			storeErr = eris.Wrap(err, "dedupe: upsert dedupe links")
			zap.L().Warn("dedupe: failed to persist links, grouping still returned",
				zap.Int("links", len(newLinks)),
				zap.Error(err),
			)
		}
	}

	return groups, storeErr
}

// CopyForDuplicate builds the classification record for a duplicate from its
// canonical's classification. Fuzzy duplicates get the match percentage
// appended to the reasoning.
func CopyForDuplicate(canonical model.PayeeClassification, dup Duplicate) model.PayeeClassification {
	out := canonical
	out.ID = uuid.New().String()
	out.PayeeName = dup.Name
	out.RowIndex = dup.RowIndex
	out.OriginalData = dup.OriginalData
	out.Result.ProcessingTier = model.TierDuplicate
	if !dup.Exact {
		out.Result.Reasoning = fmt.Sprintf("%s (Fuzzy match with %.1f%% similarity)",
			canonical.Result.Reasoning, dup.Similarity)
	}
	return out
}
