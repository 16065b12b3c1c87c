// Package match re-aligns classification results with payee names when
// direct index correspondence cannot be trusted, using exact then fuzzy
// normalized-name matching.
package match

import (
	"sort"

	"github.com/sells-group/payee-cli/internal/model"
	"github.com/sells-group/payee-cli/internal/normalize"
	"github.com/sells-group/payee-cli/internal/similarity"
)

// DefaultThreshold is the minimum combined similarity for a fuzzy match.
const DefaultThreshold = 80.0

// NoPreferredIndex disables row-index preference in Find.
const NoPreferredIndex = -1

// Matcher finds classification results by payee name.
type Matcher struct {
	threshold float64
	weights   similarity.Weights
}

// New creates a Matcher with the given fuzzy threshold. It fails fast when
// the weights do not sum to 1.0.
func New(threshold float64, weights similarity.Weights) (*Matcher, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	return &Matcher{threshold: threshold, weights: weights}, nil
}

// NewDefault creates a Matcher with the default threshold and weights.
func NewDefault() *Matcher {
	m, _ := New(DefaultThreshold, similarity.DefaultWeights())
	return m
}

// Find returns the result matching targetName, preferring exact normalized
// matches over fuzzy ones. Among exact matches the one at preferredIndex
// wins when present, otherwise the first in list order. With no exact match,
// candidates clearing the threshold are ranked by combined similarity
// descending, again preferring preferredIndex when present. Returns nil when
// nothing clears the threshold — there is no forced fallback match. Pass
// NoPreferredIndex to disable index preference.
func (m *Matcher) Find(results []model.PayeeClassification, targetName string, preferredIndex int) *model.PayeeClassification {
	target := normalize.Name(targetName).Normalized

	var exact []*model.PayeeClassification
	for i := range results {
		if normalize.Name(results[i].PayeeName).Normalized == target {
			exact = append(exact, &results[i])
		}
	}
	if len(exact) > 0 {
		if preferredIndex != NoPreferredIndex {
			for _, r := range exact {
				if r.RowIndex == preferredIndex {
					return r
				}
			}
		}
		return exact[0]
	}

	type candidate struct {
		result *model.PayeeClassification
		score  float64
	}
	var candidates []candidate
	for i := range results {
		scores, err := similarity.CombinedWeighted(
			target, normalize.Name(results[i].PayeeName).Normalized, m.weights)
		if err != nil {
			return nil
		}
		if scores.Combined >= m.threshold {
			candidates = append(candidates, candidate{&results[i], scores.Combined})
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if preferredIndex != NoPreferredIndex {
		for _, c := range candidates {
			if c.result.RowIndex == preferredIndex {
				return c.result
			}
		}
	}
	return candidates[0].result
}
