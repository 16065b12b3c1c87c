// Package similarity scores string pairs with four independent metrics and a
// weighted composite, each expressed as a percentage in [0,100].
package similarity

import (
	"math"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/antzucaro/matchr"
	"github.com/rotisserie/eris"

	"github.com/sells-group/payee-cli/internal/model"
)

// weightTolerance is the floating tolerance when checking that weights sum to 1.
const weightTolerance = 1e-9

// Weights controls the contribution of each metric to the combined score.
// They must sum to 1.0.
type Weights struct {
	Levenshtein float64 `yaml:"levenshtein" mapstructure:"levenshtein"`
	JaroWinkler float64 `yaml:"jaro_winkler" mapstructure:"jaro_winkler"`
	Dice        float64 `yaml:"dice" mapstructure:"dice"`
	TokenSort   float64 `yaml:"token_sort" mapstructure:"token_sort"`
}

// DefaultWeights returns the standard metric weighting.
func DefaultWeights() Weights {
	return Weights{
		Levenshtein: 0.25,
		JaroWinkler: 0.35,
		Dice:        0.25,
		TokenSort:   0.15,
	}
}

// Validate checks that the weights sum to 1.0. A failing weight set is a
// programmer error and is never silently renormalized.
func (w Weights) Validate() error {
	sum := w.Levenshtein + w.JaroWinkler + w.Dice + w.TokenSort
	if math.Abs(sum-1.0) > weightTolerance {
		return eris.Errorf("similarity: weights must sum to 1.0, got %v", sum)
	}
	return nil
}

// Levenshtein returns 100*(1 - editDistance/maxLen). Identical strings score
// 100 (including both empty); one empty string scores 0.
func Levenshtein(a, b string) float64 {
	if a == b {
		return 100
	}
	la, lb := len([]rune(a)), len([]rune(b))
	if la == 0 || lb == 0 {
		return 0
	}
	maxLen := la
	if lb > maxLen {
		maxLen = lb
	}
	d := levenshtein.ComputeDistance(a, b)
	return 100 * (1 - float64(d)/float64(maxLen))
}

// JaroWinkler returns the Jaro-Winkler similarity scaled to 0-100, with the
// standard common-prefix boost (prefix capped at 4, factor 0.1).
func JaroWinkler(a, b string) float64 {
	if a == b {
		return 100
	}
	if a == "" || b == "" {
		return 0
	}
	return 100 * matchr.JaroWinkler(a, b, false)
}

// Dice returns the Sørensen-Dice bigram coefficient scaled to 0-100. Strings
// shorter than two characters have no bigrams and score 0 against anything
// they do not equal exactly.
func Dice(a, b string) float64 {
	if a == b {
		return 100
	}
	ba, bb := bigrams(a), bigrams(b)
	if len(ba) == 0 || len(bb) == 0 {
		return 0
	}
	var common int
	for g := range ba {
		if _, ok := bb[g]; ok {
			common++
		}
	}
	return 100 * 2 * float64(common) / float64(len(ba)+len(bb))
}

// TokenSort tokenizes on whitespace, sorts the tokens, rejoins, and applies
// the Levenshtein similarity — so word order does not affect the score.
func TokenSort(a, b string) float64 {
	return Levenshtein(sortTokens(a), sortTokens(b))
}

// Combined computes all four metrics with the default weights.
func Combined(a, b string) model.SimilarityScores {
	// Default weights always validate.
	scores, _ := CombinedWeighted(a, b, DefaultWeights())
	return scores
}

// CombinedWeighted computes all four metrics and their weighted sum. It
// fails fast when the supplied weights do not sum to 1.0.
func CombinedWeighted(a, b string, w Weights) (model.SimilarityScores, error) {
	if err := w.Validate(); err != nil {
		return model.SimilarityScores{}, err
	}
	s := model.SimilarityScores{
		Levenshtein: Levenshtein(a, b),
		JaroWinkler: JaroWinkler(a, b),
		Dice:        Dice(a, b),
		TokenSort:   TokenSort(a, b),
	}
	s.Combined = s.Levenshtein*w.Levenshtein +
		s.JaroWinkler*w.JaroWinkler +
		s.Dice*w.Dice +
		s.TokenSort*w.TokenSort
	return s, nil
}

func bigrams(s string) map[string]struct{} {
	r := []rune(s)
	if len(r) < 2 {
		return nil
	}
	set := make(map[string]struct{}, len(r)-1)
	for i := 0; i < len(r)-1; i++ {
		set[string(r[i:i+2])] = struct{}{}
	}
	return set
}

func sortTokens(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}
