// Package exclusion flags payee names containing institutional or business
// keywords so they can skip AI classification entirely.
package exclusion

import (
	"sort"
	"strings"
	"unicode"
)

// Result reports whether a name matched the keyword tables and which
// keywords matched.
type Result struct {
	IsExcluded      bool     `json:"is_excluded"`
	MatchedKeywords []string `json:"matched_keywords"`
}

// FilterResult splits a batch of names into keyword-excluded and valid sets.
type FilterResult struct {
	ValidNames    []string `json:"valid_names"`
	ExcludedNames []string `json:"excluded_names"`
}

// keywords is the merged, sorted, duplicate-free keyword list.
var keywords = buildKeywords()

func buildKeywords() []string {
	seen := make(map[string]struct{})
	var all []string
	for _, table := range [][]string{
		governmentKeywords, businessKeywords, industryKeywords, titleKeywords,
	} {
		for _, kw := range table {
			if _, dup := seen[kw]; dup {
				continue
			}
			seen[kw] = struct{}{}
			all = append(all, kw)
		}
	}
	sort.Strings(all)
	return all
}

// Keywords returns a copy of the full keyword list.
func Keywords() []string {
	out := make([]string, len(keywords))
	copy(out, keywords)
	return out
}

// Check tests a name against the keyword tables. Single-word keywords match
// whole tokens only; multi-word keywords match as substrings. Matching is
// case-insensitive. Blank input yields a not-excluded result; Check never
// fails.
func Check(name string) Result {
	upper := strings.ToUpper(strings.TrimSpace(name))
	if upper == "" {
		return Result{MatchedKeywords: []string{}}
	}

	tokens := make(map[string]struct{})
	for _, tok := range strings.Fields(upper) {
		tok = strings.TrimFunc(tok, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if tok != "" {
			tokens[tok] = struct{}{}
		}
	}

	var matched []string
	for _, kw := range keywords {
		if strings.ContainsRune(kw, ' ') {
			if strings.Contains(upper, kw) {
				matched = append(matched, kw)
			}
			continue
		}
		if _, ok := tokens[kw]; ok {
			matched = append(matched, kw)
		}
	}

	if matched == nil {
		matched = []string{}
	}
	return Result{IsExcluded: len(matched) > 0, MatchedKeywords: matched}
}

// FilterNames partitions names into valid and excluded lists, preserving
// input order. Empty and whitespace-only entries are skipped entirely and
// appear in neither list.
func FilterNames(names []string) FilterResult {
	out := FilterResult{ValidNames: []string{}, ExcludedNames: []string{}}
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			continue
		}
		if Check(name).IsExcluded {
			out.ExcludedNames = append(out.ExcludedNames, name)
		} else {
			out.ValidNames = append(out.ValidNames, name)
		}
	}
	return out
}
