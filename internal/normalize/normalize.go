// Package normalize canonicalizes raw payee names into a comparable form.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/payee-cli/internal/model"
)

// stripMarks decomposes to NFD and removes combining diacritical marks, so
// "Café" and "Cafe" normalize identically.
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

var (
	punctuationRe = regexp.MustCompile("[-\\\\',./#!$%^&*;:{}=_`~()]")
	whitespaceRe  = regexp.MustCompile(`\s+`)
	entityWordsRe = regexp.MustCompile(`\b(CORPORATION|INCORPORATED|LIMITED|COMPANY)\b`)
)

// legalSuffixes are entity suffixes stripped when they appear as the final
// token of an already-cleaned name.
var legalSuffixes = map[string]struct{}{
	"LLC": {}, "INC": {}, "CORP": {}, "LTD": {}, "LP": {}, "LLP": {},
	"PC": {}, "PLLC": {}, "CORPORATION": {}, "INCORPORATED": {},
	"LIMITED": {}, "COMPANY": {},
}

// Name canonicalizes a raw payee name: uppercase, diacritics stripped,
// punctuation replaced with spaces, whitespace collapsed, trailing legal
// suffix tokens removed, then standalone entity words removed. Normalization
// is idempotent and never fails; any input yields a best-effort result.
func Name(raw string) model.NormalizedName {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if stripped, _, err := transform.String(stripMarks, s); err == nil {
		s = stripped
	}
	s = punctuationRe.ReplaceAllString(s, " ")
	s = strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
	s = stripTrailingSuffix(s)
	s = entityWordsRe.ReplaceAllString(s, " ")
	s = strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
	return model.NormalizedName{Normalized: s, Hash: Hash(s)}
}

// stripTrailingSuffix removes trailing legal-suffix tokens, one at a time,
// until the last token is no longer a suffix. Stripping to a fixpoint keeps
// normalization idempotent for stacked suffixes like "Acme Corp LLC".
func stripTrailingSuffix(s string) string {
	for {
		i := strings.LastIndexByte(s, ' ')
		if i < 0 {
			if _, ok := legalSuffixes[s]; ok {
				return ""
			}
			return s
		}
		if _, ok := legalSuffixes[s[i+1:]]; !ok {
			return s
		}
		s = strings.TrimSpace(s[:i])
	}
}

// Hash returns the SHA-256 hex digest of a normalized name. Deterministic
// across runs, processes, and machines.
func Hash(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
