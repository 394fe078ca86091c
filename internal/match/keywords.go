package match

import (
	"sort"
	"strings"
	"unicode"
)

// stopWords are tokens too common to carry matching signal.
var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {},
	"you": {}, "all": {}, "can": {}, "had": {}, "her": {}, "was": {},
	"one": {}, "our": {}, "out": {}, "day": {}, "get": {}, "has": {},
	"him": {}, "his": {}, "how": {}, "its": {}, "may": {}, "new": {},
	"now": {}, "old": {}, "see": {}, "two": {}, "way": {}, "who": {},
	"this": {}, "that": {}, "with": {}, "from": {}, "they": {},
	"will": {}, "have": {}, "been": {}, "were": {}, "their": {},
	"would": {}, "there": {}, "which": {}, "about": {}, "other": {},
	"into": {}, "more": {}, "these": {}, "than": {}, "also": {},
	"must": {}, "shall": {}, "should": {}, "such": {}, "each": {},
	"when": {}, "where": {}, "what": {}, "your": {}, "under": {},
	"through": {}, "between": {}, "including": {}, "provide": {},
	"provided": {}, "within": {}, "award": {}, "application": {},
	"applications": {}, "applicants": {}, "program": {}, "programs": {},
	"funding": {}, "opportunity": {}, "opportunities": {},
}

// tokenize splits text into lowercase word tokens.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// ExtractKeywords returns the significant tokens of text, lowercased,
// de-duplicated, and ordered by descending frequency (first occurrence
// breaks ties). Tokens must be longer than 3 characters and not stop
// words.
func ExtractKeywords(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	counts := map[string]int{}
	firstSeen := map[string]int{}
	for i, tok := range tokenize(text) {
		if len(tok) <= 3 {
			continue
		}
		if _, stop := stopWords[tok]; stop {
			continue
		}
		if _, ok := counts[tok]; !ok {
			firstSeen[tok] = i
		}
		counts[tok]++
	}
	out := make([]string, 0, len(counts))
	for tok := range counts {
		out = append(out, tok)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if counts[out[i]] != counts[out[j]] {
			return counts[out[i]] > counts[out[j]]
		}
		return firstSeen[out[i]] < firstSeen[out[j]]
	})
	return out
}

// KeywordSet builds a membership set from a keyword list.
func KeywordSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			set[w] = struct{}{}
		}
	}
	return set
}

// overlapCount returns how many words appear in set.
func overlapCount(words []string, set map[string]struct{}) int {
	n := 0
	for _, w := range words {
		if _, ok := set[w]; ok {
			n++
		}
	}
	return n
}

// overlapScore computes |A ∩ B| / max(|A|, |B|) over two keyword lists.
// Returns 0 when either list is empty.
func overlapScore(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	setB := KeywordSet(b)
	matched := overlapCount(a, setB)
	den := len(a)
	if len(b) > den {
		den = len(b)
	}
	return float64(matched) / float64(den)
}

// containsFold reports whether haystack contains needle, case
// insensitively.
func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
