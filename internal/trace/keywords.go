package trace

import (
	"strings"
	"unicode"
)

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true, "this": true,
	"from": true, "into": true, "are": true, "was": true, "were": true, "will": true,
	"shall": true, "should": true, "must": true, "can": true, "could": true, "would": true,
	"have": true, "has": true, "had": true, "not": true, "but": true, "all": true,
	"any": true, "each": true, "per": true, "via": true, "use": true, "using": true,
	"its": true, "their": true, "they": true, "them": true, "our": true, "you": true,
	"your": true, "than": true, "then": true, "when": true, "where": true, "which": true,
	"who": true, "what": true, "how": true, "also": true, "only": true, "been": true,
	"being": true, "such": true, "these": true, "those": true, "there": true, "over": true,
	"under": true, "out": true, "able": true,
}

// keywords returns the distinct lowercase words of text that are at least
// three characters long and not stop words.
func keywords(text string) map[string]bool {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make(map[string]bool, len(words))
	for _, w := range words {
		if len(w) < 3 || stopWords[w] {
			continue
		}
		out[w] = true
	}
	return out
}

// jaccard returns |a ∩ b| / |a ∪ b|, or 0 when both are empty.
func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if b[w] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
