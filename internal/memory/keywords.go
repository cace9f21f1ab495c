package memory

import (
	"regexp"
	"strings"
)

var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "but": true, "by": true, "for": true, "from": true, "had": true,
	"has": true, "have": true, "he": true, "her": true, "his": true, "i": true,
	"in": true, "is": true, "it": true, "its": true, "my": true, "of": true,
	"on": true, "or": true, "our": true, "she": true, "that": true, "the": true,
	"their": true, "they": true, "this": true, "to": true, "was": true,
	"we": true, "were": true, "with": true, "you": true, "your": true,
}

var wordPattern = regexp.MustCompile(`[a-zA-Z0-9_]+`)

// ExtractKeywords tokenizes text into lowercased keywords, dropping stop
// words and single characters. Order preserves first occurrence; duplicates
// collapse.
func ExtractKeywords(text string) []string {
	words := wordPattern.FindAllString(strings.ToLower(text), -1)
	seen := make(map[string]bool, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		if len(w) < 2 || stopWords[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

// KeywordOverlap returns the fraction of query keywords present in the
// candidate set, in [0,1]. An empty query scores zero.
func KeywordOverlap(query, candidate []string) float64 {
	if len(query) == 0 {
		return 0
	}
	set := make(map[string]bool, len(candidate))
	for _, w := range candidate {
		set[w] = true
	}
	matched := 0
	for _, w := range query {
		if set[w] {
			matched++
		}
	}
	return float64(matched) / float64(len(query))
}
