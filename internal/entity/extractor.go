package entity

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// Extractor finds personal entity mentions (people, pets, relationship
// references) in free text with regex heuristics. It is deliberately
// conservative: a missed mention costs little, a bogus entity pollutes the
// graph.
type Extractor struct{}

// NewExtractor creates an extractor.
func NewExtractor() *Extractor { return &Extractor{} }

var (
	// Capitalized name, optionally preceded by an honorific, up to three words.
	personPattern = regexp.MustCompile(`\b(?:(?:Dr|Mr|Mrs|Ms|Prof)\.?\s+)?([A-Z][a-z]+(?:\s+[A-Z][a-z]+){0,2})\b`)

	// "my dog Max", "her cat Whiskers"
	petPattern = regexp.MustCompile(`(?i)\b(?:my|his|her|their|our)\s+(?:dog|cat|pet|bird|fish|hamster|rabbit|parrot|turtle|horse)\s+([A-Z][a-z]+)\b`)

	// "my sister", "his boss"
	relationshipRefPattern = regexp.MustCompile(`(?i)\b((?:my|his|her|their|our)\s+(?:mom|mother|dad|father|sister|brother|wife|husband|partner|boyfriend|girlfriend|son|daughter|friend|boss|coworker|neighbor|aunt|uncle|cousin|grandma|grandmother|grandpa|grandfather|niece|nephew|roommate|fiance|fiancee))\b`)
)

// Sentence-leading capitals and common proper-noun false positives.
var extractStopWords = map[string]bool{
	"i": true, "the": true, "a": true, "an": true, "this": true, "that": true,
	"he": true, "she": true, "it": true, "they": true, "we": true, "you": true,
	"monday": true, "tuesday": true, "wednesday": true, "thursday": true,
	"friday": true, "saturday": true, "sunday": true,
	"january": true, "february": true, "march": true, "april": true,
	"may": true, "june": true, "july": true, "august": true,
	"september": true, "october": true, "november": true, "december": true,
	"ok": true, "okay": true, "yes": true, "no": true, "today": true,
	"tomorrow": true, "yesterday": true,
}

const snippetRadius = 25

// Extract returns deduplicated entity mentions sorted by position.
func (x *Extractor) Extract(text string) []Mention {
	var mentions []Mention

	// Pets first so their names are claimed before the person pass sees them.
	petNames := make(map[string]bool)
	for _, m := range petPattern.FindAllStringSubmatchIndex(text, -1) {
		name := text[m[2]:m[3]]
		petNames[strings.ToLower(name)] = true
		mentions = append(mentions, Mention{
			Name:     name,
			Type:     TypePet,
			Position: m[2],
			Snippet:  snippet(text, m[0], m[1]),
		})
	}

	for _, m := range relationshipRefPattern.FindAllStringSubmatchIndex(text, -1) {
		mentions = append(mentions, Mention{
			Name:     text[m[2]:m[3]],
			Type:     TypeRelationshipRef,
			Position: m[2],
			Snippet:  snippet(text, m[0], m[1]),
		})
	}

	for _, m := range personPattern.FindAllStringSubmatchIndex(text, -1) {
		name := text[m[2]:m[3]]
		lowered := strings.ToLower(name)
		if extractStopWords[lowered] || petNames[lowered] {
			continue
		}
		mentions = append(mentions, Mention{
			Name:     name,
			Type:     TypePerson,
			Position: m[2],
			Snippet:  snippet(text, m[0], m[1]),
		})
	}

	// Dedup by (type, lowered name), keeping the earliest occurrence.
	sort.SliceStable(mentions, func(i, j int) bool {
		return mentions[i].Position < mentions[j].Position
	})
	seen := make(map[string]bool, len(mentions))
	out := mentions[:0]
	for _, m := range mentions {
		key := string(m.Type) + ":" + strings.ToLower(m.Name)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, m)
	}
	return out
}

func snippet(text string, start, end int) string {
	from := start - snippetRadius
	if from < 0 {
		from = 0
	}
	// The radius is in bytes; widen to rune boundaries so the cut never
	// splits a multi-byte character.
	for from > 0 && !utf8.RuneStart(text[from]) {
		from--
	}
	to := end + snippetRadius
	if to > len(text) {
		to = len(text)
	}
	for to < len(text) && !utf8.RuneStart(text[to]) {
		to++
	}
	return strings.TrimSpace(text[from:to])
}
