// Package detect classifies free conversational text into memory-worthy
// signals. Detectors are pure heuristics; anything they surface still goes
// through the memory engine's confidence routing before storage.
package detect

import (
	"regexp"
	"strings"
)

// Signal is one detected candidate: what to remember, the category it maps
// to, and how confident the detector is.
type Signal struct {
	Content    string  `json:"content"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	Detector   string  `json:"detector"`

	// Valence is set by the emotion detector: negative for distress,
	// positive for joy, zero for everything else.
	Valence float64 `json:"valence,omitempty"`
}

// Classifier examines text and emits zero or more signals.
type Classifier interface {
	Classify(text string) []Signal
	Name() string
}

// Pipeline runs a noise filter and a set of classifiers in order.
type Pipeline struct {
	filter      *NoiseFilter
	classifiers []Classifier
}

// NewPipeline assembles the default detector chain.
func NewPipeline() *Pipeline {
	return &Pipeline{
		filter: NewNoiseFilter(),
		classifiers: []Classifier{
			NewPreferenceDetector(),
			NewGoalDetector(),
			NewEmotionDetector(),
			NewStyleDetector(),
		},
	}
}

// Run filters the text and collects signals from every classifier. Noise
// returns nil without consulting the classifiers.
func (p *Pipeline) Run(text string) []Signal {
	if p.filter.IsNoise(text) {
		return nil
	}
	var out []Signal
	for _, c := range p.classifiers {
		out = append(out, c.Classify(text)...)
	}
	return out
}

// NoiseFilter rejects text too thin to carry a memory.
type NoiseFilter struct {
	minLength int
	minWords  int
	patterns  []*regexp.Regexp
}

// NewNoiseFilter creates the default filter.
func NewNoiseFilter() *NoiseFilter {
	return &NoiseFilter{
		minLength: 15,
		minWords:  4,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)^(ok|okay|yes|no|yeah|yep|nope|sure|thanks|thank you|thx|got it|cool|nice|great|hmm+|uh+|um+)[.!?]*$`),
			regexp.MustCompile(`(?i)^(hi|hello|hey|good morning|good night|bye|goodbye|see you)[.!?]*$`),
			regexp.MustCompile(`^[\s\p{P}\p{S}]*$`),
		},
	}
}

// IsNoise reports whether the text is below the storage threshold.
func (f *NoiseFilter) IsNoise(text string) bool {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < f.minLength {
		return true
	}
	if len(strings.Fields(trimmed)) < f.minWords {
		return true
	}
	for _, p := range f.patterns {
		if p.MatchString(trimmed) {
			return true
		}
	}
	return false
}
