package detect

import (
	"regexp"
	"strings"
)

// PreferenceDetector spots stated likes, dislikes, and habits.
type PreferenceDetector struct {
	strong []*regexp.Regexp
	weak   []*regexp.Regexp
}

// NewPreferenceDetector creates the detector.
func NewPreferenceDetector() *PreferenceDetector {
	return &PreferenceDetector{
		strong: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\bI (?:really )?(?:love|hate|prefer|always|never)\b`),
			regexp.MustCompile(`(?i)\bmy favorite\b`),
			regexp.MustCompile(`(?i)\bI can't stand\b`),
		},
		weak: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\bI (?:like|dislike|enjoy|tend to|usually)\b`),
			regexp.MustCompile(`(?i)\bI'd rather\b`),
		},
	}
}

func (d *PreferenceDetector) Name() string { return "preference" }

// Classify emits at most one preference signal per text.
func (d *PreferenceDetector) Classify(text string) []Signal {
	for _, p := range d.strong {
		if p.MatchString(text) {
			return []Signal{{Content: strings.TrimSpace(text), Category: "preference", Confidence: 0.95, Detector: d.Name()}}
		}
	}
	for _, p := range d.weak {
		if p.MatchString(text) {
			return []Signal{{Content: strings.TrimSpace(text), Category: "preference", Confidence: 0.75, Detector: d.Name()}}
		}
	}
	return nil
}

// GoalDetector spots stated intentions and plans.
type GoalDetector struct {
	strong []*regexp.Regexp
	weak   []*regexp.Regexp
}

// NewGoalDetector creates the detector.
func NewGoalDetector() *GoalDetector {
	return &GoalDetector{
		strong: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\bI (?:will|am going to|plan to|decided to|committed to)\b`),
			regexp.MustCompile(`(?i)\bmy goal is\b`),
		},
		weak: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\bI (?:want to|would like to|hope to|need to|should)\b`),
			regexp.MustCompile(`(?i)\bI'm (?:trying|hoping|planning) to\b`),
		},
	}
}

func (d *GoalDetector) Name() string { return "goal" }

// Classify emits at most one goal signal per text.
func (d *GoalDetector) Classify(text string) []Signal {
	for _, p := range d.strong {
		if p.MatchString(text) {
			return []Signal{{Content: strings.TrimSpace(text), Category: "goal", Confidence: 0.9, Detector: d.Name()}}
		}
	}
	for _, p := range d.weak {
		if p.MatchString(text) {
			return []Signal{{Content: strings.TrimSpace(text), Category: "goal", Confidence: 0.72, Detector: d.Name()}}
		}
	}
	return nil
}

// EmotionDetector estimates emotional valence from a small lexicon and emits
// an emotion signal when the text clears the intensity threshold.
type EmotionDetector struct {
	positive map[string]float64
	negative map[string]float64
}

// NewEmotionDetector creates the detector with the built-in lexicon.
func NewEmotionDetector() *EmotionDetector {
	return &EmotionDetector{
		positive: map[string]float64{
			"happy": 0.8, "excited": 0.9, "thrilled": 1.0, "glad": 0.6,
			"grateful": 0.8, "proud": 0.8, "relieved": 0.6, "love": 0.9,
			"amazing": 0.8, "wonderful": 0.8, "great": 0.5, "good": 0.3,
			"delighted": 0.9, "hopeful": 0.6,
		},
		negative: map[string]float64{
			"sad": 0.8, "angry": 0.9, "furious": 1.0, "upset": 0.7,
			"worried": 0.7, "anxious": 0.8, "scared": 0.8, "stressed": 0.8,
			"frustrated": 0.8, "disappointed": 0.7, "terrible": 0.8,
			"awful": 0.8, "hate": 0.9, "miserable": 0.9, "devastated": 1.0,
			"nervous": 0.6, "afraid": 0.8, "lonely": 0.8,
		},
	}
}

func (d *EmotionDetector) Name() string { return "emotion" }

// emotionThreshold is the minimum absolute valence to emit a signal.
const emotionThreshold = 0.60

// Valence returns the net emotional charge of the text in [-1, 1]. Positive
// and negative word scores cancel; a simple "not"/"n't" before a word flips
// its sign.
func (d *EmotionDetector) Valence(text string) float64 {
	words := strings.Fields(strings.ToLower(text))
	var score float64
	var hits int
	for i, raw := range words {
		w := strings.Trim(raw, ".,!?;:'\"")
		var v float64
		if p, ok := d.positive[w]; ok {
			v = p
		} else if n, ok := d.negative[w]; ok {
			v = -n
		} else {
			continue
		}
		if i > 0 && negates(words[i-1]) {
			v = -v
		}
		score += v
		hits++
	}
	if hits == 0 {
		return 0
	}
	avg := score / float64(hits)
	if avg > 1 {
		avg = 1
	} else if avg < -1 {
		avg = -1
	}
	return avg
}

func negates(w string) bool {
	w = strings.Trim(w, ".,!?;:'\"")
	return w == "not" || w == "never" || w == "no" || strings.HasSuffix(w, "n't")
}

// Classify emits an emotion signal when valence intensity clears the
// threshold. Confidence scales with intensity.
func (d *EmotionDetector) Classify(text string) []Signal {
	v := d.Valence(text)
	intensity := v
	if intensity < 0 {
		intensity = -intensity
	}
	if intensity < emotionThreshold {
		return nil
	}
	return []Signal{{
		Content:    strings.TrimSpace(text),
		Category:   "emotion",
		Confidence: 0.5 + intensity/2,
		Detector:   d.Name(),
		Valence:    v,
	}}
}

// StyleDetector spots statements about how the user wants to be spoken to.
type StyleDetector struct {
	patterns []*regexp.Regexp
}

// NewStyleDetector creates the detector.
func NewStyleDetector() *StyleDetector {
	return &StyleDetector{
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(?:please )?(?:be|keep it) (?:brief|short|concise|detailed|thorough|formal|casual)\b`),
			regexp.MustCompile(`(?i)\b(?:don't|do not|stop) (?:use|using|be|being) \w+`),
			regexp.MustCompile(`(?i)\bcall me \w+`),
			regexp.MustCompile(`(?i)\bI prefer (?:short|long|detailed|simple|technical) (?:answers|responses|explanations)\b`),
		},
	}
}

func (d *StyleDetector) Name() string { return "style" }

// Classify emits a preference signal for communication-style statements.
func (d *StyleDetector) Classify(text string) []Signal {
	for _, p := range d.patterns {
		if p.MatchString(text) {
			return []Signal{{
				Content:    strings.TrimSpace(text),
				Category:   "preference",
				Confidence: 0.85,
				Detector:   d.Name(),
			}}
		}
	}
	return nil
}
