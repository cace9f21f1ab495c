// Package memory implements the recall/decay engine: storing observations,
// ranking them for retrieval, recording outcomes, and compacting old noise
// into summaries.
package memory

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// The closed category vocabulary. Unknown categories are rejected at the
// boundary, not coerced.
const (
	CategoryFact         = "fact"
	CategoryPreference   = "preference"
	CategoryInterest     = "interest"
	CategoryGoal         = "goal"
	CategoryConcern      = "concern"
	CategoryEvent        = "event"
	CategoryRelationship = "relationship"
	CategoryEmotion      = "emotion"
	CategoryRoutine      = "routine"
	CategoryContext      = "context"
)

// ValidCategories is the full vocabulary.
var ValidCategories = map[string]bool{
	CategoryFact:         true,
	CategoryPreference:   true,
	CategoryInterest:     true,
	CategoryGoal:         true,
	CategoryConcern:      true,
	CategoryEvent:        true,
	CategoryRelationship: true,
	CategoryEmotion:      true,
	CategoryRoutine:      true,
	CategoryContext:      true,
}

// PermanentCategories never decay.
var PermanentCategories = map[string]bool{
	CategoryFact:         true,
	CategoryPreference:   true,
	CategoryRelationship: true,
	CategoryRoutine:      true,
	CategoryEvent:        true,
}

// categoryHalfLives gives the decay half-life in days for ephemeral
// categories.
var categoryHalfLives = map[string]float64{
	CategoryInterest: 90,
	CategoryGoal:     90,
	CategoryEmotion:  30,
	CategoryConcern:  30,
	CategoryContext:  14,
}

// AutoDecayMultiplier shortens the half-life of auto-detected memories:
// they earned less trust than explicit ones.
const AutoDecayMultiplier = 0.7

// autoTag marks memories stored by the auto-detection pipeline.
const autoTag = "auto"

// ValidateCategories checks a category list against the vocabulary and
// returns the invalid names.
func ValidateCategories(categories []string) []string {
	var invalid []string
	for _, c := range categories {
		if !ValidCategories[strings.ToLower(strings.TrimSpace(c))] {
			invalid = append(invalid, c)
		}
	}
	return invalid
}

// NormalizeCategories lowercases, trims, and dedups a category list,
// preserving first-seen order.
func NormalizeCategories(categories []string) []string {
	seen := make(map[string]bool, len(categories))
	out := make([]string, 0, len(categories))
	for _, c := range categories {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// IsPermanent reports whether any category in the list is permanent.
func IsPermanent(categories []string) bool {
	for _, c := range categories {
		if PermanentCategories[c] {
			return true
		}
	}
	return false
}

// ErrInvalidCategory is wrapped into category validation failures so callers
// can distinguish them with errors.Is.
var ErrInvalidCategory = fmt.Errorf("invalid category")

// CheckCategories returns a structured rejection listing every invalid name,
// or nil when all categories are known.
func CheckCategories(categories []string) error {
	if len(categories) == 0 {
		return fmt.Errorf("%w: at least one category required", ErrInvalidCategory)
	}
	if invalid := ValidateCategories(categories); len(invalid) > 0 {
		valid := make([]string, 0, len(ValidCategories))
		for c := range ValidCategories {
			valid = append(valid, c)
		}
		sort.Strings(valid)
		return fmt.Errorf("%w: %s (valid: %s)",
			ErrInvalidCategory, strings.Join(invalid, ", "), strings.Join(valid, ", "))
	}
	return nil
}

// DecayWeight returns the recency weight of a memory at the given time.
// Permanent memories hold 1.0 forever. Ephemeral memories halve every
// half-life; with multiple categories the shortest half-life wins. The
// "auto" tag shrinks the half-life by AutoDecayMultiplier.
func DecayWeight(categories, tags []string, createdAt, now time.Time) float64 {
	if IsPermanent(categories) {
		return 1.0
	}

	halfLife := 0.0
	for _, c := range categories {
		if hl, ok := categoryHalfLives[c]; ok {
			if halfLife == 0 || hl < halfLife {
				halfLife = hl
			}
		}
	}
	if halfLife == 0 {
		halfLife = categoryHalfLives[CategoryContext]
	}
	for _, t := range tags {
		if t == autoTag {
			halfLife *= AutoDecayMultiplier
			break
		}
	}

	ageDays := now.Sub(createdAt).Hours() / 24
	if ageDays <= 0 {
		return 1.0
	}
	return math.Pow(0.5, ageDays/halfLife)
}
