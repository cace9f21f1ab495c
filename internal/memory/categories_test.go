package memory

import (
	"errors"
	"testing"
	"time"
)

func TestDecayWeightPermanent(t *testing.T) {
	created := time.Now().Add(-365 * 24 * time.Hour)
	for _, cat := range []string{CategoryFact, CategoryPreference, CategoryRelationship, CategoryRoutine, CategoryEvent} {
		w := DecayWeight([]string{cat}, nil, created, time.Now())
		if w != 1.0 {
			t.Errorf("category %s: weight = %v, want 1.0 regardless of age", cat, w)
		}
	}
}

func TestDecayWeightHalfLife(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name     string
		category string
		age      time.Duration
		min, max float64
	}{
		{"fresh concern", CategoryConcern, time.Hour, 0.5, 1.0},
		{"concern at one half-life", CategoryConcern, 30 * 24 * time.Hour, 0.49, 0.51},
		{"concern past two half-lives", CategoryConcern, 61 * 24 * time.Hour, 0.0, 0.25},
		{"interest at one half-life", CategoryInterest, 90 * 24 * time.Hour, 0.49, 0.51},
		{"context decays fastest", CategoryContext, 14 * 24 * time.Hour, 0.49, 0.51},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := DecayWeight([]string{tt.category}, nil, now.Add(-tt.age), now)
			if w < tt.min || w > tt.max {
				t.Errorf("weight = %v, want in [%v, %v]", w, tt.min, tt.max)
			}
		})
	}
}

func TestDecayWeightUsesShortestHalfLife(t *testing.T) {
	now := time.Now()
	created := now.Add(-30 * 24 * time.Hour)

	both := DecayWeight([]string{CategoryInterest, CategoryEmotion}, nil, created, now)
	emotionOnly := DecayWeight([]string{CategoryEmotion}, nil, created, now)
	if both != emotionOnly {
		t.Errorf("mixed categories = %v, want emotion's half-life %v", both, emotionOnly)
	}
}

func TestDecayWeightAutoMultiplier(t *testing.T) {
	now := time.Now()
	// The multiplier shortens the half-life, not the weight: interest decays
	// over 90 days normally, 63 days when auto-detected. At 63 days the auto
	// memory sits at its half-life while the manual one is still above it.
	created := now.Add(-63 * 24 * time.Hour)

	auto := DecayWeight([]string{CategoryInterest}, []string{"auto"}, created, now)
	if auto < 0.49 || auto > 0.51 {
		t.Errorf("auto interest at 63 days = %v, want ~0.5", auto)
	}

	manual := DecayWeight([]string{CategoryInterest}, nil, created, now)
	if manual <= auto {
		t.Errorf("manual weight %v should exceed auto weight %v at the same age", manual, auto)
	}
}

func TestDecayWeightAutoDoesNotTouchPermanent(t *testing.T) {
	w := DecayWeight([]string{CategoryFact}, []string{"auto"}, time.Now().Add(-48*time.Hour), time.Now())
	if w != 1.0 {
		t.Errorf("permanent auto memory weight = %v, want 1.0", w)
	}
}

func TestCheckCategories(t *testing.T) {
	if err := CheckCategories([]string{CategoryFact, CategoryGoal}); err != nil {
		t.Fatalf("valid categories rejected: %v", err)
	}
	err := CheckCategories([]string{"fact", "bogus"})
	if err == nil {
		t.Fatal("expected rejection for unknown category")
	}
	if !errors.Is(err, ErrInvalidCategory) {
		t.Errorf("error = %v, want ErrInvalidCategory", err)
	}
	if err := CheckCategories(nil); err == nil {
		t.Error("expected rejection for empty category list")
	}
}

func TestNormalizeCategories(t *testing.T) {
	got := NormalizeCategories([]string{" Fact ", "GOAL", "fact"})
	if len(got) != 2 || got[0] != "fact" || got[1] != "goal" {
		t.Errorf("NormalizeCategories = %v, want [fact goal]", got)
	}
}

func TestIsPermanent(t *testing.T) {
	if !IsPermanent([]string{CategoryGoal, CategoryFact}) {
		t.Error("mixed list containing fact should be permanent")
	}
	if IsPermanent([]string{CategoryGoal, CategoryEmotion}) {
		t.Error("goal+emotion should not be permanent")
	}
}
