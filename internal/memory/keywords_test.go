package memory

import "testing"

func TestExtractKeywords(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"drops stop words", "I want to learn the guitar", []string{"want", "learn", "guitar"}},
		{"lowercases and dedups", "Guitar guitar GUITAR", []string{"guitar"}},
		{"keeps identifiers", "call parse_config in main.go", []string{"call", "parse_config", "main", "go"}},
		{"empty input", "", nil},
		{"only stop words", "the a an of to", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractKeywords(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("ExtractKeywords(%q) = %v, want %v", tt.in, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("keyword %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestKeywordOverlap(t *testing.T) {
	query := ExtractKeywords("learn guitar chords")
	tests := []struct {
		name string
		doc  string
		want float64
	}{
		{"full overlap", "learning guitar chords takes practice: guitar chords learn", 1.0},
		{"no overlap", "the weather is nice today", 0.0},
		{"partial overlap", "bought a guitar yesterday", 1.0 / 3.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := KeywordOverlap(query, ExtractKeywords(tt.doc))
			if got < tt.want-0.001 || got > tt.want+0.001 {
				t.Errorf("overlap = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestKeywordOverlapEmptyQuery(t *testing.T) {
	if got := KeywordOverlap(nil, ExtractKeywords("anything at all")); got != 0 {
		t.Errorf("empty query overlap = %v, want 0", got)
	}
}
