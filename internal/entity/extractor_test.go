package entity

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func findMention(mentions []Mention, t Type, name string) *Mention {
	for i := range mentions {
		if mentions[i].Type == t && mentions[i].Name == name {
			return &mentions[i]
		}
	}
	return nil
}

func TestExtractPerson(t *testing.T) {
	got := NewExtractor().Extract("Had lunch with Sarah today")
	if m := findMention(got, TypePerson, "Sarah"); m == nil {
		t.Fatalf("Sarah not extracted from %v", got)
	}
}

func TestExtractPetClaimsName(t *testing.T) {
	got := NewExtractor().Extract("my dog Max chewed the couch again")

	if m := findMention(got, TypePet, "Max"); m == nil {
		t.Fatalf("Max not extracted as pet: %v", got)
	}
	if m := findMention(got, TypePerson, "Max"); m != nil {
		t.Error("pet name also extracted as person")
	}
}

func TestExtractRelationshipRef(t *testing.T) {
	got := NewExtractor().Extract("my sister Sarah is visiting next week")

	if m := findMention(got, TypeRelationshipRef, "my sister"); m == nil {
		t.Fatalf("relationship reference not extracted: %v", got)
	}
	if m := findMention(got, TypePerson, "Sarah"); m == nil {
		t.Fatalf("co-occurring person not extracted: %v", got)
	}
}

func TestExtractSkipsStopWords(t *testing.T) {
	got := NewExtractor().Extract("Monday I will call. The plan is ready. Yes.")
	for _, m := range got {
		if m.Type == TypePerson {
			t.Errorf("false positive person %q", m.Name)
		}
	}
}

func TestExtractDedupsKeepingEarliest(t *testing.T) {
	got := NewExtractor().Extract("Sarah called. Later Sarah called again.")

	count := 0
	var pos int
	for _, m := range got {
		if m.Type == TypePerson && m.Name == "Sarah" {
			count++
			pos = m.Position
		}
	}
	if count != 1 {
		t.Fatalf("Sarah extracted %d times, want 1", count)
	}
	if pos != 0 {
		t.Errorf("kept occurrence at %d, want earliest (0)", pos)
	}
}

func TestExtractSnippetStaysValidUTF8(t *testing.T) {
	// Shift the mention across byte offsets so the snippet window lands in
	// the middle of a two-byte rune at least once.
	for pad := 0; pad < 4; pad++ {
		text := strings.Repeat("a", pad) + strings.Repeat("é", 15) + " my sister Sarah visited the café"
		for _, m := range NewExtractor().Extract(text) {
			if !utf8.ValidString(m.Snippet) {
				t.Errorf("pad %d: snippet for %q is not valid UTF-8: %q", pad, m.Name, m.Snippet)
			}
		}
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		t    Type
		want string
	}{
		{"honorific", "Dr. Smith", TypePerson, "smith"},
		{"possessive", "my sister", TypeRelationshipRef, "sister"},
		{"camel case", "parseConfig", TypeFunction, "parse_config"},
		{"windows path", `.\src\main.go`, TypeFile, "src/main.go"},
		{"quoted concept", `"event sourcing"`, TypeConcept, "event sourcing"},
		{"case fold", "SARAH", TypePerson, "sarah"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in, tt.t); got != tt.want {
				t.Errorf("Normalize(%q, %s) = %q, want %q", tt.in, tt.t, got, tt.want)
			}
		})
	}
}
