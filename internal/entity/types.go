// Package entity extracts entity mentions from memory text and resolves
// them to canonical rows, so "Dr. Sarah Smith", "sarah smith", and
// "my sister" all converge on one entity.
package entity

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Type is the closed entity type vocabulary. The last six variants exist
// for imported technical knowledge bases and share plain lowercase
// normalization unless noted.
type Type string

const (
	TypePerson          Type = "person"
	TypePet             Type = "pet"
	TypePlace           Type = "place"
	TypeOrganization    Type = "organization"
	TypeEvent           Type = "event"
	TypeRelationshipRef Type = "relationship_ref"
	TypeFunction        Type = "function"
	TypeClass           Type = "class"
	TypeFile            Type = "file"
	TypeModule          Type = "module"
	TypeVariable        Type = "variable"
	TypeConcept         Type = "concept"
)

// ValidTypes is the full type vocabulary.
var ValidTypes = map[Type]bool{
	TypePerson: true, TypePet: true, TypePlace: true, TypeOrganization: true,
	TypeEvent: true, TypeRelationshipRef: true, TypeFunction: true,
	TypeClass: true, TypeFile: true, TypeModule: true, TypeVariable: true,
	TypeConcept: true,
}

// RelationshipTypes is the closed vocabulary for entity-entity edges.
var RelationshipTypes = map[string]bool{
	"knows": true, "family_of": true, "married_to": true, "parent_of": true,
	"sibling_of": true, "friend_of": true, "owns": true, "works_at": true,
	"works_with": true, "lives_in": true, "lives_with": true, "attended": true,
}

// ErrUnknownRelationship is wrapped into relationship vocabulary rejections.
var ErrUnknownRelationship = errors.New("unknown entity relationship type")

// CheckRelationshipType validates an entity-entity edge type against the
// vocabulary.
func CheckRelationshipType(relType string) error {
	if RelationshipTypes[relType] {
		return nil
	}
	valid := make([]string, 0, len(RelationshipTypes))
	for t := range RelationshipTypes {
		valid = append(valid, t)
	}
	sort.Strings(valid)
	return fmt.Errorf("%w: %q (valid: %s)", ErrUnknownRelationship, relType, strings.Join(valid, ", "))
}

// Mention is one entity occurrence found in text.
type Mention struct {
	Name     string
	Type     Type
	Position int
	Snippet  string
}
