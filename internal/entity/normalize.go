package entity

import (
	"regexp"
	"strings"
)

var (
	honorificPattern  = regexp.MustCompile(`(?i)^(dr|mr|mrs|ms|prof)\.?\s+`)
	possessivePattern = regexp.MustCompile(`(?i)^(my|his|her|their|our)\s+`)
	camelBoundary     = regexp.MustCompile(`([a-z0-9])([A-Z])`)
)

// Normalize reduces an entity name to its canonical qualified form. The
// rules are per-type: people lose honorifics, relationship references lose
// possessives, functions convert camelCase to snake_case, files normalize
// path separators, concepts lose quotes. Everything folds case.
func Normalize(name string, t Type) string {
	name = strings.TrimSpace(name)

	switch t {
	case TypePerson:
		name = honorificPattern.ReplaceAllString(name, "")
	case TypeRelationshipRef:
		name = possessivePattern.ReplaceAllString(name, "")
	case TypeFunction:
		name = camelBoundary.ReplaceAllString(name, "${1}_${2}")
	case TypeFile:
		name = strings.ReplaceAll(name, "\\", "/")
		name = strings.TrimPrefix(name, "./")
	case TypeConcept:
		name = strings.Trim(name, `"'`)
	}

	return strings.ToLower(strings.TrimSpace(name))
}

// CacheKey builds the resolver cache key: tenant-partitioned first so one
// tenant's entries can be dropped without touching the rest, then profile,
// type, and the normalized name.
func CacheKey(tenant, profile string, t Type, normalized string) string {
	return tenant + ":" + profile + ":" + string(t) + ":" + normalized
}
