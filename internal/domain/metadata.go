package domain

import (
	"fmt"
	"unicode/utf8"
)

// Soft limits stock agencies apply to submitted metadata.
const (
	TitleMin       = 55
	TitleMax       = 150
	DescriptionMin = 70
	DescriptionMax = 200
	KeywordsMin    = 35
	KeywordsMax    = 49
)

// Categories are the suggested values for Metadata.Category. Any string is accepted.
var Categories = []string{
	"Business",
	"Technology",
	"Nature",
	"People",
	"Lifestyle",
	"Architecture",
	"Food & Drink",
	"Travel",
}

// Metadata is the stock listing text for an asset.
type Metadata struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
	Category    string   `json:"category"`
}

// Clone returns a deep copy of m.
func (m *Metadata) Clone() *Metadata {
	if m == nil {
		return nil
	}
	c := *m
	if m.Keywords != nil {
		c.Keywords = append([]string(nil), m.Keywords...)
	}
	return &c
}

// Equal compares two metadata values field by field.
func (m *Metadata) Equal(o *Metadata) bool {
	if m == nil || o == nil {
		return m == o
	}
	return m.Title == o.Title &&
		m.Description == o.Description &&
		m.Category == o.Category &&
		KeywordsEqual(m.Keywords, o.Keywords)
}

// KeywordsEqual compares two keyword lists in order.
func KeywordsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// HasDuplicateKeywords reports whether any keyword appears more than once.
func (m *Metadata) HasDuplicateKeywords() bool {
	seen := make(map[string]struct{}, len(m.Keywords))
	for _, k := range m.Keywords {
		if _, ok := seen[k]; ok {
			return true
		}
		seen[k] = struct{}{}
	}
	return false
}

// DedupeKeywords returns the keywords with later exact duplicates dropped.
func DedupeKeywords(keywords []string) []string {
	seen := make(map[string]struct{}, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// Issue describes a soft-limit violation.
type Issue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Issues reports where the metadata falls outside the recommended ranges.
// Nothing is rejected; the result only drives UI hints.
func (m *Metadata) Issues() []Issue {
	var issues []Issue
	check := func(field string, n, lo, hi int, unit string) {
		if n < lo || n > hi {
			issues = append(issues, Issue{
				Field:   field,
				Message: fmt.Sprintf("%d %s, recommended %d-%d", n, unit, lo, hi),
			})
		}
	}
	check("title", utf8.RuneCountInString(m.Title), TitleMin, TitleMax, "characters")
	check("description", utf8.RuneCountInString(m.Description), DescriptionMin, DescriptionMax, "characters")
	check("keywords", len(m.Keywords), KeywordsMin, KeywordsMax, "keywords")
	if m.HasDuplicateKeywords() {
		issues = append(issues, Issue{Field: "keywords", Message: "duplicate keywords"})
	}
	return issues
}

// TruncateTitle caps a title at TitleMax characters.
func TruncateTitle(s string) string {
	if utf8.RuneCountInString(s) <= TitleMax {
		return s
	}
	return string([]rune(s)[:TitleMax])
}
