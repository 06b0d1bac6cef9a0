// Package bulkedit applies one edit to the metadata of many assets at once.
package bulkedit

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/timmy/stockmeta/internal/domain"
)

// Field is the metadata field a bulk edit targets.
type Field string

const (
	FieldKeywords Field = "keywords"
	FieldTitle    Field = "title"
)

// Action is the operation applied to the target field.
type Action string

const (
	ActionAdd         Action = "ADD"
	ActionRemove      Action = "REMOVE"
	ActionReplaceAll  Action = "REPLACE_ALL"
	ActionClearAll    Action = "CLEAR_ALL"
	ActionAppend      Action = "APPEND"
	ActionPrepend     Action = "PREPEND"
	ActionReplaceText Action = "REPLACE_TEXT"
)

// ErrInvalidRequest is returned by Validate for unsupported field/action pairs.
var ErrInvalidRequest = errors.New("invalid bulk edit request")

// Request describes a bulk edit. Keywords is used by keyword actions; Text by
// title REPLACE_ALL, APPEND, PREPEND and REMOVE; Find and Replace by
// REPLACE_TEXT.
type Request struct {
	Field    Field    `json:"field"`
	Action   Action   `json:"action"`
	Keywords []string `json:"keywords,omitempty"`
	Text     string   `json:"text,omitempty"`
	Find     string   `json:"find,omitempty"`
	Replace  string   `json:"replace,omitempty"`
}

var actionsByField = map[Field][]Action{
	FieldKeywords: {ActionAdd, ActionRemove, ActionReplaceAll, ActionClearAll},
	FieldTitle:    {ActionReplaceAll, ActionAppend, ActionPrepend, ActionRemove, ActionReplaceText},
}

// Validate checks that the action is supported for the field.
func (r Request) Validate() error {
	actions, ok := actionsByField[r.Field]
	if !ok {
		return fmt.Errorf("%w: unknown field %q", ErrInvalidRequest, r.Field)
	}
	for _, a := range actions {
		if a == r.Action {
			return nil
		}
	}
	return fmt.Errorf("%w: action %q not supported for %s", ErrInvalidRequest, r.Action, r.Field)
}

// ParseKeywords splits a comma separated list, trimming entries and dropping
// empty ones.
func ParseKeywords(input string) []string {
	parts := strings.Split(input, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

var whitespace = regexp.MustCompile(`\s+`)

// Apply returns a new collection with the edit applied to every targeted
// asset that has metadata. Untouched assets are returned as the same pointer;
// edited assets are fresh copies. The input is not modified.
func Apply(assets []*domain.Asset, req Request, targetIDs []string) []*domain.Asset {
	targets := make(map[string]struct{}, len(targetIDs))
	for _, id := range targetIDs {
		targets[id] = struct{}{}
	}

	out := make([]*domain.Asset, len(assets))
	for i, a := range assets {
		out[i] = a
		if _, ok := targets[a.ID]; !ok || a.Metadata == nil {
			continue
		}
		edited := a.Clone()
		switch req.Field {
		case FieldKeywords:
			edited.Metadata.Keywords = applyKeywords(edited.Metadata.Keywords, req)
		case FieldTitle:
			edited.Metadata.Title = domain.TruncateTitle(applyTitle(edited.Metadata.Title, req))
		default:
			continue
		}
		out[i] = edited
	}
	return out
}

func applyKeywords(current []string, req Request) []string {
	switch req.Action {
	case ActionAdd:
		return AddKeywords(current, req.Keywords)
	case ActionRemove:
		drop := make(map[string]struct{}, len(req.Keywords))
		for _, k := range req.Keywords {
			drop[strings.ToLower(k)] = struct{}{}
		}
		out := make([]string, 0, len(current))
		for _, k := range current {
			if _, ok := drop[strings.ToLower(k)]; !ok {
				out = append(out, k)
			}
		}
		return out
	case ActionReplaceAll:
		return append([]string{}, req.Keywords...)
	case ActionClearAll:
		return []string{}
	default:
		return current
	}
}

// AddKeywords returns current followed by every keyword of add not already
// present, comparing case-insensitively.
func AddKeywords(current, add []string) []string {
	seen := make(map[string]struct{}, len(current)+len(add))
	for _, k := range current {
		seen[strings.ToLower(k)] = struct{}{}
	}
	out := append([]string(nil), current...)
	for _, k := range add {
		key := strings.ToLower(k)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, k)
	}
	return out
}

func applyTitle(title string, req Request) string {
	switch req.Action {
	case ActionReplaceAll:
		return req.Text
	case ActionAppend:
		return strings.TrimSpace(title + " " + req.Text)
	case ActionPrepend:
		return strings.TrimSpace(req.Text + " " + title)
	case ActionRemove:
		if req.Text == "" {
			return title
		}
		return replaceFold(title, req.Text, "")
	case ActionReplaceText:
		if req.Find == "" {
			return title
		}
		return replaceFold(title, req.Find, req.Replace)
	default:
		return title
	}
}

// replaceFold replaces every case-insensitive occurrence of find with the
// literal replacement and collapses the whitespace left behind.
func replaceFold(s, find, replacement string) string {
	re := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(find))
	s = re.ReplaceAllLiteralString(s, replacement)
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}
