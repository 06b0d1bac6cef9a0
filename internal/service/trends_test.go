package service

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestParseTrends(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{
			name: "numbered list",
			in:   "1. sustainable living\n2. remote work\n3. ai art",
			want: []string{"sustainable living", "remote work", "ai art"},
		},
		{
			name: "bullets and citations",
			in:   "- solar energy\n* green home\n\nSources:\nhttps://example.com/trends\n  - eco travel  ",
			want: []string{"solar energy", "green home", "eco travel"},
		},
		{
			name: "capped at ten",
			in:   strings.Repeat("term\n", 15),
			want: []string{"term", "term", "term", "term", "term", "term", "term", "term", "term", "term"},
		},
		{
			name: "empty",
			in:   "\n\n",
			want: []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseTrends(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseTrends = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFindTrends(t *testing.T) {
	keywords := []string{"a", "b", "c", "d", "e", "f", "g"}

	t.Run("uses first five keywords with search", func(t *testing.T) {
		b := &fakeBackend{search: true, respond: func(int, *BackendRequest) (string, error) {
			return "1. alpha\n2. beta", nil
		}}
		got := NewTrendService(b, "trend-model").FindTrends(context.Background(), "key", keywords)
		if !reflect.DeepEqual(got, []string{"alpha", "beta"}) {
			t.Errorf("FindTrends = %q", got)
		}
		c := b.Calls()[0]
		if !c.Search || c.Model != "trend-model" || len(c.Image) != 0 {
			t.Errorf("unexpected request: %+v", c)
		}
		if !strings.Contains(c.Prompt, "a, b, c, d, e.") || strings.Contains(c.Prompt, ", f") {
			t.Errorf("prompt does not hold the first five keywords: %q", c.Prompt)
		}
	})

	t.Run("failures yield an empty list", func(t *testing.T) {
		b := &fakeBackend{search: true, respond: func(int, *BackendRequest) (string, error) {
			return "", errors.New("boom")
		}}
		got := NewTrendService(b, "trend-model").FindTrends(context.Background(), "key", keywords)
		if got == nil || len(got) != 0 {
			t.Errorf("FindTrends = %#v, want empty list", got)
		}
	})

	t.Run("missing key skips the call", func(t *testing.T) {
		b := &fakeBackend{search: true, respond: func(int, *BackendRequest) (string, error) { return "x", nil }}
		if got := NewTrendService(b, "m").FindTrends(context.Background(), "", keywords); len(got) != 0 {
			t.Errorf("FindTrends = %q", got)
		}
		if len(b.Calls()) != 0 {
			t.Error("backend called without key")
		}
	})

	t.Run("backend without search", func(t *testing.T) {
		b := &fakeBackend{respond: func(int, *BackendRequest) (string, error) { return "x", nil }}
		if got := NewTrendService(b, "m").FindTrends(context.Background(), "key", keywords); len(got) != 0 {
			t.Errorf("FindTrends = %q", got)
		}
		if len(b.Calls()) != 0 {
			t.Error("backend called without search support")
		}
	})
}
