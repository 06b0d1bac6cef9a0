package service

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/timmy/stockmeta/internal/logger"
	"github.com/timmy/stockmeta/internal/prompts"
)

// MaxTrends is the most suggestions returned by a lookup.
const MaxTrends = 10

// searchBackend is implemented by backends that can ground answers with web search.
type searchBackend interface {
	SupportsSearch() bool
}

// TrendService looks up trending search terms related to an asset's keywords.
type TrendService struct {
	backend Backend
	model   string
}

// NewTrendService creates a trend lookup client using model.
func NewTrendService(backend Backend, model string) *TrendService {
	return &TrendService{backend: backend, model: model}
}

// FindTrends returns up to MaxTrends trending terms related to the first
// keywords. It never fails: a missing key, an unsupported backend or any
// model error yields an empty list.
func (s *TrendService) FindTrends(ctx context.Context, apiKey string, keywords []string) []string {
	if strings.TrimSpace(apiKey) == "" || len(keywords) == 0 {
		return []string{}
	}
	if sb, ok := s.backend.(searchBackend); !ok || !sb.SupportsSearch() {
		logger.CtxDebug(ctx, "Trend lookup skipped: backend %s has no search tool", s.backend.Name())
		return []string{}
	}

	started := time.Now()
	text, err := s.backend.Generate(ctx, &BackendRequest{
		APIKey: apiKey,
		Model:  s.model,
		Prompt: prompts.TrendQuery(keywords),
		Search: true,
	})
	entry := logger.With(logger.Fields{
		logger.FieldComponent: "trends",
		logger.FieldModel:     s.model,
	}).WithDuration(time.Since(started).Milliseconds())
	if err != nil {
		entry.Warn(ctx, "Trend lookup failed: %v", err)
		return []string{}
	}

	trends := ParseTrends(text)
	entry.WithCount(len(trends)).Debug(ctx, "Trend lookup finished")
	return trends
}

var enumeration = regexp.MustCompile(`^\s*(?:[\d-]*\.|[-*•])\s*`)

// ParseTrends turns a model answer into a clean list: enumeration markers are
// stripped, blank lines and source citations dropped, at most MaxTrends kept.
func ParseTrends(text string) []string {
	out := []string{}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(enumeration.ReplaceAllString(line, ""))
		if line == "" || strings.HasPrefix(line, "Source") || strings.HasPrefix(line, "http") {
			continue
		}
		out = append(out, line)
		if len(out) == MaxTrends {
			break
		}
	}
	return out
}
