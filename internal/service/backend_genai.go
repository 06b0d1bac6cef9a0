package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/timmy/stockmeta/internal/prompts"
	"google.golang.org/genai"
)

// GenAIBackend calls the Gemini API through the official SDK. Clients are
// created lazily per API key because the key can change at runtime.
type GenAIBackend struct {
	mu      sync.Mutex
	clients map[string]*genai.Client
}

// NewGenAIBackend creates a Gemini backend.
func NewGenAIBackend() *GenAIBackend {
	return &GenAIBackend{clients: make(map[string]*genai.Client)}
}

// Name returns the provider name.
func (b *GenAIBackend) Name() string {
	return "genai"
}

// SupportsSearch reports that Google Search grounding is available.
func (b *GenAIBackend) SupportsSearch() bool {
	return true
}

func (b *GenAIBackend) client(ctx context.Context, apiKey string) (*genai.Client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if c, ok := b.clients[apiKey]; ok {
		return c, nil
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	// A replaced key makes the old clients useless.
	b.clients = map[string]*genai.Client{apiKey: c}
	return c, nil
}

// Generate sends one GenerateContent request.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - req: model, inline image, prompt and generation options.
//
// Returns:
//   - string: concatenated response text.
//   - error: *BackendError for API failures, or a transport error.
func (b *GenAIBackend) Generate(ctx context.Context, req *BackendRequest) (string, error) {
	client, err := b.client(ctx, req.APIKey)
	if err != nil {
		return "", err
	}

	parts := make([]*genai.Part, 0, 2)
	if len(req.Image) > 0 {
		parts = append(parts, genai.NewPartFromBytes(req.Image, req.MIME))
	}
	parts = append(parts, genai.NewPartFromText(req.Prompt))
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	cfg := &genai.GenerateContentConfig{}
	if req.JSONSchema {
		cfg.ResponseMIMEType = "application/json"
		cfg.ResponseSchema = metadataSchema()
	}
	if req.ThinkingBudget != nil {
		cfg.ThinkingConfig = &genai.ThinkingConfig{ThinkingBudget: req.ThinkingBudget}
	}
	if req.Search {
		cfg.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}

	resp, err := client.Models.GenerateContent(ctx, req.Model, contents, cfg)
	if err != nil {
		return "", fromGenAIError(err)
	}
	return resp.Text(), nil
}

func metadataSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"title": {
				Type:        genai.TypeString,
				Description: prompts.SchemaTitle,
			},
			"description": {
				Type:        genai.TypeString,
				Description: prompts.SchemaDescription,
			},
			"keywords": {
				Type:        genai.TypeArray,
				Items:       &genai.Schema{Type: genai.TypeString},
				Description: prompts.SchemaKeywords,
			},
			"category": {
				Type:        genai.TypeString,
				Description: prompts.SchemaCategory,
			},
		},
		Required: []string{"title", "description", "keywords", "category"},
	}
}

// fromGenAIError converts SDK API errors into *BackendError so classify can
// read the status code.
func fromGenAIError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &BackendError{StatusCode: apiErr.Code, Status: apiErr.Status, Message: apiErr.Message}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return &BackendError{StatusCode: apiErrPtr.Code, Status: apiErrPtr.Status, Message: apiErrPtr.Message}
	}
	return err
}
