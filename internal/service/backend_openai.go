package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/stockmeta/internal/prompts"
)

// OpenAIBackend calls an OpenAI-compatible chat completions endpoint. Web
// search and thinking budgets are not supported and are ignored.
type OpenAIBackend struct {
	client   *resty.Client
	endpoint string
}

// OpenAIConfig holds configuration for the OpenAI-compatible backend.
type OpenAIConfig struct {
	BaseURL string
	Timeout time.Duration
}

// NewOpenAIBackend creates an OpenAI-compatible backend.
// Parameters:
//   - cfg: endpoint and timeout.
//
// Returns:
//   - *OpenAIBackend: initialized client wrapper.
func NewOpenAIBackend(cfg *OpenAIConfig) *OpenAIBackend {
	client := resty.New()
	client.SetHeader("Content-Type", "application/json")
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	client.SetTimeout(timeout)

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &OpenAIBackend{
		client:   client,
		endpoint: baseURL + "/chat/completions",
	}
}

// Name returns the provider name.
func (b *OpenAIBackend) Name() string {
	return "openai-compatible"
}

// OpenAI-compatible Chat Completion API request/response structures
type openAIRequest struct {
	Model          string          `json:"model"`
	Messages       []openAIMessage `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type openAIMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"` // string for system, []interface{} for user with images
}

type openAITextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type openAIImageContent struct {
	Type     string         `json:"type"`
	ImageURL openAIImageURL `json:"image_url"`
}

type openAIImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error,omitempty"`
}

// Generate sends one chat completion request.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - req: model, inline image and prompt.
//
// Returns:
//   - string: message content of the first choice.
//   - error: *BackendError for non-2xx responses, or a transport error.
func (b *OpenAIBackend) Generate(ctx context.Context, req *BackendRequest) (string, error) {
	content := []interface{}{
		openAITextContent{Type: "text", Text: req.Prompt},
	}
	if len(req.Image) > 0 {
		dataURL := fmt.Sprintf("data:%s;base64,%s", req.MIME, base64.StdEncoding.EncodeToString(req.Image))
		content = append(content, openAIImageContent{
			Type:     "image_url",
			ImageURL: openAIImageURL{URL: dataURL, Detail: "auto"},
		})
	}

	body := openAIRequest{
		Model: req.Model,
		Messages: []openAIMessage{
			{Role: "user", Content: content},
		},
	}
	if req.JSONSchema {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
		body.Messages = append([]openAIMessage{{Role: "system", Content: schemaInstruction}}, body.Messages...)
	}

	var resp openAIResponse
	httpResp, err := b.client.R().
		SetContext(ctx).
		SetAuthToken(req.APIKey).
		SetBody(body).
		SetResult(&resp).
		SetError(&resp).
		Post(b.endpoint)
	if err != nil {
		return "", fmt.Errorf("failed to call model API: %w", err)
	}

	if httpResp.StatusCode() < 200 || httpResp.StatusCode() >= 300 {
		msg := string(httpResp.Body())
		if resp.Error != nil {
			msg = resp.Error.Message
		}
		return "", &BackendError{StatusCode: httpResp.StatusCode(), Message: msg}
	}
	if resp.Error != nil {
		return "", &BackendError{StatusCode: httpResp.StatusCode(), Message: resp.Error.Message}
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in model response (status: %d)", httpResp.StatusCode())
	}
	return resp.Choices[0].Message.Content, nil
}

// schemaInstruction spells out the JSON shape for endpoints without schema support.
var schemaInstruction = fmt.Sprintf(
	"Respond with a JSON object with exactly these keys: "+
		"\"title\" (%s), \"description\" (%s), \"keywords\" (array of strings, %s), \"category\" (%s).",
	prompts.SchemaTitle, prompts.SchemaDescription, prompts.SchemaKeywords, prompts.SchemaCategory,
)
