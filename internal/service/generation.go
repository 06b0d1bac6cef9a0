package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/timmy/stockmeta/internal/config"
	"github.com/timmy/stockmeta/internal/domain"
	"github.com/timmy/stockmeta/internal/logger"
	"github.com/timmy/stockmeta/internal/prompts"
)

// Generation errors surfaced to callers. Anything else is a *TransportError.
var (
	ErrMissingKey    = errors.New("API key is missing")
	ErrInvalidKey    = errors.New("API key is invalid, please re-enter it")
	ErrQuotaExceeded = errors.New("rate limit exceeded, please wait a moment and try again")
)

// TransportError is a failed model call that is neither an auth nor a quota
// problem, or a response that could not be used.
type TransportError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *TransportError) Error() string {
	return e.Message
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// BackendError is returned by backends for non-2xx responses.
type BackendError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *BackendError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("HTTP %d %s: %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// BackendRequest is a single model invocation.
type BackendRequest struct {
	APIKey         string
	Model          string
	Image          []byte
	MIME           string
	Prompt         string
	JSONSchema     bool   // ask for the structured metadata object
	ThinkingBudget *int32 // nil leaves thinking at the model default
	Search         bool   // ground the answer with web search
}

// Backend performs one request against a hosted model and returns its text.
type Backend interface {
	Generate(ctx context.Context, req *BackendRequest) (string, error)
	Name() string
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func contextSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Image is an inline image payload.
type Image struct {
	Data []byte
	MIME string
}

// GenerationService talks to the vision model with retry, backoff and
// quality-to-fast fallback.
type GenerationService struct {
	backend Backend
	cfg     config.ModelConfig
	sleep   Sleeper
}

// NewGenerationService creates a generation client.
// Parameters:
//   - backend: model transport.
//   - cfg: model ids, thinking budget and retry settings.
//
// Returns:
//   - *GenerationService: ready to use client.
func NewGenerationService(backend Backend, cfg *config.ModelConfig) *GenerationService {
	c := *cfg
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 2 * time.Second
	}
	if c.FallbackModel == "" {
		c.FallbackModel = c.FastModel
	}
	return &GenerationService{backend: backend, cfg: c, sleep: contextSleep}
}

// WithSleeper replaces the backoff sleeper.
func (s *GenerationService) WithSleeper(sleep Sleeper) *GenerationService {
	s.sleep = sleep
	return s
}

// Backend returns the underlying transport.
func (s *GenerationService) Backend() Backend {
	return s.backend
}

// Config returns the effective model configuration.
func (s *GenerationService) Config() config.ModelConfig {
	return s.cfg
}

// metadataResponse is the JSON object requested from the model.
type metadataResponse struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
	Category    string   `json:"category"`
}

// GenerateMetadata asks the model for stock metadata describing img.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - apiKey: key for the hosted model.
//   - img: inline image, usually produced by imageprep.
//   - mode: starting model profile.
//
// Returns:
//   - *domain.Metadata: parsed listing.
//   - error: ErrMissingKey, ErrInvalidKey, ErrQuotaExceeded or *TransportError.
func (s *GenerationService) GenerateMetadata(ctx context.Context, apiKey string, img Image, mode domain.GenerationMode) (*domain.Metadata, error) {
	req := &BackendRequest{
		APIKey:     apiKey,
		Image:      img.Data,
		MIME:       img.MIME,
		Prompt:     prompts.MetadataPrompt,
		JSONSchema: true,
	}
	text, err := s.run(ctx, req, mode, true)
	if err != nil {
		return nil, err
	}
	return parseMetadata(text)
}

// GeneratePrompt asks the model for a short text-to-image prompt that would
// recreate img. It starts in quality mode without a thinking budget.
func (s *GenerationService) GeneratePrompt(ctx context.Context, apiKey string, img Image) (string, error) {
	req := &BackendRequest{
		APIKey: apiKey,
		Image:  img.Data,
		MIME:   img.MIME,
		Prompt: prompts.ImagePromptInstruction,
	}
	text, err := s.run(ctx, req, domain.ModeQuality, false)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", &TransportError{Message: "model returned an empty prompt"}
	}
	return text, nil
}

// run executes req with the retry state machine. useBudget controls whether
// quality mode sends the configured thinking budget.
func (s *GenerationService) run(ctx context.Context, req *BackendRequest, mode domain.GenerationMode, useBudget bool) (string, error) {
	if strings.TrimSpace(req.APIKey) == "" {
		return "", ErrMissingKey
	}
	if !mode.Valid() {
		mode = domain.ModeFast
	}

	req.Model, req.ThinkingBudget = s.profile(mode, useBudget)
	retries := s.cfg.MaxRetries

	for attempt := 1; ; attempt++ {
		started := time.Now()
		text, err := s.backend.Generate(ctx, req)
		entry := logger.With(logger.Fields{
			logger.FieldComponent: "generation",
			logger.FieldModel:     req.Model,
			logger.FieldMode:      string(mode),
			logger.FieldAttempt:   attempt,
		}).WithDuration(time.Since(started).Milliseconds())

		if err == nil {
			entry.Debug(ctx, "Model call succeeded")
			return text, nil
		}

		class, status := classify(err)
		if class == classAuth {
			entry.Warn(ctx, "Model rejected API key: %v", err)
			return "", ErrInvalidKey
		}
		if ctx.Err() != nil {
			return "", &TransportError{StatusCode: status, Message: err.Error(), Err: err}
		}

		retryable := class == classQuota || class == classServer
		if !retryable || retries <= 0 {
			entry.Warn(ctx, "Model call failed: %v", err)
			if class == classQuota {
				return "", ErrQuotaExceeded
			}
			return "", &TransportError{StatusCode: status, Message: err.Error(), Err: err}
		}

		if class == classQuota && mode == domain.ModeQuality {
			entry.Warn(ctx, "Quota hit in quality mode, falling back to %s", s.cfg.FallbackModel)
			mode = domain.ModeFast
			req.Model = s.cfg.FallbackModel
			req.ThinkingBudget = nil
			retries--
			continue
		}

		delay := s.cfg.BackoffBase << uint(s.cfg.MaxRetries-retries)
		entry.Warn(ctx, "Model call failed, retrying in %s: %v", delay, err)
		if err := s.sleep(ctx, delay); err != nil {
			return "", &TransportError{Message: err.Error(), Err: err}
		}
		retries--
	}
}

// profile returns the model id and thinking budget for mode.
func (s *GenerationService) profile(mode domain.GenerationMode, useBudget bool) (string, *int32) {
	if mode == domain.ModeQuality {
		if useBudget && s.cfg.ThinkingBudget > 0 {
			budget := s.cfg.ThinkingBudget
			return s.cfg.QualityModel, &budget
		}
		return s.cfg.QualityModel, nil
	}
	return s.cfg.FastModel, nil
}

func parseMetadata(text string) (*domain.Metadata, error) {
	text = stripCodeFence(strings.TrimSpace(text))
	if text == "" {
		return nil, &TransportError{Message: "model returned an empty response"}
	}
	var resp metadataResponse
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		return nil, &TransportError{Message: fmt.Sprintf("failed to parse model response: %v", err), Err: err}
	}
	return &domain.Metadata{
		Title:       strings.TrimSpace(resp.Title),
		Description: strings.TrimSpace(resp.Description),
		Keywords:    resp.Keywords,
		Category:    strings.TrimSpace(resp.Category),
	}, nil
}

// stripCodeFence removes a ```json fence some OpenAI-compatible models add.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

type errorClass int

const (
	classOther errorClass = iota
	classAuth
	classQuota
	classServer
)

// classify sorts a backend error into auth, quota, server or other, and
// returns the HTTP status when known.
func classify(err error) (errorClass, int) {
	status := 0
	var be *BackendError
	if errors.As(err, &be) {
		status = be.StatusCode
	}
	msg := err.Error()

	switch {
	case status == 401 || status == 403,
		strings.Contains(msg, "API key not valid"),
		strings.Contains(msg, "API_KEY_INVALID"):
		return classAuth, status
	case status == 429,
		strings.Contains(msg, "429"),
		strings.Contains(strings.ToLower(msg), "quota"),
		strings.Contains(msg, "RESOURCE_EXHAUSTED"):
		return classQuota, status
	case status >= 500:
		return classServer, status
	default:
		return classOther, status
	}
}
