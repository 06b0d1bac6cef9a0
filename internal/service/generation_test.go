package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/timmy/stockmeta/internal/config"
	"github.com/timmy/stockmeta/internal/domain"
)

const validMetadataJSON = `{"title":"Golden sunset over calm ocean waves with silhouetted palm trees on beach",` +
	`"description":"A warm tropical sunset reflecting on the water, framed by palm silhouettes along a quiet sandy shore.",` +
	`"keywords":["sunset","ocean","palm"],"category":"Nature"}`

// fakeBackend answers with respond and records every request.
type fakeBackend struct {
	mu      sync.Mutex
	calls   []BackendRequest
	respond func(n int, req *BackendRequest) (string, error)
	search  bool
}

func (f *fakeBackend) Generate(_ context.Context, req *BackendRequest) (string, error) {
	f.mu.Lock()
	n := len(f.calls)
	f.calls = append(f.calls, *req)
	f.mu.Unlock()
	return f.respond(n, req)
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) SupportsSearch() bool { return f.search }

func (f *fakeBackend) Calls() []BackendRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]BackendRequest(nil), f.calls...)
}

func testModelConfig() *config.ModelConfig {
	return &config.ModelConfig{
		Provider:       config.ProviderGenAI,
		QualityModel:   "quality-model",
		FastModel:      "fast-model",
		FallbackModel:  "fallback-model",
		TrendModel:     "trend-model",
		ThinkingBudget: 2048,
		MaxRetries:     3,
		BackoffBase:    2 * time.Second,
	}
}

type sleepRecorder struct {
	mu    sync.Mutex
	slept []time.Duration
}

func (r *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	r.slept = append(r.slept, d)
	r.mu.Unlock()
	return nil
}

func newTestGeneration(b Backend) (*GenerationService, *sleepRecorder) {
	rec := &sleepRecorder{}
	return NewGenerationService(b, testModelConfig()).WithSleeper(rec.sleep), rec
}

var testImage = Image{Data: []byte{0xff, 0xd8, 0xff}, MIME: "image/jpeg"}

func TestGenerateMetadataSuccess(t *testing.T) {
	b := &fakeBackend{respond: func(int, *BackendRequest) (string, error) {
		return "```json\n" + validMetadataJSON + "\n```", nil
	}}
	gen, _ := newTestGeneration(b)

	m, err := gen.GenerateMetadata(context.Background(), "key", testImage, domain.ModeQuality)
	if err != nil {
		t.Fatalf("GenerateMetadata: %v", err)
	}
	if m.Category != "Nature" || len(m.Keywords) != 3 {
		t.Errorf("unexpected metadata: %+v", m)
	}

	calls := b.Calls()
	if len(calls) != 1 {
		t.Fatalf("calls = %d", len(calls))
	}
	c := calls[0]
	if c.Model != "quality-model" || c.ThinkingBudget == nil || *c.ThinkingBudget != 2048 {
		t.Errorf("quality request = model %q budget %v", c.Model, c.ThinkingBudget)
	}
	if !c.JSONSchema || c.MIME != "image/jpeg" || c.APIKey != "key" {
		t.Errorf("request not populated: %+v", c)
	}
}

func TestGenerateMetadataRetries(t *testing.T) {
	quota := &BackendError{StatusCode: 429, Status: "RESOURCE_EXHAUSTED", Message: "quota exceeded"}
	server := &BackendError{StatusCode: 503, Message: "overloaded"}

	tests := []struct {
		name       string
		mode       domain.GenerationMode
		respond    func(n int, req *BackendRequest) (string, error)
		wantErr    error
		wantCalls  int
		wantSleeps []time.Duration
		check      func(t *testing.T, calls []BackendRequest)
	}{
		{
			name:       "quota in quality falls back then exhausts",
			mode:       domain.ModeQuality,
			respond:    func(int, *BackendRequest) (string, error) { return "", quota },
			wantErr:    ErrQuotaExceeded,
			wantCalls:  4,
			wantSleeps: []time.Duration{4 * time.Second, 8 * time.Second},
			check: func(t *testing.T, calls []BackendRequest) {
				if calls[0].Model != "quality-model" || calls[0].ThinkingBudget == nil {
					t.Errorf("first call = %+v", calls[0])
				}
				for _, c := range calls[1:] {
					if c.Model != "fallback-model" || c.ThinkingBudget != nil {
						t.Errorf("fallback call = model %q budget %v", c.Model, c.ThinkingBudget)
					}
				}
			},
		},
		{
			name:       "quota in fast backs off",
			mode:       domain.ModeFast,
			respond:    func(int, *BackendRequest) (string, error) { return "", errors.New("googleapi: Error 429: quota") },
			wantErr:    ErrQuotaExceeded,
			wantCalls:  4,
			wantSleeps: []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second},
		},
		{
			name: "server errors recover",
			mode: domain.ModeFast,
			respond: func(n int, _ *BackendRequest) (string, error) {
				if n < 2 {
					return "", server
				}
				return validMetadataJSON, nil
			},
			wantCalls:  3,
			wantSleeps: []time.Duration{2 * time.Second, 4 * time.Second},
		},
		{
			name: "quota then success after fallback",
			mode: domain.ModeQuality,
			respond: func(n int, _ *BackendRequest) (string, error) {
				if n == 0 {
					return "", quota
				}
				return validMetadataJSON, nil
			},
			wantCalls: 2,
		},
		{
			name:      "invalid key is not retried",
			mode:      domain.ModeQuality,
			respond:   func(int, *BackendRequest) (string, error) { return "", errors.New("API key not valid. Please pass a valid API key.") },
			wantErr:   ErrInvalidKey,
			wantCalls: 1,
		},
		{
			name:      "forbidden is an auth error",
			mode:      domain.ModeFast,
			respond:   func(int, *BackendRequest) (string, error) { return "", &BackendError{StatusCode: 403, Message: "denied"} },
			wantErr:   ErrInvalidKey,
			wantCalls: 1,
		},
		{
			name:      "malformed json is not retried",
			mode:      domain.ModeFast,
			respond:   func(int, *BackendRequest) (string, error) { return "{not json", nil },
			wantErr:   &TransportError{},
			wantCalls: 1,
		},
		{
			name:      "empty response",
			mode:      domain.ModeFast,
			respond:   func(int, *BackendRequest) (string, error) { return "   ", nil },
			wantErr:   &TransportError{},
			wantCalls: 1,
		},
		{
			name:      "other errors are not retried",
			mode:      domain.ModeFast,
			respond:   func(int, *BackendRequest) (string, error) { return "", &BackendError{StatusCode: 400, Message: "bad request"} },
			wantErr:   &TransportError{},
			wantCalls: 1,
		},
		{
			name:       "server errors exhaust into transport error",
			mode:       domain.ModeQuality,
			respond:    func(int, *BackendRequest) (string, error) { return "", server },
			wantErr:    &TransportError{},
			wantCalls:  4,
			wantSleeps: []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second},
			check: func(t *testing.T, calls []BackendRequest) {
				for _, c := range calls {
					if c.Model != "quality-model" {
						t.Errorf("server errors must not switch model, got %q", c.Model)
					}
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &fakeBackend{respond: tt.respond}
			gen, rec := newTestGeneration(b)

			m, err := gen.GenerateMetadata(context.Background(), "key", testImage, tt.mode)
			switch want := tt.wantErr.(type) {
			case nil:
				if err != nil || m == nil {
					t.Fatalf("expected success, got %v", err)
				}
			case *TransportError:
				var te *TransportError
				if !errors.As(err, &te) {
					t.Fatalf("expected *TransportError, got %v", err)
				}
			default:
				if !errors.Is(err, want) {
					t.Fatalf("expected %v, got %v", want, err)
				}
			}

			calls := b.Calls()
			if len(calls) != tt.wantCalls {
				t.Errorf("calls = %d, want %d", len(calls), tt.wantCalls)
			}
			if len(rec.slept) != len(tt.wantSleeps) {
				t.Fatalf("sleeps = %v, want %v", rec.slept, tt.wantSleeps)
			}
			for i := range rec.slept {
				if rec.slept[i] != tt.wantSleeps[i] {
					t.Errorf("sleep[%d] = %s, want %s", i, rec.slept[i], tt.wantSleeps[i])
				}
			}
			if tt.check != nil {
				tt.check(t, calls)
			}
		})
	}
}

func TestGenerateMetadataMissingKey(t *testing.T) {
	b := &fakeBackend{respond: func(int, *BackendRequest) (string, error) { return validMetadataJSON, nil }}
	gen, _ := newTestGeneration(b)

	if _, err := gen.GenerateMetadata(context.Background(), " ", testImage, domain.ModeFast); !errors.Is(err, ErrMissingKey) {
		t.Fatalf("expected ErrMissingKey, got %v", err)
	}
	if len(b.Calls()) != 0 {
		t.Error("backend must not be called without a key")
	}
}

func TestTransportErrorCarriesStatus(t *testing.T) {
	b := &fakeBackend{respond: func(int, *BackendRequest) (string, error) {
		return "", &BackendError{StatusCode: 404, Message: "model not found"}
	}}
	gen, _ := newTestGeneration(b)

	_, err := gen.GenerateMetadata(context.Background(), "key", testImage, domain.ModeFast)
	var te *TransportError
	if !errors.As(err, &te) || te.StatusCode != 404 {
		t.Fatalf("expected transport error with status 404, got %v", err)
	}
}

func TestGeneratePrompt(t *testing.T) {
	t.Run("quality without thinking budget", func(t *testing.T) {
		b := &fakeBackend{respond: func(int, *BackendRequest) (string, error) {
			return "  A lone lighthouse at dusk, soft fog, cinematic wide shot.  ", nil
		}}
		gen, _ := newTestGeneration(b)

		got, err := gen.GeneratePrompt(context.Background(), "key", testImage)
		if err != nil {
			t.Fatalf("GeneratePrompt: %v", err)
		}
		if got != "A lone lighthouse at dusk, soft fog, cinematic wide shot." {
			t.Errorf("prompt = %q", got)
		}
		c := b.Calls()[0]
		if c.Model != "quality-model" || c.ThinkingBudget != nil || c.JSONSchema {
			t.Errorf("unexpected request: %+v", c)
		}
	})

	t.Run("empty answer", func(t *testing.T) {
		b := &fakeBackend{respond: func(int, *BackendRequest) (string, error) { return "", nil }}
		gen, _ := newTestGeneration(b)

		_, err := gen.GeneratePrompt(context.Background(), "key", testImage)
		var te *TransportError
		if !errors.As(err, &te) {
			t.Fatalf("expected *TransportError, got %v", err)
		}
	})

	t.Run("quota falls back", func(t *testing.T) {
		b := &fakeBackend{respond: func(n int, _ *BackendRequest) (string, error) {
			if n == 0 {
				return "", &BackendError{StatusCode: 429, Message: "slow down"}
			}
			return "prompt", nil
		}}
		gen, _ := newTestGeneration(b)

		if _, err := gen.GeneratePrompt(context.Background(), "key", testImage); err != nil {
			t.Fatalf("GeneratePrompt: %v", err)
		}
		if calls := b.Calls(); len(calls) != 2 || calls[1].Model != "fallback-model" {
			t.Errorf("calls = %+v", calls)
		}
	})
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want errorClass
	}{
		{&BackendError{StatusCode: 401}, classAuth},
		{errors.New("API_KEY_INVALID"), classAuth},
		{&BackendError{StatusCode: 429}, classQuota},
		{errors.New("RESOURCE_EXHAUSTED"), classQuota},
		{errors.New("Quota exceeded for metric"), classQuota},
		{&BackendError{StatusCode: 500}, classServer},
		{&BackendError{StatusCode: 400}, classOther},
		{errors.New("connection reset"), classOther},
	}
	for _, tt := range tests {
		if got, _ := classify(tt.err); got != tt.want {
			t.Errorf("classify(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
