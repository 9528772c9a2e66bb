package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/flemzord/coauthor/internal/provider"
)

// completionBody mirrors the JSON body of a legacy Completions request.
type completionBody struct {
	Model            string   `json:"model"`
	Prompt           string   `json:"prompt"`
	Suffix           string   `json:"suffix"`
	N                int      `json:"n"`
	MaxTokens        int      `json:"max_tokens"`
	Temperature      float64  `json:"temperature"`
	TopP             float64  `json:"top_p"`
	PresencePenalty  float64  `json:"presence_penalty"`
	FrequencyPenalty float64  `json:"frequency_penalty"`
	Stop             []string `json:"stop"`
	LogProbs         int      `json:"logprobs"`
}

// newTestProvider provisions a Provider against an httptest server that
// serves /v1/completions with handler.
func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/completions", handler)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	p := &Provider{
		config: Config{
			APIKey:       "sk-test",
			BaseURL:      srv.URL + "/v1",
			Organization: "org-test",
			Timeout:      "5s",
		},
		logger: discardLogger(),
	}
	p.config.defaults()
	p.active.Store(p.newState())
	return p
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("failed to encode response: %v", err)
	}
}

func readRequestBody(t *testing.T, r *http.Request) completionBody {
	t.Helper()
	body, _ := io.ReadAll(r.Body)
	var req completionBody
	if err := json.Unmarshal(body, &req); err != nil {
		t.Errorf("invalid request body: %v", err)
	}
	return req
}

func choice(index int, text string, logprobs ...float64) map[string]any {
	return map[string]any{
		"text":          text,
		"index":         index,
		"finish_reason": "stop",
		"logprobs": map[string]any{
			"tokens":         make([]string, len(logprobs)),
			"token_logprobs": logprobs,
		},
	}
}

func completionResponse(choices ...map[string]any) map[string]any {
	return map[string]any{
		"id":      "cmpl-1",
		"object":  "text_completion",
		"created": 1,
		"model":   "text-davinci-003",
		"choices": choices,
		"usage": map[string]any{
			"prompt_tokens":     12,
			"completion_tokens": 8,
			"total_tokens":      20,
		},
	}
}

func TestComplete_Success(t *testing.T) {
	var got completionBody
	var gotAuth, gotOrg string

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotOrg = r.Header.Get("OpenAI-Organization")
		got = readRequestBody(t, r)
		writeJSON(t, w, completionResponse(
			choice(1, " second", -0.5),
			choice(0, " first", -0.1, -0.2),
		))
	})

	resp, err := p.Complete(context.Background(), provider.CompletionRequest{
		Prompt:           "Once upon a time",
		Suffix:           "The end.",
		N:                2,
		MaxTokens:        50,
		Temperature:      0.5,
		TopP:             1,
		PresencePenalty:  0.5,
		FrequencyPenalty: 0.25,
		Stop:             []string{"\n"},
		LogProbs:         10,
	})
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}

	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q, want Bearer sk-test", gotAuth)
	}
	if gotOrg != "org-test" {
		t.Errorf("OpenAI-Organization = %q, want org-test", gotOrg)
	}

	if got.Model != "text-davinci-003" {
		t.Errorf("model = %q, want default text-davinci-003", got.Model)
	}
	if got.Prompt != "Once upon a time" || got.Suffix != "The end." {
		t.Errorf("prompt/suffix = %q/%q", got.Prompt, got.Suffix)
	}
	if got.N != 2 || got.MaxTokens != 50 || got.LogProbs != 10 {
		t.Errorf("n/max_tokens/logprobs = %d/%d/%d", got.N, got.MaxTokens, got.LogProbs)
	}
	if got.Temperature != 0.5 || got.TopP != 1 || got.PresencePenalty != 0.5 || got.FrequencyPenalty != 0.25 {
		t.Errorf("sampling params = %+v", got)
	}
	if len(got.Stop) != 1 || got.Stop[0] != "\n" {
		t.Errorf("stop = %q, want [\\n]", got.Stop)
	}

	if len(resp.Choices) != 2 {
		t.Fatalf("len(Choices) = %d, want 2", len(resp.Choices))
	}
	if resp.Choices[0].Text != " first" || resp.Choices[1].Text != " second" {
		t.Errorf("choices not ordered by index: %q, %q", resp.Choices[0].Text, resp.Choices[1].Text)
	}
	lp := resp.Choices[0].TokenLogprobs
	if len(lp) != 2 || math.Abs(lp[0]+0.1) > 1e-6 || math.Abs(lp[1]+0.2) > 1e-6 {
		t.Errorf("TokenLogprobs = %v, want [-0.1 -0.2]", lp)
	}
	if resp.Model != "text-davinci-003" {
		t.Errorf("Model = %q", resp.Model)
	}
}

func TestComplete_ExplicitModelAndNoStop(t *testing.T) {
	var raw map[string]any

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &raw); err != nil {
			t.Errorf("invalid body: %v", err)
		}
		writeJSON(t, w, completionResponse(choice(0, "ok")))
	})

	_, err := p.Complete(context.Background(), provider.CompletionRequest{
		Model:  "davinci-002",
		Prompt: "hi",
		N:      1,
	})
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if raw["model"] != "davinci-002" {
		t.Errorf("model = %v, want davinci-002", raw["model"])
	}
	if _, ok := raw["stop"]; ok {
		t.Errorf("stop should be omitted, got %v", raw["stop"])
	}
}

func TestComplete_UnsupportedModel(t *testing.T) {
	called := false
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	_, err := p.Complete(context.Background(), provider.CompletionRequest{
		Model:  "gpt-4",
		Prompt: "hi",
	})
	if !errors.Is(err, provider.ErrUnsupportedModel) {
		t.Fatalf("error = %v, want ErrUnsupportedModel", err)
	}
	if called {
		t.Error("no request should reach the server for a chat-only model")
	}
}

func TestComplete_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{
			name:   "rate limit",
			status: http.StatusTooManyRequests,
			body:   `{"error":{"message":"slow down","type":"requests"}}`,
			want:   provider.ErrRateLimit,
		},
		{
			name:   "auth",
			status: http.StatusUnauthorized,
			body:   `{"error":{"message":"bad key","type":"invalid_request_error"}}`,
			want:   provider.ErrAuth,
		},
		{
			name:   "context length code",
			status: http.StatusBadRequest,
			body:   `{"error":{"message":"too long","type":"invalid_request_error","code":"context_length_exceeded"}}`,
			want:   provider.ErrContextLength,
		},
		{
			name:   "context length message",
			status: http.StatusBadRequest,
			body:   `{"error":{"message":"This model's maximum context length is 4097 tokens","type":"invalid_request_error"}}`,
			want:   provider.ErrContextLength,
		},
		{
			name:   "server error",
			status: http.StatusInternalServerError,
			body:   `{"error":{"message":"boom","type":"server_error"}}`,
			want:   provider.ErrProviderDown,
		},
		{
			name:   "bad gateway without json",
			status: http.StatusBadGateway,
			body:   `<html>bad gateway</html>`,
			want:   provider.ErrProviderDown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := p.Complete(context.Background(), provider.CompletionRequest{Prompt: "hi", N: 1})
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestComplete_OtherClientError(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"message":"no such model","type":"invalid_request_error"}}`))
	})

	_, err := p.Complete(context.Background(), provider.CompletionRequest{Prompt: "hi", N: 1})
	if err == nil {
		t.Fatal("expected error")
	}
	if provider.Kind(err) != "other" {
		t.Errorf("Kind = %q, want other", provider.Kind(err))
	}
	if !strings.Contains(err.Error(), "HTTP 404") {
		t.Errorf("error = %q, want HTTP 404", err)
	}
}

func TestComplete_ContextCanceled(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, completionResponse(choice(0, "late")))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Complete(ctx, provider.CompletionRequest{Prompt: "hi", N: 1})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestMapError_Passthrough(t *testing.T) {
	if mapError(nil) != nil {
		t.Error("mapError(nil) should be nil")
	}
	if err := mapError(context.DeadlineExceeded); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("mapError(deadline) = %v", err)
	}
	err := mapError(errors.New("weird"))
	if err == nil || !strings.HasPrefix(err.Error(), "openai: ") {
		t.Errorf("mapError(other) = %v", err)
	}
}
