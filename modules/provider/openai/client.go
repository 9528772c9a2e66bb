package openai

import (
	"context"
	"slices"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/flemzord/coauthor/internal/provider"
)

// buildCompletionRequest converts a provider request into a legacy
// Completions API request.
func buildCompletionRequest(req provider.CompletionRequest, defaultModel string) goopenai.CompletionRequest {
	model := req.Model
	if model == "" {
		model = defaultModel
	}

	cr := goopenai.CompletionRequest{
		Model:            model,
		Prompt:           req.Prompt,
		Suffix:           req.Suffix,
		N:                req.N,
		MaxTokens:        req.MaxTokens,
		Temperature:      float32(req.Temperature),
		TopP:             float32(req.TopP),
		PresencePenalty:  float32(req.PresencePenalty),
		FrequencyPenalty: float32(req.FrequencyPenalty),
		LogProbs:         req.LogProbs,
	}
	if len(req.Stop) > 0 {
		cr.Stop = req.Stop
	}
	return cr
}

// Complete sends a completion request and returns every choice, ordered by
// choice index.
func (p *Provider) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	state := p.active.Load()
	if state == nil {
		return provider.CompletionResponse{}, provider.ErrNoProvider
	}
	cr := buildCompletionRequest(req, state.defaultModel)

	resp, err := state.client.CreateCompletion(ctx, cr)
	if err != nil {
		err = mapError(err)
		p.logger.Debug("completion failed", "model", cr.Model, "error", err)
		return provider.CompletionResponse{}, err
	}

	choices := slices.Clone(resp.Choices)
	slices.SortStableFunc(choices, func(a, b goopenai.CompletionChoice) int {
		return a.Index - b.Index
	})

	out := provider.CompletionResponse{
		Model:   resp.Model,
		Choices: make([]provider.Choice, len(choices)),
	}
	for i, c := range choices {
		logprobs := make([]float64, len(c.LogProbs.TokenLogprobs))
		for j, lp := range c.LogProbs.TokenLogprobs {
			logprobs[j] = float64(lp)
		}
		out.Choices[i] = provider.Choice{Text: c.Text, TokenLogprobs: logprobs}
	}

	p.logger.Debug("completion received",
		"model", cr.Model,
		"choices", len(out.Choices),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)
	return out, nil
}
