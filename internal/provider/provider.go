// Package provider defines the contract between the query path and the
// text-completion service that produces candidate continuations.
package provider

import "context"

// Provider returns candidate continuations for a prompt. Concrete
// implementations live in separate packages (e.g., provider.openai) and
// typically also implement core.Module for lifecycle management.
type Provider interface {
	// Complete sends one completion request. Failures are reported once;
	// implementations do not retry.
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)

	// Name identifies the provider in logs and metrics.
	Name() string
}

// CompletionRequest carries a prompt and its generation parameters.
type CompletionRequest struct {
	Model  string
	Prompt string

	// Suffix is the text after an insertion point. Empty means plain
	// continuation.
	Suffix string

	N                int
	MaxTokens        int
	Temperature      float64
	TopP             float64
	PresencePenalty  float64
	FrequencyPenalty float64

	// Stop lists the sequences at which generation ends. Nil lets the
	// provider run until MaxTokens.
	Stop []string

	// LogProbs asks for the top LogProbs alternatives per token. The
	// sampled token's log-probability is always returned when > 0.
	LogProbs int
}

// Choice is one candidate continuation.
type Choice struct {
	Text string

	// TokenLogprobs holds the natural-log probability of each generated
	// token, in order.
	TokenLogprobs []float64
}

// CompletionResponse holds the candidates in the order the provider
// returned them.
type CompletionResponse struct {
	Model   string
	Choices []Choice
}

// ServiceName is the AppContext service under which the active Provider is
// registered.
const ServiceName = "provider.completion"
