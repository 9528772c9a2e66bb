package assist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/flemzord/coauthor/internal/provider"
	"github.com/flemzord/coauthor/internal/security"
	"github.com/flemzord/coauthor/internal/session"
	"github.com/flemzord/coauthor/internal/suggestion"
	"github.com/flemzord/coauthor/internal/telemetry"
	"github.com/flemzord/coauthor/internal/transcript"
	"github.com/flemzord/coauthor/internal/window"
)

const (
	// StopDisabled in a query's stop list clears every stop rule and sequence.
	StopDisabled = "DO_NOT_STOP"

	// InsertionMarker splits the prompt into text before and after the
	// point where a suggestion is to be inserted.
	InsertionMarker = "---"

	// queryLogprobs is the number of alternatives requested per token.
	queryLogprobs = 10
)

const msgUnknownSession = "Your session has not been established due to invalid access code. Please check your access code in URL."

// QueryRequest is the body of query.
type QueryRequest struct {
	SessionID   string             `json:"session_id"`
	Domain      string             `json:"domain"`
	Suggestions []suggestion.Shown `json:"suggestions"`
	Example     string             `json:"example"`

	// ExampleText, when present, replaces the text of Example.
	ExampleText *string `json:"example_text"`

	Doc              string   `json:"doc"`
	N                int      `json:"n" validate:"gte=1,lte=128"`
	MaxTokens        int      `json:"max_tokens" validate:"gte=1"`
	Temperature      float64  `json:"temperature" validate:"gte=0,lte=2"`
	TopP             float64  `json:"top_p" validate:"gte=0,lte=1"`
	PresencePenalty  float64  `json:"presence_penalty" validate:"gte=-2,lte=2"`
	FrequencyPenalty float64  `json:"frequency_penalty" validate:"gte=-2,lte=2"`
	Engine           string   `json:"engine"`
	Stop             []string `json:"stop"`
}

// UnmarshalJSON decodes a query. The editor sends its numeric settings as
// strings ("n": "5"), so each of them is accepted as a JSON number or as a
// string holding one.
func (r *QueryRequest) UnmarshalJSON(data []byte) error {
	type plain QueryRequest
	aux := struct {
		*plain
		N                json.Number `json:"n"`
		MaxTokens        json.Number `json:"max_tokens"`
		Temperature      json.Number `json:"temperature"`
		TopP             json.Number `json:"top_p"`
		PresencePenalty  json.Number `json:"presence_penalty"`
		FrequencyPenalty json.Number `json:"frequency_penalty"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	ints := []struct {
		name string
		num  json.Number
		dst  *int
	}{
		{"n", aux.N, &r.N},
		{"max_tokens", aux.MaxTokens, &r.MaxTokens},
	}
	for _, f := range ints {
		if f.num == "" {
			continue
		}
		v, err := parseInt(f.num)
		if err != nil {
			return fmt.Errorf("field %s: %w", f.name, err)
		}
		*f.dst = v
	}

	floats := []struct {
		name string
		num  json.Number
		dst  *float64
	}{
		{"temperature", aux.Temperature, &r.Temperature},
		{"top_p", aux.TopP, &r.TopP},
		{"presence_penalty", aux.PresencePenalty, &r.PresencePenalty},
		{"frequency_penalty", aux.FrequencyPenalty, &r.FrequencyPenalty},
	}
	for _, f := range floats {
		if f.num == "" {
			continue
		}
		v, err := f.num.Float64()
		if err != nil {
			return fmt.Errorf("field %s: %w", f.name, err)
		}
		*f.dst = v
	}
	return nil
}

// parseInt accepts integral values written with a fraction ("5.0").
func parseInt(num json.Number) (int, error) {
	if v, err := strconv.Atoi(num.String()); err == nil {
		return v, nil
	}
	f, err := num.Float64()
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || f > math.MaxInt32 || f < math.MinInt32 {
		return 0, fmt.Errorf("%s is not an integer", num)
	}
	return int(f), nil
}

// Suggestion is one post-processed completion as returned to the client.
type Suggestion struct {
	Original    string  `json:"original"`
	Trimmed     string  `json:"trimmed"`
	Probability float64 `json:"probability"`
	Source      string  `json:"source"`
}

// RankedSuggestion is a Suggestion that passed filtering, with its position
// after shuffling.
type RankedSuggestion struct {
	Index int `json:"index"`
	Suggestion
}

// Ctrl echoes the generation parameters a query ran with.
type Ctrl struct {
	N                int      `json:"n"`
	MaxTokens        int      `json:"max_tokens"`
	Temperature      float64  `json:"temperature"`
	TopP             float64  `json:"top_p"`
	PresencePenalty  float64  `json:"presence_penalty"`
	FrequencyPenalty float64  `json:"frequency_penalty"`
	Stop             []string `json:"stop"`
}

// QueryResult is the outcome of a successful query.
type QueryResult struct {
	Original    []Suggestion       `json:"original_suggestions"`
	Suggestions []RankedSuggestion `json:"suggestions_with_probabilities"`
	Ctrl        Ctrl               `json:"ctrl"`
	Counts      suggestion.Counts  `json:"counts"`
}

// stopSettings splits a query's stop list. Empty entries are dropped and
// StopDisabled clears the list. The sentence rule is applied locally; every
// other entry is sent to the provider. sequences is nil when empty.
func stopSettings(stop []string) (kept, sequences, rules []string) {
	kept = []string{}
	for _, s := range stop {
		if s != "" {
			kept = append(kept, s)
		}
	}
	if slices.Contains(kept, StopDisabled) {
		kept = []string{}
	}
	for _, s := range kept {
		if s == suggestion.SentenceStop {
			rules = append(rules, s)
		} else {
			sequences = append(sequences, s)
		}
	}
	return kept, sequences, rules
}

// splitInsertion separates the prompt at InsertionMarker. Without a marker
// suffix is empty.
func splitInsertion(prompt string) (before, suffix string, err error) {
	switch strings.Count(prompt, InsertionMarker) {
	case 0:
		return prompt, "", nil
	case 1:
		before, suffix, _ = strings.Cut(prompt, InsertionMarker)
		return before, suffix, nil
	default:
		return "", "", fail(ErrInsertionMarker,
			fmt.Sprintf("The document may contain at most one %q insertion marker.", InsertionMarker))
	}
}

// Query asks the provider for continuations of the session's document,
// post-processes and filters them, and returns the survivors in random
// order.
func (s *Service) Query(ctx context.Context, req QueryRequest) (QueryResult, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "assist.Query")
	defer span.End()

	res, err := s.query(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return res, err
}

func (s *Service) query(ctx context.Context, req QueryRequest) (QueryResult, error) {
	sess, err := s.sessions.Touch(ctx, req.SessionID)
	if errors.Is(err, session.ErrNotFound) {
		s.metrics.query("unknown_session")
		return QueryResult{}, fail(ErrUnknownSession, msgUnknownSession)
	}
	if err != nil {
		s.metrics.query("error")
		return QueryResult{}, err
	}

	if err := s.allow(security.KindQuery, sess.ID); err != nil {
		s.metrics.query("rate_limited")
		s.audit.Log(security.AuditEvent{
			Type:       security.EventRateLimit,
			SessionID:  sess.ID,
			AccessCode: sess.AccessCode,
			Detail:     "query",
		})
		return QueryResult{}, fail(err, "Too many requests. Please wait a moment and try again.")
	}

	snap := s.catalog.Snapshot()

	var exampleText string
	if req.ExampleText != nil {
		exampleText = *req.ExampleText
	} else {
		text, ok := snap.Example(req.Example)
		if !ok {
			s.metrics.query("error")
			return QueryResult{}, fail(ErrUnknownExample, fmt.Sprintf("Unknown example: %s.", req.Example))
		}
		exampleText = text
	}

	kept, sequences, rules := stopSettings(req.Stop)
	ctrl := Ctrl{
		N:                req.N,
		MaxTokens:        req.MaxTokens,
		Temperature:      req.Temperature,
		TopP:             req.TopP,
		PresencePenalty:  req.PresencePenalty,
		FrequencyPenalty: req.FrequencyPenalty,
		Stop:             kept,
	}

	parsed := window.Parse(exampleText+req.Doc, req.MaxTokens, window.ContextWindowSize(req.Engine))
	prompt, suffix, err := splitInsertion(parsed.Effective)
	if err != nil {
		s.metrics.query("error")
		return QueryResult{}, err
	}

	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("session.id", sess.ID),
		attribute.String("query.engine", req.Engine),
		attribute.Int("query.n", req.N),
		attribute.Int("query.prompt_len", parsed.TextLen),
		attribute.Bool("query.insertion", suffix != ""),
	)

	started := time.Now()
	resp, err := s.complete(ctx, provider.CompletionRequest{
		Model:            req.Engine,
		Prompt:           prompt,
		Suffix:           suffix,
		N:                req.N,
		MaxTokens:        req.MaxTokens,
		Temperature:      req.Temperature,
		TopP:             req.TopP,
		PresencePenalty:  req.PresencePenalty,
		FrequencyPenalty: req.FrequencyPenalty,
		Stop:             sequences,
		LogProbs:         queryLogprobs,
	})
	latency := time.Since(started)
	kind := provider.Kind(err)
	s.metrics.providerCall(req.Engine, kind, latency)
	if err != nil {
		s.metrics.query("provider_error")
		s.recordQuery(ctx, transcript.QueryRecord{
			SessionID: sess.ID,
			At:        s.now(),
			Engine:    req.Engine,
			Requested: req.N,
			Latency:   latency,
			Error:     kind,
		})
		s.logger.Warn("completion failed", "session_id", sess.ID, "engine", req.Engine, "kind", kind, "error", err)
		return QueryResult{}, err
	}

	source := req.Engine
	if source == "" {
		source = resp.Model
	}

	cands := make([]suggestion.Candidate, 0, len(resp.Choices))
	for _, choice := range resp.Choices {
		cands = append(cands, suggestion.Candidate{
			Text:        suggestion.Trim(choice.Text, parsed.After, rules),
			Probability: suggestion.Probability(choice.TokenLogprobs),
			Source:      source,
		})
	}

	out := QueryResult{
		Original:    make([]Suggestion, 0, len(cands)),
		Suggestions: []RankedSuggestion{},
		Ctrl:        ctrl,
	}
	for _, c := range cands {
		out.Original = append(out.Original, toSuggestion(c))
	}

	var bl *suggestion.Blocklist
	if snap != nil {
		bl = snap.Blocklist
	}
	filtered, counts := suggestion.Filter(cands, req.Suggestions, bl, s.filter)
	s.shuffle(len(filtered), func(i, j int) { filtered[i], filtered[j] = filtered[j], filtered[i] })

	for i, c := range filtered {
		out.Suggestions = append(out.Suggestions, RankedSuggestion{Index: i, Suggestion: toSuggestion(c)})
	}
	out.Counts = counts

	s.metrics.query("ok")
	s.metrics.suggestions(len(filtered), counts.Empty, counts.Duplicate, counts.Blocked)
	s.recordQuery(ctx, transcript.QueryRecord{
		SessionID: sess.ID,
		At:        s.now(),
		Engine:    source,
		Requested: req.N,
		Returned:  len(filtered),
		Empty:     counts.Empty,
		Duplicate: counts.Duplicate,
		Blocked:   counts.Blocked,
		Latency:   latency,
	})
	s.logVerbose("query result", "session_id", sess.ID, "result", out)

	return out, nil
}

func (s *Service) complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "provider.Complete")
	defer span.End()
	span.SetAttributes(
		attribute.String("provider.name", s.provider.Name()),
		attribute.String("provider.model", req.Model),
	)

	resp, err := s.provider.Complete(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, provider.Kind(err))
		return resp, err
	}
	span.SetAttributes(attribute.Int("provider.choices", len(resp.Choices)))
	return resp, nil
}

func (s *Service) recordQuery(ctx context.Context, q transcript.QueryRecord) {
	if s.index == nil {
		return
	}
	if err := s.index.RecordQuery(ctx, q); err != nil {
		s.logger.Warn("recording query failed", "session_id", q.SessionID, "error", err)
	}
}

func toSuggestion(c suggestion.Candidate) Suggestion {
	return Suggestion{
		Original:    c.Text,
		Trimmed:     strings.TrimSpace(c.Text),
		Probability: c.Probability,
		Source:      c.Source,
	}
}
