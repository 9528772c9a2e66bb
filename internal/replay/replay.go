package replay

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"
)

// Provenance tags stored in a State's mask, one per character.
const (
	TagPrompt byte = 'P'
	TagUser   byte = 'U'
	TagAPI    byte = 'A'
)

// Event sources recorded by the editor.
const (
	SourceUser = "user"
	SourceAPI  = "api"
)

// EventSystemInitialize marks the start of an editing session in a log.
const EventSystemInitialize = "system-initialize"

// ErrEmptyLog is returned when a log holds no events.
var ErrEmptyLog = errors.New("replay: empty log")

// Event is the part of an editor log record used for replay.
type Event struct {
	Name       string `json:"eventName"`
	Source     string `json:"eventSource"`
	TextDelta  Delta  `json:"textDelta"`
	CurrentDoc string `json:"currentDoc"`
}

// DecodeEvents decodes raw log records.
func DecodeEvents(records []json.RawMessage) ([]Event, error) {
	events := make([]Event, len(records))
	for i, rec := range records {
		if err := json.Unmarshal(rec, &events[i]); err != nil {
			return nil, fmt.Errorf("replay: decode event %d: %w", i, err)
		}
	}
	return events, nil
}

// State is a document and its provenance mask. The mask holds one tag per
// character (rune) of Text.
type State struct {
	Text string
	Mask string
}

// NewState returns the state of an untouched prompt.
func NewState(prompt string) State {
	return State{
		Text: prompt,
		Mask: strings.Repeat(string(TagPrompt), utf8.RuneCountInString(prompt)),
	}
}

// IgnoredKind tells why an operation was skipped.
type IgnoredKind string

// Reasons an operation is skipped.
const (
	IgnoredEmbed   IgnoredKind = "embed"
	IgnoredUnknown IgnoredKind = "unknown"
)

// Ignored reports an operation that replay skipped.
type Ignored struct {
	Event int
	Op    int
	Kind  IgnoredKind
	Raw   json.RawMessage
}

// Apply replays ops against s. Inserted text is tagged TagAPI when source
// is "api" and TagUser otherwise.
//
// A delete consumes characters of s that have not been retained yet. Once
// all of s has been consumed, a delete removes characters from the end of
// the text built so far instead.
func Apply(s State, ops []Op, source string) (State, []Ignored) {
	origText, origMask := []rune(s.Text), []byte(s.Mask)

	newText := make([]rune, 0, len(origText))
	newMask := make([]byte, 0, len(origMask))

	tag := TagUser
	if source == SourceAPI {
		tag = TagAPI
	}

	var ignored []Ignored
	for i, op := range ops {
		switch o := op.(type) {
		case Retain:
			n := clamp(o.N, len(origText))
			newText = append(newText, origText[:n]...)
			newMask = append(newMask, origMask[:n]...)
			origText, origMask = origText[n:], origMask[n:]

		case Insert:
			runes := []rune(o.Text)
			newText = append(newText, runes...)
			newMask = append(newMask, bytes.Repeat([]byte{tag}, len(runes))...)

		case Delete:
			if len(origText) > 0 {
				n := clamp(o.N, len(origText))
				origText, origMask = origText[n:], origMask[n:]
			} else {
				n := clamp(o.N, len(newText))
				newText, newMask = newText[:len(newText)-n], newMask[:len(newMask)-n]
			}

		case Embed:
			ignored = append(ignored, Ignored{Op: i, Kind: IgnoredEmbed, Raw: o.Payload})

		case Unknown:
			ignored = append(ignored, Ignored{Op: i, Kind: IgnoredUnknown, Raw: o.Raw})
		}
	}

	return State{
		Text: string(newText) + string(origText),
		Mask: string(newMask) + string(origMask),
	}, ignored
}

func clamp(n, limit int) int {
	return min(max(n, 0), limit)
}

// Options control TextAndMask.
type Options struct {
	// RemovePrompt drops everything up to and including the last prompt
	// character from the result.
	RemovePrompt bool

	// Logger receives diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// Result is the outcome of a replay.
type Result struct {
	State
	Ignored []Ignored
}

// TextAndMask replays events[:k] starting from the trimmed CurrentDoc of
// the first event.
func TextAndMask(events []Event, k int, opts Options) Result {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if len(events) == 0 {
		return Result{}
	}

	prompt := strings.TrimSpace(events[0].CurrentDoc)
	res := Result{State: NewState(prompt)}

	k = clamp(k, len(events))
	for i, ev := range events[:k] {
		if len(ev.TextDelta.Ops) == 0 {
			continue
		}
		var ignored []Ignored
		res.State, ignored = Apply(res.State, ev.TextDelta.Ops, ev.Source)
		for _, ig := range ignored {
			ig.Event = i
			logger.Debug("replay: ignored operation",
				"event", i,
				"op", ig.Op,
				"kind", string(ig.Kind),
				"raw", string(ig.Raw),
			)
			res.Ignored = append(res.Ignored, ig)
		}
	}

	if opts.RemovePrompt {
		end := strings.LastIndexByte(res.Mask, TagPrompt)
		if end < 0 {
			logger.Warn("replay: prompt not found in final text",
				"prompt", prompt,
				"text", res.Text,
			)
			return res
		}
		runes := []rune(res.Text)
		res.State = State{
			Text: string(runes[end+1:]),
			Mask: res.Mask[end+1:],
		}
	}

	return res
}

// LastText returns the final document of a log, prompt included. Replay
// starts at the first system-initialize event, or at the last event when
// the log has none.
func LastText(events []Event, logger *slog.Logger) (string, error) {
	if len(events) == 0 {
		return "", ErrEmptyLog
	}

	start := len(events) - 1
	for i, ev := range events {
		if ev.Name == EventSystemInitialize {
			start = i
			break
		}
	}

	tail := events[start:]
	res := TextAndMask(tail, len(tail), Options{Logger: logger})
	return res.Text, nil
}

// Stats summarizes a log.
type Stats struct {
	EventCounter map[string]int `json:"eventCounter"`
}

// ComputeStats counts events by name. Events without a name are logged and
// left out.
func ComputeStats(events []Event, logger *slog.Logger) Stats {
	if logger == nil {
		logger = slog.Default()
	}
	stats := Stats{EventCounter: make(map[string]int)}
	for i, ev := range events {
		if ev.Name == "" {
			logger.Warn("replay: event without a name", "event", i)
			continue
		}
		stats.EventCounter[ev.Name]++
	}
	return stats
}
