// Package replay reconstructs documents from editor delta logs.
//
// A log is a sequence of events recorded by the editor. Events that carry a
// delta are replayed against an initial prompt, tracking for every character
// whether it came from the prompt, the user, or the completion API.
package replay

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Op is one sub-operation of a delta: Retain, Insert, Embed, Delete, or
// Unknown.
type Op interface {
	isOp()
}

// Retain copies N characters of the current document unchanged.
type Retain struct {
	N int
}

// Insert adds Text at the cursor.
type Insert struct {
	Text string
}

// Embed is an insert whose payload is not text (an image, for instance).
// It is never applied.
type Embed struct {
	Payload json.RawMessage
}

// Delete removes N characters.
type Delete struct {
	N int
}

// Unknown is an operation with no recognized key. It is never applied.
type Unknown struct {
	Raw json.RawMessage
}

func (Retain) isOp()  {}
func (Insert) isOp()  {}
func (Embed) isOp()   {}
func (Delete) isOp()  {}
func (Unknown) isOp() {}

// Delta is the change payload of an event.
type Delta struct {
	Ops []Op
}

// UnmarshalJSON accepts an object with an "ops" array. Any other JSON value
// (the editor logs an empty string for events without a change) decodes to
// an empty Delta.
func (d *Delta) UnmarshalJSON(data []byte) error {
	d.Ops = nil

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil
	}

	var wire struct {
		Ops []json.RawMessage `json:"ops"`
	}
	if err := json.Unmarshal(trimmed, &wire); err != nil {
		return fmt.Errorf("replay: decode delta: %w", err)
	}

	d.Ops = make([]Op, 0, len(wire.Ops))
	for _, raw := range wire.Ops {
		d.Ops = append(d.Ops, decodeOp(raw))
	}
	return nil
}

// MarshalJSON writes the delta back in editor form.
func (d Delta) MarshalJSON() ([]byte, error) {
	ops := make([]any, 0, len(d.Ops))
	for _, op := range d.Ops {
		switch o := op.(type) {
		case Retain:
			ops = append(ops, map[string]int{"retain": o.N})
		case Insert:
			ops = append(ops, map[string]string{"insert": o.Text})
		case Embed:
			ops = append(ops, map[string]json.RawMessage{"insert": o.Payload})
		case Delete:
			ops = append(ops, map[string]int{"delete": o.N})
		case Unknown:
			ops = append(ops, o.Raw)
		}
	}
	return json.Marshal(map[string]any{"ops": ops})
}

// decodeOp classifies a raw operation. Keys are checked in the order
// retain, insert, delete; anything malformed becomes Unknown.
func decodeOp(raw json.RawMessage) Op {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Unknown{Raw: raw}
	}

	if v, ok := fields["retain"]; ok {
		if n, ok := decodeCount(v); ok {
			return Retain{N: n}
		}
		return Unknown{Raw: raw}
	}
	if v, ok := fields["insert"]; ok {
		var text *string
		if err := json.Unmarshal(v, &text); err == nil && text != nil {
			return Insert{Text: *text}
		}
		return Embed{Payload: v}
	}
	if v, ok := fields["delete"]; ok {
		if n, ok := decodeCount(v); ok {
			return Delete{N: n}
		}
		return Unknown{Raw: raw}
	}
	return Unknown{Raw: raw}
}

func decodeCount(v json.RawMessage) (int, bool) {
	var f float64
	if err := json.Unmarshal(v, &f); err != nil {
		return 0, false
	}
	return int(f), true
}
