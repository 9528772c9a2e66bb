// Package window fits a document into a model's prompt budget.
//
// The budget is estimated from the model's context window minus the tokens
// reserved for the reply, at a fixed ratio of characters per token. The
// trailing part of the document is kept, since the continuation is
// generated from the end of the text.
package window

import (
	"strings"
	"unicode"
)

// CharsPerToken is the characters-per-token ratio used to turn a token
// budget into a character budget.
const CharsPerToken = 4

// Result is the outcome of Parse.
type Result struct {
	// TextLen is the length of the full input in characters.
	TextLen int `json:"text_len"`

	// Before is the leading part of the text that did not fit the budget.
	Before string `json:"before_prompt"`

	// Effective is the prompt to send, without trailing whitespace on its
	// last line.
	Effective string `json:"effective_prompt"`

	// After is the whitespace removed from the end of Effective. Model
	// output that starts with it has it stripped again.
	After string `json:"after_prompt"`
}

// Budget returns the character budget for a prompt given the model's
// context window and the tokens reserved for the reply.
func Budget(contextWindow, maxTokens int) int {
	return (contextWindow - maxTokens) * CharsPerToken
}

// Parse keeps the largest trailing slice of text that fits the budget and
// separates the trailing whitespace of its last line. Line breaks and
// whitespace elsewhere are preserved. Lengths are counted in runes.
func Parse(text string, maxTokens, contextWindow int) Result {
	runes := []rune(text)
	// A reply that fills the whole context window leaves no room for text.
	budget := max(Budget(contextWindow, maxTokens), 0)

	res := Result{TextLen: len(runes)}

	prompt := text
	if len(runes) > budget {
		cut := len(runes) - budget
		res.Before = string(runes[:cut])
		prompt = string(runes[cut:])
	}

	head, last := "", prompt
	if i := strings.LastIndexByte(prompt, '\n'); i >= 0 {
		head, last = prompt[:i+1], prompt[i+1:]
	}
	trimmed := strings.TrimRightFunc(last, unicode.IsSpace)

	res.Effective = head + trimmed
	res.After = last[len(trimmed):]
	return res
}
