package suggestion

import (
	"strings"
	"unicode"

	"github.com/rivo/uniseg"
)

// Blocklist is a set of words that must not appear in a suggestion. It is
// never modified after construction and is safe for concurrent use.
type Blocklist struct {
	words map[string]struct{}
}

// NewBlocklist creates a Blocklist. Words are trimmed and lowercased;
// blank entries are dropped.
func NewBlocklist(words []string) *Blocklist {
	b := &Blocklist{words: make(map[string]struct{}, len(words))}
	for _, w := range words {
		w = normalize(w)
		if w == "" {
			continue
		}
		b.words[w] = struct{}{}
	}
	return b
}

// Len returns the number of blocked words.
func (b *Blocklist) Len() int {
	if b == nil {
		return 0
	}
	return len(b.words)
}

// Contains reports whether word is blocked.
func (b *Blocklist) Contains(word string) bool {
	if b == nil {
		return false
	}
	_, ok := b.words[normalize(word)]
	return ok
}

// Match returns the first blocked word found in text. Text is lowercased
// and split on Unicode word boundaries; a nil or empty Blocklist never
// matches.
func (b *Blocklist) Match(text string) (string, bool) {
	if b.Len() == 0 {
		return "", false
	}

	text = strings.ToLower(text)
	state := -1
	for len(text) > 0 {
		var word string
		word, text, state = uniseg.FirstWordInString(text, state)
		if strings.TrimFunc(word, unicode.IsSpace) == "" {
			continue
		}
		if _, ok := b.words[word]; ok {
			return word, true
		}
	}
	return "", false
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
