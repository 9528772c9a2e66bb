// Package security holds the server's protective plumbing: secret
// redaction for logs, an audit trail, and rate limits.
package security

import (
	"regexp"
	"slices"
	"strings"
	"sync"
)

// RedactPlaceholder is the replacement string for redacted secrets.
const RedactPlaceholder = "***REDACTED***"

// Redactor replaces secrets in strings with RedactPlaceholder. Secrets are
// found by regex (known key formats) and by literal value (keys loaded at
// runtime). All methods are safe for concurrent use.
type Redactor struct {
	mu       sync.RWMutex
	patterns []*regexp.Regexp
	literals []string
}

// NewRedactor creates a Redactor pre-loaded with DefaultPatterns.
func NewRedactor() *Redactor {
	return &Redactor{
		patterns: DefaultPatterns(),
	}
}

// AddPattern adds a compiled regex pattern to the redactor.
func (r *Redactor) AddPattern(pattern *regexp.Regexp) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patterns = append(r.patterns, pattern)
}

// AddLiteral adds a literal secret value. Empty strings are ignored.
func (r *Redactor) AddLiteral(secret string) {
	if secret == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.literals = append(r.literals, secret)
}

// SetLiterals replaces every literal with secrets, typically the API keys
// of a freshly loaded config directory. Empty strings are dropped.
func (r *Redactor) SetLiterals(secrets []string) {
	literals := slices.DeleteFunc(slices.Clone(secrets), func(s string) bool { return s == "" })
	// Longest first so a key containing another is replaced whole.
	slices.SortFunc(literals, func(a, b string) int { return len(b) - len(a) })

	r.mu.Lock()
	defer r.mu.Unlock()
	r.literals = literals
}

// Redact replaces all known secret patterns and literal values in s.
func (r *Redactor) Redact(s string) string {
	if s == "" {
		return s
	}

	r.mu.RLock()
	patterns := r.patterns
	literals := r.literals
	r.mu.RUnlock()

	for _, lit := range literals {
		if strings.Contains(s, lit) {
			s = strings.ReplaceAll(s, lit, RedactPlaceholder)
		}
	}
	for _, p := range patterns {
		s = p.ReplaceAllString(s, "${1}"+RedactPlaceholder+"${2}")
	}
	return s
}

// DefaultPatterns returns patterns for the secrets this server handles.
// Text matched by the first and second capture groups, when present, is
// kept around the placeholder.
func DefaultPatterns() []*regexp.Regexp {
	return []*regexp.Regexp{
		// OpenAI keys: sk-..., sk-proj-...
		regexp.MustCompile(`sk-(?:proj-)?[a-zA-Z0-9_\-]{20,}`),
		// Authorization headers.
		regexp.MustCompile(`(?i)(bearer\s+)[a-zA-Z0-9\-._~+/]{8,}=*`),
		// Passwords in redis:// and rediss:// URLs.
		regexp.MustCompile(`(rediss?://[^:@/\s]*:)[^@\s/]+(@)`),
	}
}
