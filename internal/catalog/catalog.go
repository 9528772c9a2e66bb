// Package catalog loads the files of the config directory: access codes
// and their generation parameters, example texts, prompts, the word
// blocklist, and provider API keys.
//
// The loaded data is published as an immutable Snapshot. Reload builds a
// new snapshot and swaps it in atomically; readers never block.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/flemzord/coauthor/internal/suggestion"
)

// Service names under which the catalog and the API keys are registered
// on the core.AppContext.
const (
	ServiceName    = "catalog"
	ServiceAPIKeys = "catalog.api_keys"
)

// Snapshot is one consistent view of the config directory.
type Snapshot struct {
	AccessCodes map[string]GenerationConfig
	Examples    map[string]string
	Prompts     map[string]string
	Blocklist   *suggestion.Blocklist
	LoadedAt    time.Time
}

// Lookup returns the configuration for an access code.
func (s *Snapshot) Lookup(code string) (GenerationConfig, bool) {
	if s == nil {
		return GenerationConfig{}, false
	}
	cfg, ok := s.AccessCodes[code]
	if !ok {
		return GenerationConfig{}, false
	}
	return cfg.Clone(), true
}

// Example returns the example text registered under code.
func (s *Snapshot) Example(code string) (string, bool) {
	if s == nil {
		return "", false
	}
	text, ok := s.Examples[code]
	return text, ok
}

// Prompt returns the prompt text registered under code.
func (s *Snapshot) Prompt(code string) (string, bool) {
	if s == nil {
		return "", false
	}
	text, ok := s.Prompts[code]
	return text, ok
}

// Options configure a Catalog.
type Options struct {
	// UseBlocklist loads blocklist.txt. When false the snapshot carries an
	// empty blocklist.
	UseBlocklist bool

	Logger *slog.Logger
}

// Catalog serves the most recently loaded Snapshot of a config directory.
// It is safe for concurrent use.
type Catalog struct {
	dir          string
	useBlocklist bool
	logger       *slog.Logger

	current atomic.Pointer[Snapshot]
	group   singleflight.Group

	// now is injectable for testing.
	now func() time.Time
}

// New creates a Catalog for dir. Nothing is read until Reload is called.
func New(dir string, opts Options) *Catalog {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{
		dir:          dir,
		useBlocklist: opts.UseBlocklist,
		logger:       logger,
		now:          time.Now,
	}
}

// Dir returns the config directory.
func (c *Catalog) Dir() string { return c.dir }

// Snapshot returns the current snapshot, or nil before the first
// successful Reload.
func (c *Catalog) Snapshot() *Snapshot {
	return c.current.Load()
}

// Reload reads the config directory and publishes the result. Concurrent
// calls share a single read. On failure the previous snapshot stays in
// place.
func (c *Catalog) Reload(ctx context.Context) (*Snapshot, error) {
	ch := c.group.DoChan("reload", func() (any, error) {
		snap, err := c.load()
		if err != nil {
			return nil, err
		}
		c.current.Store(snap)
		c.logger.Debug("catalog: reloaded",
			"access_codes", len(snap.AccessCodes),
			"examples", len(snap.Examples),
			"prompts", len(snap.Prompts),
			"blocklist", snap.Blocklist.Len(),
		)
		return snap, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Snapshot), nil
	}
}

func (c *Catalog) load() (*Snapshot, error) {
	codes, skipped, err := readAccessCodes(c.dir)
	if err != nil {
		return nil, err
	}
	for _, where := range skipped {
		c.logger.Warn("catalog: row without access_code column", "row", where)
	}

	examples, found, err := readExamples(c.dir)
	if err != nil {
		return nil, err
	}
	if !found {
		c.logger.Warn("catalog: examples directory does not exist", "dir", c.dir)
	}

	prompts, err := readPrompts(c.dir)
	if err != nil {
		return nil, err
	}

	var words []string
	if c.useBlocklist {
		words, err = readBlocklist(c.dir)
		if err != nil {
			return nil, fmt.Errorf("catalog: blocklist enabled: %w", err)
		}
	}

	return &Snapshot{
		AccessCodes: codes,
		Examples:    examples,
		Prompts:     prompts,
		Blocklist:   suggestion.NewBlocklist(words),
		LoadedAt:    c.now(),
	}, nil
}
