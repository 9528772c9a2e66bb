package transcript

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/patrickmn/go-cache"
)

const pathsKey = "paths"

// LogStoreOptions configures a LogStore.
type LogStoreOptions struct {
	// IndexTTL is how long the scan of the replay directory is reused.
	// Zero rescans on every lookup.
	IndexTTL time.Duration

	Logger *slog.Logger
}

// LogStore writes session logs into a project directory and finds logs
// under a replay directory, which may hold several projects.
type LogStore struct {
	projDir   string
	replayDir string
	logger    *slog.Logger

	// index caches the result of Paths(replayDir). Nil when disabled.
	index *cache.Cache
}

// NewLogStore creates projDir if needed.
func NewLogStore(projDir, replayDir string, opts LogStoreOptions) (*LogStore, error) {
	if err := os.MkdirAll(projDir, 0o755); err != nil {
		return nil, fmt.Errorf("transcript: create %s: %w", projDir, err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &LogStore{
		projDir:   projDir,
		replayDir: replayDir,
		logger:    logger,
	}
	if opts.IndexTTL > 0 {
		s.index = cache.New(opts.IndexTTL, 2*opts.IndexTTL)
	}
	return s, nil
}

// Path returns where Save writes the log of sessionID.
func (s *LogStore) Path(sessionID string) string {
	return filepath.Join(s.projDir, sessionID+ExtJSONL)
}

// Save writes records to the session's .jsonl file, one record per line,
// replacing any earlier content. It returns the file path.
func (s *LogStore) Save(sessionID string, records []json.RawMessage) (string, error) {
	if !validID(sessionID) {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, sessionID)
	}
	path := s.Path(sessionID)

	var buf bytes.Buffer
	for i, rec := range records {
		var compact bytes.Buffer
		if err := json.Compact(&compact, rec); err != nil {
			return path, fmt.Errorf("transcript: record %d: %w", i, err)
		}
		buf.Write(compact.Bytes())
		buf.WriteByte('\n')
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return path, fmt.Errorf("transcript: write %s: %w", path, err)
	}
	if s.index != nil {
		s.index.Delete(pathsKey)
	}
	return path, nil
}

// Find returns the path of the log of sessionID under the replay directory.
func (s *LogStore) Find(sessionID string) (string, error) {
	paths, err := s.paths(false)
	if err != nil {
		return "", err
	}
	if path, ok := paths[sessionID]; ok {
		return path, nil
	}

	// A cached index may predate the log.
	if s.index != nil {
		paths, err = s.paths(true)
		if err != nil {
			return "", err
		}
		if path, ok := paths[sessionID]; ok {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, sessionID)
}

// Load finds and reads the log of sessionID.
func (s *LogStore) Load(sessionID string) (string, []json.RawMessage, error) {
	path, err := s.Find(sessionID)
	if err != nil {
		return "", nil, err
	}
	records, err := Read(path)
	if err != nil {
		return path, nil, err
	}
	return path, records, nil
}

func (s *LogStore) paths(refresh bool) (map[string]string, error) {
	if s.index == nil {
		return Paths(s.replayDir)
	}
	if !refresh {
		if v, ok := s.index.Get(pathsKey); ok {
			return v.(map[string]string), nil
		}
	}

	paths, err := Paths(s.replayDir)
	if err != nil {
		return nil, err
	}
	s.index.SetDefault(pathsKey, paths)
	s.logger.Debug("transcript: replay index refreshed", "dir", s.replayDir, "logs", len(paths))
	return paths, nil
}
