package transcript

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// MetadataFile is the name of the metadata file inside the log directory.
const MetadataFile = "metadata.txt"

// MetadataStore appends one JSON line per started session to a file and
// looks sessions up again. A session that appears more than once resolves
// to its last line.
type MetadataStore struct {
	path string
	mu   sync.Mutex
}

// NewMetadataStore creates logDir and an empty metadata file if needed.
func NewMetadataStore(logDir string) (*MetadataStore, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("transcript: create %s: %w", logDir, err)
	}
	path := filepath.Join(logDir, MetadataFile)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("transcript: create %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	return &MetadataStore{path: path}, nil
}

// Path returns the metadata file path.
func (m *MetadataStore) Path() string { return m.path }

// Append writes record as one JSON line. The record must carry a
// "session_id" field for Lookup to find it.
func (m *MetadataStore) Append(record any) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("transcript: marshal metadata: %w", err)
	}
	data = append(data, '\n')

	m.mu.Lock()
	defer m.mu.Unlock()

	f, err := os.OpenFile(m.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("transcript: open %s: %w", m.path, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("transcript: append %s: %w", m.path, err)
	}
	return f.Close()
}

// Lookup returns the last record written for sessionID, or ErrNotFound.
func (m *MetadataStore) Lookup(sessionID string) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, err := os.Open(m.path)
	if err != nil {
		return nil, fmt.Errorf("transcript: open %s: %w", m.path, err)
	}
	defer f.Close()

	var found json.RawMessage
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRecordSize)
	for line := 1; scanner.Scan(); line++ {
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var head struct {
			SessionID string `json:"session_id"`
		}
		if err := json.Unmarshal(raw, &head); err != nil {
			return nil, fmt.Errorf("transcript: %s line %d: %w", m.path, line, err)
		}
		if head.SessionID == sessionID {
			found = json.RawMessage(bytes.Clone(raw))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("transcript: read %s: %w", m.path, err)
	}
	if found == nil {
		return nil, fmt.Errorf("%w: metadata for %s", ErrNotFound, sessionID)
	}
	return found, nil
}
