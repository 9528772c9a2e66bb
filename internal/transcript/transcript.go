// Package transcript persists what a session leaves behind: the editor
// event log written at the end of a session, and the metadata line written
// when it starts.
//
// Event logs are stored one JSON record per line (".jsonl"). Older logs
// stored as a single JSON array (".json") can still be read.
package transcript

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Log file extensions.
const (
	ExtJSONL = ".jsonl"
	ExtJSON  = ".json"
)

var (
	// ErrNotFound is returned when no log exists for a session.
	ErrNotFound = errors.New("transcript: log not found")

	// ErrUnknownFormat is returned by Read for files that are neither
	// .jsonl nor .json.
	ErrUnknownFormat = errors.New("transcript: unknown log format")

	// ErrInvalidID is returned for session IDs that cannot be used as a
	// file name.
	ErrInvalidID = errors.New("transcript: invalid session id")
)

// maxRecordSize bounds a single .jsonl line.
const maxRecordSize = 16 << 20

// Read loads the records of a log file. The format is chosen by extension.
func Read(path string) ([]json.RawMessage, error) {
	switch filepath.Ext(path) {
	case ExtJSONL:
		return readJSONL(path)
	case ExtJSON:
		return readJSON(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
}

func readJSONL(path string) ([]json.RawMessage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("transcript: open %s: %w", path, err)
	}
	defer f.Close()

	var records []json.RawMessage
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRecordSize)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		if !json.Valid(raw) {
			return nil, fmt.Errorf("transcript: %s line %d: invalid JSON", path, line)
		}
		records = append(records, json.RawMessage(bytes.Clone(raw)))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("transcript: read %s: %w", path, err)
	}
	return records, nil
}

func readJSON(path string) ([]json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("transcript: read %s: %w", path, err)
	}
	var records []json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("transcript: decode %s: %w", path, err)
	}
	return records, nil
}

// Paths walks root and maps each session ID (the file name without its
// extension) to its log file. When several .jsonl files share an ID the
// most recently modified wins. A .json file is used only when the session
// has no .jsonl file.
func Paths(root string) (map[string]string, error) {
	type candidate struct {
		path    string
		modTime int64
	}
	jsonl := make(map[string]candidate)
	legacy := make(map[string]string)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		ext := filepath.Ext(path)
		id := strings.TrimSuffix(d.Name(), ext)
		switch ext {
		case ExtJSONL:
			info, err := d.Info()
			if err != nil {
				return err
			}
			mt := info.ModTime().UnixNano()
			if prev, ok := jsonl[id]; !ok || prev.modTime < mt {
				jsonl[id] = candidate{path: path, modTime: mt}
			}
		case ExtJSON:
			if _, ok := legacy[id]; !ok {
				legacy[id] = path
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("transcript: scan %s: %w", root, err)
	}

	paths := make(map[string]string, len(jsonl)+len(legacy))
	for id, path := range legacy {
		paths[id] = path
	}
	for id, c := range jsonl {
		paths[id] = c.path
	}
	return paths, nil
}

// validID reports whether id can be used as a file name inside a
// directory without escaping it.
func validID(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	return !strings.ContainsAny(id, `/\`) && !strings.ContainsRune(id, 0)
}
