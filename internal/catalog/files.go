package catalog

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// File and directory names inside the config directory.
const (
	ExamplesDir   = "examples"
	PromptsFile   = "prompts.tsv"
	BlocklistFile = "blocklist.txt"
	APIKeysFile   = "api_keys.csv"
)

// ErrNoAPIKeys is returned when the config directory has no api_keys.csv.
var ErrNoAPIKeys = errors.New("catalog: no API keys file")

// readExamples loads examples/*.txt keyed by file name without extension.
// A missing directory yields only the "na" entry.
func readExamples(dir string) (map[string]string, bool, error) {
	examples := map[string]string{NotAvailable: ""}

	path := filepath.Join(dir, ExamplesDir)
	entries, err := os.ReadDir(path)
	if errors.Is(err, fs.ErrNotExist) {
		return examples, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("catalog: reading examples: %w", err)
	}

	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".txt") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(path, name))
		if err != nil {
			return nil, false, fmt.Errorf("catalog: reading example %s: %w", name, err)
		}
		examples[strings.TrimSuffix(name, ".txt")] = unescapeNewlines(string(raw)) + " "
	}
	return examples, true, nil
}

// readPrompts loads prompts.tsv. Rows must have exactly three columns: the
// second is the prompt code and the third its text.
func readPrompts(dir string) (map[string]string, error) {
	f, err := os.Open(filepath.Join(dir, PromptsFile))
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = '\t'
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	prompts := map[string]string{NotAvailable: ""}
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("catalog: reading prompts: %w", err)
		}
		if len(record) != 3 {
			continue
		}
		prompts[record[1]] = unescapeNewlines(record[2])
	}
	return prompts, nil
}

// readBlocklist loads blocklist.txt, one word per line.
func readBlocklist(dir string) ([]string, error) {
	f, err := os.Open(filepath.Join(dir, BlocklistFile))
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	defer f.Close()

	var words []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if w := strings.TrimSpace(sc.Text()); w != "" {
			words = append(words, w)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("catalog: reading blocklist: %w", err)
	}
	return words, nil
}

// KeyRef identifies an API key by provider host and domain.
type KeyRef struct {
	Host   string
	Domain string
}

// DefaultKey is the key used when no domain-specific key exists.
var DefaultKey = KeyRef{Host: "openai", Domain: "default"}

// APIKeys maps (host, domain) pairs to secret keys.
type APIKeys map[KeyRef]string

// Lookup returns the key for host and domain, falling back to the host's
// default domain.
func (k APIKeys) Lookup(host, domain string) (string, bool) {
	if key, ok := k[KeyRef{Host: host, Domain: domain}]; ok {
		return key, true
	}
	key, ok := k[KeyRef{Host: host, Domain: DefaultKey.Domain}]
	return key, ok
}

// Values returns every key, for log redaction.
func (k APIKeys) Values() []string {
	out := make([]string, 0, len(k))
	for _, v := range k {
		out = append(out, v)
	}
	return out
}

// LoadAPIKeys reads api_keys.csv (columns host, domain, key) from dir.
func LoadAPIKeys(dir string) (APIKeys, error) {
	path := filepath.Join(dir, APIKeysFile)
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNoAPIKeys, path)
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return APIKeys{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: reading %s: %w", path, err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(h)] = i
	}
	for _, want := range []string{"host", "domain", "key"} {
		if _, ok := cols[want]; !ok {
			return nil, fmt.Errorf("catalog: %s: missing column %q", path, want)
		}
	}

	keys := make(APIKeys)
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("catalog: reading %s: %w", path, err)
		}
		field := func(name string) string {
			if i := cols[name]; i < len(record) {
				return record[i]
			}
			return ""
		}
		keys[KeyRef{Host: field("host"), Domain: field("domain")}] = field("key")
	}
	return keys, nil
}
