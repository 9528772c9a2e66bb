package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

// NotAvailable is the value used in config files for "no value".
const NotAvailable = "na"

// GenerationConfig holds the generation parameters selected by an access
// code. Values are copied into each session and never modified.
type GenerationConfig struct {
	Domain  string `json:"domain"`
	Example string `json:"example"`
	Prompt  string `json:"prompt"`
	Engine  string `json:"engine"`

	SessionLength int `json:"session_length"`

	N                int      `json:"n"`
	MaxTokens        int      `json:"max_tokens"`
	Temperature      float64  `json:"temperature"`
	TopP             float64  `json:"top_p"`
	PresencePenalty  float64  `json:"presence_penalty"`
	FrequencyPenalty float64  `json:"frequency_penalty"`
	Stop             []string `json:"stop"`

	// AdditionalData is nil when the file says "na".
	AdditionalData *string `json:"additional_data"`

	// Extra holds columns this server does not interpret.
	Extra map[string]string `json:"extra,omitempty"`
}

// DefaultGenerationConfig returns the values used for columns an access
// code file leaves out.
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		Domain:           "demo",
		Example:          NotAvailable,
		Prompt:           NotAvailable,
		Engine:           "text-davinci-003",
		N:                5,
		MaxTokens:        50,
		Temperature:      0.95,
		TopP:             1,
		PresencePenalty:  0.5,
		FrequencyPenalty: 0.5,
		Stop:             []string{"."},
	}
}

// Clone returns a deep copy of c.
func (c GenerationConfig) Clone() GenerationConfig {
	c.Stop = slices.Clone(c.Stop)
	if c.AdditionalData != nil {
		v := *c.AdditionalData
		c.AdditionalData = &v
	}
	if c.Extra != nil {
		extra := make(map[string]string, len(c.Extra))
		for k, v := range c.Extra {
			extra[k] = v
		}
		c.Extra = extra
	}
	return c
}

// Fields returns c as a flat map keyed by column name, the shape used in
// API responses and metadata records. Extra columns keep their own names.
func (c GenerationConfig) Fields() map[string]any {
	fields := make(map[string]any, 13+len(c.Extra))
	for k, v := range c.Extra {
		fields[k] = v
	}
	fields["domain"] = c.Domain
	fields["example"] = c.Example
	fields["prompt"] = c.Prompt
	fields["engine"] = c.Engine
	fields["session_length"] = c.SessionLength
	fields["n"] = c.N
	fields["max_tokens"] = c.MaxTokens
	fields["temperature"] = c.Temperature
	fields["top_p"] = c.TopP
	fields["presence_penalty"] = c.PresencePenalty
	fields["frequency_penalty"] = c.FrequencyPenalty
	fields["stop"] = slices.Clone(c.Stop)
	fields["additional_data"] = c.AdditionalData
	return fields
}

const accessCodeColumn = "access_code"

// readAccessCodes loads every access_code*.csv file in dir. Later files
// and later rows override earlier ones for the same code.
func readAccessCodes(dir string) (map[string]GenerationConfig, []string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("catalog: cannot find access codes at %s: %w", dir, err)
	}

	codes := make(map[string]GenerationConfig)
	var skipped []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.Contains(name, accessCodeColumn) || !strings.HasSuffix(name, ".csv") {
			continue
		}

		path := filepath.Join(dir, name)
		skip, err := readAccessCodeFile(path, codes)
		if err != nil {
			return nil, nil, err
		}
		skipped = append(skipped, skip...)
	}
	return codes, skipped, nil
}

func readAccessCodeFile(path string, codes map[string]GenerationConfig) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: reading header of %s: %w", path, err)
	}

	var skipped []string
	for line := 2; ; line++ {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("catalog: reading %s: %w", path, err)
		}

		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = record[i]
			}
		}

		code, ok := row[accessCodeColumn]
		if !ok {
			skipped = append(skipped, fmt.Sprintf("%s:%d", path, line))
			continue
		}

		cfg, err := parseGenerationConfig(row)
		if err != nil {
			return nil, fmt.Errorf("catalog: %s:%d: %w", path, line, err)
		}
		codes[code] = cfg
	}
	return skipped, nil
}

// parseGenerationConfig applies a CSV row on top of the defaults.
func parseGenerationConfig(row map[string]string) (GenerationConfig, error) {
	cfg := DefaultGenerationConfig()

	var errs []error
	for col, value := range row {
		switch col {
		case accessCodeColumn:
		case "domain":
			cfg.Domain = value
		case "example":
			cfg.Example = value
		case "prompt":
			cfg.Prompt = value
		case "engine":
			cfg.Engine = value
		case "session_length":
			errs = append(errs, parseInt(col, value, &cfg.SessionLength))
		case "n":
			errs = append(errs, parseInt(col, value, &cfg.N))
		case "max_tokens":
			errs = append(errs, parseInt(col, value, &cfg.MaxTokens))
		case "temperature":
			errs = append(errs, parseFloat(col, value, &cfg.Temperature))
		case "top_p":
			errs = append(errs, parseFloat(col, value, &cfg.TopP))
		case "presence_penalty":
			errs = append(errs, parseFloat(col, value, &cfg.PresencePenalty))
		case "frequency_penalty":
			errs = append(errs, parseFloat(col, value, &cfg.FrequencyPenalty))
		case "stop":
			cfg.Stop = parseStop(value)
		case "additional_data":
			if value != NotAvailable {
				v := value
				cfg.AdditionalData = &v
			}
		default:
			if cfg.Extra == nil {
				cfg.Extra = make(map[string]string)
			}
			cfg.Extra[col] = value
		}
	}
	return cfg, errors.Join(errs...)
}

// parseStop splits a "|"-separated list of stop sequences. A literal \n in
// the file stands for a newline.
func parseStop(value string) []string {
	parts := strings.Split(value, "|")
	for i, p := range parts {
		parts[i] = unescapeNewlines(p)
	}
	return parts
}

func parseInt(col, value string, dst *int) error {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("column %s: %w", col, err)
	}
	*dst = n
	return nil
}

func parseFloat(col, value string, dst *float64) error {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fmt.Errorf("column %s: %w", col, err)
	}
	*dst = f
	return nil
}

func unescapeNewlines(s string) string {
	return strings.ReplaceAll(s, `\n`, "\n")
}
