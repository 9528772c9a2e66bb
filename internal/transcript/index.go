package transcript

import (
	"context"
	"encoding/json"
	"time"
)

// ServiceIndex is the AppContext service name of an optional Index.
const ServiceIndex = "transcript.index"

// Index mirrors session metadata and per-query outcomes into a queryable
// store. Lookup returns ErrNotFound (wrapped) for unknown sessions.
type Index interface {
	Append(ctx context.Context, record map[string]any) error
	Lookup(ctx context.Context, sessionID string) (json.RawMessage, error)
	RecordQuery(ctx context.Context, q QueryRecord) error
}

// QueryRecord is the outcome of one suggestion query.
type QueryRecord struct {
	SessionID string
	At        time.Time
	Engine    string

	// Requested is the number of candidates asked of the provider and
	// Returned the number left after filtering.
	Requested int
	Returned  int

	Empty     int
	Duplicate int
	Blocked   int

	Latency time.Duration

	// Error is the provider error kind, empty on success.
	Error string
}
