package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/flemzord/coauthor/internal/transcript"
)

// Append implements transcript.Index. A record for a session already in
// the index replaces the earlier one.
func (m *Module) Append(ctx context.Context, record map[string]any) error {
	sessionID, _ := record["session_id"].(string)
	if sessionID == "" {
		return errors.New("sqlite: metadata record without session_id")
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("sqlite: marshal record: %w", err)
	}

	accessCode, _ := record["access_code"].(string)
	domain, _ := record["domain"].(string)
	engine, _ := record["engine"].(string)
	startedAt, _ := record["start_timestamp"].(float64)

	_, err = m.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO sessions (session_id, access_code, domain, engine, started_at, record, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, strftime('%Y-%m-%dT%H:%M:%fZ','now'))`,
		sessionID, accessCode, domain, engine, startedAt, string(data),
	)
	if err != nil {
		return fmt.Errorf("sqlite: append session %s: %w", sessionID, err)
	}
	return nil
}

// Lookup implements transcript.Index.
func (m *Module) Lookup(ctx context.Context, sessionID string) (json.RawMessage, error) {
	var record string
	err := m.db.QueryRowContext(ctx,
		"SELECT record FROM sessions WHERE session_id = ?", sessionID,
	).Scan(&record)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: metadata for %s", transcript.ErrNotFound, sessionID)
		}
		return nil, fmt.Errorf("sqlite: lookup session %s: %w", sessionID, err)
	}
	return json.RawMessage(record), nil
}

// RecordQuery implements transcript.Index. It is a no-op when
// record_queries is disabled.
func (m *Module) RecordQuery(ctx context.Context, q transcript.QueryRecord) error {
	if !m.config.recordQueries() {
		return nil
	}
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO queries (session_id, at, engine, requested, returned, empty_cnt, duplicate_cnt, bad_cnt, latency_ms, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		q.SessionID, q.At.UTC().Format(time.RFC3339Nano), q.Engine,
		q.Requested, q.Returned, q.Empty, q.Duplicate, q.Blocked,
		q.Latency.Milliseconds(), q.Error,
	)
	if err != nil {
		return fmt.Errorf("sqlite: record query for %s: %w", q.SessionID, err)
	}
	return nil
}

// SessionCount returns the number of sessions in the index.
func (m *Module) SessionCount(ctx context.Context) (int, error) {
	var n int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions").Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: count sessions: %w", err)
	}
	return n, nil
}
