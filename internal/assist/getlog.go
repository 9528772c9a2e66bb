package assist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/flemzord/coauthor/internal/replay"
	"github.com/flemzord/coauthor/internal/telemetry"
	"github.com/flemzord/coauthor/internal/transcript"
)

// GetLogRequest is the body of get_log.
type GetLogRequest struct {
	SessionID string `json:"sessionId" validate:"required"`
	Domain    string `json:"domain"`
}

// LogResult is a stored log with what could be derived from it. Config is
// nil for a session without metadata. Stats, LastText, and Config are all
// nil when the log cannot be replayed or the metadata cannot be read.
type LogResult struct {
	Logs     []json.RawMessage `json:"logs"`
	Stats    *replay.Stats     `json:"stats"`
	LastText *string           `json:"last_text"`
	Config   json.RawMessage   `json:"config"`
}

// GetLog finds the log of a session under the replay directory and
// replays it. A missing or unreadable log is a failure; problems with the
// derived fields only clear them.
func (s *Service) GetLog(ctx context.Context, req GetLogRequest) (LogResult, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "assist.GetLog")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", req.SessionID))

	path, records, err := s.logs.Load(req.SessionID)
	if err != nil {
		s.metrics.logRetrieved("not_found")
		span.RecordError(err)
		return LogResult{}, err
	}
	if records == nil {
		records = []json.RawMessage{}
	}
	res := LogResult{Logs: records}

	stats, last, config, err := s.describeLog(ctx, req.SessionID, records)
	if err != nil {
		s.metrics.logRetrieved("partial")
		s.logger.Warn("failed to retrieve metadata for the log", "session_id", req.SessionID, "path", path, "error", err)
		return res, nil
	}
	res.Stats = &stats
	res.LastText = &last
	res.Config = config

	s.metrics.logRetrieved("ok")
	s.logVerbose("get log", "session_id", req.SessionID, "path", path, "records", len(records))
	return res, nil
}

func (s *Service) describeLog(ctx context.Context, sessionID string, records []json.RawMessage) (replay.Stats, string, json.RawMessage, error) {
	events, err := replay.DecodeEvents(records)
	if err != nil {
		return replay.Stats{}, "", nil, err
	}
	stats := replay.ComputeStats(events, s.logger)
	last, err := replay.LastText(events, s.logger)
	if err != nil {
		return replay.Stats{}, "", nil, err
	}
	config, err := s.LookupMetadata(ctx, sessionID)
	if errors.Is(err, transcript.ErrNotFound) {
		s.logVerbose("no metadata for the log", "session_id", sessionID)
		return stats, last, nil, nil
	}
	if err != nil {
		return replay.Stats{}, "", nil, err
	}
	return stats, last, config, nil
}

// LookupMetadata returns the metadata record of a session, last record
// wins. The index is consulted first when configured; the metadata file
// is the fallback and the source of truth.
func (s *Service) LookupMetadata(ctx context.Context, sessionID string) (json.RawMessage, error) {
	if s.index != nil {
		rec, err := s.index.Lookup(ctx, sessionID)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, transcript.ErrNotFound) {
			s.logger.Warn("metadata index lookup failed", "session_id", sessionID, "error", err)
		}
	}
	rec, err := s.metadata.Lookup(sessionID)
	if err != nil {
		return nil, fmt.Errorf("assist: metadata for %s: %w", sessionID, err)
	}
	return rec, nil
}
