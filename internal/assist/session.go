package assist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/flemzord/coauthor/internal/catalog"
	"github.com/flemzord/coauthor/internal/security"
	"github.com/flemzord/coauthor/internal/session"
	"github.com/flemzord/coauthor/internal/telemetry"
)

// VerificationServerError replaces the verification code when the session
// of an end_session call is unknown.
const VerificationServerError = "SERVER_ERROR"

// StartRequest is the body of start_session.
type StartRequest struct {
	AccessCode string `json:"accessCode"`

	// ClientAddr keys the session-start rate limit.
	ClientAddr string `json:"-"`
}

// StartResult describes a new session.
type StartResult struct {
	AccessCode  string
	SessionID   string
	ExampleText string
	PromptText  string
	Config      catalog.GenerationConfig
}

// Fields returns the result as one flat object: the session identifiers,
// the example and prompt texts, and every generation parameter.
func (r StartResult) Fields() map[string]any {
	out := r.Config.Fields()
	out["access_code"] = r.AccessCode
	out["session_id"] = r.SessionID
	out["example_text"] = r.ExampleText
	out["prompt_text"] = r.PromptText
	return out
}

// StartSession validates an access code against a freshly reloaded catalog
// and registers a session configured by it.
func (s *Service) StartSession(ctx context.Context, req StartRequest) (StartResult, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "assist.StartSession")
	defer span.End()

	if err := s.allow(security.KindSession, req.ClientAddr); err != nil {
		s.metrics.sessionStarted("rate_limited")
		s.audit.Log(security.AuditEvent{
			Type:       security.EventRateLimit,
			AccessCode: req.AccessCode,
			Detail:     "start_session",
			Metadata:   map[string]string{"remote_addr": req.ClientAddr},
		})
		return StartResult{}, fail(err, "Too many new sessions. Please wait a moment and try again.")
	}

	snap, err := s.catalog.Reload(ctx)
	if err != nil {
		snap = s.catalog.Snapshot()
		if snap == nil {
			s.metrics.sessionStarted("error")
			return StartResult{}, fmt.Errorf("assist: load config directory: %w", err)
		}
		s.logger.Warn("catalog reload failed, using previous snapshot", "error", err)
	}

	cfg, ok := snap.Lookup(req.AccessCode)
	if !ok {
		code := req.AccessCode
		if code == "" {
			code = "(not provided)"
		}
		s.metrics.sessionStarted("invalid_code")
		s.audit.Log(security.AuditEvent{
			Type:       security.EventInvalidCode,
			AccessCode: req.AccessCode,
			Metadata:   map[string]string{"remote_addr": req.ClientAddr},
		})
		s.logReport(ctx, "Invalid access code")
		return StartResult{}, fail(ErrInvalidAccessCode,
			fmt.Sprintf("Invalid access code: %s. Please check your access code in URL.", code))
	}

	if limit := s.maxSessions(); limit > 0 {
		n, err := s.sessions.Len(ctx)
		if err != nil {
			return StartResult{}, err
		}
		if n >= limit {
			s.metrics.sessionStarted("rate_limited")
			return StartResult{}, fail(ErrTooManySessions, "The server is at capacity. Please try again later.")
		}
	}

	exampleText, ok := snap.Example(cfg.Example)
	if !ok {
		s.metrics.sessionStarted("error")
		return StartResult{}, fail(ErrUnknownExample, fmt.Sprintf("Unknown example: %s.", cfg.Example))
	}
	promptText, ok := snap.Prompt(cfg.Prompt)
	if !ok {
		s.metrics.sessionStarted("error")
		return StartResult{}, fail(ErrUnknownExample, fmt.Sprintf("Unknown prompt: %s.", cfg.Prompt))
	}

	id := s.newID()
	now := s.now()
	sess := session.Session{
		ID:               id,
		AccessCode:       req.AccessCode,
		VerificationCode: id,
		StartedAt:        now,
		LastQueryAt:      now,
		Config:           cfg,
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		s.metrics.sessionStarted("error")
		return StartResult{}, err
	}

	record := sess.Record()
	if err := s.metadata.Append(record); err != nil {
		_ = s.sessions.Delete(ctx, id)
		s.metrics.sessionStarted("error")
		return StartResult{}, err
	}
	if s.index != nil {
		if err := s.index.Append(ctx, record); err != nil {
			s.logger.Warn("metadata index append failed", "session_id", id, "error", err)
		}
	}

	span.SetAttributes(
		attribute.String("session.id", id),
		attribute.String("session.domain", cfg.Domain),
		attribute.String("session.engine", cfg.Engine),
	)
	s.metrics.sessionStarted("ok")
	s.audit.Log(security.AuditEvent{
		Type:       security.EventSessionStart,
		SessionID:  id,
		AccessCode: req.AccessCode,
		Detail:     cfg.Domain,
	})
	s.logVerbose("new session created", "session", record)
	s.logReport(ctx, fmt.Sprintf("Session %s (%s: %s) has been started successfully.", id, cfg.Domain, cfg.Engine))

	return StartResult{
		AccessCode:  req.AccessCode,
		SessionID:   id,
		ExampleText: exampleText,
		PromptText:  promptText,
		Config:      cfg,
	}, nil
}

// EndRequest is the body of end_session.
type EndRequest struct {
	SessionID string            `json:"sessionId" validate:"required"`
	Logs      []json.RawMessage `json:"logs"`
}

// EndResult is the outcome of end_session. Saved is false when the log
// could not be written; Message then holds the reason.
type EndResult struct {
	Path             string `json:"path"`
	Saved            bool   `json:"status"`
	Message          string `json:"message,omitempty"`
	VerificationCode string `json:"verification_code"`
}

// EndSession stores the log of a session and returns its verification
// code. The session stays registered, so a repeated call succeeds again.
func (s *Service) EndSession(ctx context.Context, req EndRequest) EndResult {
	ctx, span := telemetry.Tracer().Start(ctx, "assist.EndSession")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", req.SessionID))

	res := EndResult{Path: s.logs.Path(req.SessionID)}

	path, err := s.logs.Save(req.SessionID, req.Logs)
	if err != nil {
		res.Message = err.Error()
		span.RecordError(err)
		s.logger.Error("saving session log failed", "session_id", req.SessionID, "error", err)
	} else {
		res.Path = path
		res.Saved = true
	}
	s.logVerbose("save log to file", "session_id", req.SessionID, "records", len(req.Logs), "status", res.Saved)

	sess, err := s.sessions.Get(ctx, req.SessionID)
	switch {
	case err == nil:
		res.VerificationCode = sess.VerificationCode
		s.logReport(ctx, fmt.Sprintf("Session %s has been saved successfully.", req.SessionID))
	default:
		if !errors.Is(err, session.ErrNotFound) {
			s.logger.Error("session lookup failed", "session_id", req.SessionID, "error", err)
		}
		res.VerificationCode = VerificationServerError
		s.logReport(ctx, fmt.Sprintf("Session %s has not been saved.", req.SessionID))
	}

	switch {
	case res.VerificationCode == VerificationServerError:
		s.metrics.sessionEnded("unknown_session")
	case !res.Saved:
		s.metrics.sessionEnded("save_error")
	default:
		s.metrics.sessionEnded("ok")
	}
	s.audit.Log(security.AuditEvent{
		Type:      security.EventSessionEnd,
		SessionID: req.SessionID,
		Detail:    fmt.Sprintf("saved=%t records=%d", res.Saved, len(req.Logs)),
	})
	return res
}

// Report returns the current-sessions report.
func (s *Service) Report(ctx context.Context) (session.Report, error) {
	sessions, err := s.sessions.List(ctx)
	if err != nil {
		return session.Report{}, err
	}
	return session.BuildReport(sessions, s.now()), nil
}

// LogReport writes the current-sessions report to the log under msg.
func (s *Service) LogReport(ctx context.Context, msg string) {
	s.logReport(ctx, msg)
}

func (s *Service) logReport(ctx context.Context, msg string) {
	report, err := s.Report(ctx)
	if err != nil {
		s.logger.Warn("session report failed", "error", err)
		return
	}
	s.logger.Info(msg, "sessions", report.Total, "active", report.Active)
	for _, e := range report.Recent {
		s.logger.Debug("session",
			"session_id", e.ID,
			"elapsed_from_start_min", e.MinutesSinceStart,
			"elapsed_from_last_query_min", e.MinutesIdle,
			"active", e.Active,
		)
	}
}

func (s *Service) maxSessions() int {
	if s.limiter == nil {
		return 0
	}
	return s.limiter.MaxSessions()
}
