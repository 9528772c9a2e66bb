// Package session keeps track of writing sessions between start and end.
package session

import (
	"context"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/flemzord/coauthor/internal/catalog"
)

// ErrNotFound is returned when a session ID is not registered.
var ErrNotFound = errors.New("session: not found")

// Session is one writing session. Config is the generation configuration
// of the access code the session was started with.
type Session struct {
	ID               string                   `json:"session_id"`
	AccessCode       string                   `json:"access_code"`
	VerificationCode string                   `json:"verification_code"`
	StartedAt        time.Time                `json:"start_timestamp"`
	LastQueryAt      time.Time                `json:"last_query_timestamp"`
	Config           catalog.GenerationConfig `json:"config"`
}

// Clone returns a deep copy of s.
func (s Session) Clone() Session {
	s.Config = s.Config.Clone()
	return s
}

// Record returns the metadata record written when the session starts: the
// session fields and its generation configuration in one flat object.
// Timestamps are seconds since the Unix epoch.
func (s Session) Record() map[string]any {
	rec := s.Config.Fields()
	rec["access_code"] = s.AccessCode
	rec["session_id"] = s.ID
	rec["verification_code"] = s.VerificationCode
	rec["start_timestamp"] = unixSeconds(s.StartedAt)
	rec["last_query_timestamp"] = unixSeconds(s.LastQueryAt)
	return rec
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// Store holds sessions. Implementations must be safe for concurrent use
// and return copies, never shared values.
type Store interface {
	// Create registers a new session, replacing any session with the same ID.
	Create(ctx context.Context, sess Session) error

	// Get returns the session with the given ID or ErrNotFound.
	Get(ctx context.Context, id string) (Session, error)

	// Touch sets LastQueryAt to the current time and returns the updated
	// session, or ErrNotFound.
	Touch(ctx context.Context, id string) (Session, error)

	// Delete removes a session. Deleting an unknown ID is not an error.
	Delete(ctx context.Context, id string) error

	// Prune removes sessions whose last query is older than maxIdle and
	// returns how many were removed.
	Prune(ctx context.Context, maxIdle time.Duration) (int, error)

	// List returns every session.
	List(ctx context.Context) ([]Session, error)

	// Len returns the number of sessions.
	Len(ctx context.Context) (int, error)
}

// NewID returns a random session ID: a version 4 UUID as 32 hex digits.
func NewID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}
