// Package assist implements the writing-assistant operations behind the
// HTTP API: starting and ending sessions, answering suggestion queries,
// and retrieving stored logs for replay.
package assist

import (
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/flemzord/coauthor/internal/catalog"
	"github.com/flemzord/coauthor/internal/provider"
	"github.com/flemzord/coauthor/internal/security"
	"github.com/flemzord/coauthor/internal/session"
	"github.com/flemzord/coauthor/internal/suggestion"
	"github.com/flemzord/coauthor/internal/transcript"
)

// ServiceName is the AppContext service under which the Service is
// registered.
const ServiceName = "assist.service"

// Sentinel errors carried by Failure.
var (
	ErrInvalidAccessCode = errors.New("assist: invalid access code")
	ErrUnknownSession    = errors.New("assist: unknown session")
	ErrUnknownExample    = errors.New("assist: unknown example")
	ErrTooManySessions   = errors.New("assist: too many sessions")
	ErrInsertionMarker   = errors.New("assist: more than one insertion marker")
)

// Failure is an error reported to the client in-band. Message is shown to
// the writer as is.
type Failure struct {
	Reason  error
	Message string
}

func (f *Failure) Error() string { return f.Message }

// Unwrap returns the sentinel behind the failure.
func (f *Failure) Unwrap() error { return f.Reason }

func fail(reason error, message string) *Failure {
	return &Failure{Reason: reason, Message: message}
}

// Options wires a Service. Catalog, Sessions, Provider, Logs, and Metadata
// are required; the rest are optional.
type Options struct {
	Catalog  *catalog.Catalog
	Sessions session.Store
	Provider provider.Provider
	Logs     *transcript.LogStore
	Metadata *transcript.MetadataStore

	// Index mirrors metadata and query outcomes when set.
	Index transcript.Index

	Limiter *security.RateLimiter
	Audit   *security.AuditLogger
	Metrics *Metrics
	Logger  *slog.Logger

	// Filter selects the suggestion checks. Zero value means every check.
	Filter *suggestion.FilterOptions

	// Verbose logs full requests and results at info level.
	Verbose bool
}

// Service implements the assistant operations. It is safe for concurrent
// use.
type Service struct {
	catalog  *catalog.Catalog
	sessions session.Store
	provider provider.Provider
	logs     *transcript.LogStore
	metadata *transcript.MetadataStore
	index    transcript.Index
	limiter  *security.RateLimiter
	audit    *security.AuditLogger
	metrics  *Metrics
	logger   *slog.Logger
	filter   suggestion.FilterOptions
	verbose  bool

	// now, newID, and shuffle are injectable for testing.
	now     func() time.Time
	newID   func() string
	shuffle func(n int, swap func(i, j int))
}

// New creates a Service.
func New(opts Options) (*Service, error) {
	var errs []error
	if opts.Catalog == nil {
		errs = append(errs, errors.New("assist: catalog is required"))
	}
	if opts.Sessions == nil {
		errs = append(errs, errors.New("assist: session store is required"))
	}
	if opts.Provider == nil {
		errs = append(errs, provider.ErrNoProvider)
	}
	if opts.Logs == nil {
		errs = append(errs, errors.New("assist: log store is required"))
	}
	if opts.Metadata == nil {
		errs = append(errs, errors.New("assist: metadata store is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	filter := suggestion.DefaultFilterOptions()
	if opts.Filter != nil {
		filter = *opts.Filter
	}

	return &Service{
		catalog:  opts.Catalog,
		sessions: opts.Sessions,
		provider: opts.Provider,
		logs:     opts.Logs,
		metadata: opts.Metadata,
		index:    opts.Index,
		limiter:  opts.Limiter,
		audit:    opts.Audit,
		metrics:  opts.Metrics,
		logger:   logger,
		filter:   filter,
		verbose:  opts.Verbose,
		now:      time.Now,
		newID:    session.NewID,
		shuffle:  rand.Shuffle,
	}, nil
}

// Sessions returns the session store.
func (s *Service) Sessions() session.Store { return s.sessions }

// Catalog returns the config-dir catalog.
func (s *Service) Catalog() *catalog.Catalog { return s.catalog }

// logVerbose logs payloads at info when verbose, debug otherwise.
func (s *Service) logVerbose(msg string, args ...any) {
	if s.verbose {
		s.logger.Info(msg, args...)
		return
	}
	s.logger.Debug(msg, args...)
}

func (s *Service) allow(kind, key string) error {
	if s.limiter == nil {
		return nil
	}
	return s.limiter.Allow(kind, key)
}
