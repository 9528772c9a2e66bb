package assist

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flemzord/coauthor/internal/catalog"
	"github.com/flemzord/coauthor/internal/provider"
	"github.com/flemzord/coauthor/internal/provider/providertest"
	"github.com/flemzord/coauthor/internal/security"
	"github.com/flemzord/coauthor/internal/session"
	"github.com/flemzord/coauthor/internal/transcript"
)

var epoch = time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// newConfigDir lays out a config directory with two access codes.
func newConfigDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "access_code.csv",
		"access_code,domain,example,prompt,engine,n,max_tokens,temperature,stop,additional_data,cohort\n"+
			"demo,story,story1,p1,text-davinci-003,3,30,0.7,.,na,A\n"+
			"broken,story,missing,p1,text-davinci-003,3,30,0.7,.,na,B\n")
	writeFile(t, dir, "examples/story1.txt", `Once upon a time.\n`)
	writeFile(t, dir, catalog.PromptsFile, "1\tp1\tWrite a story.\n")
	writeFile(t, dir, catalog.BlocklistFile, "darn\n")
	return dir
}

// recordingIndex is an in-memory transcript.Index.
type recordingIndex struct {
	mu      sync.Mutex
	records map[string]json.RawMessage
	queries []transcript.QueryRecord
}

func newRecordingIndex() *recordingIndex {
	return &recordingIndex{records: make(map[string]json.RawMessage)}
}

func (r *recordingIndex) Append(_ context.Context, record map[string]any) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[record["session_id"].(string)] = raw
	return nil
}

func (r *recordingIndex) Lookup(_ context.Context, id string) (json.RawMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", transcript.ErrNotFound, id)
	}
	return rec, nil
}

func (r *recordingIndex) RecordQuery(_ context.Context, q transcript.QueryRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries = append(r.queries, q)
	return nil
}

func (r *recordingIndex) Queries() []transcript.QueryRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]transcript.QueryRecord(nil), r.queries...)
}

type fixture struct {
	svc      *Service
	provider *providertest.MockProvider
	sessions *session.MemoryStore
	metadata *transcript.MetadataStore
	index    *recordingIndex
	logDir   string

	mu     sync.Mutex
	events []security.AuditEvent
}

func (f *fixture) auditEvents() []security.AuditEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]security.AuditEvent(nil), f.events...)
}

type fixtureOption func(*Options)

func withLimiter(cfg security.RateLimitConfig) fixtureOption {
	return func(o *Options) { o.Limiter = security.NewRateLimiter(cfg) }
}

func withMetrics(m *Metrics) fixtureOption {
	return func(o *Options) { o.Metrics = m }
}

func withoutIndex() fixtureOption {
	return func(o *Options) { o.Index = nil }
}

func newFixture(t *testing.T, p *providertest.MockProvider, opts ...fixtureOption) *fixture {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	logDir := t.TempDir()

	cat := catalog.New(newConfigDir(t), catalog.Options{UseBlocklist: true, Logger: logger})
	_, err := cat.Reload(context.Background())
	require.NoError(t, err)

	logs, err := transcript.NewLogStore(filepath.Join(logDir, "proj"), logDir, transcript.LogStoreOptions{Logger: logger})
	require.NoError(t, err)
	metadata, err := transcript.NewMetadataStore(logDir)
	require.NoError(t, err)

	f := &fixture{
		provider: p,
		sessions: session.NewMemoryStore(),
		metadata: metadata,
		index:    newRecordingIndex(),
		logDir:   logDir,
	}

	o := Options{
		Catalog:  cat,
		Sessions: f.sessions,
		Provider: p,
		Logs:     logs,
		Metadata: metadata,
		Index:    f.index,
		Audit: security.NewAuditLogger(security.AuditLoggerConfig{
			OnEvent: func(e security.AuditEvent) {
				f.mu.Lock()
				defer f.mu.Unlock()
				f.events = append(f.events, e)
			},
		}),
		Logger: logger,
	}
	for _, opt := range opts {
		opt(&o)
	}

	svc, err := New(o)
	require.NoError(t, err)

	ids := 0
	svc.now = func() time.Time { return epoch }
	svc.newID = func() string {
		ids++
		return fmt.Sprintf("session%02d", ids)
	}
	// Reverse instead of shuffling so order is checkable.
	svc.shuffle = func(n int, swap func(i, j int)) {
		for i := range n / 2 {
			swap(i, n-1-i)
		}
	}
	f.svc = svc
	return f
}

func (f *fixture) start(t *testing.T) string {
	t.Helper()
	res, err := f.svc.StartSession(context.Background(), StartRequest{AccessCode: "demo"})
	require.NoError(t, err)
	return res.SessionID
}

func noProvider() *providertest.MockProvider {
	return &providertest.MockProvider{
		CompleteFunc: func(context.Context, provider.CompletionRequest) (provider.CompletionResponse, error) {
			return provider.CompletionResponse{}, provider.ErrProviderDown
		},
	}
}

func TestNew_RequiresDependencies(t *testing.T) {
	t.Parallel()

	_, err := New(Options{})
	require.Error(t, err)
	for _, want := range []string{"catalog", "session store", "log store", "metadata store"} {
		require.ErrorContains(t, err, want)
	}
	require.ErrorIs(t, err, provider.ErrNoProvider)
}
