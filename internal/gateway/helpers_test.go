package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/coauthor/internal/assist"
	"github.com/flemzord/coauthor/internal/catalog"
	"github.com/flemzord/coauthor/internal/core"
	"github.com/flemzord/coauthor/internal/provider/providertest"
	"github.com/flemzord/coauthor/internal/security"
	"github.com/flemzord/coauthor/internal/session"
	"github.com/flemzord/coauthor/internal/telemetry"
	"github.com/flemzord/coauthor/internal/transcript"
)

// testEnv is a provisioned Gateway backed by a real assist.Service.
type testEnv struct {
	g        *Gateway
	appCtx   *core.AppContext
	handler  http.Handler
	provider *providertest.MockProvider
	sessions *session.MemoryStore
	registry *prometheus.Registry
}

type envOption func(*testEnv)

// withServices registers extra services before the gateway resolves them.
func withServices(services map[string]any) envOption {
	return func(e *testEnv) {
		for name, svc := range services {
			e.appCtx.RegisterService(name, svc)
		}
	}
}

func writeTestFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newConfigDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeTestFile(t, dir, "access_code.csv",
		"access_code,domain,example,prompt,engine,n,max_tokens,temperature,stop\n"+
			"demo,story,story1,p1,text-davinci-003,3,30,0.7,.\n")
	writeTestFile(t, dir, "examples/story1.txt", "Once upon a time.")
	writeTestFile(t, dir, catalog.PromptsFile, "1\tp1\tWrite a story.\n")
	writeTestFile(t, dir, catalog.BlocklistFile, "darn\n")
	return dir
}

func newTestEnv(t *testing.T, cfg Config, opts ...envOption) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	logDir := t.TempDir()
	configDir := newConfigDir(t)

	e := &testEnv{
		appCtx:   core.NewAppContext(logger, configDir, logDir),
		provider: providertest.Returning([]float64{-0.1}, " and then it rained."),
		sessions: session.NewMemoryStore(),
		registry: prometheus.NewRegistry(),
	}
	e.appCtx.RegisterService(telemetry.ServiceMetrics, e.registry)

	cat := catalog.New(configDir, catalog.Options{UseBlocklist: true, Logger: logger})
	if _, err := cat.Reload(context.Background()); err != nil {
		t.Fatalf("catalog reload: %v", err)
	}
	logs, err := transcript.NewLogStore(filepath.Join(logDir, "proj"), logDir, transcript.LogStoreOptions{Logger: logger})
	if err != nil {
		t.Fatal(err)
	}
	metadata, err := transcript.NewMetadataStore(logDir)
	if err != nil {
		t.Fatal(err)
	}
	svc, err := assist.New(assist.Options{
		Catalog:  cat,
		Sessions: e.sessions,
		Provider: e.provider,
		Logs:     logs,
		Metadata: metadata,
		Logger:   logger,
	})
	if err != nil {
		t.Fatalf("assist.New: %v", err)
	}
	e.appCtx.RegisterService(assist.ServiceName, svc)

	for _, opt := range opts {
		opt(e)
	}

	e.g = &Gateway{config: cfg}
	if err := e.g.Provision(e.appCtx.ForModule("gateway.http")); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if err := e.g.resolve(); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	e.handler = e.g.buildRouter()
	return e
}

// do sends a request with an optional JSON body and returns the recorder.
func (e *testEnv) do(t *testing.T, method, path string, body any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

// post sends a JSON POST and decodes the JSON answer.
func (e *testEnv) post(t *testing.T, path string, body any) map[string]any {
	t.Helper()
	rr := e.do(t, http.MethodPost, path, body, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("POST %s: status = %d, body = %s", path, rr.Code, rr.Body.String())
	}
	return decodeBody(t, rr)
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return out
}

func (e *testEnv) startSession(t *testing.T) string {
	t.Helper()
	resp := e.post(t, "/api/start_session", map[string]any{"accessCode": "demo"})
	if resp["status"] != true {
		t.Fatalf("start_session failed: %v", resp)
	}
	return resp["session_id"].(string)
}

func bearer(token string) http.Header {
	return http.Header{"Authorization": {"Bearer " + token}}
}

// mustYAMLNode parses YAML text into a *yaml.Node for Configure calls.
func mustYAMLNode(t *testing.T, text string) *yaml.Node {
	t.Helper()
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(text), &node); err != nil {
		t.Fatalf("YAML parse: %v", err)
	}
	if len(node.Content) > 0 {
		return node.Content[0]
	}
	return &node
}

// stubReloader counts reload requests.
type stubReloader struct {
	calls int
	err   error
}

func (s *stubReloader) ReloadNow(context.Context) error {
	s.calls++
	return s.err
}

var _ Reloader = (*stubReloader)(nil)

func newLimiter(authPerMin int) *security.RateLimiter {
	return security.NewRateLimiter(security.RateLimitConfig{AuthPerMin: authPerMin})
}
