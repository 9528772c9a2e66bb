package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/coauthor/internal/assist"
	"github.com/flemzord/coauthor/internal/config"
	"github.com/flemzord/coauthor/internal/core"
	"github.com/flemzord/coauthor/internal/security"
	"github.com/flemzord/coauthor/internal/telemetry"
)

func init() {
	core.RegisterModule(&Gateway{})
}

// Reloader re-reads the configuration on demand. The config watcher
// registers one under ServiceReloader.
type Reloader interface {
	ReloadNow(ctx context.Context) error
}

// ServiceReloader is the AppContext service name of the Reloader used by
// POST /api/config/reload.
const ServiceReloader = "reload.trigger"

// Gateway is the HTTP gateway module. It serves the writing-assistant API
// and the health, status, metrics, and admin endpoints.
type Gateway struct {
	config    Config
	appCtx    *core.AppContext
	logger    *slog.Logger
	server    *http.Server
	metrics   *Metrics
	validate  *validator.Validate
	startedAt time.Time

	// Resolved lazily at Start() via service registry.
	assist     *assist.Service
	audit      *security.AuditLogger
	limiter    *security.RateLimiter
	gatherer   prometheus.Gatherer
	configPath string
	reloader   Reloader
}

// ModuleInfo implements core.Module.
func (g *Gateway) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "gateway.http",
		New: func() core.Module { return &Gateway{} },
	}
}

// Configure implements core.Configurable.
func (g *Gateway) Configure(node *yaml.Node) error {
	if err := node.Decode(&g.config); err != nil {
		return err
	}
	g.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (g *Gateway) Provision(ctx *core.AppContext) error {
	g.config.defaults()
	g.appCtx = ctx
	g.logger = ctx.Logger
	g.validate = newValidator()

	var reg prometheus.Registerer
	if r, ok := core.ServiceAs[*prometheus.Registry](ctx, telemetry.ServiceMetrics); ok {
		reg = r
	}
	g.metrics = NewMetrics(reg)
	ctx.RegisterService("gateway.metrics", g.metrics)
	return nil
}

// Validate implements core.Validator.
func (g *Gateway) Validate() error {
	if _, err := net.ResolveTCPAddr("tcp", g.config.Bind); err != nil {
		return errors.New("gateway: invalid bind address: " + g.config.Bind)
	}
	return nil
}

// resolve binds the services registered by other components. Only the
// assistant service is required.
func (g *Gateway) resolve() error {
	svc, ok := core.ServiceAs[*assist.Service](g.appCtx, assist.ServiceName)
	if !ok {
		return fmt.Errorf("gateway: service %q is not registered", assist.ServiceName)
	}
	g.assist = svc

	g.audit, _ = core.ServiceAs[*security.AuditLogger](g.appCtx, security.ServiceAudit)
	g.limiter, _ = core.ServiceAs[*security.RateLimiter](g.appCtx, security.ServiceRateLimiter)
	g.configPath, _ = core.ServiceAs[string](g.appCtx, config.ServicePath)
	g.reloader, _ = core.ServiceAs[Reloader](g.appCtx, ServiceReloader)

	g.gatherer = prometheus.DefaultGatherer
	if reg, ok := core.ServiceAs[*prometheus.Registry](g.appCtx, telemetry.ServiceMetrics); ok {
		g.gatherer = reg
	}
	return nil
}

// Start implements core.Starter. It resolves dependencies from the service
// registry (lazy binding) and starts the HTTP server.
func (g *Gateway) Start() error {
	if err := g.resolve(); err != nil {
		return err
	}

	g.startedAt = time.Now()

	g.server = &http.Server{
		Addr:         g.config.Bind,
		Handler:      g.buildRouter(),
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		return errors.New("gateway: listen failed: " + err.Error())
	}

	go func() {
		g.logger.Info("gateway listening", "addr", ln.Addr().String())
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()

	return nil
}

// Stop implements core.Stopper. Graceful shutdown with configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return g.server.Shutdown(shutdownCtx)
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}
