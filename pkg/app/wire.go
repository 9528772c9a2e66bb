package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/flemzord/coauthor/internal/assist"
	"github.com/flemzord/coauthor/internal/catalog"
	"github.com/flemzord/coauthor/internal/config"
	"github.com/flemzord/coauthor/internal/core"
	"github.com/flemzord/coauthor/internal/cron"
	"github.com/flemzord/coauthor/internal/gateway"
	"github.com/flemzord/coauthor/internal/logging"
	"github.com/flemzord/coauthor/internal/provider"
	"github.com/flemzord/coauthor/internal/reload"
	"github.com/flemzord/coauthor/internal/security"
	"github.com/flemzord/coauthor/internal/session"
	"github.com/flemzord/coauthor/internal/suggestion"
	"github.com/flemzord/coauthor/internal/telemetry"
	"github.com/flemzord/coauthor/internal/transcript"
)

// Runtime is a fully wired server, ready to Start.
type Runtime struct {
	App      *core.App
	AppCtx   *core.AppContext
	Assist   *assist.Service
	Catalog  *catalog.Catalog
	Reloader *reload.Handler
	Logger   *slog.Logger

	closers []func(context.Context) error
}

// Close releases what Build opened, in reverse order. Modules are stopped
// by App.Stop, not here.
func (r *Runtime) Close(ctx context.Context) error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

func (r *Runtime) onClose(fn func(context.Context) error) {
	r.closers = append(r.closers, fn)
}

func closeWith(c io.Closer) func(context.Context) error {
	return func(context.Context) error { return c.Close() }
}

// Build wires every service and module of cfg. Nothing listens until
// Runtime.App.Start is called. On error, whatever was opened is closed.
func Build(ctx context.Context, cfg *config.Config, cfgPath string, console io.Writer) (_ *Runtime, err error) {
	rt := &Runtime{}
	defer func() {
		if err != nil {
			_ = rt.Close(context.Background())
		}
	}()

	// Logging first so that everything after it is redacted.
	redactor := security.NewRedactor()
	logger, logCloser, err := logging.New(cfg.Logging, console, redactor)
	if err != nil {
		return nil, err
	}
	rt.Logger = logger
	rt.onClose(closeWith(logCloser))

	shutdown, err := telemetry.Init(ctx, cfg.Telemetry, logger)
	if err != nil {
		return nil, err
	}
	rt.onClose(shutdown)

	audit := newAuditLogger(cfg.Security.AuditFile, redactor, rt)
	limiter := security.NewRateLimiter(cfg.Security.RateLimits)
	registry := telemetry.NewRegistry()

	appCtx := core.NewAppContext(logger, cfg.Paths.ConfigDir, cfg.Paths.LogDir)
	appCtx = appCtx.WithModuleConfigs(cfg.Modules)
	rt.AppCtx = appCtx

	// Register shared services for cross-module discovery.
	appCtx.RegisterService(security.ServiceAudit, audit)
	appCtx.RegisterService(security.ServiceRateLimiter, limiter)
	appCtx.RegisterService(telemetry.ServiceMetrics, registry)
	if cfgPath != "" {
		appCtx.RegisterService(config.ServicePath, cfgPath)
	}

	// The catalog and the API keys must be in place before the provider
	// module provisions.
	cat := catalog.New(cfg.Paths.ConfigDir, catalog.Options{
		UseBlocklist: cfg.UseBlocklist,
		Logger:       logger.With("component", "catalog"),
	})
	if _, err := cat.Reload(ctx); err != nil {
		return nil, err
	}
	rt.Catalog = cat
	appCtx.RegisterService(catalog.ServiceName, cat)

	keys, err := loadAPIKeys(cfg.Paths.ConfigDir, logger)
	if err != nil {
		return nil, err
	}
	redactor.SetLiterals(keys.Values())
	appCtx.RegisterService(catalog.ServiceAPIKeys, keys)

	sessions, err := newSessionStore(ctx, cfg.Sessions, rt)
	if err != nil {
		return nil, err
	}

	logs, err := transcript.NewLogStore(
		filepath.Join(cfg.Paths.LogDir, cfg.Paths.ProjName),
		cfg.Paths.ReplayDir,
		transcript.LogStoreOptions{IndexTTL: cfg.ReplayIndexTTL(), Logger: logger},
	)
	if err != nil {
		return nil, err
	}
	metadata, err := transcript.NewMetadataStore(cfg.Paths.LogDir)
	if err != nil {
		return nil, err
	}

	application := core.NewApp(appCtx)
	rt.App = application
	if err := application.LoadModules(config.Resolve(cfg)); err != nil {
		return nil, err
	}
	rt.onClose(func(context.Context) error {
		application.Stop()
		return nil
	})

	svc, err := wireAssist(appCtx, cfg, assist.Options{
		Catalog:  cat,
		Sessions: sessions,
		Logs:     logs,
		Metadata: metadata,
		Limiter:  limiter,
		Audit:    audit,
		Metrics:  assist.NewMetrics(registry),
		Logger:   logger.With("component", "assist"),
	})
	if err != nil {
		return nil, err
	}
	rt.Assist = svc

	rt.Reloader = reload.NewHandler(reload.HandlerConfig{
		App:        application,
		AppCtx:     appCtx,
		Catalog:    cat,
		ConfigPath: cfgPath,
		Redactor:   redactor,
		Audit:      audit,
		Logger:     logger.With("component", "reload"),
	})
	appCtx.RegisterService(gateway.ServiceReloader, gateway.Reloader(rt.Reloader))

	scheduler, err := newScheduler(cfg, svc, sessions, limiter, audit, logger)
	if err != nil {
		return nil, err
	}
	application.AppendModule(scheduler.ModuleInfo().ID, scheduler)

	return rt, nil
}

// wireAssist builds the assist service around the provider and index
// registered by the loaded modules.
func wireAssist(appCtx *core.AppContext, cfg *config.Config, opts assist.Options) (*assist.Service, error) {
	p, ok := core.ServiceAs[provider.Provider](appCtx, provider.ServiceName)
	if !ok {
		return nil, fmt.Errorf("%w: configure %s", provider.ErrNoProvider, providerModule)
	}
	opts.Provider = p

	if idx, ok := core.ServiceAs[transcript.Index](appCtx, transcript.ServiceIndex); ok {
		opts.Index = idx
	}

	filter := suggestion.DefaultFilterOptions()
	filter.UseBlocklist = cfg.UseBlocklist
	opts.Filter = &filter
	opts.Verbose = cfg.Verbose

	svc, err := assist.New(opts)
	if err != nil {
		return nil, err
	}
	appCtx.RegisterService(assist.ServiceName, svc)
	return svc, nil
}

func loadAPIKeys(dir string, logger *slog.Logger) (catalog.APIKeys, error) {
	keys, err := catalog.LoadAPIKeys(dir)
	if errors.Is(err, catalog.ErrNoAPIKeys) {
		logger.Warn("no api keys file in config directory", "dir", dir)
		return catalog.APIKeys{}, nil
	}
	return keys, err
}

func newAuditLogger(path string, redactor *security.Redactor, rt *Runtime) *security.AuditLogger {
	cfg := security.AuditLoggerConfig{Redactor: redactor}
	if path != "" {
		rotator := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    10,
			MaxBackups: 5,
			Compress:   true,
		}
		cfg.Writer = rotator
		rt.onClose(closeWith(rotator))
	}
	return security.NewAuditLogger(cfg)
}

func newSessionStore(ctx context.Context, cfg config.SessionsConfig, rt *Runtime) (session.Store, error) {
	if cfg.Backend != config.BackendRedis {
		return session.NewMemoryStore(), nil
	}
	store, err := session.NewRedisStore(ctx, cfg.RedisURL, cfg.RedisPrefix)
	if err != nil {
		return nil, err
	}
	rt.onClose(func(context.Context) error { return store.Close() })
	return store, nil
}

// newScheduler registers the periodic jobs: the sessions report, rate
// limiter upkeep, and idle-session expiry when sessions.max_idle is set.
func newScheduler(
	cfg *config.Config,
	svc *assist.Service,
	sessions session.Store,
	limiter *security.RateLimiter,
	audit *security.AuditLogger,
	logger *slog.Logger,
) (*cron.Scheduler, error) {
	cronLogger := logger.With("component", "cron")
	scheduler := cron.NewScheduler(cronLogger)

	jobs := []cron.Job{
		&cron.SessionReportJob{Reporter: svc, ScheduleExpr: cfg.Sessions.ReportSchedule},
		&cron.RateLimiterSweepJob{Limiter: limiter, Logger: cronLogger},
	}
	if maxIdle := cfg.MaxIdle(); maxIdle > 0 {
		jobs = append(jobs, &cron.SessionExpiryJob{
			Store:   sessions,
			MaxIdle: maxIdle,
			Audit:   audit,
			Logger:  cronLogger,
		})
	}
	for _, j := range jobs {
		if err := scheduler.RegisterJob(j); err != nil {
			return nil, err
		}
	}
	return scheduler, nil
}
