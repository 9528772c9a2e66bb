package reload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/flemzord/coauthor/internal/catalog"
	"github.com/flemzord/coauthor/internal/config"
	"github.com/flemzord/coauthor/internal/core"
	"github.com/flemzord/coauthor/internal/security"
)

// HandlerConfig wires a Handler.
type HandlerConfig struct {
	App     *core.App
	AppCtx  *core.AppContext
	Catalog *catalog.Catalog

	// ConfigPath is the YAML file modules are reloaded from. Empty when the
	// server was configured from flags; only the catalog is reloaded then.
	ConfigPath string

	Redactor *security.Redactor    // optional
	Audit    *security.AuditLogger // optional
	Logger   *slog.Logger
}

// Handler reloads the catalog and the module configuration.
type Handler struct {
	app        *core.App
	appCtx     *core.AppContext
	catalog    *catalog.Catalog
	configPath string
	redactor   *security.Redactor
	audit      *security.AuditLogger
	logger     *slog.Logger
}

// NewHandler creates a reload handler.
func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		app:        cfg.App,
		appCtx:     cfg.AppCtx,
		catalog:    cfg.Catalog,
		configPath: cfg.ConfigPath,
		redactor:   cfg.Redactor,
		audit:      cfg.Audit,
		logger:     logger,
	}
}

// ReloadNow reloads the catalog and, when a configuration file is known,
// the modules.
func (h *Handler) ReloadNow(ctx context.Context) error {
	var errs []error
	if err := h.ReloadCatalog(ctx); err != nil {
		errs = append(errs, err)
	}
	if h.configPath != "" {
		if err := h.HandleReload(ctx, h.configPath); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// HandleEvent reacts to a watcher event. The catalog is always reloaded;
// modules only when the configuration file is among the changed paths.
func (h *Handler) HandleEvent(ctx context.Context, ev Event) error {
	h.logger.Info("config directory changed, reloading", "paths", ev.Paths)

	var errs []error
	if err := h.ReloadCatalog(ctx); err != nil {
		errs = append(errs, err)
	}
	if ev.Has(h.configPath) {
		if err := h.HandleReload(ctx, h.configPath); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ReloadCatalog re-reads the config directory. On failure the previous
// snapshot keeps serving. API keys are re-read too and the redactor
// learns the new values.
func (h *Handler) ReloadCatalog(ctx context.Context) error {
	snap, err := h.catalog.Reload(ctx)
	if err != nil {
		return fmt.Errorf("reloading catalog: %w", err)
	}

	keys, err := catalog.LoadAPIKeys(h.catalog.Dir())
	switch {
	case errors.Is(err, catalog.ErrNoAPIKeys):
		keys = catalog.APIKeys{}
	case err != nil:
		return fmt.Errorf("reloading api keys: %w", err)
	}
	if h.redactor != nil {
		h.redactor.SetLiterals(keys.Values())
	}
	if h.appCtx != nil {
		h.appCtx.RegisterService(catalog.ServiceAPIKeys, keys)
	}

	h.audit.Log(security.AuditEvent{
		Type: security.EventCatalogReload,
		Detail: fmt.Sprintf("access_codes=%d examples=%d prompts=%d blocklist=%d",
			len(snap.AccessCodes), len(snap.Examples), len(snap.Prompts), snap.Blocklist.Len()),
	})
	h.logger.Info("catalog reloaded", "access_codes", len(snap.AccessCodes))
	return nil
}

// HandleReload loads a fresh config from disk, validates it, and calls Reload
// on all modules that implement core.Reloader.
func (h *Handler) HandleReload(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg.Defaults()
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	return h.HandleReloadFromConfig(ctx, cfg)
}

// HandleReloadFromConfig reloads modules from a pre-loaded, already-validated
// config. The caller is responsible for calling config.Validate before this
// method; it will not re-validate.
func (h *Handler) HandleReloadFromConfig(ctx context.Context, cfg *config.Config) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before reload: %w", err)
	}

	if err := h.app.ReloadModules(h.appCtx.WithModuleConfigs(cfg.Modules)); err != nil {
		return fmt.Errorf("reloading modules: %w", err)
	}

	h.logger.Info("configuration reloaded successfully")
	return nil
}
