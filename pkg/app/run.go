// Package app provides the entry point of the coauthor server: it resolves
// the configuration, wires the services and modules, and runs them until a
// shutdown signal.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/coauthor/internal/config"
	"github.com/flemzord/coauthor/internal/gateway"
	"github.com/flemzord/coauthor/internal/reload"
)

// Module IDs included in a configuration synthesized from flags.
const (
	gatewayModule  = "gateway.http"
	providerModule = "provider.openai"
)

// Overrides carry command-line flags. Zero values leave the configuration
// untouched.
type Overrides struct {
	ConfigDir string
	LogDir    string
	ProjName  string
	ReplayDir string

	// Port makes the gateway listen on all interfaces at this port.
	Port int

	Debug        bool
	Verbose      bool
	UseBlocklist bool
}

// RunParams configures the main application loop.
type RunParams struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, ResolveConfigPath is called; when no file is found the
	// configuration is built from Overrides alone.
	ConfigPath string

	Overrides Overrides

	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string
}

// LoadConfig resolves, loads, overrides, and validates the configuration.
// It returns the path the configuration came from, empty when it was
// synthesized from flags.
func LoadConfig(params RunParams) (*config.Config, string, error) {
	cfgPath := params.ConfigPath
	if cfgPath == "" {
		if resolved, err := ResolveConfigPath(); err == nil {
			cfgPath = resolved
		}
	}

	var cfg *config.Config
	if cfgPath != "" {
		loaded, err := config.Load(cfgPath)
		if err != nil {
			return nil, "", err
		}
		cfg = loaded
	} else {
		cfg = flagsConfig()
	}

	if err := applyOverrides(cfg, params.Overrides); err != nil {
		return nil, "", err
	}
	cfg.Defaults()
	if err := config.Validate(cfg); err != nil {
		return nil, "", err
	}
	return cfg, cfgPath, nil
}

// flagsConfig is the configuration used when no file exists: the gateway
// and the OpenAI provider, whose key comes from api_keys.csv.
func flagsConfig() *config.Config {
	return &config.Config{
		Version: "1",
		Modules: map[string]yaml.Node{
			gatewayModule:  {Kind: yaml.MappingNode, Tag: "!!map"},
			providerModule: {Kind: yaml.MappingNode, Tag: "!!map"},
		},
	}
}

func applyOverrides(cfg *config.Config, o Overrides) error {
	if o.ConfigDir != "" {
		cfg.Paths.ConfigDir = o.ConfigDir
	}
	if o.LogDir != "" {
		cfg.Paths.LogDir = o.LogDir
	}
	if o.ProjName != "" {
		cfg.Paths.ProjName = o.ProjName
	}
	if o.ReplayDir != "" {
		cfg.Paths.ReplayDir = o.ReplayDir
	}
	cfg.Debug = cfg.Debug || o.Debug
	cfg.Verbose = cfg.Verbose || o.Verbose
	cfg.UseBlocklist = cfg.UseBlocklist || o.UseBlocklist

	if o.Port != 0 {
		if o.Port < 0 || o.Port > 65535 {
			return fmt.Errorf("invalid port %d", o.Port)
		}
		bind := "0.0.0.0:" + strconv.Itoa(o.Port)
		if err := setModuleValue(cfg, gatewayModule, "bind", bind); err != nil {
			return err
		}
	}
	return nil
}

// setModuleValue sets key in the YAML mapping of module id, creating the
// module entry when missing.
func setModuleValue(cfg *config.Config, id, key string, value any) error {
	if cfg.Modules == nil {
		cfg.Modules = make(map[string]yaml.Node)
	}

	fields := map[string]any{}
	if node, ok := cfg.Modules[id]; ok && node.Kind != 0 {
		if err := node.Decode(&fields); err != nil {
			return fmt.Errorf("decoding %s config: %w", id, err)
		}
		if fields == nil {
			fields = map[string]any{}
		}
	}
	fields[key] = value

	var node yaml.Node
	if err := node.Encode(fields); err != nil {
		return fmt.Errorf("encoding %s config: %w", id, err)
	}
	cfg.Modules[id] = node
	return nil
}

// Run loads configuration, starts all modules, and blocks until a shutdown
// signal is received. SIGHUP and config-directory changes trigger a live
// reload of the catalog and of modules that implement core.Reloader.
func Run(params RunParams) error {
	cfg, cfgPath, err := LoadConfig(params)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := Build(ctx, cfg, cfgPath, os.Stderr)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(context.Background()); err != nil {
			rt.Logger.Error("shutdown cleanup failed", "error", err)
		}
	}()

	logger := rt.Logger
	logger.Info("starting coauthor",
		"version", params.Version,
		"commit", params.Commit,
		"config", cfgPath,
		"config_dir", cfg.Paths.ConfigDir,
		"log_dir", cfg.Paths.LogDir,
	)

	if err := rt.App.Start(); err != nil {
		return err
	}

	// --- signal handling ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	// --- config directory watcher ---
	var events <-chan reload.Event
	if cfg.Reload.Watch {
		watcher, err := reload.NewWatcher(reload.WatcherConfig{
			Dirs:     watchDirs(cfg, cfgPath),
			Debounce: cfg.ReloadDebounce(),
			Logger:   logger,
		})
		if err != nil {
			logger.Warn("config watcher unavailable, reload with SIGHUP", "error", err)
		} else {
			watcher.Start(ctx)
			defer watcher.Stop()
			events = watcher.Events()
		}
	}

	// --- main event loop ---
	for {
		select {
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGHUP:
				logger.Info("SIGHUP received, reloading configuration")
				if err := rt.Reloader.ReloadNow(ctx); err != nil {
					logger.Error("reload failed", "error", err)
				}
			default:
				logger.Info("shutdown signal received", "signal", sig.String())
				rt.App.Stop()
				logger.Info("shutdown complete")
				return nil
			}
		case evt := <-events:
			if err := rt.Reloader.HandleEvent(ctx, evt); err != nil {
				logger.Error("reload failed", "error", err)
			}
		}
	}
}

// watchDirs lists the config directory, its examples subdirectory, and
// the directory of the configuration file.
func watchDirs(cfg *config.Config, cfgPath string) []string {
	dirs := []string{
		cfg.Paths.ConfigDir,
		filepath.Join(cfg.Paths.ConfigDir, "examples"),
	}
	if cfgPath != "" {
		dirs = append(dirs, filepath.Dir(cfgPath))
	}
	return dirs
}

// ResolveConfigPath searches for a config file in standard locations.
// Search order: $XDG_CONFIG_HOME/coauthor/coauthor.yaml →
// ~/.config/coauthor/coauthor.yaml → ./coauthor.yaml
func ResolveConfigPath() (string, error) {
	var candidates []string

	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		candidates = append(candidates, filepath.Join(xdg, "coauthor", "coauthor.yaml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "coauthor", "coauthor.yaml"))
	}

	candidates = append(candidates, "coauthor.yaml")

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("%w (searched: %v)", ErrNoConfigFile, candidates)
}

// ErrNoConfigFile is returned by ResolveConfigPath when no candidate exists.
var ErrNoConfigFile = errors.New("no configuration file found")

// Compile-time interface check.
var _ gateway.Reloader = (*reload.Handler)(nil)
