// Package openai implements the provider.openai module, producing
// suggestions through the OpenAI Completions API.
package openai

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"

	goopenai "github.com/sashabaranov/go-openai"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/coauthor/internal/catalog"
	"github.com/flemzord/coauthor/internal/core"
	"github.com/flemzord/coauthor/internal/provider"
)

// ModuleID is the ID this module registers under.
const ModuleID core.ModuleID = "provider.openai"

func init() {
	core.RegisterModule(&Provider{})
}

// Compile-time interface guards.
var (
	_ provider.Provider = (*Provider)(nil)
	_ core.Module       = (*Provider)(nil)
	_ core.Configurable = (*Provider)(nil)
	_ core.Provisioner  = (*Provider)(nil)
	_ core.Validator    = (*Provider)(nil)
	_ core.Reloader     = (*Provider)(nil)
)

// Provider implements provider.Provider on top of go-openai.
type Provider struct {
	config Config
	logger *slog.Logger

	// active is what Complete uses. Reload replaces it as a whole.
	active atomic.Pointer[clientState]
}

type clientState struct {
	client       *goopenai.Client
	defaultModel string
}

// ModuleInfo implements core.Module.
func (p *Provider) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  ModuleID,
		New: func() core.Module { return &Provider{} },
	}
}

// Name implements provider.Provider.
func (p *Provider) Name() string { return "openai" }

// Configure implements core.Configurable.
func (p *Provider) Configure(node *yaml.Node) error {
	var cfg Config
	if err := node.Decode(&cfg); err != nil {
		return err
	}
	cfg.defaults()
	p.config = cfg
	return nil
}

// Provision implements core.Provisioner.
func (p *Provider) Provision(ctx *core.AppContext) error {
	p.logger = ctx.Logger
	p.config.defaults()
	p.resolveAPIKey(ctx)

	p.active.Store(p.newState())
	ctx.RegisterService(provider.ServiceName, provider.Provider(p))
	return nil
}

// resolveAPIKey falls back to the (openai, default) entry of the config
// directory's api_keys.csv when no key is configured.
func (p *Provider) resolveAPIKey(ctx *core.AppContext) {
	if p.config.APIKey != "" {
		return
	}
	keys, ok := core.ServiceAs[catalog.APIKeys](ctx, catalog.ServiceAPIKeys)
	if !ok {
		return
	}
	if key, ok := keys.Lookup(catalog.DefaultKey.Host, catalog.DefaultKey.Domain); ok {
		p.config.APIKey = key
		p.logger.Debug("using api key from config directory")
	}
}

// Validate implements core.Validator.
func (p *Provider) Validate() error {
	var errs []error
	if p.config.APIKey == "" {
		errs = append(errs, errors.New("provider.openai: api_key is required (config or api_keys.csv)"))
	}
	if err := p.config.validateTimeout(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Reload implements core.Reloader. It applies a new configuration by
// swapping in a fresh client; in-flight requests finish on the old one.
func (p *Provider) Reload(ctx *core.AppContext) error {
	node, ok := ctx.ModuleConfig(ModuleID)
	if !ok {
		return nil
	}

	next := &Provider{logger: p.logger}
	if err := next.Configure(node); err != nil {
		return fmt.Errorf("provider.openai: reload: %w", err)
	}
	next.resolveAPIKey(ctx)
	if err := next.Validate(); err != nil {
		return err
	}

	p.config = next.config
	p.active.Store(next.newState())
	p.logger.Info("provider.openai: configuration reloaded", "base_url", p.config.BaseURL)
	return nil
}

func (p *Provider) newState() *clientState {
	cc := goopenai.DefaultConfig(p.config.APIKey)
	cc.BaseURL = p.config.BaseURL
	cc.OrgID = p.config.Organization
	cc.HTTPClient = &http.Client{Timeout: p.config.parsedTimeout()}
	return &clientState{
		client:       goopenai.NewClientWithConfig(cc),
		defaultModel: p.config.DefaultModel,
	}
}
