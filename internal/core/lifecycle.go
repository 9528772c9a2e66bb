package core

import (
	"context"

	"gopkg.in/yaml.v3"
)

// Configurable modules receive their section of the "modules" map before
// Provision. Modules without a section are not configured at all.
type Configurable interface {
	Configure(node *yaml.Node) error
}

// Provisioner modules apply defaults, open their resources and register
// services on the AppContext (a provider, the metadata index).
type Provisioner interface {
	Provision(ctx *AppContext) error
}

// Validator modules check their settings after Provision. Validate must
// not change state.
type Validator interface {
	Validate() error
}

// Starter modules begin serving once every module has been provisioned,
// so services registered by later modules are available to them.
type Starter interface {
	Start() error
}

// Stopper modules release what they hold. Stop runs in reverse start order.
type Stopper interface {
	Stop(ctx context.Context) error
}

// Reloader modules apply a new configuration without a restart. ctx
// carries the new module configs; see AppContext.ModuleConfig.
type Reloader interface {
	Reload(ctx *AppContext) error
}
