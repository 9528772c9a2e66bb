// Package core provides the module system the coauthor server is assembled
// from: module registration, lifecycle, and a shared service registry.
package core

import "strings"

// ModuleID is the namespaced identifier of a module (e.g. "provider.openai").
type ModuleID string

// Namespace returns the part of id before the first dot.
func (id ModuleID) Namespace() string {
	ns, _, _ := strings.Cut(string(id), ".")
	return ns
}

// Name returns the part of id after the first dot.
func (id ModuleID) Name() string {
	_, name, _ := strings.Cut(string(id), ".")
	return name
}

// ModuleInfo describes a registered module.
type ModuleInfo struct {
	// ID is unique across the registry.
	ID ModuleID

	// New returns a fresh, unconfigured instance.
	New func() Module
}

// Module is implemented by every module.
type Module interface {
	ModuleInfo() ModuleInfo
}
