package core

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"sync"
)

var (
	modules   = make(map[string]ModuleInfo)
	modulesMu sync.RWMutex
)

// RegisterModule adds instance's ModuleInfo to the registry. Modules call
// it from init, so a bad or duplicate registration panics at startup.
func RegisterModule(instance Module) {
	info := instance.ModuleInfo()
	switch {
	case info.ID == "":
		panic("core: module ID must not be empty")
	case !strings.Contains(string(info.ID), "."):
		panic(fmt.Sprintf("core: module ID %q must be namespace.name", info.ID))
	case info.New == nil:
		panic(fmt.Sprintf("core: module %s has no New function", info.ID))
	}

	modulesMu.Lock()
	defer modulesMu.Unlock()

	id := string(info.ID)
	if _, exists := modules[id]; exists {
		panic(fmt.Sprintf("core: module already registered: %s", id))
	}
	modules[id] = info
}

// GetModule returns the ModuleInfo for the given ID, or false if not found.
func GetModule(id string) (ModuleInfo, bool) {
	modulesMu.RLock()
	defer modulesMu.RUnlock()
	info, ok := modules[id]
	return info, ok
}

// GetModules returns all registered modules sorted by ID.
func GetModules() []ModuleInfo {
	return selectModules(func(ModuleInfo) bool { return true })
}

// GetModulesByNamespace returns the modules in namespace sorted by ID, e.g.
// "provider" selects "provider.openai".
func GetModulesByNamespace(namespace string) []ModuleInfo {
	return selectModules(func(info ModuleInfo) bool {
		return info.ID.Namespace() == namespace
	})
}

func selectModules(keep func(ModuleInfo) bool) []ModuleInfo {
	modulesMu.RLock()
	defer modulesMu.RUnlock()

	var result []ModuleInfo
	for _, info := range modules {
		if keep(info) {
			result = append(result, info)
		}
	}
	slices.SortFunc(result, func(a, b ModuleInfo) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return result
}
