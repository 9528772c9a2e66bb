package config

import (
	"cmp"
	"slices"
	"strings"
)

// loadOrder ranks module namespaces. Modules that register services are
// provisioned before the ones that look them up.
var loadOrder = map[string]int{
	"index":    0,
	"provider": 1,
	"cron":     2,
	"gateway":  3,
}

// Resolve returns the module IDs of cfg in provisioning order: by
// namespace rank, then by ID. Unknown namespaces come last.
func Resolve(cfg *Config) []string {
	ids := make([]string, 0, len(cfg.Modules))
	for id := range cfg.Modules {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b string) int {
		return cmp.Or(cmp.Compare(rank(a), rank(b)), strings.Compare(a, b))
	})
	return ids
}

func rank(id string) int {
	ns, _, _ := strings.Cut(id, ".")
	if r, ok := loadOrder[ns]; ok {
		return r
	}
	return len(loadOrder)
}
