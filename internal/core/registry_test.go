package core

import (
	"strings"
	"testing"
)

func TestModuleID_Parts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		id       ModuleID
		ns, name string
	}{
		{"provider.openai", "provider", "openai"},
		{"index.sqlite", "index", "sqlite"},
		{"cron.scheduler.extra", "cron", "scheduler.extra"},
		{"plain", "plain", ""},
	}
	for _, tt := range tests {
		if got := tt.id.Namespace(); got != tt.ns {
			t.Errorf("%s.Namespace() = %q, want %q", tt.id, got, tt.ns)
		}
		if got := tt.id.Name(); got != tt.name {
			t.Errorf("%s.Name() = %q, want %q", tt.id, got, tt.name)
		}
	}
}

func TestGetModulesByNamespace(t *testing.T) {
	RegisterModule(&lifecycleModule{id: "registrytest.b"})
	RegisterModule(&lifecycleModule{id: "registrytest.a"})
	RegisterModule(&lifecycleModule{id: "registrytestx.c"})

	got := GetModulesByNamespace("registrytest")
	if len(got) != 2 || got[0].ID != "registrytest.a" || got[1].ID != "registrytest.b" {
		t.Errorf("GetModulesByNamespace = %v", got)
	}
}

func TestRegisterModule_Panics(t *testing.T) {
	RegisterModule(&lifecycleModule{id: "registrytest.dup"})

	tests := map[string]ModuleID{
		"duplicate":    "registrytest.dup",
		"no namespace": "loose",
		"empty":        "",
	}
	for name, id := range tests {
		t.Run(name, func(t *testing.T) {
			defer func() {
				r := recover()
				if r == nil {
					t.Fatalf("RegisterModule(%q) did not panic", id)
				}
				if msg, _ := r.(string); !strings.HasPrefix(msg, "core: ") {
					t.Errorf("panic = %v", r)
				}
			}()
			RegisterModule(&lifecycleModule{id: id})
		})
	}
}
