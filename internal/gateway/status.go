package gateway

import (
	"net/http"
	"time"

	"github.com/flemzord/coauthor/internal/core"
)

// StatusResponse is the JSON response for GET /status.
type StatusResponse struct {
	Uptime   time.Duration   `json:"uptime_seconds"`
	Metrics  MetricsSnapshot `json:"metrics"`
	Sessions int             `json:"sessions"`
	Catalog  CatalogStatus   `json:"catalog"`

	// Providers lists the registered completion provider modules.
	Providers []string `json:"providers"`
}

// CatalogStatus counts what the last catalog load found.
type CatalogStatus struct {
	AccessCodes int       `json:"access_codes"`
	Examples    int       `json:"examples"`
	Prompts     int       `json:"prompts"`
	Blocklist   int       `json:"blocklist"`
	LoadedAt    time.Time `json:"loaded_at"`
}

// handleStatus returns an http.HandlerFunc for GET /status.
func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := StatusResponse{
			Uptime:  time.Since(g.startedAt).Truncate(time.Second) / time.Second,
			Metrics: g.metrics.Snapshot(),
		}

		for _, info := range core.GetModulesByNamespace("provider") {
			resp.Providers = append(resp.Providers, string(info.ID))
		}

		if n, err := g.assist.Sessions().Len(r.Context()); err == nil {
			resp.Sessions = n
		}

		if snap := g.assist.Catalog().Snapshot(); snap != nil {
			resp.Catalog = CatalogStatus{
				AccessCodes: len(snap.AccessCodes),
				Examples:    len(snap.Examples),
				Prompts:     len(snap.Prompts),
				Blocklist:   snap.Blocklist.Len(),
				LoadedAt:    snap.LoadedAt,
			}
		}

		writeJSON(w, http.StatusOK, resp)
	}
}
