package gateway

import (
	"net/http"
	"time"

	"github.com/shiftwise/shiftwise/internal/provider"
)

// ProviderHealth is one provider's entry in the health response.
type ProviderHealth struct {
	ID        string `json:"id"`
	Model     string `json:"model"`
	Available bool   `json:"available"`
	Error     string `json:"error,omitempty"`
}

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status    string           `json:"status"` // "ok" or "degraded"
	Uptime    string           `json:"uptime"`
	Providers []ProviderHealth `json:"providers,omitempty"`
}

// handleHealth reports 200 while every checkable provider is reachable,
// 503 once any is not. Providers without a health check count as healthy.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status: "ok",
			Uptime: time.Since(g.startedAt).Round(time.Second).String(),
		}

		if g.providers != nil {
			for _, id := range g.providers.IDs() {
				p, err := g.providers.Get(id)
				if err != nil {
					continue
				}
				ph := ProviderHealth{ID: id, Model: p.ModelName(), Available: true}
				if hc, ok := p.(provider.HealthChecker); ok {
					if err := hc.HealthCheck(r.Context()); err != nil {
						ph.Available = false
						ph.Error = err.Error()
						resp.Status = "degraded"
					}
				}
				resp.Providers = append(resp.Providers, ph)
			}
		}

		code := http.StatusOK
		if resp.Status == "degraded" {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, resp)
	}
}
