package gateway

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shiftwise/shiftwise/internal/config"
	"github.com/shiftwise/shiftwise/internal/security"
)

// Cooldowns cross the API as whole minutes; operators never need finer
// granularity and it keeps the JSON readable.
type toolOverrideRequest struct {
	Enabled                *bool `json:"enabled"`
	RequireConfirmation    *bool `json:"require_confirmation"`
	PerUserCooldownMinutes *int  `json:"per_user_cooldown_minutes"`
	GlobalCooldownMinutes  *int  `json:"global_cooldown_minutes"`
	MaxPerHour             *int  `json:"max_per_hour"`
}

type moduleOverrideRequest struct {
	Enabled         *bool    `json:"enabled"`
	Priority        *int     `json:"priority"`
	AppendedText    string   `json:"appended_text"`
	TriggerKeywords []string `json:"trigger_keywords"`
}

func minutes(p *int) *time.Duration {
	if p == nil {
		return nil
	}
	d := time.Duration(*p) * time.Minute
	return &d
}

func (g *Gateway) handleSetToolOverride() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req toolOverrideRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		name := chi.URLParam(r, "name")
		ov := config.ToolOverride{
			Enabled:             req.Enabled,
			RequireConfirmation: req.RequireConfirmation,
			PerUserCooldown:     minutes(req.PerUserCooldownMinutes),
			GlobalCooldown:      minutes(req.GlobalCooldownMinutes),
			MaxPerHour:          req.MaxPerHour,
		}
		if err := g.overrides.SetToolOverride(r.Context(), name, ov); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		g.cache.Invalidate()
		g.audit.Log(security.AuditEvent{
			Type:     security.EventConfigChange,
			ToolName: name,
			Detail:   "tool override updated",
		})
		w.WriteHeader(http.StatusNoContent)
	}
}

func (g *Gateway) handleSetModuleOverride() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req moduleOverrideRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		id := chi.URLParam(r, "id")
		ov := config.ModuleOverride{
			Enabled:         req.Enabled,
			Priority:        req.Priority,
			AppendedText:    req.AppendedText,
			TriggerKeywords: req.TriggerKeywords,
		}
		if err := g.overrides.SetModuleOverride(r.Context(), id, ov); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		g.cache.Invalidate()
		g.audit.Log(security.AuditEvent{
			Type:   security.EventConfigChange,
			Detail: "module override updated: " + id,
		})
		w.WriteHeader(http.StatusNoContent)
	}
}
