package gateway

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/shiftwise/shiftwise/internal/agent"
)

type createRunRequest struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
	DryRun  bool   `json:"dry_run"`
}

type agentSummary struct {
	ID            string   `json:"id"`
	Name          string   `json:"name,omitempty"`
	Tools         []string `json:"tools"`
	MaxIterations int      `json:"max_iterations"`
}

func (g *Gateway) handleListAgents() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		defs := g.runner.Agents()
		out := make([]agentSummary, 0, len(defs))
		for _, d := range defs {
			out = append(out, agentSummary{
				ID:            d.ID,
				Name:          d.Name,
				Tools:         d.Tools,
				MaxIterations: d.MaxIterations,
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// handleCreateRun executes a run synchronously. Inbound messages share the
// gateway-wide "message" rate bucket.
func (g *Gateway) handleCreateRun() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.limiter != nil {
			if err := g.limiter.Allow("message"); err != nil {
				writeError(w, http.StatusTooManyRequests, "message rate limit exceeded")
				return
			}
		}

		var req createRunRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if req.UserID == "" || req.Message == "" {
			writeError(w, http.StatusBadRequest, "user_id and message are required")
			return
		}

		res, err := g.runner.Run(r.Context(), agent.Request{
			AgentID: chi.URLParam(r, "id"),
			UserID:  req.UserID,
			Message: req.Message,
			DryRun:  req.DryRun,
		})
		switch {
		case errors.Is(err, agent.ErrUnknownAgent):
			writeError(w, http.StatusNotFound, err.Error())
			return
		case err != nil:
			// The run result still carries the partial transcript.
			g.logger.Error("run failed", "run_id", res.RunID, "error", err)
			writeJSON(w, http.StatusBadGateway, res)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func (g *Gateway) handleGetRun() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := g.runs.GetRun(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func (g *Gateway) handleListRuns() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 1 {
				writeError(w, http.StatusBadRequest, "invalid limit")
				return
			}
			limit = n
		}
		runs, err := g.runs.ListRuns(r.Context(), chi.URLParam(r, "id"), limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if runs == nil {
			runs = []agent.RunResult{}
		}
		writeJSON(w, http.StatusOK, runs)
	}
}
