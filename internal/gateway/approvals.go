package gateway

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shiftwise/shiftwise/internal/governor"
)

type decisionRequest struct {
	Approved  bool   `json:"approved"`
	DecidedBy string `json:"decided_by"`
}

type decisionResponse struct {
	Status governor.Status `json:"status"`
	Output string          `json:"output,omitempty"`
}

// handleListPendings returns open confirmations and approvals, optionally
// filtered with ?kind=confirmation|approval.
func (g *Gateway) handleListPendings() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind := governor.PendingKind(r.URL.Query().Get("kind"))
		switch kind {
		case "", governor.PendingConfirmation, governor.PendingApproval:
		default:
			writeError(w, http.StatusBadRequest, "unknown kind")
			return
		}
		pendings, err := g.governor.ListPending(r.Context(), kind)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if pendings == nil {
			pendings = []governor.PendingInvocation{}
		}
		writeJSON(w, http.StatusOK, pendings)
	}
}

func (g *Gateway) handleDecidePending() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req decisionRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if req.DecidedBy == "" {
			writeError(w, http.StatusBadRequest, "decided_by is required")
			return
		}

		out, err := g.governor.Decide(r.Context(), chi.URLParam(r, "id"), req.DecidedBy, req.Approved)
		switch {
		case errors.Is(err, governor.ErrPendingNotFound):
			writeError(w, http.StatusNotFound, err.Error())
			return
		case errors.Is(err, governor.ErrPendingDecided):
			writeError(w, http.StatusConflict, err.Error())
			return
		case err != nil:
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, decisionResponse{Status: out.Status, Output: out.Text})
	}
}
