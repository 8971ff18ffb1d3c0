package transport

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/quorumhq/quorum/internal/engine"
	"github.com/quorumhq/quorum/internal/observability"
	"github.com/quorumhq/quorum/model"
)

func handleCastVote(svc *engine.Service, metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		workflowID := chi.URLParam(r, "workflowId")

		var req engine.CastVoteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}
		req.IdempotencyKey = r.Header.Get("X-Idempotency-Key")

		res, err := svc.CastVote(r.Context(), rctx, workflowID, req)
		if err != nil {
			WriteError(w, err)
			return
		}

		if metrics != nil {
			if res.Replayed {
				metrics.RecordIdempotentReplay()
			} else {
				metrics.RecordVoteCast(string(res.Vote.Type), string(res.Workflow.Status))
			}
		}

		status := http.StatusCreated
		if res.Replayed {
			status = http.StatusOK
		}
		WriteJSON(w, status, res)
	}
}

func handleEligibility(svc *engine.Service, metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		workflowID := chi.URLParam(r, "workflowId")

		wf, err := svc.GetWorkflow(r.Context(), rctx, workflowID)
		if err != nil {
			WriteError(w, err)
			return
		}

		var votedForGroups []string
		if raw := r.URL.Query().Get("voted_for_groups"); raw != "" {
			for _, g := range strings.Split(raw, ",") {
				if g = strings.TrimSpace(g); g != "" {
					votedForGroups = append(votedForGroups, g)
				}
			}
		}

		el, err := svc.Eligibility(r.Context(), rctx, wf, votedForGroups)
		if err != nil {
			WriteError(w, err)
			return
		}

		if metrics != nil {
			metrics.RecordEligibilityCheck(el.Eligible, el.ReasonCode)
		}
		WriteJSON(w, http.StatusOK, el)
	}
}
