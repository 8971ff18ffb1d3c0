package transport

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/quorumhq/quorum/internal/engine"
	"github.com/quorumhq/quorum/internal/observability"
	"github.com/quorumhq/quorum/model"
)

func handleTemplateCreate(svc *engine.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}

		var req engine.CreateTemplateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}

		t, err := svc.CreateTemplate(r.Context(), rctx, req)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, t)
	}
}

func handleTemplateDeprecate(svc *engine.Service, metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		templateID := chi.URLParam(r, "templateId")

		var req engine.DeprecateTemplateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}

		t, err := svc.MarkTemplateForDeprecation(r.Context(), rctx, templateID, req)
		if err != nil {
			WriteError(w, err)
			return
		}
		if metrics != nil {
			metrics.RecordTemplateTransition(string(t.Status))
		}
		WriteJSON(w, http.StatusOK, t)
	}
}

func handleTemplateDeprecated(svc *engine.Service, metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		templateID := chi.URLParam(r, "templateId")

		t, err := svc.MarkTemplateAsDeprecated(r.Context(), rctx, templateID)
		if err != nil {
			WriteError(w, err)
			return
		}
		if metrics != nil {
			metrics.RecordTemplateTransition(string(t.Status))
		}
		WriteJSON(w, http.StatusOK, t)
	}
}
