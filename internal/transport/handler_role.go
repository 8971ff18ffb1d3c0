package transport

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/quorumhq/quorum/internal/authz"
	"github.com/quorumhq/quorum/internal/engine"
	"github.com/quorumhq/quorum/model"
)

func handleAssignRoles(svc *engine.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		entityID := chi.URLParam(r, "entityId")

		var body struct {
			EntityType model.EntityType `json:"entity_type"`
			Roles      []authz.RawRole  `json:"roles"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}
		if body.EntityType == "" {
			body.EntityType = model.EntityUser
		}
		if len(body.Roles) == 0 {
			WriteValidationError(w, []model.FieldError{
				{Field: "roles", Code: "REQUIRED", Message: "at least one role is required"},
			})
			return
		}

		target := model.EntityRef{ID: entityID, Type: body.EntityType}
		bound, err := svc.AssignRoles(r.Context(), rctx, target, body.Roles)
		if err != nil {
			WriteError(w, err)
			return
		}

		type assignResponse struct {
			Entity model.EntityRef   `json:"entity"`
			Roles  []model.BoundRole `json:"roles"`
		}
		WriteJSON(w, http.StatusOK, assignResponse{Entity: target, Roles: bound})
	}
}
