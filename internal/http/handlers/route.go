package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"crowdship-engine/internal/logx"
)

// RouteHandler serves HTTP endpoints for carrier route resources.
type RouteHandler struct {
	store  routeUsecase
	logger logx.Logger
}

// NewRouteHandler creates a new RouteHandler.
func NewRouteHandler(logger logx.Logger, store routeUsecase) *RouteHandler {
	return &RouteHandler{store: store, logger: logger}
}

// Create handles POST /routes.
func (h *RouteHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRouteRequest
	if ok := decodeJSON(h.logger, w, r, &req); !ok {
		return
	}
	if msg, ok := validateCreateRoute(req); !ok {
		writeError(h.logger, w, r, http.StatusBadRequest, msg)
		return
	}

	rt := req.toModel()
	rt.ID = uuid.NewString()
	rt.Active = true
	rt.CreatedAt = time.Now().UTC()

	ctx, cancel := withDBTimeout(r.Context())
	defer cancel()

	if err := h.store.Create(ctx, rt); err != nil {
		writeError(h.logger, w, r, http.StatusInternalServerError, "internal error")
		return
	}
	w.Header().Set("Location", "/routes/"+rt.ID)
	writeJSON(h.logger, w, r, http.StatusCreated, routeToResponse(rt))
}

// GetByID handles GET /routes/{id}.
func (h *RouteHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := idFromURL(r, "id")
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, "invalid id")
		return
	}

	ctx, cancel := withDBTimeout(r.Context())
	defer cancel()

	rt, err := h.store.Get(ctx, id)
	switch {
	case err != nil:
		writeError(h.logger, w, r, http.StatusInternalServerError, "internal error")
	case rt == nil:
		writeError(h.logger, w, r, http.StatusNotFound, "route not found")
	default:
		writeJSON(h.logger, w, r, http.StatusOK, routeToResponse(rt))
	}
}

func validateCreateRoute(req createRouteRequest) (string, bool) {
	switch {
	case req.OwnerDelivererID == "":
		return "owner_deliverer_id is required", false
	case !req.Window.toModel().Valid():
		return "invalid trip window", false
	case req.CapacityKg < 0:
		return "invalid capacity", false
	case req.CarrierRating < 0 || req.CarrierRating > 5:
		return "invalid carrier rating", false
	}
	return "", true
}
