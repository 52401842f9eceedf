package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"crowdship-engine/internal/apperr"
	"crowdship-engine/internal/domain"
	"crowdship-engine/internal/logx"
	"crowdship-engine/internal/service/lifecycle"
)

// AnnouncementHandler serves HTTP endpoints for announcement resources.
type AnnouncementHandler struct {
	store     announcementUsecase
	lifecycle lifecycleUsecase
	logger    logx.Logger
}

// NewAnnouncementHandler creates a new AnnouncementHandler.
func NewAnnouncementHandler(logger logx.Logger, store announcementUsecase, lc lifecycleUsecase) *AnnouncementHandler {
	return &AnnouncementHandler{store: store, lifecycle: lc, logger: logger}
}

// Create handles POST /announcements.
func (h *AnnouncementHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAnnouncementRequest
	if ok := decodeJSON(h.logger, w, r, &req); !ok {
		return
	}
	if msg, ok := validateCreateAnnouncement(req); !ok {
		writeError(h.logger, w, r, http.StatusBadRequest, msg)
		return
	}

	a := req.toModel()
	a.ID = uuid.NewString()
	a.Status = domain.StatusDraft
	a.CreatedAt = time.Now().UTC()

	ctx, cancel := withDBTimeout(r.Context())
	defer cancel()

	if err := h.store.Create(ctx, a); err != nil {
		writeError(h.logger, w, r, http.StatusInternalServerError, "internal error")
		return
	}
	w.Header().Set("Location", "/announcements/"+a.ID)
	writeJSON(h.logger, w, r, http.StatusCreated, announcementToResponse(a))
}

// GetByID handles GET /announcements/{id}.
func (h *AnnouncementHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := idFromURL(r, "id")
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, "invalid id")
		return
	}

	ctx, cancel := withDBTimeout(r.Context())
	defer cancel()

	a, err := h.store.Get(ctx, id)
	switch {
	case err != nil:
		writeError(h.logger, w, r, http.StatusInternalServerError, "internal error")
	case a == nil:
		writeError(h.logger, w, r, http.StatusNotFound, "announcement not found")
	default:
		writeJSON(h.logger, w, r, http.StatusOK, announcementToResponse(a))
	}
}

// Transition handles POST /announcements/{id}/transition.
func (h *AnnouncementHandler) Transition(w http.ResponseWriter, r *http.Request) {
	id, err := idFromURL(r, "id")
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, "invalid id")
		return
	}
	var req transitionRequest
	if ok := decodeJSON(h.logger, w, r, &req); !ok {
		return
	}
	if req.Actor == "" {
		req.Actor = lifecycle.ActorClient
	}
	// EXPIRED принадлежит свиперу, снаружи недоступен
	if req.Target == domain.StatusExpired || req.Actor == lifecycle.ActorSystem {
		writeError(h.logger, w, r, http.StatusBadRequest, "invalid transition request")
		return
	}

	a, err := h.lifecycle.Transition(r.Context(), id, req.Target, req.Actor)
	switch {
	case err == nil:
		writeJSON(h.logger, w, r, http.StatusOK, announcementToResponse(a))
	case errors.Is(err, apperr.ErrValidation):
		writeError(h.logger, w, r, http.StatusBadRequest, "invalid transition request")
	case errors.Is(err, apperr.ErrNotFound):
		writeError(h.logger, w, r, http.StatusNotFound, "announcement not found")
	case errors.Is(err, apperr.ErrStateTransition):
		writeError(h.logger, w, r, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, apperr.ErrConflict):
		writeError(h.logger, w, r, http.StatusConflict, "concurrent transition won")
	default:
		writeError(h.logger, w, r, http.StatusInternalServerError, "internal error")
	}
}

func validateCreateAnnouncement(req createAnnouncementRequest) (string, bool) {
	switch {
	case !req.Type.Valid():
		return "unknown announcement type", false
	case req.OwnerClientID == "":
		return "owner_client_id is required", false
	case req.PickupAddress == "" || req.DeliveryAddress == "":
		return "pickup and delivery addresses are required", false
	case !req.PickupWindow.toModel().Valid():
		return "invalid pickup window", false
	case req.WeightKg < 0:
		return "invalid weight", false
	case req.SuggestedPrice < 0:
		return "invalid suggested price", false
	}
	return "", true
}
