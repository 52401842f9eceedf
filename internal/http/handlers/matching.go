package handlers

import (
	"errors"
	"net/http"

	"crowdship-engine/internal/apperr"
	"crowdship-engine/internal/logx"
)

// MatchHandler serves HTTP endpoints for the matching engine.
type MatchHandler struct {
	usecase matchingUsecase
	logger  logx.Logger
}

// NewMatchHandler creates a new MatchHandler.
func NewMatchHandler(logger logx.Logger, uc matchingUsecase) *MatchHandler {
	return &MatchHandler{usecase: uc, logger: logger}
}

// Generate handles POST /announcements/{id}/matches.
// @Summary Подобрать маршруты
// @Description Пересчитывает кандидатов для объявления и возвращает их по убыванию score
// @Tags matches
// @Produce json
// @Success 200 {array} matchDTO
// @Failure 400 {object} ErrorResponse "invalid input"
// @Failure 404 {object} ErrorResponse "announcement not found"
// @Failure 409 {object} ErrorResponse "announcement not matchable"
// @Router /announcements/{id}/matches [post]
func (h *MatchHandler) Generate(w http.ResponseWriter, r *http.Request) {
	id, err := idFromURL(r, "id")
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, "invalid id")
		return
	}

	list, err := h.usecase.Generate(r.Context(), id)
	switch {
	case err == nil:
		writeJSON(h.logger, w, r, http.StatusOK, matchesToResponse(list))
	case errors.Is(err, apperr.ErrValidation):
		writeError(h.logger, w, r, http.StatusBadRequest, "announcement has no coordinates")
	case errors.Is(err, apperr.ErrNotFound):
		writeError(h.logger, w, r, http.StatusNotFound, "announcement not found")
	case errors.Is(err, apperr.ErrConflict):
		writeError(h.logger, w, r, http.StatusConflict, "announcement not open for matching")
	default:
		writeError(h.logger, w, r, http.StatusInternalServerError, "internal error")
	}
}

// Accept handles POST /matches/{id}/accept.
// @Summary Принять матч
// @Description Закрепляет объявление за курьером; проигравший получает 409 и следующего кандидата
// @Tags matches
// @Accept json
// @Produce json
// @Param request body acceptMatchRequest true "Accept payload"
// @Success 200 {object} announcementDTO
// @Failure 409 {object} conflictResponse "another deliverer won"
// @Failure 422 {object} ErrorResponse "announcement not assignable"
// @Router /matches/{id}/accept [post]
func (h *MatchHandler) Accept(w http.ResponseWriter, r *http.Request) {
	id, err := idFromURL(r, "id")
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, "invalid id")
		return
	}
	var req acceptMatchRequest
	if ok := decodeJSON(h.logger, w, r, &req); !ok {
		return
	}

	a, err := h.usecase.Accept(r.Context(), id, req.DelivererID)
	switch {
	case err == nil:
		writeJSON(h.logger, w, r, http.StatusOK, announcementToResponse(a))
	case errors.Is(err, apperr.ErrValidation):
		writeError(h.logger, w, r, http.StatusBadRequest, "invalid input")
	case errors.Is(err, apperr.ErrNotFound):
		writeError(h.logger, w, r, http.StatusNotFound, "match not found")
	case errors.Is(err, apperr.ErrStateTransition):
		writeError(h.logger, w, r, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, apperr.ErrConflict):
		h.writeConflict(w, r, id)
	default:
		writeError(h.logger, w, r, http.StatusInternalServerError, "internal error")
	}
}

// writeConflict answers a lost accept race with the strongest surviving
// candidate, when one still exists.
func (h *MatchHandler) writeConflict(w http.ResponseWriter, r *http.Request, matchID string) {
	resp := conflictResponse{Error: "match no longer available"}
	if m, err := h.usecase.Match(r.Context(), matchID); err == nil {
		if next, err := h.usecase.NextBest(r.Context(), m.AnnouncementID); err == nil {
			resp.NextMatchID = next.ID
		}
	}
	writeJSON(h.logger, w, r, http.StatusConflict, resp)
}

// Reject handles POST /matches/{id}/reject.
func (h *MatchHandler) Reject(w http.ResponseWriter, r *http.Request) {
	id, err := idFromURL(r, "id")
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, "invalid id")
		return
	}

	err = h.usecase.Reject(r.Context(), id)
	switch {
	case err == nil:
		writeJSON(h.logger, w, r, http.StatusOK, map[string]string{"status": "rejected"})
	case errors.Is(err, apperr.ErrNotFound):
		writeError(h.logger, w, r, http.StatusNotFound, "match not found")
	case errors.Is(err, apperr.ErrConflict):
		writeError(h.logger, w, r, http.StatusConflict, "match no longer pending")
	default:
		writeError(h.logger, w, r, http.StatusInternalServerError, "internal error")
	}
}

// NextBest handles GET /announcements/{id}/matches/next.
func (h *MatchHandler) NextBest(w http.ResponseWriter, r *http.Request) {
	id, err := idFromURL(r, "id")
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, "invalid id")
		return
	}

	m, err := h.usecase.NextBest(r.Context(), id)
	switch {
	case err == nil:
		writeJSON(h.logger, w, r, http.StatusOK, matchToResponse(*m))
	case errors.Is(err, apperr.ErrNotFound):
		writeError(h.logger, w, r, http.StatusNotFound, "no pending candidates")
	default:
		writeError(h.logger, w, r, http.StatusInternalServerError, "internal error")
	}
}
