package handlers

import (
	"errors"
	"net/http"

	"crowdship-engine/internal/apperr"
	"crowdship-engine/internal/logx"
	"crowdship-engine/internal/service/lifecycle"
)

// EscrowHandler serves HTTP endpoints for escrow transactions.
type EscrowHandler struct {
	usecase escrowUsecase
	logger  logx.Logger
}

// NewEscrowHandler creates a new EscrowHandler.
func NewEscrowHandler(logger logx.Logger, uc escrowUsecase) *EscrowHandler {
	return &EscrowHandler{usecase: uc, logger: logger}
}

// Hold handles POST /announcements/{id}/escrow.
// @Summary Заблокировать средства
// @Description Захватывает оплату клиента и держит её до подтверждения доставки
// @Tags escrow
// @Accept json
// @Produce json
// @Param request body holdEscrowRequest true "Hold payload"
// @Success 201 {object} holdEscrowResponse
// @Failure 400 {object} ErrorResponse "invalid breakdown"
// @Failure 409 {object} ErrorResponse "funds already settled"
// @Failure 502 {object} ErrorResponse "processor unavailable"
// @Router /announcements/{id}/escrow [post]
func (h *EscrowHandler) Hold(w http.ResponseWriter, r *http.Request) {
	id, err := idFromURL(r, "id")
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, "invalid id")
		return
	}
	var req holdEscrowRequest
	if ok := decodeJSON(h.logger, w, r, &req); !ok {
		return
	}

	e, err := h.usecase.Hold(r.Context(), id, req.Amount, req.Breakdown.toModel())
	switch {
	case err == nil:
		writeJSON(h.logger, w, r, http.StatusCreated, holdEscrowResponse{
			escrowDTO:      escrowToResponse(e),
			ValidationCode: e.ValidationCode,
		})
	case errors.Is(err, apperr.ErrValidation):
		writeError(h.logger, w, r, http.StatusBadRequest, "invalid amount or breakdown")
	case errors.Is(err, apperr.ErrNotFound):
		writeError(h.logger, w, r, http.StatusNotFound, "announcement not found")
	case errors.Is(err, apperr.ErrConflict):
		writeError(h.logger, w, r, http.StatusConflict, "funds already settled")
	case errors.Is(err, apperr.ErrProcessor):
		writeError(h.logger, w, r, http.StatusBadGateway, "payment processor unavailable")
	default:
		writeError(h.logger, w, r, http.StatusInternalServerError, "internal error")
	}
}

// Validate handles POST /announcements/{id}/escrow/validate.
// @Summary Подтвердить доставку кодом
// @Description Сверяет 6-значный код; совпадение освобождает средства курьеру ровно один раз
// @Tags escrow
// @Accept json
// @Produce json
// @Param request body validateCodeRequest true "Validation payload"
// @Success 200 {object} escrowDTO
// @Failure 400 {object} ErrorResponse "code mismatch"
// @Failure 409 {object} ErrorResponse "already released"
// @Failure 410 {object} ErrorResponse "hold expired"
// @Router /announcements/{id}/escrow/validate [post]
func (h *EscrowHandler) Validate(w http.ResponseWriter, r *http.Request) {
	id, err := idFromURL(r, "id")
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, "invalid id")
		return
	}
	var req validateCodeRequest
	if ok := decodeJSON(h.logger, w, r, &req); !ok {
		return
	}
	if req.Actor == "" {
		req.Actor = lifecycle.ActorClient
	}

	e, err := h.usecase.ValidateCode(r.Context(), id, req.Code, req.Actor)
	switch {
	case err == nil:
		writeJSON(h.logger, w, r, http.StatusOK, escrowToResponse(e))
	case errors.Is(err, apperr.ErrValidation):
		writeError(h.logger, w, r, http.StatusBadRequest, "validation code mismatch")
	case errors.Is(err, apperr.ErrNotFound):
		writeError(h.logger, w, r, http.StatusNotFound, "escrow not found")
	case errors.Is(err, apperr.ErrAlreadyReleased):
		writeError(h.logger, w, r, http.StatusConflict, "funds already released")
	case errors.Is(err, apperr.ErrExpiredHold):
		writeError(h.logger, w, r, http.StatusGone, "escrow hold expired")
	case errors.Is(err, apperr.ErrStateTransition):
		writeError(h.logger, w, r, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, apperr.ErrConflict):
		writeError(h.logger, w, r, http.StatusConflict, "escrow not in a holdable state")
	default:
		writeError(h.logger, w, r, http.StatusInternalServerError, "internal error")
	}
}

// Refund handles POST /announcements/{id}/escrow/refund.
func (h *EscrowHandler) Refund(w http.ResponseWriter, r *http.Request) {
	id, err := idFromURL(r, "id")
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, "invalid id")
		return
	}
	var req refundEscrowRequest
	if ok := decodeJSON(h.logger, w, r, &req); !ok {
		return
	}

	e, err := h.usecase.Refund(r.Context(), id, req.Reason)
	switch {
	case err == nil:
		writeJSON(h.logger, w, r, http.StatusOK, escrowToResponse(e))
	case errors.Is(err, apperr.ErrValidation):
		writeError(h.logger, w, r, http.StatusBadRequest, "invalid input")
	case errors.Is(err, apperr.ErrNotFound):
		writeError(h.logger, w, r, http.StatusNotFound, "escrow not found")
	case errors.Is(err, apperr.ErrConflict):
		writeError(h.logger, w, r, http.StatusConflict, "funds already settled")
	default:
		writeError(h.logger, w, r, http.StatusInternalServerError, "internal error")
	}
}

// Dispute handles POST /announcements/{id}/escrow/dispute.
func (h *EscrowHandler) Dispute(w http.ResponseWriter, r *http.Request) {
	id, err := idFromURL(r, "id")
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, "invalid id")
		return
	}
	var req disputeEscrowRequest
	if ok := decodeJSON(h.logger, w, r, &req); !ok {
		return
	}

	e, err := h.usecase.Dispute(r.Context(), id, req.Reason)
	switch {
	case err == nil:
		writeJSON(h.logger, w, r, http.StatusOK, escrowToResponse(e))
	case errors.Is(err, apperr.ErrValidation):
		writeError(h.logger, w, r, http.StatusBadRequest, "invalid input")
	case errors.Is(err, apperr.ErrNotFound):
		writeError(h.logger, w, r, http.StatusNotFound, "escrow not found")
	case errors.Is(err, apperr.ErrConflict):
		writeError(h.logger, w, r, http.StatusConflict, "escrow not held")
	default:
		writeError(h.logger, w, r, http.StatusInternalServerError, "internal error")
	}
}

// GetByAnnouncement handles GET /announcements/{id}/escrow.
func (h *EscrowHandler) GetByAnnouncement(w http.ResponseWriter, r *http.Request) {
	id, err := idFromURL(r, "id")
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, "invalid id")
		return
	}

	e, err := h.usecase.Get(r.Context(), id)
	switch {
	case err == nil:
		writeJSON(h.logger, w, r, http.StatusOK, escrowToResponse(e))
	case errors.Is(err, apperr.ErrNotFound):
		writeError(h.logger, w, r, http.StatusNotFound, "escrow not found")
	default:
		writeError(h.logger, w, r, http.StatusInternalServerError, "internal error")
	}
}
