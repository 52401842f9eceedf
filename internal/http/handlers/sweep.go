package handlers

import (
	"net/http"

	"crowdship-engine/internal/logx"
)

// SweepHandler triggers a housekeeping pass on demand. The cron scheduler
// is the normal driver; this endpoint exists for operators.
type SweepHandler struct {
	usecase sweepUsecase
	logger  logx.Logger
}

// NewSweepHandler creates a new SweepHandler.
func NewSweepHandler(logger logx.Logger, uc sweepUsecase) *SweepHandler {
	return &SweepHandler{usecase: uc, logger: logger}
}

// Run handles POST /sweep/run.
func (h *SweepHandler) Run(w http.ResponseWriter, r *http.Request) {
	if err := h.usecase.Run(r.Context()); err != nil {
		writeError(h.logger, w, r, http.StatusInternalServerError, "sweep failed")
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, map[string]string{"status": "ok"})
}
