package controller

import (
	"net/http"
	"strconv"

	"github.com/cassiomorais/orders/internal/middleware"
	"github.com/cassiomorais/orders/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// OutboxController exposes operator endpoints for the outbox.
type OutboxController struct {
	outboxService *service.OutboxService
}

func NewOutboxController(outboxService *service.OutboxService) *OutboxController {
	return &OutboxController{outboxService: outboxService}
}

// Stats handles GET /api/v1/outbox/stats
func (h *OutboxController) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.outboxService.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fromOutboxStats(stats))
}

// Requeue handles POST /api/v1/outbox/{id}/requeue
func (h *OutboxController) Requeue(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid id", Code: "invalid_id"})
		return
	}

	if err := h.outboxService.Requeue(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	if operator, ok := middleware.GetOperator(r.Context()); ok {
		log.Info().Int64("entry_id", id).Str("operator", operator).Msg("Outbox requeue requested")
	}
	w.WriteHeader(http.StatusNoContent)
}
