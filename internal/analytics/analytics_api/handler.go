package analytics_api

import (
	"context"
	"fmt"
	"net/http"

	"fast-queue/internal/analytics"
	"fast-queue/internal/apperr"
	"fast-queue/internal/auth"
	"fast-queue/internal/logger"
	"fast-queue/internal/models"
	"fast-queue/internal/utils"

	"github.com/go-chi/chi/v5"
)

// QueueOwner resolves a queue only for the establishment that owns it.
type QueueOwner interface {
	GetQueue(ctx context.Context, auth models.AuthContext, queueID string) (*models.Queue, error)
}

// Handler handles analytics HTTP endpoints
type Handler struct {
	Service *analytics.Service
	Queues  QueueOwner
	Logger  *logger.Logger
}

func NewHandler(service *analytics.Service, queues QueueOwner, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Discard()
	}
	return &Handler{Service: service, Queues: queues, Logger: log}
}

// RegisterRoutes registers the analytics routes. r must carry the auth
// middleware.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/queues/{queueId}/stats", h.GetQueueStats)
}

func (h *Handler) GetQueueStats(w http.ResponseWriter, r *http.Request) {
	queueID := chi.URLParam(r, "queueId")
	ac, ok := auth.FromContext(r.Context())
	if !ok {
		utils.WriteError(w, apperr.Unauthorized("GetQueueStats", "missing credentials"))
		return
	}

	if _, err := h.Queues.GetQueue(r.Context(), ac, queueID); err != nil {
		utils.WriteError(w, err)
		return
	}

	stats, err := h.Service.GetQueueStats(r.Context(), queueID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetQueueStats: queue %s: %v", queueID, err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, stats)
}
