package queue_api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"fast-queue/internal/apperr"
	"fast-queue/internal/auth"
	"fast-queue/internal/logger"
	"fast-queue/internal/models"
	"fast-queue/internal/queue"
	"fast-queue/internal/queue/qr"
	"fast-queue/internal/realtime"
	"fast-queue/internal/utils"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	Service     *queue.Service
	Broadcaster *realtime.Broadcaster
	QR          *qr.Generator
	WSOptions   realtime.WSOptions
	Logger      *logger.Logger
}

func NewHandler(service *queue.Service, broadcaster *realtime.Broadcaster, qrGen *qr.Generator, wsOpts realtime.WSOptions, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Discard()
	}
	return &Handler{
		Service:     service,
		Broadcaster: broadcaster,
		QR:          qrGen,
		WSOptions:   wsOpts,
		Logger:      log,
	}
}

// RegisterPublicRoutes mounts the customer-facing endpoints.
func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.Post("/queues/{queueId}/tickets", h.CreateTicket)
	r.Get("/queues/{queueId}/tickets/{ticketId}", h.GetTicket)
	r.Get("/queues/{queueId}/tickets/{ticketId}/qr", h.TicketQR)
	r.Get("/ws/{queueId}", h.ServeWS)
	r.Get("/sse/{queueId}", h.ServeSSE)
}

// RegisterRoutes mounts the establishment endpoints. r must already carry
// the auth middleware. Patterns stay flat so they share one routing tree
// with the public ones.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/queues", h.CreateQueue)
	r.Get("/queues", h.ListQueues)
	r.Get("/queues/{queueId}", h.GetQueue)
	r.Patch("/queues/{queueId}", h.ActivateQueue)
	r.Post("/queues/{queueId}/next", h.CallNext)
	r.Get("/queues/{queueId}/tickets", h.ListTickets)
	r.Patch("/tickets/{ticketId}/done", h.MarkDone)
	r.Patch("/tickets/{ticketId}/skip", h.MarkSkip)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if utils.StatusFor(err) >= http.StatusInternalServerError {
		h.Logger.Error("API", fmt.Sprintf("%s: %v", op, err))
	} else {
		h.Logger.Debug("API", fmt.Sprintf("%s: %v", op, err))
	}
	utils.WriteError(w, err)
}

func authContext(r *http.Request) (models.AuthContext, error) {
	ac, ok := auth.FromContext(r.Context())
	if !ok {
		return models.AuthContext{}, apperr.Unauthorized("authContext", "missing credentials")
	}
	return ac, nil
}

func (h *Handler) CreateQueue(w http.ResponseWriter, r *http.Request) {
	ac, err := authContext(r)
	if err != nil {
		h.fail(w, "CreateQueue", err)
		return
	}
	var in queue.CreateQueueInput
	if err := utils.DecodeJSON(r, &in); err != nil {
		h.fail(w, "CreateQueue", err)
		return
	}

	q, err := h.Service.CreateQueue(r.Context(), ac, in)
	if err != nil {
		h.fail(w, "CreateQueue", err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, map[string]string{"queueId": q.ID})
}

func (h *Handler) ListQueues(w http.ResponseWriter, r *http.Request) {
	ac, err := authContext(r)
	if err != nil {
		h.fail(w, "ListQueues", err)
		return
	}
	queues, err := h.Service.ListQueues(r.Context(), ac)
	if err != nil {
		h.fail(w, "ListQueues", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, queues)
}

func (h *Handler) GetQueue(w http.ResponseWriter, r *http.Request) {
	ac, err := authContext(r)
	if err != nil {
		h.fail(w, "GetQueue", err)
		return
	}
	q, err := h.Service.GetQueue(r.Context(), ac, chi.URLParam(r, "queueId"))
	if err != nil {
		h.fail(w, "GetQueue", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, q)
}

type activateQueueRequest struct {
	IsActive *bool `json:"isActive" validate:"required"`
}

func (h *Handler) ActivateQueue(w http.ResponseWriter, r *http.Request) {
	ac, err := authContext(r)
	if err != nil {
		h.fail(w, "ActivateQueue", err)
		return
	}
	var in activateQueueRequest
	if err := utils.DecodeJSON(r, &in); err != nil {
		h.fail(w, "ActivateQueue", err)
		return
	}

	q, err := h.Service.SetQueueActive(r.Context(), ac, chi.URLParam(r, "queueId"), *in.IsActive)
	if err != nil {
		h.fail(w, "ActivateQueue", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, q)
}

func (h *Handler) CallNext(w http.ResponseWriter, r *http.Request) {
	ac, err := authContext(r)
	if err != nil {
		h.fail(w, "CallNext", err)
		return
	}
	t, err := h.Service.CallNext(r.Context(), ac, chi.URLParam(r, "queueId"))
	if err != nil {
		h.fail(w, "CallNext", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, t)
}

// ListTickets accepts an optional comma separated ?status= filter.
func (h *Handler) ListTickets(w http.ResponseWriter, r *http.Request) {
	ac, err := authContext(r)
	if err != nil {
		h.fail(w, "ListTickets", err)
		return
	}
	statuses, err := parseStatuses(r.URL.Query().Get("status"))
	if err != nil {
		h.fail(w, "ListTickets", err)
		return
	}

	tickets, err := h.Service.ListTickets(r.Context(), ac, chi.URLParam(r, "queueId"), statuses)
	if err != nil {
		h.fail(w, "ListTickets", err)
		return
	}
	if tickets == nil {
		tickets = []models.Ticket{}
	}
	utils.WriteJSON(w, http.StatusOK, tickets)
}

func parseStatuses(raw string) ([]models.TicketStatus, error) {
	if raw == "" {
		return nil, nil
	}
	var out []models.TicketStatus
	for _, part := range strings.Split(raw, ",") {
		s := models.TicketStatus(strings.ToUpper(strings.TrimSpace(part)))
		if !s.Valid() {
			return nil, apperr.Validation("ListTickets", fmt.Errorf("unknown status %q", part))
		}
		out = append(out, s)
	}
	return out, nil
}

func (h *Handler) CreateTicket(w http.ResponseWriter, r *http.Request) {
	t, err := h.Service.CreateTicket(r.Context(), chi.URLParam(r, "queueId"))
	if err != nil {
		h.fail(w, "CreateTicket", err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, map[string]string{"ticketId": t.ID, "number": t.Number})
}

func (h *Handler) GetTicket(w http.ResponseWriter, r *http.Request) {
	view, err := h.Service.GetTicket(r.Context(), chi.URLParam(r, "queueId"), chi.URLParam(r, "ticketId"))
	if err != nil {
		h.fail(w, "GetTicket", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, view)
}

// TicketQR renders a PNG pointing at the ticket page.
func (h *Handler) TicketQR(w http.ResponseWriter, r *http.Request) {
	queueID, ticketID := chi.URLParam(r, "queueId"), chi.URLParam(r, "ticketId")
	if _, err := h.Service.GetTicket(r.Context(), queueID, ticketID); err != nil {
		h.fail(w, "TicketQR", err)
		return
	}

	png, err := h.QR.TicketPNG(queueID, ticketID)
	if err != nil {
		h.fail(w, "TicketQR", err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func (h *Handler) MarkDone(w http.ResponseWriter, r *http.Request) {
	h.finish(w, r, "MarkDone", h.Service.MarkDone)
}

func (h *Handler) MarkSkip(w http.ResponseWriter, r *http.Request) {
	h.finish(w, r, "MarkSkip", h.Service.MarkSkip)
}

func (h *Handler) finish(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context, models.AuthContext, string) (*models.Ticket, error)) {
	ac, err := authContext(r)
	if err != nil {
		h.fail(w, op, err)
		return
	}
	t, err := fn(r.Context(), ac, chi.URLParam(r, "ticketId"))
	if err != nil {
		h.fail(w, op, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, t)
}
