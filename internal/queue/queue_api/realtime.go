package queue_api

import (
	"fmt"
	"net/http"
	"time"

	"fast-queue/internal/realtime"
	"fast-queue/internal/utils"

	"github.com/go-chi/chi/v5"
)

// ServeWS upgrades the request and keeps the socket subscribed to the
// queue until the client leaves. Unknown queues are closed with
// realtime.CloseQueueNotFound.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	queueID := chi.URLParam(r, "queueId")

	ws, err := realtime.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Logger.Warn("REALTIME", fmt.Sprintf("Websocket upgrade failed for queue %s: %v", queueID, err))
		return
	}
	conn := realtime.NewWSConn(ws, h.WSOptions)

	exists, err := h.Service.QueueExists(r.Context(), queueID)
	if err != nil {
		h.Logger.Error("REALTIME", fmt.Sprintf("Queue lookup failed for %s: %v", queueID, err))
		conn.CloseWith(1011, "internal error")
		return
	}
	if !exists {
		conn.CloseWith(realtime.CloseQueueNotFound, "queue not found")
		return
	}

	go conn.WritePump()
	go conn.ReadPump()
	h.Broadcaster.Attach(r.Context(), queueID, conn)
	conn.Close()
}

// ServeSSE streams the same messages as ServeWS as server-sent events.
func (h *Handler) ServeSSE(w http.ResponseWriter, r *http.Request) {
	queueID := chi.URLParam(r, "queueId")

	exists, err := h.Service.QueueExists(r.Context(), queueID)
	if err != nil {
		h.fail(w, "ServeSSE", err)
		return
	}
	if !exists {
		utils.WriteJSON(w, http.StatusNotFound, utils.ErrorResponse("Not Found", "queue not found"))
		return
	}

	// The stream outlives the server's write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	conn, err := realtime.NewSSEConn(w, queueID, h.WSOptions.SendBuffer)
	if err != nil {
		h.fail(w, "ServeSSE", err)
		return
	}

	attached := make(chan struct{})
	go func() {
		defer close(attached)
		h.Broadcaster.Attach(r.Context(), queueID, conn)
	}()
	conn.Serve(r.Context())
	<-attached
}
