package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
)

// SSEConn streams queue messages as server-sent events. Writes happen on the
// goroutine running Serve, which must be the request handler.
type SSEConn struct {
	id      string
	queueID string
	w       http.ResponseWriter
	flusher http.Flusher
	send    chan []byte
	done    chan struct{}
	once    sync.Once
}

func NewSSEConn(w http.ResponseWriter, queueID string, buffer int) (*SSEConn, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("streaming unsupported by response writer")
	}
	if buffer <= 0 {
		buffer = DefaultWSOptions().SendBuffer
	}
	return &SSEConn{
		id:      uuid.NewString(),
		queueID: queueID,
		w:       w,
		flusher: flusher,
		send:    make(chan []byte, buffer),
		done:    make(chan struct{}),
	}, nil
}

func (c *SSEConn) ID() string { return c.id }

func (c *SSEConn) Send(msg []byte) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	select {
	case c.send <- msg:
		return nil
	case <-c.done:
		return ErrConnClosed
	default:
		return ErrSendBufferFull
	}
}

// Inbound is nil: SSE clients cannot talk back.
func (c *SSEConn) Inbound() <-chan []byte { return nil }

func (c *SSEConn) Closed() <-chan struct{} { return c.done }

func (c *SSEConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

// Serve writes headers and queued messages until ctx ends or the connection
// is closed.
func (c *SSEConn) Serve(ctx context.Context) {
	defer c.Close()

	SetupSSEHeaders(c.w)
	c.w.WriteHeader(http.StatusOK)
	fmt.Fprintf(c.w, "event: connected\ndata: {\"status\":\"connected\",\"queueId\":%q}\n\n", c.queueID)
	c.flusher.Flush()

	for {
		select {
		case msg := <-c.send:
			if _, err := fmt.Fprintf(c.w, "event: %s\ndata: %s\n\n", eventName(msg), msg); err != nil {
				return
			}
			c.flusher.Flush()
		case <-c.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func eventName(msg []byte) string {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &envelope); err != nil || envelope.Type == "" {
		return "message"
	}
	return envelope.Type
}

func SetupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream;charset=UTF-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, max-age=0, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Accel-Buffering", "no")
}
