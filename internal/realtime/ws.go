package realtime

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// CloseQueueNotFound is sent when a client subscribes to an unknown queue.
const CloseQueueNotFound = 4404

type WSOptions struct {
	SendBuffer   int
	WriteTimeout time.Duration
	PingInterval time.Duration
	ReadLimit    int64
}

func DefaultWSOptions() WSOptions {
	return WSOptions{
		SendBuffer:   16,
		WriteTimeout: 10 * time.Second,
		PingInterval: 30 * time.Second,
		ReadLimit:    4096,
	}
}

// Upgrader accepts any origin; the API is served with CORS "*".
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WSConn owns a websocket. All frames are written by WritePump; Send only
// queues them.
type WSConn struct {
	id      string
	ws      *websocket.Conn
	opts    WSOptions
	send    chan []byte
	inbound chan []byte
	done    chan struct{}
	once    sync.Once
}

func NewWSConn(ws *websocket.Conn, opts WSOptions) *WSConn {
	def := DefaultWSOptions()
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = def.SendBuffer
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = def.WriteTimeout
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = def.ReadLimit
	}
	return &WSConn{
		id:      uuid.NewString(),
		ws:      ws,
		opts:    opts,
		send:    make(chan []byte, opts.SendBuffer),
		inbound: make(chan []byte, 1),
		done:    make(chan struct{}),
	}
}

func (c *WSConn) ID() string { return c.id }

func (c *WSConn) Send(msg []byte) error {
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

func (c *WSConn) Inbound() <-chan []byte { return c.inbound }

func (c *WSConn) Closed() <-chan struct{} { return c.done }

func (c *WSConn) Close() error {
	return c.CloseWith(websocket.CloseNormalClosure, "")
}

// CloseWith sends a close frame with code and reason, then drops the socket.
func (c *WSConn) CloseWith(code int, reason string) error {
	var err error
	c.once.Do(func() {
		close(c.done)
		deadline := time.Now().Add(c.opts.WriteTimeout)
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
		err = c.ws.Close()
	})
	return err
}

// WritePump drains the send buffer and keeps the connection alive with
// pings. It returns once the connection closes.
func (c *WSConn) WritePump() {
	var ping <-chan time.Time
	if c.opts.PingInterval > 0 {
		ticker := time.NewTicker(c.opts.PingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case msg := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.Close()
				return
			}
		case <-ping:
			c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// ReadPump forwards client messages to Inbound until the peer goes away,
// then closes the connection.
func (c *WSConn) ReadPump() {
	defer c.Close()

	c.ws.SetReadLimit(c.opts.ReadLimit)
	if c.opts.PingInterval > 0 {
		wait := 2 * c.opts.PingInterval
		c.ws.SetReadDeadline(time.Now().Add(wait))
		c.ws.SetPongHandler(func(string) error {
			return c.ws.SetReadDeadline(time.Now().Add(wait))
		})
	}

	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		// One pending message is enough to trigger a fresh snapshot.
		select {
		case c.inbound <- msg:
		default:
		}
	}
}
