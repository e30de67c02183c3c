// Package realtime keeps per-queue subscriber sets and pushes called
// tickets to them over websocket or SSE.
package realtime

import "errors"

var (
	ErrSendBufferFull = errors.New("realtime: send buffer full")
	ErrConnClosed     = errors.New("realtime: connection closed")
)

// Conn is one subscriber. Send must enqueue and return without waiting on
// the network.
type Conn interface {
	ID() string
	Send(msg []byte) error
	Close() error
}

// Endpoint is a Conn that also reports client activity. Inbound yields
// client messages (nil for transports without them); Closed is closed once
// the connection is gone.
type Endpoint interface {
	Conn
	Inbound() <-chan []byte
	Closed() <-chan struct{}
}
