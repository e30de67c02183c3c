package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"fast-queue/internal/models"
)

type fakeConn struct {
	id      string
	mu      sync.Mutex
	msgs    [][]byte
	sendErr error
	inbound chan []byte
	closed  chan struct{}
	once    sync.Once
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id, inbound: make(chan []byte, 4), closed: make(chan struct{})}
}

func (f *fakeConn) ID() string { return f.id }

func (f *fakeConn) Send(msg []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.msgs = append(f.msgs, append([]byte(nil), msg...))
	return nil
}

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) Inbound() <-chan []byte  { return f.inbound }
func (f *fakeConn) Closed() <-chan struct{} { return f.closed }

func (f *fakeConn) messages() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.msgs...)
}

func (f *fakeConn) types() []string {
	var out []string
	for _, m := range f.messages() {
		var env struct {
			Type string `json:"type"`
		}
		_ = json.Unmarshal(m, &env)
		out = append(out, env.Type)
	}
	return out
}

type staticSource struct {
	mu     sync.Mutex
	number *string
	err    error
}

func (s *staticSource) CurrentNumber(context.Context, string) (*string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.number, s.err
}

func (s *staticSource) set(n string) {
	s.mu.Lock()
	s.number = &n
	s.mu.Unlock()
}

func calledTicket(queueID, number string) models.Ticket {
	return models.Ticket{ID: "t-" + number, QueueID: queueID, Number: number, Status: models.TicketCalled}
}
