package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"fast-queue/internal/logger"
	"fast-queue/internal/models"
)

// SnapshotSource answers "what number is being served right now".
type SnapshotSource interface {
	CurrentNumber(ctx context.Context, queueID string) (*string, error)
}

// Relay fans a queue message out to every instance, this one included.
type Relay interface {
	Publish(ctx context.Context, queueID string, msg []byte) error
}

type Broadcaster struct {
	Registry *Registry
	Source   SnapshotSource
	Relay    Relay
	Logger   *logger.Logger
}

func NewBroadcaster(registry *Registry, source SnapshotSource, relay Relay, log *logger.Logger) *Broadcaster {
	if log == nil {
		log = logger.Discard()
	}
	return &Broadcaster{
		Registry: registry,
		Source:   source,
		Relay:    relay,
		Logger:   log,
	}
}

// TicketCalled pushes a newTicketCalled message to the ticket's queue.
func (b *Broadcaster) TicketCalled(ctx context.Context, t models.Ticket) {
	msg, err := json.Marshal(models.NewTicketCalled(t))
	if err != nil {
		b.Logger.Error("REALTIME", fmt.Sprintf("Failed to encode ticket %s: %v", t.ID, err))
		return
	}

	if b.Relay != nil {
		err := b.Relay.Publish(ctx, t.QueueID, msg)
		if err == nil {
			return
		}
		b.Logger.Warn("REALTIME", fmt.Sprintf("Relay publish for queue %s failed, delivering locally: %v", t.QueueID, err))
	}
	b.Deliver(t.QueueID, msg)
}

// Deliver hands msg to this instance's subscribers of queueID.
func (b *Broadcaster) Deliver(queueID string, msg []byte) {
	delivered, err := b.Registry.Broadcast(queueID, msg)
	if err != nil {
		b.Logger.Warn("REALTIME", fmt.Sprintf("Queue %s: %d delivered, failures: %v", queueID, delivered, err))
		return
	}
	b.Logger.LogRealtime("BROADCAST", queueID, fmt.Sprintf("delivered to %d subscribers", delivered))
}

// SendSnapshot sends c the queue's current number.
func (b *Broadcaster) SendSnapshot(ctx context.Context, queueID string, c Conn) error {
	number, err := b.Source.CurrentNumber(ctx, queueID)
	if err != nil {
		return fmt.Errorf("current number for queue %s: %w", queueID, err)
	}
	msg, err := json.Marshal(models.NewCurrentNumber(number))
	if err != nil {
		return err
	}
	return c.Send(msg)
}

// Attach subscribes e to queueID, sends the initial snapshot and answers
// every inbound message with a fresh one. It returns after e closes or ctx
// ends, with e already unsubscribed.
func (b *Broadcaster) Attach(ctx context.Context, queueID string, e Endpoint) {
	b.Registry.Subscribe(queueID, e)
	defer b.Registry.Unsubscribe(queueID, e)
	b.Logger.LogRealtime("SUBSCRIBE", queueID, e.ID())

	b.snapshot(ctx, queueID, e)

	inbound := e.Inbound()
	for {
		select {
		case _, ok := <-inbound:
			if !ok {
				inbound = nil
				continue
			}
			b.snapshot(ctx, queueID, e)
		case <-e.Closed():
			b.Logger.LogRealtime("UNSUBSCRIBE", queueID, e.ID())
			return
		case <-ctx.Done():
			b.Logger.LogRealtime("UNSUBSCRIBE", queueID, e.ID())
			return
		}
	}
}

func (b *Broadcaster) snapshot(ctx context.Context, queueID string, c Conn) {
	if err := b.SendSnapshot(ctx, queueID, c); err != nil {
		b.Logger.Warn("REALTIME", fmt.Sprintf("Snapshot to %s failed: %v", c.ID(), err))
	}
}
