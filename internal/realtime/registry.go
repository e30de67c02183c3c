package realtime

import (
	"errors"
	"fmt"

	"github.com/puzpuzpuz/xsync/v3"
)

// subscriberSet is never mutated after it is stored; updates swap in a
// copy, so Broadcast can iterate a snapshot without holding a lock.
type subscriberSet map[Conn]struct{}

// Registry maps queue ids to their live connections. Operations on
// different queues never share a lock.
type Registry struct {
	queues *xsync.MapOf[string, subscriberSet]
}

func NewRegistry() *Registry {
	return &Registry{queues: xsync.NewMapOf[string, subscriberSet]()}
}

// Subscribe adds c to queueID. Subscribing twice is a no-op.
func (r *Registry) Subscribe(queueID string, c Conn) {
	r.queues.Compute(queueID, func(old subscriberSet, loaded bool) (subscriberSet, bool) {
		if _, ok := old[c]; ok {
			return old, false
		}
		next := make(subscriberSet, len(old)+1)
		for k := range old {
			next[k] = struct{}{}
		}
		next[c] = struct{}{}
		return next, false
	})
}

// Unsubscribe removes c and drops the queue entry once it is empty. Once it
// returns, no later Broadcast reaches c.
func (r *Registry) Unsubscribe(queueID string, c Conn) {
	r.queues.Compute(queueID, func(old subscriberSet, loaded bool) (subscriberSet, bool) {
		if !loaded {
			return nil, true
		}
		if _, ok := old[c]; !ok {
			return old, false
		}
		if len(old) == 1 {
			return nil, true
		}
		next := make(subscriberSet, len(old)-1)
		for k := range old {
			if k != c {
				next[k] = struct{}{}
			}
		}
		return next, false
	})
}

// Broadcast sends msg to every current subscriber of queueID. A failing
// connection does not stop delivery to the rest; failures are joined into
// the returned error.
func (r *Registry) Broadcast(queueID string, msg []byte) (int, error) {
	subs, ok := r.queues.Load(queueID)
	if !ok {
		return 0, nil
	}

	delivered := 0
	var errs []error
	for c := range subs {
		if err := c.Send(msg); err != nil {
			errs = append(errs, fmt.Errorf("conn %s: %w", c.ID(), err))
			continue
		}
		delivered++
	}
	return delivered, errors.Join(errs...)
}

func (r *Registry) Count(queueID string) int {
	subs, _ := r.queues.Load(queueID)
	return len(subs)
}

func (r *Registry) Has(queueID string) bool {
	_, ok := r.queues.Load(queueID)
	return ok
}

// Queues reports how many queues have at least one subscriber.
func (r *Registry) Queues() int {
	return r.queues.Size()
}

// CloseAll closes every connection and empties the registry.
func (r *Registry) CloseAll() {
	r.queues.Range(func(queueID string, subs subscriberSet) bool {
		for c := range subs {
			c.Close()
		}
		return true
	})
	r.queues.Clear()
}
