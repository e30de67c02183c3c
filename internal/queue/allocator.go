package queue

import (
	"context"
	"fmt"

	"fast-queue/internal/apperr"
)

// Allocator hands out ticket numbers. commit persists the ticket carrying
// the number; if it fails the number is not consumed.
type Allocator interface {
	Allocate(ctx context.Context, queueID string, commit func(seq uint64, number string) error) (string, error)
}

// LockingAllocator derives the next number from the highest stored one
// while holding the queue's number lock, so numbers are gap-free.
type LockingAllocator struct {
	store  Store
	locker Locker
}

func NewLockingAllocator(store Store, locker Locker) *LockingAllocator {
	return &LockingAllocator{store: store, locker: locker}
}

func (a *LockingAllocator) Allocate(ctx context.Context, queueID string, commit func(seq uint64, number string) error) (string, error) {
	unlock, err := a.locker.Lock(ctx, numberLockKey(queueID))
	if err != nil {
		return "", apperr.Store("Allocate", fmt.Errorf("lock queue %s: %w", queueID, err))
	}
	defer unlock()

	highest, err := a.store.FindHighestNumber(ctx, queueID)
	if err != nil {
		return "", apperr.Store("Allocate", err)
	}

	next := highest + 1
	number := FormatNumber(next)
	if err := commit(next, number); err != nil {
		return "", apperr.Store("Allocate", err)
	}
	return number, nil
}
