// Package lock serializes access to a single conversation. Two concurrent
// steps on the same conversation id are a race; the engine takes the
// conversation's lock for the duration of a step or replay and rejects the
// second caller instead of corrupting state.
package lock

import (
	"context"
	"errors"
	"sync"
)

// ErrConversationBusy is returned when the conversation's lock is already
// held. Callers surface this as a Conflict and may retry.
var ErrConversationBusy = errors.New("conversation is locked by another step")

// ReleaseFunc releases a held lock.
type ReleaseFunc func()

// Locker acquires per-conversation locks. Acquire does not block: if the
// lock is held it fails immediately with ErrConversationBusy.
type Locker interface {
	Acquire(ctx context.Context, conversationID string) (ReleaseFunc, error)
}

// MemoryLocker implements Locker for a single process.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

var _ Locker = (*MemoryLocker)(nil)

// NewMemoryLocker creates an in-process locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]bool)}
}

// Acquire takes the conversation's lock or fails with ErrConversationBusy.
func (l *MemoryLocker) Acquire(ctx context.Context, conversationID string) (ReleaseFunc, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held[conversationID] {
		return nil, ErrConversationBusy
	}
	l.held[conversationID] = true

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, conversationID)
	}, nil
}
