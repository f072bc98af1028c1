// Package memory provides the in-memory store backend. It is the default
// for tests and single-process deployments.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/stepflowhq/stepflow/store"
)

// Store keeps conversation state and checkpoint timelines in process
// memory. Safe for concurrent use.
type Store struct {
	mu          sync.RWMutex
	states      map[string]*store.ConversationState
	checkpoints map[string][]*store.Checkpoint // oldest first
}

var _ store.Store = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		states:      make(map[string]*store.ConversationState),
		checkpoints: make(map[string][]*store.Checkpoint),
	}
}

// Append stores a checkpoint at the end of the conversation's timeline and
// assigns its version.
func (s *Store) Append(ctx context.Context, cp *store.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	timeline := s.checkpoints[cp.ConversationID]
	version := 1
	if len(timeline) > 0 {
		version = timeline[len(timeline)-1].Version + 1
	}
	cp.Version = version

	stored := *cp
	stored.State = cp.State.Clone()
	s.checkpoints[cp.ConversationID] = append(timeline, &stored)
	return nil
}

// List returns the conversation's checkpoints, most recent first.
func (s *Store) List(ctx context.Context, conversationID string) ([]*store.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	timeline := s.checkpoints[conversationID]
	out := make([]*store.Checkpoint, 0, len(timeline))
	for i := len(timeline) - 1; i >= 0; i-- {
		out = append(out, copyCheckpoint(timeline[i]))
	}
	return out, nil
}

// Load retrieves one checkpoint from a conversation's timeline.
func (s *Store) Load(ctx context.Context, conversationID, checkpointID string) (*store.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, cp := range s.checkpoints[conversationID] {
		if cp.ID == checkpointID {
			return copyCheckpoint(cp), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", store.ErrCheckpointNotFound, checkpointID)
}

// Replay truncates every checkpoint strictly after the target and returns
// the target.
func (s *Store) Replay(ctx context.Context, conversationID, checkpointID string) (*store.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	timeline := s.checkpoints[conversationID]
	for i, cp := range timeline {
		if cp.ID == checkpointID {
			s.checkpoints[conversationID] = timeline[:i+1]
			return copyCheckpoint(cp), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", store.ErrCheckpointNotFound, checkpointID)
}

// Clear removes the conversation's entire timeline.
func (s *Store) Clear(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.checkpoints, conversationID)
	return nil
}

// SaveState persists the live conversation state.
func (s *Store) SaveState(ctx context.Context, state *store.ConversationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.ConversationID] = state.Clone()
	return nil
}

// LoadState retrieves the live conversation state.
func (s *Store) LoadState(ctx context.Context, conversationID string) (*store.ConversationState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.states[conversationID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrStateNotFound, conversationID)
	}
	return state.Clone(), nil
}

func copyCheckpoint(cp *store.Checkpoint) *store.Checkpoint {
	out := *cp
	out.State = cp.State.Clone()
	return &out
}
