package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrCheckpointNotFound is returned when a checkpoint id does not exist
	// for the given conversation.
	ErrCheckpointNotFound = errors.New("checkpoint not found")

	// ErrStateNotFound is returned when no live state exists for a
	// conversation id.
	ErrStateNotFound = errors.New("conversation state not found")
)

// Message is one transcript entry. The transcript is append-only.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ConversationState is the durable state of one conversation. It is
// created on the first step for an agent and mutated by every step after
// that. The engine never deletes it.
type ConversationState struct {
	ConversationID string         `json:"conversation_id"`
	AgentID        string         `json:"agent_id"`
	UserData       map[string]any `json:"user_data"`
	Messages       []Message      `json:"messages"`
	CurrentNodeID  string         `json:"current_node_id"`
	NextNodeID     string         `json:"next_node_id,omitempty"`
}

// Clone returns a deep copy so a stored snapshot cannot alias live state.
func (s *ConversationState) Clone() *ConversationState {
	if s == nil {
		return nil
	}
	out := &ConversationState{
		ConversationID: s.ConversationID,
		AgentID:        s.AgentID,
		UserData:       make(map[string]any, len(s.UserData)),
		Messages:       make([]Message, len(s.Messages)),
		CurrentNodeID:  s.CurrentNodeID,
		NextNodeID:     s.NextNodeID,
	}
	for k, v := range s.UserData {
		out.UserData[k] = v
	}
	copy(out.Messages, s.Messages)
	return out
}

// Checkpoint is an immutable snapshot of conversation state taken after a
// step. Checkpoints for a conversation form a strictly version-ordered
// sequence; replay truncates everything after the target.
type Checkpoint struct {
	ID             string             `json:"id"`
	ConversationID string             `json:"conversation_id"`
	NodeID         string             `json:"node_id"`
	State          *ConversationState `json:"state"`
	Timestamp      time.Time          `json:"timestamp"`
	Version        int                `json:"version"`
}

// CheckpointStore persists the per-conversation checkpoint timeline.
type CheckpointStore interface {
	// Append stores a checkpoint at the end of the conversation's
	// timeline. The store assigns Version (last version + 1) and writes it
	// back into the checkpoint.
	Append(ctx context.Context, cp *Checkpoint) error

	// List returns the conversation's checkpoints, most recent first.
	List(ctx context.Context, conversationID string) ([]*Checkpoint, error)

	// Load retrieves one checkpoint from a conversation's timeline.
	Load(ctx context.Context, conversationID, checkpointID string) (*Checkpoint, error)

	// Replay truncates every checkpoint strictly after the target and
	// returns the target, whose snapshot becomes the live state. Callers
	// serialize Replay against Step through the per-conversation lock.
	Replay(ctx context.Context, conversationID, checkpointID string) (*Checkpoint, error)

	// Clear removes the conversation's entire timeline.
	Clear(ctx context.Context, conversationID string) error
}

// StateStore persists the live state of each conversation.
type StateStore interface {
	SaveState(ctx context.Context, state *ConversationState) error
	LoadState(ctx context.Context, conversationID string) (*ConversationState, error)
}

// Store is the combined persistence surface the engine needs. Every
// backend in this module implements both halves over the same medium.
type Store interface {
	CheckpointStore
	StateStore
}
