package engine

import (
	"github.com/stepflowhq/stepflow/flow"
	"github.com/stepflowhq/stepflow/store"
)

// UIType tells the client what to render after a step.
type UIType string

const (
	// UIInteractive renders a message with tappable buttons.
	UIInteractive UIType = "interactive"
	// UIInput renders a free-text prompt.
	UIInput UIType = "input"
	// UIProcessing renders nothing; the client auto-proceeds.
	UIProcessing UIType = "processing"
	// UIComplete marks the end of the conversation.
	UIComplete UIType = "complete"
	// UIInfo renders a plain message.
	UIInfo UIType = "info"
)

// UISchema describes what the caller should display next. ExpectsInput
// false means the caller immediately re-invokes Step with the returned
// next node id and no user input; that caller-side loop is how
// non-interactive nodes chain without extra visible turns.
type UISchema struct {
	Type         UIType             `json:"type"`
	Message      string             `json:"message,omitempty"`
	Buttons      []flow.Button      `json:"buttons,omitempty"`
	Sections     []flow.ListSection `json:"sections,omitempty"`
	ExpectsInput bool               `json:"expects_input"`
}

// StepRequest is one step invocation. ConversationID empty means this is
// the conversation's first step; NodeID is then ignored and the flow's
// start node is used. UserData and Messages let the caller seed or extend
// conversation variables and transcript.
type StepRequest struct {
	AgentID        string            `json:"agent_id"`
	NodeID         string            `json:"node_id,omitempty"`
	UserInput      string            `json:"user_input"`
	UserData       map[string]any    `json:"user_data,omitempty"`
	Messages       []store.Message   `json:"messages,omitempty"`
	ConversationID string            `json:"conversation_id,omitempty"`
}

// StepResult is the outcome of one step.
type StepResult struct {
	Success        bool                     `json:"success"`
	Response       string                   `json:"response,omitempty"`
	UISchema       UISchema                 `json:"ui_schema"`
	CurrentNodeID  string                   `json:"current_node_id"`
	NextNodeID     string                   `json:"next_node_id,omitempty"`
	State          *store.ConversationState `json:"state"`
	IsComplete     bool                     `json:"is_complete"`
	ConversationID string                   `json:"conversation_id"`
}

// HistoryEntry is one checkpoint reference in a conversation's timeline.
type HistoryEntry struct {
	CheckpointID string `json:"checkpoint_id"`
	NodeID       string `json:"node_id"`
	Timestamp    string `json:"timestamp"`
}

// MemorySummary is the condensed view served by the debug surface.
type MemorySummary struct {
	TotalMessages int      `json:"total_messages"`
	UserDataKeys  []string `json:"user_data_keys"`
	LastNode      string   `json:"last_node"`
}
