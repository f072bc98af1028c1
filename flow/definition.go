package flow

import (
	"encoding/json"
	"errors"
	"fmt"
)

// NodeType identifies the kind of interaction a node performs.
type NodeType string

const (
	NodeMessage         NodeType = "message"
	NodeInput           NodeType = "input"
	NodeAI              NodeType = "ai"
	NodeAPILibrary      NodeType = "apiLibrary"
	NodeKnowledgeBase   NodeType = "knowledgeBase"
	NodeEngine          NodeType = "engine"
	NodeCondition       NodeType = "condition"
	NodeInteractiveList NodeType = "interactiveList"
	NodeNotes           NodeType = "notes"
)

// DefaultHandle is the exit handle used by nodes with a single unconditional
// outgoing edge.
const DefaultHandle = "default"

// ButtonHandle returns the exit handle for the n-th button of a node.
func ButtonHandle(n int) string {
	return fmt.Sprintf("button-%d", n)
}

var (
	// ErrFlowNotFound is returned when no definition exists for an agent.
	ErrFlowNotFound = errors.New("flow not found")

	// ErrNodeNotFound is returned when a node id is not part of the flow.
	ErrNodeNotFound = errors.New("node not found in flow")

	// ErrNoStartNode is returned when a flow has no resolvable entry node.
	ErrNoStartNode = errors.New("flow has no start node")

	// ErrAmbiguousRoute is returned when more than one outgoing edge matches
	// the same source handle.
	ErrAmbiguousRoute = errors.New("ambiguous route")

	// ErrInvalidNodeType is returned when a node's type is unknown or the
	// node is not executable (notes).
	ErrInvalidNodeType = errors.New("invalid node type")
)

// NodeSpec is the raw authored form of a node. Data is decoded into a typed
// config during Compile, keyed by Type.
type NodeSpec struct {
	ID   string          `json:"id"`
	Type NodeType        `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// EdgeSpec connects two nodes. SourceHandle distinguishes multiple exits
// from the same node (buttons, condition groups).
type EdgeSpec struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	Target       string `json:"target"`
	TargetHandle string `json:"targetHandle,omitempty"`
}

// Definition is the authored graph for one agent. It is immutable during
// execution; the engine only ever reads it.
type Definition struct {
	ID          string     `json:"id,omitempty"`
	StartNodeID string     `json:"startNodeId,omitempty"`
	Nodes       []NodeSpec `json:"nodes"`
	Edges       []EdgeSpec `json:"edges"`
}

// ButtonAction describes what tapping a button does.
type ButtonAction string

const (
	ActionConnectToNode ButtonAction = "connect_to_node"
	ActionCallNumber    ButtonAction = "call_number"
	ActionSendEmail     ButtonAction = "send_email"
	ActionOpenURL       ButtonAction = "open_url"
)

// Button is a tappable affordance on a message or interactive-list node.
// Only connect_to_node buttons have a graph edge; the other actions are
// terminal UI affordances carried through to the client untouched.
type Button struct {
	Label      string       `json:"label"`
	ActionType ButtonAction `json:"actionType"`
	Value      string       `json:"value,omitempty"`
}

// MessageConfig configures a message node.
type MessageConfig struct {
	Text    string   `json:"text"`
	Buttons []Button `json:"buttons,omitempty"`
}

// InputConfig configures a user-input node.
type InputConfig struct {
	Prompt   string `json:"prompt"`
	Variable string `json:"variable"`
	Required bool   `json:"required,omitempty"`
}

// AIConfig configures an LLM-call node.
type AIConfig struct {
	SystemPrompt string  `json:"systemPrompt"`
	Model        string  `json:"model,omitempty"`
	Temperature  float64 `json:"temperature,omitempty"`
	MaxTokens    int     `json:"maxTokens,omitempty"`
}

// ResponseMapping copies a value out of an API response into user data.
// Path is a gjson-style object path.
type ResponseMapping struct {
	Path     string `json:"path"`
	Variable string `json:"variable"`
}

// APILibraryConfig configures an external HTTP-call node. LibraryID
// references an entry in the API library collaborator.
type APILibraryConfig struct {
	LibraryID        string            `json:"libraryId"`
	ResponseMappings []ResponseMapping `json:"responseMappings,omitempty"`
}

// KnowledgeBaseConfig configures a retrieval node over selected documents.
type KnowledgeBaseConfig struct {
	DocumentIDs []string `json:"documentIds,omitempty"`
	Query       string   `json:"query,omitempty"`
	TopK        int      `json:"topK,omitempty"`
}

// ConditionConfig configures a branching node. Groups are evaluated in
// declaration order; the first matching group's edge is taken.
type ConditionConfig struct {
	Groups           []ConditionGroup `json:"groups"`
	HasDefaultOutput bool             `json:"hasDefaultOutput,omitempty"`
}

// ListSection groups buttons in an interactive-list node.
type ListSection struct {
	Title   string   `json:"title,omitempty"`
	Buttons []Button `json:"buttons"`
}

// InteractiveListConfig configures an interactive-list node.
type InteractiveListConfig struct {
	Header   string        `json:"header,omitempty"`
	Sections []ListSection `json:"sections"`
}

// decodeConfig turns a node's raw data bag into its typed config. Malformed
// configs fail here, at flow load, rather than mid-conversation.
func decodeConfig(spec NodeSpec) (any, error) {
	decode := func(dst any) (any, error) {
		if len(spec.Data) == 0 {
			return dst, nil
		}
		if err := json.Unmarshal(spec.Data, dst); err != nil {
			return nil, fmt.Errorf("node %s (%s): bad config: %w", spec.ID, spec.Type, err)
		}
		return dst, nil
	}

	switch spec.Type {
	case NodeMessage:
		return decode(&MessageConfig{})
	case NodeInput:
		cfg, err := decode(&InputConfig{})
		if err != nil {
			return nil, err
		}
		if cfg.(*InputConfig).Variable == "" {
			return nil, fmt.Errorf("node %s: input node needs a variable key", spec.ID)
		}
		return cfg, nil
	case NodeAI:
		return decode(&AIConfig{})
	case NodeAPILibrary:
		cfg, err := decode(&APILibraryConfig{})
		if err != nil {
			return nil, err
		}
		if cfg.(*APILibraryConfig).LibraryID == "" {
			return nil, fmt.Errorf("node %s: apiLibrary node needs a library id", spec.ID)
		}
		return cfg, nil
	case NodeKnowledgeBase:
		return decode(&KnowledgeBaseConfig{})
	case NodeCondition:
		return decode(&ConditionConfig{})
	case NodeInteractiveList:
		return decode(&InteractiveListConfig{})
	case NodeEngine, NodeNotes:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: node %s has type %q", ErrInvalidNodeType, spec.ID, spec.Type)
	}
}
