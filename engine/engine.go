// Package engine implements the step controller: the server-resident state
// machine that executes an agent's flow one node per request, across many
// concurrent conversations, checkpointing after every step so any point of
// a conversation can be inspected or replayed.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/stepflowhq/stepflow/flow"
	"github.com/stepflowhq/stepflow/knowledge"
	"github.com/stepflowhq/stepflow/llm"
	"github.com/stepflowhq/stepflow/lock"
	"github.com/stepflowhq/stepflow/log"
	"github.com/stepflowhq/stepflow/store"
)

// DefaultCollaboratorTimeout bounds each LLM/API/retrieval call.
const DefaultCollaboratorTimeout = 30 * time.Second

// APICaller executes an API library entry and returns the variables its
// response mappings produced.
type APICaller interface {
	Execute(ctx context.Context, libraryID string, userData map[string]any, mappings []flow.ResponseMapping) (map[string]any, error)
}

// Engine drives conversations through their flows. It holds no per-
// conversation memory itself; all durable state lives in the store, so any
// instance can serve any step.
type Engine struct {
	flows     flow.Registry
	store     store.Store
	locker    lock.Locker
	llm       llm.Client
	api       APICaller
	retriever knowledge.Retriever
	logger    log.Logger

	collaboratorTimeout time.Duration
}

// Option configures the engine.
type Option func(*Engine)

// WithLLM sets the completion collaborator for ai nodes.
func WithLLM(c llm.Client) Option {
	return func(e *Engine) { e.llm = c }
}

// WithAPICaller sets the API library collaborator for apiLibrary nodes.
func WithAPICaller(a APICaller) Option {
	return func(e *Engine) { e.api = a }
}

// WithRetriever sets the retrieval collaborator for knowledgeBase nodes.
func WithRetriever(r knowledge.Retriever) Option {
	return func(e *Engine) { e.retriever = r }
}

// WithLogger sets the logger. Defaults to the package-level logger.
func WithLogger(l log.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithCollaboratorTimeout bounds external collaborator calls.
func WithCollaboratorTimeout(d time.Duration) Option {
	return func(e *Engine) { e.collaboratorTimeout = d }
}

// New creates an engine over the given flow registry, store and locker.
func New(flows flow.Registry, st store.Store, locker lock.Locker, opts ...Option) *Engine {
	e := &Engine{
		flows:               flows,
		store:               st,
		locker:              locker,
		logger:              log.GetDefaultLogger(),
		collaboratorTimeout: DefaultCollaboratorTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Step executes exactly one node of the conversation and returns what the
// client should render next.
//
// An empty ConversationID starts a new conversation at the flow's start
// node. Otherwise NodeID names the node to execute now; UserInput is
// consumed as that node's answer by input-expecting nodes and ignored by
// the rest. When the result carries ExpectsInput false and a next node id,
// the caller re-invokes Step immediately with that node id. The engine
// never chains server-side, so every hop lands in the checkpoint timeline
// and can be replayed individually.
func (e *Engine) Step(ctx context.Context, req *StepRequest) (*StepResult, error) {
	started := time.Now()

	f, err := e.flows.Get(ctx, req.AgentID)
	if err != nil {
		return nil, err
	}

	conversationID := req.ConversationID
	fresh := conversationID == ""
	if fresh {
		conversationID = uuid.New().String()
	}

	release, err := e.locker.Acquire(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	defer release()

	state, err := e.loadOrCreateState(ctx, conversationID, req, fresh)
	if err != nil {
		return nil, err
	}

	nodeID := req.NodeID
	if fresh || nodeID == "" {
		nodeID = state.NextNodeID
		if nodeID == "" {
			nodeID = f.StartID()
		}
	}

	node, err := f.Node(nodeID)
	if err != nil {
		return nil, err
	}
	if node.Type == flow.NodeNotes {
		return nil, fmt.Errorf("%w: node %s is an annotation and cannot be executed", flow.ErrInvalidNodeType, nodeID)
	}

	out, err := e.execute(ctx, f, node, state, req.UserInput)
	if err != nil {
		var collab *CollaboratorError
		if errors.As(err, &collab) {
			// Surfaced as a terminal info message; nothing is persisted so
			// the client may retry the same step.
			e.logger.Warn("step collaborator failure: agent=%s conversation=%s node=%s: %v",
				req.AgentID, conversationID, nodeID, collab.Err)
			return &StepResult{
				Success: false,
				UISchema: UISchema{
					Type:    UIInfo,
					Message: "The service is temporarily unavailable. Please try again.",
				},
				CurrentNodeID:  nodeID,
				State:          state,
				ConversationID: conversationID,
			}, nil
		}
		return nil, err
	}

	state.CurrentNodeID = nodeID
	state.NextNodeID = ""

	var nextID string
	if !out.waiting && out.handle != "" {
		nextID, err = f.Resolve(nodeID, out.handle)
		if err != nil {
			return nil, err
		}
		state.NextNodeID = nextID
	}

	isComplete := !out.waiting && nextID == ""

	ui := UISchema{
		Type:         out.uiType,
		Message:      out.response,
		Buttons:      out.buttons,
		Sections:     out.sections,
		ExpectsInput: out.waiting,
	}
	if isComplete {
		ui.Type = UIComplete
	}

	result := &StepResult{
		Success:        true,
		Response:       out.response,
		UISchema:       ui,
		CurrentNodeID:  nodeID,
		NextNodeID:     nextID,
		State:          state,
		IsComplete:     isComplete,
		ConversationID: conversationID,
	}

	if out.validation {
		// Required input was missing: re-prompt without persisting anything.
		return result, nil
	}

	if err := e.store.SaveState(ctx, state); err != nil {
		return nil, fmt.Errorf("save conversation state: %w", err)
	}
	cp := &store.Checkpoint{
		ID:             "cp_" + uuid.New().String(),
		ConversationID: conversationID,
		NodeID:         nodeID,
		State:          state.Clone(),
		Timestamp:      time.Now().UTC(),
	}
	if err := e.store.Append(ctx, cp); err != nil {
		return nil, fmt.Errorf("append checkpoint: %w", err)
	}

	e.logger.Debug("step: agent=%s conversation=%s node=%s type=%s next=%q complete=%t took=%s",
		req.AgentID, conversationID, nodeID, node.Type, nextID, isComplete, time.Since(started))

	return result, nil
}

func (e *Engine) loadOrCreateState(ctx context.Context, conversationID string, req *StepRequest, fresh bool) (*store.ConversationState, error) {
	var state *store.ConversationState
	if !fresh {
		loaded, err := e.store.LoadState(ctx, conversationID)
		switch {
		case err == nil:
			state = loaded
		case errors.Is(err, store.ErrStateNotFound):
			// Caller-supplied id we have never seen; start it fresh.
		default:
			return nil, err
		}
	}
	if state == nil {
		state = &store.ConversationState{
			ConversationID: conversationID,
			AgentID:        req.AgentID,
			UserData:       make(map[string]any),
		}
	}
	if state.UserData == nil {
		state.UserData = make(map[string]any)
	}

	// The caller may seed or extend conversation variables (contact
	// fields, channel metadata) on any step.
	for k, v := range req.UserData {
		state.UserData[k] = v
	}
	if len(state.Messages) == 0 && len(req.Messages) > 0 {
		state.Messages = append(state.Messages, req.Messages...)
	}
	return state, nil
}

// Replay rewinds the conversation to a checkpoint: every later checkpoint
// is discarded and the snapshot becomes the live state. It takes the same
// per-conversation lock as Step, so it cannot interleave with one.
func (e *Engine) Replay(ctx context.Context, conversationID, checkpointID string) (*store.ConversationState, error) {
	release, err := e.locker.Acquire(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	defer release()

	cp, err := e.store.Replay(ctx, conversationID, checkpointID)
	if err != nil {
		return nil, err
	}

	state := cp.State.Clone()
	state.CurrentNodeID = cp.NodeID
	if err := e.store.SaveState(ctx, state); err != nil {
		return nil, fmt.Errorf("restore conversation state: %w", err)
	}

	e.logger.Info("replay: conversation=%s checkpoint=%s node=%s", conversationID, checkpointID, cp.NodeID)
	return state, nil
}

// State returns the live state of a conversation.
func (e *Engine) State(ctx context.Context, conversationID string) (*store.ConversationState, error) {
	return e.store.LoadState(ctx, conversationID)
}

// History returns the conversation's checkpoint timeline, most recent
// first.
func (e *Engine) History(ctx context.Context, conversationID string) ([]HistoryEntry, error) {
	cps, err := e.store.List(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	out := make([]HistoryEntry, 0, len(cps))
	for _, cp := range cps {
		out = append(out, HistoryEntry{
			CheckpointID: cp.ID,
			NodeID:       cp.NodeID,
			Timestamp:    cp.Timestamp.Format(time.RFC3339Nano),
		})
	}
	return out, nil
}

// Memory returns a condensed view of a conversation for debugging.
func (e *Engine) Memory(ctx context.Context, conversationID string) (*MemorySummary, error) {
	state, err := e.store.LoadState(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(state.UserData))
	for k := range state.UserData {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return &MemorySummary{
		TotalMessages: len(state.Messages),
		UserDataKeys:  keys,
		LastNode:      state.CurrentNodeID,
	}, nil
}
