package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/stepflowhq/stepflow/flow"
	"github.com/stepflowhq/stepflow/knowledge"
	"github.com/stepflowhq/stepflow/llm"
	"github.com/stepflowhq/stepflow/store"
)

// outcome is what executing a node produced: what to show, whether to wait
// for the user, and which handle to leave through when advancing.
type outcome struct {
	uiType   UIType
	response string
	buttons  []flow.Button
	sections []flow.ListSection

	// waiting true means the node expects user input now; the engine does
	// not resolve a next node and the client renders and waits.
	waiting bool

	// handle is the exit taken when waiting is false.
	handle string

	// validation true marks a re-prompt for missing required input; the
	// step is not checkpointed and state is not advanced.
	validation bool
}

// execute runs one node. userInput is the answer being consumed for
// input-expecting nodes and empty on first arrival, which renders instead.
func (e *Engine) execute(ctx context.Context, f *flow.Flow, node *flow.Node, state *store.ConversationState, userInput string) (*outcome, error) {
	switch node.Type {
	case flow.NodeMessage:
		return e.execMessage(node, state, userInput)
	case flow.NodeInput:
		return e.execInput(node, state, userInput)
	case flow.NodeAI:
		return e.execAI(ctx, node, state)
	case flow.NodeAPILibrary:
		return e.execAPILibrary(ctx, node, state)
	case flow.NodeKnowledgeBase:
		return e.execKnowledgeBase(ctx, node, state)
	case flow.NodeCondition:
		return e.execCondition(node, state)
	case flow.NodeInteractiveList:
		return e.execInteractiveList(node, state, userInput)
	case flow.NodeEngine:
		return &outcome{uiType: UIProcessing, handle: flow.DefaultHandle}, nil
	default:
		return nil, fmt.Errorf("%w: node %s has type %q", flow.ErrInvalidNodeType, node.ID, node.Type)
	}
}

func (e *Engine) execMessage(node *flow.Node, state *store.ConversationState, userInput string) (*outcome, error) {
	cfg := node.Config.(*flow.MessageConfig)

	hasConnect := false
	for _, b := range cfg.Buttons {
		if b.ActionType == flow.ActionConnectToNode {
			hasConnect = true
			break
		}
	}

	if userInput != "" && hasConnect {
		// Consuming the user's button reply.
		if handle, ok := matchButton(cfg.Buttons, userInput); ok {
			state.Messages = append(state.Messages, store.Message{Role: "user", Content: userInput})
			return &outcome{uiType: UIProcessing, handle: handle}, nil
		}
		// Free-text reply to a button prompt falls through the default exit.
		state.Messages = append(state.Messages, store.Message{Role: "user", Content: userInput})
		return &outcome{uiType: UIProcessing, handle: flow.DefaultHandle}, nil
	}

	text := flow.Substitute(cfg.Text, state.UserData)
	if text != "" {
		state.Messages = append(state.Messages, store.Message{Role: "assistant", Content: text})
	}

	if hasConnect {
		return &outcome{
			uiType:   UIInteractive,
			response: text,
			buttons:  cfg.Buttons,
			waiting:  true,
		}, nil
	}

	out := &outcome{uiType: UIInfo, response: text, handle: flow.DefaultHandle}
	if len(cfg.Buttons) > 0 {
		// Terminal affordances (call/email/url) are shown but need no reply.
		out.uiType = UIInteractive
		out.buttons = cfg.Buttons
	}
	return out, nil
}

func (e *Engine) execInput(node *flow.Node, state *store.ConversationState, userInput string) (*outcome, error) {
	cfg := node.Config.(*flow.InputConfig)
	prompt := flow.Substitute(cfg.Prompt, state.UserData)

	if userInput == "" {
		if cfg.Required && state.CurrentNodeID == node.ID {
			// The user submitted nothing to a required prompt: re-ask
			// without advancing or checkpointing.
			return &outcome{uiType: UIInput, response: prompt, waiting: true, validation: true}, nil
		}
		// First arrival renders the prompt. A repeat arrival (optional
		// input submitted empty) re-asks without duplicating the transcript.
		if prompt != "" && state.CurrentNodeID != node.ID {
			state.Messages = append(state.Messages, store.Message{Role: "assistant", Content: prompt})
		}
		return &outcome{uiType: UIInput, response: prompt, waiting: true}, nil
	}

	state.UserData[cfg.Variable] = userInput
	state.Messages = append(state.Messages, store.Message{Role: "user", Content: userInput})
	return &outcome{uiType: UIProcessing, handle: flow.DefaultHandle}, nil
}

func (e *Engine) execAI(ctx context.Context, node *flow.Node, state *store.ConversationState) (*outcome, error) {
	if e.llm == nil {
		return nil, fmt.Errorf("node %s: no llm client configured", node.ID)
	}
	cfg := node.Config.(*flow.AIConfig)

	systemPrompt := flow.Substitute(cfg.SystemPrompt, state.UserData)
	if kbContext, ok := state.UserData[knowledge.ContextVariable].(string); ok {
		if kbContext != "" {
			systemPrompt += "\n\nUse the following context when answering:\n" + kbContext
		}
		delete(state.UserData, knowledge.ContextVariable) // consumed once
	}

	messages := make([]llm.Message, 0, len(state.Messages))
	for _, m := range state.Messages {
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
	}

	callCtx, cancel := context.WithTimeout(ctx, e.collaboratorTimeout)
	defer cancel()

	response, err := e.llm.Complete(callCtx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Model:        cfg.Model,
		Temperature:  cfg.Temperature,
		MaxTokens:    cfg.MaxTokens,
		Messages:     messages,
	})
	if err != nil {
		return nil, &CollaboratorError{Node: node.ID, Kind: "llm", Err: err}
	}

	state.Messages = append(state.Messages, store.Message{Role: "assistant", Content: response})
	return &outcome{uiType: UIInfo, response: response, handle: flow.DefaultHandle}, nil
}

func (e *Engine) execAPILibrary(ctx context.Context, node *flow.Node, state *store.ConversationState) (*outcome, error) {
	if e.api == nil {
		return nil, fmt.Errorf("node %s: no api executor configured", node.ID)
	}
	cfg := node.Config.(*flow.APILibraryConfig)

	callCtx, cancel := context.WithTimeout(ctx, e.collaboratorTimeout)
	defer cancel()

	vars, err := e.api.Execute(callCtx, cfg.LibraryID, state.UserData, cfg.ResponseMappings)
	if err != nil {
		return nil, &CollaboratorError{Node: node.ID, Kind: "api", Err: err}
	}
	for k, v := range vars {
		state.UserData[k] = v
	}
	return &outcome{uiType: UIProcessing, handle: flow.DefaultHandle}, nil
}

func (e *Engine) execKnowledgeBase(ctx context.Context, node *flow.Node, state *store.ConversationState) (*outcome, error) {
	if e.retriever == nil {
		return nil, fmt.Errorf("node %s: no retriever configured", node.ID)
	}
	cfg := node.Config.(*flow.KnowledgeBaseConfig)

	query := flow.Substitute(cfg.Query, state.UserData)
	if query == "" {
		query = lastUserMessage(state.Messages)
	}

	callCtx, cancel := context.WithTimeout(ctx, e.collaboratorTimeout)
	defer cancel()

	docs, err := e.retriever.Retrieve(callCtx, query, cfg.DocumentIDs, cfg.TopK)
	if err != nil {
		return nil, &CollaboratorError{Node: node.ID, Kind: "knowledge", Err: err}
	}

	state.UserData[knowledge.ContextVariable] = knowledge.JoinContext(docs)
	return &outcome{uiType: UIProcessing, handle: flow.DefaultHandle}, nil
}

func (e *Engine) execCondition(node *flow.Node, state *store.ConversationState) (*outcome, error) {
	cfg := node.Config.(*flow.ConditionConfig)

	if handle, ok := flow.EvaluateGroups(cfg.Groups, state.UserData); ok {
		return &outcome{uiType: UIProcessing, handle: handle}, nil
	}
	if cfg.HasDefaultOutput {
		return &outcome{uiType: UIProcessing, handle: flow.DefaultHandle}, nil
	}
	// No match and no fallback: the flow halts here.
	return &outcome{uiType: UIProcessing, handle: ""}, nil
}

func (e *Engine) execInteractiveList(node *flow.Node, state *store.ConversationState, userInput string) (*outcome, error) {
	cfg := node.Config.(*flow.InteractiveListConfig)

	var all []flow.Button
	for _, s := range cfg.Sections {
		all = append(all, s.Buttons...)
	}

	if userInput != "" {
		if handle, ok := matchButton(all, userInput); ok {
			state.Messages = append(state.Messages, store.Message{Role: "user", Content: userInput})
			return &outcome{uiType: UIProcessing, handle: handle}, nil
		}
		state.Messages = append(state.Messages, store.Message{Role: "user", Content: userInput})
		return &outcome{uiType: UIProcessing, handle: flow.DefaultHandle}, nil
	}

	header := flow.Substitute(cfg.Header, state.UserData)
	if header != "" {
		state.Messages = append(state.Messages, store.Message{Role: "assistant", Content: header})
	}
	return &outcome{
		uiType:   UIInteractive,
		response: header,
		sections: cfg.Sections,
		waiting:  true,
	}, nil
}

// matchButton maps a user reply to a button exit handle. The reply matches
// by label or by the literal handle name. Buttons are numbered in
// declaration order across all sections; only connect_to_node buttons have
// an exit.
func matchButton(buttons []flow.Button, reply string) (string, bool) {
	for i, b := range buttons {
		if b.ActionType != flow.ActionConnectToNode {
			continue
		}
		if strings.EqualFold(b.Label, reply) || reply == flow.ButtonHandle(i) {
			return flow.ButtonHandle(i), true
		}
	}
	return "", false
}

func lastUserMessage(messages []store.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content
		}
	}
	return ""
}
