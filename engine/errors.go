package engine

import "fmt"

// CollaboratorError wraps a failed or timed-out call to an external
// collaborator (LLM, API library, retrieval). The step is not checkpointed
// and the conversation is not advanced, so the caller may retry the same
// step. It is surfaced to the client as a terminal info ui_schema rather
// than a hard failure.
type CollaboratorError struct {
	Node string
	Kind string // "llm", "api" or "knowledge"
	Err  error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s call failed at node %s: %v", e.Kind, e.Node, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }
