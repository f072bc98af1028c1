// Stepflow - Flow Execution Engine for Visually Composed Agents
//
// Stepflow executes agent flows defined as directed graphs of typed nodes.
// A flow is authored as JSON (nodes plus edges), compiled once, and then
// driven step by step: each HTTP call executes exactly one node, persists
// the updated conversation state together with a checkpoint, and tells the
// caller whether the flow is waiting for user input or can proceed to the
// next node.
//
// # Quick Start
//
// Run the server:
//
//	go run ./cmd/stepflowd -config config.yaml
//
// Or embed the engine directly:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//
//		"github.com/stepflowhq/stepflow/engine"
//		"github.com/stepflowhq/stepflow/flow"
//		"github.com/stepflowhq/stepflow/lock"
//		"github.com/stepflowhq/stepflow/store/memory"
//	)
//
//	func main() {
//		flows := flow.NewDirRegistry("./flows")
//		eng := engine.New(flows, memory.New(), lock.NewMemoryLocker())
//
//		res, _ := eng.Step(context.Background(), &engine.StepRequest{
//			AgentID:        "support_bot",
//			ConversationID: "conv_1",
//		})
//		fmt.Println(res.Messages)
//	}
//
// # Core Concepts
//
// # Step Protocol
//
// The engine never chains nodes server side. Every call executes one node
// and returns a StepResult; when ExpectsInput is false and NextNodeID is
// set, the caller re-invokes Step with that node ID to continue. This keeps
// each HTTP request short and makes every state transition checkpointed and
// replayable.
//
// # Node Types
//
// Flows are built from a fixed set of node executors:
//
//   - message: renders templated text, optionally with reply buttons
//   - input: asks a question and stores the answer in a state variable
//   - ai: calls an LLM with conversation history and optional knowledge context
//   - apiLibrary: invokes a registered external API and maps response fields
//   - knowledgeBase: retrieves matching documents for the next ai node
//   - engine: hands control to an external collaborator engine
//   - condition: routes on rule groups evaluated against state variables
//   - interactiveList: renders sectioned button lists
//   - notes: canvas annotations, never executed
//
// # State and Checkpoints
//
// Conversation state (variables, transcript, current node) lives in a
// store.Store. Every successful step appends a checkpoint; Replay truncates
// the timeline back to a chosen checkpoint and restores its state, so any
// conversation can be rewound to an earlier point and resumed.
//
// Backends:
//
//   - memory: in-process, for tests and development
//   - redis: TTL-scoped keys for ephemeral deployments
//   - sqlite: single-file persistence
//   - postgres: shared relational storage
//
// # Concurrency
//
// A per-conversation lock serializes steps. A second request arriving while
// one is in flight fails fast with lock.ErrConversationBusy rather than
// queueing, and the HTTP layer maps that to 409 Conflict.
//
// # Package Structure
//
//   - engine: step orchestration, node executors, replay
//   - flow: definitions, compilation, routing, condition evaluation, templates
//   - store: conversation state and checkpoint persistence
//   - lock: per-conversation mutual exclusion
//   - llm: chat completion clients (OpenAI, langchaingo)
//   - knowledge: keyword retrieval and document loading
//   - apicall: API library registry and HTTP execution
//   - server: chi HTTP surface for the step and debug endpoints
//   - log: leveled logging with a golog adapter
//
// # Configuration
//
// The stepflowd daemon reads a YAML config selecting the store and lock
// backends, the flows directory, the log level and the LLM credentials. The
// OPENAI_API_KEY environment variable is honored when the config leaves the
// key empty.
package stepflow // import "github.com/stepflowhq/stepflow"
