// Package server exposes the flow engine over HTTP.
//
// All engine operations are POST endpoints with JSON bodies. The step
// endpoint drives conversations; the debug endpoints expose conversation
// state, checkpoint history, a memory summary, and replay.
package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/stepflowhq/stepflow/engine"
	"github.com/stepflowhq/stepflow/flow"
	"github.com/stepflowhq/stepflow/lock"
	"github.com/stepflowhq/stepflow/log"
	"github.com/stepflowhq/stepflow/store"
)

// Server wires engine operations to HTTP handlers.
type Server struct {
	engine *engine.Engine
	logger log.Logger
}

// New creates a Server around an engine. A nil logger falls back to the
// package default.
func New(eng *engine.Engine, logger log.Logger) *Server {
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	return &Server{engine: eng, logger: logger}
}

// Handler builds the chi router for the server.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Post("/step", s.handleStep)
	r.Route("/debug", func(r chi.Router) {
		r.Post("/state", s.handleState)
		r.Post("/history", s.handleHistory)
		r.Post("/memory", s.handleMemory)
		r.Post("/replay", s.handleReplay)
	})
	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	var req engine.StepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		s.logger.Warn("step: invalid request body: %v", err)
		return
	}
	if req.AgentID == "" {
		http.Error(w, "agent_id is required", http.StatusBadRequest)
		return
	}

	result, err := s.engine.Step(r.Context(), &req)
	if err != nil {
		s.writeError(w, "step", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// debugRequest is the shared body of the debug endpoints.
type debugRequest struct {
	AgentID        string `json:"agent_id"`
	ConversationID string `json:"conversation_id"`
	CheckpointID   string `json:"checkpoint_id,omitempty"`
}

func (s *Server) decodeDebug(w http.ResponseWriter, r *http.Request) (*debugRequest, bool) {
	var req debugRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return nil, false
	}
	if req.ConversationID == "" {
		http.Error(w, "conversation_id is required", http.StatusBadRequest)
		return nil, false
	}
	return &req, true
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeDebug(w, r)
	if !ok {
		return
	}
	state, err := s.engine.State(r.Context(), req.ConversationID)
	if err != nil {
		s.writeError(w, "debug/state", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"state": state})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeDebug(w, r)
	if !ok {
		return
	}
	entries, err := s.engine.History(r.Context(), req.ConversationID)
	if err != nil {
		s.writeError(w, "debug/history", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"checkpoints": entries})
}

func (s *Server) handleMemory(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeDebug(w, r)
	if !ok {
		return
	}
	summary, err := s.engine.Memory(r.Context(), req.ConversationID)
	if err != nil {
		s.writeError(w, "debug/memory", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"summary": summary})
}

func (s *Server) handleReplay(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeDebug(w, r)
	if !ok {
		return
	}
	if req.CheckpointID == "" {
		http.Error(w, "checkpoint_id is required", http.StatusBadRequest)
		return
	}
	state, err := s.engine.Replay(r.Context(), req.ConversationID, req.CheckpointID)
	if err != nil {
		s.writeError(w, "debug/replay", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"state":        state,
		"current_node": state.CurrentNodeID,
	})
}

// writeError maps domain errors to HTTP status codes. Collaborator
// failures and validation re-prompts never reach here; the engine folds
// them into successful responses.
func (s *Server) writeError(w http.ResponseWriter, op string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, flow.ErrFlowNotFound),
		errors.Is(err, flow.ErrNodeNotFound),
		errors.Is(err, store.ErrStateNotFound),
		errors.Is(err, store.ErrCheckpointNotFound):
		status = http.StatusNotFound
	case errors.Is(err, flow.ErrInvalidNodeType),
		errors.Is(err, flow.ErrAmbiguousRoute):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, lock.ErrConversationBusy):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("%s failed: %v", op, err)
	} else {
		s.logger.Debug("%s rejected: %v", op, err)
	}
	writeJSON(w, status, map[string]any{"success": false, "error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("response encode failed: %v", err)
	}
}
