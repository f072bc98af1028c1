package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Registry resolves an agent id to its compiled flow. It is read-only to
// the engine; authoring writes happen elsewhere.
type Registry interface {
	Get(ctx context.Context, agentID string) (*Flow, error)
}

// MemoryRegistry holds compiled flows in memory. Safe for concurrent use.
type MemoryRegistry struct {
	mu    sync.RWMutex
	flows map[string]*Flow
}

// NewMemoryRegistry creates an empty in-memory registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{flows: make(map[string]*Flow)}
}

// Register compiles the definition and stores it under agentID, replacing
// any previous flow for that agent.
func (r *MemoryRegistry) Register(agentID string, def *Definition) error {
	f, err := Compile(def)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flows[agentID] = f
	return nil
}

// Get returns the flow for agentID.
func (r *MemoryRegistry) Get(ctx context.Context, agentID string) (*Flow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.flows[agentID]
	if !ok {
		return nil, fmt.Errorf("%w: agent %s", ErrFlowNotFound, agentID)
	}
	return f, nil
}

// DirRegistry serves flows from a directory of <agent-id>.json definition
// files. Files are compiled once on first access and cached; malformed
// definitions fail at load, not at step time.
type DirRegistry struct {
	dir   string
	mu    sync.Mutex
	cache map[string]*Flow
}

// NewDirRegistry creates a registry over a definition directory.
func NewDirRegistry(dir string) *DirRegistry {
	return &DirRegistry{dir: dir, cache: make(map[string]*Flow)}
}

// Get loads, compiles and caches the flow for agentID.
func (r *DirRegistry) Get(ctx context.Context, agentID string) (*Flow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if f, ok := r.cache[agentID]; ok {
		return f, nil
	}

	path := filepath.Join(r.dir, filepath.Base(agentID)+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: agent %s", ErrFlowNotFound, agentID)
		}
		return nil, fmt.Errorf("read flow for agent %s: %w", agentID, err)
	}

	var def Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse flow for agent %s: %w", agentID, err)
	}
	if def.ID == "" {
		def.ID = agentID
	}

	f, err := Compile(&def)
	if err != nil {
		return nil, err
	}
	r.cache[agentID] = f
	return f, nil
}
