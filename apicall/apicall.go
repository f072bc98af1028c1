// Package apicall implements the API Library collaborator: authored HTTP
// call templates executed on behalf of apiLibrary nodes, with #{variable}
// substitution from user data and gjson-path response mappings.
package apicall

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/stepflowhq/stepflow/flow"
)

// ErrEntryNotFound is returned when a node references an unknown library
// entry.
var ErrEntryNotFound = errors.New("api library entry not found")

// Entry is one authored call template in the API library. URL, header
// values and Body may contain #{variable} placeholders resolved from user
// data at execution time.
type Entry struct {
	ID      string            `json:"id"`
	Name    string            `json:"name,omitempty"`
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

// Library resolves entry ids. Read-only to the executor.
type Library interface {
	Entry(id string) (*Entry, error)
}

// MemoryLibrary is an in-memory Library.
type MemoryLibrary struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

var _ Library = (*MemoryLibrary)(nil)

// NewMemoryLibrary creates a library from the given entries.
func NewMemoryLibrary(entries ...*Entry) *MemoryLibrary {
	lib := &MemoryLibrary{entries: make(map[string]*Entry, len(entries))}
	for _, e := range entries {
		lib.entries[e.ID] = e
	}
	return lib
}

// Add registers or replaces an entry.
func (l *MemoryLibrary) Add(e *Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[e.ID] = e
}

// Entry returns the entry with the given id.
func (l *MemoryLibrary) Entry(id string) (*Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	return e, nil
}

// Executor performs library calls. It retries nothing itself; retry policy
// belongs to the called service's client configuration.
type Executor struct {
	library Library
	client  *http.Client
}

// NewExecutor creates an executor over the library. A nil client gets a
// 15s-timeout default.
func NewExecutor(library Library, client *http.Client) *Executor {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Executor{library: library, client: client}
}

// Execute runs the referenced entry with placeholders substituted from
// userData, then extracts each response mapping's gjson path into the
// returned variable map. Missing paths map to nil so downstream conditions
// can test for absence.
func (e *Executor) Execute(ctx context.Context, libraryID string, userData map[string]any, mappings []flow.ResponseMapping) (map[string]any, error) {
	entry, err := e.library.Entry(libraryID)
	if err != nil {
		return nil, err
	}

	url := flow.Substitute(entry.URL, userData)
	var body io.Reader
	if entry.Body != "" {
		body = strings.NewReader(flow.Substitute(entry.Body, userData))
	}

	method := entry.Method
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", libraryID, err)
	}
	for k, v := range entry.Headers {
		req.Header.Set(k, flow.Substitute(v, userData))
	}
	if entry.Body != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", libraryID, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response of %s: %w", libraryID, err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("call %s: status %d", libraryID, resp.StatusCode)
	}

	out := make(map[string]any, len(mappings))
	for _, m := range mappings {
		res := gjson.GetBytes(payload, m.Path)
		if !res.Exists() {
			out[m.Variable] = nil
			continue
		}
		out[m.Variable] = res.Value()
	}
	return out, nil
}
