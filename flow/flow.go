package flow

import (
	"fmt"
)

// Node is a compiled node: its spec plus the decoded typed config.
// Config is *MessageConfig, *InputConfig, *AIConfig, *APILibraryConfig,
// *KnowledgeBaseConfig, *ConditionConfig or *InteractiveListConfig depending
// on Type, and nil for engine/notes nodes.
type Node struct {
	ID     string
	Type   NodeType
	Config any
}

// Flow is a compiled, validated Definition ready for execution. It is
// read-only after Compile and safe for concurrent use.
type Flow struct {
	def      *Definition
	nodes    map[string]*Node
	outgoing map[string][]EdgeSpec // by source, in declaration order
	startID  string
}

// Compile validates a definition and builds the lookup structures the
// engine needs. It fails fast on unknown node types, malformed node
// configs, dangling edges and ambiguous (source, handle) pairs.
func Compile(def *Definition) (*Flow, error) {
	if len(def.Nodes) == 0 {
		return nil, fmt.Errorf("flow %s: %w", def.ID, ErrNoStartNode)
	}

	f := &Flow{
		def:      def,
		nodes:    make(map[string]*Node, len(def.Nodes)),
		outgoing: make(map[string][]EdgeSpec),
	}

	for _, spec := range def.Nodes {
		if spec.ID == "" {
			return nil, fmt.Errorf("flow %s: node with empty id", def.ID)
		}
		if _, ok := f.nodes[spec.ID]; ok {
			return nil, fmt.Errorf("flow %s: duplicate node id %s", def.ID, spec.ID)
		}
		cfg, err := decodeConfig(spec)
		if err != nil {
			return nil, err
		}
		f.nodes[spec.ID] = &Node{ID: spec.ID, Type: spec.Type, Config: cfg}
	}

	hasIncoming := make(map[string]bool)
	seenHandle := make(map[string]bool)
	for _, e := range def.Edges {
		src, ok := f.nodes[e.Source]
		if !ok {
			return nil, fmt.Errorf("edge %s: %w: source %s", e.ID, ErrNodeNotFound, e.Source)
		}
		if _, ok := f.nodes[e.Target]; !ok {
			return nil, fmt.Errorf("edge %s: %w: target %s", e.ID, ErrNodeNotFound, e.Target)
		}
		if src.Type == NodeNotes {
			return nil, fmt.Errorf("edge %s: notes node %s cannot have outgoing edges", e.ID, e.Source)
		}
		key := e.Source + "\x00" + e.SourceHandle
		if seenHandle[key] {
			return nil, fmt.Errorf("%w: node %s handle %q has multiple outgoing edges",
				ErrAmbiguousRoute, e.Source, e.SourceHandle)
		}
		seenHandle[key] = true
		hasIncoming[e.Target] = true
		f.outgoing[e.Source] = append(f.outgoing[e.Source], e)
	}

	f.startID = def.StartNodeID
	if f.startID == "" {
		// First declared executable node without an incoming edge.
		for _, spec := range def.Nodes {
			if spec.Type == NodeNotes {
				continue
			}
			if !hasIncoming[spec.ID] {
				f.startID = spec.ID
				break
			}
		}
	}
	if f.startID == "" {
		return nil, fmt.Errorf("flow %s: %w", def.ID, ErrNoStartNode)
	}
	if n, ok := f.nodes[f.startID]; !ok {
		return nil, fmt.Errorf("flow %s: start node %s: %w", def.ID, f.startID, ErrNodeNotFound)
	} else if n.Type == NodeNotes {
		return nil, fmt.Errorf("flow %s: start node %s: %w", def.ID, f.startID, ErrInvalidNodeType)
	}

	return f, nil
}

// ID returns the definition id.
func (f *Flow) ID() string { return f.def.ID }

// StartID returns the designated entry node id.
func (f *Flow) StartID() string { return f.startID }

// Node looks up a node by id.
func (f *Flow) Node(id string) (*Node, error) {
	n, ok := f.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	return n, nil
}

// Outgoing returns the outgoing edges of a node in declaration order.
func (f *Flow) Outgoing(nodeID string) []EdgeSpec {
	return f.outgoing[nodeID]
}

// Resolve determines the next node reached by leaving nodeID through the
// given handle. It returns "" when no edge leaves that handle, which
// terminates the conversation at that node.
//
// Matching is exact on sourceHandle. A node whose only outgoing edge has no
// handle label also matches the default handle, so simple linear flows do
// not need labeled edges. Duplicate (source, handle) pairs are rejected at
// Compile, so at most one edge can match here.
func (f *Flow) Resolve(nodeID, handle string) (string, error) {
	if _, ok := f.nodes[nodeID]; !ok {
		return "", fmt.Errorf("%w: %s", ErrNodeNotFound, nodeID)
	}
	edges := f.outgoing[nodeID]

	for _, e := range edges {
		if e.SourceHandle == handle {
			return e.Target, nil
		}
	}
	// Single unlabeled edge doubles as the default exit.
	if handle == DefaultHandle && len(edges) == 1 && edges[0].SourceHandle == "" {
		return edges[0].Target, nil
	}
	return "", nil
}
