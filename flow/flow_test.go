package flow

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func raw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func linearDef(t *testing.T) *Definition {
	return &Definition{
		ID: "linear",
		Nodes: []NodeSpec{
			{ID: "greet", Type: NodeMessage, Data: raw(t, MessageConfig{Text: "Hello!"})},
			{ID: "ask", Type: NodeInput, Data: raw(t, InputConfig{Prompt: "Name?", Variable: "name"})},
			{ID: "bye", Type: NodeMessage, Data: raw(t, MessageConfig{Text: "Bye #{name}"})},
		},
		Edges: []EdgeSpec{
			{ID: "e1", Source: "greet", Target: "ask"},
			{ID: "e2", Source: "ask", Target: "bye"},
		},
	}
}

func TestCompile_Linear(t *testing.T) {
	t.Parallel()

	f, err := Compile(linearDef(t))
	require.NoError(t, err)

	assert.Equal(t, "greet", f.StartID())

	n, err := f.Node("ask")
	require.NoError(t, err)
	assert.Equal(t, NodeInput, n.Type)
	assert.Equal(t, "name", n.Config.(*InputConfig).Variable)

	_, err = f.Node("missing")
	assert.ErrorIs(t, err, ErrNodeNotFound)
}

func TestCompile_ExplicitStartNode(t *testing.T) {
	t.Parallel()

	def := linearDef(t)
	def.StartNodeID = "ask"

	f, err := Compile(def)
	require.NoError(t, err)
	assert.Equal(t, "ask", f.StartID())
}

func TestCompile_StartSkipsNotes(t *testing.T) {
	t.Parallel()

	def := &Definition{
		Nodes: []NodeSpec{
			{ID: "todo", Type: NodeNotes},
			{ID: "hello", Type: NodeMessage, Data: raw(t, MessageConfig{Text: "hi"})},
		},
	}
	f, err := Compile(def)
	require.NoError(t, err)
	assert.Equal(t, "hello", f.StartID())
}

func TestCompile_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		def  *Definition
		want error
	}{
		{
			name: "empty flow",
			def:  &Definition{},
			want: ErrNoStartNode,
		},
		{
			name: "unknown node type",
			def: &Definition{Nodes: []NodeSpec{
				{ID: "a", Type: "teleport"},
			}},
			want: ErrInvalidNodeType,
		},
		{
			name: "dangling edge target",
			def: &Definition{
				Nodes: []NodeSpec{{ID: "a", Type: NodeMessage}},
				Edges: []EdgeSpec{{ID: "e", Source: "a", Target: "ghost"}},
			},
			want: ErrNodeNotFound,
		},
		{
			name: "duplicate handle",
			def: &Definition{
				Nodes: []NodeSpec{
					{ID: "a", Type: NodeMessage},
					{ID: "b", Type: NodeMessage},
					{ID: "c", Type: NodeMessage},
				},
				Edges: []EdgeSpec{
					{ID: "e1", Source: "a", SourceHandle: "default", Target: "b"},
					{ID: "e2", Source: "a", SourceHandle: "default", Target: "c"},
				},
			},
			want: ErrAmbiguousRoute,
		},
		{
			name: "start node is notes",
			def: &Definition{
				StartNodeID: "memo",
				Nodes: []NodeSpec{
					{ID: "memo", Type: NodeNotes},
					{ID: "a", Type: NodeMessage},
				},
			},
			want: ErrInvalidNodeType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.def)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCompile_RejectsDuplicateNodeIDs(t *testing.T) {
	t.Parallel()

	_, err := Compile(&Definition{Nodes: []NodeSpec{
		{ID: "a", Type: NodeMessage},
		{ID: "a", Type: NodeMessage},
	}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate node id")
}

func TestCompile_RejectsNotesWithOutgoingEdge(t *testing.T) {
	t.Parallel()

	_, err := Compile(&Definition{
		Nodes: []NodeSpec{
			{ID: "memo", Type: NodeNotes},
			{ID: "a", Type: NodeMessage},
		},
		Edges: []EdgeSpec{{ID: "e", Source: "memo", Target: "a"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notes node")
}

func TestCompile_RejectsInputWithoutVariable(t *testing.T) {
	t.Parallel()

	_, err := Compile(&Definition{Nodes: []NodeSpec{
		{ID: "ask", Type: NodeInput, Data: raw(t, InputConfig{Prompt: "Name?"})},
	}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "variable key")
}

func TestResolve(t *testing.T) {
	t.Parallel()

	def := &Definition{
		Nodes: []NodeSpec{
			{ID: "menu", Type: NodeMessage, Data: raw(t, MessageConfig{
				Text: "Pick one",
				Buttons: []Button{
					{Label: "Sales", ActionType: ActionConnectToNode},
					{Label: "Support", ActionType: ActionConnectToNode},
				},
			})},
			{ID: "sales", Type: NodeMessage},
			{ID: "support", Type: NodeMessage},
			{ID: "end", Type: NodeMessage},
		},
		Edges: []EdgeSpec{
			{ID: "e1", Source: "menu", SourceHandle: ButtonHandle(0), Target: "sales"},
			{ID: "e2", Source: "menu", SourceHandle: ButtonHandle(1), Target: "support"},
			{ID: "e3", Source: "sales", Target: "end"},
		},
	}
	f, err := Compile(def)
	require.NoError(t, err)

	t.Run("labeled handle", func(t *testing.T) {
		next, err := f.Resolve("menu", ButtonHandle(1))
		require.NoError(t, err)
		assert.Equal(t, "support", next)
	})

	t.Run("single unlabeled edge doubles as default", func(t *testing.T) {
		next, err := f.Resolve("sales", DefaultHandle)
		require.NoError(t, err)
		assert.Equal(t, "end", next)
	})

	t.Run("no edge means halt", func(t *testing.T) {
		next, err := f.Resolve("end", DefaultHandle)
		require.NoError(t, err)
		assert.Equal(t, "", next)
	})

	t.Run("default does not match labeled button edges", func(t *testing.T) {
		next, err := f.Resolve("menu", DefaultHandle)
		require.NoError(t, err)
		assert.Equal(t, "", next)
	})

	t.Run("unknown node", func(t *testing.T) {
		_, err := f.Resolve("ghost", DefaultHandle)
		assert.True(t, errors.Is(err, ErrNodeNotFound))
	})
}

func TestOutgoing_PreservesDeclarationOrder(t *testing.T) {
	t.Parallel()

	f, err := Compile(linearDef(t))
	require.NoError(t, err)

	edges := f.Outgoing("greet")
	require.Len(t, edges, 1)
	assert.Equal(t, "ask", edges[0].Target)
	assert.Empty(t, f.Outgoing("bye"))
}
