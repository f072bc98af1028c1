package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepflowhq/stepflow/store"
)

func newCheckpoint(convID, cpID, nodeID string) *store.Checkpoint {
	return &store.Checkpoint{
		ID:             cpID,
		ConversationID: convID,
		NodeID:         nodeID,
		State: &store.ConversationState{
			ConversationID: convID,
			AgentID:        "agent_1",
			UserData:       map[string]any{"node": nodeID},
			CurrentNodeID:  nodeID,
		},
		Timestamp: time.Now().UTC(),
	}
}

func TestStore_AppendAssignsVersions(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		cp := newCheckpoint("conv_1", fmt.Sprintf("cp_%d", i), fmt.Sprintf("node_%d", i))
		require.NoError(t, s.Append(ctx, cp))
		assert.Equal(t, i, cp.Version)
	}

	// A second conversation gets its own sequence.
	other := newCheckpoint("conv_2", "cp_a", "node_a")
	require.NoError(t, s.Append(ctx, other))
	assert.Equal(t, 1, other.Version)
}

func TestStore_ListMostRecentFirst(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		require.NoError(t, s.Append(ctx, newCheckpoint("conv_1", fmt.Sprintf("cp_%d", i), "n")))
	}

	cps, err := s.List(ctx, "conv_1")
	require.NoError(t, err)
	require.Len(t, cps, 3)
	assert.Equal(t, "cp_3", cps[0].ID)
	assert.Equal(t, "cp_1", cps[2].ID)

	empty, err := s.List(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestStore_LoadMissing(t *testing.T) {
	t.Parallel()

	s := New()
	_, err := s.Load(context.Background(), "conv_1", "nope")
	assert.ErrorIs(t, err, store.ErrCheckpointNotFound)
}

func TestStore_ReplayTruncates(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		require.NoError(t, s.Append(ctx, newCheckpoint("conv_1", fmt.Sprintf("cp_%d", i), "n")))
	}

	cp, err := s.Replay(ctx, "conv_1", "cp_3")
	require.NoError(t, err)
	assert.Equal(t, "cp_3", cp.ID)
	assert.Equal(t, 3, cp.Version)

	cps, err := s.List(ctx, "conv_1")
	require.NoError(t, err)
	require.Len(t, cps, 3)
	assert.Equal(t, "cp_3", cps[0].ID)

	// Appending after replay continues from the surviving version.
	next := newCheckpoint("conv_1", "cp_6", "n")
	require.NoError(t, s.Append(ctx, next))
	assert.Equal(t, 4, next.Version)

	_, err = s.Replay(ctx, "conv_1", "cp_4")
	assert.ErrorIs(t, err, store.ErrCheckpointNotFound)
}

func TestStore_Clear(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, newCheckpoint("conv_1", "cp_1", "n")))
	require.NoError(t, s.Clear(ctx, "conv_1"))

	cps, err := s.List(ctx, "conv_1")
	require.NoError(t, err)
	assert.Empty(t, cps)
}

func TestStore_State(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	_, err := s.LoadState(ctx, "conv_1")
	assert.ErrorIs(t, err, store.ErrStateNotFound)

	state := &store.ConversationState{
		ConversationID: "conv_1",
		AgentID:        "agent_1",
		UserData:       map[string]any{"name": "Ana"},
		Messages:       []store.Message{{Role: "assistant", Content: "Hi"}},
		CurrentNodeID:  "greet",
	}
	require.NoError(t, s.SaveState(ctx, state))

	loaded, err := s.LoadState(ctx, "conv_1")
	require.NoError(t, err)
	assert.Equal(t, state, loaded)

	// The stored copy must not alias the caller's maps.
	state.UserData["name"] = "changed"
	reloaded, err := s.LoadState(ctx, "conv_1")
	require.NoError(t, err)
	assert.Equal(t, "Ana", reloaded.UserData["name"])
}

func TestStore_SnapshotIsolation(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	cp := newCheckpoint("conv_1", "cp_1", "greet")
	require.NoError(t, s.Append(ctx, cp))

	// Mutating the appended checkpoint's state must not leak into the
	// stored snapshot.
	cp.State.UserData["node"] = "mutated"

	loaded, err := s.Load(ctx, "conv_1", "cp_1")
	require.NoError(t, err)
	assert.Equal(t, "greet", loaded.State.UserData["node"])
}
