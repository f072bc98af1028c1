package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepflowhq/stepflow/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewWithClient(client, "test:", 0)
}

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

func TestRedisStore_AppendAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		cp := newCheckpoint("conv_1", fmt.Sprintf("cp_%d", i), fmt.Sprintf("node_%d", i))
		require.NoError(t, s.Append(ctx, cp))
		assert.Equal(t, i, cp.Version)
	}

	cps, err := s.List(ctx, "conv_1")
	require.NoError(t, err)
	require.Len(t, cps, 3)
	assert.Equal(t, "cp_3", cps[0].ID)
	assert.Equal(t, "cp_1", cps[2].ID)
	assert.Equal(t, "node_3", cps[0].State.CurrentNodeID)
}

func TestRedisStore_Load(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, newCheckpoint("conv_1", "cp_1", "greet")))

	cp, err := s.Load(ctx, "conv_1", "cp_1")
	require.NoError(t, err)
	assert.Equal(t, "greet", cp.NodeID)
	assert.Equal(t, 1, cp.Version)

	_, err = s.Load(ctx, "conv_1", "ghost")
	assert.ErrorIs(t, err, store.ErrCheckpointNotFound)
}

func TestRedisStore_ReplayTruncates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		require.NoError(t, s.Append(ctx, newCheckpoint("conv_1", fmt.Sprintf("cp_%d", i), "n")))
	}

	cp, err := s.Replay(ctx, "conv_1", "cp_2")
	require.NoError(t, err)
	assert.Equal(t, 2, cp.Version)

	cps, err := s.List(ctx, "conv_1")
	require.NoError(t, err)
	require.Len(t, cps, 2)
	assert.Equal(t, "cp_2", cps[0].ID)

	next := newCheckpoint("conv_1", "cp_5", "n")
	require.NoError(t, s.Append(ctx, next))
	assert.Equal(t, 3, next.Version)
}

func TestRedisStore_Clear(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, newCheckpoint("conv_1", "cp_1", "n")))
	require.NoError(t, s.Clear(ctx, "conv_1"))

	cps, err := s.List(ctx, "conv_1")
	require.NoError(t, err)
	assert.Empty(t, cps)
}

func TestRedisStore_State(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.LoadState(ctx, "conv_1")
	assert.ErrorIs(t, err, store.ErrStateNotFound)

	state := &store.ConversationState{
		ConversationID: "conv_1",
		AgentID:        "agent_1",
		UserData:       map[string]any{"name": "Ana"},
		Messages:       []store.Message{{Role: "user", Content: "hello"}},
		CurrentNodeID:  "greet",
		NextNodeID:     "ask",
	}
	require.NoError(t, s.SaveState(ctx, state))

	loaded, err := s.LoadState(ctx, "conv_1")
	require.NoError(t, err)
	assert.Equal(t, state, loaded)
}

func TestRedisStore_TTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	s := NewWithClient(client, "test:", time.Minute)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, newCheckpoint("conv_1", "cp_1", "n")))
	require.NoError(t, s.SaveState(ctx, &store.ConversationState{ConversationID: "conv_1"}))

	mr.FastForward(2 * time.Minute)

	cps, err := s.List(ctx, "conv_1")
	require.NoError(t, err)
	assert.Empty(t, cps)

	_, err = s.LoadState(ctx, "conv_1")
	assert.ErrorIs(t, err, store.ErrStateNotFound)
}
