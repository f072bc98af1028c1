// Package redis provides the Redis store backend, suited to multi-process
// deployments where several engine instances share conversations.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stepflowhq/stepflow/store"
)

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string        // key prefix, default "stepflow:"
	TTL      time.Duration // expiration for conversation keys, default 0 (none)
}

// Store implements store.Store on Redis. Checkpoint timelines are sorted
// sets scored by version; live state is a plain JSON value.
type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ store.Store = (*Store)(nil)

// New creates a Redis store.
func New(opts Options) *Store {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	prefix := opts.Prefix
	if prefix == "" {
		prefix = "stepflow:"
	}

	return &Store{client: client, prefix: prefix, ttl: opts.TTL}
}

// NewWithClient creates a Redis store over an existing client. Useful for
// tests with miniredis.
func NewWithClient(client *redis.Client, prefix string, ttl time.Duration) *Store {
	if prefix == "" {
		prefix = "stepflow:"
	}
	return &Store{client: client, prefix: prefix, ttl: ttl}
}

func (s *Store) timelineKey(conversationID string) string {
	return s.prefix + "cp:" + conversationID
}

func (s *Store) stateKey(conversationID string) string {
	return s.prefix + "state:" + conversationID
}

// Append stores a checkpoint at the end of the conversation's timeline.
func (s *Store) Append(ctx context.Context, cp *store.Checkpoint) error {
	key := s.timelineKey(cp.ConversationID)

	last, err := s.client.ZRevRangeWithScores(ctx, key, 0, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to read checkpoint timeline: %w", err)
	}
	version := 1
	if len(last) > 0 {
		version = int(last[0].Score) + 1
	}
	cp.Version = version

	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(version), Member: data})
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append checkpoint to redis: %w", err)
	}
	return nil
}

// List returns the conversation's checkpoints, most recent first.
func (s *Store) List(ctx context.Context, conversationID string) ([]*store.Checkpoint, error) {
	members, err := s.client.ZRevRange(ctx, s.timelineKey(conversationID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints for %s: %w", conversationID, err)
	}

	out := make([]*store.Checkpoint, 0, len(members))
	for _, m := range members {
		var cp store.Checkpoint
		if err := json.Unmarshal([]byte(m), &cp); err != nil {
			return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
		}
		out = append(out, &cp)
	}
	return out, nil
}

// Load retrieves one checkpoint from a conversation's timeline.
func (s *Store) Load(ctx context.Context, conversationID, checkpointID string) (*store.Checkpoint, error) {
	cp, _, err := s.find(ctx, conversationID, checkpointID)
	return cp, err
}

// Replay truncates every checkpoint strictly after the target and returns
// the target.
func (s *Store) Replay(ctx context.Context, conversationID, checkpointID string) (*store.Checkpoint, error) {
	cp, version, err := s.find(ctx, conversationID, checkpointID)
	if err != nil {
		return nil, err
	}

	key := s.timelineKey(conversationID)
	min := "(" + strconv.Itoa(version)
	if err := s.client.ZRemRangeByScore(ctx, key, min, "+inf").Err(); err != nil {
		return nil, fmt.Errorf("failed to truncate checkpoints after %s: %w", checkpointID, err)
	}
	return cp, nil
}

// Clear removes the conversation's entire timeline.
func (s *Store) Clear(ctx context.Context, conversationID string) error {
	if err := s.client.Del(ctx, s.timelineKey(conversationID)).Err(); err != nil {
		return fmt.Errorf("failed to clear checkpoints for %s: %w", conversationID, err)
	}
	return nil
}

// SaveState persists the live conversation state.
func (s *Store) SaveState(ctx context.Context, state *store.ConversationState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	if err := s.client.Set(ctx, s.stateKey(state.ConversationID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save state to redis: %w", err)
	}
	return nil
}

// LoadState retrieves the live conversation state.
func (s *Store) LoadState(ctx context.Context, conversationID string) (*store.ConversationState, error) {
	data, err := s.client.Get(ctx, s.stateKey(conversationID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("%w: %s", store.ErrStateNotFound, conversationID)
		}
		return nil, fmt.Errorf("failed to load state from redis: %w", err)
	}

	var state store.ConversationState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return &state, nil
}

func (s *Store) find(ctx context.Context, conversationID, checkpointID string) (*store.Checkpoint, int, error) {
	members, err := s.client.ZRange(ctx, s.timelineKey(conversationID), 0, -1).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to scan checkpoints for %s: %w", conversationID, err)
	}
	for _, m := range members {
		var cp store.Checkpoint
		if err := json.Unmarshal([]byte(m), &cp); err != nil {
			return nil, 0, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
		}
		if cp.ID == checkpointID {
			return &cp, cp.Version, nil
		}
	}
	return nil, 0, fmt.Errorf("%w: %s", store.ErrCheckpointNotFound, checkpointID)
}
