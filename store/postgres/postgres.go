// Package postgres provides the PostgreSQL store backend for shared
// multi-instance deployments.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stepflowhq/stepflow/store"
)

// DBPool is the subset of pgxpool.Pool the store uses. Declared as an
// interface so tests can substitute pgxmock.
type DBPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Options configures the Postgres connection.
type Options struct {
	ConnString  string
	TablePrefix string // default "stepflow"
}

// Store implements store.Store on PostgreSQL.
type Store struct {
	pool        DBPool
	checkpoints string
	states      string
}

var _ store.Store = (*Store)(nil)

// New creates a Postgres store with a fresh connection pool.
func New(ctx context.Context, opts Options) (*Store, error) {
	pool, err := pgxpool.New(ctx, opts.ConnString)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	return NewWithPool(pool, opts.TablePrefix), nil
}

// NewWithPool creates a Postgres store over an existing pool. Useful for
// testing with mocks.
func NewWithPool(pool DBPool, tablePrefix string) *Store {
	if tablePrefix == "" {
		tablePrefix = "stepflow"
	}
	return &Store{
		pool:        pool,
		checkpoints: tablePrefix + "_checkpoints",
		states:      tablePrefix + "_states",
	}
}

// InitSchema creates the necessary tables if they don't exist.
func (s *Store) InitSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id TEXT NOT NULL,
			conversation_id TEXT NOT NULL,
			node_id TEXT NOT NULL,
			state JSONB NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL,
			version INTEGER NOT NULL,
			PRIMARY KEY (conversation_id, id)
		);
		CREATE INDEX IF NOT EXISTS idx_%[1]s_conversation ON %[1]s (conversation_id, version);
		CREATE TABLE IF NOT EXISTS %[2]s (
			conversation_id TEXT PRIMARY KEY,
			state JSONB NOT NULL
		);
	`, s.checkpoints, s.states)

	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Append stores a checkpoint at the end of the conversation's timeline and
// reads back the version the INSERT assigned.
func (s *Store) Append(ctx context.Context, cp *store.Checkpoint) error {
	stateJSON, err := json.Marshal(cp.State)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %[1]s (id, conversation_id, node_id, state, timestamp, version)
		VALUES ($1, $2, $3, $4, $5,
			(SELECT COALESCE(MAX(version), 0) + 1 FROM %[1]s WHERE conversation_id = $2))
		RETURNING version
	`, s.checkpoints)

	row := s.pool.QueryRow(ctx, query, cp.ID, cp.ConversationID, cp.NodeID, stateJSON, cp.Timestamp)
	if err := row.Scan(&cp.Version); err != nil {
		return fmt.Errorf("failed to append checkpoint: %w", err)
	}
	return nil
}

// List returns the conversation's checkpoints, most recent first.
func (s *Store) List(ctx context.Context, conversationID string) ([]*store.Checkpoint, error) {
	query := fmt.Sprintf(`
		SELECT id, conversation_id, node_id, state, timestamp, version
		FROM %s WHERE conversation_id = $1 ORDER BY version DESC
	`, s.checkpoints)

	rows, err := s.pool.Query(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []*store.Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

// Load retrieves one checkpoint from a conversation's timeline.
func (s *Store) Load(ctx context.Context, conversationID, checkpointID string) (*store.Checkpoint, error) {
	query := fmt.Sprintf(`
		SELECT id, conversation_id, node_id, state, timestamp, version
		FROM %s WHERE conversation_id = $1 AND id = $2
	`, s.checkpoints)

	row := s.pool.QueryRow(ctx, query, conversationID, checkpointID)
	cp, err := scanCheckpoint(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", store.ErrCheckpointNotFound, checkpointID)
	}
	return cp, err
}

// Replay truncates every checkpoint strictly after the target and returns
// the target.
func (s *Store) Replay(ctx context.Context, conversationID, checkpointID string) (*store.Checkpoint, error) {
	cp, err := s.Load(ctx, conversationID, checkpointID)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE conversation_id = $1 AND version > $2", s.checkpoints)
	if _, err := s.pool.Exec(ctx, query, conversationID, cp.Version); err != nil {
		return nil, fmt.Errorf("failed to truncate checkpoints: %w", err)
	}
	return cp, nil
}

// Clear removes the conversation's entire timeline.
func (s *Store) Clear(ctx context.Context, conversationID string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE conversation_id = $1", s.checkpoints)
	if _, err := s.pool.Exec(ctx, query, conversationID); err != nil {
		return fmt.Errorf("failed to clear checkpoints: %w", err)
	}
	return nil
}

// SaveState persists the live conversation state.
func (s *Store) SaveState(ctx context.Context, state *store.ConversationState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (conversation_id, state) VALUES ($1, $2)
		ON CONFLICT (conversation_id) DO UPDATE SET state = EXCLUDED.state
	`, s.states)
	if _, err := s.pool.Exec(ctx, query, state.ConversationID, data); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}

// LoadState retrieves the live conversation state.
func (s *Store) LoadState(ctx context.Context, conversationID string) (*store.ConversationState, error) {
	query := fmt.Sprintf("SELECT state FROM %s WHERE conversation_id = $1", s.states)

	var data []byte
	err := s.pool.QueryRow(ctx, query, conversationID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", store.ErrStateNotFound, conversationID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}

	var state store.ConversationState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return &state, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCheckpoint(row rowScanner) (*store.Checkpoint, error) {
	var cp store.Checkpoint
	var stateJSON []byte
	if err := row.Scan(&cp.ID, &cp.ConversationID, &cp.NodeID, &stateJSON, &cp.Timestamp, &cp.Version); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(stateJSON, &cp.State); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return &cp, nil
}
