// Package sqlite provides the SQLite store backend for single-node
// deployments that need the checkpoint timeline to survive restarts.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/stepflowhq/stepflow/store"
)

// Options configures the SQLite connection.
type Options struct {
	Path        string
	TablePrefix string // default "stepflow"
}

// Store implements store.Store on SQLite.
type Store struct {
	db          *sql.DB
	checkpoints string
	states      string
}

var _ store.Store = (*Store)(nil)

// New opens the database and creates the schema if needed.
func New(opts Options) (*Store, error) {
	db, err := sql.Open("sqlite3", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	prefix := opts.TablePrefix
	if prefix == "" {
		prefix = "stepflow"
	}

	s := &Store{
		db:          db,
		checkpoints: prefix + "_checkpoints",
		states:      prefix + "_states",
	}

	if err := s.initSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id TEXT NOT NULL,
			conversation_id TEXT NOT NULL,
			node_id TEXT NOT NULL,
			state TEXT NOT NULL,
			timestamp DATETIME NOT NULL,
			version INTEGER NOT NULL,
			PRIMARY KEY (conversation_id, id)
		);
		CREATE INDEX IF NOT EXISTS idx_%[1]s_conversation ON %[1]s (conversation_id, version);
		CREATE TABLE IF NOT EXISTS %[2]s (
			conversation_id TEXT PRIMARY KEY,
			state TEXT NOT NULL
		);
	`, s.checkpoints, s.states)

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append stores a checkpoint at the end of the conversation's timeline.
// The INSERT computes the next version in the same statement so two
// processes sharing the file cannot assign the same version.
func (s *Store) Append(ctx context.Context, cp *store.Checkpoint) error {
	stateJSON, err := json.Marshal(cp.State)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %[1]s (id, conversation_id, node_id, state, timestamp, version)
		VALUES (?, ?, ?, ?, ?,
			(SELECT COALESCE(MAX(version), 0) + 1 FROM %[1]s WHERE conversation_id = ?))
	`, s.checkpoints)

	if _, err := s.db.ExecContext(ctx, query,
		cp.ID, cp.ConversationID, cp.NodeID, stateJSON, cp.Timestamp, cp.ConversationID); err != nil {
		return fmt.Errorf("failed to append checkpoint: %w", err)
	}

	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT version FROM %s WHERE conversation_id = ? AND id = ?", s.checkpoints),
		cp.ConversationID, cp.ID)
	if err := row.Scan(&cp.Version); err != nil {
		return fmt.Errorf("failed to read assigned version: %w", err)
	}
	return nil
}

// List returns the conversation's checkpoints, most recent first.
func (s *Store) List(ctx context.Context, conversationID string) ([]*store.Checkpoint, error) {
	query := fmt.Sprintf(`
		SELECT id, conversation_id, node_id, state, timestamp, version
		FROM %s WHERE conversation_id = ? ORDER BY version DESC
	`, s.checkpoints)

	rows, err := s.db.QueryContext(ctx, query, conversationID)
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
		FROM %s WHERE conversation_id = ? AND id = ?
	`, s.checkpoints)

	row := s.db.QueryRowContext(ctx, query, conversationID, checkpointID)
	cp, err := scanCheckpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
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

	query := fmt.Sprintf("DELETE FROM %s WHERE conversation_id = ? AND version > ?", s.checkpoints)
	if _, err := s.db.ExecContext(ctx, query, conversationID, cp.Version); err != nil {
		return nil, fmt.Errorf("failed to truncate checkpoints: %w", err)
	}
	return cp, nil
}

// Clear removes the conversation's entire timeline.
func (s *Store) Clear(ctx context.Context, conversationID string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE conversation_id = ?", s.checkpoints)
	if _, err := s.db.ExecContext(ctx, query, conversationID); err != nil {
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
		INSERT INTO %s (conversation_id, state) VALUES (?, ?)
		ON CONFLICT(conversation_id) DO UPDATE SET state = excluded.state
	`, s.states)
	if _, err := s.db.ExecContext(ctx, query, state.ConversationID, data); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}

// LoadState retrieves the live conversation state.
func (s *Store) LoadState(ctx context.Context, conversationID string) (*store.ConversationState, error) {
	query := fmt.Sprintf("SELECT state FROM %s WHERE conversation_id = ?", s.states)

	var data []byte
	err := s.db.QueryRowContext(ctx, query, conversationID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
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
