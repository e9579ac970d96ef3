// internal/db/store.go
package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"switchboard/internal/message"
)

type Store struct {
	db *sql.DB
}

// DebateRecord is one persisted debate run.
type DebateRecord struct {
	ID        string
	Topic     string
	Mode      string
	AgentA    string
	AgentB    string
	Rounds    int
	Status    string // running, complete, error, cancelled
	Verdict   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MessageRecord is one persisted message. Blocks round-trip as JSON.
type MessageRecord struct {
	ID        string
	DebateID  string // empty for plain chat messages
	AgentID   string // vendor id, or "user"/"system"
	Role      string
	Model     string
	Blocks    []message.ContentBlock
	Metrics   *message.Metrics
	CreatedAt time.Time
}

// Open opens (creating if needed) the history database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, err
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS debates (
		id TEXT PRIMARY KEY,
		topic TEXT NOT NULL,
		mode TEXT NOT NULL,
		agent_a TEXT NOT NULL,
		agent_b TEXT NOT NULL,
		rounds INTEGER DEFAULT 1,
		status TEXT DEFAULT 'running',
		verdict TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		debate_id TEXT REFERENCES debates(id),
		agent_id TEXT NOT NULL,
		role TEXT NOT NULL,
		model TEXT,
		blocks TEXT NOT NULL,
		metrics TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_messages_debate ON messages(debate_id);
	CREATE INDEX IF NOT EXISTS idx_messages_agent ON messages(agent_id);

	CREATE TABLE IF NOT EXISTS agent_sessions (
		agent_id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		model TEXT,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// --- debates ---

// CreateDebate records a new debate run.
func (s *Store) CreateDebate(d DebateRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO debates (id, topic, mode, agent_a, agent_b, rounds, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Topic, d.Mode, d.AgentA, d.AgentB, d.Rounds, d.Status,
	)
	return err
}

// UpdateDebateStatus sets the final status and verdict text.
func (s *Store) UpdateDebateStatus(id, status, verdict string) error {
	_, err := s.db.Exec(
		`UPDATE debates SET status = ?, verdict = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		status, verdict, id,
	)
	return err
}

// GetDebate retrieves a debate by ID.
func (s *Store) GetDebate(id string) (*DebateRecord, error) {
	row := s.db.QueryRow(
		`SELECT id, topic, mode, agent_a, agent_b, rounds, status, verdict, created_at, updated_at
		 FROM debates WHERE id = ?`, id,
	)

	var d DebateRecord
	var verdict sql.NullString
	err := row.Scan(&d.ID, &d.Topic, &d.Mode, &d.AgentA, &d.AgentB, &d.Rounds, &d.Status, &verdict, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	d.Verdict = verdict.String
	return &d, nil
}

// ListDebates returns all debates, most recently updated first.
func (s *Store) ListDebates() ([]DebateRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, topic, mode, agent_a, agent_b, rounds, status, verdict, created_at, updated_at
		 FROM debates ORDER BY updated_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var debates []DebateRecord
	for rows.Next() {
		var d DebateRecord
		var verdict sql.NullString
		if err := rows.Scan(&d.ID, &d.Topic, &d.Mode, &d.AgentA, &d.AgentB, &d.Rounds, &d.Status, &verdict, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		d.Verdict = verdict.String
		debates = append(debates, d)
	}
	return debates, rows.Err()
}

// --- messages ---

// SaveMessage inserts or replaces a message. Messages are saved once
// frozen, but a replace keeps retried turns idempotent.
func (s *Store) SaveMessage(m MessageRecord) error {
	blocks, err := json.Marshal(m.Blocks)
	if err != nil {
		return fmt.Errorf("marshal blocks: %w", err)
	}
	var metrics any
	if m.Metrics != nil {
		raw, err := json.Marshal(m.Metrics)
		if err != nil {
			return fmt.Errorf("marshal metrics: %w", err)
		}
		metrics = string(raw)
	}
	var debateID any
	if m.DebateID != "" {
		debateID = m.DebateID
	}

	// Store the message's own timestamp; the column default only has
	// second resolution, which scrambles same-second transcript order.
	created := m.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO messages (id, debate_id, agent_id, role, model, blocks, metrics, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, debateID, m.AgentID, m.Role, m.Model, string(blocks), metrics, created.UTC(),
	)
	return err
}

// MessagesForDebate retrieves a debate's messages in insertion order.
func (s *Store) MessagesForDebate(debateID string) ([]MessageRecord, error) {
	return s.queryMessages(
		`SELECT id, debate_id, agent_id, role, model, blocks, metrics, created_at
		 FROM messages WHERE debate_id = ? ORDER BY created_at, id`, debateID)
}

// MessagesForAgent retrieves an agent's most recent messages, oldest
// first.
func (s *Store) MessagesForAgent(agentID string, limit int) ([]MessageRecord, error) {
	return s.queryMessages(
		`SELECT id, debate_id, agent_id, role, model, blocks, metrics, created_at FROM (
			SELECT * FROM messages WHERE agent_id = ? ORDER BY created_at DESC, id DESC LIMIT ?
		 ) ORDER BY created_at, id`, agentID, limit)
}

func (s *Store) queryMessages(query string, args ...any) ([]MessageRecord, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MessageRecord
	for rows.Next() {
		var m MessageRecord
		var debateID, model, metrics sql.NullString
		var blocks string
		if err := rows.Scan(&m.ID, &debateID, &m.AgentID, &m.Role, &model, &blocks, &metrics, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.DebateID = debateID.String
		m.Model = model.String
		if err := json.Unmarshal([]byte(blocks), &m.Blocks); err != nil {
			return nil, fmt.Errorf("unmarshal blocks for %s: %w", m.ID, err)
		}
		if metrics.Valid && metrics.String != "" {
			var mm message.Metrics
			if err := json.Unmarshal([]byte(metrics.String), &mm); err == nil {
				m.Metrics = &mm
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// --- agent sessions ---

// SaveAgentSession records the vendor session id an agent last
// reported, for resuming across restarts.
func (s *Store) SaveAgentSession(agentID, sessionID, model string) error {
	_, err := s.db.Exec(
		`INSERT INTO agent_sessions (agent_id, session_id, model, updated_at)
		 VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(agent_id) DO UPDATE SET session_id = excluded.session_id,
		   model = excluded.model, updated_at = CURRENT_TIMESTAMP`,
		agentID, sessionID, model,
	)
	return err
}

// AgentSession returns the stored session for an agent, if any.
func (s *Store) AgentSession(agentID string) (sessionID, model string, ok bool) {
	row := s.db.QueryRow(
		`SELECT session_id, model FROM agent_sessions WHERE agent_id = ?`, agentID,
	)
	var m sql.NullString
	if err := row.Scan(&sessionID, &m); err != nil {
		return "", "", false
	}
	return sessionID, m.String, true
}
