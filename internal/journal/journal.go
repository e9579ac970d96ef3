// internal/journal/journal.go
// Append-only JSONL record of agent activity. One file per day under the
// data directory, one JSON object per line, so host tooling can tail or
// grep a session after the fact.
package journal

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"switchboard/internal/bus"
	"switchboard/internal/message"
)

// maxTextLen bounds completion text kept in the journal. Full transcripts
// live in the sqlite store; the journal is a skim record.
const maxTextLen = 500

// Entry is one journal line.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	AgentID   string    `json:"agent_id,omitempty"`
	Payload   any       `json:"payload,omitempty"`
}

// Journal appends entries to day files named YYYY-MM-DD.jsonl.
type Journal struct {
	dir string

	mu     sync.Mutex
	file   *os.File
	day    string
	unsubs []func()
}

// New creates the journal directory if needed and returns a journal
// writing into it.
func New(dir string) (*Journal, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal dir: %w", err)
	}
	return &Journal{dir: dir}, nil
}

// recordedTypes are the bus events worth journaling. Streaming deltas and
// individual content blocks are skipped; they are volume, not record.
var recordedTypes = []string{
	bus.TypeComplete,
	bus.TypeError,
	bus.TypeSessionStart,
	bus.TypeSessionEnd,
	bus.TypeCompaction,
	bus.TypeTokenWarning,
}

// Attach subscribes the journal to the bus. Entries are written on the
// emitting goroutine, so they land in arrival order.
func (j *Journal) Attach(b *bus.Bus) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, t := range recordedTypes {
		j.unsubs = append(j.unsubs, b.Subscribe(t, j.handle))
	}
}

func (j *Journal) handle(ev bus.Event) {
	entry := Entry{
		Timestamp: ev.Timestamp,
		Type:      ev.Type,
		AgentID:   ev.AgentID,
		Payload:   payloadFor(ev),
	}
	if err := j.Record(entry); err != nil {
		log.Printf("[journal] write failed: %v", err)
	}
}

// Record appends one entry to the day file matching its timestamp.
func (j *Journal) Record(e Entry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := j.fileFor(e.Timestamp)
	if err != nil {
		return err
	}

	_, err = f.Write(append(line, '\n'))
	return err
}

// Close releases the bus subscriptions and the open day file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	for _, unsub := range j.unsubs {
		unsub()
	}
	j.unsubs = nil

	if j.file == nil {
		return nil
	}
	err := j.file.Close()
	j.file = nil
	j.day = ""
	return err
}

// fileFor returns the open handle for the entry's day, rolling to a new
// file when the day changes. Callers hold j.mu.
func (j *Journal) fileFor(ts time.Time) (*os.File, error) {
	day := ts.Format("2006-01-02")
	if j.file != nil && j.day == day {
		return j.file, nil
	}

	if j.file != nil {
		j.file.Close()
		j.file = nil
	}

	path := filepath.Join(j.dir, day+".jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal file: %w", err)
	}

	j.file = f
	j.day = day
	return f, nil
}

// Journal payloads get their own shapes instead of reusing the bus
// structs so the file format stays stable if the bus types move.

type completeRecord struct {
	MessageID string           `json:"message_id,omitempty"`
	Text      string           `json:"text,omitempty"`
	IsError   bool             `json:"is_error,omitempty"`
	Metrics   *message.Metrics `json:"metrics,omitempty"`
}

type errorRecord struct {
	MessageID string `json:"message_id,omitempty"`
	Err       string `json:"error"`
	ExitCode  int    `json:"exit_code,omitempty"`
	Terminal  bool   `json:"terminal,omitempty"`
}

type sessionRecord struct {
	SessionID string `json:"session_id,omitempty"`
	Model     string `json:"model,omitempty"`
}

type tokenRecord struct {
	Used   int `json:"used"`
	Window int `json:"window"`
}

func payloadFor(ev bus.Event) any {
	switch p := ev.Payload.(type) {
	case bus.CompletePayload:
		return completeRecord{
			MessageID: p.MessageID,
			Text:      truncate(p.Text, maxTextLen),
			IsError:   p.IsError,
			Metrics:   p.Metrics,
		}
	case bus.ErrorPayload:
		return errorRecord{
			MessageID: p.MessageID,
			Err:       truncate(p.Err, maxTextLen),
			ExitCode:  p.ExitCode,
			Terminal:  p.Terminal,
		}
	case bus.SessionPayload:
		return sessionRecord{SessionID: p.SessionID, Model: p.Model}
	case bus.TokenPayload:
		return tokenRecord{Used: p.Used, Window: p.Window}
	default:
		return nil
	}
}

// truncate limits a string to maxLen characters.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
