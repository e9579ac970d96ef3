// internal/ui/store.go
// The message store is the single owner of everything the transcript
// shows. It implements bridge.MessageResolver, so every adapter event
// lands in a message it created, and it applies bus events to those
// messages synchronously on the emitter's goroutine. The channel it
// exposes only wakes the program loop; by the time the UI re-renders,
// the store already holds the new state.
package ui

import (
	"fmt"
	"log"
	"sync"
	"time"

	"switchboard/internal/bus"
	"switchboard/internal/db"
	"switchboard/internal/guardian"
	"switchboard/internal/message"
)

// eventBuffer is the bus-to-UI wakeup channel depth. Dropping a wakeup
// is harmless; the next event re-renders the same state.
const eventBuffer = 512

// Store holds the transcript and the per-agent turn bookkeeping.
type Store struct {
	mu       sync.Mutex
	messages []*message.Message
	byID     map[string]*message.Message
	inflight map[string]string // agent id -> open message id
	started  map[string]time.Time
	tokens   map[string]bus.TokenPayload
	debateID string

	store *db.Store          // nil disables persistence
	guard *guardian.Guardian // nil disables destructive-command scanning

	// OnGuardianAlert, when set, additionally receives every
	// destructive-command hit, after the transcript warning is added.
	OnGuardianAlert func(agentID string, patterns []string)

	events chan bus.Event
	unsub  func()
}

// NewStore builds a store. Both arguments may be nil.
func NewStore(store *db.Store, guard *guardian.Guardian) *Store {
	return &Store{
		byID:     make(map[string]*message.Message),
		inflight: make(map[string]string),
		started:  make(map[string]time.Time),
		tokens:   make(map[string]bus.TokenPayload),
		store:    store,
		guard:    guard,
		events:   make(chan bus.Event, eventBuffer),
	}
}

// Attach subscribes the store to every bus event.
func (s *Store) Attach(b *bus.Bus) {
	s.unsub = b.Subscribe(bus.Wildcard, func(ev bus.Event) {
		s.apply(ev)
		select {
		case s.events <- ev:
		default:
		}
	})
}

// Events is the wakeup channel the program loop blocks on.
func (s *Store) Events() <-chan bus.Event { return s.events }

// Close releases the bus subscription.
func (s *Store) Close() {
	if s.unsub != nil {
		s.unsub()
		s.unsub = nil
	}
}

// BeginTurn opens a streaming assistant message for an agent and
// returns its id. Part of the bridge.MessageResolver contract.
func (s *Store) BeginTurn(agentID, model string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := message.New(message.RoleAssistant, agentID)
	m.Model = model
	s.messages = append(s.messages, m)
	s.byID[m.ID] = m
	s.inflight[agentID] = m.ID
	s.started[agentID] = time.Now()
	return m.ID
}

// InFlight reports the open message for an agent. Part of the
// bridge.MessageResolver contract.
func (s *Store) InFlight(agentID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.inflight[agentID]
	return id, ok
}

// AddUser appends a user message addressed to an agent.
func (s *Store) AddUser(agentID, text string) *message.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := message.NewUser(agentID, text)
	s.messages = append(s.messages, m)
	s.byID[m.ID] = m
	s.persistLocked(m)
	return m
}

// AddSystem appends a system notice to the transcript.
func (s *Store) AddSystem(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addSystemLocked(text)
}

func (s *Store) addSystemLocked(text string) {
	m := message.New(message.RoleSystem, "system")
	m.Append(message.NewText(text))
	m.IsStreaming = false
	s.messages = append(s.messages, m)
	s.byID[m.ID] = m
}

// Streaming reports whether any agent has an open turn.
func (s *Store) Streaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight) > 0
}

// SetDebate attributes subsequently persisted messages to a debate run.
// An empty id returns to plain chat attribution.
func (s *Store) SetDebate(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.debateID = id
}

// Snapshot returns a render-safe copy of the transcript.
func (s *Store) Snapshot() []message.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]message.Message, len(s.messages))
	for i, m := range s.messages {
		out[i] = *m
		out[i].Blocks = append([]message.ContentBlock(nil), m.Blocks...)
	}
	return out
}

// TurnElapsed reports how long an agent's open turn has been running.
func (s *Store) TurnElapsed(agentID string) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.started[agentID]
	if !ok {
		return 0, false
	}
	return time.Since(t), true
}

// TokenStatus reports the last token warning for an agent, if its
// current session has produced one.
func (s *Store) TokenStatus(agentID string) (bus.TokenPayload, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.tokens[agentID]
	return p, ok
}

// Clear removes finished messages from the transcript. Open turns stay
// so their streams have somewhere to land.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	var keep []*message.Message
	byID := make(map[string]*message.Message)
	for _, m := range s.messages {
		if m.IsStreaming {
			keep = append(keep, m)
			byID[m.ID] = m
		}
	}
	s.messages = keep
	s.byID = byID
}

// LoadDebate replaces the finished portion of the transcript with a
// stored debate's messages.
func (s *Store) LoadDebate(rec db.DebateRecord) error {
	if s.store == nil {
		return fmt.Errorf("history database not available")
	}
	records, err := s.store.MessagesForDebate(rec.ID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = nil
	s.byID = make(map[string]*message.Message)
	for _, r := range records {
		m := &message.Message{
			ID:        r.ID,
			Role:      message.Role(r.Role),
			Blocks:    r.Blocks,
			Timestamp: r.CreatedAt,
			AgentID:   r.AgentID,
			Model:     r.Model,
			Metrics:   r.Metrics,
		}
		s.messages = append(s.messages, m)
		s.byID[m.ID] = m
	}
	for agent, id := range s.inflight {
		if m := s.byID[id]; m == nil {
			delete(s.inflight, agent)
			delete(s.started, agent)
		}
	}
	return nil
}

// apply folds one bus event into the transcript.
func (s *Store) apply(ev bus.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Type {
	case bus.TypeStreamText:
		p, ok := ev.Payload.(bus.TextPayload)
		if !ok {
			return
		}
		if m := s.targetLocked(ev.AgentID, p.MessageID); m != nil {
			m.AppendText(p.Text)
		}

	case bus.TypeStreamThinking:
		p, ok := ev.Payload.(bus.TextPayload)
		if !ok {
			return
		}
		if m := s.targetLocked(ev.AgentID, p.MessageID); m != nil {
			m.AppendThinking(p.Text)
		}

	case bus.TypeContentBlock:
		p, ok := ev.Payload.(bus.BlockPayload)
		if !ok {
			return
		}
		m := s.targetLocked(ev.AgentID, p.MessageID)
		if m == nil {
			// Blocks with no open turn, such as retry notices, still
			// belong in the transcript.
			if p.Block.Type == message.BlockText {
				s.addSystemLocked(fmt.Sprintf("%s: %s", formatAgent(ev.AgentID), p.Block.Text))
			}
			return
		}
		m.Append(p.Block)
		s.scanLocked(ev.AgentID, p.Block)

	case bus.TypeToolResult:
		p, ok := ev.Payload.(bus.BlockPayload)
		if !ok {
			return
		}
		if m := s.targetLocked(ev.AgentID, p.MessageID); m != nil {
			m.ResolveToolResult(p.Block)
		}

	case bus.TypeComplete:
		p, ok := ev.Payload.(bus.CompletePayload)
		if !ok {
			return
		}
		m := s.targetLocked(ev.AgentID, p.MessageID)
		if m == nil {
			return
		}
		m.Freeze(p.Metrics)
		delete(s.inflight, ev.AgentID)
		delete(s.started, ev.AgentID)
		s.persistLocked(m)

	case bus.TypeError:
		p, ok := ev.Payload.(bus.ErrorPayload)
		if !ok {
			return
		}
		m := s.targetLocked(ev.AgentID, p.MessageID)
		if m == nil {
			s.addSystemLocked(fmt.Sprintf("%s: %s", formatAgent(ev.AgentID), p.Err))
			return
		}
		if !m.HasError() {
			m.Append(message.NewError(p.Err, exitDetail(p.ExitCode)))
		}

	case bus.TypeSessionStart:
		p, ok := ev.Payload.(bus.SessionPayload)
		if !ok {
			return
		}
		delete(s.tokens, ev.AgentID)
		if s.store != nil {
			if err := s.store.SaveAgentSession(ev.AgentID, p.SessionID, p.Model); err != nil {
				log.Printf("[ui] save session for %s: %v", ev.AgentID, err)
			}
		}

	case bus.TypeSessionEnd:
		delete(s.tokens, ev.AgentID)

	case bus.TypeCompaction:
		s.addSystemLocked(fmt.Sprintf("%s compacted its context", formatAgent(ev.AgentID)))

	case bus.TypeTokenWarning:
		p, ok := ev.Payload.(bus.TokenPayload)
		if !ok {
			return
		}
		s.tokens[ev.AgentID] = p
	}
}

// targetLocked resolves an event to its message, preferring the
// explicit id and falling back to the agent's open turn.
func (s *Store) targetLocked(agentID, messageID string) *message.Message {
	if messageID != "" {
		if m := s.byID[messageID]; m != nil {
			return m
		}
	}
	if id, ok := s.inflight[agentID]; ok {
		return s.byID[id]
	}
	return nil
}

func (s *Store) scanLocked(agentID string, b message.ContentBlock) {
	if s.guard == nil {
		return
	}
	hits := s.guard.ScanBlock(b)
	if len(hits) == 0 {
		return
	}
	s.addSystemLocked(guardian.FormatWarning(agentID, hits))
	if s.OnGuardianAlert != nil {
		s.OnGuardianAlert(agentID, hits)
	}
}

func (s *Store) persistLocked(m *message.Message) {
	if s.store == nil {
		return
	}
	rec := db.MessageRecord{
		ID:        m.ID,
		DebateID:  s.debateID,
		AgentID:   m.AgentID,
		Role:      string(m.Role),
		Model:     m.Model,
		Blocks:    append([]message.ContentBlock(nil), m.Blocks...),
		Metrics:   m.Metrics,
		CreatedAt: m.Timestamp,
	}
	if err := s.store.SaveMessage(rec); err != nil {
		log.Printf("[ui] persist message %s: %v", m.ID, err)
	}
}

func exitDetail(code int) string {
	if code == 0 {
		return ""
	}
	return fmt.Sprintf("exit code %d", code)
}
