// internal/debate/types.go
package debate

import (
	"sync"
	"time"
)

// Mode selects how the two agents interact.
type Mode string

const (
	ModeSideBySide Mode = "side_by_side"
	ModeSequential Mode = "sequential"
	ModeMultiRound Mode = "multi_round"
)

// Config is the immutable input for one debate run.
type Config struct {
	Mode   Mode
	AgentA string
	AgentB string
	Rounds int // multi_round only; the other modes run exactly one
	Topic  string
	ModelA string // optional model override for agent A
	ModelB string // optional model override for agent B
}

// Session statuses.
const (
	SessionRunning   = "running"
	SessionComplete  = "complete"
	SessionError     = "error"
	SessionCancelled = "cancelled"
)

// Round statuses.
const (
	RoundPending       = "pending"
	RoundAgentARunning = "agent_a_running"
	RoundAgentBRunning = "agent_b_running"
	RoundSynthesizing  = "synthesizing"
	RoundComplete      = "complete"
)

// Round records one exchange. TextA and TextB are the agents' full
// completed answers for that round.
type Round struct {
	Number int
	Status string
	TextA  string
	TextB  string
}

// Session is the mutable record of one debate run. Accessors are safe
// to call while the run is in progress.
type Session struct {
	id      string
	cfg     Config
	started time.Time

	agentA Agent
	agentB Agent

	mu          sync.Mutex
	rounds      []Round
	status      string
	errText     string
	synthesis   string
	synthesisID string
	activeTab   string
	ended       time.Time

	cancel     chan struct{}
	cancelOnce sync.Once
}

func (s *Session) ID() string           { return s.id }
func (s *Session) Config() Config       { return s.cfg }
func (s *Session) StartedAt() time.Time { return s.started }

func (s *Session) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Err returns the failure text when Status is SessionError.
func (s *Session) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errText
}

func (s *Session) Rounds() []Round {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Round, len(s.rounds))
	copy(out, s.rounds)
	return out
}

// Synthesis returns the synthesis text and its message id, both empty
// until the synthesis turn completes.
func (s *Session) Synthesis() (text, messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.synthesis, s.synthesisID
}

// ActiveTab is the agent whose column the UI is viewing.
func (s *Session) ActiveTab() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeTab
}

func (s *Session) SetActiveTab(agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if agentID == s.cfg.AgentA || agentID == s.cfg.AgentB {
		s.activeTab = agentID
	}
}

func (s *Session) EndedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

// Cancelled reports whether Cancel has been requested for this run.
func (s *Session) Cancelled() bool {
	select {
	case <-s.cancel:
		return true
	default:
		return false
	}
}

// --- run-goroutine mutators ---

func (s *Session) setRoundStatus(i int, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i >= 0 && i < len(s.rounds) {
		s.rounds[i].Status = status
	}
}

func (s *Session) recordA(i int, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rounds[i].TextA = text
}

func (s *Session) recordB(i int, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rounds[i].TextB = text
}

func (s *Session) roundTextA(i int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rounds[i].TextA
}

func (s *Session) roundTextB(i int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rounds[i].TextB
}

func (s *Session) setSynthesis(text, messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.synthesis = text
	s.synthesisID = messageID
}

func (s *Session) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == SessionRunning {
		s.status = SessionComplete
		s.ended = time.Now()
	}
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == SessionRunning {
		s.status = SessionError
		s.errText = err.Error()
		s.ended = time.Now()
	}
}

func (s *Session) markCancelled() {
	s.cancelOnce.Do(func() { close(s.cancel) })
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == SessionRunning {
		s.status = SessionCancelled
		s.ended = time.Now()
	}
}
