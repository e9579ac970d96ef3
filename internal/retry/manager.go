// internal/retry/manager.go
// Package retry watches the bus for agent errors and drives automatic
// resends with exponential backoff. A per-agent circuit breaker stops
// the retrying once failures become consecutive; only a successful
// completion arms it again.
package retry

import (
	"fmt"
	"log"
	"regexp"
	"sync"
	"time"

	"switchboard/internal/bus"
	"switchboard/internal/message"
)

// ResendFunc re-invokes an agent's last turn. Returns false when the
// agent is unknown or has nothing to resend.
type ResendFunc func(agentID string) bool

// Config tunes the retry policy.
type Config struct {
	MaxRetries       int
	BreakerThreshold int
	BaseDelay        time.Duration
	MaxDelay         time.Duration
}

// DefaultConfig is the stock policy: three retries, breaker at three
// consecutive failures, one second doubling to a thirty second cap.
func DefaultConfig() Config {
	return Config{
		MaxRetries:       3,
		BreakerThreshold: 3,
		BaseDelay:        time.Second,
		MaxDelay:         30 * time.Second,
	}
}

// RetryState is a snapshot of one agent's active retry cycle.
type RetryState struct {
	Attempt    int
	LastError  string
	IsRetrying bool
}

type state struct {
	attempt    int
	lastError  string
	isRetrying bool
	timer      *time.Timer
}

// Manager subscribes to error and message_complete events and retries
// transient failures. It never retries on its own terminal events.
type Manager struct {
	bus    *bus.Bus
	resend ResendFunc
	cfg    Config

	mu       sync.Mutex
	states   map[string]*state
	failures map[string]int
	unsubs   []func()
}

// NewManager wires a manager onto the bus.
func NewManager(b *bus.Bus, resend ResendFunc, cfg Config) *Manager {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultConfig().MaxRetries
	}
	if cfg.BreakerThreshold <= 0 {
		cfg.BreakerThreshold = DefaultConfig().BreakerThreshold
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultConfig().BaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultConfig().MaxDelay
	}

	m := &Manager{
		bus:      b,
		resend:   resend,
		cfg:      cfg,
		states:   make(map[string]*state),
		failures: make(map[string]int),
	}
	m.unsubs = append(m.unsubs,
		b.Subscribe(bus.TypeError, m.handleError),
		b.Subscribe(bus.TypeComplete, m.handleComplete),
	)
	return m
}

// State returns the active retry cycle for an agent, if any.
func (m *Manager) State(agentID string) (RetryState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.states[agentID]
	if st == nil {
		return RetryState{}, false
	}
	return RetryState{Attempt: st.attempt, LastError: st.lastError, IsRetrying: st.isRetrying}, true
}

// ConsecutiveFailures returns the breaker counter for an agent.
func (m *Manager) ConsecutiveFailures(agentID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failures[agentID]
}

// BreakerOpen reports whether an agent's circuit breaker has tripped.
func (m *Manager) BreakerOpen(agentID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failures[agentID] >= m.cfg.BreakerThreshold
}

// Dispose unsubscribes from the bus and cancels pending timers.
func (m *Manager) Dispose() {
	m.mu.Lock()
	for _, st := range m.states {
		if st.timer != nil {
			st.timer.Stop()
		}
	}
	m.states = make(map[string]*state)
	unsubs := m.unsubs
	m.unsubs = nil
	m.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
}

func (m *Manager) handleError(ev bus.Event) {
	p, ok := ev.Payload.(bus.ErrorPayload)
	if !ok || p.Terminal || ev.AgentID == "" {
		return
	}
	agent := ev.AgentID

	m.mu.Lock()
	if m.failures[agent] >= m.cfg.BreakerThreshold {
		m.mu.Unlock()
		log.Printf("[retry] circuit open for %s, not retrying", agent)
		return
	}

	if !retryable(p) {
		m.failures[agent]++
		count := m.failures[agent]
		m.mu.Unlock()
		log.Printf("[retry] non-retryable error for %s (%d consecutive): %s",
			agent, count, truncate(p.Err, 120))
		return
	}

	st := m.states[agent]
	if st == nil {
		st = &state{}
		m.states[agent] = st
	}
	// A fresh error supersedes a still-pending retry.
	if st.timer != nil {
		st.timer.Stop()
		st.timer = nil
	}
	st.attempt++
	st.lastError = p.Err

	if st.attempt > m.cfg.MaxRetries {
		m.failures[agent]++
		last := st.lastError
		delete(m.states, agent)
		m.mu.Unlock()
		log.Printf("[retry] %s exhausted %d retries", agent, m.cfg.MaxRetries)
		m.bus.Emit(bus.Event{
			Type:    bus.TypeError,
			AgentID: agent,
			Payload: bus.ErrorPayload{
				Err:      fmt.Sprintf("retry exhausted after %d attempts: %s", m.cfg.MaxRetries, last),
				Terminal: true,
			},
		})
		return
	}

	attempt := st.attempt
	delay := m.backoff(attempt)
	st.isRetrying = true
	st.timer = time.AfterFunc(delay, func() { m.fire(agent, attempt) })
	m.mu.Unlock()

	log.Printf("[retry] %s attempt %d/%d in %s", agent, attempt, m.cfg.MaxRetries, delay)
	m.bus.Emit(bus.Event{
		Type:    bus.TypeContentBlock,
		AgentID: agent,
		Payload: bus.BlockPayload{
			Block: message.NewText(fmt.Sprintf("Retrying (attempt %d/%d)...", attempt, m.cfg.MaxRetries)),
		},
	})
}

func (m *Manager) fire(agent string, attempt int) {
	m.mu.Lock()
	st := m.states[agent]
	if st == nil || st.attempt != attempt {
		// Superseded or cleared while the timer was pending.
		m.mu.Unlock()
		return
	}
	st.isRetrying = false
	st.timer = nil
	m.mu.Unlock()

	if !m.resend(agent) {
		log.Printf("[retry] %s has no message to resend", agent)
	}
}

func (m *Manager) handleComplete(ev bus.Event) {
	p, ok := ev.Payload.(bus.CompletePayload)
	if !ok || p.IsError {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if st := m.states[ev.AgentID]; st != nil && st.isRetrying {
		// The breaker counts consecutive failures; a completion racing
		// a pending retry is not the retried turn succeeding.
		return
	}
	m.failures[ev.AgentID] = 0
	delete(m.states, ev.AgentID)
}

func (m *Manager) backoff(attempt int) time.Duration {
	d := m.cfg.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= m.cfg.MaxDelay {
			return m.cfg.MaxDelay
		}
	}
	if d > m.cfg.MaxDelay {
		return m.cfg.MaxDelay
	}
	return d
}

var retryableRE = regexp.MustCompile(`(?i)(rate.?limit|timed? ?out|429|529|overloaded|too many requests)`)

var retryableExitCodes = map[int]bool{1: true, 137: true, 143: true}

// retryable classifies an error as transient, by text or exit code.
func retryable(p bus.ErrorPayload) bool {
	if retryableRE.MatchString(p.Err) {
		return true
	}
	return retryableExitCodes[p.ExitCode]
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
