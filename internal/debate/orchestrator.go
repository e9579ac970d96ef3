// internal/debate/orchestrator.go
// Package debate coordinates two agents through a structured exchange
// on one topic and a final synthesis turn run by agent A.
package debate

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"switchboard/internal/bus"
)

var (
	ErrCancelled    = errors.New("debate cancelled")
	ErrWaitTimeout  = errors.New("timed out waiting for agent completion")
	ErrUnknownAgent = errors.New("unknown agent")
	ErrUnknownMode  = errors.New("unknown debate mode")
)

// DefaultWaitTimeout bounds each completion wait. Transient failures
// are absorbed upstream by the retry manager; a stalled subprocess
// that never exits is what this guards against.
const DefaultWaitTimeout = 300 * time.Second

// Agent is the adapter surface a debate drives. *adapter.Adapter
// implements it.
type Agent interface {
	ID() string
	SendMessage(text, model string) error
	Kill()
}

// Orchestrator runs debate sessions. Sessions execute on their own
// goroutine; Start returns as soon as the run is underway.
type Orchestrator struct {
	bus     *bus.Bus
	lookup  func(agentID string) Agent
	timeout time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
}

// New creates an orchestrator with the default completion timeout.
// lookup resolves agent ids to live adapters and returns nil for
// unknown ids.
func New(b *bus.Bus, lookup func(agentID string) Agent) *Orchestrator {
	return NewWithTimeout(b, lookup, DefaultWaitTimeout)
}

// NewWithTimeout creates an orchestrator with a custom per-completion
// timeout.
func NewWithTimeout(b *bus.Bus, lookup func(agentID string) Agent, timeout time.Duration) *Orchestrator {
	return &Orchestrator{
		bus:      b,
		lookup:   lookup,
		timeout:  timeout,
		sessions: make(map[string]*Session),
	}
}

// Start validates the config and launches the run.
func (o *Orchestrator) Start(cfg Config) (*Session, error) {
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, errors.New("debate topic is empty")
	}
	if cfg.AgentA == "" || cfg.AgentB == "" {
		return nil, errors.New("a debate needs two agents")
	}
	if cfg.AgentA == cfg.AgentB {
		return nil, fmt.Errorf("a debate needs two distinct agents, got %s twice", cfg.AgentA)
	}

	agentA := o.lookup(cfg.AgentA)
	if agentA == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAgent, cfg.AgentA)
	}
	agentB := o.lookup(cfg.AgentB)
	if agentB == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAgent, cfg.AgentB)
	}

	rounds := 1
	switch cfg.Mode {
	case ModeSideBySide, ModeSequential:
	case ModeMultiRound:
		if cfg.Rounds > 1 {
			rounds = cfg.Rounds
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, cfg.Mode)
	}

	s := &Session{
		id:        uuid.NewString(),
		cfg:       cfg,
		started:   time.Now(),
		agentA:    agentA,
		agentB:    agentB,
		rounds:    make([]Round, rounds),
		status:    SessionRunning,
		activeTab: cfg.AgentA,
		cancel:    make(chan struct{}),
	}
	for i := range s.rounds {
		s.rounds[i] = Round{Number: i + 1, Status: RoundPending}
	}

	o.mu.Lock()
	o.sessions[s.id] = s
	o.mu.Unlock()

	log.Printf("[debate] session %s started (%s, %s vs %s, %d rounds)",
		s.id, cfg.Mode, cfg.AgentA, cfg.AgentB, rounds)
	go o.run(s)
	return s, nil
}

// Session returns a previously started session by id.
func (o *Orchestrator) Session(id string) *Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sessions[id]
}

// Cancel marks a session cancelled and kills both agents. The run
// goroutine observes the flag at its next step boundary and exits
// without running synthesis.
func (o *Orchestrator) Cancel(sessionID string) {
	o.mu.Lock()
	s := o.sessions[sessionID]
	o.mu.Unlock()
	if s == nil {
		return
	}

	s.markCancelled()
	s.agentA.Kill()
	s.agentB.Kill()
	log.Printf("[debate] session %s cancelled", sessionID)
}

// Dispose cancels every running session.
func (o *Orchestrator) Dispose() {
	o.mu.Lock()
	var running []string
	for id, s := range o.sessions {
		if s.Status() == SessionRunning {
			running = append(running, id)
		}
	}
	o.mu.Unlock()

	for _, id := range running {
		o.Cancel(id)
	}
}

// --- run loop ---

func (o *Orchestrator) run(s *Session) {
	err := o.runRounds(s)
	switch {
	case errors.Is(err, ErrCancelled):
		// Cancel already set the status and killed the agents.
	case err != nil:
		s.fail(err)
		log.Printf("[debate] session %s failed: %v", s.id, err)
	default:
		s.finish()
		log.Printf("[debate] session %s complete", s.id)
	}
}

func (o *Orchestrator) runRounds(s *Session) error {
	n := len(s.rounds)
	for i := 0; i < n; i++ {
		if s.Cancelled() {
			return ErrCancelled
		}

		var err error
		switch {
		case s.cfg.Mode == ModeSideBySide:
			err = o.runSideBySide(s, i)
		case i == 0:
			err = o.runOpeningRound(s, i)
		default:
			err = o.runRebuttalRound(s, i)
		}
		if err != nil {
			return err
		}

		if i < n-1 {
			s.setRoundStatus(i, RoundComplete)
		}
	}

	if s.Cancelled() {
		return ErrCancelled
	}
	return o.synthesize(s)
}

// runSideBySide issues both sends before awaiting either completion,
// so the two subprocesses run concurrently.
func (o *Orchestrator) runSideBySide(s *Session, i int) error {
	s.setRoundStatus(i, RoundAgentARunning)

	watchA := o.watchCompletion(s.cfg.AgentA)
	defer watchA.stop()
	watchB := o.watchCompletion(s.cfg.AgentB)
	defer watchB.stop()

	prompt := openingPrompt(s.cfg.Topic)
	if err := s.agentA.SendMessage(prompt, s.cfg.ModelA); err != nil {
		return fmt.Errorf("send to %s: %w", s.cfg.AgentA, err)
	}
	if err := s.agentB.SendMessage(prompt, s.cfg.ModelB); err != nil {
		return fmt.Errorf("send to %s: %w", s.cfg.AgentB, err)
	}

	pA, err := watchA.await(o.timeout, s.cancel)
	if err != nil {
		return fmt.Errorf("waiting for %s: %w", s.cfg.AgentA, err)
	}
	s.recordA(i, pA.Text)
	s.setRoundStatus(i, RoundAgentBRunning)

	pB, err := watchB.await(o.timeout, s.cancel)
	if err != nil {
		return fmt.Errorf("waiting for %s: %w", s.cfg.AgentB, err)
	}
	s.recordB(i, pB.Text)
	return nil
}

// runOpeningRound runs round one of the serialized modes: A states a
// position, then B reviews it.
func (o *Orchestrator) runOpeningRound(s *Session, i int) error {
	s.setRoundStatus(i, RoundAgentARunning)

	watchA := o.watchCompletion(s.cfg.AgentA)
	defer watchA.stop()
	if err := s.agentA.SendMessage(openingPrompt(s.cfg.Topic), s.cfg.ModelA); err != nil {
		return fmt.Errorf("send to %s: %w", s.cfg.AgentA, err)
	}
	pA, err := watchA.await(o.timeout, s.cancel)
	if err != nil {
		return fmt.Errorf("waiting for %s: %w", s.cfg.AgentA, err)
	}
	s.recordA(i, pA.Text)

	if s.Cancelled() {
		return ErrCancelled
	}
	s.setRoundStatus(i, RoundAgentBRunning)

	watchB := o.watchCompletion(s.cfg.AgentB)
	defer watchB.stop()
	if err := s.agentB.SendMessage(reviewPrompt(s.cfg.Topic, pA.Text), s.cfg.ModelB); err != nil {
		return fmt.Errorf("send to %s: %w", s.cfg.AgentB, err)
	}
	pB, err := watchB.await(o.timeout, s.cancel)
	if err != nil {
		return fmt.Errorf("waiting for %s: %w", s.cfg.AgentB, err)
	}
	s.recordB(i, pB.Text)
	return nil
}

// runRebuttalRound re-prompts each agent with the opponent's latest
// full answer. A answers first against B's previous round; B then
// answers against A's fresh text.
func (o *Orchestrator) runRebuttalRound(s *Session, i int) error {
	round := i + 1
	s.setRoundStatus(i, RoundAgentARunning)

	watchA := o.watchCompletion(s.cfg.AgentA)
	defer watchA.stop()
	if err := s.agentA.SendMessage(rebuttalPrompt(s.cfg.Topic, s.roundTextB(i-1), round), s.cfg.ModelA); err != nil {
		return fmt.Errorf("send to %s: %w", s.cfg.AgentA, err)
	}
	pA, err := watchA.await(o.timeout, s.cancel)
	if err != nil {
		return fmt.Errorf("waiting for %s: %w", s.cfg.AgentA, err)
	}
	s.recordA(i, pA.Text)

	if s.Cancelled() {
		return ErrCancelled
	}
	s.setRoundStatus(i, RoundAgentBRunning)

	watchB := o.watchCompletion(s.cfg.AgentB)
	defer watchB.stop()
	if err := s.agentB.SendMessage(rebuttalPrompt(s.cfg.Topic, pA.Text, round), s.cfg.ModelB); err != nil {
		return fmt.Errorf("send to %s: %w", s.cfg.AgentB, err)
	}
	pB, err := watchB.await(o.timeout, s.cancel)
	if err != nil {
		return fmt.Errorf("waiting for %s: %w", s.cfg.AgentB, err)
	}
	s.recordB(i, pB.Text)
	return nil
}

// synthesize runs the closing turn on agent A with both final
// positions embedded.
func (o *Orchestrator) synthesize(s *Session) error {
	last := len(s.rounds) - 1
	s.setRoundStatus(last, RoundSynthesizing)

	prompt := synthesisPrompt(s.cfg.Topic,
		s.cfg.AgentA, s.roundTextA(last),
		s.cfg.AgentB, s.roundTextB(last))

	watch := o.watchCompletion(s.cfg.AgentA)
	defer watch.stop()
	if err := s.agentA.SendMessage(prompt, s.cfg.ModelA); err != nil {
		return fmt.Errorf("send synthesis to %s: %w", s.cfg.AgentA, err)
	}
	p, err := watch.await(o.timeout, s.cancel)
	if err != nil {
		return fmt.Errorf("waiting for synthesis from %s: %w", s.cfg.AgentA, err)
	}
	if s.Cancelled() {
		return ErrCancelled
	}

	s.setSynthesis(p.Text, p.MessageID)
	s.setRoundStatus(last, RoundComplete)
	return nil
}

// --- completion waits ---

type completionWatch struct {
	ch   chan bus.CompletePayload
	stop func()
}

// watchCompletion subscribes before the caller sends, so a completion
// cannot slip through between send and await. Error completions are
// skipped: the retry manager may still turn them into a clean one, and
// if it cannot, the await times out.
func (o *Orchestrator) watchCompletion(agentID string) *completionWatch {
	w := &completionWatch{ch: make(chan bus.CompletePayload, 1)}
	var once sync.Once
	w.stop = o.bus.Subscribe(bus.TypeComplete, func(ev bus.Event) {
		if ev.AgentID != agentID {
			return
		}
		p, ok := ev.Payload.(bus.CompletePayload)
		if !ok || p.IsError {
			return
		}
		once.Do(func() { w.ch <- p })
	})
	return w
}

func (w *completionWatch) await(timeout time.Duration, cancel <-chan struct{}) (bus.CompletePayload, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-cancel:
		return bus.CompletePayload{}, ErrCancelled
	case p := <-w.ch:
		return p, nil
	case <-timer.C:
		return bus.CompletePayload{}, ErrWaitTimeout
	}
}
