// internal/bridge/bridge_test.go
package bridge

import (
	"fmt"
	"sync"
	"testing"

	"switchboard/internal/adapter"
	"switchboard/internal/bus"
	"switchboard/internal/message"
)

type fakeResolver struct {
	mu       sync.Mutex
	inflight map[string]string
	begins   []string
	next     int
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{inflight: make(map[string]string)}
}

func (r *fakeResolver) BeginTurn(agentID, model string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	id := fmt.Sprintf("msg-%d", r.next)
	r.inflight[agentID] = id
	r.begins = append(r.begins, agentID+":"+model)
	return id
}

func (r *fakeResolver) InFlight(agentID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.inflight[agentID]
	return id, ok
}

func (r *fakeResolver) beginCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.begins)
}

type fakeAgent struct {
	id, model string
	lifecycle func(adapter.LifecycleEvent)
	block     func(message.ContentBlock)
	text      func(string)
	thinking  func(string)
	toolRes   func(message.ContentBlock)
	complete  func(adapter.Completion)
	turnErr   func(adapter.TurnError)
	status    func(from, to adapter.Status)
}

func (f *fakeAgent) ID() string                                    { return f.id }
func (f *fakeAgent) Model() string                                 { return f.model }
func (f *fakeAgent) OnLifecycle(fn func(adapter.LifecycleEvent))   { f.lifecycle = fn }
func (f *fakeAgent) OnContentBlock(fn func(message.ContentBlock))  { f.block = fn }
func (f *fakeAgent) OnStreamText(fn func(string))                  { f.text = fn }
func (f *fakeAgent) OnStreamThinking(fn func(string))              { f.thinking = fn }
func (f *fakeAgent) OnToolResult(fn func(message.ContentBlock))    { f.toolRes = fn }
func (f *fakeAgent) OnComplete(fn func(adapter.Completion))        { f.complete = fn }
func (f *fakeAgent) OnError(fn func(adapter.TurnError))            { f.turnErr = fn }
func (f *fakeAgent) OnStatus(fn func(from, to adapter.Status))     { f.status = fn }

func setup() (*bus.Bus, *fakeResolver, *fakeAgent, *[]bus.Event) {
	b := bus.New()
	res := newFakeResolver()
	agent := &fakeAgent{id: "claude", model: "opus"}
	New(b, res).Connect(agent)

	events := &[]bus.Event{}
	b.Subscribe(bus.Wildcard, func(ev bus.Event) { *events = append(*events, ev) })
	return b, res, agent, events
}

// --- Attribution Tests ---

func TestStreamingEventsCarryInFlightMessageID(t *testing.T) {
	_, res, agent, events := setup()
	res.BeginTurn("claude", "opus")

	agent.text("hel")
	agent.thinking("hmm")
	agent.block(message.NewText("a paragraph"))
	agent.toolRes(message.NewToolResult("t1", "ok", false))

	if len(*events) != 4 {
		t.Fatalf("Expected 4 events, got %d", len(*events))
	}

	wantTypes := []string{bus.TypeStreamText, bus.TypeStreamThinking, bus.TypeContentBlock, bus.TypeToolResult}
	for i, ev := range *events {
		if ev.Type != wantTypes[i] {
			t.Errorf("Expected event %d type %s, got %s", i, wantTypes[i], ev.Type)
		}
		if ev.AgentID != "claude" {
			t.Errorf("Expected agent claude, got %q", ev.AgentID)
		}
	}

	text := (*events)[0].Payload.(bus.TextPayload)
	if text.MessageID != "msg-1" || text.Text != "hel" {
		t.Errorf("Expected msg-1/hel, got %+v", text)
	}
	block := (*events)[2].Payload.(bus.BlockPayload)
	if block.MessageID != "msg-1" || block.Block.Text != "a paragraph" {
		t.Errorf("Expected msg-1 paragraph block, got %+v", block)
	}
	tool := (*events)[3].Payload.(bus.BlockPayload)
	if tool.Block.Type != message.BlockToolResult {
		t.Errorf("Expected tool_result block, got %s", tool.Block.Type)
	}
}

func TestCompleteAndErrorCarryAttribution(t *testing.T) {
	_, res, agent, events := setup()
	res.BeginTurn("claude", "opus")

	metrics := &message.Metrics{InputTokens: 10, OutputTokens: 5}
	agent.complete(adapter.Completion{Text: "done", Metrics: metrics})
	agent.turnErr(adapter.TurnError{Err: "claude exited with code 1", ExitCode: 1})

	if len(*events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(*events))
	}

	complete := (*events)[0].Payload.(bus.CompletePayload)
	if complete.MessageID != "msg-1" || complete.Text != "done" || complete.IsError {
		t.Errorf("Unexpected complete payload: %+v", complete)
	}
	if complete.Metrics == nil || complete.Metrics.InputTokens != 10 {
		t.Errorf("Expected metrics carried through, got %+v", complete.Metrics)
	}

	errPayload := (*events)[1].Payload.(bus.ErrorPayload)
	if errPayload.MessageID != "msg-1" || errPayload.ExitCode != 1 || errPayload.Terminal {
		t.Errorf("Unexpected error payload: %+v", errPayload)
	}
}

// --- Auto Begin Tests ---

func TestStartingWithoutInFlightBeginsTurn(t *testing.T) {
	_, res, agent, events := setup()

	agent.status(adapter.StatusIdle, adapter.StatusStarting)

	if res.beginCount() != 1 {
		t.Fatalf("Expected 1 auto-begun turn, got %d", res.beginCount())
	}
	if res.begins[0] != "claude:opus" {
		t.Errorf("Expected begin for claude:opus, got %q", res.begins[0])
	}
	if id, ok := res.InFlight("claude"); !ok || id != "msg-1" {
		t.Errorf("Expected in-flight msg-1, got %q %v", id, ok)
	}

	status := (*events)[0].Payload.(bus.StatusPayload)
	if status.From != "idle" || status.To != "starting" {
		t.Errorf("Expected idle->starting, got %+v", status)
	}

	// Later transitions in the same turn do not begin another message.
	agent.status(adapter.StatusStarting, adapter.StatusRunning)
	if res.beginCount() != 1 {
		t.Errorf("Expected still 1 begun turn, got %d", res.beginCount())
	}
}

func TestStartingWithInFlightDoesNotBegin(t *testing.T) {
	_, res, agent, _ := setup()
	res.BeginTurn("claude", "opus")

	agent.status(adapter.StatusIdle, adapter.StatusStarting)

	if res.beginCount() != 1 {
		t.Errorf("Expected no auto-begin when a message is in flight, got %d begins", res.beginCount())
	}
}

func TestNonStartingTransitionNeverBegins(t *testing.T) {
	_, res, agent, events := setup()

	agent.status(adapter.StatusRunning, adapter.StatusIdle)

	if res.beginCount() != 0 {
		t.Errorf("Expected no begin on running->idle, got %d", res.beginCount())
	}
	if len(*events) != 1 || (*events)[0].Type != bus.TypeStatus {
		t.Fatalf("Expected single status event, got %+v", *events)
	}
}

// --- Lifecycle Tests ---

func TestLifecycleEventsMapToBusTypes(t *testing.T) {
	_, _, agent, events := setup()

	agent.lifecycle(adapter.LifecycleEvent{Kind: adapter.LifecycleSessionStart, SessionID: "s1", Model: "opus"})
	agent.lifecycle(adapter.LifecycleEvent{Kind: adapter.LifecycleCompaction, SessionID: "s1"})
	agent.lifecycle(adapter.LifecycleEvent{Kind: adapter.LifecycleTokenWarning, Used: 160000, Window: 200000})
	agent.lifecycle(adapter.LifecycleEvent{Kind: adapter.LifecycleSessionEnd, SessionID: "s1"})

	wantTypes := []string{bus.TypeSessionStart, bus.TypeCompaction, bus.TypeTokenWarning, bus.TypeSessionEnd}
	if len(*events) != len(wantTypes) {
		t.Fatalf("Expected %d events, got %d", len(wantTypes), len(*events))
	}
	for i, want := range wantTypes {
		if (*events)[i].Type != want {
			t.Errorf("Expected event %d type %s, got %s", i, want, (*events)[i].Type)
		}
	}

	session := (*events)[0].Payload.(bus.SessionPayload)
	if session.SessionID != "s1" || session.Model != "opus" {
		t.Errorf("Unexpected session payload: %+v", session)
	}
	tokens := (*events)[2].Payload.(bus.TokenPayload)
	if tokens.Used != 160000 || tokens.Window != 200000 {
		t.Errorf("Unexpected token payload: %+v", tokens)
	}
}

// --- Registry Integration Tests ---

type nopProc struct{}

func (nopProc) Write(p []byte) error { return nil }
func (nopProc) CloseInput() error    { return nil }
func (nopProc) Kill() error          { return nil }

type fakeRunner struct {
	mu   sync.Mutex
	last adapter.ProcSpec
}

func (r *fakeRunner) Start(spec adapter.ProcSpec) (adapter.Proc, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = spec
	return nopProc{}, nil
}

func (r *fakeRunner) spec() adapter.ProcSpec {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

func TestConnectAllBridgesLiveAdapter(t *testing.T) {
	b := bus.New()
	res := newFakeResolver()
	runner := &fakeRunner{}

	reg := adapter.NewRegistry(runner, []adapter.Options{{AgentID: "claude", Vendor: "claude"}})
	New(b, res).ConnectAll(reg)

	var events []bus.Event
	b.Subscribe(bus.Wildcard, func(ev bus.Event) { events = append(events, ev) })

	res.BeginTurn("claude", "")
	a := reg.Get("claude")
	if a == nil {
		t.Fatal("Expected claude registered")
	}
	if err := a.SendMessage("hi", ""); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	spec := runner.spec()
	spec.OnStdout([]byte(`{"type":"result","subtype":"success","is_error":false,"result":"Hello","session_id":"s9"}` + "\n"))
	spec.OnExit(0)

	var completes []bus.CompletePayload
	var statuses []string
	sawSessionStart := false
	for _, ev := range events {
		switch ev.Type {
		case bus.TypeComplete:
			completes = append(completes, ev.Payload.(bus.CompletePayload))
		case bus.TypeStatus:
			p := ev.Payload.(bus.StatusPayload)
			statuses = append(statuses, p.From+"->"+p.To)
		case bus.TypeSessionStart:
			sawSessionStart = true
		}
	}

	if len(completes) != 1 {
		t.Fatalf("Expected exactly 1 completion, got %d", len(completes))
	}
	if completes[0].Text != "Hello" || completes[0].MessageID != "msg-1" {
		t.Errorf("Unexpected completion: %+v", completes[0])
	}
	if !sawSessionStart {
		t.Error("Expected session_start on the bus")
	}

	want := []string{"idle->starting", "starting->running", "running->idle"}
	if len(statuses) != len(want) {
		t.Fatalf("Expected %d status events, got %v", len(want), statuses)
	}
	for i := range want {
		if statuses[i] != want[i] {
			t.Errorf("Expected status %d %s, got %s", i, want[i], statuses[i])
		}
	}
}
