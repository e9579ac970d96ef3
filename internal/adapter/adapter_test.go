// internal/adapter/adapter_test.go
package adapter

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"switchboard/internal/message"
)

// fakeProc is a scripted subprocess. Stdout lines are pushed by the
// test; Kill reports its exit asynchronously like a real process.
type fakeProc struct {
	mu     sync.Mutex
	spec   ProcSpec
	exited bool
	killed bool
	wrote  []byte
	closed bool
}

func (p *fakeProc) Write(b []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.wrote = append(p.wrote, b...)
	return nil
}

func (p *fakeProc) CloseInput() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakeProc) Kill() error {
	p.mu.Lock()
	p.killed = true
	p.mu.Unlock()
	go p.exit(137)
	return nil
}

func (p *fakeProc) emit(lines ...string) {
	for _, l := range lines {
		p.spec.OnStdout([]byte(l + "\n"))
	}
}

func (p *fakeProc) stderr(s string) {
	p.spec.OnStderr([]byte(s))
}

func (p *fakeProc) exit(code int) {
	p.mu.Lock()
	if p.exited {
		p.mu.Unlock()
		return
	}
	p.exited = true
	p.mu.Unlock()
	p.spec.OnExit(code)
}

func (p *fakeProc) wasKilled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killed
}

func (p *fakeProc) stdin() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return string(p.wrote)
}

func (p *fakeProc) inputClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

type fakeRunner struct {
	mu       sync.Mutex
	procs    []*fakeProc
	starts   [][]string
	failNext error
}

func (r *fakeRunner) Start(spec ProcSpec) (Proc, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failNext != nil {
		err := r.failNext
		r.failNext = nil
		return nil, err
	}
	p := &fakeProc{spec: spec}
	r.procs = append(r.procs, p)
	r.starts = append(r.starts, append([]string{spec.Binary}, spec.Args...))
	return p, nil
}

func (r *fakeRunner) last() *fakeProc {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.procs[len(r.procs)-1]
}

func (r *fakeRunner) startCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.starts)
}

func (r *fakeRunner) argv(i int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.starts[i]...)
}

// recorder captures every callback an adapter fires, plus the order
// they arrived in.
type recorder struct {
	mu        sync.Mutex
	order     []string
	blocks    []message.ContentBlock
	texts     []string
	thinking  []string
	results   []message.ContentBlock
	completes []Completion
	errs      []TurnError
	statuses  []string
	lifecycle []LifecycleEvent
}

func record(a *Adapter) *recorder {
	r := &recorder{}
	a.OnLifecycle(func(ev LifecycleEvent) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.lifecycle = append(r.lifecycle, ev)
		r.order = append(r.order, "lifecycle:"+string(ev.Kind))
	})
	a.OnContentBlock(func(b message.ContentBlock) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.blocks = append(r.blocks, b)
		r.order = append(r.order, "block:"+string(b.Type))
	})
	a.OnStreamText(func(s string) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.texts = append(r.texts, s)
		r.order = append(r.order, "text:"+s)
	})
	a.OnStreamThinking(func(s string) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.thinking = append(r.thinking, s)
		r.order = append(r.order, "thinking:"+s)
	})
	a.OnToolResult(func(b message.ContentBlock) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.results = append(r.results, b)
		r.order = append(r.order, "toolresult")
	})
	a.OnComplete(func(c Completion) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.completes = append(r.completes, c)
		r.order = append(r.order, "complete")
	})
	a.OnError(func(e TurnError) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.errs = append(r.errs, e)
		r.order = append(r.order, "error")
	})
	a.OnStatus(func(from, to Status) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.statuses = append(r.statuses, fmt.Sprintf("%s->%s", from, to))
		r.order = append(r.order, "status:"+to.String())
	})
	return r
}

func (r *recorder) completeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.completes)
}

func (r *recorder) lastComplete() Completion {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completes[len(r.completes)-1]
}

func (r *recorder) errorCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errs)
}

func (r *recorder) textJoined() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return strings.Join(r.texts, "")
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func tickOnce(a *Adapter) {
	a.mu.Lock()
	seq := a.turnSeq
	a.mu.Unlock()
	a.dripTick(seq)
}

func newTestAdapter(t *testing.T, vendor string, opts Options) (*Adapter, *fakeRunner, *recorder) {
	t.Helper()
	opts.Vendor = vendor
	if opts.DripTick == 0 {
		opts.DripTick = time.Hour // tests drive ticks directly
	}
	runner := &fakeRunner{}
	a, err := New(opts, runner)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a, runner, record(a)
}

// --- Turn Lifecycle Tests ---

func TestSendMessageStreamsAndCompletes(t *testing.T) {
	a, runner, rec := newTestAdapter(t, "claude", Options{})

	if err := a.SendMessage("hello", ""); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	p := runner.last()

	p.emit(`{"type":"system","subtype":"init","session_id":"s1","model":"claude-sonnet-4"}`)
	p.emit(`{"type":"stream_event","event":{"type":"content_block_delta","delta":{"type":"text_delta","text":"Hel"}}}`)
	p.emit(`{"type":"stream_event","event":{"type":"content_block_delta","delta":{"type":"text_delta","text":"lo"}}}`)
	p.emit(`{"type":"result","subtype":"success","is_error":false,"result":"Hello","session_id":"s1","usage":{"input_tokens":10,"output_tokens":2}}`)
	p.exit(0)

	if rec.textJoined() != "Hello" {
		t.Errorf("Expected streamed text %q, got %q", "Hello", rec.textJoined())
	}
	if rec.completeCount() != 1 {
		t.Fatalf("Expected exactly 1 completion, got %d", rec.completeCount())
	}
	c := rec.lastComplete()
	if c.IsError {
		t.Error("Expected success completion")
	}
	if c.Text != "Hello" {
		t.Errorf("Expected completion text %q, got %q", "Hello", c.Text)
	}
	if c.Metrics == nil || c.Metrics.InputTokens != 10 {
		t.Errorf("Expected metrics on completion, got %+v", c.Metrics)
	}
	if a.Status() != StatusIdle {
		t.Errorf("Expected status idle after success, got %s", a.Status())
	}
	if a.SessionID() != "s1" {
		t.Errorf("Expected captured session id, got %q", a.SessionID())
	}

	want := []string{"idle->starting", "starting->running", "running->idle"}
	rec.mu.Lock()
	got := append([]string(nil), rec.statuses...)
	rec.mu.Unlock()
	if len(got) != len(want) {
		t.Fatalf("Expected %v transitions, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Transition %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestSecondTurnResumesSession(t *testing.T) {
	a, runner, _ := newTestAdapter(t, "claude", Options{})

	a.SendMessage("first", "")
	p := runner.last()
	p.emit(`{"type":"system","subtype":"init","session_id":"sess-42","model":"m"}`)
	p.exit(0)

	a.SendMessage("second", "")

	argv := runner.argv(1)
	joined := strings.Join(argv, " ")
	if !strings.Contains(joined, "--resume sess-42") {
		t.Errorf("Expected second turn to resume sess-42, got %v", argv)
	}
}

func TestNonZeroExitSynthesizesError(t *testing.T) {
	a, runner, rec := newTestAdapter(t, "claude", Options{})

	a.SendMessage("hello", "")
	p := runner.last()
	p.stderr("\x1b[31mrate limited by upstream\x1b[0m")
	p.exit(1)

	rec.mu.Lock()
	blocks := append([]message.ContentBlock(nil), rec.blocks...)
	rec.mu.Unlock()
	if len(blocks) != 1 || blocks[0].Type != message.BlockError {
		t.Fatalf("Expected exactly one error block, got %+v", blocks)
	}
	if blocks[0].Message != "claude exited with code 1" {
		t.Errorf("Unexpected error message: %q", blocks[0].Message)
	}
	if blocks[0].Detail != "rate limited by upstream" {
		t.Errorf("Expected ANSI-stripped stderr detail, got %q", blocks[0].Detail)
	}

	if rec.errorCount() != 1 {
		t.Fatalf("Expected 1 error event, got %d", rec.errorCount())
	}
	rec.mu.Lock()
	te := rec.errs[0]
	rec.mu.Unlock()
	if te.ExitCode != 1 {
		t.Errorf("Expected exit code 1, got %d", te.ExitCode)
	}
	if !strings.Contains(te.Err, "rate limited") {
		t.Errorf("Expected error text to carry stderr detail, got %q", te.Err)
	}

	if rec.completeCount() != 1 || !rec.lastComplete().IsError {
		t.Errorf("Expected one error completion, got %d (%+v)", rec.completeCount(), rec.completes)
	}
	if a.Status() != StatusError {
		t.Errorf("Expected status error, got %s", a.Status())
	}
}

func TestVendorReportedErrorResult(t *testing.T) {
	a, runner, rec := newTestAdapter(t, "claude", Options{})

	a.SendMessage("hello", "")
	p := runner.last()
	p.emit(`{"type":"result","subtype":"error_during_execution","is_error":true,"result":"rate limit exceeded"}`)
	p.exit(1)

	rec.mu.Lock()
	blocks := append([]message.ContentBlock(nil), rec.blocks...)
	errs := append([]TurnError(nil), rec.errs...)
	rec.mu.Unlock()

	if len(blocks) != 1 || blocks[0].Message != "rate limit exceeded" {
		t.Errorf("Expected vendor error surfaced as block, got %+v", blocks)
	}
	if len(errs) != 1 || errs[0].Err != "rate limit exceeded" {
		t.Errorf("Expected vendor error event, got %+v", errs)
	}
	if rec.completeCount() != 1 || !rec.lastComplete().IsError {
		t.Error("Expected one error completion")
	}
}

func TestCleanExitWithoutResultStillCompletes(t *testing.T) {
	a, runner, rec := newTestAdapter(t, "claude", Options{})

	a.SendMessage("hello", "")
	runner.last().exit(0)

	if rec.completeCount() != 1 {
		t.Fatalf("Expected forced completion, got %d", rec.completeCount())
	}
	if rec.lastComplete().IsError {
		t.Error("Expected clean exit to complete without error")
	}
	if rec.errorCount() != 0 {
		t.Errorf("Expected no error events, got %d", rec.errorCount())
	}
	if a.Status() != StatusIdle {
		t.Errorf("Expected status idle, got %s", a.Status())
	}
}

func TestKillSuppressesErrorSynthesis(t *testing.T) {
	a, runner, rec := newTestAdapter(t, "claude", Options{})

	a.SendMessage("hello", "")
	p := runner.last()
	p.emit(`{"type":"stream_event","event":{"type":"content_block_delta","delta":{"type":"text_delta","text":"partial"}}}`)

	a.Kill()
	if a.Status() != StatusStopped {
		t.Errorf("Expected status stopped after Kill, got %s", a.Status())
	}

	waitUntil(t, func() bool { return rec.completeCount() == 1 })

	if rec.errorCount() != 0 {
		t.Errorf("Expected no error events for a killed turn, got %d", rec.errorCount())
	}
	rec.mu.Lock()
	blockCount := len(rec.blocks)
	rec.mu.Unlock()
	if blockCount != 0 {
		t.Errorf("Expected no synthetic error block for a killed turn, got %d blocks", blockCount)
	}
	c := rec.lastComplete()
	if c.IsError {
		t.Error("Expected killed turn to complete without error flag")
	}
	if c.Text != "partial" {
		t.Errorf("Expected partial text preserved, got %q", c.Text)
	}
}

func TestSendSupersedesInFlightTurn(t *testing.T) {
	a, runner, rec := newTestAdapter(t, "claude", Options{})

	a.SendMessage("one", "")
	p1 := runner.last()
	p1.emit(`{"type":"stream_event","event":{"type":"content_block_delta","delta":{"type":"text_delta","text":"abc"}}}`)

	a.SendMessage("two", "")

	if !p1.wasKilled() {
		t.Error("Expected previous subprocess to be killed")
	}
	if runner.startCount() != 2 {
		t.Fatalf("Expected 2 launches, got %d", runner.startCount())
	}
	if rec.completeCount() != 1 {
		t.Fatalf("Expected superseded turn to be completed, got %d completions", rec.completeCount())
	}
	if rec.lastComplete().Text != "abc" {
		t.Errorf("Expected superseded completion to carry accumulated text, got %q", rec.lastComplete().Text)
	}

	// The first process's late exit must not double-complete.
	p1.exit(137)
	time.Sleep(20 * time.Millisecond)
	if rec.completeCount() != 1 {
		t.Errorf("Expected stale exit to be ignored, got %d completions", rec.completeCount())
	}

	p2 := runner.last()
	p2.emit(`{"type":"result","subtype":"success","is_error":false,"result":"done"}`)
	p2.exit(0)
	if rec.completeCount() != 2 {
		t.Errorf("Expected second turn to complete, got %d completions", rec.completeCount())
	}
}

func TestResendLastMessage(t *testing.T) {
	a, runner, _ := newTestAdapter(t, "claude", Options{})

	if a.ResendLastMessage() {
		t.Error("Expected resend with no prior turn to return false")
	}

	a.SendMessage("hello", "")
	runner.last().exit(0)

	if !a.ResendLastMessage() {
		t.Fatal("Expected resend to relaunch")
	}
	if runner.startCount() != 2 {
		t.Fatalf("Expected 2 launches, got %d", runner.startCount())
	}
	first, second := runner.argv(0), runner.argv(1)
	if first[len(first)-1] != second[len(second)-1] {
		t.Errorf("Expected identical turn text, got %q vs %q", first[len(first)-1], second[len(second)-1])
	}
}

func TestLaunchFailureFailsTurn(t *testing.T) {
	a, runner, rec := newTestAdapter(t, "claude", Options{})
	runner.failNext = errors.New("executable not found")

	if err := a.SendMessage("hello", ""); err == nil {
		t.Fatal("Expected SendMessage to return the launch error")
	}

	if rec.completeCount() != 1 || !rec.lastComplete().IsError {
		t.Error("Expected launch failure to complete the turn as an error")
	}
	if rec.errorCount() != 1 {
		t.Errorf("Expected 1 error event, got %d", rec.errorCount())
	}
	if a.Status() != StatusError {
		t.Errorf("Expected status error, got %s", a.Status())
	}
}

// --- Drip Feed Tests ---

func TestWholeBlockVendorDripsText(t *testing.T) {
	a, runner, rec := newTestAdapter(t, "gemini", Options{DripChunk: 5})

	a.SendMessage("prompt", "")
	p := runner.last()

	if p.stdin() != "prompt" {
		t.Errorf("Expected prompt on stdin, got %q", p.stdin())
	}
	if !p.inputClosed() {
		t.Error("Expected stdin closed after the prompt")
	}

	p.emit(`{"type":"message","role":"assistant","content":"HelloWorld"}`)
	if rec.textJoined() != "" {
		t.Errorf("Expected whole-block text to be queued, got %q", rec.textJoined())
	}

	tickOnce(a)
	if rec.textJoined() != "Hello" {
		t.Errorf("Expected one chunk after a tick, got %q", rec.textJoined())
	}

	// The turn result flushes the queue immediately.
	p.emit(`{"type":"result","status":"success","session_id":"g1"}`)
	if rec.textJoined() != "HelloWorld" {
		t.Errorf("Expected flush on result, got %q", rec.textJoined())
	}

	p.exit(0)
	if rec.completeCount() != 1 {
		t.Fatalf("Expected 1 completion, got %d", rec.completeCount())
	}
	if rec.lastComplete().Text != "HelloWorld" {
		t.Errorf("Expected completion text byte-identical to received, got %q", rec.lastComplete().Text)
	}
}

func TestDripFlushesBeforeToolBlock(t *testing.T) {
	a, runner, rec := newTestAdapter(t, "gemini", Options{DripChunk: 5})

	a.SendMessage("prompt", "")
	p := runner.last()

	p.emit(`{"type":"message","role":"assistant","content":"Running it."}`)
	p.emit(`{"type":"tool_call","name":"run_shell_command","call_id":"c1","args":{"command":"ls"}}`)

	rec.mu.Lock()
	order := append([]string(nil), rec.order...)
	rec.mu.Unlock()

	textIdx, blockIdx := -1, -1
	for i, entry := range order {
		if strings.HasPrefix(entry, "text:") && textIdx == -1 {
			textIdx = i
		}
		if strings.HasPrefix(entry, "block:") {
			blockIdx = i
		}
	}
	if textIdx == -1 || blockIdx == -1 || textIdx > blockIdx {
		t.Errorf("Expected queued text flushed before the tool block, got %v", order)
	}
}

func TestExitFlushesRemainingDrip(t *testing.T) {
	a, runner, rec := newTestAdapter(t, "gemini", Options{DripChunk: 3})

	a.SendMessage("prompt", "")
	p := runner.last()
	p.emit(`{"type":"message","role":"assistant","content":"tail text"}`)
	p.exit(0)

	if rec.textJoined() != "tail text" {
		t.Errorf("Expected exit to flush the queue, got %q", rec.textJoined())
	}
	if rec.lastComplete().Text != "tail text" {
		t.Errorf("Expected completion text %q, got %q", "tail text", rec.lastComplete().Text)
	}
}

// --- Session Lifecycle Tests ---

func TestLifecycleEvents(t *testing.T) {
	a, runner, rec := newTestAdapter(t, "claude", Options{})

	a.SendMessage("hello", "")
	p := runner.last()
	p.emit(`{"type":"system","subtype":"init","session_id":"s1","model":"m"}`)
	p.emit(`{"type":"system","subtype":"compact_boundary"}`)
	p.exit(0)

	a.Dispose()

	rec.mu.Lock()
	kinds := make([]LifecycleKind, 0, len(rec.lifecycle))
	for _, ev := range rec.lifecycle {
		kinds = append(kinds, ev.Kind)
	}
	rec.mu.Unlock()

	want := []LifecycleKind{LifecycleSessionStart, LifecycleCompaction, LifecycleSessionEnd}
	if len(kinds) != len(want) {
		t.Fatalf("Expected lifecycle %v, got %v", want, kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("Lifecycle %d: expected %s, got %s", i, want[i], kinds[i])
		}
	}

	if err := a.SendMessage("again", ""); err == nil {
		t.Error("Expected send on disposed adapter to fail")
	}
}

func TestTokenWarningFiresOnceAtThreshold(t *testing.T) {
	a, runner, rec := newTestAdapter(t, "codex", Options{})

	a.SendMessage("hello", "")
	p := runner.last()

	p.emit(`{"type":"event_msg","payload":{"type":"token_count","input_tokens":100000,"output_tokens":10}}`)
	rec.mu.Lock()
	warned := len(rec.lifecycle)
	rec.mu.Unlock()
	if warned != 0 {
		t.Fatalf("Expected no warning below threshold, got %d", warned)
	}

	// 160000 of 200000 is exactly the 80 percent boundary.
	p.emit(`{"type":"event_msg","payload":{"type":"token_count","input_tokens":160000,"output_tokens":10}}`)
	p.emit(`{"type":"event_msg","payload":{"type":"token_count","input_tokens":170000,"output_tokens":10}}`)

	rec.mu.Lock()
	var warnings []LifecycleEvent
	for _, ev := range rec.lifecycle {
		if ev.Kind == LifecycleTokenWarning {
			warnings = append(warnings, ev)
		}
	}
	rec.mu.Unlock()

	if len(warnings) != 1 {
		t.Fatalf("Expected exactly one token warning, got %d", len(warnings))
	}
	if warnings[0].Used != 160000 || warnings[0].Window != 200000 {
		t.Errorf("Unexpected warning payload: %+v", warnings[0])
	}
}

// --- Spawn Tests ---

func TestSpawnReturnsStableChannelID(t *testing.T) {
	a, _, _ := newTestAdapter(t, "opencode", Options{})

	id1, err := a.Spawn("/work", "big-model")
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if id1 == "" {
		t.Fatal("Expected a channel id")
	}
	id2, _ := a.Spawn("", "")
	if id1 != id2 {
		t.Errorf("Expected stable channel id, got %q then %q", id1, id2)
	}
	if a.Model() != "big-model" {
		t.Errorf("Expected model recorded, got %q", a.Model())
	}
}
