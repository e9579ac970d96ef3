// internal/adapter/adapter.go
// Package adapter owns one agent CLI's per-turn subprocess lifecycle:
// launch, stream, normalize, complete. A single generic Adapter is
// driven by a per-vendor Strategy; nothing outside the strategy table
// tells vendors apart.
package adapter

import (
	"fmt"
	"log"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"switchboard/internal/message"
	"switchboard/internal/protocol"
	"switchboard/internal/stream"
)

// debug gates raw protocol logging, too noisy for normal runs.
var debug = os.Getenv("SWITCHBOARD_DEBUG") != ""

// Status is an adapter's lifecycle state.
type Status int

const (
	StatusIdle Status = iota
	StatusStarting
	StatusRunning
	StatusError
	StatusStopped
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusStarting:
		return "starting"
	case StatusRunning:
		return "running"
	case StatusError:
		return "error"
	case StatusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// LifecycleKind identifies a session-level event.
type LifecycleKind string

const (
	LifecycleSessionStart LifecycleKind = "session_start"
	LifecycleSessionEnd   LifecycleKind = "session_end"
	LifecycleCompaction   LifecycleKind = "compaction"
	LifecycleTokenWarning LifecycleKind = "token_warning"
)

// LifecycleEvent is delivered to OnLifecycle subscribers.
type LifecycleEvent struct {
	Kind      LifecycleKind
	SessionID string
	Model     string
	Used      int // token_warning only
	Window    int // token_warning only
}

// Completion is delivered to OnComplete subscribers, exactly once per
// started turn.
type Completion struct {
	Text    string
	IsError bool
	Metrics *message.Metrics
}

// TurnError is delivered to OnError subscribers when a turn fails.
type TurnError struct {
	Err      string
	ExitCode int
}

// DefaultDripTick is the drain interval for whole-block vendors.
const DefaultDripTick = 50 * time.Millisecond

// Options configures one adapter instance.
type Options struct {
	AgentID    string // defaults to the vendor id
	Vendor     string
	Binary     string // overrides the vendor's default binary
	Model      string
	WorkDir    string
	AutoAccept bool

	// Drip tuning for whole-block vendors.
	DripChunk int
	DripTick  time.Duration
}

// Adapter drives one agent CLI. Each user turn is a fresh subprocess;
// session continuity uses the vendor's own resume mechanism with an id
// captured from its first response.
//
// Callbacks run serialized on the adapter's dispatch path. They must
// not call SendMessage, ResendLastMessage, Kill or Dispose
// synchronously; hand off to a goroutine or timer instead.
type Adapter struct {
	opts     Options
	strategy Strategy
	runner   Runner
	id       string
	binary   string

	// cbMu serializes callback dispatch and is always acquired before
	// mu when both are needed.
	cbMu sync.Mutex

	mu           sync.Mutex
	status       Status
	channelID    string
	sessionID    string
	model        string
	workDir      string
	proc         Proc
	parser       *stream.LineParser
	textDrip     *stream.Drip
	thinkingDrip *stream.Drip
	dripStop     chan struct{}

	turnSeq     int
	completed   bool
	killed      bool
	disposed    bool
	result      *protocol.TurnResult
	streamErr   string
	accText     strings.Builder
	stderrBuf   strings.Builder
	turnMetrics *message.Metrics
	tokenWarned bool

	lastText  string
	lastModel string
	hasLast   bool

	onLifecycle      []func(LifecycleEvent)
	onContentBlock   []func(message.ContentBlock)
	onStreamText     []func(string)
	onStreamThinking []func(string)
	onToolResult     []func(message.ContentBlock)
	onComplete       []func(Completion)
	onError          []func(TurnError)
	onStatus         []func(from, to Status)
}

// New builds an adapter for a vendor. A nil runner gets the exec-backed
// default.
func New(opts Options, runner Runner) (*Adapter, error) {
	strat, ok := StrategyFor(opts.Vendor)
	if !ok {
		return nil, fmt.Errorf("unknown vendor %q", opts.Vendor)
	}
	if opts.AgentID == "" {
		opts.AgentID = opts.Vendor
	}
	if opts.DripChunk <= 0 {
		opts.DripChunk = stream.DefaultDripChunk
	}
	if opts.DripTick <= 0 {
		opts.DripTick = DefaultDripTick
	}
	binary := opts.Binary
	if binary == "" {
		binary = strat.Caps.Binary
	}
	if runner == nil {
		runner = NewExecRunner()
	}

	a := &Adapter{
		opts:     opts,
		strategy: strat,
		runner:   runner,
		id:       opts.AgentID,
		binary:   binary,
		model:    opts.Model,
		workDir:  opts.WorkDir,
		parser:   stream.NewLineParser(),
		status:   StatusIdle,
	}
	if !strat.Caps.StreamsDeltas {
		a.textDrip = stream.NewDrip(opts.DripChunk)
		a.thinkingDrip = stream.NewDrip(opts.DripChunk)
	}
	return a, nil
}

func (a *Adapter) ID() string     { return a.id }
func (a *Adapter) Vendor() string { return a.strategy.Vendor }

func (a *Adapter) Caps() protocol.Capabilities { return a.strategy.Caps }

func (a *Adapter) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

func (a *Adapter) SessionID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sessionID
}

func (a *Adapter) Model() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.model
}

// --- callback registration ---

func (a *Adapter) OnLifecycle(fn func(LifecycleEvent)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onLifecycle = append(a.onLifecycle, fn)
}

func (a *Adapter) OnContentBlock(fn func(message.ContentBlock)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onContentBlock = append(a.onContentBlock, fn)
}

func (a *Adapter) OnStreamText(fn func(string)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onStreamText = append(a.onStreamText, fn)
}

func (a *Adapter) OnStreamThinking(fn func(string)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onStreamThinking = append(a.onStreamThinking, fn)
}

func (a *Adapter) OnToolResult(fn func(message.ContentBlock)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onToolResult = append(a.onToolResult, fn)
}

func (a *Adapter) OnComplete(fn func(Completion)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onComplete = append(a.onComplete, fn)
}

func (a *Adapter) OnError(fn func(TurnError)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onError = append(a.onError, fn)
}

func (a *Adapter) OnStatus(fn func(from, to Status)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onStatus = append(a.onStatus, fn)
}

// --- lifecycle ---

// Spawn prepares the adapter. No subprocess is launched here; these
// CLIs are invoked fresh per turn.
func (a *Adapter) Spawn(cwd, model string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.disposed {
		return "", fmt.Errorf("adapter %s is disposed", a.id)
	}
	if cwd != "" {
		a.workDir = cwd
	}
	if model != "" {
		a.model = model
	}
	if a.channelID == "" {
		a.channelID = uuid.NewString()
	}
	return a.channelID, nil
}

// SendMessage starts a new turn: tears down any previous subprocess,
// builds the vendor argv (resuming the captured session on later
// turns) and launches.
func (a *Adapter) SendMessage(text, model string) error {
	return a.send(text, model)
}

// ResendLastMessage re-invokes the last turn verbatim. Returns false
// when there is no prior turn or the relaunch fails.
func (a *Adapter) ResendLastMessage() bool {
	a.mu.Lock()
	text, model, ok := a.lastText, a.lastModel, a.hasLast
	a.mu.Unlock()
	if !ok {
		return false
	}
	if err := a.send(text, model); err != nil {
		log.Printf("[adapter] %s resend failed: %v", a.id, err)
		return false
	}
	return true
}

func (a *Adapter) send(text, model string) error {
	a.cbMu.Lock()
	a.mu.Lock()

	if a.disposed {
		a.mu.Unlock()
		a.cbMu.Unlock()
		return fmt.Errorf("adapter %s is disposed", a.id)
	}

	var batch []func()

	// Tear down a still-running previous turn and finish its message
	// before the replacement begins.
	if old := a.proc; old != nil {
		a.proc = nil
		old.Kill()
		if !a.completed {
			batch = a.flushDripsLocked(batch)
			a.completed = true
			batch = append(batch, calls(a.onComplete, Completion{
				Text:    a.accText.String(),
				IsError: false,
				Metrics: a.turnMetrics,
			})...)
		}
	}
	a.stopDripLocked()

	a.turnSeq++
	seq := a.turnSeq
	a.completed = false
	a.killed = false
	a.result = nil
	a.streamErr = ""
	a.accText.Reset()
	a.stderrBuf.Reset()
	a.turnMetrics = nil
	a.parser.Reset()
	a.resetDripsLocked()

	if model == "" {
		model = a.model
	} else {
		a.model = model
	}
	a.lastText, a.lastModel, a.hasLast = text, model, true

	req := TurnRequest{
		Text:       text,
		Model:      model,
		SessionID:  a.sessionID,
		AutoAccept: a.opts.AutoAccept,
	}
	args := a.strategy.BuildArgs(req)
	binary := a.binary
	dir := a.workDir
	resuming := req.SessionID != ""
	batch = a.setStatusLocked(batch, StatusStarting)
	a.mu.Unlock()

	for _, fn := range batch {
		fn()
	}

	proc, err := a.runner.Start(ProcSpec{
		Binary:   binary,
		Args:     args,
		Dir:      dir,
		OnStdout: func(p []byte) { a.handleStdout(seq, p) },
		OnStderr: func(p []byte) { a.handleStderr(seq, p) },
		OnExit:   func(code int) { a.handleExit(seq, code) },
	})
	if err != nil {
		a.mu.Lock()
		var fail []func()
		errText := fmt.Sprintf("failed to launch %s: %v", binary, err)
		fail = append(fail, calls(a.onContentBlock, message.NewError(errText, ""))...)
		fail = append(fail, calls(a.onError, TurnError{Err: errText, ExitCode: -1})...)
		fail = a.setStatusLocked(fail, StatusError)
		a.completed = true
		fail = append(fail, calls(a.onComplete, Completion{IsError: true})...)
		a.mu.Unlock()
		for _, fn := range fail {
			fn()
		}
		a.cbMu.Unlock()
		return fmt.Errorf("launch %s: %w", a.id, err)
	}

	a.mu.Lock()
	a.proc = proc
	var running []func()
	running = a.setStatusLocked(running, StatusRunning)
	if !a.strategy.Caps.StreamsDeltas {
		a.startDripLocked(seq)
	}
	viaStdin := a.strategy.PromptViaStdin
	a.mu.Unlock()
	for _, fn := range running {
		fn()
	}
	a.cbMu.Unlock()

	if viaStdin {
		if werr := proc.Write([]byte(text)); werr != nil {
			log.Printf("[adapter] %s stdin write failed: %v", a.id, werr)
		}
	}
	proc.CloseInput()

	log.Printf("[adapter] %s turn %d started (model=%s resume=%v)", a.id, seq, model, resuming)
	return nil
}

// Kill terminates the active subprocess. The turn's completion is
// still emitted when the exit arrives; no error is synthesized for a
// kill.
func (a *Adapter) Kill() {
	a.cbMu.Lock()
	defer a.cbMu.Unlock()

	a.mu.Lock()
	proc := a.proc
	a.proc = nil
	var batch []func()
	if proc != nil {
		a.killed = true
		batch = a.setStatusLocked(batch, StatusStopped)
	}
	a.stopDripLocked()
	a.mu.Unlock()

	if proc != nil {
		proc.Kill()
	}
	for _, fn := range batch {
		fn()
	}
}

// Dispose kills the subprocess and releases every registration.
func (a *Adapter) Dispose() {
	a.Kill()

	a.cbMu.Lock()
	defer a.cbMu.Unlock()

	a.mu.Lock()
	var batch []func()
	if !a.disposed && a.sessionID != "" {
		batch = append(batch, calls(a.onLifecycle, LifecycleEvent{
			Kind:      LifecycleSessionEnd,
			SessionID: a.sessionID,
			Model:     a.model,
		})...)
	}
	a.disposed = true
	a.onLifecycle = nil
	a.onContentBlock = nil
	a.onStreamText = nil
	a.onStreamThinking = nil
	a.onToolResult = nil
	a.onComplete = nil
	a.onError = nil
	a.onStatus = nil
	a.mu.Unlock()

	for _, fn := range batch {
		fn()
	}
}

// --- stream handling ---

func (a *Adapter) handleStdout(seq int, chunk []byte) {
	a.cbMu.Lock()
	defer a.cbMu.Unlock()

	a.mu.Lock()
	if seq != a.turnSeq || a.completed {
		a.mu.Unlock()
		return
	}
	var batch []func()
	for _, raw := range a.parser.Feed(chunk) {
		if debug {
			log.Printf("[adapter] %s <- %s", a.id, raw)
		}
		batch = a.applyEventsLocked(batch, a.strategy.Parse(raw))
	}
	a.mu.Unlock()

	for _, fn := range batch {
		fn()
	}
}

func (a *Adapter) handleStderr(seq int, chunk []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if seq != a.turnSeq || a.completed {
		return
	}
	if a.stderrBuf.Len() < maxStderrBytes {
		a.stderrBuf.Write(chunk)
	}
}

func (a *Adapter) handleExit(seq int, code int) {
	a.cbMu.Lock()
	defer a.cbMu.Unlock()

	a.mu.Lock()
	if seq != a.turnSeq || a.completed {
		a.mu.Unlock()
		return
	}

	var batch []func()
	// Subprocesses do not always terminate the last line.
	for _, raw := range a.parser.Flush() {
		batch = a.applyEventsLocked(batch, a.strategy.Parse(raw))
	}
	batch = a.flushDripsLocked(batch)
	a.stopDripLocked()

	res := a.result
	killed := a.killed
	text := a.accText.String()
	if text == "" && res != nil {
		text = res.Text
	}
	metrics := a.turnMetrics

	isError := false
	switch {
	case killed:
		// Stopped on request; not a failure.
	case res == nil && code != 0:
		isError = true
		errText := a.streamErr
		detail := truncate(stripANSI(a.stderrBuf.String()), maxErrDetail)
		if errText == "" {
			errText = fmt.Sprintf("%s exited with code %d", a.strategy.Vendor, code)
			batch = append(batch, calls(a.onContentBlock, message.NewError(errText, detail))...)
		}
		evText := errText
		if detail != "" {
			evText = errText + ": " + detail
		}
		batch = append(batch, calls(a.onError, TurnError{Err: evText, ExitCode: code})...)
	case res != nil && res.IsError:
		isError = true
		errText := res.Text
		if errText == "" {
			errText = a.streamErr
		}
		if errText == "" {
			errText = "turn failed"
		}
		if res.Text != "" || a.streamErr == "" {
			batch = append(batch, calls(a.onContentBlock, message.NewError(errText, ""))...)
		}
		batch = append(batch, calls(a.onError, TurnError{Err: errText, ExitCode: code})...)
	}

	a.completed = true
	a.proc = nil

	switch {
	case killed:
		batch = a.setStatusLocked(batch, StatusStopped)
	case isError:
		batch = a.setStatusLocked(batch, StatusError)
	default:
		batch = a.setStatusLocked(batch, StatusIdle)
	}

	batch = append(batch, calls(a.onComplete, Completion{
		Text:    text,
		IsError: isError,
		Metrics: metrics,
	})...)
	a.mu.Unlock()

	for _, fn := range batch {
		fn()
	}
	log.Printf("[adapter] %s turn %d finished (exit=%d error=%v)", a.id, seq, code, isError)
}

// --- event application ---

func (a *Adapter) applyEventsLocked(batch []func(), events []protocol.ParsedEvent) []func() {
	for _, ev := range events {
		batch = a.applyEventLocked(batch, ev)
	}
	return batch
}

func (a *Adapter) applyEventLocked(batch []func(), ev protocol.ParsedEvent) []func() {
	if ev.Metrics != nil {
		a.mergeMetricsLocked(ev.Metrics)
		batch = a.tokenWarningLocked(batch)
	}

	switch ev.Kind {
	case protocol.KindInit:
		if ev.Model != "" {
			a.model = ev.Model
		}
		batch = a.captureSessionLocked(batch, ev.SessionID)

	case protocol.KindTextDelta:
		if ev.Text == "" {
			break
		}
		a.accText.WriteString(ev.Text)
		if a.textDrip != nil {
			a.textDrip.Add(ev.Text)
		} else {
			batch = append(batch, calls(a.onStreamText, ev.Text)...)
		}

	case protocol.KindThinkingDelta:
		if ev.Text == "" {
			break
		}
		if a.thinkingDrip != nil {
			a.thinkingDrip.Add(ev.Text)
		} else {
			batch = append(batch, calls(a.onStreamThinking, ev.Text)...)
		}

	case protocol.KindToolUse:
		// Queued prose must land before the tool block it precedes.
		batch = a.flushDripsLocked(batch)
		batch = append(batch, calls(a.onContentBlock, ev.Block)...)

	case protocol.KindToolResult:
		batch = a.flushDripsLocked(batch)
		batch = append(batch, calls(a.onToolResult, ev.Block)...)

	case protocol.KindResult:
		if ev.Result == nil {
			break
		}
		batch = a.flushDripsLocked(batch)
		batch = a.captureSessionLocked(batch, ev.SessionID)
		res := *ev.Result
		a.result = &res
		if res.Metrics != nil {
			a.mergeMetricsLocked(res.Metrics)
			batch = a.tokenWarningLocked(batch)
		}

	case protocol.KindCompaction:
		batch = append(batch, calls(a.onLifecycle, LifecycleEvent{
			Kind:      LifecycleCompaction,
			SessionID: a.sessionID,
			Model:     a.model,
		})...)

	case protocol.KindError:
		if ev.Err == "" {
			break
		}
		a.streamErr = ev.Err
		batch = a.flushDripsLocked(batch)
		batch = append(batch, calls(a.onContentBlock, message.NewError(ev.Err, ""))...)
	}

	return batch
}

func (a *Adapter) captureSessionLocked(batch []func(), id string) []func() {
	if id == "" || id == a.sessionID {
		return batch
	}
	a.sessionID = id
	a.tokenWarned = false
	return append(batch, calls(a.onLifecycle, LifecycleEvent{
		Kind:      LifecycleSessionStart,
		SessionID: id,
		Model:     a.model,
	})...)
}

func (a *Adapter) mergeMetricsLocked(m *message.Metrics) {
	if a.turnMetrics == nil {
		cp := *m
		a.turnMetrics = &cp
		return
	}
	if m.InputTokens > 0 {
		a.turnMetrics.InputTokens = m.InputTokens
	}
	if m.OutputTokens > 0 {
		a.turnMetrics.OutputTokens = m.OutputTokens
	}
	if m.CostUSD > 0 {
		a.turnMetrics.CostUSD = m.CostUSD
	}
	if m.DurationMS > 0 {
		a.turnMetrics.DurationMS = m.DurationMS
	}
}

func (a *Adapter) tokenWarningLocked(batch []func()) []func() {
	if a.tokenWarned || a.turnMetrics == nil {
		return batch
	}
	window := a.strategy.Caps.ContextWindow
	used := a.turnMetrics.InputTokens
	if window <= 0 || used*100 < window*80 {
		return batch
	}
	a.tokenWarned = true
	return append(batch, calls(a.onLifecycle, LifecycleEvent{
		Kind:      LifecycleTokenWarning,
		SessionID: a.sessionID,
		Model:     a.model,
		Used:      used,
		Window:    window,
	})...)
}

func (a *Adapter) flushDripsLocked(batch []func()) []func() {
	if a.thinkingDrip != nil {
		if tail := a.thinkingDrip.FlushAll(); tail != "" {
			batch = append(batch, calls(a.onStreamThinking, tail)...)
		}
	}
	if a.textDrip != nil {
		if tail := a.textDrip.FlushAll(); tail != "" {
			batch = append(batch, calls(a.onStreamText, tail)...)
		}
	}
	return batch
}

func (a *Adapter) resetDripsLocked() {
	if a.textDrip != nil {
		a.textDrip.FlushAll()
	}
	if a.thinkingDrip != nil {
		a.thinkingDrip.FlushAll()
	}
}

func (a *Adapter) setStatusLocked(batch []func(), to Status) []func() {
	if a.status == to {
		return batch
	}
	from := a.status
	a.status = to
	for _, fn := range a.onStatus {
		batch = append(batch, func() { fn(from, to) })
	}
	return batch
}

// --- drip ticker ---

func (a *Adapter) startDripLocked(seq int) {
	stop := make(chan struct{})
	a.dripStop = stop
	go a.dripLoop(seq, stop)
}

func (a *Adapter) stopDripLocked() {
	if a.dripStop != nil {
		close(a.dripStop)
		a.dripStop = nil
	}
}

func (a *Adapter) dripLoop(seq int, stop chan struct{}) {
	ticker := time.NewTicker(a.opts.DripTick)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			a.dripTick(seq)
		}
	}
}

func (a *Adapter) dripTick(seq int) {
	a.cbMu.Lock()
	defer a.cbMu.Unlock()

	a.mu.Lock()
	if seq != a.turnSeq || a.completed {
		a.mu.Unlock()
		return
	}
	var batch []func()
	if a.thinkingDrip != nil {
		if chunk := a.thinkingDrip.DrainTick(); chunk != "" {
			batch = append(batch, calls(a.onStreamThinking, chunk)...)
		}
	}
	if a.textDrip != nil {
		if chunk := a.textDrip.DrainTick(); chunk != "" {
			batch = append(batch, calls(a.onStreamText, chunk)...)
		}
	}
	a.mu.Unlock()

	for _, fn := range batch {
		fn()
	}
}

// calls freezes one callback list and argument into invocations.
func calls[T any](fns []func(T), v T) []func() {
	out := make([]func(), 0, len(fns))
	for _, fn := range fns {
		out = append(out, func() { fn(v) })
	}
	return out
}

const (
	maxStderrBytes = 16 * 1024
	maxErrDetail   = 2000
)

var ansiRE = regexp.MustCompile(`\x1b\[[0-9;?]*[A-Za-z]`)

func stripANSI(s string) string {
	return ansiRE.ReplaceAllString(s, "")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
