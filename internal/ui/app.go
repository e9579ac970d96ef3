// internal/ui/app.go
// The program loop. One transcript viewport over the shared message
// store, a status bar covering every agent, and a textarea whose input
// goes to the focused agent unless it is a slash command.
package ui

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"switchboard/internal/adapter"
	"switchboard/internal/bus"
	"switchboard/internal/commands"
	"switchboard/internal/db"
	"switchboard/internal/debate"
	"switchboard/internal/export"
	"switchboard/internal/retry"
	"switchboard/internal/telemetry"
	"switchboard/internal/verdict"
	"switchboard/internal/workspace"
)

// noticeFor is how long a transient status-bar notice stays visible.
const noticeFor = 5 * time.Second

// Deps are the wired components the UI drives. DB may be nil; the rest
// must be set.
type Deps struct {
	Bus          *bus.Bus
	Registry     *adapter.Registry
	Retry        *retry.Manager
	Debates      *debate.Orchestrator
	DB           *db.Store
	Store        *Store
	Telemetry    *telemetry.Client
	ExportDir    string
	DebateRounds int // round count for /debate multi_round when omitted
}

// busEventMsg wraps a bus event for the program loop. The store has
// already applied it; the loop only re-renders.
type busEventMsg bus.Event

type tickMsg time.Time

// waitForEvent blocks on the store's wakeup channel.
func waitForEvent(ch <-chan bus.Event) tea.Cmd {
	return func() tea.Msg {
		return busEventMsg(<-ch)
	}
}

func tick() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

type Model struct {
	deps Deps

	width, height int
	ready         bool

	input      textarea.Model
	viewport   viewport.Model
	spin       spinner.Model
	transcript *Transcript

	focus   string            // agent receiving plain input
	models  map[string]string // per-agent model override from /model
	pending []string          // attachments for the next prompt

	view    ViewMode
	history *HistoryState

	debateID string // active debate session, if any
	frame    int    // streaming indicator animation frame

	notice   string
	noticeAt time.Time
}

func New(deps Deps) Model {
	ta := textarea.New()
	ta.Placeholder = "Message the focused agent, /help for commands"
	ta.ShowLineNumbers = false
	ta.CharLimit = 0
	ta.SetHeight(3)
	ta.KeyMap.InsertNewline = key.NewBinding(key.WithKeys("ctrl+j"))
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = lipgloss.NewStyle().Foreground(Orange)

	focus := ""
	if ids := deps.Registry.IDs(); len(ids) > 0 {
		focus = ids[0]
	}

	return Model{
		deps:       deps,
		input:      ta,
		viewport:   viewport.New(80, 20),
		spin:       sp,
		transcript: NewTranscript(80),
		focus:      focus,
		models:     make(map[string]string),
		history:    NewHistoryState(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		m.spin.Tick,
		waitForEvent(m.deps.Store.Events()),
		tick(),
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.ready = true
		m.layout()
		m.refresh()
		return m, nil

	case busEventMsg:
		m.handleBusEvent(bus.Event(msg))
		m.refresh()
		return m, waitForEvent(m.deps.Store.Events())

	case tickMsg:
		m.pollDebate()
		if m.deps.Store.Streaming() {
			m.frame++
			m.refresh()
		}
		return m, tick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}

	switch m.view {
	case ViewHelp:
		switch msg.String() {
		case "esc", "f1", "q":
			m.view = ViewNormal
		}
		return m, nil

	case ViewHistory:
		switch msg.String() {
		case "esc", "q":
			m.view = ViewNormal
		case "up", "k":
			m.history.Up()
		case "down", "j":
			m.history.Down()
		case "enter":
			if d := m.history.Selected(); d != nil {
				if err := m.deps.Store.LoadDebate(*d); err != nil {
					m.setNotice(err.Error())
				} else {
					m.view = ViewNormal
					m.refresh()
					m.viewport.GotoTop()
				}
			}
		case "e":
			if d := m.history.Selected(); d != nil {
				m.exportDebate(d.ID)
				m.view = ViewNormal
				m.refresh()
			}
		}
		return m, nil
	}

	switch msg.String() {
	case "f1":
		m.view = ViewHelp
		return m, nil

	case "tab":
		m.cycleFocus()
		return m, nil

	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case "enter":
		text := strings.TrimSpace(m.input.Value())
		if text == "" {
			return m, nil
		}
		m.input.Reset()
		return m.submit(text)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit routes one line of input: slash commands execute, anything
// else becomes a turn for the focused agent.
func (m Model) submit(text string) (tea.Model, tea.Cmd) {
	if cmd := commands.Parse(text); cmd != nil {
		return m.execCommand(cmd)
	}
	m.sendPrompt(text)
	m.refresh()
	return m, nil
}

func (m *Model) sendPrompt(text string) {
	if m.focus == "" {
		m.setNotice("no agent enabled")
		return
	}
	a := m.deps.Registry.Get(m.focus)
	if a == nil {
		m.setNotice("unknown agent: " + m.focus)
		return
	}

	full := text
	if len(m.pending) > 0 {
		full = strings.Join(m.pending, "\n\n") + "\n\n" + text
		m.pending = nil
	}

	m.deps.Store.AddUser(m.focus, text)
	if err := a.SendMessage(full, m.models[m.focus]); err != nil {
		// The adapter already put the failure in the transcript.
		m.setNotice(err.Error())
	}
}

func (m Model) execCommand(cmd commands.Command) (tea.Model, tea.Cmd) {
	switch c := cmd.(type) {
	case commands.Help:
		m.view = ViewHelp

	case commands.FocusAgent:
		if m.deps.Registry.Get(c.AgentID) == nil {
			m.setNotice("unknown agent: " + c.AgentID)
			break
		}
		m.focus = c.AgentID
		m.setNotice("input goes to " + formatAgent(c.AgentID))

	case commands.SetModel:
		if m.focus == "" {
			m.setNotice("no agent focused")
			break
		}
		m.models[m.focus] = c.Model
		m.setNotice(fmt.Sprintf("%s model set to %s", formatAgent(m.focus), c.Model))

	case commands.StartDebate:
		m.startDebate(c)

	case commands.Cancel:
		m.cancel(c.AgentID)

	case commands.Retry:
		id := c.AgentID
		if id == "" {
			id = m.focus
		}
		a := m.deps.Registry.Get(id)
		if a == nil {
			m.setNotice("unknown agent: " + id)
			break
		}
		if !a.ResendLastMessage() {
			m.setNotice(formatAgent(id) + " has nothing to resend")
		}

	case commands.LoadFile:
		m.attach(c.Path, workspace.Load)

	case commands.LoadDir:
		m.attach(c.Path, workspace.SummarizeDir)

	case commands.ShowHistory:
		if err := m.history.LoadDebates(m.deps.DB, c.Limit); err != nil {
			m.setNotice(err.Error())
			break
		}
		m.history.SetMaxHeight(m.height)
		m.view = ViewHistory

	case commands.Export:
		m.exportDebate(c.DebateID)

	case commands.Clear:
		m.deps.Store.Clear()
		m.deps.Bus.Clear()

	case commands.Quit:
		return m, tea.Quit

	case commands.ParseError:
		m.setNotice(c.Message)
	}

	m.refresh()
	return m, nil
}

func (m *Model) attach(path string, load func(string) (string, error)) {
	out, err := load(path)
	if err != nil {
		m.deps.Store.AddSystem("attach: " + err.Error())
		return
	}
	m.pending = append(m.pending, out)
	m.deps.Store.AddSystem(fmt.Sprintf("Attached %s to the next prompt", path))
}

func (m *Model) startDebate(c commands.StartDebate) {
	if m.debateID != "" {
		m.setNotice("a debate is already running; /cancel it first")
		return
	}

	rounds := c.Rounds
	if rounds == 0 && debate.Mode(c.Mode) == debate.ModeMultiRound {
		rounds = m.deps.DebateRounds
	}

	s, err := m.deps.Debates.Start(debate.Config{
		Mode:   debate.Mode(c.Mode),
		AgentA: c.AgentA,
		AgentB: c.AgentB,
		Rounds: rounds,
		Topic:  c.Topic,
		ModelA: m.models[c.AgentA],
		ModelB: m.models[c.AgentB],
	})
	if err != nil {
		m.deps.Store.AddSystem("debate: " + err.Error())
		return
	}

	m.debateID = s.ID()
	m.deps.Store.SetDebate(s.ID())
	if m.deps.DB != nil {
		err := m.deps.DB.CreateDebate(db.DebateRecord{
			ID:     s.ID(),
			Topic:  c.Topic,
			Mode:   c.Mode,
			AgentA: c.AgentA,
			AgentB: c.AgentB,
			Rounds: len(s.Rounds()),
			Status: debate.SessionRunning,
		})
		if err != nil {
			log.Printf("[ui] record debate: %v", err)
		}
	}
	m.deps.Telemetry.DebateStarted(s.ID(), c.Topic, c.Mode)
	m.deps.Store.AddSystem(fmt.Sprintf("Debate started (%s): %s vs %s on %q",
		c.Mode, formatAgent(c.AgentA), formatAgent(c.AgentB), c.Topic))
}

func (m *Model) cancel(agentID string) {
	switch {
	case agentID != "":
		a := m.deps.Registry.Get(agentID)
		if a == nil {
			m.setNotice("unknown agent: " + agentID)
			return
		}
		a.Kill()
		m.deps.Store.AddSystem(fmt.Sprintf("Killed %s's turn", formatAgent(agentID)))
	case m.debateID != "":
		m.deps.Debates.Cancel(m.debateID)
		// pollDebate announces the outcome once the session settles.
	default:
		m.setNotice("nothing to cancel")
	}
}

// pollDebate watches the active debate for completion. The orchestrator
// runs on its own goroutine; the session is the shared handle.
func (m *Model) pollDebate() {
	if m.debateID == "" {
		return
	}
	s := m.deps.Debates.Session(m.debateID)
	if s == nil {
		m.debateID = ""
		m.deps.Store.SetDebate("")
		return
	}

	status := s.Status()
	if status == debate.SessionRunning {
		return
	}

	m.debateID = ""
	m.deps.Store.SetDebate("")

	verdictText := ""
	switch status {
	case debate.SessionComplete:
		text, _ := s.Synthesis()
		verdictText = text
		v := verdict.Parse(text)
		if v.HasSections() {
			m.deps.Store.AddSystem("Debate complete. Verdict parsed; /export to save it.")
		} else {
			m.deps.Store.AddSystem("Debate complete. Synthesis kept as a single summary; /export to save it.")
		}
	case debate.SessionCancelled:
		m.deps.Store.AddSystem("Debate cancelled.")
	case debate.SessionError:
		m.deps.Store.AddSystem("Debate failed: " + s.Err())
	}

	if m.deps.DB != nil {
		if err := m.deps.DB.UpdateDebateStatus(s.ID(), status, verdictText); err != nil {
			log.Printf("[ui] update debate: %v", err)
		}
	}
	m.deps.Telemetry.DebateFinished(s.ID(), status)
	m.refresh()
}

func (m *Model) exportDebate(debateID string) {
	if m.deps.DB == nil {
		m.deps.Store.AddSystem("export: history database not available")
		return
	}
	if debateID == "" {
		recent, err := m.deps.DB.ListDebates()
		if err != nil || len(recent) == 0 {
			m.deps.Store.AddSystem("export: no debates recorded yet")
			return
		}
		debateID = recent[0].ID
	}

	rec, err := m.deps.DB.GetDebate(debateID)
	if err != nil {
		m.deps.Store.AddSystem("export: " + err.Error())
		return
	}
	msgs, err := m.deps.DB.MessagesForDebate(rec.ID)
	if err != nil {
		m.deps.Store.AddSystem("export: " + err.Error())
		return
	}
	path, err := export.Write(*rec, msgs, m.deps.ExportDir)
	if err != nil {
		m.deps.Store.AddSystem("export: " + err.Error())
		return
	}
	m.deps.Store.AddSystem("Exported debate to " + path)
}

func (m *Model) cycleFocus() {
	ids := m.deps.Registry.IDs()
	if len(ids) == 0 {
		return
	}
	next := 0
	for i, id := range ids {
		if id == m.focus {
			next = (i + 1) % len(ids)
			break
		}
	}
	m.focus = ids[next]
	m.setNotice("input goes to " + formatAgent(m.focus))
}

// handleBusEvent covers the pieces of Model state that come from the
// bus rather than the store.
func (m *Model) handleBusEvent(ev bus.Event) {
	switch ev.Type {
	case bus.TypeError:
		if p, ok := ev.Payload.(bus.ErrorPayload); ok {
			m.setNotice(fmt.Sprintf("%s: %s", formatAgent(ev.AgentID), clipNotice(p.Err)))
		}
	case bus.TypeTokenWarning:
		if p, ok := ev.Payload.(bus.TokenPayload); ok {
			m.setNotice(fmt.Sprintf("%s context at %s of %s tokens",
				formatAgent(ev.AgentID), formatTokens(p.Used), formatTokens(p.Window)))
		}
	}
}

func (m *Model) setNotice(text string) {
	m.notice = text
	m.noticeAt = time.Now()
}

func (m *Model) layout() {
	m.input.SetWidth(m.width - 2)

	vh := m.height - 5 // title, status bar and a three-line input
	if vh < 3 {
		vh = 3
	}
	m.viewport.Width = m.width
	m.viewport.Height = vh
	m.viewport.MouseWheelEnabled = true

	m.transcript.SetWidth(m.width)
	m.history.SetMaxHeight(m.height)
}

// refresh rebuilds the viewport from the store. Scroll position sticks
// to the bottom only if it was there already.
func (m *Model) refresh() {
	if !m.ready {
		return
	}
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(m.transcript.Render(m.deps.Store.Snapshot(), m.frame))
	if atBottom {
		m.viewport.GotoBottom()
	}
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	switch m.view {
	case ViewHelp:
		return m.renderHelp()
	case ViewHistory:
		return m.history.Render(m.width, m.height)
	}

	var b strings.Builder
	b.WriteString(m.renderTitle())
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.renderStatus())
	b.WriteString("\n")
	b.WriteString(m.input.View())
	return b.String()
}

func (m Model) renderTitle() string {
	title := TitleStyle.Render("SWITCHBOARD")
	info := DimStyle.Render(fmt.Sprintf("  %d agents | F1 help", m.deps.Registry.Count()))
	return title + info
}

func (m Model) renderStatus() string {
	var segs []string
	for _, a := range m.deps.Registry.All() {
		segs = append(segs, m.renderAgentStatus(a))
	}
	left := strings.Join(segs, DimStyle.Render("  |  "))
	right := m.renderStatusRight()

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		return left
	}
	return left + strings.Repeat(" ", gap) + right
}

func (m Model) renderAgentStatus(a *adapter.Adapter) string {
	id := a.ID()
	st := a.Status()
	breakerOpen := m.deps.Retry.BreakerOpen(id)

	var ind string
	switch {
	case breakerOpen:
		ind = StatusCrit.Render("◉")
	case st == adapter.StatusStarting || st == adapter.StatusRunning:
		ind = StatusWarn.Render("●")
	case st == adapter.StatusError:
		ind = StatusCrit.Render("✗")
	case st == adapter.StatusStopped:
		ind = DimStyle.Render("○")
	default:
		ind = StatusOK.Render("●")
	}

	name := formatAgent(id)
	if id == m.focus {
		name = "[" + name + "]"
	}
	seg := ind + " " + AgentStyle(id).Render(name)

	if st == adapter.StatusStarting || st == adapter.StatusRunning {
		seg += " " + m.spin.View()
		if d, ok := m.deps.Store.TurnElapsed(id); ok {
			seg += " " + DimStyle.Render(formatElapsed(d))
		}
	}
	if rs, ok := m.deps.Retry.State(id); ok && rs.IsRetrying {
		seg += " " + StatusWarn.Render(fmt.Sprintf("retry %d", rs.Attempt))
	}
	if breakerOpen {
		seg += " " + StatusCrit.Render("breaker open")
	}
	if tp, ok := m.deps.Store.TokenStatus(id); ok {
		seg += " " + StatusWarn.Render(fmt.Sprintf("⚠ %s/%s", formatTokens(tp.Used), formatTokens(tp.Window)))
	}
	return seg
}

func (m Model) renderStatusRight() string {
	if m.notice != "" && time.Since(m.noticeAt) < noticeFor {
		return SystemStyle.Render(clipNotice(m.notice))
	}
	if m.debateID != "" {
		if s := m.deps.Debates.Session(m.debateID); s != nil {
			rounds := s.Rounds()
			for _, r := range rounds {
				if r.Status != debate.RoundComplete {
					return StatusWarn.Render(fmt.Sprintf("debate round %d/%d: %s",
						r.Number, len(rounds), r.Status))
				}
			}
			return StatusWarn.Render("debate: synthesizing")
		}
	}
	if n := len(m.pending); n > 0 {
		return DimStyle.Render(fmt.Sprintf("%d attachment(s) pending", n))
	}
	return ""
}

func clipNotice(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > 80 {
		return s[:80] + "..."
	}
	return s
}

func formatTokens(n int) string {
	if n >= 1000 {
		return fmt.Sprintf("%dk", n/1000)
	}
	return fmt.Sprintf("%d", n)
}
