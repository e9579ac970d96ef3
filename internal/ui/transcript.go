// internal/ui/transcript.go
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"switchboard/internal/message"
)

// streamFrames animates the header of a message that is still
// receiving content.
var streamFrames = []string{"", ".", "..", "..."}

// outputFoldAt is how many lines of command or tool output show before
// the rest folds into a count.
const outputFoldAt = 8

// Transcript renders the message list into viewport content.
type Transcript struct {
	width    int
	markdown *glamour.TermRenderer
}

func NewTranscript(width int) *Transcript {
	t := &Transcript{}
	t.SetWidth(width)
	return t
}

// SetWidth resizes the renderer. The markdown renderer is rebuilt since
// its word wrap is fixed at construction.
func (t *Transcript) SetWidth(width int) {
	if width < 20 {
		width = 20
	}
	t.width = width

	// The dark style is explicit: WithAutoStyle falls back to plain in
	// non-TTY environments, and the glamour dark style adds two columns
	// of margin on each side.
	wrap := width - 4
	if wrap < 20 {
		wrap = 20
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStylePath("dark"),
		glamour.WithWordWrap(wrap),
	)
	if err == nil {
		t.markdown = r
	}
}

// Render produces the full transcript. frame advances the streaming
// indicator animation.
func (t *Transcript) Render(msgs []message.Message, frame int) string {
	var sb strings.Builder

	prevAgent := ""
	for i := range msgs {
		m := &msgs[i]
		if m.Role == message.RoleAssistant {
			if prevAgent != "" && m.AgentID != prevAgent {
				sb.WriteString(t.divider(m.AgentID))
				sb.WriteString("\n")
			}
			prevAgent = m.AgentID
		}
		t.renderMessage(&sb, m, frame)
		sb.WriteString("\n")
	}

	return sb.String()
}

// divider marks the transcript switching from one agent to another.
func (t *Transcript) divider(agentID string) string {
	label := " " + formatAgent(agentID) + " "
	rest := t.width - lipgloss.Width(label) - 4
	if rest < 4 {
		rest = 4
	}
	return DimStyle.Render("────") + AgentStyle(agentID).Render(label) + DimStyle.Render(strings.Repeat("─", rest))
}

func (t *Transcript) renderMessage(sb *strings.Builder, m *message.Message, frame int) {
	ts := m.Timestamp.Format("15:04")

	header := fmt.Sprintf("[%s] %s:", ts, formatAgent(m.AgentID))
	style := AgentStyle(m.AgentID)
	switch m.Role {
	case message.RoleUser:
		header = fmt.Sprintf("[%s] You:", ts)
		style = UserStyle
	case message.RoleSystem:
		style = SystemStyle
	}
	sb.WriteString(style.Render(header))
	if m.IsStreaming {
		sb.WriteString(style.Render(streamFrames[frame%len(streamFrames)]))
	} else if m.Model != "" && m.Role == message.RoleAssistant {
		sb.WriteString(DimStyle.Render(" (" + m.Model + ")"))
	}
	sb.WriteString("\n")

	for _, b := range m.Blocks {
		t.renderBlock(sb, b, m.IsStreaming)
	}

	if m.IsStreaming {
		sb.WriteString("  ")
		sb.WriteString(style.Render("▌"))
		sb.WriteString("\n")
	}

	if m.Metrics != nil {
		if line := formatMetrics(m.Metrics); line != "" {
			sb.WriteString("  ")
			sb.WriteString(DimStyle.Render(line))
			sb.WriteString("\n")
		}
	}
}

func (t *Transcript) renderBlock(sb *strings.Builder, b message.ContentBlock, streaming bool) {
	switch b.Type {
	case message.BlockText:
		t.renderText(sb, b.Text, streaming)

	case message.BlockThinking:
		for _, line := range strings.Split(strings.TrimRight(b.Text, "\n"), "\n") {
			sb.WriteString("  ")
			sb.WriteString(ThinkingStyle.Render(line))
			sb.WriteString("\n")
		}

	case message.BlockToolUse:
		head := "⚙ " + b.Tool
		if len(b.Input) > 0 {
			head += " " + t.clip(string(b.Input))
		}
		sb.WriteString("  ")
		sb.WriteString(ToolStyle.Render(t.clip(head)))
		sb.WriteString("\n")
		t.renderOutput(sb, b.Content, b.IsError)

	case message.BlockToolResult:
		t.renderOutput(sb, b.Content, b.IsError)

	case message.BlockBashCommand:
		sb.WriteString("  ")
		sb.WriteString(CommandStyle.Render(t.clip("$ " + b.Command)))
		sb.WriteString("\n")
		t.renderOutput(sb, b.Output, false)
		if b.ExitCode != nil && *b.ExitCode != 0 {
			sb.WriteString("     ")
			sb.WriteString(ErrorStyle.Render(fmt.Sprintf("exit %d", *b.ExitCode)))
			sb.WriteString("\n")
		}

	case message.BlockFileRead:
		t.renderFileOp(sb, "Read", b.Path, b.Content)

	case message.BlockFileWrite:
		t.renderFileOp(sb, "Wrote", b.Path, b.Content)

	case message.BlockFileEdit:
		sb.WriteString("  ")
		sb.WriteString(ToolStyle.Render(t.clip("✎ Edited " + b.Path)))
		sb.WriteString("\n")
		t.renderDiff(sb, b.Diff)

	case message.BlockError:
		sb.WriteString("  ")
		sb.WriteString(ErrorStyle.Render(t.clip("✗ " + b.Message)))
		sb.WriteString("\n")
		if b.Detail != "" {
			sb.WriteString("     ")
			sb.WriteString(DimStyle.Render(t.clip(b.Detail)))
			sb.WriteString("\n")
		}
	}
}

// renderText runs completed text through the markdown renderer. Partial
// markdown mid-stream renders raw; it would flicker through half-closed
// code fences otherwise.
func (t *Transcript) renderText(sb *strings.Builder, text string, streaming bool) {
	if text == "" {
		return
	}
	if !streaming && t.markdown != nil {
		if out, err := t.markdown.Render(text); err == nil {
			sb.WriteString(strings.Trim(out, "\n"))
			sb.WriteString("\n")
			return
		}
	}
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		sb.WriteString("  ")
		sb.WriteString(line)
		sb.WriteString("\n")
	}
}

// renderOutput renders captured tool or command output with the fold
// prefix, keeping the first lines and counting the rest.
func (t *Transcript) renderOutput(sb *strings.Builder, out string, isError bool) {
	out = strings.TrimRight(out, "\n")
	if out == "" {
		return
	}

	style := DimStyle
	if isError {
		style = ErrorStyle
	}

	lines := strings.Split(out, "\n")
	shown := lines
	folded := 0
	if len(lines) > outputFoldAt {
		shown = lines[:outputFoldAt]
		folded = len(lines) - outputFoldAt
	}

	for i, line := range shown {
		prefix := "     "
		if i == 0 {
			prefix = "  ⎿  "
		}
		sb.WriteString(style.Render(prefix + t.fit(line)))
		sb.WriteString("\n")
	}
	if folded > 0 {
		sb.WriteString(DimStyle.Render(fmt.Sprintf("     … +%d lines", folded)))
		sb.WriteString("\n")
	}
}

func (t *Transcript) renderFileOp(sb *strings.Builder, verb, path, content string) {
	head := "→ " + verb + " " + path
	if content != "" {
		head += fmt.Sprintf(" (%d lines)", strings.Count(content, "\n")+1)
	}
	sb.WriteString("  ")
	sb.WriteString(ToolStyle.Render(t.clip(head)))
	sb.WriteString("\n")
}

func (t *Transcript) renderDiff(sb *strings.Builder, diff string) {
	diff = strings.TrimRight(diff, "\n")
	if diff == "" {
		return
	}
	for _, line := range strings.Split(diff, "\n") {
		var style lipgloss.Style
		switch {
		case strings.HasPrefix(line, "+"):
			style = DiffAddStyle
		case strings.HasPrefix(line, "-"):
			style = DiffDelStyle
		default:
			style = DimStyle
		}
		sb.WriteString("     ")
		sb.WriteString(style.Render(t.fit(line)))
		sb.WriteString("\n")
	}
}

// clip truncates a one-line summary to the transcript width.
func (t *Transcript) clip(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return runewidth.Truncate(s, t.width-4, "…")
}

// fit truncates an output line, leaving room for its prefix.
func (t *Transcript) fit(s string) string {
	return runewidth.Truncate(s, t.width-8, "…")
}

func formatMetrics(mt *message.Metrics) string {
	var parts []string
	if mt.InputTokens > 0 || mt.OutputTokens > 0 {
		parts = append(parts, fmt.Sprintf("%d in / %d out", mt.InputTokens, mt.OutputTokens))
	}
	if mt.CostUSD > 0 {
		parts = append(parts, fmt.Sprintf("$%.4f", mt.CostUSD))
	}
	if mt.DurationMS > 0 {
		parts = append(parts, formatElapsed(time.Duration(mt.DurationMS)*time.Millisecond))
	}
	return strings.Join(parts, " | ")
}

// formatElapsed formats a duration in a compact human-readable way.
func formatElapsed(elapsed time.Duration) string {
	if elapsed < time.Second {
		return "<1s"
	}
	if elapsed < time.Minute {
		return fmt.Sprintf("%ds", int(elapsed.Seconds()))
	}
	mins := int(elapsed.Minutes())
	secs := int(elapsed.Seconds()) % 60
	return fmt.Sprintf("%dm%ds", mins, secs)
}
