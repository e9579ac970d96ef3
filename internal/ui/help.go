// internal/ui/help.go
package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Help overlay content and rendering

var (
	// Help section title style
	helpTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Cyan).
			MarginBottom(1)

	// Help section header style
	helpSectionStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(Yellow).
				MarginTop(1)

	// Help key style (for keybindings)
	helpKeyStyle = lipgloss.NewStyle().
			Foreground(Green).
			Bold(true)

	// Help command style (for slash commands)
	helpCmdStyle = lipgloss.NewStyle().
			Foreground(Magenta)

	// Help description style
	helpDescStyle = lipgloss.NewStyle().
			Foreground(White)

	// Help dim style (for secondary info)
	helpDimStyle = lipgloss.NewStyle().
			Foreground(Dim)

	// Status indicator styles for help
	helpStatusOK   = lipgloss.NewStyle().Foreground(Green).Bold(true)
	helpStatusWarn = lipgloss.NewStyle().Foreground(Orange).Bold(true)
	helpStatusDim  = lipgloss.NewStyle().Foreground(Dim)
	helpStatusErr  = lipgloss.NewStyle().Foreground(Red).Bold(true)
)

// HelpContent returns the formatted help overlay content
func HelpContent(width, height int) string {
	var content strings.Builder

	// Title
	title := helpTitleStyle.Render("SWITCHBOARD HELP")
	content.WriteString(title)
	content.WriteString("\n\n")

	// Keybindings section
	content.WriteString(helpSectionStyle.Render("KEYBINDINGS"))
	content.WriteString("\n\n")

	keybindings := []struct {
		key  string
		desc string
	}{
		{"Enter", "Send the input to the focused agent"},
		{"Ctrl+J", "Insert a newline in the input"},
		{"Tab", "Cycle input focus to the next agent"},
		{"PgUp/PgDn", "Scroll the transcript"},
		{"Mouse wheel", "Scroll the transcript"},
		{"F1", "Toggle this help overlay"},
		{"Esc", "Close help / history overlay"},
		{"Ctrl+C", "Quit Switchboard"},
	}

	for _, kb := range keybindings {
		key := helpKeyStyle.Width(14).Render(kb.key)
		desc := helpDescStyle.Render(kb.desc)
		content.WriteString("  " + key + "  " + desc + "\n")
	}

	// Slash commands section
	content.WriteString("\n")
	content.WriteString(helpSectionStyle.Render("SLASH COMMANDS"))
	content.WriteString("\n\n")

	commands := []struct {
		cmd  string
		desc string
	}{
		{"/agent <id>", "Switch the input to another agent"},
		{"/model <name>", "Override the focused agent's model"},
		{"/debate <mode> <a> <b> [rounds] <topic>", "Start a two-agent debate"},
		{"/cancel [agent]", "Cancel the debate, or kill one agent's turn"},
		{"/retry [agent]", "Resend the focused agent's last message"},
		{"/file <path>", "Attach a file to the next prompt"},
		{"/dir <path>", "Attach a directory summary to the next prompt"},
		{"/history [n]", "Browse past debates"},
		{"/export [debate-id]", "Export a debate to markdown"},
		{"/clear", "Clear the transcript"},
		{"/quit", "Exit"},
	}

	for _, cmd := range commands {
		cmdStr := helpCmdStyle.Width(42).Render(cmd.cmd)
		desc := helpDescStyle.Render(cmd.desc)
		content.WriteString("  " + cmdStr + "  " + desc + "\n")
	}

	// Agent status indicators section
	content.WriteString("\n")
	content.WriteString(helpSectionStyle.Render("AGENT STATUS INDICATORS"))
	content.WriteString("\n\n")

	indicators := []struct {
		symbol string
		style  lipgloss.Style
		desc   string
	}{
		{"●", helpStatusOK, "Idle - Agent is available and waiting"},
		{"●", helpStatusWarn, "Running - Agent is working on a turn"},
		{"○", helpStatusDim, "Stopped - Agent's last turn was killed"},
		{"✗", helpStatusErr, "Error - Agent's last turn failed"},
		{"◉", helpStatusErr, "Breaker open - Too many consecutive failures, retries disabled"},
	}

	for _, ind := range indicators {
		symbol := ind.style.Width(3).Render(ind.symbol)
		desc := helpDescStyle.Render(ind.desc)
		content.WriteString("  " + symbol + "  " + desc + "\n")
	}

	// Debate modes section
	content.WriteString("\n")
	content.WriteString(helpSectionStyle.Render("DEBATE MODES"))
	content.WriteString("\n\n")

	protocol := []string{
		"A debate runs two agents against one topic and ends with agent A",
		"synthesizing both positions into a verdict.",
		"",
		"side_by_side  Both agents answer the topic independently",
		"sequential    Agent A answers, agent B reviews A's answer",
		"multi_round   Opening round, then N-1 rebuttal rounds",
		"",
		"Transient failures retry automatically with backoff; /cancel",
		"stops a debate between steps.",
	}

	for _, line := range protocol {
		if line == "" {
			content.WriteString("\n")
		} else {
			content.WriteString("  " + helpDimStyle.Render(line) + "\n")
		}
	}

	// Footer
	content.WriteString("\n")
	footer := helpDimStyle.Render("Press F1 or Esc to close this help")
	content.WriteString(lipgloss.PlaceHorizontal(width-8, lipgloss.Center, footer))

	// Build the overlay box
	overlayStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(Cyan).
		Padding(1, 3).
		MaxWidth(width - 10).
		MaxHeight(height - 4)

	return lipgloss.Place(
		width,
		height,
		lipgloss.Center,
		lipgloss.Center,
		overlayStyle.Render(content.String()),
	)
}

// renderHelp renders the help overlay (called from app.go)
func (m Model) renderHelp() string {
	return HelpContent(m.width, m.height)
}
