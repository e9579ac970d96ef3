// internal/ui/styles.go
package ui

import "github.com/charmbracelet/lipgloss"

var (
	// Colors
	Cyan     = lipgloss.Color("#00FFFF")
	Green    = lipgloss.Color("#00FF00")
	Yellow   = lipgloss.Color("#FFD700")
	Orange   = lipgloss.Color("#FFA500")
	Red      = lipgloss.Color("#FF6B6B")
	Magenta  = lipgloss.Color("#FF00FF")
	SkyBlue  = lipgloss.Color("#87CEEB")
	Dim      = lipgloss.Color("#555555")
	White    = lipgloss.Color("#FFFFFF")
	DarkGray = lipgloss.Color("#333333")

	// Agent colors
	ClaudeColor   = Cyan
	GeminiColor   = Magenta
	CodexColor    = Green
	OpencodeColor = Orange
	UserColor     = SkyBlue
	SystemColor   = Yellow

	// Text styles
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Cyan)

	UserStyle = lipgloss.NewStyle().
			Foreground(SkyBlue).
			Bold(true)

	SystemStyle = lipgloss.NewStyle().
			Foreground(Yellow)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(Red).
			Bold(true)

	DimStyle = lipgloss.NewStyle().
			Foreground(Dim)

	ThinkingStyle = lipgloss.NewStyle().
			Foreground(Dim).
			Italic(true)

	ToolStyle = lipgloss.NewStyle().
			Foreground(Yellow)

	CommandStyle = lipgloss.NewStyle().
			Foreground(Green).
			Bold(true)

	DiffAddStyle = lipgloss.NewStyle().
			Foreground(Green)

	DiffDelStyle = lipgloss.NewStyle().
			Foreground(Red)

	// Status indicators
	StatusOK   = lipgloss.NewStyle().Foreground(Green).Bold(true)
	StatusWarn = lipgloss.NewStyle().Foreground(Orange).Bold(true)
	StatusCrit = lipgloss.NewStyle().Foreground(Red).Bold(true)
)

// AgentStyle returns the style for a given agent ID
func AgentStyle(agentID string) lipgloss.Style {
	switch agentID {
	case "claude":
		return lipgloss.NewStyle().Foreground(ClaudeColor).Bold(true)
	case "gemini":
		return lipgloss.NewStyle().Foreground(GeminiColor).Bold(true)
	case "codex":
		return lipgloss.NewStyle().Foreground(CodexColor).Bold(true)
	case "opencode":
		return lipgloss.NewStyle().Foreground(OpencodeColor).Bold(true)
	case "user":
		return UserStyle
	case "system":
		return SystemStyle
	default:
		return lipgloss.NewStyle().Foreground(White)
	}
}

// AgentColor returns the color for a given agent ID
func AgentColor(agentID string) lipgloss.Color {
	switch agentID {
	case "claude":
		return ClaudeColor
	case "gemini":
		return GeminiColor
	case "codex":
		return CodexColor
	case "opencode":
		return OpencodeColor
	case "user":
		return SkyBlue
	case "system":
		return Yellow
	default:
		return White
	}
}

// formatAgent maps an agent ID to its display name.
func formatAgent(agentID string) string {
	switch agentID {
	case "claude":
		return "Claude"
	case "gemini":
		return "Gemini"
	case "codex":
		return "Codex"
	case "opencode":
		return "OpenCode"
	case "user":
		return "You"
	case "system":
		return "System"
	default:
		return agentID
	}
}
