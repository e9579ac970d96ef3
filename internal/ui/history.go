// internal/ui/history.go
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"switchboard/internal/db"
)

// ViewMode represents the current view state
type ViewMode int

const (
	ViewNormal ViewMode = iota
	ViewHistory
	ViewHelp
)

// HistoryState holds the state for the debate history browser
type HistoryState struct {
	debates   []db.DebateRecord
	cursor    int
	scrollTop int
	maxHeight int
}

// NewHistoryState creates a new history state
func NewHistoryState() *HistoryState {
	return &HistoryState{
		debates:   nil,
		cursor:    0,
		scrollTop: 0,
		maxHeight: 20, // default, will be updated based on terminal size
	}
}

// Up moves the cursor up
func (h *HistoryState) Up() {
	if h.cursor > 0 {
		h.cursor--
		// Adjust scroll if cursor goes above visible area
		if h.cursor < h.scrollTop {
			h.scrollTop = h.cursor
		}
	}
}

// Down moves the cursor down
func (h *HistoryState) Down() {
	if h.cursor < len(h.debates)-1 {
		h.cursor++
		// Adjust scroll if cursor goes below visible area
		if h.cursor >= h.scrollTop+h.maxHeight {
			h.scrollTop = h.cursor - h.maxHeight + 1
		}
	}
}

// Selected returns the currently selected debate, or nil if none
func (h *HistoryState) Selected() *db.DebateRecord {
	if h.cursor >= 0 && h.cursor < len(h.debates) {
		return &h.debates[h.cursor]
	}
	return nil
}

// LoadDebates loads past debates from the database
func (h *HistoryState) LoadDebates(store *db.Store, limit int) error {
	if store == nil {
		return fmt.Errorf("database not available")
	}
	debates, err := store.ListDebates()
	if err != nil {
		return err
	}
	if limit > 0 && len(debates) > limit {
		debates = debates[:limit]
	}
	h.debates = debates
	h.cursor = 0
	h.scrollTop = 0
	return nil
}

// SetMaxHeight updates the max visible height
func (h *HistoryState) SetMaxHeight(height int) {
	h.maxHeight = height - 10 // Leave room for header/footer
	if h.maxHeight < 5 {
		h.maxHeight = 5
	}
}

// Render renders the history browser overlay
func (h *HistoryState) Render(width, height int) string {
	var content strings.Builder

	// Title
	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(Cyan).
		Render("DEBATE HISTORY")
	content.WriteString(title)
	content.WriteString("\n")
	content.WriteString(DimStyle.Render("Select a past debate to review its transcript"))
	content.WriteString("\n\n")

	if len(h.debates) == 0 {
		content.WriteString(DimStyle.Render("No past debates found."))
		content.WriteString("\n\n")
		content.WriteString(DimStyle.Render("Start one with /debate and it will appear here."))
	} else {
		// Calculate visible range
		visibleEnd := h.scrollTop + h.maxHeight
		if visibleEnd > len(h.debates) {
			visibleEnd = len(h.debates)
		}

		// Header row
		header := fmt.Sprintf("  %-8s  %-24s  %-12s  %-20s  %-9s  %s",
			"ID", "Topic", "Mode", "Agents", "Status", "Updated")
		content.WriteString(DimStyle.Render(header))
		content.WriteString("\n")
		content.WriteString(DimStyle.Render(strings.Repeat("-", 86)))
		content.WriteString("\n")

		// Debate rows
		for i := h.scrollTop; i < visibleEnd; i++ {
			d := h.debates[i]

			topic := runewidth.Truncate(d.Topic, 24, "..")
			agents := runewidth.Truncate(d.AgentA+" vs "+d.AgentB, 20, "..")

			// Format time
			timeStr := d.UpdatedAt.Format("2006-01-02 15:04")
			if time.Since(d.UpdatedAt) < 24*time.Hour {
				timeStr = d.UpdatedAt.Format("Today 15:04")
			}

			// Status with color
			var statusStyle lipgloss.Style
			switch d.Status {
			case "running":
				statusStyle = StatusWarn
			case "complete":
				statusStyle = lipgloss.NewStyle().Foreground(Green)
			case "error":
				statusStyle = lipgloss.NewStyle().Foreground(Red)
			case "cancelled":
				statusStyle = DimStyle
			default:
				statusStyle = DimStyle
			}

			// Build the line
			cursor := "  "
			lineStyle := DimStyle
			if i == h.cursor {
				cursor = "> "
				lineStyle = lipgloss.NewStyle().Foreground(Cyan)
			}

			statusStr := statusStyle.Width(9).Render(d.Status)
			line := fmt.Sprintf("%-8s  %-24s  %-12s  %-20s  %s  %s",
				shortID(d.ID), topic, d.Mode, agents, statusStr, timeStr)

			content.WriteString(cursor)
			content.WriteString(lineStyle.Render(line))
			content.WriteString("\n")
		}

		// Scroll indicator
		if len(h.debates) > h.maxHeight {
			scrollInfo := fmt.Sprintf("Showing %d-%d of %d",
				h.scrollTop+1, visibleEnd, len(h.debates))
			content.WriteString("\n")
			content.WriteString(DimStyle.Render(scrollInfo))
		}
	}

	// Footer with keybindings
	content.WriteString("\n\n")
	footer := DimStyle.Render("Up/Down: Navigate | Enter: View transcript | E: Export | Esc: Close")
	content.WriteString(footer)

	// Build the overlay box
	overlayStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(Cyan).
		Padding(1, 2).
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

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
