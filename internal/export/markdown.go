// internal/export/markdown.go
// Renders a finished debate to a markdown file under the debates
// directory, transcript and verdict included.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"switchboard/internal/db"
	"switchboard/internal/message"
	"switchboard/internal/verdict"
)

// Render generates the markdown document for one debate.
func Render(rec db.DebateRecord, messages []db.MessageRecord) string {
	var sb strings.Builder

	sb.WriteString("# Debate: ")
	sb.WriteString(rec.Topic)
	sb.WriteString("\n\n")

	sb.WriteString("---\n\n")
	sb.WriteString(fmt.Sprintf("**ID:** `%s`\n\n", rec.ID))
	sb.WriteString(fmt.Sprintf("**Mode:** %s\n\n", rec.Mode))
	sb.WriteString(fmt.Sprintf("**Agents:** %s vs %s\n\n", formatAgent(rec.AgentA), formatAgent(rec.AgentB)))
	sb.WriteString(fmt.Sprintf("**Rounds:** %d\n\n", rec.Rounds))
	sb.WriteString(fmt.Sprintf("**Created:** %s\n\n", rec.CreatedAt.Format("2006-01-02 15:04:05")))
	sb.WriteString(fmt.Sprintf("**Status:** %s\n\n", rec.Status))
	sb.WriteString("---\n\n")

	sb.WriteString("## Transcript\n\n")
	for i, msg := range messages {
		ts := msg.CreatedAt.Format("15:04:05")
		sb.WriteString(fmt.Sprintf("### [%s] %s\n\n", ts, messageTitle(msg)))

		for _, b := range msg.Blocks {
			sb.WriteString(renderBlock(b))
		}

		if i < len(messages)-1 {
			sb.WriteString("---\n\n")
		}
	}

	if rec.Verdict != "" {
		sb.WriteString("\n## Verdict\n\n")
		v := verdict.Parse(rec.Verdict)
		if v.HasSections() {
			for _, s := range v.Sections() {
				sb.WriteString("### ")
				sb.WriteString(s.Title)
				sb.WriteString("\n\n")
				sb.WriteString(s.Body)
				sb.WriteString("\n\n")
			}
		} else {
			sb.WriteString(v.Raw)
			sb.WriteString("\n\n")
		}
	}

	sb.WriteString("\n---\n\n")
	sb.WriteString(fmt.Sprintf("*Exported from Switchboard on %s*\n", time.Now().Format("2006-01-02 15:04:05")))

	return sb.String()
}

// Write renders the debate and writes it to
// <baseDir>/debates/YYYY-MM-DD-<topic>.md, returning the path.
func Write(rec db.DebateRecord, messages []db.MessageRecord, baseDir string) (string, error) {
	datePart := rec.CreatedAt.Format("2006-01-02")
	namePart := sanitizeFilename(rec.Topic)
	filename := fmt.Sprintf("%s-%s.md", datePart, namePart)

	debatesDir := filepath.Join(baseDir, "debates")
	if err := os.MkdirAll(debatesDir, 0755); err != nil {
		return "", fmt.Errorf("create debates directory: %w", err)
	}

	path := filepath.Join(debatesDir, filename)
	content := Render(rec, messages)

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}

	return path, nil
}

// messageTitle labels a transcript entry. Prompts the switchboard sent on
// the operator's behalf are marked as such; agent replies carry the agent
// name and model.
func messageTitle(msg db.MessageRecord) string {
	if msg.Role == "user" {
		return fmt.Sprintf("Prompt → %s", formatAgent(msg.AgentID))
	}
	name := formatAgent(msg.AgentID)
	if msg.Model != "" {
		return fmt.Sprintf("%s (%s)", name, msg.Model)
	}
	return name
}

// renderBlock converts one content block to markdown. Text is passed
// through untouched since the agents already speak markdown.
func renderBlock(b message.ContentBlock) string {
	switch b.Type {
	case message.BlockText:
		return strings.TrimSpace(b.Text) + "\n\n"
	case message.BlockThinking:
		return quote(strings.TrimSpace(b.Text)) + "\n"
	case message.BlockToolUse:
		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("**Tool:** `%s`\n\n", b.Tool))
		if len(b.Input) > 0 {
			sb.WriteString("```json\n")
			sb.WriteString(strings.TrimSpace(string(b.Input)))
			sb.WriteString("\n```\n\n")
		}
		return sb.String()
	case message.BlockToolResult:
		if b.Content == "" {
			return ""
		}
		label := "Result"
		if b.IsError {
			label = "Result (error)"
		}
		return fmt.Sprintf("**%s:**\n\n```\n%s\n```\n\n", label, strings.TrimSpace(b.Content))
	case message.BlockFileRead:
		return fmt.Sprintf("**Read:** `%s`\n\n", b.Path)
	case message.BlockFileWrite:
		return fmt.Sprintf("**Wrote:** `%s`\n\n", b.Path)
	case message.BlockFileEdit:
		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("**Edited:** `%s`\n\n", b.Path))
		if b.Diff != "" {
			sb.WriteString("```diff\n")
			sb.WriteString(strings.TrimSpace(b.Diff))
			sb.WriteString("\n```\n\n")
		}
		return sb.String()
	case message.BlockBashCommand:
		var sb strings.Builder
		sb.WriteString("```bash\n$ ")
		sb.WriteString(b.Command)
		sb.WriteString("\n```\n\n")
		if b.Output != "" {
			sb.WriteString("```\n")
			sb.WriteString(strings.TrimSpace(b.Output))
			sb.WriteString("\n```\n\n")
		}
		return sb.String()
	case message.BlockError:
		return fmt.Sprintf("**Error:** %s\n\n", b.Message)
	default:
		return ""
	}
}

// quote renders text as a markdown blockquote.
func quote(text string) string {
	var sb strings.Builder
	for _, line := range strings.Split(text, "\n") {
		sb.WriteString("> ")
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return sb.String()
}

// formatAgent returns a display name for an agent id.
func formatAgent(id string) string {
	switch id {
	case "claude":
		return "Claude"
	case "gemini":
		return "Gemini"
	case "codex":
		return "Codex"
	case "opencode":
		return "OpenCode"
	default:
		return id
	}
}

// sanitizeFilename removes or replaces characters unsuitable for filenames.
func sanitizeFilename(name string) string {
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, " ", "-")

	var sb strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
			sb.WriteRune(r)
		case r >= '0' && r <= '9':
			sb.WriteRune(r)
		case r == '-' || r == '_':
			sb.WriteRune(r)
		}
	}

	result := sb.String()
	for strings.Contains(result, "--") {
		result = strings.ReplaceAll(result, "--", "-")
	}
	result = strings.Trim(result, "-")

	if result == "" {
		result = "debate"
	}
	if len(result) > 50 {
		result = result[:50]
	}

	return result
}
