// internal/guardian/guardian.go
// Destructive-command detection for agent tool use.
package guardian

import (
	"regexp"
	"strings"

	"switchboard/internal/message"
)

// DestructivePatterns are patterns that indicate potentially destructive operations.
var DestructivePatterns = []string{
	// File operations
	`rm\s+-rf`,
	`rm\s+.*-r`,
	`find\s+.*-delete`,
	`dd\s+.*of=/dev/`,
	`mkfs`,

	// Git operations
	`git\s+push\s+--force`,
	`git\s+push\s+-f`,
	`git\s+reset\s+--hard`,
	`git\s+clean\s+-[a-z]*f`,
	`git\s+branch\s+-D`,

	// Database operations
	`DROP\s+TABLE`,
	`DROP\s+DATABASE`,
	`TRUNCATE`,
	`DELETE\s+FROM.*WHERE\s+1\s*=\s*1`,
	`DELETE\s+FROM\s+\w+\s*;`, // DELETE without WHERE

	// Service operations
	`systemctl\s+stop`,
	`systemctl\s+disable`,
	`kill\s+-9`,
	`pkill`,
	`shutdown`,

	// Permission operations
	`chmod\s+777`,
	`chmod\s+-R\s+777`,
	`chown.*root`,
}

var destructiveRegexes []*regexp.Regexp

func init() {
	destructiveRegexes = make([]*regexp.Regexp, len(DestructivePatterns))
	for i, pattern := range DestructivePatterns {
		destructiveRegexes[i] = regexp.MustCompile("(?i)" + pattern)
	}
}

// Guardian flags destructive shell commands in agent output. It never
// blocks anything itself; callers surface the warnings and the operator
// decides whether to interrupt the agent.
type Guardian struct {
	enabled bool
}

// New creates a new Guardian instance.
func New() *Guardian {
	return &Guardian{enabled: true}
}

// SetEnabled enables or disables Guardian detection.
func (g *Guardian) SetEnabled(enabled bool) {
	g.enabled = enabled
}

// IsEnabled returns whether Guardian detection is active.
func (g *Guardian) IsEnabled() bool {
	return g.enabled
}

// DetectDestructive checks if the content contains potentially destructive operations.
func (g *Guardian) DetectDestructive(content string) []string {
	if !g.enabled {
		return nil
	}

	var matches []string
	seen := make(map[string]bool)

	for i, re := range destructiveRegexes {
		if re.MatchString(content) {
			pattern := DestructivePatterns[i]
			if !seen[pattern] {
				matches = append(matches, pattern)
				seen[pattern] = true
			}
		}
	}

	return matches
}

// ScanBlock inspects a single content block for destructive commands.
// Only blocks that carry something an agent is about to run are scanned:
// bash commands and raw tool input. Text, thinking and file blocks pass
// through untouched so code that merely mentions a command does not trip
// the detector.
func (g *Guardian) ScanBlock(b message.ContentBlock) []string {
	if !g.enabled {
		return nil
	}

	switch b.Type {
	case message.BlockBashCommand:
		return g.DetectDestructive(b.Command)
	case message.BlockToolUse:
		return g.DetectDestructive(string(b.Input))
	default:
		return nil
	}
}

// ScanBlocks inspects a slice of content blocks and returns the union of
// detected patterns, deduplicated, in first-seen order.
func (g *Guardian) ScanBlocks(blocks []message.ContentBlock) []string {
	var all []string
	seen := make(map[string]bool)

	for _, b := range blocks {
		for _, p := range g.ScanBlock(b) {
			if !seen[p] {
				all = append(all, p)
				seen[p] = true
			}
		}
	}

	return all
}

// FormatWarning creates a warning message for destructive operations.
func FormatWarning(agentID string, patterns []string) string {
	var sb strings.Builder
	sb.WriteString("⚠️ GUARDIAN: ")
	sb.WriteString(agentID)
	sb.WriteString(" is running a potentially destructive command\n\n")
	sb.WriteString("Detected patterns:\n")
	for _, p := range patterns {
		sb.WriteString("  • ")
		sb.WriteString(p)
		sb.WriteString("\n")
	}
	sb.WriteString("\nReview the command above. Use /cancel ")
	sb.WriteString(agentID)
	sb.WriteString(" to stop the agent if this is not what you intended.")
	return sb.String()
}
