// internal/protocol/diff.go
package protocol

import (
	"fmt"
	"strings"
)

// unifiedDiff synthesizes a unified diff for a single-file edit given
// the before and after strings. Vendors report edits as old/new text
// pairs rather than patches, so the diff shown to the user is built
// here: common leading and trailing lines are trimmed and the changed
// middle becomes one hunk.
func unifiedDiff(path, before, after string) string {
	if before == after {
		return ""
	}

	oldLines := splitDiffLines(before)
	newLines := splitDiffLines(after)

	prefix := 0
	for prefix < len(oldLines) && prefix < len(newLines) && oldLines[prefix] == newLines[prefix] {
		prefix++
	}

	suffix := 0
	for suffix < len(oldLines)-prefix && suffix < len(newLines)-prefix &&
		oldLines[len(oldLines)-1-suffix] == newLines[len(newLines)-1-suffix] {
		suffix++
	}

	removed := oldLines[prefix : len(oldLines)-suffix]
	added := newLines[prefix : len(newLines)-suffix]

	oldStart := prefix + 1
	if len(removed) == 0 {
		oldStart = prefix
	}
	newStart := prefix + 1
	if len(added) == 0 {
		newStart = prefix
	}

	if path == "" {
		path = "file"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "--- a/%s\n", path)
	fmt.Fprintf(&sb, "+++ b/%s\n", path)
	fmt.Fprintf(&sb, "@@ -%d,%d +%d,%d @@\n", oldStart, len(removed), newStart, len(added))
	for _, l := range removed {
		sb.WriteString("-")
		sb.WriteString(l)
		sb.WriteString("\n")
	}
	for _, l := range added {
		sb.WriteString("+")
		sb.WriteString(l)
		sb.WriteString("\n")
	}
	return sb.String()
}

// splitDiffLines splits on newlines without manufacturing a trailing
// empty line for newline-terminated input.
func splitDiffLines(s string) []string {
	if s == "" {
		return nil
	}
	s = strings.TrimSuffix(s, "\n")
	return strings.Split(s, "\n")
}
