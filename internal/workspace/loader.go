// internal/workspace/loader.go
// Loads files and directory trees for inclusion in agent turn prompts.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// MaxFileSize caps how much of a file is ever loaded into a prompt (1MB).
const MaxFileSize = 1 << 20

// maxTreeDepth caps directory recursion for summaries.
const maxTreeDepth = 3

var (
	ErrTooLarge  = errors.New("file too large")
	ErrSensitive = errors.New("access to sensitive path denied")
)

// Load reads a file or summarizes a directory and formats the result for
// embedding in a turn prompt. It is the entry point for /file and /dir.
func Load(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}

	if err := ValidatePath(abs); err != nil {
		return "", err
	}

	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("failed to stat path: %w", err)
	}

	if info.IsDir() {
		return SummarizeDir(abs)
	}

	content, err := LoadFile(abs)
	if err != nil {
		return "", err
	}
	return FormatFile(abs, content), nil
}

// LoadFile reads raw file content, enforcing the size cap.
func LoadFile(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}

	if err := ValidatePath(abs); err != nil {
		return "", err
	}

	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("failed to stat file: %w", err)
	}

	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", abs)
	}

	if info.Size() > MaxFileSize {
		return "", fmt.Errorf("%w (%d bytes, max %d)", ErrTooLarge, info.Size(), MaxFileSize)
	}

	content, err := os.ReadFile(abs)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	return string(content), nil
}

// FormatFile wraps file content in delimiters the agents can anchor on.
// Source files get line numbers so an agent can reference exact lines.
func FormatFile(path, content string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("=== File: %s ===\n", path))

	if isCodeFile(path) {
		lines := strings.Split(content, "\n")
		for i, line := range lines {
			sb.WriteString(fmt.Sprintf("%4d | %s\n", i+1, line))
		}
	} else {
		sb.WriteString(content)
		if !strings.HasSuffix(content, "\n") {
			sb.WriteString("\n")
		}
	}

	sb.WriteString(fmt.Sprintf("=== End: %s ===\n", filepath.Base(path)))
	return sb.String()
}

// SummarizeDir returns a tree rendering of a directory, hidden files and
// build artifacts skipped.
func SummarizeDir(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}

	if err := ValidatePath(abs); err != nil {
		return "", err
	}

	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("failed to stat path: %w", err)
	}

	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", abs)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("=== Directory: %s ===\n", abs))

	if err := walkTree(abs, "", &sb, 0); err != nil {
		return "", err
	}

	return sb.String(), nil
}

func walkTree(path, prefix string, sb *strings.Builder, depth int) error {
	if depth > maxTreeDepth {
		sb.WriteString(prefix + "  ...\n")
		return nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return err
	}

	// Directories first, then files, each group alphabetical.
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir() != entries[j].IsDir() {
			return entries[i].IsDir()
		}
		return entries[i].Name() < entries[j].Name()
	})

	var visible []os.DirEntry
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") || skipDir(name) {
			continue
		}
		visible = append(visible, e)
	}

	for i, entry := range visible {
		isLast := i == len(visible)-1
		connector := "|-"
		if isLast {
			connector = "`-"
		}

		name := entry.Name()
		if entry.IsDir() {
			name += "/"
		}

		sb.WriteString(fmt.Sprintf("%s%s %s\n", prefix, connector, name))

		if entry.IsDir() {
			childPrefix := prefix + "  "
			if !isLast {
				childPrefix = prefix + "| "
			}
			if err := walkTree(filepath.Join(path, entry.Name()), childPrefix, sb, depth+1); err != nil {
				// Keep going past unreadable subtrees.
				sb.WriteString(childPrefix + "  (error reading)\n")
			}
		}
	}

	return nil
}

// ValidatePath rejects nonexistent paths and paths that look like they hold
// credentials. Everything loaded here ends up in a prompt sent to an
// external CLI, so secrets must never pass through.
func ValidatePath(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}

	if _, err := os.Stat(abs); os.IsNotExist(err) {
		return fmt.Errorf("path does not exist: %s", abs)
	} else if err != nil {
		return fmt.Errorf("cannot access path: %w", err)
	}

	if isSensitivePath(abs) {
		return fmt.Errorf("%w: %s", ErrSensitive, abs)
	}

	return nil
}

func isCodeFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	codeExts := map[string]bool{
		".go":    true,
		".py":    true,
		".js":    true,
		".ts":    true,
		".jsx":   true,
		".tsx":   true,
		".rs":    true,
		".c":     true,
		".h":     true,
		".cpp":   true,
		".java":  true,
		".rb":    true,
		".sh":    true,
		".bash":  true,
		".yaml":  true,
		".yml":   true,
		".json":  true,
		".toml":  true,
		".sql":   true,
		".swift": true,
		".kt":    true,
		".scala": true,
		".zig":   true,
	}
	return codeExts[ext]
}

func skipDir(name string) bool {
	skipped := map[string]bool{
		"node_modules": true,
		"vendor":       true,
		"__pycache__":  true,
		"target":       true,
		"build":        true,
		"dist":         true,
		"bin":          true,
		"venv":         true,
	}
	return skipped[name]
}

func isSensitivePath(path string) bool {
	sensitive := []string{
		"/.ssh/",
		"/.gnupg/",
		"/.aws/",
		"/.config/gcloud",
		"/etc/shadow",
		"/.netrc",
		"/.npmrc",
		"/credentials",
		"/secrets",
		"/.env",
		".pem",
		".key",
		"id_rsa",
		"id_ed25519",
		"id_ecdsa",
	}

	lower := strings.ToLower(path)
	for _, s := range sensitive {
		if strings.Contains(lower, s) {
			return true
		}
	}

	return false
}
