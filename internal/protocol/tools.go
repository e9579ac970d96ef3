// internal/protocol/tools.go
package protocol

import (
	"encoding/json"
	"path/filepath"
	"strings"

	"switchboard/internal/message"
)

// toolInput is the superset of input fields the vendors use for their
// file and shell tools. Each vendor names them differently; first
// non-empty alias wins.
type toolInput struct {
	Path     string `json:"path"`
	FilePath string `json:"file_path"`
	File     string `json:"file"`

	Content string `json:"content"`

	OldString string `json:"old_string"`
	OldStr    string `json:"old_str"`
	Before    string `json:"before"`

	NewString string `json:"new_string"`
	NewStr    string `json:"new_str"`
	After     string `json:"after"`

	Command json.RawMessage `json:"command"`
}

// MapTool specializes a vendor tool invocation into the content block
// vocabulary by matching well-known tool names. Unrecognized tools fall
// back to a generic tool_use block. This table is the main seam of
// vendor-specific knowledge; everything downstream is uniform.
func MapTool(name, id string, input json.RawMessage) message.ContentBlock {
	var in toolInput
	if len(input) > 0 {
		_ = json.Unmarshal(input, &in)
	}

	var b message.ContentBlock
	switch strings.ToLower(name) {
	case "edit", "edit_file", "apply_patch", "replace":
		path := firstNonEmpty(in.FilePath, in.Path, in.File)
		before := firstNonEmpty(in.OldString, in.OldStr, in.Before)
		after := firstNonEmpty(in.NewString, in.NewStr, in.After)
		b = message.NewFileEdit(path, unifiedDiff(path, before, after), languageForPath(path))

	case "write", "write_file", "create_file":
		path := firstNonEmpty(in.FilePath, in.Path, in.File)
		b = message.NewFileWrite(path, in.Content)

	case "read", "read_file", "cat":
		path := firstNonEmpty(in.FilePath, in.Path, in.File)
		b = message.NewFileRead(path, "")

	case "bash", "shell", "exec", "run_command", "run_shell_command":
		b = message.NewBashCommand(commandString(in.Command))

	default:
		b = message.NewToolUse(id, name, input)
	}

	b.ToolID = id
	return b
}

// commandString renders a tool's command input, which arrives either
// as a plain string or as an argv array.
func commandString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var argv []string
	if err := json.Unmarshal(raw, &argv); err == nil {
		return strings.Join(argv, " ")
	}
	return string(raw)
}

// flattenContent renders a tool result's content, which arrives either
// as a plain string or as an array of typed text parts.
func flattenContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var parts []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &parts); err == nil {
		var sb strings.Builder
		for _, p := range parts {
			sb.WriteString(p.Text)
		}
		return sb.String()
	}
	return string(raw)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

var extLanguages = map[string]string{
	".go":   "go",
	".js":   "javascript",
	".jsx":  "javascript",
	".ts":   "typescript",
	".tsx":  "typescript",
	".py":   "python",
	".rs":   "rust",
	".rb":   "ruby",
	".java": "java",
	".c":    "c",
	".h":    "c",
	".cpp":  "cpp",
	".sh":   "bash",
	".md":   "markdown",
	".json": "json",
	".yaml": "yaml",
	".yml":  "yaml",
	".toml": "toml",
	".sql":  "sql",
	".html": "html",
	".css":  "css",
}

func languageForPath(path string) string {
	return extLanguages[strings.ToLower(filepath.Ext(path))]
}
