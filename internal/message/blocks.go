// internal/message/blocks.go
package message

import "encoding/json"

// BlockType identifies one variant of the content block union.
type BlockType string

const (
	BlockText        BlockType = "text"
	BlockThinking    BlockType = "thinking"
	BlockToolUse     BlockType = "tool_use"
	BlockToolResult  BlockType = "tool_result"
	BlockFileRead    BlockType = "file_read"
	BlockFileWrite   BlockType = "file_write"
	BlockFileEdit    BlockType = "file_edit"
	BlockBashCommand BlockType = "bash_command"
	BlockError       BlockType = "error"
)

// ContentBlock is one unit of normalized agent output. It is a tagged
// union on Type; each variant uses only the fields that apply to it.
// Blocks are immutable once constructed: later data (a deferred tool
// result, a command's output) is merged by building a replacement block
// with the WithX helpers, never by mutating in place.
type ContentBlock struct {
	Type BlockType `json:"type"`

	// text, thinking
	Text string `json:"text,omitempty"`

	// tool_use
	ToolID string          `json:"tool_id,omitempty"`
	Tool   string          `json:"tool,omitempty"`
	Input  json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`

	// file_read, file_write, file_edit
	Path     string `json:"path,omitempty"`
	Diff     string `json:"diff,omitempty"`
	Language string `json:"language,omitempty"`

	// bash_command
	Command  string `json:"command,omitempty"`
	Output   string `json:"output,omitempty"`
	ExitCode *int   `json:"exit_code,omitempty"`

	// error
	Message string `json:"message,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// NewText builds a text block.
func NewText(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

// NewThinking builds a thinking (reasoning) block.
func NewThinking(text string) ContentBlock {
	return ContentBlock{Type: BlockThinking, Text: text}
}

// NewToolUse builds a generic tool invocation block.
func NewToolUse(id, tool string, input json.RawMessage) ContentBlock {
	return ContentBlock{Type: BlockToolUse, ToolID: id, Tool: tool, Input: input}
}

// NewToolResult builds a tool result block answering a prior tool_use.
func NewToolResult(toolUseID, content string, isError bool) ContentBlock {
	return ContentBlock{Type: BlockToolResult, ToolUseID: toolUseID, Content: content, IsError: isError}
}

// NewFileRead builds a file read block.
func NewFileRead(path, content string) ContentBlock {
	return ContentBlock{Type: BlockFileRead, Path: path, Content: content}
}

// NewFileWrite builds a file write block.
func NewFileWrite(path, content string) ContentBlock {
	return ContentBlock{Type: BlockFileWrite, Path: path, Content: content}
}

// NewFileEdit builds a file edit block carrying a unified diff.
func NewFileEdit(path, diff, language string) ContentBlock {
	return ContentBlock{Type: BlockFileEdit, Path: path, Diff: diff, Language: language}
}

// NewBashCommand builds a shell command block. Output and exit code
// usually arrive later and are attached via WithCommandOutput.
func NewBashCommand(command string) ContentBlock {
	return ContentBlock{Type: BlockBashCommand, Command: command}
}

// NewError builds an error block.
func NewError(msg, detail string) ContentBlock {
	return ContentBlock{Type: BlockError, Message: msg, Detail: detail}
}

// WithToolResult returns a copy of a tool_use block carrying its result.
func (b ContentBlock) WithToolResult(content string, isError bool) ContentBlock {
	out := b
	out.Content = content
	out.IsError = isError
	return out
}

// WithCommandOutput returns a copy of a bash_command block with the
// command's captured output and exit code attached.
func (b ContentBlock) WithCommandOutput(output string, exitCode int) ContentBlock {
	out := b
	out.Output = output
	out.ExitCode = &exitCode
	return out
}

// WithText returns a copy of a text or thinking block with new content.
func (b ContentBlock) WithText(text string) ContentBlock {
	out := b
	out.Text = text
	return out
}

// IsToolish reports whether the block represents a tool invocation in
// any of its specialized forms.
func (b ContentBlock) IsToolish() bool {
	switch b.Type {
	case BlockToolUse, BlockFileRead, BlockFileWrite, BlockFileEdit, BlockBashCommand:
		return true
	}
	return false
}
