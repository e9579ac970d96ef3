// internal/message/message.go
package message

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role identifies who produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Metrics carries the token/cost accounting a vendor reports for one turn.
type Metrics struct {
	InputTokens  int     `json:"input_tokens,omitempty"`
	OutputTokens int     `json:"output_tokens,omitempty"`
	CostUSD      float64 `json:"cost_usd,omitempty"`
	DurationMS   int64   `json:"duration_ms,omitempty"`
}

// Message is one turn's worth of content for a single agent. Blocks are
// appended (or the last block of a type replaced) while IsStreaming is
// true; Freeze marks the message final once the turn completes.
type Message struct {
	ID          string       `json:"id"`
	Role        Role         `json:"role"`
	Blocks      []ContentBlock `json:"blocks"`
	Timestamp   time.Time    `json:"timestamp"`
	AgentID     string       `json:"agent_id"`
	Model       string       `json:"model,omitempty"`
	Metrics     *Metrics     `json:"metrics,omitempty"`
	IsStreaming bool         `json:"is_streaming"`
}

// New creates an empty streaming message for an agent turn.
func New(role Role, agentID string) *Message {
	return &Message{
		ID:          uuid.NewString(),
		Role:        role,
		Timestamp:   time.Now(),
		AgentID:     agentID,
		IsStreaming: true,
	}
}

// NewUser creates a frozen user message containing a single text block.
func NewUser(agentID, text string) *Message {
	m := New(RoleUser, agentID)
	m.Blocks = append(m.Blocks, NewText(text))
	m.IsStreaming = false
	return m
}

// Append adds a block to the end of the message.
func (m *Message) Append(b ContentBlock) {
	m.Blocks = append(m.Blocks, b)
}

// ReplaceLast swaps the last block of b's type for b. If no block of
// that type exists the block is appended instead.
func (m *Message) ReplaceLast(b ContentBlock) {
	for i := len(m.Blocks) - 1; i >= 0; i-- {
		if m.Blocks[i].Type == b.Type {
			m.Blocks[i] = b
			return
		}
	}
	m.Blocks = append(m.Blocks, b)
}

// AppendText extends the trailing text block with a streamed delta,
// creating the block if the message does not end in one.
func (m *Message) AppendText(delta string) {
	if n := len(m.Blocks); n > 0 && m.Blocks[n-1].Type == BlockText {
		m.Blocks[n-1] = m.Blocks[n-1].WithText(m.Blocks[n-1].Text + delta)
		return
	}
	m.Blocks = append(m.Blocks, NewText(delta))
}

// AppendThinking extends the trailing thinking block with a streamed
// delta, creating the block if the message does not end in one.
func (m *Message) AppendThinking(delta string) {
	if n := len(m.Blocks); n > 0 && m.Blocks[n-1].Type == BlockThinking {
		m.Blocks[n-1] = m.Blocks[n-1].WithText(m.Blocks[n-1].Text + delta)
		return
	}
	m.Blocks = append(m.Blocks, NewThinking(delta))
}

// ResolveToolResult merges a tool result into the matching tool_use
// block (by tool use id) as a replacement block. Results that match a
// specialized bash_command block attach as command output. Unmatched
// results are appended as standalone tool_result blocks.
func (m *Message) ResolveToolResult(res ContentBlock) {
	for i := len(m.Blocks) - 1; i >= 0; i-- {
		b := m.Blocks[i]
		if b.ToolID == "" || b.ToolID != res.ToolUseID {
			continue
		}
		switch b.Type {
		case BlockBashCommand:
			code := 0
			if res.IsError {
				code = 1
			}
			m.Blocks[i] = b.WithCommandOutput(res.Content, code)
		case BlockToolUse:
			m.Blocks[i] = b.WithToolResult(res.Content, res.IsError)
		default:
			m.Blocks[i] = b.WithToolResult(res.Content, res.IsError)
		}
		return
	}
	m.Blocks = append(m.Blocks, res)
}

// Freeze marks the message complete and records final turn metrics.
func (m *Message) Freeze(metrics *Metrics) {
	m.IsStreaming = false
	if metrics != nil {
		m.Metrics = metrics
	}
}

// Text returns the concatenation of all text blocks.
func (m *Message) Text() string {
	var sb strings.Builder
	for _, b := range m.Blocks {
		if b.Type == BlockText {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}

// HasError reports whether any block is an error block.
func (m *Message) HasError() bool {
	for _, b := range m.Blocks {
		if b.Type == BlockError {
			return true
		}
	}
	return false
}
