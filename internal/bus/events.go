// internal/bus/events.go
package bus

import (
	"time"

	"switchboard/internal/message"
)

// Event types carried on the bus. The set is closed: adapters and the
// bridge only ever emit these, so consumers can switch exhaustively.
const (
	TypeContentBlock   = "content_block"
	TypeStreamText     = "streaming_text"
	TypeStreamThinking = "streaming_thinking"
	TypeToolResult     = "tool_result"
	TypeComplete       = "message_complete"
	TypeStatus         = "status_change"
	TypeError          = "error"
	TypeSessionStart   = "session_start"
	TypeSessionEnd     = "session_end"
	TypeCompaction     = "compaction"
	TypeTokenWarning   = "token_warning"
)

// Event is one bus message. Payload holds the matching payload struct
// below; consumers type-assert on it.
type Event struct {
	Type      string
	AgentID   string
	Timestamp time.Time
	Payload   any
}

// BlockPayload rides on content_block and tool_result events.
type BlockPayload struct {
	MessageID string
	Block     message.ContentBlock
}

// TextPayload rides on streaming_text and streaming_thinking events.
type TextPayload struct {
	MessageID string
	Text      string
}

// CompletePayload rides on message_complete events.
type CompletePayload struct {
	MessageID string
	Text      string
	IsError   bool
	Metrics   *message.Metrics
}

// ErrorPayload rides on error events. Terminal marks errors the retry
// manager emits itself ("retry exhausted"); they must not feed back
// into retry handling.
type ErrorPayload struct {
	MessageID string
	Err       string
	ExitCode  int
	Terminal  bool
}

// StatusPayload rides on status_change events.
type StatusPayload struct {
	From string
	To   string
}

// SessionPayload rides on session_start, session_end and compaction
// events.
type SessionPayload struct {
	SessionID string
	Model     string
}

// TokenPayload rides on token_warning events.
type TokenPayload struct {
	Used   int
	Window int
}
