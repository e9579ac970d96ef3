// internal/protocol/event.go
// Vendor protocol normalization. Each supported agent CLI streams a
// different but analogous JSON shape; the parsers here translate one
// raw line into events drawn from a single closed kind set, so that
// everything downstream is vendor-agnostic.
package protocol

import (
	"encoding/json"

	"switchboard/internal/message"
)

// Kind is the closed set of abstract event kinds every vendor's output
// is reduced to.
type Kind string

const (
	KindInit          Kind = "init"
	KindTextDelta     Kind = "text_delta"
	KindThinkingDelta Kind = "thinking_delta"
	KindToolUse       Kind = "tool_use"
	KindToolResult    Kind = "tool_result"
	KindResult        Kind = "result"
	KindCompaction    Kind = "compaction"
	KindError         Kind = "error"
	KindUnknown       Kind = "unknown"
)

// Supported vendor ids.
const (
	VendorClaude   = "claude"
	VendorGemini   = "gemini"
	VendorCodex    = "codex"
	VendorOpenCode = "opencode"
)

// TurnResult is the vendor's own summary of a finished turn.
type TurnResult struct {
	IsError   bool
	Text      string
	SessionID string
	Metrics   *message.Metrics
}

// ParsedEvent is one normalized vendor event. Only the fields relevant
// to Kind are populated. Metrics may ride along on any kind (some
// vendors report token counts on otherwise uninteresting events); the
// adapter harvests it regardless of kind.
type ParsedEvent struct {
	Kind      Kind
	SessionID string
	Model     string
	Text      string
	Block     message.ContentBlock
	Result    *TurnResult
	Err       string
	Metrics   *message.Metrics
}

// ParseFunc translates one raw JSON line into zero or more normalized
// events. Implementations are stateless: the same line always yields
// the same events.
type ParseFunc func(raw json.RawMessage) []ParsedEvent

// ParserFor returns the parser for a vendor id.
func ParserFor(vendor string) (ParseFunc, bool) {
	switch vendor {
	case VendorClaude:
		return ParseClaude, true
	case VendorGemini:
		return ParseGemini, true
	case VendorCodex:
		return ParseCodex, true
	case VendorOpenCode:
		return ParseOpenCode, true
	}
	return nil, false
}

// one returns a single-event slice, the common case.
func one(ev ParsedEvent) []ParsedEvent {
	return []ParsedEvent{ev}
}
