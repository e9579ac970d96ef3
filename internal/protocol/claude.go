// internal/protocol/claude.go
package protocol

import (
	"encoding/json"

	"switchboard/internal/message"
)

// claude stream-json line shapes. One envelope type discriminates on
// "type"; the assistant/user envelopes wrap an API-style message with
// a content block array.
type claudeEnvelope struct {
	Type      string          `json:"type"`
	Subtype   string          `json:"subtype"`
	SessionID string          `json:"session_id"`
	Model     string          `json:"model"`
	Message   json.RawMessage `json:"message"`
	Event     json.RawMessage `json:"event"`

	// result fields
	IsError    bool         `json:"is_error"`
	Result     string       `json:"result"`
	DurationMS int64        `json:"duration_ms"`
	CostUSD    float64      `json:"total_cost_usd"`
	Usage      *claudeUsage `json:"usage"`

	Error json.RawMessage `json:"error"`
}

type claudeUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type claudeMessage struct {
	Model   string        `json:"model"`
	Content []claudeBlock `json:"content"`
}

type claudeBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text"`
	Thinking  string          `json:"thinking"`
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Input     json.RawMessage `json:"input"`
	ToolUseID string          `json:"tool_use_id"`
	Content   json.RawMessage `json:"content"`
	IsError   bool            `json:"is_error"`
}

type claudeStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type     string `json:"type"`
		Text     string `json:"text"`
		Thinking string `json:"thinking"`
	} `json:"delta"`
}

// ParseClaude normalizes one claude stream-json line.
func ParseClaude(raw json.RawMessage) []ParsedEvent {
	var env claudeEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return one(ParsedEvent{Kind: KindUnknown})
	}

	switch env.Type {
	case "system":
		switch env.Subtype {
		case "init":
			return one(ParsedEvent{Kind: KindInit, SessionID: env.SessionID, Model: env.Model})
		case "compact_boundary":
			return one(ParsedEvent{Kind: KindCompaction})
		}
		return one(ParsedEvent{Kind: KindUnknown})

	case "stream_event":
		var se claudeStreamEvent
		if err := json.Unmarshal(env.Event, &se); err != nil || se.Type != "content_block_delta" {
			return one(ParsedEvent{Kind: KindUnknown})
		}
		switch se.Delta.Type {
		case "text_delta":
			return one(ParsedEvent{Kind: KindTextDelta, Text: se.Delta.Text})
		case "thinking_delta":
			return one(ParsedEvent{Kind: KindThinkingDelta, Text: se.Delta.Thinking})
		}
		return one(ParsedEvent{Kind: KindUnknown})

	case "assistant":
		var msg claudeMessage
		if err := json.Unmarshal(env.Message, &msg); err != nil {
			return one(ParsedEvent{Kind: KindUnknown})
		}
		var out []ParsedEvent
		for _, b := range msg.Content {
			switch b.Type {
			case "text":
				out = append(out, ParsedEvent{Kind: KindTextDelta, Text: b.Text})
			case "thinking":
				out = append(out, ParsedEvent{Kind: KindThinkingDelta, Text: b.Thinking})
			case "tool_use":
				out = append(out, ParsedEvent{Kind: KindToolUse, Block: MapTool(b.Name, b.ID, b.Input)})
			}
		}
		if len(out) == 0 {
			return one(ParsedEvent{Kind: KindUnknown})
		}
		return out

	case "user":
		var msg claudeMessage
		if err := json.Unmarshal(env.Message, &msg); err != nil {
			return one(ParsedEvent{Kind: KindUnknown})
		}
		var out []ParsedEvent
		for _, b := range msg.Content {
			if b.Type != "tool_result" {
				continue
			}
			res := message.NewToolResult(b.ToolUseID, flattenContent(b.Content), b.IsError)
			out = append(out, ParsedEvent{Kind: KindToolResult, Block: res})
		}
		if len(out) == 0 {
			return one(ParsedEvent{Kind: KindUnknown})
		}
		return out

	case "result":
		var metrics *message.Metrics
		if env.Usage != nil || env.DurationMS > 0 || env.CostUSD > 0 {
			metrics = &message.Metrics{CostUSD: env.CostUSD, DurationMS: env.DurationMS}
			if env.Usage != nil {
				metrics.InputTokens = env.Usage.InputTokens
				metrics.OutputTokens = env.Usage.OutputTokens
			}
		}
		return one(ParsedEvent{
			Kind:      KindResult,
			SessionID: env.SessionID,
			Metrics:   metrics,
			Result: &TurnResult{
				IsError:   env.IsError,
				Text:      env.Result,
				SessionID: env.SessionID,
				Metrics:   metrics,
			},
		})

	case "error":
		return one(ParsedEvent{Kind: KindError, Err: claudeErrorText(env.Error, raw)})
	}

	return one(ParsedEvent{Kind: KindUnknown})
}

// claudeErrorText extracts an error string from the error field, which
// is either a bare string or an object with a message.
func claudeErrorText(raw json.RawMessage, whole json.RawMessage) string {
	if len(raw) > 0 {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			return s
		}
		var obj struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
			return obj.Message
		}
	}
	return string(whole)
}
