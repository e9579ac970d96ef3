// internal/protocol/gemini.go
package protocol

import (
	"encoding/json"

	"switchboard/internal/message"
)

// gemini stream-json is flat: one object per line discriminated on
// "type", with whole content strings rather than token deltas.
type geminiEnvelope struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id"`
	Model     string          `json:"model"`
	Role      string          `json:"role"`
	Content   string          `json:"content"`
	Name      string          `json:"name"`
	CallID    string          `json:"call_id"`
	Args      json.RawMessage `json:"args"`
	Output    string          `json:"output"`
	Success   *bool           `json:"success"`
	Status    string          `json:"status"`
	Error     string          `json:"error"`
	Stats     *geminiStats    `json:"stats"`
}

type geminiStats struct {
	InputTokens  int   `json:"input_tokens"`
	OutputTokens int   `json:"output_tokens"`
	DurationMS   int64 `json:"duration_ms"`
}

// ParseGemini normalizes one gemini stream-json line.
func ParseGemini(raw json.RawMessage) []ParsedEvent {
	var env geminiEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return one(ParsedEvent{Kind: KindUnknown})
	}

	switch env.Type {
	case "init":
		return one(ParsedEvent{Kind: KindInit, SessionID: env.SessionID, Model: env.Model})

	case "message":
		// Echoed user messages come back on the stream too.
		if env.Role != "" && env.Role != "assistant" {
			return one(ParsedEvent{Kind: KindUnknown})
		}
		return one(ParsedEvent{Kind: KindTextDelta, Text: env.Content})

	case "thought":
		return one(ParsedEvent{Kind: KindThinkingDelta, Text: env.Content})

	case "tool_call":
		return one(ParsedEvent{Kind: KindToolUse, Block: MapTool(env.Name, env.CallID, env.Args)})

	case "tool_result":
		isError := env.Success != nil && !*env.Success
		res := message.NewToolResult(env.CallID, env.Output, isError)
		return one(ParsedEvent{Kind: KindToolResult, Block: res})

	case "result":
		isError := env.Status != "" && env.Status != "success"
		var metrics *message.Metrics
		if env.Stats != nil {
			metrics = &message.Metrics{
				InputTokens:  env.Stats.InputTokens,
				OutputTokens: env.Stats.OutputTokens,
				DurationMS:   env.Stats.DurationMS,
			}
		}
		return one(ParsedEvent{
			Kind:      KindResult,
			SessionID: env.SessionID,
			Metrics:   metrics,
			Result: &TurnResult{
				IsError:   isError,
				Text:      env.Error,
				SessionID: env.SessionID,
				Metrics:   metrics,
			},
		})

	case "error":
		msg := env.Error
		if msg == "" {
			msg = env.Content
		}
		return one(ParsedEvent{Kind: KindError, Err: msg})
	}

	return one(ParsedEvent{Kind: KindUnknown})
}
