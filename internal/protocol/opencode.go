// internal/protocol/opencode.go
package protocol

import (
	"encoding/json"

	"switchboard/internal/message"
)

// opencode streams session events with dotted type names; message
// content arrives as complete parts whose tool parts carry a state
// machine of their own (pending/running/completed/error).
type opencodeEnvelope struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionID"`
	Part      *opencodePart   `json:"part"`
	Error     *opencodeError  `json:"error"`
	Status    string          `json:"status"`
	Usage     *opencodeUsage  `json:"usage"`
	Model     string          `json:"model"`
}

type opencodePart struct {
	Type   string             `json:"type"`
	Text   string             `json:"text"`
	Tool   string             `json:"tool"`
	CallID string             `json:"callID"`
	State  *opencodeToolState `json:"state"`
}

type opencodeToolState struct {
	Status string          `json:"status"`
	Input  json.RawMessage `json:"input"`
	Output string          `json:"output"`
}

type opencodeError struct {
	Message string `json:"message"`
}

type opencodeUsage struct {
	Input  int     `json:"input"`
	Output int     `json:"output"`
	Cost   float64 `json:"cost"`
}

// ParseOpenCode normalizes one opencode event line.
func ParseOpenCode(raw json.RawMessage) []ParsedEvent {
	var env opencodeEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return one(ParsedEvent{Kind: KindUnknown})
	}

	switch env.Type {
	case "session.created":
		return one(ParsedEvent{Kind: KindInit, SessionID: env.SessionID, Model: env.Model})

	case "message.part":
		if env.Part == nil {
			return one(ParsedEvent{Kind: KindUnknown})
		}
		return parseOpenCodePart(env.Part)

	case "session.compacted":
		return one(ParsedEvent{Kind: KindCompaction})

	case "session.error":
		msg := ""
		if env.Error != nil {
			msg = env.Error.Message
		}
		return one(ParsedEvent{Kind: KindError, Err: msg})

	case "done":
		var metrics *message.Metrics
		if env.Usage != nil {
			metrics = &message.Metrics{
				InputTokens:  env.Usage.Input,
				OutputTokens: env.Usage.Output,
				CostUSD:      env.Usage.Cost,
			}
		}
		isError := env.Status == "error"
		errText := ""
		if env.Error != nil {
			errText = env.Error.Message
		}
		return one(ParsedEvent{
			Kind:      KindResult,
			SessionID: env.SessionID,
			Metrics:   metrics,
			Result: &TurnResult{
				IsError:   isError,
				Text:      errText,
				SessionID: env.SessionID,
				Metrics:   metrics,
			},
		})
	}

	return one(ParsedEvent{Kind: KindUnknown})
}

func parseOpenCodePart(part *opencodePart) []ParsedEvent {
	switch part.Type {
	case "text":
		return one(ParsedEvent{Kind: KindTextDelta, Text: part.Text})

	case "reasoning":
		return one(ParsedEvent{Kind: KindThinkingDelta, Text: part.Text})

	case "tool":
		if part.State == nil {
			return one(ParsedEvent{Kind: KindUnknown})
		}
		switch part.State.Status {
		case "pending", "running":
			return one(ParsedEvent{Kind: KindToolUse, Block: MapTool(part.Tool, part.CallID, part.State.Input)})
		case "completed":
			res := message.NewToolResult(part.CallID, part.State.Output, false)
			return one(ParsedEvent{Kind: KindToolResult, Block: res})
		case "error":
			res := message.NewToolResult(part.CallID, part.State.Output, true)
			return one(ParsedEvent{Kind: KindToolResult, Block: res})
		}
	}

	return one(ParsedEvent{Kind: KindUnknown})
}
