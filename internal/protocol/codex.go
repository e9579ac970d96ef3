// internal/protocol/codex.go
package protocol

import (
	"encoding/json"

	"switchboard/internal/message"
)

// codex emits JSONL records of {timestamp, type, payload}; the payload
// shape depends on the record type, and tool calls use the OpenAI
// function-call convention where arguments is a JSON string.
type codexRecord struct {
	Timestamp string          `json:"timestamp"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
}

type codexSessionMeta struct {
	ID  string `json:"id"`
	CWD string `json:"cwd"`
}

type codexTurnContext struct {
	Model string `json:"model"`
}

type codexResponseItem struct {
	Type      string          `json:"type"`
	Role      string          `json:"role"`
	Content   json.RawMessage `json:"content"`
	Name      string          `json:"name"`
	Arguments string          `json:"arguments"`
	CallID    string          `json:"call_id"`
	Output    json.RawMessage `json:"output"`
}

type codexEventMsg struct {
	Type             string `json:"type"`
	Message          string `json:"message"`
	Delta            string `json:"delta"`
	Reasoning        string `json:"reasoning"`
	Text             string `json:"text"`
	InputTokens      int    `json:"input_tokens"`
	OutputTokens     int    `json:"output_tokens"`
	LastAgentMessage string `json:"last_agent_message"`
}

// ParseCodex normalizes one codex JSONL record.
func ParseCodex(raw json.RawMessage) []ParsedEvent {
	var rec codexRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return one(ParsedEvent{Kind: KindUnknown})
	}

	switch rec.Type {
	case "session_meta":
		var meta codexSessionMeta
		if err := json.Unmarshal(rec.Payload, &meta); err != nil || meta.ID == "" {
			return one(ParsedEvent{Kind: KindUnknown})
		}
		return one(ParsedEvent{Kind: KindInit, SessionID: meta.ID})

	case "turn_context":
		var tc codexTurnContext
		if err := json.Unmarshal(rec.Payload, &tc); err != nil || tc.Model == "" {
			return one(ParsedEvent{Kind: KindUnknown})
		}
		return one(ParsedEvent{Kind: KindInit, Model: tc.Model})

	case "response_item":
		return parseCodexResponseItem(rec.Payload)

	case "event_msg":
		return parseCodexEventMsg(rec.Payload)
	}

	return one(ParsedEvent{Kind: KindUnknown})
}

func parseCodexResponseItem(payload json.RawMessage) []ParsedEvent {
	var item codexResponseItem
	if err := json.Unmarshal(payload, &item); err != nil {
		return one(ParsedEvent{Kind: KindUnknown})
	}

	switch item.Type {
	case "message":
		if item.Role != "assistant" {
			return one(ParsedEvent{Kind: KindUnknown})
		}
		return one(ParsedEvent{Kind: KindTextDelta, Text: flattenContent(item.Content)})

	case "reasoning":
		return one(ParsedEvent{Kind: KindThinkingDelta, Text: flattenContent(item.Content)})

	case "function_call":
		var args json.RawMessage
		if item.Arguments != "" {
			args = json.RawMessage(item.Arguments)
		}
		return one(ParsedEvent{Kind: KindToolUse, Block: MapTool(item.Name, item.CallID, args)})

	case "function_call_output":
		res := message.NewToolResult(item.CallID, flattenContent(item.Output), false)
		return one(ParsedEvent{Kind: KindToolResult, Block: res})
	}

	return one(ParsedEvent{Kind: KindUnknown})
}

func parseCodexEventMsg(payload json.RawMessage) []ParsedEvent {
	var ev codexEventMsg
	if err := json.Unmarshal(payload, &ev); err != nil {
		return one(ParsedEvent{Kind: KindUnknown})
	}

	switch ev.Type {
	case "agent_message":
		return one(ParsedEvent{Kind: KindTextDelta, Text: ev.Message})

	case "agent_message_delta":
		return one(ParsedEvent{Kind: KindTextDelta, Text: ev.Delta})

	case "agent_reasoning":
		text := ev.Reasoning
		if text == "" {
			text = ev.Text
		}
		return one(ParsedEvent{Kind: KindThinkingDelta, Text: text})

	case "agent_reasoning_delta":
		return one(ParsedEvent{Kind: KindThinkingDelta, Text: ev.Delta})

	case "token_count":
		// Usage rides along without a semantic event; the adapter
		// harvests the metrics and folds them into the turn result.
		return one(ParsedEvent{
			Kind:    KindUnknown,
			Metrics: &message.Metrics{InputTokens: ev.InputTokens, OutputTokens: ev.OutputTokens},
		})

	case "task_complete":
		return one(ParsedEvent{
			Kind:   KindResult,
			Result: &TurnResult{Text: ev.LastAgentMessage},
		})

	case "turn_aborted":
		return one(ParsedEvent{Kind: KindError, Err: "turn aborted"})

	case "error":
		return one(ParsedEvent{Kind: KindError, Err: ev.Message})
	}

	return one(ParsedEvent{Kind: KindUnknown})
}
