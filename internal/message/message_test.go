// internal/message/message_test.go
package message

import (
	"encoding/json"
	"testing"
)

// --- Block Construction Tests ---

func TestNewText(t *testing.T) {
	b := NewText("hello")
	if b.Type != BlockText {
		t.Errorf("Expected type %q, got %q", BlockText, b.Type)
	}
	if b.Text != "hello" {
		t.Errorf("Expected text %q, got %q", "hello", b.Text)
	}
}

func TestNewBashCommand(t *testing.T) {
	b := NewBashCommand("ls -la")
	if b.Type != BlockBashCommand {
		t.Errorf("Expected type %q, got %q", BlockBashCommand, b.Type)
	}
	if b.Command != "ls -la" {
		t.Errorf("Expected command %q, got %q", "ls -la", b.Command)
	}
	if b.ExitCode != nil {
		t.Error("Expected no exit code before output attaches")
	}
}

func TestWithCommandOutputDoesNotMutateOriginal(t *testing.T) {
	orig := NewBashCommand("echo hi")
	updated := orig.WithCommandOutput("hi\n", 0)

	if orig.Output != "" {
		t.Errorf("Expected original output to stay empty, got %q", orig.Output)
	}
	if orig.ExitCode != nil {
		t.Error("Expected original exit code to stay nil")
	}
	if updated.Output != "hi\n" {
		t.Errorf("Expected updated output %q, got %q", "hi\n", updated.Output)
	}
	if updated.ExitCode == nil || *updated.ExitCode != 0 {
		t.Errorf("Expected updated exit code 0, got %v", updated.ExitCode)
	}
}

func TestBlockJSONRoundTripOmitsUnusedFields(t *testing.T) {
	b := NewText("plain")
	data, err := json.Marshal(b)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	s := string(data)
	if s != `{"type":"text","text":"plain"}` {
		t.Errorf("Expected minimal JSON for text block, got %s", s)
	}
}

// --- Message Tests ---

func TestNewMessageIsStreaming(t *testing.T) {
	m := New(RoleAssistant, "claude")
	if !m.IsStreaming {
		t.Error("Expected new message to be streaming")
	}
	if m.ID == "" {
		t.Error("Expected message to have an id")
	}
	if m.AgentID != "claude" {
		t.Errorf("Expected agent id %q, got %q", "claude", m.AgentID)
	}
	if len(m.Blocks) != 0 {
		t.Errorf("Expected no blocks, got %d", len(m.Blocks))
	}
}

func TestNewUserIsFrozen(t *testing.T) {
	m := NewUser("gemini", "do the thing")
	if m.IsStreaming {
		t.Error("Expected user message to be frozen")
	}
	if m.Role != RoleUser {
		t.Errorf("Expected role %q, got %q", RoleUser, m.Role)
	}
	if m.Text() != "do the thing" {
		t.Errorf("Expected text %q, got %q", "do the thing", m.Text())
	}
}

func TestAppendTextExtendsTrailingBlock(t *testing.T) {
	m := New(RoleAssistant, "claude")
	m.AppendText("Hello ")
	m.AppendText("world")

	if len(m.Blocks) != 1 {
		t.Fatalf("Expected 1 block, got %d", len(m.Blocks))
	}
	if m.Blocks[0].Text != "Hello world" {
		t.Errorf("Expected %q, got %q", "Hello world", m.Blocks[0].Text)
	}
}

func TestAppendTextAfterToolStartsNewBlock(t *testing.T) {
	m := New(RoleAssistant, "claude")
	m.AppendText("Let me check.")
	m.Append(NewBashCommand("ls"))
	m.AppendText("Done.")

	if len(m.Blocks) != 3 {
		t.Fatalf("Expected 3 blocks, got %d", len(m.Blocks))
	}
	if m.Blocks[2].Type != BlockText || m.Blocks[2].Text != "Done." {
		t.Errorf("Expected trailing text block %q, got %+v", "Done.", m.Blocks[2])
	}
}

func TestAppendThinkingKeepsSeparateStream(t *testing.T) {
	m := New(RoleAssistant, "codex")
	m.AppendThinking("hmm ")
	m.AppendThinking("okay")

	if len(m.Blocks) != 1 {
		t.Fatalf("Expected 1 block, got %d", len(m.Blocks))
	}
	if m.Blocks[0].Type != BlockThinking {
		t.Errorf("Expected thinking block, got %q", m.Blocks[0].Type)
	}
	if m.Blocks[0].Text != "hmm okay" {
		t.Errorf("Expected %q, got %q", "hmm okay", m.Blocks[0].Text)
	}
}

func TestReplaceLastSwapsMatchingType(t *testing.T) {
	m := New(RoleAssistant, "claude")
	m.Append(NewText("first"))
	m.Append(NewBashCommand("ls"))
	m.ReplaceLast(NewBashCommand("ls -la"))

	if len(m.Blocks) != 2 {
		t.Fatalf("Expected 2 blocks, got %d", len(m.Blocks))
	}
	if m.Blocks[1].Command != "ls -la" {
		t.Errorf("Expected replaced command %q, got %q", "ls -la", m.Blocks[1].Command)
	}
}

func TestReplaceLastAppendsWhenNoMatch(t *testing.T) {
	m := New(RoleAssistant, "claude")
	m.Append(NewText("first"))
	m.ReplaceLast(NewBashCommand("ls"))

	if len(m.Blocks) != 2 {
		t.Fatalf("Expected 2 blocks, got %d", len(m.Blocks))
	}
}

func TestResolveToolResultMergesIntoBashBlock(t *testing.T) {
	m := New(RoleAssistant, "claude")
	cmd := NewBashCommand("echo hi")
	cmd.ToolID = "tool_1"
	m.Append(cmd)

	m.ResolveToolResult(NewToolResult("tool_1", "hi\n", false))

	if len(m.Blocks) != 1 {
		t.Fatalf("Expected result to merge, got %d blocks", len(m.Blocks))
	}
	if m.Blocks[0].Output != "hi\n" {
		t.Errorf("Expected merged output %q, got %q", "hi\n", m.Blocks[0].Output)
	}
	if m.Blocks[0].ExitCode == nil || *m.Blocks[0].ExitCode != 0 {
		t.Errorf("Expected exit code 0, got %v", m.Blocks[0].ExitCode)
	}
}

func TestResolveToolResultAppendsWhenOrphaned(t *testing.T) {
	m := New(RoleAssistant, "claude")
	m.ResolveToolResult(NewToolResult("missing", "output", true))

	if len(m.Blocks) != 1 {
		t.Fatalf("Expected orphan result appended, got %d blocks", len(m.Blocks))
	}
	if m.Blocks[0].Type != BlockToolResult {
		t.Errorf("Expected tool_result block, got %q", m.Blocks[0].Type)
	}
	if !m.Blocks[0].IsError {
		t.Error("Expected error flag preserved")
	}
}

func TestFreeze(t *testing.T) {
	m := New(RoleAssistant, "opencode")
	m.AppendText("answer")
	m.Freeze(&Metrics{InputTokens: 10, OutputTokens: 20, DurationMS: 1500})

	if m.IsStreaming {
		t.Error("Expected frozen message to stop streaming")
	}
	if m.Metrics == nil || m.Metrics.OutputTokens != 20 {
		t.Errorf("Expected metrics to be recorded, got %+v", m.Metrics)
	}
}

func TestTextConcatenatesOnlyTextBlocks(t *testing.T) {
	m := New(RoleAssistant, "claude")
	m.Append(NewThinking("pondering"))
	m.Append(NewText("part one "))
	m.Append(NewBashCommand("ls"))
	m.Append(NewText("part two"))

	if got := m.Text(); got != "part one part two" {
		t.Errorf("Expected %q, got %q", "part one part two", got)
	}
}

func TestHasError(t *testing.T) {
	m := New(RoleAssistant, "claude")
	if m.HasError() {
		t.Error("Expected no error on empty message")
	}
	m.Append(NewError("boom", ""))
	if !m.HasError() {
		t.Error("Expected error to be detected")
	}
}
