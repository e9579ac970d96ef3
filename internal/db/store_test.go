// internal/db/store_test.go
package db

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"switchboard/internal/message"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestDebateLifecycle(t *testing.T) {
	store := testStore(t)

	err := store.CreateDebate(DebateRecord{
		ID: "d-1", Topic: "tabs vs spaces", Mode: "sequential",
		AgentA: "claude", AgentB: "gemini", Rounds: 1, Status: "running",
	})
	if err != nil {
		t.Fatalf("CreateDebate() failed: %v", err)
	}

	d, err := store.GetDebate("d-1")
	if err != nil {
		t.Fatalf("GetDebate() failed: %v", err)
	}
	if d.Topic != "tabs vs spaces" || d.Status != "running" || d.Verdict != "" {
		t.Errorf("Unexpected debate record: %+v", d)
	}

	err = store.UpdateDebateStatus("d-1", "complete", "## Points of agreement\nboth like tests")
	if err != nil {
		t.Fatalf("UpdateDebateStatus() failed: %v", err)
	}
	d, err = store.GetDebate("d-1")
	if err != nil {
		t.Fatalf("GetDebate() after update failed: %v", err)
	}
	if d.Status != "complete" || d.Verdict == "" {
		t.Errorf("Expected completed debate with verdict, got %+v", d)
	}

	debates, err := store.ListDebates()
	if err != nil {
		t.Fatalf("ListDebates() failed: %v", err)
	}
	if len(debates) != 1 || debates[0].ID != "d-1" {
		t.Errorf("Expected 1 debate, got %+v", debates)
	}
}

func TestMessageBlocksRoundTrip(t *testing.T) {
	store := testStore(t)

	blocks := []message.ContentBlock{
		message.NewText("let me check the file"),
		message.NewFileEdit("main.go", "--- a/main.go\n+++ b/main.go\n@@ -1,1 +1,1 @@\n-a\n+b\n", "go"),
		message.NewToolResult("t1", "done", false),
	}
	rec := MessageRecord{
		ID: "m-1", AgentID: "claude", Role: "assistant", Model: "opus",
		Blocks:  blocks,
		Metrics: &message.Metrics{InputTokens: 1200, OutputTokens: 50, DurationMS: 900},
	}
	if err := store.SaveMessage(rec); err != nil {
		t.Fatalf("SaveMessage() failed: %v", err)
	}

	got, err := store.MessagesForAgent("claude", 10)
	if err != nil {
		t.Fatalf("MessagesForAgent() failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(got))
	}

	m := got[0]
	if m.Role != "assistant" || m.Model != "opus" {
		t.Errorf("Unexpected message fields: %+v", m)
	}
	if len(m.Blocks) != 3 {
		t.Fatalf("Expected 3 blocks, got %d", len(m.Blocks))
	}
	if m.Blocks[1].Type != message.BlockFileEdit || m.Blocks[1].Path != "main.go" {
		t.Errorf("Expected file_edit block preserved, got %+v", m.Blocks[1])
	}
	if m.Metrics == nil || m.Metrics.InputTokens != 1200 {
		t.Errorf("Expected metrics preserved, got %+v", m.Metrics)
	}
}

func TestSaveMessageReplaceIsIdempotent(t *testing.T) {
	store := testStore(t)

	rec := MessageRecord{ID: "m-1", AgentID: "claude", Role: "assistant",
		Blocks: []message.ContentBlock{message.NewText("first")}}
	if err := store.SaveMessage(rec); err != nil {
		t.Fatalf("SaveMessage() failed: %v", err)
	}

	rec.Blocks = []message.ContentBlock{message.NewText("second")}
	if err := store.SaveMessage(rec); err != nil {
		t.Fatalf("SaveMessage() replace failed: %v", err)
	}

	got, err := store.MessagesForAgent("claude", 10)
	if err != nil {
		t.Fatalf("MessagesForAgent() failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Expected 1 message after replace, got %d", len(got))
	}
	if got[0].Blocks[0].Text != "second" {
		t.Errorf("Expected replaced content, got %q", got[0].Blocks[0].Text)
	}
}

func TestMessagesForDebate(t *testing.T) {
	store := testStore(t)

	err := store.CreateDebate(DebateRecord{ID: "d-1", Topic: "t", Mode: "side_by_side",
		AgentA: "claude", AgentB: "codex", Rounds: 1, Status: "running"})
	if err != nil {
		t.Fatalf("CreateDebate() failed: %v", err)
	}

	for i, agent := range []string{"claude", "codex"} {
		rec := MessageRecord{
			ID: "m-" + agent, DebateID: "d-1", AgentID: agent, Role: "assistant",
			Blocks: []message.ContentBlock{message.NewText("answer")},
		}
		if err := store.SaveMessage(rec); err != nil {
			t.Fatalf("SaveMessage(%d) failed: %v", i, err)
		}
	}
	plain := MessageRecord{ID: "m-chat", AgentID: "claude", Role: "user",
		Blocks: []message.ContentBlock{message.NewText("hi")}}
	if err := store.SaveMessage(plain); err != nil {
		t.Fatalf("SaveMessage(plain) failed: %v", err)
	}

	got, err := store.MessagesForDebate("d-1")
	if err != nil {
		t.Fatalf("MessagesForDebate() failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("Expected 2 debate messages, got %d", len(got))
	}
	for _, m := range got {
		if m.DebateID != "d-1" {
			t.Errorf("Expected debate id carried, got %+v", m)
		}
	}
}

func TestMessagesForDebateKeepsInsertionOrder(t *testing.T) {
	store := testStore(t)

	// Same-second saves must still come back in insertion order.
	base := time.Now()
	for i := 0; i < 5; i++ {
		rec := MessageRecord{
			ID: fmt.Sprintf("m-%d", i), DebateID: "d-1", AgentID: "claude", Role: "assistant",
			Blocks:    []message.ContentBlock{message.NewText(fmt.Sprintf("turn %d", i))},
			CreatedAt: base.Add(time.Duration(i) * time.Millisecond),
		}
		if err := store.SaveMessage(rec); err != nil {
			t.Fatalf("SaveMessage(%d) failed: %v", i, err)
		}
	}

	got, err := store.MessagesForDebate("d-1")
	if err != nil {
		t.Fatalf("MessagesForDebate() failed: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("Expected 5 messages, got %d", len(got))
	}
	for i, m := range got {
		if want := fmt.Sprintf("m-%d", i); m.ID != want {
			t.Errorf("Expected %s at position %d, got %s", want, i, m.ID)
		}
	}
}

func TestAgentSessionUpsert(t *testing.T) {
	store := testStore(t)

	if _, _, ok := store.AgentSession("claude"); ok {
		t.Error("Expected no session initially")
	}

	if err := store.SaveAgentSession("claude", "sess-1", "opus"); err != nil {
		t.Fatalf("SaveAgentSession() failed: %v", err)
	}
	if err := store.SaveAgentSession("claude", "sess-2", "opus"); err != nil {
		t.Fatalf("SaveAgentSession() upsert failed: %v", err)
	}

	sessionID, model, ok := store.AgentSession("claude")
	if !ok || sessionID != "sess-2" || model != "opus" {
		t.Errorf("Expected sess-2/opus, got %q/%q/%v", sessionID, model, ok)
	}
}
