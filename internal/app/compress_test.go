package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
)

func testPromptSource(t *testing.T) *PromptSource {
	t.Helper()
	source, err := NewPromptSource("", NewLogger(io.Discard))
	if err != nil {
		t.Fatalf("NewPromptSource: %v", err)
	}
	return source
}

func conversationOfLength(n int) []Message {
	messages := make([]Message, 0, n)
	for i := 0; i < n; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		messages = append(messages, Message{Role: role, Content: fmt.Sprintf("turn %d about closures and scope", i+1)})
	}
	return messages
}

func TestCompressFoldsAgedTurns(t *testing.T) {
	mock := &MockCompleter{}
	mock.Enqueue(&CompletionResult{Content: "The student covered variables and closures; struggled with scope."}, nil)

	ws := &Workspace{ID: "w1", TokenThreshold: 1000, History: conversationOfLength(25)}
	compressor := NewCompressor(mock, testPromptSource(t), NewLogger(io.Discard), 10)

	folded, err := compressor.Compress(context.Background(), ws)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if !folded {
		t.Fatal("expected a fold to happen")
	}
	if len(ws.CompressedContext) != 1 {
		t.Fatalf("got %d segments, want 1", len(ws.CompressedContext))
	}
	seg := ws.CompressedContext[0]
	if seg.FromTurn != 1 || seg.ToTurn != 15 {
		t.Fatalf("segment covers turns %d-%d, want 1-15", seg.FromTurn, seg.ToTurn)
	}
	if len(ws.History) != 10 {
		t.Fatalf("retained %d messages, want 10", len(ws.History))
	}
	if ws.History[0].Content != "turn 16 about closures and scope" {
		t.Fatalf("wrong retained head: %q", ws.History[0].Content)
	}
	if ws.TotalTurns() != 25 {
		t.Fatalf("TotalTurns = %d, want 25", ws.TotalTurns())
	}
	if ws.TokenCount <= 0 {
		t.Fatal("token count not recomputed")
	}
}

func TestCompressSecondCycleUsesAbsoluteTurns(t *testing.T) {
	mock := &MockCompleter{}
	mock.Enqueue(&CompletionResult{Content: "first summary"}, nil)
	mock.Enqueue(&CompletionResult{Content: "second summary"}, nil)

	ws := &Workspace{ID: "w2", TokenThreshold: 1000, History: conversationOfLength(25)}
	compressor := NewCompressor(mock, testPromptSource(t), NewLogger(io.Discard), 10)

	if _, err := compressor.Compress(context.Background(), ws); err != nil {
		t.Fatalf("first Compress: %v", err)
	}
	for i := 0; i < 8; i++ {
		ws.AppendMessage("user", "more questions", nil)
	}
	if _, err := compressor.Compress(context.Background(), ws); err != nil {
		t.Fatalf("second Compress: %v", err)
	}
	if len(ws.CompressedContext) != 2 {
		t.Fatalf("got %d segments, want 2", len(ws.CompressedContext))
	}
	second := ws.CompressedContext[1]
	if second.FromTurn != 16 || second.ToTurn != 23 {
		t.Fatalf("second segment covers turns %d-%d, want 16-23", second.FromTurn, second.ToTurn)
	}
	// The second summarization request should carry the first summary forward.
	if len(mock.Calls) != 2 {
		t.Fatalf("got %d completion calls, want 2", len(mock.Calls))
	}
	if !strings.Contains(mock.Calls[1].Messages[0].Content, "first summary") {
		t.Fatal("second cycle did not include the previous summary")
	}
}

func TestCompressNoopOnShortHistory(t *testing.T) {
	mock := &MockCompleter{}
	ws := &Workspace{ID: "w3", History: conversationOfLength(8)}
	compressor := NewCompressor(mock, testPromptSource(t), NewLogger(io.Discard), 10)

	folded, err := compressor.Compress(context.Background(), ws)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if folded {
		t.Fatal("short history should not fold")
	}
	if len(mock.Calls) != 0 {
		t.Fatal("no completion should have been made")
	}
}

func TestCompressFailureLeavesWorkspaceUntouched(t *testing.T) {
	mock := &MockCompleter{}
	mock.Enqueue(nil, errors.New("model unavailable"))

	ws := &Workspace{ID: "w4", TokenThreshold: 1000, History: conversationOfLength(25)}
	compressor := NewCompressor(mock, testPromptSource(t), NewLogger(io.Discard), 10)

	folded, err := compressor.Compress(context.Background(), ws)
	if err == nil {
		t.Fatal("expected an error")
	}
	if folded {
		t.Fatal("failed cycle must not report a fold")
	}
	if len(ws.History) != 25 || len(ws.CompressedContext) != 0 {
		t.Fatalf("workspace mutated on failure: %d messages, %d segments", len(ws.History), len(ws.CompressedContext))
	}
}
