package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOpenAIClientNonStreaming(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"choices":[{"message":{"content":"hello student","tool_calls":[
			{"id":"call_1","type":"function","function":{"name":"end_inquiry","arguments":"{\"summary\":\"done\"}"}}
		]}}]}`)
	}))
	defer server.Close()

	client := NewOpenAIClient(LLMConfig{APIKey: "test-key", BaseURL: server.URL, Model: "gpt-4o"})
	result, err := client.Complete(context.Background(), CompletionRequest{
		System:   "be brief",
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if result.Content != "hello student" {
		t.Fatalf("content = %q", result.Content)
	}
	if len(result.ToolCalls) != 1 || result.ToolCalls[0].Name != "end_inquiry" {
		t.Fatalf("tool calls: %+v", result.ToolCalls)
	}
}

func TestOpenAIClientStreaming(t *testing.T) {
	chunks := []string{
		`{"choices":[{"delta":{"content":"Hel"}}]}`,
		`{"choices":[{"delta":{"content":"lo!"}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_9","function":{"name":"web_search","arguments":"{\"que"}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"ry\":\"go maps\"}"}}]}}]}`,
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, chunk := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", chunk)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client := NewOpenAIClient(LLMConfig{APIKey: "test-key", BaseURL: server.URL})
	var streamed strings.Builder
	result, err := client.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
		OnDelta:  func(delta string) { streamed.WriteString(delta) },
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if result.Content != "Hello!" || streamed.String() != "Hello!" {
		t.Fatalf("content = %q, streamed = %q", result.Content, streamed.String())
	}
	if len(result.ToolCalls) != 1 {
		t.Fatalf("tool calls: %+v", result.ToolCalls)
	}
	tc := result.ToolCalls[0]
	if tc.ID != "call_9" || tc.Name != "web_search" {
		t.Fatalf("tool call: %+v", tc)
	}
	if string(tc.Arguments) != `{"query":"go maps"}` {
		t.Fatalf("accumulated arguments = %s", tc.Arguments)
	}
}

func TestOpenAIClientAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"prompt is too long for this model"}}`)
	}))
	defer server.Close()

	client := NewOpenAIClient(LLMConfig{APIKey: "test-key", BaseURL: server.URL})
	_, err := client.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	if err == nil {
		t.Fatal("expected an error")
	}
	if !isContextOverflowError(err) {
		t.Fatalf("overflow not detected in %v", err)
	}
}
