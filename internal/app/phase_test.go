package app

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func testController(t *testing.T) (*PhaseController, *PromptSource) {
	t.Helper()
	source := testPromptSource(t)
	return NewPhaseController(source, NewLogger(io.Discard)), source
}

func TestSelectContextInquiry(t *testing.T) {
	controller, _ := testController(t)
	dispatcher := NewDispatcher(nil, NewLogger(io.Discard))
	ws := &Workspace{ID: "w", Topic: "rust lifetimes", Phase: PhaseInquiry}

	system, tools, err := controller.SelectContext(ws, dispatcher, "")
	if err != nil {
		t.Fatalf("SelectContext: %v", err)
	}
	if !strings.Contains(system, "rust lifetimes") {
		t.Fatal("inquiry prompt does not mention the topic")
	}
	if len(tools) != 1 || tools[0].Name != "end_inquiry" {
		names := make([]string, len(tools))
		for i, tool := range tools {
			names[i] = tool.Name
		}
		t.Fatalf("inquiry tools = %v, want only end_inquiry", names)
	}
}

func TestSelectContextTeachingRequiresPlan(t *testing.T) {
	controller, _ := testController(t)
	dispatcher := NewDispatcher(nil, NewLogger(io.Discard))
	ws := &Workspace{ID: "w", Topic: "sql", Phase: PhaseTeaching}

	if _, _, err := controller.SelectContext(ws, dispatcher, ""); !errors.Is(err, ErrPlanRequired) {
		t.Fatalf("got %v, want ErrPlanRequired", err)
	}
}

func TestSelectContextTeachingTools(t *testing.T) {
	controller, _ := testController(t)
	dispatcher := NewDispatcher(nil, NewLogger(io.Discard))
	ws := &Workspace{ID: "w", Topic: "sql", Phase: PhaseTeaching, StudyPlan: "1. SELECT basics"}

	_, tools, err := controller.SelectContext(ws, dispatcher, "")
	if err != nil {
		t.Fatalf("SelectContext: %v", err)
	}
	names := map[string]bool{}
	for _, tool := range tools {
		names[tool.Name] = true
	}
	if names["end_inquiry"] {
		t.Fatal("end_inquiry must not be offered during teaching")
	}
	for _, want := range []string{"generate_exercise", "web_search", "file_system"} {
		if !names[want] {
			t.Fatalf("teaching tools missing %s", want)
		}
	}
}

// The teaching prompt must open with an identical byte sequence for every
// workspace so providers can reuse their prompt cache across turns.
func TestTeachingPromptPrefixStable(t *testing.T) {
	controller, source := testController(t)
	dispatcher := NewDispatcher(nil, NewLogger(io.Discard))

	wsA := &Workspace{ID: "a", Topic: "go", Phase: PhaseTeaching, StudyPlan: "plan A", ProgressNotes: "notes A"}
	wsB := &Workspace{ID: "b", Topic: "piano", Phase: PhaseTeaching, StudyPlan: "a completely different plan", ProgressNotes: "other notes"}

	sysA, _, err := controller.SelectContext(wsA, dispatcher, "notes/lesson1.md")
	if err != nil {
		t.Fatalf("SelectContext A: %v", err)
	}
	sysB, _, err := controller.SelectContext(wsB, dispatcher, "")
	if err != nil {
		t.Fatalf("SelectContext B: %v", err)
	}
	prefix := source.Prompts().TeachingPrefix
	if !strings.HasPrefix(sysA, prefix) || !strings.HasPrefix(sysB, prefix) {
		t.Fatal("teaching prompts do not start with the shared prefix")
	}
	if sysA[:len(prefix)] != sysB[:len(prefix)] {
		t.Fatal("teaching prefix differs between workspaces")
	}
	if !strings.Contains(sysA, "plan A") || !strings.Contains(sysB, "a completely different plan") {
		t.Fatal("workspace material missing from the variable suffix")
	}
}

func TestTransitionGeneratesPlanOnce(t *testing.T) {
	controller, _ := testController(t)
	mock := &MockCompleter{}
	mock.Enqueue(&CompletionResult{Content: "# Study Plan\n1. basics\n2. practice"}, nil)

	ws := &Workspace{ID: "w", Topic: "chess", Phase: PhaseInquiry}
	ws.AppendMessage("user", "I want to learn chess openings", nil)
	ws.AppendMessage("assistant", "What do you already know?", nil)

	if err := controller.Transition(context.Background(), ws, mock); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if ws.Phase != PhaseTeaching {
		t.Fatalf("phase = %s, want teaching", ws.Phase)
	}
	if !strings.Contains(ws.StudyPlan, "Study Plan") {
		t.Fatalf("study plan not captured: %q", ws.StudyPlan)
	}

	// Repeating the transition must not regenerate the plan.
	plan := ws.StudyPlan
	if err := controller.Transition(context.Background(), ws, mock); err != nil {
		t.Fatalf("repeat Transition: %v", err)
	}
	if ws.StudyPlan != plan {
		t.Fatal("plan changed on repeated transition")
	}
	if len(mock.Calls) != 1 {
		t.Fatalf("plan generated %d times, want 1", len(mock.Calls))
	}
}

func TestTransitionFailureKeepsInquiry(t *testing.T) {
	controller, _ := testController(t)
	mock := &MockCompleter{}
	mock.Enqueue(nil, errors.New("model unavailable"))

	ws := &Workspace{ID: "w", Topic: "chess", Phase: PhaseInquiry}
	if err := controller.Transition(context.Background(), ws, mock); err == nil {
		t.Fatal("expected an error")
	}
	if ws.Phase != PhaseInquiry || ws.StudyPlan != "" {
		t.Fatalf("failed transition mutated workspace: phase=%s plan=%q", ws.Phase, ws.StudyPlan)
	}
}
