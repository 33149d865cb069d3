package app

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir(), NewLogger(io.Discard))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}

func TestStoreCreateLayout(t *testing.T) {
	store := testStore(t)
	ws, err := store.Create("Advanced Go Concurrency", 128_000)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if ws.Phase != PhaseInquiry {
		t.Fatalf("new workspace phase = %s", ws.Phase)
	}
	if !strings.Contains(ws.ID, "Advanced-Go-Concurrency") {
		t.Fatalf("id does not carry the topic slug: %s", ws.ID)
	}
	for _, name := range []string{"history.json", "workspace_state.json", "study_plan.md", "progress_notes.md", "notes", "exercises"} {
		if _, err := os.Stat(filepath.Join(ws.Path, name)); err != nil {
			t.Fatalf("missing %s: %v", name, err)
		}
	}
	if !strings.Contains(ws.ProgressNotes, "Advanced Go Concurrency") {
		t.Fatal("progress notes not seeded with the topic")
	}
}

func TestStoreRoundTrip(t *testing.T) {
	store := testStore(t)
	ws, err := store.Create("linear algebra", 64_000)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	ws.Phase = PhaseTeaching
	ws.TokenCount = 4321
	ws.StudyPlan = "# Plan\n1. vectors"
	ws.ProgressNotes += "- covered vectors\n"
	ws.CompressedContext = []CompressionSegment{{Summary: "intro conversation", FromTurn: 1, ToTurn: 12}}
	ws.AppendMessage("user", "what is a vector", nil)
	ws.AppendMessage("assistant", "a vector is a direction with magnitude", nil)
	if err := store.Save(ws); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := store.Load(ws.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Phase != PhaseTeaching {
		t.Fatalf("phase = %s, want teaching", loaded.Phase)
	}
	if loaded.TokenCount != 4321 || loaded.TokenThreshold != 64_000 {
		t.Fatalf("token accounting lost: count=%d threshold=%d", loaded.TokenCount, loaded.TokenThreshold)
	}
	if len(loaded.CompressedContext) != 1 || loaded.CompressedContext[0].ToTurn != 12 {
		t.Fatalf("compressed context lost: %+v", loaded.CompressedContext)
	}
	if len(loaded.History) != 2 || loaded.History[1].Content != "a vector is a direction with magnitude" {
		t.Fatalf("history lost: %+v", loaded.History)
	}
	if loaded.StudyPlan != ws.StudyPlan {
		t.Fatalf("study plan lost: %q", loaded.StudyPlan)
	}
	if !strings.Contains(loaded.ProgressNotes, "covered vectors") {
		t.Fatal("progress notes lost")
	}
	if loaded.TotalTurns() != 14 {
		t.Fatalf("TotalTurns = %d, want 14", loaded.TotalTurns())
	}
}

func TestStoreSaveFailureKeepsPriorState(t *testing.T) {
	store := testStore(t)
	ws, err := store.Create("atomic save", 1000)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	ws.StudyPlan = "# Old plan"
	ws.AppendMessage("user", "first question", nil)
	ws.AppendMessage("assistant", "first answer", nil)
	if err := store.Save(ws); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Block the temp file so the next save cannot land.
	if err := os.Mkdir(filepath.Join(ws.Path, "history.json.tmp"), 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	ws.StudyPlan = "# New plan"
	ws.AppendMessage("user", "never committed", nil)
	if err := store.Save(ws); err == nil {
		t.Fatal("Save should fail when the write is blocked")
	}

	loaded, err := store.Load(ws.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded.History) != 2 || loaded.History[1].Content != "first answer" {
		t.Fatalf("failed save altered history: %+v", loaded.History)
	}
	if loaded.StudyPlan != "# Old plan" {
		t.Fatalf("failed save altered study plan: %q", loaded.StudyPlan)
	}
}

func TestStoreLoadMissing(t *testing.T) {
	store := testStore(t)
	if _, err := store.Load("nope"); !errors.Is(err, ErrWorkspaceNotFound) {
		t.Fatalf("got %v, want ErrWorkspaceNotFound", err)
	}
}

func TestStoreLoadCorruptState(t *testing.T) {
	store := testStore(t)
	ws, err := store.Create("topic", 1000)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := os.WriteFile(filepath.Join(ws.Path, "workspace_state.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := store.Load(ws.ID); err == nil {
		t.Fatal("corrupt state should fail loudly, not silently reset")
	}
}

func TestStoreDelete(t *testing.T) {
	store := testStore(t)
	ws, err := store.Create("to delete", 1000)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Delete(ws.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Load(ws.ID); !errors.Is(err, ErrWorkspaceNotFound) {
		t.Fatal("workspace still loadable after delete")
	}
	if err := store.Delete(ws.ID); !errors.Is(err, ErrWorkspaceNotFound) {
		t.Fatalf("second delete: got %v, want ErrWorkspaceNotFound", err)
	}
}

func TestStoreFileTree(t *testing.T) {
	store := testStore(t)
	ws, err := store.Create("tree", 1000)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := os.WriteFile(filepath.Join(ws.Path, "notes", "lesson1.md"), []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	tree := store.FileTree(ws, 50)
	found := false
	for _, p := range tree {
		if p == filepath.Join("notes", "lesson1.md") {
			found = true
		}
	}
	if !found {
		t.Fatalf("notes/lesson1.md not in tree: %v", tree)
	}
}

func TestSlugify(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Machine Learning", "Machine-Learning"},
		{"  spaced   out  ", "spaced-out"},
		{`weird/chars\here?`, "weird-chars-here"},
		{"", "session"},
		{strings.Repeat("x", 80), strings.Repeat("x", 50)},
	}
	for _, tc := range cases {
		if got := slugify(tc.in); got != tc.want {
			t.Fatalf("slugify(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
