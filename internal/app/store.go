package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

var ErrWorkspaceNotFound = errors.New("workspace not found")

// Store owns the on-disk representation of workspaces. All persistence funnels
// through it; the phase controller and token accountant only operate on loaded
// Workspace values.
//
// Layout:
//
//	<root>/<workspaceID>/history.json
//	<root>/<workspaceID>/workspace_state.json
//	<root>/<workspaceID>/study_plan.md
//	<root>/<workspaceID>/progress_notes.md
//	<root>/<workspaceID>/exercises/
//	<root>/<workspaceID>/notes/
type Store struct {
	Root   string
	Logger *Logger
}

func NewStore(root string, logger *Logger) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("workspace root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	return &Store{Root: abs, Logger: logger}, nil
}

// workspaceState is the persisted shape of workspace_state.json.
type workspaceState struct {
	Topic             string               `json:"topic"`
	CreatedAt         time.Time            `json:"created_at"`
	CurrentPhase      Phase                `json:"current_phase"`
	TokenCount        int                  `json:"token_count"`
	TokenThreshold    int                  `json:"token_threshold"`
	CompressedContext []CompressionSegment `json:"compressed_context"`
}

var slugStrip = regexp.MustCompile(`[<>:"/\\|?*\s]+`)

func slugify(topic string) string {
	s := slugStrip.ReplaceAllString(strings.TrimSpace(topic), "-")
	s = strings.Trim(s, "-")
	if len(s) > 50 {
		s = s[:50]
	}
	if s == "" {
		s = "session"
	}
	return s
}

const progressNotesSeed = `# Learning Session Notes

Topic: %s
Created: %s

## Student Profile
- Learning Goal: [To be filled]
- Background: [To be filled]
- Time Commitment: [To be filled]

## Progress Tracking
- Current Topic: [Not started]
- Topics Completed: []
- Weak Points: []

## Session Notes
`

// Create makes a new workspace directory in the inquiry phase.
func (s *Store) Create(topic string, tokenThreshold int) (*Workspace, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, errors.New("topic is required")
	}
	now := time.Now()
	id := fmt.Sprintf("%s_%s", now.Format("20060102_150405"), slugify(topic))
	path := filepath.Join(s.Root, id)
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("workspace already exists: %s", id)
	}
	for _, dir := range []string{path, filepath.Join(path, "notes"), filepath.Join(path, "exercises")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	ws := &Workspace{
		ID:             id,
		Topic:          topic,
		CreatedAt:      now,
		Path:           path,
		Phase:          PhaseInquiry,
		TokenThreshold: tokenThreshold,
		ProgressNotes:  fmt.Sprintf(progressNotesSeed, topic, now.Format(time.RFC3339)),
	}
	if err := s.Save(ws); err != nil {
		return nil, err
	}
	s.Logger.Info("workspace created", map[string]interface{}{"id": id, "topic": topic})
	return ws, nil
}

// Load reads a workspace back from disk. The returned value reproduces phase,
// token accounting, compressed context, and history exactly as last saved.
func (s *Store) Load(id string) (*Workspace, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrWorkspaceNotFound
	}
	path := filepath.Join(s.Root, id)
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return nil, ErrWorkspaceNotFound
	}

	ws := &Workspace{ID: id, Path: path, Phase: PhaseInquiry}

	if b, err := os.ReadFile(filepath.Join(path, "workspace_state.json")); err == nil {
		var st workspaceState
		if err := json.Unmarshal(b, &st); err != nil {
			return nil, fmt.Errorf("corrupt workspace state for %s: %w", id, err)
		}
		ws.Topic = st.Topic
		ws.CreatedAt = st.CreatedAt
		if p, ok := ParsePhase(string(st.CurrentPhase)); ok {
			ws.Phase = p
		}
		ws.TokenCount = st.TokenCount
		ws.TokenThreshold = st.TokenThreshold
		ws.CompressedContext = st.CompressedContext
	}
	if ws.Topic == "" {
		ws.Topic = id
	}

	if b, err := os.ReadFile(filepath.Join(path, "history.json")); err == nil {
		if err := json.Unmarshal(b, &ws.History); err != nil {
			return nil, fmt.Errorf("corrupt history for %s: %w", id, err)
		}
	}
	if b, err := os.ReadFile(filepath.Join(path, "study_plan.md")); err == nil {
		ws.StudyPlan = string(b)
	}
	if b, err := os.ReadFile(filepath.Join(path, "progress_notes.md")); err == nil {
		ws.ProgressNotes = string(b)
	}
	return ws, nil
}

// writeFileAtomic writes through a sibling temp file and renames it into
// place, so a crash mid-write leaves the previous contents intact.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// Save persists the full workspace. A turn's state is not durable until Save
// returns nil; on error the caller must report the turn as unsaved.
func (s *Store) Save(ws *Workspace) error {
	if ws == nil {
		return errors.New("nil workspace")
	}
	if strings.TrimSpace(ws.ID) == "" || strings.TrimSpace(ws.Path) == "" {
		return errors.New("missing workspace fields")
	}

	history := ws.History
	if history == nil {
		history = []Message{}
	}
	hb, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		return err
	}
	if err := writeFileAtomic(filepath.Join(ws.Path, "history.json"), hb, 0o644); err != nil {
		return fmt.Errorf("write history: %w", err)
	}

	segments := ws.CompressedContext
	if segments == nil {
		segments = []CompressionSegment{}
	}
	st := workspaceState{
		Topic:             ws.Topic,
		CreatedAt:         ws.CreatedAt,
		CurrentPhase:      ws.Phase,
		TokenCount:        ws.TokenCount,
		TokenThreshold:    ws.TokenThreshold,
		CompressedContext: segments,
	}
	sb, err := json.MarshalIndent(&st, "", "  ")
	if err != nil {
		return err
	}
	if err := writeFileAtomic(filepath.Join(ws.Path, "workspace_state.json"), sb, 0o644); err != nil {
		return fmt.Errorf("write workspace state: %w", err)
	}

	if err := writeFileAtomic(filepath.Join(ws.Path, "study_plan.md"), []byte(ws.StudyPlan), 0o644); err != nil {
		return fmt.Errorf("write study plan: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(ws.Path, "progress_notes.md"), []byte(ws.ProgressNotes), 0o644); err != nil {
		return fmt.Errorf("write progress notes: %w", err)
	}
	return nil
}

// WorkspaceInfo is the listing row for a workspace.
type WorkspaceInfo struct {
	ID           string    `json:"id"`
	Topic        string    `json:"topic"`
	Phase        Phase     `json:"phase"`
	CreatedAt    time.Time `json:"created_at"`
	MessageCount int       `json:"message_count"`
}

// List scans the root directory. Newest first.
func (s *Store) List() ([]WorkspaceInfo, error) {
	ents, err := os.ReadDir(s.Root)
	if err != nil {
		return nil, err
	}
	infos := make([]WorkspaceInfo, 0, len(ents))
	for _, e := range ents {
		if !e.IsDir() {
			continue
		}
		ws, err := s.Load(e.Name())
		if err != nil {
			continue
		}
		infos = append(infos, WorkspaceInfo{
			ID:           ws.ID,
			Topic:        ws.Topic,
			Phase:        ws.Phase,
			CreatedAt:    ws.CreatedAt,
			MessageCount: len(ws.History),
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].ID > infos[j].ID
		}
		return infos[i].CreatedAt.After(infos[j].CreatedAt)
	})
	return infos, nil
}

// Delete removes a workspace directory. Workspaces are never garbage-collected
// by the running process; this is the only destruction path.
func (s *Store) Delete(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrWorkspaceNotFound
	}
	path := filepath.Join(s.Root, id)
	if info, err := os.Stat(path); err != nil || !info.IsDir() {
		return ErrWorkspaceNotFound
	}
	return os.RemoveAll(path)
}

// FileTree lists files under the workspace (relative paths), capped at max.
// Used to embed the workspace layout into the teaching prompt.
func (s *Store) FileTree(ws *Workspace, max int) []string {
	var paths []string
	_ = filepath.Walk(ws.Path, func(p string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(ws.Path, p)
		if relErr != nil {
			return nil
		}
		paths = append(paths, rel)
		return nil
	})
	sort.Strings(paths)
	if max > 0 && len(paths) > max {
		paths = paths[:max]
	}
	return paths
}
