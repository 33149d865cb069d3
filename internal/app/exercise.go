package app

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Exercise is a practice item generated during teaching. Objective types
// carry their correct answers and are graded locally; short_answer is
// evaluated by the tutor in conversation.
type Exercise struct {
	ID             string    `json:"id"`
	Type           string    `json:"type"`
	Question       string    `json:"question"`
	Options        []string  `json:"options,omitempty"`
	Blanks         []string  `json:"blanks,omitempty"`
	CorrectAnswers []string  `json:"correct_answers,omitempty"`
	Explanation    string    `json:"explanation,omitempty"`
	Difficulty     string    `json:"difficulty,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

func exerciseTypes() []string {
	return []string{"choice", "fill_blank", "match", "multi_fill", "short_answer"}
}

// Objective reports whether the exercise type can be graded without the
// model.
func (e *Exercise) Objective() bool {
	return e.Type != "short_answer"
}

// BuildExercise validates the tool arguments and assembles an exercise.
// Validation failures come back as ToolErrors so the model can correct
// the call.
func BuildExercise(exType, question string, options, blanks, correctAnswers []string, explanation string) (*Exercise, *ToolError) {
	if strings.TrimSpace(question) == "" {
		return nil, toolErrorf("provide the exercise question in the question parameter", "question must not be empty")
	}
	switch exType {
	case "choice":
		if len(options) < 2 {
			return nil, toolErrorf("provide at least two answer options in the options array", "choice exercises need options")
		}
		if len(correctAnswers) == 0 {
			return nil, toolErrorf("provide the correct option text in correct_answers", "choice exercises need correct_answers")
		}
		for _, ans := range correctAnswers {
			if !containsString(options, ans) {
				return nil, toolErrorf("every correct answer must appear verbatim in options", "correct answer %q is not among the options", ans)
			}
		}
	case "fill_blank", "multi_fill":
		if len(blanks) == 0 {
			return nil, toolErrorf("list the blank positions in the blanks array", "fill exercises need blanks")
		}
		if len(correctAnswers) != len(blanks) {
			return nil, toolErrorf(
				fmt.Sprintf("provide exactly %d answers in correct_answers, one per blank in order", len(blanks)),
				"%d blanks but %d answers were given", len(blanks), len(correctAnswers))
		}
	case "match":
		if len(options) < 2 {
			return nil, toolErrorf("provide the items to match in options, one pair per entry as left=right", "match exercises need options")
		}
		if len(correctAnswers) == 0 {
			return nil, toolErrorf("provide the correct pairings in correct_answers as left=right", "match exercises need correct_answers")
		}
	case "short_answer":
		// Free-form, graded in conversation.
	default:
		return nil, toolErrorf(
			fmt.Sprintf("type must be one of: %s", strings.Join(exerciseTypes(), ", ")),
			"unknown exercise type %q", exType)
	}
	return &Exercise{
		ID:             uuid.NewString(),
		Type:           exType,
		Question:       question,
		Options:        options,
		Blanks:         blanks,
		CorrectAnswers: correctAnswers,
		Explanation:    explanation,
		CreatedAt:      time.Now().UTC(),
	}, nil
}

// GradeResult is the local evaluation of a student's answers.
type GradeResult struct {
	Correct     bool     `json:"correct"`
	Expected    []string `json:"expected,omitempty"`
	Explanation string   `json:"explanation,omitempty"`
}

// Grade compares the student's answers against the stored ones. Matching
// is case-insensitive and whitespace-trimmed; order matters for fill
// exercises and not for choice or match.
func (e *Exercise) Grade(answers []string) (*GradeResult, error) {
	if !e.Objective() {
		return nil, fmt.Errorf("exercise type %s is not graded locally", e.Type)
	}
	result := &GradeResult{Expected: e.CorrectAnswers, Explanation: e.Explanation}
	switch e.Type {
	case "fill_blank", "multi_fill":
		if len(answers) != len(e.CorrectAnswers) {
			return result, nil
		}
		for i, ans := range answers {
			if normalizeAnswer(ans) != normalizeAnswer(e.CorrectAnswers[i]) {
				return result, nil
			}
		}
		result.Correct = true
	case "choice", "match":
		if len(answers) != len(e.CorrectAnswers) {
			return result, nil
		}
		got := normalizeAnswerSet(answers)
		want := normalizeAnswerSet(e.CorrectAnswers)
		for i := range want {
			if got[i] != want[i] {
				return result, nil
			}
		}
		result.Correct = true
	}
	return result, nil
}

func normalizeAnswer(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func normalizeAnswerSet(answers []string) []string {
	out := make([]string, len(answers))
	for i, a := range answers {
		out[i] = normalizeAnswer(a)
	}
	sort.Strings(out)
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// SaveExercise writes the exercise as JSON under the workspace's
// exercises directory and returns the path relative to the workspace.
func (s *Store) SaveExercise(ws *Workspace, ex *Exercise) (string, error) {
	dir := filepath.Join(ws.Path, "exercises")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create exercises directory: %w", err)
	}
	data, err := json.MarshalIndent(ex, "", "  ")
	if err != nil {
		return "", err
	}
	name := fmt.Sprintf("%s_%s.json", ex.CreatedAt.Format("20060102_150405"), ex.ID[:8])
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write exercise: %w", err)
	}
	return filepath.Join("exercises", name), nil
}

// LoadExercise reads a previously saved exercise by its workspace-relative
// path.
func (s *Store) LoadExercise(ws *Workspace, rel string) (*Exercise, error) {
	data, err := os.ReadFile(filepath.Join(ws.Path, rel))
	if err != nil {
		return nil, fmt.Errorf("failed to read exercise: %w", err)
	}
	var ex Exercise
	if err := json.Unmarshal(data, &ex); err != nil {
		return nil, fmt.Errorf("corrupt exercise file %s: %w", rel, err)
	}
	return &ex, nil
}
