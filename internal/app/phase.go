package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrPlanRequired is returned when a teaching turn is attempted before
	// a study plan exists in the workspace.
	ErrPlanRequired = errors.New("teaching phase requires a study plan")
	// ErrPhaseFinal is returned by operations that only apply before the
	// teaching phase has begun.
	ErrPhaseFinal = errors.New("workspace is already in the teaching phase")
)

// PhaseController selects the prompt and tool surface for the current
// phase and performs the one-way inquiry to teaching transition.
type PhaseController struct {
	prompts *PromptSource
	logger  *Logger
}

func NewPhaseController(prompts *PromptSource, logger *Logger) *PhaseController {
	return &PhaseController{prompts: prompts, logger: logger}
}

// SelectContext returns the system prompt and the tools available for the
// workspace's current phase. The teaching prompt is assembled as a fixed
// prefix plus a rendered suffix so the prefix stays byte-identical across
// turns and workspaces.
func (pc *PhaseController) SelectContext(ws *Workspace, dispatcher *Dispatcher, fileTree string) (string, []ToolSpec, error) {
	prompts := pc.prompts.Prompts()
	switch ws.Phase {
	case PhaseInquiry:
		system := render(prompts.Inquiry, map[string]string{"topic": ws.Topic})
		return system, dispatcher.SpecsForPhase(PhaseInquiry), nil
	case PhaseTeaching:
		if strings.TrimSpace(ws.StudyPlan) == "" {
			return "", nil, ErrPlanRequired
		}
		suffix := render(prompts.TeachingSuffix, map[string]string{
			"study_plan":         ws.StudyPlan,
			"progress_notes":     orPlaceholder(ws.ProgressNotes, "(no notes yet)"),
			"compressed_context": orPlaceholder(ws.CompressedSummary(), "(none)"),
			"file_tree":          orPlaceholder(fileTree, "(empty)"),
		})
		system := prompts.TeachingPrefix + "\n\n" + suffix
		return system, dispatcher.SpecsForPhase(PhaseTeaching), nil
	default:
		return "", nil, fmt.Errorf("unknown phase %q", ws.Phase)
	}
}

// Transition moves the workspace from inquiry to teaching. It generates
// the study plan from the inquiry conversation and is idempotent: calling
// it on a teaching workspace changes nothing.
func (pc *PhaseController) Transition(ctx context.Context, ws *Workspace, completer Completer) error {
	if ws.Phase == PhaseTeaching {
		return nil
	}
	prompts := pc.prompts.Prompts()
	transcript := inquiryTranscript(ws)
	prompt := render(prompts.PlanGeneration, map[string]string{
		"topic":      ws.Topic,
		"transcript": transcript,
	})
	result, err := completer.Complete(ctx, CompletionRequest{
		Messages: []Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return fmt.Errorf("study plan generation failed: %w", err)
	}
	plan := strings.TrimSpace(result.Content)
	if plan == "" {
		return errors.New("study plan generation returned no content")
	}
	ws.StudyPlan = plan
	ws.Phase = PhaseTeaching
	pc.logger.Info("phase transition", map[string]any{
		"workspace": ws.ID,
		"to":        string(PhaseTeaching),
	})
	return nil
}

// WelcomeInstruction is the user-role nudge injected right after the
// transition so the model opens the first teaching turn properly.
func (pc *PhaseController) WelcomeInstruction() string {
	return pc.prompts.Prompts().TeachingWelcome
}

func inquiryTranscript(ws *Workspace) string {
	var b strings.Builder
	for _, m := range ws.History {
		role := "Student"
		if m.Role == "assistant" {
			role = "Tutor"
		}
		fmt.Fprintf(&b, "%s: %s\n\n", role, m.Content)
	}
	return strings.TrimSpace(b.String())
}

func orPlaceholder(s, placeholder string) string {
	if strings.TrimSpace(s) == "" {
		return placeholder
	}
	return s
}
