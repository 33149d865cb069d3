package app

import (
	"encoding/json"
	"time"
)

// Phase is the lifecycle stage of a workspace. A workspace starts in
// PhaseInquiry and moves to PhaseTeaching exactly once; there is no way back.
type Phase string

const (
	PhaseInquiry  Phase = "inquiry"
	PhaseTeaching Phase = "teaching"
)

func ParsePhase(value string) (Phase, bool) {
	switch Phase(value) {
	case PhaseInquiry:
		return PhaseInquiry, true
	case PhaseTeaching:
		return PhaseTeaching, true
	default:
		return Phase(""), false
	}
}

// Message is one persisted conversation turn. Tool results are never stored as
// messages; only the natural-language user/assistant turns (and the assistant's
// requested tool calls, for audit) make it into history.
type Message struct {
	Role      string     `json:"role"` // user|assistant|system
	Content   string     `json:"content"`
	Timestamp time.Time  `json:"timestamp"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall is a structured request from the model to invoke a registered tool.
type ToolCall struct {
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// CompressionSegment is a summary standing in for a contiguous range of folded
// turns. FromTurn/ToTurn are 1-based absolute turn numbers over the whole
// conversation, so segments stay meaningful after history is truncated.
type CompressionSegment struct {
	Summary  string `json:"summary"`
	FromTurn int    `json:"from_turn"`
	ToTurn   int    `json:"to_turn"`
}

// Workspace is one persisted learning session.
type Workspace struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	CreatedAt time.Time `json:"created_at"`
	Path      string    `json:"-"`

	Phase          Phase `json:"current_phase"`
	TokenCount     int   `json:"token_count"`
	TokenThreshold int   `json:"token_threshold"`

	// CompressedContext holds summaries of folded turns, oldest first. History
	// holds only the verbatim tail; turns folded into segments are removed.
	CompressedContext []CompressionSegment `json:"compressed_context"`
	History           []Message            `json:"-"`

	StudyPlan     string `json:"-"`
	ProgressNotes string `json:"-"`
}

// FoldedTurns reports how many leading turns of the conversation have been
// collapsed into CompressedContext. History[i] is absolute turn
// FoldedTurns()+i+1.
func (w *Workspace) FoldedTurns() int {
	if len(w.CompressedContext) == 0 {
		return 0
	}
	return w.CompressedContext[len(w.CompressedContext)-1].ToTurn
}

// TotalTurns is the absolute turn count including folded turns.
func (w *Workspace) TotalTurns() int {
	return w.FoldedTurns() + len(w.History)
}

func (w *Workspace) AppendMessage(role, content string, calls []ToolCall) {
	w.History = append(w.History, Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
		ToolCalls: calls,
	})
}

// CompressedSummary joins all segment summaries in order for prompt embedding.
func (w *Workspace) CompressedSummary() string {
	if len(w.CompressedContext) == 0 {
		return ""
	}
	out := ""
	for i, seg := range w.CompressedContext {
		if i > 0 {
			out += "\n\n"
		}
		out += seg.Summary
	}
	return out
}
