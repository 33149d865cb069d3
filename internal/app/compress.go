package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

const (
	// DefaultKeepMessages is how many recent messages stay verbatim when
	// older conversation is folded into a summary.
	DefaultKeepMessages = 20

	compressMaxSummaryWords = 400
	compressPerMessageChars = 2000
	compressTranscriptChars = 60_000
)

// Compressor folds aged conversation turns into summary segments so long
// courses keep fitting the model's context window. Each cycle produces
// one segment covering a contiguous turn range; the most recent messages
// always survive verbatim.
type Compressor struct {
	completer Completer
	prompts   *PromptSource
	logger    *Logger
	keep      int
}

func NewCompressor(completer Completer, prompts *PromptSource, logger *Logger, keepMessages int) *Compressor {
	if keepMessages <= 0 {
		keepMessages = DefaultKeepMessages
	}
	return &Compressor{completer: completer, prompts: prompts, logger: logger, keep: keepMessages}
}

// Compress folds everything older than the retained tail into a new
// summary segment. It reports whether a fold happened. Running it on an
// already-compressed workspace with a short tail is a no-op, so repeated
// calls are safe.
func (c *Compressor) Compress(ctx context.Context, ws *Workspace) (bool, error) {
	if len(ws.History) <= c.keep {
		return false, nil
	}
	aged := ws.History[:len(ws.History)-c.keep]
	fromTurn := ws.FoldedTurns() + 1
	toTurn := ws.FoldedTurns() + len(aged)

	transcript := compressionTranscript(aged)
	previous := ""
	if existing := ws.CompressedSummary(); existing != "" {
		previous = "Summary of conversation before this segment:\n" + existing + "\n\n"
	}
	prompt := render(c.prompts.Prompts().Compression, map[string]string{
		"max_words":        strconv.Itoa(compressMaxSummaryWords),
		"previous_summary": previous,
		"transcript":       transcript,
	})

	result, err := c.completer.Complete(ctx, CompletionRequest{
		Messages: []Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return false, fmt.Errorf("compression summary failed: %w", err)
	}
	summary := capWords(strings.TrimSpace(result.Content), compressMaxSummaryWords)
	if summary == "" {
		return false, fmt.Errorf("compression summary was empty")
	}

	ws.CompressedContext = append(ws.CompressedContext, CompressionSegment{
		Summary:  summary,
		FromTurn: fromTurn,
		ToTurn:   toTurn,
	})
	ws.History = append([]Message(nil), ws.History[len(aged):]...)
	ws.TokenCount = EstimateContext(ws.History, ws.CompressedContext)

	c.logger.Info("context compressed", map[string]any{
		"workspace":  ws.ID,
		"from_turn":  fromTurn,
		"to_turn":    toTurn,
		"new_tokens": ws.TokenCount,
	})
	return true, nil
}

func compressionTranscript(messages []Message) string {
	var b strings.Builder
	for _, m := range messages {
		content := m.Content
		if len(content) > compressPerMessageChars {
			content = content[:compressPerMessageChars] + " [truncated]"
		}
		role := "Student"
		if m.Role == "assistant" {
			role = "Tutor"
		}
		fmt.Fprintf(&b, "%s: %s\n\n", role, content)
		if b.Len() > compressTranscriptChars {
			break
		}
	}
	out := b.String()
	if len(out) > compressTranscriptChars {
		out = out[:compressTranscriptChars] + "\n[transcript truncated]"
	}
	return strings.TrimSpace(out)
}

func capWords(s string, max int) string {
	words := strings.Fields(s)
	if len(words) <= max {
		return s
	}
	return strings.Join(words[:max], " ")
}
