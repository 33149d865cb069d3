package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// maxToolRounds bounds how many tool round-trips a single turn may take
// before the model is forced to answer in prose.
const maxToolRounds = 6

// TurnEvent is a progress notification emitted while a turn runs.
type TurnEvent struct {
	Kind string // delta|tool_start|tool_done|compressing|phase_transition
	Text string
	Tool string
}

// Application wires the store, completer, phase controller, dispatcher,
// and compressor into the turn loop. Turns on the same workspace are
// serialized; different workspaces run concurrently.
type Application struct {
	Config     Config
	Store      *Store
	Index      *Index
	Completer  Completer
	Prompts    *PromptSource
	Phases     *PhaseController
	Dispatcher *Dispatcher
	Compressor *Compressor
	Logger     *Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewApplication(cfg Config, logger *Logger) (*Application, error) {
	completer, err := NewCompleter(cfg.LLM)
	if err != nil {
		return nil, err
	}
	return NewApplicationWithCompleter(cfg, completer, logger)
}

// NewApplicationWithCompleter is the constructor used by tests and the
// offline mode; it accepts any Completer in place of a provider client.
func NewApplicationWithCompleter(cfg Config, completer Completer, logger *Logger) (*Application, error) {
	store, err := NewStore(cfg.WorkspaceRoot, logger)
	if err != nil {
		return nil, err
	}
	index, err := OpenIndex(cfg.WorkspaceRoot)
	if err != nil {
		return nil, err
	}
	prompts, err := NewPromptSource(cfg.PromptsPath, logger)
	if err != nil {
		index.Close()
		return nil, err
	}
	if err := prompts.Watch(); err != nil {
		logger.Warn("prompt watch unavailable", map[string]any{"error": err.Error()})
	}
	searcher, err := NewSearcher(cfg.Search)
	if err != nil {
		prompts.Close()
		index.Close()
		return nil, err
	}
	return &Application{
		Config:     cfg,
		Store:      store,
		Index:      index,
		Completer:  completer,
		Prompts:    prompts,
		Phases:     NewPhaseController(prompts, logger),
		Dispatcher: NewDispatcher(searcher, logger),
		Compressor: NewCompressor(completer, prompts, logger, cfg.Compress.KeepMessages),
		Logger:     logger,
	}, nil
}

func (a *Application) Close() {
	a.Prompts.Close()
	if err := a.Index.Close(); err != nil {
		a.Logger.Warn("index close failed", map[string]any{"error": err.Error()})
	}
}

func (a *Application) workspaceLock(id string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.locks == nil {
		a.locks = map[string]*sync.Mutex{}
	}
	lock, ok := a.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		a.locks[id] = lock
	}
	return lock
}

func (a *Application) CreateWorkspace(topic string) (*Workspace, error) {
	threshold := a.Config.ModelContextTokens(a.Config.LLM.Model)
	ws, err := a.Store.Create(topic, threshold)
	if err != nil {
		return nil, err
	}
	if err := a.Index.Upsert(ws); err != nil {
		a.Logger.Warn("index update failed", map[string]any{"workspace": ws.ID, "error": err.Error()})
	}
	return ws, nil
}

// ListWorkspaces serves from the sqlite index after rebuilding it from
// disk, so workspaces copied in from elsewhere still show up.
func (a *Application) ListWorkspaces() ([]WorkspaceInfo, error) {
	if err := a.Index.Rebuild(a.Store); err != nil {
		a.Logger.Warn("index rebuild failed", map[string]any{"error": err.Error()})
		return a.Store.List()
	}
	return a.Index.List()
}

func (a *Application) DeleteWorkspace(id string) error {
	lock := a.workspaceLock(id)
	lock.Lock()
	defer lock.Unlock()
	if err := a.Store.Delete(id); err != nil {
		return err
	}
	if err := a.Index.Remove(id); err != nil {
		a.Logger.Warn("index update failed", map[string]any{"workspace": id, "error": err.Error()})
	}
	return nil
}

func (a *Application) LoadWorkspace(id string) (*Workspace, error) {
	return a.Store.Load(id)
}

// RunTurn processes one user message: compresses aged context if the
// estimate crosses the budget, runs the completion and any tool rounds,
// persists the exchange, and returns the assistant's reply. Tool results
// are fed back to the model transiently and never written to history.
func (a *Application) RunTurn(ctx context.Context, workspaceID, userInput string, onEvent func(TurnEvent)) (string, error) {
	if strings.TrimSpace(userInput) == "" {
		return "", errors.New("message must not be empty")
	}
	emit := func(ev TurnEvent) {
		if onEvent != nil {
			onEvent(ev)
		}
	}
	lock := a.workspaceLock(workspaceID)
	lock.Lock()
	defer lock.Unlock()

	ws, err := a.Store.Load(workspaceID)
	if err != nil {
		return "", err
	}
	ws.AppendMessage("user", userInput, nil)
	a.maybeCompress(ctx, ws, emit)

	tc := &ToolContext{Workspace: ws, Store: a.Store}
	var transient []Message
	var final string

	for round := 0; ; round++ {
		tree := ""
		if ws.Phase == PhaseTeaching {
			tree = strings.Join(a.Store.FileTree(ws, 50), "\n")
		}
		system, tools, err := a.Phases.SelectContext(ws, a.Dispatcher, tree)
		if err != nil {
			return "", err
		}
		if round >= maxToolRounds {
			tools = nil
		}

		req := CompletionRequest{
			System:   system,
			Messages: append(append([]Message(nil), ws.History...), transient...),
			Tools:    tools,
			OnDelta: func(delta string) {
				emit(TurnEvent{Kind: "delta", Text: delta})
			},
		}
		result, err := a.Completer.Complete(ctx, req)
		if err != nil && isContextOverflowError(err) {
			// The estimate undershot the real prompt size; compress now
			// and retry once.
			if folded, cerr := a.Compressor.Compress(ctx, ws); cerr == nil && folded {
				emit(TurnEvent{Kind: "compressing", Text: "context compressed after overflow"})
				req.Messages = append(append([]Message(nil), ws.History...), transient...)
				result, err = a.Completer.Complete(ctx, req)
			}
		}
		if err != nil {
			return "", fmt.Errorf("completion failed: %w", err)
		}

		if len(result.ToolCalls) == 0 {
			final = result.Content
			break
		}

		transient = append(transient, Message{
			Role:      "assistant",
			Content:   result.Content,
			Timestamp: time.Now(),
			ToolCalls: result.ToolCalls,
		})
		for _, call := range result.ToolCalls {
			emit(TurnEvent{Kind: "tool_start", Tool: call.Name})
			toolResult := a.Dispatcher.Dispatch(ctx, tc, call)
			emit(TurnEvent{Kind: "tool_done", Tool: call.Name, Text: toolResult.Error})
			transient = append(transient, Message{
				Role:      "user",
				Content:   fmt.Sprintf("Tool result for %s: %s", call.Name, toolResult.FeedbackJSON()),
				Timestamp: time.Now(),
			})

			if call.Name == "end_inquiry" && toolResult.Success {
				if terr := a.Phases.Transition(ctx, ws, a.Completer); terr != nil {
					return "", terr
				}
				emit(TurnEvent{Kind: "phase_transition", Text: string(PhaseTeaching)})
				transient = append(transient, Message{
					Role:      "user",
					Content:   a.Phases.WelcomeInstruction(),
					Timestamp: time.Now(),
				})
			}
		}
	}

	ws.AppendMessage("assistant", final, nil)
	ws.TokenCount = EstimateContext(ws.History, ws.CompressedContext)
	if ws.Phase == PhaseTeaching {
		a.appendProgressNote(ws, userInput)
	}
	if err := a.Store.Save(ws); err != nil {
		return "", fmt.Errorf("turn completed but not saved: %w", err)
	}
	if err := a.Index.Upsert(ws); err != nil {
		a.Logger.Warn("index update failed", map[string]any{"workspace": ws.ID, "error": err.Error()})
	}
	return final, nil
}

// maybeCompress runs the budget check before the turn goes out. A failed
// compression is logged and the turn proceeds uncompressed.
func (a *Application) maybeCompress(ctx context.Context, ws *Workspace, emit func(TurnEvent)) {
	ratio := a.Config.Compress.Ratio
	if ratio <= 0 {
		ratio = DefaultCompressRatio
	}
	ws.TokenCount = EstimateContext(ws.History, ws.CompressedContext, ws.StudyPlan, ws.ProgressNotes)
	if !OverBudget(ws.TokenCount, ws.TokenThreshold, ratio) {
		return
	}
	emit(TurnEvent{Kind: "compressing", Text: "folding older conversation into a summary"})
	folded, err := a.Compressor.Compress(ctx, ws)
	if err != nil {
		a.Logger.Warn("compression skipped", map[string]any{"workspace": ws.ID, "error": err.Error()})
		return
	}
	if !folded {
		a.Logger.Info("compression not applicable", map[string]any{
			"workspace": ws.ID,
			"history":   len(ws.History),
		})
	}
}

func (a *Application) appendProgressNote(ws *Workspace, userInput string) {
	snippet := strings.Join(strings.Fields(userInput), " ")
	if len(snippet) > 100 {
		snippet = snippet[:100] + "..."
	}
	line := fmt.Sprintf("- %s: discussed %q\n", time.Now().Format("2006-01-02 15:04"), snippet)
	ws.ProgressNotes += line
}

// ExportWorkspace writes a markdown transcript of the whole course to
// outPath and returns the path written.
func (a *Application) ExportWorkspace(id, outPath string) (string, error) {
	ws, err := a.Store.Load(id)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", ws.Topic)
	fmt.Fprintf(&b, "Created: %s  \nPhase: %s  \nTurns: %d\n\n", ws.CreatedAt.Format("2006-01-02"), ws.Phase, ws.TotalTurns())
	if ws.StudyPlan != "" {
		b.WriteString("## Study plan\n\n" + ws.StudyPlan + "\n\n")
	}
	if summary := ws.CompressedSummary(); summary != "" {
		b.WriteString("## Summary of earlier conversation\n\n" + summary + "\n\n")
	}
	if ws.ProgressNotes != "" {
		b.WriteString("## Progress notes\n\n" + ws.ProgressNotes + "\n\n")
	}
	b.WriteString("## Transcript\n\n")
	for _, m := range ws.History {
		role := "Student"
		if m.Role == "assistant" {
			role = "Tutor"
		}
		fmt.Fprintf(&b, "**%s** (%s)\n\n%s\n\n", role, m.Timestamp.Format("2006-01-02 15:04"), m.Content)
	}
	if outPath == "" {
		outPath = ws.ID + ".md"
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(outPath, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("export failed: %w", err)
	}
	return outPath, nil
}
