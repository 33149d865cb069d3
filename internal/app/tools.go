package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ToolError is a structured tool failure. The message says what went
// wrong and the hint tells the model how to fix the call; both are fed
// back into the conversation instead of failing the turn.
type ToolError struct {
	Message string `json:"error"`
	Hint    string `json:"hint,omitempty"`
}

func (e *ToolError) Error() string { return e.Message }

func toolErrorf(hint, format string, args ...any) *ToolError {
	return &ToolError{Message: fmt.Sprintf(format, args...), Hint: hint}
}

// ToolResult is the outcome of a single dispatched call.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Name       string `json:"name"`
	Success    bool   `json:"success"`
	Payload    any    `json:"payload,omitempty"`
	Error      string `json:"error,omitempty"`
	Hint       string `json:"hint,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// FeedbackJSON renders the result as the JSON blob the model sees.
func (r ToolResult) FeedbackJSON() string {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Sprintf(`{"tool_call_id":%q,"success":false,"error":"result not serializable"}`, r.ToolCallID)
	}
	return string(data)
}

// ParamSpec describes one tool parameter for both schema generation and
// argument validation.
type ParamSpec struct {
	Name        string
	Type        string
	Description string
	Required    bool
	Enum        []string
	Items       string
}

type toolHandler func(ctx context.Context, tc *ToolContext, args map[string]any) (any, error)

// ToolContext carries the workspace-scoped collaborators a handler needs.
type ToolContext struct {
	Workspace *Workspace
	Store     *Store
}

type toolDef struct {
	name        string
	description string
	params      []ParamSpec
	phases      []Phase
	handler     toolHandler
}

func (d *toolDef) availableIn(phase Phase) bool {
	for _, p := range d.phases {
		if p == phase {
			return true
		}
	}
	return false
}

func (d *toolDef) spec() ToolSpec {
	properties := map[string]any{}
	var required []string
	for _, p := range d.params {
		prop := map[string]any{"type": p.Type, "description": p.Description}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		if p.Type == "array" {
			items := p.Items
			if items == "" {
				items = "string"
			}
			prop["items"] = map[string]any{"type": items}
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema, _ := json.Marshal(map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	})
	return ToolSpec{Name: d.name, Description: d.description, Parameters: schema}
}

// Dispatcher validates and executes tool calls, gated by the workspace
// phase.
type Dispatcher struct {
	tools  map[string]*toolDef
	order  []string
	logger *Logger
}

func NewDispatcher(searcher Searcher, logger *Logger) *Dispatcher {
	d := &Dispatcher{tools: map[string]*toolDef{}, logger: logger}
	d.register(endInquiryTool())
	d.register(generateExerciseTool())
	d.register(webSearchTool(searcher))
	d.register(fileSystemTool())
	return d
}

func (d *Dispatcher) register(def *toolDef) {
	d.tools[def.name] = def
	d.order = append(d.order, def.name)
}

// SpecsForPhase returns the schemas of every tool usable in the phase,
// in registration order.
func (d *Dispatcher) SpecsForPhase(phase Phase) []ToolSpec {
	var specs []ToolSpec
	for _, name := range d.order {
		if def := d.tools[name]; def.availableIn(phase) {
			specs = append(specs, def.spec())
		}
	}
	return specs
}

// Dispatch runs one tool call. Every failure mode becomes a ToolResult
// the model can read; Dispatch itself never returns an error.
func (d *Dispatcher) Dispatch(ctx context.Context, tc *ToolContext, call ToolCall) ToolResult {
	started := time.Now()
	result := ToolResult{ToolCallID: call.ID, Name: call.Name}
	finish := func() ToolResult {
		result.DurationMs = time.Since(started).Milliseconds()
		d.logger.Info("tool dispatched", map[string]any{
			"workspace": tc.Workspace.ID,
			"tool":      call.Name,
			"success":   result.Success,
			"ms":        result.DurationMs,
		})
		return result
	}

	def, ok := d.tools[call.Name]
	if !ok {
		result.Error = fmt.Sprintf("unknown tool %q", call.Name)
		result.Hint = "use one of the tools listed in this conversation"
		return finish()
	}
	if !def.availableIn(tc.Workspace.Phase) {
		result.Error = fmt.Sprintf("tool %q is not available in the %s phase", call.Name, tc.Workspace.Phase)
		if call.Name == "end_inquiry" {
			result.Hint = "the inquiry phase already ended; continue teaching"
		} else {
			result.Hint = "finish the inquiry with end_inquiry before using teaching tools"
		}
		return finish()
	}

	args, err := parseArguments(call.Arguments)
	if err != nil {
		result.Error = err.Error()
		result.Hint = "arguments must be a JSON object"
		return finish()
	}
	if terr := validateArguments(def.params, args); terr != nil {
		result.Error = terr.Message
		result.Hint = terr.Hint
		return finish()
	}

	payload, err := def.handler(ctx, tc, args)
	if err != nil {
		var terr *ToolError
		if errors.As(err, &terr) {
			result.Error = terr.Message
			result.Hint = terr.Hint
		} else {
			result.Error = err.Error()
		}
		return finish()
	}
	result.Success = true
	result.Payload = payload
	return finish()
}

func parseArguments(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("could not parse tool arguments: %v", err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

func validateArguments(params []ParamSpec, args map[string]any) *ToolError {
	known := map[string]ParamSpec{}
	for _, p := range params {
		known[p.Name] = p
		value, present := args[p.Name]
		if !present {
			if p.Required {
				return toolErrorf(
					fmt.Sprintf("provide %q (%s): %s", p.Name, p.Type, p.Description),
					"missing required parameter %q", p.Name)
			}
			continue
		}
		if terr := checkType(p, value); terr != nil {
			return terr
		}
	}
	for name := range args {
		if _, ok := known[name]; !ok {
			return toolErrorf("remove it and resend the call", "unknown parameter %q", name)
		}
	}
	return nil
}

func checkType(p ParamSpec, value any) *ToolError {
	switch p.Type {
	case "string":
		s, ok := value.(string)
		if !ok {
			return toolErrorf(
				fmt.Sprintf("%q must be a string: %s", p.Name, p.Description),
				"parameter %q has the wrong type", p.Name)
		}
		if len(p.Enum) > 0 {
			for _, allowed := range p.Enum {
				if s == allowed {
					return nil
				}
			}
			return toolErrorf(
				fmt.Sprintf("%q must be one of: %s", p.Name, strings.Join(p.Enum, ", ")),
				"invalid value %q for parameter %q", s, p.Name)
		}
	case "number":
		if _, ok := value.(float64); !ok {
			return toolErrorf(
				fmt.Sprintf("%q must be a number: %s", p.Name, p.Description),
				"parameter %q has the wrong type", p.Name)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return toolErrorf(
				fmt.Sprintf("%q must be true or false", p.Name),
				"parameter %q has the wrong type", p.Name)
		}
	case "array":
		if _, ok := value.([]any); !ok {
			return toolErrorf(
				fmt.Sprintf("%q must be a JSON array: %s", p.Name, p.Description),
				"parameter %q has the wrong type", p.Name)
		}
	}
	return nil
}

func stringArg(args map[string]any, name string) string {
	s, _ := args[name].(string)
	return s
}

func stringSliceArg(args map[string]any, name string) []string {
	raw, _ := args[name].([]any)
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func endInquiryTool() *toolDef {
	return &toolDef{
		name:        "end_inquiry",
		description: "End the inquiry phase once the student's background, goals, and preferences are clear. A study plan is generated and teaching begins.",
		params: []ParamSpec{
			{Name: "summary", Type: "string", Description: "One-paragraph summary of what you learned about the student", Required: false},
		},
		phases: []Phase{PhaseInquiry},
		handler: func(ctx context.Context, tc *ToolContext, args map[string]any) (any, error) {
			// The actual transition runs in the turn loop; reaching this
			// handler means the call was valid.
			return map[string]any{"status": "inquiry complete"}, nil
		},
	}
}

func webSearchTool(searcher Searcher) *toolDef {
	return &toolDef{
		name:        "web_search",
		description: "Search the web for current or factual information. Returns titles, URLs, and snippets.",
		params: []ParamSpec{
			{Name: "query", Type: "string", Description: "The search query", Required: true},
			{Name: "max_results", Type: "number", Description: "Maximum results to return, default 5", Required: false},
		},
		phases: []Phase{PhaseTeaching},
		handler: func(ctx context.Context, tc *ToolContext, args map[string]any) (any, error) {
			if searcher == nil {
				return nil, toolErrorf("answer from your own knowledge instead", "web search is not configured")
			}
			query := strings.TrimSpace(stringArg(args, "query"))
			if query == "" {
				return nil, toolErrorf("provide a non-empty search query", "query must not be empty")
			}
			max := 5
			if n, ok := args["max_results"].(float64); ok && n > 0 {
				max = int(n)
			}
			if max > 10 {
				max = 10
			}
			results, err := searcher.Search(ctx, query, max)
			if err != nil {
				return nil, toolErrorf("try a different query or continue without search", "search failed: %v", err)
			}
			return map[string]any{"query": query, "results": results}, nil
		},
	}
}

func generateExerciseTool() *toolDef {
	return &toolDef{
		name:        "generate_exercise",
		description: "Create a practice exercise for the student and save it to the workspace. Objective types (choice, fill_blank, match, multi_fill) are graded locally.",
		params: []ParamSpec{
			{Name: "type", Type: "string", Description: "Exercise type", Required: true, Enum: exerciseTypes()},
			{Name: "question", Type: "string", Description: "The exercise question or prompt", Required: true},
			{Name: "options", Type: "array", Description: "Answer options, required for choice exercises", Required: false},
			{Name: "blanks", Type: "array", Description: "Blank positions, required for fill exercises", Required: false},
			{Name: "correct_answers", Type: "array", Description: "The correct answers, required for objective types", Required: false},
			{Name: "explanation", Type: "string", Description: "Explanation shown after grading", Required: false},
			{Name: "difficulty", Type: "string", Description: "Exercise difficulty", Required: false, Enum: []string{"easy", "medium", "hard"}},
		},
		phases: []Phase{PhaseTeaching},
		handler: func(ctx context.Context, tc *ToolContext, args map[string]any) (any, error) {
			ex, terr := BuildExercise(
				stringArg(args, "type"),
				stringArg(args, "question"),
				stringSliceArg(args, "options"),
				stringSliceArg(args, "blanks"),
				stringSliceArg(args, "correct_answers"),
				stringArg(args, "explanation"),
			)
			if terr != nil {
				return nil, terr
			}
			ex.Difficulty = stringArg(args, "difficulty")
			path, err := tc.Store.SaveExercise(tc.Workspace, ex)
			if err != nil {
				return nil, fmt.Errorf("could not save exercise: %w", err)
			}
			return map[string]any{"exercise_id": ex.ID, "path": path, "type": ex.Type}, nil
		},
	}
}

func fileSystemTool() *toolDef {
	return &toolDef{
		name:        "file_system",
		description: "Read and manage files in the workspace. Paths are relative to the workspace root; use notes/ for lesson material.",
		params: []ParamSpec{
			{Name: "operation", Type: "string", Description: "Operation to perform", Required: true, Enum: []string{"read", "write", "edit", "delete", "mkdir", "list"}},
			{Name: "path", Type: "string", Description: "Path relative to the workspace root", Required: true},
			{Name: "content", Type: "string", Description: "File content, required for write", Required: false},
			{Name: "old_text", Type: "string", Description: "Exact text to replace, required for edit", Required: false},
			{Name: "new_text", Type: "string", Description: "Replacement text, required for edit", Required: false},
		},
		phases:  []Phase{PhaseTeaching},
		handler: handleFileSystem,
	}
}

func handleFileSystem(ctx context.Context, tc *ToolContext, args map[string]any) (any, error) {
	op := stringArg(args, "operation")
	rel := stringArg(args, "path")
	abs, terr := resolveWorkspacePath(tc.Workspace.Path, rel)
	if terr != nil {
		return nil, terr
	}

	switch op {
	case "read":
		data, err := os.ReadFile(abs)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, toolErrorf("use the list operation to see existing files", "file %s does not exist", rel)
			}
			return nil, fmt.Errorf("read failed: %w", err)
		}
		return map[string]any{"path": rel, "content": string(data)}, nil

	case "write":
		content, ok := args["content"].(string)
		if !ok {
			return nil, toolErrorf("provide the full file content in the content parameter", "write requires content")
		}
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return nil, fmt.Errorf("write failed: %w", err)
		}
		if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
			return nil, fmt.Errorf("write failed: %w", err)
		}
		return map[string]any{"path": rel, "bytes": len(content)}, nil

	case "edit":
		oldText := stringArg(args, "old_text")
		newText, hasNew := args["new_text"].(string)
		if oldText == "" || !hasNew {
			return nil, toolErrorf("provide old_text with the exact text to replace and new_text with its replacement", "edit requires old_text and new_text")
		}
		data, err := os.ReadFile(abs)
		if err != nil {
			return nil, toolErrorf("read the file first to get its current content", "file %s does not exist", rel)
		}
		content := string(data)
		count := strings.Count(content, oldText)
		if count == 0 {
			return nil, toolErrorf("read the file and copy the text to replace exactly", "old_text not found in %s", rel)
		}
		if count > 1 {
			return nil, toolErrorf("include more surrounding text so the match is unique", "old_text appears %d times in %s", count, rel)
		}
		content = strings.Replace(content, oldText, newText, 1)
		if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
			return nil, fmt.Errorf("edit failed: %w", err)
		}
		return map[string]any{"path": rel, "replaced": true}, nil

	case "delete":
		if isProtectedWorkspaceFile(rel) {
			return nil, toolErrorf("that file is managed automatically and cannot be deleted", "%s is a protected workspace file", rel)
		}
		if err := os.Remove(abs); err != nil {
			if os.IsNotExist(err) {
				return nil, toolErrorf("use the list operation to see existing files", "file %s does not exist", rel)
			}
			return nil, fmt.Errorf("delete failed: %w", err)
		}
		return map[string]any{"path": rel, "deleted": true}, nil

	case "mkdir":
		if err := os.MkdirAll(abs, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir failed: %w", err)
		}
		return map[string]any{"path": rel, "created": true}, nil

	case "list":
		entries, err := os.ReadDir(abs)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, toolErrorf("use mkdir to create the directory first", "directory %s does not exist", rel)
			}
			return nil, fmt.Errorf("list failed: %w", err)
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() {
				name += "/"
			}
			names = append(names, name)
		}
		sort.Strings(names)
		return map[string]any{"path": rel, "entries": names}, nil
	}
	return nil, toolErrorf("use read, write, edit, delete, mkdir, or list", "unknown operation %q", op)
}

func isProtectedWorkspaceFile(rel string) bool {
	switch filepath.Clean(rel) {
	case "history.json", "workspace_state.json", "study_plan.md", "progress_notes.md":
		return true
	}
	return false
}

// resolveWorkspacePath maps a model-supplied relative path to an absolute
// path inside the workspace. Absolute paths, traversal outside the root,
// and symlinks pointing out of the workspace are all rejected.
func resolveWorkspacePath(root, rel string) (string, *ToolError) {
	if strings.TrimSpace(rel) == "" {
		return "", toolErrorf("provide a path relative to the workspace root", "path must not be empty")
	}
	if filepath.IsAbs(rel) {
		return "", toolErrorf("use a path relative to the workspace root, for example notes/lesson1.md", "absolute paths are not allowed")
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", toolErrorf("", "could not resolve workspace root: %v", err)
	}
	abs := filepath.Clean(filepath.Join(absRoot, rel))
	if abs != absRoot && !strings.HasPrefix(abs, absRoot+string(filepath.Separator)) {
		return "", toolErrorf("paths must stay inside the workspace", "path %q escapes the workspace", rel)
	}

	// Symlinks inside the tree could still point elsewhere. Resolve the
	// deepest existing ancestor and verify it stays under the root.
	resolvedRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		return "", toolErrorf("", "could not resolve workspace root: %v", err)
	}
	ancestor := abs
	for {
		resolved, err := filepath.EvalSymlinks(ancestor)
		if err == nil {
			if resolved != resolvedRoot && !strings.HasPrefix(resolved, resolvedRoot+string(filepath.Separator)) {
				return "", toolErrorf("paths must stay inside the workspace", "path %q escapes the workspace", rel)
			}
			break
		}
		if !os.IsNotExist(err) {
			return "", toolErrorf("", "could not resolve path: %v", err)
		}
		parent := filepath.Dir(ancestor)
		if parent == ancestor {
			break
		}
		ancestor = parent
	}
	return abs, nil
}
