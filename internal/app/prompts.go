package app

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Prompts holds every model-facing template. The teaching prefix is kept
// byte-identical across turns so providers can reuse their prompt cache;
// all per-workspace material goes into the suffix.
type Prompts struct {
	Inquiry         string `yaml:"inquiry"`
	TeachingPrefix  string `yaml:"teaching_prefix"`
	TeachingSuffix  string `yaml:"teaching_suffix"`
	TeachingWelcome string `yaml:"teaching_welcome"`
	PlanGeneration  string `yaml:"plan_generation"`
	Compression     string `yaml:"compression"`
}

func DefaultPrompts() *Prompts {
	return &Prompts{
		Inquiry: `You are a patient personal tutor meeting a new student who wants to learn about {topic}.

Your job right now is to understand the student before any teaching begins. Ask about:
- what they already know about the topic
- why they want to learn it and what they want to be able to do
- how they prefer to learn (reading, examples, exercises, discussion)
- how much time they can spend

Ask one or two questions per message. Keep the conversation natural. Once you have a clear picture of the student's background, goals, and preferences, call the end_inquiry tool to move on to teaching. Do not call it before you understand the student.`,

		TeachingPrefix: `You are a personal tutor in an ongoing course. You teach in small steps, check understanding before moving on, and adapt to the student's pace. Use concrete examples before abstractions. When a concept benefits from practice, create an exercise with the generate_exercise tool. Use web_search when a question needs current or factual information you are unsure about. Use file_system to keep lesson notes and materials in the workspace. Update your approach based on the progress notes.`,

		TeachingSuffix: `## Study plan
{study_plan}

## Progress notes
{progress_notes}

## Summary of earlier conversation
{compressed_context}

## Workspace files
{file_tree}`,

		TeachingWelcome: `The inquiry phase is complete and a study plan has been prepared. Welcome the student to the course, give a short overview of the plan, and begin with the first item.`,

		PlanGeneration: `Based on the following conversation with a student about {topic}, write a study plan in markdown.

The plan must include:
- a short profile of the student (background, goals, preferences)
- an ordered list of learning milestones, each with a one-line goal
- for each milestone, the teaching approach suited to this student

Write only the plan, no preamble.

Conversation:
{transcript}`,

		Compression: `Summarize the following tutoring conversation segment. Preserve: concepts the student has learned, points they struggled with, decisions about pacing or approach, and any unresolved questions. Write at most {max_words} words.

{previous_summary}Conversation segment:
{transcript}`,
	}
}

// LoadPrompts reads overrides from a prompts.yml file. Missing fields keep
// their defaults; a missing file returns the defaults unchanged.
func LoadPrompts(path string) (*Prompts, error) {
	prompts := DefaultPrompts()
	if path == "" {
		return prompts, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return prompts, nil
		}
		return nil, fmt.Errorf("failed to read prompts file: %w", err)
	}
	var overrides Prompts
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("invalid prompts file %s: %w", path, err)
	}
	mergePrompt(&prompts.Inquiry, overrides.Inquiry)
	mergePrompt(&prompts.TeachingPrefix, overrides.TeachingPrefix)
	mergePrompt(&prompts.TeachingSuffix, overrides.TeachingSuffix)
	mergePrompt(&prompts.TeachingWelcome, overrides.TeachingWelcome)
	mergePrompt(&prompts.PlanGeneration, overrides.PlanGeneration)
	mergePrompt(&prompts.Compression, overrides.Compression)
	return prompts, nil
}

func mergePrompt(dst *string, override string) {
	if strings.TrimSpace(override) != "" {
		*dst = override
	}
}

// render substitutes {name} placeholders. Unknown placeholders are left
// in place so template typos surface in the output instead of vanishing.
func render(template string, vars map[string]string) string {
	out := template
	for name, value := range vars {
		out = strings.ReplaceAll(out, "{"+name+"}", value)
	}
	return out
}
