package prompts

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	"gopkg.in/yaml.v3"
)

//go:embed tasks.yaml
var tasksYAML []byte

// ErrUnknownTask is returned by Render for a task with no template.
var ErrUnknownTask = errors.New("no instruction template for task")

type taskTemplate struct {
	Name   string `yaml:"name"`
	System string `yaml:"system"`
	User   string `yaml:"user"`
}

type taskFile struct {
	Tasks []taskTemplate `yaml:"tasks"`
}

// SystemPrompts is the task table: one chat template per task name.
type SystemPrompts struct {
	templates map[string]prompt.ChatTemplate
	names     []string
}

// NewSystemPrompts loads the embedded task table.
func NewSystemPrompts() (*SystemPrompts, error) {
	return Parse(tasksYAML)
}

// Parse builds a task table from YAML.
func Parse(data []byte) (*SystemPrompts, error) {
	var f taskFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse task templates: %w", err)
	}
	sp := &SystemPrompts{templates: make(map[string]prompt.ChatTemplate, len(f.Tasks))}
	for _, t := range f.Tasks {
		if t.Name == "" || strings.TrimSpace(t.System) == "" || strings.TrimSpace(t.User) == "" {
			return nil, fmt.Errorf("task template %q needs a name, a system and a user message", t.Name)
		}
		if _, dup := sp.templates[t.Name]; dup {
			return nil, fmt.Errorf("duplicate task template %q", t.Name)
		}
		sp.templates[t.Name] = prompt.FromMessages(
			schema.FString,
			schema.SystemMessage(strings.TrimSpace(t.System)),
			schema.UserMessage(strings.TrimSpace(t.User)),
		)
		sp.names = append(sp.names, t.Name)
	}
	return sp, nil
}

// Names lists the task names in file order.
func (sp *SystemPrompts) Names() []string {
	return append([]string(nil), sp.names...)
}

// GetTemplate returns the chat template for a task.
func (sp *SystemPrompts) GetTemplate(taskName string) (prompt.ChatTemplate, bool) {
	t, ok := sp.templates[taskName]
	return t, ok
}

// Render fills a task's template and returns the system instruction and the
// user prompt.
func (sp *SystemPrompts) Render(ctx context.Context, taskName string, vars map[string]any) (string, string, error) {
	tmpl, ok := sp.templates[taskName]
	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrUnknownTask, taskName)
	}
	messages, err := tmpl.Format(ctx, vars)
	if err != nil {
		return "", "", fmt.Errorf("render %s template: %w", taskName, err)
	}
	var system, user string
	for _, m := range messages {
		switch m.Role {
		case schema.System:
			system = m.Content
		case schema.User:
			user = m.Content
		}
	}
	return system, user, nil
}
