package eino

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Fake is a deterministic generator for tests and local runs. It picks a
// canned document by the task name carried on the context (see WithTask);
// calls without one get a specification.
type Fake struct {
	mu    sync.Mutex
	calls []FakeCall
	// Errors forces a failure for every call of a task.
	Errors map[string]error
	// Responses overrides the canned document per task.
	Responses map[string]string
}

type FakeCall struct {
	Kind              string
	Prompt            string
	SystemInstruction string
}

func NewFake() *Fake {
	return &Fake{Errors: map[string]error{}, Responses: map[string]string{}}
}

const fakeDefaultKind = "specification"

func (f *Fake) Generate(ctx context.Context, prompt, systemInstruction string) (*Generation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	kind := TaskFromContext(ctx)
	if kind == "" {
		kind = fakeDefaultKind
	}

	f.mu.Lock()
	f.calls = append(f.calls, FakeCall{Kind: kind, Prompt: prompt, SystemInstruction: systemInstruction})
	err := f.Errors[kind]
	override, hasOverride := f.Responses[kind]
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	content := override
	if !hasOverride {
		content = cannedDocument(kind, summarize(prompt))
	}
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyResponse
	}
	return &Generation{
		Content: content,
		Metadata: map[string]any{
			"provider":     ProviderFake,
			"model":        "fake-" + kind,
			"task":         kind,
			"total_tokens": len(prompt)/4 + len(content)/4,
		},
	}, nil
}

// Calls returns a copy of every call made so far.
func (f *Fake) Calls() []FakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]FakeCall(nil), f.calls...)
}

// CallCount counts calls of one kind.
func (f *Fake) CallCount(kind string) int {
	n := 0
	for _, c := range f.Calls() {
		if c.Kind == kind {
			n++
		}
	}
	return n
}

func (f *Fake) FailKind(kind string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Errors[kind] = err
}

// summarize picks the first non-empty line of the prompt body.
func summarize(prompt string) string {
	for _, l := range strings.Split(prompt, "\n") {
		l = strings.TrimSpace(strings.TrimLeft(l, "#>-* "))
		if l == "" || strings.HasSuffix(l, ":") {
			continue
		}
		if len(l) > 80 {
			l = l[:80]
		}
		return l
	}
	return "the requested system"
}

const fence = "```"

func cannedDocument(kind, summary string) string {
	switch kind {
	case "stories":
		return fmt.Sprintf(`# User Stories

Context: %s

1. As a customer, I want to create an account so that I can track my orders.
   - Acceptance: a confirmation email is sent within one minute.
2. As an administrator, I want to deactivate accounts so that abuse can be stopped.
   - Acceptance: deactivated users cannot sign in.
3. As a customer, I want to reset my password so that I can regain access.
`, summary)
	case "diagrams":
		return strings.Join([]string{
			"## High-Level Architecture",
			"Context: " + summary,
			fence + "mermaid",
			"graph TD",
			"  Client --> Gateway",
			"  Gateway --> OrderService",
			"  OrderService --> Postgres",
			fence,
			"## Login Sequence",
			fence + "mermaid",
			"sequenceDiagram",
			"  Client->>Gateway: POST /login",
			"  Gateway->>AuthService: verify",
			fence,
		}, "\n")
	case "code":
		return strings.Join([]string{
			"## Order Service",
			"Context: " + summary,
			fence + "go",
			"type OrderService interface {",
			"\tPlace(ctx context.Context, o Order) error",
			"}",
			fence,
			"## Create Order Request",
			fence + "ts",
			"export interface CreateOrderRequest {",
			"  sku: string;",
			"  quantity: number;",
			"}",
			fence,
		}, "\n")
	case "structure":
		return strings.Join([]string{
			"## Project Structure",
			"Context: " + summary,
			fence,
			"orders/",
			"├── cmd/",
			"│   └── main.go      # service entry point",
			"├── internal/",
			"│   ├── order/",
			"│   │   └── service.go",
			"│   └── store/",
			"│       └── postgres.go",
			"└── Makefile",
			fence,
		}, "\n")
	case "consolidate":
		return strings.Join([]string{
			"# Consolidated Plan",
			"",
			"## 1. Overview",
			"This plan integrates " + summary + " with the existing platform.",
			"",
			"## 2. Architecture",
			"A gateway fronts the order service, which owns its Postgres schema.",
			"",
			"### High-Level Architecture",
			fence + "mermaid",
			"graph TD",
			"  Client --> Gateway",
			"  Gateway --> OrderService",
			fence,
			"",
			"## 3. API Design",
			"### Order Service",
			fence + "go",
			"type OrderService interface {",
			"\tPlace(ctx context.Context, o Order) error",
			"}",
			fence,
			"",
			"## 4. Security",
			"All calls carry a signed service token.",
			fence + "mermaid",
			"graph LR",
			"  Gateway -- mTLS --> OrderService",
			fence,
			"",
			"## 5. Implementation Plan",
			"1. Scaffold the service.",
			"2. Wire the gateway route.",
			"",
			"### Project Structure",
			fence,
			"orders/",
			"├── cmd/",
			"│   └── main.go      # service entry point",
			"└── internal/",
			"    └── order/",
			"        └── service.go",
			fence,
		}, "\n")
	default:
		return strings.Join([]string{
			"# Specification",
			"",
			"## 1. Overview",
			"A specification for " + summary + ".",
			"",
			"## 2. Functional Requirements",
			"- Users can sign up, sign in and reset passwords.",
			"- Administrators can deactivate accounts.",
			"",
			"## 3. Architecture",
			"A single service behind the API gateway.",
			fence + "mermaid",
			"graph TD",
			"  Client --> API",
			"  API --> DB",
			fence,
			"",
			"## 4. Data Model",
			fence + "sql",
			"CREATE TABLE accounts (id uuid primary key, email text not null);",
			fence,
			"",
			"## 5. Security",
			"Passwords are hashed with argon2id.",
		}, "\n")
	}
}
