package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fenceMarker = "```"

func md(lines ...string) string {
	return strings.Join(lines, "\n")
}

func TestExtractEmptyText(t *testing.T) {
	for _, text := range []string{"", "   \n\n", "just a sentence with no structure at all"} {
		doc := Extract(text)
		assert.True(t, doc.IsEmpty(), "text %q", text)
		assert.NotNil(t, doc.Sections)
		assert.NotNil(t, doc.Diagrams)
		assert.NotNil(t, doc.CodeTemplates)
		assert.NotNil(t, doc.ProjectStructure)
	}
}

func TestExtractIsDeterministic(t *testing.T) {
	text := md(
		"# 1. Overview",
		"A billing service.",
		"## 2. Architecture",
		"Layers and boundaries.",
		fenceMarker+"mermaid",
		"graph TD; A-->B",
		fenceMarker,
		fenceMarker+"go",
		"type InvoiceService interface { Issue() error }",
		fenceMarker,
		fenceMarker,
		"svc/",
		"├── main.go",
		fenceMarker,
	)
	first := Extract(text)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Extract(text))
	}
}

func TestSectionsFollowCatalogOrder(t *testing.T) {
	text := md(
		"## Architecture",
		"Three services behind a gateway.",
		"## Overview",
		"What we are building.",
	)
	doc := Extract(text)
	require.Len(t, doc.Sections, 2)

	assert.Equal(t, "overview", doc.Sections[0].ID)
	assert.Equal(t, "Overview", doc.Sections[0].Title)
	assert.Equal(t, 0, doc.Sections[0].Order)
	assert.Equal(t, "What we are building.", doc.Sections[0].Content)

	assert.Equal(t, "architecture", doc.Sections[1].ID)
	assert.Equal(t, 1, doc.Sections[1].Order)
	assert.Equal(t, "Three services behind a gateway.", doc.Sections[1].Content)
}

func TestSectionsPreferNumberedHeadingAndSkipEmptyBodies(t *testing.T) {
	text := md(
		"## Security",
		"## 7. Security Considerations",
		"Use mTLS between services.",
		"### Secrets",
		"Stored in a vault.",
		"## Deployment",
		"Kubernetes.",
	)
	doc := Extract(text)
	require.Len(t, doc.Sections, 2)

	assert.Equal(t, "security", doc.Sections[0].ID)
	assert.Equal(t, "Security Considerations", doc.Sections[0].Title)
	assert.Equal(t, md("Use mTLS between services.", "### Secrets", "Stored in a vault."), doc.Sections[0].Content)
	assert.Equal(t, "deployment", doc.Sections[1].ID)
}

func TestSectionsParenthesisNumbering(t *testing.T) {
	doc := Extract(md("## 1) Overview", "Scope.", "## 2) Risks", "Vendor lock-in."))
	require.Len(t, doc.Sections, 2)
	assert.Equal(t, "overview", doc.Sections[0].ID)
	assert.Equal(t, "Overview", doc.Sections[0].Title)
	assert.Equal(t, "risks", doc.Sections[1].ID)
	assert.Equal(t, "Risks", doc.Sections[1].Title)
}

func TestSectionsRepeatedHeadingYieldsOneSection(t *testing.T) {
	doc := Extract(md(
		"## Security",
		"First pass.",
		"## Security",
		"Second pass.",
		"## Infrastructure",
		"Two regions.",
		"## Deployment",
		"Blue green.",
	))
	require.Len(t, doc.Sections, 2)
	assert.Equal(t, "security", doc.Sections[0].ID)
	assert.Equal(t, "First pass.", doc.Sections[0].Content)
	assert.Equal(t, "deployment", doc.Sections[1].ID)
	assert.Equal(t, "Infrastructure", doc.Sections[1].Title)
}

func TestSectionsIgnoreHeadingsInsideFences(t *testing.T) {
	text := md(
		fenceMarker+"markdown",
		"## Overview",
		"not a real section",
		fenceMarker,
	)
	assert.Empty(t, Extract(text).Sections)
}

func TestDiagramUnderSecurityHeading(t *testing.T) {
	text := md(
		"## Security Model",
		fenceMarker+"mermaid",
		"graph TD",
		"  Client-->Gateway",
		fenceMarker,
	)
	doc := Extract(text)
	require.Len(t, doc.Diagrams, 1)

	d := doc.Diagrams[0]
	assert.Equal(t, "diagram-1", d.ID)
	assert.Equal(t, DiagramSecurity, d.Category)
	assert.Equal(t, "Security Model", d.Title)
	assert.Equal(t, "mermaid", d.Notation)
	assert.Equal(t, md("graph TD", "  Client-->Gateway"), d.Content)
}

func TestDiagramCategories(t *testing.T) {
	tests := []struct {
		name    string
		heading string
		body    string
		want    DiagramCategory
	}{
		{"sequence content", "", "sequenceDiagram\n  A->>B: call", DiagramLowLevel},
		{"deployment heading", "Deployment Topology", "graph LR; lb-->app", DiagramDeployment},
		{"data flow heading", "Data Flow", "graph LR; in-->out", DiagramDataFlow},
		{"high level heading", "High-Level View", "graph LR; a-->b", DiagramHighLevel},
		{"nothing recognizable", "", "graph LR; a-->b", DiagramComponent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var lines []string
			if tt.heading != "" {
				lines = append(lines, "## "+tt.heading)
			}
			lines = append(lines, fenceMarker+"mermaid", tt.body, fenceMarker)
			doc := Extract(md(lines...))
			require.Len(t, doc.Diagrams, 1)
			assert.Equal(t, tt.want, doc.Diagrams[0].Category)
		})
	}
}

func TestDiagramParticipantsDoNotOverrideContext(t *testing.T) {
	text := md(
		"## Request Flow",
		"How a request reaches the ledger.",
		fenceMarker+"mermaid",
		"sequenceDiagram",
		"  participant Auth",
		"  Client->>Auth: login",
		fenceMarker,
	)
	doc := Extract(text)
	require.Len(t, doc.Diagrams, 1)
	assert.Equal(t, DiagramLowLevel, doc.Diagrams[0].Category)

	// with no signal outside the block, its keywords still count
	doc = Extract(md(fenceMarker+"mermaid", "graph TD; user-->oauth", fenceMarker))
	require.Len(t, doc.Diagrams, 1)
	assert.Equal(t, DiagramSecurity, doc.Diagrams[0].Category)
}

func TestDiagramTitleFallback(t *testing.T) {
	doc := Extract(md(fenceMarker+"plantuml", "@startuml", "a -> b", "@enduml", fenceMarker))
	require.Len(t, doc.Diagrams, 1)
	assert.Equal(t, "component diagram", doc.Diagrams[0].Title)
	assert.Equal(t, "plantuml", doc.Diagrams[0].Notation)
}

func TestCodeTemplateWithFramework(t *testing.T) {
	text := md(
		"## User Service",
		fenceMarker+"ts",
		"import { Injectable } from '@nestjs/common';",
		"@Injectable()",
		"export class UserService {}",
		fenceMarker,
	)
	doc := Extract(text)
	require.Len(t, doc.CodeTemplates, 1)

	c := doc.CodeTemplates[0]
	assert.Equal(t, "code-1", c.ID)
	assert.Equal(t, "User Service", c.Title)
	assert.Equal(t, "typescript", c.Language)
	assert.Equal(t, CodeService, c.Category)
	require.NotNil(t, c.Framework)
	assert.Equal(t, "NestJS", *c.Framework)
}

func TestCodeTemplateExclusions(t *testing.T) {
	text := md(
		fenceMarker,
		"untagged block",
		fenceMarker,
		fenceMarker+"text",
		"plain prose",
		fenceMarker,
		fenceMarker+"mermaid",
		"graph TD; a-->b",
		fenceMarker,
		fenceMarker+"bash",
		"app/",
		"├── main.go",
		fenceMarker,
	)
	assert.Empty(t, Extract(text).CodeTemplates)
}

func TestCodeTemplateDefaults(t *testing.T) {
	doc := Extract(md(fenceMarker+"zzz", "noop", fenceMarker))
	require.Len(t, doc.CodeTemplates, 1)

	c := doc.CodeTemplates[0]
	assert.Equal(t, "zzz", c.Language)
	assert.Equal(t, CodeInterface, c.Category)
	assert.Equal(t, "zzz interface", c.Title)
	assert.Nil(t, c.Framework)
}

func TestCodeCategoryPriority(t *testing.T) {
	assert.Equal(t, CodeDTO, classifyCode("", "type CreateOrderRequest struct{}"))
	assert.Equal(t, CodeSchema, classifyCode("", "CREATE TABLE orders (id int)"))
	assert.Equal(t, CodeTest, classifyCode("Unit tests", "func TestX(t *testing.T) {}"))
	assert.Equal(t, CodeController, classifyCode("", "class OrderController {}"))
	// heading wins over the block contents
	assert.Equal(t, CodeModel, classifyCode("Order Model", "type OrderService struct{}"))
}

func TestProjectStructureTree(t *testing.T) {
	text := md(
		"## Project Structure",
		fenceMarker,
		"my-app/",
		"├── cmd/",
		"│   └── main.go   # entry point",
		"├── Makefile",
		"└── internal",
		"    └── store.go",
		fenceMarker,
	)
	doc := Extract(text)
	require.Len(t, doc.ProjectStructure, 6)

	paths := make([]string, 0, len(doc.ProjectStructure))
	kinds := make([]ItemKind, 0, len(doc.ProjectStructure))
	for _, item := range doc.ProjectStructure {
		paths = append(paths, item.Path)
		kinds = append(kinds, item.Kind)
	}
	assert.Equal(t, []string{
		"my-app",
		"my-app/cmd",
		"my-app/cmd/main.go",
		"my-app/Makefile",
		"my-app/internal",
		"my-app/internal/store.go",
	}, paths)
	assert.Equal(t, []ItemKind{
		KindDirectory, KindDirectory, KindFile, KindFile, KindDirectory, KindFile,
	}, kinds)

	require.NotNil(t, doc.ProjectStructure[2].Description)
	assert.Equal(t, "entry point", *doc.ProjectStructure[2].Description)
	assert.Nil(t, doc.ProjectStructure[0].Description)
	assert.Empty(t, doc.CodeTemplates)
}

func TestProjectStructureASCIITree(t *testing.T) {
	text := md(
		fenceMarker+"text",
		"# layout",
		"src/",
		"|-- app.py  <- wsgi entry",
		"`-- utils/",
		fenceMarker,
	)
	doc := Extract(text)
	require.Len(t, doc.ProjectStructure, 3)
	assert.Equal(t, "src/app.py", doc.ProjectStructure[1].Path)
	require.NotNil(t, doc.ProjectStructure[1].Description)
	assert.Equal(t, "wsgi entry", *doc.ProjectStructure[1].Description)
	assert.Equal(t, "src/utils", doc.ProjectStructure[2].Path)
	assert.Equal(t, KindDirectory, doc.ProjectStructure[2].Kind)
}

func TestProjectStructureNestsUnderDottedDirectories(t *testing.T) {
	text := md(
		fenceMarker,
		".",
		"├── .github",
		"│   └── CODEOWNERS",
		"├── v1.2",
		"│   └── notes.md",
		"└── package.json",
		fenceMarker,
	)
	doc := Extract(text)
	require.Len(t, doc.ProjectStructure, 5)

	got := make(map[string]ItemKind, len(doc.ProjectStructure))
	for _, item := range doc.ProjectStructure {
		got[item.Path] = item.Kind
	}
	assert.Equal(t, map[string]ItemKind{
		".github":            KindDirectory,
		".github/CODEOWNERS": KindFile,
		"v1.2":               KindDirectory,
		"v1.2/notes.md":      KindFile,
		"package.json":       KindFile,
	}, got)
}

func TestNormalizeLanguage(t *testing.T) {
	assert.Equal(t, "typescript", normalizeLanguage("ts"))
	assert.Equal(t, "go", normalizeLanguage("golang"))
	assert.Equal(t, "python", normalizeLanguage("py"))
}
