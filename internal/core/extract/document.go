// Package extract turns loosely structured generated markdown into a typed
// document. Extract never fails: text without recognizable patterns yields a
// document with empty collections.
package extract

import "sync"

type Section struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Order   int    `json:"order"`
}

type DiagramCategory string

const (
	DiagramHighLevel  DiagramCategory = "high-level"
	DiagramLowLevel   DiagramCategory = "low-level"
	DiagramDataFlow   DiagramCategory = "data-flow"
	DiagramDeployment DiagramCategory = "deployment"
	DiagramSecurity   DiagramCategory = "security"
	DiagramComponent  DiagramCategory = "component"
)

type Diagram struct {
	ID       string          `json:"id"`
	Title    string          `json:"title"`
	Content  string          `json:"content"`
	Notation string          `json:"notation"`
	Category DiagramCategory `json:"category"`
}

type CodeCategory string

const (
	CodeInterface  CodeCategory = "interface"
	CodeDTO        CodeCategory = "dto"
	CodeService    CodeCategory = "service"
	CodeController CodeCategory = "controller"
	CodeModel      CodeCategory = "model"
	CodeConfig     CodeCategory = "config"
	CodeTest       CodeCategory = "test"
	CodeSchema     CodeCategory = "schema"
)

type CodeTemplate struct {
	ID        string       `json:"id"`
	Title     string       `json:"title"`
	Content   string       `json:"content"`
	Language  string       `json:"language"`
	Category  CodeCategory `json:"category"`
	Framework *string      `json:"framework,omitempty"`
}

type ItemKind string

const (
	KindFile      ItemKind = "file"
	KindDirectory ItemKind = "directory"
)

type ProjectStructureItem struct {
	Path        string   `json:"path"`
	Kind        ItemKind `json:"kind"`
	Description *string  `json:"description,omitempty"`
}

// Document is the structured form of a generated text.
type Document struct {
	Sections         []Section              `json:"sections"`
	Diagrams         []Diagram              `json:"diagrams"`
	CodeTemplates    []CodeTemplate         `json:"code_templates"`
	ProjectStructure []ProjectStructureItem `json:"project_structure"`
}

// IsEmpty reports whether no extractor found anything.
func (d Document) IsEmpty() bool {
	return len(d.Sections) == 0 && len(d.Diagrams) == 0 &&
		len(d.CodeTemplates) == 0 && len(d.ProjectStructure) == 0
}

// Extract parses text into a Document. The four sub-extractors run
// concurrently over a read-only scan of the text.
func Extract(text string) Document {
	src := scan(text)

	var (
		doc Document
		wg  sync.WaitGroup
	)
	wg.Add(4)
	go func() { defer wg.Done(); doc.Sections = extractSections(src) }()
	go func() { defer wg.Done(); doc.Diagrams = extractDiagrams(src) }()
	go func() { defer wg.Done(); doc.CodeTemplates = extractCodeTemplates(src) }()
	go func() { defer wg.Done(); doc.ProjectStructure = extractProjectStructure(src) }()
	wg.Wait()

	return doc
}
