package extract

import (
	"fmt"
	"regexp"
	"strings"
)

// diagramNotations maps fence tags to the notation reported on the diagram.
var diagramNotations = map[string]string{
	"mermaid":  "mermaid",
	"plantuml": "plantuml",
	"puml":     "plantuml",
	"dot":      "graphviz",
	"graphviz": "graphviz",
	"d2":       "d2",
}

type diagramRule struct {
	category DiagramCategory
	keywords *regexp.Regexp
}

// diagramRules are checked in priority order.
var diagramRules = []diagramRule{
	{DiagramSecurity, regexp.MustCompile(`(?i)\b(security|auth(?:entication|orization)?|oauth|threat|trust boundar(?:y|ies)|encryption)\b`)},
	{DiagramDeployment, regexp.MustCompile(`(?i)\b(deployment|deploy|infrastructure|kubernetes|k8s|cluster|cloud topology)\b`)},
	{DiagramDataFlow, regexp.MustCompile(`(?i)\b(data[- ]?flow|pipeline|etl|event flow|message flow)\b`)},
	{DiagramLowLevel, regexp.MustCompile(`(?i)\b(low[- ]level|sequence(?:diagram)?|class(?:diagram)?|detailed design|state(?:diagram)?)\b`)},
	{DiagramHighLevel, regexp.MustCompile(`(?i)\b(high[- ]level|system context|context diagram|architecture overview|overview)\b`)},
}

const diagramContextWindow = 300

// diagramTypeRe matches a mermaid type declaration that implies a detailed
// design view regardless of the participants named in it.
var diagramTypeRe = regexp.MustCompile(`^(?:sequenceDiagram|classDiagram|stateDiagram(?:-v2)?)\b`)

func extractDiagrams(src *source) []Diagram {
	diagrams := make([]Diagram, 0)
	for _, f := range src.fences {
		notation, ok := diagramNotations[f.tag]
		if !ok {
			continue
		}
		h, hasHeading := src.headingBefore(f.startLine)
		category := classifyDiagram(h.text, src.contextBefore(f.startLine, diagramContextWindow), f.content)

		title := fmt.Sprintf("%s diagram", category)
		if hasHeading {
			title = stripNumbering(h.text)
		}
		diagrams = append(diagrams, Diagram{
			ID:       fmt.Sprintf("diagram-%d", len(diagrams)+1),
			Title:    title,
			Content:  f.content,
			Notation: notation,
			Category: category,
		})
	}
	return diagrams
}

// classifyDiagram looks at the nearest heading, then the text before the
// block, then the block itself, and falls back to component. Names inside the
// block ("Auth", "Deploy") only count when nothing outside it matched.
func classifyDiagram(headingText, context, body string) DiagramCategory {
	for _, text := range []string{headingText, context} {
		if c, ok := matchDiagramRules(text); ok {
			return c
		}
	}
	if diagramTypeRe.MatchString(strings.TrimSpace(body)) {
		return DiagramLowLevel
	}
	if c, ok := matchDiagramRules(body); ok {
		return c
	}
	return DiagramComponent
}

func matchDiagramRules(text string) (DiagramCategory, bool) {
	if text == "" {
		return "", false
	}
	for _, rule := range diagramRules {
		if rule.keywords.MatchString(text) {
			return rule.category, true
		}
	}
	return "", false
}
