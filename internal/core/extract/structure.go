package extract

import (
	"path"
	"regexp"
	"strings"
	"unicode/utf8"
)

const treeGlyphs = "│├└─┬┴┼┌┐┘║═╠╚╔"

var (
	asciiTreeRe   = regexp.MustCompile(`(?m)^[\s|]*(\|--|\+--|` + "`--" + `|\\--)`)
	descriptionRe = regexp.MustCompile(`\s+(?:#|//|<-+|←)\s*(.*)$`)
	connectorRe   = regexp.MustCompile(`^(?:[│├└─┬┴┼┌┐┘║═╠╚╔|+` + "`" + `\\\-]|\s)+`)
)

// extensionless files that would otherwise be taken for directories.
var knownFiles = map[string]bool{
	"Makefile": true, "Dockerfile": true, "LICENSE": true, "README": true,
	"Procfile": true, "Gemfile": true, "Rakefile": true, "Jenkinsfile": true,
	"Vagrantfile": true, "CODEOWNERS": true,
}

// isTreeDrawing reports whether a block looks like a box-drawing or ASCII
// directory tree rather than code.
func isTreeDrawing(content string) bool {
	return strings.ContainsAny(content, treeGlyphs) || asciiTreeRe.MatchString(content)
}

type treeFrame struct {
	indent int
	path   string
}

func extractProjectStructure(src *source) []ProjectStructureItem {
	items := make([]ProjectStructureItem, 0)
	for _, f := range src.fences {
		if isDiagramTag(f.tag) || !isTreeDrawing(f.content) {
			continue
		}
		items = append(items, parseTree(f.content)...)
	}
	return items
}

type treeEntry struct {
	name        string
	indent      int
	description *string
}

func parseTree(block string) []ProjectStructureItem {
	entries := treeEntries(block)

	var (
		items []ProjectStructureItem
		stack []treeFrame
	)
	for i, e := range entries {
		for len(stack) > 0 && stack[len(stack)-1].indent >= e.indent {
			stack = stack[:len(stack)-1]
		}
		// "." names the tree root; its children stay relative.
		if e.name == "." || e.name == "./" {
			continue
		}
		full := strings.TrimSuffix(e.name, "/")
		if len(stack) > 0 {
			full = path.Join(stack[len(stack)-1].path, full)
		}

		kind := KindFile
		hasChildren := i+1 < len(entries) && entries[i+1].indent > e.indent
		if hasChildren || isDirectoryName(e.name) {
			kind = KindDirectory
			stack = append(stack, treeFrame{indent: e.indent, path: full})
		}
		items = append(items, ProjectStructureItem{Path: full, Kind: kind, Description: e.description})
	}
	return items
}

func treeEntries(block string) []treeEntry {
	var entries []treeEntry
	for _, raw := range strings.Split(block, "\n") {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "//") {
			continue
		}

		var description *string
		entry := raw
		if m := descriptionRe.FindStringSubmatchIndex(raw); m != nil {
			if d := strings.TrimSpace(raw[m[2]:m[3]]); d != "" {
				description = &d
			}
			entry = raw[:m[0]]
		}

		prefix := connectorRe.FindString(entry)
		name := strings.TrimSpace(entry[len(prefix):])
		if name == "" {
			continue
		}
		entries = append(entries, treeEntry{
			name:        name,
			indent:      utf8.RuneCountInString(prefix),
			description: description,
		})
	}
	return entries
}

func isDirectoryName(name string) bool {
	if strings.HasSuffix(name, "/") || strings.HasSuffix(name, `\`) {
		return true
	}
	base := path.Base(name)
	if knownFiles[base] {
		return false
	}
	return path.Ext(base) == ""
}
