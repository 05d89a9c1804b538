package extract

import (
	"regexp"
	"strings"
)

var (
	headingRe    = regexp.MustCompile(`^ {0,3}(#{1,6})[ \t]+(.+?)(?:[ \t]+#+)?[ \t]*$`)
	fenceOpenRe  = regexp.MustCompile("^ {0,3}(`{3,}|~{3,})[ \t]*([^`\\s{]*)")
	numberingRe  = regexp.MustCompile(`^\d+(?:\.\d+)*[.)]?\s+`)
	emphasisTrim = strings.NewReplacer("**", "", "__", "", "`", "")
)

type line struct {
	text   string
	offset int
}

type heading struct {
	level int
	text  string
	line  int
}

type fence struct {
	tag       string
	content   string
	startLine int // line of the opening fence
	endLine   int // line of the closing fence, or last line when unclosed
}

// source is an immutable scan shared by all sub-extractors.
type source struct {
	text     string
	lines    []line
	headings []heading
	fences   []fence
}

func scan(text string) *source {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	src := &source{text: text}

	offset := 0
	for _, l := range strings.Split(text, "\n") {
		src.lines = append(src.lines, line{text: l, offset: offset})
		offset += len(l) + 1
	}

	for i := 0; i < len(src.lines); i++ {
		l := src.lines[i].text
		if m := fenceOpenRe.FindStringSubmatch(l); m != nil {
			f, end := readFence(src.lines, i, m[1], m[2])
			src.fences = append(src.fences, f)
			i = end
			continue
		}
		if m := headingRe.FindStringSubmatch(l); m != nil {
			src.headings = append(src.headings, heading{
				level: len(m[1]),
				text:  cleanHeading(m[2]),
				line:  i,
			})
		}
	}
	return src
}

func readFence(lines []line, start int, marker, tag string) (fence, int) {
	char := marker[:1]
	end := len(lines) - 1
	var body []string
	for j := start + 1; j < len(lines); j++ {
		trimmed := strings.TrimSpace(lines[j].text)
		if strings.HasPrefix(trimmed, marker) && strings.Trim(trimmed, char) == "" {
			end = j
			break
		}
		body = append(body, lines[j].text)
	}
	return fence{
		tag:       strings.ToLower(tag),
		content:   strings.Join(body, "\n"),
		startLine: start,
		endLine:   end,
	}, end
}

func cleanHeading(s string) string {
	return strings.TrimSpace(emphasisTrim.Replace(s))
}

// stripNumbering removes a leading "1.", "1)" or "2.3" section number.
func stripNumbering(s string) string {
	return strings.TrimSpace(numberingRe.ReplaceAllString(s, ""))
}

// headingBefore returns the closest heading above the given line.
func (s *source) headingBefore(lineIdx int) (heading, bool) {
	for i := len(s.headings) - 1; i >= 0; i-- {
		if s.headings[i].line < lineIdx {
			return s.headings[i], true
		}
	}
	return heading{}, false
}

// contextBefore returns up to limit bytes of text preceding the given line.
func (s *source) contextBefore(lineIdx, limit int) string {
	if lineIdx <= 0 || lineIdx >= len(s.lines) {
		return ""
	}
	end := s.lines[lineIdx].offset
	start := end - limit
	if start < 0 {
		start = 0
	}
	return s.text[start:end]
}

// sectionBody returns the text between a heading and the next heading of the
// same or a higher level.
func (s *source) sectionBody(idx int) string {
	h := s.headings[idx]
	endLine := len(s.lines)
	for _, next := range s.headings[idx+1:] {
		if next.level <= h.level {
			endLine = next.line
			break
		}
	}
	var b strings.Builder
	for i := h.line + 1; i < endLine; i++ {
		b.WriteString(s.lines[i].text)
		b.WriteByte('\n')
	}
	return strings.TrimSpace(b.String())
}
