package extract

import "regexp"

type sectionSpec struct {
	id       string
	title    string
	matchers []*regexp.Regexp
}

// sectionCatalog is matched in this order and assigns section order.
var sectionCatalog = []sectionSpec{
	newSectionSpec("overview", "Overview", `overview|executive summary|introduction|summary`),
	newSectionSpec("requirements", "Requirements", `functional requirements|requirements`),
	newSectionSpec("non-functional-requirements", "Non-Functional Requirements", `non[- ]functional requirements|quality attributes`),
	newSectionSpec("architecture", "Architecture", `(?:system |solution |high[- ]level )?architecture|system design`),
	newSectionSpec("data-model", "Data Model", `data models?|database design|entities`),
	newSectionSpec("api-design", "API Design", `api design|api endpoints|apis?|interfaces`),
	newSectionSpec("integration", "Integration Points", `integration points|integrations?|external systems`),
	newSectionSpec("security", "Security", `security(?: considerations)?`),
	newSectionSpec("deployment", "Deployment", `deployment|infrastructure|operations`),
	newSectionSpec("testing", "Testing Strategy", `testing strategy|testing|test plan`),
	newSectionSpec("user-stories", "User Stories", `user stories|stories`),
	newSectionSpec("implementation-plan", "Implementation Plan", `implementation plan|roadmap|milestones|timeline`),
	newSectionSpec("risks", "Risks", `risks(?: and mitigations)?|open questions`),
}

// newSectionSpec builds the ranked matchers for one catalog entry: a numbered
// heading ("2. Architecture", "2) Architecture") ranks above a plain one ("Architecture").
func newSectionSpec(id, title, names string) sectionSpec {
	return sectionSpec{
		id:    id,
		title: title,
		matchers: []*regexp.Regexp{
			regexp.MustCompile(`(?i)^\d+(?:\.\d+)*[.)]?\s+(?:` + names + `)\b`),
			regexp.MustCompile(`(?i)^(?:` + names + `)\b`),
		},
	}
}

// extractSections emits at most one section per catalog entry, and a heading
// claimed by an earlier entry is never reused, so titles cannot repeat.
func extractSections(src *source) []Section {
	sections := make([]Section, 0)
	claimed := make(map[int]bool)

	for _, spec := range sectionCatalog {
		idx, body, ok := matchSection(src, spec, claimed)
		if !ok {
			continue
		}
		claimed[idx] = true
		sections = append(sections, Section{
			ID:      spec.id,
			Title:   stripNumbering(src.headings[idx].text),
			Content: body,
			Order:   len(sections),
		})
	}
	return sections
}

// matchSection tries the matchers in rank order; the first heading with a
// non-empty body wins.
func matchSection(src *source, spec sectionSpec, claimed map[int]bool) (int, string, bool) {
	for _, re := range spec.matchers {
		for i, h := range src.headings {
			if claimed[i] || !re.MatchString(h.text) {
				continue
			}
			if body := src.sectionBody(i); body != "" {
				return i, body, true
			}
		}
	}
	return 0, "", false
}
