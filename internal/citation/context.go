package citation

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"litassist/internal/logging"
)

// contextFetchTimeout bounds each document retrieval during context
// building.
const contextFetchTimeout = 15 * time.Second

var (
	sectionRefPattern  = regexp.MustCompile(`(?i)\b(?:section\s+|s\.?\s*)(\d+[A-Za-z]{0,3})\b`)
	sectionHeadPattern = regexp.MustCompile(`^\s*(\d+[A-Za-z]{0,3})\s+[A-Z]`)
	blankRun           = regexp.MustCompile(`\n{3,}`)
)

// boilerplatePrefixes are dropped line-by-line from fetched documents. The
// comparison is case-insensitive against the trimmed line start.
var boilerplatePrefixes = []string{
	"copyright",
	"©",
	"privacy",
	"terms of use",
	"terms and conditions",
	"skip to main",
	"last updated",
	"database last updated",
	"disclaimer",
	"feedback",
	"about this site",
	"accessibility",
	"sitemap",
	"print this page",
	"back to top",
	"austlii:",
	"url: http",
	"signed in as",
}

// FetchContext retrieves the full text of the document behind a citation.
// The cached verification URL is tried first; search-driven candidates are
// only built when it is absent or unusable. A fetched document must open
// with the core citation or statute name to be accepted. Statute citations
// carrying a section reference are narrowed to that section plus one
// neighbour on each side.
func (v *Verifier) FetchContext(ctx context.Context, cit string) (string, error) {
	normalized := Normalize(cit)

	if r, ok := v.cache.Get(normalized); ok && r.URL != "" {
		if content, usable := v.tryContextSource(ctx, cit, normalized, r.URL); usable {
			return content, nil
		}
	}

	for _, candidate := range v.searchCandidates(ctx, normalized) {
		if content, usable := v.tryContextSource(ctx, cit, normalized, candidate); usable {
			return content, nil
		}
	}
	return "", fmt.Errorf("no usable source found for %s", normalized)
}

// tryContextSource fetches one candidate and validates it against the
// citation.
func (v *Verifier) tryContextSource(ctx context.Context, cit, normalized, candidate string) (string, bool) {
	fctx, cancel := context.WithTimeout(ctx, contextFetchTimeout)
	content, err := v.fetcher.Fetch(fctx, candidate)
	cancel()
	if err != nil || strings.TrimSpace(content) == "" {
		return "", false
	}
	if !contentMatchesCitation(content, normalized) {
		logging.CitationWarn("Content from %s does not open with %s, trying next source", candidate, normalized)
		return "", false
	}

	cleaned := cleanDocument(content)
	if section, ok := sectionReference(cit); ok {
		if window := extractSectionWindow(cleaned, section); window != "" {
			logging.Citation("Narrowed %s to section %s context", normalized, section)
			return window, true
		}
	}
	return cleaned, true
}

// searchCandidates builds the ordered URL list for a citation from static
// tables, CSE searches, and direct-URL construction.
func (v *Verifier) searchCandidates(ctx context.Context, normalized string) []string {
	var candidates []string
	seen := make(map[string]bool)
	add := func(u string) {
		if u != "" && !seen[u] {
			seen[u] = true
			candidates = append(candidates, u)
		}
	}

	if IsLegislation(normalized) {
		if path, ok := foiaLocalDocuments[normalized]; ok {
			add(path)
		}
		if u, ok := hardcodedActURLs[stripJurisdiction(normalized)]; ok {
			add(u)
		}
		v.addLegislationSearchCandidates(ctx, normalized, add)
		return candidates
	}

	v.addCaseSearchCandidates(ctx, normalized, add)

	if parts, ok := parseMediumNeutral(normalized); ok {
		if jurisdiction, known := courtMapping[parts.Court]; known {
			add(fmt.Sprintf(austliiCaseURL, jurisdiction, parts.Court, parts.Year, parts.Number))
		}
	}
	return candidates
}

// addLegislationSearchCandidates searches government PDFs first, then
// AustLII's legislation collection, then accepts any government link.
func (v *Verifier) addLegislationSearchCandidates(ctx context.Context, normalized string, add func(string)) {
	engineID := v.settings.GoogleCSE.CSEIDComprehensive
	if engineID == "" {
		engineID = v.settings.GoogleCSE.CSEID
	}
	name := stripJurisdiction(normalized)

	items, err := v.search.search(ctx, engineID, name+" site:gov.au filetype:pdf", 5)
	if err != nil {
		logging.CitationWarn("Government PDF search failed for %s: %v", name, err)
	}
	for _, item := range items {
		if strings.HasSuffix(strings.ToLower(item.Link), ".pdf") {
			add(item.Link)
		}
	}

	var fallback []string
	if austliiID := v.settings.GoogleCSE.CSEIDAustLII; austliiID != "" {
		austliiItems, aerr := v.search.search(ctx, austliiID, name, 10)
		if aerr != nil {
			logging.CitationWarn("AustLII legislation search failed for %s: %v", name, aerr)
		}
		for _, item := range austliiItems {
			if strings.Contains(item.Link, "/au/legis/") {
				add(item.Link)
			} else {
				fallback = append(fallback, item.Link)
			}
		}
	}
	for _, item := range items {
		if strings.Contains(item.Link, ".gov.au") {
			add(item.Link)
		}
	}
	for _, link := range fallback {
		add(link)
	}
}

// addCaseSearchCandidates prefers AustLII case-collection links, then any
// government or AustLII result.
func (v *Verifier) addCaseSearchCandidates(ctx context.Context, normalized string, add func(string)) {
	engineID := v.settings.GoogleCSE.CSEIDAustLII
	if engineID == "" {
		engineID = v.settings.GoogleCSE.CSEID
	}

	items, err := v.search.search(ctx, engineID, normalized, 10)
	if err != nil {
		logging.CitationWarn("Case-law search failed for %s: %v", normalized, err)
		return
	}

	var fallback []string
	for _, item := range items {
		if strings.Contains(item.Link, "/au/cases/") {
			add(item.Link)
		} else if strings.Contains(item.Link, "austlii.edu.au") || strings.Contains(item.Link, ".gov.au") {
			fallback = append(fallback, item.Link)
		}
	}
	for _, link := range fallback {
		add(link)
	}
}

// stripJurisdiction removes a trailing jurisdiction suffix from a statute
// citation: "Family Law Act 1975 (Cth)" becomes "Family Law Act 1975".
func stripJurisdiction(normalized string) string {
	if i := strings.LastIndex(normalized, " ("); i > 0 && strings.HasSuffix(normalized, ")") {
		return normalized[:i]
	}
	return normalized
}

// contentMatchesCitation checks the opening of a fetched document for the
// core citation or statute name, with whitespace and brackets normalized.
func contentMatchesCitation(content, normalized string) bool {
	head := content
	if len(head) > 500 {
		head = head[:500]
	}
	headNorm := matchKey(head)

	if IsLegislation(normalized) {
		return strings.Contains(headNorm, matchKey(stripJurisdiction(normalized)))
	}
	return strings.Contains(headNorm, matchKey(normalized))
}

// matchKey lowercases, removes brackets and parentheses, and collapses
// whitespace for loose containment comparison.
func matchKey(s string) string {
	s = strings.ToLower(s)
	s = strings.NewReplacer("[", "", "]", "", "(", "", ")", "").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// sectionReference finds "section N" or "s N" in the citation text.
func sectionReference(cit string) (string, bool) {
	m := sectionRefPattern.FindStringSubmatch(cit)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// extractSectionWindow returns the named section plus one adjoining section
// on each side, located by numbered heading lines. Empty when the section
// heading cannot be found.
func extractSectionWindow(content, section string) string {
	lines := strings.Split(content, "\n")

	type heading struct {
		line   int
		number string
	}
	var headings []heading
	for i, line := range lines {
		if m := sectionHeadPattern.FindStringSubmatch(line); m != nil {
			headings = append(headings, heading{line: i, number: m[1]})
		}
	}

	target := -1
	for i, h := range headings {
		if strings.EqualFold(h.number, section) {
			target = i
			break
		}
	}
	if target == -1 {
		return ""
	}

	startLine := 0
	if target > 0 {
		startLine = headings[target-1].line
	}
	endLine := len(lines)
	if target+2 < len(headings) {
		endLine = headings[target+2].line
	}
	return strings.TrimSpace(strings.Join(lines[startLine:endLine], "\n"))
}

// cleanDocument strips portal boilerplate lines and collapses runs of blank
// lines. The document is never truncated.
func cleanDocument(content string) string {
	lines := strings.Split(content, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if isBoilerplate(line) {
			continue
		}
		kept = append(kept, line)
	}
	out := strings.Join(kept, "\n")
	out = blankRun.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}

func isBoilerplate(line string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(line))
	if trimmed == "" {
		return false
	}
	for _, prefix := range boilerplatePrefixes {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	return false
}
