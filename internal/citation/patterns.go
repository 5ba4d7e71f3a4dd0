// Package citation extracts legal citations from generated text, verifies
// them against Australian databases, and fetches full-document context.
// Extraction is pattern-based; verification runs cache, classification,
// Custom Search Engine and AustLII direct-URL checks in a fixed order; every
// outcome is cached process-wide.
package citation

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// =============================================================================
// EXTRACTION PATTERNS
// =============================================================================

// The patterns run in a fixed order; matches are normalized and de-duplicated
// preserving first appearance.
var (
	// [2020] HCA 45
	mediumNeutralPattern = regexp.MustCompile(`\[(\d{4})\]\s+([A-Z][A-Za-z]+)\s+(\d+)\b`)

	// (1992) 175 CLR 1
	traditionalPattern = regexp.MustCompile(`\((\d{4})\)\s+(\d+)\s+([A-Z][A-Za-z.]*)\s+(\d+)\b`)

	// [2010] EWCA Civ 123, [2019] EWHC 1234 (Admin) style with case-type token
	ewSuffixPattern = regexp.MustCompile(`\[(\d{4})\]\s+(EWCA|EWHC)\s+(Civ|Crim|Admin|Ch|QB|KB|Fam|Pat|Comm|TCC)\s+(\d+)\b`)

	// [1994] 1 AC 324: volume between year and series
	volumeSeriesPattern = regexp.MustCompile(`\[(\d{4})\]\s+(\d+)\s+([A-Z][A-Za-z.]*)\s+(\d+)\b`)

	// American reporters
	usReportsPattern  = regexp.MustCompile(`\b(\d+)\s+U\.S\.\s+(\d+)\b`)
	usFederalPattern  = regexp.MustCompile(`\b(\d+)\s+F\.(2d|3d|4th)\s+(\d+)\b`)
	usSupremePattern  = regexp.MustCompile(`\b(\d+)\s+S\.\s?Ct\.\s+(\d+)\b`)

	// [1998] 2 Lloyd's Rep 12, (1985) 81 Cr App R 1
	lloydsCrAppPattern = regexp.MustCompile(`[\[(](\d{4})[\])]\s+(?:(\d+)\s+)?(Lloyd's\s+Rep|Cr\s+App\s+R)\s+(\d+)\b`)

	// Family Law Act 1975 (Cth); the first word must be Title-Case, with
	// lowercase connectors allowed inside the name.
	statutePattern = regexp.MustCompile(`\b([A-Z][a-z][A-Za-z']*(?:\s+(?:[A-Z][a-z][A-Za-z']*|of|and|the|for|to|in|on))*)\s+(Act|Regulations)\s+(\d{4})\b(\s*\((Cth|NSW|Vic|Qld|WA|SA|Tas|ACT|NT)\))?`)
)

// statuteStopWords rejects statute matches whose name begins with a
// sentence-starting interrogative or modal ("Does Act 1975" is a sentence
// fragment, not a statute). The pattern engine has no look-behind, so the
// guard runs over the captured name.
var statuteStopWords = map[string]bool{
	"Does": true, "Did": true, "Do": true, "Would": true, "Should": true,
	"Could": true, "Can": true, "Will": true, "Shall": true, "May": true,
	"Might": true, "Must": true, "Is": true, "Was": true, "Are": true,
	"Were": true, "Has": true, "Have": true, "Had": true, "Which": true,
	"What": true, "When": true, "Where": true, "Who": true, "Whose": true,
	"Why": true, "How": true, "If": true, "Whether": true, "Unless": true,
}

// leadingArticles are stripped from the front of a statute name rather than
// rejecting the match, so "The Family Law Act 1975" still extracts.
var leadingArticles = map[string]bool{
	"The": true, "A": true, "An": true, "This": true, "That": true,
	"These": true, "Those": true,
}

var (
	whitespaceRun        = regexp.MustCompile(`\s+`)
	mediumNeutralSpacing = regexp.MustCompile(`\[\s*(\d{4})\s*\]\s*([A-Z][A-Za-z]+)\s+(\d+)`)
)

// Normalize collapses whitespace and canonicalises medium-neutral spacing.
// Idempotent: Normalize(Normalize(s)) == Normalize(s).
func Normalize(citation string) string {
	c := strings.TrimSpace(whitespaceRun.ReplaceAllString(citation, " "))
	c = mediumNeutralSpacing.ReplaceAllString(c, "[${1}] ${2} ${3}")
	return c
}

// Extract collects every citation in the text, normalized and de-duplicated
// in first-appearance order.
func Extract(text string) []string {
	type span struct {
		start    int
		citation string
	}
	var spans []span

	collect := func(re *regexp.Regexp) {
		for _, idx := range re.FindAllStringIndex(text, -1) {
			spans = append(spans, span{idx[0], text[idx[0]:idx[1]]})
		}
	}

	collect(ewSuffixPattern)
	collect(mediumNeutralPattern)
	collect(traditionalPattern)
	collect(volumeSeriesPattern)
	collect(usReportsPattern)
	collect(usFederalPattern)
	collect(usSupremePattern)
	collect(lloydsCrAppPattern)

	for _, m := range statutePattern.FindAllStringSubmatchIndex(text, -1) {
		name := text[m[2]:m[3]]
		kind := text[m[4]:m[5]]
		year := text[m[6]:m[7]]
		jurisdiction := ""
		if m[10] >= 0 {
			jurisdiction = text[m[10]:m[11]]
		}
		cleaned, ok := cleanStatuteName(name)
		if !ok {
			continue
		}
		c := cleaned + " " + kind + " " + year
		if jurisdiction != "" {
			c += " (" + jurisdiction + ")"
		}
		spans = append(spans, span{m[0], c})
	}

	sort.SliceStable(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	// De-duplicate, dropping any match fully contained in one already
	// accepted.
	seen := make(map[string]bool)
	var out []string
	for _, s := range spans {
		c := Normalize(s.citation)
		if containedInAny(c, out) || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// cleanStatuteName applies the stop-word guard and strips leading articles.
func cleanStatuteName(name string) (string, bool) {
	words := strings.Fields(name)
	for len(words) > 0 && leadingArticles[words[0]] {
		words = words[1:]
	}
	if len(words) == 0 || statuteStopWords[words[0]] {
		return "", false
	}
	return strings.Join(words, " "), true
}

func containedInAny(c string, accepted []string) bool {
	for _, a := range accepted {
		if a != c && strings.Contains(a, c) {
			return true
		}
	}
	return false
}

// =============================================================================
// CLASSIFICATION
// =============================================================================

// mediumNeutralParts holds the decomposition of a [YYYY] COURT N citation.
type mediumNeutralParts struct {
	Year   string
	Court  string
	Number string
}

var mediumNeutralExact = regexp.MustCompile(`^\[(\d{4})\] ([A-Z][A-Za-z]+) (\d+)$`)

// parseMediumNeutral decomposes a normalized medium-neutral citation.
func parseMediumNeutral(normalized string) (mediumNeutralParts, bool) {
	m := mediumNeutralExact.FindStringSubmatch(normalized)
	if m == nil {
		return mediumNeutralParts{}, false
	}
	return mediumNeutralParts{Year: m[1], Court: m[2], Number: m[3]}, true
}

// IsLegislation reports whether the citation is an Australian statute or
// regulation reference.
func IsLegislation(citation string) bool {
	m := statutePattern.FindStringSubmatch(citation)
	if m == nil {
		return false
	}
	_, ok := cleanStatuteName(m[1])
	return ok
}

// classifyInternational returns a human-readable reason when the citation
// belongs to a foreign jurisdiction, or "" when it looks Australian.
func classifyInternational(normalized string) string {
	if m := ewSuffixPattern.FindStringSubmatch(normalized); m != nil {
		return ukReason(ukInternationalCourts[m[2]])
	}
	if usReportsPattern.MatchString(normalized) {
		return usReason(usReporters["U.S."])
	}
	if m := usFederalPattern.FindStringSubmatch(normalized); m != nil {
		return usReason(usReporters["F."+m[2]])
	}
	if usSupremePattern.MatchString(normalized) {
		return usReason(usReporters["S. Ct."])
	}
	if m := lloydsCrAppPattern.FindStringSubmatch(normalized); m != nil {
		series := whitespaceRun.ReplaceAllString(m[3], " ")
		if strings.HasPrefix(series, "Lloyd") {
			return ukReason("Lloyd's Law Reports")
		}
		return ukReason("Criminal Appeal Reports")
	}
	if m := mediumNeutralPattern.FindStringSubmatch(normalized); m != nil {
		if name, ok := ukInternationalCourts[m[2]]; ok {
			return ukReason(name)
		}
	}
	if m := volumeSeriesPattern.FindStringSubmatch(normalized); m != nil {
		if name, ok := ukInternationalCourts[m[3]]; ok {
			return ukReason(name)
		}
	}
	return ""
}

func ukReason(name string) string {
	return fmt.Sprintf("UK/International citation (%s) - not in Australian databases", name)
}

func usReason(name string) string {
	return fmt.Sprintf("US citation (%s) - not in Australian databases", name)
}

// =============================================================================
// OFFLINE PATTERN VALIDATION
// =============================================================================

// FormatIssues returns non-blocking format warnings for a single citation.
// Empty means the citation looks structurally sound.
func FormatIssues(citation string, currentYear int) []string {
	var issues []string
	normalized := Normalize(citation)

	if parts, ok := parseMediumNeutral(normalized); ok {
		year := atoiSafe(parts.Year)
		if year < 1800 || year > currentYear+1 {
			issues = append(issues, fmt.Sprintf("implausible year %s in %q", parts.Year, normalized))
		}
		_, australian := courtMapping[parts.Court]
		_, international := ukInternationalCourts[parts.Court]
		if !australian && !international {
			issues = append(issues, fmt.Sprintf("unrecognised court identifier %q in %q", parts.Court, normalized))
		}
		return issues
	}

	if m := traditionalPattern.FindStringSubmatch(normalized); m != nil {
		year := atoiSafe(m[1])
		if year < 1800 || year > currentYear+1 {
			issues = append(issues, fmt.Sprintf("implausible year %s in %q", m[1], normalized))
		}
		return issues
	}

	if m := statutePattern.FindStringSubmatch(normalized); m != nil {
		year := atoiSafe(m[3])
		if year < 1800 || year > currentYear+1 {
			issues = append(issues, fmt.Sprintf("implausible year %s in %q", m[3], normalized))
		}
		if m[5] != "" && !australianJurisdictions[m[5]] {
			issues = append(issues, fmt.Sprintf("unknown jurisdiction %q in %q", m[5], normalized))
		}
	}
	return issues
}

func atoiSafe(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}
