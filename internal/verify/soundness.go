package verify

import (
	"regexp"
	"strings"
)

// Soundness is the parsed form of a reviewer response written against the
// output contract: an "## Issues Found" section and, when the reviewer made
// corrections, a "## Verified and Corrected Document" section.
type Soundness struct {
	Issues    []string
	NoIssues  bool
	Corrected string
}

var (
	issuesHeading    = regexp.MustCompile(`(?mi)^##\s*Issues Found\s*$`)
	correctedHeading = regexp.MustCompile(`(?mi)^##\s*Verified and Corrected Document\s*$`)
	anyHeading       = regexp.MustCompile(`(?m)^##\s`)
	numberedItem     = regexp.MustCompile(`^\s*\d+[.)]\s*(.+)$`)
)

// ParseSoundness extracts the issues list and the corrected document body
// from a reviewer response. A response without the contract headings yields
// a zero Soundness with NoIssues false, which callers treat as
// indeterminate.
func ParseSoundness(response string) Soundness {
	var s Soundness

	if body, ok := sectionBody(response, issuesHeading); ok {
		if containsNoIssues(body) {
			s.NoIssues = true
		}
		for _, line := range strings.Split(body, "\n") {
			if m := numberedItem.FindStringSubmatch(line); m != nil {
				s.Issues = append(s.Issues, strings.TrimSpace(m[1]))
			}
		}
	}
	if body, ok := sectionBody(response, correctedHeading); ok {
		s.Corrected = strings.TrimSpace(body)
	}
	return s
}

// sectionBody returns the text between the matched heading and the next
// "## " heading (or end of input).
func sectionBody(response string, heading *regexp.Regexp) (string, bool) {
	loc := heading.FindStringIndex(response)
	if loc == nil {
		return "", false
	}
	body := response[loc[1]:]
	if next := anyHeading.FindStringIndex(body); next != nil {
		body = body[:next[0]]
	}
	return body, true
}

// noIssuesMarkers cover the phrasings reviewers use when nothing is wrong.
var noIssuesMarkers = []string{
	"no issues found",
	"no issues identified",
	"no inconsistencies found",
	"no inconsistencies identified",
	"fully consistent",
}

func containsNoIssues(text string) bool {
	lower := strings.ToLower(text)
	for _, m := range noIssuesMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
