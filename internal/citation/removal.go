package citation

import (
	"regexp"
	"strings"
)

// Removal patterns are tried in order; the first that matches is applied to
// every occurrence. The citation is regexp-quoted, so removal is exact-text.
var removalTemplates = []string{
	`(?i)\s*,?\s*as\s+held\s+in\s+%s`,
	`\s*\(\s*%s\s*\)`,
	`\s*[—–]\s*%s`,
	`;\s*%s`,
	`,\s*%s`,
	`%s`,
}

var (
	emptyParens      = regexp.MustCompile(`\(\s*\)`)
	spaceBeforePunct = regexp.MustCompile(`[ \t]+([.,;:!?])`)
	doubledCommas    = regexp.MustCompile(`,\s*,`)
	doubledSemis     = regexp.MustCompile(`;\s*;`)
	punctBeforeStop  = regexp.MustCompile(`[,;:]\s*\.`)
	spaceTabRun      = regexp.MustCompile(`[ \t]{2,}`)
)

// Remove scrubs every occurrence of an unverified citation from the text,
// then repairs the punctuation and spacing left behind. Newlines are
// preserved. Idempotent modulo whitespace.
func Remove(text, citation string) string {
	quoted := regexp.QuoteMeta(Normalize(citation))
	// Tolerate irregular spacing inside the citation as it appears in text.
	flexible := strings.ReplaceAll(quoted, " ", `\s+`)

	for _, tmpl := range removalTemplates {
		re, err := regexp.Compile(strings.Replace(tmpl, "%s", flexible, 1))
		if err != nil {
			continue
		}
		if re.MatchString(text) {
			text = re.ReplaceAllString(text, "")
			break
		}
	}
	return cleanupAfterRemoval(text)
}

// cleanupAfterRemoval normalizes whitespace and repairs punctuation damage:
// collapsed space runs, empty parentheses, doubled or dangling punctuation.
func cleanupAfterRemoval(text string) string {
	text = emptyParens.ReplaceAllString(text, "")
	text = doubledCommas.ReplaceAllString(text, ",")
	text = doubledSemis.ReplaceAllString(text, ";")
	text = punctBeforeStop.ReplaceAllString(text, ".")
	text = spaceBeforePunct.ReplaceAllString(text, "$1")
	text = spaceTabRun.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.Join(lines, "\n")
}
