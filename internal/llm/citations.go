package llm

import (
	"context"
	"fmt"
	"strings"

	"litassist/internal/citation"
	"litassist/internal/logging"
)

// ValidateAndVerifyCitations runs the full citation pass over generated
// content. Format issues are always non-blocking warnings. In strict mode
// any unverified citation is an error carrying the categorised lists; in
// lenient mode each unverified citation is removed from the text with the
// punctuation-aware removal rule and reported as a warning.
func (c *Client) ValidateAndVerifyCitations(ctx context.Context, content string, strict bool) (string, []string, error) {
	res := c.citationVerifier().VerifyText(ctx, content)

	warnings := make([]string, 0, len(res.FormatIssues)+len(res.Unverified))
	warnings = append(warnings, res.FormatIssues...)

	if len(res.Unverified) == 0 {
		return content, warnings, nil
	}

	if strict {
		cve := &CitationVerificationError{FormatIssues: res.FormatIssues}
		for _, u := range res.Unverified {
			entry := fmt.Sprintf("%s (%s)", u.Citation, u.Reason)
			if strings.Contains(strings.ToLower(u.Reason), "not found") {
				cve.NotFound = append(cve.NotFound, entry)
			} else {
				cve.Other = append(cve.Other, entry)
			}
		}
		return content, warnings, cve
	}

	cleaned := content
	for _, u := range res.Unverified {
		cleaned = citation.Remove(cleaned, u.Citation)
		warnings = append(warnings, fmt.Sprintf("Removed unverified citation: %s (%s)", u.Citation, u.Reason))
		logging.Citation("Removed unverified citation %q: %s", u.Citation, u.Reason)
	}
	return cleaned, warnings, nil
}
