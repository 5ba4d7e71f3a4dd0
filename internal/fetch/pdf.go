package fetch

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"

	"litassist/internal/logging"
)

const (
	// maxPDFPages caps extraction for very large judgments and gazettes.
	maxPDFPages = 50

	// minTextBytesRatio rejects image-heavy scans: below this ratio of
	// extracted text to raw bytes the document is effectively pictures.
	minTextBytesRatio = 0.0041
)

// foiMarkers flag documents released under freedom-of-information requests,
// which carry redactions and third-party material unsuitable as authority.
// Checked against the first 1000 characters only.
var foiMarkers = []string{
	"documents released",
	"released under the foi act",
	"released under the freedom of information act",
	"foi disclosure log",
	"s 47f",
	"s. 47f",
}

// foiActWhitelist matches pages about the FOI Act itself, which legitimately
// mention the markers.
var foiActWhitelist = regexp.MustCompile(`(?i)(legislation\.gov\.au|austlii\.edu\.au)/.*(foi|freedom.?of.?information)`)

// extractPDF pulls plain text out of a PDF body, applying the page cap, the
// image-heavy ratio check and the FOI contamination check.
func extractPDF(data []byte, sourceURL string) (text string, err error) {
	// The parser panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf parse panic: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("pdf open: %w", err)
	}

	totalPages := reader.NumPage()
	processPages := totalPages
	if processPages > maxPDFPages {
		processPages = maxPDFPages
	}

	var b strings.Builder
	extracted := 0
	for pageNum := 1; pageNum <= processPages; pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		pageText, perr := page.GetPlainText(nil)
		if perr != nil {
			logging.FetchDebug("PDF page %d extraction failed: %v", pageNum, perr)
			continue
		}
		if strings.TrimSpace(pageText) == "" {
			continue
		}
		fmt.Fprintf(&b, "--- Page %d ---\n%s\n", pageNum, strings.TrimSpace(pageText))
		extracted++
	}

	body := b.String()
	if extracted == 0 {
		return "", fmt.Errorf("no text extracted from %d pages", totalPages)
	}

	ratio := float64(len(body)) / float64(len(data))
	if ratio < minTextBytesRatio {
		return "", fmt.Errorf("image-heavy PDF rejected: text/bytes ratio %.5f below %.4f", ratio, minTextBytesRatio)
	}

	if marker := foiMarker(body); marker != "" && !foiActWhitelist.MatchString(sourceURL) {
		return "", fmt.Errorf("FOI-released document rejected: marker %q", marker)
	}

	header := fmt.Sprintf("[PDF document: %d pages total, %d pages processed]\nSource: %s\n\n", totalPages, processPages, sourceURL)
	return header + body, nil
}

func foiMarker(text string) string {
	if len(text) > 1000 {
		text = text[:1000]
	}
	lower := strings.ToLower(text)
	for _, m := range foiMarkers {
		if strings.Contains(lower, m) {
			return m
		}
	}
	return ""
}

// isPDF sniffs the magic bytes.
func isPDF(data []byte) bool {
	return bytes.HasPrefix(bytes.TrimLeft(data, " \t\r\n"), []byte("%PDF"))
}
