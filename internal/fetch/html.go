package fetch

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var (
	multiNewline = regexp.MustCompile(`\n{3,}`)
	multiSpace   = regexp.MustCompile(`[ \t]{2,}`)
)

// skippedElements never contribute text to the extraction.
var skippedElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"meta":     true,
	"link":     true,
	"iframe":   true,
	"svg":      true,
}

// blockElements introduce line breaks around their content.
var blockElements = map[string]bool{
	"p": true, "div": true, "section": true, "article": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"li": true, "tr": true, "br": true, "blockquote": true, "pre": true,
	"table": true, "ul": true, "ol": true,
}

// htmlToText parses an HTML document and returns its visible text with
// block-level line breaks preserved and whitespace collapsed.
func htmlToText(raw string) (string, error) {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return "", err
	}

	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skippedElements[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				b.WriteString(text)
				b.WriteString(" ")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockElements[n.Data] {
			b.WriteString("\n")
		}
	}
	walk(doc)

	return collapseWhitespace(b.String()), nil
}

func collapseWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(multiSpace.ReplaceAllString(line, " "), " \t")
	}
	s = strings.Join(lines, "\n")
	s = multiNewline.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
