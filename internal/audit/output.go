package audit

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

// CritiquePair is one heading/body pair appended to a saved command output
// under the AI CRITIQUE & VERIFICATION section.
type CritiquePair struct {
	Heading string
	Body    string
}

var slugSanitizer = regexp.MustCompile(`[^a-z0-9_-]+`)

const outputRule = "--------------------------------------------------------------------------------"
const critiqueRule = "================================================================================"

// SaveCommandOutput writes a human-readable command result to
// outputs/<command>_<slug>_<timestamp>.txt and returns the written path.
// Metadata lines appear in the header in sorted key order.
func SaveCommandOutput(command, content, slug string, metadata map[string]string, critique []CritiquePair) (string, error) {
	mu.Lock()
	dir := outputsDir
	mu.Unlock()

	if dir == "" {
		if err := Init("."); err != nil {
			return "", err
		}
		mu.Lock()
		dir = outputsDir
		mu.Unlock()
	}

	command = strings.ToLower(strings.TrimSpace(command))
	if command == "" {
		command = "command"
	}
	slug = sanitizeSlug(slug)
	ts := time.Now().Format(timestampLayout)
	path := filepath.Join(dir, fmt.Sprintf("%s_%s_%s.txt", command, slug, ts))

	var b strings.Builder
	fmt.Fprintf(&b, "%s Output\n", capitalize(command))
	fmt.Fprintf(&b, "Generated: %s\n", time.Now().Format(time.RFC3339))
	if len(metadata) > 0 {
		keys := make([]string, 0, len(metadata))
		for k := range metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "%s: %s\n", k, metadata[k])
		}
	}
	b.WriteString(outputRule)
	b.WriteString("\n\n")
	b.WriteString(content)
	b.WriteString("\n")

	if len(critique) > 0 {
		b.WriteString("\n")
		b.WriteString(critiqueRule)
		b.WriteString("\nAI CRITIQUE & VERIFICATION\n")
		b.WriteString(critiqueRule)
		b.WriteString("\n")
		for _, pair := range critique {
			fmt.Fprintf(&b, "\n## %s\n\n%s\n", pair.Heading, pair.Body)
		}
	}

	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return "", fmt.Errorf("failed to save command output: %w", err)
	}
	return path, nil
}

// sanitizeSlug lowercases and squeezes a slug into filename-safe characters.
func sanitizeSlug(slug string) string {
	slug = strings.ToLower(strings.TrimSpace(slug))
	slug = strings.ReplaceAll(slug, " ", "_")
	slug = slugSanitizer.ReplaceAllString(slug, "")
	slug = strings.Trim(slug, "_-")
	if len(slug) > 60 {
		slug = slug[:60]
	}
	if slug == "" {
		slug = "output"
	}
	return slug
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
