// Package audit persists the legally significant record of every LLM call,
// citation check, web fetch, and verification stage. Each saved log is one
// file under logs/ in either JSON or Markdown, named <tag>_<timestamp>; this
// record must let an audit reproduce an analysis without re-running it.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"litassist/internal/logging"
)

// Log format values
const (
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
)

// timestampLayout puts second precision into every filename so writes never
// collide under the sequential invocation model.
const timestampLayout = "20060102-150405"

var (
	mu         sync.Mutex
	logsDir    string
	outputsDir string
	logFormat  = FormatJSON
)

var tagSanitizer = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// Init sets the working directory and creates logs/ and outputs/ beneath it.
func Init(workdir string) error {
	mu.Lock()
	defer mu.Unlock()

	if workdir == "" {
		workdir = "."
	}
	logsDir = filepath.Join(workdir, "logs")
	outputsDir = filepath.Join(workdir, "outputs")

	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}
	if err := os.MkdirAll(outputsDir, 0755); err != nil {
		return fmt.Errorf("failed to create outputs directory: %w", err)
	}

	logging.AuditDebug("Audit directories ready: %s, %s", logsDir, outputsDir)
	return nil
}

// SetLogFormat sets the process-wide log format (json|markdown).
func SetLogFormat(format string) error {
	if format != FormatJSON && format != FormatMarkdown {
		return fmt.Errorf("invalid log format %q (want json or markdown)", format)
	}
	mu.Lock()
	logFormat = format
	mu.Unlock()
	return nil
}

// LogFormat returns the process-wide log format.
func LogFormat() string {
	mu.Lock()
	defer mu.Unlock()
	return logFormat
}

// SaveLog writes one log record under logs/ in the process-wide format and
// returns the written path.
func SaveLog(tag string, payload map[string]interface{}) (string, error) {
	return SaveLogAs(LogFormat(), tag, payload)
}

// SaveLogAs writes one log record in an explicit format, for callers whose
// command context overrides the process-wide setting.
func SaveLogAs(format, tag string, payload map[string]interface{}) (string, error) {
	mu.Lock()
	dir := logsDir
	mu.Unlock()

	if dir == "" {
		if err := Init("."); err != nil {
			return "", err
		}
		mu.Lock()
		dir = logsDir
		mu.Unlock()
	}

	tag = sanitizeTag(tag)
	ts := time.Now().Format(timestampLayout)

	var path string
	var err error
	if format == FormatJSON {
		path = filepath.Join(dir, fmt.Sprintf("%s_%s.json", tag, ts))
		err = writeJSONLog(path, tag, payload)
	} else {
		path = filepath.Join(dir, fmt.Sprintf("%s_%s.md", tag, ts))
		err = writeMarkdownLog(path, tag, payload)
	}
	if err != nil {
		logging.AuditError("Failed to save log %s: %v", tag, err)
		return "", err
	}

	logging.AuditDebug("Saved log %s", path)
	return path, nil
}

// writeJSONLog dumps the sanitized payload verbatim.
func writeJSONLog(path, tag string, payload map[string]interface{}) error {
	sanitized := sanitizePayload(payload)
	data, err := json.MarshalIndent(sanitized, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal log payload for %s: %w", tag, err)
	}
	return os.WriteFile(path, data, 0644)
}

// sanitizePayload walks the payload and applies the one JSON transformation:
// a dict holding combined_content alongside total_tokens, total_words and
// file_count loses combined_content. Research blobs measured in megabytes
// otherwise end up inside every log file that summarises them.
func sanitizePayload(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		_, hasContent := val["combined_content"]
		_, hasTokens := val["total_tokens"]
		_, hasWords := val["total_words"]
		_, hasFiles := val["file_count"]
		dropContent := hasContent && hasTokens && hasWords && hasFiles
		for k, inner := range val {
			if dropContent && k == "combined_content" {
				continue
			}
			out[k] = sanitizePayload(inner)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, inner := range val {
			out[i] = sanitizePayload(inner)
		}
		return out
	default:
		return v
	}
}

// sanitizeTag keeps tags safe as filename stems.
func sanitizeTag(tag string) string {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return "log"
	}
	return tagSanitizer.ReplaceAllString(tag, "_")
}

// dirsForTest exposes the active directories to package tests.
func dirsForTest() (string, string) {
	mu.Lock()
	defer mu.Unlock()
	return logsDir, outputsDir
}
