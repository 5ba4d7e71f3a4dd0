package audit

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
)

// Value truncation bounds for human-readable logs. Full content is always
// available in the JSON format; markdown favours readability.
const (
	messageTruncateLen = 5000
	valueTruncateLen   = 2000
)

// writeMarkdownLog selects a specialised writer from the tag and payload
// shape, then writes the rendered report.
func writeMarkdownLog(path, tag string, payload map[string]interface{}) error {
	var body string

	switch {
	case tag == "fetch_attempt" || strings.HasPrefix(tag, "fetch_attempt_"):
		body = renderFetchMarkdown(tag, payload)
	case tag == "citation_verification_session" || hasKey(payload, "citations_found"):
		body = renderCitationSessionMarkdown(tag, payload)
	case strings.Contains(tag, "citation_validation") || getString(payload, "method") == "validate_citation_patterns":
		body = renderValidationMarkdown(tag, payload)
	case strings.Contains(tag, "austlii_http_validation") || getString(payload, "method") == "check_url_exists":
		body = renderHTTPCheckMarkdown(tag, payload)
	case strings.Contains(tag, "austlii_search_validation"):
		body = renderSearchMarkdown(tag, payload)
	case strings.HasPrefix(tag, "llm_") || strings.HasPrefix(tag, "cove_") ||
		hasKey(payload, "messages_sent") || hasMessagesAndModel(payload):
		body = renderLLMMarkdown(tag, payload)
	case hasKey(payload, "response") || hasKey(payload, "inputs"):
		body = renderCommandMarkdown(tag, payload)
	default:
		body = renderGenericMarkdown(tag, payload)
	}

	return os.WriteFile(path, []byte(body), 0644)
}

// renderFetchMarkdown reports one web-fetch attempt, including the full
// extracted content so an audit can reproduce downstream analysis without
// re-fetching.
func renderFetchMarkdown(tag string, p map[string]interface{}) string {
	var b strings.Builder
	writeHeader(&b, "Web Fetch Attempt", tag)

	b.WriteString("## Summary\n\n")
	writeKV(&b, "URL", getString(p, "url"))
	writeKV(&b, "Method", getString(p, "method"))
	writeKV(&b, "Success", fmt.Sprintf("%v", p["success"]))
	if status := getString(p, "http_status"); status != "" {
		writeKV(&b, "HTTP status", status)
	} else if s, ok := p["http_status"]; ok {
		writeKV(&b, "HTTP status", fmt.Sprintf("%v", s))
	}
	if errMsg := getString(p, "error"); errMsg != "" {
		writeKV(&b, "Error", errMsg)
	}
	b.WriteString("\n")

	b.WriteString("## Size\n\n")
	if size, ok := p["content_size"]; ok {
		writeKV(&b, "Content size", fmt.Sprintf("%v bytes", size))
	}
	if rt, ok := p["response_time_ms"]; ok {
		writeKV(&b, "Response time", fmt.Sprintf("%v ms", rt))
	}
	b.WriteString("\n")

	if content := getString(p, "content"); content != "" {
		b.WriteString("## Extracted Content\n\n")
		b.WriteString("```\n")
		b.WriteString(content)
		b.WriteString("\n```\n")
	}

	return b.String()
}

// renderCitationSessionMarkdown reports a full citation verification pass.
func renderCitationSessionMarkdown(tag string, p map[string]interface{}) string {
	var b strings.Builder
	writeHeader(&b, "Citation Verification Report", tag)

	found := getList(p, "citations_found")
	verified := getList(p, "verified")
	unverified := getList(p, "unverified")

	b.WriteString("## Totals\n\n")
	writeKV(&b, "Citations found", fmt.Sprintf("%d", len(found)))
	writeKV(&b, "Verified", fmt.Sprintf("%d", len(verified)))
	writeKV(&b, "Unverified", fmt.Sprintf("%d", len(unverified)))
	b.WriteString("\n")

	if len(verified) > 0 {
		b.WriteString("## Verified\n\n")
		for _, item := range verified {
			writeCitationItem(&b, item)
		}
		b.WriteString("\n")
	}

	if len(unverified) > 0 {
		b.WriteString("## Unverified\n\n")
		for _, item := range unverified {
			writeCitationItem(&b, item)
		}
		b.WriteString("\n")
	}

	if settings := getMap(p, "settings"); len(settings) > 0 {
		b.WriteString("## Settings\n\n")
		writeSortedKVs(&b, settings)
		b.WriteString("\n")
	}

	if errs := getList(p, "errors"); len(errs) > 0 {
		b.WriteString("## Errors\n\n")
		for _, e := range errs {
			fmt.Fprintf(&b, "- %v\n", e)
		}
		b.WriteString("\n")
	}

	return b.String()
}

func writeCitationItem(b *strings.Builder, item interface{}) {
	switch v := item.(type) {
	case map[string]interface{}:
		cit := getString(v, "citation")
		reason := getString(v, "reason")
		url := getString(v, "url")
		fmt.Fprintf(b, "- **%s**", cit)
		if url != "" {
			fmt.Fprintf(b, " — %s", url)
		}
		if reason != "" {
			fmt.Fprintf(b, " (%s)", reason)
		}
		b.WriteString("\n")
	default:
		fmt.Fprintf(b, "- %v\n", v)
	}
}

// renderValidationMarkdown reports offline pattern validation.
func renderValidationMarkdown(tag string, p map[string]interface{}) string {
	var b strings.Builder
	writeHeader(&b, "Citation Pattern Validation", tag)

	if cit := getString(p, "citation"); cit != "" {
		writeKV(&b, "Citation", cit)
	}
	if issues := getList(p, "issues"); len(issues) > 0 {
		b.WriteString("\n## Issues\n\n")
		for _, issue := range issues {
			fmt.Fprintf(&b, "- %v\n", issue)
		}
	} else {
		b.WriteString("\nNo format issues detected.\n")
	}

	b.WriteString("\n## Details\n\n")
	writeSortedKVs(&b, p)
	return b.String()
}

// renderHTTPCheckMarkdown reports a direct-URL existence check.
func renderHTTPCheckMarkdown(tag string, p map[string]interface{}) string {
	var b strings.Builder
	writeHeader(&b, "HTTP Existence Check", tag)

	writeKV(&b, "URL", getString(p, "url"))
	if s, ok := p["http_status"]; ok {
		writeKV(&b, "HTTP status", fmt.Sprintf("%v", s))
	}
	if rt, ok := p["response_time_ms"]; ok {
		writeKV(&b, "Response time", fmt.Sprintf("%v ms", rt))
	}
	writeKV(&b, "Exists", fmt.Sprintf("%v", p["exists"]))
	if errMsg := getString(p, "error"); errMsg != "" {
		writeKV(&b, "Error", errMsg)
	}
	return b.String()
}

// renderSearchMarkdown reports a CSE search validation attempt.
func renderSearchMarkdown(tag string, p map[string]interface{}) string {
	var b strings.Builder
	writeHeader(&b, "Search Validation", tag)

	writeKV(&b, "Query", getString(p, "query"))
	writeKV(&b, "Engine", getString(p, "cse_id"))
	if n, ok := p["result_count"]; ok {
		writeKV(&b, "Results", fmt.Sprintf("%v", n))
	}
	writeKV(&b, "Matched", fmt.Sprintf("%v", p["matched"]))
	if url := getString(p, "url"); url != "" {
		writeKV(&b, "Matched URL", url)
	}
	if errMsg := getString(p, "error"); errMsg != "" {
		writeKV(&b, "Error", errMsg)
	}
	return b.String()
}

// renderLLMMarkdown reports one LLM conversation: model, messages, response,
// parameters and token usage.
func renderLLMMarkdown(tag string, p map[string]interface{}) string {
	var b strings.Builder
	writeHeader(&b, "LLM Conversation", tag)

	if model := getString(p, "model"); model != "" {
		writeKV(&b, "Model", model)
	}
	if attempt, ok := p["attempt"]; ok {
		writeKV(&b, "Attempt", fmt.Sprintf("%v", attempt))
	}
	b.WriteString("\n")

	messages := getList(p, "messages")
	if len(messages) == 0 {
		messages = getList(p, "messages_sent")
	}
	if len(messages) > 0 {
		b.WriteString("## Messages\n\n")
		for i, m := range messages {
			mm, ok := m.(map[string]interface{})
			if !ok {
				fmt.Fprintf(&b, "### Message %d\n\n%v\n\n", i+1, m)
				continue
			}
			role := getString(mm, "role")
			content := truncateValue(getString(mm, "content"), messageTruncateLen)
			fmt.Fprintf(&b, "### %d. %s\n\n%s\n\n", i+1, role, content)
		}
	}

	if params := getMap(p, "params"); len(params) > 0 {
		b.WriteString("## Parameters\n\n")
		writeSortedKVs(&b, params)
		b.WriteString("\n")
	}

	if response := getString(p, "response"); response != "" {
		b.WriteString("## Response\n\n")
		b.WriteString(response)
		b.WriteString("\n\n")
	}

	if errMsg := getString(p, "error"); errMsg != "" {
		b.WriteString("## Error\n\n")
		b.WriteString(errMsg)
		b.WriteString("\n\n")
	}

	if usage := getMap(p, "usage"); len(usage) > 0 {
		b.WriteString("## Token Usage\n\n")
		writeSortedKVs(&b, usage)
	}

	return b.String()
}

// renderCommandMarkdown is the generic command-output log.
func renderCommandMarkdown(tag string, p map[string]interface{}) string {
	var b strings.Builder
	writeHeader(&b, "Command Log", tag)

	if inputs := getMap(p, "inputs"); len(inputs) > 0 {
		b.WriteString("## Inputs\n\n")
		for _, k := range sortedKeys(inputs) {
			fmt.Fprintf(&b, "- **%s**: %s\n", k, truncateValue(fmt.Sprintf("%v", inputs[k]), valueTruncateLen))
		}
		b.WriteString("\n")
	}

	if response := getString(p, "response"); response != "" {
		b.WriteString("## Response\n\n")
		b.WriteString(truncateValue(response, messageTruncateLen))
		b.WriteString("\n\n")
	}

	if usage := getMap(p, "usage"); len(usage) > 0 {
		b.WriteString("## Usage\n\n")
		writeSortedKVs(&b, usage)
	}

	return b.String()
}

// renderGenericMarkdown is the fallback key/value report.
func renderGenericMarkdown(tag string, p map[string]interface{}) string {
	var b strings.Builder
	writeHeader(&b, "Log Record", tag)
	writeSortedKVs(&b, p)
	return b.String()
}

// =============================================================================
// RENDERING HELPERS
// =============================================================================

func writeHeader(b *strings.Builder, title, tag string) {
	fmt.Fprintf(b, "# %s\n\n", title)
	writeKV(b, "Tag", tag)
	writeKV(b, "Timestamp", time.Now().Format(time.RFC3339))
	b.WriteString("\n")
}

func writeKV(b *strings.Builder, key, value string) {
	fmt.Fprintf(b, "- **%s**: %s\n", key, value)
}

func writeSortedKVs(b *strings.Builder, m map[string]interface{}) {
	for _, k := range sortedKeys(m) {
		fmt.Fprintf(b, "- **%s**: %s\n", k, truncateValue(fmt.Sprintf("%v", m[k]), valueTruncateLen))
	}
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func truncateValue(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "\n... [truncated]"
}

func hasKey(p map[string]interface{}, key string) bool {
	_, ok := p[key]
	return ok
}

func hasMessagesAndModel(p map[string]interface{}) bool {
	if _, ok := p["model"]; !ok {
		return false
	}
	_, ok := p["messages"].([]interface{})
	return ok
}

func getString(p map[string]interface{}, key string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return ""
}

func getMap(p map[string]interface{}, key string) map[string]interface{} {
	if v, ok := p[key].(map[string]interface{}); ok {
		return v
	}
	return nil
}

func getList(p map[string]interface{}, key string) []interface{} {
	if v, ok := p[key].([]interface{}); ok {
		return v
	}
	return nil
}
