package audit

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func initTempAudit(t *testing.T) {
	t.Helper()
	if err := Init(t.TempDir()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := SetLogFormat(FormatMarkdown); err != nil {
		t.Fatalf("SetLogFormat failed: %v", err)
	}
}

// TestSaveLogJSONDropsCombinedContent verifies the single JSON sanitisation
// rule: combined_content is dropped when it travels with the three stats keys.
func TestSaveLogJSONDropsCombinedContent(t *testing.T) {
	initTempAudit(t)
	if err := SetLogFormat(FormatJSON); err != nil {
		t.Fatalf("SetLogFormat failed: %v", err)
	}

	payload := map[string]interface{}{
		"combined_content": strings.Repeat("x", 100000),
		"total_tokens":     25000,
		"total_words":      18000,
		"file_count":       4,
		"command":          "digest",
	}

	path, err := SaveLog("research_digest", payload)
	if err != nil {
		t.Fatalf("SaveLog failed: %v", err)
	}
	if !strings.HasSuffix(path, ".json") {
		t.Errorf("Expected .json file, got %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}

	var got map[string]interface{}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Log file is not valid JSON: %v", err)
	}

	if _, ok := got["combined_content"]; ok {
		t.Error("combined_content should have been dropped")
	}
	want := map[string]interface{}{
		"total_tokens": float64(25000),
		"total_words":  float64(18000),
		"file_count":   float64(4),
		"command":      "digest",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Sanitized payload mismatch (-want +got):\n%s", diff)
	}
}

// TestSaveLogJSONKeepsLoneCombinedContent checks combined_content survives
// when the stats keys are absent.
func TestSaveLogJSONKeepsLoneCombinedContent(t *testing.T) {
	initTempAudit(t)
	if err := SetLogFormat(FormatJSON); err != nil {
		t.Fatalf("SetLogFormat failed: %v", err)
	}

	path, err := SaveLog("plain", map[string]interface{}{
		"combined_content": "keep me",
		"total_tokens":     12,
	})
	if err != nil {
		t.Fatalf("SaveLog failed: %v", err)
	}

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "keep me") {
		t.Error("combined_content without full stats keys must be kept")
	}
}

// TestSaveLogNestedSanitisation verifies the drop rule applies to nested dicts.
func TestSaveLogNestedSanitisation(t *testing.T) {
	initTempAudit(t)
	if err := SetLogFormat(FormatJSON); err != nil {
		t.Fatalf("SetLogFormat failed: %v", err)
	}

	path, err := SaveLog("nested", map[string]interface{}{
		"inputs": map[string]interface{}{
			"combined_content": "giant blob",
			"total_tokens":     1,
			"total_words":      1,
			"file_count":       1,
		},
	})
	if err != nil {
		t.Fatalf("SaveLog failed: %v", err)
	}

	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "giant blob") {
		t.Error("Nested combined_content should have been dropped")
	}
}

// TestMarkdownWriterSelection exercises the tag/shape dispatch chain.
func TestMarkdownWriterSelection(t *testing.T) {
	initTempAudit(t)

	cases := []struct {
		name    string
		tag     string
		payload map[string]interface{}
		want    string
	}{
		// 1. fetch_attempt gets the fetch report with full content
		{
			name: "fetch",
			tag:  "fetch_attempt",
			payload: map[string]interface{}{
				"url":     "https://www.austlii.edu.au/x",
				"method":  "direct_http",
				"success": true,
				"content": "FULL DOCUMENT TEXT",
			},
			want: "# Web Fetch Attempt",
		},
		// 2. citations_found selects the citation report even without the tag
		{
			name: "citation session by shape",
			tag:  "lookup_results",
			payload: map[string]interface{}{
				"citations_found": []interface{}{"[2020] HCA 45"},
				"verified": []interface{}{
					map[string]interface{}{"citation": "[2020] HCA 45", "url": "https://x", "reason": "ok"},
				},
			},
			want: "# Citation Verification Report",
		},
		// 3. HTTP check report
		{
			name: "http check",
			tag:  "austlii_http_validation",
			payload: map[string]interface{}{
				"url": "https://www.austlii.edu.au/y", "http_status": 200, "exists": true,
			},
			want: "# HTTP Existence Check",
		},
		// 4. search report
		{
			name:    "search",
			tag:     "austlii_search_validation",
			payload: map[string]interface{}{"query": "[2022] ACTSC 272", "matched": false},
			want:    "# Search Validation",
		},
		// 5. llm_ prefix selects the conversation log
		{
			name: "llm by tag",
			tag:  "llm_anthropic_claude-sonnet-4.5",
			payload: map[string]interface{}{
				"model": "anthropic/claude-sonnet-4.5",
				"messages": []interface{}{
					map[string]interface{}{"role": "user", "content": "hello"},
				},
				"response": "hi",
			},
			want: "# LLM Conversation",
		},
		// 6. response/inputs shape selects the command log
		{
			name:    "command log",
			tag:     "extractfacts_run",
			payload: map[string]interface{}{"inputs": map[string]interface{}{"file": "facts.txt"}, "response": "done"},
			want:    "# Command Log",
		},
		// 7. anything else is generic key/value
		{
			name:    "generic",
			tag:     "misc",
			payload: map[string]interface{}{"a": 1},
			want:    "# Log Record",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path, err := SaveLog(tc.tag, tc.payload)
			if err != nil {
				t.Fatalf("SaveLog failed: %v", err)
			}
			if !strings.HasSuffix(path, ".md") {
				t.Fatalf("Expected markdown file, got %s", path)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatalf("Failed to read log: %v", err)
			}
			if !strings.Contains(string(data), tc.want) {
				t.Errorf("Expected %q in rendered log, got:\n%s", tc.want, data)
			}
		})
	}
}

// TestFetchMarkdownIncludesFullContent confirms the fetch report carries the
// entire extracted content.
func TestFetchMarkdownIncludesFullContent(t *testing.T) {
	initTempAudit(t)

	content := strings.Repeat("legal text ", 2000)
	path, err := SaveLog("fetch_attempt", map[string]interface{}{
		"url": "https://example.gov.au/doc", "method": "jina_reader",
		"success": true, "content": content,
	})
	if err != nil {
		t.Fatalf("SaveLog failed: %v", err)
	}

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), content) {
		t.Error("Fetch report must include the full extracted content")
	}
}

// TestSaveCommandOutput checks the outputs/ file layout.
func TestSaveCommandOutput(t *testing.T) {
	initTempAudit(t)

	path, err := SaveCommandOutput("brainstorm", "Generated strategies here.", "Smith v Jones", map[string]string{
		"Side": "plaintiff",
		"Area": "civil",
	}, []CritiquePair{
		{Heading: "Citation Check", Body: "All citations verified."},
	})
	if err != nil {
		t.Fatalf("SaveCommandOutput failed: %v", err)
	}

	base := filepath.Base(path)
	if !strings.HasPrefix(base, "brainstorm_smith_v_jones_") || !strings.HasSuffix(base, ".txt") {
		t.Errorf("Unexpected output filename: %s", base)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read output: %v", err)
	}
	text := string(data)

	for _, want := range []string{
		"Brainstorm Output",
		"Generated: ",
		"Area: civil",
		"Side: plaintiff",
		"Generated strategies here.",
		"AI CRITIQUE & VERIFICATION",
		"## Citation Check",
		"All citations verified.",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("Output missing %q", want)
		}
	}

	// Metadata lines are sorted by key
	if strings.Index(text, "Area: civil") > strings.Index(text, "Side: plaintiff") {
		t.Error("Metadata lines should be sorted by key")
	}
}

// TestSaveCommandOutputWithoutCritique verifies the critique section is
// omitted entirely when no pairs are supplied.
func TestSaveCommandOutputWithoutCritique(t *testing.T) {
	initTempAudit(t)

	path, err := SaveCommandOutput("digest", "Summary.", "case", nil, nil)
	if err != nil {
		t.Fatalf("SaveCommandOutput failed: %v", err)
	}
	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "AI CRITIQUE") {
		t.Error("Critique section should be absent")
	}
}

// TestEmitTaskEvent checks persistence and console echo rules.
func TestEmitTaskEvent(t *testing.T) {
	initTempAudit(t)

	var console bytes.Buffer
	SetConsole(&console)
	defer SetConsole(nil)

	EmitTaskEvent(TaskEvent{
		Command: "draft",
		Stage:   "cove_stage1",
		Event:   EventStart,
		Message: "Generating verification questions",
		Details: map[string]interface{}{"model": "anthropic/claude-sonnet-4.5"},
	})

	out := console.String()
	if !strings.Contains(out, "Generating verification questions") {
		t.Errorf("start event should echo to console, got %q", out)
	}
	if !strings.Contains(out, "[model: anthropic/claude-sonnet-4.5]") {
		t.Errorf("console echo should carry the model suffix, got %q", out)
	}

	// llm_call events persist but stay silent on the console
	console.Reset()
	EmitTaskEvent(TaskEvent{Command: "draft", Stage: "cove_stage1", Event: EventLLMCall, Message: "calling"})
	if console.Len() != 0 {
		t.Errorf("llm_call must not echo to console, got %q", console.String())
	}

	logs, _ := dirsForTest()
	entries, err := os.ReadDir(logs)
	if err != nil {
		t.Fatalf("Failed to list logs dir: %v", err)
	}
	var foundStart, foundCall bool
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "task_event_draft_cove_stage1_start_") {
			foundStart = true
		}
		if strings.HasPrefix(e.Name(), "task_event_draft_cove_stage1_llm_call_") {
			foundCall = true
		}
	}
	if !foundStart || !foundCall {
		t.Errorf("Expected persisted task events, got %v %v", foundStart, foundCall)
	}
}

// TestSanitizeTag keeps filename stems safe.
func TestSanitizeTag(t *testing.T) {
	cases := map[string]string{
		"llm_anthropic/claude-sonnet-4.5": "llm_anthropic_claude-sonnet-4.5",
		"  spaced tag  ":                  "spaced_tag",
		"":                                "log",
	}
	for in, want := range cases {
		if got := sanitizeTag(in); got != want {
			t.Errorf("sanitizeTag(%q) = %q, want %q", in, got, want)
		}
	}
}
