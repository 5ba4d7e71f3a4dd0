package verify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"litassist/internal/audit"
	"litassist/internal/citation"
	"litassist/internal/config"
	"litassist/internal/llm"
	"litassist/internal/truncate"
)

func testSettings() *config.Settings {
	s := config.Default()
	s.General.TestEnvironment = true
	return &s
}

// stubClient satisfies Completer with scripted responses. A response equal
// to tokenLimitResponse fails that call with a context-length error.
const tokenLimitResponse = "\x00token-limit"

type stubClient struct {
	model     string
	responses []string
	prompts   []string
}

func (s *stubClient) Model() string { return s.model }

func (s *stubClient) Complete(ctx context.Context, msgs []llm.Message, opts ...llm.CompleteOption) (string, llm.Usage, error) {
	s.prompts = append(s.prompts, msgs[len(msgs)-1].Content)
	if len(s.responses) == 0 {
		return "", llm.Usage{}, errors.New("stub exhausted")
	}
	next := s.responses[0]
	s.responses = s.responses[1:]
	if next == tokenLimitResponse {
		return "", llm.Usage{}, errors.New("maximum context length exceeded")
	}
	return next, llm.Usage{PromptTokens: 10, CompletionTokens: 10, TotalTokens: 20}, nil
}

// stubFactory hands out one stub per cove stage name.
func stubFactory(stages map[string]*stubClient) ClientFactory {
	return func(command, subcommand string) (Completer, error) {
		key := subcommand
		if key == "" {
			key = command
		}
		c, ok := stages[key]
		if !ok {
			return nil, fmt.Errorf("no stub for %s.%s", command, subcommand)
		}
		return c, nil
	}
}

type stubFetcher struct {
	docs map[string]string
}

func (f *stubFetcher) FetchContext(ctx context.Context, cit string) (string, error) {
	if doc, ok := f.docs[citation.Normalize(cit)]; ok {
		return doc, nil
	}
	return "", errors.New("no source found")
}

type stubTextVerifier struct {
	result citation.SessionResult
}

func (v *stubTextVerifier) VerifyText(ctx context.Context, content string) *citation.SessionResult {
	r := v.result
	return &r
}

func initAudit(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := audit.Init(dir); err != nil {
		t.Fatal(err)
	}
	audit.SetConsole(io.Discard)
	t.Cleanup(func() { audit.SetConsole(nil) })
	return dir
}

func countLogs(t *testing.T, dir, prefix string) int {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(dir, "logs"))
	if err != nil {
		t.Fatalf("reading logs dir: %v", err)
	}
	n := 0
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), prefix) {
			n++
		}
	}
	return n
}

func TestCoVeWithIssuesRegenerates(t *testing.T) {
	dir := initAudit(t)

	original := "Smith v Jones [2025] FAKE 123 held that limitation expired on February 30, 2024."
	regenerated := "The limitation period expired in early 2024; no authority is cited for the proposition."
	stages := map[string]*stubClient{
		"questions": {model: "anthropic/claude-sonnet-4.5", responses: []string{
			"1. Does Smith v Jones [2025] FAKE 123 exist?\n2. Is February 30, 2024 a real date?",
		}},
		"answers": {model: "anthropic/claude-sonnet-4.5", responses: []string{
			"1. No\n2. No",
		}},
		"inconsistency": {model: "anthropic/claude-opus-4.1", responses: []string{
			"1. The cited case does not exist.\n2. February has no 30th day.",
		}},
		"regeneration": {model: "anthropic/claude-sonnet-4.5", responses: []string{regenerated}},
	}

	r := NewRunner(testSettings(),
		WithClientFactory(stubFactory(stages)),
		WithContextFetcher(&stubFetcher{}),
		WithTextVerifier(&stubTextVerifier{}))

	res, err := r.RunCoVe(context.Background(), original, "draft", CoVeOptions{})
	if err != nil {
		t.Fatalf("RunCoVe: %v", err)
	}
	if res.Passed {
		t.Error("Passed = true, want false when issues were found")
	}
	if !res.Regenerated {
		t.Error("Regenerated = false, want true")
	}
	if res.FinalContent != regenerated {
		t.Errorf("FinalContent = %q, want the stage-4 output", res.FinalContent)
	}
	if res.FinalContentLength != len(regenerated) {
		t.Errorf("FinalContentLength = %d, want %d", res.FinalContentLength, len(regenerated))
	}
	if res.OriginalContentLength != len(original) {
		t.Errorf("OriginalContentLength = %d", res.OriginalContentLength)
	}
	if len(res.Stages) != 4 {
		t.Fatalf("got %d stage logs, want 4", len(res.Stages))
	}

	for _, prefix := range []string{
		"cove_stage1_questions_draft_",
		"cove_stage2_answers_draft_",
		"cove_stage3_inconsistency_draft_",
		"cove_stage4_regeneration_draft_",
		"cove_draft_summary_",
	} {
		if n := countLogs(t, dir, prefix); n != 1 {
			t.Errorf("got %d records for %s, want 1", n, prefix)
		}
	}
}

func TestCoVeWithoutIssuesSkipsRegeneration(t *testing.T) {
	dir := initAudit(t)

	original := "Mabo v Queensland (No 2) (1992) 175 CLR 1 recognised native title."
	stages := map[string]*stubClient{
		"questions": {model: "anthropic/claude-sonnet-4.5", responses: []string{
			"1. Does Mabo v Queensland (No 2) (1992) 175 CLR 1 exist?",
		}},
		"answers": {model: "anthropic/claude-sonnet-4.5", responses: []string{
			"1. Yes, reported at (1992) 175 CLR 1.",
		}},
		"inconsistency": {model: "anthropic/claude-opus-4.1", responses: []string{
			"No issues found",
		}},
		"regeneration": {model: "anthropic/claude-sonnet-4.5", responses: []string{"unreachable"}},
	}

	r := NewRunner(testSettings(),
		WithClientFactory(stubFactory(stages)),
		WithContextFetcher(&stubFetcher{}),
		WithTextVerifier(&stubTextVerifier{}))

	res, err := r.RunCoVe(context.Background(), original, "digest", CoVeOptions{})
	if err != nil {
		t.Fatalf("RunCoVe: %v", err)
	}
	if !res.Passed {
		t.Error("Passed = false, want true")
	}
	if res.Regenerated {
		t.Error("Regenerated = true, want false")
	}
	if res.FinalContent != original {
		t.Errorf("FinalContent = %q, want original unchanged", res.FinalContent)
	}
	if len(stages["regeneration"].prompts) != 0 {
		t.Error("stage 4 was invoked despite no issues")
	}
	if n := countLogs(t, dir, "cove_stage4_"); n != 0 {
		t.Errorf("got %d stage-4 records, want 0", n)
	}
	if n := countLogs(t, dir, "cove_digest_summary_"); n != 1 {
		t.Errorf("got %d summary records, want 1", n)
	}
}

func TestCoVeFetchesQuestionAuthorities(t *testing.T) {
	initAudit(t)

	fetcher := &stubFetcher{docs: map[string]string{
		"[2020] HCA 45": "Smith v The Queen [2020] HCA 45\n\nJudgment text here.",
	}}
	stages := map[string]*stubClient{
		"questions": {model: "m", responses: []string{
			"1. Does [2020] HCA 45 support the stated proposition?",
		}},
		"answers":       {model: "m", responses: []string{"1. Yes"}},
		"inconsistency": {model: "m", responses: []string{"No issues found"}},
	}

	r := NewRunner(testSettings(),
		WithClientFactory(stubFactory(stages)),
		WithContextFetcher(fetcher),
		WithTextVerifier(&stubTextVerifier{}))

	_, err := r.RunCoVe(context.Background(), "Document citing [2020] HCA 45.", "lookup", CoVeOptions{})
	if err != nil {
		t.Fatalf("RunCoVe: %v", err)
	}

	answersPrompt := stages["answers"].prompts[0]
	if !strings.Contains(answersPrompt, "=== LEGAL AUTHORITIES (FULL TEXT) ===") {
		t.Error("answers prompt missing legal-authorities block")
	}
	if !strings.Contains(answersPrompt, "Judgment text here.") {
		t.Error("answers prompt missing fetched authority text")
	}
}

func TestCoVeAnswersDropLargestOnTokenLimit(t *testing.T) {
	dir := initAudit(t)

	fetcher := &stubFetcher{docs: map[string]string{
		"[2020] HCA 45":   "Smith v The Queen [2020] HCA 45 " + strings.Repeat("long ", 2000),
		"[2021] NSWSC 10": "Jones v Brown [2021] NSWSC 10 short judgment.",
	}}
	stages := map[string]*stubClient{
		"questions": {model: "m", responses: []string{
			"1. Check [2020] HCA 45.\n2. Check [2021] NSWSC 10.",
		}},
		// First answers call overflows; the retry without the largest
		// authority succeeds.
		"answers":       {model: "m", responses: []string{tokenLimitResponse, "1. Yes\n2. Yes"}},
		"inconsistency": {model: "m", responses: []string{"No issues found"}},
	}

	reference := []truncate.Document{{Name: "client_brief.txt", Content: "Reference brief."}}
	r := NewRunner(testSettings(),
		WithClientFactory(stubFactory(stages)),
		WithContextFetcher(fetcher),
		WithTextVerifier(&stubTextVerifier{}))

	res, err := r.RunCoVe(context.Background(), "Doc.", "strategy", CoVeOptions{ReferenceFiles: reference})
	if err != nil {
		t.Fatalf("RunCoVe: %v", err)
	}
	if !res.Passed {
		t.Error("Passed = false, want true")
	}

	if got := len(stages["answers"].prompts); got != 2 {
		t.Fatalf("answers called %d times, want 2", got)
	}
	retryPrompt := stages["answers"].prompts[1]
	if strings.Contains(retryPrompt, "[2020] HCA 45") {
		t.Error("retry prompt still contains the dropped largest authority")
	}
	if !strings.Contains(retryPrompt, "[2021] NSWSC 10") {
		t.Error("retry prompt lost the smaller authority")
	}
	if !strings.Contains(retryPrompt, "=== REFERENCE DOCUMENTS ===") ||
		!strings.Contains(retryPrompt, "Reference brief.") {
		t.Error("reference files must never be dropped")
	}
	if n := countLogs(t, dir, "cove_stage2_truncation_strategy_"); n != 1 {
		t.Errorf("got %d truncation records, want 1", n)
	}
}

func TestCoVeContextSummaryEnumeratesPriors(t *testing.T) {
	initAudit(t)

	stages := map[string]*stubClient{
		"questions":     {model: "m", responses: []string{"1. Q?"}},
		"answers":       {model: "m", responses: []string{"1. Yes"}},
		"inconsistency": {model: "m", responses: []string{"No issues found"}},
	}
	r := NewRunner(testSettings(),
		WithClientFactory(stubFactory(stages)),
		WithContextFetcher(&stubFetcher{}),
		WithTextVerifier(&stubTextVerifier{}))

	_, err := r.RunCoVe(context.Background(), "Doc.", "draft", CoVeOptions{
		CitationContext:  "2 citations verified",
		ReasoningContext: "trace valid",
	})
	if err != nil {
		t.Fatalf("RunCoVe: %v", err)
	}
	questionsPrompt := stages["questions"].prompts[0]
	if !strings.Contains(questionsPrompt, "citation verification") ||
		!strings.Contains(questionsPrompt, "reasoning verification") {
		t.Errorf("questions prompt does not enumerate prior contexts: %q", questionsPrompt)
	}
}

func TestCoVeStageFailurePropagates(t *testing.T) {
	initAudit(t)

	stages := map[string]*stubClient{
		"questions": {model: "m"}, // exhausted stub errors immediately
	}
	r := NewRunner(testSettings(),
		WithClientFactory(stubFactory(stages)),
		WithContextFetcher(&stubFetcher{}),
		WithTextVerifier(&stubTextVerifier{}))

	_, err := r.RunCoVe(context.Background(), "Doc.", "draft", CoVeOptions{})
	if err == nil || !strings.Contains(err.Error(), "stage 1") {
		t.Fatalf("err = %v, want stage-1 failure", err)
	}
}
