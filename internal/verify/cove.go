package verify

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"litassist/internal/audit"
	"litassist/internal/citation"
	"litassist/internal/llm"
	"litassist/internal/logging"
	"litassist/internal/truncate"
)

// coveContextTokenBudget caps the tokens of legal-authority text included in
// the stage-2 answers prompt before the drop-largest retry loop even starts.
const coveContextTokenBudget = 60000

// coveFetchParallelism bounds concurrent citation-context fetches. AustLII
// hits still serialise through the shared pacing gate.
const coveFetchParallelism = 4

// StageLog records one CoVe stage's full prompt and response.
type StageLog struct {
	Name     string
	Model    string
	Prompt   string
	Response string
	Usage    llm.Usage
}

// CoVeResult is the outcome of one Chain of Verification run.
type CoVeResult struct {
	Questions             string
	Answers               string
	Issues                string
	Passed                bool
	Regenerated           bool
	FinalContent          string
	FinalContentLength    int
	OriginalContentLength int
	TotalTokens           int
	Stages                []StageLog
}

// CoVeOptions carries the prior verification contexts and reference files a
// command threads into the chain.
type CoVeOptions struct {
	CitationContext  string
	ReasoningContext string
	ReferenceFiles   []truncate.Document
}

// RunCoVe executes the four Chain of Verification stages in strict order:
// question generation, independent answers, inconsistency detection, and
// regeneration when issues were found. Each stage uses its own client
// configuration and persists its full prompt and response to the audit log
// under cove_stageK_<name>_<command>.
func (r *Runner) RunCoVe(ctx context.Context, content, command string, opts CoVeOptions) (*CoVeResult, error) {
	res := &CoVeResult{
		FinalContent:          content,
		FinalContentLength:    len(content),
		OriginalContentLength: len(content),
	}

	// Stage 1: verification questions.
	questions, err := r.coveStage(ctx, command, 1, "questions", func(client Completer) (string, llm.Usage, error) {
		prompt, ferr := r.registry.Format("cove.questions", map[string]string{
			"context_summary": coveContextSummary(opts),
			"document":        content,
		})
		if ferr != nil {
			return "", llm.Usage{}, ferr
		}
		return r.coveComplete(ctx, client, command, 1, "questions", prompt, res)
	})
	if err != nil {
		return res, err
	}
	res.Questions = questions

	legalDocs := r.fetchQuestionAuthorities(ctx, command, questions)

	// Stage 2: independent answers, produced without sight of the document.
	answers, err := r.coveStage(ctx, command, 2, "answers", func(client Completer) (string, llm.Usage, error) {
		return r.coveAnswers(ctx, client, command, questions, legalDocs, opts.ReferenceFiles, res)
	})
	if err != nil {
		return res, err
	}
	res.Answers = answers

	// Stage 3: inconsistency detection against the original.
	issues, err := r.coveStage(ctx, command, 3, "inconsistency", func(client Completer) (string, llm.Usage, error) {
		prompt, ferr := r.registry.Format("cove.inconsistency", map[string]string{
			"document": content,
			"answers":  answers,
		})
		if ferr != nil {
			return "", llm.Usage{}, ferr
		}
		return r.coveComplete(ctx, client, command, 3, "inconsistency", prompt, res)
	})
	if err != nil {
		return res, err
	}
	res.Issues = issues

	if containsNoIssues(issues) {
		res.Passed = true
		r.recordCoVeSummary(command, res, opts)
		return res, nil
	}

	// Stage 4: regeneration, only when issues were found.
	regenerated, err := r.coveStage(ctx, command, 4, "regeneration", func(client Completer) (string, llm.Usage, error) {
		prompt, ferr := r.registry.Format("cove.regeneration", map[string]string{
			"document": content,
			"issues":   issues,
			"answers":  answers,
		})
		if ferr != nil {
			return "", llm.Usage{}, ferr
		}
		return r.coveComplete(ctx, client, command, 4, "regeneration", prompt, res)
	})
	if err != nil {
		return res, err
	}
	res.Regenerated = true
	res.FinalContent = regenerated
	res.FinalContentLength = len(regenerated)
	r.recordCoVeSummary(command, res, opts)
	return res, nil
}

// coveStage wraps one stage with its client lookup, task events and audit
// record.
func (r *Runner) coveStage(ctx context.Context, command string, k int, name string,
	run func(client Completer) (string, llm.Usage, error)) (string, error) {

	stage := fmt.Sprintf("cove_stage%d_%s", k, name)
	client, err := r.clients("cove", name)
	if err != nil {
		return "", err
	}
	details := map[string]interface{}{"model": client.Model()}

	audit.EmitStage(command, stage, audit.EventStart,
		fmt.Sprintf("CoVe stage %d (%s)", k, name), details)
	audit.EmitStage(command, stage, audit.EventLLMCall, "Calling model", details)

	response, _, err := run(client)
	if err != nil {
		audit.EmitStage(command, stage, audit.EventError, err.Error(), details)
		return "", fmt.Errorf("CoVe stage %d (%s) failed: %w", k, name, err)
	}

	audit.EmitStage(command, stage, audit.EventLLMResponse,
		fmt.Sprintf("Received %d chars", len(response)), details)
	audit.EmitStage(command, stage, audit.EventEnd, "Stage complete", details)
	return response, nil
}

// coveComplete issues one stage call and records the stage log.
func (r *Runner) coveComplete(ctx context.Context, client Completer, command string, k int, name, prompt string, res *CoVeResult) (string, llm.Usage, error) {
	response, usage, err := client.Complete(ctx, []llm.Message{llm.User(prompt)},
		llm.WithSkipCitationVerification(), llm.WithoutTools())
	if err != nil {
		return "", usage, err
	}
	res.TotalTokens += usage.TotalTokens
	r.recordStage(res, command, k, name, client.Model(), prompt, response, usage)
	return response, usage, nil
}

// recordStage appends the stage log entry and persists the full prompt and
// response under the stage's own tag so CoVe records can be filtered from
// the broader LLM log stream.
func (r *Runner) recordStage(res *CoVeResult, command string, k int, name, model, prompt, response string, usage llm.Usage) {
	res.Stages = append(res.Stages, StageLog{
		Name:     name,
		Model:    model,
		Prompt:   prompt,
		Response: response,
		Usage:    usage,
	})

	tag := fmt.Sprintf("cove_stage%d_%s_%s", k, name, command)
	payload := map[string]interface{}{
		"model":    model,
		"prompt":   prompt,
		"response": response,
		"usage": map[string]interface{}{
			"prompt_tokens":     usage.PromptTokens,
			"completion_tokens": usage.CompletionTokens,
			"total_tokens":      usage.TotalTokens,
		},
	}
	if _, err := audit.SaveLog(tag, payload); err != nil {
		logging.VerifyWarn("Failed to record CoVe stage %s: %v", tag, err)
	}
}

// coveContextSummary enumerates which prior verifications accompanied the
// document.
func coveContextSummary(opts CoVeOptions) string {
	var present []string
	if opts.CitationContext != "" {
		present = append(present, "citation verification")
	}
	if opts.ReasoningContext != "" {
		present = append(present, "reasoning verification")
	}
	if len(opts.ReferenceFiles) > 0 {
		present = append(present, fmt.Sprintf("%d reference document(s)", len(opts.ReferenceFiles)))
	}
	if len(present) == 0 {
		return "No prior verification context is available for this document."
	}
	return "Prior verification context available: " + strings.Join(present, ", ") + "."
}

// fetchQuestionAuthorities extracts the citations the questions mention and
// fetches their full documents concurrently. Failures warn and continue; a
// question that lost its authority is still answerable from model knowledge.
func (r *Runner) fetchQuestionAuthorities(ctx context.Context, command, questions string) []truncate.Document {
	cits := citation.Extract(questions)
	if len(cits) == 0 {
		return nil
	}

	var mu sync.Mutex
	docs := make(map[string]string)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(coveFetchParallelism)
	for _, cit := range cits {
		cit := cit
		g.Go(func() error {
			content, err := r.fetcher.FetchContext(gctx, cit)
			if err != nil {
				logging.VerifyWarn("CoVe could not fetch authority %q for %s: %v", cit, command, err)
				return nil
			}
			mu.Lock()
			docs[cit] = content
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	names := make([]string, 0, len(docs))
	for name := range docs {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]truncate.Document, 0, len(names))
	for _, name := range names {
		out = append(out, truncate.Document{Name: name, Content: docs[name]})
	}
	logging.Verify("CoVe fetched %d of %d authorities for %s", len(out), len(cits), command)
	return out
}

// coveAnswers runs stage 2 with token-budget-aware inclusion of the legal
// authorities and a drop-largest retry on token-limit errors. Reference
// files are never dropped.
func (r *Runner) coveAnswers(ctx context.Context, client Completer, command, questions string,
	legalDocs, referenceFiles []truncate.Document, res *CoVeResult) (string, llm.Usage, error) {

	base, err := r.registry.Format("cove.answers", map[string]string{"questions": questions})
	if err != nil {
		return "", llm.Usage{}, err
	}

	legalDocs = capToTokenBudget(client.Model(), legalDocs, coveContextTokenBudget)

	buildPrompt := func(docs []truncate.Document, system string) string {
		var b strings.Builder
		b.WriteString(base)
		if len(docs) > 0 {
			b.WriteString("\n\n=== LEGAL AUTHORITIES (FULL TEXT) ===\n")
			for _, d := range docs {
				fmt.Fprintf(&b, "\n--- %s ---\n%s\n", d.Name, d.Content)
			}
		}
		if len(referenceFiles) > 0 {
			b.WriteString("\n\n=== REFERENCE DOCUMENTS ===\n")
			for _, d := range referenceFiles {
				fmt.Fprintf(&b, "\n--- %s ---\n%s\n", d.Name, d.Content)
			}
		}
		return b.String()
	}

	var usage llm.Usage
	var lastPrompt string
	m := truncate.NewManager(legalDocs)
	m.MaxAttempts = 5
	response, err := m.Execute(buildPrompt, func(p string) (string, error) {
		lastPrompt = p
		out, u, cerr := client.Complete(ctx, []llm.Message{llm.User(p)},
			llm.WithSkipCitationVerification(), llm.WithoutTools())
		if cerr != nil {
			return "", cerr
		}
		usage = u
		return out, nil
	}, func(dropped truncate.Document, remaining []string) {
		if _, aerr := audit.SaveLog("cove_stage2_truncation_"+command, map[string]interface{}{
			"dropped":   dropped.Name,
			"remaining": strings.Join(remaining, ", "),
			"size":      len(dropped.Content),
		}); aerr != nil {
			logging.VerifyWarn("Failed to record stage-2 drop: %v", aerr)
		}
	}, "")
	if err != nil {
		return "", usage, err
	}

	res.TotalTokens += usage.TotalTokens
	r.recordStage(res, command, 2, "answers", client.Model(), lastPrompt, response, usage)
	return response, usage, nil
}

// capToTokenBudget keeps documents in order while their cumulative token
// count fits the budget; oversized tails are left out before any retry.
func capToTokenBudget(model string, docs []truncate.Document, budget int) []truncate.Document {
	total := 0
	out := make([]truncate.Document, 0, len(docs))
	for _, d := range docs {
		n := llm.CountTokens(model, d.Content)
		if total+n > budget {
			logging.Verify("Excluding %q from CoVe answers prompt (%d tokens over budget)", d.Name, n)
			continue
		}
		total += n
		out = append(out, d)
	}
	return out
}

// recordCoVeSummary persists the cove_<command>_summary record with every
// stage, prior-context presence and the final outcome.
func (r *Runner) recordCoVeSummary(command string, res *CoVeResult, opts CoVeOptions) {
	stages := make([]interface{}, len(res.Stages))
	for i, s := range res.Stages {
		stages[i] = map[string]interface{}{
			"name":     s.Name,
			"model":    s.Model,
			"prompt":   s.Prompt,
			"response": s.Response,
			"usage": map[string]interface{}{
				"prompt_tokens":     s.Usage.PromptTokens,
				"completion_tokens": s.Usage.CompletionTokens,
				"total_tokens":      s.Usage.TotalTokens,
			},
		}
	}
	payload := map[string]interface{}{
		"command":                 command,
		"stages":                  stages,
		"had_citation_context":    opts.CitationContext != "",
		"had_reasoning_context":   opts.ReasoningContext != "",
		"reference_files":         len(opts.ReferenceFiles),
		"passed":                  res.Passed,
		"regenerated":             res.Regenerated,
		"original_content_length": res.OriginalContentLength,
		"final_content_length":    res.FinalContentLength,
		"total_tokens":            res.TotalTokens,
	}
	if _, err := audit.SaveLog(fmt.Sprintf("cove_%s_summary", command), payload); err != nil {
		logging.VerifyWarn("Failed to record CoVe summary for %s: %v", command, err)
	}
}
