package verify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"litassist/internal/audit"
	"litassist/internal/citation"
	"litassist/internal/logging"
)

// ChainResult reports the outcome of the gated verification chain.
type ChainResult struct {
	Content       string
	PatternIssues []string
	Unverified    []citation.UnverifiedCitation
	Issues        []string
	Corrected     bool
	Passed        bool
	Stages        []string
	Model         string
}

// RunChain executes up to three gated verification stages over a generated
// document: offline pattern validation, online database verification, and
// (for high-risk commands) an LLM soundness review whose corrections replace
// the content. Pattern issues are terminal for high-risk commands; any
// unverified citation is terminal for strict commands. CoVe is not part of
// this chain; callers invoke RunCoVe directly.
func (r *Runner) RunChain(ctx context.Context, content, command string) (*ChainResult, error) {
	res := &ChainResult{Content: content}
	audit.EmitStage(command, "verification_chain", audit.EventStart,
		"Verifying generated document", nil)
	defer func() {
		audit.EmitStage(command, "verification_chain", audit.EventEnd,
			fmt.Sprintf("Verification chain finished: passed=%v", res.Passed), nil)
	}()

	res.Stages = append(res.Stages, "patterns")
	year := time.Now().Year()
	for _, c := range citation.Extract(content) {
		res.PatternIssues = append(res.PatternIssues, citation.FormatIssues(c, year)...)
	}
	if len(res.PatternIssues) > 0 && highRiskCommands[command] {
		logging.Verify("Pattern gate terminal for %s: %d issue(s)", command, len(res.PatternIssues))
		return res, nil
	}

	res.Stages = append(res.Stages, "database")
	session := r.verifier.VerifyText(ctx, content)
	res.Unverified = session.Unverified
	if len(res.Unverified) > 0 && strictCommands[command] {
		logging.Verify("Database gate terminal for %s: %d unverified citation(s)",
			command, len(res.Unverified))
		return res, nil
	}

	if !highRiskCommands[command] {
		res.Passed = len(res.Unverified) == 0
		return res, nil
	}

	res.Stages = append(res.Stages, "llm")
	client, err := r.clients("verify", "")
	if err != nil {
		return res, err
	}
	res.Model = client.Model()

	sv, ok := client.(SoundnessVerifier)
	if !ok {
		return res, fmt.Errorf("verification client %s does not support soundness review", client.Model())
	}
	response, model, err := sv.Verify(ctx, content, databaseContext(session), "")
	if err != nil {
		return res, err
	}
	res.Model = model

	parsed := ParseSoundness(response)
	res.Issues = parsed.Issues
	res.Passed = parsed.NoIssues
	if parsed.Corrected != "" && parsed.Corrected != content {
		res.Content = parsed.Corrected
		res.Corrected = true
		logging.Verify("Soundness review corrected the %s document (%d -> %d chars)",
			command, len(content), len(res.Content))
	}
	return res, nil
}

// databaseContext summarises a citation session for the soundness prompt.
func databaseContext(session *citation.SessionResult) string {
	if session == nil || len(session.Found) == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d citation(s) checked against Australian legal databases.\n", len(session.Found))
	for _, v := range session.Verified {
		fmt.Fprintf(&b, "Verified: %s (%s)\n", v.Citation, v.Reason)
	}
	for _, u := range session.Unverified {
		fmt.Fprintf(&b, "NOT verified: %s (%s)\n", u.Citation, u.Reason)
	}
	return strings.TrimSpace(b.String())
}
