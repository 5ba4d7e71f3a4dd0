package verify

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"litassist/internal/llm"
	"litassist/internal/logging"
	"litassist/internal/truncate"
)

// ReasoningTrace is the IRAC-structured reasoning block a generated document
// carries: issue, applicable law, application, conclusion, confidence and
// sources, tagged with the command that produced it.
type ReasoningTrace struct {
	Issue         string
	ApplicableLaw string
	Application   string
	Conclusion    string
	Confidence    int
	Sources       []string
	Command       string
}

// traceLabels maps the block's line labels to trace fields, in the order the
// prompt contract emits them.
var traceLabels = []string{
	"Issue:",
	"Applicable Law:",
	"Application to Facts:",
	"Conclusion:",
	"Confidence:",
	"Sources:",
	"Command:",
}

// ExtractReasoningTrace pulls the IRAC block out of a document. Labels are
// matched at line starts, case-insensitively; each field runs until the next
// label. Returns false when no Issue label is present.
func ExtractReasoningTrace(content string) (*ReasoningTrace, bool) {
	fields := map[string][]string{}
	current := ""

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		matched := false
		for _, label := range traceLabels {
			if len(trimmed) >= len(label) && strings.EqualFold(trimmed[:len(label)], label) {
				current = label
				rest := strings.TrimSpace(trimmed[len(label):])
				if rest != "" {
					fields[current] = append(fields[current], rest)
				}
				matched = true
				break
			}
		}
		if !matched && current != "" && trimmed != "" {
			fields[current] = append(fields[current], trimmed)
		}
	}

	if len(fields["Issue:"]) == 0 {
		return nil, false
	}

	t := &ReasoningTrace{
		Issue:         strings.Join(fields["Issue:"], " "),
		ApplicableLaw: strings.Join(fields["Applicable Law:"], " "),
		Application:   strings.Join(fields["Application to Facts:"], " "),
		Conclusion:    strings.Join(fields["Conclusion:"], " "),
		Sources:       fields["Sources:"],
		Command:       strings.Join(fields["Command:"], " "),
	}
	if raw := strings.Join(fields["Confidence:"], " "); raw != "" {
		digits := strings.TrimRight(strings.TrimSpace(raw), "%")
		if n, err := strconv.Atoi(strings.Fields(digits)[0]); err == nil {
			t.Confidence = n
		} else {
			t.Confidence = -1
		}
	} else {
		t.Confidence = -1
	}
	return t, true
}

// Validate checks the trace carries substantive content in every field.
func (t *ReasoningTrace) Validate() error {
	switch {
	case len(t.Issue) < 10:
		return fmt.Errorf("reasoning trace issue too short (%d chars, need 10)", len(t.Issue))
	case len(t.ApplicableLaw) < 20:
		return fmt.Errorf("reasoning trace applicable law too short (%d chars, need 20)", len(t.ApplicableLaw))
	case len(t.Application) < 30:
		return fmt.Errorf("reasoning trace application too short (%d chars, need 30)", len(t.Application))
	case len(t.Conclusion) < 10:
		return fmt.Errorf("reasoning trace conclusion too short (%d chars, need 10)", len(t.Conclusion))
	case t.Confidence < 0 || t.Confidence > 100:
		return fmt.Errorf("reasoning trace confidence %d out of range 0-100", t.Confidence)
	case len(t.Sources) == 0:
		return fmt.Errorf("reasoning trace has no sources")
	}
	return nil
}

// Format renders the trace in the block form the prompt contract specifies.
func (t *ReasoningTrace) Format() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Issue: %s\n", t.Issue)
	fmt.Fprintf(&b, "Applicable Law: %s\n", t.ApplicableLaw)
	fmt.Fprintf(&b, "Application to Facts: %s\n", t.Application)
	fmt.Fprintf(&b, "Conclusion: %s\n", t.Conclusion)
	fmt.Fprintf(&b, "Confidence: %d\n", t.Confidence)
	b.WriteString("Sources:\n")
	for _, s := range t.Sources {
		fmt.Fprintf(&b, "%s\n", s)
	}
	if t.Command != "" {
		fmt.Fprintf(&b, "Command: %s\n", t.Command)
	}
	return strings.TrimRight(b.String(), "\n")
}

// EnsureReasoningTrace returns the document's reasoning trace, regenerating
// it through the verify-reasoning client when the document carries none or
// an invalid one. Token-limit errors drop the largest appended legal-context
// document and retry, up to five attempts.
func (r *Runner) EnsureReasoningTrace(ctx context.Context, content, command string, legalContext []truncate.Document) (*ReasoningTrace, error) {
	if t, ok := ExtractReasoningTrace(content); ok {
		err := t.Validate()
		if err == nil {
			return t, nil
		}
		logging.VerifyWarn("Document reasoning trace invalid for %s, regenerating: %v", command, err)
	}

	client, err := r.clients("verify", "reasoning")
	if err != nil {
		return nil, err
	}
	base, err := r.registry.Format("verification.reasoning_prompt", map[string]string{"document": content})
	if err != nil {
		return nil, err
	}

	buildPrompt := func(docs []truncate.Document, system string) string {
		var b strings.Builder
		b.WriteString(base)
		for _, d := range docs {
			fmt.Fprintf(&b, "\n\n--- %s ---\n%s", d.Name, d.Content)
		}
		return b.String()
	}

	m := truncate.NewManager(legalContext)
	m.MaxAttempts = 5
	response, err := m.Execute(buildPrompt, func(p string) (string, error) {
		out, _, cerr := client.Complete(ctx, []llm.Message{
			llm.System(r.registry.SystemPrompt("verify")),
			llm.User(p),
		}, llm.WithSkipCitationVerification(), llm.WithoutTools())
		return out, cerr
	}, func(dropped truncate.Document, remaining []string) {
		logging.VerifyWarn("Reasoning regeneration dropped context %q, remaining: %s",
			dropped.Name, strings.Join(remaining, ", "))
	}, "")
	if err != nil {
		return nil, err
	}

	t, ok := ExtractReasoningTrace(response)
	if !ok {
		return nil, fmt.Errorf("regenerated reasoning trace for %s is unparseable", command)
	}
	t.Command = command
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("regenerated reasoning trace invalid: %w", err)
	}
	return t, nil
}
