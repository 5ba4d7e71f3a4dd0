package llm

import (
	"context"
	"strings"

	"litassist/internal/logging"
)

// Verify runs the full soundness review over content, threading any prior
// citation and reasoning verification results into the prompt. It returns
// the reviewer's response (which carries the "## Issues Found" section and,
// when corrections were made, a "## Verified and Corrected Document"
// section) together with the model name that produced it.
func (c *Client) Verify(ctx context.Context, content, citationContext, reasoningContext string) (string, string, error) {
	return c.verifyWith(ctx, content, "verification.heavy_instructions", citationContext, reasoningContext)
}

// VerifyWithLevel selects the review depth: "light" checks spelling and
// citation format only, "heavy" verifies every proposition, anything else
// runs the self-critique pass.
func (c *Client) VerifyWithLevel(ctx context.Context, content, level string) (string, string, error) {
	key := "verification.self_critique"
	switch strings.ToLower(level) {
	case "light":
		key = "verification.light_instructions"
	case "heavy":
		key = "verification.heavy_instructions"
	}
	return c.verifyWith(ctx, content, key, "", "")
}

func (c *Client) verifyWith(ctx context.Context, content, instructionKey, citationContext, reasoningContext string) (string, string, error) {
	instructions, err := c.registry.Get(instructionKey)
	if err != nil {
		return "", c.model, err
	}
	contract, err := c.registry.Get("verification.output_contract")
	if err != nil {
		return "", c.model, err
	}

	var b strings.Builder
	b.WriteString(instructions)
	b.WriteString("\n\n")
	b.WriteString(contract)
	b.WriteString("\n\nDocument:\n\n")
	b.WriteString(content)
	if citationContext != "" {
		b.WriteString("\n\n=== PRIOR VERIFICATION: CITATIONS ===\n\n")
		b.WriteString(citationContext)
	}
	if reasoningContext != "" {
		b.WriteString("\n\n=== PRIOR VERIFICATION: REASONING ===\n\n")
		b.WriteString(reasoningContext)
	}

	messages := []Message{
		System(c.registry.SystemPrompt("verify")),
		User(b.String()),
	}

	logging.Verify("Running %s over %d chars with %s", instructionKey, len(content), c.model)
	corrections, _, err := c.Complete(ctx, messages,
		WithOverrides(map[string]interface{}{"temperature": 0.0}),
		WithSkipCitationVerification(),
		WithoutTools(),
	)
	return corrections, c.model, err
}
