// Package verify runs post-generation verification over legal documents:
// offline citation-pattern gating, online database verification, an LLM
// soundness review, IRAC reasoning-trace validation, and the four-stage
// Chain of Verification (CoVe) that regenerates a document when
// independently-answered questions contradict it.
package verify

import (
	"context"

	"litassist/internal/citation"
	"litassist/internal/config"
	"litassist/internal/llm"
	"litassist/internal/prompt"
)

// Completer is the slice of the LLM gateway the chain drives.
type Completer interface {
	Model() string
	Complete(ctx context.Context, msgs []llm.Message, opts ...llm.CompleteOption) (string, llm.Usage, error)
}

// SoundnessVerifier is implemented by gateway clients that expose the full
// soundness review.
type SoundnessVerifier interface {
	Verify(ctx context.Context, content, citationContext, reasoningContext string) (string, string, error)
}

// TextVerifier runs a citation verification session over a document.
type TextVerifier interface {
	VerifyText(ctx context.Context, content string) *citation.SessionResult
}

// ContextFetcher retrieves the full document text behind a citation.
type ContextFetcher interface {
	FetchContext(ctx context.Context, cit string) (string, error)
}

// ClientFactory yields a configured gateway client for a command and
// subcommand. The default factory delegates to llm.ForCommand.
type ClientFactory func(command, subcommand string) (Completer, error)

// Runner owns the collaborators the verification stages share.
type Runner struct {
	settings *config.Settings
	registry *prompt.Registry
	verifier TextVerifier
	fetcher  ContextFetcher
	clients  ClientFactory
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithClientFactory substitutes the per-stage client source, mainly so tests
// can drive the chain with stub clients.
func WithClientFactory(f ClientFactory) RunnerOption {
	return func(r *Runner) { r.clients = f }
}

// WithTextVerifier substitutes the citation session verifier.
func WithTextVerifier(v TextVerifier) RunnerOption {
	return func(r *Runner) { r.verifier = v }
}

// WithContextFetcher substitutes the citation context fetcher.
func WithContextFetcher(f ContextFetcher) RunnerOption {
	return func(r *Runner) { r.fetcher = f }
}

// WithRunnerRegistry substitutes the prompt registry.
func WithRunnerRegistry(reg *prompt.Registry) RunnerOption {
	return func(r *Runner) { r.registry = reg }
}

// NewRunner builds a Runner wired to the real gateway, citation verifier and
// prompt registry.
func NewRunner(settings *config.Settings, opts ...RunnerOption) *Runner {
	r := &Runner{
		settings: settings,
		registry: prompt.Must(),
		clients: func(command, subcommand string) (Completer, error) {
			c, err := llm.ForCommand(settings, command, subcommand)
			if err != nil {
				return nil, err
			}
			return c, nil
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.verifier == nil || r.fetcher == nil {
		cv := citation.NewVerifier(settings)
		if r.verifier == nil {
			r.verifier = cv
		}
		if r.fetcher == nil {
			r.fetcher = cv
		}
	}
	return r
}

// highRiskCommands produce documents whose errors carry filing consequences;
// they get the full gate sequence including the LLM soundness review.
var highRiskCommands = map[string]bool{
	"extractfacts": true,
	"strategy":     true,
	"draft":        true,
}

// strictCommands fail the chain outright on any unverified citation.
var strictCommands = map[string]bool{
	"extractfacts": true,
	"strategy":     true,
}

// IsHighRiskCommand reports whether the command gets the full verification
// gate sequence.
func IsHighRiskCommand(command string) bool { return highRiskCommands[command] }
