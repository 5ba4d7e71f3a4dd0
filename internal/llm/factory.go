package llm

import (
	"fmt"
	"os"
	"strings"

	"litassist/internal/config"
	"litassist/internal/logging"
)

// commandConfig binds a command (or command.subcommand) to its model and
// default parameters.
type commandConfig struct {
	model            string
	params           map[string]interface{}
	enforceCitations bool
}

// commandConfigs is the static per-command model table. Fact extraction and
// strategy run deterministic Sonnet with citation enforcement; lookup favors
// Gemini's long context; drafting goes to o3-pro with high reasoning effort;
// brainstorming runs hot on Grok except the analysis pass, which Opus
// handles. Verification and CoVe stages have their own entries.
var commandConfigs = map[string]commandConfig{
	"extractfacts": {
		model:            "anthropic/claude-sonnet-4.5",
		params:           map[string]interface{}{"temperature": 0.0, "top_p": 0.15},
		enforceCitations: true,
	},
	"strategy": {
		model:            "anthropic/claude-sonnet-4.5",
		params:           map[string]interface{}{"temperature": 0.2, "top_p": 0.8, "thinking_effort": "max"},
		enforceCitations: true,
	},
	"strategy.ranking": {
		model:  "anthropic/claude-sonnet-4.5",
		params: map[string]interface{}{"temperature": 0.0, "top_p": 0.5},
	},
	"lookup": {
		model:  "google/gemini-2.5-pro",
		params: map[string]interface{}{"temperature": 0.1, "top_p": 0.2},
	},
	"digest": {
		model:  "anthropic/claude-sonnet-4.5",
		params: map[string]interface{}{"temperature": 0.3, "top_p": 0.5},
	},
	"draft": {
		model:            "openai/o3-pro",
		params:           map[string]interface{}{"thinking_effort": "high", "max_tokens": 4096},
		enforceCitations: true,
	},
	"brainstorm": {
		model:  "x-ai/grok-4",
		params: map[string]interface{}{"temperature": 0.9, "top_p": 0.95},
	},
	"brainstorm.orthodox": {
		model:  "anthropic/claude-sonnet-4.5",
		params: map[string]interface{}{"temperature": 0.3, "top_p": 0.7},
	},
	"brainstorm.unorthodox": {
		model:  "x-ai/grok-4",
		params: map[string]interface{}{"temperature": 0.9, "top_p": 0.95},
	},
	"brainstorm.analysis": {
		model:  "anthropic/claude-opus-4.1",
		params: map[string]interface{}{"temperature": 0.2, "top_p": 0.8, "thinking_effort": "medium"},
	},
	"counselnotes": {
		model:  "anthropic/claude-sonnet-4.5",
		params: map[string]interface{}{"temperature": 0.3, "top_p": 0.7},
	},
	"barbrief": {
		model:            "openai/o3-pro",
		params:           map[string]interface{}{"thinking_effort": "high", "max_tokens": 8192},
		enforceCitations: true,
	},
	"caseplan": {
		model:  "anthropic/claude-sonnet-4.5",
		params: map[string]interface{}{"temperature": 0.2, "top_p": 0.8},
	},
	"verify": {
		model:  "anthropic/claude-opus-4.1",
		params: map[string]interface{}{"temperature": 0.0, "top_p": 0.2},
	},
	"verify.citations": {
		model:  "anthropic/claude-sonnet-4.5",
		params: map[string]interface{}{"temperature": 0.0, "top_p": 0.2},
	},
	"verify.reasoning": {
		model:  "anthropic/claude-opus-4.1",
		params: map[string]interface{}{"temperature": 0.0, "top_p": 0.2},
	},
	"cove.questions": {
		model:  "anthropic/claude-sonnet-4.5",
		params: map[string]interface{}{"temperature": 0.2, "top_p": 0.8},
	},
	"cove.answers": {
		model:  "anthropic/claude-sonnet-4.5",
		params: map[string]interface{}{"temperature": 0.0, "top_p": 0.3},
	},
	"cove.inconsistency": {
		model:  "anthropic/claude-opus-4.1",
		params: map[string]interface{}{"temperature": 0.0, "top_p": 0.2},
	},
	"cove.regeneration": {
		model:  "anthropic/claude-sonnet-4.5",
		params: map[string]interface{}{"temperature": 0.2, "top_p": 0.5},
	},
}

// ForCommand returns a gateway client configured for the command (and
// optional subcommand, joined as "command.subcommand" in the table). An
// unknown key is an error; there is no default fallback. The model can be
// overridden per command with LITASSIST_<COMMAND>_MODEL.
func ForCommand(settings *config.Settings, command, subcommand string, opts ...Option) (*Client, error) {
	key := command
	if subcommand != "" {
		key = command + "." + subcommand
	}
	cfg, ok := commandConfigs[key]
	if !ok {
		return nil, fmt.Errorf("no model configuration for command %q", key)
	}

	model := cfg.model
	if override := os.Getenv(modelEnvVar(command)); override != "" {
		logging.Gateway("Model override for %s: %s (was %s)", key, override, model)
		model = override
	}

	base := make([]Option, 0, len(opts)+1)
	if cfg.enforceCitations {
		base = append(base, WithCitationEnforcement(true))
	}
	base = append(base, opts...)
	return New(settings, model, cfg.params, base...), nil
}

func modelEnvVar(command string) string {
	name := strings.ToUpper(strings.ReplaceAll(command, "-", "_"))
	return "LITASSIST_" + name + "_MODEL"
}
