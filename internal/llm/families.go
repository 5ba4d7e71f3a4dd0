package llm

import "strings"

// Family tags a provider-prefixed model identifier with the parameter and
// message-handling rules that apply to it. Identification happens once,
// in IdentifyFamily; everything downstream dispatches on the tag.
type Family int

const (
	FamilyDefault Family = iota
	FamilyOpenAIReasoning
	FamilyGPT5
	FamilyClaude4
	FamilyAnthropic
	FamilyGoogle
	FamilyOpenAIStandard
	FamilyXAI
	FamilyMeta
	FamilyMistral
	FamilyCohere
	FamilyMoonshot
)

var familyNames = map[Family]string{
	FamilyDefault:         "default",
	FamilyOpenAIReasoning: "openai_reasoning",
	FamilyGPT5:            "gpt5",
	FamilyClaude4:         "claude4",
	FamilyAnthropic:       "anthropic",
	FamilyGoogle:          "google",
	FamilyOpenAIStandard:  "openai_standard",
	FamilyXAI:             "xai",
	FamilyMeta:            "meta",
	FamilyMistral:         "mistral",
	FamilyCohere:          "cohere",
	FamilyMoonshot:        "moonshotai",
}

func (f Family) String() string {
	if name, ok := familyNames[f]; ok {
		return name
	}
	return "default"
}

// ParameterProfile describes what a family's endpoint accepts. Allowed is
// checked after Transforms are applied, so a transformed name must appear in
// Allowed for the parameter to survive.
type ParameterProfile struct {
	Allowed        map[string]bool
	Transforms     map[string]string
	SystemMessages bool
}

// Profile returns the filtering rules for the family.
func (f Family) Profile() ParameterProfile {
	return profiles[f]
}

var profiles = map[Family]ParameterProfile{
	FamilyOpenAIReasoning: {
		Allowed: set("max_completion_tokens", "reasoning", "seed",
			"response_format", "tools", "tool_choice", "stop"),
		Transforms:     map[string]string{"max_tokens": "max_completion_tokens"},
		SystemMessages: false,
	},
	FamilyGPT5: {
		Allowed: set("max_completion_tokens", "reasoning", "verbosity", "seed",
			"response_format", "tools", "tool_choice", "stop"),
		Transforms:     map[string]string{"max_tokens": "max_completion_tokens"},
		SystemMessages: true,
	},
	FamilyClaude4: {
		Allowed: set("max_tokens", "temperature", "top_p", "top_k", "stop",
			"stop_sequences", "tools", "tool_choice", "reasoning"),
		SystemMessages: true,
	},
	FamilyAnthropic: {
		Allowed: set("max_tokens", "temperature", "top_p", "top_k", "stop",
			"stop_sequences", "tools", "tool_choice"),
		SystemMessages: true,
	},
	FamilyGoogle: {
		Allowed: set("max_tokens", "temperature", "top_p", "top_k", "stop",
			"tools", "tool_choice", "reasoning", "response_format"),
		SystemMessages: true,
	},
	FamilyOpenAIStandard: {
		Allowed: set("max_tokens", "temperature", "top_p", "presence_penalty",
			"frequency_penalty", "stop", "seed", "tools", "tool_choice",
			"response_format", "logit_bias", "user"),
		SystemMessages: true,
	},
	FamilyXAI: {
		Allowed: set("max_tokens", "temperature", "top_p", "stop", "seed",
			"tools", "tool_choice", "reasoning"),
		SystemMessages: true,
	},
	FamilyMeta: {
		Allowed: set("max_tokens", "temperature", "top_p", "stop",
			"repetition_penalty", "min_p", "top_a"),
		SystemMessages: true,
	},
	FamilyMistral: {
		Allowed: set("max_tokens", "temperature", "top_p", "stop",
			"random_seed", "tools", "tool_choice"),
		Transforms:     map[string]string{"seed": "random_seed"},
		SystemMessages: true,
	},
	FamilyCohere: {
		Allowed: set("max_tokens", "temperature", "top_p", "stop",
			"frequency_penalty", "presence_penalty"),
		SystemMessages: true,
	},
	FamilyMoonshot: {
		Allowed: set("max_tokens", "temperature", "top_p", "stop", "min_p",
			"repetition_penalty"),
		SystemMessages: true,
	},
	FamilyDefault: {
		Allowed:        set("max_tokens", "temperature", "top_p", "stop"),
		SystemMessages: true,
	},
}

func set(keys ...string) map[string]bool {
	m := make(map[string]bool, len(keys))
	for _, k := range keys {
		m[k] = true
	}
	return m
}

// IdentifyFamily pattern-matches a model id like "anthropic/claude-sonnet-4.5"
// into its family tag.
func IdentifyFamily(model string) Family {
	m := strings.ToLower(strings.TrimSpace(model))
	provider, name := "", m
	if idx := strings.Index(m, "/"); idx >= 0 {
		provider, name = m[:idx], m[idx+1:]
	}

	switch provider {
	case "openai":
		switch {
		case strings.HasPrefix(name, "gpt-5"):
			return FamilyGPT5
		case isOpenAIReasoningName(name):
			return FamilyOpenAIReasoning
		default:
			return FamilyOpenAIStandard
		}
	case "anthropic":
		if strings.HasPrefix(name, "claude") && strings.Contains(name, "-4") {
			return FamilyClaude4
		}
		return FamilyAnthropic
	case "google":
		return FamilyGoogle
	case "x-ai", "xai":
		return FamilyXAI
	case "meta-llama", "meta":
		return FamilyMeta
	case "mistralai", "mistral":
		return FamilyMistral
	case "cohere":
		return FamilyCohere
	case "moonshotai", "moonshot":
		return FamilyMoonshot
	default:
		return FamilyDefault
	}
}

// isOpenAIReasoningName matches the o-series ids: o1, o3, o3-pro, o4-mini
// and date-stamped variants, but not "o1x" style names.
func isOpenAIReasoningName(name string) bool {
	for _, series := range []string{"o1", "o3", "o4"} {
		if name == series || strings.HasPrefix(name, series+"-") {
			return true
		}
	}
	return false
}
