package llm

import (
	"sort"
	"strings"

	"litassist/internal/logging"
)

// openrouterUniversal are parameters OpenRouter accepts for any model, so
// they survive filtering regardless of the family profile.
var openrouterUniversal = map[string]bool{
	"reasoning":          true,
	"min_p":              true,
	"top_a":              true,
	"repetition_penalty": true,
	"provider":           true,
	"route":              true,
	"models":             true,
	"transforms":         true,
}

// extraBodyKeys must travel through the gateway-extension channel rather
// than as standard chat-completion fields.
var extraBodyKeys = []string{"reasoning", "min_p", "top_a", "repetition_penalty"}

// thinkingConflictKeys are stripped whenever thinking_effort is converted,
// so the request never carries two reasoning controls at once.
var thinkingConflictKeys = []string{"reasoning", "reasoning_effort", "thinking", "thinking_config"}

// claudeThinkingBudgets maps the universal effort knob to Anthropic
// extended-thinking token budgets.
var claudeThinkingBudgets = map[string]int{
	"minimal": 1024,
	"low":     1024,
	"medium":  8192,
	"high":    16384,
	"max":     32000,
}

var verbosityLevels = map[string]bool{"low": true, "medium": true, "high": true}

// FilterParams merges defaults with per-call overrides and shapes the result
// for the model family: thinking_effort becomes a family-appropriate
// reasoning object, verbosity is validated, unknown keys are dropped, the
// profile's transforms are applied, and OpenRouter-extension parameters are
// split into the extra-body channel. The dropped key names are returned for
// the caller's debug audit entry.
func FilterParams(family Family, model string, defaults, overrides map[string]interface{}) (params, extra map[string]interface{}, dropped []string) {
	merged := make(map[string]interface{}, len(defaults)+len(overrides))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}

	convertThinkingEffort(family, model, merged)

	if v, ok := merged["verbosity"]; ok {
		s, isString := v.(string)
		if !isString || !verbosityLevels[strings.ToLower(s)] {
			delete(merged, "verbosity")
			dropped = append(dropped, "verbosity")
		}
	}

	profile := family.Profile()
	params = make(map[string]interface{}, len(merged))
	for k, v := range merged {
		key := k
		if renamed, ok := profile.Transforms[k]; ok {
			key = renamed
		}
		if profile.Allowed[key] || openrouterUniversal[key] {
			params[key] = v
		} else {
			dropped = append(dropped, k)
		}
	}

	sort.Strings(dropped)
	if len(dropped) > 0 {
		logging.GatewayDebug("Filtered %d parameter(s) for %s (%s): %s",
			len(dropped), model, family, strings.Join(dropped, ", "))
	}

	extra = make(map[string]interface{}, len(extraBodyKeys))
	for _, k := range extraBodyKeys {
		if v, ok := params[k]; ok {
			extra[k] = v
			delete(params, k)
		}
	}
	return params, extra, dropped
}

// convertThinkingEffort rewrites the universal thinking_effort knob
// (none|minimal|low|medium|high|max) into the family's reasoning object and
// removes every conflicting reasoning control. "none" removes reasoning
// entirely.
func convertThinkingEffort(family Family, model string, params map[string]interface{}) {
	raw, ok := params["thinking_effort"]
	if !ok {
		return
	}
	delete(params, "thinking_effort")
	for _, k := range thinkingConflictKeys {
		delete(params, k)
	}

	effort, ok := raw.(string)
	if !ok {
		logging.GatewayWarn("Ignoring non-string thinking_effort %v for %s", raw, model)
		return
	}
	effort = strings.ToLower(strings.TrimSpace(effort))
	if effort == "" || effort == "none" {
		return
	}

	switch family {
	case FamilyOpenAIReasoning, FamilyXAI, FamilyGPT5:
		e := effort
		if e == "max" {
			e = "high"
		}
		if e == "minimal" && !minimalEffortSupported(family, model) {
			e = "low"
		}
		params["reasoning"] = map[string]interface{}{"effort": e}
	case FamilyClaude4, FamilyAnthropic:
		budget, ok := claudeThinkingBudgets[effort]
		if !ok {
			budget = claudeThinkingBudgets["medium"]
		}
		params["reasoning"] = map[string]interface{}{"max_tokens": budget}
	case FamilyGoogle:
		e := effort
		if e == "max" {
			e = "high"
		}
		if e == "minimal" {
			e = "low"
		}
		params["reasoning"] = map[string]interface{}{"effort": e}
	default:
		logging.GatewayDebug("thinking_effort has no mapping for %s family (%s), dropped", family, model)
	}
}

// minimalEffortSupported reports whether the endpoint accepts
// reasoning.effort="minimal". Only GPT-5 and the o4 series do.
func minimalEffortSupported(family Family, model string) bool {
	if family == FamilyGPT5 {
		return true
	}
	return strings.Contains(strings.ToLower(model), "o4")
}
