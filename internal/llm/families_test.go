package llm

import "testing"

func TestIdentifyFamily(t *testing.T) {
	cases := []struct {
		model string
		want  Family
	}{
		{"openai/o3-pro", FamilyOpenAIReasoning},
		{"openai/o1", FamilyOpenAIReasoning},
		{"openai/o4-mini", FamilyOpenAIReasoning},
		{"openai/gpt-5", FamilyGPT5},
		{"openai/gpt-5-mini", FamilyGPT5},
		{"openai/gpt-4o", FamilyOpenAIStandard},
		{"anthropic/claude-sonnet-4.5", FamilyClaude4},
		{"anthropic/claude-opus-4.1", FamilyClaude4},
		{"anthropic/claude-3-5-sonnet-20240620", FamilyAnthropic},
		{"google/gemini-2.5-pro", FamilyGoogle},
		{"x-ai/grok-4", FamilyXAI},
		{"meta-llama/llama-3.3-70b-instruct", FamilyMeta},
		{"mistralai/mistral-large", FamilyMistral},
		{"cohere/command-r-plus", FamilyCohere},
		{"moonshotai/kimi-k2", FamilyMoonshot},
		{"unknown-provider/some-model", FamilyDefault},
		{"bare-model-name", FamilyDefault},
	}
	for _, tc := range cases {
		if got := IdentifyFamily(tc.model); got != tc.want {
			t.Errorf("IdentifyFamily(%q) = %s, want %s", tc.model, got, tc.want)
		}
	}
}

func TestReasoningProfileHasNoSystemSupport(t *testing.T) {
	p := FamilyOpenAIReasoning.Profile()
	if p.SystemMessages {
		t.Error("openai_reasoning profile should not support system messages")
	}
	if p.Transforms["max_tokens"] != "max_completion_tokens" {
		t.Errorf("openai_reasoning transform = %q, want max_completion_tokens", p.Transforms["max_tokens"])
	}
	if p.Allowed["max_tokens"] {
		t.Error("openai_reasoning must not accept max_tokens directly")
	}
}

func TestMistralSeedTransform(t *testing.T) {
	p := FamilyMistral.Profile()
	if p.Transforms["seed"] != "random_seed" {
		t.Errorf("mistral seed transform = %q, want random_seed", p.Transforms["seed"])
	}
}

func TestEveryFamilyHasAProfile(t *testing.T) {
	families := []Family{
		FamilyDefault, FamilyOpenAIReasoning, FamilyGPT5, FamilyClaude4,
		FamilyAnthropic, FamilyGoogle, FamilyOpenAIStandard, FamilyXAI,
		FamilyMeta, FamilyMistral, FamilyCohere, FamilyMoonshot,
	}
	for _, f := range families {
		p := f.Profile()
		if len(p.Allowed) == 0 {
			t.Errorf("family %s has an empty allowed set", f)
		}
	}
}
