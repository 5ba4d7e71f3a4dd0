package llm

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"litassist/internal/logging"
	"litassist/internal/prompt"
)

// Message is one chat-completion turn.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// System, User and Assistant build single-turn messages.
func System(content string) Message    { return Message{Role: "system", Content: content} }
func User(content string) Message      { return Message{Role: "user", Content: content} }
func Assistant(content string) Message { return Message{Role: "assistant", Content: content} }

// australianDirective is the jurisdictional anchor carried by every system
// message (or merged system block) sent through the gateway.
var australianDirective = prompt.MustGet("base.australian_law")

var (
	sydneyOnce sync.Once
	sydneyLoc  *time.Location
)

func sydney() *time.Location {
	sydneyOnce.Do(func() {
		loc, err := time.LoadLocation("Australia/Sydney")
		if err != nil {
			logging.GatewayWarn("Australia/Sydney tz data unavailable, using fixed +10:00: %v", err)
			loc = time.FixedZone("AEST", 10*3600)
		}
		sydneyLoc = loc
	})
	return sydneyLoc
}

// PrepareMessages applies the deterministic pre-send rules:
//  1. families without system-message support get all system contents merged
//     (directive ensured) and prepended to the first user message;
//  2. otherwise each system message missing the Australian-English directive
//     gets it prepended;
//  3. a date-awareness instruction is prepended to the first system-or-user
//     message, either pointing at the now tool or injecting today's Sydney
//     date directly.
//
// The input slice is not modified.
func PrepareMessages(family Family, msgs []Message, useTools bool, now time.Time) []Message {
	profile := family.Profile()
	var out []Message

	if profile.SystemMessages {
		out = make([]Message, 0, len(msgs))
		for _, m := range msgs {
			if m.Role == "system" && !strings.Contains(m.Content, australianDirective) {
				m.Content = australianDirective + "\n\n" + m.Content
			}
			out = append(out, m)
		}
	} else {
		var sysParts []string
		rest := make([]Message, 0, len(msgs))
		for _, m := range msgs {
			if m.Role == "system" {
				if m.Content != "" {
					sysParts = append(sysParts, m.Content)
				}
				continue
			}
			rest = append(rest, m)
		}

		merged := strings.Join(sysParts, "\n\n")
		if !strings.Contains(merged, australianDirective) {
			if merged == "" {
				merged = australianDirective
			} else {
				merged = australianDirective + "\n\n" + merged
			}
		}

		injected := false
		out = make([]Message, 0, len(rest)+1)
		for _, m := range rest {
			if !injected && m.Role == "user" {
				m.Content = merged + "\n\n" + m.Content
				injected = true
			}
			out = append(out, m)
		}
		if !injected {
			out = append([]Message{User(merged)}, out...)
		}
	}

	instruction := dateInstruction(useTools, now)
	for i := range out {
		if out[i].Role == "system" || out[i].Role == "user" {
			out[i].Content = instruction + "\n\n" + out[i].Content
			break
		}
	}
	return out
}

func dateInstruction(useTools bool, now time.Time) string {
	if useTools {
		return "Before relying on the current date, call the `now` tool to obtain today's date and time in Australia/Sydney."
	}
	return fmt.Sprintf("Today's date is %s (Australia/Sydney).",
		now.In(sydney()).Format("Monday, 2 January 2006"))
}
