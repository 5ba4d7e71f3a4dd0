package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ToolCall mirrors the chat-completion function-calling schema.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type,omitempty"`
	Function ToolFunction `json:"function"`
}

// ToolFunction names the invoked function and carries its JSON arguments.
type ToolFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments,omitempty"`
}

const nowToolName = "now"

// errEmptyToolResponse marks a tool-enabled completion that produced neither
// content nor tool calls; the gateway falls back to a tool-free request.
var errEmptyToolResponse = errors.New("model returned an empty response to a tool-enabled request")

// nowToolDefinition is the single built-in tool the gateway exposes.
func nowToolDefinition() map[string]interface{} {
	return map[string]interface{}{
		"type": "function",
		"function": map[string]interface{}{
			"name":        nowToolName,
			"description": "Returns the current date and time in Australia/Sydney.",
			"parameters": map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
	}
}

// executeNow renders the Sydney-local timestamp object the now tool returns.
func executeNow(now time.Time) string {
	t := now.In(sydney())
	payload := map[string]interface{}{
		"iso":      t.Format(time.RFC3339),
		"date":     t.Format("Monday, 2 January 2006"),
		"time":     t.Format("15:04:05"),
		"timezone": "Australia/Sydney",
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf(`{"error": %q}`, err.Error())
	}
	return string(data)
}

// dispatchTool executes one requested tool call. Only now is supported.
func (c *Client) dispatchTool(tc ToolCall) string {
	if tc.Function.Name != nowToolName {
		return fmt.Sprintf(`{"error": "unknown tool %s"}`, tc.Function.Name)
	}
	return executeNow(c.nowFn())
}

// isToolRejection reports whether the error means the model or provider
// refused the tool definitions, in which case the same request is retried
// with tools removed and the date injected directly.
func isToolRejection(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, errEmptyToolResponse) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "tools") || strings.Contains(msg, "tool_choice")
}
