// Package llm is the gateway through which every model call travels. All
// traffic is routed via OpenRouter's chat-completion API; the gateway
// prepares messages for the target model family, filters parameters through
// the family profile, retries transient failures with backoff, dispatches
// the built-in now tool, and verifies citations in the generated text
// before returning it.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"litassist/internal/audit"
	"litassist/internal/citation"
	"litassist/internal/config"
	"litassist/internal/logging"
	"litassist/internal/prompt"
)

const (
	maxAttempts      = 5
	backoffBase      = 500 * time.Millisecond
	backoffMax       = 10 * time.Second
	maxResponseBytes = 20 << 20

	// promptTokenCeiling guards against sending prompts no configured model
	// can hold; overflows surface as a local maximum-context-length error so
	// the truncation manager can react without burning an API call.
	promptTokenCeiling = 180000
)

// Usage is the normalized token accounting for one completion.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

func (u Usage) add(other Usage) Usage {
	return Usage{
		PromptTokens:     u.PromptTokens + other.PromptTokens,
		CompletionTokens: u.CompletionTokens + other.CompletionTokens,
		TotalTokens:      u.TotalTokens + other.TotalTokens,
	}
}

// Client is an LLM gateway bound to one model. It owns the model id, the
// default parameter map, and an optional command-context tag used for log
// routing.
type Client struct {
	settings *config.Settings
	registry *prompt.Registry
	model    string
	family   Family
	defaults map[string]interface{}

	http     *http.Client
	verifier *citation.Verifier

	commandContext   string
	enforceCitations bool
	nowFn            func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient substitutes the transport, mainly for tests.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithVerifier substitutes the citation verifier used after generation.
func WithVerifier(v *citation.Verifier) Option {
	return func(c *Client) { c.verifier = v }
}

// WithCommandContext routes this client's audit records under the given tag
// instead of the default llm_<model> tag.
func WithCommandContext(tag string) Option {
	return func(c *Client) { c.commandContext = tag }
}

// WithCitationEnforcement switches automatic citation verification to strict
// mode: unverified citations become errors instead of removals.
func WithCitationEnforcement(on bool) Option {
	return func(c *Client) { c.enforceCitations = on }
}

// WithRegistry substitutes the prompt registry.
func WithRegistry(r *prompt.Registry) Option {
	return func(c *Client) { c.registry = r }
}

// WithClock substitutes the time source used for date injection and the now
// tool. Intended for tests.
func WithClock(fn func() time.Time) Option {
	return func(c *Client) { c.nowFn = fn }
}

// New builds a gateway client for one model with its default parameters.
func New(settings *config.Settings, model string, defaults map[string]interface{}, opts ...Option) *Client {
	c := &Client{
		settings: settings,
		registry: prompt.Must(),
		model:    model,
		family:   IdentifyFamily(model),
		defaults: make(map[string]interface{}, len(defaults)),
		http:     &http.Client{Timeout: 10 * time.Minute},
		nowFn:    time.Now,
	}
	for k, v := range defaults {
		c.defaults[k] = v
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Model returns the provider-prefixed model identifier.
func (c *Client) Model() string { return c.model }

// Family returns the model-family tag the client dispatches on.
func (c *Client) Family() Family { return c.family }

func (c *Client) citationVerifier() *citation.Verifier {
	if c.verifier == nil {
		c.verifier = citation.NewVerifier(c.settings)
	}
	return c.verifier
}

// completeOptions collects per-call knobs.
type completeOptions struct {
	overrides                map[string]interface{}
	skipCitationVerification bool
	withoutTools             bool
}

// CompleteOption configures one Complete call.
type CompleteOption func(*completeOptions)

// WithOverrides merges per-call parameters over the client defaults.
func WithOverrides(params map[string]interface{}) CompleteOption {
	return func(o *completeOptions) { o.overrides = params }
}

// WithSkipCitationVerification disables post-generation citation checking
// for this call.
func WithSkipCitationVerification() CompleteOption {
	return func(o *completeOptions) { o.skipCitationVerification = true }
}

// WithoutTools disables the now tool for this call; the current Sydney date
// is injected directly instead.
func WithoutTools() CompleteOption {
	return func(o *completeOptions) { o.withoutTools = true }
}

// Complete sends the conversation through OpenRouter and returns the model's
// response content verbatim, with normalized token usage. Unless skipped,
// generated citations are verified afterwards: strict mode errors on
// unverified citations (with one enhanced retry), lenient mode removes them
// and logs warnings.
func (c *Client) Complete(ctx context.Context, messages []Message, opts ...CompleteOption) (string, Usage, error) {
	var o completeOptions
	for _, opt := range opts {
		opt(&o)
	}

	overrides := o.overrides
	if c.settings.General.UseTokenLimits && !hasTokenCap(c.defaults) && !hasTokenCap(overrides) {
		merged := make(map[string]interface{}, len(overrides)+1)
		for k, v := range overrides {
			merged[k] = v
		}
		merged["max_tokens"] = c.settings.General.MaxTokens
		overrides = merged
	}

	params, extra, dropped := FilterParams(c.family, c.model, c.defaults, overrides)
	c.auditDroppedParams(dropped)

	useTools := !o.withoutTools
	prepared := PrepareMessages(c.family, messages, useTools, c.nowFn())
	if err := c.checkPromptBudget(prepared); err != nil {
		return "", Usage{}, err
	}

	stop := startHeartbeat(c.settings.HeartbeatInterval(), c.model)
	defer stop()

	content, usage, err := c.converse(ctx, prepared, params, extra, useTools)
	if err != nil && useTools && isToolRejection(err) {
		logging.GatewayWarn("Tool-enabled request rejected for %s, retrying without tools: %v", c.model, err)
		prepared = PrepareMessages(c.family, messages, false, c.nowFn())
		useTools = false
		content, usage, err = c.converse(ctx, prepared, params, extra, false)
	}
	if err != nil {
		return "", usage, err
	}
	c.auditSuccess(prepared, params, extra, content, usage)

	if o.skipCitationVerification {
		return content, usage, nil
	}

	cleaned, warnings, verr := c.ValidateAndVerifyCitations(ctx, content, c.enforceCitations)
	if verr == nil {
		for _, w := range warnings {
			logging.GatewayWarn("%s", w)
		}
		return cleaned, usage, nil
	}
	cve, ok := asCitationVerificationError(verr)
	if !ok {
		return "", usage, verr
	}

	// One retry with the strict-citation instruction appended, then re-verify.
	logging.GatewayWarn("Strict citation verification failed for %s, retrying with enhanced prompt: %v", c.model, cve)
	retryMessages := appendToLastUser(messages, c.strictCitationInstruction())
	prepared = PrepareMessages(c.family, retryMessages, useTools, c.nowFn())
	content, retryUsage, err := c.converse(ctx, prepared, params, extra, useTools)
	usage = usage.add(retryUsage)
	if err != nil {
		return "", usage, err
	}
	c.auditSuccess(prepared, params, extra, content, usage)

	cleaned, warnings, verr = c.ValidateAndVerifyCitations(ctx, content, true)
	if verr != nil {
		return "", usage, verr
	}
	for _, w := range warnings {
		logging.GatewayWarn("%s", w)
	}
	return cleaned, usage, nil
}

// converse performs one logical completion: the main call plus, when the
// model requests tool calls, their execution and a single follow-up.
func (c *Client) converse(ctx context.Context, messages []Message, params, extra map[string]interface{}, useTools bool) (string, Usage, error) {
	content, usage, toolCalls, err := c.callWithRetry(ctx, messages, params, extra, useTools)
	if err != nil {
		return "", usage, err
	}
	if len(toolCalls) == 0 {
		if useTools && content == "" {
			return "", usage, errEmptyToolResponse
		}
		return content, usage, nil
	}

	followup := make([]Message, 0, len(messages)+1+len(toolCalls))
	followup = append(followup, messages...)
	followup = append(followup, Message{Role: "assistant", Content: content, ToolCalls: toolCalls})
	for _, tc := range toolCalls {
		logging.Gateway("Dispatching tool %s for %s", tc.Function.Name, c.model)
		followup = append(followup, Message{
			Role:       "tool",
			Content:    c.dispatchTool(tc),
			ToolCallID: tc.ID,
		})
	}

	// Single follow-up; any further tool requests are not dispatched.
	content, followUsage, _, err := c.callWithRetry(ctx, followup, params, extra, useTools)
	usage = usage.add(followUsage)
	if err != nil {
		return "", usage, err
	}
	return content, usage, nil
}

// callWithRetry issues the HTTP call up to maxAttempts times with
// exponential backoff. Each retry is preceded by an audit record preserving
// the exact request; a final failure writes llm_final_failure.
func (c *Client) callWithRetry(ctx context.Context, messages []Message, params, extra map[string]interface{}, useTools bool) (string, Usage, []ToolCall, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			c.auditRetry(messages, params, extra, attempt, lastErr)
			if err := c.sleepBackoff(ctx, attempt); err != nil {
				return "", Usage{}, nil, err
			}
		}

		content, usage, toolCalls, err := c.call(ctx, messages, params, extra, useTools)
		if err == nil {
			return content, usage, toolCalls, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return "", Usage{}, nil, err
		}
		logging.GatewayWarn("Attempt %d/%d failed for %s: %v", attempt, maxAttempts, c.model, err)
	}

	c.auditFinalFailure(messages, params, extra, lastErr)
	return "", Usage{}, nil, lastErr
}

func (c *Client) sleepBackoff(ctx context.Context, attempt int) error {
	if c.settings.General.TestEnvironment {
		return nil
	}
	delay := backoffBase << (attempt - 2)
	if delay > backoffMax {
		delay = backoffMax
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

// chatResponse is the OpenRouter chat-completion response shape.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Role      string     `json:"role"`
			Content   string     `json:"content"`
			ToolCalls []ToolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *apiErrorBody `json:"error"`
}

type apiErrorBody struct {
	Code    interface{}            `json:"code"`
	Message string                 `json:"message"`
	Meta    map[string]interface{} `json:"metadata"`
}

// call performs a single chat-completion request.
func (c *Client) call(ctx context.Context, messages []Message, params, extra map[string]interface{}, useTools bool) (string, Usage, []ToolCall, error) {
	body := map[string]interface{}{
		"model":    c.model,
		"messages": messages,
	}
	for k, v := range params {
		body[k] = v
	}
	// OpenRouter reads vendor extensions from the body root.
	for k, v := range extra {
		body[k] = v
	}
	if useTools {
		body["tools"] = []interface{}{nowToolDefinition()}
		body["tool_choice"] = "auto"
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", Usage{}, nil, &NonRetryableAPIError{Message: fmt.Sprintf("failed to encode request: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.settings.OpenRouter.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", Usage{}, nil, &NonRetryableAPIError{Message: fmt.Sprintf("failed to build request: %v", err)}
	}
	req.Header.Set("Authorization", "Bearer "+c.settings.OpenRouter.APIKey)
	req.Header.Set("Content-Type", "application/json")
	if c.settings.OpenRouter.SiteURL != "" {
		req.Header.Set("HTTP-Referer", c.settings.OpenRouter.SiteURL)
	}
	if c.settings.OpenRouter.SiteName != "" {
		req.Header.Set("X-Title", c.settings.OpenRouter.SiteName)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", Usage{}, nil, &RetryableAPIError{Message: fmt.Sprintf("connection error: %v", err)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", Usage{}, nil, &RetryableAPIError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("error reading response: %v", err)}
	}

	if resp.StatusCode == http.StatusRequestEntityTooLarge {
		return "", Usage{}, nil, classifyAPIError(resp.StatusCode, "payload too large")
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		if resp.StatusCode != http.StatusOK {
			return "", Usage{}, nil, classifyAPIError(resp.StatusCode, strings.TrimSpace(string(data)))
		}
		return "", Usage{}, nil, &NonRetryableAPIError{Message: fmt.Sprintf("malformed response: %v", err)}
	}
	if parsed.Error != nil {
		return "", Usage{}, nil, classifyAPIError(resp.StatusCode, parsed.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", Usage{}, nil, classifyAPIError(resp.StatusCode, strings.TrimSpace(string(data)))
	}

	usage := Usage{
		PromptTokens:     parsed.Usage.PromptTokens,
		CompletionTokens: parsed.Usage.CompletionTokens,
		TotalTokens:      parsed.Usage.TotalTokens,
	}
	if len(parsed.Choices) == 0 {
		return "", usage, nil, nil
	}
	choice := parsed.Choices[0]
	if choice.FinishReason == "error" {
		return "", usage, nil, &RetryableAPIError{Message: "model stream ended with finish_reason=error"}
	}
	// Content is preserved verbatim; stripping is the caller's choice.
	return choice.Message.Content, usage, choice.Message.ToolCalls, nil
}

func (c *Client) checkPromptBudget(messages []Message) error {
	if !c.settings.General.UseTokenLimits {
		return nil
	}
	n := CountMessagesTokens(c.model, messages)
	if n > promptTokenCeiling {
		return &NonRetryableAPIError{
			Message: fmt.Sprintf("prompt of ~%d tokens exceeds maximum context length %d", n, promptTokenCeiling),
		}
	}
	return nil
}

func (c *Client) strictCitationInstruction() string {
	text, err := c.registry.Get("verification.citation_retry_instructions")
	if err != nil {
		logging.GatewayWarn("Strict-citation instruction unavailable: %v", err)
		return ""
	}
	return text
}

// appendToLastUser returns a copy of msgs with addition appended to the last
// user message, or as a new user message when none exists.
func appendToLastUser(msgs []Message, addition string) []Message {
	out := make([]Message, len(msgs))
	copy(out, msgs)
	if addition == "" {
		return out
	}
	for i := len(out) - 1; i >= 0; i-- {
		if out[i].Role == "user" {
			out[i].Content = out[i].Content + "\n\n" + addition
			return out
		}
	}
	return append(out, User(addition))
}

func hasTokenCap(params map[string]interface{}) bool {
	if params == nil {
		return false
	}
	_, hasMax := params["max_tokens"]
	_, hasMaxCompletion := params["max_completion_tokens"]
	return hasMax || hasMaxCompletion
}

// =============================================================================
// AUDIT PAYLOADS
// =============================================================================

var modelTagReplacer = strings.NewReplacer("/", "_", ":", "_")

func (c *Client) logTag() string {
	if c.commandContext != "" {
		return c.commandContext
	}
	return "llm_" + modelTagReplacer.Replace(c.model)
}

func messagesPayload(msgs []Message) []interface{} {
	out := make([]interface{}, len(msgs))
	for i, m := range msgs {
		entry := map[string]interface{}{
			"role":    m.Role,
			"content": m.Content,
		}
		if m.ToolCallID != "" {
			entry["tool_call_id"] = m.ToolCallID
		}
		out[i] = entry
	}
	return out
}

func paramsPayload(params, extra map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(params)+len(extra))
	for k, v := range params {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func (c *Client) auditSuccess(messages []Message, params, extra map[string]interface{}, response string, usage Usage) {
	payload := map[string]interface{}{
		"model":    c.model,
		"messages": messagesPayload(messages),
		"params":   paramsPayload(params, extra),
		"response": response,
		"usage": map[string]interface{}{
			"prompt_tokens":     usage.PromptTokens,
			"completion_tokens": usage.CompletionTokens,
			"total_tokens":      usage.TotalTokens,
		},
	}
	if _, err := audit.SaveLog(c.logTag(), payload); err != nil {
		logging.GatewayWarn("Failed to write completion audit record: %v", err)
	}
}

func (c *Client) auditRetry(messages []Message, params, extra map[string]interface{}, attempt int, cause error) {
	payload := map[string]interface{}{
		"model":    c.model,
		"messages": messagesPayload(messages),
		"params":   paramsPayload(params, extra),
		"attempt":  attempt,
		"error":    cause.Error(),
	}
	if _, err := audit.SaveLog("llm_retry", payload); err != nil {
		logging.GatewayWarn("Failed to write retry audit record: %v", err)
	}
}

func (c *Client) auditFinalFailure(messages []Message, params, extra map[string]interface{}, cause error) {
	payload := map[string]interface{}{
		"model":    c.model,
		"messages": messagesPayload(messages),
		"params":   paramsPayload(params, extra),
		"attempt":  maxAttempts,
		"error":    cause.Error(),
	}
	if _, err := audit.SaveLog("llm_final_failure", payload); err != nil {
		logging.GatewayWarn("Failed to write final-failure audit record: %v", err)
	}
}

func (c *Client) auditDroppedParams(dropped []string) {
	if len(dropped) == 0 || !logging.IsDebugMode() {
		return
	}
	names := make([]interface{}, len(dropped))
	for i, d := range dropped {
		names[i] = d
	}
	if _, err := audit.SaveLog("llm_params_dropped", map[string]interface{}{
		"model":   c.model,
		"family":  c.family.String(),
		"dropped": names,
	}); err != nil {
		logging.GatewayWarn("Failed to write dropped-params audit record: %v", err)
	}
}
