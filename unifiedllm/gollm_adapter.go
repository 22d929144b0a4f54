package unifiedllm

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/teilomillet/gollm"
)

const (
	DefaultOpenAIModel = "gpt-4o-mini"
	DefaultTemperature = 0.1
)

// GollmAdapter wraps a gollm.LLM instance and implements ProviderAdapter.
// Tool calls are recovered from the generated text.
type GollmAdapter struct {
	provider string
	model    string

	mu        sync.Mutex // serializes per-request option changes on llm
	generate  func(ctx context.Context, prompt *gollm.Prompt) (string, error)
	setOption func(key string, value any)
}

// GollmAdapterOption configures a GollmAdapter.
type GollmAdapterOption func(*gollmAdapterConfig)

type gollmAdapterConfig struct {
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	extraOpts   []gollm.ConfigOption
}

func WithAPIKey(key string) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.apiKey = key
	}
}

// WithModel sets the default model for the adapter.
func WithModel(model string) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.model = model
	}
}

func WithMaxTokens(n int) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.maxTokens = n
	}
}

func WithTemperature(t float64) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.temperature = t
	}
}

// WithGollmOptions adds extra gollm configuration options.
func WithGollmOptions(opts ...gollm.ConfigOption) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.extraOpts = append(c.extraOpts, opts...)
	}
}

// NewGollmAdapter creates a GollmAdapter for provider. If apiKey is empty,
// gollm reads it from the provider's environment variable.
func NewGollmAdapter(provider string, apiKey string, opts ...GollmAdapterOption) (*GollmAdapter, error) {
	cfg := &gollmAdapterConfig{
		apiKey:      apiKey,
		maxTokens:   4096,
		temperature: DefaultTemperature,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.model == "" {
		cfg.model = DefaultOpenAIModel
	}

	gollmOpts := []gollm.ConfigOption{
		gollm.SetProvider(provider),
		gollm.SetModel(cfg.model),
		gollm.SetMaxTokens(cfg.maxTokens),
		gollm.SetTemperature(cfg.temperature),
		gollm.SetMaxRetries(0), // Retry is applied by the caller.
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if cfg.apiKey != "" {
		gollmOpts = append(gollmOpts, gollm.SetAPIKey(cfg.apiKey))
	}
	gollmOpts = append(gollmOpts, cfg.extraOpts...)

	llm, err := gollm.NewLLM(gollmOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gollm LLM for provider %s: %w", provider, err)
	}
	return NewGollmAdapterFromLLM(provider, cfg.model, llm), nil
}

// NewGollmAdapterFromLLM wraps an existing gollm.LLM instance.
func NewGollmAdapterFromLLM(provider, model string, llm gollm.LLM) *GollmAdapter {
	return &GollmAdapter{
		provider: provider,
		model:    model,
		generate: func(ctx context.Context, prompt *gollm.Prompt) (string, error) {
			return llm.Generate(ctx, prompt)
		},
		setOption: func(key string, value any) {
			llm.SetOption(key, value)
		},
	}
}

func (a *GollmAdapter) Name() string {
	return a.provider
}

// DefaultModel reports the model the adapter was configured with.
func (a *GollmAdapter) DefaultModel() string {
	return a.model
}

// Complete sends a blocking request and returns the full response.
func (a *GollmAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	prompt := a.translateRequest(req)

	a.mu.Lock()
	a.applyRequestOptions(req)
	text, err := a.generate(ctx, prompt)
	a.mu.Unlock()
	if err != nil {
		return nil, a.translateError(err)
	}
	return a.buildResponse(req, text), nil
}

// renderConversation flattens the message history into a system prompt and
// a transcript, since gollm takes a single prompt per call.
func renderConversation(messages []Message) (system string, transcript string) {
	var sys []string
	var parts []string
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			sys = append(sys, msg.TextContent())
		case RoleUser:
			parts = append(parts, msg.TextContent())
		case RoleAssistant:
			if text := msg.TextContent(); text != "" {
				parts = append(parts, "[Assistant]: "+text)
			}
			for _, call := range msg.ToolCalls() {
				parts = append(parts, fmt.Sprintf("[Tool Call %s]: %s %s", call.ID, call.Name, string(call.Arguments)))
			}
		case RoleTool:
			for _, part := range msg.Content {
				if part.Kind != ContentToolResult || part.ToolResult == nil {
					continue
				}
				prefix := "[Tool Result " + part.ToolResult.ToolCallID + "]"
				if part.ToolResult.IsError {
					prefix = "[Tool Error " + part.ToolResult.ToolCallID + "]"
				}
				parts = append(parts, prefix+": "+part.ToolResult.Content)
			}
		}
	}
	return strings.TrimSpace(strings.Join(sys, "\n")), strings.Join(parts, "\n")
}

func (a *GollmAdapter) translateRequest(req Request) *gollm.Prompt {
	system, transcript := renderConversation(req.Messages)
	if transcript == "" {
		transcript = "Hello"
	}

	var promptOpts []gollm.PromptOption
	if system != "" {
		promptOpts = append(promptOpts, gollm.WithSystemPrompt(system, gollm.CacheTypeEphemeral))
	}
	if req.MaxTokens != nil {
		promptOpts = append(promptOpts, gollm.WithMaxLength(*req.MaxTokens))
	}
	if len(req.Tools) > 0 {
		tools := make([]gollm.Tool, 0, len(req.Tools))
		for _, t := range req.Tools {
			tools = append(tools, gollm.Tool{
				Type: "function",
				Function: gollm.Function{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.Parameters,
				},
			})
		}
		promptOpts = append(promptOpts, gollm.WithTools(tools))
	}
	if req.ToolChoice != nil {
		promptOpts = append(promptOpts, gollm.WithToolChoice(req.ToolChoice.Mode))
	}
	return gollm.NewPrompt(transcript, promptOpts...)
}

// applyRequestOptions applies request-level parameters to the gollm LLM.
// The caller holds a.mu.
func (a *GollmAdapter) applyRequestOptions(req Request) {
	if a.setOption == nil {
		return
	}
	if req.Model != "" {
		a.setOption("model", req.Model)
	}
	if req.Temperature != nil {
		a.setOption("temperature", *req.Temperature)
	}
	if req.MaxTokens != nil {
		a.setOption("max_tokens", *req.MaxTokens)
	}
}

func (a *GollmAdapter) buildResponse(req Request, text string) *Response {
	model := req.Model
	if model == "" {
		model = a.model
	}

	toolCalls, remaining := parseToolCalls(text)
	var contentParts []ContentPart
	if remaining != "" {
		contentParts = append(contentParts, TextPart(remaining))
	}
	for _, tc := range toolCalls {
		contentParts = append(contentParts, ToolCallPart(tc.ID, tc.Name, tc.Arguments))
	}
	if len(contentParts) == 0 {
		contentParts = []ContentPart{TextPart(text)}
	}

	finishReason := FinishReason{Reason: "stop", Raw: "stop"}
	if len(toolCalls) > 0 {
		finishReason = FinishReason{Reason: "tool_calls", Raw: "tool_calls"}
	}

	// gollm does not expose usage; estimate from text length.
	input, output := estimateTokens(req), len(text)/4
	return &Response{
		ID:       "resp_" + uuid.New().String()[:8],
		Model:    model,
		Provider: a.provider,
		Message: Message{
			Role:    RoleAssistant,
			Content: contentParts,
		},
		FinishReason: finishReason,
		Usage: Usage{
			InputTokens:  input,
			OutputTokens: output,
			TotalTokens:  input + output,
		},
	}
}

var functionCallTag = regexp.MustCompile(`(?s)<function_call>\s*(.*?)\s*</function_call>`)

type rawToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
	Function  *struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

// parseToolCalls extracts tool calls from generated text and returns the
// text with the tool call markup removed. Recognized shapes:
//
//	<function_call>{"name": "...", "arguments": {...}}</function_call>
//	{"tool_calls": [{"name": "...", "arguments": {...}}]}
//	[{"name": "...", "arguments": {...}}]
//
// OpenAI-style entries nesting name and arguments under "function" are
// accepted, as are arguments encoded as a JSON string.
func parseToolCalls(text string) ([]ToolCallData, string) {
	if matches := functionCallTag.FindAllStringSubmatchIndex(text, -1); len(matches) > 0 {
		var calls []ToolCallData
		for _, m := range matches {
			var rc rawToolCall
			if err := json.Unmarshal([]byte(text[m[2]:m[3]]), &rc); err == nil {
				if call, ok := normalizeToolCall(rc); ok {
					calls = append(calls, call)
				}
			}
		}
		if len(calls) > 0 {
			return calls, strings.TrimSpace(functionCallTag.ReplaceAllString(text, ""))
		}
	}

	for _, marker := range []string{`{"tool_calls"`, `[{"name"`, `[{"id"`} {
		start := strings.Index(text, marker)
		if start == -1 {
			continue
		}
		raw, ok := decodeToolCallJSON(text[start:])
		if !ok {
			continue
		}
		var calls []ToolCallData
		for _, rc := range raw {
			if call, ok := normalizeToolCall(rc); ok {
				calls = append(calls, call)
			}
		}
		if len(calls) > 0 {
			return calls, strings.TrimSpace(text[:start])
		}
	}
	return nil, text
}

func decodeToolCallJSON(s string) ([]rawToolCall, bool) {
	dec := json.NewDecoder(strings.NewReader(s))
	if strings.HasPrefix(s, "[") {
		var calls []rawToolCall
		if err := dec.Decode(&calls); err != nil {
			return nil, false
		}
		return calls, true
	}
	var wrapper struct {
		ToolCalls []rawToolCall `json:"tool_calls"`
	}
	if err := dec.Decode(&wrapper); err != nil {
		return nil, false
	}
	return wrapper.ToolCalls, true
}

func normalizeToolCall(rc rawToolCall) (ToolCallData, bool) {
	name, args := rc.Name, rc.Arguments
	if rc.Function != nil {
		name, args = rc.Function.Name, rc.Function.Arguments
	}
	if name == "" {
		return ToolCallData{}, false
	}
	var encoded string
	if err := json.Unmarshal(args, &encoded); err == nil {
		args = json.RawMessage(encoded)
	}
	if len(args) == 0 || !json.Valid(args) {
		args = json.RawMessage("{}")
	}
	id := rc.ID
	if id == "" {
		id = "call_" + uuid.New().String()[:8]
	}
	return ToolCallData{ID: id, Name: name, Arguments: args}, true
}

// translateError converts a gollm error into the unified error hierarchy.
func (a *GollmAdapter) translateError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	pe := func(status int, retryable bool) ProviderError {
		return ProviderError{
			SDKError:   SDKError{Message: msg, Cause: err},
			Provider:   a.provider,
			StatusCode: status,
			Retryable:  retryable,
		}
	}

	msgLower := strings.ToLower(msg)
	switch {
	case strings.Contains(msgLower, "401") || strings.Contains(msgLower, "unauthorized") || strings.Contains(msgLower, "invalid api key"):
		return &AuthenticationError{ProviderError: pe(401, false)}
	case strings.Contains(msgLower, "403") || strings.Contains(msgLower, "forbidden"):
		return &AccessDeniedError{ProviderError: pe(403, false)}
	case strings.Contains(msgLower, "404") || strings.Contains(msgLower, "not found"):
		return &NotFoundError{ProviderError: pe(404, false)}
	case strings.Contains(msgLower, "insufficient_quota") || strings.Contains(msgLower, "quota"):
		return &QuotaExceededError{ProviderError: pe(429, false)}
	case strings.Contains(msgLower, "429") || strings.Contains(msgLower, "rate limit"):
		return &RateLimitError{ProviderError: pe(429, true)}
	case strings.Contains(msgLower, "context length") || strings.Contains(msgLower, "too many tokens"):
		return &ContextLengthError{ProviderError: pe(413, false)}
	case strings.Contains(msgLower, "500") || strings.Contains(msgLower, "502") || strings.Contains(msgLower, "503") || strings.Contains(msgLower, "internal server"):
		return &ServerError{ProviderError: pe(500, true)}
	case strings.Contains(msgLower, "timeout") || strings.Contains(msgLower, "deadline exceeded"):
		return &RequestTimeoutError{SDKError: SDKError{Message: msg, Cause: err}}
	case strings.Contains(msgLower, "connection refused") || strings.Contains(msgLower, "no such host"):
		return &NetworkError{SDKError: SDKError{Message: msg, Cause: err}}
	case strings.Contains(msgLower, "content filter") || strings.Contains(msgLower, "safety"):
		return &ContentFilterError{ProviderError: pe(0, false)}
	default:
		return &ProviderError{
			SDKError:  SDKError{Message: msg, Cause: err},
			Provider:  a.provider,
			Retryable: true,
		}
	}
}

// estimateTokens provides a rough token count estimate from request messages.
func estimateTokens(req Request) int {
	total := 0
	for _, msg := range req.Messages {
		for _, part := range msg.Content {
			switch part.Kind {
			case ContentText:
				total += len(part.Text) / 4
			case ContentToolResult:
				if part.ToolResult != nil {
					total += len(part.ToolResult.Content) / 4
				}
			}
		}
	}
	if total == 0 {
		total = 10
	}
	return total
}
