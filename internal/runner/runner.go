package runner

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"
	"unicode"

	"comunicacion/chat-gateway/internal/domain"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"

	FinishReasonStop      = "stop"
	FinishReasonToolCalls = "tool_calls"

	ErrorCodeProviderNotConfigured = "provider_not_configured"
	ErrorCodeProviderRequestFailed = "provider_request_failed"
	ErrorCodeProviderInvalidReply  = "provider_invalid_reply"
)

type RunnerError struct {
	Code    string
	Message string
	Err     error
}

func (e *RunnerError) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Code
}

func (e *RunnerError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

type InvalidToolCallError struct {
	Index        int
	CallID       string
	Name         string
	ArgumentsRaw string
	Err          error
}

func (e *InvalidToolCallError) Error() string {
	if e == nil {
		return ""
	}
	name := strings.TrimSpace(e.Name)
	detail := "invalid arguments"
	if e.Err != nil {
		detail = e.Err.Error()
	}
	if name != "" {
		return fmt.Sprintf("provider tool call %q has invalid arguments: %s", name, detail)
	}
	return fmt.Sprintf("provider tool call[%d] has invalid arguments: %s", e.Index, detail)
}

func (e *InvalidToolCallError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

type GenerateConfig struct {
	Model     string
	APIKey    string
	BaseURL   string
	Headers   map[string]string
	TimeoutMS int
}

type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]interface{}
}

// TurnResult is one completed model step. FinishReason is normalized: it is
// FinishReasonToolCalls exactly when the step requests tool execution.
type TurnResult struct {
	Text         string
	ToolCalls    []ToolCall
	FinishReason string
	ResponseID   string
}

type Runner struct {
	httpClient *http.Client
}

func New() *Runner {
	return NewWithHTTPClient(&http.Client{})
}

func NewWithHTTPClient(client *http.Client) *Runner {
	if client == nil {
		client = &http.Client{}
	}
	return &Runner{httpClient: client}
}

func (r *Runner) GenerateTurn(ctx context.Context, messages []domain.ModelMessage, cfg GenerateConfig, tools []ToolDefinition) (TurnResult, error) {
	payload, err := r.buildRequest(messages, cfg, tools, false)
	if err != nil {
		return TurnResult{}, err
	}

	resp, cancel, err := r.postCompletion(ctx, cfg, payload, false)
	if err != nil {
		return TurnResult{}, err
	}
	defer cancel()
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 2*1024*1024))
	if err != nil {
		return TurnResult{}, &RunnerError{
			Code:    ErrorCodeProviderRequestFailed,
			Message: "failed to read provider response",
			Err:     err,
		}
	}

	var completion openAIChatResponse
	if err := json.Unmarshal(respBody, &completion); err != nil {
		return TurnResult{}, &RunnerError{
			Code:    ErrorCodeProviderInvalidReply,
			Message: "provider response is not valid json",
			Err:     err,
		}
	}
	if len(completion.Choices) == 0 {
		return TurnResult{}, &RunnerError{
			Code:    ErrorCodeProviderInvalidReply,
			Message: "provider response has no choices",
		}
	}

	choice := completion.Choices[0]
	text := strings.TrimSpace(extractOpenAIContent(choice.Message.Content))
	toolCalls, err := parseOpenAIToolCalls(choice.Message.ToolCalls)
	if err != nil {
		return TurnResult{}, &RunnerError{
			Code:    ErrorCodeProviderInvalidReply,
			Message: err.Error(),
			Err:     err,
		}
	}
	if text == "" && len(toolCalls) == 0 {
		return TurnResult{}, &RunnerError{
			Code:    ErrorCodeProviderInvalidReply,
			Message: "provider response has empty content",
		}
	}

	return TurnResult{
		Text:         text,
		ToolCalls:    toolCalls,
		FinishReason: normalizeFinishReason(choice.FinishReason, len(toolCalls)),
		ResponseID:   strings.TrimSpace(completion.ID),
	}, nil
}

func (r *Runner) GenerateTurnStream(
	ctx context.Context,
	messages []domain.ModelMessage,
	cfg GenerateConfig,
	tools []ToolDefinition,
	onDelta func(string),
) (TurnResult, error) {
	payload, err := r.buildRequest(messages, cfg, tools, true)
	if err != nil {
		return TurnResult{}, err
	}

	resp, cancel, err := r.postCompletion(ctx, cfg, payload, true)
	if err != nil {
		return TurnResult{}, err
	}
	defer cancel()
	defer resp.Body.Close()

	var replyBuilder strings.Builder
	toolCalls := map[int]*openAIToolCall{}
	finishReason := ""
	responseID := ""
	processData := func(data string) error {
		if isSSEControlToken(data) {
			return nil
		}
		var chunk openAIChatStreamResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return fmt.Errorf("provider stream chunk is not valid json: %w; payload=%q", err, truncateText(data, 512))
		}
		if id := strings.TrimSpace(chunk.ID); id != "" {
			responseID = id
		}
		for _, choice := range chunk.Choices {
			if reason := strings.TrimSpace(choice.FinishReason); reason != "" {
				finishReason = reason
			}
			delta := extractOpenAIDeltaContent(choice.Delta.Content)
			if delta != "" {
				replyBuilder.WriteString(delta)
				if onDelta != nil {
					onDelta(delta)
				}
			}
			for _, tc := range choice.Delta.ToolCalls {
				idx := tc.Index
				if idx < 0 {
					idx = 0
				}
				current, ok := toolCalls[idx]
				if !ok {
					current = &openAIToolCall{}
					toolCalls[idx] = current
				}
				if strings.TrimSpace(tc.ID) != "" {
					current.ID = strings.TrimSpace(tc.ID)
				}
				if strings.TrimSpace(tc.Type) != "" {
					current.Type = strings.TrimSpace(tc.Type)
				}
				if strings.TrimSpace(tc.Function.Name) != "" {
					current.Function.Name = strings.TrimSpace(tc.Function.Name)
				}
				if tc.Function.Arguments != "" {
					current.Function.Arguments += tc.Function.Arguments
				}
			}
		}
		return nil
	}

	if err := consumeSSEData(resp.Body, processData); err != nil {
		return TurnResult{}, mapStreamConsumeError(err)
	}

	orderedIndexes := make([]int, 0, len(toolCalls))
	for idx := range toolCalls {
		orderedIndexes = append(orderedIndexes, idx)
	}
	sort.Ints(orderedIndexes)
	aggregated := make([]openAIToolCall, 0, len(orderedIndexes))
	for _, idx := range orderedIndexes {
		if tc := toolCalls[idx]; tc != nil {
			aggregated = append(aggregated, *tc)
		}
	}

	parsedToolCalls, err := parseOpenAIToolCalls(aggregated)
	if err != nil {
		return TurnResult{}, &RunnerError{
			Code:    ErrorCodeProviderInvalidReply,
			Message: err.Error(),
			Err:     err,
		}
	}

	reply := replyBuilder.String()
	if strings.TrimSpace(reply) == "" && len(parsedToolCalls) == 0 {
		return TurnResult{}, &RunnerError{
			Code:    ErrorCodeProviderInvalidReply,
			Message: "provider response has empty content",
		}
	}

	return TurnResult{
		Text:         reply,
		ToolCalls:    parsedToolCalls,
		FinishReason: normalizeFinishReason(finishReason, len(parsedToolCalls)),
		ResponseID:   responseID,
	}, nil
}

func (r *Runner) buildRequest(messages []domain.ModelMessage, cfg GenerateConfig, tools []ToolDefinition, stream bool) ([]byte, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, &RunnerError{Code: ErrorCodeProviderNotConfigured, Message: "provider api_key is required"}
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, &RunnerError{Code: ErrorCodeProviderNotConfigured, Message: "model is required"}
	}
	payload := openAIChatRequest{
		Model:    cfg.Model,
		Messages: toOpenAIMessages(messages),
		Tools:    toOpenAITools(tools),
		Stream:   stream,
	}
	if len(payload.Messages) == 0 {
		return nil, &RunnerError{Code: ErrorCodeProviderRequestFailed, Message: "no messages to send"}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &RunnerError{
			Code:    ErrorCodeProviderRequestFailed,
			Message: "failed to encode provider request",
			Err:     err,
		}
	}
	return body, nil
}

func (r *Runner) postCompletion(ctx context.Context, cfg GenerateConfig, body []byte, stream bool) (*http.Response, context.CancelFunc, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}

	requestCtx := ctx
	cancel := context.CancelFunc(func() {})
	if cfg.TimeoutMS > 0 {
		requestCtx, cancel = context.WithTimeout(ctx, time.Duration(cfg.TimeoutMS)*time.Millisecond)
	}

	httpReq, err := http.NewRequestWithContext(requestCtx, http.MethodPost, baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, nil, &RunnerError{
			Code:    ErrorCodeProviderRequestFailed,
			Message: "failed to create provider request",
			Err:     err,
		}
	}
	httpReq.Header.Set("Authorization", "Bearer "+strings.TrimSpace(cfg.APIKey))
	httpReq.Header.Set("Content-Type", "application/json")
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	for key, value := range cfg.Headers {
		k := strings.TrimSpace(key)
		v := strings.TrimSpace(value)
		if k == "" || v == "" {
			continue
		}
		httpReq.Header.Set(k, v)
	}

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		cancel()
		return nil, nil, &RunnerError{
			Code:    ErrorCodeProviderRequestFailed,
			Message: "provider request failed",
			Err:     err,
		}
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2*1024*1024))
		resp.Body.Close()
		cancel()
		return nil, nil, &RunnerError{
			Code:    ErrorCodeProviderRequestFailed,
			Message: fmt.Sprintf("provider returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody))),
		}
	}
	return resp, cancel, nil
}

func normalizeFinishReason(raw string, toolCallCount int) string {
	reason := strings.ToLower(strings.TrimSpace(raw))
	if toolCallCount > 0 {
		return FinishReasonToolCalls
	}
	if reason == "" {
		return FinishReasonStop
	}
	return reason
}

type openAIChatRequest struct {
	Model    string                 `json:"model"`
	Messages []openAIMessage        `json:"messages"`
	Tools    []openAIToolDefinition `json:"tools,omitempty"`
	Stream   bool                   `json:"stream,omitempty"`
}

type openAIMessage struct {
	Role       string           `json:"role"`
	Content    interface{}      `json:"content,omitempty"`
	ToolCalls  []openAIToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	Name       string           `json:"name,omitempty"`
}

type openAIToolDefinition struct {
	Type     string             `json:"type"`
	Function openAIToolFunction `json:"function"`
}

type openAIToolFunction struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters"`
}

type openAIToolCall struct {
	ID       string             `json:"id,omitempty"`
	Type     string             `json:"type,omitempty"`
	Function openAIFunctionCall `json:"function"`
}

type openAIFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments,omitempty"`
}

type openAIChatResponse struct {
	ID      string `json:"id,omitempty"`
	Choices []struct {
		FinishReason string `json:"finish_reason,omitempty"`
		Message      struct {
			Content   json.RawMessage  `json:"content"`
			ToolCalls []openAIToolCall `json:"tool_calls,omitempty"`
		} `json:"message"`
	} `json:"choices"`
}

type openAIChatStreamResponse struct {
	ID      string `json:"id,omitempty"`
	Choices []struct {
		FinishReason string `json:"finish_reason,omitempty"`
		Delta        struct {
			Content   json.RawMessage        `json:"content"`
			ToolCalls []openAIStreamToolCall `json:"tool_calls,omitempty"`
		} `json:"delta"`
	} `json:"choices"`
}

type openAIStreamToolCall struct {
	Index    int                `json:"index"`
	ID       string             `json:"id,omitempty"`
	Type     string             `json:"type,omitempty"`
	Function openAIFunctionCall `json:"function"`
}

func toOpenAIMessages(messages []domain.ModelMessage) []openAIMessage {
	out := make([]openAIMessage, 0, len(messages))
	for _, msg := range messages {
		role := normalizeRole(msg.Role)
		content := strings.TrimSpace(msg.Content)

		switch role {
		case "assistant":
			item := openAIMessage{Role: role}
			if content != "" {
				item.Content = content
			}
			for _, call := range msg.ToolCalls {
				name := strings.TrimSpace(call.Name)
				callID := strings.TrimSpace(call.ID)
				if name == "" || callID == "" {
					continue
				}
				arguments := strings.TrimSpace(call.Arguments)
				if arguments == "" {
					arguments = "{}"
				}
				item.ToolCalls = append(item.ToolCalls, openAIToolCall{
					ID:       callID,
					Type:     "function",
					Function: openAIFunctionCall{Name: name, Arguments: arguments},
				})
			}
			if item.Content == nil && len(item.ToolCalls) == 0 {
				continue
			}
			out = append(out, item)
		case "tool":
			if strings.TrimSpace(msg.ToolCallID) == "" {
				continue
			}
			out = append(out, openAIMessage{
				Role:       role,
				Content:    msg.Content,
				ToolCallID: strings.TrimSpace(msg.ToolCallID),
				Name:       strings.TrimSpace(msg.ToolName),
			})
		default:
			if content == "" {
				continue
			}
			out = append(out, openAIMessage{Role: role, Content: content})
		}
	}
	return out
}

func toOpenAITools(tools []ToolDefinition) []openAIToolDefinition {
	if len(tools) == 0 {
		return nil
	}
	out := make([]openAIToolDefinition, 0, len(tools))
	for _, item := range tools {
		name := strings.TrimSpace(item.Name)
		if name == "" {
			continue
		}
		out = append(out, openAIToolDefinition{
			Type: "function",
			Function: openAIToolFunction{
				Name:        name,
				Description: strings.TrimSpace(item.Description),
				Parameters:  normalizeToolParameters(item.Parameters),
			},
		})
	}
	return out
}

func parseOpenAIToolCalls(in []openAIToolCall) ([]ToolCall, error) {
	if len(in) == 0 {
		return nil, nil
	}
	calls := make([]ToolCall, 0, len(in))
	for i, item := range in {
		name := strings.TrimSpace(item.Function.Name)
		if name == "" {
			return nil, fmt.Errorf("provider tool call[%d] name is empty", i)
		}
		callID := strings.TrimSpace(item.ID)
		if callID == "" {
			callID = fmt.Sprintf("call_%d", i+1)
		}
		argumentsRaw := strings.TrimSpace(item.Function.Arguments)
		if argumentsRaw == "" {
			argumentsRaw = "{}"
		}
		var arguments map[string]interface{}
		if err := json.Unmarshal([]byte(argumentsRaw), &arguments); err != nil {
			return nil, &InvalidToolCallError{
				Index:        i,
				CallID:       callID,
				Name:         name,
				ArgumentsRaw: argumentsRaw,
				Err:          err,
			}
		}
		if arguments == nil {
			arguments = map[string]interface{}{}
		}
		calls = append(calls, ToolCall{ID: callID, Name: name, Arguments: arguments})
	}
	return calls, nil
}

func normalizeToolParameters(in map[string]interface{}) map[string]interface{} {
	if len(in) == 0 {
		return map[string]interface{}{
			"type":                 "object",
			"additionalProperties": false,
		}
	}
	buf, err := json.Marshal(in)
	if err != nil {
		return map[string]interface{}{
			"type":                 "object",
			"additionalProperties": false,
		}
	}
	var out map[string]interface{}
	if err := json.Unmarshal(buf, &out); err != nil {
		return map[string]interface{}{
			"type":                 "object",
			"additionalProperties": false,
		}
	}
	if _, ok := out["type"]; !ok {
		out["type"] = "object"
	}
	return out
}

func normalizeRole(role string) string {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "system", "assistant", "user", "tool":
		return strings.ToLower(strings.TrimSpace(role))
	default:
		return "user"
	}
}

func extractOpenAIContent(raw json.RawMessage) string {
	var direct string
	if err := json.Unmarshal(raw, &direct); err == nil {
		return direct
	}
	var arr []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &arr); err == nil {
		parts := make([]string, 0, len(arr))
		for _, item := range arr {
			if item.Type != "text" {
				continue
			}
			text := strings.TrimSpace(item.Text)
			if text != "" {
				parts = append(parts, text)
			}
		}
		return strings.Join(parts, "\n")
	}
	return ""
}

func extractOpenAIDeltaContent(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var direct string
	if err := json.Unmarshal(raw, &direct); err == nil {
		return direct
	}
	var arr []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &arr); err == nil {
		var out strings.Builder
		for _, item := range arr {
			if item.Type != "text" || item.Text == "" {
				continue
			}
			out.WriteString(item.Text)
		}
		return out.String()
	}
	return ""
}

func consumeSSEData(reader io.Reader, onData func(string) error) error {
	if reader == nil {
		return fmt.Errorf("stream reader is nil")
	}
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)
	dataLines := make([]string, 0, 4)
	flushBlock := func() error {
		if len(dataLines) == 0 {
			return nil
		}
		payload := strings.TrimSpace(strings.Join(dataLines, "\n"))
		dataLines = dataLines[:0]
		if payload == "" {
			return nil
		}
		if onData == nil {
			return nil
		}
		return onData(payload)
	}

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			if err := flushBlock(); err != nil {
				return err
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		dataLines = append(dataLines, payload)
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return flushBlock()
}

func isSSEControlToken(data string) bool {
	token := strings.TrimSpace(data)
	if token == "" {
		return true
	}
	if strings.EqualFold(token, "[DONE]") {
		return true
	}
	if len(token) < 2 || token[0] != '[' || token[len(token)-1] != ']' {
		return false
	}
	inner := strings.TrimSpace(token[1 : len(token)-1])
	if inner == "" {
		return true
	}
	for _, r := range inner {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) || r == '_' || r == '-' || r == '.' {
			continue
		}
		return false
	}
	return true
}

func truncateText(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "...(truncated)"
}

func mapStreamConsumeError(err error) *RunnerError {
	if isStreamReadTimeout(err) {
		return &RunnerError{
			Code:    ErrorCodeProviderRequestFailed,
			Message: "provider stream request failed",
			Err:     err,
		}
	}
	return &RunnerError{
		Code:    ErrorCodeProviderInvalidReply,
		Message: "provider stream response is invalid",
		Err:     err,
	}
}

func isStreamReadTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(msg, "client.timeout")
}
