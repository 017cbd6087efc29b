package domain

import (
	"encoding/json"
	"time"
)

type APIErrorBody struct {
	Error APIError `json:"error"`
}

type APIError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// Identity is the authenticated caller as reported by the auth service.
// It is distinct from a Member: the only linkage between the two is an
// exact email match.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type ChatRequest struct {
	Messages []json.RawMessage `json:"messages"`
}

// UIMessagePart is one typed content fragment inside a UI message. Chat
// widgets replay tool exchanges as "tool-<name>" parts in assistant turns,
// so the tool fields are kept alongside the text ones.
type UIMessagePart struct {
	Type       string          `json:"type"`
	Text       string          `json:"text,omitempty"`
	ToolCallID string          `json:"toolCallId,omitempty"`
	State      string          `json:"state,omitempty"`
	Input      json.RawMessage `json:"input,omitempty"`
	Output     json.RawMessage `json:"output,omitempty"`
}

// UIMessage is the canonical shape of one conversation turn after
// normalization: role plus a parts list, never a bare content string.
type UIMessage struct {
	Role  string          `json:"role"`
	Parts []UIMessagePart `json:"parts"`
}

// AssistantToolCall records a tool invocation issued by the model inside an
// assistant turn, with its arguments kept as raw JSON.
type AssistantToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ModelMessage is one provider-ready conversation turn.
type ModelMessage struct {
	Role       string              `json:"role"`
	Content    string              `json:"content,omitempty"`
	ToolCalls  []AssistantToolCall `json:"tool_calls,omitempty"`
	ToolCallID string              `json:"tool_call_id,omitempty"`
	ToolName   string              `json:"tool_name,omitempty"`
}

type Member struct {
	ID       string `json:"id"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
}

type Project struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description *string   `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// TaskRow is a task record as fetched from the store, including the
// join-fetched project title and assignee display names. AssigneeNames is
// raw join output; callers derive the public assigned_to field from it.
type TaskRow struct {
	ID            string
	Title         string
	Status        string
	ProjectID     string
	Notes         *string
	CreatedAt     time.Time
	ProjectTitle  *string
	AssigneeNames []string
}

// StreamPart is one event of the UI message stream protocol consumed by the
// dashboard chat widget. Unused fields stay empty per part type.
type StreamPart struct {
	Type       string          `json:"type"`
	MessageID  string          `json:"messageId,omitempty"`
	ID         string          `json:"id,omitempty"`
	Delta      string          `json:"delta,omitempty"`
	ToolCallID string          `json:"toolCallId,omitempty"`
	ToolName   string          `json:"toolName,omitempty"`
	Input      json.RawMessage `json:"input,omitempty"`
	Output     json.RawMessage `json:"output,omitempty"`
	ErrorText  string          `json:"errorText,omitempty"`
}
