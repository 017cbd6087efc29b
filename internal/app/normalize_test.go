package app

import (
	"encoding/json"
	"reflect"
	"testing"

	"comunicacion/chat-gateway/internal/domain"
)

func rawList(items ...string) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(items))
	for _, item := range items {
		out = append(out, json.RawMessage(item))
	}
	return out
}

func TestNormalizeUIMessagesLegacyContent(t *testing.T) {
	t.Parallel()

	msgs := NormalizeUIMessages(rawList(`{"id":"m1","role":"user","content":"hola"}`))
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	want := domain.UIMessage{Role: "user", Parts: []domain.UIMessagePart{{Type: "text", Text: "hola"}}}
	if !reflect.DeepEqual(msgs[0], want) {
		t.Fatalf("unexpected message: %+v", msgs[0])
	}
}

func TestNormalizeUIMessagesLegacyText(t *testing.T) {
	t.Parallel()

	msgs := NormalizeUIMessages(rawList(`{"role":"user","text":"buenas"}`))
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Parts[0].Text != "buenas" {
		t.Fatalf("unexpected text: %q", msgs[0].Parts[0].Text)
	}
}

func TestNormalizeUIMessagesPartsPassThrough(t *testing.T) {
	t.Parallel()

	msgs := NormalizeUIMessages(rawList(`{"role":"assistant","parts":[{"type":"text","text":"a"},{"type":"step-start"}],"content":"ignored"}`))
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if len(msgs[0].Parts) != 2 {
		t.Fatalf("expected parts to pass through, got %+v", msgs[0].Parts)
	}
	if msgs[0].Parts[0].Text != "a" || msgs[0].Parts[1].Type != "step-start" {
		t.Fatalf("unexpected parts: %+v", msgs[0].Parts)
	}
}

func TestNormalizeUIMessagesDropsNonObjects(t *testing.T) {
	t.Parallel()

	msgs := NormalizeUIMessages(rawList(`"just a string"`, `42`, `null`, `[1,2]`, `{"role":"user","content":"ok"}`))
	if len(msgs) != 1 {
		t.Fatalf("expected 1 surviving message, got %d", len(msgs))
	}
	if msgs[0].Parts[0].Text != "ok" {
		t.Fatalf("unexpected survivor: %+v", msgs[0])
	}
}

func TestNormalizeUIMessagesEmptyParts(t *testing.T) {
	t.Parallel()

	msgs := NormalizeUIMessages(rawList(`{"role":"user"}`))
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Parts == nil || len(msgs[0].Parts) != 0 {
		t.Fatalf("expected empty parts, got %+v", msgs[0].Parts)
	}
}

func TestToModelMessagesJoinsTextParts(t *testing.T) {
	t.Parallel()

	msgs, err := ToModelMessages([]domain.UIMessage{
		{Role: "user", Parts: []domain.UIMessagePart{
			{Type: "text", Text: "línea uno"},
			{Type: "step-start"},
			{Type: "text", Text: "línea dos"},
		}},
		{Role: "assistant", Parts: []domain.UIMessagePart{{Type: "text", Text: "respuesta"}}},
		{Role: "user", Parts: []domain.UIMessagePart{}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected empty-part turn dropped, got %d messages", len(msgs))
	}
	if msgs[0].Content != "línea uno\nlínea dos" {
		t.Fatalf("unexpected content: %q", msgs[0].Content)
	}
	if msgs[1].Role != "assistant" {
		t.Fatalf("unexpected role: %q", msgs[1].Role)
	}
}

func TestToModelMessagesSkipsReplayedToolParts(t *testing.T) {
	t.Parallel()

	msgs, err := ToModelMessages([]domain.UIMessage{
		{Role: "user", Parts: []domain.UIMessagePart{{Type: "text", Text: "¿mis tareas pendientes?"}}},
		{Role: "assistant", Parts: []domain.UIMessagePart{
			{Type: "step-start"},
			{Type: "tool-get_my_tasks", ToolCallID: "call_1", State: "output-available", Input: json.RawMessage(`{"status":"pendiente"}`), Output: json.RawMessage(`[]`)},
			{Type: "text", Text: "Tenés una tarea pendiente."},
		}},
		{Role: "assistant", Parts: []domain.UIMessagePart{{Type: "dynamic-tool", ToolCallID: "call_2"}}},
		{Role: "user", Parts: []domain.UIMessagePart{{Type: "text", Text: "¿y las terminadas?"}}},
	})
	if err != nil {
		t.Fatalf("tool-part history must convert: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected tool-only turn dropped, got %d messages", len(msgs))
	}
	if msgs[1].Role != "assistant" || msgs[1].Content != "Tenés una tarea pendiente." {
		t.Fatalf("unexpected assistant turn: %+v", msgs[1])
	}
	if msgs[2].Content != "¿y las terminadas?" {
		t.Fatalf("unexpected follow-up turn: %+v", msgs[2])
	}
}

func TestToModelMessagesRejectsUnknownPartType(t *testing.T) {
	t.Parallel()

	_, err := ToModelMessages([]domain.UIMessage{
		{Role: "user", Parts: []domain.UIMessagePart{{Type: "file"}}},
	})
	if err == nil {
		t.Fatalf("expected error for unsupported part type")
	}
}
