package app

import (
	"encoding/json"
	"fmt"
	"strings"

	"comunicacion/chat-gateway/internal/domain"
)

// NormalizeUIMessages converts the raw client payload into canonical UI
// messages. Chat widgets disagree on shape: newer clients send a parts list,
// older ones a bare content or text string. Non-object entries are dropped,
// client ids are discarded and an existing parts list passes through
// untouched. This never fails; malformed entries simply vanish.
func NormalizeUIMessages(raw []json.RawMessage) []domain.UIMessage {
	out := make([]domain.UIMessage, 0, len(raw))
	for _, item := range raw {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(item, &fields); err != nil || fields == nil {
			continue
		}

		msg := domain.UIMessage{Role: decodeString(fields["role"])}

		if partsRaw, ok := fields["parts"]; ok {
			var parts []domain.UIMessagePart
			if err := json.Unmarshal(partsRaw, &parts); err == nil && parts != nil {
				msg.Parts = parts
				out = append(out, msg)
				continue
			}
		}

		text := decodeString(fields["content"])
		if text == "" {
			text = decodeString(fields["text"])
		}
		if text != "" {
			msg.Parts = []domain.UIMessagePart{{Type: "text", Text: text}}
		} else {
			msg.Parts = []domain.UIMessagePart{}
		}
		out = append(out, msg)
	}
	return out
}

// ToModelMessages flattens UI messages into provider turns. Text parts join
// with newlines; step markers and replayed tool exchanges are skipped (the
// assistant's prose already reflects their results); anything else is a
// client error. Turns left without content are dropped.
func ToModelMessages(msgs []domain.UIMessage) ([]domain.ModelMessage, error) {
	out := make([]domain.ModelMessage, 0, len(msgs))
	for _, msg := range msgs {
		texts := make([]string, 0, len(msg.Parts))
		for _, part := range msg.Parts {
			switch {
			case part.Type == "text":
				texts = append(texts, part.Text)
			case part.Type == "step-start":
				// UI-only marker, carries no content.
			case strings.HasPrefix(part.Type, "tool-") || part.Type == "dynamic-tool":
				// Tool calls from earlier turns; the widget resends them
				// verbatim with the history.
			default:
				return nil, fmt.Errorf("unsupported message part type %q", part.Type)
			}
		}
		if len(texts) == 0 {
			continue
		}
		out = append(out, domain.ModelMessage{
			Role:    normalizeMessageRole(msg.Role),
			Content: strings.Join(texts, "\n"),
		})
	}
	return out, nil
}

func normalizeMessageRole(role string) string {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "system":
		return "system"
	case "assistant":
		return "assistant"
	default:
		return "user"
	}
}

func decodeString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return ""
	}
	return value
}
