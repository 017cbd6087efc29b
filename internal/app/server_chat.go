package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"comunicacion/chat-gateway/internal/domain"
	"comunicacion/chat-gateway/internal/identity"
	"comunicacion/chat-gateway/internal/service/chat"
	"comunicacion/chat-gateway/internal/service/ports"
	"comunicacion/chat-gateway/internal/stream"
)

// chatRequestTimeout bounds one chat request end to end, tool calls and all
// model steps included.
const chatRequestTimeout = 30 * time.Second

const maxChatBodyBytes = 1 * 1024 * 1024

func (s *Server) processChat(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), chatRequestTimeout)
	defer cancel()

	token := identity.TokenFromRequest(r)
	caller, err := s.auth.CurrentUser(ctx, token)
	if err != nil {
		if errors.Is(err, ports.ErrNoSession) {
			writeErr(w, http.StatusUnauthorized, "no_session", "No autenticado", nil)
			return
		}
		log.Printf("identity lookup failed: %v", err)
		writeErr(w, http.StatusInternalServerError, "auth_error", "Error de autenticación", nil)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxChatBodyBytes))
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid_json", "Body JSON inválido", nil)
		return
	}
	var req domain.ChatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid_json", "Body JSON inválido", nil)
		return
	}

	uiMessages := NormalizeUIMessages(req.Messages)
	modelMessages, err := ToModelMessages(uiMessages)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid_messages", "Formato de mensajes inválido para el chatbot", err.Error())
		return
	}

	if wantsBlockingResponse(r) {
		s.processChatBlocking(ctx, w, caller, modelMessages)
		return
	}
	writer, err := stream.NewWriter(ctx, w)
	if err != nil {
		// Connection cannot flush, so serve the final text in one piece.
		s.processChatBlocking(ctx, w, caller, modelMessages)
		return
	}

	processErr := s.chat.Process(ctx, chat.Params{
		Identity: caller,
		Messages: modelMessages,
		Config:   s.genCfg,
	}, writer.Send)
	if processErr != nil {
		log.Printf("chat request failed: code=%s %s", processErr.Code, processErr.Message)
		if !writer.Started() {
			writeErr(w, processErr.Status, processErr.Code, processErr.Message, nil)
			return
		}
		writer.Send(domain.StreamPart{Type: "error", ErrorText: processErr.Message})
	}
	writer.Done()
}

// processChatBlocking runs the same driver loop against the blocking
// provider call and replies with the assembled answer as plain JSON.
func (s *Server) processChatBlocking(ctx context.Context, w http.ResponseWriter, caller domain.Identity, messages []domain.ModelMessage) {
	var parts []domain.StreamPart
	processErr := s.chat.Process(ctx, chat.Params{
		Identity: caller,
		Messages: messages,
		Config:   s.genCfg,
		Blocking: true,
	}, func(part domain.StreamPart) {
		parts = append(parts, part)
	})
	if processErr != nil {
		log.Printf("chat request failed: code=%s %s", processErr.Code, processErr.Message)
		writeErr(w, processErr.Status, processErr.Code, processErr.Message, nil)
		return
	}

	var text strings.Builder
	for _, part := range parts {
		if part.Type == "text-delta" {
			text.WriteString(part.Delta)
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": text.String()})
}

func wantsBlockingResponse(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "application/json") && !strings.Contains(accept, "text/event-stream")
}
