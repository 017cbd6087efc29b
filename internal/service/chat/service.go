// Package chat drives a conversation turn: it loops model steps, fans tool
// calls out to the registry and emits UI message stream parts as it goes.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"comunicacion/chat-gateway/internal/domain"
	"comunicacion/chat-gateway/internal/runner"
	"comunicacion/chat-gateway/internal/service/ports"
)

// maxSteps caps the number of model calls per request. Hitting the cap ends
// the stream silently after the pending tool calls run.
const maxSteps = 6

const systemPromptFormat = `Eres un asistente del sistema de gestión de proyectos "Comunicación".
Tienes acceso a datos de la BD mediante herramientas (projects, tasks, members).
Antes de decir "no sé", consulta la BD con las herramientas.
Si el usuario pregunta por tareas de un miembro y no especifica el id, primero usa get_members para encontrarlo por nombre/email y luego usa get_tasks con member_id o assignee_name.
Si el usuario pregunta por "mis tareas" o "mis tareas pendientes", usa get_my_tasks (y para pendientes usa status="Pendiente").
Nota: "mis tareas" se resuelve por members.email == auth.email(). Si no existe, responde pidiendo que se cargue el email del miembro.
Después de ejecutar herramientas, SIEMPRE responde con una respuesta final en texto para el usuario (no te quedes solo en llamadas a herramientas).

FORMATO DE RESPUESTA (muy importante):
- Responde SIEMPRE en español.
- Usa saltos de línea.
- Si estás listando cosas, usa viñetas con este patrón:
  - **Título** — Estado: **X** — Proyecto: **Y** — Asignado a: **Z**
- Para "Asignado a", usa el campo "assigned_to" si existe; si no, muestra "Sin asignar".
- Si no hay resultados, dilo explícitamente (ej: "No encontré tareas para <miembro> con ese filtro.").

Fecha actual: %s`

type Dependencies struct {
	Runner ports.ChatRunner
	Tools  ports.ToolRegistry
}

type Params struct {
	Identity domain.Identity
	Messages []domain.ModelMessage
	Config   runner.GenerateConfig
	// Blocking selects the non-streaming provider call; each step's text
	// then arrives as a single delta.
	Blocking bool
	// Now stamps the system prompt; zero value means time.Now.
	Now time.Time
}

type ProcessError struct {
	Status  int
	Code    string
	Message string
}

func (e *ProcessError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

type Service struct {
	deps Dependencies
}

func NewService(deps Dependencies) (*Service, error) {
	if deps.Runner == nil {
		return nil, errors.New("chat service requires a runner")
	}
	if deps.Tools == nil {
		return nil, errors.New("chat service requires a tool registry")
	}
	return &Service{deps: deps}, nil
}

type toolOutcome struct {
	output string
	err    error
}

// Process runs the step loop for one request, emitting stream parts through
// emit. It returns nil on a completed stream; a ProcessError maps to an HTTP
// error when nothing was streamed yet, or to an error part otherwise.
func (s *Service) Process(ctx context.Context, params Params, emit func(domain.StreamPart)) *ProcessError {
	now := params.Now
	if now.IsZero() {
		now = time.Now()
	}

	history := make([]domain.ModelMessage, 0, len(params.Messages)+1)
	history = append(history, domain.ModelMessage{
		Role:    "system",
		Content: fmt.Sprintf(systemPromptFormat, now.UTC().Format(time.RFC3339)),
	})
	history = append(history, params.Messages...)

	definitions := s.deps.Tools.Definitions()
	messageID := "msg-" + uuid.NewString()

	// Stream parts go out lazily: nothing is emitted until the provider has
	// produced output, so an upfront failure can still become a JSON error.
	startSent := false
	ensureStart := func() {
		if !startSent {
			emit(domain.StreamPart{Type: "start", MessageID: messageID})
			startSent = true
		}
	}

	for step := 1; step <= maxSteps; step++ {
		stepSent := false
		ensureStep := func() {
			ensureStart()
			if !stepSent {
				emit(domain.StreamPart{Type: "start-step"})
				stepSent = true
			}
		}

		textID := ""
		var turn runner.TurnResult
		var err error
		if params.Blocking {
			turn, err = s.deps.Runner.GenerateTurn(ctx, history, params.Config, definitions)
		} else {
			turn, err = s.deps.Runner.GenerateTurnStream(ctx, history, params.Config, definitions, func(delta string) {
				if delta == "" {
					return
				}
				if textID == "" {
					ensureStep()
					textID = "txt-" + uuid.NewString()
					emit(domain.StreamPart{Type: "text-start", ID: textID})
				}
				emit(domain.StreamPart{Type: "text-delta", ID: textID, Delta: delta})
			})
		}
		if err != nil {
			return mapRunnerError(err)
		}
		ensureStep()
		// Blocking fallback: some providers return the full text without
		// content deltas even on the streaming endpoint.
		if textID == "" && strings.TrimSpace(turn.Text) != "" {
			textID = "txt-" + uuid.NewString()
			emit(domain.StreamPart{Type: "text-start", ID: textID})
			emit(domain.StreamPart{Type: "text-delta", ID: textID, Delta: turn.Text})
		}
		if textID != "" {
			emit(domain.StreamPart{Type: "text-end", ID: textID})
		}

		if len(turn.ToolCalls) == 0 || turn.FinishReason != runner.FinishReasonToolCalls {
			emit(domain.StreamPart{Type: "finish-step"})
			break
		}

		assistant := domain.ModelMessage{Role: "assistant", Content: turn.Text}
		for _, call := range turn.ToolCalls {
			input := marshalArguments(call.Arguments)
			emit(domain.StreamPart{
				Type:       "tool-input-available",
				ToolCallID: call.ID,
				ToolName:   call.Name,
				Input:      input,
			})
			assistant.ToolCalls = append(assistant.ToolCalls, domain.AssistantToolCall{
				ID:        call.ID,
				Name:      call.Name,
				Arguments: string(input),
			})
		}
		history = append(history, assistant)

		outcomes := s.executeToolCalls(ctx, params.Identity, turn.ToolCalls)
		for _, call := range turn.ToolCalls {
			outcome := outcomes[call.ID]
			if outcome.err != nil {
				log.Printf("tool %s failed: %v", call.Name, outcome.err)
				emit(domain.StreamPart{
					Type:       "tool-output-error",
					ToolCallID: call.ID,
					ErrorText:  outcome.err.Error(),
				})
				history = append(history, domain.ModelMessage{
					Role:       "tool",
					Content:    "Error: " + outcome.err.Error(),
					ToolCallID: call.ID,
					ToolName:   call.Name,
				})
				continue
			}
			emit(domain.StreamPart{
				Type:       "tool-output-available",
				ToolCallID: call.ID,
				Output:     json.RawMessage(outcome.output),
			})
			history = append(history, domain.ModelMessage{
				Role:       "tool",
				Content:    outcome.output,
				ToolCallID: call.ID,
				ToolName:   call.Name,
			})
		}
		emit(domain.StreamPart{Type: "finish-step"})
	}

	emit(domain.StreamPart{Type: "finish"})
	return nil
}

// executeToolCalls runs the step's tool calls concurrently and collects the
// outcomes keyed by call id so results can be appended in call order.
func (s *Service) executeToolCalls(ctx context.Context, requester domain.Identity, calls []runner.ToolCall) map[string]toolOutcome {
	outcomes := make(map[string]toolOutcome, len(calls))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, call := range calls {
		wg.Add(1)
		go func(call runner.ToolCall) {
			defer wg.Done()
			output, err := s.deps.Tools.Execute(ctx, requester, call.Name, call.Arguments)
			mu.Lock()
			outcomes[call.ID] = toolOutcome{output: output, err: err}
			mu.Unlock()
		}(call)
	}
	wg.Wait()
	return outcomes
}

func marshalArguments(args map[string]interface{}) json.RawMessage {
	if args == nil {
		return json.RawMessage("{}")
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return json.RawMessage("{}")
	}
	return raw
}

func mapRunnerError(err error) *ProcessError {
	var runnerErr *runner.RunnerError
	if errors.As(err, &runnerErr) {
		return &ProcessError{
			Status:  http.StatusBadGateway,
			Code:    runnerErr.Code,
			Message: runnerErr.Message,
		}
	}
	return &ProcessError{
		Status:  http.StatusBadGateway,
		Code:    "provider_request_failed",
		Message: err.Error(),
	}
}
