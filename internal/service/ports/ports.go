// Package ports declares the collaborator contracts consumed by the chat
// service. Implementations live in internal/identity, internal/store,
// internal/runner and internal/tools; tests use the func-field fakes from
// internal/service/adapters.
package ports

import (
	"context"
	"errors"

	"comunicacion/chat-gateway/internal/domain"
	"comunicacion/chat-gateway/internal/runner"
)

// ErrNoSession reports a missing, empty or rejected access token. Handlers map
// it to 401; any other identity failure is a hard error.
var ErrNoSession = errors.New("auth session missing")

type AuthClient interface {
	CurrentUser(ctx context.Context, accessToken string) (domain.Identity, error)
}

// TaskFilter narrows a task listing. Zero-value fields are ignored; an empty
// but non-nil IDs slice still matches nothing, which is how callers force an
// empty result set.
type TaskFilter struct {
	IDs              []string
	ProjectID        string
	Statuses         []string
	MemberID         string
	AssigneeNameLike string
}

type DataStore interface {
	MemberByEmail(ctx context.Context, email string) (domain.Member, bool, error)
	Members(ctx context.Context) ([]domain.Member, error)
	Projects(ctx context.Context) ([]domain.Project, error)
	TaskIDsAssignedTo(ctx context.Context, memberID string) ([]string, error)
	Tasks(ctx context.Context, filter TaskFilter) ([]domain.TaskRow, error)
}

type ChatRunner interface {
	GenerateTurn(ctx context.Context, messages []domain.ModelMessage, cfg runner.GenerateConfig, tools []runner.ToolDefinition) (runner.TurnResult, error)
	GenerateTurnStream(ctx context.Context, messages []domain.ModelMessage, cfg runner.GenerateConfig, tools []runner.ToolDefinition, onDelta func(string)) (runner.TurnResult, error)
}

// ToolRegistry exposes the tool surface offered to the model. Execute runs one
// call on behalf of requester; its error return is fed back to the model as a
// failed tool result, never surfaced to the HTTP client directly.
type ToolRegistry interface {
	Definitions() []runner.ToolDefinition
	Execute(ctx context.Context, requester domain.Identity, name string, args map[string]interface{}) (string, error)
}
