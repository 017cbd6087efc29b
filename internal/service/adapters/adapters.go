// Package adapters provides func-field fakes for the ports contracts. Tests
// fill in only the behaviors they exercise.
package adapters

import (
	"context"
	"fmt"

	"comunicacion/chat-gateway/internal/domain"
	"comunicacion/chat-gateway/internal/runner"
	"comunicacion/chat-gateway/internal/service/ports"
)

type AuthClient struct {
	CurrentUserFunc func(ctx context.Context, accessToken string) (domain.Identity, error)
}

func (a *AuthClient) CurrentUser(ctx context.Context, accessToken string) (domain.Identity, error) {
	if a == nil || a.CurrentUserFunc == nil {
		return domain.Identity{}, ports.ErrNoSession
	}
	return a.CurrentUserFunc(ctx, accessToken)
}

type DataStore struct {
	MemberByEmailFunc     func(ctx context.Context, email string) (domain.Member, bool, error)
	MembersFunc           func(ctx context.Context) ([]domain.Member, error)
	ProjectsFunc          func(ctx context.Context) ([]domain.Project, error)
	TaskIDsAssignedToFunc func(ctx context.Context, memberID string) ([]string, error)
	TasksFunc             func(ctx context.Context, filter ports.TaskFilter) ([]domain.TaskRow, error)
}

func (s *DataStore) MemberByEmail(ctx context.Context, email string) (domain.Member, bool, error) {
	if s == nil || s.MemberByEmailFunc == nil {
		return domain.Member{}, false, nil
	}
	return s.MemberByEmailFunc(ctx, email)
}

func (s *DataStore) Members(ctx context.Context) ([]domain.Member, error) {
	if s == nil || s.MembersFunc == nil {
		return nil, nil
	}
	return s.MembersFunc(ctx)
}

func (s *DataStore) Projects(ctx context.Context) ([]domain.Project, error) {
	if s == nil || s.ProjectsFunc == nil {
		return nil, nil
	}
	return s.ProjectsFunc(ctx)
}

func (s *DataStore) TaskIDsAssignedTo(ctx context.Context, memberID string) ([]string, error) {
	if s == nil || s.TaskIDsAssignedToFunc == nil {
		return nil, nil
	}
	return s.TaskIDsAssignedToFunc(ctx, memberID)
}

func (s *DataStore) Tasks(ctx context.Context, filter ports.TaskFilter) ([]domain.TaskRow, error) {
	if s == nil || s.TasksFunc == nil {
		return nil, nil
	}
	return s.TasksFunc(ctx, filter)
}

type ChatRunner struct {
	GenerateTurnFunc       func(ctx context.Context, messages []domain.ModelMessage, cfg runner.GenerateConfig, tools []runner.ToolDefinition) (runner.TurnResult, error)
	GenerateTurnStreamFunc func(ctx context.Context, messages []domain.ModelMessage, cfg runner.GenerateConfig, tools []runner.ToolDefinition, onDelta func(string)) (runner.TurnResult, error)
}

func (r *ChatRunner) GenerateTurn(ctx context.Context, messages []domain.ModelMessage, cfg runner.GenerateConfig, tools []runner.ToolDefinition) (runner.TurnResult, error) {
	if r == nil || r.GenerateTurnFunc == nil {
		return runner.TurnResult{}, fmt.Errorf("GenerateTurn not configured")
	}
	return r.GenerateTurnFunc(ctx, messages, cfg, tools)
}

func (r *ChatRunner) GenerateTurnStream(ctx context.Context, messages []domain.ModelMessage, cfg runner.GenerateConfig, tools []runner.ToolDefinition, onDelta func(string)) (runner.TurnResult, error) {
	if r == nil || r.GenerateTurnStreamFunc == nil {
		return runner.TurnResult{}, fmt.Errorf("GenerateTurnStream not configured")
	}
	return r.GenerateTurnStreamFunc(ctx, messages, cfg, tools, onDelta)
}

type ToolRegistry struct {
	DefinitionsFunc func() []runner.ToolDefinition
	ExecuteFunc     func(ctx context.Context, requester domain.Identity, name string, args map[string]interface{}) (string, error)
}

func (t *ToolRegistry) Definitions() []runner.ToolDefinition {
	if t == nil || t.DefinitionsFunc == nil {
		return nil
	}
	return t.DefinitionsFunc()
}

func (t *ToolRegistry) Execute(ctx context.Context, requester domain.Identity, name string, args map[string]interface{}) (string, error) {
	if t == nil || t.ExecuteFunc == nil {
		return "", fmt.Errorf("tool %q not configured", name)
	}
	return t.ExecuteFunc(ctx, requester, name, args)
}
