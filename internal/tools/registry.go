// Package tools implements the read-only tool surface the chat model can
// invoke: team members, projects and task listings with identity narrowing.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"comunicacion/chat-gateway/internal/domain"
	"comunicacion/chat-gateway/internal/runner"
	"comunicacion/chat-gateway/internal/service/ports"
)

type toolSpec struct {
	definition runner.ToolDefinition
	handler    func(ctx context.Context, requester domain.Identity, args map[string]interface{}) (interface{}, error)
}

type Registry struct {
	store ports.DataStore
	tools map[string]toolSpec
	order []string
}

func NewRegistry(store ports.DataStore) *Registry {
	r := &Registry{store: store, tools: map[string]toolSpec{}}
	r.register(runner.ToolDefinition{
		Name:        "get_my_tasks",
		Description: `Obtener tareas asignadas al usuario actual (en sesión). Puedes filtrar por status: "Pendiente" (incluye "Pendiente" y "Sin empezar"), "En desarrollo", "Terminada", etc.`,
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"status": map[string]interface{}{"type": "string"},
			},
			"required":             []string{},
			"additionalProperties": false,
		},
	}, r.getMyTasks)
	r.register(runner.ToolDefinition{
		Name:        "get_members",
		Description: "Listar miembros del equipo (id, nombre, email)",
		Parameters: map[string]interface{}{
			"type":                 "object",
			"properties":           map[string]interface{}{},
			"required":             []string{},
			"additionalProperties": false,
		},
	}, r.getMembers)
	r.register(runner.ToolDefinition{
		Name:        "get_projects",
		Description: "Get the list of projects the user has access to",
		Parameters: map[string]interface{}{
			"type":                 "object",
			"properties":           map[string]interface{}{},
			"required":             []string{},
			"additionalProperties": false,
		},
	}, r.getProjects)
	r.register(runner.ToolDefinition{
		Name:        "get_tasks",
		Description: "Obtener tareas. Puede filtrar por project_id, status, member_id, assignee_name (nombre del asignado) o assigned_to_me (tareas asignadas al usuario actual).",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"project_id":     map[string]interface{}{"type": "string", "format": "uuid"},
				"status":         map[string]interface{}{"type": "string"},
				"member_id":      map[string]interface{}{"type": "string", "format": "uuid"},
				"assignee_name":  map[string]interface{}{"type": "string"},
				"assigned_to_me": map[string]interface{}{"type": "boolean"},
			},
			"required":             []string{},
			"additionalProperties": false,
		},
	}, r.getTasks)
	return r
}

func (r *Registry) register(def runner.ToolDefinition, handler func(context.Context, domain.Identity, map[string]interface{}) (interface{}, error)) {
	r.tools[def.Name] = toolSpec{definition: def, handler: handler}
	r.order = append(r.order, def.Name)
}

func (r *Registry) Definitions() []runner.ToolDefinition {
	out := make([]runner.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].definition)
	}
	return out
}

// Execute runs one tool call. The returned string is the JSON payload handed
// back to the model; errors become failed tool results upstream.
func (r *Registry) Execute(ctx context.Context, requester domain.Identity, name string, args map[string]interface{}) (string, error) {
	spec, ok := r.tools[strings.TrimSpace(name)]
	if !ok {
		return "", fmt.Errorf("unknown tool %q", name)
	}
	result, err := spec.handler(ctx, requester, args)
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("encode tool result: %w", err)
	}
	return string(payload), nil
}

type myTasksInput struct {
	Status string `json:"status,omitempty"`
}

type tasksInput struct {
	ProjectID    string `json:"project_id,omitempty"`
	Status       string `json:"status,omitempty"`
	MemberID     string `json:"member_id,omitempty"`
	AssigneeName string `json:"assignee_name,omitempty"`
	AssignedToMe bool   `json:"assigned_to_me,omitempty"`
}

type emptyInput struct{}

// taskReport is the task shape returned to the model: the raw row plus the
// derived assigned_to and project_title fields. Join rows never leave here.
type taskReport struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	Status       string  `json:"status"`
	ProjectID    string  `json:"project_id"`
	Notes        *string `json:"notes"`
	CreatedAt    string  `json:"created_at"`
	ProjectTitle *string `json:"project_title"`
	AssignedTo   *string `json:"assigned_to"`
}

func (r *Registry) getMyTasks(ctx context.Context, requester domain.Identity, args map[string]interface{}) (interface{}, error) {
	var input myTasksInput
	if err := decodeInput(args, &input); err != nil {
		return nil, err
	}

	member, ok, err := r.requesterMember(ctx, requester)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []taskReport{}, nil
	}
	taskIDs, err := r.store.TaskIDsAssignedTo(ctx, member.ID)
	if err != nil {
		return nil, err
	}
	if len(taskIDs) == 0 {
		return []taskReport{}, nil
	}

	rows, err := r.store.Tasks(ctx, ports.TaskFilter{
		IDs:      taskIDs,
		Statuses: statusFilter(input.Status),
	})
	if err != nil {
		return nil, err
	}
	return toReports(rows), nil
}

func (r *Registry) getMembers(ctx context.Context, _ domain.Identity, args map[string]interface{}) (interface{}, error) {
	var input emptyInput
	if err := decodeInput(args, &input); err != nil {
		return nil, err
	}
	members, err := r.store.Members(ctx)
	if err != nil {
		return nil, err
	}
	return members, nil
}

func (r *Registry) getProjects(ctx context.Context, _ domain.Identity, args map[string]interface{}) (interface{}, error) {
	var input emptyInput
	if err := decodeInput(args, &input); err != nil {
		return nil, err
	}
	projects, err := r.store.Projects(ctx)
	if err != nil {
		return nil, err
	}
	return projects, nil
}

func (r *Registry) getTasks(ctx context.Context, requester domain.Identity, args map[string]interface{}) (interface{}, error) {
	var input tasksInput
	if err := decodeInput(args, &input); err != nil {
		return nil, err
	}

	filter := ports.TaskFilter{
		ProjectID:        strings.TrimSpace(input.ProjectID),
		Statuses:         statusFilter(input.Status),
		MemberID:         strings.TrimSpace(input.MemberID),
		AssigneeNameLike: strings.TrimSpace(input.AssigneeName),
	}

	if input.AssignedToMe {
		member, ok, err := r.requesterMember(ctx, requester)
		if err != nil {
			return nil, err
		}
		if !ok {
			return []taskReport{}, nil
		}
		taskIDs, err := r.store.TaskIDsAssignedTo(ctx, member.ID)
		if err != nil {
			return nil, err
		}
		if len(taskIDs) == 0 {
			return []taskReport{}, nil
		}
		filter.IDs = taskIDs
	}

	rows, err := r.store.Tasks(ctx, filter)
	if err != nil {
		return nil, err
	}
	return toReports(rows), nil
}

// requesterMember maps the authenticated user to a member row by exact email
// equality only. No email or no match means no tasks, never someone else's.
func (r *Registry) requesterMember(ctx context.Context, requester domain.Identity) (domain.Member, bool, error) {
	email := strings.TrimSpace(requester.Email)
	if email == "" {
		return domain.Member{}, false, nil
	}
	return r.store.MemberByEmail(ctx, email)
}

// statusFilter maps common Spanish/English status synonyms to the labels the
// dashboard actually stores. Unknown values pass through verbatim.
func statusFilter(status string) []string {
	raw := strings.TrimSpace(status)
	if raw == "" {
		return nil
	}
	switch strings.ToLower(raw) {
	case "pendiente", "pending":
		return []string{"Pendiente", "Sin empezar"}
	case "in_progress":
		return []string{"En desarrollo"}
	case "completed":
		return []string{"Terminada"}
	case "cancelled":
		return []string{"Cancelada"}
	default:
		return []string{raw}
	}
}

func toReports(rows []domain.TaskRow) []taskReport {
	reports := make([]taskReport, 0, len(rows))
	for _, row := range rows {
		reports = append(reports, taskReport{
			ID:           row.ID,
			Title:        row.Title,
			Status:       row.Status,
			ProjectID:    row.ProjectID,
			Notes:        row.Notes,
			CreatedAt:    row.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
			ProjectTitle: row.ProjectTitle,
			AssignedTo:   derivedAssignedTo(row.AssigneeNames),
		})
	}
	return reports
}

// derivedAssignedTo dedupes the assignee names preserving first-seen order
// and joins them with ", ". Nil when nothing remains.
func derivedAssignedTo(names []string) *string {
	seen := map[string]bool{}
	kept := []string{}
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			continue
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		kept = append(kept, name)
	}
	if len(kept) == 0 {
		return nil
	}
	joined := strings.Join(kept, ", ")
	return &joined
}

// decodeInput re-encodes the argument map and decodes it strictly into the
// tool's input struct. Unknown fields reject the call.
func decodeInput(args map[string]interface{}, dst interface{}) error {
	if args == nil {
		args = map[string]interface{}{}
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode tool arguments: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid tool arguments: %w", err)
	}
	return nil
}
