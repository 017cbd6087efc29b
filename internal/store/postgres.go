// Package store provides read-only access to the dashboard's Postgres data:
// members, projects, tasks and task assignments.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"comunicacion/chat-gateway/internal/domain"
	"comunicacion/chat-gateway/internal/service/ports"
)

type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (s *Postgres) MemberByEmail(ctx context.Context, email string) (domain.Member, bool, error) {
	const query = `select id, full_name, email from members where email = $1`
	var member domain.Member
	err := s.pool.QueryRow(ctx, query, email).Scan(&member.ID, &member.FullName, &member.Email)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Member{}, false, nil
	}
	if err != nil {
		return domain.Member{}, false, fmt.Errorf("query member by email: %w", err)
	}
	return member, true, nil
}

func (s *Postgres) Members(ctx context.Context) ([]domain.Member, error) {
	const query = `select id, full_name, email from members order by full_name`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	members := []domain.Member{}
	for rows.Next() {
		var member domain.Member
		if err := rows.Scan(&member.ID, &member.FullName, &member.Email); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	return members, nil
}

func (s *Postgres) Projects(ctx context.Context) ([]domain.Project, error) {
	const query = `select id, title, description, created_at from projects order by created_at desc`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer rows.Close()

	projects := []domain.Project{}
	for rows.Next() {
		var project domain.Project
		if err := rows.Scan(&project.ID, &project.Title, &project.Description, &project.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, project)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return projects, nil
}

func (s *Postgres) TaskIDsAssignedTo(ctx context.Context, memberID string) ([]string, error) {
	const query = `select task_id from task_assignees where member_id = $1`
	rows, err := s.pool.Query(ctx, query, memberID)
	if err != nil {
		return nil, fmt.Errorf("query task assignments: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan task assignment: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate task assignments: %w", err)
	}
	return ids, nil
}

func (s *Postgres) Tasks(ctx context.Context, filter ports.TaskFilter) ([]domain.TaskRow, error) {
	var sb strings.Builder
	sb.WriteString(`select t.id, t.title, t.status, t.project_id, t.notes, t.created_at, p.title,
	coalesce(array_agg(a.assignee_name order by a.id) filter (where a.assignee_name is not null and btrim(a.assignee_name) <> ''), '{}')
from tasks t
left join projects p on p.id = t.project_id
left join task_assignees a on a.task_id = t.id`)

	conditions := []string{}
	args := []interface{}{}
	addArg := func(value interface{}) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.IDs != nil {
		conditions = append(conditions, fmt.Sprintf("t.id = any(%s)", addArg(filter.IDs)))
	}
	if filter.ProjectID != "" {
		conditions = append(conditions, fmt.Sprintf("t.project_id = %s", addArg(filter.ProjectID)))
	}
	if len(filter.Statuses) > 0 {
		conditions = append(conditions, fmt.Sprintf("t.status = any(%s)", addArg(filter.Statuses)))
	}
	if filter.MemberID != "" {
		conditions = append(conditions, fmt.Sprintf(
			"exists (select 1 from task_assignees m where m.task_id = t.id and m.member_id = %s)", addArg(filter.MemberID)))
	}
	if filter.AssigneeNameLike != "" {
		conditions = append(conditions, fmt.Sprintf(
			"exists (select 1 from task_assignees n where n.task_id = t.id and n.assignee_name ilike '%%' || %s || '%%')", addArg(filter.AssigneeNameLike)))
	}

	if len(conditions) > 0 {
		sb.WriteString("\nwhere ")
		sb.WriteString(strings.Join(conditions, " and "))
	}
	sb.WriteString("\ngroup by t.id, t.title, t.status, t.project_id, t.notes, t.created_at, p.title")
	sb.WriteString("\norder by t.created_at desc")

	rows, err := s.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	tasks := []domain.TaskRow{}
	for rows.Next() {
		var task domain.TaskRow
		if err := rows.Scan(&task.ID, &task.Title, &task.Status, &task.ProjectID, &task.Notes, &task.CreatedAt, &task.ProjectTitle, &task.AssigneeNames); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}
