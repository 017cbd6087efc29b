package store

import (
	"context"
	"sort"
	"strings"
	"time"

	"comunicacion/chat-gateway/internal/domain"
	"comunicacion/chat-gateway/internal/service/ports"
)

// Mem is an in-memory DataStore with the same filter semantics as Postgres.
// Used by tests and local development without a database.
type Mem struct {
	data MemData
}

type MemData struct {
	Members   []domain.Member
	Projects  []domain.Project
	Tasks     []MemTask
	Assignees []MemAssignee
}

type MemTask struct {
	ID        string
	Title     string
	Status    string
	ProjectID string
	Notes     *string
	CreatedAt time.Time
}

func NewMem(data MemData) *Mem {
	return &Mem{data: data}
}

func (s *Mem) MemberByEmail(_ context.Context, email string) (domain.Member, bool, error) {
	for _, member := range s.data.Members {
		if member.Email == email {
			return member, true, nil
		}
	}
	return domain.Member{}, false, nil
}

func (s *Mem) Members(_ context.Context) ([]domain.Member, error) {
	members := append([]domain.Member{}, s.data.Members...)
	sort.SliceStable(members, func(i, j int) bool {
		return members[i].FullName < members[j].FullName
	})
	return members, nil
}

func (s *Mem) Projects(_ context.Context) ([]domain.Project, error) {
	projects := append([]domain.Project{}, s.data.Projects...)
	sort.SliceStable(projects, func(i, j int) bool {
		return projects[i].CreatedAt.After(projects[j].CreatedAt)
	})
	return projects, nil
}

func (s *Mem) TaskIDsAssignedTo(_ context.Context, memberID string) ([]string, error) {
	ids := []string{}
	for _, assignee := range s.data.Assignees {
		if assignee.MemberID == memberID {
			ids = append(ids, assignee.TaskID)
		}
	}
	return ids, nil
}

func (s *Mem) Tasks(_ context.Context, filter ports.TaskFilter) ([]domain.TaskRow, error) {
	var idSet map[string]bool
	if filter.IDs != nil {
		idSet = map[string]bool{}
		for _, id := range filter.IDs {
			idSet[id] = true
		}
	}
	statusSet := map[string]bool{}
	for _, status := range filter.Statuses {
		statusSet[status] = true
	}

	tasks := []domain.TaskRow{}
	for _, task := range s.data.Tasks {
		if idSet != nil && !idSet[task.ID] {
			continue
		}
		if filter.ProjectID != "" && task.ProjectID != filter.ProjectID {
			continue
		}
		if len(statusSet) > 0 && !statusSet[task.Status] {
			continue
		}
		if filter.MemberID != "" && !s.assignedTo(task.ID, filter.MemberID) {
			continue
		}
		if filter.AssigneeNameLike != "" && !s.assigneeNameMatches(task.ID, filter.AssigneeNameLike) {
			continue
		}
		tasks = append(tasks, s.toRow(task))
	}
	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})
	return tasks, nil
}

func (s *Mem) assignedTo(taskID, memberID string) bool {
	for _, assignee := range s.data.Assignees {
		if assignee.TaskID == taskID && assignee.MemberID == memberID {
			return true
		}
	}
	return false
}

func (s *Mem) assigneeNameMatches(taskID, fragment string) bool {
	needle := strings.ToLower(fragment)
	for _, assignee := range s.data.Assignees {
		if assignee.TaskID != taskID {
			continue
		}
		if strings.Contains(strings.ToLower(assignee.AssigneeName), needle) {
			return true
		}
	}
	return false
}

func (s *Mem) toRow(task MemTask) domain.TaskRow {
	row := domain.TaskRow{
		ID:        task.ID,
		Title:     task.Title,
		Status:    task.Status,
		ProjectID: task.ProjectID,
		Notes:     task.Notes,
		CreatedAt: task.CreatedAt,
	}
	for _, project := range s.data.Projects {
		if project.ID == task.ProjectID {
			title := project.Title
			row.ProjectTitle = &title
			break
		}
	}
	names := []string{}
	for _, assignee := range s.data.Assignees {
		if assignee.TaskID != task.ID {
			continue
		}
		if strings.TrimSpace(assignee.AssigneeName) == "" {
			continue
		}
		names = append(names, assignee.AssigneeName)
	}
	row.AssigneeNames = names
	return row
}

type MemAssignee struct {
	TaskID       string
	MemberID     string
	AssigneeName string
}
