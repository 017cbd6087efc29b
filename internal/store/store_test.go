package store

import (
	"context"
	"testing"
	"time"

	"comunicacion/chat-gateway/internal/domain"
	"comunicacion/chat-gateway/internal/service/ports"
)

func strPtr(s string) *string { return &s }

func seededMem() *Mem {
	base := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	return NewMem(MemData{
		Members: []domain.Member{
			{ID: "mem-2", FullName: "Zoe", Email: "zoe@example.com"},
			{ID: "mem-1", FullName: "Ana", Email: "ana@example.com"},
		},
		Projects: []domain.Project{
			{ID: "proj-1", Title: "Web", CreatedAt: base},
			{ID: "proj-2", Title: "Prensa", CreatedAt: base.Add(time.Hour)},
		},
		Tasks: []MemTask{
			{ID: "t1", Title: "Nota", Status: "Pendiente", ProjectID: "proj-2", CreatedAt: base.Add(3 * time.Hour)},
			{ID: "t2", Title: "Banner", Status: "En desarrollo", ProjectID: "proj-1", Notes: strPtr("alta"), CreatedAt: base.Add(2 * time.Hour)},
			{ID: "t3", Title: "Informe", Status: "Sin empezar", ProjectID: "proj-1", CreatedAt: base.Add(time.Hour)},
		},
		Assignees: []MemAssignee{
			{TaskID: "t1", MemberID: "mem-1", AssigneeName: "Ana"},
			{TaskID: "t2", MemberID: "mem-1", AssigneeName: "Ana"},
			{TaskID: "t2", MemberID: "mem-2", AssigneeName: "Zoe"},
		},
	})
}

func TestMemberByEmailExactOnly(t *testing.T) {
	t.Parallel()

	mem := seededMem()
	member, ok, err := mem.MemberByEmail(context.Background(), "ana@example.com")
	if err != nil || !ok || member.ID != "mem-1" {
		t.Fatalf("unexpected result: %+v ok=%v err=%v", member, ok, err)
	}
	_, ok, err = mem.MemberByEmail(context.Background(), "ANA@example.com")
	if err != nil || ok {
		t.Fatalf("case-different email must not match: ok=%v err=%v", ok, err)
	}
}

func TestMembersSortedByFullName(t *testing.T) {
	t.Parallel()

	members, err := seededMem().Members(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(members) != 2 || members[0].FullName != "Ana" || members[1].FullName != "Zoe" {
		t.Fatalf("unexpected ordering: %+v", members)
	}
}

func TestProjectsNewestFirst(t *testing.T) {
	t.Parallel()

	projects, err := seededMem().Projects(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(projects) != 2 || projects[0].ID != "proj-2" {
		t.Fatalf("unexpected ordering: %+v", projects)
	}
}

func TestTasksNoFilterNewestFirst(t *testing.T) {
	t.Parallel()

	tasks, err := seededMem().Tasks(context.Background(), ports.TaskFilter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tasks) != 3 || tasks[0].ID != "t1" || tasks[2].ID != "t3" {
		t.Fatalf("unexpected ordering: %+v", tasks)
	}
	if tasks[0].ProjectTitle == nil || *tasks[0].ProjectTitle != "Prensa" {
		t.Fatalf("missing project title: %+v", tasks[0])
	}
}

func TestTasksEmptyIDListMatchesNothing(t *testing.T) {
	t.Parallel()

	tasks, err := seededMem().Tasks(context.Background(), ports.TaskFilter{IDs: []string{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("empty id list must match nothing, got %+v", tasks)
	}
}

func TestTasksCombinedFilters(t *testing.T) {
	t.Parallel()

	mem := seededMem()
	tasks, err := mem.Tasks(context.Background(), ports.TaskFilter{
		ProjectID: "proj-1",
		Statuses:  []string{"En desarrollo"},
		MemberID:  "mem-2",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != "t2" {
		t.Fatalf("unexpected tasks: %+v", tasks)
	}
	if len(tasks[0].AssigneeNames) != 2 {
		t.Fatalf("expected both assignee names, got %+v", tasks[0].AssigneeNames)
	}
}

func TestTasksAssigneeNameCaseInsensitive(t *testing.T) {
	t.Parallel()

	tasks, err := seededMem().Tasks(context.Background(), ports.TaskFilter{AssigneeNameLike: "zO"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != "t2" {
		t.Fatalf("unexpected tasks: %+v", tasks)
	}
}

func TestTaskIDsAssignedTo(t *testing.T) {
	t.Parallel()

	ids, err := seededMem().TaskIDsAssignedTo(context.Background(), "mem-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("unexpected ids: %v", ids)
	}
}

var _ ports.DataStore = (*Mem)(nil)
var _ ports.DataStore = (*Postgres)(nil)
