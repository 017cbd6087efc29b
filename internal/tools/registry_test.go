package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"comunicacion/chat-gateway/internal/domain"
	"comunicacion/chat-gateway/internal/service/ports"
	"comunicacion/chat-gateway/internal/store"
)

func stringPtr(s string) *string { return &s }

func demoStore() *store.Mem {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return store.NewMem(store.MemData{
		Members: []domain.Member{
			{ID: "mem-1", FullName: "Ana Pérez", Email: "ana@example.com"},
			{ID: "mem-2", FullName: "Beto Díaz", Email: "beto@example.com"},
		},
		Projects: []domain.Project{
			{ID: "proj-1", Title: "Campaña Invierno", CreatedAt: base},
		},
		Tasks: []store.MemTask{
			{ID: "task-1", Title: "Redactar gacetilla", Status: "Sin empezar", ProjectID: "proj-1", CreatedAt: base.Add(2 * time.Hour)},
			{ID: "task-2", Title: "Diseñar flyer", Status: "En desarrollo", ProjectID: "proj-1", Notes: stringPtr("urgente"), CreatedAt: base.Add(time.Hour)},
			{ID: "task-3", Title: "Publicar nota", Status: "Terminada", ProjectID: "proj-1", CreatedAt: base},
		},
		Assignees: []store.MemAssignee{
			{TaskID: "task-1", MemberID: "mem-1", AssigneeName: "Ana Pérez"},
			{TaskID: "task-2", MemberID: "mem-1", AssigneeName: "Ana Pérez"},
			{TaskID: "task-2", MemberID: "mem-2", AssigneeName: "Beto Díaz"},
		},
	})
}

func executeTasks(t *testing.T, reg *Registry, requester domain.Identity, name string, args map[string]interface{}) []map[string]interface{} {
	t.Helper()
	payload, err := reg.Execute(context.Background(), requester, name, args)
	if err != nil {
		t.Fatalf("%s failed: %v", name, err)
	}
	var out []map[string]interface{}
	if err := json.Unmarshal([]byte(payload), &out); err != nil {
		t.Fatalf("%s returned invalid json: %v", name, err)
	}
	return out
}

func TestGetMyTasksMatchesByExactEmail(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(demoStore())
	ana := domain.Identity{ID: "u1", Email: "ana@example.com"}

	tasks := executeTasks(t, reg, ana, "get_my_tasks", nil)
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks for ana, got %d", len(tasks))
	}
	if tasks[0]["id"] != "task-1" || tasks[1]["id"] != "task-2" {
		t.Fatalf("expected created_at desc ordering, got %v then %v", tasks[0]["id"], tasks[1]["id"])
	}
}

func TestGetMyTasksNoMemberLinkReturnsEmpty(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(demoStore())

	for _, email := range []string{"", "Ana@Example.com", "nadie@example.com"} {
		tasks := executeTasks(t, reg, domain.Identity{ID: "u9", Email: email}, "get_my_tasks", nil)
		if len(tasks) != 0 {
			t.Fatalf("email %q: expected empty result, got %d tasks", email, len(tasks))
		}
	}
}

func TestStatusFilterSynonyms(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want []string
	}{
		{"pendiente", []string{"Pendiente", "Sin empezar"}},
		{"Pendiente", []string{"Pendiente", "Sin empezar"}},
		{" PENDING ", []string{"Pendiente", "Sin empezar"}},
		{"in_progress", []string{"En desarrollo"}},
		{"completed", []string{"Terminada"}},
		{"cancelled", []string{"Cancelada"}},
		{"En revisión", []string{"En revisión"}},
		{"", nil},
	}
	for _, tc := range cases {
		got := statusFilter(tc.in)
		if len(got) != len(tc.want) {
			t.Fatalf("statusFilter(%q) = %v, want %v", tc.in, got, tc.want)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("statusFilter(%q) = %v, want %v", tc.in, got, tc.want)
			}
		}
	}
}

func TestGetMyTasksPendingStatus(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(demoStore())
	ana := domain.Identity{ID: "u1", Email: "ana@example.com"}

	tasks := executeTasks(t, reg, ana, "get_my_tasks", map[string]interface{}{"status": "pendiente"})
	if len(tasks) != 1 {
		t.Fatalf("expected 1 pending task, got %d", len(tasks))
	}
	if tasks[0]["status"] != "Sin empezar" {
		t.Fatalf("expected the Sin empezar task, got %v", tasks[0]["status"])
	}
}

func TestGetTasksDerivedAssignedTo(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(demoStore())
	tasks := executeTasks(t, reg, domain.Identity{}, "get_tasks", nil)
	if len(tasks) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(tasks))
	}

	byID := map[string]map[string]interface{}{}
	for _, task := range tasks {
		byID[task["id"].(string)] = task
	}
	if got := byID["task-2"]["assigned_to"]; got != "Ana Pérez, Beto Díaz" {
		t.Fatalf("unexpected assigned_to for task-2: %v", got)
	}
	if got := byID["task-3"]["assigned_to"]; got != nil {
		t.Fatalf("expected null assigned_to for unassigned task, got %v", got)
	}
	if got := byID["task-1"]["project_title"]; got != "Campaña Invierno" {
		t.Fatalf("unexpected project_title: %v", got)
	}
}

func TestDerivedAssignedToDedupes(t *testing.T) {
	t.Parallel()

	got := derivedAssignedTo([]string{"Ana", "Ana", " ", "Beto"})
	if got == nil || *got != "Ana, Beto" {
		t.Fatalf("unexpected assigned_to: %v", got)
	}
	if derivedAssignedTo(nil) != nil {
		t.Fatalf("expected nil for no names")
	}
}

func TestGetTasksAssignedToMeShortCircuits(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(demoStore())

	tasks := executeTasks(t, reg, domain.Identity{Email: "nadie@example.com"}, "get_tasks", map[string]interface{}{"assigned_to_me": true})
	if len(tasks) != 0 {
		t.Fatalf("expected empty result for unlinked user, got %d", len(tasks))
	}

	tasks = executeTasks(t, reg, domain.Identity{Email: "ana@example.com"}, "get_tasks", map[string]interface{}{
		"assigned_to_me": true,
		"status":         "in_progress",
	})
	if len(tasks) != 1 || tasks[0]["id"] != "task-2" {
		t.Fatalf("expected only task-2, got %v", tasks)
	}
}

func TestGetTasksAssigneeNameSubstring(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(demoStore())
	tasks := executeTasks(t, reg, domain.Identity{}, "get_tasks", map[string]interface{}{"assignee_name": "beto"})
	if len(tasks) != 1 || tasks[0]["id"] != "task-2" {
		t.Fatalf("expected case-insensitive match on task-2, got %v", tasks)
	}
}

func TestGetMembersOrdering(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(demoStore())
	payload, err := reg.Execute(context.Background(), domain.Identity{}, "get_members", nil)
	if err != nil {
		t.Fatalf("get_members failed: %v", err)
	}
	var members []domain.Member
	if err := json.Unmarshal([]byte(payload), &members); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(members) != 2 || members[0].FullName != "Ana Pérez" {
		t.Fatalf("unexpected members: %+v", members)
	}
}

func TestExecuteRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(demoStore())
	_, err := reg.Execute(context.Background(), domain.Identity{}, "get_projects", map[string]interface{}{"bogus": 1})
	if err == nil || !strings.Contains(err.Error(), "invalid tool arguments") {
		t.Fatalf("expected strict decode error, got %v", err)
	}
}

func TestExecuteUnknownTool(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(demoStore())
	_, err := reg.Execute(context.Background(), domain.Identity{}, "drop_tables", nil)
	if err == nil || !strings.Contains(err.Error(), "unknown tool") {
		t.Fatalf("expected unknown tool error, got %v", err)
	}
}

var _ ports.ToolRegistry = (*Registry)(nil)
