package activity

import (
	"testing"
	"time"

	"github.com/calm-green-heron/stagewise/internal/models"
)

func TestClassifyAction(t *testing.T) {
	tests := []struct {
		old  models.TaskStatus
		new  models.TaskStatus
		want models.ActionType
	}{
		{models.StatusReview, models.StatusDone, models.ActionComplete},
		{models.StatusOpen, models.StatusCancel, models.ActionCancel},
		{models.StatusOpen, models.StatusInProgress, models.ActionUpdate},
		{models.StatusDone, models.StatusDone, models.ActionUpdate},
		{models.StatusDone, models.StatusOpen, models.ActionUpdate},
	}

	for _, tt := range tests {
		if got := ClassifyAction(tt.old, tt.new); got != tt.want {
			t.Errorf("ClassifyAction(%s, %s) = %s, want %s", tt.old, tt.new, got, tt.want)
		}
	}
}

func TestDiff_CapturesChangedFieldsOnly(t *testing.T) {
	start := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	old := &models.Task{
		Title:     "Fix login",
		Priority:  models.PriorityLow,
		Status:    models.StatusOpen,
		StartDate: start,
		Deadline:  start.AddDate(0, 0, 7),
	}
	updated := *old
	updated.Priority = models.PriorityHighest
	updated.Status = models.StatusInProgress

	changes := Diff(old, &updated)
	if len(changes) != 2 {
		t.Fatalf("Diff produced %d changes, want 2: %+v", len(changes), changes)
	}

	byField := map[string]models.FieldChange{}
	for _, c := range changes {
		byField[c.Field] = c
	}

	prio, ok := byField["priority"]
	if !ok {
		t.Fatal("missing priority change")
	}
	if prio.Kind != models.ChangeEnum || prio.From != "low" || prio.To != "highest" {
		t.Errorf("priority change = %+v", prio)
	}

	status, ok := byField["status"]
	if !ok {
		t.Fatal("missing status change")
	}
	if status.Kind != models.ChangeEnum || status.From != "open" || status.To != "inprogress" {
		t.Errorf("status change = %+v", status)
	}
}

func TestDiff_DatesUseRFC3339UTC(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	old := &models.Task{Deadline: time.Date(2026, 2, 1, 12, 0, 0, 0, loc)}
	updated := *old
	updated.Deadline = time.Date(2026, 2, 5, 12, 0, 0, 0, loc)

	changes := Diff(old, &updated)
	if len(changes) != 1 {
		t.Fatalf("Diff produced %d changes, want 1", len(changes))
	}
	c := changes[0]
	if c.Field != "deadline" || c.Kind != models.ChangeDate {
		t.Fatalf("change = %+v", c)
	}
	if c.From != "2026-02-01T11:00:00Z" {
		t.Errorf("From = %q, want UTC RFC3339", c.From)
	}
	if c.To != "2026-02-05T11:00:00Z" {
		t.Errorf("To = %q, want UTC RFC3339", c.To)
	}
}

func TestDiff_OptionalEndDate(t *testing.T) {
	end := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	old := &models.Task{}
	updated := *old
	updated.EndDate = &end

	changes := Diff(old, &updated)
	if len(changes) != 1 {
		t.Fatalf("Diff produced %d changes, want 1", len(changes))
	}
	if changes[0].Field != "endDate" || changes[0].From != "" || changes[0].To != "2026-03-01T00:00:00Z" {
		t.Errorf("endDate change = %+v", changes[0])
	}
}

func TestDiff_AssigneeIsReferenceChange(t *testing.T) {
	old := &models.Task{Assignee: "u1"}
	updated := *old
	updated.Assignee = "u2"

	changes := Diff(old, &updated)
	if len(changes) != 1 {
		t.Fatalf("Diff produced %d changes, want 1", len(changes))
	}
	if changes[0].Kind != models.ChangeReference {
		t.Errorf("assignee change kind = %s, want %s", changes[0].Kind, models.ChangeReference)
	}
}

func TestDiff_IdenticalTasksProduceNoChanges(t *testing.T) {
	task := &models.Task{Title: "same", Status: models.StatusOpen}
	if changes := Diff(task, task); len(changes) != 0 {
		t.Errorf("Diff of identical tasks = %+v, want none", changes)
	}
}

func TestRecord(t *testing.T) {
	rec := Record("t1", "u1", models.ActionCreate, nil)

	if rec.ID == "" {
		t.Error("record should get an id")
	}
	if rec.TaskID != "t1" || rec.ActorID != "u1" || rec.Action != models.ActionCreate {
		t.Errorf("record = %+v", rec)
	}
	if rec.Timestamp.IsZero() {
		t.Error("record should be timestamped")
	}
	if len(rec.Changes) != 0 {
		t.Error("create record carries no changes")
	}
}
