package models

import (
	"time"
)

// TaskStatus is a task's position in the workflow state machine.
type TaskStatus string

const (
	StatusOpen       TaskStatus = "open"
	StatusInProgress TaskStatus = "inprogress"
	StatusReview     TaskStatus = "review"
	StatusReopen     TaskStatus = "reopen"
	StatusDone       TaskStatus = "done"
	StatusCancel     TaskStatus = "cancel"
)

// ParseTaskStatus validates a task status string.
func ParseTaskStatus(s string) (TaskStatus, bool) {
	switch TaskStatus(s) {
	case StatusOpen, StatusInProgress, StatusReview, StatusReopen, StatusDone, StatusCancel:
		return TaskStatus(s), true
	}
	return "", false
}

// IsTerminal reports whether the status ends the normal workflow. Tasks in a
// terminal status are not carried forward when a new stage is created.
func (s TaskStatus) IsTerminal() bool {
	return s == StatusDone || s == StatusCancel
}

// TaskPriority orders tasks by urgency.
type TaskPriority string

const (
	PriorityHighest TaskPriority = "highest"
	PriorityHigh    TaskPriority = "high"
	PriorityMedium  TaskPriority = "medium"
	PriorityLow     TaskPriority = "low"
	PriorityLowest  TaskPriority = "lowest"
)

// ParseTaskPriority validates a task priority string.
func ParseTaskPriority(s string) (TaskPriority, bool) {
	switch TaskPriority(s) {
	case PriorityHighest, PriorityHigh, PriorityMedium, PriorityLow, PriorityLowest:
		return TaskPriority(s), true
	}
	return "", false
}

// TaskType distinguishes planned work from defects.
type TaskType string

const (
	TypeAssignment TaskType = "assignment"
	TypeIssue      TaskType = "issue"
)

// ParseTaskType validates a task type string.
func ParseTaskType(s string) (TaskType, bool) {
	switch TaskType(s) {
	case TypeAssignment, TypeIssue:
		return TaskType(s), true
	}
	return "", false
}

// Task is a unit of work inside a stage. ActivityIDs is kept newest-first:
// every mutation prepends its audit record so index 0 is always the latest.
type Task struct {
	ID          string       `bson:"_id" json:"id"`
	Title       string       `bson:"title" json:"title"`
	Type        TaskType     `bson:"type" json:"type"`
	Priority    TaskPriority `bson:"priority" json:"priority"`
	CreatedDate time.Time    `bson:"created_date" json:"createdDate"` // immutable
	StartDate   time.Time    `bson:"start_date" json:"startDate"`
	Deadline    time.Time    `bson:"deadline" json:"deadline"`
	EndDate     *time.Time   `bson:"end_date,omitempty" json:"endDate,omitempty"`
	Description string       `bson:"description,omitempty" json:"description,omitempty"`
	Status      TaskStatus   `bson:"status" json:"status"`
	CreatedBy   string       `bson:"created_by" json:"createdBy"` // immutable
	Assignee    string       `bson:"assignee,omitempty" json:"assignee,omitempty"`
	CommentIDs  []string     `bson:"comments" json:"comments,omitempty"`
	ActivityIDs []string     `bson:"activities" json:"activities,omitempty"` // newest first
}

// NewTask creates a task with defaults applied: type assignment, status open.
func NewTask(id, title string, priority TaskPriority, start, deadline time.Time, creatorID string) *Task {
	return &Task{
		ID:          id,
		Title:       title,
		Type:        TypeAssignment,
		Priority:    priority,
		CreatedDate: time.Now(),
		StartDate:   start,
		Deadline:    deadline,
		Status:      StatusOpen,
		CreatedBy:   creatorID,
	}
}
