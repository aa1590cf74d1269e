// Package activity builds the immutable audit records written alongside
// every task mutation.
package activity

import (
	"time"

	"github.com/google/uuid"

	"github.com/calm-green-heron/stagewise/internal/models"
)

// Record constructs an immutable audit entry. The caller supplies only the
// changes that actually happened; an entry is still valid with no changes
// (e.g. the create action).
func Record(taskID, actorID string, action models.ActionType, changes []models.FieldChange) *models.Activity {
	return &models.Activity{
		ID:        uuid.New().String(),
		TaskID:    taskID,
		ActorID:   actorID,
		Timestamp: time.Now(),
		Action:    action,
		Changes:   changes,
	}
}

// ClassifyAction derives the semantic action type from a status change:
// complete when the status became done, cancel when it became cancel,
// otherwise a plain update.
func ClassifyAction(oldStatus, newStatus models.TaskStatus) models.ActionType {
	if oldStatus == newStatus {
		return models.ActionUpdate
	}
	switch newStatus {
	case models.StatusDone:
		return models.ActionComplete
	case models.StatusCancel:
		return models.ActionCancel
	default:
		return models.ActionUpdate
	}
}

// Diff computes the field-level changes between two snapshots of a task,
// capturing only fields whose values differ. Immutable fields (created
// date, creator) are never diffed.
func Diff(old, new *models.Task) []models.FieldChange {
	var changes []models.FieldChange

	addString := func(field, from, to string) {
		if from != to {
			changes = append(changes, models.FieldChange{
				Field: field, Kind: models.ChangeString, From: from, To: to,
			})
		}
	}
	addEnum := func(field, from, to string) {
		if from != to {
			changes = append(changes, models.FieldChange{
				Field: field, Kind: models.ChangeEnum, From: from, To: to,
			})
		}
	}
	addDate := func(field string, from, to time.Time) {
		if !from.Equal(to) {
			changes = append(changes, models.FieldChange{
				Field: field, Kind: models.ChangeDate,
				From: formatDate(from), To: formatDate(to),
			})
		}
	}

	addString("title", old.Title, new.Title)
	addString("description", old.Description, new.Description)
	addEnum("type", string(old.Type), string(new.Type))
	addEnum("priority", string(old.Priority), string(new.Priority))
	addEnum("status", string(old.Status), string(new.Status))
	addDate("startDate", old.StartDate, new.StartDate)
	addDate("deadline", old.Deadline, new.Deadline)

	if !equalOptionalDate(old.EndDate, new.EndDate) {
		changes = append(changes, models.FieldChange{
			Field: "endDate", Kind: models.ChangeDate,
			From: formatOptionalDate(old.EndDate), To: formatOptionalDate(new.EndDate),
		})
	}
	if old.Assignee != new.Assignee {
		changes = append(changes, models.FieldChange{
			Field: "assignee", Kind: models.ChangeReference,
			From: old.Assignee, To: new.Assignee,
		})
	}

	return changes
}

func equalOptionalDate(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func formatDate(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatOptionalDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatDate(*t)
}
