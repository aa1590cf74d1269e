// Package workflow holds the pure validation rules for stage ordering and
// the task status state machine.
package workflow

import (
	"github.com/calm-green-heron/stagewise/internal/models"
)

// transitions is the allowed-transition table for non-privileged members.
var transitions = map[models.TaskStatus][]models.TaskStatus{
	models.StatusOpen:       {models.StatusInProgress, models.StatusCancel},
	models.StatusInProgress: {models.StatusReview, models.StatusCancel},
	models.StatusReview:     {models.StatusReopen, models.StatusDone, models.StatusCancel},
	models.StatusReopen:     {models.StatusInProgress, models.StatusCancel},
	models.StatusDone:       {},
	models.StatusCancel:     {},
}

// CanTransition reports whether a non-privileged project member may move a
// task from one status to another.
func CanTransition(from, to models.TaskStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// NextStatus resolves a requested status change. Privileged callers
// (manager or leader) always get the requested status. For everyone else an
// illegal transition is a silent no-op: the current status is returned
// unchanged rather than an error.
func NextStatus(current, requested models.TaskStatus, privileged bool) models.TaskStatus {
	if requested == current {
		return current
	}
	if privileged {
		return requested
	}
	if CanTransition(current, requested) {
		return requested
	}
	return current
}
