package workflow

import (
	"errors"
	"time"

	"github.com/calm-green-heron/stagewise/internal/models"
)

// ErrInvalidDateRange is returned when a stage or task date change violates
// the strict ordering invariants. Violating inputs are always rejected,
// never clamped.
var ErrInvalidDateRange = errors.New("invalid date range")

// ValidateNewStageDates checks the dates of a stage about to be created.
// newest is the project's current newest stage, or nil for an empty project
// (no lower bound). The new start must be strictly after the newest stage's
// effective end, and the expected end strictly after the new start.
func ValidateNewStageDates(newStart, newEnd time.Time, newest *models.Stage) error {
	if !newStart.After(newest.EffectiveEnd()) {
		return ErrInvalidDateRange
	}
	if !newEnd.After(newStart) {
		return ErrInvalidDateRange
	}
	return nil
}

// ValidateStageStart checks a start-date change against the next-older
// sibling (nil when the stage is the oldest). The new start must be strictly
// after the older sibling's effective end.
func ValidateStageStart(newStart time.Time, older *models.Stage) error {
	if !newStart.After(older.EffectiveEnd()) {
		return ErrInvalidDateRange
	}
	return nil
}

// ValidateStageEnd checks an expected or actual end-date change. The new end
// must be strictly after the stage's own start, and strictly before the
// next-newer sibling's start when one exists.
func ValidateStageEnd(newEnd time.Time, stage *models.Stage, newer *models.Stage) error {
	if !newEnd.After(stage.StartDate) {
		return ErrInvalidDateRange
	}
	if newer != nil && !newEnd.Before(newer.StartDate) {
		return ErrInvalidDateRange
	}
	return nil
}

// ValidateTaskDates checks a task's date invariants: deadline and end date
// (when set) must each be strictly after the start date.
func ValidateTaskDates(start, deadline time.Time, end *time.Time) error {
	if !deadline.After(start) {
		return ErrInvalidDateRange
	}
	if end != nil && !end.After(start) {
		return ErrInvalidDateRange
	}
	return nil
}

// CarryForward splits a stage's tasks into those that stay (terminal
// statuses) and those that migrate into a newly created stage. The returned
// slices preserve the input order.
func CarryForward(tasks []*models.Task) (stay, move []*models.Task) {
	for _, t := range tasks {
		if t.Status.IsTerminal() {
			stay = append(stay, t)
		} else {
			move = append(move, t)
		}
	}
	return stay, move
}
