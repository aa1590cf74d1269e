package models

import (
	"time"
)

// Review is a reviewer's note attached to a stage. Only the authoring
// reviewer may edit it; any project member may delete it.
type Review struct {
	ID         string    `bson:"_id" json:"id"`
	Content    string    `bson:"content" json:"content"`
	ReviewerID string    `bson:"reviewer_id" json:"reviewerId"`
	CreatedAt  time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt  time.Time `bson:"updated_at" json:"updatedAt"`
}

// Stage is a time-boxed phase of a project. Ordering among siblings is
// carried by the explicit Sequence field (highest = newest) rather than by
// array position, so deleting a middle stage cannot reorder the rest.
type Stage struct {
	ID              string     `bson:"_id" json:"id"`
	ProjectID       string     `bson:"project_id" json:"projectId"`
	Name            string     `bson:"name" json:"name"`
	Sequence        int        `bson:"sequence" json:"sequence"`
	StartDate       time.Time  `bson:"start_date" json:"startDate"`
	EndDateExpected time.Time  `bson:"end_date_expected" json:"endDateExpected"`
	EndDateActual   *time.Time `bson:"end_date_actual,omitempty" json:"endDateActual,omitempty"`
	TaskIDs         []string   `bson:"tasks" json:"tasks,omitempty"`
	Reviews         []Review   `bson:"reviews" json:"reviews,omitempty"`
}

// EffectiveEnd is the actual end date if recorded, else the expected end
// date. The zero time acts as the "no lower bound" sentinel for the first
// stage of an empty project.
func (s *Stage) EffectiveEnd() time.Time {
	if s == nil {
		return time.Time{}
	}
	if s.EndDateActual != nil {
		return *s.EndDateActual
	}
	return s.EndDateExpected
}
