package models

import (
	"time"
)

// Comment is a remark on a task. Comments belong to exactly one task and
// are deleted together with it.
type Comment struct {
	ID          string    `bson:"_id" json:"id"`
	TaskID      string    `bson:"task_id" json:"taskId"`
	Content     string    `bson:"content" json:"content"`
	CreatedDate time.Time `bson:"created_date" json:"createdDate"`
	CommenterID string    `bson:"commenter_id" json:"commenterId"`
}
