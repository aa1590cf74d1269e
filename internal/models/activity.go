package models

import (
	"time"
)

// ActionType classifies what a recorded mutation did to its task.
type ActionType string

const (
	ActionCreate   ActionType = "create"
	ActionUpdate   ActionType = "update"
	ActionComplete ActionType = "complete" // status became done
	ActionCancel   ActionType = "cancel"   // status became cancel
)

// ChangeKind tags a FieldChange with the type of the changed field so the
// serialized form is statically checkable instead of a free-form document.
type ChangeKind string

const (
	ChangeString    ChangeKind = "string"
	ChangeDate      ChangeKind = "date"
	ChangeEnum      ChangeKind = "enum"
	ChangeReference ChangeKind = "reference"
)

// FieldChange is one before/after diff entry in an activity record.
type FieldChange struct {
	Field string     `bson:"field" json:"field"`
	Kind  ChangeKind `bson:"kind" json:"kind"`
	From  string     `bson:"from,omitempty" json:"from,omitempty"`
	To    string     `bson:"to,omitempty" json:"to,omitempty"`
}

// Activity is an immutable audit record for one task mutation. Records are
// never edited or individually deleted; they only disappear when the owning
// task is deleted as a whole.
type Activity struct {
	ID        string        `bson:"_id" json:"id"`
	TaskID    string        `bson:"task_id" json:"taskId"`
	ActorID   string        `bson:"actor_id" json:"actorId"`
	Timestamp time.Time     `bson:"timestamp" json:"timestamp"` // immutable
	Action    ActionType    `bson:"action" json:"action"`
	Changes   []FieldChange `bson:"changes" json:"changes"`
}
