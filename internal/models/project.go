package models

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// ProjectStatus is the lifecycle state of a project.
type ProjectStatus string

const (
	ProjectPreparing ProjectStatus = "preparing"
	ProjectOngoing   ProjectStatus = "ongoing"
	ProjectSuspended ProjectStatus = "suspended"
	ProjectCompleted ProjectStatus = "completed"
)

// ParseProjectStatus validates a project status string.
func ParseProjectStatus(s string) (ProjectStatus, bool) {
	switch ProjectStatus(s) {
	case ProjectPreparing, ProjectOngoing, ProjectSuspended, ProjectCompleted:
		return ProjectStatus(s), true
	}
	return "", false
}

// MemberRole scopes what a member may do inside a project.
type MemberRole string

const (
	RoleManager    MemberRole = "manager"
	RoleLeader     MemberRole = "leader"
	RoleMember     MemberRole = "member"
	RoleSupervisor MemberRole = "supervisor"
)

// MaxLeaders is the cap on members holding the leader role per project.
const MaxLeaders = 3

// ParseMemberRole validates a member role string.
func ParseMemberRole(s string) (MemberRole, bool) {
	switch MemberRole(s) {
	case RoleManager, RoleLeader, RoleMember, RoleSupervisor:
		return MemberRole(s), true
	}
	return "", false
}

// Member is a user's membership record inside a project.
type Member struct {
	UserID      string     `bson:"user_id" json:"userId"`
	Role        MemberRole `bson:"role" json:"role"`
	JoiningDate time.Time  `bson:"joining_date" json:"joiningDate"`
}

// Project is the unit of collaboration. Members are keyed by user id so
// add/remove/update are idempotent map operations instead of array scans.
type Project struct {
	ID               string            `bson:"_id" json:"id"`
	Code             string            `bson:"code" json:"code"` // immutable after creation
	Name             string            `bson:"name" json:"name"`
	CreatedDate      time.Time         `bson:"created_date" json:"createdDate"`
	StartDate        time.Time         `bson:"start_date" json:"startDate"`
	EstimatedEndDate time.Time         `bson:"estimated_end_date" json:"estimatedEndDate"`
	Description      string            `bson:"description,omitempty" json:"description,omitempty"`
	Status           ProjectStatus     `bson:"status" json:"status"`
	Members          map[string]Member `bson:"members" json:"members,omitempty"`
	StageIDs         []string          `bson:"stages" json:"stages,omitempty"` // newest first
}

// GenerateProjectCode returns a unique human-readable code of the form
// prj-<10 hex chars>. Codes are generated once and never change.
func GenerateProjectCode() string {
	buf := make([]byte, 5)
	rand.Read(buf)
	return "prj-" + hex.EncodeToString(buf)
}

// NewProject creates a project in the preparing state with the creator
// enrolled as manager.
func NewProject(id, name, description string, start, estimatedEnd time.Time, creatorID string) *Project {
	now := time.Now()
	return &Project{
		ID:               id,
		Code:             GenerateProjectCode(),
		Name:             name,
		CreatedDate:      now,
		StartDate:        start,
		EstimatedEndDate: estimatedEnd,
		Description:      description,
		Status:           ProjectPreparing,
		Members: map[string]Member{
			creatorID: {UserID: creatorID, Role: RoleManager, JoiningDate: now},
		},
	}
}

// MemberOf returns the membership record for a user, if any.
func (p *Project) MemberOf(userID string) (Member, bool) {
	m, ok := p.Members[userID]
	return m, ok
}

// LeaderCount returns the number of members holding the leader role.
func (p *Project) LeaderCount() int {
	n := 0
	for _, m := range p.Members {
		if m.Role == RoleLeader {
			n++
		}
	}
	return n
}
