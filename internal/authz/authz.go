// Package authz evaluates what a caller may do inside a project, based on
// the project's member list. All checks are pure functions over loaded
// documents; nothing here touches storage.
package authz

import (
	"github.com/calm-green-heron/stagewise/internal/models"
)

// Evaluator answers role predicates for one caller against one project.
type Evaluator struct {
	project *models.Project
	userID  string
}

// ForProject creates an evaluator for the given caller and project.
func ForProject(project *models.Project, userID string) *Evaluator {
	return &Evaluator{project: project, userID: userID}
}

func (e *Evaluator) role() (models.MemberRole, bool) {
	if e.project == nil {
		return "", false
	}
	m, ok := e.project.MemberOf(e.userID)
	if !ok {
		return "", false
	}
	return m.Role, true
}

// IsMember reports whether the caller belongs to the project at all.
func (e *Evaluator) IsMember() bool {
	_, ok := e.role()
	return ok
}

// IsManager reports whether the caller holds the manager role.
func (e *Evaluator) IsManager() bool {
	r, ok := e.role()
	return ok && r == models.RoleManager
}

// IsLeader reports whether the caller holds the leader role.
func (e *Evaluator) IsLeader() bool {
	r, ok := e.role()
	return ok && r == models.RoleLeader
}

// IsSupervisor reports whether the caller holds the supervisor role.
func (e *Evaluator) IsSupervisor() bool {
	r, ok := e.role()
	return ok && r == models.RoleSupervisor
}

// IsPrivileged reports whether the caller is a manager or leader. Privileged
// members may mutate project metadata, stages, reviews, and protected task
// fields, and may override the task status state machine.
func (e *Evaluator) IsPrivileged() bool {
	r, ok := e.role()
	return ok && (r == models.RoleManager || r == models.RoleLeader)
}

// CanManageStages reports whether the caller may create, update, or delete
// stages of the project.
func (e *Evaluator) CanManageStages() bool {
	return e.IsPrivileged()
}

// CanEditTaskFields reports whether the caller may change a task's protected
// fields (title, priority, type, dates, description, assignee). The policy
// is manager OR leader OR the task's original creator.
func (e *Evaluator) CanEditTaskFields(task *models.Task) bool {
	if e.IsPrivileged() {
		return true
	}
	return task != nil && task.CreatedBy == e.userID && e.IsMember()
}

// CanRemoveMember reports whether the caller may remove the given member.
// Removing a manager requires another manager; a leader may remove anyone
// except a manager; other roles may remove nobody.
func (e *Evaluator) CanRemoveMember(target models.Member) bool {
	if e.IsManager() {
		return true
	}
	if e.IsLeader() {
		return target.Role != models.RoleManager
	}
	return false
}

// CanAssignRole reports whether assigning the given role to a member would
// be allowed. The caller must be privileged, and the leader cap applies:
// at most models.MaxLeaders members may hold the leader role. The cap is
// checked at assignment time only, never retroactively.
func (e *Evaluator) CanAssignRole(targetUserID string, role models.MemberRole) bool {
	if !e.IsPrivileged() {
		return false
	}
	if role != models.RoleLeader {
		return true
	}
	count := e.project.LeaderCount()
	if existing, ok := e.project.MemberOf(targetUserID); ok && existing.Role == models.RoleLeader {
		// Re-assigning leader to an existing leader does not grow the count.
		count--
	}
	return count < models.MaxLeaders
}
