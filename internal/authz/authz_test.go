package authz

import (
	"testing"
	"time"

	"github.com/calm-green-heron/stagewise/internal/models"
)

func project(members map[string]models.MemberRole) *models.Project {
	p := &models.Project{
		ID:      "p1",
		Members: make(map[string]models.Member),
	}
	for id, role := range members {
		p.Members[id] = models.Member{UserID: id, Role: role, JoiningDate: time.Now()}
	}
	return p
}

func TestRolePredicates(t *testing.T) {
	p := project(map[string]models.MemberRole{
		"mgr": models.RoleManager,
		"ldr": models.RoleLeader,
		"mbr": models.RoleMember,
		"sup": models.RoleSupervisor,
	})

	tests := []struct {
		userID     string
		member     bool
		privileged bool
	}{
		{"mgr", true, true},
		{"ldr", true, true},
		{"mbr", true, false},
		{"sup", true, false},
		{"outsider", false, false},
	}

	for _, tt := range tests {
		e := ForProject(p, tt.userID)
		if got := e.IsMember(); got != tt.member {
			t.Errorf("IsMember(%s) = %v, want %v", tt.userID, got, tt.member)
		}
		if got := e.IsPrivileged(); got != tt.privileged {
			t.Errorf("IsPrivileged(%s) = %v, want %v", tt.userID, got, tt.privileged)
		}
		if got := e.CanManageStages(); got != tt.privileged {
			t.Errorf("CanManageStages(%s) = %v, want %v", tt.userID, got, tt.privileged)
		}
	}
}

func TestCanEditTaskFields(t *testing.T) {
	p := project(map[string]models.MemberRole{
		"mgr":     models.RoleManager,
		"creator": models.RoleMember,
		"other":   models.RoleMember,
	})
	task := &models.Task{ID: "t1", CreatedBy: "creator"}

	if !ForProject(p, "mgr").CanEditTaskFields(task) {
		t.Error("manager should edit task fields")
	}
	if !ForProject(p, "creator").CanEditTaskFields(task) {
		t.Error("creator should edit own task fields")
	}
	if ForProject(p, "other").CanEditTaskFields(task) {
		t.Error("plain member should not edit another's task fields")
	}
	if ForProject(p, "outsider").CanEditTaskFields(task) {
		t.Error("non-member should not edit task fields")
	}
}

func TestCanEditTaskFields_CreatorMustStillBeMember(t *testing.T) {
	p := project(map[string]models.MemberRole{"mgr": models.RoleManager})
	task := &models.Task{ID: "t1", CreatedBy: "gone"}

	if ForProject(p, "gone").CanEditTaskFields(task) {
		t.Error("removed creator should not edit task fields")
	}
}

func TestCanRemoveMember(t *testing.T) {
	p := project(map[string]models.MemberRole{
		"mgr":  models.RoleManager,
		"mgr2": models.RoleManager,
		"ldr":  models.RoleLeader,
		"mbr":  models.RoleMember,
	})

	mgr := p.Members["mgr2"]
	ldr := p.Members["ldr"]
	mbr := p.Members["mbr"]

	if !ForProject(p, "mgr").CanRemoveMember(mgr) {
		t.Error("manager should remove another manager")
	}
	if !ForProject(p, "mgr").CanRemoveMember(mbr) {
		t.Error("manager should remove a member")
	}
	if ForProject(p, "ldr").CanRemoveMember(mgr) {
		t.Error("leader should not remove a manager")
	}
	if !ForProject(p, "ldr").CanRemoveMember(ldr) {
		t.Error("leader should remove a leader")
	}
	if !ForProject(p, "ldr").CanRemoveMember(mbr) {
		t.Error("leader should remove a member")
	}
	if ForProject(p, "mbr").CanRemoveMember(mbr) {
		t.Error("plain member should remove nobody")
	}
}

func TestCanAssignRole_LeaderCap(t *testing.T) {
	p := project(map[string]models.MemberRole{
		"mgr": models.RoleManager,
		"l1":  models.RoleLeader,
		"l2":  models.RoleLeader,
		"l3":  models.RoleLeader,
		"mbr": models.RoleMember,
	})
	e := ForProject(p, "mgr")

	if e.CanAssignRole("mbr", models.RoleLeader) {
		t.Error("fourth leader should be rejected")
	}
	if !e.CanAssignRole("mbr", models.RoleMember) {
		t.Error("non-leader roles are not capped")
	}
	if !e.CanAssignRole("mbr", models.RoleSupervisor) {
		t.Error("supervisor role is not capped")
	}
	// Re-assigning leader to an existing leader does not grow the count.
	if !e.CanAssignRole("l1", models.RoleLeader) {
		t.Error("re-assigning leader to a current leader should pass")
	}
}

func TestCanAssignRole_BelowCap(t *testing.T) {
	p := project(map[string]models.MemberRole{
		"mgr": models.RoleManager,
		"l1":  models.RoleLeader,
		"mbr": models.RoleMember,
	})

	if !ForProject(p, "mgr").CanAssignRole("mbr", models.RoleLeader) {
		t.Error("second leader should be allowed")
	}
	if ForProject(p, "mbr").CanAssignRole("mbr", models.RoleMember) {
		t.Error("plain member should not assign roles")
	}
	if ForProject(p, "outsider").CanAssignRole("mbr", models.RoleMember) {
		t.Error("non-member should not assign roles")
	}
}
