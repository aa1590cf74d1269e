package projects

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/calm-green-heron/stagewise/internal/models"
)

// MemberResponse is one row of the member listing: the membership record
// with the user's public profile joined in.
type MemberResponse struct {
	User        *models.PublicUser `json:"user"`
	Role        models.MemberRole  `json:"role"`
	JoiningDate time.Time          `json:"joiningDate"`
}

type AddMemberRequest struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

// ListMembers returns the project's members with public user profiles.
func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	project, _ := h.loadProject(w, r)
	if project == nil {
		return
	}

	ctx := r.Context()
	resp := make([]MemberResponse, 0, len(project.Members))
	for userID, m := range project.Members {
		user, err := h.storage.Users().GetByID(ctx, userID)
		if err != nil {
			log.Printf("list members: get user %s: %v", userID, err)
			jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
			return
		}
		row := MemberResponse{Role: m.Role, JoiningDate: m.JoiningDate}
		if user != nil {
			pub := user.Public()
			row.User = &pub
		} else {
			// Deleted account; keep the membership row with just the id.
			row.User = &models.PublicUser{ID: userID}
		}
		resp = append(resp, row)
	}

	jsonOK(w, resp)
}

// AddMember enrolls a user or changes an existing member's role. Managers
// and leaders only; the leader cap applies at assignment time.
func (h *Handler) AddMember(w http.ResponseWriter, r *http.Request) {
	project, eval := h.loadProject(w, r)
	if project == nil {
		return
	}

	var req AddMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "userId required")
		return
	}
	role, ok := models.ParseMemberRole(req.Role)
	if !ok {
		jsonError(w, http.StatusBadRequest, errCodeValidationFailed, "invalid member role")
		return
	}

	if !eval.CanAssignRole(req.UserID, role) {
		if !eval.IsPrivileged() {
			jsonUnauthorized(w)
			return
		}
		jsonError(w, http.StatusConflict, errCodeConflict, "leader limit reached")
		return
	}

	ctx := r.Context()
	user, err := h.storage.Users().GetByID(ctx, req.UserID)
	if err != nil {
		log.Printf("add member: get user %s: %v", req.UserID, err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}
	if user == nil {
		jsonError(w, http.StatusNotFound, errCodeNotFound, "user not found")
		return
	}

	member, exists := project.Members[req.UserID]
	if exists {
		member.Role = role
	} else {
		member = models.Member{UserID: req.UserID, Role: role, JoiningDate: time.Now()}
	}
	project.Members[req.UserID] = member

	if err := h.storage.Projects().Update(ctx, project); err != nil {
		log.Printf("add member: update project %s: %v", project.ID, err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}

	log.Printf("project %s: member %s set to role %s", project.Code, req.UserID, role)
	pub := user.Public()
	jsonOK(w, MemberResponse{User: &pub, Role: member.Role, JoiningDate: member.JoiningDate})
}

// RemoveMember removes a member from the project. A manager may remove
// anyone; a leader anyone except a manager. Removal is idempotent.
func (h *Handler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	project, eval := h.loadProject(w, r)
	if project == nil {
		return
	}

	targetID := chi.URLParam(r, "userID")
	target, exists := project.Members[targetID]
	if !exists {
		jsonNoContent(w)
		return
	}

	if !eval.CanRemoveMember(target) {
		jsonUnauthorized(w)
		return
	}

	delete(project.Members, targetID)

	if err := h.storage.Projects().Update(r.Context(), project); err != nil {
		log.Printf("remove member: update project %s: %v", project.ID, err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}

	log.Printf("project %s: member %s removed", project.Code, targetID)
	jsonNoContent(w)
}
