// Package projects implements the project endpoints: CRUD, search, member
// management, and the per-project stage listing.
package projects

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/calm-green-heron/stagewise/internal/api/middleware"
	"github.com/calm-green-heron/stagewise/internal/authz"
	"github.com/calm-green-heron/stagewise/internal/models"
	"github.com/calm-green-heron/stagewise/internal/storage"
)

// Response helpers (local to avoid import cycle with api package)
type errorResponse struct {
	Error errorBody `json:"error"`
}
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
type dataResponse struct {
	Data any `json:"data"`
}

const (
	errCodeBadRequest       = "BAD_REQUEST"
	errCodeValidationFailed = "VALIDATION_FAILED"
	errCodeUnauthorized     = "UNAUTHORIZED"
	errCodeNotFound         = "NOT_FOUND"
	errCodeConflict         = "CONFLICT"
	errCodeInternalError    = "INTERNAL_ERROR"
)

func jsonError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: errorBody{Code: code, Message: message}})
}

func jsonOK(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(dataResponse{Data: data})
}

func jsonCreated(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(dataResponse{Data: data})
}

func jsonNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

func jsonUnauthorized(w http.ResponseWriter) {
	jsonError(w, http.StatusUnauthorized, errCodeUnauthorized, "Unauthorized")
}

type Handler struct {
	storage storage.Storage
}

func NewHandler(store storage.Storage) *Handler {
	return &Handler{storage: store}
}

// Request types
type CreateRequest struct {
	Name             string    `json:"name"`
	Description      string    `json:"description"`
	StartDate        time.Time `json:"startDate"`
	EstimatedEndDate time.Time `json:"estimatedEndDate"`
}

type UpdateRequest struct {
	Name             *string    `json:"name,omitempty"`
	Description      *string    `json:"description,omitempty"`
	Status           *string    `json:"status,omitempty"`
	StartDate        *time.Time `json:"startDate,omitempty"`
	EstimatedEndDate *time.Time `json:"estimatedEndDate,omitempty"`
}

// loadProject fetches a project and verifies the caller is a member. On any
// failure it has already written the response and returns nil.
func (h *Handler) loadProject(w http.ResponseWriter, r *http.Request) (*models.Project, *authz.Evaluator) {
	ctx := r.Context()
	projectID := chi.URLParam(r, "projectID")
	userID := middleware.GetUserID(ctx)

	project, err := h.storage.Projects().GetByID(ctx, projectID)
	if err != nil {
		log.Printf("get project %s error: %v", projectID, err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return nil, nil
	}
	if project == nil {
		jsonError(w, http.StatusNotFound, errCodeNotFound, "project not found")
		return nil, nil
	}

	eval := authz.ForProject(project, userID)
	if !eval.IsMember() {
		jsonUnauthorized(w)
		return nil, nil
	}
	return project, eval
}

// List returns the caller's projects, newest first.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	projects, err := h.storage.Projects().ListForUser(ctx, userID)
	if err != nil {
		log.Printf("list projects error: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}

	jsonOK(w, projects)
}

// Search filters the caller's projects by name substring or by status.
// Exactly one of the two query parameters must be present.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	name := r.URL.Query().Get("name")
	statusStr := r.URL.Query().Get("status")

	if (name == "") == (statusStr == "") {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "Query not found")
		return
	}

	var (
		projects []*models.Project
		err      error
	)
	if name != "" {
		projects, err = h.storage.Projects().SearchByName(ctx, userID, name)
	} else {
		status, ok := models.ParseProjectStatus(statusStr)
		if !ok {
			jsonError(w, http.StatusBadRequest, errCodeValidationFailed, "invalid project status")
			return
		}
		projects, err = h.storage.Projects().ListByStatus(ctx, userID, status)
	}
	if err != nil {
		log.Printf("search projects error: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}

	jsonOK(w, projects)
}

// Create creates a new project with the caller enrolled as manager.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid request body")
		return
	}

	if err := ValidateName(req.Name); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeValidationFailed, err.Error())
		return
	}
	if err := ValidateDates(req.StartDate, req.EstimatedEndDate); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeValidationFailed, err.Error())
		return
	}

	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	project := models.NewProject(uuid.New().String(), req.Name, req.Description, req.StartDate, req.EstimatedEndDate, userID)

	if err := h.storage.Projects().Create(ctx, project); err != nil {
		if storage.IsDuplicateKey(err) {
			// Code collision, vanishingly rare; ask the client to retry.
			jsonError(w, http.StatusConflict, errCodeConflict, "project code collision, retry")
			return
		}
		log.Printf("create project error: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}

	log.Printf("project created: %s (%s) by %s", project.Name, project.Code, userID)
	jsonCreated(w, project)
}

// Get returns one project. Members only.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	project, _ := h.loadProject(w, r)
	if project == nil {
		return
	}
	jsonOK(w, project)
}

// Update modifies project metadata. Managers and leaders only. The project
// code is immutable and silently ignored if sent.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	project, eval := h.loadProject(w, r)
	if project == nil {
		return
	}
	if !eval.IsPrivileged() {
		jsonUnauthorized(w)
		return
	}

	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid request body")
		return
	}

	if req.Name != nil {
		if err := ValidateName(*req.Name); err != nil {
			jsonError(w, http.StatusBadRequest, errCodeValidationFailed, err.Error())
			return
		}
		project.Name = *req.Name
	}
	if req.Description != nil {
		project.Description = *req.Description
	}
	if req.Status != nil {
		status, ok := models.ParseProjectStatus(*req.Status)
		if !ok {
			jsonError(w, http.StatusBadRequest, errCodeValidationFailed, "invalid project status")
			return
		}
		project.Status = status
	}
	if req.StartDate != nil {
		project.StartDate = *req.StartDate
	}
	if req.EstimatedEndDate != nil {
		project.EstimatedEndDate = *req.EstimatedEndDate
	}
	if err := ValidateDates(project.StartDate, project.EstimatedEndDate); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeValidationFailed, err.Error())
		return
	}

	ctx := r.Context()
	if err := h.storage.Projects().Update(ctx, project); err != nil {
		log.Printf("update project %s error: %v", project.ID, err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}

	jsonOK(w, project)
}

// Delete removes a project and everything under it: stages, tasks, comments,
// and audit records. Managers only.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	project, eval := h.loadProject(w, r)
	if project == nil {
		return
	}
	if !eval.IsManager() {
		jsonUnauthorized(w)
		return
	}

	ctx := r.Context()

	stages, err := h.storage.Stages().GetByIDs(ctx, project.StageIDs)
	if err != nil {
		log.Printf("delete project %s: load stages: %v", project.ID, err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}
	for _, stage := range stages {
		for _, taskID := range stage.TaskIDs {
			if _, err := h.storage.Comments().DeleteByTask(ctx, taskID); err != nil {
				log.Printf("delete project %s: cascade comments for task %s: %v", project.ID, taskID, err)
			}
			if _, err := h.storage.Activities().DeleteByTask(ctx, taskID); err != nil {
				log.Printf("delete project %s: cascade activities for task %s: %v", project.ID, taskID, err)
			}
			if err := h.storage.Tasks().Delete(ctx, taskID); err != nil {
				log.Printf("delete project %s: cascade task %s: %v", project.ID, taskID, err)
			}
		}
		if err := h.storage.Stages().Delete(ctx, stage.ID); err != nil {
			log.Printf("delete project %s: cascade stage %s: %v", project.ID, stage.ID, err)
		}
	}

	if err := h.storage.Projects().Delete(ctx, project.ID); err != nil {
		log.Printf("delete project %s error: %v", project.ID, err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}

	log.Printf("project deleted: %s (%s)", project.Name, project.Code)
	jsonNoContent(w)
}

// ListStages returns the project's stages, newest first.
func (h *Handler) ListStages(w http.ResponseWriter, r *http.Request) {
	project, _ := h.loadProject(w, r)
	if project == nil {
		return
	}

	stages, err := h.storage.Stages().GetByIDs(r.Context(), project.StageIDs)
	if err != nil {
		log.Printf("list stages for project %s error: %v", project.ID, err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}

	if stages == nil {
		stages = []*models.Stage{}
	}
	jsonOK(w, stages)
}
