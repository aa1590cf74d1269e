// Package tasks implements task endpoints: creation, guarded field updates
// with audit records, the workflow status machine, cross-project task views,
// and cascading deletion.
package tasks

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/calm-green-heron/stagewise/internal/activity"
	"github.com/calm-green-heron/stagewise/internal/api/middleware"
	"github.com/calm-green-heron/stagewise/internal/authz"
	"github.com/calm-green-heron/stagewise/internal/metrics"
	"github.com/calm-green-heron/stagewise/internal/models"
	"github.com/calm-green-heron/stagewise/internal/storage"
	"github.com/calm-green-heron/stagewise/internal/workflow"
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
	Title       string     `json:"title"`
	Type        string     `json:"type,omitempty"`
	Priority    string     `json:"priority"`
	StartDate   time.Time  `json:"startDate"`
	Deadline    time.Time  `json:"deadline"`
	EndDate     *time.Time `json:"endDate,omitempty"`
	Description string     `json:"description,omitempty"`
	Assignee    string     `json:"assignee,omitempty"`
}

type UpdateRequest struct {
	Title       *string    `json:"title,omitempty"`
	Type        *string    `json:"type,omitempty"`
	Priority    *string    `json:"priority,omitempty"`
	StartDate   *time.Time `json:"startDate,omitempty"`
	Deadline    *time.Time `json:"deadline,omitempty"`
	EndDate     *time.Time `json:"endDate,omitempty"`
	Description *string    `json:"description,omitempty"`
	Status      *string    `json:"status,omitempty"`
	Assignee    *string    `json:"assignee,omitempty"`
}

// loadTask fetches a task, its owning stage and project, and the caller's
// evaluator. On any failure it has already written the response.
func (h *Handler) loadTask(w http.ResponseWriter, r *http.Request) (*models.Task, *models.Stage, *models.Project, *authz.Evaluator) {
	ctx := r.Context()
	taskID := chi.URLParam(r, "taskID")
	userID := middleware.GetUserID(ctx)

	task, err := h.storage.Tasks().GetByID(ctx, taskID)
	if err != nil {
		log.Printf("get task %s error: %v", taskID, err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return nil, nil, nil, nil
	}
	if task == nil {
		jsonError(w, http.StatusNotFound, errCodeNotFound, "task not found")
		return nil, nil, nil, nil
	}

	stage, err := h.storage.Stages().GetByTaskID(ctx, taskID)
	if err != nil {
		log.Printf("get stage for task %s error: %v", taskID, err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return nil, nil, nil, nil
	}
	if stage == nil {
		jsonError(w, http.StatusNotFound, errCodeNotFound, "stage not found")
		return nil, nil, nil, nil
	}

	project, err := h.storage.Projects().GetByID(ctx, stage.ProjectID)
	if err != nil {
		log.Printf("get project for task %s error: %v", taskID, err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return nil, nil, nil, nil
	}
	if project == nil {
		jsonError(w, http.StatusNotFound, errCodeNotFound, "project not found")
		return nil, nil, nil, nil
	}

	eval := authz.ForProject(project, userID)
	if !eval.IsMember() {
		jsonUnauthorized(w)
		return nil, nil, nil, nil
	}
	return task, stage, project, eval
}

// Create adds a task to a stage. Any project member may create tasks; the
// assignee, when given, must also be a member. A create audit record is
// written immediately.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stageID := chi.URLParam(r, "stageID")
	userID := middleware.GetUserID(ctx)

	stage, err := h.storage.Stages().GetByID(ctx, stageID)
	if err != nil {
		log.Printf("create task: get stage %s: %v", stageID, err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}
	if stage == nil {
		jsonError(w, http.StatusNotFound, errCodeNotFound, "stage not found")
		return
	}

	project, err := h.storage.Projects().GetByID(ctx, stage.ProjectID)
	if err != nil {
		log.Printf("create task: get project %s: %v", stage.ProjectID, err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}
	if project == nil {
		jsonError(w, http.StatusNotFound, errCodeNotFound, "project not found")
		return
	}
	eval := authz.ForProject(project, userID)
	if !eval.IsMember() {
		jsonUnauthorized(w)
		return
	}

	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid request body")
		return
	}
	if req.Title == "" {
		jsonError(w, http.StatusBadRequest, errCodeValidationFailed, "title is required")
		return
	}
	priority, ok := models.ParseTaskPriority(req.Priority)
	if !ok {
		jsonError(w, http.StatusBadRequest, errCodeValidationFailed, "invalid task priority")
		return
	}
	if err := workflow.ValidateTaskDates(req.StartDate, req.Deadline, req.EndDate); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeValidationFailed, "deadline and endDate must be after startDate")
		return
	}

	task := models.NewTask(uuid.New().String(), req.Title, priority, req.StartDate, req.Deadline, userID)
	task.Description = req.Description
	task.EndDate = req.EndDate
	if req.Type != "" {
		taskType, ok := models.ParseTaskType(req.Type)
		if !ok {
			jsonError(w, http.StatusBadRequest, errCodeValidationFailed, "invalid task type")
			return
		}
		task.Type = taskType
	}
	if req.Assignee != "" {
		if _, ok := project.MemberOf(req.Assignee); !ok {
			jsonError(w, http.StatusBadRequest, errCodeValidationFailed, "assignee must be a project member")
			return
		}
		task.Assignee = req.Assignee
	}

	rec := activity.Record(task.ID, userID, models.ActionCreate, nil)
	if err := h.storage.Activities().Create(ctx, rec); err != nil {
		log.Printf("create task: write activity: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}
	task.ActivityIDs = []string{rec.ID}

	if err := h.storage.Tasks().Create(ctx, task); err != nil {
		log.Printf("create task error: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}

	stage.TaskIDs = append(stage.TaskIDs, task.ID)
	if err := h.storage.Stages().Update(ctx, stage); err != nil {
		log.Printf("create task: update stage %s: %v", stage.ID, err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}

	log.Printf("task created: %s in stage %s by %s", task.Title, stage.Name, userID)
	jsonCreated(w, task)
}

// Get returns one task. Project members only.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	task, _, _, _ := h.loadTask(w, r)
	if task == nil {
		return
	}
	jsonOK(w, task)
}

// Update modifies a task. Protected fields (title, description, type,
// priority, dates, assignee) require manager, leader, or creator; an
// unauthorized attempt is rejected whole. A status change may be requested
// by any member but passes through the workflow state machine: illegal
// transitions are silently ignored for regular members, while managers and
// leaders may force any status. Every applied change is recorded as an
// immutable audit entry.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	task, _, project, eval := h.loadTask(w, r)
	if task == nil {
		return
	}

	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid request body")
		return
	}

	touchesProtected := req.Title != nil || req.Type != nil || req.Priority != nil ||
		req.StartDate != nil || req.Deadline != nil || req.EndDate != nil ||
		req.Description != nil || req.Assignee != nil
	if touchesProtected && !eval.CanEditTaskFields(task) {
		jsonUnauthorized(w)
		return
	}

	old := *task

	if req.Title != nil {
		if *req.Title == "" {
			jsonError(w, http.StatusBadRequest, errCodeValidationFailed, "title cannot be empty")
			return
		}
		task.Title = *req.Title
	}
	if req.Type != nil {
		taskType, ok := models.ParseTaskType(*req.Type)
		if !ok {
			jsonError(w, http.StatusBadRequest, errCodeValidationFailed, "invalid task type")
			return
		}
		task.Type = taskType
	}
	if req.Priority != nil {
		priority, ok := models.ParseTaskPriority(*req.Priority)
		if !ok {
			jsonError(w, http.StatusBadRequest, errCodeValidationFailed, "invalid task priority")
			return
		}
		task.Priority = priority
	}
	if req.Description != nil {
		task.Description = *req.Description
	}
	if req.StartDate != nil {
		task.StartDate = *req.StartDate
	}
	if req.Deadline != nil {
		task.Deadline = *req.Deadline
	}
	if req.EndDate != nil {
		task.EndDate = req.EndDate
	}
	if req.StartDate != nil || req.Deadline != nil || req.EndDate != nil {
		if err := workflow.ValidateTaskDates(task.StartDate, task.Deadline, task.EndDate); err != nil {
			if errors.Is(err, workflow.ErrInvalidDateRange) {
				jsonError(w, http.StatusBadRequest, errCodeValidationFailed, "deadline and endDate must be after startDate")
				return
			}
			jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
			return
		}
	}
	if req.Assignee != nil {
		if *req.Assignee != "" {
			if _, ok := project.MemberOf(*req.Assignee); !ok {
				jsonError(w, http.StatusBadRequest, errCodeValidationFailed, "assignee must be a project member")
				return
			}
		}
		task.Assignee = *req.Assignee
	}
	if req.Status != nil {
		requested, ok := models.ParseTaskStatus(*req.Status)
		if !ok {
			jsonError(w, http.StatusBadRequest, errCodeValidationFailed, "invalid task status")
			return
		}
		task.Status = workflow.NextStatus(task.Status, requested, eval.IsPrivileged())
	}

	changes := activity.Diff(&old, task)
	if len(changes) == 0 {
		// Nothing actually changed (e.g. a silently ignored transition).
		jsonOK(w, task)
		return
	}

	ctx := r.Context()
	rec := activity.Record(task.ID, middleware.GetUserID(ctx), activity.ClassifyAction(old.Status, task.Status), changes)
	if err := h.storage.Activities().Create(ctx, rec); err != nil {
		log.Printf("update task %s: write activity: %v", task.ID, err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}
	task.ActivityIDs = append([]string{rec.ID}, task.ActivityIDs...)

	if err := h.storage.Tasks().Update(ctx, task); err != nil {
		log.Printf("update task %s error: %v", task.ID, err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}

	jsonOK(w, task)
}

// Delete removes a task with its comments and audit records. Managers,
// leaders, or the task's creator only.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	task, stage, _, eval := h.loadTask(w, r)
	if task == nil {
		return
	}
	if !eval.CanEditTaskFields(task) {
		jsonUnauthorized(w)
		return
	}

	ctx := r.Context()
	if _, err := h.storage.Comments().DeleteByTask(ctx, task.ID); err != nil {
		log.Printf("delete task %s: cascade comments: %v", task.ID, err)
	}
	if _, err := h.storage.Activities().DeleteByTask(ctx, task.ID); err != nil {
		log.Printf("delete task %s: cascade activities: %v", task.ID, err)
	}

	if err := h.storage.Tasks().Delete(ctx, task.ID); err != nil {
		log.Printf("delete task %s error: %v", task.ID, err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}

	kept := make([]string, 0, len(stage.TaskIDs))
	for _, id := range stage.TaskIDs {
		if id != task.ID {
			kept = append(kept, id)
		}
	}
	stage.TaskIDs = kept
	if err := h.storage.Stages().Update(ctx, stage); err != nil {
		log.Printf("delete task %s: update stage %s: %v", task.ID, stage.ID, err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}

	log.Printf("task deleted: %s from stage %s", task.Title, stage.Name)
	jsonNoContent(w)
}

// ListActivities returns the task's audit records, newest first.
func (h *Handler) ListActivities(w http.ResponseWriter, r *http.Request) {
	task, _, _, _ := h.loadTask(w, r)
	if task == nil {
		return
	}

	records, err := h.storage.Activities().ListByTask(r.Context(), task.ID)
	if err != nil {
		log.Printf("list activities for task %s error: %v", task.ID, err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}
	if records == nil {
		records = []*models.Activity{}
	}
	jsonOK(w, records)
}

// taskView runs the cross-project task aggregation and writes the page or
// the shared not-found response.
func (h *Handler) taskView(w http.ResponseWriter, r *http.Request, participantOnly bool) {
	p := storage.TaskListParams{
		UserID:          middleware.GetUserID(r.Context()),
		ParticipantOnly: participantOnly,
	}

	metrics.AggregationsTotal.WithLabelValues("tasks").Inc()
	timer := prometheus.NewTimer(metrics.AggregationDuration.WithLabelValues("tasks"))
	page, err := h.storage.Projects().SearchTasks(r.Context(), p)
	timer.ObserveDuration()

	if err != nil {
		log.Printf("task view error: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}
	if page == nil {
		jsonError(w, http.StatusNotFound, errCodeNotFound, "No tasks found")
		return
	}

	jsonOK(w, page)
}

// List returns every task across the caller's projects, with creator,
// assignee, project, and stage joined in.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	h.taskView(w, r, false)
}

// ListMine is List restricted to tasks the caller created or is assigned to.
func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	h.taskView(w, r, true)
}
