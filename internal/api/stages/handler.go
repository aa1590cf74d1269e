// Package stages implements stage endpoints: creation with task
// carry-forward, date-ordered updates, deletion, reviews, and the paginated
// cross-project stage views.
package stages

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

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

const defaultPageLimit = 10

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
	Name            string    `json:"name"`
	StartDate       time.Time `json:"startDate"`
	EndDateExpected time.Time `json:"endDateExpected"`
}

type UpdateRequest struct {
	Name            *string    `json:"name,omitempty"`
	StartDate       *time.Time `json:"startDate,omitempty"`
	EndDateExpected *time.Time `json:"endDateExpected,omitempty"`
	EndDateActual   *time.Time `json:"endDateActual,omitempty"`
}

// loadStage fetches a stage, its owning project, and the caller's evaluator.
// On any failure it has already written the response and returns nils.
func (h *Handler) loadStage(w http.ResponseWriter, r *http.Request) (*models.Stage, *models.Project, *authz.Evaluator) {
	ctx := r.Context()
	stageID := chi.URLParam(r, "stageID")
	userID := middleware.GetUserID(ctx)

	stage, err := h.storage.Stages().GetByID(ctx, stageID)
	if err != nil {
		log.Printf("get stage %s error: %v", stageID, err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return nil, nil, nil
	}
	if stage == nil {
		jsonError(w, http.StatusNotFound, errCodeNotFound, "stage not found")
		return nil, nil, nil
	}

	project, err := h.storage.Projects().GetByID(ctx, stage.ProjectID)
	if err != nil {
		log.Printf("get project for stage %s error: %v", stageID, err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return nil, nil, nil
	}
	if project == nil {
		jsonError(w, http.StatusNotFound, errCodeNotFound, "project not found")
		return nil, nil, nil
	}

	eval := authz.ForProject(project, userID)
	if !eval.IsMember() {
		jsonUnauthorized(w)
		return nil, nil, nil
	}
	return stage, project, eval
}

func pageParams(r *http.Request) (page, limit int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 {
		limit = defaultPageLimit
	}
	return page, limit
}

// listView runs the stage aggregation and writes the page or the not-found
// response shared by List and Search.
func (h *Handler) listView(w http.ResponseWriter, r *http.Request, p storage.StageListParams) {
	metrics.AggregationsTotal.WithLabelValues("stages").Inc()
	timer := prometheus.NewTimer(metrics.AggregationDuration.WithLabelValues("stages"))
	page, err := h.storage.Projects().SearchStages(r.Context(), p)
	timer.ObserveDuration()

	if err != nil {
		log.Printf("stage view error: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}
	if page == nil {
		jsonError(w, http.StatusNotFound, errCodeNotFound, "No stages found")
		return
	}

	jsonOK(w, page)
}

// List returns one page of every stage across the caller's projects.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)
	h.listView(w, r, storage.StageListParams{
		UserID: middleware.GetUserID(r.Context()),
		Page:   page,
		Limit:  limit,
	})
}

// Search is List with a required case-insensitive name filter.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "Query not found")
		return
	}

	page, limit := pageParams(r)
	h.listView(w, r, storage.StageListParams{
		UserID: middleware.GetUserID(r.Context()),
		Name:   name,
		Page:   page,
		Limit:  limit,
	})
}

// Get returns one stage. Project members only.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	stage, _, _ := h.loadStage(w, r)
	if stage == nil {
		return
	}
	jsonOK(w, stage)
}

// Create appends a new stage to a project. Managers and leaders only. The
// new stage must start strictly after the current newest stage ends, and all
// non-terminal tasks of that stage migrate into the new one.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	projectID := chi.URLParam(r, "projectID")
	userID := middleware.GetUserID(ctx)

	project, err := h.storage.Projects().GetByID(ctx, projectID)
	if err != nil {
		log.Printf("create stage: get project %s: %v", projectID, err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}
	if project == nil {
		jsonError(w, http.StatusNotFound, errCodeNotFound, "project not found")
		return
	}
	if !authz.ForProject(project, userID).CanManageStages() {
		jsonUnauthorized(w)
		return
	}

	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		jsonError(w, http.StatusBadRequest, errCodeValidationFailed, "name is required")
		return
	}
	if req.StartDate.IsZero() || req.EndDateExpected.IsZero() {
		jsonError(w, http.StatusBadRequest, errCodeValidationFailed, "startDate and endDateExpected are required")
		return
	}

	// The project's stage list is newest first.
	var newest *models.Stage
	if len(project.StageIDs) > 0 {
		newest, err = h.storage.Stages().GetByID(ctx, project.StageIDs[0])
		if err != nil {
			log.Printf("create stage: get newest stage: %v", err)
			jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
			return
		}
	}

	if err := workflow.ValidateNewStageDates(req.StartDate, req.EndDateExpected, newest); err != nil {
		if errors.Is(err, workflow.ErrInvalidDateRange) {
			jsonError(w, http.StatusBadRequest, errCodeValidationFailed, "stage must start after the previous stage ends and end after it starts")
			return
		}
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}

	stage := &models.Stage{
		ID:              uuid.New().String(),
		ProjectID:       project.ID,
		Name:            req.Name,
		Sequence:        1,
		StartDate:       req.StartDate,
		EndDateExpected: req.EndDateExpected,
	}

	// Carry forward unfinished tasks from the previous newest stage.
	if newest != nil {
		stage.Sequence = newest.Sequence + 1

		tasks, err := h.storage.Tasks().GetByIDs(ctx, newest.TaskIDs)
		if err != nil {
			log.Printf("create stage: load tasks of stage %s: %v", newest.ID, err)
			jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
			return
		}
		stay, move := workflow.CarryForward(tasks)
		if len(move) > 0 {
			stayIDs := make([]string, 0, len(stay))
			for _, t := range stay {
				stayIDs = append(stayIDs, t.ID)
			}
			for _, t := range move {
				stage.TaskIDs = append(stage.TaskIDs, t.ID)
			}
			newest.TaskIDs = stayIDs
			if err := h.storage.Stages().Update(ctx, newest); err != nil {
				log.Printf("create stage: update previous stage %s: %v", newest.ID, err)
				jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
				return
			}
		}
	}

	if err := h.storage.Stages().Create(ctx, stage); err != nil {
		log.Printf("create stage error: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}

	project.StageIDs = append([]string{stage.ID}, project.StageIDs...)
	if err := h.storage.Projects().Update(ctx, project); err != nil {
		log.Printf("create stage: update project %s: %v", project.ID, err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}

	log.Printf("stage created: %s (seq %d) in project %s, %d tasks carried forward",
		stage.Name, stage.Sequence, project.Code, len(stage.TaskIDs))
	jsonCreated(w, stage)
}

// siblings returns the next-newer and next-older stages around the given
// stage in the project's newest-first stage list.
func (h *Handler) siblings(r *http.Request, project *models.Project, stageID string) (newer, older *models.Stage, err error) {
	ctx := r.Context()
	idx := -1
	for i, id := range project.StageIDs {
		if id == stageID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil, nil, nil
	}
	if idx > 0 {
		if newer, err = h.storage.Stages().GetByID(ctx, project.StageIDs[idx-1]); err != nil {
			return nil, nil, err
		}
	}
	if idx < len(project.StageIDs)-1 {
		if older, err = h.storage.Stages().GetByID(ctx, project.StageIDs[idx+1]); err != nil {
			return nil, nil, err
		}
	}
	return newer, older, nil
}

// Update modifies a stage. Managers and leaders only. Date changes must
// keep the stage strictly between its siblings; violations are rejected.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	stage, project, eval := h.loadStage(w, r)
	if stage == nil {
		return
	}
	if !eval.CanManageStages() {
		jsonUnauthorized(w)
		return
	}

	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid request body")
		return
	}

	newer, older, err := h.siblings(r, project, stage.ID)
	if err != nil {
		log.Printf("update stage %s: load siblings: %v", stage.ID, err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}

	if req.Name != nil {
		if *req.Name == "" {
			jsonError(w, http.StatusBadRequest, errCodeValidationFailed, "name cannot be empty")
			return
		}
		stage.Name = *req.Name
	}
	if req.StartDate != nil {
		if err := workflow.ValidateStageStart(*req.StartDate, older); err != nil {
			jsonError(w, http.StatusBadRequest, errCodeValidationFailed, "startDate must be after the previous stage ends")
			return
		}
		stage.StartDate = *req.StartDate
	}
	if req.EndDateExpected != nil {
		if err := workflow.ValidateStageEnd(*req.EndDateExpected, stage, newer); err != nil {
			jsonError(w, http.StatusBadRequest, errCodeValidationFailed, "endDateExpected must be after startDate and before the next stage starts")
			return
		}
		stage.EndDateExpected = *req.EndDateExpected
	}
	if req.EndDateActual != nil {
		if err := workflow.ValidateStageEnd(*req.EndDateActual, stage, newer); err != nil {
			jsonError(w, http.StatusBadRequest, errCodeValidationFailed, "endDateActual must be after startDate and before the next stage starts")
			return
		}
		stage.EndDateActual = req.EndDateActual
	}

	if err := h.storage.Stages().Update(r.Context(), stage); err != nil {
		log.Printf("update stage %s error: %v", stage.ID, err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}

	jsonOK(w, stage)
}

// Delete removes a stage and everything under it. Managers and leaders only.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	stage, project, eval := h.loadStage(w, r)
	if stage == nil {
		return
	}
	if !eval.CanManageStages() {
		jsonUnauthorized(w)
		return
	}

	ctx := r.Context()
	for _, taskID := range stage.TaskIDs {
		if _, err := h.storage.Comments().DeleteByTask(ctx, taskID); err != nil {
			log.Printf("delete stage %s: cascade comments for task %s: %v", stage.ID, taskID, err)
		}
		if _, err := h.storage.Activities().DeleteByTask(ctx, taskID); err != nil {
			log.Printf("delete stage %s: cascade activities for task %s: %v", stage.ID, taskID, err)
		}
		if err := h.storage.Tasks().Delete(ctx, taskID); err != nil {
			log.Printf("delete stage %s: cascade task %s: %v", stage.ID, taskID, err)
		}
	}

	if err := h.storage.Stages().Delete(ctx, stage.ID); err != nil {
		log.Printf("delete stage %s error: %v", stage.ID, err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}
	if err := h.storage.Projects().PullStage(ctx, project.ID, stage.ID); err != nil {
		log.Printf("delete stage %s: pull from project %s: %v", stage.ID, project.ID, err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}

	log.Printf("stage deleted: %s from project %s", stage.Name, project.Code)
	jsonNoContent(w)
}
