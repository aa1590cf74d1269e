// Package comments implements the comment endpoints nested under tasks.
package comments

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/calm-green-heron/stagewise/internal/activity"
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

type AddRequest struct {
	Content string `json:"content"`
}

// loadTask resolves the task and verifies project membership via the owning
// stage. On failure the response has been written and nils are returned.
func (h *Handler) loadTask(w http.ResponseWriter, r *http.Request, taskID string) (*models.Task, *authz.Evaluator) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	task, err := h.storage.Tasks().GetByID(ctx, taskID)
	if err != nil {
		log.Printf("get task %s error: %v", taskID, err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return nil, nil
	}
	if task == nil {
		jsonError(w, http.StatusNotFound, errCodeNotFound, "task not found")
		return nil, nil
	}

	stage, err := h.storage.Stages().GetByTaskID(ctx, taskID)
	if err != nil || stage == nil {
		if err != nil {
			log.Printf("get stage for task %s error: %v", taskID, err)
		}
		jsonError(w, http.StatusNotFound, errCodeNotFound, "stage not found")
		return nil, nil
	}

	project, err := h.storage.Projects().GetByID(ctx, stage.ProjectID)
	if err != nil || project == nil {
		if err != nil {
			log.Printf("get project for task %s error: %v", taskID, err)
		}
		jsonError(w, http.StatusNotFound, errCodeNotFound, "project not found")
		return nil, nil
	}

	eval := authz.ForProject(project, userID)
	if !eval.IsMember() {
		jsonUnauthorized(w)
		return nil, nil
	}
	return task, eval
}

// List returns a task's comments, oldest first.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	task, _ := h.loadTask(w, r, chi.URLParam(r, "taskID"))
	if task == nil {
		return
	}

	comments, err := h.storage.Comments().ListByTask(r.Context(), task.ID)
	if err != nil {
		log.Printf("list comments for task %s error: %v", task.ID, err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}
	if comments == nil {
		comments = []*models.Comment{}
	}
	jsonOK(w, comments)
}

// Add attaches a comment to a task. Any project member may comment.
func (h *Handler) Add(w http.ResponseWriter, r *http.Request) {
	task, _ := h.loadTask(w, r, chi.URLParam(r, "taskID"))
	if task == nil {
		return
	}

	var req AddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid request body")
		return
	}
	if req.Content == "" {
		jsonError(w, http.StatusBadRequest, errCodeValidationFailed, "content is required")
		return
	}

	ctx := r.Context()
	comment := &models.Comment{
		ID:          uuid.New().String(),
		TaskID:      task.ID,
		Content:     req.Content,
		CreatedDate: time.Now(),
		CommenterID: middleware.GetUserID(ctx),
	}

	if err := h.storage.Comments().Create(ctx, comment); err != nil {
		log.Printf("add comment to task %s error: %v", task.ID, err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}

	rec := activity.Record(task.ID, comment.CommenterID, models.ActionUpdate, []models.FieldChange{
		{Field: "comments", Kind: models.ChangeReference, To: comment.ID},
	})
	if err := h.storage.Activities().Create(ctx, rec); err != nil {
		log.Printf("add comment: write activity for task %s: %v", task.ID, err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}

	task.CommentIDs = append(task.CommentIDs, comment.ID)
	task.ActivityIDs = append([]string{rec.ID}, task.ActivityIDs...)
	if err := h.storage.Tasks().Update(ctx, task); err != nil {
		log.Printf("add comment: update task %s: %v", task.ID, err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}

	jsonCreated(w, comment)
}

// Delete removes a comment. The author, a manager, or a leader only.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	commentID := chi.URLParam(r, "commentID")

	comment, err := h.storage.Comments().GetByID(ctx, commentID)
	if err != nil {
		log.Printf("get comment %s error: %v", commentID, err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}
	if comment == nil {
		jsonError(w, http.StatusNotFound, errCodeNotFound, "comment not found")
		return
	}

	task, eval := h.loadTask(w, r, comment.TaskID)
	if task == nil {
		return
	}

	userID := middleware.GetUserID(ctx)
	if comment.CommenterID != userID && !eval.IsPrivileged() {
		jsonUnauthorized(w)
		return
	}

	if err := h.storage.Comments().Delete(ctx, comment.ID); err != nil {
		log.Printf("delete comment %s error: %v", comment.ID, err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}

	rec := activity.Record(task.ID, userID, models.ActionUpdate, []models.FieldChange{
		{Field: "comments", Kind: models.ChangeReference, From: comment.ID},
	})
	if err := h.storage.Activities().Create(ctx, rec); err != nil {
		log.Printf("delete comment: write activity for task %s: %v", task.ID, err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}
	task.ActivityIDs = append([]string{rec.ID}, task.ActivityIDs...)

	kept := make([]string, 0, len(task.CommentIDs))
	for _, id := range task.CommentIDs {
		if id != comment.ID {
			kept = append(kept, id)
		}
	}
	task.CommentIDs = kept
	if err := h.storage.Tasks().Update(ctx, task); err != nil {
		log.Printf("delete comment: update task %s: %v", task.ID, err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}

	jsonNoContent(w)
}
