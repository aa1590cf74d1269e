package stages

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/calm-green-heron/stagewise/internal/api/middleware"
	"github.com/calm-green-heron/stagewise/internal/models"
)

type ReviewRequest struct {
	Content string `json:"content"`
}

// AddReview attaches a review note to a stage. Any project member may add one.
func (h *Handler) AddReview(w http.ResponseWriter, r *http.Request) {
	stage, _, _ := h.loadStage(w, r)
	if stage == nil {
		return
	}

	var req ReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid request body")
		return
	}
	if req.Content == "" {
		jsonError(w, http.StatusBadRequest, errCodeValidationFailed, "content is required")
		return
	}

	now := time.Now()
	review := models.Review{
		ID:         uuid.New().String(),
		Content:    req.Content,
		ReviewerID: middleware.GetUserID(r.Context()),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	stage.Reviews = append(stage.Reviews, review)

	if err := h.storage.Stages().Update(r.Context(), stage); err != nil {
		log.Printf("add review: update stage %s: %v", stage.ID, err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}

	jsonCreated(w, review)
}

// UpdateReview edits a review's content. Only the authoring reviewer may edit.
func (h *Handler) UpdateReview(w http.ResponseWriter, r *http.Request) {
	stage, _, _ := h.loadStage(w, r)
	if stage == nil {
		return
	}

	reviewID := chi.URLParam(r, "reviewID")
	userID := middleware.GetUserID(r.Context())

	var req ReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid request body")
		return
	}
	if req.Content == "" {
		jsonError(w, http.StatusBadRequest, errCodeValidationFailed, "content is required")
		return
	}

	for i := range stage.Reviews {
		if stage.Reviews[i].ID != reviewID {
			continue
		}
		if stage.Reviews[i].ReviewerID != userID {
			jsonUnauthorized(w)
			return
		}
		stage.Reviews[i].Content = req.Content
		stage.Reviews[i].UpdatedAt = time.Now()

		if err := h.storage.Stages().Update(r.Context(), stage); err != nil {
			log.Printf("update review: update stage %s: %v", stage.ID, err)
			jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
			return
		}
		jsonOK(w, stage.Reviews[i])
		return
	}

	jsonError(w, http.StatusNotFound, errCodeNotFound, "review not found")
}

// DeleteReview removes a review. Any project member may delete.
func (h *Handler) DeleteReview(w http.ResponseWriter, r *http.Request) {
	stage, _, _ := h.loadStage(w, r)
	if stage == nil {
		return
	}

	reviewID := chi.URLParam(r, "reviewID")

	for i := range stage.Reviews {
		if stage.Reviews[i].ID != reviewID {
			continue
		}
		stage.Reviews = append(stage.Reviews[:i], stage.Reviews[i+1:]...)

		if err := h.storage.Stages().Update(r.Context(), stage); err != nil {
			log.Printf("delete review: update stage %s: %v", stage.ID, err)
			jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
			return
		}
		jsonNoContent(w)
		return
	}

	jsonError(w, http.StatusNotFound, errCodeNotFound, "review not found")
}
