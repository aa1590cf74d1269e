// Package users implements account and profile endpoints.
package users

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/calm-green-heron/stagewise/internal/api/auth"
	"github.com/calm-green-heron/stagewise/internal/api/middleware"
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

func jsonNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

func jsonUnauthorized(w http.ResponseWriter) {
	jsonError(w, http.StatusUnauthorized, errCodeUnauthorized, "Unauthorized")
}

const defaultPageLimit = 10

type Handler struct {
	storage storage.Storage
	tokens  *auth.TokenService
}

func NewHandler(store storage.Storage, tokens *auth.TokenService) *Handler {
	return &Handler{storage: store, tokens: tokens}
}

// Request types
type UpdateProfileRequest struct {
	FullName *string    `json:"fullName,omitempty"`
	Gender   *string    `json:"gender,omitempty"`
	DOB      *time.Time `json:"dob,omitempty"`
	Phone    *string    `json:"phone,omitempty"`
}

type UpdateCredentialsRequest struct {
	CurrentPassword string `json:"currentPassword"`
	Username        string `json:"username,omitempty"`
	Email           string `json:"email,omitempty"`
	NewPassword     string `json:"newPassword,omitempty"`
}

type DeleteRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// UserListResponse wraps a page of public user profiles.
type UserListResponse struct {
	Users []models.PublicUser `json:"users"`
	Total int64               `json:"total"`
}

func publicAll(users []*models.User) []models.PublicUser {
	out := make([]models.PublicUser, len(users))
	for i, u := range users {
		out[i] = u.Public()
	}
	return out
}

// loadCaller fetches the authenticated user's account.
func (h *Handler) loadCaller(w http.ResponseWriter, r *http.Request) *models.User {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	user, err := h.storage.Users().GetByID(ctx, userID)
	if err != nil {
		log.Printf("get user %s error: %v", userID, err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return nil
	}
	if user == nil {
		jsonUnauthorized(w)
		return nil
	}
	return user
}

// Me returns the caller's full profile.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user := h.loadCaller(w, r)
	if user == nil {
		return
	}
	jsonOK(w, user)
}

// Get returns another user's public profile.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := chi.URLParam(r, "userID")

	user, err := h.storage.Users().GetByID(ctx, userID)
	if err != nil {
		log.Printf("get user %s error: %v", userID, err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}
	if user == nil {
		jsonError(w, http.StatusNotFound, errCodeNotFound, "user not found")
		return
	}

	jsonOK(w, user.Public())
}

// List returns one page of users sorted by full name.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 {
		limit = defaultPageLimit
	}

	users, total, err := h.storage.Users().List(r.Context(), page, limit)
	if err != nil {
		log.Printf("list users error: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}

	jsonOK(w, UserListResponse{Users: publicAll(users), Total: total})
}

// Search matches users by name, username, or email.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "Query not found")
		return
	}

	users, total, err := h.storage.Users().Search(r.Context(), query)
	if err != nil {
		log.Printf("search users error: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}

	jsonOK(w, UserListResponse{Users: publicAll(users), Total: total})
}

// UpdateProfile modifies the caller's profile fields.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	user := h.loadCaller(w, r)
	if user == nil {
		return
	}

	var req UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid request body")
		return
	}

	if req.FullName != nil {
		if err := ValidateFullName(*req.FullName); err != nil {
			jsonError(w, http.StatusBadRequest, errCodeValidationFailed, err.Error())
			return
		}
		user.FullName = strings.TrimSpace(*req.FullName)
	}
	if req.Gender != nil {
		if err := ValidateGender(*req.Gender); err != nil {
			jsonError(w, http.StatusBadRequest, errCodeValidationFailed, err.Error())
			return
		}
		user.Gender = *req.Gender
	}
	if req.DOB != nil {
		user.DateOfBirth = req.DOB
	}
	if req.Phone != nil {
		user.Phone = strings.TrimSpace(*req.Phone)
	}
	user.UpdatedAt = time.Now().UTC()

	if err := h.storage.Users().Update(r.Context(), user); err != nil {
		log.Printf("update user %s error: %v", user.ID, err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}

	jsonOK(w, user)
}

// UpdateCredentials changes username, email, or password. Password accounts
// must re-confirm the current password first.
func (h *Handler) UpdateCredentials(w http.ResponseWriter, r *http.Request) {
	user := h.loadCaller(w, r)
	if user == nil {
		return
	}

	var req UpdateCredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid request body")
		return
	}

	if user.HasPassword() {
		if req.CurrentPassword == "" {
			jsonError(w, http.StatusBadRequest, errCodeBadRequest, "currentPassword required")
			return
		}
		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)); err != nil {
			jsonUnauthorized(w)
			return
		}
	}

	ctx := r.Context()

	if req.Username != "" && req.Username != user.Username {
		existing, err := h.storage.Users().GetByUsername(ctx, req.Username)
		if err != nil {
			log.Printf("update credentials: check username: %v", err)
			jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
			return
		}
		if existing != nil {
			jsonError(w, http.StatusConflict, errCodeConflict, "username already taken")
			return
		}
		user.Username = req.Username
	}
	if req.Email != "" && !strings.EqualFold(req.Email, user.Email) {
		email := strings.ToLower(strings.TrimSpace(req.Email))
		if !strings.Contains(email, "@") {
			jsonError(w, http.StatusBadRequest, errCodeValidationFailed, "invalid email address")
			return
		}
		existing, err := h.storage.Users().GetByEmail(ctx, email)
		if err != nil {
			log.Printf("update credentials: check email: %v", err)
			jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
			return
		}
		if existing != nil {
			jsonError(w, http.StatusConflict, errCodeConflict, "email already registered")
			return
		}
		user.Email = email
	}
	if req.NewPassword != "" {
		if err := auth.ValidatePassword(req.NewPassword); err != nil {
			jsonError(w, http.StatusBadRequest, errCodeValidationFailed, err.Error())
			return
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
		if err != nil {
			log.Printf("update credentials: hash password: %v", err)
			jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
			return
		}
		user.PasswordHash = string(hash)
		user.AccountType = models.AccountPassword
	}
	user.UpdatedAt = time.Now().UTC()

	if err := h.storage.Users().Update(ctx, user); err != nil {
		if storage.IsDuplicateKey(err) {
			jsonError(w, http.StatusConflict, errCodeConflict, "username or email already registered")
			return
		}
		log.Printf("update credentials for %s error: %v", user.ID, err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}

	// A password change invalidates every open session.
	if req.NewPassword != "" {
		if err := h.tokens.RevokeAllUserTokens(ctx, user.ID); err != nil {
			log.Printf("update credentials: revoke tokens for %s: %v", user.ID, err)
		}
	}

	jsonOK(w, user)
}

// Delete removes the caller's account. Password accounts must re-confirm
// username and password; federated accounts skip the password check.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	user := h.loadCaller(w, r)
	if user == nil {
		return
	}

	var req DeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid request body")
		return
	}

	if req.Username != user.Username {
		jsonUnauthorized(w)
		return
	}
	if user.HasPassword() {
		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
			jsonUnauthorized(w)
			return
		}
	}

	ctx := r.Context()
	if err := h.tokens.RevokeAllUserTokens(ctx, user.ID); err != nil {
		log.Printf("delete user %s: revoke tokens: %v", user.ID, err)
	}

	if err := h.storage.Users().Delete(ctx, user.ID); err != nil {
		log.Printf("delete user %s error: %v", user.ID, err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}

	log.Printf("user deleted: %s", user.Username)
	jsonNoContent(w)
}
