package users

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/calm-green-heron/stagewise/internal/api/auth"
	"github.com/calm-green-heron/stagewise/internal/api/middleware"
	"github.com/calm-green-heron/stagewise/internal/models"
	"github.com/calm-green-heron/stagewise/internal/storage/storagetest"
)

const password = "Str0ng!Passw0rd"

func fixture(t *testing.T) *storagetest.Store {
	t.Helper()
	store := storagetest.New()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	store.UsersByID["u1"] = &models.User{
		ID:           "u1",
		FullName:     "Alice Smith",
		Username:     "alice",
		Email:        "alice@example.com",
		PasswordHash: string(hash),
		AccountType:  models.AccountPassword,
	}
	store.UsersByID["u2"] = &models.User{
		ID:       "u2",
		FullName: "Bob Jones",
		Username: "bob",
		Email:    "bob@example.com",
	}
	return store
}

func router(store *storagetest.Store) http.Handler {
	h := NewHandler(store, auth.NewTokenService(store, 24*time.Hour))
	r := chi.NewRouter()
	r.Get("/users", h.List)
	r.Get("/users/search", h.Search)
	r.Get("/users/me", h.Me)
	r.Put("/users/me", h.UpdateProfile)
	r.Put("/users/me/credentials", h.UpdateCredentials)
	r.Delete("/users/me", h.Delete)
	r.Get("/users/{userID}", h.Get)
	return r
}

func do(t *testing.T, handler http.Handler, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req = req.WithContext(middleware.WithUserID(req.Context(), userID))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestGet_ReturnsPublicProjection(t *testing.T) {
	store := fixture(t)
	r := router(store)

	rec := do(t, r, http.MethodGet, "/users/u1", "u2", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var raw struct {
		Data map[string]any `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if raw.Data["username"] != "alice" {
		t.Errorf("username = %v", raw.Data["username"])
	}
	if _, leaked := raw.Data["createdAt"]; leaked {
		t.Error("public projection should not carry account metadata")
	}
}

func TestSearch_RequiresQuery(t *testing.T) {
	store := fixture(t)
	r := router(store)

	rec := do(t, r, http.MethodGet, "/users/search", "u1", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	rec = do(t, r, http.MethodGet, "/users/search?q=bob", "u1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Data UserListResponse `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Data.Total != 1 || len(resp.Data.Users) != 1 {
		t.Errorf("search result = %+v", resp.Data)
	}
}

func TestList_Pages(t *testing.T) {
	store := fixture(t)
	r := router(store)

	rec := do(t, r, http.MethodGet, "/users?page=1&limit=1", "u1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Data UserListResponse `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Data.Users) != 1 || resp.Data.Total != 2 {
		t.Errorf("page = %d users of %d total, want 1 of 2", len(resp.Data.Users), resp.Data.Total)
	}
	// Sorted by full name, so Alice comes first.
	if resp.Data.Users[0].Username != "alice" {
		t.Errorf("first user = %s, want alice", resp.Data.Users[0].Username)
	}
}

func TestUpdateProfile(t *testing.T) {
	store := fixture(t)
	r := router(store)

	name := "Alice Cooper"
	gender := "female"
	rec := do(t, r, http.MethodPut, "/users/me", "u1", UpdateProfileRequest{
		FullName: &name,
		Gender:   &gender,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if store.UsersByID["u1"].FullName != "Alice Cooper" {
		t.Errorf("full name = %q", store.UsersByID["u1"].FullName)
	}

	bad := "unknown"
	rec = do(t, r, http.MethodPut, "/users/me", "u1", UpdateProfileRequest{Gender: &bad})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid gender status = %d, want 400", rec.Code)
	}
}

func TestUpdateCredentials_RequiresCurrentPassword(t *testing.T) {
	store := fixture(t)
	r := router(store)

	rec := do(t, r, http.MethodPut, "/users/me/credentials", "u1", UpdateCredentialsRequest{
		Username: "alice2",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 without currentPassword", rec.Code)
	}

	rec = do(t, r, http.MethodPut, "/users/me/credentials", "u1", UpdateCredentialsRequest{
		CurrentPassword: "Wrong!Passw0rd",
		Username:        "alice2",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 with wrong password", rec.Code)
	}
}

func TestUpdateCredentials_UsernameConflict(t *testing.T) {
	store := fixture(t)
	r := router(store)

	rec := do(t, r, http.MethodPut, "/users/me/credentials", "u1", UpdateCredentialsRequest{
		CurrentPassword: password,
		Username:        "bob",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestUpdateCredentials_PasswordChangeRevokesSessions(t *testing.T) {
	store := fixture(t)
	store.TokensByHash["h1"] = &models.RefreshToken{
		ID:        "tok1",
		UserID:    "u1",
		TokenHash: "h1",
		ExpiresAt: time.Now().Add(time.Hour),
	}
	r := router(store)

	rec := do(t, r, http.MethodPut, "/users/me/credentials", "u1", UpdateCredentialsRequest{
		CurrentPassword: password,
		NewPassword:     "N3w!Passw0rds",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if !store.TokensByHash["h1"].Revoked {
		t.Error("password change should revoke open sessions")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(store.UsersByID["u1"].PasswordHash), []byte("N3w!Passw0rds")); err != nil {
		t.Error("new password should verify against the stored hash")
	}
}

func TestDelete_RequiresMatchingUsernameAndPassword(t *testing.T) {
	store := fixture(t)
	r := router(store)

	rec := do(t, r, http.MethodDelete, "/users/me", "u1", DeleteRequest{
		Username: "wrong",
		Password: password,
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong username status = %d, want 401", rec.Code)
	}

	rec = do(t, r, http.MethodDelete, "/users/me", "u1", DeleteRequest{
		Username: "alice",
		Password: password,
	})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204: %s", rec.Code, rec.Body.String())
	}
	if _, ok := store.UsersByID["u1"]; ok {
		t.Error("account should be deleted")
	}
}

func TestDelete_FederatedSkipsPasswordCheck(t *testing.T) {
	store := fixture(t)
	store.UsersByID["u2"].AccountType = models.AccountFederated
	r := router(store)

	rec := do(t, r, http.MethodDelete, "/users/me", "u2", DeleteRequest{Username: "bob"})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204: %s", rec.Code, rec.Body.String())
	}
}
