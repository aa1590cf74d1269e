package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/calm-green-heron/stagewise/internal/models"
	"github.com/calm-green-heron/stagewise/internal/storage/storagetest"
)

const goodPassword = "Str0ng!Passw0rd"

func newTestHandler(store *storagetest.Store) *Handler {
	jwt := NewJWTService([]byte("test-secret"), 15*time.Minute)
	lockout := NewLockoutTracker(3, time.Minute)
	return NewHandler(store, jwt, lockout, 24*time.Hour)
}

func seedUser(t *testing.T, store *storagetest.Store) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(goodPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user := &models.User{
		ID:           "u1",
		FullName:     "Alice Smith",
		Username:     "alice",
		Email:        "alice@example.com",
		PasswordHash: string(hash),
		AccountType:  models.AccountPassword,
	}
	store.UsersByID["u1"] = user
	return user
}

func post(t *testing.T, fn http.HandlerFunc, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		t.Fatalf("encode body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/", &buf)
	rec := httptest.NewRecorder()
	fn(rec, req)
	return rec
}

func TestRegister(t *testing.T) {
	store := storagetest.New()
	h := newTestHandler(store)

	rec := post(t, h.Register, RegisterRequest{
		FullName: "Bob Jones",
		Username: "bob",
		Email:    "Bob@Example.com",
		Password: goodPassword,
	})

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	if len(store.UsersByID) != 1 {
		t.Fatalf("got %d users, want 1", len(store.UsersByID))
	}
	for _, u := range store.UsersByID {
		if u.Email != "bob@example.com" {
			t.Errorf("email = %q, want lowercased", u.Email)
		}
		if u.AccountType != models.AccountPassword {
			t.Errorf("account type = %s, want password", u.AccountType)
		}
		if u.PasswordHash == goodPassword || u.PasswordHash == "" {
			t.Error("password should be stored hashed")
		}
	}

	var resp struct {
		Data models.PublicUser `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Data.Username != "bob" {
		t.Errorf("response user = %+v", resp.Data)
	}
}

func TestRegister_RejectsWeakPassword(t *testing.T) {
	store := storagetest.New()
	h := newTestHandler(store)

	rec := post(t, h.Register, RegisterRequest{
		FullName: "Bob Jones",
		Username: "bob",
		Email:    "bob@example.com",
		Password: "weak",
	})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if len(store.UsersByID) != 0 {
		t.Error("rejected registration should not create a user")
	}
}

func TestRegister_UsernameConflict(t *testing.T) {
	store := storagetest.New()
	seedUser(t, store)
	h := newTestHandler(store)

	rec := post(t, h.Register, RegisterRequest{
		FullName: "Other Alice",
		Username: "alice",
		Email:    "other@example.com",
		Password: goodPassword,
	})

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestLogin(t *testing.T) {
	store := storagetest.New()
	seedUser(t, store)
	h := newTestHandler(store)

	rec := post(t, h.Login, LoginRequest{Username: "alice", Password: goodPassword})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Data LoginResponse `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Data.AccessToken == "" || resp.Data.RefreshToken == "" {
		t.Error("login should return both tokens")
	}
	if resp.Data.TokenType != "Bearer" {
		t.Errorf("token type = %q, want Bearer", resp.Data.TokenType)
	}
	if resp.Data.User == nil || resp.Data.User.Username != "alice" {
		t.Errorf("user = %+v", resp.Data.User)
	}
	if len(store.TokensByHash) != 1 {
		t.Errorf("got %d stored refresh tokens, want 1", len(store.TokensByHash))
	}
	// Only the hash is persisted.
	if _, ok := store.TokensByHash[resp.Data.RefreshToken]; ok {
		t.Error("refresh token stored in plaintext")
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	store := storagetest.New()
	seedUser(t, store)
	h := newTestHandler(store)

	rec := post(t, h.Login, LoginRequest{Username: "alice", Password: "Wrong!Passw0rd"})

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestLogin_LocksAfterRepeatedFailures(t *testing.T) {
	store := storagetest.New()
	seedUser(t, store)
	h := newTestHandler(store)

	for i := 0; i < 3; i++ {
		post(t, h.Login, LoginRequest{Username: "alice", Password: "Wrong!Passw0rd"})
	}

	rec := post(t, h.Login, LoginRequest{Username: "alice", Password: goodPassword})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429 while locked", rec.Code)
	}
}

func TestLogin_FederatedAccountHasNoPassword(t *testing.T) {
	store := storagetest.New()
	store.UsersByID["u2"] = &models.User{
		ID:          "u2",
		Username:    "fed",
		Email:       "fed@example.com",
		AccountType: models.AccountFederated,
	}
	h := newTestHandler(store)

	rec := post(t, h.Login, LoginRequest{Username: "fed", Password: goodPassword})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestRefresh_RotatesToken(t *testing.T) {
	store := storagetest.New()
	user := seedUser(t, store)
	h := newTestHandler(store)

	plain, err := h.tokenService.CreateRefreshToken(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("create refresh token: %v", err)
	}

	rec := post(t, h.Refresh, RefreshRequest{RefreshToken: plain})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Data LoginResponse `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Data.RefreshToken == plain {
		t.Error("refresh should rotate the token")
	}

	// The old token is revoked and cannot be used again.
	rec = post(t, h.Refresh, RefreshRequest{RefreshToken: plain})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("reused token status = %d, want 401", rec.Code)
	}
}

func TestLogout_RevokesToken(t *testing.T) {
	store := storagetest.New()
	user := seedUser(t, store)
	h := newTestHandler(store)

	plain, err := h.tokenService.CreateRefreshToken(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("create refresh token: %v", err)
	}

	rec := post(t, h.Logout, LogoutRequest{RefreshToken: plain})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}

	rec = post(t, h.Refresh, RefreshRequest{RefreshToken: plain})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("revoked token status = %d, want 401", rec.Code)
	}
}
