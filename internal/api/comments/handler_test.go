package comments

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/calm-green-heron/stagewise/internal/api/middleware"
	"github.com/calm-green-heron/stagewise/internal/models"
	"github.com/calm-green-heron/stagewise/internal/storage/storagetest"
)

func fixture() *storagetest.Store {
	store := storagetest.New()

	now := time.Now()
	store.ProjectsByID["p1"] = &models.Project{
		ID:   "p1",
		Code: "prj-0123456789",
		Members: map[string]models.Member{
			"mgr":    {UserID: "mgr", Role: models.RoleManager, JoiningDate: now},
			"author": {UserID: "author", Role: models.RoleMember, JoiningDate: now},
			"other":  {UserID: "other", Role: models.RoleMember, JoiningDate: now},
		},
		StageIDs: []string{"s1"},
	}
	store.StagesByID["s1"] = &models.Stage{ID: "s1", ProjectID: "p1", TaskIDs: []string{"t1"}}
	store.TasksByID["t1"] = &models.Task{ID: "t1", Title: "task", CommentIDs: []string{"c1"}}
	store.CommentsByID["c1"] = &models.Comment{
		ID:          "c1",
		TaskID:      "t1",
		Content:     "looks good",
		CreatedDate: now,
		CommenterID: "author",
	}
	return store
}

func router(store *storagetest.Store) http.Handler {
	h := NewHandler(store)
	r := chi.NewRouter()
	r.Get("/tasks/{taskID}/comments", h.List)
	r.Post("/tasks/{taskID}/comments", h.Add)
	r.Delete("/comments/{commentID}", h.Delete)
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

func TestAdd_LinksCommentToTask(t *testing.T) {
	store := fixture()
	r := router(store)

	rec := do(t, r, http.MethodPost, "/tasks/t1/comments", "other", AddRequest{Content: "ship it"})

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	if len(store.CommentsByID) != 2 {
		t.Fatalf("got %d comments, want 2", len(store.CommentsByID))
	}
	task := store.TasksByID["t1"]
	if len(task.CommentIDs) != 2 {
		t.Errorf("task CommentIDs = %v, want the new comment appended", task.CommentIDs)
	}
	if len(store.ActsByID) != 1 {
		t.Fatalf("got %d audit records, want 1", len(store.ActsByID))
	}
	if len(task.ActivityIDs) != 1 {
		t.Fatalf("task ActivityIDs = %v, want the comment record prepended", task.ActivityIDs)
	}
	rec2 := store.ActsByID[task.ActivityIDs[0]]
	if rec2 == nil || len(rec2.Changes) != 1 || rec2.Changes[0].Field != "comments" {
		t.Errorf("record = %+v, want a comments reference change", rec2)
	}
}

func TestAdd_RequiresContent(t *testing.T) {
	store := fixture()
	r := router(store)

	rec := do(t, r, http.MethodPost, "/tasks/t1/comments", "other", AddRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestAdd_NonMemberDenied(t *testing.T) {
	store := fixture()
	r := router(store)

	rec := do(t, r, http.MethodPost, "/tasks/t1/comments", "outsider", AddRequest{Content: "hi"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestList_OldestFirst(t *testing.T) {
	store := fixture()
	store.CommentsByID["c2"] = &models.Comment{
		ID:          "c2",
		TaskID:      "t1",
		Content:     "second",
		CreatedDate: time.Now().Add(time.Hour),
		CommenterID: "other",
	}
	r := router(store)

	rec := do(t, r, http.MethodGet, "/tasks/t1/comments", "mgr", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Data []models.Comment `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Data) != 2 {
		t.Fatalf("got %d comments, want 2", len(resp.Data))
	}
	if resp.Data[0].ID != "c1" || resp.Data[1].ID != "c2" {
		t.Errorf("order = [%s %s], want oldest first", resp.Data[0].ID, resp.Data[1].ID)
	}
}

func TestDelete_AuthorOrPrivilegedOnly(t *testing.T) {
	store := fixture()
	r := router(store)

	rec := do(t, r, http.MethodDelete, "/comments/c1", "other", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("non-author delete status = %d, want 401", rec.Code)
	}

	rec = do(t, r, http.MethodDelete, "/comments/c1", "author", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("author delete status = %d, want 204: %s", rec.Code, rec.Body.String())
	}
	if len(store.CommentsByID) != 0 {
		t.Error("comment should be deleted")
	}
	if got := store.TasksByID["t1"].CommentIDs; len(got) != 0 {
		t.Errorf("task CommentIDs = %v, want empty", got)
	}
	if len(store.ActsByID) != 1 {
		t.Errorf("got %d audit records, want the deletion recorded", len(store.ActsByID))
	}
}

func TestDelete_ManagerMayModerate(t *testing.T) {
	store := fixture()
	r := router(store)

	rec := do(t, r, http.MethodDelete, "/comments/c1", "mgr", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204: %s", rec.Code, rec.Body.String())
	}
}
