package tasks

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
	"github.com/calm-green-heron/stagewise/internal/storage"
	"github.com/calm-green-heron/stagewise/internal/storage/storagetest"
)

// fixture builds a project with a manager, the task's creator, and a plain
// member, one stage, and one open task created by "creator".
func fixture() (*storagetest.Store, *models.Task) {
	store := storagetest.New()

	now := time.Now()
	project := &models.Project{
		ID:   "p1",
		Code: "prj-0123456789",
		Name: "Rollout",
		Members: map[string]models.Member{
			"mgr":     {UserID: "mgr", Role: models.RoleManager, JoiningDate: now},
			"creator": {UserID: "creator", Role: models.RoleMember, JoiningDate: now},
			"other":   {UserID: "other", Role: models.RoleMember, JoiningDate: now},
		},
		StageIDs: []string{"s1"},
	}
	stage := &models.Stage{
		ID:              "s1",
		ProjectID:       "p1",
		Name:            "Sprint 1",
		Sequence:        1,
		StartDate:       now,
		EndDateExpected: now.AddDate(0, 1, 0),
		TaskIDs:         []string{"t1"},
	}
	task := models.NewTask("t1", "Fix login", models.PriorityMedium, now, now.AddDate(0, 0, 7), "creator")

	store.ProjectsByID["p1"] = project
	store.StagesByID["s1"] = stage
	store.TasksByID["t1"] = task
	return store, task
}

func router(store *storagetest.Store) http.Handler {
	h := NewHandler(store)
	r := chi.NewRouter()
	r.Route("/tasks/{taskID}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Put("/", h.Update)
		r.Delete("/", h.Delete)
		r.Get("/activities", h.ListActivities)
	})
	r.Post("/stages/{stageID}/tasks", h.Create)
	r.Get("/tasks", h.List)
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

func errMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return resp.Error.Message
}

func TestUpdate_ProtectedFieldsRequireCreatorOrPrivileged(t *testing.T) {
	store, task := fixture()
	r := router(store)

	prio := "highest"
	rec := do(t, r, http.MethodPut, "/tasks/t1", "other", UpdateRequest{Priority: &prio})

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if msg := errMessage(t, rec); msg != "Unauthorized" {
		t.Errorf("message = %q, want Unauthorized", msg)
	}
	if task.Priority != models.PriorityMedium {
		t.Errorf("priority changed to %s on a rejected update", task.Priority)
	}
}

func TestUpdate_IllegalTransitionIsSilentlyIgnored(t *testing.T) {
	store, task := fixture()
	r := router(store)

	status := "done"
	rec := do(t, r, http.MethodPut, "/tasks/t1", "other", UpdateRequest{Status: &status})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if task.Status != models.StatusOpen {
		t.Errorf("task status = %s, want open (transition ignored)", task.Status)
	}
	if len(store.ActsByID) != 0 {
		t.Errorf("ignored transition wrote %d audit records, want 0", len(store.ActsByID))
	}
	if len(task.ActivityIDs) != 0 {
		t.Errorf("ignored transition grew ActivityIDs: %v", task.ActivityIDs)
	}
}

func TestUpdate_LegalTransitionIsRecorded(t *testing.T) {
	store, task := fixture()
	r := router(store)

	status := "inprogress"
	rec := do(t, r, http.MethodPut, "/tasks/t1", "other", UpdateRequest{Status: &status})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if task.Status != models.StatusInProgress {
		t.Errorf("task status = %s, want inprogress", task.Status)
	}
	if len(store.ActsByID) != 1 {
		t.Fatalf("got %d audit records, want 1", len(store.ActsByID))
	}
	if len(task.ActivityIDs) != 1 {
		t.Fatalf("ActivityIDs = %v, want one entry", task.ActivityIDs)
	}
	rec2 := store.ActsByID[task.ActivityIDs[0]]
	if rec2 == nil {
		t.Fatal("ActivityIDs[0] does not match the stored record")
	}
	if rec2.Action != models.ActionUpdate || rec2.ActorID != "other" {
		t.Errorf("record = %+v", rec2)
	}
}

func TestUpdate_PrivilegedForcesAnyStatus(t *testing.T) {
	store, task := fixture()
	r := router(store)

	status := "done"
	rec := do(t, r, http.MethodPut, "/tasks/t1", "mgr", UpdateRequest{Status: &status})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if task.Status != models.StatusDone {
		t.Errorf("task status = %s, want done (forced)", task.Status)
	}
	if len(task.ActivityIDs) != 1 {
		t.Fatalf("ActivityIDs = %v, want one entry", task.ActivityIDs)
	}
	if rec2 := store.ActsByID[task.ActivityIDs[0]]; rec2.Action != models.ActionComplete {
		t.Errorf("action = %s, want %s", rec2.Action, models.ActionComplete)
	}
}

func TestUpdate_CreatorMayEditFields(t *testing.T) {
	store, task := fixture()
	r := router(store)

	title := "Fix login redirect"
	rec := do(t, r, http.MethodPut, "/tasks/t1", "creator", UpdateRequest{Title: &title})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if task.Title != title {
		t.Errorf("title = %q, want %q", task.Title, title)
	}
	if len(store.ActsByID) != 1 {
		t.Errorf("got %d audit records, want 1", len(store.ActsByID))
	}
}

func TestUpdate_NonMemberGetsUnauthorized(t *testing.T) {
	store, _ := fixture()
	r := router(store)

	title := "hijack"
	rec := do(t, r, http.MethodPut, "/tasks/t1", "outsider", UpdateRequest{Title: &title})

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestCreate_WritesCreateRecordAndLinksStage(t *testing.T) {
	store, _ := fixture()
	r := router(store)

	now := time.Now()
	rec := do(t, r, http.MethodPost, "/stages/s1/tasks", "other", CreateRequest{
		Title:     "Write docs",
		Priority:  "low",
		StartDate: now,
		Deadline:  now.AddDate(0, 0, 3),
	})

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	if len(store.TasksByID) != 2 {
		t.Fatalf("got %d tasks, want 2", len(store.TasksByID))
	}
	stage := store.StagesByID["s1"]
	if len(stage.TaskIDs) != 2 {
		t.Errorf("stage TaskIDs = %v, want the new task appended", stage.TaskIDs)
	}
	if len(store.ActsByID) != 1 {
		t.Fatalf("got %d audit records, want the create record", len(store.ActsByID))
	}
	for _, a := range store.ActsByID {
		if a.Action != models.ActionCreate {
			t.Errorf("action = %s, want %s", a.Action, models.ActionCreate)
		}
	}
}

func TestCreate_AssigneeMustBeMember(t *testing.T) {
	store, _ := fixture()
	r := router(store)

	now := time.Now()
	rec := do(t, r, http.MethodPost, "/stages/s1/tasks", "other", CreateRequest{
		Title:     "Write docs",
		Priority:  "low",
		StartDate: now,
		Deadline:  now.AddDate(0, 0, 3),
		Assignee:  "outsider",
	})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestDelete_CascadesAndUnlinks(t *testing.T) {
	store, _ := fixture()
	store.CommentsByID["c1"] = &models.Comment{ID: "c1", TaskID: "t1"}
	store.ActsByID["a1"] = &models.Activity{ID: "a1", TaskID: "t1"}
	r := router(store)

	rec := do(t, r, http.MethodDelete, "/tasks/t1", "creator", nil)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204: %s", rec.Code, rec.Body.String())
	}
	if len(store.TasksByID) != 0 {
		t.Error("task should be deleted")
	}
	if len(store.CommentsByID) != 0 {
		t.Error("task comments should cascade")
	}
	if len(store.ActsByID) != 0 {
		t.Error("task audit records should cascade")
	}
	if got := store.StagesByID["s1"].TaskIDs; len(got) != 0 {
		t.Errorf("stage TaskIDs = %v, want empty", got)
	}
}

func TestDelete_PlainMemberDenied(t *testing.T) {
	store, _ := fixture()
	r := router(store)

	rec := do(t, r, http.MethodDelete, "/tasks/t1", "other", nil)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if len(store.TasksByID) != 1 {
		t.Error("task should survive a denied delete")
	}
}

func TestList_EmptyAggregationIsNotFound(t *testing.T) {
	store, _ := fixture()
	r := router(store)

	rec := do(t, r, http.MethodGet, "/tasks", "other", nil)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if msg := errMessage(t, rec); msg != "No tasks found" {
		t.Errorf("message = %q, want No tasks found", msg)
	}
}

func TestList_ReturnsPreloadedPage(t *testing.T) {
	store, _ := fixture()
	store.TaskPage = &storage.TaskPage{Total: 1}
	r := router(store)

	rec := do(t, r, http.MethodGet, "/tasks", "other", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
}
