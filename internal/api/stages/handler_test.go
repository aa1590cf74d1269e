package stages

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

func day(n int) time.Time {
	return time.Date(2026, 1, n, 0, 0, 0, 0, time.UTC)
}

// fixture builds a project led by "mgr" with plain member "mbr" and one
// stage holding a finished and an unfinished task.
func fixture() *storagetest.Store {
	store := storagetest.New()

	now := time.Now()
	store.ProjectsByID["p1"] = &models.Project{
		ID:   "p1",
		Code: "prj-0123456789",
		Name: "Rollout",
		Members: map[string]models.Member{
			"mgr": {UserID: "mgr", Role: models.RoleManager, JoiningDate: now},
			"mbr": {UserID: "mbr", Role: models.RoleMember, JoiningDate: now},
		},
		StageIDs: []string{"s1"},
	}
	store.StagesByID["s1"] = &models.Stage{
		ID:              "s1",
		ProjectID:       "p1",
		Name:            "Sprint 1",
		Sequence:        1,
		StartDate:       day(1),
		EndDateExpected: day(10),
		TaskIDs:         []string{"t1", "t2"},
	}
	store.TasksByID["t1"] = &models.Task{ID: "t1", Title: "done task", Status: models.StatusDone}
	store.TasksByID["t2"] = &models.Task{ID: "t2", Title: "open task", Status: models.StatusInProgress}
	return store
}

func router(store *storagetest.Store) http.Handler {
	h := NewHandler(store)
	r := chi.NewRouter()
	r.Get("/stages", h.List)
	r.Get("/stages/search", h.Search)
	r.Route("/stages/{stageID}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Put("/", h.Update)
		r.Delete("/", h.Delete)
	})
	r.Post("/projects/{projectID}/stages", h.Create)
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

func TestCreate_CarriesForwardUnfinishedTasks(t *testing.T) {
	store := fixture()
	r := router(store)

	rec := do(t, r, http.MethodPost, "/projects/p1/stages", "mgr", CreateRequest{
		Name:            "Sprint 2",
		StartDate:       day(11),
		EndDateExpected: day(20),
	})

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	project := store.ProjectsByID["p1"]
	if len(project.StageIDs) != 2 {
		t.Fatalf("project StageIDs = %v, want 2 entries", project.StageIDs)
	}
	if project.StageIDs[1] != "s1" {
		t.Errorf("new stage should be prepended, got %v", project.StageIDs)
	}

	created := store.StagesByID[project.StageIDs[0]]
	if created == nil {
		t.Fatal("created stage not stored")
	}
	if created.Sequence != 2 {
		t.Errorf("Sequence = %d, want 2", created.Sequence)
	}
	if len(created.TaskIDs) != 1 || created.TaskIDs[0] != "t2" {
		t.Errorf("carried tasks = %v, want [t2]", created.TaskIDs)
	}

	old := store.StagesByID["s1"]
	if len(old.TaskIDs) != 1 || old.TaskIDs[0] != "t1" {
		t.Errorf("previous stage keeps %v, want [t1]", old.TaskIDs)
	}
}

func TestCreate_RejectsOverlappingDates(t *testing.T) {
	store := fixture()
	r := router(store)

	// Starts before the newest stage ends.
	rec := do(t, r, http.MethodPost, "/projects/p1/stages", "mgr", CreateRequest{
		Name:            "Sprint 2",
		StartDate:       day(5),
		EndDateExpected: day(20),
	})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
	}
	if len(store.StagesByID) != 1 {
		t.Error("rejected stage should not be stored")
	}
}

func TestCreate_RequiresManagerOrLeader(t *testing.T) {
	store := fixture()
	r := router(store)

	rec := do(t, r, http.MethodPost, "/projects/p1/stages", "mbr", CreateRequest{
		Name:            "Sprint 2",
		StartDate:       day(11),
		EndDateExpected: day(20),
	})

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestCreate_FirstStageOfEmptyProject(t *testing.T) {
	store := fixture()
	store.ProjectsByID["p1"].StageIDs = nil
	r := router(store)

	rec := do(t, r, http.MethodPost, "/projects/p1/stages", "mgr", CreateRequest{
		Name:            "Kickoff",
		StartDate:       day(1),
		EndDateExpected: day(10),
	})

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	created := store.StagesByID[store.ProjectsByID["p1"].StageIDs[0]]
	if created.Sequence != 1 {
		t.Errorf("first stage Sequence = %d, want 1", created.Sequence)
	}
}

func TestUpdate_DateMustClearOlderSibling(t *testing.T) {
	store := fixture()
	project := store.ProjectsByID["p1"]
	store.StagesByID["s2"] = &models.Stage{
		ID:              "s2",
		ProjectID:       "p1",
		Name:            "Sprint 2",
		Sequence:        2,
		StartDate:       day(11),
		EndDateExpected: day(20),
	}
	project.StageIDs = []string{"s2", "s1"}
	r := router(store)

	// Moving s2's start inside s1 violates the ordering.
	start := day(5)
	rec := do(t, r, http.MethodPut, "/stages/s2", "mgr", UpdateRequest{StartDate: &start})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
	}

	start = day(12)
	rec = do(t, r, http.MethodPut, "/stages/s2", "mgr", UpdateRequest{StartDate: &start})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if !store.StagesByID["s2"].StartDate.Equal(day(12)) {
		t.Errorf("StartDate = %v, want day 12", store.StagesByID["s2"].StartDate)
	}
}

func TestSearch_RequiresName(t *testing.T) {
	store := fixture()
	r := router(store)

	rec := do(t, r, http.MethodGet, "/stages/search", "mbr", nil)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if msg := errMessage(t, rec); msg != "Query not found" {
		t.Errorf("message = %q, want Query not found", msg)
	}
}

func TestList_EmptyAggregationIsNotFound(t *testing.T) {
	store := fixture()
	r := router(store)

	rec := do(t, r, http.MethodGet, "/stages", "mbr", nil)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if msg := errMessage(t, rec); msg != "No stages found" {
		t.Errorf("message = %q, want No stages found", msg)
	}
}

func TestList_ReturnsPreloadedPage(t *testing.T) {
	store := fixture()
	store.StagePage = &storage.StagePage{CurrentPage: 1, Total: 1, TotalPages: 1}
	r := router(store)

	rec := do(t, r, http.MethodGet, "/stages?page=1&limit=10", "mbr", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
}

func TestDelete_CascadesTasks(t *testing.T) {
	store := fixture()
	store.CommentsByID["c1"] = &models.Comment{ID: "c1", TaskID: "t2"}
	store.ActsByID["a1"] = &models.Activity{ID: "a1", TaskID: "t2"}
	r := router(store)

	rec := do(t, r, http.MethodDelete, "/stages/s1", "mgr", nil)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204: %s", rec.Code, rec.Body.String())
	}
	if len(store.StagesByID) != 0 {
		t.Error("stage should be deleted")
	}
	if len(store.TasksByID) != 0 {
		t.Error("stage tasks should cascade")
	}
	if len(store.CommentsByID) != 0 || len(store.ActsByID) != 0 {
		t.Error("task comments and audit records should cascade")
	}
	if got := store.ProjectsByID["p1"].StageIDs; len(got) != 0 {
		t.Errorf("project StageIDs = %v, want empty", got)
	}
}

func TestGet_NonMemberDenied(t *testing.T) {
	store := fixture()
	r := router(store)

	rec := do(t, r, http.MethodGet, "/stages/s1", "outsider", nil)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
