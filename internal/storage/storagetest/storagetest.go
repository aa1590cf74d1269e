// Package storagetest provides an in-memory Storage implementation for
// handler and service tests.
package storagetest

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/calm-green-heron/stagewise/internal/models"
	"github.com/calm-green-heron/stagewise/internal/storage"
)

// Store is an in-memory storage.Storage. Zero value is not usable; call New.
// The aggregation views (SearchStages, SearchTasks) cannot run without a
// database, so tests preload their results via StagePage and TaskPage.
type Store struct {
	UsersByID    map[string]*models.User
	ProjectsByID map[string]*models.Project
	StagesByID   map[string]*models.Stage
	TasksByID    map[string]*models.Task
	CommentsByID map[string]*models.Comment
	ActsByID     map[string]*models.Activity
	TokensByHash map[string]*models.RefreshToken

	StagePage *storage.StagePage
	TaskPage  *storage.TaskPage

	// Err, when set, is returned by every repository call.
	Err error
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		UsersByID:    make(map[string]*models.User),
		ProjectsByID: make(map[string]*models.Project),
		StagesByID:   make(map[string]*models.Stage),
		TasksByID:    make(map[string]*models.Task),
		CommentsByID: make(map[string]*models.Comment),
		ActsByID:     make(map[string]*models.Activity),
		TokensByHash: make(map[string]*models.RefreshToken),
	}
}

var _ storage.Storage = (*Store)(nil)

func (s *Store) Open(ctx context.Context) error          { return s.Err }
func (s *Store) Close(ctx context.Context) error         { return s.Err }
func (s *Store) EnsureIndexes(ctx context.Context) error { return s.Err }

func (s *Store) Users() storage.UserRepository         { return userRepo{s} }
func (s *Store) Projects() storage.ProjectRepository   { return projectRepo{s} }
func (s *Store) Stages() storage.StageRepository       { return stageRepo{s} }
func (s *Store) Tasks() storage.TaskRepository         { return taskRepo{s} }
func (s *Store) Comments() storage.CommentRepository   { return commentRepo{s} }
func (s *Store) Activities() storage.ActivityRepository { return activityRepo{s} }
func (s *Store) Tokens() storage.TokenRepository       { return tokenRepo{s} }

// Users

type userRepo struct{ s *Store }

func (r userRepo) Create(ctx context.Context, user *models.User) error {
	if r.s.Err != nil {
		return r.s.Err
	}
	r.s.UsersByID[user.ID] = user
	return nil
}

func (r userRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	if r.s.Err != nil {
		return nil, r.s.Err
	}
	return r.s.UsersByID[id], nil
}

func (r userRepo) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	if r.s.Err != nil {
		return nil, r.s.Err
	}
	for _, u := range r.s.UsersByID {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, nil
}

func (r userRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if r.s.Err != nil {
		return nil, r.s.Err
	}
	for _, u := range r.s.UsersByID {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return nil, nil
}

func (r userRepo) Update(ctx context.Context, user *models.User) error {
	if r.s.Err != nil {
		return r.s.Err
	}
	r.s.UsersByID[user.ID] = user
	return nil
}

func (r userRepo) Delete(ctx context.Context, id string) error {
	if r.s.Err != nil {
		return r.s.Err
	}
	delete(r.s.UsersByID, id)
	return nil
}

func (r userRepo) List(ctx context.Context, page, limit int) ([]*models.User, int64, error) {
	if r.s.Err != nil {
		return nil, 0, r.s.Err
	}
	all := r.sorted()
	start := (page - 1) * limit
	if start > len(all) {
		start = len(all)
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], int64(len(all)), nil
}

func (r userRepo) Search(ctx context.Context, query string) ([]*models.User, int64, error) {
	if r.s.Err != nil {
		return nil, 0, r.s.Err
	}
	q := strings.ToLower(query)
	var out []*models.User
	for _, u := range r.sorted() {
		if strings.Contains(strings.ToLower(u.FullName), q) ||
			strings.Contains(strings.ToLower(u.Username), q) ||
			strings.Contains(strings.ToLower(u.Email), q) {
			out = append(out, u)
		}
	}
	return out, int64(len(out)), nil
}

func (r userRepo) Count(ctx context.Context) (int64, error) {
	if r.s.Err != nil {
		return 0, r.s.Err
	}
	return int64(len(r.s.UsersByID)), nil
}

func (r userRepo) sorted() []*models.User {
	out := make([]*models.User, 0, len(r.s.UsersByID))
	for _, u := range r.s.UsersByID {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	return out
}

// Projects

type projectRepo struct{ s *Store }

func (r projectRepo) Create(ctx context.Context, project *models.Project) error {
	if r.s.Err != nil {
		return r.s.Err
	}
	r.s.ProjectsByID[project.ID] = project
	return nil
}

func (r projectRepo) GetByID(ctx context.Context, id string) (*models.Project, error) {
	if r.s.Err != nil {
		return nil, r.s.Err
	}
	return r.s.ProjectsByID[id], nil
}

func (r projectRepo) GetByStageID(ctx context.Context, stageID string) (*models.Project, error) {
	if r.s.Err != nil {
		return nil, r.s.Err
	}
	for _, p := range r.s.ProjectsByID {
		for _, id := range p.StageIDs {
			if id == stageID {
				return p, nil
			}
		}
	}
	return nil, nil
}

func (r projectRepo) Update(ctx context.Context, project *models.Project) error {
	if r.s.Err != nil {
		return r.s.Err
	}
	r.s.ProjectsByID[project.ID] = project
	return nil
}

func (r projectRepo) Delete(ctx context.Context, id string) error {
	if r.s.Err != nil {
		return r.s.Err
	}
	delete(r.s.ProjectsByID, id)
	return nil
}

func (r projectRepo) PullStage(ctx context.Context, projectID, stageID string) error {
	if r.s.Err != nil {
		return r.s.Err
	}
	p, ok := r.s.ProjectsByID[projectID]
	if !ok {
		return nil
	}
	kept := p.StageIDs[:0]
	for _, id := range p.StageIDs {
		if id != stageID {
			kept = append(kept, id)
		}
	}
	p.StageIDs = kept
	return nil
}

func (r projectRepo) ListForUser(ctx context.Context, userID string) ([]*models.Project, error) {
	if r.s.Err != nil {
		return nil, r.s.Err
	}
	var out []*models.Project
	for _, p := range r.s.ProjectsByID {
		if _, ok := p.Members[userID]; ok {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedDate.After(out[j].CreatedDate) })
	return out, nil
}

func (r projectRepo) SearchByName(ctx context.Context, userID, name string) ([]*models.Project, error) {
	all, err := r.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	var out []*models.Project
	for _, p := range all {
		if strings.Contains(strings.ToLower(p.Name), strings.ToLower(name)) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r projectRepo) ListByStatus(ctx context.Context, userID string, status models.ProjectStatus) ([]*models.Project, error) {
	all, err := r.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	var out []*models.Project
	for _, p := range all {
		if p.Status == status {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r projectRepo) SearchStages(ctx context.Context, p storage.StageListParams) (*storage.StagePage, error) {
	if r.s.Err != nil {
		return nil, r.s.Err
	}
	return r.s.StagePage, nil
}

func (r projectRepo) SearchTasks(ctx context.Context, p storage.TaskListParams) (*storage.TaskPage, error) {
	if r.s.Err != nil {
		return nil, r.s.Err
	}
	return r.s.TaskPage, nil
}

// Stages

type stageRepo struct{ s *Store }

func (r stageRepo) Create(ctx context.Context, stage *models.Stage) error {
	if r.s.Err != nil {
		return r.s.Err
	}
	r.s.StagesByID[stage.ID] = stage
	return nil
}

func (r stageRepo) GetByID(ctx context.Context, id string) (*models.Stage, error) {
	if r.s.Err != nil {
		return nil, r.s.Err
	}
	return r.s.StagesByID[id], nil
}

func (r stageRepo) GetByIDs(ctx context.Context, ids []string) ([]*models.Stage, error) {
	if r.s.Err != nil {
		return nil, r.s.Err
	}
	var out []*models.Stage
	for _, id := range ids {
		if st, ok := r.s.StagesByID[id]; ok {
			out = append(out, st)
		}
	}
	return out, nil
}

func (r stageRepo) GetByTaskID(ctx context.Context, taskID string) (*models.Stage, error) {
	if r.s.Err != nil {
		return nil, r.s.Err
	}
	for _, st := range r.s.StagesByID {
		for _, id := range st.TaskIDs {
			if id == taskID {
				return st, nil
			}
		}
	}
	return nil, nil
}

func (r stageRepo) Update(ctx context.Context, stage *models.Stage) error {
	if r.s.Err != nil {
		return r.s.Err
	}
	r.s.StagesByID[stage.ID] = stage
	return nil
}

func (r stageRepo) Delete(ctx context.Context, id string) error {
	if r.s.Err != nil {
		return r.s.Err
	}
	delete(r.s.StagesByID, id)
	return nil
}

// Tasks

type taskRepo struct{ s *Store }

func (r taskRepo) Create(ctx context.Context, task *models.Task) error {
	if r.s.Err != nil {
		return r.s.Err
	}
	r.s.TasksByID[task.ID] = task
	return nil
}

func (r taskRepo) GetByID(ctx context.Context, id string) (*models.Task, error) {
	if r.s.Err != nil {
		return nil, r.s.Err
	}
	return r.s.TasksByID[id], nil
}

func (r taskRepo) GetByIDs(ctx context.Context, ids []string) ([]*models.Task, error) {
	if r.s.Err != nil {
		return nil, r.s.Err
	}
	var out []*models.Task
	for _, id := range ids {
		if t, ok := r.s.TasksByID[id]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r taskRepo) Update(ctx context.Context, task *models.Task) error {
	if r.s.Err != nil {
		return r.s.Err
	}
	r.s.TasksByID[task.ID] = task
	return nil
}

func (r taskRepo) Delete(ctx context.Context, id string) error {
	if r.s.Err != nil {
		return r.s.Err
	}
	delete(r.s.TasksByID, id)
	return nil
}

// Comments

type commentRepo struct{ s *Store }

func (r commentRepo) Create(ctx context.Context, comment *models.Comment) error {
	if r.s.Err != nil {
		return r.s.Err
	}
	r.s.CommentsByID[comment.ID] = comment
	return nil
}

func (r commentRepo) GetByID(ctx context.Context, id string) (*models.Comment, error) {
	if r.s.Err != nil {
		return nil, r.s.Err
	}
	return r.s.CommentsByID[id], nil
}

func (r commentRepo) ListByTask(ctx context.Context, taskID string) ([]*models.Comment, error) {
	if r.s.Err != nil {
		return nil, r.s.Err
	}
	var out []*models.Comment
	for _, c := range r.s.CommentsByID {
		if c.TaskID == taskID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedDate.Before(out[j].CreatedDate) })
	return out, nil
}

func (r commentRepo) Delete(ctx context.Context, id string) error {
	if r.s.Err != nil {
		return r.s.Err
	}
	delete(r.s.CommentsByID, id)
	return nil
}

func (r commentRepo) DeleteByTask(ctx context.Context, taskID string) (int64, error) {
	if r.s.Err != nil {
		return 0, r.s.Err
	}
	var n int64
	for id, c := range r.s.CommentsByID {
		if c.TaskID == taskID {
			delete(r.s.CommentsByID, id)
			n++
		}
	}
	return n, nil
}

// Activities

type activityRepo struct{ s *Store }

func (r activityRepo) Create(ctx context.Context, activity *models.Activity) error {
	if r.s.Err != nil {
		return r.s.Err
	}
	r.s.ActsByID[activity.ID] = activity
	return nil
}

func (r activityRepo) ListByTask(ctx context.Context, taskID string) ([]*models.Activity, error) {
	if r.s.Err != nil {
		return nil, r.s.Err
	}
	var out []*models.Activity
	for _, a := range r.s.ActsByID {
		if a.TaskID == taskID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

func (r activityRepo) DeleteByTask(ctx context.Context, taskID string) (int64, error) {
	if r.s.Err != nil {
		return 0, r.s.Err
	}
	var n int64
	for id, a := range r.s.ActsByID {
		if a.TaskID == taskID {
			delete(r.s.ActsByID, id)
			n++
		}
	}
	return n, nil
}

// Tokens

type tokenRepo struct{ s *Store }

func (r tokenRepo) Create(ctx context.Context, token *models.RefreshToken) error {
	if r.s.Err != nil {
		return r.s.Err
	}
	r.s.TokensByHash[token.TokenHash] = token
	return nil
}

func (r tokenRepo) GetByTokenHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	if r.s.Err != nil {
		return nil, r.s.Err
	}
	return r.s.TokensByHash[tokenHash], nil
}

func (r tokenRepo) RevokeByTokenHash(ctx context.Context, tokenHash string) error {
	if r.s.Err != nil {
		return r.s.Err
	}
	if t, ok := r.s.TokensByHash[tokenHash]; ok {
		now := time.Now()
		t.Revoked = true
		t.RevokedAt = &now
	}
	return nil
}

func (r tokenRepo) RevokeAllForUser(ctx context.Context, userID string) error {
	if r.s.Err != nil {
		return r.s.Err
	}
	now := time.Now()
	for _, t := range r.s.TokensByHash {
		if t.UserID == userID {
			t.Revoked = true
			t.RevokedAt = &now
		}
	}
	return nil
}

func (r tokenRepo) DeleteExpired(ctx context.Context) (int64, error) {
	if r.s.Err != nil {
		return 0, r.s.Err
	}
	var n int64
	for hash, t := range r.s.TokensByHash {
		if t.IsExpired() {
			delete(r.s.TokensByHash, hash)
			n++
		}
	}
	return n, nil
}
