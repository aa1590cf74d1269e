// Package storage provides document-store interfaces and the MongoDB
// implementation.
package storage

import (
	"context"
	"time"

	"github.com/calm-green-heron/stagewise/internal/models"
)

// Storage is the main interface for database operations.
type Storage interface {
	// Open initializes the database connection.
	Open(ctx context.Context) error
	// Close closes the database connection.
	Close(ctx context.Context) error
	// EnsureIndexes creates the unique indexes the data model relies on
	// (users.username, users.email, projects.code).
	EnsureIndexes(ctx context.Context) error

	// Repository accessors
	Users() UserRepository
	Projects() ProjectRepository
	Stages() StageRepository
	Tasks() TaskRepository
	Comments() CommentRepository
	Activities() ActivityRepository
	Tokens() TokenRepository
}

// StageListParams parameterizes the cross-project stage list view.
type StageListParams struct {
	UserID string
	Name   string // optional case-insensitive substring filter
	Page   int    // 1-based
	Limit  int
}

// StagePage is the stage list view envelope. Total counts the filtered set
// before pagination; TotalPages = ceil(Total/Limit).
type StagePage struct {
	Stages      []models.Stage `bson:"stages" json:"stages"`
	CurrentPage int32          `bson:"currentPage" json:"currentPage"`
	Total       int32          `bson:"total" json:"total"`
	TotalPages  int32          `bson:"totalPages" json:"totalPages"`
}

// TaskListParams parameterizes the cross-project task list view.
type TaskListParams struct {
	UserID string
	// ParticipantOnly restricts the view to tasks the caller created or is
	// assigned to; otherwise every task in the caller's projects is listed.
	ParticipantOnly bool
}

// TaskRef identifies the project or stage a task view row belongs to.
type TaskRef struct {
	ID   string `bson:"id" json:"id"`
	Name string `bson:"name" json:"name"`
	Code string `bson:"code,omitempty" json:"code,omitempty"`
}

// TaskView is one row of the task list view: the task with creator and
// assignee joined in as public-safe projections and the owning project and
// stage annotated.
type TaskView struct {
	ID          string              `bson:"_id" json:"id"`
	Title       string              `bson:"title" json:"title"`
	Type        models.TaskType     `bson:"type" json:"type"`
	Priority    models.TaskPriority `bson:"priority" json:"priority"`
	CreatedDate time.Time           `bson:"created_date" json:"createdDate"`
	StartDate   time.Time           `bson:"start_date" json:"startDate"`
	Deadline    time.Time           `bson:"deadline" json:"deadline"`
	EndDate     *time.Time          `bson:"end_date,omitempty" json:"endDate,omitempty"`
	Description string              `bson:"description,omitempty" json:"description,omitempty"`
	Status      models.TaskStatus   `bson:"status" json:"status"`
	CreatedBy   *models.PublicUser  `bson:"created_by,omitempty" json:"createdBy,omitempty"`
	Assignee    *models.PublicUser  `bson:"assignee,omitempty" json:"assignee,omitempty"`
	Project     TaskRef             `bson:"project" json:"project"`
	Stage       TaskRef             `bson:"stage" json:"stage"`
}

// TaskPage is the task list view envelope.
type TaskPage struct {
	Tasks []TaskView `bson:"tasks" json:"tasks"`
	Total int32      `bson:"total" json:"total"`
}

// UserRepository defines operations for user accounts.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id string) error
	// List returns one page of users sorted by full name, plus the total count.
	List(ctx context.Context, page, limit int) ([]*models.User, int64, error)
	// Search matches the query case-insensitively against full name,
	// username, and email.
	Search(ctx context.Context, query string) ([]*models.User, int64, error)
	Count(ctx context.Context) (int64, error)
}

// ProjectRepository defines operations for projects, including the
// cross-document aggregation views.
type ProjectRepository interface {
	Create(ctx context.Context, project *models.Project) error
	GetByID(ctx context.Context, id string) (*models.Project, error)
	// GetByStageID finds the project whose stage list references the stage.
	GetByStageID(ctx context.Context, stageID string) (*models.Project, error)
	Update(ctx context.Context, project *models.Project) error
	Delete(ctx context.Context, id string) error
	// PullStage removes a stage reference from the project's stage list.
	PullStage(ctx context.Context, projectID, stageID string) error
	ListForUser(ctx context.Context, userID string) ([]*models.Project, error)
	SearchByName(ctx context.Context, userID, name string) ([]*models.Project, error)
	ListByStatus(ctx context.Context, userID string, status models.ProjectStatus) ([]*models.Project, error)

	// SearchStages runs the stage list aggregation. A nil result means the
	// filtered set was empty (the not-found condition, distinct from an
	// empty in-range page).
	SearchStages(ctx context.Context, p StageListParams) (*StagePage, error)
	// SearchTasks runs the task list aggregation; nil means no matches.
	SearchTasks(ctx context.Context, p TaskListParams) (*TaskPage, error)
}

// StageRepository defines operations for stages.
type StageRepository interface {
	Create(ctx context.Context, stage *models.Stage) error
	GetByID(ctx context.Context, id string) (*models.Stage, error)
	GetByIDs(ctx context.Context, ids []string) ([]*models.Stage, error)
	// GetByTaskID finds the stage whose task list references the task.
	GetByTaskID(ctx context.Context, taskID string) (*models.Stage, error)
	Update(ctx context.Context, stage *models.Stage) error
	Delete(ctx context.Context, id string) error
}

// TaskRepository defines operations for tasks.
type TaskRepository interface {
	Create(ctx context.Context, task *models.Task) error
	GetByID(ctx context.Context, id string) (*models.Task, error)
	GetByIDs(ctx context.Context, ids []string) ([]*models.Task, error)
	Update(ctx context.Context, task *models.Task) error
	Delete(ctx context.Context, id string) error
}

// CommentRepository defines operations for task comments.
type CommentRepository interface {
	Create(ctx context.Context, comment *models.Comment) error
	GetByID(ctx context.Context, id string) (*models.Comment, error)
	ListByTask(ctx context.Context, taskID string) ([]*models.Comment, error)
	Delete(ctx context.Context, id string) error
	DeleteByTask(ctx context.Context, taskID string) (int64, error)
}

// ActivityRepository defines operations for audit records. Records are
// append-only: there is no update, and deletion happens only as a cascade
// when the owning task is removed.
type ActivityRepository interface {
	Create(ctx context.Context, activity *models.Activity) error
	// ListByTask returns the task's records newest first.
	ListByTask(ctx context.Context, taskID string) ([]*models.Activity, error)
	DeleteByTask(ctx context.Context, taskID string) (int64, error)
}

// TokenRepository defines operations for refresh token management.
type TokenRepository interface {
	Create(ctx context.Context, token *models.RefreshToken) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error)
	RevokeByTokenHash(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, userID string) error
	DeleteExpired(ctx context.Context) (int64, error)
}
