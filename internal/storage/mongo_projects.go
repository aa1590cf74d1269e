package storage

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/calm-green-heron/stagewise/internal/models"
)

type mongoProjectRepo struct {
	col *mongo.Collection
}

func (r *mongoProjectRepo) Create(ctx context.Context, project *models.Project) error {
	if _, err := r.col.InsertOne(ctx, project); err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

func (r *mongoProjectRepo) getOne(ctx context.Context, filter bson.D) (*models.Project, error) {
	var project models.Project
	err := r.col.FindOne(ctx, filter).Decode(&project)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find project: %w", err)
	}
	return &project, nil
}

func (r *mongoProjectRepo) GetByID(ctx context.Context, id string) (*models.Project, error) {
	return r.getOne(ctx, bson.D{{Key: "_id", Value: id}})
}

func (r *mongoProjectRepo) GetByStageID(ctx context.Context, stageID string) (*models.Project, error) {
	return r.getOne(ctx, bson.D{{Key: "stages", Value: stageID}})
}

func (r *mongoProjectRepo) Update(ctx context.Context, project *models.Project) error {
	res, err := r.col.ReplaceOne(ctx, bson.D{{Key: "_id", Value: project.ID}}, project)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("project %s not found", project.ID)
	}
	return nil
}

func (r *mongoProjectRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.col.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}}); err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	return nil
}

func (r *mongoProjectRepo) PullStage(ctx context.Context, projectID, stageID string) error {
	_, err := r.col.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: projectID}},
		bson.D{{Key: "$pull", Value: bson.D{{Key: "stages", Value: stageID}}}},
	)
	if err != nil {
		return fmt.Errorf("pull stage: %w", err)
	}
	return nil
}

func (r *mongoProjectRepo) find(ctx context.Context, filter bson.D) ([]*models.Project, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_date", Value: -1}})
	cursor, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find projects: %w", err)
	}
	defer cursor.Close(ctx)

	var projects []*models.Project
	if err := cursor.All(ctx, &projects); err != nil {
		return nil, fmt.Errorf("decode projects: %w", err)
	}
	return projects, nil
}

func memberFilter(userID string) bson.E {
	return bson.E{Key: "members." + userID, Value: bson.D{{Key: "$exists", Value: true}}}
}

func (r *mongoProjectRepo) ListForUser(ctx context.Context, userID string) ([]*models.Project, error) {
	return r.find(ctx, bson.D{memberFilter(userID)})
}

func (r *mongoProjectRepo) SearchByName(ctx context.Context, userID, name string) ([]*models.Project, error) {
	return r.find(ctx, bson.D{
		memberFilter(userID),
		{Key: "name", Value: bson.D{{Key: "$regex", Value: name}, {Key: "$options", Value: "i"}}},
	})
}

func (r *mongoProjectRepo) ListByStatus(ctx context.Context, userID string, status models.ProjectStatus) ([]*models.Project, error) {
	return r.find(ctx, bson.D{
		memberFilter(userID),
		{Key: "status", Value: status},
	})
}

// SearchStages runs the stage list aggregation. The pipeline yields either a
// single envelope document or nothing at all; nothing means the filtered set
// was empty, which is surfaced as a nil page.
func (r *mongoProjectRepo) SearchStages(ctx context.Context, p StageListParams) (*StagePage, error) {
	cursor, err := r.col.Aggregate(ctx, StageListPipeline(p))
	if err != nil {
		return nil, fmt.Errorf("aggregate stages: %w", err)
	}
	defer cursor.Close(ctx)

	var pages []StagePage
	if err := cursor.All(ctx, &pages); err != nil {
		return nil, fmt.Errorf("decode stage page: %w", err)
	}
	if len(pages) == 0 {
		return nil, nil
	}
	return &pages[0], nil
}

// SearchTasks runs the task list aggregation; nil means no matches.
func (r *mongoProjectRepo) SearchTasks(ctx context.Context, p TaskListParams) (*TaskPage, error) {
	cursor, err := r.col.Aggregate(ctx, TaskListPipeline(p))
	if err != nil {
		return nil, fmt.Errorf("aggregate tasks: %w", err)
	}
	defer cursor.Close(ctx)

	var pages []TaskPage
	if err := cursor.All(ctx, &pages); err != nil {
		return nil, fmt.Errorf("decode task page: %w", err)
	}
	if len(pages) == 0 {
		return nil, nil
	}
	return &pages[0], nil
}
