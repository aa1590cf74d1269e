package storage

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/calm-green-heron/stagewise/internal/models"
)

type mongoStageRepo struct {
	col *mongo.Collection
}

func (r *mongoStageRepo) Create(ctx context.Context, stage *models.Stage) error {
	if _, err := r.col.InsertOne(ctx, stage); err != nil {
		return fmt.Errorf("insert stage: %w", err)
	}
	return nil
}

func (r *mongoStageRepo) GetByID(ctx context.Context, id string) (*models.Stage, error) {
	var stage models.Stage
	err := r.col.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&stage)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find stage: %w", err)
	}
	return &stage, nil
}

// GetByIDs loads stages in the order the ids are given, skipping any that
// no longer exist.
func (r *mongoStageRepo) GetByIDs(ctx context.Context, ids []string) ([]*models.Stage, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cursor, err := r.col.Find(ctx, bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: ids}}}})
	if err != nil {
		return nil, fmt.Errorf("find stages: %w", err)
	}
	defer cursor.Close(ctx)

	var stages []*models.Stage
	if err := cursor.All(ctx, &stages); err != nil {
		return nil, fmt.Errorf("decode stages: %w", err)
	}

	byID := make(map[string]*models.Stage, len(stages))
	for _, s := range stages {
		byID[s.ID] = s
	}
	ordered := make([]*models.Stage, 0, len(ids))
	for _, id := range ids {
		if s, ok := byID[id]; ok {
			ordered = append(ordered, s)
		}
	}
	return ordered, nil
}

// GetByTaskID finds the stage whose task list references the task.
func (r *mongoStageRepo) GetByTaskID(ctx context.Context, taskID string) (*models.Stage, error) {
	var stage models.Stage
	err := r.col.FindOne(ctx, bson.D{{Key: "tasks", Value: taskID}}).Decode(&stage)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find stage by task: %w", err)
	}
	return &stage, nil
}

func (r *mongoStageRepo) Update(ctx context.Context, stage *models.Stage) error {
	res, err := r.col.ReplaceOne(ctx, bson.D{{Key: "_id", Value: stage.ID}}, stage)
	if err != nil {
		return fmt.Errorf("update stage: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("stage %s not found", stage.ID)
	}
	return nil
}

func (r *mongoStageRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.col.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}}); err != nil {
		return fmt.Errorf("delete stage: %w", err)
	}
	return nil
}
