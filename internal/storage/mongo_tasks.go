package storage

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/calm-green-heron/stagewise/internal/models"
)

type mongoTaskRepo struct {
	col *mongo.Collection
}

func (r *mongoTaskRepo) Create(ctx context.Context, task *models.Task) error {
	if _, err := r.col.InsertOne(ctx, task); err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (r *mongoTaskRepo) GetByID(ctx context.Context, id string) (*models.Task, error) {
	var task models.Task
	err := r.col.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&task)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find task: %w", err)
	}
	return &task, nil
}

// GetByIDs loads tasks in the order the ids are given, skipping any that no
// longer exist.
func (r *mongoTaskRepo) GetByIDs(ctx context.Context, ids []string) ([]*models.Task, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cursor, err := r.col.Find(ctx, bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: ids}}}})
	if err != nil {
		return nil, fmt.Errorf("find tasks: %w", err)
	}
	defer cursor.Close(ctx)

	var tasks []*models.Task
	if err := cursor.All(ctx, &tasks); err != nil {
		return nil, fmt.Errorf("decode tasks: %w", err)
	}

	byID := make(map[string]*models.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}
	ordered := make([]*models.Task, 0, len(ids))
	for _, id := range ids {
		if t, ok := byID[id]; ok {
			ordered = append(ordered, t)
		}
	}
	return ordered, nil
}

func (r *mongoTaskRepo) Update(ctx context.Context, task *models.Task) error {
	res, err := r.col.ReplaceOne(ctx, bson.D{{Key: "_id", Value: task.ID}}, task)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("task %s not found", task.ID)
	}
	return nil
}

func (r *mongoTaskRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.col.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}}); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}
