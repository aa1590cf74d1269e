package storage

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/calm-green-heron/stagewise/internal/models"
)

type mongoActivityRepo struct {
	col *mongo.Collection
}

func (r *mongoActivityRepo) Create(ctx context.Context, activity *models.Activity) error {
	if _, err := r.col.InsertOne(ctx, activity); err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

func (r *mongoActivityRepo) ListByTask(ctx context.Context, taskID string) ([]*models.Activity, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	cursor, err := r.col.Find(ctx, bson.D{{Key: "task_id", Value: taskID}}, opts)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	defer cursor.Close(ctx)

	var activities []*models.Activity
	if err := cursor.All(ctx, &activities); err != nil {
		return nil, fmt.Errorf("decode activities: %w", err)
	}
	return activities, nil
}

func (r *mongoActivityRepo) DeleteByTask(ctx context.Context, taskID string) (int64, error) {
	res, err := r.col.DeleteMany(ctx, bson.D{{Key: "task_id", Value: taskID}})
	if err != nil {
		return 0, fmt.Errorf("delete activities: %w", err)
	}
	return res.DeletedCount, nil
}
