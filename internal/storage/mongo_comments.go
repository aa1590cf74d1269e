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

type mongoCommentRepo struct {
	col *mongo.Collection
}

func (r *mongoCommentRepo) Create(ctx context.Context, comment *models.Comment) error {
	if _, err := r.col.InsertOne(ctx, comment); err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

func (r *mongoCommentRepo) GetByID(ctx context.Context, id string) (*models.Comment, error) {
	var comment models.Comment
	err := r.col.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&comment)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find comment: %w", err)
	}
	return &comment, nil
}

func (r *mongoCommentRepo) ListByTask(ctx context.Context, taskID string) ([]*models.Comment, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_date", Value: 1}})
	cursor, err := r.col.Find(ctx, bson.D{{Key: "task_id", Value: taskID}}, opts)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer cursor.Close(ctx)

	var comments []*models.Comment
	if err := cursor.All(ctx, &comments); err != nil {
		return nil, fmt.Errorf("decode comments: %w", err)
	}
	return comments, nil
}

func (r *mongoCommentRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.col.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}}); err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	return nil
}

func (r *mongoCommentRepo) DeleteByTask(ctx context.Context, taskID string) (int64, error) {
	res, err := r.col.DeleteMany(ctx, bson.D{{Key: "task_id", Value: taskID}})
	if err != nil {
		return 0, fmt.Errorf("delete comments: %w", err)
	}
	return res.DeletedCount, nil
}
