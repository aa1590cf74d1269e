package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/calm-green-heron/stagewise/internal/models"
)

type mongoTokenRepo struct {
	col *mongo.Collection
}

func (r *mongoTokenRepo) Create(ctx context.Context, token *models.RefreshToken) error {
	if _, err := r.col.InsertOne(ctx, token); err != nil {
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

func (r *mongoTokenRepo) GetByTokenHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	var token models.RefreshToken
	err := r.col.FindOne(ctx, bson.D{{Key: "token_hash", Value: tokenHash}}).Decode(&token)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find token: %w", err)
	}
	return &token, nil
}

func (r *mongoTokenRepo) revoke(ctx context.Context, filter bson.D) error {
	now := time.Now()
	_, err := r.col.UpdateMany(ctx, filter, bson.D{{Key: "$set", Value: bson.D{
		{Key: "revoked", Value: true},
		{Key: "revoked_at", Value: now},
	}}})
	if err != nil {
		return fmt.Errorf("revoke tokens: %w", err)
	}
	return nil
}

func (r *mongoTokenRepo) RevokeByTokenHash(ctx context.Context, tokenHash string) error {
	return r.revoke(ctx, bson.D{{Key: "token_hash", Value: tokenHash}})
}

func (r *mongoTokenRepo) RevokeAllForUser(ctx context.Context, userID string) error {
	return r.revoke(ctx, bson.D{{Key: "user_id", Value: userID}})
}

func (r *mongoTokenRepo) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := r.col.DeleteMany(ctx, bson.D{{Key: "expires_at", Value: bson.D{{Key: "$lt", Value: time.Now()}}}})
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}
	return res.DeletedCount, nil
}
