package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Collection names.
const (
	colUsers      = "users"
	colProjects   = "projects"
	colStages     = "stages"
	colTasks      = "tasks"
	colComments   = "comments"
	colActivities = "activities"
	colTokens     = "refresh_tokens"
)

// MongoStorage implements Storage using MongoDB.
type MongoStorage struct {
	uri      string
	database string
	client   *mongo.Client
	db       *mongo.Database

	users      *mongoUserRepo
	projects   *mongoProjectRepo
	stages     *mongoStageRepo
	tasks      *mongoTaskRepo
	comments   *mongoCommentRepo
	activities *mongoActivityRepo
	tokens     *mongoTokenRepo
}

// NewMongoStorage creates a new MongoDB storage.
func NewMongoStorage(uri, database string) *MongoStorage {
	return &MongoStorage{uri: uri, database: database}
}

// Open connects to the server and verifies the connection.
func (s *MongoStorage) Open(ctx context.Context) error {
	if s.uri == "" {
		return fmt.Errorf("mongo uri is required")
	}
	if s.database == "" {
		return fmt.Errorf("database name is required")
	}

	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(s.uri).
		SetServerSelectionTimeout(10*time.Second))
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return fmt.Errorf("ping: %w", err)
	}

	s.client = client
	s.db = client.Database(s.database)

	s.users = &mongoUserRepo{col: s.db.Collection(colUsers)}
	s.projects = &mongoProjectRepo{col: s.db.Collection(colProjects)}
	s.stages = &mongoStageRepo{col: s.db.Collection(colStages)}
	s.tasks = &mongoTaskRepo{col: s.db.Collection(colTasks)}
	s.comments = &mongoCommentRepo{col: s.db.Collection(colComments)}
	s.activities = &mongoActivityRepo{col: s.db.Collection(colActivities)}
	s.tokens = &mongoTokenRepo{col: s.db.Collection(colTokens)}

	return nil
}

// Close disconnects from the server.
func (s *MongoStorage) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

// Ping verifies the connection, for health checks.
func (s *MongoStorage) Ping(ctx context.Context) error {
	if s.client == nil {
		return errors.New("not connected")
	}
	return s.client.Ping(ctx, readpref.Primary())
}

// EnsureIndexes creates the unique indexes the data model relies on.
func (s *MongoStorage) EnsureIndexes(ctx context.Context) error {
	unique := options.Index().SetUnique(true)

	userIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: unique},
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: unique},
	}
	if _, err := s.db.Collection(colUsers).Indexes().CreateMany(ctx, userIndexes); err != nil {
		return fmt.Errorf("create user indexes: %w", err)
	}

	projectIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "code", Value: 1}}, Options: unique},
		{Keys: bson.D{{Key: "created_date", Value: -1}}},
	}
	if _, err := s.db.Collection(colProjects).Indexes().CreateMany(ctx, projectIndexes); err != nil {
		return fmt.Errorf("create project indexes: %w", err)
	}

	auxIndexes := map[string]mongo.IndexModel{
		colComments:   {Keys: bson.D{{Key: "task_id", Value: 1}}},
		colActivities: {Keys: bson.D{{Key: "task_id", Value: 1}, {Key: "timestamp", Value: -1}}},
		colTokens:     {Keys: bson.D{{Key: "token_hash", Value: 1}}, Options: unique},
	}
	for col, idx := range auxIndexes {
		if _, err := s.db.Collection(col).Indexes().CreateOne(ctx, idx); err != nil {
			return fmt.Errorf("create %s index: %w", col, err)
		}
	}

	return nil
}

// IsDuplicateKey reports whether the error is a uniqueness violation, used
// to map store conflicts to the Conflict error kind at the API boundary.
func IsDuplicateKey(err error) bool {
	return mongo.IsDuplicateKeyError(err)
}

// Users returns the user repository.
func (s *MongoStorage) Users() UserRepository { return s.users }

// Projects returns the project repository.
func (s *MongoStorage) Projects() ProjectRepository { return s.projects }

// Stages returns the stage repository.
func (s *MongoStorage) Stages() StageRepository { return s.stages }

// Tasks returns the task repository.
func (s *MongoStorage) Tasks() TaskRepository { return s.tasks }

// Comments returns the comment repository.
func (s *MongoStorage) Comments() CommentRepository { return s.comments }

// Activities returns the activity repository.
func (s *MongoStorage) Activities() ActivityRepository { return s.activities }

// Tokens returns the refresh token repository.
func (s *MongoStorage) Tokens() TokenRepository { return s.tokens }
