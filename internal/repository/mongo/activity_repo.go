package mongo

import (
	"context"

	"studyhub/portal/internal/domain"
	"studyhub/portal/internal/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const activityCollectionName = "activities"

// mongoActivityRepository implements repository.ActivityRepository
type mongoActivityRepository struct {
	collection *mongo.Collection
}

// NewMongoActivityRepository creates a new activity log repository backed by MongoDB.
func NewMongoActivityRepository(db *mongo.Database) repository.ActivityRepository {
	return &mongoActivityRepository{
		collection: db.Collection(activityCollectionName),
	}
}

// Create appends a record. CreatedAt is expected to be stamped by the caller.
func (r *mongoActivityRepository) Create(ctx context.Context, a *domain.Activity) error {
	a.ID = primitive.NewObjectID()
	if _, err := r.collection.InsertOne(ctx, a); err != nil {
		a.ID = primitive.NilObjectID
		return err
	}
	return nil
}

func (r *mongoActivityRepository) List(ctx context.Context, userID string) ([]domain.Activity, error) {
	filter := bson.M{}
	if userID != "" {
		filter["userId"] = userID
	}
	findOptions := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})

	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var records []domain.Activity
	if err = cursor.All(ctx, &records); err != nil {
		return nil, err
	}
	if records == nil {
		return []domain.Activity{}, nil
	}
	return records, nil
}

// DeleteByScope removes every record whose scope matches exactly.
func (r *mongoActivityRepository) DeleteByScope(ctx context.Context, scope domain.Scope) (int64, error) {
	result, err := r.collection.DeleteMany(ctx, scopeFilter(scope))
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}

func scopeFilter(scope domain.Scope) bson.M {
	filter := bson.M{
		"scope.kind":          scope.Kind,
		"scope.subject":       scope.Subject,
		"scope.chapterNumber": scope.ChapterNumber,
	}
	if scope.Kind == domain.KindCourse {
		filter["scope.year"] = scope.Year
		filter["scope.branch"] = scope.Branch
	} else {
		filter["scope.exam"] = scope.Exam
	}
	return filter
}

// EnsureActivityIndexes creates necessary indexes for the activities collection.
func EnsureActivityIndexes(ctx context.Context, collection *mongo.Collection) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("user_recent"),
		},
		{
			Keys:    bson.D{{Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("recent"),
		},
		{
			Keys: bson.D{
				{Key: "scope.kind", Value: 1},
				{Key: "scope.exam", Value: 1},
				{Key: "scope.year", Value: 1},
				{Key: "scope.branch", Value: 1},
				{Key: "scope.subject", Value: 1},
				{Key: "scope.chapterNumber", Value: 1},
			},
			Options: options.Index().SetName("scope"),
		},
	}
	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}
