package mongo

import (
	"context"
	"errors"
	"time"

	"studyhub/portal/internal/domain"
	"studyhub/portal/internal/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const containerCollectionName = "containers"

// mongoContainerRepository implements repository.ContainerRepository
type mongoContainerRepository struct {
	collection *mongo.Collection
}

// NewMongoContainerRepository creates a new container repository backed by MongoDB.
func NewMongoContainerRepository(db *mongo.Database) repository.ContainerRepository {
	return &mongoContainerRepository{
		collection: db.Collection(containerCollectionName),
	}
}

func keyFilter(key domain.ContainerKey) bson.M {
	if key.Kind == domain.KindCourse {
		return bson.M{"kind": key.Kind, "year": key.Year, "branch": key.Branch}
	}
	return bson.M{"kind": key.Kind, "exam": key.Exam}
}

// GetByKey retrieves the aggregate addressed by key.
func (r *mongoContainerRepository) GetByKey(ctx context.Context, key domain.ContainerKey) (*domain.Container, error) {
	var c domain.Container
	err := r.collection.FindOne(ctx, keyFilter(key)).Decode(&c)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// Find lists containers matching filter, ordered by their key fields.
func (r *mongoContainerRepository) Find(ctx context.Context, filter repository.ContainerFilter) ([]domain.Container, error) {
	query := bson.M{}
	if filter.Kind != "" {
		query["kind"] = filter.Kind
	}
	if filter.Exam != "" {
		query["exam"] = filter.Exam
	}
	if filter.Year != "" {
		query["year"] = filter.Year
	}
	if filter.Branch != "" {
		query["branch"] = filter.Branch
	}
	if filter.Subject != "" {
		query["subjects.name"] = filter.Subject
	}

	findOptions := options.Find().SetSort(bson.D{
		{Key: "kind", Value: 1},
		{Key: "exam", Value: 1},
		{Key: "year", Value: 1},
		{Key: "branch", Value: 1},
	})
	if filter.Skip > 0 {
		findOptions.SetSkip(filter.Skip)
	}
	if filter.Limit > 0 {
		findOptions.SetLimit(filter.Limit)
	}

	cursor, err := r.collection.Find(ctx, query, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var containers []domain.Container
	if err = cursor.All(ctx, &containers); err != nil {
		return nil, err
	}
	if containers == nil {
		return []domain.Container{}, nil
	}
	return containers, nil
}

// Save inserts or version-checked replaces the whole aggregate.
func (r *mongoContainerRepository) Save(ctx context.Context, c *domain.Container) error {
	now := time.Now().UTC()
	if c.Subjects == nil {
		c.Subjects = []domain.Subject{}
	}

	if c.ID.IsZero() {
		c.ID = primitive.NewObjectID()
		c.Version = 1
		c.CreatedAt = now
		c.UpdatedAt = now
		if _, err := r.collection.InsertOne(ctx, c); err != nil {
			c.ID = primitive.NilObjectID
			c.Version = 0
			if mongo.IsDuplicateKeyError(err) {
				// Another writer created the same key first.
				return repository.ErrConflict
			}
			return err
		}
		return nil
	}

	expected := c.Version
	c.Version = expected + 1
	c.UpdatedAt = now
	result, err := r.collection.ReplaceOne(ctx, bson.M{"_id": c.ID, "version": expected}, c)
	if err != nil {
		c.Version = expected
		return err
	}
	if result.MatchedCount == 0 {
		c.Version = expected
		return repository.ErrConflict
	}
	return nil
}

// EnsureContainerIndexes creates necessary indexes for the containers collection.
func EnsureContainerIndexes(ctx context.Context, collection *mongo.Collection) error {
	indexes := []mongo.IndexModel{
		{
			// One aggregate per exam name or year+branch.
			Keys: bson.D{
				{Key: "kind", Value: 1},
				{Key: "exam", Value: 1},
				{Key: "year", Value: 1},
				{Key: "branch", Value: 1},
			},
			Options: options.Index().SetUnique(true).SetName("container_key"),
		},
		{
			Keys:    bson.D{{Key: "subjects.name", Value: 1}},
			Options: options.Index().SetName("subject_name"),
		},
	}
	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}
