package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"prismx/internal/database"
	"prismx/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoPatternStore persists patterns in the MongoDB patterns collection
type MongoPatternStore struct {
	collection   *mongo.Collection
	queryTimeout time.Duration
}

// NewMongoPatternStore creates a store over the patterns collection
func NewMongoPatternStore(mongoDB *database.MongoDB, queryTimeout time.Duration) *MongoPatternStore {
	return NewMongoPatternStoreWithCollection(mongoDB.Collection(database.CollectionPatterns), queryTimeout)
}

// NewMongoPatternStoreWithCollection creates a store over an arbitrary collection
func NewMongoPatternStoreWithCollection(collection *mongo.Collection, queryTimeout time.Duration) *MongoPatternStore {
	if queryTimeout <= 0 {
		queryTimeout = 10 * time.Second
	}
	return &MongoPatternStore{
		collection:   collection,
		queryTimeout: queryTimeout,
	}
}

// Insert adds a new pattern document
func (s *MongoPatternStore) Insert(ctx context.Context, p *models.Pattern) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("pattern id is required")
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	now := time.Now()
	doc := p.Clone()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	if doc.Metadata.Tags == nil {
		doc.Metadata.Tags = []string{}
	}

	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateKey, p.ID)
		}
		return s.wrapError("insert pattern", err)
	}
	return nil
}

// FindByID looks a pattern up by its external id
func (s *MongoPatternStore) FindByID(ctx context.Context, id string) (*models.Pattern, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	var p models.Pattern
	if err := s.collection.FindOne(ctx, bson.M{"id": id}).Decode(&p); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrPatternNotFound
		}
		return nil, s.wrapError("find pattern", err)
	}
	return &p, nil
}

// IncrementUsageCount atomically increments metadata.usageCount
func (s *MongoPatternStore) IncrementUsageCount(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	result, err := s.collection.UpdateOne(ctx,
		bson.M{"id": id},
		bson.M{
			"$inc": bson.M{"metadata.usageCount": 1},
			"$set": bson.M{"updatedAt": time.Now()},
		},
	)
	if err != nil {
		return s.wrapError("increment usage count", err)
	}
	if result.MatchedCount == 0 {
		return ErrPatternNotFound
	}
	return nil
}

// ListTopByEffectiveness returns the best-scoring patterns
func (s *MongoPatternStore) ListTopByEffectiveness(ctx context.Context, limit int) ([]*models.Pattern, error) {
	if limit <= 0 {
		return []*models.Pattern{}, nil
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "effectiveness", Value: -1}, {Key: "id", Value: 1}}).
		SetLimit(int64(limit))
	return s.find(ctx, opts)
}

// ListNewestFirst returns patterns by timestamp desc without their data blobs
func (s *MongoPatternStore) ListNewestFirst(ctx context.Context, limit int) ([]*models.Pattern, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "id", Value: 1}}).
		SetProjection(bson.M{"data": 0})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return s.find(ctx, opts)
}

// DeleteByID removes a single pattern
func (s *MongoPatternStore) DeleteByID(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	if _, err := s.collection.DeleteOne(ctx, bson.M{"id": id}); err != nil {
		return s.wrapError("delete pattern", err)
	}
	return nil
}

// DeleteOlderThan bulk-deletes patterns created before threshold
func (s *MongoPatternStore) DeleteOlderThan(ctx context.Context, threshold int64) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	result, err := s.collection.DeleteMany(ctx, bson.M{"timestamp": bson.M{"$lt": threshold}})
	if err != nil {
		return 0, s.wrapError("delete old patterns", err)
	}
	return result.DeletedCount, nil
}

// AddTags merges tags with $addToSet so no duplicates are stored
func (s *MongoPatternStore) AddTags(ctx context.Context, id string, tags []string) (TagOutcome, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	if len(tags) > 0 {
		// Tags and updatedAt land in one update; documents that already hold
		// every tag do not match, so updatedAt only moves when tags change.
		result, err := s.collection.UpdateOne(ctx,
			bson.M{"id": id, "metadata.tags": bson.M{"$not": bson.M{"$all": tags}}},
			bson.M{
				"$addToSet": bson.M{"metadata.tags": bson.M{"$each": tags}},
				"$set":      bson.M{"updatedAt": time.Now()},
			},
		)
		if err != nil {
			return TagsPatternMissing, s.wrapError("add tags", err)
		}
		if result.ModifiedCount > 0 {
			return TagsAdded, nil
		}
	}

	n, err := s.collection.CountDocuments(ctx, bson.M{"id": id}, options.Count().SetLimit(1))
	if err != nil {
		return TagsPatternMissing, s.wrapError("find pattern", err)
	}
	if n == 0 {
		return TagsPatternMissing, nil
	}
	return TagsUnchanged, nil
}

// Count returns the number of pattern documents
func (s *MongoPatternStore) Count(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	n, err := s.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, s.wrapError("count patterns", err)
	}
	return n, nil
}

func (s *MongoPatternStore) find(ctx context.Context, opts *options.FindOptions) ([]*models.Pattern, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	cursor, err := s.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, s.wrapError("list patterns", err)
	}
	defer cursor.Close(ctx)

	patterns := make([]*models.Pattern, 0)
	if err := cursor.All(ctx, &patterns); err != nil {
		return nil, s.wrapError("decode patterns", err)
	}
	return patterns, nil
}

func (s *MongoPatternStore) wrapError(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrStorageUnavailable, err)
}
