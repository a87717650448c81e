package mongo

import (
	"context"
	"errors"
	"time"

	"alcyxob/attachment-offload/internal/domain"
	"alcyxob/attachment-offload/internal/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const remoteConfigCollectionName = "remote_configs"

// mongoRemoteConfigRepository implements repository.RemoteConfigRepository.
type mongoRemoteConfigRepository struct {
	collection *mongo.Collection
}

// NewMongoRemoteConfigRepository creates a RemoteConfig repository backed by MongoDB.
func NewMongoRemoteConfigRepository(db *mongo.Database) repository.RemoteConfigRepository {
	return &mongoRemoteConfigRepository{
		collection: db.Collection(remoteConfigCollectionName),
	}
}

// Create inserts a new config.
func (r *mongoRemoteConfigRepository) Create(ctx context.Context, cfg *domain.RemoteConfig) (primitive.ObjectID, error) {
	if cfg.Name == "" || cfg.Bucket == "" {
		return primitive.NilObjectID, errors.New("remote config name and bucket are required")
	}

	cfg.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	cfg.CreatedAt = now
	cfg.UpdatedAt = now

	result, err := r.collection.InsertOne(ctx, cfg)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return primitive.NilObjectID, repository.ErrDuplicate
		}
		return primitive.NilObjectID, err
	}

	insertedID, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, errors.New("failed to convert inserted ID")
	}
	return insertedID, nil
}

// GetByID retrieves a config by ID.
func (r *mongoRemoteConfigRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.RemoteConfig, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

// GetActive retrieves the config flagged active.
func (r *mongoRemoteConfigRepository) GetActive(ctx context.Context) (*domain.RemoteConfig, error) {
	return r.findOne(ctx, bson.M{"active": true})
}

func (r *mongoRemoteConfigRepository) findOne(ctx context.Context, filter bson.M) (*domain.RemoteConfig, error) {
	var cfg domain.RemoteConfig
	err := r.collection.FindOne(ctx, filter).Decode(&cfg)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &cfg, nil
}

// List returns all configs sorted by name.
func (r *mongoRemoteConfigRepository) List(ctx context.Context) ([]domain.RemoteConfig, error) {
	findOptions := options.Find().SetSort(bson.D{{Key: "name", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{}, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var configs []domain.RemoteConfig
	if err = cursor.All(ctx, &configs); err != nil {
		return nil, err
	}
	if configs == nil {
		configs = []domain.RemoteConfig{}
	}
	return configs, nil
}

// Update modifies the editable fields of a config. The active flag is only
// changed through SetActive and DeactivateAllExcept.
func (r *mongoRemoteConfigRepository) Update(ctx context.Context, cfg *domain.RemoteConfig) error {
	if cfg.ID == primitive.NilObjectID {
		return errors.New("remote config ID is required for update")
	}

	cfg.UpdatedAt = time.Now().UTC()
	update := bson.M{
		"$set": bson.M{
			"name":      cfg.Name,
			"accessKey": cfg.AccessKey,
			"secretKey": cfg.SecretKey,
			"bucket":    cfg.Bucket,
			"region":    cfg.Region,
			"endpoint":  cfg.Endpoint,
			"updatedAt": cfg.UpdatedAt,
		},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": cfg.ID}, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Delete removes a config.
func (r *mongoRemoteConfigRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// CountActive counts configs flagged active.
func (r *mongoRemoteConfigRepository) CountActive(ctx context.Context) (int64, error) {
	return r.collection.CountDocuments(ctx, bson.M{"active": true})
}

// SetActive sets the active flag of one config.
func (r *mongoRemoteConfigRepository) SetActive(ctx context.Context, id primitive.ObjectID, active bool) error {
	update := bson.M{"$set": bson.M{"active": active, "updatedAt": time.Now().UTC()}}
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrDuplicate
		}
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeactivateAllExcept clears the active flag on every config but id.
func (r *mongoRemoteConfigRepository) DeactivateAllExcept(ctx context.Context, id primitive.ObjectID) error {
	filter := bson.M{"_id": bson.M{"$ne": id}, "active": true}
	update := bson.M{"$set": bson.M{"active": false, "updatedAt": time.Now().UTC()}}
	_, err := r.collection.UpdateMany(ctx, filter, update)
	return err
}

// EnsureRemoteConfigIndexes creates the indexes for the remote_configs collection.
// The partial unique index rejects a second active config at the database level.
func EnsureRemoteConfigIndexes(ctx context.Context, collection *mongo.Collection) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "name", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "active", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"active": true}),
		},
	}
	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}
