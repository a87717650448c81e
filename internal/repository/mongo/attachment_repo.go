package mongo

import (
	"context"
	"errors"
	"time"

	"alcyxob/attachment-offload/internal/domain"
	"alcyxob/attachment-offload/internal/repository"
	"alcyxob/attachment-offload/internal/storage"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const attachmentCollectionName = "attachments"

// mongoAttachmentRepository implements repository.AttachmentRepository.
type mongoAttachmentRepository struct {
	collection *mongo.Collection
}

// NewMongoAttachmentRepository creates an Attachment repository backed by MongoDB.
func NewMongoAttachmentRepository(db *mongo.Database) repository.AttachmentRepository {
	return &mongoAttachmentRepository{
		collection: db.Collection(attachmentCollectionName),
	}
}

// Create inserts a new attachment record.
func (r *mongoAttachmentRepository) Create(ctx context.Context, att *domain.Attachment) (primitive.ObjectID, error) {
	if att.Name == "" {
		return primitive.NilObjectID, errors.New("attachment name is required")
	}

	att.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	att.CreatedAt = now
	att.UpdatedAt = now
	if att.Type == "" {
		att.Type = domain.AttachmentBinary
	}

	result, err := r.collection.InsertOne(ctx, att)
	if err != nil {
		return primitive.NilObjectID, err
	}

	insertedID, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, errors.New("failed to convert inserted ID")
	}
	return insertedID, nil
}

// GetByID retrieves an attachment by ID.
func (r *mongoAttachmentRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Attachment, error) {
	var att domain.Attachment
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&att)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &att, nil
}

// Update persists the storage-related fields of an attachment.
func (r *mongoAttachmentRepository) Update(ctx context.Context, att *domain.Attachment) error {
	if att.ID == primitive.NilObjectID {
		return errors.New("attachment ID is required for update")
	}

	att.UpdatedAt = time.Now().UTC()
	update := bson.M{
		"$set": bson.M{
			"name":           att.Name,
			"mimetype":       att.Mimetype,
			"checksum":       att.Checksum,
			"storagePointer": att.StoragePointer,
			"remoteUrl":      att.RemoteURL,
			"size":           att.Size,
			"type":           att.Type,
			"url":            att.URL,
			"placeholder":    att.Placeholder,
			"updatedAt":      att.UpdatedAt,
		},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": att.ID}, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ListByMimetype returns attachments with the given MIME type, oldest first.
func (r *mongoAttachmentRepository) ListByMimetype(ctx context.Context, mimetype string) ([]domain.Attachment, error) {
	return r.find(ctx, bson.M{"mimetype": mimetype})
}

// ListByIDs returns the attachments whose IDs are in ids.
func (r *mongoAttachmentRepository) ListByIDs(ctx context.Context, ids []primitive.ObjectID) ([]domain.Attachment, error) {
	if len(ids) == 0 {
		return []domain.Attachment{}, nil
	}
	return r.find(ctx, bson.M{"_id": bson.M{"$in": ids}})
}

func (r *mongoAttachmentRepository) find(ctx context.Context, filter bson.M) ([]domain.Attachment, error) {
	findOptions := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var attachments []domain.Attachment
	if err = cursor.All(ctx, &attachments); err != nil {
		return nil, err
	}
	if attachments == nil {
		attachments = []domain.Attachment{}
	}
	return attachments, nil
}

// Count counts all attachments.
func (r *mongoAttachmentRepository) Count(ctx context.Context) (int64, error) {
	return r.collection.CountDocuments(ctx, bson.M{})
}

// CountRemote counts attachments whose pointer is in the object store.
func (r *mongoAttachmentRepository) CountRemote(ctx context.Context) (int64, error) {
	filter := bson.M{"storagePointer": bson.M{"$regex": "^" + storage.RemoteScheme}}
	return r.collection.CountDocuments(ctx, filter)
}

// CountByPointer counts attachments referencing pointer.
func (r *mongoAttachmentRepository) CountByPointer(ctx context.Context, pointer string) (int64, error) {
	return r.collection.CountDocuments(ctx, bson.M{"storagePointer": pointer})
}

// EnsureAttachmentIndexes creates the indexes for the attachments collection.
func EnsureAttachmentIndexes(ctx context.Context, collection *mongo.Collection) error {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "storagePointer", Value: 1}}},
		{Keys: bson.D{{Key: "mimetype", Value: 1}}},
		{Keys: bson.D{{Key: "checksum", Value: 1}}},
	}
	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}
