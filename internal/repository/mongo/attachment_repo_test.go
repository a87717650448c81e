package mongo

import (
	"context"
	"testing"

	"alcyxob/attachment-offload/internal/domain"
	"alcyxob/attachment-offload/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func TestAttachmentRepository(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ns := "attachment_offload." + attachmentCollectionName

	mt.Run("create defaults to binary", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		repo := NewMongoAttachmentRepository(mt.DB)

		att := &domain.Attachment{Name: "report.pdf", StoragePointer: "ab/ab12", Size: 8}
		id, err := repo.Create(context.Background(), att)
		require.NoError(mt, err)
		assert.Equal(mt, id, att.ID)
		assert.Equal(mt, domain.AttachmentBinary, att.Type)
	})

	mt.Run("create requires name", func(mt *mtest.T) {
		repo := NewMongoAttachmentRepository(mt.DB)

		_, err := repo.Create(context.Background(), &domain.Attachment{})
		assert.Error(mt, err)
	})

	mt.Run("get by id", func(mt *mtest.T) {
		id := primitive.NewObjectID()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{
			{Key: "_id", Value: id},
			{Key: "name", Value: "report.pdf"},
			{Key: "storagePointer", Value: "remote://files/ab/ab12/report.pdf"},
			{Key: "remoteUrl", Value: "https://b.s3.us-east-1.amazonaws.com/files/ab/ab12/report.pdf"},
			{Key: "size", Value: int64(8)},
			{Key: "type", Value: "binary"},
		}))
		repo := NewMongoAttachmentRepository(mt.DB)

		att, err := repo.GetByID(context.Background(), id)
		require.NoError(mt, err)
		assert.Equal(mt, "remote://files/ab/ab12/report.pdf", att.StoragePointer)
		assert.Equal(mt, int64(8), att.Size)
		assert.NotEmpty(mt, att.RemoteURL)
	})

	mt.Run("get by id missing", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))
		repo := NewMongoAttachmentRepository(mt.DB)

		_, err := repo.GetByID(context.Background(), primitive.NewObjectID())
		assert.ErrorIs(mt, err, repository.ErrNotFound)
	})

	mt.Run("update", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))
		repo := NewMongoAttachmentRepository(mt.DB)

		att := &domain.Attachment{ID: primitive.NewObjectID(), Name: "x", StoragePointer: "remote://k"}
		require.NoError(mt, repo.Update(context.Background(), att))
		assert.False(mt, att.UpdatedAt.IsZero())
	})

	mt.Run("list by mimetype", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
			bson.D{{Key: "_id", Value: primitive.NewObjectID()}, {Key: "name", Value: "a.pdf"}, {Key: "mimetype", Value: "application/pdf"}},
			bson.D{{Key: "_id", Value: primitive.NewObjectID()}, {Key: "name", Value: "b.pdf"}, {Key: "mimetype", Value: "application/pdf"}},
		))
		repo := NewMongoAttachmentRepository(mt.DB)

		atts, err := repo.ListByMimetype(context.Background(), "application/pdf")
		require.NoError(mt, err)
		require.Len(mt, atts, 2)
		assert.Equal(mt, "a.pdf", atts[0].Name)
	})

	mt.Run("list by empty ids", func(mt *mtest.T) {
		repo := NewMongoAttachmentRepository(mt.DB)

		atts, err := repo.ListByIDs(context.Background(), nil)
		require.NoError(mt, err)
		assert.Empty(mt, atts)
	})

	mt.Run("count remote", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{{Key: "n", Value: int32(3)}}))
		repo := NewMongoAttachmentRepository(mt.DB)

		n, err := repo.CountRemote(context.Background())
		require.NoError(mt, err)
		assert.Equal(mt, int64(3), n)
	})
}
