package repository

import (
	"alcyxob/attachment-offload/internal/domain" // Import our defined domain models
	"context"                                    // Standard for request-scoped deadlines, cancellation signals, etc.

	"go.mongodb.org/mongo-driver/bson/primitive" // For using ObjectIDs
)

// Error constants for repository layer
var (
	ErrNotFound     = RepositoryError("not found")
	ErrUpdateFailed = RepositoryError("update failed")
	ErrDeleteFailed = RepositoryError("delete failed")
	ErrDuplicate    = RepositoryError("duplicate key")
)

// RepositoryError helps distinguish repository errors
type RepositoryError string

func (e RepositoryError) Error() string {
	return string(e)
}

// UserRepository defines the interface for interacting with user data.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) (primitive.ObjectID, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.User, error)
}

// RemoteConfigRepository stores named object store configurations.
type RemoteConfigRepository interface {
	Create(ctx context.Context, cfg *domain.RemoteConfig) (primitive.ObjectID, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.RemoteConfig, error)
	List(ctx context.Context) ([]domain.RemoteConfig, error)
	Update(ctx context.Context, cfg *domain.RemoteConfig) error
	Delete(ctx context.Context, id primitive.ObjectID) error

	// GetActive returns the active config or ErrNotFound.
	GetActive(ctx context.Context) (*domain.RemoteConfig, error)
	CountActive(ctx context.Context) (int64, error)
	SetActive(ctx context.Context, id primitive.ObjectID, active bool) error
	// DeactivateAllExcept clears the active flag on every other config.
	DeactivateAllExcept(ctx context.Context, id primitive.ObjectID) error
}

// AttachmentRepository stores attachment records. Only the storage layer
// rewrites StoragePointer and RemoteURL.
type AttachmentRepository interface {
	Create(ctx context.Context, att *domain.Attachment) (primitive.ObjectID, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Attachment, error)
	Update(ctx context.Context, att *domain.Attachment) error
	ListByMimetype(ctx context.Context, mimetype string) ([]domain.Attachment, error)
	ListByIDs(ctx context.Context, ids []primitive.ObjectID) ([]domain.Attachment, error)
	Count(ctx context.Context) (int64, error)
	CountRemote(ctx context.Context) (int64, error)
	// CountByPointer counts records sharing a storage pointer.
	CountByPointer(ctx context.Context, pointer string) (int64, error)
}
