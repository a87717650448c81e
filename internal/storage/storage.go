package storage

import (
	"context"
	"time"

	"alcyxob/attachment-offload/internal/domain"
)

// DefaultPresignedURLExpiry is used when a caller passes a non-positive expiry.
const DefaultPresignedURLExpiry = 15 * time.Minute

// RemoteStorage is the object store client used by the storage layer.
// Implementations are built from a RemoteConfig snapshot and hold no state
// between calls beyond the underlying HTTP connection pool.
type RemoteStorage interface {
	// Put uploads data under key.
	Put(ctx context.Context, key string, data []byte, contentType string) error

	// Get downloads the object stored under key.
	Get(ctx context.Context, key string) ([]byte, error)

	// Head reports whether key exists. A missing object is (false, nil).
	Head(ctx context.Context, key string) (bool, error)

	// TestConnection checks bucket reachability and performs a canary write.
	TestConnection(ctx context.Context) error

	// PublicURL returns the stable URL of key.
	PublicURL(key string) string

	// PresignGet creates a temporary download URL for key.
	PresignGet(ctx context.Context, key string, expires time.Duration) (string, error)

	// Bucket returns the bucket the client targets.
	Bucket() string
}

// ClientFactory builds a RemoteStorage for one operation.
type ClientFactory func(ctx context.Context, cfg domain.RemoteConfig) (RemoteStorage, error)
