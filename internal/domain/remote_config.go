package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DefaultRegion is used when an administrator leaves the region blank.
const DefaultRegion = "us-east-1"

// RemoteConfig is one named set of object store credentials.
// At most one RemoteConfig is Active at a time.
type RemoteConfig struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name      string             `bson:"name" json:"name"`
	AccessKey string             `bson:"accessKey" json:"accessKey"`
	SecretKey string             `bson:"secretKey" json:"-"` // write-only, never serialized to clients
	Bucket    string             `bson:"bucket" json:"bucket"`
	Region    string             `bson:"region" json:"region"`
	// Endpoint overrides the AWS endpoint for S3-compatible stores (MinIO, Spaces).
	Endpoint  string    `bson:"endpoint,omitempty" json:"endpoint,omitempty"`
	Active    bool      `bson:"active" json:"active"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}
