package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AttachmentType mirrors the host's binary/url distinction.
type AttachmentType string

const (
	AttachmentBinary AttachmentType = "binary"
	AttachmentURL    AttachmentType = "url"
)

// Attachment is a database row referencing a content-addressed blob.
// StoragePointer is either an opaque local token or "remote://<key>";
// only the storage layer rewrites it and RemoteURL.
type Attachment struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name           string             `bson:"name" json:"name"`
	Mimetype       string             `bson:"mimetype" json:"mimetype"`
	Checksum       string             `bson:"checksum" json:"checksum"`
	StoragePointer string             `bson:"storagePointer" json:"storagePointer"`
	RemoteURL      string             `bson:"remoteUrl,omitempty" json:"remoteUrl,omitempty"`
	Size           int64              `bson:"size" json:"size"`
	Type           AttachmentType     `bson:"type" json:"type"`
	URL            string             `bson:"url,omitempty" json:"url,omitempty"`

	// ResModel/ResField identify the owning record field, if any.
	ResModel string `bson:"resModel,omitempty" json:"resModel,omitempty"`
	ResField string `bson:"resField,omitempty" json:"resField,omitempty"`
	ResID    string `bson:"resId,omitempty" json:"resId,omitempty"`

	// Placeholder is set when local content was replaced by a decoy image
	// and the real bytes are only reachable through RemoteURL.
	Placeholder bool `bson:"placeholder" json:"placeholder"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// HasContent reports whether the record points at any stored bytes.
func (a *Attachment) HasContent() bool {
	return a.StoragePointer != "" && a.Size > 0
}
