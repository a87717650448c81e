package service

import (
	"context"
	"strings"

	"alcyxob/attachment-offload/internal/logging"
	"alcyxob/attachment-offload/internal/storage"

	"go.uber.org/zap"
)

// UploadRequest is a direct upload into a caller-chosen folder.
type UploadRequest struct {
	Checksum    string
	Filename    string
	Folder      string
	ContentType string
	Data        []byte
}

// UploadService writes and locates objects outside the attachment lifecycle.
type UploadService interface {
	// UploadDirect stores Data under <folder>/<filename> and returns its URL.
	UploadDirect(ctx context.Context, req UploadRequest) (string, error)
	// LocateObject returns the public URL of key if it exists.
	LocateObject(ctx context.Context, key string) (string, error)
}

type uploadService struct {
	resolver *storage.Resolver
}

// NewUploadService creates a new UploadService.
func NewUploadService(resolver *storage.Resolver) UploadService {
	return &uploadService{resolver: resolver}
}

// MissingUploadFields lists the required upload parameters that are empty.
func MissingUploadFields(req UploadRequest) []string {
	var missing []string
	if req.Data == nil {
		missing = append(missing, "file")
	}
	if strings.TrimSpace(req.Checksum) == "" {
		missing = append(missing, "checksum")
	}
	if strings.TrimSpace(req.Filename) == "" {
		missing = append(missing, "filename")
	}
	if strings.TrimSpace(req.Folder) == "" {
		missing = append(missing, "folder")
	}
	return missing
}

func (s *uploadService) UploadDirect(ctx context.Context, req UploadRequest) (string, error) {
	if missing := MissingUploadFields(req); len(missing) > 0 {
		return "", validationError("missing parameters: %s", strings.Join(missing, ", "))
	}

	client, err := s.resolver.ActiveClient(ctx)
	if err != nil {
		return "", err
	}

	key := storage.FolderKey(req.Folder, req.Filename)
	contentType := req.ContentType
	if contentType == "" {
		contentType = storage.GuessMimetype(req.Filename)
	}
	if err := client.Put(ctx, key, req.Data, contentType); err != nil {
		logging.Error("direct upload failed", zap.String("key", key), zap.String("kind", storage.KindName(err)), zap.Error(err))
		return "", err
	}

	publicURL := client.PublicURL(key)
	logging.Info("direct upload stored", zap.String("key", key), zap.String("url", publicURL))
	return publicURL, nil
}

func (s *uploadService) LocateObject(ctx context.Context, key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", validationError("missing parameter: file_key")
	}
	client, err := s.resolver.ActiveClient(ctx)
	if err != nil {
		return "", err
	}
	exists, err := client.Head(ctx, key)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", storage.ErrRemoteNotFound
	}
	return client.PublicURL(key), nil
}
