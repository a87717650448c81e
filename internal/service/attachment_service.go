package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"alcyxob/attachment-offload/internal/domain"
	"alcyxob/attachment-offload/internal/logging"
	"alcyxob/attachment-offload/internal/repository"
	"alcyxob/attachment-offload/internal/storage"

	"github.com/gabriel-vasile/mimetype"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// CreateAttachmentInput is the content and ownership of a new attachment.
type CreateAttachmentInput struct {
	Name     string
	Mimetype string
	ResModel string
	ResField string
	ResID    string
	URL      string
	Data     []byte
}

// AttachmentService is the host-facing attachment API. Storage location is
// handled by the AttachmentHooks it calls.
type AttachmentService interface {
	Create(ctx context.Context, input CreateAttachmentInput) (*domain.Attachment, UploadResult, error)
	Get(ctx context.Context, id primitive.ObjectID) (*domain.Attachment, error)
	Serve(ctx context.Context, id primitive.ObjectID) (*domain.Attachment, ServeDecision, error)
	// RemoteURL accepts an attachment id or a /web/content/<id> reference.
	RemoteURL(ctx context.Context, ref string) (string, error)
	// Download fetches the true remote content of an offloaded attachment
	// through the application.
	Download(ctx context.Context, id primitive.ObjectID) (*domain.Attachment, []byte, error)
}

type attachmentService struct {
	attachments repository.AttachmentRepository
	local       LocalStore
	resolver    *storage.Resolver
	hooks       AttachmentHooks
}

// NewAttachmentService creates a new AttachmentService.
func NewAttachmentService(attachments repository.AttachmentRepository, localStore LocalStore, resolver *storage.Resolver, hooks AttachmentHooks) AttachmentService {
	return &attachmentService{attachments: attachments, local: localStore, resolver: resolver, hooks: hooks}
}

// Create stores content locally, inserts the record and runs the
// create-time upload. Upload failures are logged and the attachment stays
// local.
func (s *attachmentService) Create(ctx context.Context, input CreateAttachmentInput) (*domain.Attachment, UploadResult, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, UploadResult{}, validationError("attachment name is required")
	}

	att := &domain.Attachment{
		Name:     name,
		Mimetype: detectMimetype(name, input.Mimetype, input.Data),
		ResModel: input.ResModel,
		ResField: input.ResField,
		ResID:    input.ResID,
		URL:      input.URL,
		Size:     int64(len(input.Data)),
		Type:     domain.AttachmentBinary,
	}

	// The file stays pinned until the record referencing it exists.
	unpin := func() {}
	if len(input.Data) > 0 {
		token, checksum, release, err := s.local.WritePinned(ctx, input.Data)
		if err != nil {
			return nil, UploadResult{}, fmt.Errorf("store local content: %w", err)
		}
		unpin = release
		att.StoragePointer = token
		att.Checksum = checksum
	}

	_, err := s.attachments.Create(ctx, att)
	unpin()
	if err != nil {
		return nil, UploadResult{}, err
	}

	result := s.hooks.OnAfterCreate(ctx, att)
	if result.State == StateUploadFailed {
		logging.Warn("attachment created with local storage only",
			zap.String("attachmentId", att.ID.Hex()), zap.Error(result.Err))
	}
	return att, result, nil
}

// Get returns one attachment.
func (s *attachmentService) Get(ctx context.Context, id primitive.ObjectID) (*domain.Attachment, error) {
	att, err := s.attachments.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAttachmentNotFound
		}
		return nil, err
	}
	return att, nil
}

// Serve resolves the read path of an attachment.
func (s *attachmentService) Serve(ctx context.Context, id primitive.ObjectID) (*domain.Attachment, ServeDecision, error) {
	att, err := s.Get(ctx, id)
	if err != nil {
		return nil, ServeDecision{}, err
	}
	if att.StoragePointer == "" {
		return att, ServeDecision{Mimetype: att.Mimetype, Name: att.Name}, nil
	}
	decision, err := s.hooks.OnBeforeServe(ctx, att)
	if err != nil {
		return att, ServeDecision{}, err
	}
	return att, decision, nil
}

var contentRefPattern = regexp.MustCompile(`/web/content/([0-9a-fA-F]{24})`)

// ParseAttachmentRef extracts an attachment id from a bare hex id or a
// /web/content/<id> URL.
func ParseAttachmentRef(ref string) (primitive.ObjectID, error) {
	ref = strings.TrimSpace(ref)
	if m := contentRefPattern.FindStringSubmatch(ref); m != nil {
		ref = m[1]
	}
	id, err := primitive.ObjectIDFromHex(ref)
	if err != nil {
		return primitive.NilObjectID, validationError("invalid attachment reference %q", ref)
	}
	return id, nil
}

// RemoteURL returns the recorded remote URL of an attachment.
func (s *attachmentService) RemoteURL(ctx context.Context, ref string) (string, error) {
	id, err := ParseAttachmentRef(ref)
	if err != nil {
		return "", err
	}
	att, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if att.RemoteURL == "" {
		return "", ErrRemoteURLUnavailable
	}
	return att.RemoteURL, nil
}

// Download reads the remote copy of an attachment. Placeholder attachments
// are fetched by their content key since their pointer is the local decoy.
func (s *attachmentService) Download(ctx context.Context, id primitive.ObjectID) (*domain.Attachment, []byte, error) {
	att, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if att.RemoteURL == "" {
		return att, nil, ErrRemoteURLUnavailable
	}

	if !att.Placeholder {
		data, err := s.resolver.ResolveForRead(ctx, att.StoragePointer)
		return att, data, err
	}

	key, err := storage.GenerateKey(att.Checksum, att.Name)
	if err != nil {
		return att, nil, err
	}
	client, err := s.resolver.ActiveClient(ctx)
	if err != nil {
		return att, nil, err
	}
	data, err := client.Get(ctx, key)
	return att, data, err
}

// detectMimetype prefers the declared type, then the file extension, then
// content sniffing.
func detectMimetype(name, declared string, data []byte) string {
	declared = strings.TrimSpace(declared)
	if declared != "" && declared != storage.DefaultMimetype {
		return declared
	}
	if guessed := storage.GuessMimetype(name); guessed != storage.DefaultMimetype {
		return guessed
	}
	if len(data) == 0 {
		return storage.DefaultMimetype
	}
	detected, _, _ := strings.Cut(mimetype.Detect(data).String(), ";")
	return strings.TrimSpace(detected)
}
