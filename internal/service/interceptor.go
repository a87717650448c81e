package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"alcyxob/attachment-offload/internal/domain"
	"alcyxob/attachment-offload/internal/logging"
	"alcyxob/attachment-offload/internal/metrics"
	"alcyxob/attachment-offload/internal/repository"
	"alcyxob/attachment-offload/internal/storage"
	"alcyxob/attachment-offload/internal/storage/local"

	"go.uber.org/zap"
)

// UploadState is a step of the create-time offload state machine.
type UploadState string

const (
	StateLocal         UploadState = "local"
	StateUploadPending UploadState = "upload_pending"
	StateRemote        UploadState = "remote"
	// StateUploadFailed leaves the attachment on its original local pointer.
	StateUploadFailed UploadState = "upload_failed"
)

// UploadResult is the explicit outcome of OnAfterCreate. Err is set only
// for StateUploadFailed.
type UploadResult struct {
	State       UploadState
	Key         string
	URL         string
	Placeholder bool
	SkipReason  string
	Err         error
}

// ServeDecision tells the read path to either redirect or stream Content.
type ServeDecision struct {
	RedirectURL string
	Content     []byte
	Mimetype    string
	Name        string
}

// Redirect reports whether the client should be sent to RedirectURL.
func (d ServeDecision) Redirect() bool { return d.RedirectURL != "" }

// AttachmentHooks is invoked by the attachment persistence path.
type AttachmentHooks interface {
	// OnAfterCreate runs after the record and its local content are stored.
	// It never fails the create; failures come back as StateUploadFailed.
	OnAfterCreate(ctx context.Context, att *domain.Attachment) UploadResult
	OnBeforeServe(ctx context.Context, att *domain.Attachment) (ServeDecision, error)
}

// LocalStore is the host filestore as seen by the storage hooks.
type LocalStore interface {
	storage.LocalReader
	WritePinned(ctx context.Context, data []byte) (token, checksum string, unpin func(), err error)
	DeleteIfUnused(ctx context.Context, token string, inUse func(context.Context) (bool, error)) (bool, error)
}

// InterceptorOptions configure preview handling and read redirects.
type InterceptorOptions struct {
	// PreviewModels render their binary fields inline; offloaded content
	// on these keeps a local placeholder image.
	PreviewModels []string
	PresignReads  bool
	PresignExpiry time.Duration
}

type attachmentInterceptor struct {
	attachments repository.AttachmentRepository
	resolver    *storage.Resolver
	local       LocalStore
	opts        InterceptorOptions
}

// NewAttachmentInterceptor creates the AttachmentHooks implementation.
func NewAttachmentInterceptor(attachments repository.AttachmentRepository, resolver *storage.Resolver, localStore LocalStore, opts InterceptorOptions) AttachmentHooks {
	return &attachmentInterceptor{
		attachments: attachments,
		resolver:    resolver,
		local:       localStore,
		opts:        opts,
	}
}

var (
	assetURLPatterns  = []string{"/web/assets/", "/web/static/", "/web/content/", ".js", ".css", ".scss", "web_editor", "assets_"}
	assetNamePatterns = []string{".js", ".css", ".scss", "web.assets_", "assets_common", "assets_backend", "assets_frontend"}
	assetModels       = map[string]bool{"ir.ui.view": true, "ir.qweb": true, "web_editor.assets": true}
	assetMimetypes    = map[string]bool{"text/css": true, "text/javascript": true, "application/javascript": true}
)

// IsPlatformAsset reports whether att belongs to the host's own asset
// pipeline. Such attachments always stay local.
func IsPlatformAsset(att *domain.Attachment) bool {
	for _, p := range assetURLPatterns {
		if strings.Contains(att.URL, p) {
			return true
		}
	}
	for _, p := range assetNamePatterns {
		if strings.Contains(att.Name, p) {
			return true
		}
	}
	return assetModels[att.ResModel] || assetMimetypes[att.Mimetype]
}

func (s *attachmentInterceptor) isPreviewField(att *domain.Attachment) bool {
	if att.ResField == "" {
		return false
	}
	if strings.HasPrefix(att.Mimetype, "image/") {
		return true
	}
	for _, m := range s.opts.PreviewModels {
		if att.ResModel == m {
			return true
		}
	}
	return false
}

// OnAfterCreate moves freshly created content to the object store.
func (s *attachmentInterceptor) OnAfterCreate(ctx context.Context, att *domain.Attachment) (result UploadResult) {
	if att == nil || att.StoragePointer == "" {
		return s.skip(att, StateLocal, "no content")
	}
	if storage.IsRemote(att.StoragePointer) {
		key, _ := storage.KeyFromPointer(att.StoragePointer)
		return UploadResult{State: StateRemote, Key: key, URL: att.RemoteURL, SkipReason: "already remote"}
	}
	if IsPlatformAsset(att) {
		return s.skip(att, StateLocal, "platform asset")
	}

	client, err := s.resolver.ActiveClient(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNoActiveConfig) {
			return s.skip(att, StateLocal, "no active remote config")
		}
		return s.fail(att, err)
	}

	defer func() {
		if r := recover(); r != nil {
			result = s.fail(att, fmt.Errorf("%w: panic during upload: %v", storage.ErrUnknown, r))
		}
	}()

	logging.Debug("attachment upload pending", zap.String("attachmentId", att.ID.Hex()), zap.String("state", string(StateUploadPending)))

	data, err := s.local.Read(ctx, att.StoragePointer)
	if err != nil {
		return s.fail(att, fmt.Errorf("read local content: %w", err))
	}
	checksum := att.Checksum
	if checksum == "" {
		checksum = local.Checksum(data)
	}
	key, err := storage.GenerateKey(checksum, att.Name)
	if err != nil {
		return s.fail(att, err)
	}
	contentType := att.Mimetype
	if contentType == "" {
		contentType = storage.DefaultMimetype
	}
	if err := client.Put(ctx, key, data, contentType); err != nil {
		return s.fail(att, err)
	}
	publicURL := client.PublicURL(key)

	previous := *att
	unpin := func() {}
	if s.isPreviewField(att) {
		token, _, release, err := s.local.WritePinned(ctx, storage.PlaceholderGIF)
		if err != nil {
			return s.fail(att, fmt.Errorf("write placeholder: %w", err))
		}
		unpin = release
		att.StoragePointer = token
		att.Placeholder = true
	} else {
		att.StoragePointer = storage.RemotePointer(key)
	}
	att.RemoteURL = publicURL

	err = s.attachments.Update(ctx, att)
	unpin()
	if err != nil {
		decoy := att.StoragePointer
		*att = previous
		if decoy != previous.StoragePointer {
			s.releaseLocal(ctx, decoy)
		}
		return s.fail(att, fmt.Errorf("persist remote pointer: %w", err))
	}

	s.releaseLocal(ctx, previous.StoragePointer)

	result = UploadResult{State: StateRemote, Key: key, URL: publicURL, Placeholder: att.Placeholder}
	if att.Placeholder {
		metrics.RecordTransition("placeholder")
	} else {
		metrics.RecordTransition("remote")
	}
	logging.Info("attachment offloaded",
		zap.String("attachmentId", att.ID.Hex()),
		zap.String("key", key),
		zap.Bool("placeholder", att.Placeholder))
	return result
}

func (s *attachmentInterceptor) releaseLocal(ctx context.Context, token string) {
	releaseLocalFile(ctx, s.attachments, s.local, token)
}

// releaseLocalFile deletes a local file once no record references it.
func releaseLocalFile(ctx context.Context, attachments repository.AttachmentRepository, localStore LocalStore, token string) {
	if token == "" || storage.IsRemote(token) {
		return
	}
	inUse := func(ctx context.Context) (bool, error) {
		refs, err := attachments.CountByPointer(ctx, token)
		return refs > 0, err
	}
	deleted, err := localStore.DeleteIfUnused(ctx, token, inUse)
	if err != nil {
		logging.Warn("failed to release local file", zap.String("token", token), zap.Error(err))
		return
	}
	if deleted {
		logging.Debug("local file deleted", zap.String("token", token))
	}
}

func (s *attachmentInterceptor) skip(att *domain.Attachment, state UploadState, reason string) UploadResult {
	metrics.RecordTransition("skipped")
	if att != nil {
		logging.Debug("attachment stays local", zap.String("attachmentId", att.ID.Hex()), zap.String("reason", reason))
	}
	return UploadResult{State: state, SkipReason: reason}
}

func (s *attachmentInterceptor) fail(att *domain.Attachment, err error) UploadResult {
	metrics.RecordTransition("failed")
	logging.Error("attachment upload failed, keeping local copy",
		zap.String("attachmentId", att.ID.Hex()),
		zap.String("kind", storage.KindName(err)),
		zap.Error(err))
	return UploadResult{State: StateUploadFailed, Err: err}
}

// OnBeforeServe decides how a read is answered. Remote attachments with a
// recorded URL are redirected instead of proxied.
func (s *attachmentInterceptor) OnBeforeServe(ctx context.Context, att *domain.Attachment) (ServeDecision, error) {
	decision := ServeDecision{Mimetype: att.Mimetype, Name: att.Name}
	if decision.Mimetype == "" {
		decision.Mimetype = storage.DefaultMimetype
	}

	if storage.IsRemote(att.StoragePointer) {
		if u, ok := s.resolver.ResolveForURL(att); ok {
			decision.RedirectURL = s.redirectURL(ctx, att, u)
			metrics.RecordRedirect()
			return decision, nil
		}
	}

	data, err := s.resolver.ResolveForRead(ctx, att.StoragePointer)
	if err != nil {
		if errors.Is(err, local.ErrNotFound) {
			return ServeDecision{}, fmt.Errorf("%w: %v", ErrAttachmentNotFound, err)
		}
		return ServeDecision{}, err
	}
	decision.Content = data
	return decision, nil
}

func (s *attachmentInterceptor) redirectURL(ctx context.Context, att *domain.Attachment, recorded string) string {
	if !s.opts.PresignReads {
		return recorded
	}
	key, _ := storage.KeyFromPointer(att.StoragePointer)
	client, err := s.resolver.ActiveClient(ctx)
	if err == nil {
		var signed string
		if signed, err = client.PresignGet(ctx, key, s.opts.PresignExpiry); err == nil {
			return signed
		}
	}
	logging.Warn("presign failed, redirecting to recorded URL", zap.String("attachmentId", att.ID.Hex()), zap.Error(err))
	return recorded
}
