package service

import (
	"context"
	"errors"
	"testing"

	"alcyxob/attachment-offload/internal/domain"
	"alcyxob/attachment-offload/internal/storage"
	"alcyxob/attachment-offload/internal/storage/local"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAttachmentService(h *harness, opts InterceptorOptions) AttachmentService {
	hooks := NewAttachmentInterceptor(h.attachments, h.resolver, h.local, opts)
	return NewAttachmentService(h.attachments, h.local, h.resolver, hooks)
}

func TestIsPlatformAsset(t *testing.T) {
	tests := []struct {
		name string
		att  domain.Attachment
		want bool
	}{
		{"plain pdf", domain.Attachment{Name: "report.pdf", Mimetype: "application/pdf"}, false},
		{"asset url", domain.Attachment{Name: "x", URL: "/web/assets/123/bundle"}, true},
		{"static url", domain.Attachment{Name: "x", URL: "/web/static/img/logo.png"}, true},
		{"stylesheet name", domain.Attachment{Name: "theme.scss"}, true},
		{"bundle name", domain.Attachment{Name: "web.assets_backend.min"}, true},
		{"view model", domain.Attachment{Name: "x", ResModel: "ir.ui.view"}, true},
		{"qweb model", domain.Attachment{Name: "x", ResModel: "ir.qweb"}, true},
		{"css mimetype", domain.Attachment{Name: "x", Mimetype: "text/css"}, true},
		{"js mimetype", domain.Attachment{Name: "x", Mimetype: "application/javascript"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsPlatformAsset(&tt.att))
		})
	}
}

func TestOnAfterCreate_UploadsAndRewritesPointer(t *testing.T) {
	h := newHarness(t)
	h.activate(t)
	svc := newTestAttachmentService(h, InterceptorOptions{})
	ctx := context.Background()

	att, result, err := svc.Create(ctx, CreateAttachmentInput{Name: "Report Final.PDF", Data: []byte("%PDF-1.4 body")})
	require.NoError(t, err)
	require.Equal(t, StateRemote, result.State)
	require.NoError(t, result.Err)

	checksum := local.Checksum([]byte("%PDF-1.4 body"))
	wantKey := "files/" + checksum[:2] + "/" + checksum + "/report_final.pdf"
	assert.Equal(t, wantKey, result.Key)
	assert.True(t, h.remote.has(wantKey))
	assert.Equal(t, "application/pdf", h.remote.types[wantKey])

	stored := h.attachments.get(t, att.ID)
	assert.True(t, storage.IsRemote(stored.StoragePointer))
	assert.Equal(t, storage.RemotePointer(wantKey), stored.StoragePointer)
	u, ok := h.resolver.ResolveForURL(&stored)
	assert.True(t, ok)
	assert.Equal(t, h.remote.PublicURL(wantKey), u)

	assert.False(t, h.local.Exists(ctx, checksum[:2]+"/"+checksum), "local copy should be removed")

	data, err := h.resolver.ResolveForRead(ctx, stored.StoragePointer)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4 body"), data)
}

func TestOnAfterCreate_FailureStaysLocal(t *testing.T) {
	h := newHarness(t)
	h.activate(t)
	h.remote.putErr = &storage.RemoteError{Op: "put", Kind: storage.ErrAuthFailure, Err: errors.New("InvalidAccessKeyId")}
	svc := newTestAttachmentService(h, InterceptorOptions{})
	ctx := context.Background()

	att, result, err := svc.Create(ctx, CreateAttachmentInput{Name: "notes.txt", Data: []byte("keep me")})
	require.NoError(t, err, "create must not fail when the upload fails")
	assert.Equal(t, StateUploadFailed, result.State)
	assert.ErrorIs(t, result.Err, storage.ErrAuthFailure)

	stored := h.attachments.get(t, att.ID)
	assert.False(t, storage.IsRemote(stored.StoragePointer))
	assert.Empty(t, stored.RemoteURL)

	data, err := h.resolver.ResolveForRead(ctx, stored.StoragePointer)
	require.NoError(t, err)
	assert.Equal(t, []byte("keep me"), data)
}

func TestOnAfterCreate_PersistFailureRestoresAttachment(t *testing.T) {
	h := newHarness(t)
	h.activate(t)
	hooks := NewAttachmentInterceptor(h.attachments, h.resolver, h.local, InterceptorOptions{})
	att := h.seedLocal(t, "a.pdf", "application/pdf", []byte("pdf bytes"))
	original := att.StoragePointer
	h.attachments.updateErr = errors.New("write conflict")

	result := hooks.OnAfterCreate(context.Background(), &att)
	assert.Equal(t, StateUploadFailed, result.State)
	assert.Equal(t, original, att.StoragePointer)
	assert.Empty(t, att.RemoteURL)
	assert.True(t, h.local.Exists(context.Background(), original))
}

func TestOnAfterCreate_NoActiveConfigStaysLocal(t *testing.T) {
	h := newHarness(t)
	svc := newTestAttachmentService(h, InterceptorOptions{})

	att, result, err := svc.Create(context.Background(), CreateAttachmentInput{Name: "a.pdf", Data: []byte("x")})
	require.NoError(t, err)
	assert.Equal(t, StateLocal, result.State)
	assert.Equal(t, "no active remote config", result.SkipReason)
	assert.False(t, storage.IsRemote(h.attachments.get(t, att.ID).StoragePointer))
}

func TestOnAfterCreate_SkipsPlatformAssets(t *testing.T) {
	h := newHarness(t)
	h.activate(t)
	svc := newTestAttachmentService(h, InterceptorOptions{})

	_, result, err := svc.Create(context.Background(), CreateAttachmentInput{Name: "web.assets_common.js", Data: []byte("var x;")})
	require.NoError(t, err)
	assert.Equal(t, StateLocal, result.State)
	assert.Equal(t, "platform asset", result.SkipReason)
	assert.Empty(t, h.remote.objects)
}

func TestOnAfterCreate_AlreadyRemoteIsNotReuploaded(t *testing.T) {
	h := newHarness(t)
	h.activate(t)
	hooks := NewAttachmentInterceptor(h.attachments, h.resolver, h.local, InterceptorOptions{})

	att := &domain.Attachment{Name: "a.pdf", StoragePointer: "remote://files/ab/abcd/a.pdf", RemoteURL: "https://x/a.pdf", Size: 3}
	result := hooks.OnAfterCreate(context.Background(), att)
	assert.Equal(t, StateRemote, result.State)
	assert.Equal(t, "files/ab/abcd/a.pdf", result.Key)
	assert.Empty(t, h.remote.objects)
}

func TestOnAfterCreate_PreviewFieldKeepsPlaceholder(t *testing.T) {
	h := newHarness(t)
	h.activate(t)
	svc := newTestAttachmentService(h, InterceptorOptions{PreviewModels: []string{"res.partner"}})
	ctx := context.Background()
	content := []byte("real avatar bytes")

	att, result, err := svc.Create(ctx, CreateAttachmentInput{
		Name: "avatar", ResModel: "res.partner", ResField: "image_1920", Data: content,
	})
	require.NoError(t, err)
	require.Equal(t, StateRemote, result.State)
	assert.True(t, result.Placeholder)

	stored := h.attachments.get(t, att.ID)
	assert.False(t, storage.IsRemote(stored.StoragePointer))
	assert.True(t, stored.Placeholder)
	assert.Equal(t, h.remote.PublicURL(result.Key), stored.RemoteURL)

	decoy, err := h.resolver.ResolveForRead(ctx, stored.StoragePointer)
	require.NoError(t, err)
	assert.Equal(t, storage.PlaceholderGIF, decoy)

	checksum := local.Checksum(content)
	assert.False(t, h.local.Exists(ctx, checksum[:2]+"/"+checksum))
	assert.Equal(t, content, h.remote.objects[result.Key])
}

func TestOnAfterCreate_SharedLocalFileIsKept(t *testing.T) {
	h := newHarness(t)
	svc := newTestAttachmentService(h, InterceptorOptions{})
	ctx := context.Background()
	data := []byte("shared content")

	first, _, err := svc.Create(ctx, CreateAttachmentInput{Name: "one.pdf", Data: data})
	require.NoError(t, err)

	h.activate(t)
	_, result, err := svc.Create(ctx, CreateAttachmentInput{Name: "two.pdf", Data: data})
	require.NoError(t, err)
	require.Equal(t, StateRemote, result.State)

	got, err := h.resolver.ResolveForRead(ctx, h.attachments.get(t, first.ID).StoragePointer)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestOnAfterCreate_KeepsFileOfInFlightCreate(t *testing.T) {
	h := newHarness(t)
	h.activate(t)
	svc := newTestAttachmentService(h, InterceptorOptions{})
	ctx := context.Background()
	data := []byte("same bytes, two uploads")

	// A second writer has stored the file but not yet inserted its record.
	token, checksum, unpin, err := h.local.WritePinned(ctx, data)
	require.NoError(t, err)

	_, result, err := svc.Create(ctx, CreateAttachmentInput{Name: "first.pdf", Data: data})
	require.NoError(t, err)
	require.Equal(t, StateRemote, result.State)
	assert.True(t, h.local.Exists(ctx, token))

	second := domain.Attachment{Name: "second.pdf", StoragePointer: token, Checksum: checksum, Size: int64(len(data))}
	_, err = h.attachments.Create(ctx, &second)
	require.NoError(t, err)
	unpin()

	got, err := h.resolver.ResolveForRead(ctx, second.StoragePointer)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestOnAfterCreate_PlaceholderUnpinnedAfterUpdate(t *testing.T) {
	h := newHarness(t)
	h.activate(t)
	svc := newTestAttachmentService(h, InterceptorOptions{PreviewModels: []string{"res.partner"}})
	ctx := context.Background()

	att, result, err := svc.Create(ctx, CreateAttachmentInput{
		Name: "avatar.png", Mimetype: "image/png", ResModel: "res.partner", ResField: "image_1920", Data: []byte("avatar"),
	})
	require.NoError(t, err)
	require.True(t, result.Placeholder)
	assert.False(t, h.local.Pinned(att.StoragePointer))

	saved := h.attachments.get(t, att.ID)
	assert.False(t, h.local.Pinned(saved.StoragePointer))
	data, err := h.local.Read(ctx, saved.StoragePointer)
	require.NoError(t, err)
	assert.Equal(t, storage.PlaceholderGIF, data)
}

func TestOnBeforeServe(t *testing.T) {
	h := newHarness(t)
	h.activate(t)
	ctx := context.Background()
	require.NoError(t, h.remote.Put(ctx, "files/ab/abcd/a.pdf", []byte("remote"), "application/pdf"))

	hooks := NewAttachmentInterceptor(h.attachments, h.resolver, h.local, InterceptorOptions{})
	presigning := NewAttachmentInterceptor(h.attachments, h.resolver, h.local, InterceptorOptions{PresignReads: true})

	t.Run("remote with url redirects", func(t *testing.T) {
		att := &domain.Attachment{Name: "a.pdf", StoragePointer: "remote://files/ab/abcd/a.pdf", RemoteURL: "https://b/a.pdf"}
		d, err := hooks.OnBeforeServe(ctx, att)
		require.NoError(t, err)
		assert.True(t, d.Redirect())
		assert.Equal(t, "https://b/a.pdf", d.RedirectURL)
		assert.Nil(t, d.Content)
	})

	t.Run("presigned redirect", func(t *testing.T) {
		att := &domain.Attachment{Name: "a.pdf", StoragePointer: "remote://files/ab/abcd/a.pdf", RemoteURL: "https://b/a.pdf"}
		d, err := presigning.OnBeforeServe(ctx, att)
		require.NoError(t, err)
		assert.Contains(t, d.RedirectURL, "X-Amz-Signature=")
	})

	t.Run("remote without url streams", func(t *testing.T) {
		att := &domain.Attachment{Name: "a.pdf", StoragePointer: "remote://files/ab/abcd/a.pdf"}
		d, err := hooks.OnBeforeServe(ctx, att)
		require.NoError(t, err)
		assert.False(t, d.Redirect())
		assert.Equal(t, []byte("remote"), d.Content)
		assert.Equal(t, storage.DefaultMimetype, d.Mimetype)
	})

	t.Run("missing remote object", func(t *testing.T) {
		att := &domain.Attachment{Name: "gone.pdf", StoragePointer: "remote://files/zz/gone.pdf"}
		_, err := hooks.OnBeforeServe(ctx, att)
		assert.ErrorIs(t, err, storage.ErrRemoteNotFound)
	})

	t.Run("local content", func(t *testing.T) {
		att := h.seedLocal(t, "local.txt", "text/plain", []byte("local"))
		d, err := hooks.OnBeforeServe(ctx, &att)
		require.NoError(t, err)
		assert.Equal(t, []byte("local"), d.Content)
		assert.Equal(t, "text/plain", d.Mimetype)
	})

	t.Run("missing local file", func(t *testing.T) {
		att := &domain.Attachment{Name: "x", StoragePointer: "ab/ab" + "00000000000000000000000000000000000000"}
		_, err := hooks.OnBeforeServe(ctx, att)
		assert.ErrorIs(t, err, ErrAttachmentNotFound)
	})
}
