package service

import (
	"context"
	"testing"

	"alcyxob/attachment-offload/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadService_UploadDirect(t *testing.T) {
	h := newHarness(t)
	svc := NewUploadService(h.resolver)
	ctx := context.Background()
	req := UploadRequest{Checksum: "ab12", Filename: "scan.pdf", Folder: "invoices/2024", Data: []byte("pdf")}

	_, err := svc.UploadDirect(ctx, req)
	assert.ErrorIs(t, err, storage.ErrNoActiveConfig)

	h.activate(t)
	u, err := svc.UploadDirect(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, h.remote.PublicURL("invoices/2024/scan.pdf"), u)
	assert.Equal(t, "application/pdf", h.remote.types["invoices/2024/scan.pdf"])
}

func TestUploadService_MissingParameters(t *testing.T) {
	h := newHarness(t)
	h.activate(t)
	svc := NewUploadService(h.resolver)

	_, err := svc.UploadDirect(context.Background(), UploadRequest{Filename: "a.pdf", Data: []byte("x")})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidationFailed)
	assert.Contains(t, err.Error(), "missing parameters: checksum, folder")

	assert.Equal(t, []string{"file", "checksum", "filename", "folder"}, MissingUploadFields(UploadRequest{}))
}

func TestUploadService_LocateObject(t *testing.T) {
	h := newHarness(t)
	h.activate(t)
	svc := NewUploadService(h.resolver)
	ctx := context.Background()
	require.NoError(t, h.remote.Put(ctx, "docs/a.pdf", []byte("a"), "application/pdf"))

	u, err := svc.LocateObject(ctx, "docs/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, h.remote.PublicURL("docs/a.pdf"), u)

	_, err = svc.LocateObject(ctx, "docs/missing.pdf")
	assert.ErrorIs(t, err, storage.ErrRemoteNotFound)
}
