package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"alcyxob/attachment-offload/internal/domain"
	"alcyxob/attachment-offload/internal/logging"
	"alcyxob/attachment-offload/internal/metrics"
	"alcyxob/attachment-offload/internal/repository"
	"alcyxob/attachment-offload/internal/storage"
	"alcyxob/attachment-offload/internal/storage/local"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// MigrationRequest selects attachments by explicit IDs or, when none are
// given, by MIME type.
type MigrationRequest struct {
	Mimetype string               `json:"mimetype"`
	IDs      []primitive.ObjectID `json:"ids"`
}

// MigrationReport aggregates one bulk run.
type MigrationReport struct {
	Uploaded           int    `json:"uploaded"`
	Errors             int    `json:"errors"`
	Skipped            int    `json:"skipped"`
	TotalBytesUploaded int64  `json:"total_bytes_uploaded"`
	TotalSize          string `json:"total_size"`
	Message            string `json:"message"`
}

// MigrationPreview describes a selection before it is migrated.
type MigrationPreview struct {
	FileCount  int     `json:"file_count"`
	TotalBytes int64   `json:"total_size_bytes"`
	TotalMB    float64 `json:"total_size_mb"`
	TotalGB    float64 `json:"total_size_gb"`
}

// BulkMigrator re-homes existing local attachments to the object store.
type BulkMigrator interface {
	Migrate(ctx context.Context, req MigrationRequest) (*MigrationReport, error)
	Preview(ctx context.Context, req MigrationRequest) (*MigrationPreview, error)
}

type bulkMigrator struct {
	attachments repository.AttachmentRepository
	resolver    *storage.Resolver
	local       LocalStore
	concurrency int
}

// NewBulkMigrator creates a BulkMigrator. concurrency below 2 migrates
// sequentially.
func NewBulkMigrator(attachments repository.AttachmentRepository, resolver *storage.Resolver, localStore LocalStore, concurrency int) BulkMigrator {
	if concurrency < 1 {
		concurrency = 1
	}
	return &bulkMigrator{
		attachments: attachments,
		resolver:    resolver,
		local:       localStore,
		concurrency: concurrency,
	}
}

type itemResult int

const (
	itemUploaded itemResult = iota
	itemSkipped
	itemFailed
)

func (m *bulkMigrator) selectAttachments(ctx context.Context, req MigrationRequest) ([]domain.Attachment, error) {
	if len(req.IDs) > 0 {
		return m.attachments.ListByIDs(ctx, req.IDs)
	}
	mime := strings.TrimSpace(req.Mimetype)
	if mime == "" {
		return nil, validationError("a mimetype filter or attachment ids are required")
	}
	return m.attachments.ListByMimetype(ctx, mime)
}

// Preview counts the selection and its total size.
func (m *bulkMigrator) Preview(ctx context.Context, req MigrationRequest) (*MigrationPreview, error) {
	atts, err := m.selectAttachments(ctx, req)
	if err != nil {
		return nil, err
	}
	var total int64
	for _, att := range atts {
		if att.Size > 0 {
			total += att.Size
		}
	}
	return &MigrationPreview{
		FileCount:  len(atts),
		TotalBytes: total,
		TotalMB:    float64(total) / (1024 * 1024),
		TotalGB:    float64(total) / (1024 * 1024 * 1024),
	}, nil
}

// Migrate uploads every selected attachment. A failing item is counted and
// the run continues.
func (m *bulkMigrator) Migrate(ctx context.Context, req MigrationRequest) (*MigrationReport, error) {
	client, err := m.resolver.ActiveClient(ctx)
	if err != nil {
		return nil, err
	}

	atts, err := m.selectAttachments(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(atts) == 0 {
		return &MigrationReport{TotalSize: FormatBytes(0), Message: "No attachments found to process."}, nil
	}

	logging.Info("bulk migration started",
		zap.Int("candidates", len(atts)), zap.String("mimetype", req.Mimetype), zap.Int("concurrency", m.concurrency))

	var (
		mu     sync.Mutex
		report MigrationReport
	)
	record := func(res itemResult, size int64) {
		mu.Lock()
		defer mu.Unlock()
		switch res {
		case itemUploaded:
			report.Uploaded++
			if size > 0 {
				report.TotalBytesUploaded += size
			}
			metrics.RecordMigrationItem("uploaded")
		case itemSkipped:
			report.Skipped++
			metrics.RecordMigrationItem("skipped")
		default:
			report.Errors++
			metrics.RecordMigrationItem("error")
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)
	for i := range atts {
		att := &atts[i]
		g.Go(func() error {
			// Items never return an error so one failure cannot cancel the rest.
			record(m.migrateOne(gctx, client, att), att.Size)
			return nil
		})
	}
	_ = g.Wait()

	report.TotalSize = FormatBytes(report.TotalBytesUploaded)
	report.Message = fmt.Sprintf("Upload completed: %d files uploaded, %d errors, %d files skipped. Total size uploaded: %s",
		report.Uploaded, report.Errors, report.Skipped, report.TotalSize)
	logging.Info("bulk migration finished",
		zap.Int("uploaded", report.Uploaded),
		zap.Int("errors", report.Errors),
		zap.Int("skipped", report.Skipped),
		zap.Int64("bytes", report.TotalBytesUploaded))
	return &report, nil
}

func (m *bulkMigrator) migrateOne(ctx context.Context, client storage.RemoteStorage, att *domain.Attachment) itemResult {
	log := logging.WithContext(ctx).With(zap.String("attachmentId", att.ID.Hex()), zap.String("name", att.Name))

	// Placeholders keep a local decoy pointer; their content is already remote.
	if storage.IsRemote(att.StoragePointer) || att.Placeholder || att.RemoteURL != "" {
		log.Debug("already remote, skipping")
		return itemSkipped
	}
	if !att.HasContent() {
		log.Warn("attachment has no content, skipping")
		return itemSkipped
	}

	data, err := m.local.Read(ctx, att.StoragePointer)
	if err != nil {
		log.Error("failed to read local content", zap.Error(err))
		return itemFailed
	}

	key := migrationKey(att)
	contentType := att.Mimetype
	if contentType == "" {
		contentType = storage.DefaultMimetype
	}
	if err := client.Put(ctx, key, data, contentType); err != nil {
		log.Error("failed to upload attachment", zap.String("kind", storage.KindName(err)), zap.Error(err))
		return itemFailed
	}

	publicURL := client.PublicURL(key)
	previousPointer := att.StoragePointer
	att.StoragePointer = storage.RemotePointer(key)
	att.RemoteURL = publicURL
	att.URL = publicURL
	att.Type = domain.AttachmentURL
	if err := m.attachments.Update(ctx, att); err != nil {
		log.Error("uploaded but failed to record remote pointer", zap.String("key", key), zap.Error(err))
		return itemFailed
	}

	releaseLocalFile(ctx, m.attachments, m.local, previousPointer)
	log.Info("attachment migrated", zap.String("url", publicURL))
	return itemUploaded
}

// migrationKey reuses a filestore token as the key, otherwise <id>_<name>.
func migrationKey(att *domain.Attachment) string {
	if local.IsToken(att.StoragePointer) {
		return att.StoragePointer
	}
	return att.ID.Hex() + "_" + storage.SanitizeName(att.Name)
}

// FormatBytes renders a size with bytes/KB/MB/GB units at powers of 1024.
func FormatBytes(n int64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)
	switch {
	case n < kb:
		return fmt.Sprintf("%d bytes", n)
	case n < mb:
		return fmt.Sprintf("%.2f KB", float64(n)/kb)
	case n < gb:
		return fmt.Sprintf("%.2f MB", float64(n)/mb)
	default:
		return fmt.Sprintf("%.2f GB", float64(n)/gb)
	}
}
