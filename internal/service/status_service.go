package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	"alcyxob/attachment-offload/internal/repository"
	"alcyxob/attachment-offload/internal/storage"
)

// StorageStatistics counts remote attachments against the total.
type StorageStatistics struct {
	RemoteCount      int64   `json:"remote_count"`
	TotalCount       int64   `json:"total_count"`
	RemotePercentage float64 `json:"remote_percentage"`
}

// StatusReport describes the active configuration and offload progress.
type StatusReport struct {
	Configured bool              `json:"configured"`
	Bucket     string            `json:"bucket"`
	Region     string            `json:"region"`
	Statistics StorageStatistics `json:"statistics"`
	Message    string            `json:"message"`
}

// StatusService reports on remote storage usage.
type StatusService interface {
	Status(ctx context.Context) (*StatusReport, error)
}

type statusService struct {
	registry    ConfigRegistry
	attachments repository.AttachmentRepository
}

// NewStatusService creates a new StatusService.
func NewStatusService(registry ConfigRegistry, attachments repository.AttachmentRepository) StatusService {
	return &statusService{registry: registry, attachments: attachments}
}

// Status builds the report. Without an active configuration only the
// message is set.
func (s *statusService) Status(ctx context.Context) (*StatusReport, error) {
	report := &StatusReport{}

	cfg, err := s.registry.GetActive(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNoActiveConfig) {
			report.Message = "Remote storage is not configured"
			return report, nil
		}
		return nil, err
	}
	report.Configured = true
	report.Bucket = cfg.Bucket
	report.Region = cfg.Region

	total, err := s.attachments.Count(ctx)
	if err != nil {
		return nil, err
	}
	remote, err := s.attachments.CountRemote(ctx)
	if err != nil {
		return nil, err
	}
	report.Statistics = StorageStatistics{
		RemoteCount:      remote,
		TotalCount:       total,
		RemotePercentage: RemotePercentage(remote, total),
	}
	report.Message = "Remote storage is configured and active"
	return report, nil
}

// RemotePercentage is remote/total as a percentage rounded to 2 decimals,
// or 0 when total is 0.
func RemotePercentage(remote, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(remote)/float64(total)*100*100) / 100
}

// Summary renders the report on one line.
func (r *StatusReport) Summary() string {
	if !r.Configured {
		return r.Message
	}
	return fmt.Sprintf("%s: bucket %s (%s), %d/%d attachments remote (%.2f%%)",
		r.Message, r.Bucket, r.Region,
		r.Statistics.RemoteCount, r.Statistics.TotalCount, r.Statistics.RemotePercentage)
}
