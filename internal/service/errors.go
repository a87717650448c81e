package service

import (
	"errors"
	"fmt"

	"alcyxob/attachment-offload/internal/storage"
)

// --- Error Definitions ---
var (
	// ErrValidationFailed is the storage validation kind so handlers can test
	// either package's errors with one errors.Is.
	ErrValidationFailed = storage.ErrValidation

	ErrAttachmentNotFound    = errors.New("attachment not found")
	ErrConfigNotFound        = errors.New("remote config not found")
	ErrConfigNameTaken       = errors.New("remote config with this name already exists")
	ErrMultipleActiveConfigs = fmt.Errorf("%w: more than one remote config is active", ErrValidationFailed)
	ErrRemoteURLUnavailable  = errors.New("attachment has no remote URL")
)

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidationFailed, fmt.Sprintf(format, args...))
}
