package storage

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// Error kinds. Every error returned by a RemoteStorage matches exactly one of
// them through errors.Is.
var (
	ErrNoActiveConfig   = errors.New("no active remote storage configuration")
	ErrAuthFailure      = errors.New("remote storage authentication failed")
	ErrRemoteNotFound   = errors.New("remote object not found")
	ErrTransientNetwork = errors.New("transient network failure")
	ErrValidation       = errors.New("validation failed")
	ErrUnknown          = errors.New("unknown remote storage failure")
)

// RemoteError records the failed operation together with its classified kind.
type RemoteError struct {
	Op   string
	Key  string
	Kind error
	Err  error
}

func (e *RemoteError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Key, e.Kind, e.Err)
}

func (e *RemoteError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func newRemoteError(op, key string, err error) error {
	return &RemoteError{Op: op, Key: key, Kind: Classify(err), Err: err}
}

var (
	authCodes = map[string]bool{
		"AccessDenied":          true,
		"InvalidAccessKeyId":    true,
		"SignatureDoesNotMatch": true,
		"ExpiredToken":          true,
		"InvalidToken":          true,
		"Forbidden":             true,
	}
	notFoundCodes = map[string]bool{
		"NoSuchKey":    true,
		"NotFound":     true,
		"NoSuchBucket": true,
	}
	transientCodes = map[string]bool{
		"SlowDown":           true,
		"RequestTimeout":     true,
		"InternalError":      true,
		"ServiceUnavailable": true,
		"Throttling":         true,
	}
)

// Classify maps an SDK or transport error onto one of the error kinds.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range []error{ErrNoActiveConfig, ErrAuthFailure, ErrRemoteNotFound, ErrTransientNetwork, ErrValidation, ErrUnknown} {
		if errors.Is(err, kind) {
			return kind
		}
	}

	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) || errors.As(err, &noSuchBucket) {
		return ErrRemoteNotFound
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		switch {
		case authCodes[code]:
			return ErrAuthFailure
		case notFoundCodes[code]:
			return ErrRemoteNotFound
		case transientCodes[code]:
			return ErrTransientNetwork
		}
	}

	var statusErr interface{ HTTPStatusCode() int }
	if errors.As(err, &statusErr) {
		switch code := statusErr.HTTPStatusCode(); {
		case code == 401 || code == 403:
			return ErrAuthFailure
		case code == 404:
			return ErrRemoteNotFound
		case code == 429 || code >= 500:
			return ErrTransientNetwork
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTransientNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrTransientNetwork
	}
	return ErrUnknown
}

// KindName returns a short label for logs and metrics.
func KindName(err error) string {
	switch Classify(err) {
	case nil:
		return ""
	case ErrNoActiveConfig:
		return "no_active_config"
	case ErrAuthFailure:
		return "auth"
	case ErrRemoteNotFound:
		return "not_found"
	case ErrTransientNetwork:
		return "transient"
	case ErrValidation:
		return "validation"
	default:
		return "unknown"
	}
}
