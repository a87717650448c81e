package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"alcyxob/attachment-offload/internal/domain"
)

// RemoteScheme prefixes storage pointers that live in the object store.
const RemoteScheme = "remote://"

// PlaceholderGIF is a 1x1 transparent GIF kept locally for attachments whose
// real content was offloaded but which still render inline previews.
var PlaceholderGIF = []byte("GIF89a\x01\x00\x01\x00\x80\x00\x00\xff\xff\xff\x00\x00\x00!\xf9\x04\x01\x00\x00\x00\x00,\x00\x00\x00\x00\x01\x00\x01\x00\x00\x02\x02D\x01\x00;")

// IsRemote reports whether ptr refers to the object store.
func IsRemote(ptr string) bool {
	return strings.HasPrefix(ptr, RemoteScheme)
}

// RemotePointer builds the pointer for key.
func RemotePointer(key string) string {
	return RemoteScheme + key
}

// KeyFromPointer strips the remote scheme. ok is false for local pointers.
func KeyFromPointer(ptr string) (key string, ok bool) {
	if !IsRemote(ptr) {
		return "", false
	}
	return strings.TrimPrefix(ptr, RemoteScheme), true
}

// LocalReader reads content from the host filestore.
type LocalReader interface {
	Read(ctx context.Context, token string) ([]byte, error)
}

// ActiveConfigGetter returns the currently active remote configuration.
type ActiveConfigGetter interface {
	GetActive(ctx context.Context) (*domain.RemoteConfig, error)
}

// Resolver turns storage pointers into bytes or URLs.
type Resolver struct {
	Registry ActiveConfigGetter
	Factory  ClientFactory
	Local    LocalReader
}

// ResolveForRead returns the content behind ptr. Remote pointers are fetched
// with the active configuration at call time.
func (r *Resolver) ResolveForRead(ctx context.Context, ptr string) ([]byte, error) {
	key, remote := KeyFromPointer(ptr)
	if !remote {
		if ptr == "" {
			return nil, fmt.Errorf("%w: empty storage pointer", ErrValidation)
		}
		return r.Local.Read(ctx, ptr)
	}
	if key == "" {
		return nil, fmt.Errorf("%w: remote pointer without key", ErrValidation)
	}

	client, err := r.ActiveClient(ctx)
	if err != nil {
		return nil, err
	}
	return client.Get(ctx, key)
}

// ResolveForURL returns the recorded remote URL of att, if any.
func (r *Resolver) ResolveForURL(att *domain.Attachment) (string, bool) {
	if att == nil || att.RemoteURL == "" {
		return "", false
	}
	return att.RemoteURL, true
}

// ActiveClient builds a client from the active configuration.
func (r *Resolver) ActiveClient(ctx context.Context) (RemoteStorage, error) {
	cfg, err := r.Registry.GetActive(ctx)
	if err != nil {
		if errors.Is(err, ErrNoActiveConfig) {
			return nil, err
		}
		return nil, fmt.Errorf("load active remote config: %w", err)
	}
	if cfg == nil {
		return nil, ErrNoActiveConfig
	}
	return r.Factory(ctx, *cfg)
}
