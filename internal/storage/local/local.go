// Package local is the host's on-disk filestore. Content is addressed by its
// SHA-1 checksum and referenced through opaque "<cs[:2]>/<cs>" tokens.
package local

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

// ErrNotFound is returned when a token does not resolve to a file.
var ErrNotFound = errors.New("local file not found")

var tokenPattern = regexp.MustCompile(`^[0-9a-f]{2}/[0-9a-f]{40}$`)

// Store implements content-addressed storage under a root directory.
//
// Tokens written through WritePinned stay pinned until released, and
// DeleteIfUnused never removes a pinned token. Pins live in process memory.
type Store struct {
	root string

	mu   sync.Mutex
	pins map[string]int
}

// New creates the root directory if needed.
func New(root string) (*Store, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("filestore root is required")
	}
	root = filepath.Clean(root)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create filestore root %s: %w", root, err)
	}
	return &Store{root: root, pins: map[string]int{}}, nil
}

// Checksum returns the hex SHA-1 of data.
func Checksum(data []byte) string {
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}

// IsToken reports whether s has the shape of a filestore token.
func IsToken(s string) bool {
	return tokenPattern.MatchString(s)
}

func (s *Store) fullPath(token string) (string, error) {
	if !IsToken(token) {
		return "", fmt.Errorf("invalid filestore token %q", token)
	}
	return filepath.Join(s.root, filepath.FromSlash(token)), nil
}

// Write stores data and returns its token and checksum. Identical content is
// written once.
func (s *Store) Write(_ context.Context, data []byte) (token, checksum string, err error) {
	checksum = Checksum(data)
	token = checksum[:2] + "/" + checksum
	path, err := s.fullPath(token)
	if err != nil {
		return "", "", err
	}
	if _, statErr := os.Stat(path); statErr == nil {
		return token, checksum, nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("create dirs for %s: %w", token, err)
	}
	// Write to temp file then rename for atomicity
	tmp, err := os.CreateTemp(dir, ".upload-*.tmp")
	if err != nil {
		return "", "", fmt.Errorf("create temp for %s: %w", token, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", "", fmt.Errorf("write %s: %w", token, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", "", fmt.Errorf("close %s: %w", token, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", "", fmt.Errorf("rename %s: %w", token, err)
	}
	return token, checksum, nil
}

// WritePinned is Write with the token pinned against DeleteIfUnused until
// unpin is called. unpin is safe to call more than once.
func (s *Store) WritePinned(ctx context.Context, data []byte) (token, checksum string, unpin func(), err error) {
	checksum = Checksum(data)
	pinned := checksum[:2] + "/" + checksum

	// Pinned before the dedup check in Write.
	s.mu.Lock()
	s.pins[pinned]++
	s.mu.Unlock()

	var once sync.Once
	unpin = func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if s.pins[pinned]--; s.pins[pinned] <= 0 {
				delete(s.pins, pinned)
			}
		})
	}

	token, checksum, err = s.Write(ctx, data)
	if err != nil {
		unpin()
		return "", "", func() {}, err
	}
	return token, checksum, unpin, nil
}

// Pinned reports whether token is currently pinned.
func (s *Store) Pinned(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pins[token] > 0
}

// DeleteIfUnused deletes token unless it is pinned or inUse reports a
// reference. inUse runs under the store lock, so no pinned write can start
// between the check and the delete.
func (s *Store) DeleteIfUnused(ctx context.Context, token string, inUse func(context.Context) (bool, error)) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pins[token] > 0 {
		return false, nil
	}
	used, err := inUse(ctx)
	if err != nil {
		return false, err
	}
	if used {
		return false, nil
	}
	if err := s.Delete(ctx, token); err != nil {
		return false, err
	}
	return true, nil
}

// Read returns the bytes behind token.
func (s *Store) Read(_ context.Context, token string) ([]byte, error) {
	path, err := s.fullPath(token)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, token)
		}
		return nil, fmt.Errorf("read %s: %w", token, err)
	}
	return data, nil
}

// Exists reports whether token resolves to a file.
func (s *Store) Exists(_ context.Context, token string) bool {
	path, err := s.fullPath(token)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Delete removes the file behind token. Deleting a missing file is not an error.
func (s *Store) Delete(_ context.Context, token string) error {
	path, err := s.fullPath(token)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete %s: %w", token, err)
	}
	return nil
}
