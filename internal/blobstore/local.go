package blobstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"syscall"

	"github.com/crawlfabric/crawlfabric/pkg/fileutil"
	"github.com/crawlfabric/crawlfabric/pkg/hashutil"
)

// LocalStore is a filesystem-backed Store for single-host deployment and
// tests: ensure the directory exists, write deterministically, and report
// a content hash as the version.
type LocalStore struct {
	rootDir string
}

// NewLocalStore roots all keys under rootDir, creating it if absent.
func NewLocalStore(rootDir string) (*LocalStore, error) {
	if err := fileutil.EnsureDir(rootDir); err != nil {
		return nil, &BlobError{Key: "", Message: err.Error(), Cause: ErrCauseWriteFailed, Retryable: false}
	}
	return &LocalStore{rootDir: rootDir}, nil
}

func (s *LocalStore) resolve(key string) string {
	return filepath.Join(s.rootDir, filepath.FromSlash(key))
}

// Put writes body to rootDir/key, creating parent directories as needed,
// and returns a BLAKE3 content hash as the version.
func (s *LocalStore) Put(_ context.Context, key string, body []byte, _ string) (PutResult, error) {
	fullPath := s.resolve(key)
	if err := fileutil.EnsureDir(filepath.Dir(fullPath)); err != nil {
		return PutResult{}, &BlobError{Key: key, Message: err.Error(), Cause: ErrCauseWriteFailed, Retryable: false}
	}
	if err := os.WriteFile(fullPath, body, 0o644); err != nil {
		retryable := errors.Is(err, syscall.ENOSPC)
		return PutResult{}, &BlobError{Key: key, Message: err.Error(), Cause: ErrCauseWriteFailed, Retryable: retryable}
	}
	return PutResult{Version: hashutil.BLAKE3Hex(body)}, nil
}

func (s *LocalStore) Get(_ context.Context, key string) ([]byte, error) {
	body, err := os.ReadFile(s.resolve(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &BlobError{Key: key, Message: err.Error(), Cause: ErrCauseNotFound, Retryable: false}
		}
		return nil, &BlobError{Key: key, Message: err.Error(), Cause: ErrCauseReadFailed, Retryable: true}
	}
	return body, nil
}

func (s *LocalStore) Head(_ context.Context, key string) (bool, error) {
	_, err := os.Stat(s.resolve(key))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, &BlobError{Key: key, Message: err.Error(), Cause: ErrCauseUnavailable, Retryable: true}
}
