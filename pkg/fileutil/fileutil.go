// Package fileutil holds the small filesystem helpers shared by the local
// blob store and the file-backed queue.
package fileutil

import (
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/crawlfabric/crawlfabric/pkg/failure"
)

// Extension returns the lowercased extension of p including the leading
// dot (".pdf"), or "" when p has none. Matches the form extension
// exclusion lists are configured in.
func Extension(p string) string {
	return strings.ToLower(path.Ext(p))
}

// EnsureDir creates dir joined with the optional path segments, along
// with any missing parents. Existing directories are left untouched.
func EnsureDir(dir string, segments ...string) failure.ClassifiedError {
	parts := append([]string{dir}, segments...)
	target := filepath.Join(parts...)
	if err := os.MkdirAll(target, 0o755); err != nil {
		return &FileError{
			Message:   err.Error(),
			Retryable: false,
			Cause:     ErrCausePathError,
		}
	}
	return nil
}
