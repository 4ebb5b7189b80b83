// Package utils provides small stateless helpers shared across the gateway
// that don't belong to any one domain package.
package utils

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnsureStateDir ensures basePath/.litellm-go exists, creating it if needed.
// If basePath is empty or ".", it creates ./.litellm-go in the current
// directory. Used by the file-backed logging sink to locate its spend-log
// directory, and available to any other on-disk state a deployment wants
// rooted next to its config rather than scattered across the filesystem.
func EnsureStateDir(basePath string) (string, error) {
	var dir string
	if basePath == "" || basePath == "." {
		dir = ".litellm-go"
	} else {
		dir = filepath.Join(basePath, ".litellm-go")
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create state directory %q: %w", dir, err)
	}

	return dir, nil
}
