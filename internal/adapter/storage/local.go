package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// LocalSource reads obfuscation scripts from the local filesystem.
type LocalSource struct {
	basePath string
}

func NewLocal(basePath string) *LocalSource {
	return &LocalSource{basePath: basePath}
}

func (l *LocalSource) Name() string {
	return "local"
}

// Fetch copies ref into destDir. Relative refs are resolved against the base
// path.
func (l *LocalSource) Fetch(ctx context.Context, ref string, destDir string) (string, error) {
	sourcePath := ref
	if !filepath.IsAbs(ref) {
		sourcePath = filepath.Join(l.basePath, ref)
	}

	source, err := os.Open(sourcePath)
	if err != nil {
		return "", fmt.Errorf("failed to open source: %w", err)
	}
	defer source.Close()

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create dest directory: %w", err)
	}
	destPath := filepath.Join(destDir, filepath.Base(sourcePath))

	dest, err := os.Create(destPath)
	if err != nil {
		return "", fmt.Errorf("failed to create dest: %w", err)
	}
	defer dest.Close()

	if _, err := dest.ReadFrom(source); err != nil {
		return "", fmt.Errorf("failed to copy: %w", err)
	}

	return destPath, nil
}
