package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/semmidev/donky/internal/config"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// GDriveSource downloads obfuscation scripts from a Google Drive folder using a
// service account.
type GDriveSource struct {
	service  *drive.Service
	folderID string
}

func NewGDrive(ctx context.Context, cfg config.ScriptConfig) (*GDriveSource, error) {
	service, err := drive.NewService(ctx,
		option.WithCredentialsFile(cfg.CredentialsFile),
		option.WithScopes(drive.DriveReadonlyScope),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}

	return &GDriveSource{
		service:  service,
		folderID: cfg.FolderID,
	}, nil
}

func (g *GDriveSource) Name() string {
	return "gdrive"
}

// Fetch downloads the file named ref from the folder into destDir.
func (g *GDriveSource) Fetch(ctx context.Context, ref string, destDir string) (string, error) {
	query := fmt.Sprintf("'%s' in parents and name='%s' and trashed=false",
		g.folderID, strings.ReplaceAll(ref, "'", `\'`))

	fileList, err := g.service.Files.List().
		Q(query).
		Fields("files(id, name, modifiedTime)").
		OrderBy("modifiedTime desc").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("failed to find file: %w", err)
	}
	if len(fileList.Files) == 0 {
		return "", fmt.Errorf("file not found: %s", ref)
	}

	resp, err := g.service.Files.Get(fileList.Files[0].Id).Context(ctx).Download()
	if err != nil {
		return "", fmt.Errorf("failed to download file: %w", err)
	}
	defer resp.Body.Close()

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create dest directory: %w", err)
	}
	destPath := filepath.Join(destDir, filepath.Base(ref))

	dest, err := os.Create(destPath)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer dest.Close()

	if _, err := io.Copy(dest, resp.Body); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	return destPath, nil
}
