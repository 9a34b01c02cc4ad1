package storage

import (
	"context"
	"fmt"

	"github.com/semmidev/donky/internal/config"
	"github.com/semmidev/donky/internal/domain"
)

// NewSource builds the script source configured for an obfuscator. Local
// scripts are resolved relative to baseDir.
func NewSource(ctx context.Context, cfg config.ScriptConfig, baseDir string) (domain.ScriptSource, error) {
	switch cfg.Source {
	case "", "local":
		return NewLocal(baseDir), nil
	case "s3":
		return NewS3(ctx, cfg)
	case "gdrive":
		return NewGDrive(ctx, cfg)
	case "git":
		return NewGit(cfg.Repository, cfg.Ref), nil
	default:
		return nil, fmt.Errorf("%w: unknown script source %q", domain.ErrConfiguration, cfg.Source)
	}
}
