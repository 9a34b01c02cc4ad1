package app

import (
	"fmt"

	"github.com/semmidev/donky/internal/adapter/backup"
	"github.com/semmidev/donky/internal/config"
	"github.com/semmidev/donky/internal/domain"
	"github.com/semmidev/donky/internal/infrastructure/logger"
	"github.com/spf13/afero"
)

// Inspector validates backups without touching the container engine or
// switching users.
type Inspector struct {
	config   *config.Config
	logger   *logger.Logger
	resolver domain.BackupResolver
}

func NewInspector(cfg *config.Config) (*Inspector, error) {
	log, err := logger.New(cfg.App.LogLevel, cfg.App.LogFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return &Inspector{config: cfg, logger: log, resolver: newBackupResolver(log)}, nil
}

func newBackupResolver(log *logger.Logger) domain.BackupResolver {
	return backup.NewXtrabackupResolver(afero.NewOsFs(), log)
}

// Resolve validates the newest backup of an obfuscator without restoring it.
func (i *Inspector) Resolve(name string) (domain.BackupDescriptor, error) {
	o, err := i.config.Obfuscator(name)
	if err != nil {
		return domain.BackupDescriptor{}, err
	}
	return i.resolver.Resolve(o.BackupType, o.BackupSource, o.SearchName)
}

func (i *Inspector) Close() {
	i.logger.Close()
}
