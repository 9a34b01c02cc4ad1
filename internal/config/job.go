package config

import (
	"fmt"

	"github.com/semmidev/donky/internal/domain"
)

// Container names are derived from the obfuscator name so that concurrent
// jobs never share a container.
func DatabaseContainerName(name string) string { return fmt.Sprintf("mysql_%s", name) }

func RestoreContainerName(name string) string { return fmt.Sprintf("xtrabackup_%s", name) }

// WithBackup merges a resolved backup into the obfuscator settings. The
// receiver is left untouched; the result is a new value.
func (o ObfuscatorConfig) WithBackup(name string, backup domain.BackupDescriptor) domain.RestoreJob {
	return domain.RestoreJob{
		Name:              name,
		Backup:            backup,
		Registry:          o.Registry,
		DatabaseImage:     o.Image,
		RestoreImage:      o.RestoreImage,
		DatabaseContainer: DatabaseContainerName(name),
		RestoreContainer:  RestoreContainerName(name),
		Volume:            DatabaseContainerName(name),
		ForceVolume:       !o.ProtectVolume,
		HostPort:          o.Port,
		RestoreTimeout:    o.RestoreTimeout,
		BootstrapWait:     o.BootstrapWait,
		Parallel:          o.Workers,
	}
}

// Endpoint is where the restored database listens once started.
func (o ObfuscatorConfig) Endpoint() domain.Endpoint {
	return domain.Endpoint{
		Host:     "127.0.0.1",
		Port:     o.Port,
		User:     "root",
		Database: "mysql",
	}
}
