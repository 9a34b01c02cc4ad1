package domain

import (
	"path/filepath"
	"time"
)

type BackupType string

const (
	BackupTypeBinary BackupType = "binary"
)

// BackupDescriptor describes a validated physical backup ready to be restored.
// It is never built for encrypted, incremental or partial backups.
type BackupDescriptor struct {
	Type          BackupType
	ArtifactPath  string
	MetadataPath  string
	Format        string
	Compressed    bool
	ServerVersion string
	ToolVersion   string
}

// Dir returns the directory holding the backup artifact.
func (b BackupDescriptor) Dir() string {
	return filepath.Dir(b.ArtifactPath)
}

// FileName returns the base name of the backup artifact.
func (b BackupDescriptor) FileName() string {
	return filepath.Base(b.ArtifactPath)
}

type BackupResolver interface {
	Resolve(backupType, backupPath, namePattern string) (BackupDescriptor, error)
}

// RestoreJob bundles a resolved backup with the naming and image coordinates
// needed to restore it.
type RestoreJob struct {
	Name              string
	Backup            BackupDescriptor
	Registry          string
	DatabaseImage     string
	RestoreImage      string
	DatabaseContainer string
	RestoreContainer  string
	Volume            string
	ForceVolume       bool
	HostPort          int
	RestoreTimeout    time.Duration
	BootstrapWait     time.Duration
	Parallel          int
}
