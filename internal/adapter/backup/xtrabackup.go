package backup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/semmidev/donky/internal/domain"
	"github.com/semmidev/donky/internal/infrastructure/logger"
	"github.com/spf13/afero"
)

const metadataPattern = "^xtrabackup_info"

var metadataRe = regexp.MustCompile(metadataPattern)

// XtrabackupResolver finds the newest xtrabackup_info below a backup root and
// the artifact it describes.
type XtrabackupResolver struct {
	fs  afero.Fs
	log *logger.Logger
}

func NewXtrabackupResolver(fs afero.Fs, log *logger.Logger) *XtrabackupResolver {
	return &XtrabackupResolver{fs: fs, log: log}
}

func (r *XtrabackupResolver) Resolve(backupType, backupPath, namePattern string) (domain.BackupDescriptor, error) {
	r.log.Infof("Resolving %s backup in %s", backupType, backupPath)

	if domain.BackupType(backupType) != domain.BackupTypeBinary {
		return domain.BackupDescriptor{}, fmt.Errorf("%w: %q", domain.ErrUnsupportedBackupType, backupType)
	}
	if err := r.checkDir(backupPath); err != nil {
		return domain.BackupDescriptor{}, err
	}

	metadataPath, err := r.newestMetadata(backupPath)
	if err != nil {
		return domain.BackupDescriptor{}, err
	}
	r.log.Debugf("Using backup metadata %s", metadataPath)

	f, err := r.fs.Open(metadataPath)
	if err != nil {
		return domain.BackupDescriptor{}, fmt.Errorf("%w: %v", domain.ErrMalformedMetadata, err)
	}
	info, err := parseMetadata(f)
	f.Close()
	if err != nil {
		return domain.BackupDescriptor{}, fmt.Errorf("%s: %w", metadataPath, err)
	}

	if info["encrypted"] != "N" {
		return domain.BackupDescriptor{}, domain.ErrBackupEncrypted
	}
	if info["incremental"] != "N" {
		return domain.BackupDescriptor{}, domain.ErrIncrementalBackup
	}
	if info["partial"] != "N" {
		return domain.BackupDescriptor{}, domain.ErrPartialBackup
	}

	format := info["format"]
	artifact, err := r.findArtifact(filepath.Dir(metadataPath), namePattern, format)
	if err != nil {
		return domain.BackupDescriptor{}, err
	}

	desc := domain.BackupDescriptor{
		Type:          domain.BackupTypeBinary,
		ArtifactPath:  artifact,
		MetadataPath:  metadataPath,
		Format:        format,
		Compressed:    info["compressed"] == "compressed",
		ServerVersion: majorMinor(info["server_version"]),
		ToolVersion:   majorMinor(info["tool_version"]),
	}
	r.log.Infof("Resolved backup %s (format=%s, compressed=%t, server=%s, tool=%s)",
		desc.ArtifactPath, desc.Format, desc.Compressed, desc.ServerVersion, desc.ToolVersion)

	return desc, nil
}

func (r *XtrabackupResolver) checkDir(path string) error {
	info, err := r.fs.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrInvalidPath, path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s", domain.ErrInvalidPath, path)
	}
	d, err := r.fs.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrInvalidPath, path, err)
	}
	return d.Close()
}

// newestMetadata walks root and returns the metadata file with the latest
// modification time. A directory holding more than one candidate is an error.
func (r *XtrabackupResolver) newestMetadata(root string) (string, error) {
	perDir := make(map[string]int)
	var newest string
	var newestInfo os.FileInfo

	err := afero.Walk(r.fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			r.log.Warnf("Skipping unreadable path %s: %v", path, err)
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() || !metadataRe.MatchString(info.Name()) {
			return nil
		}

		dir := filepath.Dir(path)
		perDir[dir]++
		if perDir[dir] > 1 {
			return fmt.Errorf("%w: %s", domain.ErrAmbiguousMetadata, dir)
		}

		if newestInfo == nil || info.ModTime().After(newestInfo.ModTime()) {
			newest, newestInfo = path, info
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrAmbiguousMetadata) {
			return "", err
		}
		return "", fmt.Errorf("%w: %s: %v", domain.ErrInvalidPath, root, err)
	}

	if newest == "" {
		return "", fmt.Errorf("%w: in %s", domain.ErrMetadataNotFound, root)
	}
	return newest, nil
}

// findArtifact looks for "<namePattern>.<format>" directly inside dir.
func (r *XtrabackupResolver) findArtifact(dir, namePattern, format string) (string, error) {
	re, err := regexp.Compile("^" + namePattern + `\.` + regexp.QuoteMeta(format))
	if err != nil {
		return "", fmt.Errorf("%w: invalid search name %q: %v", domain.ErrConfiguration, namePattern, err)
	}

	entries, err := afero.ReadDir(r.fs, dir)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", domain.ErrInvalidPath, dir, err)
	}

	var matches []string
	for _, entry := range entries {
		if entry.IsDir() || !re.MatchString(entry.Name()) {
			continue
		}
		matches = append(matches, filepath.Join(dir, entry.Name()))
	}

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %s.%s in %s", domain.ErrBackupNotFound, namePattern, format, dir)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%w: %v", domain.ErrAmbiguousArtifact, matches)
	}
}
