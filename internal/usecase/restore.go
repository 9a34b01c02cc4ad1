package usecase

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/semmidev/donky/internal/domain"
)

const (
	mysqlPort      = "3306/tcp"
	mysqlDataDir   = "/var/lib/mysql"
	backupMount    = "/backup"
	mysqlOwner     = "999:999"
	defaultTimeout = time.Hour
)

// RestoredDatabase holds the containers left behind by a successful restore.
// The database container is stopped; its volume holds the prepared dataset.
type RestoredDatabase struct {
	Database *Container
	Restorer *Container
}

// Restore provisions a database container and unpacks a backup into its data
// volume through a helper container.
type Restore struct {
	runtime      domain.ContainerRuntime
	logger       Logger
	waitInterval time.Duration
}

func NewRestore(runtime domain.ContainerRuntime, logger Logger) *Restore {
	return &Restore{runtime: runtime, logger: logger, waitInterval: time.Second}
}

func (uc *Restore) Execute(ctx context.Context, job domain.RestoreJob) (*RestoredDatabase, error) {
	start := time.Now()
	uc.logger.Infof("[%s] Starting restore of %s", job.Name, job.Backup.ArtifactPath)

	fail := func(step string, err error) (*RestoredDatabase, error) {
		uc.logger.Errorf("[%s] Restore failed at %s: %v", job.Name, step, err)
		return nil, &domain.RestoreError{Job: job.Name, Step: step, Err: err}
	}

	// The helper command is validated before any container work.
	command, err := RestoreCommand(job.Backup, job.Parallel)
	if err != nil {
		return fail("build restore command", err)
	}

	dbSpec := DatabaseSpec(job)
	if _, err := uc.runtime.PullImage(ctx, dbSpec.Image); err != nil {
		return fail("pull database image", err)
	}
	dbID, err := uc.runtime.CreateContainer(ctx, dbSpec)
	if err != nil {
		return fail("create database container", err)
	}
	database := NewContainer(uc.runtime, uc.logger, dbID, dbSpec.Name)

	// The data directory must not be held open by mysqld while it is replaced.
	if err := database.Stop(ctx); err != nil {
		return fail("stop database container", err)
	}

	restoreSpec := RestorerSpec(job, command)
	if _, err := uc.runtime.PullImage(ctx, restoreSpec.Image); err != nil {
		return fail("pull restore image", err)
	}
	restoreID, err := uc.runtime.CreateContainer(ctx, restoreSpec)
	if err != nil {
		return fail("create restore container", err)
	}
	restorer := NewContainer(uc.runtime, uc.logger, restoreID, restoreSpec.Name)

	if err := restorer.Start(ctx); err != nil {
		return fail("start restore container", err)
	}

	timeout := job.RestoreTimeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if err := restorer.WaitFor(ctx, domain.ContainerStatusExited, uc.waitInterval, timeout); err != nil {
		return fail("wait for restore", err)
	}
	if code := restorer.ExitCode(); code != 0 {
		return fail("restore", fmt.Errorf("restore container %s exited with code %d", restorer.Name(), code))
	}

	uc.logger.Infof("[%s] Restore completed in %s", job.Name, time.Since(start).Round(time.Second))
	return &RestoredDatabase{Database: database, Restorer: restorer}, nil
}

// DatabaseSpec describes the database container that owns the data volume.
func DatabaseSpec(job domain.RestoreJob) domain.ContainerSpec {
	return domain.ContainerSpec{
		Image: domain.ImageRef{Registry: job.Registry, Name: job.DatabaseImage, Tag: job.Backup.ServerVersion},
		Name:  job.DatabaseContainer,
		Ports: []domain.PortBinding{{ContainerPort: mysqlPort, HostPort: strconv.Itoa(job.HostPort)}},
		Env:   map[string]string{"MYSQL_ALLOW_EMPTY_PASSWORD": "true"},
		Volume: &domain.VolumeBinding{
			Name:   job.Volume,
			Target: mysqlDataDir,
			Force:  job.ForceVolume,
		},
		Command:       []string{"mysqld", "--skip-grant-tables"},
		Recreate:      true,
		Bootstrap:     true,
		BootstrapWait: job.BootstrapWait,
	}
}

// RestorerSpec describes the short lived helper that unpacks the backup into
// the database container's volume.
func RestorerSpec(job domain.RestoreJob, command []string) domain.ContainerSpec {
	return domain.ContainerSpec{
		Image: domain.ImageRef{Registry: job.Registry, Name: job.RestoreImage, Tag: job.Backup.ToolVersion},
		Name:  job.RestoreContainer,
		User:  "root",
		Mounts: []domain.Mount{{
			Source:   job.Backup.Dir(),
			Target:   backupMount,
			ReadOnly: true,
		}},
		VolumesFrom: []string{job.DatabaseContainer},
		Command:     command,
		Recreate:    true,
	}
}

// RestoreCommand builds the shell pipeline run by the helper container: wipe,
// extract, decompress when needed, prepare and hand ownership to mysqld.
func RestoreCommand(backup domain.BackupDescriptor, parallel int) ([]string, error) {
	if parallel < 1 {
		parallel = 1
	}
	artifact := shellQuote(backupMount + "/" + backup.FileName())

	steps := []string{"rm -rf " + mysqlDataDir + "/*"}
	switch backup.Format {
	case "xbstream":
		steps = append(steps, fmt.Sprintf("cat %s | xbstream -x --directory %s", artifact, mysqlDataDir))
	case "tar":
		steps = append(steps, fmt.Sprintf("tar -xi -C %s -f %s", mysqlDataDir, artifact))
	default:
		return nil, fmt.Errorf("unsupported backup format %q", backup.Format)
	}
	if backup.Compressed {
		steps = append(steps, fmt.Sprintf("xtrabackup --decompress --parallel %d --remove-original --target-dir=%s", parallel, mysqlDataDir))
	}
	steps = append(steps,
		fmt.Sprintf("xtrabackup --prepare --target-dir=%s", mysqlDataDir),
		fmt.Sprintf("chown -R %s %s/*", mysqlOwner, mysqlDataDir),
	)

	return []string{"/bin/sh", "-c", strings.Join(steps, " && ")}, nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
