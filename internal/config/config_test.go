package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/semmidev/donky/internal/domain"
	. "github.com/smartystreets/goconvey/convey"
)

const sampleConfig = `
app:
  user: donky
  container_engine: podman
  workers: 8
obfuscators:
  customers:
    backup_source: /backups/customers
    search_name: backup
    schedule: "0 0 2 * * *"
    script:
      path: /etc/donky/customers.sql
  orders:
    backup_source: /backups/orders
    search_name: orders
    port: 3307
    workers: 2
    restore_timeout: 30m
    protect_volume: true
    script:
      source: git
      repository: https://example.com/obfuscation.git
      path: orders.sql
`

func writeConfig(dir, content string) string {
	path := filepath.Join(dir, "donky.yaml")
	So(os.WriteFile(path, []byte(content), 0644), ShouldBeNil)
	return path
}

func TestLoad(t *testing.T) {
	Convey("Given a config file", t, func() {
		tempDir, err := os.MkdirTemp("", "config_test")
		So(err, ShouldBeNil)
		defer os.RemoveAll(tempDir)

		Convey("When it is valid", func() {
			cfg, err := Load(writeConfig(tempDir, sampleConfig))

			Convey("It should apply defaults per obfuscator", func() {
				So(err, ShouldBeNil)
				So(cfg.App.Name, ShouldEqual, "donky")
				So(cfg.App.LogLevel, ShouldEqual, "info")
				So(cfg.Backend(), ShouldEqual, domain.BackendPodman)

				c := cfg.Obfuscators["customers"]
				So(c.DBType, ShouldEqual, "mysql")
				So(c.BackupType, ShouldEqual, "binary")
				So(c.Registry, ShouldEqual, DefaultRegistry)
				So(c.Image, ShouldEqual, DefaultDatabaseImage)
				So(c.RestoreImage, ShouldEqual, DefaultRestoreImage)
				So(c.Port, ShouldEqual, DefaultPort)
				So(c.Workers, ShouldEqual, 8)
				So(c.RestoreTimeout, ShouldEqual, time.Hour)
				So(c.Script.Source, ShouldEqual, "local")
			})

			Convey("It should keep explicit values", func() {
				o := cfg.Obfuscators["orders"]
				So(o.Port, ShouldEqual, 3307)
				So(o.Workers, ShouldEqual, 2)
				So(o.RestoreTimeout, ShouldEqual, 30*time.Minute)
				So(o.ProtectVolume, ShouldBeTrue)
				So(o.Script.Repository, ShouldEqual, "https://example.com/obfuscation.git")
			})

			Convey("It should list names and scheduled jobs", func() {
				So(cfg.ObfuscatorNames(), ShouldResemble, []string{"customers", "orders"})
				scheduled := cfg.GetScheduledObfuscators()
				So(len(scheduled), ShouldEqual, 1)
				So(scheduled, ShouldContainKey, "customers")
			})

			Convey("Looking up an unknown obfuscator should fail", func() {
				_, err := cfg.Obfuscator("missing")
				So(errors.Is(err, domain.ErrConfiguration), ShouldBeTrue)

				o, err := cfg.Obfuscator("Orders")
				So(err, ShouldBeNil)
				So(o.SearchName, ShouldEqual, "orders")
			})
		})

		Convey("When the container engine is unknown", func() {
			_, err := Load(writeConfig(tempDir, `
app:
  container_engine: lxc
obfuscators:
  x:
    backup_source: /b
    search_name: b
    script:
      path: x.sql
`))
			So(err, ShouldNotBeNil)
			So(errors.Is(err, domain.ErrUnsupportedBackend), ShouldBeTrue)
		})

		Convey("When an obfuscator misses its backup source", func() {
			_, err := Load(writeConfig(tempDir, `
obfuscators:
  x:
    search_name: b
    script:
      path: x.sql
`))
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "backup_source is required")
		})

		Convey("When the s3 source has no bucket", func() {
			_, err := Load(writeConfig(tempDir, `
obfuscators:
  x:
    backup_source: /b
    search_name: b
    script:
      source: s3
      path: x.sql
`))
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "script.bucket is required")
		})

		Convey("When the file does not exist", func() {
			_, err := Load(filepath.Join(tempDir, "missing.yaml"))
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "failed to read config")
		})
	})
}

func TestWithBackup(t *testing.T) {
	Convey("Given an obfuscator config and a resolved backup", t, func() {
		o := ObfuscatorConfig{
			Registry:       "registry.local",
			Image:          DefaultDatabaseImage,
			RestoreImage:   DefaultRestoreImage,
			Port:           3306,
			Workers:        4,
			RestoreTimeout: time.Hour,
			BootstrapWait:  time.Second,
		}
		backup := domain.BackupDescriptor{
			ArtifactPath:  "/backups/x/backup.xbstream",
			Format:        "xbstream",
			ServerVersion: "8.0",
			ToolVersion:   "8.0",
		}

		job := o.WithBackup("customers", backup)

		Convey("It should derive container names from the job name", func() {
			So(job.DatabaseContainer, ShouldEqual, "mysql_customers")
			So(job.RestoreContainer, ShouldEqual, "xtrabackup_customers")
			So(job.Volume, ShouldEqual, "mysql_customers")
			So(job.ForceVolume, ShouldBeTrue)
			So(job.Backup, ShouldResemble, backup)
			So(job.Registry, ShouldEqual, "registry.local")
		})

		Convey("It should not touch the original config", func() {
			So(o.Registry, ShouldEqual, "registry.local")
			So(o.ProtectVolume, ShouldBeFalse)
		})

		Convey("Endpoint points at the published port", func() {
			ep := o.Endpoint()
			So(ep.Addr(), ShouldEqual, "127.0.0.1:3306")
			So(ep.User, ShouldEqual, "root")
		})
	})
}
