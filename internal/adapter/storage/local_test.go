package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/semmidev/donky/internal/config"
	"github.com/semmidev/donky/internal/domain"
	. "github.com/smartystreets/goconvey/convey"
)

func TestLocalSource(t *testing.T) {
	Convey("Given a LocalSource", t, func() {
		tempDir, err := os.MkdirTemp("", "local_source_test")
		So(err, ShouldBeNil)
		defer os.RemoveAll(tempDir)

		baseDir := filepath.Join(tempDir, "scripts")
		destDir := filepath.Join(tempDir, "run")
		So(os.MkdirAll(baseDir, 0755), ShouldBeNil)
		So(os.WriteFile(filepath.Join(baseDir, "customers.sql"), []byte("UPDATE t SET a = 1;"), 0644), ShouldBeNil)

		source := NewLocal(baseDir)
		ctx := context.Background()

		Convey("Name should be local", func() {
			So(source.Name(), ShouldEqual, "local")
		})

		Convey("When fetching a relative ref", func() {
			path, err := source.Fetch(ctx, "customers.sql", destDir)

			Convey("It should copy the script into the destination", func() {
				So(err, ShouldBeNil)
				So(path, ShouldEqual, filepath.Join(destDir, "customers.sql"))
				content, err := os.ReadFile(path)
				So(err, ShouldBeNil)
				So(string(content), ShouldEqual, "UPDATE t SET a = 1;")
			})
		})

		Convey("When fetching an absolute ref", func() {
			path, err := source.Fetch(ctx, filepath.Join(baseDir, "customers.sql"), destDir)

			So(err, ShouldBeNil)
			So(path, ShouldEqual, filepath.Join(destDir, "customers.sql"))
		})

		Convey("When the script does not exist", func() {
			_, err := source.Fetch(ctx, "missing.sql", destDir)

			Convey("It should return error", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "failed to open source")
			})
		})
	})
}

func TestNewSource(t *testing.T) {
	Convey("Given script source configs", t, func() {
		ctx := context.Background()

		Convey("Local and git sources should be built without network access", func() {
			src, err := NewSource(ctx, config.ScriptConfig{Source: "local"}, "/etc/donky")
			So(err, ShouldBeNil)
			So(src.Name(), ShouldEqual, "local")

			src, err = NewSource(ctx, config.ScriptConfig{Source: "git", Repository: "https://example.com/x.git"}, "")
			So(err, ShouldBeNil)
			So(src.Name(), ShouldEqual, "git")
		})

		Convey("Unknown sources should be rejected", func() {
			_, err := NewSource(ctx, config.ScriptConfig{Source: "ftp"}, "")
			So(errors.Is(err, domain.ErrConfiguration), ShouldBeTrue)
		})
	})
}
