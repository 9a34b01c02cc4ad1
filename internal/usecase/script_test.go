package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/semmidev/donky/internal/adapter/compressor"
	"github.com/semmidev/donky/internal/adapter/storage"
	"github.com/semmidev/donky/internal/domain"
	. "github.com/smartystreets/goconvey/convey"
)

func TestParseStatements(t *testing.T) {
	Convey("Given obfuscation scripts", t, func() {
		parse := func(script string) []string {
			statements, err := ParseStatements(strings.NewReader(script))
			So(err, ShouldBeNil)
			return statements
		}

		Convey("Comments and blank lines should be dropped", func() {
			So(parse("-- comment\nUPDATE t SET x=1;\nUPDATE t SET y=2;\n"), ShouldResemble, []string{
				"UPDATE t SET x=1",
				"UPDATE t SET y=2",
			})
		})

		Convey("Statements spanning lines should be joined with spaces", func() {
			So(parse("UPDATE users\n  SET email = NULL -- pii\n  WHERE id > 0;\n\n"), ShouldResemble, []string{
				"UPDATE users SET email = NULL WHERE id > 0",
			})
		})

		Convey("Several statements on one line should be split", func() {
			So(parse("DELETE FROM a; DELETE FROM b;"), ShouldResemble, []string{"DELETE FROM a", "DELETE FROM b"})
		})

		Convey("A final statement without terminator should be kept", func() {
			So(parse("DELETE FROM a;\nDELETE FROM b"), ShouldResemble, []string{"DELETE FROM a", "DELETE FROM b"})
		})

		Convey("Comment-only input should yield no statements", func() {
			So(parse("-- one\n   -- two\n\n"), ShouldBeEmpty)
			So(parse(";;"), ShouldBeEmpty)
		})

		Convey("Clean input should be parsed idempotently", func() {
			clean := "UPDATE a SET x = 1;\nUPDATE b SET y = 2;\nUPDATE c SET z = 3;\n"
			first := parse(clean)
			So(len(first), ShouldEqual, 3)
			So(parse(strings.Join(first, ";\n")+";\n"), ShouldResemble, first)
		})
	})
}

func TestScriptLoad(t *testing.T) {
	Convey("Given scripts on disk", t, func() {
		tempDir, err := os.MkdirTemp("", "script_test")
		So(err, ShouldBeNil)
		defer os.RemoveAll(tempDir)

		scriptsDir := filepath.Join(tempDir, "scripts")
		workDir := filepath.Join(tempDir, "work")
		So(os.MkdirAll(scriptsDir, 0755), ShouldBeNil)

		uc := NewScript(compressor.NewGzip(), nopLogger)
		source := storage.NewLocal(scriptsDir)
		ctx := context.Background()

		Convey("A plain script should be parsed", func() {
			So(os.WriteFile(filepath.Join(scriptsDir, "c.sql"), []byte("UPDATE t SET x=1;\n"), 0644), ShouldBeNil)

			statements, err := uc.Load(ctx, source, "c.sql", workDir)
			So(err, ShouldBeNil)
			So(statements, ShouldResemble, []string{"UPDATE t SET x=1"})
		})

		Convey("A gzip script should be decompressed first", func() {
			f, err := os.Create(filepath.Join(scriptsDir, "c.sql.gz"))
			So(err, ShouldBeNil)
			w := gzip.NewWriter(f)
			_, err = w.Write([]byte("UPDATE t SET x=1;\nUPDATE t SET y=2;\n"))
			So(err, ShouldBeNil)
			So(w.Close(), ShouldBeNil)
			So(f.Close(), ShouldBeNil)

			statements, err := uc.Load(ctx, source, "c.sql.gz", workDir)
			So(err, ShouldBeNil)
			So(len(statements), ShouldEqual, 2)
		})

		Convey("A missing script should be a configuration error", func() {
			_, err := uc.Load(ctx, source, "missing.sql", workDir)
			So(errors.Is(err, domain.ErrConfiguration), ShouldBeTrue)
		})
	})
}
