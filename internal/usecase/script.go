package usecase

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/semmidev/donky/internal/domain"
)

const commentMarker = "--"

// ParseStatements splits an obfuscation script into statements. Everything
// from "--" to the end of a line is dropped, remaining lines are joined with
// single spaces and split on ";". Empty segments are discarded.
func ParseStatements(r io.Reader) ([]string, error) {
	var lines []string

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if idx := strings.Index(line, commentMarker); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}

	var statements []string
	for _, segment := range strings.Split(strings.Join(lines, " "), ";") {
		if s := strings.TrimSpace(segment); s != "" {
			statements = append(statements, s)
		}
	}
	return statements, nil
}

// Script fetches an obfuscation script and turns it into statements.
type Script struct {
	decompressor domain.Decompressor
	logger       Logger
}

func NewScript(decompressor domain.Decompressor, logger Logger) *Script {
	return &Script{decompressor: decompressor, logger: logger}
}

// Load fetches ref from source into workDir, decompresses it when it carries
// the decompressor's extension and parses it.
func (uc *Script) Load(ctx context.Context, source domain.ScriptSource, ref, workDir string) ([]string, error) {
	uc.logger.Infof("Fetching script %s from %s", ref, source.Name())

	path, err := source.Fetch(ctx, ref, workDir)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch script %s: %v", domain.ErrConfiguration, ref, err)
	}

	if uc.decompressor != nil && strings.HasSuffix(path, uc.decompressor.Extension()) {
		plain := strings.TrimSuffix(path, uc.decompressor.Extension())
		if err := uc.decompressor.Decompress(path, plain); err != nil {
			return nil, fmt.Errorf("%w: decompress script %s: %v", domain.ErrConfiguration, path, err)
		}
		path = plain
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open script: %v", domain.ErrConfiguration, err)
	}
	defer f.Close()

	statements, err := ParseStatements(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}
	uc.logger.Infof("Loaded %d statement(s) from %s", len(statements), path)

	return statements, nil
}
