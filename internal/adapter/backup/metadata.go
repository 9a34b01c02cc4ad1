package backup

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/semmidev/donky/internal/domain"
)

var requiredKeys = []string{
	"encrypted",
	"incremental",
	"partial",
	"format",
	"compressed",
	"server_version",
	"tool_version",
}

// parseMetadata reads xtrabackup_info style "key = value" lines. Both "=" and
// ":" separate keys from values; the first one on the line wins.
func parseMetadata(r io.Reader) (map[string]string, error) {
	values := make(map[string]string)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}

		idx := strings.IndexAny(line, "=:")
		if idx <= 0 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(line[:idx]))
		values[key] = strings.TrimSpace(line[idx+1:])
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	for _, key := range requiredKeys {
		if _, ok := values[key]; !ok {
			return nil, fmt.Errorf("%w: missing key %q", domain.ErrMalformedMetadata, key)
		}
	}

	return values, nil
}

// majorMinor truncates "8.0.35-27" to "8.0".
func majorMinor(version string) string {
	parts := strings.SplitN(version, ".", 3)
	if len(parts) < 2 {
		return version
	}
	return parts[0] + "." + parts[1]
}
