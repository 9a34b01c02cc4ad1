package domain

import "context"

// ScriptSource fetches an obfuscation script into a local directory and
// returns the path of the fetched file.
type ScriptSource interface {
	Fetch(ctx context.Context, ref string, destDir string) (string, error)
	Name() string
}
