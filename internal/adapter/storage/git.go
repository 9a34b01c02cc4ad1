package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// GitSource reads obfuscation scripts from a shallow clone of a repository.
type GitSource struct {
	repository string
	ref        string
}

func NewGit(repository, ref string) *GitSource {
	return &GitSource{repository: repository, ref: ref}
}

func (g *GitSource) Name() string {
	return "git"
}

// Fetch clones the repository into destDir and returns the path of ref inside
// the working tree.
func (g *GitSource) Fetch(ctx context.Context, ref string, destDir string) (string, error) {
	cloneDir := filepath.Join(destDir, "repo")
	if err := os.RemoveAll(cloneDir); err != nil {
		return "", fmt.Errorf("failed to clean clone directory: %w", err)
	}

	opts := &git.CloneOptions{
		URL:          g.repository,
		SingleBranch: true,
	}
	// go-git's in-process file transport cannot serve shallow clones.
	if !strings.HasPrefix(g.repository, "file://") {
		opts.Depth = 1
	}
	if g.ref != "" {
		opts.ReferenceName = referenceName(g.ref)
	}

	if _, err := git.PlainCloneContext(ctx, cloneDir, false, opts); err != nil {
		return "", fmt.Errorf("failed to clone repo: %w", err)
	}

	scriptPath := filepath.Join(cloneDir, filepath.Clean("/"+ref))
	if _, err := os.Stat(scriptPath); err != nil {
		return "", fmt.Errorf("script %s not found in %s: %w", ref, g.repository, err)
	}

	return scriptPath, nil
}

// referenceName treats bare names as branches.
func referenceName(ref string) plumbing.ReferenceName {
	if strings.HasPrefix(ref, "refs/") {
		return plumbing.ReferenceName(ref)
	}
	return plumbing.NewBranchReferenceName(ref)
}
