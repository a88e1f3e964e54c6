package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fitlab/promptsync/internal/vcs"
)

// HasChanges returns true if there are uncommitted changes.
// If paths are specified, only checks those paths.
func (g *Git) HasChanges(ctx context.Context, paths ...string) (bool, error) {
	args := []string{"status", "--porcelain", "--untracked-files=all"}
	if len(paths) > 0 {
		args = append(args, "--")
		args = append(args, paths...)
	}

	output, err := g.Exec(ctx, args...)
	if err != nil {
		return false, err
	}
	return len(strings.TrimSpace(string(output))) > 0, nil
}

// Add stages files for commit, including removals below the given paths.
func (g *Git) Add(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	args := append([]string{"add", "--all", "--"}, paths...)
	_, err := g.Exec(ctx, args...)
	return err
}

// Commit creates a commit with the specified options.
func (g *Git) Commit(ctx context.Context, opts vcs.CommitOptions) error {
	if opts.Message == "" {
		return errors.New("commit message is required")
	}

	if len(opts.Paths) > 0 {
		if err := g.Add(ctx, opts.Paths); err != nil {
			return err
		}
	}

	args := []string{"commit", "-m", opts.Message}
	if opts.Author != "" {
		args = append(args, "--author", opts.Author)
	}
	if opts.NoVerify {
		args = append(args, "--no-verify")
	}
	// Add paths with -- to ensure they're treated as paths
	if len(opts.Paths) > 0 {
		args = append(args, "--")
		args = append(args, opts.Paths...)
	}

	output, err := g.Exec(ctx, args...)
	if err != nil {
		out := string(output)
		switch {
		case strings.Contains(out, "nothing to commit"), strings.Contains(out, "no changes added to commit"):
			return fmt.Errorf("%w: %v", vcs.ErrNothingToCommit, err)
		case !opts.NoVerify && g.hasCommitHooks(ctx):
			return fmt.Errorf("%w: %v", vcs.ErrAborted, err)
		}
		return err
	}
	return nil
}

// commitHooks run during "git commit" unless --no-verify is given.
var commitHooks = []string{"pre-commit", "commit-msg"}

// hasCommitHooks reports whether the repository has an executable hook that
// can reject a commit.
func (g *Git) hasCommitHooks(ctx context.Context) bool {
	output, err := g.Exec(ctx, "rev-parse", "--git-path", "hooks")
	if err != nil {
		return false
	}
	dir := strings.TrimSpace(string(output))
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(g.repoRoot, dir)
	}
	for _, name := range commitHooks {
		info, err := os.Stat(filepath.Join(dir, name))
		if err == nil && info.Mode().IsRegular() && info.Mode().Perm()&0111 != 0 {
			return true
		}
	}
	return false
}

// Head returns the abbreviated hash of HEAD.
func (g *Git) Head(ctx context.Context) (string, error) {
	output, err := g.Exec(ctx, "rev-parse", "--short", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(output)), nil
}
