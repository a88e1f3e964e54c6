package git

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fitlab/promptsync/internal/store"
	"github.com/fitlab/promptsync/internal/vcs"
)

// PublisherOptions configures the commits a Publisher creates.
type PublisherOptions struct {
	// Message is the commit message subject.
	Message string

	// Author overrides the repository's identity (optional).
	Author string

	// NoVerify skips pre-commit and commit-msg hooks.
	NoVerify bool
}

// Publisher commits an exported template directory.
type Publisher struct {
	opts   PublisherOptions
	logger *slog.Logger
}

// NewPublisher creates a publisher. If logger is nil, slog.Default is used.
func NewPublisher(opts PublisherOptions, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{opts: opts, logger: logger}
}

// Publish commits everything below dir and reports whether a commit was
// made. The change set only shapes the commit message; git decides what
// actually changed, so files left uncommitted by an earlier failure are
// picked up as well.
func (p *Publisher) Publish(ctx context.Context, dir string, changes store.ChangeSet) (bool, error) {
	g, err := New(dir)
	if err != nil {
		return false, fmt.Errorf("locate repository for %s: %w", dir, err)
	}
	rel, err := g.Rel(dir)
	if err != nil {
		return false, err
	}

	dirty, err := g.HasChanges(ctx, rel)
	if err != nil {
		return false, err
	}
	if !dirty {
		p.logger.Info("template directory already committed", "dir", dir)
		return false, nil
	}

	err = g.Commit(ctx, vcs.CommitOptions{
		Message:  CommitMessage(p.opts.Message, changes),
		Paths:    []string{rel},
		Author:   p.opts.Author,
		NoVerify: p.opts.NoVerify,
	})
	if err != nil {
		return false, err
	}

	head, err := g.Head(ctx)
	if err != nil {
		return true, err
	}
	p.logger.Info("committed export", "commit", head, "paths", len(changes.Paths()))
	return true, nil
}

// CommitMessage builds the commit message for a change set.
func CommitMessage(subject string, changes store.ChangeSet) string {
	var b strings.Builder
	b.WriteString(subject)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Added: %d, updated: %d, removed: %d\n", len(changes.Added), len(changes.Updated), len(changes.Removed))

	for _, group := range []struct {
		sign  string
		paths []string
	}{
		{"+", changes.Added},
		{"~", changes.Updated},
		{"-", changes.Removed},
	} {
		for _, path := range group.paths {
			fmt.Fprintf(&b, "\n%s %s", group.sign, path)
		}
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}
