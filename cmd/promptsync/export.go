package main

import (
	"errors"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/fitlab/promptsync/internal/store"
	"github.com/fitlab/promptsync/internal/sync"
	"github.com/fitlab/promptsync/internal/ui"
	"github.com/fitlab/promptsync/internal/vcs"
	"github.com/fitlab/promptsync/internal/vcs/git"
)

// maxListed bounds the paths printed per change kind.
const maxListed = 10

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "export",
		GroupID: "sync",
		Short:   "Write every remote template to the template directory",
		Long: `Read the complete remote collection and write one YAML file per template
to <output>/<category>/<slug>@<version>.yaml.

The export is all-or-nothing: if any record cannot be read or mapped, the
template directory is left untouched. Files for templates that no longer
exist remotely are removed.

With --commit, the changed directory is committed to the enclosing git
repository.`,
		Args: noArgs,
		RunE: runExport,
	}
	cmd.Flags().StringP("output", "o", "prompts", "template directory")
	cmd.Flags().Int("page-size", 100, "records per remote query (1-100)")
	cmd.Flags().Bool("commit", false, "commit the exported directory with git")
	cmd.Flags().StringP("message", "m", "Export prompt templates", "commit message subject")
	cmd.Flags().Bool("no-verify", false, "skip git pre-commit and commit-msg hooks")
	cmd.Flags().String("db-id", "", "Notion database ID (overrides NOTION_DATABASE_ID)")
	return cmd
}

var exportFlags = map[string]string{
	"output_dir":         "output",
	"page_size":          "page-size",
	"git.commit":         "commit",
	"git.message":        "message",
	"git.no_verify":      "no-verify",
	"notion.database_id": "db-id",
}

func runExport(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd, exportFlags, true)
	if err != nil {
		return err
	}
	defer s.Close()

	client, err := s.openClient()
	if err != nil {
		return err
	}
	defer s.closeClient(client)

	var publisher sync.Publisher
	if s.cfg.Git.Commit {
		publisher = git.NewPublisher(git.PublisherOptions{
			Message:  s.cfg.Git.Message,
			Author:   s.cfg.Git.Author,
			NoVerify: s.cfg.Git.NoVerify,
		}, s.logger)
	}

	exporter := sync.NewExporter(client, store.New(s.cfg.OutputDir, s.logger), publisher, s.logger)
	result, err := exporter.Run(cmd.Context())
	if result != nil {
		printExport(cmd.OutOrStdout(), s.cfg.OutputDir, result)
	}
	switch {
	case vcs.IsFatal(err):
		ui.Warn(cmd.ErrOrStderr(), "--commit needs git and a repository containing %s", s.cfg.OutputDir)
	case errors.Is(err, vcs.ErrAborted):
		ui.Warn(cmd.ErrOrStderr(), "a git hook rejected the commit; the files are written and the next export retries it (or pass --no-verify)")
	}
	return err
}

func printExport(w io.Writer, dir string, r *sync.ExportResult) {
	ui.Pass(w, "Exported %d templates to %s in %v", r.Records, dir, r.Duration.Round(time.Millisecond))
	if r.Changes.Empty() {
		ui.KV(w, "Changes", "none")
		return
	}
	ui.KV(w, "Added", len(r.Changes.Added))
	ui.List(w, r.Changes.Added, maxListed)
	ui.KV(w, "Updated", len(r.Changes.Updated))
	ui.List(w, r.Changes.Updated, maxListed)
	ui.KV(w, "Removed", len(r.Changes.Removed))
	ui.List(w, r.Changes.Removed, maxListed)
	if r.Published {
		ui.Pass(w, "Committed %d changed files", len(r.Changes.Paths()))
	}
}
