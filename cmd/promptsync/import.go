package main

import (
	"context"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/fitlab/promptsync/internal/store"
	"github.com/fitlab/promptsync/internal/sync"
	"github.com/fitlab/promptsync/internal/syncerr"
	"github.com/fitlab/promptsync/internal/ui"
	"github.com/fitlab/promptsync/internal/watch"
)

func newImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "import",
		GroupID: "sync",
		Short:   "Push every template file to the remote database",
		Long: `Read every template file below the template directory and create or
update the remote record with the same name.

Each file is imported on its own: a file that cannot be read or is rejected
by the remote is reported and the rest still go through. Records that
already match their file are not touched.

With --watch, the import runs once and then again whenever template files
change, until interrupted.`,
		Args: noArgs,
		RunE: runImport,
	}
	cmd.Flags().StringP("dir", "d", "prompts", "template directory")
	cmd.Flags().BoolP("watch", "w", false, "re-import when template files change")
	cmd.Flags().Duration("debounce", watch.DefaultDebounce, "quiet period before a watched change is imported")
	cmd.Flags().String("db-id", "", "Notion database ID (overrides NOTION_DATABASE_ID)")
	return cmd
}

var importFlags = map[string]string{
	"output_dir":         "dir",
	"watch.debounce":     "debounce",
	"notion.database_id": "db-id",
}

func runImport(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd, importFlags, true)
	if err != nil {
		return err
	}
	defer s.Close()

	out := cmd.OutOrStdout()
	runOnce := func(ctx context.Context) error {
		return s.importOnce(ctx, out)
	}

	watching, _ := cmd.Flags().GetBool("watch")
	if !watching {
		return runOnce(cmd.Context())
	}

	w, err := watch.New(s.cfg.OutputDir, runOnce, watch.Config{
		Debounce: s.cfg.Watch.Debounce,
		Logger:   s.logger,
	})
	if err != nil {
		return err
	}
	ui.Pass(out, "Watching %s for changes (Ctrl+C to stop)", s.cfg.OutputDir)
	return w.Run(cmd.Context())
}

// importOnce runs one import with its own client session.
func (s *session) importOnce(ctx context.Context, out io.Writer) error {
	client, err := s.openClient()
	if err != nil {
		return err
	}
	defer s.closeClient(client)

	importer := sync.NewImporter(client, store.New(s.cfg.OutputDir, s.logger), s.logger)
	result, err := importer.Run(ctx)
	printImport(out, s.cfg.OutputDir, result)
	return err
}

func printImport(w io.Writer, dir string, r *sync.ImportResult) {
	summary := func(format string, args ...any) {
		switch {
		case len(r.Failures) == 0:
			ui.Pass(w, format, args...)
		case r.Succeeded() > 0:
			ui.Warn(w, format, args...)
		default:
			ui.Fail(w, format, args...)
		}
	}
	summary("Imported %d of %d templates from %s in %v",
		r.Succeeded(), r.Documents, dir, r.Duration.Round(time.Millisecond))
	ui.KV(w, "Created", r.Created)
	ui.KV(w, "Updated", r.Updated)
	ui.KV(w, "Unchanged", r.Unchanged)
	if len(r.Failures) == 0 {
		return
	}
	ui.KV(w, "Failed", len(r.Failures))
	failures := make([]string, len(r.Failures))
	for i, f := range r.Failures {
		failures[i] = f.Error() + retryHint(f.Err)
	}
	ui.List(w, failures, maxListed)
}

// retryHint tells whether running the import again can fix a failure.
func retryHint(err error) string {
	switch {
	case syncerr.IsRetryable(err):
		return " (retryable)"
	case syncerr.IsPermanent(err):
		return " (permanent)"
	}
	return ""
}
