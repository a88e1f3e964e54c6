package main

import (
	"errors"
	"io"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/fitlab/promptsync/internal/config"
	"github.com/fitlab/promptsync/internal/remote/sqlitedb"
	"github.com/fitlab/promptsync/internal/schema"
	"github.com/fitlab/promptsync/internal/store"
	"github.com/fitlab/promptsync/internal/ui"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the resolved configuration and template directory",
		Long: `Display the configuration after merging every source, with secrets
redacted, followed by what the template directory currently holds.

Configuration problems are reported but do not fail the command.`,
		Args: noArgs,
		RunE: runStatus,
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd, nil, false)
	if err != nil {
		return err
	}
	defer s.Close()

	w := cmd.OutOrStdout()
	cfg := s.cfg

	ui.Heading(w, "Configuration")
	ui.KV(w, "Backend", cfg.Backend)
	ui.KV(w, "Directory", cfg.OutputDir)
	ui.KV(w, "Page size", cfg.PageSize)
	switch cfg.Backend {
	case config.BackendNotion:
		ui.KV(w, "API key", redacted(cfg.Notion.APIKey))
		ui.KV(w, "Database", redacted(cfg.Notion.DatabaseID))
	case config.BackendSQLite:
		ui.KV(w, "Database", cfg.SQLite.Path)
	}
	ui.KV(w, "Git commit", cfg.Git.Commit)
	ui.KV(w, "Log level", cfg.Log.Level)
	if err := cfg.Validate(); err != nil {
		ui.Warn(w, "%v", err)
	}

	ui.Heading(w, "Template directory")
	printStoreStatus(w, store.New(cfg.OutputDir, s.logger))

	if cfg.Backend == config.BackendSQLite {
		ui.Heading(w, "SQLite database")
		printSQLiteStatus(w, cfg.SQLite.Path)
	}
	return nil
}

func redacted(secret string) string {
	if secret == "" {
		return ui.RenderWarn("(unset)")
	}
	return "(set)"
}

func printStoreStatus(w io.Writer, st *store.Store) {
	if _, err := os.Stat(st.Dir()); errors.Is(err, fs.ErrNotExist) {
		ui.Warn(w, "%s does not exist yet, run 'promptsync export' to create it", st.Dir())
		return
	}
	entries, failures, err := st.Load()
	if err != nil {
		ui.Fail(w, "%v", err)
		return
	}

	categories := make(map[string]int)
	for _, e := range entries {
		categories[categoryOf(e.Doc.Name)]++
	}
	ui.KV(w, "Templates", len(entries))
	ui.KV(w, "Categories", len(categories))
	if len(failures) > 0 {
		ui.KV(w, "Unreadable", len(failures))
		items := make([]string, len(failures))
		for i, f := range failures {
			items[i] = f.Error()
		}
		ui.List(w, items, maxListed)
	}
}

func categoryOf(name string) string {
	n, err := schema.ParseName(name)
	if err != nil {
		return ""
	}
	return n.Category
}

func printSQLiteStatus(w io.Writer, path string) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		ui.Warn(w, "%s not created yet", path)
		return
	}
	if err != nil {
		ui.Fail(w, "%v", err)
		return
	}

	db, err := sqlitedb.Open(path, sqlitedb.Options{})
	if err != nil {
		ui.Fail(w, "%v", err)
		return
	}
	defer db.Close()

	count, err := db.Count()
	if err != nil {
		ui.Fail(w, "%v", err)
		return
	}
	ui.KV(w, "Path", path)
	ui.KV(w, "Records", count)
	ui.KV(w, "Size", info.Size())
}
