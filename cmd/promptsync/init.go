package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/fitlab/promptsync/internal/config"
	"github.com/fitlab/promptsync/internal/ui"
)

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create promptsync.yml and .env interactively",
		Long: `Ask for the backend, template directory and credentials, then write
promptsync.yml in the current directory. Notion credentials are stored in
.env (mode 0600) so the project file can be committed.`,
		Args: noArgs,
		RunE: runInit,
	}
	cmd.Flags().Bool("force", false, "overwrite an existing promptsync.yml without asking")
	return cmd
}

func runInit(cmd *cobra.Command, args []string) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return usageError{errors.New("init needs an interactive terminal; write promptsync.yml by hand instead")}
	}

	s, err := openSession(cmd, nil, false)
	if err != nil {
		return err
	}
	defer s.Close()
	cfg := s.cfg

	force, _ := cmd.Flags().GetBool("force")
	if _, err := os.Stat(config.FileName); err == nil && !force {
		overwrite := false
		err := huh.NewConfirm().
			Title(config.FileName + " already exists. Overwrite it?").
			Value(&overwrite).
			Run()
		if err != nil {
			return err
		}
		if !overwrite {
			ui.Warn(cmd.OutOrStdout(), "Left %s unchanged", config.FileName)
			return nil
		}
	}

	pageSize := strconv.Itoa(cfg.PageSize)
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Remote backend").
				Options(
					huh.NewOption("Notion database", config.BackendNotion),
					huh.NewOption("SQLite file", config.BackendSQLite),
				).
				Value(&cfg.Backend),
			huh.NewInput().
				Title("Template directory").
				Value(&cfg.OutputDir).
				Validate(notEmpty("template directory")),
			huh.NewInput().
				Title("Records per query").
				Description("1 to 100").
				Value(&pageSize).
				Validate(validPageSize),
			huh.NewConfirm().
				Title("Commit exports with git?").
				Value(&cfg.Git.Commit),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Notion API key").
				EchoMode(huh.EchoModePassword).
				Value(&cfg.Notion.APIKey).
				Validate(notEmpty("API key")),
			huh.NewInput().
				Title("Notion database ID").
				Value(&cfg.Notion.DatabaseID).
				Validate(notEmpty("database ID")),
		).WithHideFunc(func() bool { return cfg.Backend != config.BackendNotion }),
		huh.NewGroup(
			huh.NewInput().
				Title("SQLite database file").
				Value(&cfg.SQLite.Path).
				Validate(notEmpty("database file")),
		).WithHideFunc(func() bool { return cfg.Backend != config.BackendSQLite }),
	)
	if err := form.RunWithContext(cmd.Context()); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return usageError{errors.New("init aborted")}
		}
		return err
	}
	cfg.PageSize, _ = strconv.Atoi(strings.TrimSpace(pageSize))

	if err := cfg.Validate(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	path, err := config.WriteProject(".", cfg)
	if err != nil {
		return err
	}
	ui.Pass(out, "Wrote %s", path)

	if cfg.Backend == config.BackendNotion {
		path, err := config.WriteDotEnv(".", cfg.Notion)
		if err != nil {
			return err
		}
		ui.Pass(out, "Wrote credentials to %s", path)
		ui.KV(out, "Note", "keep "+filepath.Base(path)+" out of version control")
	}
	return nil
}

func notEmpty(what string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", what)
		}
		return nil
	}
}

func validPageSize(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 || n > 100 {
		return fmt.Errorf("page size must be a number from 1 to 100")
	}
	return nil
}
