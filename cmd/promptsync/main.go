// Command promptsync keeps a directory of prompt templates in sync with a
// remote database.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/fitlab/promptsync/internal/config"
	"github.com/fitlab/promptsync/internal/logging"
	"github.com/fitlab/promptsync/internal/remote"
	"github.com/fitlab/promptsync/internal/remote/notion"
	"github.com/fitlab/promptsync/internal/remote/sqlitedb"
	"github.com/fitlab/promptsync/internal/syncerr"
	"github.com/fitlab/promptsync/internal/ui"
)

// Exit codes.
const (
	exitOK      = 0
	exitUsage   = 1 // configuration or usage error
	exitFailure = 2 // nothing was synced
	exitPartial = 3 // some documents failed
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err != nil {
		ui.Fail(stderr, "%v", err)
	}
	return exitCode(err)
}

// usageError marks errors caused by how the command was invoked.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var usage usageError
	if errors.As(err, &usage) || errors.Is(err, config.ErrInvalid) {
		return exitUsage
	}
	var failed *syncerr.SyncFailedError
	if errors.As(err, &failed) && failed.Partial() {
		return exitPartial
	}
	return exitFailure
}

// globalFlags maps configuration keys to persistent flag names.
var globalFlags = map[string]string{
	"backend":   "backend",
	"log.level": "log-level",
	"log.file":  "log-file",
	"no_color":  "no-color",
}

var configFile string

func newRootCmd() *cobra.Command {
	configFile = ""

	root := &cobra.Command{
		Use:   "promptsync",
		Short: "Sync prompt templates between a directory and a remote database",
		Long: `promptsync exports the prompt templates stored in a remote database
(Notion or SQLite) as versioned YAML files and imports edited files back.

Configuration precedence (highest to lowest):
  1. Command-line flags
  2. Environment variables (PROMPTSYNC_*, NOTION_API_KEY, NOTION_DATABASE_ID)
  3. .env in the working directory
  4. Project config (./promptsync.yml)
  5. Global config (~/.config/promptsync/promptsync.yml)
  6. Defaults`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return usageError{fmt.Errorf("unknown command %q for %q", args[0], cmd.CommandPath())}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "config file (default ./promptsync.yml)")
	pf.String("backend", config.BackendNotion, "remote backend: notion or sqlite")
	pf.String("log-level", "info", "log level: debug, info, warn or error")
	pf.String("log-file", "", "also write logs to this file, rotated")
	pf.Bool("no-color", false, "disable colored output")

	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError{err}
	})

	root.AddGroup(&cobra.Group{ID: "sync", Title: "Sync Commands:"})
	root.AddCommand(
		newExportCmd(),
		newImportCmd(),
		newStatusCmd(),
		newInitCmd(),
		newVersionCmd(),
	)
	return root
}

// noArgs rejects positional arguments as a usage error.
func noArgs(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return usageError{fmt.Errorf("%s takes no arguments, got %q", cmd.CommandPath(), args)}
	}
	return nil
}

// session is the resolved configuration and logger of one command run.
type session struct {
	cfg    config.Config
	logger *slog.Logger
	closer io.Closer
}

// openSession resolves the configuration for cmd. flags maps configuration
// keys to the command's own flag names, on top of the global ones. validate
// is false for commands that must work with an incomplete configuration.
func openSession(cmd *cobra.Command, flags map[string]string, validate bool) (*session, error) {
	opts := config.LoadOptions{
		ConfigFile: configFile,
		Flags:      make(map[string]*pflag.Flag),
	}
	for _, m := range []map[string]string{globalFlags, flags} {
		for key, name := range m {
			if f := cmd.Flags().Lookup(name); f != nil {
				opts.Flags[key] = f
			}
		}
	}

	load := config.Load
	if !validate {
		load = config.Resolve
	}
	cfg, err := load(opts)
	if err != nil {
		return nil, err
	}

	if cfg.NoColor {
		ui.DisableColor()
	}
	logger, closer := logging.New(cfg.Log, cmd.ErrOrStderr())
	logger.Debug("configuration resolved", "config", cfg)
	return &session{cfg: cfg, logger: logger, closer: closer}, nil
}

func (s *session) Close() {
	if err := s.closer.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
	}
}

// openClient connects to the configured backend. The caller closes it.
func (s *session) openClient() (remote.Client, error) {
	switch s.cfg.Backend {
	case config.BackendNotion:
		return notion.New(notion.Options{
			APIKey:            s.cfg.Notion.APIKey,
			DatabaseID:        s.cfg.Notion.DatabaseID,
			BaseURL:           s.cfg.Notion.BaseURL,
			PageSize:          s.cfg.PageSize,
			RequestsPerSecond: s.cfg.Notion.RequestsPerSecond,
			Timeout:           s.cfg.Notion.Timeout,
		}, s.logger)
	case config.BackendSQLite:
		return sqlitedb.Open(s.cfg.SQLite.Path, sqlitedb.Options{
			PageSize: s.cfg.PageSize,
			Logger:   s.logger,
		})
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", config.ErrInvalid, s.cfg.Backend)
	}
}

// closeClient closes c and logs a failure; the run result stands.
func (s *session) closeClient(c remote.Client) {
	if err := c.Close(); err != nil {
		s.logger.Warn("failed to close remote client", "error", err)
	}
}
