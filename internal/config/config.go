// Package config resolves the promptsync configuration.
//
// Sources, highest precedence first:
//
//  1. command-line flags bound through LoadOptions.Flags
//  2. environment variables (PROMPTSYNC_*, plus NOTION_API_KEY,
//     NOTION_DATABASE_ID, OUTPUT_DIR and PAGE_SIZE)
//  3. a .env file in the working directory
//  4. the project file ./promptsync.yml (or the file named by --config)
//  5. the global file ~/.config/promptsync/promptsync.yml
//  6. built-in defaults
//
// The resolved Config is a plain value. It is passed explicitly to the jobs
// and never read from package state.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// File names looked up by Load.
const (
	FileName    = "promptsync.yml"
	DotEnvName  = ".env"
	envPrefix   = "PROMPTSYNC"
	globalAppID = "promptsync"
)

// Backends.
const (
	BackendNotion = "notion"
	BackendSQLite = "sqlite"
)

// ErrInvalid is returned by Load and Validate for unusable configurations.
var ErrInvalid = errors.New("invalid configuration")

// Config is the resolved configuration.
type Config struct {
	Backend   string       `mapstructure:"backend"`
	OutputDir string       `mapstructure:"output_dir"`
	PageSize  int          `mapstructure:"page_size"`
	Notion    NotionConfig `mapstructure:"notion"`
	SQLite    SQLiteConfig `mapstructure:"sqlite"`
	Git       GitConfig    `mapstructure:"git"`
	Watch     WatchConfig  `mapstructure:"watch"`
	Log       LogConfig    `mapstructure:"log"`
	NoColor   bool         `mapstructure:"no_color"`
}

// NotionConfig holds the Notion backend settings. APIKey and DatabaseID are
// secrets and are never printed.
type NotionConfig struct {
	APIKey            string        `mapstructure:"api_key"`
	DatabaseID        string        `mapstructure:"database_id"`
	BaseURL           string        `mapstructure:"base_url"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

// SQLiteConfig holds the SQLite backend settings.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// GitConfig controls publishing exports as commits.
type GitConfig struct {
	Commit  bool   `mapstructure:"commit"`
	Message string `mapstructure:"message"`
	Author  string `mapstructure:"author"`

	// NoVerify skips pre-commit and commit-msg hooks.
	NoVerify bool `mapstructure:"no_verify"`
}

// WatchConfig controls import --watch.
type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	File   string `mapstructure:"file"`
	Format string `mapstructure:"format"` // auto, text or json
}

// binding ties a configuration key to its environment variables and default.
type binding struct {
	key string
	env []string
	def any
}

var bindings = []binding{
	{"backend", nil, BackendNotion},
	{"output_dir", []string{"OUTPUT_DIR"}, "prompts"},
	{"page_size", []string{"PAGE_SIZE"}, 100},
	{"notion.api_key", []string{"NOTION_API_KEY"}, ""},
	{"notion.database_id", []string{"NOTION_DATABASE_ID"}, ""},
	{"notion.base_url", nil, "https://api.notion.com"},
	{"notion.requests_per_second", nil, 3.0},
	{"notion.timeout", nil, 30 * time.Second},
	{"sqlite.path", nil, filepath.Join(".promptsync", "prompts.db")},
	{"git.commit", nil, false},
	{"git.message", nil, "Export prompt templates"},
	{"git.author", nil, ""},
	{"git.no_verify", nil, false},
	{"watch.debounce", nil, 500 * time.Millisecond},
	{"log.level", nil, "info"},
	{"log.file", nil, ""},
	{"log.format", nil, "auto"},
	{"no_color", nil, false},
}

// prefixedEnv returns the PROMPTSYNC_ variable for key.
func prefixedEnv(key string) string {
	return envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// LoadOptions controls where Load looks for configuration.
type LoadOptions struct {
	// ConfigFile replaces the project file when set. It must exist.
	ConfigFile string
	// WorkDir is searched for the project file and .env. Defaults to ".".
	WorkDir string
	// GlobalDir holds the global file. Defaults to ~/.config/promptsync.
	GlobalDir string
	// Flags maps configuration keys to command-line flags.
	Flags map[string]*pflag.Flag
}

// Load resolves and validates the configuration.
func Load(opts LoadOptions) (Config, error) {
	cfg, err := Resolve(opts)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Resolve merges every configuration source without validating the result.
func Resolve(opts LoadOptions) (Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	for _, b := range bindings {
		v.SetDefault(b.key, b.def)
		names := append([]string{prefixedEnv(b.key)}, b.env...)
		if err := v.BindEnv(append([]string{b.key}, names...)...); err != nil {
			return Config{}, fmt.Errorf("bind env for %s: %w", b.key, err)
		}
	}

	if opts.WorkDir == "" {
		opts.WorkDir = "."
	}
	if opts.GlobalDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			opts.GlobalDir = filepath.Join(home, ".config", globalAppID)
		}
	}

	if opts.GlobalDir != "" {
		if err := mergeFile(v, filepath.Join(opts.GlobalDir, FileName), false); err != nil {
			return Config{}, err
		}
	}
	project := filepath.Join(opts.WorkDir, FileName)
	required := false
	if opts.ConfigFile != "" {
		project, required = opts.ConfigFile, true
	}
	if err := mergeFile(v, project, required); err != nil {
		return Config{}, err
	}
	if err := mergeDotEnv(v, filepath.Join(opts.WorkDir, DotEnvName)); err != nil {
		return Config{}, err
	}

	for key, flag := range opts.Flags {
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return Config{}, fmt.Errorf("bind flag --%s: %w", flag.Name, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return cfg, nil
}

// mergeFile merges a YAML file into v. A missing optional file is skipped.
func mergeFile(v *viper.Viper, path string, required bool) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("%w: config file: %v", ErrInvalid, err)
	}
	v.SetConfigFile(path)
	if err := v.MergeInConfig(); err != nil {
		return fmt.Errorf("%w: read %s: %v", ErrInvalid, path, err)
	}
	return nil
}

// mergeDotEnv layers the variables of a .env file below the real environment.
func mergeDotEnv(v *viper.Viper, path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	env := viper.New()
	env.SetConfigFile(path)
	env.SetConfigType("env")
	if err := env.ReadInConfig(); err != nil {
		return fmt.Errorf("%w: read %s: %v", ErrInvalid, path, err)
	}

	layer := make(map[string]any)
	for _, b := range bindings {
		for _, name := range append([]string{prefixedEnv(b.key)}, b.env...) {
			// viper lower-cases dotenv keys
			if name = strings.ToLower(name); env.IsSet(name) {
				setNested(layer, b.key, env.GetString(name))
				break
			}
		}
	}
	if len(layer) == 0 {
		return nil
	}
	return v.MergeConfigMap(layer)
}

func setNested(m map[string]any, key string, value any) {
	parts := strings.Split(key, ".")
	for _, part := range parts[:len(parts)-1] {
		next, ok := m[part].(map[string]any)
		if !ok {
			next = make(map[string]any)
			m[part] = next
		}
		m = next
	}
	m[parts[len(parts)-1]] = value
}

// Validate reports every problem with the configuration at once.
func (c Config) Validate() error {
	var problems []error

	switch c.Backend {
	case BackendNotion:
		if c.Notion.APIKey == "" {
			problems = append(problems, errors.New("notion API key is not set (NOTION_API_KEY)"))
		}
		if c.Notion.DatabaseID == "" {
			problems = append(problems, errors.New("notion database ID is not set (NOTION_DATABASE_ID)"))
		}
		if c.Notion.RequestsPerSecond <= 0 {
			problems = append(problems, fmt.Errorf("notion.requests_per_second must be positive, got %v", c.Notion.RequestsPerSecond))
		}
	case BackendSQLite:
		if c.SQLite.Path == "" {
			problems = append(problems, errors.New("sqlite.path is not set"))
		}
	default:
		problems = append(problems, fmt.Errorf("unknown backend %q (want %s or %s)", c.Backend, BackendNotion, BackendSQLite))
	}

	switch {
	case c.OutputDir == "":
		problems = append(problems, errors.New("output_dir is not set"))
	case filepath.Clean(c.OutputDir) == ".":
		// export replaces the whole directory
		problems = append(problems, errors.New("output_dir must not be the working directory"))
	}
	if c.PageSize < 1 || c.PageSize > 100 {
		problems = append(problems, fmt.Errorf("page_size must be between 1 and 100, got %d", c.PageSize))
	}
	if c.Watch.Debounce <= 0 {
		problems = append(problems, fmt.Errorf("watch.debounce must be positive, got %s", c.Watch.Debounce))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		problems = append(problems, fmt.Errorf("unknown log level %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "auto", "text", "json":
	default:
		problems = append(problems, fmt.Errorf("unknown log format %q", c.Log.Format))
	}

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(problems...))
}

// String renders the configuration with secrets redacted.
func (c Config) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "backend=%s output_dir=%s page_size=%d", c.Backend, c.OutputDir, c.PageSize)
	switch c.Backend {
	case BackendNotion:
		fmt.Fprintf(&b, " notion.api_key=%s notion.database_id=%s", redact(c.Notion.APIKey), redact(c.Notion.DatabaseID))
	case BackendSQLite:
		fmt.Fprintf(&b, " sqlite.path=%s", c.SQLite.Path)
	}
	fmt.Fprintf(&b, " git.commit=%t log.level=%s", c.Git.Commit, c.Log.Level)
	return b.String()
}

// LogValue implements slog.LogValuer with secrets redacted.
func (c Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("backend", c.Backend),
		slog.String("output_dir", c.OutputDir),
		slog.Int("page_size", c.PageSize),
		slog.Group("notion",
			slog.String("api_key", redact(c.Notion.APIKey)),
			slog.String("database_id", redact(c.Notion.DatabaseID)),
			slog.String("base_url", c.Notion.BaseURL),
		),
		slog.String("sqlite_path", c.SQLite.Path),
		slog.Bool("git_commit", c.Git.Commit),
		slog.Duration("debounce", c.Watch.Debounce),
		slog.String("log_level", c.Log.Level),
	)
}

func redact(secret string) string {
	if secret == "" {
		return "(unset)"
	}
	return "(set)"
}
