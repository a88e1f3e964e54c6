package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/subosito/gotenv"
	"gopkg.in/yaml.v3"
)

// projectFile is the subset of Config written to promptsync.yml. Secrets are
// kept out of it and go to .env instead.
type projectFile struct {
	Backend   string `yaml:"backend"`
	OutputDir string `yaml:"output_dir"`
	PageSize  int    `yaml:"page_size"`
	SQLite    struct {
		Path string `yaml:"path,omitempty"`
	} `yaml:"sqlite,omitempty"`
	Git struct {
		Commit  bool   `yaml:"commit"`
		Message string `yaml:"message,omitempty"`
	} `yaml:"git"`
}

// WriteProject writes the non-secret settings of cfg as a project file in dir.
func WriteProject(dir string, cfg Config) (string, error) {
	var pf projectFile
	pf.Backend = cfg.Backend
	pf.OutputDir = cfg.OutputDir
	pf.PageSize = cfg.PageSize
	pf.SQLite.Path = cfg.SQLite.Path
	pf.Git.Commit = cfg.Git.Commit
	pf.Git.Message = cfg.Git.Message

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&pf); err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}

	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

// WriteDotEnv stores the Notion credentials in a .env file in dir, readable
// by the owner only. Other variables already in the file are kept; comments
// are not.
func WriteDotEnv(dir string, notion NotionConfig) (string, error) {
	path := filepath.Join(dir, DotEnvName)

	env := gotenv.Env{}
	if _, err := os.Stat(path); err == nil {
		if env, err = gotenv.Read(path); err != nil {
			return "", fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}

	for key, value := range map[string]string{
		"NOTION_API_KEY":     notion.APIKey,
		"NOTION_DATABASE_ID": notion.DatabaseID,
	} {
		if value == "" {
			delete(env, key)
			continue
		}
		env[key] = value
	}

	content, err := gotenv.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if content != "" {
		content += "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	// WriteFile keeps the mode of an existing file.
	if err := os.Chmod(path, 0600); err != nil {
		return "", fmt.Errorf("failed to restrict %s: %w", path, err)
	}
	return path, nil
}
