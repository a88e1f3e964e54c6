// Package store manages the local template directory as a whole: loading every
// document for import and atomically replacing the document set on export.
package store

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/fitlab/promptsync/internal/schema"
	"github.com/fitlab/promptsync/internal/syncerr"
)

// documentGlob selects template documents below the store root.
const documentGlob = "**/*" + schema.FileExt

// ErrUnsafeDir is returned by Replace for a directory it must not swap out:
// the working directory, one of its parents, or a repository root.
var ErrUnsafeDir = errors.New("refusing to replace directory")

// Store is the directory of template documents.
type Store struct {
	dir    string
	logger *slog.Logger
}

// Entry is a document loaded from the store together with its relative path.
type Entry struct {
	Path string
	Doc  *schema.Document
}

// ChangeSet lists the relative paths a replacement added, updated or removed.
type ChangeSet struct {
	Added   []string
	Updated []string
	Removed []string
}

// Empty reports whether the replacement changed nothing.
func (c ChangeSet) Empty() bool {
	return len(c.Added) == 0 && len(c.Updated) == 0 && len(c.Removed) == 0
}

// Paths returns every touched path in sorted order.
func (c ChangeSet) Paths() []string {
	paths := slices.Concat(c.Added, c.Updated, c.Removed)
	slices.Sort(paths)
	return paths
}

// New returns a store rooted at dir. If logger is nil, slog.Default is used.
func New(dir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{dir: dir, logger: logger}
}

// Dir returns the store root.
func (s *Store) Dir() string {
	return s.dir
}

// Load reads every document below the store root in path order.
//
// Files that cannot be read or parsed are returned as item failures and do not
// stop the load. The error is non-nil only if the directory itself cannot be
// listed. A missing directory is an empty store.
func (s *Store) Load() ([]Entry, []syncerr.ItemFailure, error) {
	if _, err := os.Stat(s.dir); errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("template directory does not exist", "dir", s.dir)
		return nil, nil, nil
	}

	matches, err := doublestar.Glob(os.DirFS(s.dir), documentGlob, doublestar.WithFilesOnly())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list template directory %s: %w", s.dir, err)
	}
	slices.Sort(matches)

	var (
		entries  []Entry
		failures []syncerr.ItemFailure
	)
	for _, match := range matches {
		rel := filepath.FromSlash(match)
		if !isDocumentPath(rel) {
			continue
		}

		doc, err := schema.ReadDocumentFile(s.dir, rel)
		if err != nil {
			s.logger.Warn("skipping invalid document", "path", rel, "error", err)
			failures = append(failures, syncerr.ItemFailure{Item: rel, Err: err})
			continue
		}
		entries = append(entries, Entry{Path: rel, Doc: doc})
	}

	return entries, failures, nil
}

// Replace makes docs the complete document set of the store.
//
// All documents are first written to a staging directory next to the store
// root. Only when staging succeeded and the result differs from the current
// content is the staging directory swapped in. On any error the store is left
// exactly as it was. Files that are not template documents (README, .gitkeep)
// are carried over unchanged.
func (s *Store) Replace(docs []*schema.Document) (ChangeSet, error) {
	absDir, err := filepath.Abs(s.dir)
	if err != nil {
		return ChangeSet{}, fmt.Errorf("failed to resolve template directory: %w", err)
	}
	if err := checkReplaceable(absDir); err != nil {
		return ChangeSet{}, err
	}
	parent := filepath.Dir(absDir)
	if err := os.MkdirAll(parent, 0755); err != nil {
		return ChangeSet{}, fmt.Errorf("failed to create %s: %w", parent, err)
	}

	stage, err := os.MkdirTemp(parent, ".promptsync-stage-*")
	if err != nil {
		return ChangeSet{}, fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stage)

	staged := make(map[string]bool, len(docs))
	for _, doc := range docs {
		rel, err := schema.WriteDocumentFile(stage, doc)
		if err != nil {
			return ChangeSet{}, fmt.Errorf("failed to stage %s: %w", doc.Name, err)
		}
		if staged[rel] {
			return ChangeSet{}, syncerr.Mismatch("name", "duplicate document %s", doc.Name)
		}
		staged[rel] = true
	}

	changes, dirMode, err := s.diffAndCarry(absDir, stage, staged)
	if err != nil {
		return ChangeSet{}, err
	}
	if changes.Empty() {
		s.logger.Debug("template directory already up to date", "dir", s.dir, "documents", len(staged))
		return changes, nil
	}

	if err := os.Chmod(stage, dirMode); err != nil {
		return ChangeSet{}, fmt.Errorf("failed to set staging directory mode: %w", err)
	}
	if err := swapDir(absDir, stage); err != nil {
		return ChangeSet{}, err
	}

	s.logger.Info("template directory replaced",
		"dir", s.dir,
		"added", len(changes.Added),
		"updated", len(changes.Updated),
		"removed", len(changes.Removed))
	return changes, nil
}

// checkReplaceable rejects directories whose replacement would move the
// working directory or a repository out from under the user.
func checkReplaceable(absDir string) error {
	dir := resolveSymlinks(absDir)
	if filepath.Dir(dir) == dir {
		return fmt.Errorf("%w %s: it is a filesystem root", ErrUnsafeDir, absDir)
	}
	if wd, err := os.Getwd(); err == nil {
		rel, err := filepath.Rel(dir, resolveSymlinks(wd))
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return fmt.Errorf("%w %s: it contains the working directory", ErrUnsafeDir, absDir)
		}
	}
	if _, err := os.Lstat(filepath.Join(dir, ".git")); err == nil {
		return fmt.Errorf("%w %s: it is a git repository root", ErrUnsafeDir, absDir)
	}
	return nil
}

func resolveSymlinks(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}
	return path
}

// diffAndCarry compares the live directory with the staged documents and copies
// non-document files into the staging directory. It returns the directory mode
// to apply to the staged tree.
func (s *Store) diffAndCarry(liveDir, stage string, staged map[string]bool) (ChangeSet, fs.FileMode, error) {
	var changes ChangeSet
	dirMode := fs.FileMode(0755)
	existing := make(map[string]bool)

	info, err := os.Stat(liveDir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// nothing to compare against
	case err != nil:
		return ChangeSet{}, 0, fmt.Errorf("failed to stat template directory: %w", err)
	case !info.IsDir():
		return ChangeSet{}, 0, fmt.Errorf("template path %s is not a directory", liveDir)
	default:
		dirMode = info.Mode().Perm()
		err = filepath.WalkDir(liveDir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(liveDir, path)
			if err != nil {
				return err
			}

			if !isDocumentPath(rel) {
				return copyFile(path, filepath.Join(stage, rel))
			}

			existing[rel] = true
			if !staged[rel] {
				changes.Removed = append(changes.Removed, rel)
				return nil
			}
			same, err := sameContent(path, filepath.Join(stage, rel))
			if err != nil {
				return err
			}
			if !same {
				changes.Updated = append(changes.Updated, rel)
			}
			return nil
		})
		if err != nil {
			return ChangeSet{}, 0, fmt.Errorf("failed to scan template directory: %w", err)
		}
	}

	for rel := range staged {
		if !existing[rel] {
			changes.Added = append(changes.Added, rel)
		}
	}
	slices.Sort(changes.Added)
	slices.Sort(changes.Updated)
	slices.Sort(changes.Removed)
	return changes, dirMode, nil
}

// swapDir moves stage into place at dir, keeping the previous content until the
// swap has succeeded.
func swapDir(dir, stage string) error {
	backup := stage + ".old"
	hadDir := true
	if err := os.Rename(dir, backup); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to move template directory aside: %w", err)
		}
		hadDir = false
	}

	if err := os.Rename(stage, dir); err != nil {
		if hadDir {
			if rbErr := os.Rename(backup, dir); rbErr != nil {
				return fmt.Errorf("failed to install new template directory: %w (restore failed, previous content kept at %s: %v)", err, backup, rbErr)
			}
		}
		return fmt.Errorf("failed to install new template directory: %w", err)
	}

	if hadDir {
		if err := os.RemoveAll(backup); err != nil {
			return fmt.Errorf("failed to remove previous template directory %s: %w", backup, err)
		}
	}
	return nil
}

// isDocumentPath reports whether rel names a template document: a .yaml file
// outside hidden directories.
func isDocumentPath(rel string) bool {
	if filepath.Ext(rel) != schema.FileExt {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(part, ".") {
			return false
		}
	}
	return true
}

func sameContent(a, b string) (bool, error) {
	da, err := os.ReadFile(a)
	if err != nil {
		return false, err
	}
	db, err := os.ReadFile(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(da, db), nil
}

func copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
