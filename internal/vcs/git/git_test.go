package git

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fitlab/promptsync/internal/schema"
	"github.com/fitlab/promptsync/internal/store"
	"github.com/fitlab/promptsync/internal/vcs"
)

// setupTestRepo creates a temporary git repository for testing.
func setupTestRepo(t *testing.T) string {
	t.Helper()

	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	dir := t.TempDir()
	for _, args := range [][]string{
		{"init", "--quiet"},
		{"config", "user.name", "Test User"},
		{"config", "user.email", "test@example.com"},
		{"config", "commit.gpgsign", "false"},
	} {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %s failed: %v\n%s", args[0], err, out)
		}
	}
	return dir
}

func gitOutput(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %s failed: %v\n%s", strings.Join(args, " "), err, out)
	}
	return strings.TrimSpace(string(out))
}

func commitCount(t *testing.T, dir string) int {
	t.Helper()
	out := gitOutput(t, dir, "log", "--oneline")
	if out == "" {
		return 0
	}
	return len(strings.Split(out, "\n"))
}

func replace(t *testing.T, s *store.Store, names ...string) store.ChangeSet {
	t.Helper()
	var docs []*schema.Document
	for _, name := range names {
		docs = append(docs, &schema.Document{Name: name, Template: "t"})
	}
	changes, err := s.Replace(docs)
	if err != nil {
		t.Fatalf("Replace() failed: %v", err)
	}
	return changes
}

func TestNew(t *testing.T) {
	repo := setupTestRepo(t)

	g, err := New(filepath.Join(repo))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if g.RepoRoot() != normalizePath(repo) {
		t.Errorf("RepoRoot() = %q, want %q", g.RepoRoot(), normalizePath(repo))
	}

	version, err := g.Version()
	if err != nil {
		t.Fatalf("Version() failed: %v", err)
	}
	if version == "" {
		t.Error("Version() returned empty string")
	}
}

func TestNew_NotInRepo(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	_, err := New(t.TempDir())
	if !errors.Is(err, vcs.ErrNotInVCS) {
		t.Fatalf("New() error = %v, want ErrNotInVCS", err)
	}
	if !vcs.IsFatal(err) {
		t.Error("IsFatal() = false, want true")
	}
}

func TestRel(t *testing.T) {
	repo := setupTestRepo(t)
	g, err := New(repo)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	rel, err := g.Rel(filepath.Join(repo, "prompts"))
	if err != nil {
		t.Fatalf("Rel() failed: %v", err)
	}
	if rel != "prompts" {
		t.Errorf("Rel() = %q, want %q", rel, "prompts")
	}

	if _, err := g.Rel(t.TempDir()); !errors.Is(err, vcs.ErrNotInVCS) {
		t.Errorf("Rel(outside) error = %v, want ErrNotInVCS", err)
	}
}

func TestCommit_RequiresMessage(t *testing.T) {
	repo := setupTestRepo(t)
	g, err := New(repo)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if err := g.Commit(context.Background(), vcs.CommitOptions{}); err == nil {
		t.Error("Commit() without message should fail")
	}
}

func TestCommit_NothingToCommit(t *testing.T) {
	repo := setupTestRepo(t)
	g, err := New(repo)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(repo, "README.md"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := g.Commit(ctx, vcs.CommitOptions{Message: "init", Paths: []string{"README.md"}}); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}

	err = g.Commit(ctx, vcs.CommitOptions{Message: "again"})
	if !errors.Is(err, vcs.ErrNothingToCommit) {
		t.Errorf("Commit() error = %v, want ErrNothingToCommit", err)
	}
}

func TestPublish(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	s := store.New(filepath.Join(repo, "prompts"), nil)
	p := NewPublisher(PublisherOptions{Message: "Export prompt templates"}, nil)

	changes := replace(t, s, "a/b@1.0.0", "a/c@1.0.0")
	if committed, err := p.Publish(ctx, s.Dir(), changes); err != nil || !committed {
		t.Fatalf("Publish() = %v, %v; want a commit", committed, err)
	}
	if got := commitCount(t, repo); got != 1 {
		t.Fatalf("commits = %d, want 1", got)
	}
	msg := gitOutput(t, repo, "log", "-1", "--format=%B")
	if !strings.HasPrefix(msg, "Export prompt templates") || !strings.Contains(msg, "+ "+filepath.Join("a", "b@1.0.0.yaml")) {
		t.Errorf("unexpected commit message:\n%s", msg)
	}

	// Nothing changed on disk: no new commit.
	if committed, err := p.Publish(ctx, s.Dir(), store.ChangeSet{}); err != nil || committed {
		t.Fatalf("Publish() = %v, %v; want no commit", committed, err)
	}
	if got := commitCount(t, repo); got != 1 {
		t.Fatalf("commits = %d, want 1", got)
	}

	// Removals are committed too.
	changes = replace(t, s, "a/b@1.0.0")
	if _, err := p.Publish(ctx, s.Dir(), changes); err != nil {
		t.Fatalf("Publish() failed: %v", err)
	}
	if got := commitCount(t, repo); got != 2 {
		t.Fatalf("commits = %d, want 2", got)
	}
	files := gitOutput(t, repo, "ls-files")
	if strings.Contains(files, "c@1.0.0.yaml") {
		t.Errorf("removed file still tracked:\n%s", files)
	}
}

func TestPublish_LeavesOtherChangesAlone(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	if err := os.WriteFile(filepath.Join(repo, "notes.txt"), []byte("wip"), 0644); err != nil {
		t.Fatal(err)
	}

	s := store.New(filepath.Join(repo, "prompts"), nil)
	changes := replace(t, s, "a/b@1.0.0")
	if _, err := NewPublisher(PublisherOptions{Message: "Export"}, nil).Publish(ctx, s.Dir(), changes); err != nil {
		t.Fatalf("Publish() failed: %v", err)
	}

	status := gitOutput(t, repo, "status", "--porcelain")
	if !strings.Contains(status, "?? notes.txt") {
		t.Errorf("unrelated file should stay untracked, status:\n%s", status)
	}
}

func TestPublish_CommitsEarlierLeftovers(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	s := store.New(filepath.Join(repo, "prompts"), nil)

	// Written by a run whose commit failed.
	replace(t, s, "a/b@1.0.0")

	committed, err := NewPublisher(PublisherOptions{Message: "Export"}, nil).Publish(ctx, s.Dir(), store.ChangeSet{})
	if err != nil || !committed {
		t.Fatalf("Publish() = %v, %v; want a commit", committed, err)
	}
	if got := commitCount(t, repo); got != 1 {
		t.Fatalf("commits = %d, want 1", got)
	}
}

func TestPublish_RejectedByHook(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	hook := filepath.Join(repo, ".git", "hooks", "pre-commit")
	if err := os.MkdirAll(filepath.Dir(hook), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(hook, []byte("#!/bin/sh\necho rejected >&2\nexit 1\n"), 0755); err != nil {
		t.Fatal(err)
	}

	s := store.New(filepath.Join(repo, "prompts"), nil)
	changes := replace(t, s, "a/b@1.0.0")

	_, err := NewPublisher(PublisherOptions{Message: "Export"}, nil).Publish(ctx, s.Dir(), changes)
	if !errors.Is(err, vcs.ErrAborted) {
		t.Fatalf("Publish() error = %v, want ErrAborted", err)
	}
	if got := gitOutput(t, repo, "rev-list", "--all", "--count"); got != "0" {
		t.Fatalf("commits = %s, want 0", got)
	}

	committed, err := NewPublisher(PublisherOptions{Message: "Export", NoVerify: true}, nil).Publish(ctx, s.Dir(), changes)
	if err != nil || !committed {
		t.Fatalf("Publish() with NoVerify = %v, %v; want a commit", committed, err)
	}
}

func TestCommitMessage(t *testing.T) {
	msg := CommitMessage("Export", store.ChangeSet{
		Added:   []string{"a/new@1.0.0.yaml"},
		Removed: []string{"a/old@1.0.0.yaml"},
	})
	want := "Export\n\nAdded: 1, updated: 0, removed: 1\n\n+ a/new@1.0.0.yaml\n- a/old@1.0.0.yaml\n"
	if msg != want {
		t.Errorf("CommitMessage() =\n%q\nwant\n%q", msg, want)
	}
}
