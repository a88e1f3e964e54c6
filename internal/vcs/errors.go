// Package vcs holds what the version-control integration shares across
// implementations: commit options and the error values callers classify on.
package vcs

import "errors"

// Common errors returned by VCS operations.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, vcs.ErrNotInVCS) {
//	    // the template directory is not tracked
//	}
var (
	// ErrNotInVCS is returned when the operation requires being inside
	// a VCS repository but none was found.
	ErrNotInVCS = errors.New("not in a VCS repository")

	// ErrVCSNotAvailable is returned when the git binary is not installed
	// or not in PATH.
	ErrVCSNotAvailable = errors.New("VCS binary not available")

	// ErrNothingToCommit is returned when a commit was requested but the
	// given paths have no changes.
	ErrNothingToCommit = errors.New("nothing to commit")

	// ErrAborted is returned when a commit was rejected by a hook.
	ErrAborted = errors.New("operation aborted")
)

// CommitOptions configures a commit operation.
type CommitOptions struct {
	// Message is the commit message (required).
	Message string

	// Paths limits the commit to these files or directories. Empty commits
	// everything staged.
	Paths []string

	// Author overrides the commit author (optional, format: "Name <email>").
	Author string

	// NoVerify skips pre-commit and commit-msg hooks.
	NoVerify bool
}

// IsFatal returns true if the error indicates that publishing cannot work
// in this environment at all.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrNotInVCS) || errors.Is(err, ErrVCSNotAvailable)
}
