package schema

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/fitlab/promptsync/internal/syncerr"
)

// FileExt is the extension of every template document file.
const FileExt = ".yaml"

var segmentPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)

// Name is a parsed template name: category/slug@version.
type Name struct {
	Category string // may contain "/"
	Slug     string
	Version  string // without a leading "v"
}

// ParseName splits and validates a template name.
// Malformed names are reported as schema mismatches on the "name" field.
func ParseName(s string) (Name, error) {
	at := strings.LastIndex(s, "@")
	if at < 0 {
		return Name{}, syncerr.Mismatch("name", "%q has no @version suffix", s)
	}
	path, version := s[:at], s[at+1:]

	if err := validateVersion(version); err != nil {
		return Name{}, syncerr.Mismatch("name", "%q: %v", s, err)
	}

	parts := strings.Split(path, "/")
	if len(parts) < 2 {
		return Name{}, syncerr.Mismatch("name", "%q must have the form category/slug@version", s)
	}
	for _, part := range parts {
		if !segmentPattern.MatchString(part) {
			return Name{}, syncerr.Mismatch("name", "%q: invalid segment %q", s, part)
		}
	}

	return Name{
		Category: strings.Join(parts[:len(parts)-1], "/"),
		Slug:     parts[len(parts)-1],
		Version:  version,
	}, nil
}

// validateVersion accepts full semantic versions only: 1.2.3, 1.2.3-rc.1, 1.2.3+build.
func validateVersion(v string) error {
	if v == "" {
		return errors.New("empty version")
	}
	if strings.HasPrefix(v, "v") {
		return errors.New("version must not start with \"v\"")
	}
	if !semver.IsValid("v" + v) {
		return fmt.Errorf("version %s is not a semantic version", v)
	}
	core := v
	if i := strings.IndexAny(core, "-+"); i >= 0 {
		core = core[:i]
	}
	if strings.Count(core, ".") != 2 {
		return fmt.Errorf("version %s must be MAJOR.MINOR.PATCH", v)
	}
	return nil
}

// String reassembles the name.
func (n Name) String() string {
	return n.Category + "/" + n.Slug + "@" + n.Version
}

// Path returns the file path of the document, relative to the template directory,
// using the OS path separator.
func (n Name) Path() string {
	parts := append(strings.Split(n.Category, "/"), n.Slug+"@"+n.Version+FileExt)
	return filepath.Join(parts...)
}
