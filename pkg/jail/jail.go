// Package jail resolves client-supplied filenames against a configured root
// directory, rejecting traversal and symlinks.
package jail

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrAccessViolation is returned for any filename that would escape the
// jail, or when the post-open re-check finds a path that is not a regular
// file or lies outside the root.
var ErrAccessViolation = errors.New("jail: access violation")

// ErrFileNotFound is returned when the resolved path (or, for Resolve, its
// parent directory) does not exist.
var ErrFileNotFound = errors.New("jail: file not found")

// MaxFilenameLen bounds the wire filename field (spec §4.2 step 2).
const MaxFilenameLen = 255

// Jail validates filenames against a canonicalized root directory.
type Jail struct {
	root string // canonicalized absolute root
}

// New canonicalizes rootDir and returns a Jail. rootDir must exist.
func New(rootDir string) (*Jail, error) {
	abs, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("jail: resolve root %q: %w", rootDir, err)
	}
	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("jail: canonicalize root %q: %w", rootDir, err)
	}
	info, err := os.Stat(canonical)
	if err != nil {
		return nil, fmt.Errorf("jail: stat root %q: %w", rootDir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("jail: root %q is not a directory", rootDir)
	}
	return &Jail{root: canonical}, nil
}

// Root returns the canonicalized root directory.
func (j *Jail) Root() string {
	return j.root
}

// Resolve validates filename and returns the absolute path it refers to
// within the jail. It does not require the file to exist; callers open the
// result and then call Recheck with the same path (spec §4.2 step 6).
func (j *Jail) Resolve(filename string) (string, error) {
	if len(filename) == 0 || len(filename) > MaxFilenameLen {
		return "", fmt.Errorf("jail: filename length: %w", ErrAccessViolation)
	}
	if strings.ContainsRune(filename, 0) {
		return "", fmt.Errorf("jail: filename contains NUL: %w", ErrAccessViolation)
	}

	normalized := strings.ReplaceAll(filename, "\\", "/")
	if strings.HasPrefix(normalized, "/") {
		return "", fmt.Errorf("jail: absolute filename: %w", ErrAccessViolation)
	}
	for _, part := range strings.Split(normalized, "/") {
		if part == ".." {
			return "", fmt.Errorf("jail: path traversal in %q: %w", filename, ErrAccessViolation)
		}
	}

	candidate := filepath.Join(j.root, filepath.FromSlash(normalized))

	if info, err := os.Lstat(candidate); err == nil {
		if info.Mode()&os.ModeSymlink != 0 {
			return "", fmt.Errorf("jail: %q is a symlink: %w", filename, ErrAccessViolation)
		}
		resolved, err := filepath.EvalSymlinks(candidate)
		if err != nil {
			return "", fmt.Errorf("jail: canonicalize %q: %w", filename, err)
		}
		if !withinRoot(j.root, resolved) {
			return "", fmt.Errorf("jail: %q escapes root: %w", filename, ErrAccessViolation)
		}
		return resolved, nil
	}

	// Not-yet-existing target: canonicalize the parent and apply the same
	// prefix check (spec §4.2 step 6). Read-only serving never creates
	// files, but Resolve is also used by admission checks before Stat.
	parent, err := filepath.EvalSymlinks(filepath.Dir(candidate))
	if err != nil {
		return "", fmt.Errorf("%w", ErrFileNotFound)
	}
	if !withinRoot(j.root, parent) {
		return "", fmt.Errorf("jail: %q escapes root: %w", filename, ErrAccessViolation)
	}
	return candidate, nil
}

// Recheck re-validates resolvedPath after the caller has opened it: the path
// must still name a regular file whose canonical form lies within the root
// (spec §4.2, "Rejected source pattern": both checks must be kept). It stats
// the path again; it does not inspect the open file handle.
func (j *Jail) Recheck(resolvedPath string) error {
	info, err := os.Stat(resolvedPath)
	if err != nil {
		return fmt.Errorf("%w", ErrFileNotFound)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("jail: %q is not a regular file: %w", resolvedPath, ErrAccessViolation)
	}
	canonical, err := filepath.EvalSymlinks(resolvedPath)
	if err != nil {
		return fmt.Errorf("jail: recheck canonicalize: %w", err)
	}
	if !withinRoot(j.root, canonical) {
		return fmt.Errorf("jail: %q escapes root on recheck: %w", resolvedPath, ErrAccessViolation)
	}
	return nil
}

func withinRoot(root, candidate string) bool {
	rel, err := filepath.Rel(root, candidate)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return !strings.HasPrefix(rel, "..")
}
