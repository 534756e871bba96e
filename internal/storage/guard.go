// Package storage confines every file operation to the upload root.
//
// Client paths are slash-separated and relative to the root. Resolve is the
// single gate: absolute paths, ".." segments, NUL bytes and symlinks below
// the root are rejected with ErrEscape before anything touches the disk.
// Multi-file moves and deletes are staged under a hidden directory inside
// the root so they can be rolled back.
package storage

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

var (
	ErrEscape      = errors.New("path escapes storage root")
	ErrNotFound    = errors.New("not found")
	ErrExists      = errors.New("already exists")
	ErrInvalidName = errors.New("invalid name")
	ErrNotDir      = errors.New("not a directory")
	ErrIsDir       = errors.New("is a directory")
	ErrRoot        = errors.New("operation not allowed on storage root")
	ErrTooLarge    = errors.New("upload too large")
	ErrNotEmpty    = errors.New("directory not empty")
)

// stagingDir holds in-flight uploads, moves and deletes. It is hidden from
// listings and unreachable through Resolve.
const stagingDir = ".advent-staging"

// Guard is the storage root plus the filesystem beneath it.
type Guard struct {
	root string
	fs   afero.Fs
	log  *slog.Logger
}

// New creates root if needed and returns a guard over it. Leftovers from an
// interrupted staged operation are removed.
func New(root string, lg *slog.Logger) (*Guard, error) {
	if root == "" {
		return nil, errors.New("storage root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, err
	}
	// Compare against the real location so symlinked parents (e.g. /tmp) work.
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, err
	}
	g := &Guard{root: filepath.Clean(real), fs: afero.NewOsFs(), log: lg.With("component", "storage")}
	if err := g.fs.RemoveAll(filepath.Join(g.root, stagingDir)); err != nil {
		return nil, fmt.Errorf("clear staging: %w", err)
	}
	return g, nil
}

// Root returns the absolute storage root.
func (g *Guard) Root() string { return g.root }

// Resolve maps a client path to an absolute path under the root.
// Escapes are logged as security events.
func (g *Guard) Resolve(rel string) (string, error) {
	p, err := g.resolve(rel)
	if errors.Is(err, ErrEscape) {
		g.log.Warn("path escape rejected", "event", "security.path_escape", "path", rel)
	}
	return p, err
}

func (g *Guard) resolve(rel string) (string, error) {
	if strings.ContainsRune(rel, 0) {
		return "", ErrEscape
	}
	s := strings.ReplaceAll(rel, "\\", "/")
	if strings.HasPrefix(s, "/") || filepath.IsAbs(rel) || filepath.VolumeName(rel) != "" {
		return "", ErrEscape
	}
	segs := strings.Split(s, "/")
	for _, seg := range segs {
		if seg == ".." {
			return "", ErrEscape
		}
	}
	if first, _, _ := strings.Cut(path.Clean(s), "/"); first == stagingDir {
		return "", ErrEscape
	}

	joined := filepath.Clean(filepath.Join(g.root, filepath.FromSlash(s)))
	if !isWithin(g.root, joined) {
		return "", ErrEscape
	}
	if hasSymlinkComponent(g.root, joined) {
		return "", ErrEscape
	}
	// The nearest existing ancestor must also canonicalise inside the root.
	if existing := nearestExisting(joined); existing != "" {
		resolved, err := filepath.EvalSymlinks(existing)
		if err != nil {
			return "", err
		}
		if !isWithin(g.root, filepath.Clean(resolved)) {
			return "", ErrEscape
		}
	}
	return joined, nil
}

// rel converts an absolute path under the root back to a client path.
func (g *Guard) rel(abs string) string {
	r, err := filepath.Rel(g.root, abs)
	if err != nil || r == "." {
		return ""
	}
	return filepath.ToSlash(r)
}

func hasSymlinkComponent(root, full string) bool {
	rel, err := filepath.Rel(root, full)
	if err != nil {
		return true
	}
	if rel == "." {
		return false
	}
	cur := root
	for _, p := range strings.Split(rel, string(filepath.Separator)) {
		if p == "" || p == "." {
			continue
		}
		cur = filepath.Join(cur, p)
		st, err := os.Lstat(cur)
		if err != nil {
			// Component doesn't exist (yet): no symlink to traverse.
			return false
		}
		if st.Mode()&os.ModeSymlink != 0 {
			return true
		}
	}
	return false
}

func isWithin(root, candidate string) bool {
	if root == candidate {
		return true
	}
	sep := string(filepath.Separator)
	if !strings.HasSuffix(root, sep) {
		root += sep
	}
	return strings.HasPrefix(candidate, root)
}

func nearestExisting(p string) string {
	cur := p
	for {
		_, err := os.Lstat(cur)
		if err == nil {
			return cur
		}
		if !os.IsNotExist(err) {
			return ""
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return ""
		}
		cur = parent
	}
}

// classify maps filesystem errors onto the package sentinels.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, os.ErrExist):
		return fmt.Errorf("%w: %v", ErrExists, err)
	default:
		return err
	}
}
