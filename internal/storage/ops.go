package storage

import (
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"advent/internal/validate"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// Entry describes one file or directory below the root.
type Entry struct {
	Path      string
	Name      string
	Dir       bool
	Size      int64
	ModTime   time.Time
	MediaType string
}

func (g *Guard) entry(abs string, fi os.FileInfo) Entry {
	e := Entry{
		Path:    g.rel(abs),
		Name:    fi.Name(),
		Dir:     fi.IsDir(),
		Size:    fi.Size(),
		ModTime: fi.ModTime(),
	}
	if !e.Dir {
		e.MediaType = mime.TypeByExtension(filepath.Ext(e.Name))
	} else {
		e.Size = 0
	}
	if abs == g.root {
		e.Name = ""
	}
	return e
}

// Stat describes the entry at rel.
func (g *Guard) Stat(rel string) (Entry, error) {
	p, err := g.Resolve(rel)
	if err != nil {
		return Entry{}, err
	}
	fi, err := g.fs.Stat(p)
	if err != nil {
		return Entry{}, classify(err)
	}
	return g.entry(p, fi), nil
}

// List returns the direct children of the directory at rel, sorted by name.
func (g *Guard) List(rel string) ([]Entry, error) {
	p, err := g.Resolve(rel)
	if err != nil {
		return nil, err
	}
	if err := g.requireDir(p); err != nil {
		return nil, err
	}
	infos, err := afero.ReadDir(g.fs, p)
	if err != nil {
		return nil, classify(err)
	}
	out := make([]Entry, 0, len(infos))
	for _, fi := range infos {
		if p == g.root && fi.Name() == stagingDir {
			continue
		}
		if fi.Mode()&os.ModeSymlink != 0 {
			continue
		}
		out = append(out, g.entry(filepath.Join(p, fi.Name()), fi))
	}
	return out, nil
}

// Open opens the regular file at rel for reading.
func (g *Guard) Open(rel string) (afero.File, Entry, error) {
	p, err := g.Resolve(rel)
	if err != nil {
		return nil, Entry{}, err
	}
	fi, err := g.fs.Stat(p)
	if err != nil {
		return nil, Entry{}, classify(err)
	}
	if fi.IsDir() {
		return nil, Entry{}, ErrIsDir
	}
	f, err := g.fs.Open(p)
	if err != nil {
		return nil, Entry{}, classify(err)
	}
	return f, g.entry(p, fi), nil
}

// MediaType returns the media type of the file at rel, by extension and
// then by content.
func (g *Guard) MediaType(rel string) (string, error) {
	if t := mime.TypeByExtension(path.Ext(rel)); t != "" {
		return t, nil
	}
	p, err := g.Resolve(rel)
	if err != nil {
		return "", err
	}
	f, err := g.fs.Open(p)
	if err != nil {
		return "", classify(err)
	}
	defer f.Close()
	m, err := mimetype.DetectReader(f)
	if err != nil {
		return "", err
	}
	return m.String(), nil
}

// checkName accepts a single path element. Separators, NUL bytes and ".."
// would leave the target directory and count as escapes.
func (g *Guard) checkName(name string) error {
	if name == ".." || strings.ContainsAny(name, "/\\\x00") {
		g.log.Warn("path escape rejected", "event", "security.path_escape", "name", name)
		return fmt.Errorf("%w: name %q", ErrEscape, name)
	}
	if err := validate.FileName(name); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidName, err)
	}
	return nil
}

// CreateDir creates the directory name inside the directory parent.
func (g *Guard) CreateDir(parent, name string) (Entry, error) {
	if err := g.checkName(name); err != nil {
		return Entry{}, err
	}
	pp, err := g.Resolve(parent)
	if err != nil {
		return Entry{}, err
	}
	target, err := g.Resolve(join(parent, name))
	if err != nil {
		return Entry{}, err
	}
	if err := g.requireDir(pp); err != nil {
		return Entry{}, err
	}
	if err := g.fs.Mkdir(target, 0o750); err != nil {
		return Entry{}, classify(err)
	}
	return g.Stat(join(parent, name))
}

// Rename gives the entry at rel a new name in the same directory.
func (g *Guard) Rename(rel, newName string) (Entry, error) {
	if err := g.checkName(newName); err != nil {
		return Entry{}, err
	}
	src, err := g.Resolve(rel)
	if err != nil {
		return Entry{}, err
	}
	if src == g.root {
		return Entry{}, ErrRoot
	}
	dstRel := join(path.Dir(g.rel(src)), newName)
	dst, err := g.Resolve(dstRel)
	if err != nil {
		return Entry{}, err
	}
	if _, err := g.fs.Stat(src); err != nil {
		return Entry{}, classify(err)
	}
	if src == dst {
		return g.Stat(dstRel)
	}
	if exists, _ := afero.Exists(g.fs, dst); exists {
		return Entry{}, ErrExists
	}
	if err := g.fs.Rename(src, dst); err != nil {
		return Entry{}, classify(err)
	}
	return g.Stat(dstRel)
}

type planned struct {
	src, dst, staged string
	state            int
}

const (
	stateOriginal = iota
	stateStaged
	stateCommitted
)

// Move moves every item into the directory dest. All paths are resolved and
// checked before the first rename; the renames themselves are staged and
// rolled back on failure.
func (g *Guard) Move(items []string, dest string) error {
	if len(items) == 0 {
		return nil
	}
	dd, err := g.Resolve(dest)
	if err != nil {
		return err
	}
	srcs, err := g.resolveItems(items)
	if err != nil {
		return err
	}
	if err := g.requireDir(dd); err != nil {
		return err
	}

	plan := make([]*planned, 0, len(srcs))
	seen := make(map[string]bool, len(srcs))
	for _, src := range srcs {
		dst := filepath.Join(dd, filepath.Base(src))
		if dst == src {
			continue
		}
		if isWithin(src, dd) {
			return fmt.Errorf("%w: cannot move %s into itself", ErrInvalidName, g.rel(src))
		}
		if seen[dst] {
			return fmt.Errorf("%w: %s", ErrExists, g.rel(dst))
		}
		seen[dst] = true
		if exists, _ := afero.Exists(g.fs, dst); exists {
			return fmt.Errorf("%w: %s", ErrExists, g.rel(dst))
		}
		plan = append(plan, &planned{src: src, dst: dst})
	}
	if len(plan) == 0 {
		return nil
	}

	area, err := g.newStagingArea()
	if err != nil {
		return err
	}
	if err := g.apply(plan, area, true); err != nil {
		return err
	}
	g.dropStagingArea(area)
	return nil
}

// apply stages every planned item into area and, when commit is set, renames
// each staged item to its destination. On failure everything is rolled
// back; the staging area is dropped only if the rollback was complete.
func (g *Guard) apply(plan []*planned, area string, commit bool) error {
	fail := func(err error) error {
		if g.rollback(plan) {
			g.dropStagingArea(area)
		}
		return classify(err)
	}
	for i, p := range plan {
		p.staged = filepath.Join(area, fmt.Sprint(i))
		if err := g.fs.Rename(p.src, p.staged); err != nil {
			return fail(err)
		}
		p.state = stateStaged
	}
	if !commit {
		return nil
	}
	for _, p := range plan {
		if err := g.fs.Rename(p.staged, p.dst); err != nil {
			return fail(err)
		}
		p.state = stateCommitted
	}
	return nil
}

// Delete removes the entry at rel. Directories must be empty unless
// recursive is set.
func (g *Guard) Delete(rel string, recursive bool) error {
	p, err := g.Resolve(rel)
	if err != nil {
		return err
	}
	if p == g.root {
		return ErrRoot
	}
	fi, err := g.fs.Stat(p)
	if err != nil {
		return classify(err)
	}
	if fi.IsDir() && recursive {
		return g.DeleteAll([]string{rel})
	}
	if err := g.fs.Remove(p); err != nil {
		if fi.IsDir() {
			return fmt.Errorf("%w: %s", ErrNotEmpty, rel)
		}
		return classify(err)
	}
	return nil
}

// DeleteAll removes every item, recursively. The items are first moved into
// a staging area; if any of those moves fails the others are put back.
func (g *Guard) DeleteAll(items []string) error {
	if len(items) == 0 {
		return nil
	}
	srcs, err := g.resolveItems(items)
	if err != nil {
		return err
	}
	area, err := g.newStagingArea()
	if err != nil {
		return err
	}
	plan := make([]*planned, 0, len(srcs))
	for _, src := range srcs {
		plan = append(plan, &planned{src: src})
	}
	if err := g.apply(plan, area, false); err != nil {
		return err
	}
	g.dropStagingArea(area)
	return nil
}

// Upload writes r as dir/name. The content goes to a staging file first and
// is renamed into place only when complete and within maxBytes.
func (g *Guard) Upload(dir, name string, r io.Reader, maxBytes int64) (Entry, error) {
	if err := g.checkName(name); err != nil {
		return Entry{}, err
	}
	dd, err := g.Resolve(dir)
	if err != nil {
		return Entry{}, err
	}
	targetRel := join(dir, name)
	target, err := g.Resolve(targetRel)
	if err != nil {
		return Entry{}, err
	}
	if err := g.requireDir(dd); err != nil {
		return Entry{}, err
	}
	if fi, err := g.fs.Stat(target); err == nil && fi.IsDir() {
		return Entry{}, ErrIsDir
	}

	area, err := g.newStagingArea()
	if err != nil {
		return Entry{}, err
	}
	defer g.dropStagingArea(area)

	tmp := filepath.Join(area, "upload")
	f, err := g.fs.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return Entry{}, err
	}
	n, err := io.Copy(f, io.LimitReader(r, maxBytes+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return Entry{}, err
	}
	if n > maxBytes {
		return Entry{}, ErrTooLarge
	}
	if err := g.fs.Rename(tmp, target); err != nil {
		return Entry{}, classify(err)
	}
	return g.Stat(targetRel)
}

func (g *Guard) resolveItems(items []string) ([]string, error) {
	out := make([]string, 0, len(items))
	for _, it := range items {
		p, err := g.Resolve(it)
		if err != nil {
			return nil, err
		}
		if p == g.root {
			return nil, ErrRoot
		}
		if _, err := g.fs.Stat(p); err != nil {
			return nil, classify(err)
		}
		out = append(out, p)
	}
	// Reject overlapping items, such as a directory and a file inside it.
	for i, a := range out {
		for j, b := range out {
			if i != j && isWithin(a, b) {
				return nil, fmt.Errorf("%w: overlapping items", ErrInvalidName)
			}
		}
	}
	return out, nil
}

func (g *Guard) requireDir(p string) error {
	fi, err := g.fs.Stat(p)
	if err != nil {
		return classify(err)
	}
	if !fi.IsDir() {
		return ErrNotDir
	}
	return nil
}

func (g *Guard) newStagingArea() (string, error) {
	area := filepath.Join(g.root, stagingDir, uuid.NewString())
	if err := g.fs.MkdirAll(area, 0o700); err != nil {
		return "", err
	}
	return area, nil
}

func (g *Guard) dropStagingArea(area string) {
	if err := g.fs.RemoveAll(area); err != nil {
		g.log.Error("staging cleanup failed", "area", area, "err", err)
	}
}

// rollback puts every staged or committed item back where it came from and
// reports whether all of them made it.
func (g *Guard) rollback(plan []*planned) bool {
	ok := true
	for i := len(plan) - 1; i >= 0; i-- {
		p := plan[i]
		var from string
		switch p.state {
		case stateStaged:
			from = p.staged
		case stateCommitted:
			from = p.dst
		default:
			continue
		}
		if err := g.fs.Rename(from, p.src); err != nil {
			g.log.Error("rollback failed", "from", g.rel(from), "to", g.rel(p.src), "err", err)
			ok = false
			continue
		}
		p.state = stateOriginal
	}
	return ok
}

func join(dir, name string) string {
	dir = strings.TrimSuffix(dir, "/")
	if dir == "" || dir == "." {
		return name
	}
	return dir + "/" + name
}
