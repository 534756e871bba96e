package storage

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// Fs exposes the guard as an afero.Fs for the SFTP and WebDAV servers.
// Their rooted paths ("/a/b") are taken relative to the storage root.
func (g *Guard) Fs() afero.Fs {
	return &guardFs{g: g}
}

type guardFs struct {
	g *Guard
}

func (f *guardFs) local(name string) (string, error) {
	name = strings.TrimLeft(strings.ReplaceAll(name, "\\", "/"), "/")
	return f.g.Resolve(name)
}

// mutable resolves name and refuses the root itself.
func (f *guardFs) mutable(name string) (string, error) {
	p, err := f.local(name)
	if err != nil {
		return "", err
	}
	if p == f.g.root {
		return "", os.ErrPermission
	}
	return p, nil
}

func (f *guardFs) Create(name string) (afero.File, error) {
	p, err := f.mutable(name)
	if err != nil {
		return nil, err
	}
	return f.g.fs.Create(p)
}

func (f *guardFs) Mkdir(name string, perm os.FileMode) error {
	p, err := f.mutable(name)
	if err != nil {
		return err
	}
	return f.g.fs.Mkdir(p, perm)
}

func (f *guardFs) MkdirAll(path string, perm os.FileMode) error {
	p, err := f.local(path)
	if err != nil {
		return err
	}
	return f.g.fs.MkdirAll(p, perm)
}

func (f *guardFs) Open(name string) (afero.File, error) {
	p, err := f.local(name)
	if err != nil {
		return nil, err
	}
	file, err := f.g.fs.Open(p)
	if err != nil {
		return nil, err
	}
	if p == f.g.root {
		return &rootDir{File: file}, nil
	}
	return file, nil
}

func (f *guardFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE|os.O_TRUNC|os.O_APPEND) == 0 {
		return f.Open(name)
	}
	p, err := f.mutable(name)
	if err != nil {
		return nil, err
	}
	return f.g.fs.OpenFile(p, flag, perm)
}

func (f *guardFs) Remove(name string) error {
	p, err := f.mutable(name)
	if err != nil {
		return err
	}
	return f.g.fs.Remove(p)
}

func (f *guardFs) RemoveAll(path string) error {
	p, err := f.mutable(path)
	if err != nil {
		return err
	}
	return f.g.fs.RemoveAll(p)
}

func (f *guardFs) Rename(oldname, newname string) error {
	oldp, err := f.mutable(oldname)
	if err != nil {
		return err
	}
	newp, err := f.mutable(newname)
	if err != nil {
		return err
	}
	return f.g.fs.Rename(oldp, newp)
}

func (f *guardFs) Stat(name string) (os.FileInfo, error) {
	p, err := f.local(name)
	if err != nil {
		return nil, err
	}
	return f.g.fs.Stat(p)
}

func (f *guardFs) Name() string { return "advent-storage" }

func (f *guardFs) Chmod(name string, mode os.FileMode) error {
	p, err := f.mutable(name)
	if err != nil {
		return err
	}
	return f.g.fs.Chmod(p, mode)
}

func (f *guardFs) Chown(string, int, int) error {
	return errors.New("chown not supported")
}

func (f *guardFs) Chtimes(name string, atime time.Time, mtime time.Time) error {
	p, err := f.local(name)
	if err != nil {
		return err
	}
	return f.g.fs.Chtimes(p, atime, mtime)
}

// rootDir hides the staging directory from root listings.
type rootDir struct {
	afero.File
}

func (d *rootDir) Readdir(count int) ([]os.FileInfo, error) {
	infos, err := d.File.Readdir(count)
	out := infos[:0]
	for _, fi := range infos {
		if fi.Name() != stagingDir {
			out = append(out, fi)
		}
	}
	return out, err
}

func (d *rootDir) Readdirnames(n int) ([]string, error) {
	names, err := d.File.Readdirnames(n)
	out := names[:0]
	for _, name := range names {
		if name != stagingDir {
			out = append(out, name)
		}
	}
	return out, err
}

var _ afero.Fs = (*guardFs)(nil)
