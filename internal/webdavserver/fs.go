package webdavserver

import (
	"context"
	"errors"
	"os"

	"advent/internal/storage"

	"github.com/spf13/afero"
	"golang.org/x/net/webdav"
)

// guardedFS adapts the storage guard's afero view to webdav.FileSystem.
type guardedFS struct {
	fs afero.Fs
}

// NewFS wraps fs, normally storage.Guard.Fs, for the WebDAV handler.
func NewFS(fs afero.Fs) webdav.FileSystem {
	return &guardedFS{fs: fs}
}

// davErr reports escapes as permission errors.
func davErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrEscape):
		return os.ErrPermission
	case errors.Is(err, storage.ErrNotFound):
		return os.ErrNotExist
	default:
		return err
	}
}

func (g *guardedFS) Mkdir(_ context.Context, name string, perm os.FileMode) error {
	return davErr(g.fs.Mkdir(name, perm))
}

func (g *guardedFS) OpenFile(_ context.Context, name string, flag int, perm os.FileMode) (webdav.File, error) {
	f, err := g.fs.OpenFile(name, flag, perm)
	if err != nil {
		return nil, davErr(err)
	}
	return f, nil
}

func (g *guardedFS) RemoveAll(_ context.Context, name string) error {
	return davErr(g.fs.RemoveAll(name))
}

func (g *guardedFS) Rename(_ context.Context, oldName, newName string) error {
	return davErr(g.fs.Rename(oldName, newName))
}

func (g *guardedFS) Stat(_ context.Context, name string) (os.FileInfo, error) {
	fi, err := g.fs.Stat(name)
	return fi, davErr(err)
}

var _ webdav.FileSystem = (*guardedFS)(nil)
