package sftpserver

import (
	"errors"
	"io"
	"os"

	"advent/internal/storage"

	"github.com/pkg/sftp"
	"github.com/spf13/afero"
)

// Handlers implements sftp.Handlers over a guarded filesystem. Paths
// that leave the storage root are refused with a permission error.
type Handlers struct {
	Fs afero.Fs
}

// sftpErr maps storage sentinels onto the os errors pkg/sftp translates
// into status codes.
func sftpErr(err error) error {
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

// Fileread opens a file for reading.
func (h Handlers) Fileread(r *sftp.Request) (io.ReaderAt, error) {
	f, err := h.Fs.Open(r.Filepath)
	if err != nil {
		return nil, sftpErr(err)
	}
	return f, nil
}

// Filewrite opens a file for writing with the client's open flags.
func (h Handlers) Filewrite(r *sftp.Request) (io.WriterAt, error) {
	pf := r.Pflags()
	flags := 0
	if pf.Read && pf.Write {
		flags |= os.O_RDWR
	} else {
		flags |= os.O_WRONLY
	}
	if pf.Creat {
		flags |= os.O_CREATE
	}
	if pf.Trunc {
		flags |= os.O_TRUNC
	}
	if pf.Excl {
		flags |= os.O_EXCL
	}

	// No O_APPEND: writes arrive at explicit offsets.
	f, err := h.Fs.OpenFile(r.Filepath, flags, 0o640)
	if err != nil {
		return nil, sftpErr(err)
	}
	return f, nil
}

// Filecmd handles renames, removals, mkdir and setstat. Links are refused.
func (h Handlers) Filecmd(r *sftp.Request) error {
	switch r.Method {
	case "Setstat":
		attrs := r.Attributes()
		flags := r.AttrFlags()
		if flags.Permissions {
			if err := h.Fs.Chmod(r.Filepath, attrs.FileMode()); err != nil {
				return sftpErr(err)
			}
		}
		if flags.Acmodtime {
			if err := h.Fs.Chtimes(r.Filepath, attrs.AccessTime(), attrs.ModTime()); err != nil {
				return sftpErr(err)
			}
		}
		if flags.UidGid {
			return sftp.ErrSSHFxOpUnsupported
		}
		return nil
	case "Rename":
		if _, err := h.Fs.Stat(r.Target); err == nil {
			return os.ErrExist
		}
		return sftpErr(h.Fs.Rename(r.Filepath, r.Target))
	case "PosixRename":
		return sftpErr(h.Fs.Rename(r.Filepath, r.Target))
	case "Rmdir", "Remove":
		return sftpErr(h.Fs.Remove(r.Filepath))
	case "Mkdir":
		return sftpErr(h.Fs.Mkdir(r.Filepath, 0o750))
	default:
		return sftp.ErrSSHFxOpUnsupported
	}
}

// Filelist lists directories and stats files.
func (h Handlers) Filelist(r *sftp.Request) (sftp.ListerAt, error) {
	switch r.Method {
	case "List":
		infos, err := afero.ReadDir(h.Fs, r.Filepath)
		if err != nil {
			return nil, sftpErr(err)
		}
		out := infos[:0]
		for _, fi := range infos {
			if fi.Mode()&os.ModeSymlink == 0 {
				out = append(out, fi)
			}
		}
		return staticLister(out), nil
	case "Stat":
		fi, err := h.Fs.Stat(r.Filepath)
		if err != nil {
			return nil, sftpErr(err)
		}
		return staticLister([]os.FileInfo{fi}), nil
	default:
		return nil, sftp.ErrSSHFxOpUnsupported
	}
}

// staticLister wraps a fixed slice of FileInfo for listing.
type staticLister []os.FileInfo

// ListAt satisfies sftp.ListerAt with slice-based pagination.
func (l staticLister) ListAt(dst []os.FileInfo, offset int64) (int, error) {
	if offset < 0 || offset >= int64(len(l)) {
		return 0, io.EOF
	}
	n := copy(dst, l[offset:])
	if int64(n)+offset >= int64(len(l)) {
		return n, io.EOF
	}
	return n, nil
}
