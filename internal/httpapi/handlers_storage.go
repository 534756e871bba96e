package httpapi

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"strings"

	"advent/internal/storage"

	"github.com/gorilla/mux"
)

// defaultAdapter is the only storage the file browser exposes. Client
// paths look like PUBLIC://dir/file.
const defaultAdapter = "PUBLIC"

// vfFile is one entry in the file browser's wire format.
type vfFile struct {
	Type          string   `json:"type"`
	Path          string   `json:"path"`
	Visibility    string   `json:"visibility"`
	LastModified  int64    `json:"last_modified"`
	MimeType      string   `json:"mime_type"`
	ExtraMetadata []string `json:"extra_metadata"`
	Basename      string   `json:"basename"`
	Extension     string   `json:"extension"`
	Storage       string   `json:"storage"`
	FileSize      int64    `json:"file_size"`
}

type vfIndex struct {
	Adapter  string   `json:"adapter"`
	Storages []string `json:"storages"`
	Dirname  string   `json:"dirname"`
	Files    []vfFile `json:"files"`
}

type vfItem struct {
	Path string `json:"path"`
	Type string `json:"type,omitempty"`
}

type newFolderRequest struct {
	Name string `json:"name"`
}

func (r *newFolderRequest) validate() error {
	if r.Name == "" {
		return errors.New("name is required")
	}
	return nil
}

type renameRequest struct {
	Item string `json:"item"`
	Name string `json:"name"`
}

func (r *renameRequest) validate() error {
	if r.Item == "" || r.Name == "" {
		return errors.New("item and name are required")
	}
	return nil
}

type moveRequest struct {
	Item  string   `json:"item"`
	Items []vfItem `json:"items"`
}

func (r *moveRequest) validate() error {
	if r.Item == "" || len(r.Items) == 0 {
		return errors.New("item and items are required")
	}
	return nil
}

type deleteRequest struct {
	Items []vfItem `json:"items"`
}

func (r *deleteRequest) validate() error {
	if len(r.Items) == 0 {
		return errors.New("items are required")
	}
	return nil
}

// adapter returns the storage named in the query, defaulting to PUBLIC.
func adapter(r *http.Request) (string, bool) {
	a := r.URL.Query().Get("adapter")
	switch a {
	case "", "null", "undefined", defaultAdapter:
		return defaultAdapter, true
	default:
		return "", false
	}
}

// clientPath strips the adapter scheme from a browser path.
func clientPath(p string) string {
	p = strings.TrimPrefix(p, defaultAdapter+"://")
	return strings.TrimSuffix(p, "/")
}

func toVFFile(e storage.Entry) vfFile {
	f := vfFile{
		Type:          "file",
		Path:          defaultAdapter + "://" + e.Path,
		Visibility:    "public",
		LastModified:  e.ModTime.Unix(),
		MimeType:      e.MediaType,
		ExtraMetadata: []string{},
		Basename:      e.Name,
		Storage:       defaultAdapter,
		FileSize:      e.Size,
	}
	if e.Dir {
		f.Type = "dir"
		f.MimeType = ""
	} else {
		f.Extension = strings.TrimPrefix(path.Ext(e.Name), ".")
	}
	return f
}

// storageCall checks the adapter and returns the directory named by the
// path query parameter.
func (s *Server) storageCall(c *call) (string, Response, bool) {
	if _, ok := adapter(c.r); !ok {
		return "", badRequest("unknown adapter"), false
	}
	return clientPath(c.r.URL.Query().Get("path")), Response{}, true
}

func (s *Server) index(c *call, dir string) Response {
	entries, err := s.storage.List(dir)
	if err != nil {
		return s.fail(c, "storage index", err)
	}
	files := make([]vfFile, 0, len(entries))
	for _, e := range entries {
		files = append(files, toVFFile(e))
	}
	return jsonResponse(http.StatusOK, vfIndex{
		Adapter:  defaultAdapter,
		Storages: []string{defaultAdapter},
		Dirname:  defaultAdapter + "://" + dir,
		Files:    files,
	})
}

func (s *Server) handleStorageIndex(c *call) Response {
	dir, resp, ok := s.storageCall(c)
	if !ok {
		return resp
	}
	return s.index(c, dir)
}

func (s *Server) handleStorageSubfolders(c *call) Response {
	dir, resp, ok := s.storageCall(c)
	if !ok {
		return resp
	}
	entries, err := s.storage.List(dir)
	if err != nil {
		return s.fail(c, "storage subfolders", err)
	}
	folders := []vfFile{}
	for _, e := range entries {
		if e.Dir {
			folders = append(folders, toVFFile(e))
		}
	}
	return jsonResponse(http.StatusOK, map[string][]vfFile{"folders": folders})
}

// serveFile streams the file at rel. Directories are refused.
func (s *Server) serveFile(c *call, op, rel string, attachment bool) Response {
	if rel == "" {
		return badRequest("path is required")
	}
	f, e, err := s.storage.Open(rel)
	if err != nil {
		return s.fail(c, op, err)
	}
	ctype, err := s.storage.MediaType(rel)
	if err != nil || ctype == "" {
		ctype = "application/octet-stream"
	}
	return Response{Status: http.StatusOK, Raw: &RawBody{
		Reader:      f,
		Name:        e.Name,
		ModTime:     e.ModTime,
		ContentType: ctype,
		Attachment:  attachment,
	}}
}

func (s *Server) handleStoragePreview(c *call) Response {
	rel, resp, ok := s.storageCall(c)
	if !ok {
		return resp
	}
	return s.serveFile(c, "storage preview", rel, false)
}

func (s *Server) handleStorageDownload(c *call) Response {
	rel, resp, ok := s.storageCall(c)
	if !ok {
		return resp
	}
	return s.serveFile(c, "storage download", rel, true)
}

func (s *Server) handleStoragePublic(c *call) Response {
	return s.serveFile(c, "storage public", mux.Vars(c.r)["path"], false)
}

func (s *Server) handleStorageNewFolder(c *call) Response {
	dir, resp, ok := s.storageCall(c)
	if !ok {
		return resp
	}
	var req newFolderRequest
	if err := decode(c, &req); err != nil {
		return s.fail(c, "storage newfolder", err)
	}
	if _, err := s.storage.CreateDir(dir, req.Name); err != nil {
		return s.fail(c, "storage newfolder", err)
	}
	return s.index(c, dir)
}

func (s *Server) handleStorageRename(c *call) Response {
	dir, resp, ok := s.storageCall(c)
	if !ok {
		return resp
	}
	var req renameRequest
	if err := decode(c, &req); err != nil {
		return s.fail(c, "storage rename", err)
	}
	if _, err := s.storage.Rename(clientPath(req.Item), req.Name); err != nil {
		return s.fail(c, "storage rename", err)
	}
	return s.index(c, dir)
}

func (s *Server) handleStorageMove(c *call) Response {
	dir, resp, ok := s.storageCall(c)
	if !ok {
		return resp
	}
	var req moveRequest
	if err := decode(c, &req); err != nil {
		return s.fail(c, "storage move", err)
	}
	if err := s.storage.Move(itemPaths(req.Items), clientPath(req.Item)); err != nil {
		return s.fail(c, "storage move", err)
	}
	return s.index(c, dir)
}

func (s *Server) handleStorageDelete(c *call) Response {
	dir, resp, ok := s.storageCall(c)
	if !ok {
		return resp
	}
	var req deleteRequest
	if err := decode(c, &req); err != nil {
		return s.fail(c, "storage delete", err)
	}
	var err error
	if len(req.Items) == 1 {
		// A single item typed "file" must not take a directory with it.
		it := req.Items[0]
		err = s.storage.Delete(clientPath(it.Path), it.Type != "file")
	} else {
		err = s.storage.DeleteAll(itemPaths(req.Items))
	}
	if err != nil {
		return s.fail(c, "storage delete", err)
	}
	return s.index(c, dir)
}

// handleStorageUpload streams the multipart "file" part into the directory
// named by the path query parameter. Other parts are skipped.
func (s *Server) handleStorageUpload(c *call) Response {
	dir, resp, ok := s.storageCall(c)
	if !ok {
		return resp
	}
	c.r.Body = http.MaxBytesReader(c.w, c.r.Body, s.maxUpload+maxJSONBody)
	mr, err := c.r.MultipartReader()
	if err != nil {
		return badRequest("multipart body required")
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return badRequest("file part required")
		}
		if err != nil {
			return s.fail(c, "storage upload", uploadErr(err))
		}
		if part.FormName() != "file" {
			_ = part.Close()
			continue
		}
		err = s.upload(dir, part)
		_ = part.Close()
		if err != nil {
			return s.fail(c, "storage upload", uploadErr(err))
		}
		s.log.InfoContext(c.r.Context(), "file uploaded", "dir", dir, "name", part.FileName(), "by", c.uid)
		return s.index(c, dir)
	}
}

func (s *Server) upload(dir string, part *multipart.Part) error {
	_, err := s.storage.Upload(dir, part.FileName(), part, s.maxUpload)
	return err
}

// uploadErr reports an oversized request body as ErrTooLarge.
func uploadErr(err error) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return storage.ErrTooLarge
	}
	return err
}

func itemPaths(items []vfItem) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, clientPath(it.Path))
	}
	return out
}
