package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
)

type access int

const (
	public access = iota
	authenticated
	adminOnly
)

// route is one entry of the API table. query pairs are passed to
// mux.Route.Queries; routes with a query must precede the same path without.
type route struct {
	method string
	path   string
	query  []string
	access access
	handle handlerFunc
}

func (s *Server) routes() []route {
	return []route{
		{http.MethodGet, "/api/welcome", nil, public, s.handleWelcome},
		{http.MethodPost, "/api/login", nil, public, s.handleLogin},
		{http.MethodGet, "/api/logout", nil, public, s.handleLogout},

		{http.MethodGet, "/api/users", nil, authenticated, s.handleListUsers},
		{http.MethodPost, "/api/user", nil, authenticated, s.handleAddUser},
		{http.MethodPost, "/api/user/modify", nil, adminOnly, s.handleModifyUser},
		{http.MethodDelete, "/api/user", nil, adminOnly, s.handleDeleteUser},

		{http.MethodGet, "/api/posts/config", nil, authenticated, s.handlePostsConfig},
		{http.MethodGet, "/api/posts", []string{"pid", "{pid}"}, authenticated, s.handleGetPost},
		{http.MethodGet, "/api/posts", nil, adminOnly, s.handleListPosts},
		{http.MethodPost, "/api/post", nil, adminOnly, s.handleSavePost},

		{http.MethodGet, "/api/comments", []string{"pid", "{pid}"}, authenticated, s.handleGetComments},
		{http.MethodGet, "/api/comments", nil, adminOnly, s.handleListComments},
		{http.MethodPost, "/api/comment", nil, authenticated, s.handleAddComment},
		{http.MethodPost, "/api/comment/answer", nil, adminOnly, s.handleAnswerComment},
		{http.MethodDelete, "/api/comment", nil, adminOnly, s.handleDeleteComment},

		{http.MethodGet, "/api/storage/browse", []string{"q", "index"}, adminOnly, s.handleStorageIndex},
		{http.MethodGet, "/api/storage/browse", []string{"q", "subfolders"}, adminOnly, s.handleStorageSubfolders},
		{http.MethodGet, "/api/storage/browse", []string{"q", "preview"}, adminOnly, s.handleStoragePreview},
		{http.MethodGet, "/api/storage/browse", []string{"q", "download"}, adminOnly, s.handleStorageDownload},
		{http.MethodPost, "/api/storage/browse", []string{"q", "newfolder"}, adminOnly, s.handleStorageNewFolder},
		{http.MethodPost, "/api/storage/browse", []string{"q", "rename"}, adminOnly, s.handleStorageRename},
		{http.MethodPost, "/api/storage/browse", []string{"q", "move"}, adminOnly, s.handleStorageMove},
		{http.MethodPost, "/api/storage/browse", []string{"q", "delete"}, adminOnly, s.handleStorageDelete},
		{http.MethodPost, "/api/storage/browse", []string{"q", "upload"}, adminOnly, s.handleStorageUpload},
		{http.MethodPost, "/api/storage/upload", nil, adminOnly, s.handleStorageUpload},
		{http.MethodGet, "/api/storage/public/{path:.*}", nil, adminOnly, s.handleStoragePublic},
	}
}

func (s *Server) buildRouter() *mux.Router {
	r := mux.NewRouter()
	for _, rt := range s.routes() {
		m := r.Handle(rt.path, s.dispatch(rt)).Methods(rt.method)
		if len(rt.query) > 0 {
			m.Queries(rt.query...)
		}
	}
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	})
	return r
}

// dispatch runs the access check for rt and then its handler.
func (s *Server) dispatch(rt route) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := &call{w: w, r: r}
		if rt.access != public {
			uid, ok := s.SessionUID(r)
			if !ok {
				s.write(c, errorResponse(http.StatusForbidden, "not authenticated"))
				return
			}
			c.uid = uid
			if rt.access == adminOnly && !s.authz.IsAdmin(r.Context(), uid) {
				s.write(c, errorResponse(http.StatusForbidden, "admin required"))
				return
			}
		}
		s.write(c, rt.handle(c))
	})
}
