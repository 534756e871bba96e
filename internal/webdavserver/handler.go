// Package webdavserver mounts the upload root as a WebDAV share for admins.
package webdavserver

import (
	"context"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"advent/internal/auth"
	"advent/internal/db"

	"golang.org/x/net/webdav"
)

const realm = `Basic realm="advent WebDAV"`

// Sessions recognises an admin session cookie.
type Sessions interface {
	SessionUID(r *http.Request) (int64, bool)
	IsAdmin(r *http.Request, uid int64) bool
}

// UserStore looks up accounts for basic authentication.
type UserStore interface {
	GetUserByName(ctx context.Context, name string) (*db.User, bool, error)
}

// Throttle tracks failed credential checks per client address. When set on
// Options, basic auth shares its budget.
type Throttle interface {
	LoginBlocked(ip string) (bool, time.Duration)
	LoginFailed(ip string)
}

type Options struct {
	Prefix   string
	FS       webdav.FileSystem
	Sessions Sessions
	Users    UserStore
	Throttle Throttle
	Logger   *slog.Logger
}

// Handler serves WebDAV to requests carrying an admin session cookie or
// admin basic credentials.
type Handler struct {
	dav      *webdav.Handler
	sessions Sessions
	users    UserStore
	throttle Throttle
	log      *slog.Logger
}

func New(opt Options) *Handler {
	lg := opt.Logger
	if lg == nil {
		lg = slog.Default()
	}
	lg = lg.With("component", "webdav")
	return &Handler{
		dav: &webdav.Handler{
			Prefix:     strings.TrimSuffix(opt.Prefix, "/"),
			FileSystem: opt.FS,
			LockSystem: webdav.NewMemLS(),
			Logger: func(r *http.Request, err error) {
				if err != nil {
					lg.Warn("webdav request error", "method", r.Method, "path", r.URL.Path, "err", err.Error())
				}
			},
		},
		sessions: opt.Sessions,
		users:    opt.Users,
		throttle: opt.Throttle,
		log:      lg,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.sessionAdmin(r) {
		h.dav.ServeHTTP(w, r)
		return
	}
	username, password, ok := r.BasicAuth()
	if !ok {
		unauthorized(w)
		return
	}
	ip := remoteIP(r)
	if h.throttle != nil {
		if blocked, wait := h.throttle.LoginBlocked(ip); blocked {
			h.log.Warn("webdav login rate limited", "remote_ip", ip)
			w.Header().Set("retry-after", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}
	}
	if !h.basicAdmin(r.Context(), username, password) {
		if h.throttle != nil {
			h.throttle.LoginFailed(ip)
		}
		h.log.Warn("webdav login failed", "user", username, "remote_ip", ip)
		unauthorized(w)
		return
	}
	h.log.Debug("webdav authenticated", "user", username, "method", r.Method, "path", r.URL.Path)
	h.dav.ServeHTTP(w, r)
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", realm)
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}

func (h *Handler) sessionAdmin(r *http.Request) bool {
	if h.sessions == nil {
		return false
	}
	uid, ok := h.sessions.SessionUID(r)
	return ok && h.sessions.IsAdmin(r, uid)
}

func (h *Handler) basicAdmin(ctx context.Context, username, password string) bool {
	if h.users == nil {
		return false
	}
	u, found, err := h.users.GetUserByName(ctx, username)
	if err != nil {
		h.log.Error("webdav user lookup failed", "err", err)
		return false
	}
	if !found || !u.Admin {
		return false
	}
	ok, err := auth.VerifyPassword(password, u.PassHash)
	return err == nil && ok
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}
