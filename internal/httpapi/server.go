// Package httpapi exposes the advent JSON API.
//
// Every endpoint is declared once in the route table with the access level
// it requires. The dispatcher authenticates and authorizes before the
// handler runs and serializes the Response the handler returns.
package httpapi

import (
	"crypto/sha256"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"advent/internal/auth"
	"advent/internal/authz"
	"advent/internal/config"
	"advent/internal/db"
	"advent/internal/storage"

	"github.com/gorilla/mux"
	"github.com/gorilla/sessions"
)

// Options carries the collaborators and settings of a Server.
type Options struct {
	DB      *db.DB
	Codec   *auth.Codec
	Storage *storage.Guard
	Config  config.Config
	Logger  *slog.Logger
	// Now overrides the clock used for post availability.
	Now func() time.Time
	// Hash overrides the Argon2id parameters for new password hashes.
	Hash *auth.Argon2Params
}

// Server holds the API collaborators and the route table.
type Server struct {
	db       *db.DB
	codec    *auth.Codec
	authz    *authz.Evaluator
	storage  *storage.Guard
	sessions *sessions.CookieStore
	log      *slog.Logger

	setup            config.SetupConfig
	openRegistration bool
	maxUpload        int64
	hash             auth.Argon2Params
	policy           postPolicy
	loginLimiter     *fixedWindowLimiter

	router *mux.Router
}

// New wires a Server from opt and builds its routes.
func New(opt Options) (*Server, error) {
	if opt.DB == nil || opt.Codec == nil || opt.Storage == nil {
		return nil, errors.New("db, codec and storage are required")
	}
	lg := opt.Logger
	if lg == nil {
		lg = slog.Default()
	}
	now := opt.Now
	if now == nil {
		now = time.Now
	}
	c := opt.Config

	s := &Server{
		db:               opt.DB,
		codec:            opt.Codec,
		authz:            authz.New(opt.Codec, opt.DB, lg),
		storage:          opt.Storage,
		sessions:         newCookieStore(c.Session.Secret, opt.Codec.TTL(), c.TLSEnabled()),
		log:              lg.With("component", "http"),
		setup:            c.Setup,
		openRegistration: c.Server.OpenRegistration,
		maxUpload:        int64(c.Server.MaxUploadMB) << 20,
		policy:           postPolicy{now: now},
		loginLimiter:     newFixedWindowLimiter(c.Server.LoginRatePerMinute, time.Minute),
	}
	s.hash = auth.DefaultArgon2Params()
	if opt.Hash != nil {
		s.hash = *opt.Hash
	}
	if s.maxUpload <= 0 {
		s.maxUpload = 64 << 20
	}
	s.router = s.buildRouter()
	return s, nil
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.withRequestLog(s.withRecover(withSecurityHeaders(s.router)))
}

// Mount serves h for every path below prefix.
func (s *Server) Mount(prefix string, h http.Handler) {
	s.router.PathPrefix(prefix).Handler(h)
}

// Close releases background resources.
func (s *Server) Close() {
	s.loginLimiter.Stop()
}

// LoginBlocked reports whether ip has run out of login attempts and how long
// it must wait. The budget is shared with /api/login.
func (s *Server) LoginBlocked(ip string) (bool, time.Duration) {
	return s.loginLimiter.Blocked(ip)
}

// LoginFailed charges a failed credential check against ip.
func (s *Server) LoginFailed(ip string) {
	s.loginLimiter.Allow(ip)
}

// SessionUID returns the uid of a request's valid session cookie.
func (s *Server) SessionUID(r *http.Request) (int64, bool) {
	sess, err := s.sessions.Get(r, cookieName)
	if err != nil {
		return 0, false
	}
	tok, _ := sess.Values[keyToken].(string)
	return s.authz.CurrentUID(tok)
}

// IsAdmin reports whether uid holds the admin flag.
func (s *Server) IsAdmin(r *http.Request, uid int64) bool {
	return s.authz.IsAdmin(r.Context(), uid)
}

func deriveKey(secret, purpose string) []byte {
	sum := sha256.Sum256([]byte(purpose + "\x00" + secret))
	return sum[:]
}
