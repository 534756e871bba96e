package httpapi

import (
	"errors"
	"net/http"

	"advent/internal/auth"
	"advent/internal/validate"
)

type loginRequest struct {
	User     string `json:"user"`
	Password string `json:"password"`
}

func (r *loginRequest) validate() error {
	if r.User == "" || r.Password == "" {
		return errors.New("user and password are required")
	}
	return nil
}

// handleWelcome reports who the cookie belongs to. Fields are read fresh
// from the store. A cookie that fails to verify, or names a deleted user,
// is cleared.
func (s *Server) handleWelcome(c *call) Response {
	uid, ok := s.SessionUID(c.r)
	if !ok {
		if _, err := c.r.Cookie(cookieName); err == nil {
			s.clearSession(c)
		}
		return jsonResponse(http.StatusOK, anonymous)
	}
	u, found, err := s.db.GetUserByID(c.r.Context(), uid)
	if err != nil {
		return s.fail(c, "welcome", err)
	}
	if !found {
		s.clearSession(c)
		return jsonResponse(http.StatusOK, anonymous)
	}
	return jsonResponse(http.StatusOK, viewer{UID: u.UID, Name: u.Name, Admin: u.Admin, LoggedIn: true})
}

func (s *Server) handleLogin(c *call) Response {
	ip := clientIP(c.r)
	if ok, wait := s.loginLimiter.Allow(ip); !ok {
		c.w.Header().Set("retry-after", retryAfterSeconds(wait))
		s.log.WarnContext(c.r.Context(), "login rate limited", "remote_ip", ip)
		return errorResponse(http.StatusTooManyRequests, "too many attempts")
	}

	var req loginRequest
	if err := decode(c, &req); err != nil {
		return s.fail(c, "login", err)
	}
	name, err := validate.Username(req.User)
	if err != nil {
		return errorResponse(http.StatusUnauthorized, "invalid credentials")
	}
	ctx := c.r.Context()
	u, found, err := s.db.GetUserByName(ctx, name)
	if err != nil {
		return s.fail(c, "login", err)
	}
	if !found {
		s.log.InfoContext(ctx, "login failed", "user", name, "remote_ip", ip)
		return errorResponse(http.StatusUnauthorized, "invalid credentials")
	}
	ok, err := auth.VerifyPassword(req.Password, u.PassHash)
	if err != nil {
		s.log.ErrorContext(ctx, "password verify failed", "uid", u.UID, "err", err)
	}
	if !ok {
		s.log.InfoContext(ctx, "login failed", "user", name, "remote_ip", ip)
		return errorResponse(http.StatusUnauthorized, "invalid credentials")
	}
	if auth.NeedsRehash(u.PassHash) {
		s.rehash(c, u.UID, req.Password)
	}

	token, err := s.codec.Issue(u.UID)
	if err != nil {
		return s.fail(c, "issue token", err)
	}
	v := viewer{UID: u.UID, Name: u.Name, Admin: u.Admin, LoggedIn: true}
	if err := s.saveSession(c, v, token); err != nil {
		return s.fail(c, "save session", err)
	}
	s.log.InfoContext(ctx, "login", "uid", u.UID, "remote_ip", ip)
	return jsonResponse(http.StatusOK, v)
}

// rehash upgrades a legacy hash after a successful login. Failure is
// logged and does not affect the login.
func (s *Server) rehash(c *call, uid int64, password string) {
	h, err := auth.HashPassword(password, s.hash)
	if err == nil {
		err = s.db.SetUserPasswordHash(c.r.Context(), uid, h)
	}
	if err != nil {
		s.log.WarnContext(c.r.Context(), "password rehash failed", "uid", uid, "err", err)
	}
}

func (s *Server) handleLogout(c *call) Response {
	s.clearSession(c)
	return jsonResponse(http.StatusOK, anonymous)
}
