package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/sessions"
)

const (
	cookieName = "session"

	keyUID   = "uid"
	keyName  = "name"
	keyAdmin = "admin"
	keyToken = "token"
)

// newCookieStore builds the signed and encrypted cookie envelope. Only the
// token inside is trusted; uid, name and admin are for display.
func newCookieStore(secret string, ttl time.Duration, secure bool) *sessions.CookieStore {
	st := sessions.NewCookieStore(deriveKey(secret, "cookie-hash"), deriveKey(secret, "cookie-block"))
	st.Options = &sessions.Options{
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	}
	st.MaxAge(int(ttl.Seconds()))
	return st
}

// viewer is the identity payload of welcome, login and logout.
type viewer struct {
	UID      int64  `json:"uid"`
	Name     string `json:"name"`
	Admin    bool   `json:"admin"`
	LoggedIn bool   `json:"logged_in"`
}

var anonymous = viewer{}

func (s *Server) saveSession(c *call, v viewer, token string) error {
	sess, _ := s.sessions.Get(c.r, cookieName)
	sess.Values[keyUID] = v.UID
	sess.Values[keyName] = v.Name
	sess.Values[keyAdmin] = v.Admin
	sess.Values[keyToken] = token
	return sess.Save(c.r, c.w)
}

func (s *Server) clearSession(c *call) {
	sess, _ := s.sessions.Get(c.r, cookieName)
	sess.Values = map[interface{}]interface{}{}
	opts := *s.sessions.Options
	opts.MaxAge = -1
	sess.Options = &opts
	if err := sess.Save(c.r, c.w); err != nil {
		s.log.Error("clear session", "err", err)
	}
}
