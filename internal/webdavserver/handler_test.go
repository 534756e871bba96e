// Package webdavserver tests drive the handler with httptest requests.
package webdavserver

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"advent/internal/auth"
	"advent/internal/db"
	"advent/internal/storage"
)

const testPassword = "correct horse"

type fakeUsers map[string]*db.User

func (f fakeUsers) GetUserByName(_ context.Context, name string) (*db.User, bool, error) {
	u, ok := f[name]
	return u, ok, nil
}

// fakeSessions treats the X-Test-UID header as a session.
type fakeSessions struct{ admins map[int64]bool }

func (f fakeSessions) SessionUID(r *http.Request) (int64, bool) {
	switch r.Header.Get("X-Test-UID") {
	case "1":
		return 1, true
	case "2":
		return 2, true
	}
	return 0, false
}

func (f fakeSessions) IsAdmin(_ *http.Request, uid int64) bool { return f.admins[uid] }

// countingThrottle blocks an address after max recorded failures.
type countingThrottle struct {
	mu       sync.Mutex
	max      int
	failures map[string]int
}

func (c *countingThrottle) LoginBlocked(ip string) (bool, time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failures[ip] >= c.max {
		return true, 30 * time.Second
	}
	return false, 0
}

func (c *countingThrottle) LoginFailed(ip string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[ip]++
}

func newTestHandler(t *testing.T) (*Handler, *storage.Guard) {
	t.Helper()
	lg := slog.New(slog.NewTextHandler(io.Discard, nil))
	g, err := storage.New(t.TempDir(), lg)
	if err != nil {
		t.Fatalf("storage: %v", err)
	}
	p := auth.Argon2Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLen: 16, KeyLen: 32}
	h, err := auth.HashPassword(testPassword, p)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	users := fakeUsers{
		"admin": {UID: 1, Name: "admin", PassHash: h, Admin: true},
		"alice": {UID: 2, Name: "alice", PassHash: h},
	}
	return New(Options{
		Prefix:   "/webdav/",
		FS:       NewFS(g.Fs()),
		Sessions: fakeSessions{admins: map[int64]bool{1: true}},
		Users:    users,
		Logger:   lg,
	}), g
}

func serve(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

// TestWebDAVRequiresAdmin rejects anonymous and non-admin requests.
func TestWebDAVRequiresAdmin(t *testing.T) {
	h, _ := newTestHandler(t)

	w := serve(h, httptest.NewRequest("PROPFIND", "/webdav/", nil))
	if w.Code != http.StatusUnauthorized || w.Header().Get("WWW-Authenticate") == "" {
		t.Fatalf("status=%d", w.Code)
	}

	r := httptest.NewRequest("PROPFIND", "/webdav/", nil)
	r.SetBasicAuth("alice", testPassword)
	if w := serve(h, r); w.Code != http.StatusUnauthorized {
		t.Fatalf("non-admin basic auth: status=%d", w.Code)
	}

	r = httptest.NewRequest("PROPFIND", "/webdav/", nil)
	r.Header.Set("X-Test-UID", "2")
	if w := serve(h, r); w.Code != http.StatusUnauthorized {
		t.Fatalf("non-admin session: status=%d", w.Code)
	}

	r = httptest.NewRequest("PROPFIND", "/webdav/", nil)
	r.SetBasicAuth("admin", "wrong password")
	if w := serve(h, r); w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password: status=%d", w.Code)
	}
}

// TestWebDAVPutGet stores and reads a file through the share.
func TestWebDAVPutGet(t *testing.T) {
	h, g := newTestHandler(t)

	r := httptest.NewRequest(http.MethodPut, "/webdav/note.txt", strings.NewReader("hello"))
	r.SetBasicAuth("admin", testPassword)
	if w := serve(h, r); w.Code != http.StatusCreated {
		t.Fatalf("PUT status=%d body=%s", w.Code, w.Body.String())
	}
	if b, err := os.ReadFile(filepath.Join(g.Root(), "note.txt")); err != nil || string(b) != "hello" {
		t.Fatalf("file not stored: %q %v", b, err)
	}

	r = httptest.NewRequest(http.MethodGet, "/webdav/note.txt", nil)
	r.Header.Set("X-Test-UID", "1")
	w := serve(h, r)
	if w.Code != http.StatusOK || w.Body.String() != "hello" {
		t.Fatalf("GET status=%d body=%s", w.Code, w.Body.String())
	}

	r = httptest.NewRequest("PROPFIND", "/webdav/", nil)
	r.Header.Set("X-Test-UID", "1")
	r.Header.Set("Depth", "1")
	w = serve(h, r)
	if w.Code != http.StatusMultiStatus || !strings.Contains(w.Body.String(), "note.txt") {
		t.Fatalf("PROPFIND status=%d body=%s", w.Code, w.Body.String())
	}
	if strings.Contains(w.Body.String(), ".advent-staging") {
		t.Fatalf("staging directory listed")
	}
}

// TestWebDAVRefusesSymlinkEscape cannot read through links leaving the root.
func TestWebDAVRefusesSymlinkEscape(t *testing.T) {
	h, g := newTestHandler(t)
	outside := t.TempDir()
	if err := os.WriteFile(filepath.Join(outside, "secret"), []byte("x"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.Symlink(outside, filepath.Join(g.Root(), "link")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	r := httptest.NewRequest(http.MethodGet, "/webdav/link/secret", nil)
	r.Header.Set("X-Test-UID", "1")
	w := serve(h, r)
	if w.Code == http.StatusOK {
		t.Fatalf("escape served: status=%d body=%q", w.Code, w.Body.String())
	}
}

// TestWebDAVBasicAuthRateLimited answers 429 once failed logins use up the
// client's budget, even for correct credentials.
func TestWebDAVBasicAuthRateLimited(t *testing.T) {
	h, _ := newTestHandler(t)
	th := &countingThrottle{max: 2, failures: map[string]int{}}
	h.throttle = th

	for i := 0; i < 2; i++ {
		r := httptest.NewRequest("PROPFIND", "/webdav/", nil)
		r.SetBasicAuth("admin", "wrong password")
		if w := serve(h, r); w.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: status=%d", i+1, w.Code)
		}
	}
	if n := th.failures["192.0.2.1"]; n != 2 {
		t.Fatalf("failures recorded=%d", n)
	}

	r := httptest.NewRequest("PROPFIND", "/webdav/", nil)
	r.SetBasicAuth("admin", testPassword)
	w := serve(h, r)
	if w.Code != http.StatusTooManyRequests || w.Header().Get("retry-after") != "30" {
		t.Fatalf("status=%d retry-after=%q", w.Code, w.Header().Get("retry-after"))
	}

	// An admin session is not a password attempt.
	r = httptest.NewRequest("PROPFIND", "/webdav/", nil)
	r.Header.Set("X-Test-UID", "1")
	if w := serve(h, r); w.Code != http.StatusMultiStatus {
		t.Fatalf("session request: status=%d", w.Code)
	}

	r = httptest.NewRequest("PROPFIND", "/webdav/", nil)
	r.RemoteAddr = "198.51.100.7:4000"
	r.SetBasicAuth("admin", testPassword)
	if w := serve(h, r); w.Code != http.StatusMultiStatus {
		t.Fatalf("other address: status=%d", w.Code)
	}
}

// TestWebDAVSuccessfulBasicAuthNotCharged keeps clients that send
// credentials on every request under the limit.
func TestWebDAVSuccessfulBasicAuthNotCharged(t *testing.T) {
	h, _ := newTestHandler(t)
	th := &countingThrottle{max: 1, failures: map[string]int{}}
	h.throttle = th

	for i := 0; i < 3; i++ {
		r := httptest.NewRequest("PROPFIND", "/webdav/", nil)
		r.SetBasicAuth("admin", testPassword)
		if w := serve(h, r); w.Code != http.StatusMultiStatus {
			t.Fatalf("request %d: status=%d", i+1, w.Code)
		}
	}
	if n := th.failures["192.0.2.1"]; n != 0 {
		t.Fatalf("failures recorded=%d", n)
	}
}
