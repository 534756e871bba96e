// Package httpapi tests drive the API through the full handler chain with
// a real SQLite store and a temporary upload root.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"advent/internal/auth"
	"advent/internal/config"
	"advent/internal/db"
	"advent/internal/storage"
)

const (
	testSecret   = "0123456789abcdef0123456789abcdef"
	testPassword = "correct horse"
)

// testHash keeps Argon2id cheap in tests.
var testHash = auth.Argon2Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLen: 16, KeyLen: 32}

// testLogger silences logs during handler tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

// testToday is the fixed local calendar day the post policy sees.
var testToday = time.Date(2024, 12, 10, 12, 0, 0, 0, time.Local)

type testEnv struct {
	t     *testing.T
	srv   *Server
	h     http.Handler
	db    *db.DB
	store *storage.Guard

	adminUID int64
	userUID  int64
	// posts maps YYYY-MM-DD to pid.
	posts map[string]int64
}

type envOption func(*config.Config)

func withOpenRegistration(c *config.Config) { c.Server.OpenRegistration = true }

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	ctx := context.Background()
	lg := testLogger()

	d, err := db.OpenSQLite(ctx, filepath.Join(t.TempDir(), "advent.db"), lg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	root := filepath.Join(t.TempDir(), "a", "b", "uploads")
	st, err := storage.New(root, lg)
	if err != nil {
		t.Fatalf("storage: %v", err)
	}

	cfg := config.Default()
	cfg.Session.Secret = testSecret
	cfg.Session.Expire = time.Hour
	cfg.Setup.Start = "2024-12-01"
	cfg.Server.MaxUploadMB = 1
	cfg.Server.LoginRatePerMinute = 1000
	for _, o := range opts {
		o(&cfg)
	}

	codec, err := auth.NewCodec([]byte(cfg.Session.Secret), cfg.Session.Expire)
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	hash := testHash
	srv, err := New(Options{
		DB:      d,
		Codec:   codec,
		Storage: st,
		Config:  cfg,
		Logger:  lg,
		Now:     func() time.Time { return testToday },
		Hash:    &hash,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(srv.Close)

	e := &testEnv{t: t, srv: srv, h: srv.Handler(), db: d, store: st, posts: map[string]int64{}}
	e.adminUID = e.createUser("admin", true)
	e.userUID = e.createUser("alice", false)
	for _, day := range []string{"2024-12-09", "2024-12-10", "2024-12-11"} {
		pid, _, err := d.CreatePost(ctx, day)
		if err != nil {
			t.Fatalf("CreatePost: %v", err)
		}
		if _, err := d.SetPostContent(ctx, pid, "door "+day); err != nil {
			t.Fatalf("SetPostContent: %v", err)
		}
		e.posts[day] = pid
	}
	return e
}

func (e *testEnv) createUser(name string, admin bool) int64 {
	e.t.Helper()
	h, err := auth.HashPassword(testPassword, testHash)
	if err != nil {
		e.t.Fatalf("hash: %v", err)
	}
	uid, err := e.db.CreateUser(context.Background(), name, h, admin)
	if err != nil {
		e.t.Fatalf("CreateUser: %v", err)
	}
	return uid
}

// do sends a request through the full handler chain. body may be nil, a
// string, or a value encoded as JSON.
func (e *testEnv) do(method, target string, body any, cookies []*http.Cookie) *httptest.ResponseRecorder {
	e.t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			e.t.Fatalf("marshal: %v", err)
		}
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, r)
	if r != nil {
		req.Header.Set("content-type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	e.h.ServeHTTP(w, req)
	return w
}

// login returns the session cookie for name.
func (e *testEnv) login(name string) []*http.Cookie {
	e.t.Helper()
	w := e.do(http.MethodPost, "/api/login", map[string]string{"user": name, "password": testPassword}, nil)
	if w.Code != http.StatusOK {
		e.t.Fatalf("login %s: status=%d body=%s", name, w.Code, strings.TrimSpace(w.Body.String()))
	}
	cookies := w.Result().Cookies()
	if len(cookies) == 0 {
		e.t.Fatalf("login %s: no cookie", name)
	}
	return cookies
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status=%d want=%d body=%s", w.Code, want, strings.TrimSpace(w.Body.String()))
	}
}
