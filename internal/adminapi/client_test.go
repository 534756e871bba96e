// Package adminapi tests run the client against a live API server.
package adminapi

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"advent/internal/auth"
	"advent/internal/config"
	"advent/internal/db"
	"advent/internal/httpapi"
	"advent/internal/storage"
)

const testPassword = "correct horse"

var testHash = auth.Argon2Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLen: 16, KeyLen: 32}

type fixture struct {
	client *Client
	db     *db.DB
	pid    int64
	alice  int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	lg := slog.New(slog.NewTextHandler(io.Discard, nil))
	d, err := db.OpenSQLite(ctx, filepath.Join(t.TempDir(), "advent.db"), lg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	st, err := storage.New(t.TempDir(), lg)
	if err != nil {
		t.Fatalf("storage: %v", err)
	}
	cfg := config.Default()
	cfg.Session.Secret = "0123456789abcdef0123456789abcdef"
	cfg.Setup.Start = "2024-12-01"
	cfg.Server.LoginRatePerMinute = 1000
	codec, err := auth.NewCodec([]byte(cfg.Session.Secret), time.Hour)
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	hash := testHash
	srv, err := httpapi.New(httpapi.Options{DB: d, Codec: codec, Storage: st, Config: cfg, Logger: lg, Hash: &hash})
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	t.Cleanup(srv.Close)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	f := &fixture{db: d}
	for _, u := range []struct {
		name  string
		admin bool
	}{{"admin", true}, {"alice", false}} {
		h, err := auth.HashPassword(testPassword, testHash)
		if err != nil {
			t.Fatalf("hash: %v", err)
		}
		uid, err := d.CreateUser(ctx, u.name, h, u.admin)
		if err != nil {
			t.Fatalf("CreateUser: %v", err)
		}
		if !u.admin {
			f.alice = uid
		}
	}
	if f.pid, _, err = d.CreatePost(ctx, "2024-12-01"); err != nil {
		t.Fatalf("CreatePost: %v", err)
	}

	if f.client, err = NewClient(ClientOptions{Addr: ts.URL}); err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return f
}

// TestClientLoginAndUsers covers the session and user administration calls.
func TestClientLoginAndUsers(t *testing.T) {
	f := newFixture(t)
	c := f.client

	if _, err := c.ListUsers(); !IsStatus(err, http.StatusForbidden) {
		t.Fatalf("expected 403 before login, got %v", err)
	}
	if _, err := c.Login("admin", "wrong password"); !IsStatus(err, http.StatusUnauthorized) {
		t.Fatalf("expected 401, got %v", err)
	}
	v, err := c.Login("admin", testPassword)
	if err != nil || !v.Admin || !v.LoggedIn {
		t.Fatalf("Login: %+v %v", v, err)
	}
	if w, err := c.Welcome(); err != nil || w.Name != "admin" {
		t.Fatalf("Welcome: %+v %v", w, err)
	}

	users, err := c.AddUser("bob", "another password")
	if err != nil || len(users) != 3 {
		t.Fatalf("AddUser: %+v %v", users, err)
	}
	bob := users[2]
	if bob.Name != "bob" || bob.Admin {
		t.Fatalf("unexpected new user %+v", bob)
	}
	if _, err := c.AddUser("bob", "another password"); !IsStatus(err, http.StatusConflict) {
		t.Fatalf("expected 409, got %v", err)
	}
	if users, err = c.ModifyUser(bob.UID, true, ""); err != nil || !users[2].Admin {
		t.Fatalf("ModifyUser: %+v %v", users, err)
	}
	if users, err = c.DeleteUser(bob.UID); err != nil || len(users) != 2 {
		t.Fatalf("DeleteUser: %+v %v", users, err)
	}
	if _, err := c.DeleteUser(users[0].UID); !IsStatus(err, http.StatusForbidden) {
		t.Fatalf("deleting admin should be refused, got %v", err)
	}

	if err := c.Logout(); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if w, err := c.Welcome(); err != nil || w.LoggedIn {
		t.Fatalf("expected anonymous after logout: %+v %v", w, err)
	}
}

// TestClientPostsAndComments covers the moderation calls.
func TestClientPostsAndComments(t *testing.T) {
	f := newFixture(t)
	c := f.client
	cid, err := f.db.CreateComment(context.Background(), f.pid, f.alice, "hello")
	if err != nil {
		t.Fatalf("CreateComment: %v", err)
	}
	if _, err := c.Login("admin", testPassword); err != nil {
		t.Fatalf("Login: %v", err)
	}

	posts, err := c.ListPosts()
	if err != nil || len(posts) != 1 {
		t.Fatalf("ListPosts: %+v %v", posts, err)
	}
	p, err := c.SavePost(f.pid, "first door")
	if err != nil || p.Content != "first door" {
		t.Fatalf("SavePost: %+v %v", p, err)
	}

	cs, err := c.ListComments()
	if err != nil || len(cs) != 1 || cs[0].Name != "alice" || cs[0].Answer != nil {
		t.Fatalf("ListComments: %+v %v", cs, err)
	}
	cm, err := c.AnswerComment(cid, "thanks")
	if err != nil || cm.Answer == nil || *cm.Answer != "thanks" {
		t.Fatalf("AnswerComment: %+v %v", cm, err)
	}
	if cs, err = c.DeleteComment(cid); err != nil || len(cs) != 0 {
		t.Fatalf("DeleteComment: %+v %v", cs, err)
	}
	if _, err := c.DeleteComment(cid); !IsStatus(err, http.StatusBadRequest) {
		t.Fatalf("expected 400 for unknown comment, got %v", err)
	}
}
