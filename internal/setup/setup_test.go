// Package setup tests run first-time initialisation against temp dirs.
package setup

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"advent/internal/auth"
	"advent/internal/config"
	"advent/internal/db"
)

var cheapHash = auth.Argon2Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLen: 16, KeyLen: 32}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeTestConfig(t *testing.T, dir string) string {
	t.Helper()
	c := config.Default()
	c.Session.Secret = strings.Repeat("s", config.MinSecretLen)
	c.Setup.Start = "2024-12-01"
	c.Setup.Days = 3
	c.Database.Path = filepath.Join(dir, "data", "advent.db")
	c.Server.UploadDir = filepath.Join(dir, "data", "uploads")
	c.Server.TLS.CertPath = filepath.Join(dir, "tls", "tls.crt")
	c.Server.TLS.KeyPath = filepath.Join(dir, "tls", "tls.key")
	c.SFTP.Enable = true
	c.SFTP.HostKeyPath = filepath.Join(dir, "ssh", "host_key")
	p := filepath.Join(dir, "advent.yaml")
	if err := config.Save(p, c); err != nil {
		t.Fatalf("Save: %v", err)
	}
	return p
}

func openConfigDB(t *testing.T, path string) *db.DB {
	t.Helper()
	c, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	d, err := db.Open(context.Background(), c.Database, testLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

// TestRunInitialisesInstallation creates the admin, posts and key material.
func TestRunInitialisesInstallation(t *testing.T) {
	dir := t.TempDir()
	cfg := writeTestConfig(t, dir)
	var out bytes.Buffer
	opt := Options{ConfigPath: cfg, GeneratePassword: true, Out: &out, Logger: testLogger(), Hash: &cheapHash}

	res, err := Run(context.Background(), opt)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ConfigWritten || !res.AdminCreated || res.PostsCreated != 3 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if !strings.Contains(out.String(), "'admin'") {
		t.Fatalf("generated password not printed: %q", out.String())
	}
	for _, p := range []string{"data/uploads", "tls/tls.crt", "tls/tls.key", "ssh/host_key"} {
		if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(p))); err != nil {
			t.Fatalf("missing %s: %v", p, err)
		}
	}

	res, err = Run(context.Background(), opt)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if res.AdminCreated || res.PostsCreated != 0 {
		t.Fatalf("second run changed state: %+v", res)
	}

	d := openConfigDB(t, cfg)
	posts, err := d.ListPosts(context.Background())
	if err != nil {
		t.Fatalf("ListPosts: %v", err)
	}
	if len(posts) != 3 || posts[0].Date != "2024-12-01" || posts[2].Date != "2024-12-03" {
		t.Fatalf("unexpected posts: %+v", posts)
	}
	u, ok, err := d.GetUserByName(context.Background(), "admin")
	if err != nil || !ok || !u.Admin {
		t.Fatalf("admin missing: %+v ok=%v err=%v", u, ok, err)
	}
}

// TestRunWritesDefaultConfig creates a config with a random secret.
func TestRunWritesDefaultConfig(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg := filepath.Join(dir, "advent.yaml")
	res, err := Run(context.Background(), Options{
		ConfigPath:    cfg,
		Start:         "2024-12-01",
		AdminPassword: "initial password",
		Logger:        testLogger(),
		Hash:          &cheapHash,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.ConfigWritten || res.PostsCreated != 24 {
		t.Fatalf("unexpected result: %+v", res)
	}
	c, err := config.Load(cfg)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(c.Session.Secret) < config.MinSecretLen || c.Setup.Start != "2024-12-01" {
		t.Fatalf("unexpected config: %+v", c.Session)
	}
}

// TestRunRejectsWeakPassword keeps the admin account unset.
func TestRunRejectsWeakPassword(t *testing.T) {
	cfg := writeTestConfig(t, t.TempDir())
	_, err := Run(context.Background(), Options{ConfigPath: cfg, AdminPassword: "short", Logger: testLogger(), Hash: &cheapHash})
	if err == nil {
		t.Fatalf("expected weak password to be rejected")
	}
}

// TestResetAdmin replaces the admin password.
func TestResetAdmin(t *testing.T) {
	cfg := writeTestConfig(t, t.TempDir())
	ctx := context.Background()
	if _, err := Run(ctx, Options{ConfigPath: cfg, AdminPassword: "first password", Logger: testLogger(), Hash: &cheapHash}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	t.Setenv(AdminPasswordEnv, "second password")
	if err := ResetAdmin(ctx, ResetAdminOptions{ConfigPath: cfg, AdminPasswordEnv: true, Logger: testLogger(), Hash: &cheapHash}); err != nil {
		t.Fatalf("ResetAdmin: %v", err)
	}
	d := openConfigDB(t, cfg)
	u, _, err := d.GetUserByName(ctx, "admin")
	if err != nil {
		t.Fatalf("GetUserByName: %v", err)
	}
	if ok, _ := auth.VerifyPassword("second password", u.PassHash); !ok {
		t.Fatalf("password not reset")
	}

	err = ResetAdmin(ctx, ResetAdminOptions{ConfigPath: cfg, AdminPassword: "x", AdminPasswordEnv: true, Logger: testLogger()})
	if err == nil {
		t.Fatalf("expected conflicting password sources to fail")
	}
}

// TestReadPasswordPair retries until both entries match.
func TestReadPasswordPair(t *testing.T) {
	in := bufio.NewReader(strings.NewReader("one password\nother password\nsame password\nsame password\n"))
	var prompts bytes.Buffer
	got, err := readPasswordPair(in, &prompts, "Password")
	if err != nil {
		t.Fatalf("readPasswordPair: %v", err)
	}
	if got != "same password" || !strings.Contains(prompts.String(), "do not match") {
		t.Fatalf("got=%q prompts=%q", got, prompts.String())
	}
}
