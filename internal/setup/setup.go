// Package setup prepares a fresh installation: configuration, schema, the
// admin account, the post calendar, the upload root and key material.
package setup

import (
	"bufio"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"advent/internal/auth"
	"advent/internal/authz"
	"advent/internal/config"
	"advent/internal/db"
	"advent/internal/storage"
	"advent/internal/validate"

	"golang.org/x/crypto/ssh"
	"golang.org/x/term"
)

// AdminPasswordEnv names the variable read by -admin-password-env.
const AdminPasswordEnv = "ADVENT_ADMIN_PASSWORD"

const (
	secretBytes       = 48
	generatedPassword = 20
)

type Options struct {
	ConfigPath string
	// Start overrides setup.start when a new config is written.
	Start string

	GeneratePassword bool
	AdminPassword    string
	AdminPasswordEnv bool

	// Out receives the generated admin password. Defaults to stdout.
	Out    io.Writer
	Logger *slog.Logger
	// Hash overrides the Argon2id parameters.
	Hash *auth.Argon2Params
}

// Result summarises what Run changed.
type Result struct {
	ConfigWritten bool
	AdminCreated  bool
	PostsCreated  int
}

// Run initialises everything the server needs. It is safe to run again:
// existing config, accounts, posts and keys are kept.
func Run(ctx context.Context, opt Options) (Result, error) {
	var res Result
	if opt.ConfigPath == "" {
		return res, errors.New("config path is required")
	}
	lg := opt.Logger
	if lg == nil {
		lg = slog.Default()
	}
	out := opt.Out
	if out == nil {
		out = os.Stdout
	}

	if !fileExists(opt.ConfigPath) {
		if err := writeDefaultConfig(opt.ConfigPath, opt.Start); err != nil {
			return res, err
		}
		res.ConfigWritten = true
		lg.Info("config written", "path", opt.ConfigPath)
	}
	c, err := config.Load(opt.ConfigPath)
	if err != nil {
		return res, err
	}
	if c.Database.Driver == "sqlite" {
		if err := os.MkdirAll(filepath.Dir(c.Database.Path), 0o700); err != nil {
			return res, err
		}
	}

	d, err := db.Open(ctx, c.Database, lg)
	if err != nil {
		return res, err
	}
	defer d.Close()
	if c.Database.Driver == "sqlite" {
		_ = os.Chmod(c.Database.Path, 0o600)
	}

	hash := auth.DefaultArgon2Params()
	if opt.Hash != nil {
		hash = *opt.Hash
	}
	created, err := ensureAdmin(ctx, d, opt, hash, out)
	if err != nil {
		return res, err
	}
	res.AdminCreated = created

	if res.PostsCreated, err = createPosts(ctx, d, c.Setup); err != nil {
		return res, err
	}
	lg.Info("post calendar ready", "start", c.Setup.Start, "days", c.Setup.Days, "created", res.PostsCreated)

	if _, err := storage.New(c.Server.UploadDir, lg); err != nil {
		return res, fmt.Errorf("upload dir: %w", err)
	}
	if c.TLSEnabled() {
		if err := ensureTLSCert(c.Server.TLS.CertPath, c.Server.TLS.KeyPath); err != nil {
			return res, fmt.Errorf("tls: %w", err)
		}
	}
	if c.SFTP.Enable {
		if err := ensureSSHHostKey(c.SFTP.HostKeyPath); err != nil {
			return res, fmt.Errorf("ssh host key: %w", err)
		}
	}
	return res, nil
}

// writeDefaultConfig writes defaults with a fresh session secret. The
// calendar starts on start, or on December 1st of the current year.
func writeDefaultConfig(path, start string) error {
	c := config.Default()
	secret, err := auth.NewToken(secretBytes)
	if err != nil {
		return err
	}
	c.Session.Secret = secret
	if start == "" {
		start = time.Date(time.Now().Year(), time.December, 1, 0, 0, 0, 0, time.Local).Format(validate.DayLayout)
	}
	if _, err := validate.Day(start); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	c.Setup.Start = start
	return config.Save(path, c)
}

// ensureAdmin creates the admin account unless it exists.
func ensureAdmin(ctx context.Context, d *db.DB, opt Options, p auth.Argon2Params, out io.Writer) (bool, error) {
	_, found, err := d.GetUserByName(ctx, authz.AdminAccount)
	if err != nil {
		return false, err
	}
	if found {
		return false, nil
	}

	var pass string
	if opt.GeneratePassword {
		if pass, err = auth.NewPassword(generatedPassword); err != nil {
			return false, err
		}
	} else if pass, err = resolveAdminPassword("Set initial admin password", opt.AdminPassword, opt.AdminPasswordEnv); err != nil {
		return false, err
	}
	if err := validate.Password(pass); err != nil {
		return false, err
	}
	h, err := auth.HashPassword(pass, p)
	if err != nil {
		return false, err
	}
	if _, err := d.CreateUser(ctx, authz.AdminAccount, h, true); err != nil {
		return false, err
	}
	if opt.GeneratePassword {
		fmt.Fprintf(out, "admin user is: '%s' '%s'\n", authz.AdminAccount, pass)
	}
	return true, nil
}

// createPosts inserts one empty post per calendar day. Existing days are
// skipped.
func createPosts(ctx context.Context, d *db.DB, s config.SetupConfig) (int, error) {
	start, err := validate.Day(s.Start)
	if err != nil {
		return 0, err
	}
	n := 0
	for i := 0; i < s.Days; i++ {
		day := start.AddDate(0, 0, i).Format(validate.DayLayout)
		_, created, err := d.CreatePost(ctx, day)
		if err != nil {
			return n, err
		}
		if created {
			n++
		}
	}
	return n, nil
}

func promptPassword(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		for {
			fmt.Fprintf(os.Stderr, "%s: ", label)
			p1b, err := term.ReadPassword(fd)
			fmt.Fprintln(os.Stderr)
			if err != nil {
				return "", err
			}
			fmt.Fprint(os.Stderr, "Confirm password: ")
			p2b, err := term.ReadPassword(fd)
			fmt.Fprintln(os.Stderr)
			if err != nil {
				return "", err
			}
			p1 := strings.TrimSpace(string(p1b))
			if msg := checkPair(p1, strings.TrimSpace(string(p2b))); msg != "" {
				fmt.Fprintln(os.Stderr, msg)
				continue
			}
			return p1, nil
		}
	}

	// Piped input: no echo suppression.
	return readPasswordPair(bufio.NewReader(os.Stdin), os.Stderr, label)
}

func readPasswordPair(r *bufio.Reader, w io.Writer, label string) (string, error) {
	for {
		fmt.Fprintf(w, "%s: ", label)
		p1, err := r.ReadString('\n')
		if err != nil {
			return "", err
		}
		fmt.Fprint(w, "Confirm password: ")
		p2, err := r.ReadString('\n')
		if err != nil {
			return "", err
		}
		p1 = strings.TrimSpace(p1)
		if msg := checkPair(p1, strings.TrimSpace(p2)); msg != "" {
			fmt.Fprintln(w, msg)
			continue
		}
		return p1, nil
	}
}

func checkPair(p1, p2 string) string {
	if p1 == "" {
		return "password cannot be empty"
	}
	if p1 != p2 {
		return "passwords do not match"
	}
	if err := validate.Password(p1); err != nil {
		return err.Error()
	}
	return ""
}

func ensureTLSCert(certPath, keyPath string) error {
	if fileExists(certPath) && fileExists(keyPath) {
		_, err := tls.LoadX509KeyPair(certPath, keyPath)
		return err
	}

	if err := os.MkdirAll(filepath.Dir(certPath), 0o700); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(keyPath), 0o700); err != nil {
		return err
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return err
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return err
	}

	tmpl := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: "advent"},
		NotBefore:             time.Now().Add(-5 * time.Minute),
		NotAfter:              time.Now().Add(3650 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost"},
	}

	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, pub, priv)
	if err != nil {
		return err
	}
	if err := os.WriteFile(certPath, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600); err != nil {
		return err
	}

	b, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return err
	}
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: b}), 0o600); err != nil {
		return err
	}

	_, err = tls.LoadX509KeyPair(certPath, keyPath)
	return err
}

func ensureSSHHostKey(path string) error {
	if fileExists(path) {
		_, err := LoadSSHSigner(path)
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return err
	}
	sshPriv, err := ssh.MarshalPrivateKey(priv, "")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, pem.EncodeToMemory(sshPriv), 0o600); err != nil {
		return err
	}
	_, err = LoadSSHSigner(path)
	return err
}

// LoadSSHSigner reads the SFTP host key written by setup.
func LoadSSHSigner(path string) (ssh.Signer, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ssh.ParsePrivateKey(b)
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}
