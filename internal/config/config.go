// Package config loads and validates advent YAML configuration.
// A .env file next to the config and ADVENT_* environment variables
// override values from the file before defaults are applied.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"advent/internal/validate"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// MinSecretLen is the shortest accepted session secret in bytes.
const MinSecretLen = 32

// LogConfig holds logging settings.
type LogConfig struct {
	Level      string `yaml:"level" env:"ADVENT_LOG_LEVEL"`
	JSON       bool   `yaml:"json" env:"ADVENT_LOG_JSON"`
	File       string `yaml:"file" env:"ADVENT_LOG_FILE"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// DatabaseConfig selects the store driver and its connection settings.
// Path is used by sqlite; the remaining fields by mysql.
type DatabaseConfig struct {
	Driver          string `yaml:"driver" env:"ADVENT_DB_DRIVER"`
	Path            string `yaml:"path" env:"ADVENT_DB_PATH"`
	Host            string `yaml:"host" env:"ADVENT_DB_HOST"`
	Port            int    `yaml:"port" env:"ADVENT_DB_PORT"`
	User            string `yaml:"user" env:"ADVENT_DB_USER"`
	Password        string `yaml:"password" env:"ADVENT_DB_PASSWORD"`
	Name            string `yaml:"name" env:"ADVENT_DB_NAME"`
	ConnectionLimit int    `yaml:"connection_limit"`
}

// SessionConfig holds the token signing secret and lifetime.
type SessionConfig struct {
	Secret string        `yaml:"secret" env:"ADVENT_SESSION_SECRET"`
	Expire time.Duration `yaml:"expire" env:"ADVENT_SESSION_EXPIRE"`
}

// SetupConfig describes the post calendar created by setup.
type SetupConfig struct {
	Start string `yaml:"start"`
	Days  int    `yaml:"days"`
}

// TLSConfig holds TLS certificate paths.
type TLSConfig struct {
	CertPath string `yaml:"cert_path"`
	KeyPath  string `yaml:"key_path"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Bind               string        `yaml:"bind" env:"ADVENT_BIND"`
	Port               int           `yaml:"port" env:"ADVENT_PORT"`
	UploadDir          string        `yaml:"upload_dir" env:"ADVENT_UPLOAD_DIR"`
	MaxUploadMB        int           `yaml:"max_upload_mb"`
	OpenRegistration   bool          `yaml:"open_registration"`
	LoginRatePerMinute int           `yaml:"login_rate_per_minute"`
	ShutdownTimeout    time.Duration `yaml:"shutdown_timeout"`
	TLS                TLSConfig     `yaml:"tls"`
}

// SFTPConfig holds SFTP server settings.
type SFTPConfig struct {
	Enable      bool   `yaml:"enable" env:"ADVENT_SFTP_ENABLE"`
	Bind        string `yaml:"bind"`
	Port        int    `yaml:"port"`
	HostKeyPath string `yaml:"host_key_path"`
}

// WebDAVConfig holds WebDAV settings.
type WebDAVConfig struct {
	Enable bool   `yaml:"enable" env:"ADVENT_WEBDAV_ENABLE"`
	Prefix string `yaml:"prefix"`
}

// Config mirrors the advent.yaml schema.
type Config struct {
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Session  SessionConfig  `yaml:"session"`
	Setup    SetupConfig    `yaml:"setup"`
	Server   ServerConfig   `yaml:"server"`
	SFTP     SFTPConfig     `yaml:"sftp"`
	WebDAV   WebDAVConfig   `yaml:"webdav"`
}

// Load reads a YAML config file, applies .env and environment overrides,
// then defaults, and validates the result.
func Load(path string) (Config, error) {
	var c Config
	if path == "" {
		return c, errors.New("config path is required")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return c, fmt.Errorf("parse %s: %w", path, err)
	}

	if err := loadDotEnv(filepath.Join(filepath.Dir(path), ".env")); err != nil {
		return Config{}, err
	}
	if err := cleanenv.UpdateEnv(&c); err != nil {
		return Config{}, fmt.Errorf("environment overrides: %w", err)
	}

	applyDefaults(&c)
	if err := validateConfig(&c); err != nil {
		return Config{}, err
	}
	c.Database.Path = strings.TrimSpace(c.Database.Path)
	c.Server.UploadDir = strings.TrimSpace(c.Server.UploadDir)
	c.Server.TLS.CertPath = strings.TrimSpace(c.Server.TLS.CertPath)
	c.Server.TLS.KeyPath = strings.TrimSpace(c.Server.TLS.KeyPath)
	c.SFTP.HostKeyPath = strings.TrimSpace(c.SFTP.HostKeyPath)
	return c, nil
}

// loadDotEnv exports variables from an optional .env file.
// Variables already present in the environment win.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Default returns a config populated with defaults, used by setup to
// write a fresh advent.yaml.
func Default() Config {
	var c Config
	applyDefaults(&c)
	return c
}

// Save writes c as YAML to path with owner-only permissions.
func Save(path string, c Config) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}
	return os.WriteFile(path, b, 0o600)
}

// applyDefaults populates zero-values with sane defaults.
func applyDefaults(c *Config) {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = 10
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = 5
	}
	if c.Log.MaxAgeDays == 0 {
		c.Log.MaxAgeDays = 30
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		c.Database.Path = "./data/advent.db"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 3306
	}
	if c.Database.ConnectionLimit == 0 {
		c.Database.ConnectionLimit = 10
	}
	if c.Session.Expire == 0 {
		c.Session.Expire = 7 * 24 * time.Hour
	}
	if c.Setup.Days == 0 {
		c.Setup.Days = 24
	}
	if c.Server.Bind == "" {
		c.Server.Bind = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.UploadDir == "" {
		c.Server.UploadDir = "./data/uploads"
	}
	if c.Server.MaxUploadMB == 0 {
		c.Server.MaxUploadMB = 64
	}
	if c.Server.LoginRatePerMinute == 0 {
		c.Server.LoginRatePerMinute = 10
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.SFTP.Bind == "" {
		c.SFTP.Bind = c.Server.Bind
	}
	if c.SFTP.Port == 0 {
		c.SFTP.Port = 2022
	}
	if c.SFTP.HostKeyPath == "" {
		c.SFTP.HostKeyPath = "./data/ssh_host_ed25519_key"
	}
	if c.WebDAV.Prefix == "" {
		c.WebDAV.Prefix = "/webdav"
	}
}

// validateConfig performs sanity checks for required fields and ranges.
// It does not mutate the config.
func validateConfig(c *Config) error {
	if strings.TrimSpace(c.Log.Level) == "" {
		return errors.New("log.level is required")
	}
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return errors.New("database.path is required for sqlite")
		}
	case "mysql":
		if c.Database.Host == "" || c.Database.User == "" || c.Database.Name == "" {
			return errors.New("database.host, database.user and database.name are required for mysql")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			return errors.New("database.port is invalid")
		}
	default:
		return fmt.Errorf("database.driver %q is not supported", c.Database.Driver)
	}
	if c.Database.ConnectionLimit < 1 {
		return errors.New("database.connection_limit is invalid")
	}
	if len(c.Session.Secret) < MinSecretLen {
		return fmt.Errorf("session.secret must be at least %d bytes", MinSecretLen)
	}
	if c.Session.Expire < time.Minute {
		return errors.New("session.expire must be at least one minute")
	}
	if _, err := validate.Day(c.Setup.Start); err != nil {
		return fmt.Errorf("setup.start: %w", err)
	}
	if c.Setup.Days < 1 || c.Setup.Days > 366 {
		return errors.New("setup.days is invalid")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("server.port is invalid")
	}
	if c.Server.UploadDir == "" {
		return errors.New("server.upload_dir is required")
	}
	if c.Server.MaxUploadMB < 1 || c.Server.MaxUploadMB > 102400 {
		return errors.New("server.max_upload_mb is invalid")
	}
	if c.Server.LoginRatePerMinute < 1 {
		return errors.New("server.login_rate_per_minute is invalid")
	}
	cp := strings.TrimSpace(c.Server.TLS.CertPath)
	kp := strings.TrimSpace(c.Server.TLS.KeyPath)
	if (cp == "") != (kp == "") {
		return errors.New("server.tls.cert_path and server.tls.key_path must be set together")
	}
	if c.SFTP.Port <= 0 || c.SFTP.Port > 65535 {
		return errors.New("sftp.port is invalid")
	}
	if c.WebDAV.Enable {
		if !strings.HasPrefix(c.WebDAV.Prefix, "/") || strings.HasPrefix(c.WebDAV.Prefix, "/api") || c.WebDAV.Prefix == "/" {
			return errors.New("webdav.prefix is invalid")
		}
	}
	return nil
}

// TLSEnabled reports whether the HTTP server should serve TLS.
func (c Config) TLSEnabled() bool {
	return c.Server.TLS.CertPath != "" && c.Server.TLS.KeyPath != ""
}
