package setup

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"

	"advent/internal/auth"
	"advent/internal/authz"
	"advent/internal/config"
	"advent/internal/db"
	"advent/internal/validate"
)

type ResetAdminOptions struct {
	ConfigPath       string
	AdminPassword    string
	AdminPasswordEnv bool
	Logger           *slog.Logger
	Hash             *auth.Argon2Params
}

// ResetAdmin sets a new password on the admin account and restores its
// admin flag.
func ResetAdmin(ctx context.Context, opt ResetAdminOptions) error {
	if opt.ConfigPath == "" {
		return errors.New("config path is required")
	}
	lg := opt.Logger
	if lg == nil {
		lg = slog.Default()
	}
	c, err := config.Load(opt.ConfigPath)
	if err != nil {
		return err
	}
	d, err := db.Open(ctx, c.Database, lg)
	if err != nil {
		return err
	}
	defer d.Close()

	u, found, err := d.GetUserByName(ctx, authz.AdminAccount)
	if err != nil {
		return err
	}
	if !found {
		return errors.New("admin account missing; run setup")
	}

	pass, err := resolveAdminPassword("Set admin password", opt.AdminPassword, opt.AdminPasswordEnv)
	if err != nil {
		return err
	}
	if err := validate.Password(pass); err != nil {
		return err
	}
	p := auth.DefaultArgon2Params()
	if opt.Hash != nil {
		p = *opt.Hash
	}
	h, err := auth.HashPassword(pass, p)
	if err != nil {
		return err
	}
	if _, err := d.UpdateUser(ctx, u.UID, true, h); err != nil {
		return err
	}
	lg.Info("admin password reset", "uid", u.UID)
	return nil
}

func resolveAdminPassword(label string, flagValue string, fromEnv bool) (string, error) {
	if flagValue != "" && fromEnv {
		return "", errors.New("choose one of -admin-password or -admin-password-env")
	}
	if fromEnv {
		v := strings.TrimSpace(os.Getenv(AdminPasswordEnv))
		if v == "" {
			return "", errors.New(AdminPasswordEnv + " is empty")
		}
		return v, nil
	}
	if flagValue != "" {
		v := strings.TrimSpace(flagValue)
		if v == "" {
			return "", errors.New("admin password is empty")
		}
		return v, nil
	}
	return promptPassword(label)
}
