// Package sftpserver serves the upload root over SFTP to admin accounts.
package sftpserver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"time"

	"advent/internal/auth"
	"advent/internal/db"

	"github.com/pkg/sftp"
	"github.com/spf13/afero"
	"golang.org/x/crypto/ssh"
)

// UserStore looks up accounts for password authentication.
type UserStore interface {
	GetUserByName(ctx context.Context, name string) (*db.User, bool, error)
}

// Throttle tracks failed credential checks per client address. When set on
// Options, password logins share its budget.
type Throttle interface {
	LoginBlocked(ip string) (bool, time.Duration)
	LoginFailed(ip string)
}

type Options struct {
	Addr     string
	Users    UserStore
	Fs       afero.Fs
	Signer   ssh.Signer
	Throttle Throttle
	Logger   *slog.Logger
}

func (o Options) check() error {
	if o.Users == nil || o.Fs == nil {
		return errors.New("users and fs are required")
	}
	if o.Signer == nil {
		return errors.New("host key is required")
	}
	return nil
}

// ListenAndServe accepts SSH connections on opt.Addr until ctx is done.
func ListenAndServe(ctx context.Context, opt Options) error {
	if opt.Addr == "" {
		return errors.New("addr is required")
	}
	if err := opt.check(); err != nil {
		return err
	}
	ln, err := net.Listen("tcp", opt.Addr)
	if err != nil {
		return err
	}
	return Serve(ctx, ln, opt)
}

// Serve accepts connections from ln until ctx is done. ln is closed on return.
func Serve(ctx context.Context, ln net.Listener, opt Options) error {
	defer ln.Close()
	if err := opt.check(); err != nil {
		return err
	}
	lg := opt.Logger
	if lg == nil {
		lg = slog.Default()
	}
	lg = lg.With("component", "sftp")

	conf := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			ip := hostOf(c.RemoteAddr())
			if opt.Throttle != nil {
				if blocked, _ := opt.Throttle.LoginBlocked(ip); blocked {
					lg.Warn("sftp login rate limited", "user", c.User(), "remote_ip", ip)
					return nil, errors.New("too many attempts")
				}
			}
			if !checkPassword(ctx, opt.Users, c.User(), pass) {
				if opt.Throttle != nil {
					opt.Throttle.LoginFailed(ip)
				}
				lg.Info("sftp login refused", "user", c.User(), "remote_ip", ip)
				return nil, errors.New("invalid credentials")
			}
			return &ssh.Permissions{}, nil
		},
	}
	conf.AddHostKey(opt.Signer)

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		c, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}
		go handleConn(lg, opt.Fs, conf, c)
	}
}

func checkPassword(ctx context.Context, users UserStore, name string, pass []byte) bool {
	u, ok, err := users.GetUserByName(ctx, name)
	if err != nil || !ok || !u.Admin {
		return false
	}
	okPw, err := auth.VerifyPassword(string(pass), u.PassHash)
	return err == nil && okPw
}

func hostOf(addr net.Addr) string {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

func handleConn(lg *slog.Logger, fs afero.Fs, conf *ssh.ServerConfig, netConn net.Conn) {
	defer netConn.Close()
	_ = netConn.SetDeadline(time.Now().Add(30 * time.Second))
	serverConn, chans, reqs, err := ssh.NewServerConn(netConn, conf)
	if err != nil {
		return
	}
	defer serverConn.Close()
	_ = netConn.SetDeadline(time.Time{})
	lg.Info("sftp session", "user", serverConn.User(), "remote_ip", serverConn.RemoteAddr().String())

	go ssh.DiscardRequests(reqs)

	for newCh := range chans {
		if newCh.ChannelType() != "session" {
			_ = newCh.Reject(ssh.UnknownChannelType, "unsupported channel")
			continue
		}
		ch, reqs, err := newCh.Accept()
		if err != nil {
			continue
		}
		go func() {
			defer ch.Close()
			for req := range reqs {
				if req.Type == "subsystem" && len(req.Payload) >= 4 && string(req.Payload[4:]) == "sftp" {
					_ = req.Reply(true, nil)
					h := Handlers{Fs: fs}
					s := sftp.NewRequestServer(ch, sftp.Handlers{FileGet: h, FilePut: h, FileCmd: h, FileList: h})
					if err := s.Serve(); err != nil && !errors.Is(err, io.EOF) {
						lg.Debug("sftp serve ended", "err", err)
					}
					return
				}
				_ = req.Reply(false, nil)
			}
		}()
	}
}
