// Package daemon runs the API server and the optional SFTP and WebDAV
// transports until the context is cancelled or a signal arrives.
package daemon

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"advent/internal/auth"
	"advent/internal/config"
	"advent/internal/db"
	"advent/internal/httpapi"
	"advent/internal/setup"
	"advent/internal/sftpserver"
	"advent/internal/storage"
	"advent/internal/webdavserver"
)

type Options struct {
	Config config.Config
	Logger *slog.Logger
	// Listener replaces binding server.bind:server.port.
	Listener net.Listener
	// SFTPListener replaces binding sftp.bind:sftp.port.
	SFTPListener net.Listener
}

// Run serves until ctx is done or SIGINT/SIGTERM is received, then shuts
// the HTTP server down within server.shutdown_timeout.
func Run(ctx context.Context, opt Options) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := opt.Config
	lg := opt.Logger
	if lg == nil {
		lg = slog.Default()
	}

	d, err := db.Open(ctx, c.Database, lg)
	if err != nil {
		return err
	}
	defer d.Close()
	lg.Info("database ready", "driver", d.Driver())

	codec, err := auth.NewCodec([]byte(c.Session.Secret), c.Session.Expire)
	if err != nil {
		return err
	}
	guard, err := storage.New(c.Server.UploadDir, lg)
	if err != nil {
		return fmt.Errorf("upload dir: %w", err)
	}

	api, err := httpapi.New(httpapi.Options{
		DB:      d,
		Codec:   codec,
		Storage: guard,
		Config:  c,
		Logger:  lg,
	})
	if err != nil {
		return err
	}
	defer api.Close()

	if c.WebDAV.Enable {
		api.Mount(c.WebDAV.Prefix, webdavserver.New(webdavserver.Options{
			Prefix:   c.WebDAV.Prefix,
			FS:       webdavserver.NewFS(guard.Fs()),
			Sessions: api,
			Users:    d,
			Throttle: api,
			Logger:   lg,
		}))
		lg.Info("webdav enabled", "prefix", c.WebDAV.Prefix)
	}

	srv := &http.Server{
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
		ErrorLog:          slog.NewLogLogger(lg.Handler(), slog.LevelWarn),
	}

	ln := opt.Listener
	if ln == nil {
		ln, err = net.Listen("tcp", net.JoinHostPort(c.Server.Bind, strconv.Itoa(c.Server.Port)))
		if err != nil {
			return err
		}
	}
	if c.TLSEnabled() {
		pair, err := tls.LoadX509KeyPair(c.Server.TLS.CertPath, c.Server.TLS.KeyPath)
		if err != nil {
			ln.Close()
			return fmt.Errorf("tls: %w", err)
		}
		ln = tls.NewListener(ln, &tls.Config{Certificates: []tls.Certificate{pair}, MinVersion: tls.VersionTLS12})
	}

	errCh := make(chan error, 2)
	go func() {
		lg.Info("http listening", "addr", ln.Addr().String(), "tls", c.TLSEnabled())
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()

	sftpDone := make(chan struct{})
	if c.SFTP.Enable {
		signer, err := setup.LoadSSHSigner(c.SFTP.HostKeyPath)
		if err != nil {
			srv.Close()
			return fmt.Errorf("ssh host key: %w; run setup", err)
		}
		sopt := sftpserver.Options{
			Addr:     net.JoinHostPort(c.SFTP.Bind, strconv.Itoa(c.SFTP.Port)),
			Users:    d,
			Fs:       guard.Fs(),
			Signer:   signer,
			Throttle: api,
			Logger:   lg,
		}
		go func() {
			defer close(sftpDone)
			var err error
			if opt.SFTPListener != nil {
				err = sftpserver.Serve(ctx, opt.SFTPListener, sopt)
			} else {
				err = sftpserver.ListenAndServe(ctx, sopt)
			}
			if err != nil {
				errCh <- fmt.Errorf("sftp: %w", err)
			}
		}()
	} else {
		close(sftpDone)
	}

	var runErr error
	select {
	case <-ctx.Done():
		lg.Info("shutting down")
	case runErr = <-errCh:
		lg.Error("server failed", "err", runErr)
		stop()
	}

	sctx, cancel := context.WithTimeout(context.Background(), c.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		lg.Warn("http shutdown incomplete", "err", err)
		srv.Close()
	}
	<-sftpDone
	return runErr
}
