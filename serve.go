package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oklog/run"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"remotefs/auth"
	"remotefs/config"
	"remotefs/controller"
	"remotefs/logging"
	"remotefs/websocket"
	"remotefs/websocket/service/fs"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the file server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			log, err := logging.New(cfg.Log)
			if err != nil {
				return err
			}
			defer log.Sync()

			return serve(cfg, log)
		},
	}
}

func serve(cfg *config.Config, log *zap.Logger) error {
	opts := fs.Options{
		AllowedPaths: cfg.AllowedPaths,
		AllowWrite:   cfg.AllowWrite,
		AllowDelete:  cfg.AllowDelete,
		MaxFileSize:  int64(cfg.MaxFileSize),
		Logger:       log,
	}
	handlerOpts := websocket.Options{
		IdleTimeout: cfg.IdleTimeout,
		Logger:      log,
	}

	if cfg.Backend.SFTP.Enabled {
		sftpFS, err := fs.DialSFTP(fs.SFTPOptions{
			Addr:       cfg.Backend.SFTP.Addr(),
			User:       cfg.Backend.SFTP.User,
			Password:   cfg.Backend.SFTP.Password,
			KeyFile:    cfg.Backend.SFTP.KeyFile,
			KnownHosts: cfg.Backend.SFTP.KnownHosts,
		}, log)
		if err != nil {
			return err
		}
		defer sftpFS.Close()
		opts.FS = sftpFS
	}

	if cfg.Auth.JWTSecret != "" {
		a, err := auth.NewJWT(cfg.Auth.JWTSecret, log)
		if err != nil {
			return err
		}
		handlerOpts.Authenticate = a.Authenticate
		opts.Authorize = a.Authorize
	}

	svc, err := fs.NewFSService(opts)
	if err != nil {
		return err
	}
	handler := websocket.NewHandler(svc, handlerOpts)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	controller.SetupRoutes(r, handler, cfg.Metrics.Enabled)

	var group run.Group

	// HTTP server worker
	{
		srv := &http.Server{Addr: cfg.Listen, Handler: r}

		group.Add(func() error {
			log.Info("listening",
				zap.String("addr", cfg.Listen),
				zap.Strings("allowedPaths", svc.Capabilities().AllowedPaths),
				zap.String("backend", cfg.Backend.Type))
			err := srv.ListenAndServe()
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		}, func(_ error) {
			// Hijacked WebSocket connections are not tracked by Shutdown.
			if err := handler.CloseAll(); err != nil {
				log.Warn("failed to close sessions", zap.Error(err))
			}
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				_ = srv.Close()
			}
		})
	}

	// signal worker
	{
		ctx, cancel := context.WithCancel(context.Background())

		group.Add(func() error {
			ch := make(chan os.Signal, 2)
			signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(ch)

			select {
			case <-ch:
				log.Info("received shutdown signal")
			case <-ctx.Done():
			}
			return nil
		}, func(_ error) {
			cancel()
		})
	}

	return group.Run()
}
