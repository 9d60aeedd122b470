package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"chatsync/internal/httpserver"
	"chatsync/internal/security"
	"chatsync/internal/ws"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the sync session behind a local HTTP and WebSocket bridge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if cfg.Auth.TokenSecret == "" {
				return fmt.Errorf("CHATSYNC_TOKEN_SECRET is required for serve")
			}

			rt, err := newRuntime(cfg, log)
			if err != nil {
				return err
			}
			defer rt.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			tokens := security.NewTokenService(cfg.Auth.TokenSecret, cfg.Auth.TokenTTL)
			hub := ws.NewHub()
			unforward := ws.Forward(rt.sess.Bus(), hub, cfg.AccountID)
			defer unforward()

			router := httpserver.NewRouter(rt.sess, httpserver.Options{
				CORSOrigins: cfg.Listen.CORSOrigins,
				Tokens:      tokens,
				Logger:      log,
				Socket:      ws.MakeHandler(hub, tokens, rt.sess, cfg.Listen.CORSOrigins, log),
			})

			srv := &http.Server{
				Addr:         cfg.HTTPAddr(),
				Handler:      router,
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 15 * time.Second,
				IdleTimeout:  60 * time.Second,
			}

			if err := rt.start(ctx); err != nil {
				return fmt.Errorf("start session: %w", err)
			}

			errCh := make(chan error, 1)
			go func() {
				log.Info("bridge listening", "addr", cfg.HTTPAddr(), "account", cfg.AccountID)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case <-ctx.Done():
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("server error: %w", err)
				}
			}

			log.Info("shutting down bridge")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Warn("graceful shutdown failed", "err", err)
			}
			return nil
		},
	}
}
