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

	"github.com/ehrlich-b/newsroom/internal/logger"
	"github.com/ehrlich-b/newsroom/internal/site"
)

func serveCmd() *cobra.Command {
	var addrFlag string
	var devFlag bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addrFlag != "" {
				cfg.Server.Addr = addrFlag
			}
			if devFlag {
				cfg.Server.Dev = true
			}

			st, err := openStore(cfg)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			defer st.Close()

			srv, err := site.New(cfg, st, nil)
			if err != nil {
				return err
			}
			if cfg.Backend.URL == "" {
				logger.Warn("backend URL not configured; pages render empty and /api routes answer 503")
			}
			if !cfg.AdminTokenConfigured() {
				logger.Warn("PROCESSING_ADMIN_TOKEN not set; admin login disabled")
			}

			httpSrv := &http.Server{
				Addr:              cfg.Server.Addr,
				Handler:           srv.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if cfg.Server.Dev {
				fmt.Println("dev mode: templates reload from", cfg.Server.TemplateDir)
				go func() {
					if err := srv.Watch(ctx); err != nil {
						logger.Warn("template watch stopped", "err", err)
					}
				}()
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("listening", "addr", cfg.Server.Addr, "backend", cfg.Backend.URL, "env", cfg.Server.Env)
				errCh <- httpSrv.ListenAndServe()
			}()

			select {
			case <-ctx.Done():
				fmt.Println("shutting down...")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return httpSrv.Shutdown(shutdownCtx)
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			}
		},
	}

	cmd.Flags().StringVar(&addrFlag, "addr", "", "listen address (overrides server.addr)")
	cmd.Flags().BoolVar(&devFlag, "dev", false, "reload templates from disk when they change")
	return cmd
}
