package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pyjobs/jobauth"
	"github.com/pyjobs/jobauth/metrics/export/prometheus"
	"github.com/pyjobs/jobauth/middleware"
)

func newServeCommand(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the JWKS document, metrics and a protected /me route",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			e, err := a.engine(ctx, func(b *jobauth.Builder) {
				b.WithAuditSink(jobauth.NewZapSink(a.logger))
			})
			if err != nil {
				return err
			}
			defer e.Close()

			if addr == "" {
				addr = a.cfg.HTTP.Addr
			}
			srv := &http.Server{
				Addr:              addr,
				Handler:           newRouter(e, a.logger),
				ReadHeaderTimeout: 5 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				a.logger.Info("listening", zap.String("addr", addr))
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			a.logger.Info("shutting down")
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}

func newRouter(e *jobauth.Engine, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if !e.Ready() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "no keys"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/.well-known/jwks.json", func(w http.ResponseWriter, _ *http.Request) {
		doc, err := e.JWKS()
		if err != nil {
			logger.Error("render jwks", zap.Error(err))
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "public, max-age=300")
		_, _ = w.Write(doc)
	})

	r.Method(http.MethodGet, "/metrics", prometheus.Handler(e))

	r.Group(func(r chi.Router) {
		r.Use(middleware.Guard(e, middleware.FromConfig(e.Config().HTTP, logger)...))
		r.Get("/me", func(w http.ResponseWriter, req *http.Request) {
			subject, _ := jobauth.SubjectFromContext(req.Context())
			body := map[string]any{"sub": subject}
			if claims, ok := jobauth.ClaimsFromContext(req.Context()); ok {
				body["claims"] = claims
			}
			writeJSON(w, http.StatusOK, body)
		})
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
