package cmd

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/awnumar/memguard"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/jmcleod/platedash/api"
	"github.com/jmcleod/platedash/auth"
	"github.com/jmcleod/platedash/metrics"
)

var (
	listen        string
	tlsCert       string
	tlsKey        string
	pruneInterval time.Duration
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the dashboard server",
	Long: `Starts the HTTP server. On first run PLATEDASH_ADMIN_PASSWORD must be set;
it seeds the credential store and is ignored once the store exists.`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)
	serverCmd.Flags().StringVar(&listen, "listen", "", "Address to listen on (overrides PLATEDASH_LISTEN)")
	serverCmd.Flags().StringVar(&tlsCert, "tls-cert", "", "Path to TLS certificate file")
	serverCmd.Flags().StringVar(&tlsKey, "tls-key", "", "Path to TLS key file")
	serverCmd.Flags().DurationVar(&pruneInterval, "prune-interval", time.Hour, "How often expired sessions are removed from the store (0 disables)")
}

func runServer(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if listen != "" {
		cfg.Listen = listen
	}
	proxies, err := cfg.ParseTrustedProxies()
	if err != nil {
		return err
	}

	// Keep the bootstrap password out of the heap and the environment for
	// the life of the process.
	var adminPassword *memguard.Enclave
	if cfg.AdminPassword != "" {
		adminPassword = memguard.NewEnclave([]byte(cfg.AdminPassword))
		cfg.AdminPassword = ""
		os.Unsetenv("PLATEDASH_ADMIN_PASSWORD")
	}
	defer memguard.Purge()

	logger := newLogger(cfg.LogFormat, os.Stderr)
	slog.SetDefault(logger)

	collector := metrics.New(true)
	svc, closeSvc, err := openService(cfg, logger, auth.WithRecorder(collector))
	if err != nil {
		return err
	}
	defer closeSvc()

	if err := bootstrap(cmd.Context(), svc, adminPassword); err != nil {
		return err
	}

	apiOpts := []api.Option{
		api.WithLogger(logger),
		api.WithTrustedProxies(proxies),
		api.WithLoginRecorder(collector),
	}
	if cfg.AlertWebhook != "" {
		hook := api.NewAlertWebhook(cfg.AlertWebhook, cfg.AlertWebhookHeader, logger)
		defer hook.Close()
		apiOpts = append(apiOpts, api.WithAlertFunc(hook.Notify))
	}
	a := api.New(svc, apiOpts...)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(api.SecurityHeaders)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", collector.Handler())
	r.Mount("/api/v1", a.Router())

	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	useTLS := tlsCert != "" && tlsKey != ""
	if useTLS {
		cert, err := tls.LoadX509KeyPair(tlsCert, tlsKey)
		if err != nil {
			return fmt.Errorf("failed to load TLS key pair: %w", err)
		}
		server.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	if pruneInterval > 0 {
		go pruneLoop(ctx, svc, logger, pruneInterval)
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	done := make(chan error, 1)
	go func() {
		var err error
		if useTLS {
			err = server.ListenAndServeTLS("", "")
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			done <- fmt.Errorf("server failed: %w", err)
			return
		}
		done <- nil
	}()

	printBanner(cmd.OutOrStdout())
	logger.Info("server started", "listen", cfg.Listen, "tls", useTLS,
		"store", cfg.StoreBackend, "path", cfg.StorePath())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig.String())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-done:
		return err
	}
}

// bootstrap seeds the credential store from the sealed admin password. The
// password is only decrypted for the duration of the call.
func bootstrap(ctx context.Context, svc *auth.Service, sealed *memguard.Enclave) error {
	password := ""
	if sealed != nil {
		buf, err := sealed.Open()
		if err != nil {
			return fmt.Errorf("opening admin password: %w", err)
		}
		defer buf.Destroy()
		password = buf.String()
	}
	if _, err := svc.Bootstrap(ctx, password); err != nil {
		if errors.Is(err, auth.ErrConfig) {
			return fmt.Errorf("%w (set PLATEDASH_ADMIN_PASSWORD for the first run)", err)
		}
		return err
	}
	return nil
}

func pruneLoop(ctx context.Context, svc *auth.Service, logger *slog.Logger, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := svc.PruneExpired(ctx)
			if err != nil {
				logger.Error("pruning expired sessions", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("pruned expired sessions", "removed", n)
			}
		}
	}
}
