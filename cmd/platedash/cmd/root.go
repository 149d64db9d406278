package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmcleod/platedash/auth"
	"github.com/jmcleod/platedash/config"
	"github.com/jmcleod/platedash/storage"
	bboltstorage "github.com/jmcleod/platedash/storage/bbolt"
	"github.com/jmcleod/platedash/storage/file"
)

// Version is set at build time with -ldflags "-X ...cmd.Version=...".
var Version = "dev"

var (
	dataDir      string
	storeBackend string
	logFormat    string
)

var rootCmd = &cobra.Command{
	Use:   "platedash",
	Short: "Platedash is a self-hosted dashboard server",
	Long: `Platedash serves the dashboard and its API behind a single administrator
credential. The subcommands below manage that credential, its API key and
the active sessions directly against the credential store.`,
	SilenceUsage: true,
	Version:      Version,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Directory for the credential store (overrides PLATEDASH_DATA_DIR)")
	rootCmd.PersistentFlags().StringVar(&storeBackend, "store", "", "Credential store backend: file or bbolt (overrides PLATEDASH_STORE_BACKEND)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: json or text (overrides PLATEDASH_LOG_FORMAT)")
}

// loadConfig reads the environment and applies any persistent flag overrides.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if storeBackend != "" {
		cfg.StoreBackend = storeBackend
	}
	if logFormat != "" {
		cfg.LogFormat = logFormat
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func newLogger(format string, w io.Writer) *slog.Logger {
	if format == "text" {
		return slog.New(slog.NewTextHandler(w, nil))
	}
	return slog.New(slog.NewJSONHandler(w, nil))
}

// openRepository opens the configured credential store. The returned close
// function releases any file lock the backend holds.
func openRepository(cfg config.Config) (storage.Repository, func() error, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return openRepositoryAt(cfg.StoreBackend, cfg.StorePath())
}

func openRepositoryAt(backend, path string) (storage.Repository, func() error, error) {
	switch backend {
	case config.BackendBbolt:
		repo, err := bboltstorage.NewRepositoryFromFile(path, nil)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open credential store: %w", err)
		}
		return repo, repo.Close, nil
	default:
		return file.New(path), func() error { return nil }, nil
	}
}

// openService wires an auth.Service over the configured store. Callers must
// call the returned close function, which stops the writer before releasing
// the store.
func openService(cfg config.Config, logger *slog.Logger, opts ...auth.Option) (*auth.Service, func(), error) {
	repo, closeRepo, err := openRepository(cfg)
	if err != nil {
		return nil, nil, err
	}
	opts = append([]auth.Option{auth.WithLogger(logger)}, opts...)
	svc := auth.New(repo, opts...)
	return svc, func() {
		svc.Close()
		if err := closeRepo(); err != nil {
			logger.Error("closing credential store", "error", err)
		}
	}, nil
}

// openCLIService is openService for the maintenance subcommands, which log
// to stderr so stdout stays machine-readable.
func openCLIService(cmd *cobra.Command) (*auth.Service, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	return openService(cfg, newLogger(cfg.LogFormat, cmd.ErrOrStderr()))
}
