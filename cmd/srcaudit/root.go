package main

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"srcaudit/internal/config"
	"srcaudit/internal/logging"
	"srcaudit/internal/storage"
	"srcaudit/internal/version"
)

var (
	// directoryFlag is where the database search starts (default: cwd).
	directoryFlag string
	// verboseFlag raises the log level to debug.
	verboseFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "srcaudit",
	Short: "srcaudit - source auditing pipeline",
	Long: `srcaudit scans C/C++ translation units for risky coding patterns,
persists findings keyed by file identity into an SQLite store, and reads
that store back to report or mechanically rewrite matched call sites.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate("srcaudit version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVarP(&directoryFlag, "directory", "C", ".",
		"Directory whose tree holds the "+storage.StoreFileName+" database")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false,
		"Verbose output")
}

// openStore locates the database from the --directory flag, loads the
// configuration that lives next to it, and opens the store.
func openStore() (*storage.DB, *config.Config, *logging.Logger, error) {
	dbPath, err := storage.Locate(directoryFlag)
	if err != nil {
		return nil, nil, nil, err
	}

	cfg, err := config.Load(filepath.Dir(dbPath))
	if err != nil {
		return nil, nil, nil, err
	}
	logger := newLogger(cfg)

	db, err := storage.Open(dbPath, storeOptions(cfg), logger)
	if err != nil {
		return nil, nil, nil, err
	}
	return db, cfg, logger, nil
}

func storeOptions(cfg *config.Config) storage.Options {
	return storage.Options{
		BusyTimeoutMs: cfg.Store.BusyTimeoutMs,
		MaxAttempts:   cfg.Store.MaxAttempts,
		BackoffBaseMs: cfg.Store.BackoffBaseMs,
	}
}

func newLogger(cfg *config.Config) *logging.Logger {
	level := logging.LogLevel(cfg.Logging.Level)
	if verboseFlag {
		level = logging.DebugLevel
	}
	return logging.NewLogger(logging.Config{
		Format: logging.Format(cfg.Logging.Format),
		Level:  level,
	})
}
