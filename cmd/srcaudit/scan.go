package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"srcaudit/internal/findings"
	"srcaudit/internal/logging"
	"srcaudit/internal/scan"
)

var scanCmd = &cobra.Command{
	Use:   "scan FILE...",
	Short: "Scan translation units and record findings",
	Long: `Scans each file for risky coding patterns and commits the results to
the finding database. Each file is one analysis run with one commit, so a
parallel build can invoke scan concurrently for different files. A file
that yields no findings is still recorded as processed, which supersedes
any findings from earlier runs.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, cfg, logger, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close() //nolint:errcheck // Process exits right after

		scanner := scan.NewScanner(cfg.Scan.Exclude, logger)

		failed := false
		for _, path := range args {
			if scanner.Excluded(path) {
				logger.Debug("skipping excluded file", logging.Fields{"path": path})
				continue
			}

			run := findings.NewRun(db, logger)
			if err := scanner.ScanFile(cmd.Context(), path, run); err != nil {
				logger.Error("scan failed", logging.Fields{
					"path":  path,
					"error": err.Error(),
				})
				failed = true
				continue
			}
			if err := run.Commit(); err != nil {
				logger.Error("commit failed", logging.Fields{
					"path":  path,
					"error": err.Error(),
				})
				failed = true
			}
		}

		if failed {
			return fmt.Errorf("some files could not be scanned")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
}
