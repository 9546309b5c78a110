package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"srcaudit/internal/patch"
	"srcaudit/internal/report"
)

var dryRunFlag bool

var patchCmd = &cobra.Command{
	Use:   "patch",
	Short: "Rewrite recorded sprintf-overload call sites",
	Long: `Rewrites the call sites recorded under the sprintf-overload category
using the configured rules (by default sprintf -> formatstr and
vsprintf -> vformatstr). Every edit is verified against the live text
first; if any site no longer matches, no file is written at all — rerun
the scan and try again.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, cfg, logger, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close() //nolint:errcheck // Process exits right after

		rw := patch.NewRewriter(cfg.Patch.Rules, verboseFlag, logger)
		clean, err := report.ForEach(db, logger, rw.Apply)
		if err != nil {
			return err
		}

		if err := rw.Flush(dryRunFlag); err != nil {
			return err
		}
		if !clean {
			return fmt.Errorf("patch completed with errors")
		}
		return nil
	},
}

func init() {
	patchCmd.Flags().BoolVarP(&dryRunFlag, "dry-run", "n", false,
		"Verify and plan all edits without writing any file")
	rootCmd.AddCommand(patchCmd)
}
