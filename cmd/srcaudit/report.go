package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"srcaudit/internal/report"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the current findings",
	Long: `Prints one line per finding, in the form

  path:line:column: (tool) message

Only findings matching each file's current on-disk contents are shown.
Files that were deleted or changed since analysis are skipped with a
diagnostic, and the exit status is nonzero when that happens.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _, logger, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close() //nolint:errcheck // Process exits right after

		out := cmd.OutOrStdout()
		clean, err := report.ForEach(db, logger,
			func(path string, line, column uint32, tool, message string) bool {
				fmt.Fprintf(out, "%s:%d:%d: (%s) %s\n", path, line, column, tool, message)
				return true
			})
		if err != nil {
			return err
		}
		if !clean {
			return fmt.Errorf("report completed with errors")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)
}
