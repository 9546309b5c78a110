package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"srcaudit/internal/export"
)

var exportOutputFlag string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the current findings as compressed JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _, logger, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close() //nolint:errcheck // Process exits right after

		exporter := export.NewExporter(db, logger)
		manifest, err := exporter.Export(exportOutputFlag)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "exported %d findings across %d files to %s\n",
			manifest.Findings, manifest.Files, exportOutputFlag)
		if !manifest.Clean {
			return fmt.Errorf("export completed with errors")
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutputFlag, "output", "o", "srcaudit-export.json.zst",
		"Output file")
	rootCmd.AddCommand(exportCmd)
}
