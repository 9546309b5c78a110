package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"srcaudit/internal/config"
	"srcaudit/internal/storage"
)

var writeConfigFlag bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the finding database",
	Long: `Creates ` + storage.StoreFileName + ` in the target directory. Scans run
from anywhere below that directory find the database by walking up the
tree, so it normally lives at the project root.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := filepath.Abs(directoryFlag)
		if err != nil {
			return err
		}

		cfg, err := config.Load(dir)
		if err != nil {
			return err
		}
		logger := newLogger(cfg)

		db, err := storage.Create(filepath.Join(dir, storage.StoreFileName), storeOptions(cfg), logger)
		if err != nil {
			return err
		}
		defer db.Close() //nolint:errcheck // Read-only from here on

		if writeConfigFlag {
			if err := cfg.Save(dir); err != nil {
				return fmt.Errorf("failed to write %s: %w", config.FileName, err)
			}
		}

		fmt.Fprintf(cmd.OutOrStdout(), "initialized %s\n", db.Path())
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&writeConfigFlag, "write-config", false,
		"Also write a "+config.FileName+" with the default settings")
	rootCmd.AddCommand(initCmd)
}
