package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentic-research/pagetree/internal/store"
)

var importSelector string

var importCmd = &cobra.Command{
	Use:   "import [pages.json]",
	Short: "Import pages from a JSON document into the selected site",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		site, err := selectedSite()
		if err != nil {
			return err
		}
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read %s: %w", args[0], err)
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		n, err := store.Import(cmd.Context(), a.store, data, importSelector, site.ID)
		if err != nil {
			return err
		}
		// Running servers drop their tree of this site.
		if _, err := a.board.Bump(site.ID); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Imported %d pages into site %d.\n", n, site.ID)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importSelector, "select", store.DefaultSelector, "JSONPath selecting the page objects")
	rootCmd.AddCommand(importCmd)
}
