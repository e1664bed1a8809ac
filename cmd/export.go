package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentic-research/pagetree/internal/store"
	"github.com/agentic-research/pagetree/internal/writeback"
)

var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the pages of the selected site as JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		site, err := selectedSite()
		if err != nil {
			return err
		}
		a, err := openApp()
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		data, err := store.Export(cmd.Context(), a.store, site.ID)
		if err != nil {
			return err
		}
		if exportOutput == "" || exportOutput == "-" {
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		}
		return writeback.WriteFile(exportOutput, append(data, '\n'), 0o644)
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Write to file instead of stdout")
	rootCmd.AddCommand(exportCmd)
}
