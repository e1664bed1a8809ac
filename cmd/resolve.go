package cmd

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

var resolveJSON bool

var resolveCmd = &cobra.Command{
	Use:   "resolve [path]",
	Short: "Resolve a request path to a page of the selected site",
	Args:  cobra.ExactArgs(1),
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

		res, err := a.resolver.Resolve(cmd.Context(), site, args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if resolveJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(res.Chain)
		}
		for i, p := range res.Chain {
			line := fmt.Sprintf("%s#%d %s", strings.Repeat("  ", i), p.ID, p.URLPart)
			if !p.IsOnline {
				line += " [offline]"
			}
			if i == len(res.Chain)-1 && len(p.URLVariables) > 0 {
				keys := make([]string, 0, len(p.URLVariables))
				for k := range p.URLVariables {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				for _, k := range keys {
					line += fmt.Sprintf(" %s=%s", k, p.URLVariables[k])
				}
			}
			_, _ = fmt.Fprintln(out, line)
		}
		return nil
	},
}

func init() {
	resolveCmd.Flags().BoolVar(&resolveJSON, "json", false, "Print the matched chain as JSON")
	rootCmd.AddCommand(resolveCmd)
}
