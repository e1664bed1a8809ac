package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentic-research/pagetree/internal/blueprint"
)

var (
	treeDepth int
	treeNav   bool
)

var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Print the page tree of the selected site",
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

		bp, err := a.model.Blueprint(cmd.Context(), site.ID)
		if err != nil {
			return err
		}
		var filter blueprint.FilterFunc
		if treeNav {
			filter = blueprint.NavigationHidden
		}
		bp = bp.Subset(0, treeDepth, filter)
		if _, err := bp.Populate(cmd.Context()); err != nil {
			return err
		}

		for _, n := range bp.OrderedNodes() {
			printNode(cmd.OutOrStdout(), n)
		}
		return nil
	},
}

func printNode(w io.Writer, n *blueprint.Node) {
	name := n.Slug
	if n.Pattern != "" {
		name = n.Pattern
	}
	var flags []string
	if !n.IsOnline {
		flags = append(flags, "offline")
	}
	if n.IsNavigationExcluded {
		flags = append(flags, "hidden")
	}
	if d := n.DescendantsCount(); d > 0 {
		flags = append(flags, fmt.Sprintf("%d below", d))
	}
	label, _ := n.Label() // unpopulated nodes print without label

	line := fmt.Sprintf("%s%s #%d", strings.Repeat("  ", n.Depth), name, n.ID)
	if label != "" {
		line += " " + fmt.Sprintf("%q", label)
	}
	if len(flags) > 0 {
		line += " [" + strings.Join(flags, ", ") + "]"
	}
	_, _ = fmt.Fprintln(w, line)
}

func init() {
	treeCmd.Flags().IntVar(&treeDepth, "depth", blueprint.Unbounded, "Maximum depth (-1 for no limit)")
	treeCmd.Flags().BoolVar(&treeNav, "nav", false, "Only pages shown by navigation menus")
	rootCmd.AddCommand(treeCmd)
}
