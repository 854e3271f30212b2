package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/lexgraph/graph"
	"github.com/dshills/lexgraph/legal"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Print the pipeline topology as a Mermaid diagram",
	RunE: func(cmd *cobra.Command, args []string) error {
		g, err := legal.Build(legal.Config{})
		if err != nil {
			return err
		}
		return writeMermaid(cmd.OutOrStdout(), g)
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
}

// writeMermaid renders g as a flowchart. Suspension nodes are drawn as
// hexagons and terminal nodes as stadiums.
func writeMermaid(w io.Writer, g *graph.Graph) error {
	var b strings.Builder
	b.WriteString("graph TD\n")
	fmt.Fprintf(&b, "    start((start)) --> %s\n", g.Entry())
	for _, name := range g.Nodes() {
		switch {
		case g.IsSuspension(name):
			fmt.Fprintf(&b, "    %s{{%s}}\n", name, name)
		case g.IsTerminal(name):
			fmt.Fprintf(&b, "    %s([%s])\n", name, name)
		default:
			fmt.Fprintf(&b, "    %s[%s]\n", name, name)
		}
	}
	for _, name := range g.Nodes() {
		for _, to := range g.Targets(name) {
			fmt.Fprintf(&b, "    %s --> %s\n", name, to)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}
