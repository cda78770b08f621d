package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"
)

// newDocsCmd renders man pages or markdown for the whole command tree. The
// output carries no generation date so it can be committed.
func newDocsCmd() *cobra.Command {
	var dir, format string
	cmd := &cobra.Command{
		Use:    "gen-docs",
		Short:  "Generate dnetd man pages or markdown",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return genDocs(cmd.Root(), dir, format)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "docs", "output directory")
	cmd.Flags().StringVar(&format, "format", "man", "man or markdown")
	return cmd
}

func genDocs(root *cobra.Command, dir, format string) error {
	if format != "man" && format != "markdown" {
		return fmt.Errorf("unknown docs format %q (want man or markdown)", format)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create docs dir: %w", err)
	}

	root.DisableAutoGenTag = true
	if format == "markdown" {
		return doc.GenMarkdownTree(root, dir)
	}
	return doc.GenManTree(root, &doc.GenManHeader{
		Title:   "DNETD",
		Section: "8",
		Source:  "dnetd " + version,
		Manual:  "System Manager's Manual",
	}, dir)
}
