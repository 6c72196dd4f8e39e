package main

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

//go:embed guide.md
var guideContent string

func newGuideCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "guide",
		Short:   MsgGuideShort,
		GroupID: "misc",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprint(cmd.OutOrStdout(), renderMarkdown(guideContent))
			return nil
		},
	}
}

// renderMarkdown renders with glamour when attached to a terminal and
// falls back to the raw text otherwise.
func renderMarkdown(content string) string {
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return content
	}

	renderer, err := glamour.NewTermRenderer(glamour.WithAutoStyle())
	if err != nil {
		return content
	}
	rendered, err := renderer.Render(content)
	if err != nil {
		return content
	}
	return rendered
}
