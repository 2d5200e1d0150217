package cmd

import (
	"fmt"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/mattn/go-isatty"
)

// renderMarkdown renders md for the terminal.
func renderMarkdown(md string) (string, error) {
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(120))
	if err != nil {
		return "", err
	}
	return r.Render(md)
}

// printMarkdown prints md to stdout, rendered when stdout is a terminal.
func printMarkdown(md string) {
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		fmt.Print(md)
		return
	}
	out, err := renderMarkdown(md)
	if err != nil {
		fmt.Print(md)
		return
	}
	fmt.Print(out)
}
