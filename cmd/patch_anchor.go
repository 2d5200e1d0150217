package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/etnz/phiterm"
	"github.com/google/subcommands"
)

type patchAnchorCmd struct {
	output string
}

func (*patchAnchorCmd) Name() string     { return "patch-anchor" }
func (*patchAnchorCmd) Synopsis() string { return "write the portal state into the merchant glyph" }
func (*patchAnchorCmd) Usage() string {
	return `phiterm patch-anchor [-o out] <glyph.svg|glyph.json>

  Writes the current portal state into a copy of the glyph: the SVG metadata
  is replaced, a JSON glyph gets a portalMeta property. The glyph is
  patched in place unless -o is given.
`
}

func (c *patchAnchorCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.output, "o", "", "output file, - for stdout")
}

func (c *patchAnchorCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "patch-anchor requires exactly one glyph file")
		return subcommands.ExitUsageError
	}
	name := f.Arg(0)
	text, err := os.ReadFile(name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading glyph: %v\n", err)
		return subcommands.ExitFailure
	}
	output := c.output
	if output == "" {
		output = name
	}

	return withApp(ctx, func(ctx context.Context, a *app) error {
		base := filepath.Base(name)
		patched, err := a.register.PatchAnchor(ctx, phiterm.Anchor{Name: base, Kind: phiterm.KindOf(base), Text: text})
		if err != nil {
			return err
		}
		return writeOutput(output, patched)
	})
}
