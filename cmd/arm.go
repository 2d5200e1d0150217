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

type armCmd struct{}

func (*armCmd) Name() string     { return "arm" }
func (*armCmd) Synopsis() string { return "bind the register to a merchant glyph" }
func (*armCmd) Usage() string {
	return `phiterm arm <glyph.svg|glyph.json>

  Arms the register with the merchant identity found in the glyph.
  Every record of the previous session is wiped. A portal that is OPEN must
  be closed first.
`
}

func (c *armCmd) SetFlags(f *flag.FlagSet) {}

func (c *armCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "arm requires exactly one glyph file")
		return subcommands.ExitUsageError
	}
	name := f.Arg(0)
	text, err := os.ReadFile(name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading glyph: %v\n", err)
		return subcommands.ExitFailure
	}

	return withApp(ctx, func(ctx context.Context, a *app) error {
		base := filepath.Base(name)
		meta, err := a.register.Arm(ctx, phiterm.Anchor{Name: base, Kind: phiterm.KindOf(base), Text: text})
		if err != nil {
			return err
		}
		fmt.Printf("Portal %.12s ARMED for %s (%s)\n", meta.PortalID, meta.MerchantLabel, meta.MerchantPhiKey)
		return nil
	})
}
