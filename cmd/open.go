package cmd

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"
)

type openCmd struct{}

func (*openCmd) Name() string     { return "open" }
func (*openCmd) Synopsis() string { return "start receiving settlements" }
func (*openCmd) Usage() string {
	return `phiterm open

  Opens the ARMED portal, after the owner confirmed their presence.
`
}

func (c *openCmd) SetFlags(f *flag.FlagSet) {}

func (c *openCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(ctx, func(ctx context.Context, a *app) error {
		meta, err := a.register.Open(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Portal %.12s OPEN at pulse %d\n", meta.PortalID, meta.OpenedPulse)
		return nil
	})
}
