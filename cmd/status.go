package cmd

import (
	"context"
	"flag"

	"github.com/etnz/phiterm/renderer"
	"github.com/google/subcommands"
)

type statusCmd struct{}

func (*statusCmd) Name() string     { return "status" }
func (*statusCmd) Synopsis() string { return "display the portal session" }
func (*statusCmd) Usage() string {
	return `phiterm status

  Displays the portal state, its totals in Φ and USD, and the rolling root.
`
}

func (c *statusCmd) SetFlags(f *flag.FlagSet) {}

func (c *statusCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(ctx, func(ctx context.Context, a *app) error {
		meta, err := a.register.Status(ctx)
		if err != nil {
			return err
		}
		printMarkdown(renderer.RenderStatus(renderer.NewStatus(meta, a.rates.Quote(ctx))))
		return nil
	})
}
