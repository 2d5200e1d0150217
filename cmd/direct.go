package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
)

type directCmd struct{}

func (*directCmd) Name() string     { return "direct" }
func (*directCmd) Synopsis() string { return "allow or refuse settlements without an invoice" }
func (*directCmd) Usage() string {
	return `phiterm direct on|off

  Direct receives are settlements that match no open invoice. They are
  refused unless allowed.
`
}

func (c *directCmd) SetFlags(f *flag.FlagSet) {}

func (c *directCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	var allow bool
	switch f.Arg(0) {
	case "on":
		allow = true
	case "off":
	default:
		fmt.Fprintln(os.Stderr, "direct requires on or off")
		return subcommands.ExitUsageError
	}
	return withApp(ctx, func(ctx context.Context, a *app) error {
		meta, err := a.register.SetAllowDirectReceives(ctx, allow)
		if err != nil {
			return err
		}
		if meta.AllowDirectReceives {
			fmt.Println("Direct receives allowed")
		} else {
			fmt.Println("Direct receives refused")
		}
		return nil
	})
}
