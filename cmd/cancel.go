package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
)

type cancelCmd struct{}

func (*cancelCmd) Name() string     { return "cancel" }
func (*cancelCmd) Synopsis() string { return "cancel an open invoice" }
func (*cancelCmd) Usage() string {
	return `phiterm cancel <invoice-id>

  Cancels an OPEN invoice: it will not match settlements anymore.
`
}

func (c *cancelCmd) SetFlags(f *flag.FlagSet) {}

func (c *cancelCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "cancel requires exactly one invoice id")
		return subcommands.ExitUsageError
	}
	return withApp(ctx, func(ctx context.Context, a *app) error {
		if err := a.register.CancelInvoice(ctx, f.Arg(0)); err != nil {
			return err
		}
		fmt.Printf("Invoice %.12s CANCELED\n", f.Arg(0))
		return nil
	})
}
