package cmd

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"
)

type expireCmd struct{}

func (*expireCmd) Name() string     { return "expire" }
func (*expireCmd) Synopsis() string { return "mark overdue invoices as expired" }
func (*expireCmd) Usage() string {
	return `phiterm expire

  Marks every OPEN invoice past its expiry pulse as EXPIRED.
`
}

func (c *expireCmd) SetFlags(f *flag.FlagSet) {}

func (c *expireCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(ctx, func(ctx context.Context, a *app) error {
		ids, err := a.register.ExpireInvoices(ctx)
		for _, id := range ids {
			fmt.Printf("Invoice %.12s EXPIRED\n", id)
		}
		if err != nil {
			return err
		}
		fmt.Printf("%d invoices expired\n", len(ids))
		return nil
	})
}
