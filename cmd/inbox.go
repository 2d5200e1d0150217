package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/etnz/phiterm"
	"github.com/etnz/phiterm/renderer"
	"github.com/google/subcommands"
)

type inboxCmd struct {
	status string
	limit  int
}

func (*inboxCmd) Name() string     { return "inbox" }
func (*inboxCmd) Synopsis() string { return "list invoices and received settlements" }
func (*inboxCmd) Usage() string {
	return `phiterm inbox [-status OPEN|SETTLED|CANCELED|EXPIRED] [-n <count>]

  Lists invoices, most recent first, and every settlement received.
`
}

func (c *inboxCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.status, "status", "", "only list invoices with this status")
	f.IntVar(&c.limit, "n", 50, "maximum number of invoices and settlements, 0 for all")
}

func (c *inboxCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	status := phiterm.InvoiceStatus(strings.ToUpper(c.status))
	switch status {
	case "", phiterm.InvoiceOpen, phiterm.InvoiceSettled, phiterm.InvoiceCanceled, phiterm.InvoiceExpired:
	default:
		fmt.Fprintf(os.Stderr, "unknown invoice status %q\n", c.status)
		return subcommands.ExitUsageError
	}

	return withApp(ctx, func(ctx context.Context, a *app) error {
		store := a.register.Store()
		invoices, err := store.Invoices(ctx, phiterm.InvoiceFilter{Status: status, Limit: c.limit})
		if err != nil {
			return err
		}
		settlements, err := store.Settlements(ctx, c.limit)
		if err != nil {
			return err
		}
		printMarkdown(renderer.RenderInbox(renderer.NewInbox(invoices, settlements)))
		return nil
	})
}
