package cmd

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/etnz/phiterm"
	"github.com/google/subcommands"
)

type invoiceCmd struct {
	memo    string
	expires int64
	base    string
	jsonOut bool
}

func (*invoiceCmd) Name() string     { return "invoice" }
func (*invoiceCmd) Synopsis() string { return "issue an invoice" }
func (*invoiceCmd) Usage() string {
	return `phiterm invoice [-memo <text>] [-expires <pulses>] [-base <url>] [-json] <amount Φ>

  Issues an invoice on the OPEN portal and prints its payment link.
`
}

func (c *invoiceCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.memo, "memo", "", "memo shown to the payer")
	f.Int64Var(&c.expires, "expires", 0, "number of pulses the invoice stays payable, 0 for ever")
	f.StringVar(&c.base, "base", "https://phi.network/portal", "base URL of the payment link")
	f.BoolVar(&c.jsonOut, "json", false, "print the invoice JSON instead of the link")
}

func (c *invoiceCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "invoice requires exactly one amount")
		return subcommands.ExitUsageError
	}
	if c.expires < 0 {
		fmt.Fprintln(os.Stderr, "-expires must be positive")
		return subcommands.ExitUsageError
	}

	return withApp(ctx, func(ctx context.Context, a *app) error {
		draft := phiterm.InvoiceDraft{AmountPhi: f.Arg(0), Memo: c.memo}
		if c.expires > 0 {
			draft.ExpiresPulse = phiterm.PulseAt(a.register.Now()) + c.expires
		}
		inv, err := a.register.IssueInvoice(ctx, draft)
		if err != nil {
			return err
		}
		if c.jsonOut {
			enc := json.NewEncoder(os.Stdout)
			enc.SetEscapeHTML(false)
			return enc.Encode(inv)
		}
		link, err := phiterm.EncodeURL(c.base, inv)
		if err != nil {
			return err
		}
		fmt.Printf("Invoice %s: %s Φ\n%s\n", inv.InvoiceID, inv.Amount.Phi, link)
		return nil
	})
}
