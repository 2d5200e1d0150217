package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/etnz/phiterm"
	"github.com/google/subcommands"
)

type payCmd struct {
	from   string
	memo   string
	base   string
	output string
}

func (*payCmd) Name() string     { return "pay" }
func (*payCmd) Synopsis() string { return "settle an invoice from a payer terminal" }
func (*payCmd) Usage() string {
	return `phiterm pay -from <payer key> [-memo <text>] [-o file] <invoice payload|file|->

  Creates the settlement of the invoice, files it in the terminal inbox and
  prints the link to hand over to the merchant. With -o, the settlement JSON
  is written to the file instead.
`
}

func (c *payCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.from, "from", "", "payer Φ key")
	f.StringVar(&c.memo, "memo", "", "memo for the merchant")
	f.StringVar(&c.base, "base", "https://phi.network/portal", "base URL of the settlement link")
	f.StringVar(&c.output, "o", "", "write the settlement JSON to this file")
}

func (c *payCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 || c.from == "" {
		fmt.Fprintln(os.Stderr, "pay requires -from and exactly one invoice")
		return subcommands.ExitUsageError
	}
	payload, err := readPayload(f.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading invoice: %v\n", err)
		return subcommands.ExitFailure
	}

	return withApp(ctx, func(ctx context.Context, a *app) error {
		p, err := phiterm.DecodePayload(payload)
		if err != nil {
			return err
		}
		if p.Invoice == nil {
			return errors.New("payload is not an invoice")
		}
		t := phiterm.NewTerminal(a.register.Store())
		t.Now = a.register.Now
		s, err := t.Pay(ctx, *p.Invoice, c.from, c.memo)
		if err != nil {
			return err
		}
		if c.output != "" {
			data, err := phiterm.EncodeJSON(s)
			if err != nil {
				return err
			}
			return writeOutput(c.output, append(data, '\n'))
		}
		link, err := phiterm.EncodeURL(c.base, s)
		if err != nil {
			return err
		}
		fmt.Printf("Settlement %s: %s Φ to %s\n%s\n", s.SettlementID, s.Amount.Phi, s.ToPhiKey, link)
		return nil
	})
}
