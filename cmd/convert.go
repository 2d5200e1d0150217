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

type convertCmd struct {
	usd  bool
	rate string
}

func (*convertCmd) Name() string     { return "convert" }
func (*convertCmd) Synopsis() string { return "convert amounts between Φ and USD" }
func (*convertCmd) Usage() string {
	return `phiterm convert [-usd] [-rate <usd per Φ>] <amount>

  Converts a Φ amount to USD, or with -usd a USD amount to Φ, at the current
  quote or at the given rate.
`
}

func (c *convertCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.usd, "usd", false, "the amount is in USD")
	f.StringVar(&c.rate, "rate", "", "USD per Φ rate, instead of the quote")
}

func (c *convertCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "convert requires exactly one amount")
		return subcommands.ExitUsageError
	}
	return withApp(ctx, func(ctx context.Context, a *app) error {
		rate, err := c.quote(ctx, a)
		if err != nil {
			return err
		}
		if c.usd {
			m, ok := phiterm.MicroFromUSDCents(phiterm.CentsFromUSDInput(f.Arg(0)), rate)
			if !ok {
				return errors.New("no conversion available")
			}
			fmt.Printf("%s Φ\n", m.Phi())
			return nil
		}
		s, ok := phiterm.FormatUSDFromMicro(phiterm.MicroFromPhiInput(f.Arg(0)), rate)
		if !ok {
			return errors.New("no conversion available")
		}
		fmt.Println(s)
		return nil
	})
}

func (c *convertCmd) quote(ctx context.Context, a *app) (phiterm.Rate, error) {
	if c.rate != "" {
		r, ok := phiterm.ParseRate(c.rate)
		if !ok {
			return r, fmt.Errorf("invalid rate %q", c.rate)
		}
		return r, nil
	}
	q := a.rates.Quote(ctx)
	if q.Status == phiterm.QuoteUnavailable {
		return q.Rate, errors.New("no USD quote available, configure rate.url or use -rate")
	}
	return q.Rate, nil
}
