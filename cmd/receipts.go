package cmd

import (
	"context"
	"flag"
	"os"

	"github.com/etnz/phiterm"
	"github.com/etnz/phiterm/renderer"
	"github.com/google/subcommands"
)

type receiptsCmd struct {
	jsonl bool
}

func (*receiptsCmd) Name() string     { return "receipts" }
func (*receiptsCmd) Synopsis() string { return "list accepted settlements" }
func (*receiptsCmd) Usage() string {
	return `phiterm receipts [-jsonl]

  Lists the receipts of the session in acceptance order. With -jsonl, they
  are printed one JSON per line.
`
}

func (c *receiptsCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.jsonl, "jsonl", false, "print receipts as JSON lines")
}

func (c *receiptsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(ctx, func(ctx context.Context, a *app) error {
		rows, err := a.register.Store().Receipts(ctx)
		if err != nil {
			return err
		}
		if c.jsonl {
			return phiterm.ExportReceipts(os.Stdout, rows)
		}
		printMarkdown(renderer.RenderReceipts(renderer.NewReceipts(rows, a.rates.Quote(ctx))))
		return nil
	})
}
