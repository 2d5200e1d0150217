package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/etnz/phiterm"
	"github.com/google/subcommands"
)

type ingestCmd struct {
	terminal bool
}

func (*ingestCmd) Name() string     { return "ingest" }
func (*ingestCmd) Synopsis() string { return "receive an invoice or a settlement" }
func (*ingestCmd) Usage() string {
	return `phiterm ingest [-terminal] <payload|file|->...

  Ingests payloads: raw JSON, payment links, or SVG glyphs, given inline,
  as file names, or on stdin with "-".

  Invoices are imported. Settlements are offered to the OPEN portal, or
  with -terminal, filed in the inbox of a payer terminal.
`
}

func (c *ingestCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.terminal, "terminal", false, "file payloads in the terminal inbox instead of the portal")
}

func (c *ingestCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "ingest requires at least one payload")
		return subcommands.ExitUsageError
	}

	return withApp(ctx, func(ctx context.Context, a *app) error {
		ingest := a.register.Ingest
		if c.terminal {
			t := phiterm.NewTerminal(a.register.Store())
			t.Now = a.register.Now
			ingest = t.Ingest
		}

		failed := 0
		for _, arg := range f.Args() {
			payload, err := readPayload(arg)
			if err != nil {
				return err
			}
			res := ingest(ctx, payload)
			printIngest(res)
			if !res.OK {
				failed++
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d payloads were not accepted", failed, f.NArg())
		}
		return nil
	})
}

func printIngest(res phiterm.IngestResult) {
	var id string
	switch {
	case res.Settlement != nil:
		id = res.Settlement.SettlementID
	case res.Invoice != nil:
		id = res.Invoice.InvoiceID
	}
	if res.OK {
		fmt.Printf("%s %.12s: %s\n", res.Kind, id, res.Note)
		return
	}
	fmt.Fprintf(os.Stderr, "%s %.12s: %s %v\n", res.Kind, id, res.Note, res.Err)
}
