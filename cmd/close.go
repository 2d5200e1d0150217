package cmd

import (
	"context"
	"flag"
	"fmt"

	"github.com/etnz/phiterm"
	"github.com/etnz/phiterm/renderer"
	"github.com/google/subcommands"
)

type closeCmd struct {
	output string
}

func (*closeCmd) Name() string     { return "close" }
func (*closeCmd) Synopsis() string { return "seal the ledger and produce the settlement document" }
func (*closeCmd) Usage() string {
	return `phiterm close [-o settlement.svg]

  Closes the OPEN portal, after the owner confirmed their presence, and
  prints the settlement document. With -o, the document is also written
  sealed in an SVG glyph, the only copy holding the owner close proof.
`
}

func (c *closeCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.output, "o", "", "write the sealed settlement SVG to this file")
}

func (c *closeCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(ctx, func(ctx context.Context, a *app) error {
		doc, err := a.register.Close(ctx)
		if err != nil {
			return err
		}
		if c.output != "" {
			svg, err := phiterm.BuildSettlementSVG(doc)
			if err != nil {
				return err
			}
			if err := writeOutput(c.output, svg); err != nil {
				return err
			}
		}
		printMarkdown(renderer.RenderDocument(renderer.NewDocument(doc, a.rates.Quote(ctx))))
		fmt.Printf("\nPortal %.12s CLOSED: %d receipts, %s Φ\n", doc.PortalID, doc.ReceiveCount, doc.TotalPhi)
		return nil
	})
}
