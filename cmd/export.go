package cmd

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/etnz/phiterm"
	"github.com/google/subcommands"
)

type exportCmd struct {
	format string
	output string
}

func (*exportCmd) Name() string     { return "export" }
func (*exportCmd) Synopsis() string { return "export the settlement document of the closed portal" }
func (*exportCmd) Usage() string {
	return `phiterm export [-format svg|json|receipts] [-o file]

  Exports the settlement document of the CLOSED portal, sealed in an SVG
  glyph or as JSON, or the receipts as JSON lines.
`
}

func (c *exportCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.format, "format", "svg", "svg, json or receipts")
	f.StringVar(&c.output, "o", "", "output file, stdout by default")
}

func (c *exportCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	switch c.format {
	case "svg", "json", "receipts":
	default:
		fmt.Fprintf(os.Stderr, "unknown format %q\n", c.format)
		return subcommands.ExitUsageError
	}

	return withApp(ctx, func(ctx context.Context, a *app) error {
		doc, err := a.register.Document(ctx)
		if err != nil {
			return err
		}
		var data []byte
		switch c.format {
		case "svg":
			data, err = phiterm.BuildSettlementSVG(doc)
		case "json":
			data, err = phiterm.EncodeJSON(doc)
			data = append(data, '\n')
		case "receipts":
			var b bytes.Buffer
			err = phiterm.ExportReceipts(&b, doc.Receipts)
			data = b.Bytes()
		}
		if err != nil {
			return err
		}
		return writeOutput(c.output, data)
	})
}
