package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/etnz/phiterm"
	"github.com/etnz/phiterm/renderer"
	"github.com/google/subcommands"
)

type verifyCmd struct{}

func (*verifyCmd) Name() string     { return "verify" }
func (*verifyCmd) Synopsis() string { return "audit a settlement document" }
func (*verifyCmd) Usage() string {
	return `phiterm verify <settlement.svg|settlement.json>

  Audits a settlement document without access to the register: settlement
  ids and hashes, sequence numbers, rolling root, total and receipt count.
`
}

func (c *verifyCmd) SetFlags(f *flag.FlagSet) {}

// readDocument reads a settlement document, sealed in SVG or as JSON.
func readDocument(data []byte) (phiterm.SettlementDocument, error) {
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte("<")) {
		doc, _, err := phiterm.ReadSettlementSVG(data)
		return doc, err
	}
	var doc phiterm.SettlementDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("invalid settlement document: %w", err)
	}
	return doc, nil
}

func (c *verifyCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "verify requires exactly one document")
		return subcommands.ExitUsageError
	}
	data, err := readPayload(f.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading document: %v\n", err)
		return subcommands.ExitFailure
	}

	return withApp(ctx, func(ctx context.Context, a *app) error {
		doc, err := readDocument(data)
		if err != nil {
			return err
		}
		d := renderer.NewDocument(doc, a.rates.Quote(ctx))
		printMarkdown(renderer.RenderDocument(d))
		if !d.Verified {
			return errors.New("the settlement document does not verify")
		}
		return nil
	})
}
