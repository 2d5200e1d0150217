package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/etnz/phiterm"
	"github.com/etnz/phiterm/docs"
	"github.com/etnz/phiterm/renderer"
	"google.golang.org/genai"
)

// NewAuditor returns the expert reading the portal ledger in store. quote
// gives the USD rate used for display, it may be nil.
func NewAuditor(store phiterm.Store, quote func(context.Context) phiterm.Quote) *Expert {
	return &Expert{
		Name: "Auditor",
		Description: `The Auditor reads the portal ledger: the session status and totals,
the accepted receipts, the invoices and the received settlements. They can
verify that the receipts fold into the recorded rolling root, and they know
the phiterm manual.`,
		Instruction: `You are the auditor of a Φ point of sale ledger. Use your tools to
answer questions about the portal status and totals, the accepted receipts,
the invoices and the settlement inbox, and the integrity of the ledger.

Here is how the portal works:

` + must(docs.Read("portal", "audit")),
		Tools: NewToolbox(AuditorTools(store, quote)...),
	}
}

// Func is a Tool built from a declaration and a function.
type Func struct {
	Decl *genai.FunctionDeclaration
	Func func(ctx context.Context, args map[string]any) (string, error)
}

func (f *Func) Declaration() *genai.FunctionDeclaration { return f.Decl }
func (f *Func) Call(ctx context.Context, args map[string]any) (string, error) {
	return f.Func(ctx, args)
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

// report declares a function without parameters returning a markdown report.
func report(name, description string, f func(ctx context.Context) (string, error)) *Func {
	return &Func{
		Decl: &genai.FunctionDeclaration{
			Name:        name,
			Description: description,
			Parameters:  &genai.Schema{Type: genai.TypeObject},
			Response:    &genai.Schema{Type: genai.TypeString, Description: "A markdown report."},
		},
		Func: func(ctx context.Context, _ map[string]any) (string, error) { return f(ctx) },
	}
}

// lookup declares a function taking a single string parameter.
func lookup(name, description, param, paramDescription string, f func(ctx context.Context, arg string) (string, error)) *Func {
	return &Func{
		Decl: &genai.FunctionDeclaration{
			Name:        name,
			Description: description,
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: map[string]*genai.Schema{param: {Type: genai.TypeString, Description: paramDescription}},
				Required:   []string{param},
			},
			Response: &genai.Schema{Type: genai.TypeString},
		},
		Func: func(ctx context.Context, args map[string]any) (string, error) {
			arg, err := stringArg(args, param)
			if err != nil {
				return "", err
			}
			return f(ctx, arg)
		},
	}
}

// AuditorTools returns the tools of the auditor.
func AuditorTools(store phiterm.Store, quote func(context.Context) phiterm.Quote) []*Func {
	if quote == nil {
		quote = func(context.Context) phiterm.Quote { return phiterm.Quote{Status: phiterm.QuoteUnavailable} }
	}
	return []*Func{
		report("Status", "Status returns the current portal session: its state, receipt count, totals and rolling root.",
			func(ctx context.Context) (string, error) {
				meta, err := store.Session(ctx)
				if err != nil {
					return "", err
				}
				return renderer.RenderStatus(renderer.NewStatus(meta, quote(ctx))), nil
			}),
		report("Receipts", "Receipts lists every accepted settlement of the session, in acceptance order.",
			func(ctx context.Context) (string, error) {
				rows, err := store.Receipts(ctx)
				if err != nil {
					return "", err
				}
				return renderer.RenderReceipts(renderer.NewReceipts(rows, quote(ctx))), nil
			}),
		report("Inbox", "Inbox lists the invoices with their status, and every settlement received, accepted or not.",
			func(ctx context.Context) (string, error) {
				invoices, err := store.Invoices(ctx, phiterm.InvoiceFilter{})
				if err != nil {
					return "", err
				}
				settlements, err := store.Settlements(ctx, 0)
				if err != nil {
					return "", err
				}
				return renderer.RenderInbox(renderer.NewInbox(invoices, settlements)), nil
			}),
		report("Verify", "Verify folds the stored receipts and compares the result with the session rolling root and totals.",
			func(ctx context.Context) (string, error) {
				return verifyLedger(ctx, store)
			}),
		lookup("Invoice", "Invoice returns an invoice and its status, as JSON.", "invoiceId", "The invoice id, or a prefix of at least 8 characters.",
			func(ctx context.Context, id string) (string, error) {
				return findInvoice(ctx, store, id)
			}),
		lookup("Manual", "Manual searches the phiterm manual and returns the matching lines.", "term", "The term to search.",
			func(_ context.Context, term string) (string, error) {
				return searchManual(term), nil
			}),
	}
}

// verifyLedger audits the stored receipts against the session, the way a
// settlement document is audited.
func verifyLedger(ctx context.Context, store phiterm.Store) (string, error) {
	meta, err := store.Session(ctx)
	if err != nil {
		return "", err
	}
	if meta == nil {
		return "The register is LOCKED: there is no ledger to verify.", nil
	}
	rows, err := store.Receipts(ctx)
	if err != nil {
		return "", err
	}
	doc := phiterm.NewSettlementDocument(*meta, rows, nil)
	if err := phiterm.VerifyDocument(doc); err != nil {
		return fmt.Sprintf("The ledger does NOT verify:\n\n%v", err), nil
	}
	return fmt.Sprintf("The ledger verifies: %d receipts fold into root %s for a total of %s Φ.", len(rows), meta.RollingRoot, meta.TotalPhi), nil
}

// findInvoice returns the invoice record whose id starts with prefix.
func findInvoice(ctx context.Context, store phiterm.Store, prefix string) (string, error) {
	if len(prefix) < 8 {
		return "", fmt.Errorf("invoice id %q is too short", prefix)
	}
	all, err := store.Invoices(ctx, phiterm.InvoiceFilter{})
	if err != nil {
		return "", err
	}
	var found []phiterm.InvoiceRecord
	for _, rec := range all {
		if strings.HasPrefix(rec.Invoice.InvoiceID, prefix) {
			found = append(found, rec)
		}
	}
	switch len(found) {
	case 0:
		return "", fmt.Errorf("no invoice %q", prefix)
	case 1:
		data, err := json.MarshalIndent(found[0], "", "  ")
		return string(data), err
	default:
		return "", fmt.Errorf("%d invoices start with %q", len(found), prefix)
	}
}

// searchManual formats the manual lines containing term.
func searchManual(term string) string {
	matches := docs.Search(term)
	if len(matches) == 0 {
		return fmt.Sprintf("The manual does not mention %q.", term)
	}
	var b strings.Builder
	for _, m := range matches {
		fmt.Fprintf(&b, "- %s:%d: %s\n", m.Topic, m.Line, m.Text)
	}
	return b.String()
}
