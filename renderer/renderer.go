// Package renderer turns portal views into markdown reports.
//
// A report is a page template that includes partial templates by name. Pages
// are parsed once, on first use.
package renderer

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"text/template"
)

// page is a report template and the partials it includes.
type page struct {
	main     string
	partials []string // template files, included by their base name
	// blank partials are defined empty, for variants of a page.
	blank []string

	once sync.Once
	tmpl *template.Template
	err  error
}

func newPage(main string, partials ...string) *page {
	return &page{main: main, partials: partials}
}

// without returns a variant of p where the named partials render nothing.
func (p *page) without(blank ...string) *page {
	return &page{main: p.main, partials: p.partials, blank: blank}
}

func (p *page) parse() (*template.Template, error) {
	p.once.Do(func() {
		p.tmpl, p.err = template.New(p.main).ParseFS(templates, p.main)
		if p.err != nil {
			return
		}
		for _, file := range p.partials {
			name := strings.TrimSuffix(file, ".md")
			text := ""
			if !slices.Contains(p.blank, name) {
				content, err := templates.ReadFile(file)
				if err != nil {
					p.err = err
					return
				}
				text = string(content)
			}
			if _, err := p.tmpl.New(name).Parse(text); err != nil {
				p.err = fmt.Errorf("partial %s: %w", file, err)
				return
			}
		}
	})
	return p.tmpl, p.err
}

// render executes the page on data. Template failures are reported in the
// output.
func (p *page) render(data any) string {
	tmpl, err := p.parse()
	if err != nil {
		return fmt.Sprintf("error parsing %s: %v", p.main, err)
	}
	var b strings.Builder
	if err := tmpl.ExecuteTemplate(&b, p.main, data); err != nil {
		return fmt.Sprintf("error rendering %s: %v", p.main, err)
	}
	return b.String()
}

var (
	statusPage       = newPage("status.md", "status_title.md", "status_totals.md")
	lockedStatusPage = statusPage.without("status_totals")
	receiptsPage     = newPage("receipts.md", "receipts_table.md")
	inboxPage        = newPage("inbox.md", "inbox_invoices.md", "inbox_settlements.md")
	documentPage     = newPage("document.md", "document_title.md", "receipts_table.md", "document_audit.md")
)

// RenderStatus renders the portal status.
func RenderStatus(s *Status) string {
	if s.Locked {
		return lockedStatusPage.render(s)
	}
	return statusPage.render(s)
}

// RenderReceipts renders the accepted receipts.
func RenderReceipts(r *Receipts) string { return receiptsPage.render(r) }

// RenderInbox renders invoices and received settlements.
func RenderInbox(in *Inbox) string { return inboxPage.render(in) }

// RenderDocument renders a settlement document and its audit.
func RenderDocument(d *Document) string { return documentPage.render(d) }
