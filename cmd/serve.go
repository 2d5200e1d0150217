package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/etnz/phiterm"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/subcommands"
)

type serveCmd struct {
	addr string
}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "receive payloads over HTTP" }
func (*serveCmd) Usage() string {
	return `phiterm serve [-addr host:port]

  Serves the register over HTTP:

    POST /ingest     ingest the request body (JSON, link or SVG)
    GET  /ingest?r=  ingest a payment link
    GET  /portal     the portal session, JSON
    GET  /receipts   the receipts, JSON lines
    GET  /document   the settlement document of a CLOSED portal, SVG
`
}

func (c *serveCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.addr, "addr", "", "listen address, serve.addr of the config by default")
}

func (c *serveCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	return withApp(ctx, func(ctx context.Context, a *app) error {
		addr := c.addr
		if addr == "" {
			addr = a.cfg.Serve.Addr
		}
		srv := &http.Server{Addr: addr, Handler: newRouter(a.register), ReadHeaderTimeout: 10 * time.Second}
		go func() {
			<-ctx.Done()
			shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdown)
		}()
		fmt.Printf("Listening on http://%s\n", addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
}

// maxPayload bounds request bodies; SVG glyphs are the largest payloads.
const maxPayload = 4 << 20

// ingestResponse is the JSON answer of /ingest.
type ingestResponse struct {
	OK               bool               `json:"ok"`
	Kind             phiterm.IngestKind `json:"kind"`
	Note             string             `json:"note"`
	Error            string             `json:"error,omitempty"`
	InvoiceID        string             `json:"invoiceId,omitempty"`
	SettlementID     string             `json:"settlementId,omitempty"`
	MatchedInvoiceID string             `json:"matchedInvoiceId,omitempty"`
	Duplicate        bool               `json:"duplicate,omitempty"`
}

func newIngestResponse(res phiterm.IngestResult) (int, ingestResponse) {
	out := ingestResponse{OK: res.OK, Kind: res.Kind, Note: res.Note, MatchedInvoiceID: res.MatchedInvoiceID}
	if res.Invoice != nil {
		out.InvoiceID = res.Invoice.InvoiceID
	}
	if res.Settlement != nil {
		out.SettlementID = res.Settlement.SettlementID
	}
	if res.Accept != nil {
		out.Duplicate = res.Accept.Duplicate
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}

	switch {
	case res.OK:
		return http.StatusOK, out
	case res.Kind == phiterm.IngestError && errors.Is(res.Err, phiterm.ErrIllegalTransition):
		return http.StatusConflict, out
	case res.Kind == phiterm.IngestError:
		return http.StatusBadRequest, out
	default:
		return http.StatusUnprocessableEntity, out
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("cannot write response: %v", err)
	}
}

// newRouter returns the HTTP handler of register.
func newRouter(register *phiterm.Register) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)

	ingest := func(w http.ResponseWriter, req *http.Request, payload []byte) {
		status, out := newIngestResponse(register.Ingest(req.Context(), payload))
		writeJSON(w, status, out)
	}

	r.Post("/ingest", func(w http.ResponseWriter, req *http.Request) {
		payload, err := io.ReadAll(http.MaxBytesReader(w, req.Body, maxPayload))
		if err != nil {
			http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
			return
		}
		ingest(w, req, payload)
	})
	r.Get("/ingest", func(w http.ResponseWriter, req *http.Request) {
		enc := req.URL.Query().Get("r")
		if enc == "" {
			http.Error(w, "missing r parameter", http.StatusBadRequest)
			return
		}
		ingest(w, req, []byte(enc))
	})
	r.Get("/portal", func(w http.ResponseWriter, req *http.Request) {
		meta, err := register.Status(req.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if meta == nil {
			writeJSON(w, http.StatusOK, map[string]string{"status": string(phiterm.PortalLocked)})
			return
		}
		writeJSON(w, http.StatusOK, meta)
	})
	r.Get("/receipts", func(w http.ResponseWriter, req *http.Request) {
		rows, err := register.Store().Receipts(req.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/jsonl")
		if err := phiterm.ExportReceipts(w, rows); err != nil {
			log.Printf("cannot write receipts: %v", err)
		}
	})
	r.Get("/document", func(w http.ResponseWriter, req *http.Request) {
		doc, err := register.Document(req.Context())
		if errors.Is(err, phiterm.ErrIllegalTransition) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		svg, err := phiterm.BuildSettlementSVG(doc)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Write(svg)
	})
	return r
}
