package agent

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"google.golang.org/genai"
)

// Assistant runs a chat session with a facilitator consulting experts.
type Assistant struct {
	Facilitator *Expert
	Experts     []*Expert
	// Markdown renders answers for the terminal, they are printed as is when nil.
	Markdown func(string) (string, error)

	w io.Writer
	r *bufio.Reader
}

// New returns an assistant conversing on w and r.
func New(w io.Writer, r io.Reader, experts ...*Expert) *Assistant {
	return &Assistant{
		Facilitator: newFacilitator(experts...),
		Experts:     experts,
		w:           w,
		r:           bufio.NewReader(r),
	}
}

func newFacilitator(experts ...*Expert) *Expert {
	return &Expert{
		Name: "Facilitator",
		Instruction: `You lead the conversation with a merchant who runs a point of sale
receiving payments in Φ. They mostly want to know what was received, what is
still unpaid, and whether the books add up.

The experts in your tools keep the context of your previous questions. Plan
the questions to ask them and combine their answers. Never invent an amount:
every figure must come from an expert.`,
		Tools: NewToolbox(experts...),
	}
}

// Start opens the chats of the experts and the facilitator.
func (a *Assistant) Start(ctx context.Context, client *genai.Client) error {
	for _, e := range append(a.Experts, a.Facilitator) {
		if err := e.Start(ctx, client); err != nil {
			return err
		}
	}
	return nil
}

// quit tells whether input ends the session.
func quit(input string) bool {
	switch strings.ToLower(input) {
	case "bye", "quit", "exit":
		return true
	}
	return false
}

// next returns the next question: scripted ones first, then the reader.
func (a *Assistant) next(scripted *[]string) (string, error) {
	fmt.Fprint(a.w, "assist> ")
	for len(*scripted) > 0 {
		q := strings.TrimSpace((*scripted)[0])
		*scripted = (*scripted)[1:]
		if q != "" {
			fmt.Fprintln(a.w, q)
			return q, nil
		}
	}
	line, err := a.r.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Run answers questions until the merchant leaves. scripted questions are
// asked first.
func (a *Assistant) Run(ctx context.Context, client *genai.Client, scripted ...string) error {
	if a.Facilitator.chat == nil {
		if err := a.Start(ctx, client); err != nil {
			return err
		}
	}
	fmt.Fprintln(a.w, "Welcome to the phiterm audit assistant. Type 'bye' to exit.")

	for {
		q, err := a.next(&scripted)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if q == "" {
			continue
		}
		if quit(q) {
			return nil
		}
		answer, err := a.Facilitator.Ask(ctx, &genai.Part{Text: q})
		if err != nil {
			return err
		}
		a.print(answer)
	}
}

// Answer prints the answer to a single question.
func (a *Assistant) Answer(ctx context.Context, client *genai.Client, question string) error {
	if a.Facilitator.chat == nil {
		if err := a.Start(ctx, client); err != nil {
			return err
		}
	}
	answer, err := a.Facilitator.Ask(ctx, &genai.Part{Text: question})
	if err != nil {
		return err
	}
	a.print(answer)
	return nil
}

func (a *Assistant) print(md string) {
	if a.Markdown != nil {
		if out, err := a.Markdown(md); err == nil {
			md = out
		}
	}
	fmt.Fprintln(a.w, md)
}
