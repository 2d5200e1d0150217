package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/etnz/phiterm/agent"
	"github.com/google/subcommands"
	"google.golang.org/genai"
)

// AssistCmd chats with the audit assistant.
type AssistCmd struct {
	once bool
}

func (*AssistCmd) Name() string     { return "assist" }
func (*AssistCmd) Synopsis() string { return "ask the audit assistant about the ledger" }
func (*AssistCmd) Usage() string {
	return `phiterm assist [-once] [<question>]

  Chats with the AI audit assistant. It reads the portal ledger and the
  manual, it never changes the ledger. With -once, answers the question and
  exits.

  Requires GOOGLE_API_KEY, or Vertex AI credentials, in the environment.
`
}

func (c *AssistCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.once, "once", false, "answer the question and exit")
}

func (c *AssistCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	question := strings.TrimSpace(strings.Join(f.Args(), " "))
	if c.once && question == "" {
		fmt.Fprintln(os.Stderr, "assist -once requires a question")
		return subcommands.ExitUsageError
	}

	return withApp(ctx, func(ctx context.Context, a *app) error {
		client, err := genai.NewClient(ctx, nil)
		if err != nil {
			return fmt.Errorf("cannot create the Gemini client: %w", err)
		}

		assistant := agent.New(os.Stdout, os.Stdin, agent.NewAuditor(a.register.Store(), a.rates.Quote))
		assistant.Markdown = renderMarkdown
		if c.once {
			return assistant.Answer(ctx, client, question)
		}
		if err := assistant.Run(ctx, client, question); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("assistant stopped: %w", err)
		}
		return nil
	})
}
