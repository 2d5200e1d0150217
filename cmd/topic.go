package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/etnz/phiterm/docs"
	"github.com/google/subcommands"
)

type topicCmd struct {
	search string
}

func (*topicCmd) Name() string     { return "topic" }
func (*topicCmd) Synopsis() string { return "read the manual" }
func (*topicCmd) Usage() string {
	return `phiterm topic [-search <term>] [<topic>...]

  Prints manual topics, '*' for all of them. Without topic, prints the list
  of topics. With -search, lists the lines of the manual containing term.
`
}

func (c *topicCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.search, "search", "", "search the manual for a term")
}

func (c *topicCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.search != "" {
		matches := docs.Search(c.search)
		if len(matches) == 0 {
			fmt.Fprintf(os.Stderr, "%q is not in the manual\n", c.search)
			return subcommands.ExitFailure
		}
		var b strings.Builder
		fmt.Fprintf(&b, "| Topic | Line | Text |\n|:---|---:|:---|\n")
		for _, m := range matches {
			fmt.Fprintf(&b, "| %s | %d | %s |\n", m.Topic, m.Line, strings.ReplaceAll(m.Text, "|", `\|`))
		}
		printMarkdown(b.String())
		return subcommands.ExitSuccess
	}

	doc, err := docs.Read(f.Args()...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	printMarkdown(doc)
	return subcommands.ExitSuccess
}
