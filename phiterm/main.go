// Command phiterm runs an offline-first Φ point of sale.
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/etnz/phiterm/cmd"
	"github.com/google/subcommands"
)

func main() {
	// Exits when the shell asks for completions.
	cmd.Completion().Complete("phiterm")

	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(commander.CommandsCommand(), "")

	known := make(map[string]bool)
	for _, c := range cmd.Commands {
		commander.Register(c, "")
		known[c.Name()] = true
	}

	flag.Parse()

	if sub := flag.Arg(0); sub != "" && !known[sub] && sub != "help" && sub != "flags" && sub != "commands" {
		if found, code := cmd.RunExtension(sub, flag.Args()[1:]); found {
			os.Exit(code)
		}
	}
	os.Exit(int(commander.Execute(context.Background())))
}
