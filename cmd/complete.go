package cmd

import (
	"flag"
	"os"

	"github.com/etnz/phiterm/docs"
	"github.com/posener/complete/v2"
	"github.com/posener/complete/v2/predict"
)

// argPredictors completes the arguments of the commands that take some.
func argPredictors() map[string]complete.Predictor {
	return map[string]complete.Predictor{
		"arm":          predict.Files("*"),
		"patch-anchor": predict.Files("*"),
		"ingest":       predict.Files("*"),
		"pay":          predict.Files("*"),
		"verify":       predict.Files("*"),
		"direct":       predict.Set{"on", "off"},
		"topic":        predict.Set(docs.Names()),
	}
}

// flagPredictors completes the flags of fs: booleans take no value.
func flagPredictors(fs *flag.FlagSet) map[string]complete.Predictor {
	flags := make(map[string]complete.Predictor)
	fs.VisitAll(func(f *flag.Flag) {
		if b, ok := f.Value.(interface{ IsBoolFlag() bool }); ok && b.IsBoolFlag() {
			flags[f.Name] = predict.Nothing
			return
		}
		flags[f.Name] = predict.Something
	})
	return flags
}

// Completion returns the shell completion of the application, global flags
// and extensions included.
func Completion() *complete.Command {
	args := argPredictors()
	root := &complete.Command{
		Sub:   make(map[string]*complete.Command),
		Flags: flagPredictors(flag.CommandLine),
	}
	for _, c := range Commands {
		fs := flag.NewFlagSet(c.Name(), flag.ContinueOnError)
		c.SetFlags(fs)
		root.Sub[c.Name()] = &complete.Command{
			Flags: flagPredictors(fs),
			Args:  args[c.Name()],
		}
	}
	// extensions complete their name only.
	for _, name := range Extensions(os.Getenv("PATH")) {
		if _, ok := root.Sub[name]; !ok {
			root.Sub[name] = &complete.Command{}
		}
	}
	return root
}
