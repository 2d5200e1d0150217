// Package cmd implements the CLI application of a Φ point of sale.
package cmd

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/etnz/phiterm"
	"github.com/etnz/phiterm/sqlstore"
	"github.com/google/subcommands"
	"gopkg.in/yaml.v3"
)

// Commands lists the subcommands.
var Commands = []subcommands.Command{
	&armCmd{},
	&openCmd{},
	&closeCmd{},
	&directCmd{},
	&patchAnchorCmd{},

	&invoiceCmd{},
	&cancelCmd{},
	&expireCmd{},
	&ingestCmd{},
	&payCmd{},
	&serveCmd{},

	&statusCmd{},
	&receiptsCmd{},
	&inboxCmd{},
	&exportCmd{},
	&verifyCmd{},
	&convertCmd{},

	&topicCmd{},
	&AssistCmd{},
}

// as a CLI application, it has a very short lived lifecycle, so it is ok to use global variables.

var (
	storeDir = flag.String("store", "", "Path to the store folder (default $PHITERM_STORE or .phiterm)")
	backend  = flag.String("backend", "", "Store backend, file or sqlite")
	rateURL  = flag.String("rate-url", "", "URL of the USD per Φ quote")
	ratePath = flag.String("rate-path", "", "JSONPath of the quote in the rate document")
	Verbose  = flag.Bool("v", false, "verbose logging")
)

const (
	EnvStore    = "PHITERM_STORE"
	EnvBackend  = "PHITERM_BACKEND"
	EnvRateURL  = "PHITERM_RATE_URL"
	EnvRatePath = "PHITERM_RATE_PATH"
	EnvVerbose  = "PHITERM_VERBOSE"
	// EnvTestingNow freezes the clock, RFC 3339.
	EnvTestingNow = "PHITERM_TESTING_NOW"
)

// configFile is the name of the optional config file in the store folder.
const configFile = "phiterm.yaml"

// Config holds the application settings.
type Config struct {
	Store    string `yaml:"-"`
	Backend  string `yaml:"backend"`
	Presence string `yaml:"presence"`
	Rate     struct {
		URL   string `yaml:"url"`
		Path  string `yaml:"path"`
		Cache string `yaml:"cache"`
	} `yaml:"rate"`
	Identity struct {
		KeyPaths   []string `yaml:"keyPaths"`
		LabelPaths []string `yaml:"labelPaths"`
	} `yaml:"identity"`
	Serve struct {
		Addr string `yaml:"addr"`
	} `yaml:"serve"`
}

// LoadConfig reads the config file of the store folder dir, if any, and
// applies environment variables over it.
func LoadConfig(dir string, getenv func(string) string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(filepath.Join(dir, configFile))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("invalid %s: %w", configFile, err)
		}
	}
	cfg.Store = dir

	override := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	override(&cfg.Backend, getenv(EnvBackend))
	override(&cfg.Rate.URL, getenv(EnvRateURL))
	override(&cfg.Rate.Path, getenv(EnvRatePath))

	if cfg.Backend == "" {
		cfg.Backend = "file"
	}
	if cfg.Presence == "" {
		cfg.Presence = "prompt"
	}
	if cfg.Serve.Addr == "" {
		cfg.Serve.Addr = "localhost:8480"
	}
	return cfg, nil
}

// appConfig returns the config of this run: file, environment, then flags.
func appConfig() (Config, error) {
	dir := *storeDir
	if dir == "" {
		dir = os.Getenv(EnvStore)
	}
	if dir == "" {
		dir = ".phiterm"
	}
	cfg, err := LoadConfig(dir, os.Getenv)
	if err != nil {
		return cfg, err
	}
	if *backend != "" {
		cfg.Backend = *backend
	}
	if *rateURL != "" {
		cfg.Rate.URL = *rateURL
	}
	if *ratePath != "" {
		cfg.Rate.Path = *ratePath
	}
	if !*Verbose && os.Getenv(EnvVerbose) != "true" {
		log.SetOutput(io.Discard)
	}
	return cfg, nil
}

// OpenStore opens the store of cfg. The returned function releases it.
func OpenStore(cfg Config) (phiterm.Store, func() error, error) {
	switch cfg.Backend {
	case "file":
		s, err := phiterm.OpenFileStore(cfg.Store)
		if err != nil {
			return nil, nil, err
		}
		return s, func() error { return nil }, nil
	case "sqlite":
		s, err := sqlstore.Open(filepath.Join(cfg.Store, "phiterm.db"))
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// clock returns time.Now, unless the clock is frozen by EnvTestingNow.
func clock() func() time.Time {
	if v := os.Getenv(EnvTestingNow); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return func() time.Time { return t }
		}
		log.Printf("ignoring invalid %s %q", EnvTestingNow, v)
	}
	return time.Now
}

// app is what a command needs to run against the register.
type app struct {
	cfg      Config
	register *phiterm.Register
	rates    *phiterm.RateSource
	close    func() error
}

// openApp loads the config and opens the register.
func openApp() (*app, error) {
	cfg, err := appConfig()
	if err != nil {
		return nil, err
	}
	store, closeStore, err := OpenStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("cannot open store %q: %w", cfg.Store, err)
	}
	extractor := phiterm.MetadataExtractor{KeyPaths: cfg.Identity.KeyPaths, LabelPaths: cfg.Identity.LabelPaths}

	var presence phiterm.PresenceVerifier = phiterm.AlwaysPresent
	if cfg.Presence == "prompt" {
		presence = &promptPresence{in: bufio.NewReader(os.Stdin), out: os.Stderr, store: store}
	}

	r := phiterm.NewRegister(store, extractor, presence)
	r.Now = clock()
	return &app{
		cfg:      cfg,
		register: r,
		rates:    &phiterm.RateSource{URL: cfg.Rate.URL, Path: cfg.Rate.Path, CacheDir: cfg.Rate.Cache},
		close:    closeStore,
	}, nil
}

// withApp opens the app, runs f, and releases the app. Errors are printed
// on stderr.
func withApp(ctx context.Context, f func(ctx context.Context, a *app) error) subcommands.ExitStatus {
	a, err := openApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.close()
	if err := f(ctx, a); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// promptPresence asks the owner to type the merchant key.
type promptPresence struct {
	in    *bufio.Reader
	out   io.Writer
	store phiterm.Store
}

func (p *promptPresence) Verify(ctx context.Context, purpose phiterm.Purpose) (phiterm.Presence, error) {
	meta, err := p.store.Session(ctx)
	if err != nil {
		return phiterm.Presence{}, err
	}
	if meta == nil {
		return phiterm.Presence{}, errors.New("no merchant to confirm")
	}
	fmt.Fprintf(p.out, "Confirm %s: type the merchant key: ", purpose)
	line, err := p.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return phiterm.Presence{}, err
	}
	return phiterm.Presence{OK: strings.TrimSpace(line) == meta.MerchantPhiKey}, nil
}

// readPayload reads a command argument: "-" for stdin, an existing file
// name, or the payload itself.
func readPayload(arg string) ([]byte, error) {
	if arg == "-" {
		return io.ReadAll(os.Stdin)
	}
	if data, err := os.ReadFile(arg); err == nil {
		return data, nil
	}
	return []byte(arg), nil
}

// writeOutput writes data to the file name, or stdout for "" or "-".
func writeOutput(name string, data []byte) error {
	if name == "" || name == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(name, data, 0o644)
}
