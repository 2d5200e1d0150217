package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

// extensionPrefix is the name prefix of external phiterm commands.
const extensionPrefix = "phiterm-"

// extensionEnv returns env with the global flags set as PHITERM_* variables.
func extensionEnv(env []string) []string {
	set := func(key, value string) {
		if value != "" {
			env = append(env, key+"="+value)
		}
	}
	set(EnvStore, *storeDir)
	set(EnvBackend, *backend)
	set(EnvRateURL, *rateURL)
	set(EnvRatePath, *ratePath)
	return append(env, EnvVerbose+"="+strconv.FormatBool(*Verbose))
}

// RunExtension runs the phiterm-<name> executable found in the PATH with args.
// It reports whether there is such an extension, and its exit code.
func RunExtension(name string, args []string) (found bool, code int) {
	path, err := exec.LookPath(extensionPrefix + name)
	if err != nil {
		return false, 0
	}

	cmd := exec.Command(path, args...)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	cmd.Env = extensionEnv(os.Environ())
	err = cmd.Run()

	var exit *exec.ExitError
	switch {
	case err == nil:
		return true, 0
	case errors.As(err, &exit):
		return true, exit.ExitCode()
	default:
		fmt.Fprintf(os.Stderr, "Error running %s: %v\n", path, err)
		return true, 1
	}
}

// Extensions lists the names of the extensions found in the folders of
// pathList, a PATH-like list.
func Extensions(pathList string) []string {
	var names []string
	for _, dir := range filepath.SplitList(pathList) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			name, ok := strings.CutPrefix(e.Name(), extensionPrefix)
			if !ok || e.IsDir() || name == "" {
				continue
			}
			if info, err := e.Info(); err == nil && info.Mode()&0o111 != 0 {
				names = append(names, name)
			}
		}
	}
	slices.Sort(names)
	return slices.Compact(names)
}
