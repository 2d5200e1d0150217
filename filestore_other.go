//go:build !unix && !windows

package phiterm

import "os"

// Without OS file locks, the store is only shared within the process.
func lockExclusive(*os.File) error { return nil }

func unlockFile(*os.File) error { return nil }
