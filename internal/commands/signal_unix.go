//go:build !windows

package commands

import (
	"os"
	"syscall"
)

func foregroundSignals() []os.Signal {
	return []os.Signal{syscall.SIGCONT}
}
