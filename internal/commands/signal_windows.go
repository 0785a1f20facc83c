//go:build windows

package commands

import "os"

func foregroundSignals() []os.Signal { return nil }
