//go:build windows

package cmd

import "os"

// gracefulSignals returns the OS signals to capture for graceful
// shutdown. On Windows, only os.Interrupt is reliably delivered;
// SIGTERM does not exist on this platform.
func gracefulSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}
