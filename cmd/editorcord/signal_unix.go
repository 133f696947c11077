//go:build !windows

package main

import (
	"os"
	"os/signal"

	"golang.org/x/sys/unix"
)

// signalChannel returns a channel receiving SIGINT and SIGTERM (sent by
// systemd and launchd to stop the daemon).
func signalChannel() <-chan os.Signal {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, unix.SIGTERM)
	return ch
}
