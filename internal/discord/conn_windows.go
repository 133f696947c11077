//go:build windows

package discord

import (
	"fmt"
	"net"
	"time"

	"github.com/Microsoft/go-winio"
)

// pipeName returns the named pipe of IPC slot i. Every Discord build
// shares the same names on Windows.
func pipeName(i int) string {
	return fmt.Sprintf(`\\.\pipe\discord-ipc-%d`, i)
}

// connectToDiscord dials the first pipe slot that accepts.
func connectToDiscord(timeout time.Duration) (net.Conn, error) {
	for i := range maxIPCSlots {
		if conn, err := winio.DialPipe(pipeName(i), &timeout); err == nil {
			return conn, nil
		}
	}
	return nil, ErrIPCNotAvailable
}
