//go:build linux

package discord

import (
	"bytes"
	"os"
)

// wslRelayHint explains how to reach the Windows Discord client from WSL2,
// where its named pipe is not visible as a Unix socket.
const wslRelayHint = `running under WSL; relay the pipe with socat UNIX-LISTEN:/tmp/discord-ipc-0,fork EXEC:"npiperelay.exe -ep -s //./pipe/discord-ipc-0"`

// isWSL reports whether a /proc/version string belongs to a WSL kernel.
func isWSL(procVersion []byte) bool {
	return bytes.Contains(bytes.ToLower(procVersion), []byte("microsoft"))
}

// unavailableHint returns extra advice for a failed connection.
func unavailableHint() string {
	data, err := os.ReadFile("/proc/version")
	if err != nil || !isWSL(data) {
		return ""
	}
	return wslRelayHint
}
