//go:build !windows

package discord

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// sandboxDirs are the per-package socket directories of Snap and Flatpak
// builds, relative to a runtime directory.
var sandboxDirs = []string{
	"",
	"snap.discord",
	"snap.discord-canary",
	"snap.discord-ptb",
	"app/com.discordapp.Discord",
	"app/com.discordapp.DiscordCanary",
	"app/com.discordapp.DiscordPTB",
}

// socketNames are the socket prefixes of the stable, Canary and PTB clients.
var socketNames = []string{"discord-ipc", "discordcanary-ipc", "discordptb-ipc"}

// socketPaths lists candidate sockets in probe order: runtime and temp
// directories from the environment, then /run/user/<uid> and /tmp.
func socketPaths(getenv func(string) string, uid int) []string {
	var bases []string
	seen := map[string]bool{}
	add := func(dir string) {
		if dir == "" {
			return
		}
		dir = filepath.Clean(dir)
		if seen[dir] {
			return
		}
		seen[dir] = true
		bases = append(bases, dir)
	}
	for _, key := range []string{"XDG_RUNTIME_DIR", "TMPDIR", "TMP", "TEMP"} {
		add(getenv(key))
	}
	add("/run/user/" + strconv.Itoa(uid))
	add("/tmp")

	var out []string
	for _, base := range bases {
		for _, sub := range sandboxDirs {
			names := socketNames
			if sub != "" {
				names = socketNames[:1]
			}
			for _, name := range names {
				for i := range maxIPCSlots {
					out = append(out, filepath.Join(base, sub, fmt.Sprintf("%s-%d", name, i)))
				}
			}
		}
	}
	return out
}

// connectToDiscord dials the first candidate socket that accepts.
func connectToDiscord(timeout time.Duration) (net.Conn, error) {
	d := net.Dialer{Timeout: timeout}
	for _, path := range socketPaths(os.Getenv, os.Getuid()) {
		if conn, err := d.Dial("unix", path); err == nil {
			return conn, nil
		}
	}
	if hint := unavailableHint(); hint != "" {
		return nil, fmt.Errorf("%w: %s", ErrIPCNotAvailable, hint)
	}
	return nil, ErrIPCNotAvailable
}
