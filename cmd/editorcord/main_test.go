package main

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
	"testing"

	"tools.zach/dev/editorcord/internal/paths"
	"tools.zach/dev/editorcord/internal/presence"
)

// ///////////////////////////////////////////////
// Version
// ///////////////////////////////////////////////

func TestResolveVersion_Stamped(t *testing.T) {
	prev := version
	t.Cleanup(func() { version = prev })

	version = "0.3.0-dev.2+g1a2b3c4"
	if got := resolveVersion(); got != version {
		t.Errorf("resolveVersion() = %q, want %q", got, version)
	}
}

func TestDevVersion(t *testing.T) {
	rev := debug.BuildSetting{Key: "vcs.revision", Value: "05ffee5c0a1b2"}
	tests := []struct {
		name     string
		settings []debug.BuildSetting
		want     string
	}{
		{"no vcs info", nil, "dev"},
		{"clean", []debug.BuildSetting{rev, {Key: "vcs.modified", Value: "false"}}, "dev+05ffee5"},
		{"dirty", []debug.BuildSetting{{Key: "vcs.modified", Value: "true"}, rev}, "dev+05ffee5.dirty"},
		{"short revision", []debug.BuildSetting{{Key: "vcs.revision", Value: "abc"}}, "dev+abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := devVersion(tt.settings); got != tt.want {
				t.Errorf("devVersion() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDefaultDataDir(t *testing.T) {
	if dir := defaultDataDir(); filepath.Base(dir) != paths.DataDirRel {
		t.Errorf("defaultDataDir() = %q, want a %s directory", dir, paths.DataDirRel)
	}
}

// ///////////////////////////////////////////////
// toDiscordActivity
// ///////////////////////////////////////////////

func TestToDiscordActivity(t *testing.T) {
	if toDiscordActivity(nil) != nil {
		t.Fatal("toDiscordActivity(nil) should be nil")
	}

	full := toDiscordActivity(&presence.Payload{
		Details:        "Editing main.go",
		State:          "Workspace: editorcord",
		StartTimestamp: 1707900000,
		LargeImageKey:  "go",
		LargeImageText: "Editing a GO file",
		SmallImageKey:  "vscode",
		SmallImageText: "Visual Studio Code",
		Buttons:        []presence.Button{{Label: "View Repository", URL: "https://github.com/octo/editorcord"}},
	})
	if full.Details != "Editing main.go" || full.State != "Workspace: editorcord" {
		t.Errorf("text = %q / %q", full.Details, full.State)
	}
	if ts := full.Timestamps; ts == nil || ts.Start != 1707900000 || ts.End != 0 {
		t.Errorf("Timestamps = %+v", ts)
	}
	if a := full.Assets; a == nil || a.LargeImage != "go" || a.LargeText != "Editing a GO file" ||
		a.SmallImage != "vscode" || a.SmallText != "Visual Studio Code" {
		t.Errorf("Assets = %+v", a)
	}
	if len(full.Buttons) != 1 || full.Buttons[0].Label != "View Repository" {
		t.Errorf("Buttons = %+v", full.Buttons)
	}
	if full.Party != nil || full.Secrets != nil || full.Instance {
		t.Errorf("unexpected party/secrets/instance: %+v", full)
	}

	bare := toDiscordActivity(&presence.Payload{Details: "only details"})
	if bare.Timestamps != nil || bare.Assets != nil || bare.Buttons != nil {
		t.Errorf("empty sections should be omitted: %+v", bare)
	}
}

func TestToDiscordActivity_PartyAndSecrets(t *testing.T) {
	got := toDiscordActivity(&presence.Payload{
		EndTimestamp: 200,
		PartyID:      "room",
		PartySize:    3,
		MatchSecret:  "m",
		Instance:     true,
	})
	if got.Timestamps == nil || got.Timestamps.End != 200 {
		t.Errorf("Timestamps = %+v", got.Timestamps)
	}
	// A missing maximum is raised to the current size.
	if got.Party == nil || got.Party.ID != "room" || len(got.Party.Size) != 2 || got.Party.Size[1] != 3 {
		t.Errorf("Party = %+v", got.Party)
	}
	if got.Secrets == nil || got.Secrets.Match != "m" || got.Secrets.Join != "" || !got.Instance {
		t.Errorf("Secrets = %+v, Instance = %v", got.Secrets, got.Instance)
	}
}

// ///////////////////////////////////////////////
// PID File
// ///////////////////////////////////////////////

// readOwner reads the PID file through the lock's own handle, since
// Windows refuses reads of a locked range from other handles.
func readOwner(t *testing.T, l *pidLock) string {
	t.Helper()
	buf := make([]byte, 64)
	n, err := l.f.ReadAt(buf, 0)
	if err != nil && n == 0 {
		t.Fatalf("ReadAt: %v", err)
	}
	return string(buf[:n])
}

func TestAcquirePIDLock(t *testing.T) {
	path := DataPaths{Root: t.TempDir()}.PID()

	l, err := acquirePIDLock(path)
	if err != nil {
		t.Fatalf("acquirePIDLock: %v", err)
	}
	want := strconv.Itoa(os.Getpid()) + ":" + l.token
	if got := readOwner(t, l); got != want {
		t.Errorf("PID file = %q, want %q", got, want)
	}
	if len(l.token) != 16 {
		t.Errorf("token %q, want 16 hex characters", l.token)
	}

	l.Release()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("PID file should be gone after Release, stat err = %v", err)
	}
	l.Release()
}

func TestAcquirePIDLock_HeldByAnother(t *testing.T) {
	path := DataPaths{Root: t.TempDir()}.PID()

	first, err := acquirePIDLock(path)
	if err != nil {
		t.Fatalf("acquirePIDLock: %v", err)
	}
	defer first.Release()

	_, err = acquirePIDLock(path)
	var running *runningError
	if !errors.As(err, &running) {
		t.Fatalf("second acquirePIDLock error = %v, want runningError", err)
	}
	if runtime.GOOS != "windows" && running.PID != os.Getpid() {
		t.Errorf("running PID = %d, want %d", running.PID, os.Getpid())
	}
	if !strings.Contains(err.Error(), "already running") {
		t.Errorf("error = %q", err)
	}
}

func TestAcquirePIDLock_TakesOverStaleFile(t *testing.T) {
	path := DataPaths{Root: t.TempDir()}.PID()
	if err := os.WriteFile(path, []byte("99999:staletokenlongerthanours"), 0o600); err != nil {
		t.Fatal(err)
	}

	l, err := acquirePIDLock(path)
	if err != nil {
		t.Fatalf("acquirePIDLock over stale file: %v", err)
	}
	defer l.Release()
	if got := readOwner(t, l); !strings.HasPrefix(got, strconv.Itoa(os.Getpid())+":") || strings.Contains(got, "stale") {
		t.Errorf("PID file = %q, want it rewritten for this process", got)
	}
}

func TestPIDLockRelease_KeepsSuccessorsFile(t *testing.T) {
	path := DataPaths{Root: t.TempDir()}.PID()
	l, err := acquirePIDLock(path)
	if err != nil {
		t.Fatalf("acquirePIDLock: %v", err)
	}
	l.token = "someone-else"

	l.Release()
	if _, err := os.Stat(path); err != nil {
		t.Errorf("PID file with a foreign token should survive Release: %v", err)
	}

	var nilLock *pidLock
	nilLock.Release()
}

func TestRunningError(t *testing.T) {
	if got := (&runningError{}).Error(); got != "daemon already running" {
		t.Errorf("Error() = %q", got)
	}
	if got := (&runningError{PID: 42}).Error(); got != "daemon already running (pid 42)" {
		t.Errorf("Error() = %q", got)
	}
}
