package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ///////////////////////////////////////////////
// PID File
// ///////////////////////////////////////////////

// runningError reports that another daemon holds the PID file lock.
type runningError struct {
	// PID is the other daemon's process ID, 0 when unreadable.
	PID int
}

func (e *runningError) Error() string {
	if e.PID == 0 {
		return "daemon already running"
	}
	return fmt.Sprintf("daemon already running (pid %d)", e.PID)
}

// pidLock is this process's claim on the PID file. The advisory lock lives
// as long as the file stays open; the token written next to the PID lets
// [pidLock.Release] tell its own file from one a successor wrote.
type pidLock struct {
	path  string
	token string
	f     *os.File
}

// acquirePIDLock locks the PID file at path and records "PID:TOKEN" in it.
// A file left behind by a dead daemon is unlocked and simply taken over.
func acquirePIDLock(path string) (*pidLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open PID file: %w", err)
	}
	if err := lockFile(f); err != nil {
		pid, _ := readPIDFile(f)
		f.Close()
		return nil, &runningError{PID: pid}
	}

	l := &pidLock{path: path, token: newPIDToken(), f: f}
	if err := l.write(); err != nil {
		_ = unlockFile(f)
		f.Close()
		return nil, err
	}
	return l, nil
}

func (l *pidLock) write() error {
	if err := l.f.Truncate(0); err != nil {
		return fmt.Errorf("truncate PID file: %w", err)
	}
	if _, err := l.f.WriteAt([]byte(strconv.Itoa(os.Getpid())+":"+l.token), 0); err != nil {
		return fmt.Errorf("write PID file: %w", err)
	}
	return nil
}

// Release drops the lock and deletes the file when it still carries this
// lock's token. It is safe to call on a nil lock.
func (l *pidLock) Release() {
	if l == nil || l.f == nil {
		return
	}
	_ = unlockFile(l.f)
	l.f.Close()
	l.f = nil

	data, err := os.ReadFile(l.path)
	if err != nil {
		return
	}
	if _, token, ok := strings.Cut(string(data), ":"); ok && token == l.token {
		os.Remove(l.path)
	}
}

// readPIDFile parses the PID stored at the start of f.
func readPIDFile(f *os.File) (int, error) {
	data, err := io.ReadAll(io.NewSectionReader(f, 0, 64))
	if err != nil {
		return 0, err
	}
	pid, _, _ := strings.Cut(string(data), ":")
	return strconv.Atoi(pid)
}

// newPIDToken returns 16 random hex characters.
func newPIDToken() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
