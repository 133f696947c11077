package discord

import (
	"encoding/json"
	"errors"
	"net"
	"os"
	"strings"
	"testing"
	"time"
)

// ///////////////////////////////////////////////
// Test Helpers
// ///////////////////////////////////////////////

// pipeClient returns a client whose dialer hands out one end of an
// in-memory pipe, and the other end for the test to play Discord.
func pipeClient(t *testing.T) (*Client, net.Conn) {
	t.Helper()
	server, conn := net.Pipe()
	t.Cleanup(func() {
		server.Close()
		conn.Close()
	})
	c := NewClient("test-app-id")
	c.timeout = 2 * time.Second
	c.dial = func(time.Duration) (net.Conn, error) { return conn, nil }
	return c, server
}

func readFrame(t *testing.T, conn net.Conn) Frame {
	t.Helper()
	f, err := ReadFrame(conn)
	if err != nil {
		t.Fatalf("ReadFrame() error: %v", err)
	}
	return f
}

func writeFrame(t *testing.T, conn net.Conn, op Opcode, v any) {
	t.Helper()
	if err := WriteFrame(conn, op, v); err != nil {
		t.Fatalf("WriteFrame() error: %v", err)
	}
}

// readCommand reads a command frame and returns it with its raw args.
func readCommand(t *testing.T, conn net.Conn) (command, json.RawMessage) {
	t.Helper()
	f := readFrame(t, conn)
	if f.Op != OpFrame {
		t.Fatalf("opcode = %s, want FRAME", f.Op)
	}
	var raw struct {
		command
		Args json.RawMessage `json:"args"`
	}
	if err := f.Decode(&raw); err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	return raw.command, raw.Args
}

func ack(t *testing.T, conn net.Conn, cmd command) {
	t.Helper()
	writeFrame(t, conn, OpFrame, response{Cmd: cmd.Cmd, Nonce: cmd.Nonce})
}

// connect completes a handshake against server.
func connect(t *testing.T, c *Client, server net.Conn) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- c.Connect() }()

	readFrame(t, server)
	writeFrame(t, server, OpFrame, map[string]any{
		"cmd":  cmdDispatch,
		"evt":  evtReady,
		"data": map[string]any{"user": map[string]any{"username": "octo"}},
	})
	if err := <-done; err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
}

// async runs fn in a goroutine and returns its result channel.
func async(fn func() error) <-chan error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	return done
}

// ///////////////////////////////////////////////
// Connect
// ///////////////////////////////////////////////

func TestClient_Connect_Handshake(t *testing.T) {
	c, server := pipeClient(t)
	done := async(c.Connect)

	f := readFrame(t, server)
	if f.Op != OpHandshake {
		t.Fatalf("opcode = %s, want HANDSHAKE", f.Op)
	}
	var hs handshake
	if err := f.Decode(&hs); err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if hs.Version != 1 || hs.ClientID != "test-app-id" {
		t.Errorf("handshake = %+v", hs)
	}
	writeFrame(t, server, OpFrame, map[string]any{
		"cmd":  cmdDispatch,
		"evt":  evtReady,
		"data": map[string]any{"user": map[string]any{"username": "octo"}},
	})

	if err := <-done; err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	if !c.Connected() {
		t.Error("Connected() = false after handshake")
	}
	if c.User() != "octo" {
		t.Errorf("User() = %q, want %q", c.User(), "octo")
	}
}

func TestClient_Connect_Rejected(t *testing.T) {
	tests := []struct {
		name  string
		op    Opcode
		reply any
	}{
		{"error event", OpFrame, map[string]any{"evt": evtError, "data": map[string]any{"code": 4000, "message": "Invalid Client ID"}}},
		{"close frame", OpClose, map[string]any{"code": 4000, "message": "Invalid Client ID"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, server := pipeClient(t)
			done := async(c.Connect)
			readFrame(t, server)
			writeFrame(t, server, tt.op, tt.reply)

			err := <-done
			var de *Error
			if !errors.As(err, &de) || de.Code != 4000 {
				t.Fatalf("Connect() error = %v, want discord error 4000", err)
			}
			if !strings.Contains(err.Error(), "Invalid Client ID") {
				t.Errorf("error %q missing message", err)
			}
			if c.Connected() {
				t.Error("Connected() = true after rejected handshake")
			}
		})
	}
}

func TestClient_Connect_DialFailure(t *testing.T) {
	c := NewClient("id")
	c.dial = func(time.Duration) (net.Conn, error) { return nil, ErrIPCNotAvailable }
	if err := c.Connect(); !errors.Is(err, ErrIPCNotAvailable) {
		t.Errorf("Connect() error = %v, want ErrIPCNotAvailable", err)
	}
	if c.Connected() {
		t.Error("Connected() = true after dial failure")
	}
}

func TestClient_Connect_ReplacesOldConnection(t *testing.T) {
	c, server := pipeClient(t)
	connect(t, c, server)

	server2, conn2 := net.Pipe()
	defer server2.Close()
	defer conn2.Close()
	c.dial = func(time.Duration) (net.Conn, error) { return conn2, nil }
	connect(t, c, server2)

	// The first pipe was closed by the reconnect.
	if _, err := server.Read(make([]byte, 1)); err == nil {
		t.Error("old connection should be closed")
	}
}

// ///////////////////////////////////////////////
// Commands
// ///////////////////////////////////////////////

func TestClient_SetActivity(t *testing.T) {
	c, server := pipeClient(t)
	connect(t, c, server)

	activity := &Activity{
		Details:    "Editing main.go",
		State:      "Workspace: app",
		Timestamps: &Timestamps{Start: 1000000},
		Assets:     &Assets{LargeImage: "go", LargeText: "Editing a GO file"},
		Party:      &Party{ID: "room", Size: []int{1, 4}},
		Secrets:    &Secrets{Join: "j"},
		Buttons:    []Button{{Label: "View Repository", URL: "https://github.com/octo/app"}},
	}
	done := async(func() error { return c.SetActivity(activity) })

	cmd, raw := readCommand(t, server)
	if cmd.Cmd != cmdSetActivity || cmd.Nonce == "" {
		t.Errorf("command = %+v", cmd)
	}
	var args struct {
		PID      int      `json:"pid"`
		Activity Activity `json:"activity"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if args.PID != os.Getpid() {
		t.Errorf("pid = %d, want %d", args.PID, os.Getpid())
	}
	got := args.Activity
	if got.Details != "Editing main.go" || got.Assets.LargeImage != "go" || got.Timestamps.Start != 1000000 {
		t.Errorf("activity = %+v", got)
	}
	if got.Party == nil || len(got.Party.Size) != 2 || got.Party.Size[1] != 4 {
		t.Errorf("party = %+v", got.Party)
	}
	if got.Secrets == nil || got.Secrets.Join != "j" {
		t.Errorf("secrets = %+v", got.Secrets)
	}
	if len(got.Buttons) != 1 || got.Buttons[0].URL != "https://github.com/octo/app" {
		t.Errorf("buttons = %+v", got.Buttons)
	}
	ack(t, server, cmd)

	if err := <-done; err != nil {
		t.Fatalf("SetActivity() error: %v", err)
	}
}

func TestClient_ClearActivity_SendsNull(t *testing.T) {
	c, server := pipeClient(t)
	connect(t, c, server)

	done := async(c.ClearActivity)
	cmd, raw := readCommand(t, server)
	if !strings.Contains(string(raw), `"activity":null`) {
		t.Errorf("args = %s, want null activity", raw)
	}
	ack(t, server, cmd)
	if err := <-done; err != nil {
		t.Fatalf("ClearActivity() error: %v", err)
	}
}

func TestClient_ErrorResponseKeepsConnection(t *testing.T) {
	c, server := pipeClient(t)
	connect(t, c, server)

	done := async(func() error { return c.SetActivity(&Activity{Details: "x"}) })
	cmd, _ := readCommand(t, server)
	writeFrame(t, server, OpFrame, map[string]any{
		"cmd":   cmd.Cmd,
		"evt":   evtError,
		"nonce": cmd.Nonce,
		"data":  map[string]any{"code": 4002, "message": "child \"activity\" fails"},
	})

	var de *Error
	if err := <-done; !errors.As(err, &de) || de.Code != 4002 {
		t.Fatalf("SetActivity() error = %v, want discord error 4002", err)
	}
	if !c.Connected() {
		t.Error("an error response should not drop the connection")
	}
}

func TestClient_AnswersPingAndSkipsOtherNonces(t *testing.T) {
	c, server := pipeClient(t)
	connect(t, c, server)

	done := async(c.ClearActivity)
	cmd, _ := readCommand(t, server)

	writeFrame(t, server, OpPing, map[string]any{"seq": 7})
	pong := readFrame(t, server)
	if pong.Op != OpPong || string(pong.Payload) != `{"seq":7}` {
		t.Errorf("pong = %s %s", pong.Op, pong.Payload)
	}
	writeFrame(t, server, OpFrame, response{Cmd: cmdDispatch, Evt: "ACTIVITY_JOIN"})
	ack(t, server, cmd)

	if err := <-done; err != nil {
		t.Fatalf("ClearActivity() error: %v", err)
	}
}

func TestClient_NonceUniqueness(t *testing.T) {
	c, server := pipeClient(t)
	connect(t, c, server)

	seen := map[string]bool{}
	for range 3 {
		done := async(c.ClearActivity)
		cmd, _ := readCommand(t, server)
		if seen[cmd.Nonce] {
			t.Fatalf("duplicate nonce %q", cmd.Nonce)
		}
		seen[cmd.Nonce] = true
		ack(t, server, cmd)
		if err := <-done; err != nil {
			t.Fatalf("ClearActivity() error: %v", err)
		}
	}
}

func TestClient_NotConnected(t *testing.T) {
	c := NewClient("id")
	if err := c.SetActivity(&Activity{}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("SetActivity() error = %v, want ErrNotConnected", err)
	}
	if err := c.ClearActivity(); !errors.Is(err, ErrNotConnected) {
		t.Errorf("ClearActivity() error = %v, want ErrNotConnected", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on disconnected client = %v", err)
	}
}

// ///////////////////////////////////////////////
// Transport Failures
// ///////////////////////////////////////////////

func TestClient_WriteFailureDisconnects(t *testing.T) {
	c, server := pipeClient(t)
	connect(t, c, server)
	server.Close()

	if err := c.SetActivity(&Activity{Details: "x"}); err == nil {
		t.Fatal("expected error writing to a closed pipe")
	}
	if c.Connected() {
		t.Error("Connected() = true after write failure")
	}
}

func TestClient_CloseFrameDisconnects(t *testing.T) {
	c, server := pipeClient(t)
	connect(t, c, server)

	done := async(c.ClearActivity)
	readCommand(t, server)
	writeFrame(t, server, OpClose, map[string]any{"code": 1000, "message": "bye"})

	if err := <-done; !errors.Is(err, ErrClosed) {
		t.Fatalf("ClearActivity() error = %v, want ErrClosed", err)
	}
	if c.Connected() {
		t.Error("Connected() = true after CLOSE frame")
	}
}

func TestClient_ResponseTimeoutDisconnects(t *testing.T) {
	c, server := pipeClient(t)
	connect(t, c, server)
	c.timeout = 50 * time.Millisecond

	done := async(c.ClearActivity)
	readCommand(t, server)

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected timeout error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("command did not time out")
	}
	if c.Connected() {
		t.Error("Connected() = true after timeout")
	}
}

// ///////////////////////////////////////////////
// Close
// ///////////////////////////////////////////////

func TestClient_Close_ClearsAndSaysGoodbye(t *testing.T) {
	c, server := pipeClient(t)
	connect(t, c, server)

	done := async(c.Close)
	cmd, raw := readCommand(t, server)
	if !strings.Contains(string(raw), `"activity":null`) {
		t.Errorf("close should clear the activity, got %s", raw)
	}
	ack(t, server, cmd)
	if f := readFrame(t, server); f.Op != OpClose {
		t.Errorf("opcode = %s, want CLOSE", f.Op)
	}

	if err := <-done; err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if c.Connected() {
		t.Error("Connected() = true after Close")
	}
}

func TestClient_AppID(t *testing.T) {
	if got := NewClient("123").AppID(); got != "123" {
		t.Errorf("AppID() = %q, want %q", got, "123")
	}
}
