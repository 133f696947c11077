// Package discord is a client for Discord's local IPC socket, publishing
// Rich Presence through the SET_ACTIVITY command.
//
// Socket discovery is platform specific: Unix sockets in the runtime and
// temp directories (including Snap and Flatpak sandboxes) and Windows named
// pipes via go-winio.
package discord

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"time"
)

// ///////////////////////////////////////////////
// Sentinel Errors
// ///////////////////////////////////////////////

// ErrNotConnected is returned when an operation requires an active connection.
var ErrNotConnected = errors.New("not connected")

// ErrClosed is returned when Discord closes the connection.
var ErrClosed = errors.New("connection closed by discord")

// DefaultTimeout bounds dialing and each command round trip.
const DefaultTimeout = 5 * time.Second

// ///////////////////////////////////////////////
// Client
// ///////////////////////////////////////////////

// Client is a connection to Discord for one application ID. Switching to a
// different application means closing the client and creating another.
type Client struct {
	appID   string
	timeout time.Duration
	dial    func(timeout time.Duration) (net.Conn, error)

	mu    sync.Mutex
	conn  net.Conn
	nonce uint64
	user  string
}

// NewClient returns a disconnected client for appID.
func NewClient(appID string) *Client {
	return &Client{appID: appID, timeout: DefaultTimeout, dial: connectToDiscord}
}

// AppID returns the application ID the client handshakes with.
func (c *Client) AppID() string {
	return c.appID
}

// User returns the Discord username reported by the last handshake.
func (c *Client) User() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user
}

// Connected reports whether the client has an active connection.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Connect dials Discord and performs the handshake, replacing any existing
// connection.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.drop()
	conn, err := c.dial(c.timeout)
	if err != nil {
		return err
	}
	c.conn = conn
	if err := c.handshake(); err != nil {
		c.drop()
		return err
	}
	return nil
}

// SetActivity publishes a.
func (c *Client) SetActivity(a *Activity) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roundTrip(cmdSetActivity, activityArgs{PID: os.Getpid(), Activity: a})
}

// ClearActivity removes the presence.
func (c *Client) ClearActivity() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roundTrip(cmdSetActivity, activityArgs{PID: os.Getpid()})
}

// Close clears the presence, says goodbye and closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	_ = c.roundTrip(cmdSetActivity, activityArgs{PID: os.Getpid()})
	if c.conn == nil {
		return nil
	}
	c.setDeadline()
	_ = WriteFrame(c.conn, OpClose, struct{}{})
	err := c.conn.Close()
	c.conn = nil
	return err
}

// ///////////////////////////////////////////////
// Protocol
// ///////////////////////////////////////////////

// drop closes the connection without a goodbye. The caller must hold c.mu.
func (c *Client) drop() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) setDeadline() {
	if c.timeout > 0 {
		_ = c.conn.SetDeadline(time.Now().Add(c.timeout))
	}
}

// handshake sends the HANDSHAKE frame and waits for READY. The caller must
// hold c.mu.
func (c *Client) handshake() error {
	c.setDeadline()
	defer c.conn.SetDeadline(time.Time{})

	if err := WriteFrame(c.conn, OpHandshake, handshake{Version: 1, ClientID: c.appID}); err != nil {
		return err
	}
	f, err := ReadFrame(c.conn)
	if err != nil {
		return fmt.Errorf("reading handshake response: %w", err)
	}
	switch f.Op {
	case OpFrame:
	case OpClose:
		return fmt.Errorf("handshake rejected: %w", errorFrom(f.Payload))
	default:
		return fmt.Errorf("unexpected handshake response opcode: %s", f.Op)
	}

	var resp response
	if err := f.Decode(&resp); err != nil {
		return err
	}
	switch resp.Evt {
	case evtReady:
		var ready readyData
		if len(resp.Data) > 0 {
			_ = json.Unmarshal(resp.Data, &ready)
		}
		c.user = ready.User.Username
		return nil
	case evtError:
		return fmt.Errorf("handshake rejected: %w", errorFrom(resp.Data))
	}
	return fmt.Errorf("unexpected handshake event %q", resp.Evt)
}

// roundTrip sends a command and waits for the response with the same nonce,
// answering pings on the way. Transport failures drop the connection so
// [Client.Connected] reports false; an ERROR response does not. The caller
// must hold c.mu.
func (c *Client) roundTrip(cmd string, args any) error {
	if c.conn == nil {
		return ErrNotConnected
	}
	c.nonce++
	nonce := strconv.FormatUint(c.nonce, 10)

	c.setDeadline()
	if err := WriteFrame(c.conn, OpFrame, command{Cmd: cmd, Args: args, Nonce: nonce}); err != nil {
		c.drop()
		return err
	}

	for {
		f, err := ReadFrame(c.conn)
		if err != nil {
			c.drop()
			return fmt.Errorf("reading %s response: %w", cmd, err)
		}
		switch f.Op {
		case OpPing:
			if err := WriteFrame(c.conn, OpPong, rawJSON(f.Payload)); err != nil {
				c.drop()
				return err
			}
			continue
		case OpClose:
			c.drop()
			return fmt.Errorf("%w: %w", ErrClosed, errorFrom(f.Payload))
		case OpFrame:
		default:
			continue
		}

		var resp response
		if err := f.Decode(&resp); err != nil {
			c.drop()
			return err
		}
		if resp.Nonce != nonce {
			continue
		}
		_ = c.conn.SetDeadline(time.Time{})
		if resp.Evt == evtError {
			return errorFrom(resp.Data)
		}
		return nil
	}
}

// rawJSON echoes a payload verbatim, or {} when it is empty.
type rawJSON []byte

func (r rawJSON) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("{}"), nil
	}
	return r, nil
}
