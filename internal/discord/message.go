package discord

import (
	"encoding/json"
	"fmt"
)

// ///////////////////////////////////////////////
// Activity
// ///////////////////////////////////////////////

// Button represents a clickable button in a Rich Presence activity.
type Button struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// Timestamps holds the Unix start and end times of an activity.
type Timestamps struct {
	Start int64 `json:"start,omitempty"`
	End   int64 `json:"end,omitempty"`
}

// Assets holds image keys and tooltip text for an activity.
type Assets struct {
	LargeImage string `json:"large_image,omitempty"`
	LargeText  string `json:"large_text,omitempty"`
	SmallImage string `json:"small_image,omitempty"`
	SmallText  string `json:"small_text,omitempty"`
}

// Party describes the group the user is in. Size is [current, max].
type Party struct {
	ID   string `json:"id,omitempty"`
	Size []int  `json:"size,omitempty"`
}

// Secrets holds the join, match and spectate secrets of an activity.
type Secrets struct {
	Join     string `json:"join,omitempty"`
	Match    string `json:"match,omitempty"`
	Spectate string `json:"spectate,omitempty"`
}

// Activity is the Rich Presence payload of SET_ACTIVITY.
type Activity struct {
	Details    string      `json:"details,omitempty"`
	State      string      `json:"state,omitempty"`
	Timestamps *Timestamps `json:"timestamps,omitempty"`
	Assets     *Assets     `json:"assets,omitempty"`
	Party      *Party      `json:"party,omitempty"`
	Secrets    *Secrets    `json:"secrets,omitempty"`
	Instance   bool        `json:"instance,omitempty"`
	Buttons    []Button    `json:"buttons,omitempty"`
}

// ///////////////////////////////////////////////
// Wire Messages
// ///////////////////////////////////////////////

const (
	cmdSetActivity = "SET_ACTIVITY"
	cmdDispatch    = "DISPATCH"
	evtReady       = "READY"
	evtError       = "ERROR"
)

type handshake struct {
	Version  int    `json:"v"`
	ClientID string `json:"client_id"`
}

type command struct {
	Cmd   string `json:"cmd"`
	Args  any    `json:"args"`
	Nonce string `json:"nonce"`
}

// activityArgs always encodes activity; null clears the presence.
type activityArgs struct {
	PID      int       `json:"pid"`
	Activity *Activity `json:"activity"`
}

type response struct {
	Cmd   string          `json:"cmd"`
	Evt   string          `json:"evt"`
	Nonce string          `json:"nonce"`
	Data  json.RawMessage `json:"data"`
}

type readyData struct {
	User struct {
		Username string `json:"username"`
	} `json:"user"`
}

// ///////////////////////////////////////////////
// Errors
// ///////////////////////////////////////////////

// Error is an error event returned by Discord, or the reason given in a
// CLOSE frame.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("discord: %s (code %d)", e.Message, e.Code)
}

// errorFrom decodes the error body of an ERROR event or CLOSE frame.
func errorFrom(data []byte) *Error {
	e := &Error{}
	if err := json.Unmarshal(data, e); err != nil || e.Message == "" {
		e.Message = "unknown error"
	}
	return e
}
