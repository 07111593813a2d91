// Package models defines the database entities shared across repositories
// and the API layer.
package models

import (
	"fmt"
	"time"
)

// Call states. A call starts as ringing and moves to in_progress when
// answered; every other state is terminal.
const (
	CallStateRinging    = "ringing"
	CallStateInProgress = "in_progress"
	CallStateCompleted  = "completed"
	CallStateMissed     = "missed"
	CallStateFailed     = "failed"
	CallStateBusy       = "busy"
	CallStateRejected   = "rejected"
)

// Call directions.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Presence statuses for a VoIP user.
const (
	StatusAvailable = "available"
	StatusBusy      = "busy"
	StatusOffline   = "offline"
	StatusAway      = "away"
)

// IsTerminalState reports whether a call state ends the call.
func IsTerminalState(state string) bool {
	switch state {
	case CallStateCompleted, CallStateMissed, CallStateFailed,
		CallStateBusy, CallStateRejected:
		return true
	}
	return false
}

// ValidCallState reports whether state is one of the known call states.
func ValidCallState(state string) bool {
	switch state {
	case CallStateRinging, CallStateInProgress:
		return true
	}
	return IsTerminalState(state)
}

// Server is a FreePBX/Asterisk server the bridge talks to. APIKey
// authenticates inbound webhook posts from the PBX.
type Server struct {
	ID               int64
	Name             string
	Host             string
	Port             int
	UseTLS           bool
	WebsocketURL     string
	Realm            string
	APIKey           string
	RecordingEnabled bool
	MaxRecordingMB   int
	Active           bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// VoIPUser is a softphone account bound to one server. PasswordHash is an
// argon2id encoded hash; the plaintext SIP secret is never stored.
type VoIPUser struct {
	ID             int64
	ServerID       int64
	SIPUsername    string
	Extension      string
	PasswordHash   string
	DisplayName    string
	Status         string
	AutoAnswer     bool
	RingTone       string
	EnableRecord   bool
	AutoRecord     bool
	RecordFormat   string
	Active         bool
	LastLogin      *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Contact is a directory entry used for caller/callee attribution.
type Contact struct {
	ID        int64
	Name      string
	Phone     string
	Mobile    string
	Email     string
	Company   string
	CreatedAt time.Time
}

// Call is one leg of the call log. AnswerTime and EndTime are nil until the
// call is answered / ends. Duration is always derived, never stored.
type Call struct {
	ID           int64
	Name         string
	UserID       int64
	ContactID    *int64
	Direction    string
	State        string
	FromNumber   string
	ToNumber     string
	SIPCallID    string
	StartTime    time.Time
	AnswerTime   *time.Time
	EndTime      *time.Time
	HangupReason string
	CreatedAt    time.Time
}

// DurationSeconds derives the call duration: end minus answer when both are
// set, end minus start when only the end is known, zero otherwise.
func (c *Call) DurationSeconds() int {
	if c.EndTime == nil {
		return 0
	}
	if c.AnswerTime != nil {
		return int(c.EndTime.Sub(*c.AnswerTime).Seconds())
	}
	return int(c.EndTime.Sub(c.StartTime).Seconds())
}

// DurationDisplay formats the derived duration as HH:MM:SS when the call ran
// an hour or longer, MM:SS otherwise. Zero renders as "00:00".
func (c *Call) DurationDisplay() string {
	return FormatDuration(c.DurationSeconds())
}

// ResponseTimeSeconds is the ring time before the call was answered.
func (c *Call) ResponseTimeSeconds() int {
	if c.AnswerTime == nil {
		return 0
	}
	return int(c.AnswerTime.Sub(c.StartTime).Seconds())
}

// FormatDuration renders a second count as HH:MM:SS or MM:SS.
func FormatDuration(seconds int) string {
	if seconds <= 0 {
		return "00:00"
	}
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	secs := seconds % 60
	if hours > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%02d:%02d", minutes, secs)
}

// Recording is the stored media for a call. At most one recording exists per
// call; recordings without a call are standalone captures.
type Recording struct {
	ID              int64
	Name            string
	CallID          *int64
	SIPSessionID    string
	CallerUserID    *int64
	CallerContactID *int64
	CallerDisplay   string
	CalleeUserID    *int64
	CalleeContactID *int64
	CalleeDisplay   string
	Data            []byte
	Filename        string
	FileSize        int64
	Duration        int
	Format          string
	State           string
	CreatedAt       time.Time
}

// Event is one row of the PBX event journal. Raw holds the original JSON
// payload; the extracted columns exist for filtering and reporting.
type Event struct {
	ID               int64
	ServerID         int64
	EventType        string
	Channel          string
	CallerIDNum      string
	CallerIDName     string
	ConnectedLineNum string
	Exten            string
	Context          string
	UniqueID         string
	LinkedID         string
	Peer             string
	PeerStatus       string
	ChannelState     string
	Raw              string
	Processed        bool
	CreatedAt        time.Time
}

// HoldMusic is an uploaded hold-music track. Volume is constrained to
// [0.0, 1.0]; at most one track per server is the default.
type HoldMusic struct {
	ID        int64
	Name      string
	ServerID  *int64
	Data      []byte
	Filename  string
	FileSize  int64
	Duration  float64
	Format    string
	Volume    float64
	Loop      bool
	FadeIn    float64
	FadeOut   float64
	Sequence  int
	IsDefault bool
	Active    bool
	CreatedAt time.Time
}
