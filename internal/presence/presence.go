// Package presence maps PBX events and client notifications onto user
// presence statuses.
package presence

import (
	"context"
	"strconv"
	"strings"

	"github.com/voipbridge/voipbridge/internal/database/models"
)

// UserStore is the slice of the user repository the engine needs.
type UserStore interface {
	FindByExtension(ctx context.Context, extension string) (*models.VoIPUser, error)
	UpdateStatus(ctx context.Context, id int64, status string) error
}

// Engine applies presence transitions to the user store.
type Engine struct {
	users UserStore
}

// NewEngine creates a presence engine over the given user store.
func NewEngine(users UserStore) *Engine {
	return &Engine{users: users}
}

// ExtensionFromPeer extracts the extension from an AMI peer name such as
// "PJSIP/7001" or "SIP/7001".
func ExtensionFromPeer(peer string) string {
	peer = strings.TrimPrefix(peer, "PJSIP/")
	peer = strings.TrimPrefix(peer, "SIP/")
	return peer
}

// ExtensionFromChannel extracts the extension from an AMI channel name such
// as "PJSIP/7001-00000abc": the part after the technology slash, truncated
// at the first dash.
func ExtensionFromChannel(channel string) string {
	parts := strings.SplitN(channel, "/", 2)
	if len(parts) < 2 {
		return ""
	}
	ext, _, _ := strings.Cut(parts[1], "-")
	return ext
}

// FromPeerStatus maps an AMI PeerStatus value to a presence status.
// Unknown values produce no transition.
func FromPeerStatus(peerStatus string) (string, bool) {
	switch peerStatus {
	case "Reachable", "Registered":
		return models.StatusAvailable, true
	case "Unreachable", "Unregistered":
		return models.StatusOffline, true
	case "Lagged":
		return models.StatusAway, true
	case "Busy":
		return models.StatusBusy, true
	}
	return "", false
}

// FromChannelState maps an AMI Newstate ChannelState to a presence status.
// States 1-6 cover ringing through up; 0 is down. Anything else produces
// no transition.
func FromChannelState(state string) (string, bool) {
	code, err := strconv.Atoi(state)
	if err != nil {
		return "", false
	}
	switch {
	case code >= 1 && code <= 6:
		return models.StatusBusy, true
	case code == 0:
		return models.StatusAvailable, true
	}
	return "", false
}

// FromNotification maps a client notification event to a presence status.
// An explicit status overrides the event mapping. Unknown events with no
// explicit status produce no transition.
func FromNotification(event, explicit string) (string, bool) {
	if explicit != "" {
		return explicit, true
	}
	switch event {
	case "call_start", "call_ringing", "call_connected":
		return models.StatusBusy, true
	case "call_end", "call_hangup", "call_completed":
		return models.StatusAvailable, true
	case "user_online":
		return models.StatusAvailable, true
	case "user_offline":
		return models.StatusOffline, true
	}
	return "", false
}

// Transition describes an applied presence change.
type Transition struct {
	UserID    int64
	Extension string
	Old       string
	New       string
	Changed   bool
}

// Apply moves the user behind the extension to the given status. The store
// is only written when the status actually changes. Returns (nil, nil) when
// no user matches the extension.
func (e *Engine) Apply(ctx context.Context, extension, status string) (*Transition, error) {
	u, err := e.users.FindByExtension(ctx, extension)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, nil
	}

	tr := &Transition{
		UserID:    u.ID,
		Extension: extension,
		Old:       u.Status,
		New:       status,
	}
	if u.Status == status {
		return tr, nil
	}
	if err := e.users.UpdateStatus(ctx, u.ID, status); err != nil {
		return nil, err
	}
	tr.Changed = true
	return tr, nil
}
