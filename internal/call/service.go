// Package call implements the call-log reconciliation core: identity
// resolution, create-or-attach, state and timestamp updates, and duration
// derivation. All writes from the softphone client and the recording path
// funnel through this service so the ordering rules live in one place.
package call

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/voipbridge/voipbridge/internal/database"
	"github.com/voipbridge/voipbridge/internal/database/models"
)

// ErrNotFound is returned when a call key resolves to no record.
var ErrNotFound = fmt.Errorf("call not found")

// Service reconciles call log writes.
type Service struct {
	calls    database.CallRepository
	contacts database.ContactRepository
	now      func() time.Time
}

// NewService creates the reconciliation service. contacts may be nil when
// contact attribution is not wanted (tests).
func NewService(calls database.CallRepository, contacts database.ContactRepository) *Service {
	return &Service{calls: calls, contacts: contacts, now: time.Now}
}

// Resolve maps a call key to a record. An empty key or the literal
// "unknown" resolves to nothing. An all-digit key is treated as the primary
// id; anything else is looked up as a SIP call id, newest record first.
// Returns (nil, nil) when the key resolves to no call.
func (s *Service) Resolve(ctx context.Context, key string) (*models.Call, error) {
	if key == "" || key == "unknown" {
		return nil, nil
	}
	if id, err := strconv.ParseInt(key, 10, 64); err == nil {
		return s.calls.GetByID(ctx, id)
	}
	return s.calls.LatestBySIPCallID(ctx, key)
}

// CreateParams describes a create-or-attach request from the client.
type CreateParams struct {
	UserID     int64
	SIPCallID  string
	Direction  string
	State      string
	FromNumber string
	ToNumber   string
	StartTime  string // ISO-8601, optional
}

// CreateOrAttach records a new call, or attaches to the existing call that
// already carries the SIP call id. On attach only empty fields are
// backfilled; values already present are never overwritten. Returns the
// call and whether the request attached to an existing record.
func (s *Service) CreateOrAttach(ctx context.Context, p CreateParams) (*models.Call, bool, error) {
	if p.SIPCallID != "" && p.SIPCallID != "unknown" {
		existing, err := s.calls.LatestBySIPCallID(ctx, p.SIPCallID)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			changed := false
			if existing.Direction == "" && p.Direction != "" {
				existing.Direction = p.Direction
				changed = true
			}
			if existing.FromNumber == "" && p.FromNumber != "" {
				existing.FromNumber = p.FromNumber
				changed = true
			}
			if existing.ToNumber == "" && p.ToNumber != "" {
				existing.ToNumber = p.ToNumber
				changed = true
			}
			if s.attachContact(ctx, existing) {
				changed = true
			}
			if changed {
				if err := s.calls.Update(ctx, existing); err != nil {
					return nil, false, err
				}
			}
			return existing, true, nil
		}
	}

	state := p.State
	if state == "" {
		state = models.CallStateRinging
	}
	start := s.now().UTC()
	if p.StartTime != "" {
		if t, err := ParseTimestamp(p.StartTime); err == nil {
			start = t
		} else {
			slog.Warn("unparseable start_time, using now",
				"value", p.StartTime, "error", err)
		}
	}

	c := &models.Call{
		UserID:     p.UserID,
		Direction:  p.Direction,
		State:      state,
		FromNumber: p.FromNumber,
		ToNumber:   p.ToNumber,
		SIPCallID:  p.SIPCallID,
		StartTime:  start,
	}
	s.attachContact(ctx, c)
	if err := s.calls.Create(ctx, c); err != nil {
		return nil, false, err
	}
	return c, false, nil
}

// attachContact links the counterparty number to a directory contact when
// none is linked yet. Reports whether the call changed. Lookup failures are
// logged and ignored; attribution is best-effort.
func (s *Service) attachContact(ctx context.Context, c *models.Call) bool {
	if s.contacts == nil || c.ContactID != nil {
		return false
	}
	number := c.ToNumber
	if c.Direction == models.DirectionInbound {
		number = c.FromNumber
	}
	if number == "" {
		return false
	}
	contact, err := s.contacts.FindByPhone(ctx, CleanNumber(number), number)
	if err != nil {
		slog.Warn("contact lookup failed", "number", number, "error", err)
		return false
	}
	if contact == nil {
		return false
	}
	c.ContactID = &contact.ID
	return true
}

// UpdateParams describes a state/timestamp update from the client. Empty
// strings mean "not provided".
type UpdateParams struct {
	CallKey      string
	State        string
	SIPCallID    string
	AnswerTime   string
	EndTime      string
	HangupReason string
}

// ApplyUpdate resolves and updates a call. Returns ErrNotFound when the key
// resolves to nothing.
//
// Ordering rules:
//   - a differing SIP call id overwrites the stored one (late binding);
//   - entering in_progress stamps answer_time = now unless already set;
//     an explicit answer_time wins, but only on an in_progress update —
//     once set, answer_time survives every other state transition;
//   - entering a terminal state stamps end_time (provided or now) and
//     hangup_reason (provided or "normal");
//   - once end_time is set, a stale ringing state auto-corrects to
//     completed or missed depending on answer_time.
func (s *Service) ApplyUpdate(ctx context.Context, p UpdateParams) (*models.Call, error) {
	c, err := s.Resolve(ctx, p.CallKey)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrNotFound
	}

	if p.SIPCallID != "" && p.SIPCallID != c.SIPCallID {
		c.SIPCallID = p.SIPCallID
	}

	if p.State != "" && p.State != c.State {
		if !models.ValidCallState(p.State) {
			return nil, fmt.Errorf("invalid state %q", p.State)
		}
		c.State = p.State
		if p.State == models.CallStateInProgress && c.AnswerTime == nil {
			now := s.now().UTC()
			c.AnswerTime = &now
		}
		if models.IsTerminalState(p.State) {
			if c.EndTime == nil {
				now := s.now().UTC()
				c.EndTime = &now
			}
			if c.HangupReason == "" {
				c.HangupReason = "normal"
			}
		}
	}

	if p.AnswerTime != "" && p.State == models.CallStateInProgress {
		c.AnswerTime = s.parseOrNow(p.AnswerTime, "answer_time")
	}
	if p.EndTime != "" {
		c.EndTime = s.parseOrNow(p.EndTime, "end_time")
	}
	if p.HangupReason != "" {
		c.HangupReason = p.HangupReason
	}

	s.autoCorrectState(c)

	if err := s.calls.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// UpdateDuration closes out a call identified by its integer id. The id
// must be numeric; SIP call ids are rejected here because the client only
// calls this endpoint after create has returned the record id. Sets
// end_time = now when unset and never touches answer_time.
func (s *Service) UpdateDuration(ctx context.Context, callKey string) (*models.Call, error) {
	id, err := strconv.ParseInt(callKey, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("call_id must be an integer call id")
	}

	c, err := s.calls.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrNotFound
	}

	if c.EndTime == nil {
		now := s.now().UTC()
		c.EndTime = &now
	}
	s.autoCorrectState(c)

	if err := s.calls.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// CloseForRecording finalizes call timing when a recording arrives after
// the call ended: end_time is stamped if missing and a stale ringing state
// auto-corrects. answer_time is left alone; only an explicit state update
// may set it.
func (s *Service) CloseForRecording(ctx context.Context, c *models.Call) error {
	changed := false
	if c.EndTime == nil {
		now := s.now().UTC()
		c.EndTime = &now
		changed = true
	}
	if s.autoCorrectState(c) {
		changed = true
	}
	if !changed {
		return nil
	}
	return s.calls.Update(ctx, c)
}

// autoCorrectState moves a ringing call with a known end to its terminal
// state. Reports whether the state changed.
func (s *Service) autoCorrectState(c *models.Call) bool {
	if c.EndTime == nil || c.State != models.CallStateRinging {
		return false
	}
	if c.AnswerTime != nil {
		c.State = models.CallStateCompleted
	} else {
		c.State = models.CallStateMissed
	}
	return true
}

// parseOrNow parses a client timestamp, logging and substituting now on
// failure so a malformed clock on the client cannot wedge an update.
func (s *Service) parseOrNow(value, field string) *time.Time {
	t, err := ParseTimestamp(value)
	if err != nil {
		slog.Warn("unparseable timestamp, using now",
			"field", field, "value", value, "error", err)
		t = s.now().UTC()
	}
	return &t
}

// ParseTimestamp parses an ISO-8601 timestamp from the browser client and
// normalizes it to UTC. A trailing Z or an explicit offset are both
// accepted; a bare timestamp without zone is taken as UTC.
func ParseTimestamp(value string) (time.Time, error) {
	for _, layout := range []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
	} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}

// CleanNumber strips formatting characters from a phone number before a
// directory lookup.
func CleanNumber(number string) string {
	r := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "")
	return r.Replace(number)
}
