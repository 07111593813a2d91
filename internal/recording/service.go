// Package recording stores call recordings uploaded by the browser client
// and attributes them to the call's caller and callee.
package recording

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/voipbridge/voipbridge/internal/call"
	"github.com/voipbridge/voipbridge/internal/database"
	"github.com/voipbridge/voipbridge/internal/database/models"
)

// Service owns recording persistence and caller/callee attribution.
type Service struct {
	recordings database.RecordingRepository
	users      database.VoIPUserRepository
	contacts   database.ContactRepository
	reconciler *call.Service
	now        func() time.Time
}

// NewService creates the recording service.
func NewService(
	recordings database.RecordingRepository,
	users database.VoIPUserRepository,
	contacts database.ContactRepository,
	reconciler *call.Service,
) *Service {
	return &Service{
		recordings: recordings,
		users:      users,
		contacts:   contacts,
		reconciler: reconciler,
		now:        time.Now,
	}
}

// SaveParams describes an uploaded recording.
type SaveParams struct {
	CallKey  string // record id, SIP call id, or "unknown"
	Data     []byte
	Duration int // client-measured seconds
	Format   string
}

// Save upserts the recording for a call, or stores a standalone recording
// when the key resolves to no call. A found call gets its end_time stamped
// and a stale ringing state corrected before the media is attached. Each
// call keeps exactly one recording: a second upload replaces the media of
// the existing row. The client-measured duration always wins over the
// derived call duration.
func (s *Service) Save(ctx context.Context, p SaveParams) (*models.Recording, error) {
	c, err := s.reconciler.Resolve(ctx, p.CallKey)
	if err != nil {
		return nil, err
	}

	format := p.Format
	if format == "" {
		format = "webm"
	}

	if c == nil {
		rec := &models.Recording{
			Name:         fmt.Sprintf("Standalone Recording - %s", standaloneKey(p.CallKey)),
			SIPSessionID: p.CallKey,
			Data:         p.Data,
			Filename:     fmt.Sprintf("standalone_recording_%s_%d.%s", standaloneKey(p.CallKey), s.now().Unix(), format),
			FileSize:     int64(len(p.Data)),
			Duration:     p.Duration,
			Format:       format,
			State:        "completed",
		}
		if err := s.recordings.Create(ctx, rec); err != nil {
			return nil, err
		}
		slog.Info("stored standalone recording",
			"recording_id", rec.ID, "size", rec.FileSize)
		return rec, nil
	}

	if err := s.reconciler.CloseForRecording(ctx, c); err != nil {
		return nil, err
	}

	filename := fmt.Sprintf("call_recording_%d_%d.%s", c.ID, s.now().Unix(), format)

	rec, err := s.recordings.LatestByCallID(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		rec.Data = p.Data
		rec.Filename = filename
		rec.FileSize = int64(len(p.Data))
		rec.Duration = p.Duration
		rec.Format = format
		rec.State = "completed"
		if err := s.recordings.Update(ctx, rec); err != nil {
			return nil, err
		}
		slog.Info("replaced call recording",
			"recording_id", rec.ID, "call_id", c.ID, "size", rec.FileSize)
		return rec, nil
	}

	rec = &models.Recording{
		Name:         fmt.Sprintf("Call Recording - %s", c.Name),
		CallID:       &c.ID,
		SIPSessionID: c.SIPCallID,
		Data:         p.Data,
		Filename:     filename,
		FileSize:     int64(len(p.Data)),
		Duration:     p.Duration,
		Format:       format,
		State:        "completed",
	}
	s.attribute(ctx, rec, c)
	if err := s.recordings.Create(ctx, rec); err != nil {
		return nil, err
	}
	slog.Info("stored call recording",
		"recording_id", rec.ID, "call_id", c.ID, "size", rec.FileSize)
	return rec, nil
}

// attribute fills the caller/callee columns. The internal side is the
// call's owning user; the external side resolves via the contact directory,
// then a voip user by SIP username, then the raw number.
func (s *Service) attribute(ctx context.Context, rec *models.Recording, c *models.Call) {
	owner, err := s.users.GetByID(ctx, c.UserID)
	if err != nil {
		slog.Warn("recording attribution: owner lookup failed",
			"user_id", c.UserID, "error", err)
	}

	internal := party{}
	if owner != nil {
		internal = party{userID: &owner.ID, display: ownerDisplay(owner)}
	}

	var externalNumber string
	if c.Direction == models.DirectionInbound {
		externalNumber = c.FromNumber
	} else {
		externalNumber = c.ToNumber
	}
	external := s.resolveParty(ctx, externalNumber)

	if c.Direction == models.DirectionInbound {
		applyParty(rec, external, internal)
	} else {
		applyParty(rec, internal, external)
	}
}

type party struct {
	userID    *int64
	contactID *int64
	display   string
}

// resolveParty maps an external number to a contact, then a voip user, then
// the raw number.
func (s *Service) resolveParty(ctx context.Context, number string) party {
	if number == "" {
		return party{}
	}
	if contact, err := s.contacts.FindByPhone(ctx, call.CleanNumber(number), number); err == nil && contact != nil {
		return party{contactID: &contact.ID, display: contact.Name}
	}
	if u, err := s.users.GetBySIPUsername(ctx, number); err == nil && u != nil {
		return party{userID: &u.ID, display: ownerDisplay(u)}
	}
	return party{display: number}
}

func applyParty(rec *models.Recording, caller, callee party) {
	rec.CallerUserID = caller.userID
	rec.CallerContactID = caller.contactID
	rec.CallerDisplay = caller.display
	rec.CalleeUserID = callee.userID
	rec.CalleeContactID = callee.contactID
	rec.CalleeDisplay = callee.display
}

func ownerDisplay(u *models.VoIPUser) string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.SIPUsername
}

// standaloneKey sanitizes the raw call key for use in a filename.
func standaloneKey(key string) string {
	if key == "" || key == "unknown" {
		return uuid.NewString()[:8]
	}
	if len(key) > 32 {
		return key[:32]
	}
	return key
}
