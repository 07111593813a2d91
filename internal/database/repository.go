package database

import (
	"context"

	"github.com/voipbridge/voipbridge/internal/database/models"
)

// CallListFilter selects calls visible to a user. UserID and SIPUsername
// describe the requesting principal; a call matches when it is owned by the
// user or its from/to number equals or contains the SIP username. Leaving
// both principal fields zero lists every call.
type CallListFilter struct {
	UserID      int64
	SIPUsername string
	State       string
	Direction   string
	Limit       int
	Offset      int
}

// EventListFilter selects rows from the PBX event journal.
type EventListFilter struct {
	EventType string
	ServerID  int64
	Limit     int
	Offset    int
}

// CallRepository persists call log entries.
type CallRepository interface {
	Create(ctx context.Context, call *models.Call) error
	GetByID(ctx context.Context, id int64) (*models.Call, error)
	// LatestBySIPCallID returns the most recently created call carrying the
	// given SIP call id, or nil if none exists.
	LatestBySIPCallID(ctx context.Context, sipCallID string) (*models.Call, error)
	Update(ctx context.Context, call *models.Call) error
	// ListVisible returns the page of calls matching the filter plus the
	// total filtered count.
	ListVisible(ctx context.Context, filter CallListFilter) ([]models.Call, int, error)
	CountByDirection(ctx context.Context) (map[string]int64, error)
	CountActive(ctx context.Context) (int64, error)
}

// RecordingRepository persists call recordings.
type RecordingRepository interface {
	Create(ctx context.Context, rec *models.Recording) error
	GetByID(ctx context.Context, id int64) (*models.Recording, error)
	// LatestByCallID returns the newest recording for a call, or nil.
	LatestByCallID(ctx context.Context, callID int64) (*models.Recording, error)
	Update(ctx context.Context, rec *models.Recording) error
	List(ctx context.Context, limit, offset int) ([]models.Recording, int, error)
	Delete(ctx context.Context, id int64) error
	Count(ctx context.Context) (int64, error)
	// DeleteOlderThan removes recordings created more than the given number
	// of days ago and returns how many rows were deleted.
	DeleteOlderThan(ctx context.Context, days int) (int64, error)
}

// EventRepository persists the PBX event journal.
type EventRepository interface {
	Create(ctx context.Context, ev *models.Event) error
	List(ctx context.Context, filter EventListFilter) ([]models.Event, int, error)
	MarkProcessed(ctx context.Context, id int64) error
	Count(ctx context.Context) (int64, error)
}

// VoIPUserRepository persists softphone accounts and their presence.
type VoIPUserRepository interface {
	Create(ctx context.Context, u *models.VoIPUser) error
	GetByID(ctx context.Context, id int64) (*models.VoIPUser, error)
	// GetBySIPUsername returns the active user with the exact SIP username.
	GetBySIPUsername(ctx context.Context, sipUsername string) (*models.VoIPUser, error)
	// FindByExtension resolves a PBX extension to a user: exact extension
	// match, then exact SIP username, then SIP username substring.
	FindByExtension(ctx context.Context, extension string) (*models.VoIPUser, error)
	Update(ctx context.Context, u *models.VoIPUser) error
	UpdateStatus(ctx context.Context, id int64, status string) error
	UpdateLastLogin(ctx context.Context, id int64) error
	List(ctx context.Context) ([]models.VoIPUser, error)
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

// ServerRepository persists PBX server registrations.
type ServerRepository interface {
	Create(ctx context.Context, s *models.Server) error
	GetByID(ctx context.Context, id int64) (*models.Server, error)
	// GetByAPIKey returns the active server holding the webhook API key,
	// or nil when the key matches no active server.
	GetByAPIKey(ctx context.Context, apiKey string) (*models.Server, error)
	Update(ctx context.Context, s *models.Server) error
	List(ctx context.Context) ([]models.Server, error)
}

// ContactRepository persists the contact directory.
type ContactRepository interface {
	Create(ctx context.Context, c *models.Contact) error
	GetByID(ctx context.Context, id int64) (*models.Contact, error)
	// FindByPhone matches a contact whose phone or mobile contains the
	// cleaned number, falling back to the raw number. Returns nil if no
	// contact matches.
	FindByPhone(ctx context.Context, cleaned, raw string) (*models.Contact, error)
	Search(ctx context.Context, query string, limit int) ([]models.Contact, error)
	List(ctx context.Context, limit, offset int) ([]models.Contact, int, error)
}

// HoldMusicRepository persists hold-music tracks.
type HoldMusicRepository interface {
	Create(ctx context.Context, hm *models.HoldMusic) error
	GetByID(ctx context.Context, id int64) (*models.HoldMusic, error)
	// ListActive returns active tracks for a server (plus server-agnostic
	// tracks), ordered by sequence.
	ListActive(ctx context.Context, serverID *int64) ([]models.HoldMusic, error)
	Update(ctx context.Context, hm *models.HoldMusic) error
	Delete(ctx context.Context, id int64) error
	// ClearDefault unsets is_default on every track sharing the server
	// scope, so a newly promoted default stays unique.
	ClearDefault(ctx context.Context, serverID *int64) error
}
