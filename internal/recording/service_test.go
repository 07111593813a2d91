package recording

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/voipbridge/voipbridge/internal/call"
	"github.com/voipbridge/voipbridge/internal/database"
	"github.com/voipbridge/voipbridge/internal/database/models"
)

type testEnv struct {
	svc        *Service
	calls      database.CallRepository
	recordings database.RecordingRepository
	users      database.VoIPUserRepository
	contacts   database.ContactRepository
	server     *models.Server
	user       *models.VoIPUser
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.Open(t.TempDir())
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	env := &testEnv{
		calls:      database.NewCallRepository(db),
		recordings: database.NewRecordingRepository(db),
		users:      database.NewVoIPUserRepository(db),
		contacts:   database.NewContactRepository(db),
	}

	ctx := context.Background()
	servers := database.NewServerRepository(db)
	env.server = &models.Server{
		Name: "pbx", Host: "pbx.example.com", Port: 8089,
		WebsocketURL: "wss://pbx.example.com:8089/ws", Realm: "pbx.example.com",
		APIKey: "test-api-key", Active: true,
	}
	if err := servers.Create(ctx, env.server); err != nil {
		t.Fatalf("seeding server: %v", err)
	}

	env.user = &models.VoIPUser{
		ServerID: env.server.ID, SIPUsername: "7001", Extension: "7001",
		PasswordHash: "x", DisplayName: "Alice",
		Status: models.StatusOffline, Active: true,
	}
	if err := env.users.Create(ctx, env.user); err != nil {
		t.Fatalf("seeding user: %v", err)
	}

	reconciler := call.NewService(env.calls, env.contacts)
	env.svc = NewService(env.recordings, env.users, env.contacts, reconciler)
	return env
}

func (env *testEnv) seedCall(t *testing.T, c *models.Call) *models.Call {
	t.Helper()
	c.UserID = env.user.ID
	if c.StartTime.IsZero() {
		c.StartTime = time.Now().UTC().Add(-time.Minute)
	}
	if c.State == "" {
		c.State = models.CallStateRinging
	}
	if err := env.calls.Create(context.Background(), c); err != nil {
		t.Fatalf("seeding call: %v", err)
	}
	return c
}

func TestSave_StandaloneWhenKeyUnresolved(t *testing.T) {
	env := newTestEnv(t)

	rec, err := env.svc.Save(context.Background(), SaveParams{
		CallKey:  "unknown",
		Data:     []byte("audio"),
		Duration: 3,
	})
	if err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if rec.CallID != nil {
		t.Errorf("CallID = %v, want nil for standalone", rec.CallID)
	}
	if !strings.HasPrefix(rec.Filename, "standalone_recording_") {
		t.Errorf("Filename = %q, want standalone_recording_ prefix", rec.Filename)
	}
	if rec.Format != "webm" {
		t.Errorf("Format = %q, want webm default", rec.Format)
	}
	if rec.FileSize != 5 {
		t.Errorf("FileSize = %d, want 5", rec.FileSize)
	}
}

func TestSave_AttachesToCallAndClosesIt(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	answered := time.Now().UTC().Add(-30 * time.Second)
	c := env.seedCall(t, &models.Call{
		Direction:  models.DirectionOutbound,
		SIPCallID:  "rec@pbx",
		FromNumber: "7001",
		ToNumber:   "5550100",
		AnswerTime: &answered,
	})

	rec, err := env.svc.Save(ctx, SaveParams{
		CallKey: "rec@pbx", Data: []byte("media"), Duration: 28, Format: "ogg",
	})
	if err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if rec.CallID == nil || *rec.CallID != c.ID {
		t.Fatalf("CallID = %v, want %d", rec.CallID, c.ID)
	}
	if !strings.HasPrefix(rec.Filename, "call_recording_") {
		t.Errorf("Filename = %q, want call_recording_ prefix", rec.Filename)
	}
	if rec.Duration != 28 {
		t.Errorf("Duration = %d, want client-measured 28", rec.Duration)
	}

	// The recording upload also closed out the call.
	stored, err := env.calls.GetByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("loading call: %v", err)
	}
	if stored.EndTime == nil {
		t.Error("call end_time not stamped")
	}
	if stored.State != models.CallStateCompleted {
		t.Errorf("call state = %q, want completed", stored.State)
	}
}

func TestSave_SecondUploadReplacesMedia(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	c := env.seedCall(t, &models.Call{
		Direction: models.DirectionOutbound, SIPCallID: "dup@pbx", ToNumber: "5550100",
	})

	first, err := env.svc.Save(ctx, SaveParams{CallKey: "dup@pbx", Data: []byte("v1"), Duration: 5})
	if err != nil {
		t.Fatalf("first Save() error: %v", err)
	}

	second, err := env.svc.Save(ctx, SaveParams{CallKey: "dup@pbx", Data: []byte("take two"), Duration: 9})
	if err != nil {
		t.Fatalf("second Save() error: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("second upload created row %d, want replacement of %d", second.ID, first.ID)
	}
	if second.FileSize != int64(len("take two")) {
		t.Errorf("FileSize = %d, want %d", second.FileSize, len("take two"))
	}
	if second.Duration != 9 {
		t.Errorf("Duration = %d, want 9", second.Duration)
	}

	latest, err := env.recordings.LatestByCallID(ctx, c.ID)
	if err != nil {
		t.Fatalf("LatestByCallID: %v", err)
	}
	if latest == nil || latest.ID != first.ID {
		t.Fatalf("stored recording = %+v, want single row %d", latest, first.ID)
	}
}

func TestSave_AttributesOutboundCall(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	contact := &models.Contact{Name: "Bob Customer", Phone: "+1 555-0100"}
	if err := env.contacts.Create(ctx, contact); err != nil {
		t.Fatalf("seeding contact: %v", err)
	}

	env.seedCall(t, &models.Call{
		Direction: models.DirectionOutbound, SIPCallID: "attr@pbx",
		FromNumber: "7001", ToNumber: "555-0100",
	})

	rec, err := env.svc.Save(ctx, SaveParams{CallKey: "attr@pbx", Data: []byte("x"), Duration: 1})
	if err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	// Outbound: caller is the owning user, callee is the directory contact.
	if rec.CallerUserID == nil || *rec.CallerUserID != env.user.ID {
		t.Errorf("CallerUserID = %v, want %d", rec.CallerUserID, env.user.ID)
	}
	if rec.CallerDisplay != "Alice" {
		t.Errorf("CallerDisplay = %q, want Alice", rec.CallerDisplay)
	}
	if rec.CalleeContactID == nil || *rec.CalleeContactID != contact.ID {
		t.Errorf("CalleeContactID = %v, want %d", rec.CalleeContactID, contact.ID)
	}
	if rec.CalleeDisplay != "Bob Customer" {
		t.Errorf("CalleeDisplay = %q, want Bob Customer", rec.CalleeDisplay)
	}
}

func TestSave_AttributesInboundUnknownNumber(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.seedCall(t, &models.Call{
		Direction: models.DirectionInbound, SIPCallID: "in@pbx",
		FromNumber: "5559999", ToNumber: "7001",
	})

	rec, err := env.svc.Save(ctx, SaveParams{CallKey: "in@pbx", Data: []byte("x"), Duration: 1})
	if err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	// Inbound with no matching contact or user: caller falls back to the
	// raw number, callee is the owning user.
	if rec.CallerDisplay != "5559999" {
		t.Errorf("CallerDisplay = %q, want raw number", rec.CallerDisplay)
	}
	if rec.CalleeUserID == nil || *rec.CalleeUserID != env.user.ID {
		t.Errorf("CalleeUserID = %v, want %d", rec.CalleeUserID, env.user.ID)
	}
}
