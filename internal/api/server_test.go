package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/voipbridge/voipbridge/internal/call"
	"github.com/voipbridge/voipbridge/internal/config"
	"github.com/voipbridge/voipbridge/internal/database"
	"github.com/voipbridge/voipbridge/internal/database/models"
	"github.com/voipbridge/voipbridge/internal/presence"
	"github.com/voipbridge/voipbridge/internal/recording"
)

const (
	testAPIKey   = "webhook-key-1"
	testPassword = "s3cret-pass"
)

var testJWTSecret = []byte("0123456789abcdef0123456789abcdef")

type apiTestEnv struct {
	srv    *Server
	db     *database.DB
	server *models.Server
	user   *models.VoIPUser
	events database.EventRepository
	users  database.VoIPUserRepository
	calls  database.CallRepository
}

func newAPITestEnv(t *testing.T) *apiTestEnv {
	t.Helper()

	db, err := database.Open(t.TempDir())
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	servers := database.NewServerRepository(db)
	users := database.NewVoIPUserRepository(db)
	contacts := database.NewContactRepository(db)
	calls := database.NewCallRepository(db)
	recordings := database.NewRecordingRepository(db)
	events := database.NewEventRepository(db)
	holdMusic := database.NewHoldMusicRepository(db)

	ctx := context.Background()
	pbxServer := &models.Server{
		Name: "pbx", Host: "pbx.example.com", Port: 8089, UseTLS: true,
		WebsocketURL: "wss://pbx.example.com:8089/ws", Realm: "pbx.example.com",
		APIKey: testAPIKey, Active: true,
	}
	if err := servers.Create(ctx, pbxServer); err != nil {
		t.Fatalf("seeding server: %v", err)
	}

	hash, err := database.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}
	user := &models.VoIPUser{
		ServerID: pbxServer.ID, SIPUsername: "7001", Extension: "7001",
		PasswordHash: hash, DisplayName: "Alice",
		Status: models.StatusOffline, Active: true,
	}
	if err := users.Create(ctx, user); err != nil {
		t.Fatalf("seeding user: %v", err)
	}

	reconciler := call.NewService(calls, contacts)
	recorder := recording.NewService(recordings, users, contacts, reconciler)

	srv := NewServer(Deps{
		Cfg:        &config.Config{MaxRecordingMB: 1, InstanceName: "test"},
		JWTSecret:  testJWTSecret,
		Servers:    servers,
		Users:      users,
		Contacts:   contacts,
		Calls:      calls,
		Recordings: recordings,
		Events:     events,
		HoldMusic:  holdMusic,
		Reconciler: reconciler,
		Recorder:   recorder,
		Presence:   presence.NewEngine(users),
	})
	t.Cleanup(srv.Close)

	return &apiTestEnv{
		srv: srv, db: db, server: pbxServer, user: user,
		events: events, users: users, calls: calls,
	}
}

func (env *apiTestEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	env.srv.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding response %q: %v", rr.Body.String(), err)
	}
	return v
}

func (env *apiTestEnv) login(t *testing.T) string {
	t.Helper()
	rr := env.do(t, http.MethodPost, "/voip/auth/login", "", map[string]string{
		"sip_username": "7001", "password": testPassword,
	})
	resp := decode[loginResponse](t, rr)
	if !resp.Success || resp.Token == "" {
		t.Fatalf("login failed: %+v", resp)
	}
	return resp.Token
}

func TestHealth(t *testing.T) {
	env := newAPITestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/v1/health", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
}

func TestLogin(t *testing.T) {
	env := newAPITestEnv(t)

	t.Run("valid credentials", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/voip/auth/login", "", map[string]string{
			"sip_username": "7001", "password": testPassword,
		})
		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rr.Code)
		}
		resp := decode[loginResponse](t, rr)
		if !resp.Success || resp.Token == "" {
			t.Fatalf("response = %+v, want success with token", resp)
		}
		if resp.UserID != env.user.ID {
			t.Errorf("UserID = %d, want %d", resp.UserID, env.user.ID)
		}

		// Login stamps last_login.
		u, _ := env.users.GetByID(context.Background(), env.user.ID)
		if u.LastLogin == nil {
			t.Error("last_login not stamped")
		}
	})

	t.Run("wrong password answers 200 with error", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/voip/auth/login", "", map[string]string{
			"sip_username": "7001", "password": "nope",
		})
		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rr.Code)
		}
		resp := decode[loginResponse](t, rr)
		if resp.Success || resp.Error != "invalid credentials" {
			t.Fatalf("response = %+v, want invalid credentials", resp)
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/voip/auth/login", "", map[string]string{
			"sip_username": "9999", "password": "whatever",
		})
		resp := decode[loginResponse](t, rr)
		if resp.Success || resp.Error != "invalid credentials" {
			t.Fatalf("response = %+v, want invalid credentials", resp)
		}
	})
}

func TestClientEndpointsRequireToken(t *testing.T) {
	env := newAPITestEnv(t)

	for _, path := range []string{"/voip/config", "/voip/call/list", "/voip/users/list"} {
		rr := env.do(t, http.MethodGet, path, "", nil)
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("GET %s status = %d, want 401", path, rr.Code)
		}
	}
}

func TestClientConfig(t *testing.T) {
	env := newAPITestEnv(t)
	token := env.login(t)

	rr := env.do(t, http.MethodGet, "/voip/config", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	resp := decode[map[string]any](t, rr)
	if resp["success"] != true {
		t.Fatalf("response = %v, want success", resp)
	}
	if resp["websocket_url"] != "wss://pbx.example.com:8089/ws" {
		t.Errorf("websocket_url = %v", resp["websocket_url"])
	}
	if resp["sip_username"] != "7001" {
		t.Errorf("sip_username = %v", resp["sip_username"])
	}
}

func TestCallLifecycleOverHTTP(t *testing.T) {
	env := newAPITestEnv(t)
	token := env.login(t)

	// Create.
	rr := env.do(t, http.MethodPost, "/voip/call/create", token, map[string]string{
		"call_sid": "lifecycle@pbx", "direction": "outbound", "to_number": "5550100",
	})
	created := decode[callCreateResponse](t, rr)
	if !created.Success || created.CallID == 0 {
		t.Fatalf("create response = %+v", created)
	}
	if created.Attached {
		t.Error("fresh create reported as attach")
	}

	// Creating again with the same SIP call id attaches.
	rr = env.do(t, http.MethodPost, "/voip/call/create", token, map[string]string{
		"call_sid": "lifecycle@pbx", "direction": "inbound",
	})
	again := decode[callCreateResponse](t, rr)
	if !again.Attached || again.CallID != created.CallID {
		t.Fatalf("second create = %+v, want attach to %d", again, created.CallID)
	}

	// Answer.
	rr = env.do(t, http.MethodPost, "/voip/call/update", token, map[string]string{
		"call_id": "lifecycle@pbx", "state": "in_progress",
	})
	updated := decode[callUpdateResponse](t, rr)
	if !updated.Success || updated.State != models.CallStateInProgress {
		t.Fatalf("update response = %+v", updated)
	}

	// Hang up via update_duration with the record id. The client also
	// reports its own measured duration.
	rr = env.do(t, http.MethodPost, "/voip/call/update_duration", token, map[string]any{
		"call_id":  strconv.FormatInt(created.CallID, 10),
		"duration": 33,
	})
	closed := decode[callUpdateResponse](t, rr)
	if !closed.Success {
		t.Fatalf("update_duration response = %+v", closed)
	}
	if closed.DurationDisplay == "" {
		t.Error("missing duration display")
	}

	// update_duration rejects SIP call ids.
	rr = env.do(t, http.MethodPost, "/voip/call/update_duration", token, map[string]string{
		"call_id": "lifecycle@pbx",
	})
	rejected := decode[callUpdateResponse](t, rr)
	if rejected.Success || rejected.Error == "" {
		t.Fatalf("update_duration with sip id = %+v, want error", rejected)
	}

	// The user sees the call in their list, with the page bookkeeping
	// fields alongside the total.
	rr = env.do(t, http.MethodGet, "/voip/call/list", token, nil)
	list := decode[callListResponse](t, rr)
	if !list.Success || list.Total != 1 || len(list.Calls) != 1 {
		t.Fatalf("list response = %+v, want 1 call", list)
	}
	if list.Calls[0].ID != created.CallID {
		t.Errorf("listed call id = %d, want %d", list.Calls[0].ID, created.CallID)
	}
	if list.Count != 1 {
		t.Errorf("count = %d, want 1", list.Count)
	}
	if list.Limit == 0 {
		t.Error("limit missing from list response")
	}
}

func TestCallUpdateUnknownKey(t *testing.T) {
	env := newAPITestEnv(t)
	token := env.login(t)

	rr := env.do(t, http.MethodPost, "/voip/call/update", token, map[string]string{
		"call_id": "missing@pbx", "state": "completed",
	})
	resp := decode[callUpdateResponse](t, rr)
	if rr.Code != http.StatusOK || resp.Success || resp.Error != "call not found" {
		t.Fatalf("status %d, response = %+v, want 200 call not found", rr.Code, resp)
	}
}

func TestPBXWebhook(t *testing.T) {
	env := newAPITestEnv(t)

	webhook := func(t *testing.T, apiKey string, body string) *httptest.ResponseRecorder {
		t.Helper()
		req := httptest.NewRequest(http.MethodPost, "/pbx/webhook", strings.NewReader(body))
		if apiKey != "" {
			req.Header.Set("X-API-Key", apiKey)
		}
		rr := httptest.NewRecorder()
		env.srv.ServeHTTP(rr, req)
		return rr
	}

	t.Run("missing api key", func(t *testing.T) {
		rr := webhook(t, "", `{"Event":"PeerStatus"}`)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", rr.Code)
		}
	})

	t.Run("unknown api key", func(t *testing.T) {
		rr := webhook(t, "wrong-key", `{"Event":"PeerStatus"}`)
		if rr.Code != http.StatusForbidden {
			t.Fatalf("status = %d, want 403", rr.Code)
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		rr := webhook(t, testAPIKey, `{not json`)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rr.Code)
		}
	})

	t.Run("peer status drives presence", func(t *testing.T) {
		rr := webhook(t, testAPIKey, `{"Event":"PeerStatus","Peer":"PJSIP/7001","PeerStatus":"Reachable"}`)
		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rr.Code)
		}
		resp := decode[webhookResponse](t, rr)
		if !resp.Success || !resp.Changed || resp.Status != models.StatusAvailable {
			t.Fatalf("response = %+v, want available change", resp)
		}

		u, _ := env.users.GetByID(context.Background(), env.user.ID)
		if u.Status != models.StatusAvailable {
			t.Errorf("user status = %q, want available", u.Status)
		}
	})

	t.Run("events are journaled and marked processed", func(t *testing.T) {
		webhook(t, testAPIKey, `{"Event":"Hangup","Channel":"PJSIP/7001-0000002a","Uniqueid":"171717.42"}`)

		events, _, err := env.events.List(context.Background(), database.EventListFilter{
			EventType: "Hangup", Limit: 10,
		})
		if err != nil {
			t.Fatalf("listing events: %v", err)
		}
		if len(events) != 1 {
			t.Fatalf("got %d Hangup events, want 1", len(events))
		}
		ev := events[0]
		if ev.UniqueID != "171717.42" || ev.ServerID != env.server.ID {
			t.Errorf("journaled event = %+v", ev)
		}
		if !ev.Processed {
			t.Error("event not marked processed")
		}
		if !strings.Contains(ev.Raw, `"Event":"Hangup"`) {
			t.Errorf("raw payload not preserved: %q", ev.Raw)
		}
	})
}

func TestNotification(t *testing.T) {
	env := newAPITestEnv(t)

	rr := env.do(t, http.MethodPost, "/voip/webhook/notification", "", map[string]string{
		"event": "call_start", "extension": "7001",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	resp := decode[notificationResponse](t, rr)
	if !resp.Success || resp.NewStatus != models.StatusBusy || !resp.Changed {
		t.Fatalf("response = %+v, want busy change", resp)
	}

	t.Run("alias field names", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/voip/webhook/notification", "", map[string]string{
			"user": "7001", "state": "away",
		})
		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rr.Code)
		}
		resp := decode[notificationResponse](t, rr)
		if !resp.Success || resp.NewStatus != models.StatusAway {
			t.Fatalf("response = %+v, want away via alias fields", resp)
		}
	})

	t.Run("type alias for event", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/voip/webhook/notification", "", map[string]string{
			"type": "user_offline", "extension": "7001",
		})
		resp := decode[notificationResponse](t, rr)
		if !resp.Success || resp.NewStatus != models.StatusOffline {
			t.Fatalf("response = %+v, want offline via type alias", resp)
		}
	})

	t.Run("unknown extension", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/voip/webhook/notification", "", map[string]string{
			"event": "call_start", "extension": "9999",
		})
		resp := decode[notificationResponse](t, rr)
		if resp.Success || resp.Error != "no user for extension" {
			t.Fatalf("response = %+v", resp)
		}
	})

	t.Run("unknown event", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/voip/webhook/notification", "", map[string]string{
			"event": "made_up", "extension": "7001",
		})
		resp := decode[notificationResponse](t, rr)
		if resp.Success || resp.Error != "unknown event" {
			t.Fatalf("response = %+v", resp)
		}
	})
}

func TestAdminCallListEnvelope(t *testing.T) {
	env := newAPITestEnv(t)
	token := env.login(t)

	// Seed a call owned by nobody the client principal would match.
	c := &models.Call{
		UserID: env.user.ID + 100, Direction: models.DirectionInbound,
		State: models.CallStateCompleted, FromNumber: "5550199", ToNumber: "8888",
		StartTime: time.Now().UTC(),
	}
	if err := env.calls.Create(context.Background(), c); err != nil {
		t.Fatalf("seeding call: %v", err)
	}

	rr := env.do(t, http.MethodGet, "/api/v1/calls?limit=10", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	var envl struct {
		Data struct {
			Items []callEntry `json:"items"`
			Total int         `json:"total"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &envl); err != nil {
		t.Fatalf("decoding envelope: %v", err)
	}
	// Admin sees the call even though it belongs to another principal.
	if envl.Data.Total != 1 || len(envl.Data.Items) != 1 {
		t.Fatalf("data = %+v, want the seeded call", envl.Data)
	}

	// The client list does not see it.
	rrClient := env.do(t, http.MethodGet, "/voip/call/list", token, nil)
	list := decode[callListResponse](t, rrClient)
	if list.Total != 0 {
		t.Errorf("client list total = %d, want 0", list.Total)
	}
}

func TestRecordingUploadOverHTTP(t *testing.T) {
	env := newAPITestEnv(t)
	token := env.login(t)

	created := decode[callCreateResponse](t, env.do(t, http.MethodPost, "/voip/call/create", token, map[string]string{
		"call_sid": "rec@pbx", "direction": "outbound", "to_number": "5550100",
	}))
	if !created.Success {
		t.Fatalf("create failed: %+v", created)
	}

	rr := env.do(t, http.MethodPost, "/voip/recording/create", token, map[string]any{
		"call_id": "rec@pbx", "data": "QUJD", "duration": 4, "format": "ogg",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	resp := decode[recordingResponse](t, rr)
	if !resp.Success || resp.RecordingID == 0 {
		t.Fatalf("response = %+v", resp)
	}
	if resp.Standalone {
		t.Error("recording stored standalone, want attached to call")
	}
	if resp.FileSize != 3 {
		t.Errorf("FileSize = %d, want 3 decoded bytes", resp.FileSize)
	}
}

func TestServerAdminFlow(t *testing.T) {
	env := newAPITestEnv(t)
	token := env.login(t)

	// Create a second server; the response exposes the minted key once.
	rr := env.do(t, http.MethodPost, "/api/v1/servers", token, map[string]any{
		"name": "pbx2", "host": "pbx2.example.com", "port": 8089,
		"websocket_url": "wss://pbx2.example.com:8089/ws", "realm": "pbx2.example.com",
		"active": true,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rr.Code, rr.Body.String())
	}
	var createEnvl struct {
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &createEnvl); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	key, _ := createEnvl.Data["api_key"].(string)
	if key == "" {
		t.Fatal("create response missing api_key")
	}

	// The list never exposes keys.
	rr = env.do(t, http.MethodGet, "/api/v1/servers", token, nil)
	if strings.Contains(rr.Body.String(), key) {
		t.Error("server list leaked an api key")
	}

	// The minted key authenticates webhooks.
	req := httptest.NewRequest(http.MethodPost, "/pbx/webhook", strings.NewReader(`{"Event":"Hangup"}`))
	req.Header.Set("X-API-Key", key)
	wrr := httptest.NewRecorder()
	env.srv.ServeHTTP(wrr, req)
	if wrr.Code != http.StatusOK {
		t.Fatalf("webhook with minted key status = %d, want 200", wrr.Code)
	}
}
