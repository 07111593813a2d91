package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/voipbridge/voipbridge/internal/database/models"
	"github.com/voipbridge/voipbridge/internal/presence"
)

// maxWebhookBody caps a single webhook payload (1 MB).
const maxWebhookBody = 1 << 20

// pbxEvent mirrors the AMI event fields the PBX forwarder posts.
type pbxEvent struct {
	Event            string `json:"Event"`
	Channel          string `json:"Channel"`
	CallerIDNum      string `json:"CallerIDNum"`
	CallerIDName     string `json:"CallerIDName"`
	ConnectedLineNum string `json:"ConnectedLineNum"`
	Exten            string `json:"Exten"`
	Context          string `json:"Context"`
	UniqueID         string `json:"Uniqueid"`
	LinkedID         string `json:"Linkedid"`
	Peer             string `json:"Peer"`
	PeerStatus       string `json:"PeerStatus"`
	ChannelState     string `json:"ChannelState"`
}

// webhookResponse acknowledges a processed PBX event.
type webhookResponse struct {
	Success   bool   `json:"success"`
	Event     string `json:"event,omitempty"`
	Extension string `json:"extension,omitempty"`
	Status    string `json:"status,omitempty"`
	Changed   bool   `json:"changed,omitempty"`
}

// handlePBXWebhook ingests AMI events forwarded by the PBX. Authentication
// is the server API key: a missing key answers 401, a key matching no active
// server 403, a malformed body 400. Events are journaled before dispatch;
// a journal failure is logged and processing continues.
func (s *Server) handlePBXWebhook(w http.ResponseWriter, r *http.Request) {
	apiKey := r.Header.Get("X-API-Key")
	if apiKey == "" {
		writeError(w, http.StatusUnauthorized, "missing api key")
		return
	}

	srv, err := s.deps.Servers.GetByAPIKey(r.Context(), apiKey)
	if err != nil {
		slog.Error("webhook: server lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if srv == nil {
		slog.Warn("webhook: unknown api key", "remote_addr", r.RemoteAddr)
		writeError(w, http.StatusForbidden, "invalid api key")
		return
	}

	if !s.webhookLimiter.Allow(apiKey) {
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	var ev pbxEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	record := &models.Event{
		ServerID:         srv.ID,
		EventType:        ev.Event,
		Channel:          ev.Channel,
		CallerIDNum:      ev.CallerIDNum,
		CallerIDName:     ev.CallerIDName,
		ConnectedLineNum: ev.ConnectedLineNum,
		Exten:            ev.Exten,
		Context:          ev.Context,
		UniqueID:         ev.UniqueID,
		LinkedID:         ev.LinkedID,
		Peer:             ev.Peer,
		PeerStatus:       ev.PeerStatus,
		ChannelState:     ev.ChannelState,
		Raw:              string(body),
	}
	if err := s.deps.Events.Create(r.Context(), record); err != nil {
		slog.Error("webhook: journaling event failed",
			"event", ev.Event, "server_id", srv.ID, "error", err)
	} else if s.deps.Archive != nil {
		if err := s.deps.Archive.Archive(r.Context(), s.deps.Cfg.InstanceName, record); err != nil {
			slog.Warn("webhook: archiving event failed",
				"event_id", record.ID, "error", err)
		}
	}

	resp := webhookResponse{Success: true, Event: ev.Event}

	extension, status, ok := dispatchEvent(&ev)
	if ok && extension != "" {
		tr, err := s.deps.Presence.Apply(r.Context(), extension, status)
		if err != nil {
			slog.Error("webhook: presence update failed",
				"extension", extension, "status", status, "error", err)
		} else if tr != nil {
			resp.Extension = extension
			resp.Status = tr.New
			resp.Changed = tr.Changed
			if tr.Changed {
				slog.Info("presence changed",
					"extension", extension, "old", tr.Old, "new", tr.New,
					"event", ev.Event)
			}
		}
	}

	if record.ID != 0 {
		if err := s.deps.Events.MarkProcessed(r.Context(), record.ID); err != nil {
			slog.Warn("webhook: marking event processed failed",
				"event_id", record.ID, "error", err)
		}
	}

	writeRaw(w, http.StatusOK, resp)
}

// dispatchEvent maps an AMI event to the extension and presence status it
// implies. Hangup and unrecognized events are journal-only.
func dispatchEvent(ev *pbxEvent) (extension, status string, ok bool) {
	switch ev.Event {
	case "PeerStatus":
		extension = presence.ExtensionFromPeer(ev.Peer)
		status, ok = presence.FromPeerStatus(ev.PeerStatus)
	case "Newstate":
		extension = presence.ExtensionFromChannel(ev.Channel)
		status, ok = presence.FromChannelState(ev.ChannelState)
	case "Newchannel":
		extension = presence.ExtensionFromChannel(ev.Channel)
		status, ok = models.StatusBusy, true
	}
	return extension, status, ok
}

// notificationRequest is the JSON body of a client presence nudge. Each
// field has an alias the older client builds send; either name is accepted.
type notificationRequest struct {
	Event     string `json:"event"`
	Type      string `json:"type"`
	Extension string `json:"extension"`
	User      string `json:"user"`
	Status    string `json:"status"`
	State     string `json:"state"`
}

// event returns the event name, preferring the primary field.
func (req *notificationRequest) event() string {
	if req.Event != "" {
		return req.Event
	}
	return req.Type
}

func (req *notificationRequest) extension() string {
	if req.Extension != "" {
		return req.Extension
	}
	return req.User
}

func (req *notificationRequest) status() string {
	if req.Status != "" {
		return req.Status
	}
	return req.State
}

// notificationResponse reports the presence transition.
type notificationResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	Extension string `json:"extension,omitempty"`
	OldStatus string `json:"old_status,omitempty"`
	NewStatus string `json:"new_status,omitempty"`
	Changed   bool   `json:"changed,omitempty"`
}

// handleNotification applies a softphone presence nudge. An explicit status
// field overrides the event mapping.
func (s *Server) handleNotification(w http.ResponseWriter, r *http.Request) {
	var req notificationRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeRaw(w, http.StatusOK, notificationResponse{Error: errMsg})
		return
	}

	extension := req.extension()
	explicit := req.status()

	if extension == "" {
		writeRaw(w, http.StatusOK, notificationResponse{Error: "extension is required"})
		return
	}
	if explicit != "" && !validPresenceStatus(explicit) {
		writeRaw(w, http.StatusOK, notificationResponse{Error: "invalid status"})
		return
	}

	status, ok := presence.FromNotification(req.event(), explicit)
	if !ok {
		writeRaw(w, http.StatusOK, notificationResponse{Error: "unknown event"})
		return
	}

	tr, err := s.deps.Presence.Apply(r.Context(), extension, status)
	if err != nil {
		slog.Error("notification: presence update failed",
			"extension", extension, "error", err)
		writeRaw(w, http.StatusOK, notificationResponse{Error: "internal error"})
		return
	}
	if tr == nil {
		writeRaw(w, http.StatusOK, notificationResponse{Error: "no user for extension"})
		return
	}

	writeRaw(w, http.StatusOK, notificationResponse{
		Success:   true,
		Extension: extension,
		OldStatus: tr.Old,
		NewStatus: tr.New,
		Changed:   tr.Changed,
	})
}

func validPresenceStatus(status string) bool {
	switch status {
	case models.StatusAvailable, models.StatusBusy, models.StatusOffline, models.StatusAway:
		return true
	}
	return false
}
