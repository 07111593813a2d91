package api

import (
	"log/slog"
	"net/http"

	"github.com/voipbridge/voipbridge/internal/api/middleware"
)

// clientConfigResponse is the softphone bootstrap payload: where to register
// and how this user's phone should behave. The password hash never leaves
// the server.
type clientConfigResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`

	ServerHost   string `json:"server_host,omitempty"`
	ServerPort   int    `json:"server_port,omitempty"`
	UseTLS       bool   `json:"use_tls"`
	WebsocketURL string `json:"websocket_url,omitempty"`
	Realm        string `json:"realm,omitempty"`

	SIPUsername  string `json:"sip_username,omitempty"`
	Extension    string `json:"extension,omitempty"`
	DisplayName  string `json:"display_name,omitempty"`
	AutoAnswer   bool   `json:"auto_answer"`
	RingTone     string `json:"ring_tone,omitempty"`
	EnableRecord bool   `json:"enable_record"`
	AutoRecord   bool   `json:"auto_record"`
	RecordFormat string `json:"record_format,omitempty"`
}

// handleClientConfig returns the registration and phone settings for the
// authenticated user.
func (s *Server) handleClientConfig(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())

	u, err := s.deps.Users.GetByID(r.Context(), userID)
	if err != nil {
		slog.Error("client config: user lookup failed", "user_id", userID, "error", err)
		writeRaw(w, http.StatusOK, clientConfigResponse{Error: "internal error"})
		return
	}
	if u == nil || !u.Active {
		writeRaw(w, http.StatusOK, clientConfigResponse{Error: "user not found"})
		return
	}

	srv, err := s.deps.Servers.GetByID(r.Context(), u.ServerID)
	if err != nil {
		slog.Error("client config: server lookup failed", "server_id", u.ServerID, "error", err)
		writeRaw(w, http.StatusOK, clientConfigResponse{Error: "internal error"})
		return
	}
	if srv == nil || !srv.Active {
		writeRaw(w, http.StatusOK, clientConfigResponse{Error: "no active server configured"})
		return
	}

	writeRaw(w, http.StatusOK, clientConfigResponse{
		Success:      true,
		ServerHost:   srv.Host,
		ServerPort:   srv.Port,
		UseTLS:       srv.UseTLS,
		WebsocketURL: srv.WebsocketURL,
		Realm:        srv.Realm,
		SIPUsername:  u.SIPUsername,
		Extension:    u.Extension,
		DisplayName:  u.DisplayName,
		AutoAnswer:   u.AutoAnswer,
		RingTone:     u.RingTone,
		EnableRecord: u.EnableRecord,
		AutoRecord:   u.AutoRecord,
		RecordFormat: u.RecordFormat,
	})
}
