package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/voipbridge/voipbridge/internal/database/models"
)

// serverRequest is the JSON body for creating/updating a PBX server entry.
type serverRequest struct {
	Name             string `json:"name"`
	Host             string `json:"host"`
	Port             int    `json:"port"`
	UseTLS           *bool  `json:"use_tls"`
	WebsocketURL     string `json:"websocket_url"`
	Realm            string `json:"realm"`
	RecordingEnabled *bool  `json:"recording_enabled"`
	MaxRecordingMB   *int   `json:"max_recording_mb"`
	Active           *bool  `json:"active"`
}

// serverResponse is the admin API view of a PBX server. The API key is only
// returned on create and rotate so it is seen once.
type serverResponse struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	Host             string `json:"host"`
	Port             int    `json:"port"`
	UseTLS           bool   `json:"use_tls"`
	WebsocketURL     string `json:"websocket_url,omitempty"`
	Realm            string `json:"realm,omitempty"`
	APIKey           string `json:"api_key,omitempty"`
	RecordingEnabled bool   `json:"recording_enabled"`
	MaxRecordingMB   int    `json:"max_recording_mb"`
	Active           bool   `json:"active"`
	CreatedAt        string `json:"created_at"`
}

func toServerResponse(srv *models.Server, includeKey bool) serverResponse {
	resp := serverResponse{
		ID:               srv.ID,
		Name:             srv.Name,
		Host:             srv.Host,
		Port:             srv.Port,
		UseTLS:           srv.UseTLS,
		WebsocketURL:     srv.WebsocketURL,
		Realm:            srv.Realm,
		RecordingEnabled: srv.RecordingEnabled,
		MaxRecordingMB:   srv.MaxRecordingMB,
		Active:           srv.Active,
		CreatedAt:        srv.CreatedAt.UTC().Format(time.RFC3339),
	}
	if includeKey {
		resp.APIKey = srv.APIKey
	}
	return resp
}

func (req *serverRequest) validate() string {
	if msg := validateRequiredStringLen("name", req.Name, maxNameLen); msg != "" {
		return msg
	}
	if msg := validateHost("host", req.Host); msg != "" {
		return msg
	}
	if msg := validatePort("port", req.Port); msg != "" {
		return msg
	}
	if msg := validateStringLen("websocket_url", req.WebsocketURL, maxURLLen); msg != "" {
		return msg
	}
	if msg := validateStringLen("realm", req.Realm, maxHostLen); msg != "" {
		return msg
	}
	return validateNoControlChars("name", req.Name)
}

// handleServerCreate registers a PBX server and mints its webhook API key.
func (s *Server) handleServerCreate(w http.ResponseWriter, r *http.Request) {
	var req serverRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	srv := &models.Server{
		Name:         req.Name,
		Host:         req.Host,
		Port:         req.Port,
		WebsocketURL: req.WebsocketURL,
		Realm:        req.Realm,
		APIKey:       uuid.NewString(),
		Active:       true,
	}
	if req.UseTLS != nil {
		srv.UseTLS = *req.UseTLS
	}
	if req.RecordingEnabled != nil {
		srv.RecordingEnabled = *req.RecordingEnabled
	}
	if req.MaxRecordingMB != nil {
		srv.MaxRecordingMB = *req.MaxRecordingMB
	}
	if req.Active != nil {
		srv.Active = *req.Active
	}

	if err := s.deps.Servers.Create(r.Context(), srv); err != nil {
		slog.Error("server create failed", "name", req.Name, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	slog.Info("server registered", "server_id", srv.ID, "host", srv.Host)
	writeJSON(w, http.StatusCreated, toServerResponse(srv, true))
}

// handleServerList returns registered servers. API keys are omitted.
func (s *Server) handleServerList(w http.ResponseWriter, r *http.Request) {
	servers, err := s.deps.Servers.List(r.Context())
	if err != nil {
		slog.Error("server list failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	entries := make([]serverResponse, len(servers))
	for i := range servers {
		entries[i] = toServerResponse(&servers[i], false)
	}

	writeJSON(w, http.StatusOK, PaginatedResponse{
		Items:  entries,
		Total:  len(entries),
		Limit:  len(entries),
		Offset: 0,
	})
}

// handleServerGet returns a single server by id.
func (s *Server) handleServerGet(w http.ResponseWriter, r *http.Request) {
	srv, ok := s.serverFromPath(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toServerResponse(srv, false))
}

// handleServerUpdate modifies a server registration. The API key is not
// touched here; rotate-key mints a new one.
func (s *Server) handleServerUpdate(w http.ResponseWriter, r *http.Request) {
	srv, ok := s.serverFromPath(w, r)
	if !ok {
		return
	}

	var req serverRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	srv.Name = req.Name
	srv.Host = req.Host
	srv.Port = req.Port
	srv.WebsocketURL = req.WebsocketURL
	srv.Realm = req.Realm
	if req.UseTLS != nil {
		srv.UseTLS = *req.UseTLS
	}
	if req.RecordingEnabled != nil {
		srv.RecordingEnabled = *req.RecordingEnabled
	}
	if req.MaxRecordingMB != nil {
		srv.MaxRecordingMB = *req.MaxRecordingMB
	}
	if req.Active != nil {
		srv.Active = *req.Active
	}

	if err := s.deps.Servers.Update(r.Context(), srv); err != nil {
		slog.Error("server update failed", "server_id", srv.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, toServerResponse(srv, false))
}

// handleServerRotateKey mints a new webhook API key, invalidating the old one.
func (s *Server) handleServerRotateKey(w http.ResponseWriter, r *http.Request) {
	srv, ok := s.serverFromPath(w, r)
	if !ok {
		return
	}

	srv.APIKey = uuid.NewString()
	if err := s.deps.Servers.Update(r.Context(), srv); err != nil {
		slog.Error("server rotate key failed", "server_id", srv.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	slog.Info("server api key rotated", "server_id", srv.ID)
	writeJSON(w, http.StatusOK, toServerResponse(srv, true))
}

// handleServerTest probes the server's manager interface over AJAM.
func (s *Server) handleServerTest(w http.ResponseWriter, r *http.Request) {
	srv, ok := s.serverFromPath(w, r)
	if !ok {
		return
	}
	if s.deps.Probe == nil {
		writeError(w, http.StatusServiceUnavailable, "connection probe not configured")
		return
	}

	start := time.Now()
	if err := s.deps.Probe.Ping(r.Context(), srv.Host, srv.Port, srv.UseTLS); err != nil {
		slog.Warn("server probe failed", "server_id", srv.ID, "error", err)
		writeJSON(w, http.StatusOK, map[string]any{
			"reachable": false,
			"error":     err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"reachable":  true,
		"latency_ms": time.Since(start).Milliseconds(),
	})
}

// serverFromPath loads the server addressed by the {id} URL parameter,
// writing the error response itself when the id is bad or unknown.
func (s *Server) serverFromPath(w http.ResponseWriter, r *http.Request) (*models.Server, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid server id")
		return nil, false
	}

	srv, err := s.deps.Servers.GetByID(r.Context(), id)
	if err != nil {
		slog.Error("server lookup failed", "server_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return nil, false
	}
	if srv == nil {
		writeError(w, http.StatusNotFound, "server not found")
		return nil, false
	}
	return srv, true
}
