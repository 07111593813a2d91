package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/voipbridge/voipbridge/internal/database"
	"github.com/voipbridge/voipbridge/internal/database/models"
)

// directoryEntry is the BLF panel view of a user: extension plus presence.
type directoryEntry struct {
	ID          int64  `json:"id"`
	SIPUsername string `json:"sip_username"`
	Extension   string `json:"extension,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Status      string `json:"status"`
}

// usersListResponse is the fixed wire shape for the extension directory.
type usersListResponse struct {
	Success bool             `json:"success"`
	Error   string           `json:"error,omitempty"`
	Users   []directoryEntry `json:"users"`
	Total   int              `json:"total"`
}

// handleUsersList returns the extension directory with live presence for
// the softphone's BLF panel.
func (s *Server) handleUsersList(w http.ResponseWriter, r *http.Request) {
	users, err := s.deps.Users.List(r.Context())
	if err != nil {
		slog.Error("users list failed", "error", err)
		writeRaw(w, http.StatusOK, usersListResponse{Error: "internal error"})
		return
	}

	entries := make([]directoryEntry, 0, len(users))
	for i := range users {
		u := &users[i]
		if !u.Active {
			continue
		}
		entries = append(entries, directoryEntry{
			ID:          u.ID,
			SIPUsername: u.SIPUsername,
			Extension:   u.Extension,
			DisplayName: u.DisplayName,
			Status:      u.Status,
		})
	}

	writeRaw(w, http.StatusOK, usersListResponse{
		Success: true,
		Users:   entries,
		Total:   len(entries),
	})
}

// userRequest is the JSON body for creating/updating a user via the admin API.
type userRequest struct {
	ServerID     int64  `json:"server_id"`
	SIPUsername  string `json:"sip_username"`
	Extension    string `json:"extension"`
	Password     string `json:"password"`
	DisplayName  string `json:"display_name"`
	AutoAnswer   *bool  `json:"auto_answer"`
	RingTone     string `json:"ring_tone"`
	EnableRecord *bool  `json:"enable_record"`
	AutoRecord   *bool  `json:"auto_record"`
	RecordFormat string `json:"record_format"`
	Active       *bool  `json:"active"`
}

// userResponse is the admin API view of a user. The password hash is never
// returned.
type userResponse struct {
	ID           int64  `json:"id"`
	ServerID     int64  `json:"server_id"`
	SIPUsername  string `json:"sip_username"`
	Extension    string `json:"extension,omitempty"`
	DisplayName  string `json:"display_name,omitempty"`
	Status       string `json:"status"`
	AutoAnswer   bool   `json:"auto_answer"`
	RingTone     string `json:"ring_tone,omitempty"`
	EnableRecord bool   `json:"enable_record"`
	AutoRecord   bool   `json:"auto_record"`
	RecordFormat string `json:"record_format,omitempty"`
	Active       bool   `json:"active"`
	LastLogin    string `json:"last_login,omitempty"`
	CreatedAt    string `json:"created_at"`
}

func toUserResponse(u *models.VoIPUser) userResponse {
	resp := userResponse{
		ID:           u.ID,
		ServerID:     u.ServerID,
		SIPUsername:  u.SIPUsername,
		Extension:    u.Extension,
		DisplayName:  u.DisplayName,
		Status:       u.Status,
		AutoAnswer:   u.AutoAnswer,
		RingTone:     u.RingTone,
		EnableRecord: u.EnableRecord,
		AutoRecord:   u.AutoRecord,
		RecordFormat: u.RecordFormat,
		Active:       u.Active,
		CreatedAt:    u.CreatedAt.UTC().Format(time.RFC3339),
	}
	if u.LastLogin != nil {
		resp.LastLogin = u.LastLogin.UTC().Format(time.RFC3339)
	}
	return resp
}

func (req *userRequest) validate(create bool) string {
	if create && req.ServerID <= 0 {
		return "server_id is required"
	}
	if msg := validateRequiredStringLen("sip_username", req.SIPUsername, maxShortStringLen); msg != "" {
		return msg
	}
	if msg := validateExtensionNumber("extension", req.Extension); msg != "" {
		return msg
	}
	if create && req.Password == "" {
		return "password is required"
	}
	if msg := validateStringLen("password", req.Password, maxPasswordLen); msg != "" {
		return msg
	}
	if msg := validateStringLen("display_name", req.DisplayName, maxNameLen); msg != "" {
		return msg
	}
	return validateNoControlChars("display_name", req.DisplayName)
}

// handleUserCreate registers a softphone account. The SIP secret is hashed
// with argon2id before it touches the database.
func (s *Server) handleUserCreate(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if msg := req.validate(true); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	srv, err := s.deps.Servers.GetByID(r.Context(), req.ServerID)
	if err != nil {
		slog.Error("user create: server lookup failed", "server_id", req.ServerID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if srv == nil {
		writeError(w, http.StatusBadRequest, "server not found")
		return
	}

	hash, err := database.HashPassword(req.Password)
	if err != nil {
		slog.Error("user create: hashing password failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	u := &models.VoIPUser{
		ServerID:     req.ServerID,
		SIPUsername:  req.SIPUsername,
		Extension:    req.Extension,
		PasswordHash: hash,
		DisplayName:  req.DisplayName,
		Status:       models.StatusOffline,
		RingTone:     req.RingTone,
		RecordFormat: req.RecordFormat,
		Active:       true,
	}
	if req.AutoAnswer != nil {
		u.AutoAnswer = *req.AutoAnswer
	}
	if req.EnableRecord != nil {
		u.EnableRecord = *req.EnableRecord
	}
	if req.AutoRecord != nil {
		u.AutoRecord = *req.AutoRecord
	}
	if req.Active != nil {
		u.Active = *req.Active
	}

	if err := s.deps.Users.Create(r.Context(), u); err != nil {
		slog.Error("user create failed", "sip_username", req.SIPUsername, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	slog.Info("user created", "user_id", u.ID, "sip_username", u.SIPUsername)
	writeJSON(w, http.StatusCreated, toUserResponse(u))
}

// handleUserList returns users for the admin API.
func (s *Server) handleUserList(w http.ResponseWriter, r *http.Request) {
	pg, errMsg := parsePagination(r)
	if errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	users, err := s.deps.Users.List(r.Context())
	if err != nil {
		slog.Error("admin user list failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	all := make([]userResponse, len(users))
	for i := range users {
		all[i] = toUserResponse(&users[i])
	}

	total := len(all)
	start := pg.Offset
	if start > total {
		start = total
	}
	end := start + pg.Limit
	if end > total {
		end = total
	}

	writeJSON(w, http.StatusOK, PaginatedResponse{
		Items:  all[start:end],
		Total:  total,
		Limit:  pg.Limit,
		Offset: pg.Offset,
	})
}

// handleUserGet returns a single user by id.
func (s *Server) handleUserGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	u, err := s.deps.Users.GetByID(r.Context(), id)
	if err != nil {
		slog.Error("user get failed", "user_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if u == nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// handleUserUpdate modifies a user. Password changes re-hash; an empty
// password leaves the stored hash untouched.
func (s *Server) handleUserUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	u, err := s.deps.Users.GetByID(r.Context(), id)
	if err != nil {
		slog.Error("user update: lookup failed", "user_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if u == nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}

	var req userRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if msg := req.validate(false); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	u.SIPUsername = req.SIPUsername
	u.Extension = req.Extension
	u.DisplayName = req.DisplayName
	u.RingTone = req.RingTone
	u.RecordFormat = req.RecordFormat
	if req.ServerID > 0 {
		u.ServerID = req.ServerID
	}
	if req.AutoAnswer != nil {
		u.AutoAnswer = *req.AutoAnswer
	}
	if req.EnableRecord != nil {
		u.EnableRecord = *req.EnableRecord
	}
	if req.AutoRecord != nil {
		u.AutoRecord = *req.AutoRecord
	}
	if req.Active != nil {
		u.Active = *req.Active
	}
	if req.Password != "" {
		hash, err := database.HashPassword(req.Password)
		if err != nil {
			slog.Error("user update: hashing password failed", "user_id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		u.PasswordHash = hash
	}

	if err := s.deps.Users.Update(r.Context(), u); err != nil {
		slog.Error("user update failed", "user_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(u))
}
