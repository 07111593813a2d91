package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/voipbridge/voipbridge/internal/api/middleware"
	"github.com/voipbridge/voipbridge/internal/database"
)

// loginRequest is the JSON body for a softphone login.
type loginRequest struct {
	SIPUsername string `json:"sip_username"`
	Password    string `json:"password"`
}

// loginResponse is the fixed wire shape returned to the softphone.
type loginResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	Token     string `json:"token,omitempty"`
	ExpiresAt string `json:"expires_at,omitempty"`
	UserID    int64  `json:"user_id,omitempty"`
}

// handleLogin authenticates a softphone user and issues a JWT. Credential
// failures answer 200 with success:false so the client can show the message
// without special-casing status codes.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeRaw(w, http.StatusOK, loginResponse{Error: errMsg})
		return
	}

	if req.SIPUsername == "" || req.Password == "" {
		writeRaw(w, http.StatusOK, loginResponse{Error: "sip_username and password are required"})
		return
	}

	u, err := s.deps.Users.GetBySIPUsername(r.Context(), req.SIPUsername)
	if err != nil {
		slog.Error("login: user lookup failed", "error", err)
		writeRaw(w, http.StatusOK, loginResponse{Error: "internal error"})
		return
	}
	if u == nil {
		writeRaw(w, http.StatusOK, loginResponse{Error: "invalid credentials"})
		return
	}

	ok, err := database.CheckPassword(req.Password, u.PasswordHash)
	if err != nil {
		slog.Error("login: password check failed", "user_id", u.ID, "error", err)
		writeRaw(w, http.StatusOK, loginResponse{Error: "internal error"})
		return
	}
	if !ok {
		slog.Warn("login: invalid credentials", "sip_username", req.SIPUsername)
		writeRaw(w, http.StatusOK, loginResponse{Error: "invalid credentials"})
		return
	}

	token, expiresAt, err := middleware.GenerateToken(s.deps.JWTSecret, u.ID, u.SIPUsername)
	if err != nil {
		slog.Error("login: token generation failed", "user_id", u.ID, "error", err)
		writeRaw(w, http.StatusOK, loginResponse{Error: "internal error"})
		return
	}

	if err := s.deps.Users.UpdateLastLogin(r.Context(), u.ID); err != nil {
		slog.Warn("login: failed to stamp last_login", "user_id", u.ID, "error", err)
	}

	slog.Info("softphone login", "user_id", u.ID, "sip_username", u.SIPUsername)
	writeRaw(w, http.StatusOK, loginResponse{
		Success:   true,
		Token:     token,
		ExpiresAt: expiresAt.UTC().Format(time.RFC3339),
		UserID:    u.ID,
	})
}
