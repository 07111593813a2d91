package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/voipbridge/voipbridge/internal/api/middleware"
	"github.com/voipbridge/voipbridge/internal/call"
	"github.com/voipbridge/voipbridge/internal/database"
	"github.com/voipbridge/voipbridge/internal/database/models"
)

// callEntry is the wire representation of one call log row.
type callEntry struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	Direction       string `json:"direction"`
	State           string `json:"state"`
	FromNumber      string `json:"from_number"`
	ToNumber        string `json:"to_number"`
	SIPCallID       string `json:"sip_call_id,omitempty"`
	ContactID       *int64 `json:"contact_id,omitempty"`
	StartTime       string `json:"start_time"`
	AnswerTime      string `json:"answer_time,omitempty"`
	EndTime         string `json:"end_time,omitempty"`
	HangupReason    string `json:"hangup_reason,omitempty"`
	Duration        int    `json:"duration"`
	DurationDisplay string `json:"duration_display"`
}

// toCallEntry converts a models.Call to the API response.
func toCallEntry(c *models.Call) callEntry {
	e := callEntry{
		ID:              c.ID,
		Name:            c.Name,
		Direction:       c.Direction,
		State:           c.State,
		FromNumber:      c.FromNumber,
		ToNumber:        c.ToNumber,
		SIPCallID:       c.SIPCallID,
		ContactID:       c.ContactID,
		StartTime:       c.StartTime.UTC().Format(time.RFC3339),
		HangupReason:    c.HangupReason,
		Duration:        c.DurationSeconds(),
		DurationDisplay: c.DurationDisplay(),
	}
	if c.AnswerTime != nil {
		e.AnswerTime = c.AnswerTime.UTC().Format(time.RFC3339)
	}
	if c.EndTime != nil {
		e.EndTime = c.EndTime.UTC().Format(time.RFC3339)
	}
	return e
}

// callCreateRequest is the JSON body for /voip/call/create.
type callCreateRequest struct {
	CallSID    string `json:"call_sid"`
	Direction  string `json:"direction"`
	State      string `json:"state"`
	FromNumber string `json:"from_number"`
	ToNumber   string `json:"to_number"`
	StartTime  string `json:"start_time"`
}

// callCreateResponse is the fixed wire shape for create-or-attach.
type callCreateResponse struct {
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
	CallID   int64  `json:"call_id,omitempty"`
	CallName string `json:"call_name,omitempty"`
	Attached bool   `json:"attached"`
}

// handleCallCreate records a new call or attaches to the existing record
// carrying the same SIP call id.
func (s *Server) handleCallCreate(w http.ResponseWriter, r *http.Request) {
	var req callCreateRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeRaw(w, http.StatusOK, callCreateResponse{Error: errMsg})
		return
	}

	if req.Direction != "" && req.Direction != models.DirectionInbound && req.Direction != models.DirectionOutbound {
		writeRaw(w, http.StatusOK, callCreateResponse{Error: "direction must be inbound or outbound"})
		return
	}
	if req.State != "" && !models.ValidCallState(req.State) {
		writeRaw(w, http.StatusOK, callCreateResponse{Error: "invalid state"})
		return
	}

	c, attached, err := s.deps.Reconciler.CreateOrAttach(r.Context(), call.CreateParams{
		UserID:     middleware.UserIDFromContext(r.Context()),
		SIPCallID:  req.CallSID,
		Direction:  req.Direction,
		State:      req.State,
		FromNumber: req.FromNumber,
		ToNumber:   req.ToNumber,
		StartTime:  req.StartTime,
	})
	if err != nil {
		slog.Error("call create failed", "error", err)
		writeRaw(w, http.StatusOK, callCreateResponse{Error: "internal error"})
		return
	}

	writeRaw(w, http.StatusOK, callCreateResponse{
		Success:  true,
		CallID:   c.ID,
		CallName: c.Name,
		Attached: attached,
	})
}

// callUpdateRequest is the JSON body for /voip/call/update. CallID carries
// either the record id or the SIP call id.
type callUpdateRequest struct {
	CallID       string `json:"call_id"`
	CallSID      string `json:"call_sid"`
	State        string `json:"state"`
	AnswerTime   string `json:"answer_time"`
	EndTime      string `json:"end_time"`
	HangupReason string `json:"hangup_reason"`
}

// callUpdateResponse is the fixed wire shape for state updates.
type callUpdateResponse struct {
	Success         bool   `json:"success"`
	Error           string `json:"error,omitempty"`
	CallID          int64  `json:"call_id,omitempty"`
	State           string `json:"state,omitempty"`
	Duration        int    `json:"duration"`
	DurationDisplay string `json:"duration_display,omitempty"`
}

// handleCallUpdate applies a state/timestamp update to a call.
func (s *Server) handleCallUpdate(w http.ResponseWriter, r *http.Request) {
	var req callUpdateRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeRaw(w, http.StatusOK, callUpdateResponse{Error: errMsg})
		return
	}

	c, err := s.deps.Reconciler.ApplyUpdate(r.Context(), call.UpdateParams{
		CallKey:      req.CallID,
		State:        req.State,
		SIPCallID:    req.CallSID,
		AnswerTime:   req.AnswerTime,
		EndTime:      req.EndTime,
		HangupReason: req.HangupReason,
	})
	if err != nil {
		if errors.Is(err, call.ErrNotFound) {
			writeRaw(w, http.StatusOK, callUpdateResponse{Error: "call not found"})
			return
		}
		slog.Error("call update failed", "call_key", req.CallID, "error", err)
		writeRaw(w, http.StatusOK, callUpdateResponse{Error: err.Error()})
		return
	}

	writeRaw(w, http.StatusOK, callUpdateResponse{
		Success:         true,
		CallID:          c.ID,
		State:           c.State,
		Duration:        c.DurationSeconds(),
		DurationDisplay: c.DurationDisplay(),
	})
}

// callDurationRequest is the JSON body for /voip/call/update_duration. The
// client sends its own measured duration; the server derives the
// authoritative one from the stored timestamps and only logs the client's.
type callDurationRequest struct {
	CallID   string `json:"call_id"`
	Duration int    `json:"duration"`
}

// handleCallUpdateDuration closes out a call identified by its integer id
// and returns the derived duration.
func (s *Server) handleCallUpdateDuration(w http.ResponseWriter, r *http.Request) {
	var req callDurationRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeRaw(w, http.StatusOK, callUpdateResponse{Error: errMsg})
		return
	}

	c, err := s.deps.Reconciler.UpdateDuration(r.Context(), req.CallID)
	if err != nil {
		if errors.Is(err, call.ErrNotFound) {
			writeRaw(w, http.StatusOK, callUpdateResponse{Error: "call not found"})
			return
		}
		slog.Warn("call update_duration rejected", "call_key", req.CallID, "error", err)
		writeRaw(w, http.StatusOK, callUpdateResponse{Error: err.Error()})
		return
	}

	if req.Duration != 0 && req.Duration != c.DurationSeconds() {
		slog.Debug("client-measured duration differs from derived",
			"call_id", c.ID, "client", req.Duration, "derived", c.DurationSeconds())
	}

	writeRaw(w, http.StatusOK, callUpdateResponse{
		Success:         true,
		CallID:          c.ID,
		State:           c.State,
		Duration:        c.DurationSeconds(),
		DurationDisplay: c.DurationDisplay(),
	})
}

// callListResponse is the fixed wire shape for the call list. Count is the
// size of the returned page; Total the filtered row count.
type callListResponse struct {
	Success bool        `json:"success"`
	Error   string      `json:"error,omitempty"`
	Calls   []callEntry `json:"calls"`
	Count   int         `json:"count"`
	Total   int         `json:"total"`
	Limit   int         `json:"limit"`
	Offset  int         `json:"offset"`
}

// handleCallList returns the calls visible to the authenticated user: owned
// by the user or with their SIP username in either number.
func (s *Server) handleCallList(w http.ResponseWriter, r *http.Request) {
	pg, errMsg := parsePagination(r)
	if errMsg != "" {
		writeRaw(w, http.StatusOK, callListResponse{Error: errMsg})
		return
	}

	filter := database.CallListFilter{
		UserID:      middleware.UserIDFromContext(r.Context()),
		SIPUsername: middleware.SIPUsernameFromContext(r.Context()),
		State:       r.URL.Query().Get("state"),
		Direction:   r.URL.Query().Get("direction"),
		Limit:       pg.Limit,
		Offset:      pg.Offset,
	}

	if filter.State != "" && !models.ValidCallState(filter.State) {
		writeRaw(w, http.StatusOK, callListResponse{Error: "invalid state"})
		return
	}
	if filter.Direction != "" && filter.Direction != models.DirectionInbound && filter.Direction != models.DirectionOutbound {
		writeRaw(w, http.StatusOK, callListResponse{Error: "direction must be inbound or outbound"})
		return
	}

	calls, total, err := s.deps.Calls.ListVisible(r.Context(), filter)
	if err != nil {
		slog.Error("call list failed", "user_id", filter.UserID, "error", err)
		writeRaw(w, http.StatusOK, callListResponse{Error: "internal error"})
		return
	}

	entries := make([]callEntry, len(calls))
	for i := range calls {
		entries[i] = toCallEntry(&calls[i])
	}

	writeRaw(w, http.StatusOK, callListResponse{
		Success: true,
		Calls:   entries,
		Count:   len(entries),
		Total:   total,
		Limit:   pg.Limit,
		Offset:  pg.Offset,
	})
}

// handleAdminCallList returns the full call log with pagination.
func (s *Server) handleAdminCallList(w http.ResponseWriter, r *http.Request) {
	pg, errMsg := parsePagination(r)
	if errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	// No principal on the filter: the admin view sees every call.
	filter := database.CallListFilter{
		State:       r.URL.Query().Get("state"),
		Direction:   r.URL.Query().Get("direction"),
		Limit:       pg.Limit,
		Offset:      pg.Offset,
	}

	calls, total, err := s.deps.Calls.ListVisible(r.Context(), filter)
	if err != nil {
		slog.Error("admin call list failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	entries := make([]callEntry, len(calls))
	for i := range calls {
		entries[i] = toCallEntry(&calls[i])
	}

	writeJSON(w, http.StatusOK, PaginatedResponse{
		Items:  entries,
		Total:  total,
		Limit:  pg.Limit,
		Offset: pg.Offset,
	})
}

// handleAdminCallGet returns a single call by id.
func (s *Server) handleAdminCallGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid call id")
		return
	}

	c, err := s.deps.Calls.GetByID(r.Context(), id)
	if err != nil {
		slog.Error("admin call get failed", "call_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "call not found")
		return
	}

	writeJSON(w, http.StatusOK, toCallEntry(c))
}
