package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/voipbridge/voipbridge/internal/database"
	"github.com/voipbridge/voipbridge/internal/database/models"
)

// eventEntry is the admin API view of one journal row.
type eventEntry struct {
	ID           int64  `json:"id"`
	ServerID     int64  `json:"server_id"`
	EventType    string `json:"event_type"`
	Channel      string `json:"channel,omitempty"`
	CallerIDNum  string `json:"caller_id_num,omitempty"`
	CallerIDName string `json:"caller_id_name,omitempty"`
	Exten        string `json:"exten,omitempty"`
	UniqueID     string `json:"unique_id,omitempty"`
	LinkedID     string `json:"linked_id,omitempty"`
	Peer         string `json:"peer,omitempty"`
	PeerStatus   string `json:"peer_status,omitempty"`
	ChannelState string `json:"channel_state,omitempty"`
	Processed    bool   `json:"processed"`
	CreatedAt    string `json:"created_at"`
}

func toEventEntry(ev *models.Event) eventEntry {
	return eventEntry{
		ID:           ev.ID,
		ServerID:     ev.ServerID,
		EventType:    ev.EventType,
		Channel:      ev.Channel,
		CallerIDNum:  ev.CallerIDNum,
		CallerIDName: ev.CallerIDName,
		Exten:        ev.Exten,
		UniqueID:     ev.UniqueID,
		LinkedID:     ev.LinkedID,
		Peer:         ev.Peer,
		PeerStatus:   ev.PeerStatus,
		ChannelState: ev.ChannelState,
		Processed:    ev.Processed,
		CreatedAt:    ev.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// handleEventList returns the PBX event journal, optionally filtered by
// event type and server.
func (s *Server) handleEventList(w http.ResponseWriter, r *http.Request) {
	pg, errMsg := parsePagination(r)
	if errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	filter := database.EventListFilter{
		EventType: r.URL.Query().Get("event_type"),
		Limit:     pg.Limit,
		Offset:    pg.Offset,
	}
	if raw := r.URL.Query().Get("server_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid server_id")
			return
		}
		filter.ServerID = id
	}

	events, total, err := s.deps.Events.List(r.Context(), filter)
	if err != nil {
		slog.Error("event list failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	entries := make([]eventEntry, len(events))
	for i := range events {
		entries[i] = toEventEntry(&events[i])
	}

	writeJSON(w, http.StatusOK, PaginatedResponse{
		Items:  entries,
		Total:  total,
		Limit:  pg.Limit,
		Offset: pg.Offset,
	})
}
