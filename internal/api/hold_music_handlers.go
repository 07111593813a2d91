package api

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/voipbridge/voipbridge/internal/database/models"
)

// maxHoldMusicBytes caps an uploaded hold-music track (20 MB).
const maxHoldMusicBytes = 20 << 20

// holdMusicEntry is the wire representation of one track. The media blob is
// only available from the file endpoint.
type holdMusicEntry struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	ServerID  *int64  `json:"server_id,omitempty"`
	Filename  string  `json:"filename"`
	FileSize  int64   `json:"file_size"`
	Duration  float64 `json:"duration"`
	Format    string  `json:"format"`
	Volume    float64 `json:"volume"`
	Loop      bool    `json:"loop"`
	FadeIn    float64 `json:"fade_in"`
	FadeOut   float64 `json:"fade_out"`
	Sequence  int     `json:"sequence"`
	IsDefault bool    `json:"is_default"`
	Active    bool    `json:"active"`
	CreatedAt string  `json:"created_at"`
}

func toHoldMusicEntry(hm *models.HoldMusic) holdMusicEntry {
	return holdMusicEntry{
		ID:        hm.ID,
		Name:      hm.Name,
		ServerID:  hm.ServerID,
		Filename:  hm.Filename,
		FileSize:  hm.FileSize,
		Duration:  hm.Duration,
		Format:    hm.Format,
		Volume:    hm.Volume,
		Loop:      hm.Loop,
		FadeIn:    hm.FadeIn,
		FadeOut:   hm.FadeOut,
		Sequence:  hm.Sequence,
		IsDefault: hm.IsDefault,
		Active:    hm.Active,
		CreatedAt: hm.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// holdMusicListResponse is the fixed wire shape for the client track list.
type holdMusicListResponse struct {
	Success bool             `json:"success"`
	Error   string           `json:"error,omitempty"`
	Tracks  []holdMusicEntry `json:"tracks"`
}

// handleHoldMusicList returns the active tracks for the authenticated
// user's server, ordered by sequence.
func (s *Server) handleHoldMusicList(w http.ResponseWriter, r *http.Request) {
	var serverID *int64
	if raw := r.URL.Query().Get("server_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeRaw(w, http.StatusOK, holdMusicListResponse{Error: "invalid server_id"})
			return
		}
		serverID = &id
	}

	tracks, err := s.deps.HoldMusic.ListActive(r.Context(), serverID)
	if err != nil {
		slog.Error("hold music list failed", "error", err)
		writeRaw(w, http.StatusOK, holdMusicListResponse{Error: "internal error"})
		return
	}

	entries := make([]holdMusicEntry, len(tracks))
	for i := range tracks {
		entries[i] = toHoldMusicEntry(&tracks[i])
	}

	writeRaw(w, http.StatusOK, holdMusicListResponse{Success: true, Tracks: entries})
}

// handleHoldMusicFile streams the track media to the client.
func (s *Server) handleHoldMusicFile(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid track id", http.StatusBadRequest)
		return
	}

	hm, err := s.deps.HoldMusic.GetByID(r.Context(), id)
	if err != nil {
		slog.Error("hold music file failed", "track_id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if hm == nil || !hm.Active {
		http.Error(w, "track not found", http.StatusNotFound)
		return
	}

	contentType := "audio/mpeg"
	switch hm.Format {
	case "wav":
		contentType = "audio/wav"
	case "ogg":
		contentType = "audio/ogg"
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.FormatInt(hm.FileSize, 10))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	w.Write(hm.Data) //nolint:errcheck
}

// handleAdminHoldMusicList returns all tracks for the admin API.
func (s *Server) handleAdminHoldMusicList(w http.ResponseWriter, r *http.Request) {
	tracks, err := s.deps.HoldMusic.ListActive(r.Context(), nil)
	if err != nil {
		slog.Error("admin hold music list failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	entries := make([]holdMusicEntry, len(tracks))
	for i := range tracks {
		entries[i] = toHoldMusicEntry(&tracks[i])
	}

	writeJSON(w, http.StatusOK, PaginatedResponse{
		Items:  entries,
		Total:  len(entries),
		Limit:  len(entries),
		Offset: 0,
	})
}

// handleHoldMusicUpload stores a new track: a multipart "file" part plus
// form fields. Volume must stay within [0.0, 1.0].
func (s *Server) handleHoldMusicUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxHoldMusicBytes+4096)
	if err := r.ParseMultipartForm(maxHoldMusicBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart upload")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxHoldMusicBytes+1))
	if err != nil {
		slog.Error("hold music upload: reading file failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "file is empty")
		return
	}
	if len(data) > maxHoldMusicBytes {
		writeError(w, http.StatusBadRequest, "file exceeds maximum size")
		return
	}

	name := r.FormValue("name")
	if msg := validateRequiredStringLen("name", name, maxNameLen); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	volume := 1.0
	if raw := r.FormValue("volume"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "volume must be a number")
			return
		}
		volume = v
	}
	if msg := validateVolume("volume", volume); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	hm := &models.HoldMusic{
		Name:     name,
		Data:     data,
		Filename: header.Filename,
		FileSize: int64(len(data)),
		Format:   formatFromFilename(header.Filename),
		Volume:   volume,
		Loop:     r.FormValue("loop") == "true",
		Active:   true,
	}
	if raw := r.FormValue("server_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid server_id")
			return
		}
		hm.ServerID = &id
	}
	if raw := r.FormValue("fade_in"); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil && v >= 0 {
			hm.FadeIn = v
		}
	}
	if raw := r.FormValue("fade_out"); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil && v >= 0 {
			hm.FadeOut = v
		}
	}
	if raw := r.FormValue("sequence"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			hm.Sequence = v
		}
	}
	if raw := r.FormValue("duration"); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil && v >= 0 {
			hm.Duration = v
		}
	}

	// A newly promoted default displaces the previous one in the same
	// server scope.
	if r.FormValue("is_default") == "true" {
		if err := s.deps.HoldMusic.ClearDefault(r.Context(), hm.ServerID); err != nil {
			slog.Error("hold music upload: clearing default failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		hm.IsDefault = true
	}

	if err := s.deps.HoldMusic.Create(r.Context(), hm); err != nil {
		slog.Error("hold music upload failed", "name", name, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	slog.Info("hold music uploaded", "track_id", hm.ID, "size", hm.FileSize)
	writeJSON(w, http.StatusCreated, toHoldMusicEntry(hm))
}

// holdMusicUpdateRequest is the JSON body for metadata updates. The media
// itself is immutable; re-upload to replace it.
type holdMusicUpdateRequest struct {
	Name      string   `json:"name"`
	Volume    *float64 `json:"volume"`
	Loop      *bool    `json:"loop"`
	FadeIn    *float64 `json:"fade_in"`
	FadeOut   *float64 `json:"fade_out"`
	Sequence  *int     `json:"sequence"`
	IsDefault *bool    `json:"is_default"`
	Active    *bool    `json:"active"`
}

// handleHoldMusicUpdate modifies track metadata.
func (s *Server) handleHoldMusicUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid track id")
		return
	}

	hm, err := s.deps.HoldMusic.GetByID(r.Context(), id)
	if err != nil {
		slog.Error("hold music update: lookup failed", "track_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if hm == nil {
		writeError(w, http.StatusNotFound, "track not found")
		return
	}

	var req holdMusicUpdateRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	if req.Name != "" {
		if msg := validateStringLen("name", req.Name, maxNameLen); msg != "" {
			writeError(w, http.StatusBadRequest, msg)
			return
		}
		hm.Name = req.Name
	}
	if req.Volume != nil {
		if msg := validateVolume("volume", *req.Volume); msg != "" {
			writeError(w, http.StatusBadRequest, msg)
			return
		}
		hm.Volume = *req.Volume
	}
	if req.Loop != nil {
		hm.Loop = *req.Loop
	}
	if req.FadeIn != nil {
		hm.FadeIn = *req.FadeIn
	}
	if req.FadeOut != nil {
		hm.FadeOut = *req.FadeOut
	}
	if req.Sequence != nil {
		hm.Sequence = *req.Sequence
	}
	if req.Active != nil {
		hm.Active = *req.Active
	}
	if req.IsDefault != nil && *req.IsDefault && !hm.IsDefault {
		if err := s.deps.HoldMusic.ClearDefault(r.Context(), hm.ServerID); err != nil {
			slog.Error("hold music update: clearing default failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		hm.IsDefault = true
	}

	if err := s.deps.HoldMusic.Update(r.Context(), hm); err != nil {
		slog.Error("hold music update failed", "track_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, toHoldMusicEntry(hm))
}

// handleHoldMusicDelete removes a track.
func (s *Server) handleHoldMusicDelete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid track id")
		return
	}

	hm, err := s.deps.HoldMusic.GetByID(r.Context(), id)
	if err != nil {
		slog.Error("hold music delete: lookup failed", "track_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if hm == nil {
		writeError(w, http.StatusNotFound, "track not found")
		return
	}

	if err := s.deps.HoldMusic.Delete(r.Context(), id); err != nil {
		slog.Error("hold music delete failed", "track_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"deleted": id})
}
