package api

import (
	"encoding/base64"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/voipbridge/voipbridge/internal/database/models"
	"github.com/voipbridge/voipbridge/internal/recording"
)

// recordingResponse is the fixed wire shape for recording uploads.
type recordingResponse struct {
	Success     bool   `json:"success"`
	Error       string `json:"error,omitempty"`
	RecordingID int64  `json:"recording_id,omitempty"`
	Filename    string `json:"filename,omitempty"`
	FileSize    int64  `json:"file_size,omitempty"`
	Standalone  bool   `json:"standalone,omitempty"`
}

// handleSaveRecording accepts a multipart upload from the browser recorder:
// a "recording" file part plus call_id and duration form values. The call
// key may be a record id, a SIP call id, or "unknown".
func (s *Server) handleSaveRecording(w http.ResponseWriter, r *http.Request) {
	maxBytes := s.deps.Cfg.MaxRecordingBytes()
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+4096)

	if err := r.ParseMultipartForm(maxBytes); err != nil {
		writeRaw(w, http.StatusOK, recordingResponse{Error: "invalid multipart upload"})
		return
	}

	file, header, err := r.FormFile("recording")
	if err != nil {
		writeRaw(w, http.StatusOK, recordingResponse{Error: "recording file is required"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		slog.Error("save recording: reading upload failed", "error", err)
		writeRaw(w, http.StatusOK, recordingResponse{Error: "internal error"})
		return
	}
	if int64(len(data)) > maxBytes {
		writeRaw(w, http.StatusOK, recordingResponse{Error: "recording exceeds maximum size"})
		return
	}
	if len(data) == 0 {
		writeRaw(w, http.StatusOK, recordingResponse{Error: "recording file is empty"})
		return
	}

	duration := 0
	if raw := r.FormValue("duration"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			duration = n
		}
	}

	s.saveRecording(w, r, recording.SaveParams{
		CallKey:  r.FormValue("call_id"),
		Data:     data,
		Duration: duration,
		Format:   formatFromFilename(header.Filename),
	})
}

// recordingCreateRequest is the JSON body for the two-step upload flow:
// /voip/recording/create carries base64 media inline.
type recordingCreateRequest struct {
	CallID   string `json:"call_id"`
	Data     string `json:"data"` // base64
	Duration int    `json:"duration"`
	Format   string `json:"format"`
}

// handleRecordingCreate stores a recording posted as base64 JSON.
func (s *Server) handleRecordingCreate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.deps.Cfg.MaxRecordingBytes()*2)

	var req recordingCreateRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeRaw(w, http.StatusOK, recordingResponse{Error: errMsg})
		return
	}

	data, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		writeRaw(w, http.StatusOK, recordingResponse{Error: "data must be base64 encoded"})
		return
	}
	if len(data) == 0 {
		writeRaw(w, http.StatusOK, recordingResponse{Error: "recording data is required"})
		return
	}
	if int64(len(data)) > s.deps.Cfg.MaxRecordingBytes() {
		writeRaw(w, http.StatusOK, recordingResponse{Error: "recording exceeds maximum size"})
		return
	}

	s.saveRecording(w, r, recording.SaveParams{
		CallKey:  req.CallID,
		Data:     data,
		Duration: req.Duration,
		Format:   req.Format,
	})
}

// handleRecordingUpload is the multipart leg of the two-step flow. It shares
// the save path with the legacy endpoint.
func (s *Server) handleRecordingUpload(w http.ResponseWriter, r *http.Request) {
	s.handleSaveRecording(w, r)
}

// saveRecording runs the shared upsert path and writes the client response.
func (s *Server) saveRecording(w http.ResponseWriter, r *http.Request, p recording.SaveParams) {
	rec, err := s.deps.Recorder.Save(r.Context(), p)
	if err != nil {
		slog.Error("save recording failed", "call_key", p.CallKey, "error", err)
		writeRaw(w, http.StatusOK, recordingResponse{Error: "internal error"})
		return
	}

	writeRaw(w, http.StatusOK, recordingResponse{
		Success:     true,
		RecordingID: rec.ID,
		Filename:    rec.Filename,
		FileSize:    rec.FileSize,
		Standalone:  rec.CallID == nil,
	})
}

// formatFromFilename extracts the media format from an uploaded filename.
// The browser recorder produces webm; anything without an extension falls
// back to that.
func formatFromFilename(filename string) string {
	for i := len(filename) - 1; i >= 0; i-- {
		if filename[i] == '.' {
			if ext := filename[i+1:]; ext != "" {
				return ext
			}
			break
		}
	}
	return "webm"
}

// adminRecordingEntry is the admin API representation of a recording. The
// media blob is only available from the download endpoint.
type adminRecordingEntry struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	CallID        *int64 `json:"call_id,omitempty"`
	SIPSessionID  string `json:"sip_session_id,omitempty"`
	CallerDisplay string `json:"caller_display,omitempty"`
	CalleeDisplay string `json:"callee_display,omitempty"`
	Filename      string `json:"filename"`
	FileSize      int64  `json:"file_size"`
	Duration      int    `json:"duration"`
	Format        string `json:"format"`
	State         string `json:"state"`
	CreatedAt     string `json:"created_at"`
}

func toAdminRecordingEntry(rec *models.Recording) adminRecordingEntry {
	return adminRecordingEntry{
		ID:            rec.ID,
		Name:          rec.Name,
		CallID:        rec.CallID,
		SIPSessionID:  rec.SIPSessionID,
		CallerDisplay: rec.CallerDisplay,
		CalleeDisplay: rec.CalleeDisplay,
		Filename:      rec.Filename,
		FileSize:      rec.FileSize,
		Duration:      rec.Duration,
		Format:        rec.Format,
		State:         rec.State,
		CreatedAt:     rec.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// handleAdminRecordingList returns stored recordings with pagination.
func (s *Server) handleAdminRecordingList(w http.ResponseWriter, r *http.Request) {
	pg, errMsg := parsePagination(r)
	if errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	recs, total, err := s.deps.Recordings.List(r.Context(), pg.Limit, pg.Offset)
	if err != nil {
		slog.Error("admin recording list failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	entries := make([]adminRecordingEntry, len(recs))
	for i := range recs {
		entries[i] = toAdminRecordingEntry(&recs[i])
	}

	writeJSON(w, http.StatusOK, PaginatedResponse{
		Items:  entries,
		Total:  total,
		Limit:  pg.Limit,
		Offset: pg.Offset,
	})
}

// handleRecordingDownload streams the recording media.
func (s *Server) handleRecordingDownload(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid recording id")
		return
	}

	rec, err := s.deps.Recordings.GetByID(r.Context(), id)
	if err != nil {
		slog.Error("recording download failed", "recording_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "recording not found")
		return
	}

	contentType := "audio/webm"
	if rec.Format == "wav" {
		contentType = "audio/wav"
	} else if rec.Format == "mp3" {
		contentType = "audio/mpeg"
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+rec.Filename+`"`)
	w.Header().Set("Content-Length", strconv.FormatInt(rec.FileSize, 10))
	w.WriteHeader(http.StatusOK)
	w.Write(rec.Data) //nolint:errcheck
}

// handleRecordingDelete removes a recording and its media.
func (s *Server) handleRecordingDelete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid recording id")
		return
	}

	rec, err := s.deps.Recordings.GetByID(r.Context(), id)
	if err != nil {
		slog.Error("recording delete: lookup failed", "recording_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "recording not found")
		return
	}

	if err := s.deps.Recordings.Delete(r.Context(), id); err != nil {
		slog.Error("recording delete failed", "recording_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	slog.Info("recording deleted", "recording_id", id)
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": id})
}
