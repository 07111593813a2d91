package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/voipbridge/voipbridge/internal/database/models"
)

// contactEntry is the wire representation of one directory contact.
type contactEntry struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Phone   string `json:"phone,omitempty"`
	Mobile  string `json:"mobile,omitempty"`
	Email   string `json:"email,omitempty"`
	Company string `json:"company,omitempty"`
}

func toContactEntry(c *models.Contact) contactEntry {
	return contactEntry{
		ID:      c.ID,
		Name:    c.Name,
		Phone:   c.Phone,
		Mobile:  c.Mobile,
		Email:   c.Email,
		Company: c.Company,
	}
}

// contactListResponse is the fixed wire shape for directory lookups.
type contactListResponse struct {
	Success  bool           `json:"success"`
	Error    string         `json:"error,omitempty"`
	Contacts []contactEntry `json:"contacts"`
	Total    int            `json:"total"`
}

// handleSearchPartner answers caller display lookups: a query string matched
// against contact names and numbers.
func (s *Server) handleSearchPartner(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		query = r.URL.Query().Get("query")
	}
	if query == "" {
		writeRaw(w, http.StatusOK, contactListResponse{Error: "query is required"})
		return
	}

	contacts, err := s.deps.Contacts.Search(r.Context(), query, defaultLimit)
	if err != nil {
		slog.Error("partner search failed", "query", query, "error", err)
		writeRaw(w, http.StatusOK, contactListResponse{Error: "internal error"})
		return
	}

	entries := make([]contactEntry, len(contacts))
	for i := range contacts {
		entries[i] = toContactEntry(&contacts[i])
	}

	writeRaw(w, http.StatusOK, contactListResponse{
		Success:  true,
		Contacts: entries,
		Total:    len(entries),
	})
}

// handleContactsList returns the directory page for the softphone.
func (s *Server) handleContactsList(w http.ResponseWriter, r *http.Request) {
	pg, errMsg := parsePagination(r)
	if errMsg != "" {
		writeRaw(w, http.StatusOK, contactListResponse{Error: errMsg})
		return
	}

	contacts, total, err := s.deps.Contacts.List(r.Context(), pg.Limit, pg.Offset)
	if err != nil {
		slog.Error("contact list failed", "error", err)
		writeRaw(w, http.StatusOK, contactListResponse{Error: "internal error"})
		return
	}

	entries := make([]contactEntry, len(contacts))
	for i := range contacts {
		entries[i] = toContactEntry(&contacts[i])
	}

	writeRaw(w, http.StatusOK, contactListResponse{
		Success:  true,
		Contacts: entries,
		Total:    total,
	})
}

// contactRequest is the JSON body for creating a contact via the admin API.
type contactRequest struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Mobile  string `json:"mobile"`
	Email   string `json:"email"`
	Company string `json:"company"`
}

func (req *contactRequest) validate() string {
	if msg := validateRequiredStringLen("name", req.Name, maxNameLen); msg != "" {
		return msg
	}
	if msg := validateStringLen("phone", req.Phone, maxShortStringLen); msg != "" {
		return msg
	}
	if msg := validateStringLen("mobile", req.Mobile, maxShortStringLen); msg != "" {
		return msg
	}
	if msg := validateEmail("email", req.Email); msg != "" {
		return msg
	}
	if msg := validateStringLen("company", req.Company, maxNameLen); msg != "" {
		return msg
	}
	return validateNoControlChars("name", req.Name)
}

// handleContactCreate adds a directory contact.
func (s *Server) handleContactCreate(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	c := &models.Contact{
		Name:    req.Name,
		Phone:   req.Phone,
		Mobile:  req.Mobile,
		Email:   req.Email,
		Company: req.Company,
	}
	if err := s.deps.Contacts.Create(r.Context(), c); err != nil {
		slog.Error("contact create failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusCreated, toContactEntry(c))
}

// handleContactList returns contacts for the admin API with pagination.
func (s *Server) handleContactList(w http.ResponseWriter, r *http.Request) {
	pg, errMsg := parsePagination(r)
	if errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	contacts, total, err := s.deps.Contacts.List(r.Context(), pg.Limit, pg.Offset)
	if err != nil {
		slog.Error("admin contact list failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	entries := make([]contactEntry, len(contacts))
	for i := range contacts {
		entries[i] = toContactEntry(&contacts[i])
	}

	writeJSON(w, http.StatusOK, PaginatedResponse{
		Items:  entries,
		Total:  total,
		Limit:  pg.Limit,
		Offset: pg.Offset,
	})
}

// handleContactGet returns a single contact by id.
func (s *Server) handleContactGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid contact id")
		return
	}

	c, err := s.deps.Contacts.GetByID(r.Context(), id)
	if err != nil {
		slog.Error("contact get failed", "contact_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "contact not found")
		return
	}

	writeJSON(w, http.StatusOK, toContactEntry(c))
}
