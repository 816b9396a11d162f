package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const defaultListLimit = 200

// recordsUser checks that pathstore is configured and returns the user_id
// query parameter.
func (s *Server) recordsUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	if s.records == nil {
		jsonError(w, "pathstore is not configured", http.StatusServiceUnavailable)
		return "", false
	}
	userID := r.URL.Query().Get("user_id")
	if !validUserID(userID) {
		jsonError(w, "user_id query parameter is required", http.StatusBadRequest)
		return "", false
	}
	return userID, true
}

// recordID returns the docID URL parameter. Records are keyed by job id, so
// anything that is not a UUID is rejected before it reaches a store key.
func recordID(w http.ResponseWriter, r *http.Request) (string, bool) {
	docID := chi.URLParam(r, "docID")
	if _, err := uuid.Parse(docID); err != nil {
		jsonError(w, "invalid redaction id", http.StatusBadRequest)
		return "", false
	}
	return docID, true
}

// handleListRedactions lists the stored copies for a user.
func (s *Server) handleListRedactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.recordsUser(w, r)
	if !ok {
		return
	}
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	records, err := s.records.List(r.Context(), userID, limit)
	if err != nil {
		s.log.Error("list redactions", "user_id", userID, "error", err)
		jsonError(w, "failed to list redactions: "+err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"redactions": records})
}

// handleGetRedaction serves a stored copy as an attachment.
func (s *Server) handleGetRedaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.recordsUser(w, r)
	if !ok {
		return
	}
	docID, ok := recordID(w, r)
	if !ok {
		return
	}

	rec, err := s.records.Get(r.Context(), userID, docID)
	if err != nil {
		s.log.Error("get redaction", "user_id", userID, "doc_id", docID, "error", err)
		jsonError(w, "failed to fetch redaction: "+err.Error(), http.StatusBadGateway)
		return
	}
	if rec == nil {
		jsonError(w, "redaction not found", http.StatusNotFound)
		return
	}
	serveAttachment(w, rec.Name, rec.ContentType, rec.Content)
}

func (s *Server) handleDeleteRedaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.recordsUser(w, r)
	if !ok {
		return
	}
	docID, ok := recordID(w, r)
	if !ok {
		return
	}

	if err := s.records.Delete(r.Context(), userID, docID); err != nil {
		s.log.Error("delete redaction", "user_id", userID, "doc_id", docID, "error", err)
		jsonError(w, "failed to delete redaction: "+err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": docID})
}
