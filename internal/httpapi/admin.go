package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/minseokoh/myeongshim/internal/gate"
	"github.com/minseokoh/myeongshim/internal/store"
)

type issueKeyRequest struct {
	AdminKey        string `json:"admin_key"`
	Email           string `json:"email"`
	DurationMinutes int    `json:"duration_minutes"`
	Credits         int    `json:"credits"`
}

type issueKeyResponse struct {
	AccessKey       string `json:"access_key"`
	DurationMinutes int    `json:"duration_minutes"`
	Credits         int    `json:"credits"`
}

// handleIssueKey creates a new access key. Only a master key may call it.
func (s *Server) handleIssueKey(w http.ResponseWriter, r *http.Request) {
	var req issueKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if !s.requireMaster(w, r, req.AdminKey) {
		return
	}

	if req.DurationMinutes <= 0 {
		req.DurationMinutes = s.cfg.DefaultKeyDurationMinutes
	}
	if req.Credits <= 0 {
		req.Credits = s.cfg.DefaultKeyCredits
	}

	key, err := gate.NewAccessKey()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	if _, err := s.store.CreateAccount(r.Context(), store.Account{
		AccessKey:             key,
		Email:                 strings.TrimSpace(req.Email),
		CreditBalance:         req.Credits,
		WindowDurationMinutes: req.DurationMinutes,
		CreatedAt:             time.Now().UTC(),
	}); err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	respondJSON(w, http.StatusCreated, issueKeyResponse{
		AccessKey:       key,
		DurationMinutes: req.DurationMinutes,
		Credits:         req.Credits,
	})
}

type reloadRequest struct {
	AdminKey string `json:"admin_key"`
}

// handleReload refreshes the knowledge index after an external ingestion
// run. Answers already in flight keep the view they loaded.
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	var req reloadRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if !s.requireMaster(w, r, req.AdminKey) {
		return
	}

	if err := s.engine.Reload(r.Context()); err != nil {
		status, code := statusForError(err)
		respondError(w, status, code, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "reloaded"})
}

// requireMaster authorizes admin endpoints. The key may arrive in the body
// or in the X-Access-Key header; it must resolve to a master account.
func (s *Server) requireMaster(w http.ResponseWriter, r *http.Request, bodyKey string) bool {
	key := strings.TrimSpace(bodyKey)
	if key == "" {
		key = strings.TrimSpace(r.Header.Get("X-Access-Key"))
	}
	if key == "" {
		respondError(w, http.StatusUnauthorized, "missing_admin_key", "admin key is required")
		return false
	}

	res, err := s.svc.Verify(r.Context(), key)
	if err != nil {
		respondError(w, http.StatusForbidden, "forbidden", "admin key rejected")
		return false
	}
	if !res.Master {
		respondError(w, http.StatusForbidden, "forbidden", "master key required")
		return false
	}
	return true
}
