package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JakeFAU/release-tracker/internal/admin"
	"github.com/JakeFAU/release-tracker/internal/tracker"
)

const maxBodyBytes = 1 << 20

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid JSON: %v", tracker.ErrInvalid, err)
	}
	return nil
}

func (s *Server) listReleases(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := tracker.ReleaseFilter{
		Project: tracker.Project(q.Get("project")),
		Type:    tracker.ReleaseType(q.Get("type")),
	}
	releases, err := s.admin.ListReleases(r.Context(), filter)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, releases)
}

func (s *Server) getRelease(w http.ResponseWriter, r *http.Request) {
	release, err := s.admin.GetRelease(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, release)
}

func (s *Server) createRelease(w http.ResponseWriter, r *http.Request) {
	var in admin.ReleaseInput
	if err := decodeBody(w, r, &in); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	release, err := s.admin.CreateRelease(r.Context(), in)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, release)
}

func (s *Server) updateRelease(w http.ResponseWriter, r *http.Request) {
	var in admin.ReleaseInput
	if err := decodeBody(w, r, &in); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	release, err := s.admin.UpdateRelease(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, release)
}

func (s *Server) deleteRelease(w http.ResponseWriter, r *http.Request) {
	if err := s.admin.DeleteRelease(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) listWebhooks(w http.ResponseWriter, r *http.Request) {
	hooks, err := s.admin.ListWebhooks(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, hooks)
}

func (s *Server) getWebhook(w http.ResponseWriter, r *http.Request) {
	hook, err := s.admin.GetWebhook(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, hook)
}

func (s *Server) createWebhook(w http.ResponseWriter, r *http.Request) {
	var in admin.WebhookInput
	if err := decodeBody(w, r, &in); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	hook, err := s.admin.CreateWebhook(r.Context(), in)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, hook)
}

func (s *Server) updateWebhook(w http.ResponseWriter, r *http.Request) {
	var in admin.WebhookInput
	if err := decodeBody(w, r, &in); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	hook, err := s.admin.UpdateWebhook(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, hook)
}

func (s *Server) deleteWebhook(w http.ResponseWriter, r *http.Request) {
	if err := s.admin.DeleteWebhook(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) getSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.admin.GetSettings(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) triggerRefresh(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.admin.TriggerRefresh(r.Context()))
}
