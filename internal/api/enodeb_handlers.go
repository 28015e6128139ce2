package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/lte-gateway/enodebd/internal/acs"
	"github.com/lte-gateway/enodebd/internal/mconfig"
	"github.com/lte-gateway/enodebd/internal/models"
	sm "github.com/lte-gateway/enodebd/internal/statemachine"
	"github.com/lte-gateway/enodebd/internal/storage"
)

// HandleListEnodebs lists live sessions, or the persisted records with ?persisted=true
func (s *RESTServer) HandleListEnodebs(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("persisted") == "true" {
		limit, offset := pagination(r)
		enbs, total, err := s.store.ListEnodebs(r.Context(), limit, offset)
		if err != nil {
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if enbs == nil {
			enbs = []*models.Enodeb{}
		}
		s.respondJSON(w, http.StatusOK, map[string]interface{}{
			"enodebs": enbs,
			"total":   total,
		})
		return
	}

	sessions := s.sessions.List()
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"enodebs": sessions,
		"total":   len(sessions),
	})
}

// HandleGetEnodeb returns the live status, falling back to the persisted record
func (s *RESTServer) HandleGetEnodeb(w http.ResponseWriter, r *http.Request) {
	serial := chi.URLParam(r, "serial")

	status, err := s.sessions.Status(serial)
	if err == nil {
		s.respondJSON(w, http.StatusOK, status)
		return
	}

	enb, err := s.store.GetEnodeb(r.Context(), serial)
	if errors.Is(err, storage.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "enodeb not found")
		return
	}
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, enb)
}

// HandleRebootEnodeb schedules a reboot
func (s *RESTServer) HandleRebootEnodeb(w http.ResponseWriter, r *http.Request) {
	serial := chi.URLParam(r, "serial")

	err := s.sessions.RebootAsap(r.Context(), serial)
	switch {
	case errors.Is(err, acs.ErrSessionNotFound):
		s.respondError(w, http.StatusNotFound, "enodeb not connected")
		return
	case errors.Is(err, sm.ErrRebootNotAllowed):
		s.respondError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.Info().Str("serial", serial).Str("user", username(r)).Msg("Reboot requested")
	s.respondJSON(w, http.StatusAccepted, map[string]string{
		"status": "reboot scheduled",
	})
}

// HandleGetEnodebConfig returns the device, desired and override configurations
func (s *RESTServer) HandleGetEnodebConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	serial := chi.URLParam(r, "serial")
	resp := map[string]interface{}{"serial": serial}

	current, desired, err := s.sessions.Config(serial)
	switch {
	case err == nil:
		resp["current"] = current
		resp["desired"] = desired
	case !errors.Is(err, acs.ErrSessionNotFound):
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	merged, configured, err := s.sessions.DesiredFor(ctx, serial)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if configured {
		resp["effective"] = merged
	}

	override, err := s.store.GetEnodebConfig(ctx, serial)
	switch {
	case err == nil:
		resp["override"] = override
	case !errors.Is(err, storage.ErrNotFound):
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, resp)
}

// HandleUpdateEnodebConfig saves a desired configuration override
func (s *RESTServer) HandleUpdateEnodebConfig(w http.ResponseWriter, r *http.Request) {
	serial := chi.URLParam(r, "serial")

	var cfg mconfig.EnodebConfig
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := cfg.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.sessions.UpdateDesired(r.Context(), serial, cfg, username(r)); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"serial": serial,
		"config": cfg,
	})
}

// HandleDeleteEnodebConfig removes a desired configuration override
func (s *RESTServer) HandleDeleteEnodebConfig(w http.ResponseWriter, r *http.Request) {
	serial := chi.URLParam(r, "serial")

	err := s.store.DeleteEnodebConfig(r.Context(), serial)
	if errors.Is(err, storage.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "no override for enodeb")
		return
	}
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.sessions.InvalidateDesired(serial)
	w.WriteHeader(http.StatusNoContent)
}
