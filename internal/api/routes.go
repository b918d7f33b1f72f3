package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"alertd/internal/alert"
	"alertd/internal/notifier"
)

// Handler returns the routed handler with request middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.health)

	mux.HandleFunc("GET /v1/alerts", s.withOwner(s.listOwn))
	mux.HandleFunc("POST /v1/alerts", s.withOwner(s.create))
	mux.HandleFunc("POST /v1/alerts/preview", s.withOwner(s.previewOwn))
	mux.HandleFunc("GET /v1/alerts/{id}", s.withOwner(s.getOwn))
	mux.HandleFunc("PUT /v1/alerts/{id}", s.withOwner(s.updateOwn))
	mux.HandleFunc("DELETE /v1/alerts/{id}", s.withOwner(s.deleteOwn))

	mux.HandleFunc("GET /v1/admin/alerts", s.withAdmin(s.listAll))
	mux.HandleFunc("GET /v1/admin/alerts/{id}", s.withAdmin(s.getAny))
	mux.HandleFunc("PUT /v1/admin/alerts/{id}", s.withAdmin(s.updateAny))
	mux.HandleFunc("DELETE /v1/admin/alerts/{id}", s.withAdmin(s.deleteAny))
	mux.HandleFunc("POST /v1/admin/alerts/{id}/preview", s.withAdmin(s.previewAny))
	mux.HandleFunc("GET /v1/admin/events", s.withAdmin(s.events))
	mux.HandleFunc("POST /v1/admin/notifications/{nid}/{action}", s.withAdmin(s.simulate))
	s.mountDebug(mux)

	return s.withRequest(mux)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// ---- owner-scoped ----

func (s *Server) listOwn(w http.ResponseWriter, r *http.Request) {
	owner := ownerFrom(r.Context())
	recs, err := s.eng.GetAll(r.Context(), &owner)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, alert.Views(recs))
}

func (s *Server) getOwn(w http.ResponseWriter, r *http.Request) {
	owner := ownerFrom(r.Context())
	s.get(w, r, &owner)
}

func (s *Server) create(w http.ResponseWriter, r *http.Request) {
	p, ok := s.payload(w, r)
	if !ok {
		return
	}
	id, err := s.eng.Create(r.Context(), p, ownerFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, idResponse{ID: id})
}

func (s *Server) updateOwn(w http.ResponseWriter, r *http.Request) {
	owner := ownerFrom(r.Context())
	s.update(w, r, &owner)
}

func (s *Server) deleteOwn(w http.ResponseWriter, r *http.Request) {
	owner := ownerFrom(r.Context())
	s.delete(w, r, &owner)
}

func (s *Server) previewOwn(w http.ResponseWriter, r *http.Request) {
	p, ok := s.payload(w, r)
	if !ok {
		return
	}
	shown, err := s.eng.Preview(r.Context(), p, ownerFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, shownResponse{Shown: shown})
}

// ---- unrestricted ----

func (s *Server) listAll(w http.ResponseWriter, r *http.Request) {
	if raw := r.URL.Query().Get("raw"); raw == "1" || raw == "true" {
		recs, err := s.eng.GetAllRaw(r.Context())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, recs)
		return
	}
	recs, err := s.eng.GetAll(r.Context(), nil)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, alert.Views(recs))
}

func (s *Server) getAny(w http.ResponseWriter, r *http.Request)    { s.get(w, r, nil) }
func (s *Server) updateAny(w http.ResponseWriter, r *http.Request) { s.update(w, r, nil) }
func (s *Server) deleteAny(w http.ResponseWriter, r *http.Request) { s.delete(w, r, nil) }

func (s *Server) previewAny(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	shown, err := s.eng.PreviewID(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, shownResponse{Shown: shown})
}

func (s *Server) simulate(w http.ResponseWriter, r *http.Request) {
	sim, ok := s.notes.(notifier.Simulator)
	if !ok {
		s.writeStatus(w, r, http.StatusNotImplemented, "notifier cannot simulate user actions")
		return
	}
	nid := r.PathValue("nid")
	var err error
	switch r.PathValue("action") {
	case "click":
		err = sim.Click(r.Context(), nid)
	case "close":
		err = sim.Close(r.Context(), nid)
	default:
		s.writeStatus(w, r, http.StatusNotFound, "unknown action")
		return
	}
	if errors.Is(err, notifier.ErrUnknownNotification) {
		s.writeStatus(w, r, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- shared ----

func (s *Server) get(w http.ResponseWriter, r *http.Request, owner *alert.Owner) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	rec, found, err := s.eng.Get(r.Context(), id, owner)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !found {
		s.writeError(w, r, alert.NotFound(id))
		return
	}
	writeJSON(w, http.StatusOK, rec.View())
}

func (s *Server) update(w http.ResponseWriter, r *http.Request, owner *alert.Owner) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	p, ok := s.payload(w, r)
	if !ok {
		return
	}
	id, err := s.eng.SetData(r.Context(), id, p, owner)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, idResponse{ID: id})
}

func (s *Server) delete(w http.ResponseWriter, r *http.Request, owner *alert.Owner) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	if err := s.eng.Delete(r.Context(), id, owner); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deletedResponse{Deleted: true})
}

func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		s.writeStatus(w, r, http.StatusBadRequest, "malformed alert id")
		return 0, false
	}
	return id, true
}

// payload decodes the request body (numbers kept exact) and validates it.
func (s *Server) payload(w http.ResponseWriter, r *http.Request) (alert.Payload, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.writeStatus(w, r, http.StatusRequestEntityTooLarge, "body too large")
		return alert.Payload{}, false
	}
	var raw any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		s.writeStatus(w, r, http.StatusBadRequest, "body is not valid JSON")
		return alert.Payload{}, false
	}
	p, err := s.eng.Validate(raw)
	if err != nil {
		s.writeError(w, r, err)
		return alert.Payload{}, false
	}
	return p, true
}
