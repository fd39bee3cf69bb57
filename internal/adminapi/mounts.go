package adminapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ntripcaster/caster/internal/ntriperr"
)

func (s *Server) handleCreateMount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string  `json:"name"`
		Password string  `json:"password"`
		Owner    *string `json:"owner,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "name and password are required")
		return
	}

	mount, err := s.store.CreateMount(req.Name, req.Password, req.Owner)
	if err != nil {
		if errors.Is(err, ntriperr.ErrNoUser) {
			writeError(w, http.StatusBadRequest, "owner does not exist")
			return
		}
		s.logger.WithError(err).Error("failed to create mount")
		writeError(w, http.StatusInternalServerError, "failed to create mount")
		return
	}
	writeJSON(w, http.StatusCreated, mount)
}

func (s *Server) handleListMounts(w http.ResponseWriter, r *http.Request) {
	mounts, err := s.store.ListMounts()
	if err != nil {
		s.logger.WithError(err).Error("failed to list mounts")
		writeError(w, http.StatusInternalServerError, "failed to list mounts")
		return
	}
	writeJSON(w, http.StatusOK, mounts)
}

func (s *Server) handleDeleteMount(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := s.store.DeleteMount(name); err != nil {
		if errors.Is(err, ntriperr.ErrNotFound) {
			writeError(w, http.StatusNotFound, "mount not found")
			return
		}
		s.logger.WithError(err).Error("failed to delete mount")
		writeError(w, http.StatusInternalServerError, "failed to delete mount")
		return
	}
	s.forceDisconnectMount(name, "deleted")
	w.WriteHeader(http.StatusNoContent)
}

// handleDisconnectMount forcibly disconnects a mount's uploader without
// removing it from the catalog, so the source can reconnect.
func (s *Server) handleDisconnectMount(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !s.forceDisconnectMount(name, "operator request") {
		writeError(w, http.StatusNotFound, "mount is not online")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) forceDisconnectMount(name, reason string) bool {
	info, ok := s.reg.MountRef(name)
	if !ok {
		return false
	}
	if conn := info.Conn(); conn != nil {
		conn.Close()
	}
	s.reg.RemoveMount(name)
	s.logger.WithField("mount", name).WithField("reason", reason).Info("admin API disconnected mount")
	return true
}
