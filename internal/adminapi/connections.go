package adminapi

import (
	"net/http"
)

func (s *Server) handleListConnections(w http.ResponseWriter, r *http.Request) {
	mount := r.URL.Query().Get("mount")
	var users []interface{}
	if mount != "" {
		for _, u := range s.reg.UsersForMount(mount) {
			users = append(users, *u)
		}
	} else {
		for _, u := range s.reg.AllUsers() {
			users = append(users, u)
		}
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleDisconnectUser(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sub, ok := s.reg.UserRef(id)
	if !ok {
		writeError(w, http.StatusNotFound, "connection not found")
		return
	}
	if conn := sub.Conn(); conn != nil {
		conn.Close()
	}
	s.reg.RemoveUser(id)
	s.logger.WithField("connection_id", id).Info("admin API disconnected subscriber")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.reg.GetStatistics())
}
