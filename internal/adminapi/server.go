// Package adminapi is the caster's operator-facing HTTP surface: JSON CRUD
// over the catalog's rover users and mounts, live connection statistics, a
// force-disconnect endpoint, and a Prometheus /metrics endpoint - adapted
// from the teacher's admin.Server (X-API-Key middleware over a plain
// http.ServeMux).
package adminapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/ntripcaster/caster/internal/catalog"
	"github.com/ntripcaster/caster/internal/metrics"
	"github.com/ntripcaster/caster/internal/registry"
)

// Server is the admin API's http.Server, with the catalog, registry, and
// metrics registry it reports on.
type Server struct {
	http.Server
	store   *catalog.Store
	reg     *registry.Registry
	metrics *metrics.Metrics
	logger  logrus.FieldLogger
	apiKey  string
}

// New builds the admin API server. addr is the listen address; apiKey, if
// non-empty, is required on every request via the X-API-Key header.
func New(addr string, store *catalog.Store, reg *registry.Registry, m *metrics.Metrics, logger logrus.FieldLogger, apiKey string) *Server {
	s := &Server{
		Server: http.Server{
			Addr:         addr,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		store:   store,
		reg:     reg,
		metrics: m,
		logger:  logger,
		apiKey:  apiKey,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/users", s.auth(s.handleCreateUser))
	mux.HandleFunc("GET /api/users", s.auth(s.handleListUsers))
	mux.HandleFunc("DELETE /api/users/{username}", s.auth(s.handleDeleteUser))

	mux.HandleFunc("POST /api/mounts", s.auth(s.handleCreateMount))
	mux.HandleFunc("GET /api/mounts", s.auth(s.handleListMounts))
	mux.HandleFunc("DELETE /api/mounts/{name}", s.auth(s.handleDeleteMount))
	mux.HandleFunc("POST /api/mounts/{name}/disconnect", s.auth(s.handleDisconnectMount))

	mux.HandleFunc("GET /api/connections", s.auth(s.handleListConnections))
	mux.HandleFunc("POST /api/connections/{id}/disconnect", s.auth(s.handleDisconnectUser))

	mux.HandleFunc("GET /api/stats", s.auth(s.handleStatistics))

	if m != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	s.Handler = mux
	return s
}

// auth rejects requests missing a matching X-API-Key header. When no key is
// configured the admin API is left open, matching the teacher's behavior of
// falling back to an unauthenticated ADMIN_API_KEY-less deployment.
func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" {
			next(w, r)
			return
		}
		if r.Header.Get("X-API-Key") != s.apiKey {
			s.logger.Warn("admin API request with missing or invalid API key")
			http.Error(w, "invalid API key", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	http.Error(w, message, status)
}
