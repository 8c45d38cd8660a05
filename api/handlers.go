package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/senderwatch/supervisor"
)

// apiKeyHeader is the primary credential header; a Bearer token is
// accepted as an alternative for generic HTTP clients.
const apiKeyHeader = "X-API-Key"

func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(apiKeyHeader)
		if key == "" {
			if bearer := r.Header.Get("Authorization"); strings.HasPrefix(bearer, "Bearer ") {
				key = strings.TrimPrefix(bearer, "Bearer ")
			}
		}
		if key == "" {
			writeError(w, http.StatusUnauthorized, "missing API key")
			return
		}

		ok, err := s.store.ValidateAPIKey(r.Context(), key)
		if err != nil {
			s.log.Error("api: key validation failed", "error", err)
			writeError(w, http.StatusInternalServerError, "key validation failed")
			return
		}
		if !ok {
			writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := s.store.DB.PingContext(r.Context()); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status": status,
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleDomains returns the latest row per domain, optionally filtered by
// ?account= and bounded by ?limit=.
func (s *Server) handleDomains(w http.ResponseWriter, r *http.Request) {
	account := r.URL.Query().Get("account")
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	rows, err := s.store.LatestAll(r.Context(), account, limit)
	if err != nil {
		s.log.Error("api: list domains failed", "error", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"domains": rows,
		"count":   len(rows),
	})
}

func (s *Server) handleDomain(w http.ResponseWriter, r *http.Request) {
	domain := chi.URLParam(r, "domain")
	account := r.URL.Query().Get("account")

	row, err := s.store.Latest(r.Context(), domain, account)
	if err != nil {
		s.log.Error("api: domain lookup failed", "domain", domain, "error", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if row == nil {
		writeError(w, http.StatusNotFound, "domain not found")
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	domain := chi.URLParam(r, "domain")

	doc, err := s.snaps.Load(domain)
	if err != nil {
		s.log.Error("api: snapshot load failed", "domain", domain, "error", err)
		writeError(w, http.StatusInternalServerError, "snapshot load failed")
		return
	}
	if doc == nil {
		writeError(w, http.StatusNotFound, "no snapshot for domain")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// handleSessions returns recent scrape batches, newest first.
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	account := r.URL.Query().Get("account")

	sessions, err := s.store.RecentSessions(r.Context(), account, 50)
	if err != nil {
		s.log.Error("api: session list failed", "error", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

func (s *Server) handleFleet(w http.ResponseWriter, r *http.Request) {
	var statuses []supervisor.WorkerStatus
	if s.fleet != nil {
		statuses = s.fleet()
	}
	alive := 0
	for _, st := range statuses {
		if st.Alive {
			alive++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"workers": statuses,
		"alive":   alive,
		"total":   len(statuses),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
