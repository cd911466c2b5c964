package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gobeaver/beaver-signin/database"
)

type healthResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Providers map[string]bool   `json:"providers"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	resp := healthResponse{
		Status:    "ok",
		Checks:    map[string]string{},
		Providers: s.deps.Flow.Configured(),
	}
	status := http.StatusOK

	if err := database.Ping(ctx, s.deps.DB); err != nil {
		s.logger.Error("database health check failed", "error", err)
		resp.Checks["database"] = "unavailable"
		status = http.StatusServiceUnavailable
	} else {
		resp.Checks["database"] = "ok"
	}

	switch {
	case s.deps.Cache == nil:
		resp.Checks["cache"] = "disabled"
	case s.deps.Cache.Ping(ctx) != nil:
		s.logger.Error("cache health check failed")
		resp.Checks["cache"] = "unavailable"
		status = http.StatusServiceUnavailable
	default:
		resp.Checks["cache"] = "ok"
	}

	if status != http.StatusOK {
		resp.Status = "unavailable"
	}
	writeJSON(w, status, resp)
}

type sessionResponse struct {
	AccountID string    `json:"accountId"`
	Email     string    `json:"email"`
	Provider  string    `json:"provider"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s *Server) currentSession(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	claims, err := s.deps.Sessions.FromRequest(r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Not authenticated"})
		return
	}
	resp := sessionResponse{
		AccountID: claims.AccountID(),
		Email:     claims.Email,
		Provider:  claims.Provider,
	}
	if claims.ExpiresAt != nil {
		resp.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	s.deps.Sessions.ClearCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
