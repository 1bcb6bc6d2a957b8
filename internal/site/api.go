package site

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ehrlich-b/newsroom/internal/admin"
	"github.com/ehrlich-b/newsroom/internal/logger"
	"github.com/ehrlich-b/newsroom/internal/proxy"
	"github.com/ehrlich-b/newsroom/internal/store"
)

const maxPerfSample = 64 << 10

func (s *Server) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.AdminTokenConfigured() {
		writeError(w, http.StatusServiceUnavailable,
			"PROCESSING_ADMIN_TOKEN is not configured on frontend. Admin login is disabled.")
		return
	}
	ip := s.clientIP(r)
	if !s.limiter.Allow(ip) {
		writeError(w, http.StatusTooManyRequests, "Too many login attempts. Try again later.")
		return
	}

	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON payload.")
		return
	}
	if !admin.MatchToken(s.cfg.Admin.Token, strings.TrimSpace(body.Token)) {
		s.audit(store.ActionLoginFailed, ip, "")
		writeError(w, http.StatusUnauthorized, "Invalid admin token.")
		return
	}

	signed, _, err := s.sessions.Issue()
	if err != nil {
		logger.Error("issue admin session", "err", err)
		writeError(w, http.StatusInternalServerError, "Could not start admin session.")
		return
	}
	s.sessions.SetCookie(w, signed)
	s.audit(store.ActionLogin, ip, "")
	writeJSON(w, http.StatusOK, map[string]bool{"authenticated": true})
}

func (s *Server) handleAdminLogout(w http.ResponseWriter, r *http.Request) {
	if s.sessions.Authenticated(r) {
		s.audit(store.ActionLogout, s.clientIP(r), "")
	}
	s.sessions.ClearCookie(w)
	writeJSON(w, http.StatusOK, map[string]bool{"authenticated": false})
}

func (s *Server) handleAdminSession(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, map[string]bool{
		"authenticated": s.cfg.AdminTokenConfigured() && s.sessions.Authenticated(r),
	})
}

// jobFinished records relayed processing jobs. A successful job means new
// content, so cached side lookups are dropped.
func (s *Server) jobFinished(res proxy.JobResult) {
	ip := s.clientIP(res.Remote)
	detail := fmt.Sprintf("%s status %d", res.Job, res.Status)
	if res.Status < 200 || res.Status > 299 {
		s.audit(store.ActionJobFailed, ip, detail)
		return
	}
	s.audit(store.ActionJob, ip, detail)
	s.PurgeCaches()
}

func (s *Server) clientIP(r *http.Request) string {
	return admin.ClientIP(r, s.cfg.Server.TrustForwarded)
}

func (s *Server) audit(action, actor, detail string) {
	if _, err := s.store.AppendAudit(action, actor, detail); err != nil {
		logger.Warn("audit write failed", "action", action, "err", err)
	}
}

func (s *Server) handlePerfSample(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPerfSample))
	if err == nil {
		var sample store.PerfSample
		if sample, err = store.ParsePerfSample(raw); err == nil {
			err = s.store.AddPerfSample(sample, s.cfg.Site.PerfSampleLimit)
		}
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handlePerfReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.store.PerfReport()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"backend": s.backend.Configured(),
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
