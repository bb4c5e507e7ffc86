// Package server exposes the HTTP surface: session-gated management
// endpoints, public share-link reads, and the login flow.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"certhub/internal/app"
	"certhub/internal/auth"
	"certhub/internal/domain"
	"certhub/internal/recaptcha"
	"certhub/internal/session"
	"certhub/internal/util"
)

// Uploads arrive base64-encoded in a JSON body, so the HTTP cap sits above
// the 15 MiB decoded limit enforced by the service.
const maxUploadBodyBytes = 32 << 20

// Config wires required dependencies for the HTTP server.
type Config struct {
	App        *app.App
	Gate       *auth.Gate
	Sessions   session.Store
	Recaptcha  *recaptcha.Client
	SessionTTL time.Duration
}

// Server exposes HTTP endpoints for certhub.
type Server struct {
	app        *app.App
	gate       *auth.Gate
	sessions   session.Store
	recaptcha  *recaptcha.Client
	sessionTTL time.Duration
	mux        *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = session.DefaultTTL
	}
	s := &Server{
		app:        cfg.App,
		gate:       cfg.Gate,
		sessions:   cfg.Sessions,
		recaptcha:  cfg.Recaptcha,
		sessionTTL: ttl,
		mux:        http.NewServeMux(),
	}
	s.routes()
	return s
}

// Router returns the configured handler with the middleware chain applied.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog(util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// auth
	s.mux.HandleFunc("/api/auth/login", s.handleLogin)
	s.mux.HandleFunc("/api/auth/logout", s.handleLogout)
	s.mux.HandleFunc("/api/auth/status", s.handleAuthStatus)

	// certificate management (session required)
	s.mux.Handle("/api/certificates", s.authenticated(s.handleCertificates))
	s.mux.Handle("/api/certificates/", s.authenticated(s.handleCertificateByID))

	// public share links
	s.mux.HandleFunc("/api/public/certificate/", s.handlePublicCertificate)
	s.mux.HandleFunc("/view/", s.handleView)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// session gate
type sessionHandler func(http.ResponseWriter, *http.Request, string)

func (s *Server) authenticated(next sessionHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, ok := s.currentUser(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		next(w, r, username)
	})
}

// currentUser validates the token presented by this request only; no other
// active session grants access.
func (s *Server) currentUser(r *http.Request) (string, bool) {
	token, ok := auth.SessionToken(r)
	if !ok {
		return "", false
	}
	username, ok, err := s.sessions.Validate(token)
	if err != nil {
		slog.Warn("session lookup failed", "err", err)
		return "", false
	}
	return username, ok
}

// auth handlers

type loginRequest struct {
	Username          string `json:"username"`
	Password          string `json:"password"`
	RecaptchaResponse string `json:"recaptchaResponse"`
}

type loginResponse struct {
	Token   string `json:"token,omitempty"`
	Message string `json:"message"`
	Success bool   `json:"success"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req loginRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if s.recaptcha != nil && s.recaptcha.Enabled() {
		ok, err := s.recaptcha.Verify(r.Context(), req.RecaptchaResponse)
		if err != nil {
			slog.Warn("recaptcha verify failed", "err", err)
		}
		if err != nil || !ok {
			writeJSON(w, http.StatusBadRequest, loginResponse{Message: "reCAPTCHA verification failed", Success: false})
			return
		}
	}
	if !s.gate.Authenticate(req.Username, req.Password) {
		writeJSON(w, http.StatusUnauthorized, loginResponse{Message: "Invalid credentials", Success: false})
		return
	}
	token, err := s.sessions.Create(req.Username)
	if err != nil {
		slog.Error("create session failed", "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to create session")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.sessionTTL.Seconds()),
		HttpOnly: true,
	})
	writeJSON(w, http.StatusOK, loginResponse{Token: token, Message: "Login successful", Success: true})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if err := s.sessions.Clear(); err != nil {
		slog.Error("clear sessions failed", "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to log out")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

type authStatusResponse struct {
	Authenticated bool    `json:"authenticated"`
	Username      *string `json:"username"`
}

func (s *Server) handleAuthStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	username, ok := s.currentUser(r)
	resp := authStatusResponse{Authenticated: ok}
	if ok {
		resp.Username = &username
	}
	writeJSON(w, http.StatusOK, resp)
}

// certificate handlers

// /api/certificates (exact): list.
func (s *Server) handleCertificates(w http.ResponseWriter, r *http.Request, _ string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	certs := s.app.List()
	views := make([]domain.CertificateView, 0, len(certs))
	for _, c := range certs {
		views = append(views, c.View())
	}
	writeJSON(w, http.StatusOK, views)
}

// /api/certificates/upload, /api/certificates/{id}[/preview|/download]
func (s *Server) handleCertificateByID(w http.ResponseWriter, r *http.Request, _ string) {
	path := strings.TrimPrefix(r.URL.Path, "/api/certificates/")
	if path == "upload" {
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		s.handleUpload(w, r)
		return
	}
	parts := strings.SplitN(path, "/", 2)
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, "Certificate not found")
		return
	}
	if len(parts) == 2 {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		cert, appErr := s.app.Get(id)
		if appErr != nil {
			s.writeAppError(w, appErr, "Failed to stream file")
			return
		}
		switch parts[1] {
		case "preview":
			s.streamCertificate(w, r, cert, "inline", "Failed to preview file")
		case "download":
			s.streamCertificate(w, r, cert, "attachment", "Failed to download file")
		default:
			writeError(w, http.StatusNotFound, "Certificate not found")
		}
		return
	}
	switch r.Method {
	case http.MethodGet:
		cert, err := s.app.Get(id)
		if err != nil {
			s.writeAppError(w, err, "Failed to load certificate")
			return
		}
		writeJSON(w, http.StatusOK, cert.View())
	case http.MethodPut:
		var req updateRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}
		cert, err := s.app.Update(id, req.Title, req.CredentialLink)
		if err != nil {
			s.writeAppError(w, err, "Failed to update certificate")
			return
		}
		writeJSON(w, http.StatusOK, cert.View())
	case http.MethodDelete:
		if err := s.app.Delete(r.Context(), id); err != nil {
			s.writeAppError(w, err, "Failed to delete certificate")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w)
	}
}

type uploadRequest struct {
	Title          string `json:"title"`
	CredentialLink string `json:"credentialLink"`
	FileName       string `json:"fileName"`
	FileData       string `json:"fileData"`
}

type updateRequest struct {
	Title          string `json:"title"`
	CredentialLink string `json:"credentialLink"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBodyBytes)
	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	cert, err := s.app.Upload(r.Context(), app.UploadRequest{
		Title:          req.Title,
		CredentialLink: req.CredentialLink,
		FileName:       req.FileName,
		FileData:       req.FileData,
	})
	if err != nil {
		s.writeAppError(w, err, "Failed to upload file")
		return
	}
	writeJSON(w, http.StatusOK, cert.View())
}

// public handlers

// /api/public/certificate/{shareableId}[/preview|/download]
func (s *Server) handlePublicCertificate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/api/public/certificate/")
	parts := strings.SplitN(path, "/", 2)
	shareableID := parts[0]
	if shareableID == "" {
		writeError(w, http.StatusNotFound, "Certificate not found")
		return
	}
	cert, err := s.app.GetByShareableID(shareableID)
	if err != nil {
		s.writeAppError(w, err, "Failed to load certificate")
		return
	}
	if len(parts) == 2 {
		switch parts[1] {
		case "preview":
			s.streamCertificate(w, r, cert, "inline", "Failed to preview file")
		case "download":
			s.streamCertificate(w, r, cert, "attachment", "Failed to download file")
		default:
			writeError(w, http.StatusNotFound, "Certificate not found")
		}
		return
	}
	writeJSON(w, http.StatusOK, cert.View())
}

// streamCertificate pipes the blob into the response without buffering it.
// The deferred close releases the upstream connection on every exit path,
// including client disconnects.
func (s *Server) streamCertificate(w http.ResponseWriter, r *http.Request, cert domain.Certificate, disposition, failMsg string) {
	rc, size, err := s.app.Open(r.Context(), cert)
	if err != nil {
		s.writeAppError(w, err, failMsg)
		return
	}
	defer rc.Close()
	w.Header().Set("Content-Type", cert.FileType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("%s; filename=%q", disposition, cert.FileName))
	if size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
	if _, err := io.Copy(w, rc); err != nil {
		slog.Warn("blob stream aborted", "key", cert.BlobKey, "err", err)
	}
}

// helpers

func (s *Server) writeAppError(w http.ResponseWriter, err error, fallback string) {
	var verr *app.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Message)
	case errors.Is(err, app.ErrNotFound):
		writeError(w, http.StatusNotFound, "Certificate not found")
	default:
		slog.Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}
