package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alecgard/cloudtally/internal/auth"
	"github.com/alecgard/cloudtally/internal/cloud"
	"github.com/alecgard/cloudtally/internal/metrics"
)

// loginHandler exchanges backend credentials for a bearer token.
type loginHandler struct {
	provider cloud.Provider
	issuer   *auth.Issuer
	metrics  *metrics.Metrics
}

func newLoginHandler(provider cloud.Provider, issuer *auth.Issuer, m *metrics.Metrics) *loginHandler {
	return &loginHandler{provider: provider, issuer: issuer, metrics: m}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Login handles POST /api/login.
func (h *loginHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "username and password are required")
		return
	}

	sess, err := h.provider.Authenticate(r.Context(), cloud.Credential{
		Principal: req.Username,
		Secret:    req.Password,
	})
	if err != nil {
		h.observe(false)
		attrs := []any{"username", req.Username, "request_id", RequestIDFromContext(r.Context())}
		var authErr *cloud.AuthError
		if errors.As(err, &authErr) {
			attrs = append(attrs, "cause", authErr.Diagnostic())
		} else {
			attrs = append(attrs, "error", err)
		}
		slog.Warn("login failed", attrs...)
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid username or password")
		return
	}

	token, expiresAt, err := h.issuer.Issue(sess.Principal)
	if err != nil {
		writeInternalError(w, r, "issuing token", err)
		return
	}

	h.observe(true)
	slog.Info("login succeeded", "username", sess.Principal, "project", sess.Project)

	writeJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		Message:   "Login successful",
		ExpiresAt: expiresAt,
	})
}

func (h *loginHandler) observe(ok bool) {
	if h.metrics == nil {
		return
	}
	if ok {
		h.metrics.IncAuthSuccess("login")
	} else {
		h.metrics.IncAuthFailure("login")
	}
}
