package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

type HTTPHandler struct {
	manager Service
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResponse struct {
	Username     string `json:"username"`
	SessionToken string `json:"session_token"`
}

type meResponse struct {
	Username string `json:"username"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func NewHTTPHandler(manager Service) *HTTPHandler {
	return &HTTPHandler{manager: manager}
}

func (h *HTTPHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", h.issue(h.manager.Register))
		r.Post("/login", h.issue(h.manager.Login))
		r.Post("/logout", h.handleLogout)
		r.Get("/me", h.handleMe)
	})
}

// issue adapts Register or Login into a handler answering with a fresh token.
func (h *HTTPHandler) issue(fn func(username, password string) (string, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req credentialsRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		token, err := fn(req.Username, req.Password)
		if err != nil {
			writeError(w, statusFor(err), publicMessage(err))
			return
		}
		writeJSON(w, http.StatusOK, authResponse{Username: NormalizeUsername(req.Username), SessionToken: token})
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidUsername), errors.Is(err, ErrInvalidPassword):
		return http.StatusBadRequest
	case errors.Is(err, ErrUsernameTaken):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidCredentials):
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

func publicMessage(err error) string {
	if statusFor(err) == http.StatusInternalServerError {
		return "internal error"
	}
	return err.Error()
}

func (h *HTTPHandler) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := BearerToken(r.Header.Get("Authorization"))
	if token == "" {
		writeError(w, http.StatusUnauthorized, "missing session token")
		return
	}
	h.manager.Logout(token)
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) handleMe(w http.ResponseWriter, r *http.Request) {
	username, ok := h.manager.ResolveSession(BearerToken(r.Header.Get("Authorization")))
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid session token")
		return
	}
	writeJSON(w, http.StatusOK, meResponse{Username: username})
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(raw, "Bearer "))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
