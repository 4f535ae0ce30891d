package results

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"tablekit/apps/server/internal/auth"
)

type HTTPHandler struct {
	auth    auth.Service
	results Service
}

type errorResponse struct {
	Error string `json:"error"`
}

func NewHTTPHandler(authService auth.Service, resultsService Service) *HTTPHandler {
	return &HTTPHandler{auth: authService, results: resultsService}
}

func (h *HTTPHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/results", h.handleRecent)
}

// handleRecent lists games for ?user=, or for the session's user when the
// parameter is absent.
func (h *HTTPHandler) handleRecent(w http.ResponseWriter, r *http.Request) {
	username := auth.NormalizeUsername(r.URL.Query().Get("user"))
	if username == "" && h.auth != nil {
		if u, ok := h.auth.ResolveSession(auth.BearerToken(r.Header.Get("Authorization"))); ok {
			username = u
		}
	}
	if username == "" {
		writeError(w, http.StatusBadRequest, "missing user")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	items, err := h.results.ListRecent(ctx, username, parseLimit(r.URL.Query().Get("limit")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query recent games failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":  username,
		"items": items,
	})
}

func parseLimit(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return defaultRecentLimit
	}
	return clampLimit(n)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
