package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/dallylee/pt-authority-hub-landing/internal/auth"
)

const linkSentMessage = "If that email exists, you will receive a login link shortly."

func (h *Handler) requestLink(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !strings.Contains(email, "@") {
		writeError(w, http.StatusBadRequest, "validation_failed", "Invalid email")
		return
	}

	if err := h.links.RequestLink(r.Context(), h.cfg.WorkspaceID, email, h.cfg.PublicBaseURL); err != nil {
		h.log.WithError(err).Error("request login link failed", nil)
		writeError(w, http.StatusInternalServerError, "server_error", "Failed to send email")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "message": linkSentMessage})
}

func (h *Handler) consumeLink(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "Missing token")
		return
	}

	session, err := h.links.Consume(r.Context(), h.cfg.WorkspaceID, token)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidLink):
			writeError(w, http.StatusForbidden, "forbidden", "Invalid or expired link")
		case errors.Is(err, auth.ErrLinkUsed):
			writeError(w, http.StatusForbidden, "forbidden", "Link already used")
		case errors.Is(err, auth.ErrLinkExpired):
			writeError(w, http.StatusForbidden, "forbidden", "Link expired")
		case errors.Is(err, auth.ErrUserNotFound):
			writeError(w, http.StatusForbidden, "forbidden", "User not found")
		default:
			h.log.WithError(err).Error("consume login link failed", nil)
			writeError(w, http.StatusInternalServerError, "server_error", "Login failed")
		}
		return
	}

	http.SetCookie(w, sessionCookie(session.Token, int(auth.SessionTTL.Seconds())))
	http.Redirect(w, r, "/pt", http.StatusFound)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, sessionCookie("", -1))
	http.Redirect(w, r, "/pt/login", http.StatusFound)
}

// sessionCookie builds the console cookie. A negative maxAge clears it.
func sessionCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}
}
