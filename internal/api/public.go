package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dallylee/pt-authority-hub-landing/internal/cache"
	"github.com/dallylee/pt-authority-hub-landing/internal/reviews"
)

// SpotsKey overrides the configured spot count when set in the cache.
const SpotsKey = "spots:remaining"

// SpotsResponse feeds the capacity ticker.
type SpotsResponse struct {
	SpotsRemaining int       `json:"spotsRemaining"`
	UpdatedAt      time.Time `json:"updatedAt"`
	Message        string    `json:"message"`
}

func (h *Handler) spotsRemaining(w http.ResponseWriter, r *http.Request) {
	spots := h.cfg.SpotsRemaining
	if h.spots != nil {
		raw, err := h.spots.Get(r.Context(), SpotsKey)
		switch {
		case err == nil:
			if n, convErr := strconv.Atoi(raw); convErr == nil {
				spots = n
			} else {
				h.log.Warn("ignoring non-numeric spots override", map[string]interface{}{"value": raw})
			}
		case !errors.Is(err, cache.ErrMiss):
			h.log.WithError(err).Warn("spots lookup failed", nil)
		}
	}

	message := "Limited Monthly Capacity"
	if spots <= 2 {
		message = "High Demand: Secure your spot now"
	}

	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, http.StatusOK, SpotsResponse{
		SpotsRemaining: spots,
		UpdatedAt:      time.Now().UTC(),
		Message:        message,
	})
}

func (h *Handler) reviewSummary(w http.ResponseWriter, r *http.Request) {
	resp := h.reviews.Get(r.Context())
	if resp.Status == reviews.StatusOK {
		w.Header().Set("Cache-Control", "public, max-age=43200")
	}
	writeJSON(w, http.StatusOK, resp)
}
