// Package api exposes the public funnel endpoints and the authenticated PT
// console over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/dallylee/pt-authority-hub-landing/internal/auth"
	"github.com/dallylee/pt-authority-hub-landing/internal/cache"
	"github.com/dallylee/pt-authority-hub-landing/internal/domain"
	"github.com/dallylee/pt-authority-hub-landing/internal/logger"
	"github.com/dallylee/pt-authority-hub-landing/internal/notify"
	"github.com/dallylee/pt-authority-hub-landing/internal/reviews"
	"github.com/dallylee/pt-authority-hub-landing/internal/signing"
	"github.com/dallylee/pt-authority-hub-landing/internal/storage"
)

// Config carries the request-handling settings.
type Config struct {
	WorkspaceID        string
	PublicBaseURL      string
	CORSAllowedOrigin  string
	UploadMaxBytes     int64
	UploadAllowedTypes []string
	SpotsRemaining     int
}

// LinkService issues and redeems console login links.
type LinkService interface {
	RequestLink(ctx context.Context, workspaceID, email, baseURL string) error
	Consume(ctx context.Context, workspaceID, token string) (auth.Session, error)
}

// UploadMailer notifies the admin about a stored upload.
type UploadMailer interface {
	SendUploadReceived(ctx context.Context, msg notify.UploadEmail) error
}

// ReviewSource returns review data for the landing page.
type ReviewSource interface {
	Get(ctx context.Context) reviews.Response
}

// Deps bundles the collaborators behind the handlers. Spots may be nil.
type Deps struct {
	Leads   *domain.Service
	Links   LinkService
	Objects storage.ObjectStore
	Signer  *signing.Signer
	Mailer  UploadMailer
	Spots   cache.Store
	Reviews ReviewSource
	Log     logger.Logger
}

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	cfg     Config
	leads   *domain.Service
	links   LinkService
	objects storage.ObjectStore
	signer  *signing.Signer
	mailer  UploadMailer
	spots   cache.Store
	reviews ReviewSource
	log     logger.Logger
}

// NewHandler builds a Handler.
func NewHandler(cfg Config, deps Deps) *Handler {
	log := deps.Log
	if log == nil {
		log = logger.NewNop()
	}
	return &Handler{
		cfg:     cfg,
		leads:   deps.Leads,
		links:   deps.Links,
		objects: deps.Objects,
		signer:  deps.Signer,
		mailer:  deps.Mailer,
		spots:   deps.Spots,
		reviews: deps.Reviews,
		log:     log.With("component", "api"),
	}
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]interface{}{
		"ok":     false,
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
