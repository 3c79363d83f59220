package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dallylee/pt-authority-hub-landing/internal/auth"
	"github.com/dallylee/pt-authority-hub-landing/internal/domain"
	"github.com/dallylee/pt-authority-hub-landing/internal/persistence"
	"github.com/dallylee/pt-authority-hub-landing/internal/signing"
	"github.com/dallylee/pt-authority-hub-landing/internal/triage"
)

// LeadView is the console representation of a lead.
type LeadView struct {
	ID               string                    `json:"id"`
	WorkspaceID      string                    `json:"workspace_id"`
	ClientEmail      string                    `json:"client_email"`
	ClientFirstName  string                    `json:"client_first_name"`
	Answers          triage.LeadAnswers        `json:"answers"`
	TriageScore      int                       `json:"triage_score"`
	TriageSegment    string                    `json:"triage_segment"`
	TriageFitRisk    bool                      `json:"triage_fit_risk"`
	TriageBottleneck string                    `json:"triage_bottleneck"`
	TriageConfidence string                    `json:"triage_confidence"`
	TriageReasons    []string                  `json:"triage_reasons"`
	TriageBreakdown  map[triage.Bottleneck]int `json:"triage_breakdown"`
	Status           string                    `json:"status"`
	UploadStatus     string                    `json:"upload_status"`
	InternalNotes    string                    `json:"internal_notes"`
	AnalysisDraft    string                    `json:"analysis_draft"`
	AnalysisSentAt   *time.Time                `json:"analysis_sent_at"`
	CreatedAt        time.Time                 `json:"created_at"`
	UpdatedAt        time.Time                 `json:"updated_at"`
}

// UploadView lists a stored file with a short-lived download link.
type UploadView struct {
	ID            string    `json:"id"`
	FileName      string    `json:"file_name"`
	FileSizeBytes int64     `json:"file_size_bytes"`
	MimeType      string    `json:"mime_type"`
	StorageKey    string    `json:"storage_key"`
	CreatedAt     time.Time `json:"created_at"`
	DownloadURL   string    `json:"download_url,omitempty"`
}

// ListLeadsResponse packages a page of leads.
type ListLeadsResponse struct {
	OK         bool       `json:"ok"`
	Leads      []LeadView `json:"leads"`
	NextCursor string     `json:"nextCursor,omitempty"`
}

// UpdateLeadRequest is the PATCH body. Omitted fields are left untouched.
type UpdateLeadRequest struct {
	Notes  *string `json:"notes"`
	Status *string `json:"status"`
}

// SendAnalysisRequest is the send-analysis body.
type SendAnalysisRequest struct {
	Draft   string `json:"draft"`
	Subject string `json:"subject"`
}

func (h *Handler) listLeads(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.FromContext(r.Context())

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	leads, next, err := h.leads.ListLeads(r.Context(), claims.TenantID, cursor, limit)
	if err != nil {
		h.log.WithError(err).Error("list leads failed", nil)
		writeError(w, http.StatusInternalServerError, "server_error", "Internal server error")
		return
	}

	items := make([]LeadView, 0, len(leads))
	for _, lead := range leads {
		items = append(items, toLeadView(lead))
	}
	writeJSON(w, http.StatusOK, ListLeadsResponse{OK: true, Leads: items, NextCursor: persistence.EncodeCursor(next)})
}

func (h *Handler) getLead(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.FromContext(r.Context())
	id, ok := leadID(w, r)
	if !ok {
		return
	}

	lead, uploads, err := h.leads.GetLead(r.Context(), claims.TenantID, id)
	if err != nil {
		h.leadError(w, err)
		return
	}

	views := make([]UploadView, 0, len(uploads))
	for _, u := range uploads {
		view := UploadView{
			ID:            u.ID,
			FileName:      u.FileName,
			FileSizeBytes: u.SizeBytes,
			MimeType:      u.MimeType,
			StorageKey:    u.StorageKey,
			CreatedAt:     u.CreatedAt,
		}
		if token, err := h.signer.Sign(u.StorageKey, signing.ConsoleTTL); err == nil {
			view.DownloadURL = downloadURL("", token)
		} else {
			h.log.WithError(err).Warn("sign download token failed", map[string]interface{}{"upload_id": u.ID})
		}
		views = append(views, view)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":      true,
		"lead":    toLeadView(*lead),
		"uploads": views,
	})
}

func (h *Handler) updateLead(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.FromContext(r.Context())
	id, ok := leadID(w, r)
	if !ok {
		return
	}

	var req UpdateLeadRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	patch := domain.LeadPatch{Notes: req.Notes}
	if req.Status != nil {
		status := domain.LeadStatus(*req.Status)
		patch.Status = &status
	}

	if err := h.leads.UpdateLead(r.Context(), claims.TenantID, id, patch); err != nil {
		h.leadError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) sendAnalysis(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.FromContext(r.Context())
	id, ok := leadID(w, r)
	if !ok {
		return
	}

	var req SendAnalysisRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 256<<10)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	sentAt, email, err := h.leads.SendAnalysis(r.Context(), claims.TenantID, id, req.Draft, req.Subject)
	if err != nil {
		h.leadError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":      true,
		"message": fmt.Sprintf("Analysis sent to %s", email),
		"sentAt":  sentAt,
	})
}

// leadID reads the {id} path segment. Ids that are not UUIDs cannot exist, so
// they are answered with 404 without touching the database.
func leadID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if err := uuid.Validate(id); err != nil {
		writeError(w, http.StatusNotFound, "not_found", "Lead not found")
		return "", false
	}
	return id, true
}

func (h *Handler) leadError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrLeadNotFound):
		writeError(w, http.StatusNotFound, "not_found", "Lead not found")
	case errors.Is(err, domain.ErrNothingToUpdate):
		writeError(w, http.StatusBadRequest, "validation_failed", "No fields to update")
	case errors.Is(err, domain.ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, domain.ErrMissingDraft):
		writeError(w, http.StatusBadRequest, "validation_failed", "Analysis draft is required")
	case errors.Is(err, domain.ErrLeadHasNoEmail):
		writeError(w, http.StatusBadRequest, "validation_failed", "Lead has no email address")
	case errors.Is(err, domain.ErrAnalysisNotSent):
		h.log.WithError(err).Error("analysis email failed", nil)
		writeError(w, http.StatusInternalServerError, "server_error", "Failed to send email")
	default:
		h.log.WithError(err).Error("lead operation failed", nil)
		writeError(w, http.StatusInternalServerError, "server_error", "Internal server error")
	}
}

func toLeadView(lead domain.LeadAggregate) LeadView {
	reasons := lead.Triage.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	return LeadView{
		ID:               lead.ID,
		WorkspaceID:      lead.WorkspaceID,
		ClientEmail:      lead.Email,
		ClientFirstName:  lead.FirstName,
		Answers:          lead.Answers,
		TriageScore:      lead.Triage.Score.Score,
		TriageSegment:    string(lead.Triage.Segment),
		TriageFitRisk:    lead.Triage.FitRisk,
		TriageBottleneck: string(lead.Triage.Bottleneck),
		TriageConfidence: string(lead.Triage.Confidence),
		TriageReasons:    reasons,
		TriageBreakdown:  lead.Triage.Breakdown,
		Status:           string(lead.Status),
		UploadStatus:     string(lead.UploadStatus),
		InternalNotes:    lead.InternalNotes,
		AnalysisDraft:    lead.AnalysisDraft,
		AnalysisSentAt:   lead.AnalysisSentAt,
		CreatedAt:        lead.CreatedAt,
		UpdatedAt:        lead.UpdatedAt,
	}
}
