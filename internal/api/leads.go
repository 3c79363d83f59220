package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/dallylee/pt-authority-hub-landing/internal/domain"
	"github.com/dallylee/pt-authority-hub-landing/internal/observability"
	"github.com/dallylee/pt-authority-hub-landing/internal/triage"
)

const maxIngestBody = 64 << 10

// IngestRequest is the quiz submission posted by the landing page.
type IngestRequest struct {
	triage.LeadAnswers
	FirstName string      `json:"first_name"`
	Company   string      `json:"company"`
	Consent   interface{} `json:"consent"`
}

// IngestResponse is returned for a stored lead.
type IngestResponse struct {
	OK         bool     `json:"ok"`
	LeadID     string   `json:"leadId"`
	LeadToken  string   `json:"leadToken"`
	Segment    string   `json:"segment"`
	Bottleneck string   `json:"bottleneck"`
	Confidence string   `json:"confidence"`
	Reasons    []string `json:"reasons"`
}

func (h *Handler) ingestLead(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxIngestBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to read body")
		return
	}

	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := validateIngest(doc); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	var req IngestRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	if strings.TrimSpace(req.Company) != "" {
		observability.RecordSpamFiltered()
		writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "message": "Spam filtered"})
		return
	}

	lead, token, err := h.leads.IngestLead(r.Context(), domain.IngestLeadInput{
		WorkspaceID: h.cfg.WorkspaceID,
		FirstName:   req.FirstName,
		Answers:     req.LeadAnswers,
	})
	if err != nil {
		h.log.WithError(err).Error("lead ingest failed", nil)
		writeError(w, http.StatusInternalServerError, "server_error", "Internal server error")
		return
	}

	reasons := lead.Triage.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	writeJSON(w, http.StatusOK, IngestResponse{
		OK:         true,
		LeadID:     lead.ID,
		LeadToken:  token,
		Segment:    string(lead.Triage.Segment),
		Bottleneck: string(lead.Triage.Bottleneck),
		Confidence: string(lead.Triage.Confidence),
		Reasons:    reasons,
	})
}
