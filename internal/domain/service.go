// Package domain defines the lead lifecycle of the PT Authority Hub funnel.
package domain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dallylee/pt-authority-hub-landing/internal/logger"
	"github.com/dallylee/pt-authority-hub-landing/internal/notify"
	"github.com/dallylee/pt-authority-hub-landing/internal/observability"
	"github.com/dallylee/pt-authority-hub-landing/internal/triage"
)

var (
	// ErrLeadNotFound is returned when a lead cannot be located in the workspace.
	ErrLeadNotFound = errors.New("lead not found")
	// ErrNothingToUpdate is returned for a patch with no fields set.
	ErrNothingToUpdate = errors.New("nothing to update")
	// ErrInvalidStatus is returned for an unknown lead status.
	ErrInvalidStatus = errors.New("invalid lead status")
	// ErrMissingDraft is returned when an analysis is sent without content.
	ErrMissingDraft = errors.New("analysis draft is required")
	// ErrLeadHasNoEmail is returned when a lead cannot be emailed.
	ErrLeadHasNoEmail = errors.New("lead has no email address")
	// ErrAnalysisNotSent wraps a mailer failure while sending an analysis.
	ErrAnalysisNotSent = errors.New("analysis email not sent")
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 200

	defaultAnalysisSubject = "Your Performance Analysis - PT Authority Hub"
)

// LeadRepository captures persistence operations. Get returns (nil, nil) for a
// missing lead and Update reports whether a row matched.
type LeadRepository interface {
	Create(ctx context.Context, lead LeadAggregate) error
	Get(ctx context.Context, workspaceID, leadID string) (*LeadAggregate, error)
	List(ctx context.Context, workspaceID string, cursor *Cursor, limit int) ([]LeadAggregate, *Cursor, error)
	Update(ctx context.Context, workspaceID, leadID string, patch LeadPatch) (bool, error)
	FindByTokenHash(ctx context.Context, workspaceID, tokenHash string) (string, error)
	CreateUpload(ctx context.Context, upload Upload) error
	ListUploads(ctx context.Context, workspaceID, leadID string) ([]Upload, error)
	MarkAnalysisSent(ctx context.Context, workspaceID, leadID, draft string, sentAt time.Time) error
	BookingLink(ctx context.Context, workspaceID string) (string, error)
}

// AnalysisMailer sends the coach's analysis to a prospect.
type AnalysisMailer interface {
	SendAnalysis(ctx context.Context, msg notify.AnalysisEmail) error
}

// Service orchestrates lead workflows.
type Service struct {
	repo   LeadRepository
	mailer AnalysisMailer
	log    logger.Logger
	now    func() time.Time
}

// NewService constructs a Service.
func NewService(repo LeadRepository, mailer AnalysisMailer, log logger.Logger) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{
		repo:   repo,
		mailer: mailer,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// IngestLeadInput captures a validated quiz submission from the API layer.
type IngestLeadInput struct {
	WorkspaceID string
	FirstName   string
	Answers     triage.LeadAnswers
}

// UploadInput describes a file already written to object storage.
type UploadInput struct {
	WorkspaceID string
	LeadID      string
	FileName    string
	MimeType    string
	SizeBytes   int64
	StorageKey  string
}

// IngestLead triages the answers and stores the lead together with its
// lead.created event. The returned token lets the prospect link a later upload
// to this lead; only its hash is stored.
func (s *Service) IngestLead(ctx context.Context, input IngestLeadInput) (*LeadAggregate, string, error) {
	result := triage.Triage(input.Answers)
	token := NewToken()
	now := s.now()

	lead := LeadAggregate{
		ID:            uuid.NewString(),
		WorkspaceID:   input.WorkspaceID,
		Email:         strings.ToLower(strings.TrimSpace(input.Answers.Email)),
		FirstName:     strings.TrimSpace(input.FirstName),
		Answers:       input.Answers,
		Triage:        result,
		Status:        LeadStatusNew,
		UploadStatus:  UploadStatusNone,
		LeadTokenHash: HashToken(token),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.repo.Create(ctx, lead); err != nil {
		return nil, "", fmt.Errorf("create lead: %w", err)
	}

	observability.RecordLeadIngested(string(result.Segment), string(result.Bottleneck), string(result.Confidence))
	s.log.Info("lead ingested", map[string]interface{}{
		"lead_id":    lead.ID,
		"segment":    result.Segment,
		"score":      result.Score.Score,
		"bottleneck": result.Bottleneck,
		"confidence": result.Confidence,
	})
	return &lead, token, nil
}

// GetLead fetches a lead and its active uploads.
func (s *Service) GetLead(ctx context.Context, workspaceID, leadID string) (*LeadAggregate, []Upload, error) {
	lead, err := s.repo.Get(ctx, workspaceID, leadID)
	if err != nil {
		return nil, nil, err
	}
	if lead == nil {
		return nil, nil, ErrLeadNotFound
	}
	uploads, err := s.repo.ListUploads(ctx, workspaceID, leadID)
	if err != nil {
		return nil, nil, err
	}
	return lead, uploads, nil
}

// ListLeads returns the newest leads first with keyset pagination.
func (s *Service) ListLeads(ctx context.Context, workspaceID string, cursor *Cursor, limit int) ([]LeadAggregate, *Cursor, error) {
	return s.repo.List(ctx, workspaceID, cursor, ClampLimit(limit))
}

// ClampLimit applies the listing default and ceiling.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	}
	return limit
}

// UpdateLead applies console edits to notes and status.
func (s *Service) UpdateLead(ctx context.Context, workspaceID, leadID string, patch LeadPatch) error {
	if patch.Empty() {
		return ErrNothingToUpdate
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, *patch.Status)
	}

	found, err := s.repo.Update(ctx, workspaceID, leadID, patch)
	if err != nil {
		return err
	}
	if !found {
		return ErrLeadNotFound
	}
	return nil
}

// ResolveLeadToken maps a raw lead token to its lead id. Lookup failures are
// logged and treated as an unknown token.
func (s *Service) ResolveLeadToken(ctx context.Context, workspaceID, token string) (string, bool) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	leadID, err := s.repo.FindByTokenHash(ctx, workspaceID, HashToken(token))
	if err != nil {
		s.log.WithError(err).Warn("lead token lookup failed", nil)
		return "", false
	}
	return leadID, leadID != ""
}

// RecordUpload stores the upload row and, for linked uploads, marks the lead as
// having shared data.
func (s *Service) RecordUpload(ctx context.Context, input UploadInput) (*Upload, error) {
	upload := Upload{
		ID:          uuid.NewString(),
		WorkspaceID: input.WorkspaceID,
		LeadID:      input.LeadID,
		FileName:    input.FileName,
		MimeType:    input.MimeType,
		SizeBytes:   input.SizeBytes,
		StorageKey:  input.StorageKey,
		Status:      UploadStateActive,
		CreatedAt:   s.now(),
	}
	if err := s.repo.CreateUpload(ctx, upload); err != nil {
		return nil, fmt.Errorf("create upload: %w", err)
	}
	return &upload, nil
}

// SendAnalysis emails the draft to the lead and records it. HOT leads get the
// workspace booking link as a call to action. The lead is only marked when the
// email was accepted.
func (s *Service) SendAnalysis(ctx context.Context, workspaceID, leadID, draft, subject string) (time.Time, string, error) {
	if strings.TrimSpace(draft) == "" {
		return time.Time{}, "", ErrMissingDraft
	}

	lead, err := s.repo.Get(ctx, workspaceID, leadID)
	if err != nil {
		return time.Time{}, "", err
	}
	if lead == nil {
		return time.Time{}, "", ErrLeadNotFound
	}
	if lead.Email == "" {
		return time.Time{}, "", ErrLeadHasNoEmail
	}

	var bookingLink string
	if lead.Triage.Segment == triage.SegmentHot {
		bookingLink, err = s.repo.BookingLink(ctx, workspaceID)
		if err != nil {
			s.log.WithError(err).Warn("booking link lookup failed", map[string]interface{}{"workspace_id": workspaceID})
			bookingLink = ""
		}
	}

	if strings.TrimSpace(subject) == "" {
		subject = defaultAnalysisSubject
	}

	if err := s.mailer.SendAnalysis(ctx, notify.AnalysisEmail{
		To:          lead.Email,
		FirstName:   lead.FirstName,
		Subject:     subject,
		Draft:       draft,
		BookingLink: bookingLink,
	}); err != nil {
		return time.Time{}, "", fmt.Errorf("%w: %w", ErrAnalysisNotSent, err)
	}

	sentAt := s.now()
	if err := s.repo.MarkAnalysisSent(ctx, workspaceID, leadID, draft, sentAt); err != nil {
		return time.Time{}, "", fmt.Errorf("mark analysis sent: %w", err)
	}
	return sentAt, lead.Email, nil
}

// NewToken returns a random 64 character hex token.
func NewToken() string {
	return strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
}

// HashToken returns the hex SHA-256 digest stored in place of a raw token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
