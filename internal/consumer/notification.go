package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dallylee/pt-authority-hub-landing/internal/alert"
	"github.com/dallylee/pt-authority-hub-landing/internal/events"
	"github.com/dallylee/pt-authority-hub-landing/internal/logger"
	"github.com/dallylee/pt-authority-hub-landing/internal/notify"
	"github.com/dallylee/pt-authority-hub-landing/internal/triage"
)

// LeadMailer sends the admin new-lead email.
type LeadMailer interface {
	SendNewLead(ctx context.Context, msg notify.NewLeadEmail) error
}

// answerLabels fixes the order and wording of answers in the admin email.
var answerLabels = []struct {
	key   string
	label string
}{
	{"main_goal", "Main goal"},
	{"location", "Location"},
	{"start_timing", "Start timing"},
	{"biggest_blocker", "Biggest blocker"},
	{"training_days_current", "Training days per week"},
	{"time_commitment_weekly", "Weekly time commitment"},
	{"monthly_investment", "Monthly investment"},
	{"coaching_preference", "Coaching preference"},
	{"constraints", "Constraints"},
	{"wants_upload", "Will share training data"},
}

// NotificationHandler emails the admin about new leads and alerts on HOT ones.
type NotificationHandler struct {
	mailer  LeadMailer
	alerter alert.Alerter
	log     logger.Logger
}

// NewNotificationHandler constructs a handler. A nil alerter disables alerts.
func NewNotificationHandler(mailer LeadMailer, alerter alert.Alerter, log logger.Logger) *NotificationHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &NotificationHandler{mailer: mailer, alerter: alerter, log: log.With("component", "notification_handler")}
}

// Handle implements Handler.
func (h *NotificationHandler) Handle(ctx context.Context, msg Message) error {
	switch msg.EventType {
	case events.TypeLeadCreated:
		return h.handleLeadCreated(ctx, msg)
	case events.TypeUploadReceived:
		return h.handleUploadReceived(msg)
	default:
		h.log.Debug("ignoring event", map[string]interface{}{"event_type": msg.EventType})
		return nil
	}
}

func (h *NotificationHandler) handleLeadCreated(ctx context.Context, msg Message) error {
	var evt events.LeadCreated
	if err := json.Unmarshal(msg.Payload, &evt); err != nil {
		return fmt.Errorf("decode lead.created: %w", err)
	}

	err := h.mailer.SendNewLead(ctx, newLeadEmail(evt))
	recordNotification("email", err)
	if err != nil {
		return fmt.Errorf("send new lead email: %w", err)
	}

	if h.alerter == nil || evt.Segment != string(triage.SegmentHot) {
		return nil
	}

	alertErr := h.alerter.Alert(ctx, leadAlert(evt))
	recordNotification("alert", alertErr)
	if alertErr != nil {
		h.log.WithError(alertErr).Warn("hot lead alert failed", map[string]interface{}{
			"lead_id":   evt.LeadID,
			"tenant_id": msg.TenantID,
		})
	}
	return nil
}

func (h *NotificationHandler) handleUploadReceived(msg Message) error {
	var evt events.UploadReceived
	if err := json.Unmarshal(msg.Payload, &evt); err != nil {
		return fmt.Errorf("decode upload.received: %w", err)
	}
	auditedUploadsCounter.Inc()
	h.log.Info("upload received", map[string]interface{}{
		"upload_id":  evt.UploadID,
		"lead_id":    evt.LeadID,
		"size_bytes": evt.SizeBytes,
		"tenant_id":  msg.TenantID,
	})
	return nil
}

func newLeadEmail(evt events.LeadCreated) notify.NewLeadEmail {
	answers := make([]notify.Answer, 0, len(answerLabels))
	for _, al := range answerLabels {
		if v := evt.Answers[al.key]; v != "" {
			answers = append(answers, notify.Answer{Label: al.label, Value: v})
		}
	}
	return notify.NewLeadEmail{
		LeadID:      evt.LeadID,
		FirstName:   evt.FirstName,
		Email:       evt.Email,
		MainGoal:    evt.Answers["main_goal"],
		Answers:     answers,
		Score:       evt.Score,
		Segment:     evt.Segment,
		FitRisk:     evt.FitRisk,
		Bottleneck:  evt.Bottleneck,
		Confidence:  evt.Confidence,
		Reasons:     evt.Reasons,
		SubmittedAt: evt.CreatedAt,
	}
}

func leadAlert(evt events.LeadCreated) alert.LeadAlert {
	return alert.LeadAlert{
		LeadID:      evt.LeadID,
		Email:       evt.Email,
		FirstName:   evt.FirstName,
		Score:       evt.Score,
		Segment:     evt.Segment,
		Bottleneck:  evt.Bottleneck,
		Confidence:  evt.Confidence,
		MainGoal:    evt.Answers["main_goal"],
		StartTiming: evt.Answers["start_timing"],
		Budget:      evt.Answers["monthly_investment"],
	}
}
