package notify

import (
	"context"
	"fmt"
	"strings"
)

const (
	kindNewLead   = "new_lead"
	kindUpload    = "upload_received"
	kindMagicLink = "magic_link"
	kindAnalysis  = "analysis"

	defaultFirstName = "there"
)

// Notifier renders the service's emails and hands them to a Mailer.
type Notifier struct {
	mailer Mailer
	admin  []string
}

// NewNotifier constructs a Notifier. Admin notifications go to adminTo.
func NewNotifier(mailer Mailer, adminTo ...string) *Notifier {
	admin := make([]string, 0, len(adminTo))
	for _, addr := range adminTo {
		if addr = strings.TrimSpace(addr); addr != "" {
			admin = append(admin, addr)
		}
	}
	return &Notifier{mailer: mailer, admin: admin}
}

// SendNewLead notifies the coach about a new quiz submission.
func (n *Notifier) SendNewLead(ctx context.Context, msg NewLeadEmail) error {
	html, err := render(newLeadTmpl, msg)
	if err != nil {
		return err
	}
	name := msg.FirstName
	if name == "" {
		name = msg.Email
	}
	subject := fmt.Sprintf("New Lead [%s]: %s - %s", msg.Segment, name, msg.MainGoal)
	return n.send(ctx, kindNewLead, Email{To: n.admin, Subject: subject, HTML: html})
}

// SendUploadReceived notifies the coach that an audit file was uploaded.
func (n *Notifier) SendUploadReceived(ctx context.Context, msg UploadEmail) error {
	html, err := render(uploadTmpl, msg)
	if err != nil {
		return err
	}
	subject := "New audit upload received: " + msg.Email
	return n.send(ctx, kindUpload, Email{To: n.admin, Subject: subject, HTML: html})
}

// SendMagicLink emails a console login link.
func (n *Notifier) SendMagicLink(ctx context.Context, msg MagicLinkEmail) error {
	html, err := render(magicLinkTmpl, msg)
	if err != nil {
		return err
	}
	text := fmt.Sprintf("Sign in to PT Authority Hub: %s\nThe link expires in %d minutes.", msg.Link, int(msg.ExpiresIn.Minutes()))
	return n.send(ctx, kindMagicLink, Email{
		To:      []string{msg.To},
		Subject: "Your PT Authority Hub login link",
		HTML:    html,
		Text:    text,
	})
}

// SendAnalysis emails the coach's analysis to the prospect.
func (n *Notifier) SendAnalysis(ctx context.Context, msg AnalysisEmail) error {
	if strings.TrimSpace(msg.FirstName) == "" {
		msg.FirstName = defaultFirstName
	}
	html, err := render(analysisTmpl, msg)
	if err != nil {
		return err
	}
	return n.send(ctx, kindAnalysis, Email{To: []string{msg.To}, Subject: msg.Subject, HTML: html})
}

func (n *Notifier) send(ctx context.Context, kind string, email Email) error {
	if err := n.mailer.Send(ctx, email); err != nil {
		recordEmail(kind, statusFailed)
		return err
	}
	recordEmail(kind, statusSent)
	return nil
}
