package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

// Answer is one labelled quiz answer shown in the admin email.
type Answer struct {
	Label string
	Value string
}

// NewLeadEmail is the admin notification for a triaged quiz submission.
type NewLeadEmail struct {
	LeadID      string
	FirstName   string
	Email       string
	MainGoal    string
	Answers     []Answer
	Score       int
	Segment     string
	FitRisk     bool
	Bottleneck  string
	Confidence  string
	Reasons     []string
	SubmittedAt time.Time
}

// UploadEmail is the admin notification for a stored audit file.
type UploadEmail struct {
	Email       string
	LeadID      string
	FileName    string
	MimeType    string
	SizeBytes   int64
	UploadedAt  time.Time
	DownloadURL string
}

// MagicLinkEmail carries a one-time console login link.
type MagicLinkEmail struct {
	To        string
	Link      string
	ExpiresIn time.Duration
}

// AnalysisEmail is the coach's written analysis sent to a prospect.
type AnalysisEmail struct {
	To          string
	FirstName   string
	Subject     string
	Draft       string
	BookingLink string
}

var funcs = template.FuncMap{
	"kb": func(size int64) string {
		return fmt.Sprintf("%.1f", float64(size)/1024)
	},
	"iso": func(t time.Time) string {
		return t.UTC().Format(time.RFC3339)
	},
	"orNA": func(s string) string {
		if s == "" {
			return "N/A"
		}
		return s
	},
	"minutes": func(d time.Duration) int {
		return int(d.Minutes())
	},
}

var (
	newLeadTmpl = template.Must(template.New("new_lead").Funcs(funcs).Parse(`<div style="font-family: sans-serif; max-width: 600px; margin: 0 auto; padding: 20px; border: 1px solid #eee; border-radius: 10px;">
  <h2 style="color: #333; border-bottom: 2px solid #000; padding-bottom: 10px;">New Performance Audit Lead</h2>
  <div style="margin: 20px 0;">
    <p><strong>Contact:</strong> {{.FirstName}} ({{.Email}})</p>
    <p><strong>Lead ID:</strong> {{.LeadID}}</p>
  </div>
  <div style="background: #f9f9f9; padding: 15px; border-radius: 5px;">
    <h3 style="margin-top: 0;">Triage</h3>
    <p><strong>Segment:</strong> {{.Segment}}{{if .FitRisk}} (location fit risk){{end}}</p>
    <p><strong>Score:</strong> {{.Score}}</p>
    <p><strong>Bottleneck:</strong> {{.Bottleneck}} ({{.Confidence}} confidence)</p>
    <ul>{{range .Reasons}}<li>{{.}}</li>{{end}}</ul>
  </div>
  <div style="margin: 20px 0;">
    <h3>Answers</h3>
    {{range .Answers}}<p><strong>{{.Label}}:</strong> {{.Value}}</p>
    {{end}}
  </div>
  <p style="font-size: 10px; color: #999; margin-top: 30px;">Submitted at {{iso .SubmittedAt}} | PT Authority Hub Native Quiz</p>
</div>`))

	uploadTmpl = template.Must(template.New("upload").Funcs(funcs).Parse(`<h2>New Audit File Upload</h2>
<p><strong>Email:</strong> {{.Email}}</p>
<p><strong>Lead ID:</strong> {{orNA .LeadID}}</p>
<p><strong>Uploaded At:</strong> {{iso .UploadedAt}}</p>
<hr>
<p><strong>File Name:</strong> {{.FileName}}</p>
<p><strong>File Type:</strong> {{.MimeType}}</p>
<p><strong>File Size:</strong> {{kb .SizeBytes}} KB</p>
<hr>
<p><strong>Download Link (expires in 30 days):</strong></p>
<p><a href="{{.DownloadURL}}">{{.DownloadURL}}</a></p>`))

	magicLinkTmpl = template.Must(template.New("magic_link").Funcs(funcs).Parse(`<div style="font-family: sans-serif; max-width: 480px; margin: 0 auto;">
  <h2>Sign in to PT Authority Hub</h2>
  <p>Use the button below to sign in. The link expires in {{minutes .ExpiresIn}} minutes and can only be used once.</p>
  <p><a href="{{.Link}}" style="display: inline-block; padding: 12px 24px; background: #0a0a0a; color: #fff; text-decoration: none; border-radius: 6px;">Sign in</a></p>
  <p style="color: #666; font-size: 12px;">If you did not request this email you can ignore it.</p>
</div>`))

	analysisTmpl = template.Must(template.New("analysis").Funcs(funcs).Parse(`<div style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2 style="color: #1a1a1a;">Hi {{.FirstName}},</h2>
  <div style="white-space: pre-wrap; color: #333; line-height: 1.6;">{{.Draft}}</div>
  {{- if .BookingLink}}
  <div style="margin-top: 32px; padding: 24px; background: #f8f8f8; border-radius: 8px; text-align: center;">
    <p style="margin: 0 0 16px 0; color: #333;"><strong>Ready to get started?</strong></p>
    <a href="{{.BookingLink}}" style="display: inline-block; padding: 12px 32px; background: #00ff88; color: #0a0a0a; text-decoration: none; border-radius: 6px; font-weight: 600;">Book Your Discovery Call</a>
  </div>
  {{- end}}
  <p style="margin-top: 32px; color: #666; font-size: 14px;">Best regards,<br>PT Authority Hub</p>
</div>`))
)

func render(tmpl *template.Template, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}
