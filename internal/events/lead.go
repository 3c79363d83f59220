// Package events defines the payloads published through the outbox.
package events

import "time"

// Event type names, also used as the outbox event_type column and Kafka header.
const (
	TypeLeadCreated    = "lead.created"
	TypeUploadReceived = "upload.received"
)

// LeadCreated is emitted once a quiz submission has been triaged and stored.
// It carries everything the admin notification needs so consumers never read
// the leads table.
type LeadCreated struct {
	LeadID      string            `json:"lead_id"`
	WorkspaceID string            `json:"workspace_id"`
	Email       string            `json:"email"`
	FirstName   string            `json:"first_name,omitempty"`
	Answers     map[string]string `json:"answers"`
	Score       int               `json:"score"`
	Segment     string            `json:"segment"`
	FitRisk     bool              `json:"fit_risk"`
	Bottleneck  string            `json:"bottleneck"`
	Confidence  string            `json:"confidence"`
	Reasons     []string          `json:"reasons"`
	CreatedAt   time.Time         `json:"created_at"`
}

// UploadReceived records a stored audit file.
type UploadReceived struct {
	UploadID    string    `json:"upload_id"`
	WorkspaceID string    `json:"workspace_id"`
	LeadID      string    `json:"lead_id,omitempty"`
	FileName    string    `json:"file_name"`
	MimeType    string    `json:"mime_type"`
	SizeBytes   int64     `json:"size_bytes"`
	StorageKey  string    `json:"storage_key"`
	CreatedAt   time.Time `json:"created_at"`
}
