package domain

import (
	"time"

	"github.com/dallylee/pt-authority-hub-landing/internal/triage"
)

// LeadStatus tracks where a lead sits in the coach's pipeline.
type LeadStatus string

const (
	LeadStatusNew          LeadStatus = "NEW"
	LeadStatusReviewing    LeadStatus = "REVIEWING"
	LeadStatusAnalysisSent LeadStatus = "ANALYSIS_SENT"
	LeadStatusBooked       LeadStatus = "BOOKED"
	LeadStatusWon          LeadStatus = "WON"
	LeadStatusLost         LeadStatus = "LOST"
	LeadStatusArchived     LeadStatus = "ARCHIVED"
)

var validStatuses = map[LeadStatus]struct{}{
	LeadStatusNew:          {},
	LeadStatusReviewing:    {},
	LeadStatusAnalysisSent: {},
	LeadStatusBooked:       {},
	LeadStatusWon:          {},
	LeadStatusLost:         {},
	LeadStatusArchived:     {},
}

// Valid reports whether s is a known status.
func (s LeadStatus) Valid() bool {
	_, ok := validStatuses[s]
	return ok
}

// UploadStatus records whether a lead has shared training data.
type UploadStatus string

const (
	UploadStatusNone     UploadStatus = "NONE"
	UploadStatusReceived UploadStatus = "RECEIVED"
)

// UploadStateActive is the only state uploads are listed in.
const UploadStateActive = "ACTIVE"

// LeadAggregate is the lead row stored in Postgres, including its triage outcome.
type LeadAggregate struct {
	ID             string
	WorkspaceID    string
	Email          string
	FirstName      string
	Answers        triage.LeadAnswers
	Triage         triage.Result
	Status         LeadStatus
	UploadStatus   UploadStatus
	InternalNotes  string
	AnalysisDraft  string
	AnalysisSentAt *time.Time
	LeadTokenHash  string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Upload is an audit file stored in object storage.
type Upload struct {
	ID          string
	WorkspaceID string
	LeadID      string
	FileName    string
	MimeType    string
	SizeBytes   int64
	StorageKey  string
	Status      string
	CreatedAt   time.Time
}

// LeadPatch carries the console-editable fields. Nil fields are left untouched.
type LeadPatch struct {
	Notes  *string
	Status *LeadStatus
}

// Empty reports whether the patch changes nothing.
func (p LeadPatch) Empty() bool {
	return p.Notes == nil && p.Status == nil
}

// Cursor models the keyset pagination token for lead listings.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}
