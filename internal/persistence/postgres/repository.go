package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dallylee/pt-authority-hub-landing/internal/domain"
	"github.com/dallylee/pt-authority-hub-landing/internal/events"
	"github.com/dallylee/pt-authority-hub-landing/internal/observability"
	"github.com/dallylee/pt-authority-hub-landing/internal/triage"
)

// Repository provides Postgres-backed persistence for leads, uploads and outbox events.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ domain.LeadRepository = (*Repository)(nil)

const leadColumns = `id, workspace_id, client_email, client_first_name, answers,
        triage_score, triage_segment, triage_fit_risk, triage_bottleneck, triage_confidence, triage_reasons, triage_breakdown,
        status, upload_status, internal_notes, analysis_draft, analysis_sent_at, lead_token_hash, created_at, updated_at`

// Create persists the lead and its lead.created outbox event inside a single transaction.
func (r *Repository) Create(ctx context.Context, lead domain.LeadAggregate) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if err = setWorkspace(ctx, tx, lead.WorkspaceID); err != nil {
		return err
	}

	insertLead := `INSERT INTO leads (` + leadColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`

	reasons := lead.Triage.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	breakdown := lead.Triage.Breakdown
	if breakdown == nil {
		breakdown = map[triage.Bottleneck]int{}
	}

	_, err = tx.Exec(ctx, insertLead,
		lead.ID,
		lead.WorkspaceID,
		lead.Email,
		lead.FirstName,
		lead.Answers,
		lead.Triage.Score.Score,
		string(lead.Triage.Segment),
		lead.Triage.FitRisk,
		string(lead.Triage.Bottleneck),
		string(lead.Triage.Confidence),
		reasons,
		breakdown,
		string(lead.Status),
		string(lead.UploadStatus),
		lead.InternalNotes,
		lead.AnalysisDraft,
		lead.AnalysisSentAt,
		lead.LeadTokenHash,
		lead.CreatedAt,
		lead.UpdatedAt,
	)
	if err != nil {
		return err
	}

	if err = r.insertOutbox(ctx, tx, outboxRecord{
		workspaceID:   lead.WorkspaceID,
		aggregateType: "lead",
		aggregateID:   lead.ID,
		eventType:     events.TypeLeadCreated,
	}, events.LeadCreated{
		LeadID:      lead.ID,
		WorkspaceID: lead.WorkspaceID,
		Email:       lead.Email,
		FirstName:   lead.FirstName,
		Answers:     answerMap(lead),
		Score:       lead.Triage.Score.Score,
		Segment:     string(lead.Triage.Segment),
		FitRisk:     lead.Triage.FitRisk,
		Bottleneck:  string(lead.Triage.Bottleneck),
		Confidence:  string(lead.Triage.Confidence),
		Reasons:     reasons,
		CreatedAt:   lead.CreatedAt,
	}); err != nil {
		return err
	}

	err = tx.Commit(ctx)
	if err != nil {
		return err
	}
	observability.RecordLeadPersisted(lead.UpdatedAt)
	return nil
}

// Get retrieves a lead by ID. A missing lead yields (nil, nil).
func (r *Repository) Get(ctx context.Context, workspaceID, leadID string) (*domain.LeadAggregate, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE workspace_id=$1 AND id=$2`

	var lead *domain.LeadAggregate
	err := r.inWorkspace(ctx, workspaceID, func(tx pgx.Tx) error {
		agg, err := scanLead(tx.QueryRow(ctx, query, workspaceID, leadID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			return err
		}
		lead = agg
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lead, nil
}

// List returns leads newest first. The next cursor is set when a full page was read.
func (r *Repository) List(ctx context.Context, workspaceID string, cursor *domain.Cursor, limit int) ([]domain.LeadAggregate, *domain.Cursor, error) {
	args := []interface{}{workspaceID, limit}
	query := `SELECT ` + leadColumns + ` FROM leads WHERE workspace_id=$1`

	if cursor != nil {
		query += ` AND (created_at, id) < ($3, $4)`
		args = append(args, cursor.CreatedAt, cursor.ID)
	}

	query += ` ORDER BY created_at DESC, id DESC LIMIT $2`

	results := make([]domain.LeadAggregate, 0, limit)
	err := r.inWorkspace(ctx, workspaceID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			agg, err := scanLead(rows)
			if err != nil {
				return err
			}
			results = append(results, *agg)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, nil, err
	}

	var nextCursor *domain.Cursor
	if len(results) == limit && limit > 0 {
		last := results[len(results)-1]
		nextCursor = &domain.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}

	return results, nextCursor, nil
}

// Update applies the non-nil patch fields and reports whether the lead exists.
func (r *Repository) Update(ctx context.Context, workspaceID, leadID string, patch domain.LeadPatch) (bool, error) {
	var status interface{}
	if patch.Status != nil {
		status = string(*patch.Status)
	}

	const stmt = `UPDATE leads SET
            internal_notes = COALESCE($3, internal_notes),
            status = COALESCE($4, status),
            updated_at = NOW()
        WHERE workspace_id=$1 AND id=$2`

	var found bool
	err := r.inWorkspace(ctx, workspaceID, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, stmt, workspaceID, leadID, patch.Notes, status)
		if err != nil {
			return err
		}
		found = tag.RowsAffected() > 0
		return nil
	})
	return found, err
}

// FindByTokenHash resolves a hashed lead token. An unknown hash yields "".
func (r *Repository) FindByTokenHash(ctx context.Context, workspaceID, tokenHash string) (string, error) {
	const query = `SELECT id FROM leads WHERE workspace_id=$1 AND lead_token_hash=$2`

	var leadID string
	err := r.inWorkspace(ctx, workspaceID, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, query, workspaceID, tokenHash).Scan(&leadID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			return err
		}
		return nil
	})
	return leadID, err
}

// CreateUpload stores the upload row, flags the linked lead and records the
// upload.received outbox event in one transaction.
func (r *Repository) CreateUpload(ctx context.Context, upload domain.Upload) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if err = setWorkspace(ctx, tx, upload.WorkspaceID); err != nil {
		return err
	}

	const insertUpload = `INSERT INTO uploads (id, workspace_id, lead_id, file_name, mime_type, file_size_bytes, storage_key, status, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	_, err = tx.Exec(ctx, insertUpload,
		upload.ID,
		upload.WorkspaceID,
		nullIfEmpty(upload.LeadID),
		upload.FileName,
		upload.MimeType,
		upload.SizeBytes,
		upload.StorageKey,
		upload.Status,
		upload.CreatedAt,
	)
	if err != nil {
		return err
	}

	if upload.LeadID != "" {
		const markLead = `UPDATE leads SET upload_status=$3, updated_at=NOW() WHERE workspace_id=$1 AND id=$2`
		if _, err = tx.Exec(ctx, markLead, upload.WorkspaceID, upload.LeadID, string(domain.UploadStatusReceived)); err != nil {
			return err
		}
	}

	if err = r.insertOutbox(ctx, tx, outboxRecord{
		workspaceID:   upload.WorkspaceID,
		aggregateType: "upload",
		aggregateID:   upload.ID,
		eventType:     events.TypeUploadReceived,
	}, events.UploadReceived{
		UploadID:    upload.ID,
		WorkspaceID: upload.WorkspaceID,
		LeadID:      upload.LeadID,
		FileName:    upload.FileName,
		MimeType:    upload.MimeType,
		SizeBytes:   upload.SizeBytes,
		StorageKey:  upload.StorageKey,
		CreatedAt:   upload.CreatedAt,
	}); err != nil {
		return err
	}

	err = tx.Commit(ctx)
	if err != nil {
		return err
	}
	observability.RecordUploadReceived(upload.SizeBytes)
	return nil
}

// ListUploads returns the lead's active uploads, newest first.
func (r *Repository) ListUploads(ctx context.Context, workspaceID, leadID string) ([]domain.Upload, error) {
	const query = `SELECT id, workspace_id, COALESCE(lead_id::text, ''), file_name, mime_type, file_size_bytes, storage_key, status, created_at
        FROM uploads WHERE workspace_id=$1 AND lead_id=$2 AND status=$3
        ORDER BY created_at DESC`

	var uploads []domain.Upload
	err := r.inWorkspace(ctx, workspaceID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, workspaceID, leadID, domain.UploadStateActive)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var u domain.Upload
			if err := rows.Scan(&u.ID, &u.WorkspaceID, &u.LeadID, &u.FileName, &u.MimeType, &u.SizeBytes, &u.StorageKey, &u.Status, &u.CreatedAt); err != nil {
				return err
			}
			uploads = append(uploads, u)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return uploads, nil
}

// MarkAnalysisSent stores the sent draft and moves the lead to ANALYSIS_SENT.
func (r *Repository) MarkAnalysisSent(ctx context.Context, workspaceID, leadID, draft string, sentAt time.Time) error {
	const stmt = `UPDATE leads SET analysis_draft=$3, analysis_sent_at=$4, status=$5, updated_at=$4
        WHERE workspace_id=$1 AND id=$2`

	return r.inWorkspace(ctx, workspaceID, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, stmt, workspaceID, leadID, draft, sentAt, string(domain.LeadStatusAnalysisSent))
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrLeadNotFound
		}
		return nil
	})
}

// BookingLink returns the workspace's discovery call URL, or "" when none is configured.
func (r *Repository) BookingLink(ctx context.Context, workspaceID string) (string, error) {
	const query = `SELECT COALESCE(booking_link_url, '') FROM workspaces WHERE id=$1`

	var link string
	if err := r.pool.QueryRow(ctx, query, workspaceID).Scan(&link); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return link, nil
}

// inWorkspace runs fn in a transaction scoped to the workspace's row-level security policy.
func (r *Repository) inWorkspace(ctx context.Context, workspaceID string, fn func(pgx.Tx) error) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := setWorkspace(ctx, tx, workspaceID); err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func setWorkspace(ctx context.Context, tx pgx.Tx, workspaceID string) error {
	_, err := tx.Exec(ctx, "SELECT set_config('app.workspace_id', $1, true)", workspaceID)
	return err
}

type outboxRecord struct {
	workspaceID   string
	aggregateType string
	aggregateID   string
	eventType     string
}

func (r *Repository) insertOutbox(ctx context.Context, tx pgx.Tx, rec outboxRecord, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta, ok := eventCatalog[rec.eventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", rec.eventType)
	}

	dedupeKey := fmt.Sprintf("%s:%s", rec.aggregateID, rec.eventType)

	const stmt = `INSERT INTO outbox (workspace_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	_, err = tx.Exec(ctx, stmt,
		rec.workspaceID,
		rec.aggregateType,
		rec.aggregateID,
		rec.eventType,
		meta.Topic,
		meta.SchemaSubject,
		meta.PartitionKeyFn(rec),
		body,
		dedupeKey,
	)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLead(row rowScanner) (*domain.LeadAggregate, error) {
	var (
		agg                             domain.LeadAggregate
		segment, bottleneck, confidence string
		status, uploadStatus            string
	)
	if err := row.Scan(
		&agg.ID, &agg.WorkspaceID, &agg.Email, &agg.FirstName, &agg.Answers,
		&agg.Triage.Score.Score, &segment, &agg.Triage.FitRisk, &bottleneck, &confidence, &agg.Triage.Reasons, &agg.Triage.Breakdown,
		&status, &uploadStatus, &agg.InternalNotes, &agg.AnalysisDraft, &agg.AnalysisSentAt, &agg.LeadTokenHash, &agg.CreatedAt, &agg.UpdatedAt,
	); err != nil {
		return nil, err
	}
	agg.Triage.Segment = triage.Segment(segment)
	agg.Triage.Bottleneck = triage.Bottleneck(bottleneck)
	agg.Triage.Confidence = triage.Confidence(confidence)
	agg.Status = domain.LeadStatus(status)
	agg.UploadStatus = domain.UploadStatus(uploadStatus)
	return &agg, nil
}

// answerMap flattens the stored answers into the string map carried by lead.created.
func answerMap(lead domain.LeadAggregate) map[string]string {
	out := map[string]string{}
	body, err := json.Marshal(lead.Answers)
	if err != nil {
		return out
	}
	_ = json.Unmarshal(body, &out)
	return out
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic          string
	SchemaSubject  string
	PartitionKeyFn func(outboxRecord) string
}

var eventCatalog = map[string]EventMetadata{
	events.TypeLeadCreated: {
		Topic:         "lead_events",
		SchemaSubject: "lead_events-value",
		PartitionKeyFn: func(r outboxRecord) string {
			return fmt.Sprintf("%s:%s", r.workspaceID, r.aggregateID)
		},
	},
	events.TypeUploadReceived: {
		Topic:         "upload_events",
		SchemaSubject: "upload_events-value",
		PartitionKeyFn: func(r outboxRecord) string {
			return r.workspaceID
		},
	},
}
