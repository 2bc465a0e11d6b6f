package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/lalithlochan/cadence/internal/campaign"
)

// ErrSubjectNotFound is returned by reads for unknown subject IDs.
var ErrSubjectNotFound = errors.New("campaign subject not found")

const subjectColumns = `
	id, campaign_type, status, stage_cursor, last_stage_fired_at,
	appointment_at, customer_name, email, phone, service_type,
	service_address, preferred_time, estimated_price, reference,
	created_at, updated_at
`

// SubjectStore implements the scheduler's store contract against
// Postgres. The conditional advance is the only write path the
// scheduler uses; enrollment and skip come from the admin API.
type SubjectStore struct {
	db     *DB
	logger *zap.Logger
}

// NewSubjectStore creates a subject store.
func NewSubjectStore(db *DB, logger *zap.Logger) *SubjectStore {
	return &SubjectStore{
		db:     db,
		logger: logger,
	}
}

func scanSubject(row pgx.Row) (*CampaignSubject, error) {
	var s CampaignSubject
	err := row.Scan(
		&s.ID,
		&s.CampaignType,
		&s.Status,
		&s.StageCursor,
		&s.LastStageFiredAt,
		&s.AppointmentAt,
		&s.CustomerName,
		&s.Email,
		&s.Phone,
		&s.ServiceType,
		&s.ServiceAddress,
		&s.PreferredTime,
		&s.EstimatedPrice,
		&s.Reference,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// FetchActive returns every non-terminal subject for a campaign type.
// Terminal exclusion happens server-side so the candidate set is exact.
func (r *SubjectStore) FetchActive(ctx context.Context, campaignType string, now time.Time) ([]campaign.Subject, error) {
	query := `
		SELECT ` + subjectColumns + `
		FROM campaign_subjects
		WHERE campaign_type = $1 AND status = $2 AND created_at <= $3
		ORDER BY created_at ASC
	`

	rows, err := r.db.Pool().Query(ctx, query, campaignType, string(campaign.StatusActive), now)
	if err != nil {
		return nil, fmt.Errorf("query active subjects: %w", err)
	}
	defer rows.Close()

	var subjects []campaign.Subject
	for rows.Next() {
		s, err := scanSubject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subject: %w", err)
		}
		subjects = append(subjects, s.ToCampaign())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subjects: %w", err)
	}

	return subjects, nil
}

// Advance performs the conditional state transition: a single UPDATE
// guarded by the expected cursor, so the cursor and last_stage_fired_at
// change atomically and at most one concurrent caller wins. Zero rows
// affected means another process advanced the subject first.
func (r *SubjectStore) Advance(ctx context.Context, id uuid.UUID, expectedCursor, newCursor int, newStatus campaign.Status, firedAt time.Time) error {
	query := `
		UPDATE campaign_subjects
		SET stage_cursor = $3,
		    status = $4,
		    last_stage_fired_at = CASE WHEN $3 > $2 THEN $5 ELSE last_stage_fired_at END,
		    updated_at = NOW()
		WHERE id = $1 AND stage_cursor = $2 AND status = $6
	`

	result, err := r.db.Pool().Exec(ctx, query,
		id, expectedCursor, newCursor, string(newStatus), firedAt, string(campaign.StatusActive),
	)
	if err != nil {
		r.logger.Error("advance write failed",
			zap.Error(err),
			zap.String("subject_id", id.String()),
			zap.Int("expected_cursor", expectedCursor),
		)
		return fmt.Errorf("advance subject: %w", err)
	}

	if result.RowsAffected() == 0 {
		return campaign.ErrAdvanceConflict
	}

	return nil
}

// Enroll inserts a new active subject at cursor 0. Appointment-anchored
// campaigns must carry an appointment time; the caller validates the
// campaign type against the registry.
func (r *SubjectStore) Enroll(ctx context.Context, sub *CampaignSubject) error {
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	sub.Status = string(campaign.StatusActive)
	sub.StageCursor = 0

	query := `
		INSERT INTO campaign_subjects (
			id, campaign_type, status, stage_cursor, appointment_at,
			customer_name, email, phone, service_type, service_address,
			preferred_time, estimated_price, reference
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at
	`

	err := r.db.Pool().QueryRow(ctx, query,
		sub.ID,
		sub.CampaignType,
		sub.Status,
		sub.StageCursor,
		sub.AppointmentAt,
		sub.CustomerName,
		sub.Email,
		sub.Phone,
		sub.ServiceType,
		sub.ServiceAddress,
		sub.PreferredTime,
		sub.EstimatedPrice,
		sub.Reference,
	).Scan(&sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		r.logger.Error("failed to enroll subject",
			zap.Error(err),
			zap.String("subject_id", sub.ID.String()),
			zap.String("campaign", sub.CampaignType),
		)
		return fmt.Errorf("insert subject: %w", err)
	}

	r.logger.Info("subject enrolled",
		zap.String("subject_id", sub.ID.String()),
		zap.String("campaign", sub.CampaignType),
	)
	return nil
}

// Skip marks an active subject as removed from its campaign by domain
// logic (e.g. the quote was booked). Skipped subjects never reappear in
// FetchActive. Skipping an already-terminal subject is a no-op conflict.
func (r *SubjectStore) Skip(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE campaign_subjects
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3
	`

	result, err := r.db.Pool().Exec(ctx, query,
		id, string(campaign.StatusSkipped), string(campaign.StatusActive),
	)
	if err != nil {
		return fmt.Errorf("skip subject: %w", err)
	}
	if result.RowsAffected() == 0 {
		return campaign.ErrAdvanceConflict
	}

	r.logger.Info("subject skipped", zap.String("subject_id", id.String()))
	return nil
}

// Get retrieves a subject row by ID.
func (r *SubjectStore) Get(ctx context.Context, id uuid.UUID) (*CampaignSubject, error) {
	query := `SELECT ` + subjectColumns + ` FROM campaign_subjects WHERE id = $1`

	s, err := scanSubject(r.db.Pool().QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSubjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query subject: %w", err)
	}
	return s, nil
}

// ListByCampaign retrieves subjects for a campaign type with
// pagination, newest first, regardless of status.
func (r *SubjectStore) ListByCampaign(ctx context.Context, campaignType string, limit, offset int) ([]*CampaignSubject, error) {
	query := `
		SELECT ` + subjectColumns + `
		FROM campaign_subjects
		WHERE campaign_type = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Pool().Query(ctx, query, campaignType, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query subjects: %w", err)
	}
	defer rows.Close()

	var subjects []*CampaignSubject
	for rows.Next() {
		s, err := scanSubject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subject: %w", err)
		}
		subjects = append(subjects, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subjects: %w", err)
	}

	return subjects, nil
}
