package agenda

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const blockColumns = `id, professional_id, start_date::text, end_date::text, start_time, end_time,
		all_day, reason, recurrence, external_event_id, created_at`

// BlockStore provides CRUD operations for schedule_blocks.
type BlockStore struct {
	db DB
}

// NewBlockStore creates a new schedule block store.
func NewBlockStore(db DB) *BlockStore {
	return &BlockStore{db: db}
}

// Create inserts a new schedule block.
func (s *BlockStore) Create(ctx context.Context, b *ScheduleBlock) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	b.CreatedAt = time.Now().UTC()
	if b.Recurrence == "" {
		b.Recurrence = RecurrenceNone
	}
	if b.EndDate == "" {
		b.EndDate = b.StartDate
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO schedule_blocks (id, professional_id, start_date, end_date, start_time, end_time,
			all_day, reason, recurrence, external_event_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		b.ID, b.ProfessionalID, b.StartDate, b.EndDate, b.StartTime, b.EndTime,
		b.AllDay, b.Reason, string(b.Recurrence), b.ExternalEventID, b.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("agenda: create block: %w", err)
	}
	return nil
}

// GetByID returns a single block or ErrNotFound.
func (s *BlockStore) GetByID(ctx context.Context, id uuid.UUID) (*ScheduleBlock, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+blockColumns+`
		FROM schedule_blocks WHERE id = $1`, id)
	b, err := scanBlock(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("agenda: get block: %w", err)
	}
	return b, nil
}

// Delete removes a block.
func (s *BlockStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM schedule_blocks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("agenda: delete block: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByProfessional returns all blocks for a professional ordered by start date.
func (s *BlockStore) ListByProfessional(ctx context.Context, professionalID string) ([]ScheduleBlock, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+blockColumns+`
		FROM schedule_blocks
		WHERE professional_id = $1
		ORDER BY start_date ASC, start_time ASC NULLS FIRST`, professionalID)
	if err != nil {
		return nil, fmt.Errorf("agenda: list blocks: %w", err)
	}
	defer rows.Close()
	return scanBlocks(rows)
}

// Exists reports whether a block with the same content key already exists.
// The importer dedups by (professional, start date, start time, reason), not
// by remote event id: renaming a remote event creates a new block instead of
// updating the old one.
func (s *BlockStore) Exists(ctx context.Context, professionalID, startDate string, startTime *string, reason string) (bool, error) {
	var one int
	var err error
	if startTime == nil {
		err = s.db.QueryRow(ctx, `
			SELECT 1 FROM schedule_blocks
			WHERE professional_id = $1 AND start_date = $2 AND start_time IS NULL AND reason = $3
			LIMIT 1`, professionalID, startDate, reason).Scan(&one)
	} else {
		err = s.db.QueryRow(ctx, `
			SELECT 1 FROM schedule_blocks
			WHERE professional_id = $1 AND start_date = $2 AND start_time = $3 AND reason = $4
			LIMIT 1`, professionalID, startDate, *startTime, reason).Scan(&one)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("agenda: block exists: %w", err)
	}
	return true, nil
}

func scanBlock(row pgx.Row) (*ScheduleBlock, error) {
	var b ScheduleBlock
	var recurrence string
	err := row.Scan(
		&b.ID, &b.ProfessionalID, &b.StartDate, &b.EndDate, &b.StartTime, &b.EndTime,
		&b.AllDay, &b.Reason, &recurrence, &b.ExternalEventID, &b.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	b.Recurrence = Recurrence(recurrence)
	return &b, nil
}

func scanBlocks(rows pgx.Rows) ([]ScheduleBlock, error) {
	var out []ScheduleBlock
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, fmt.Errorf("agenda: scan block: %w", err)
		}
		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("agenda: scan blocks: %w", err)
	}
	return out, nil
}
