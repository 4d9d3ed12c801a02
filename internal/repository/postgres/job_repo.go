package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"batchforge/internal/domain"
	"batchforge/internal/port"
)

type jobRepo struct {
	db *sqlx.DB
}

// NewJobRepo creates a new PostgreSQL-backed JobRepository.
func NewJobRepo(db *sqlx.DB) port.JobRepository {
	return &jobRepo{db: db}
}

func (r *jobRepo) Create(ctx context.Context, rec *domain.JobRecord) error {
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	query := `INSERT INTO batch_jobs
		(id, job_id, input_file_id, model, source_name, total_rows, skipped_rows,
		 record_count, notify_email, created_at, updated_at)
		VALUES (:id, :job_id, :input_file_id, :model, :source_name, :total_rows, :skipped_rows,
		 :record_count, :notify_email, :created_at, :updated_at)`

	if _, err := r.db.NamedExecContext(ctx, query, rec); err != nil {
		return fmt.Errorf("jobRepo.Create: %w", err)
	}
	return nil
}

func (r *jobRepo) GetByJobID(ctx context.Context, jobID string) (*domain.JobRecord, error) {
	var rec domain.JobRecord
	err := r.db.GetContext(ctx, &rec, "SELECT * FROM batch_jobs WHERE job_id = $1", jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("jobRepo.GetByJobID: %w", err)
	}
	return &rec, nil
}

func (r *jobRepo) List(ctx context.Context, offset, limit int) ([]domain.JobRecord, int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM batch_jobs"); err != nil {
		return nil, 0, fmt.Errorf("jobRepo.List count: %w", err)
	}

	recs := []domain.JobRecord{}
	err := r.db.SelectContext(ctx, &recs,
		"SELECT * FROM batch_jobs ORDER BY created_at DESC LIMIT $1 OFFSET $2", limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("jobRepo.List: %w", err)
	}
	return recs, total, nil
}

// MarkNotified stamps notified_at once. A job that is unknown or already
// stamped yields domain.ErrNotFound.
func (r *jobRepo) MarkNotified(ctx context.Context, jobID string, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE batch_jobs SET notified_at = $1, updated_at = $1 WHERE job_id = $2 AND notified_at IS NULL",
		at, jobID)
	if err != nil {
		return fmt.Errorf("jobRepo.MarkNotified: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}
