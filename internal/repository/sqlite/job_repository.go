package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"crypto-wallet/internal/domain"
	"crypto-wallet/internal/repository"
)

const createJobsTable = `
CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	user_id TEXT NOT NULL,
	status TEXT NOT NULL,
	attempts INTEGER NOT NULL DEFAULT 0,
	last_error TEXT NOT NULL DEFAULT '',
	next_run_at DATETIME NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_status_next_run ON jobs (status, next_run_at);
`

const jobColumns = `id, kind, user_id, status, attempts, last_error, next_run_at, created_at, updated_at`

type JobRepository struct {
	db *sql.DB
}

func NewJobRepository(db *sql.DB) repository.JobRepository {
	return &JobRepository{db: db}
}

func (r *JobRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createJobsTable); err != nil {
		return fmt.Errorf("create jobs table: %w", err)
	}
	return nil
}

func (r *JobRepository) Create(ctx context.Context, job *domain.Job) error {
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now
	if job.NextRunAt.IsZero() {
		job.NextRunAt = now
	}

	_, err := r.db.ExecContext(ctx, `
INSERT INTO jobs (`+jobColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID,
		job.Kind,
		job.UserID,
		job.Status,
		job.Attempts,
		job.LastError,
		job.NextRunAt,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	return scanJob(row)
}

func (r *JobRepository) Due(ctx context.Context, now time.Time, limit int) ([]domain.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+jobColumns+` FROM jobs
WHERE status = ? AND next_run_at <= ?
ORDER BY next_run_at
LIMIT ?`,
		domain.JobStatusPending, now.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("list due jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func (r *JobRepository) Update(ctx context.Context, job *domain.Job) error {
	job.UpdatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx, `
UPDATE jobs SET
	status = ?,
	attempts = ?,
	last_error = ?,
	next_run_at = ?,
	updated_at = ?
WHERE id = ?`,
		job.Status,
		job.Attempts,
		job.LastError,
		job.NextRunAt,
		job.UpdatedAt,
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

func (r *JobRepository) ResetRunning(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE jobs SET status = ?, updated_at = ? WHERE status = ?`,
		domain.JobStatusPending, time.Now().UTC(), domain.JobStatusRunning)
	if err != nil {
		return fmt.Errorf("reset running jobs: %w", err)
	}
	return nil
}

func scanJob(row interface {
	Scan(dest ...any) error
}) (*domain.Job, error) {
	var job domain.Job
	if err := row.Scan(
		&job.ID,
		&job.Kind,
		&job.UserID,
		&job.Status,
		&job.Attempts,
		&job.LastError,
		&job.NextRunAt,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}
	return &job, nil
}
