package repository

import (
	"context"
	"time"

	"crypto-wallet/internal/domain"
)

// JobRepository defines persistence operations for background jobs.
type JobRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, job *domain.Job) error
	GetByID(ctx context.Context, id string) (*domain.Job, error)
	// Due returns pending jobs whose NextRunAt is at or before now, oldest first.
	Due(ctx context.Context, now time.Time, limit int) ([]domain.Job, error)
	Update(ctx context.Context, job *domain.Job) error
	// ResetRunning moves jobs stuck in running back to pending, for crash recovery.
	ResetRunning(ctx context.Context) error
}
