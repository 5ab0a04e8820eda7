package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto-wallet/internal/domain"
	"crypto-wallet/internal/repository"
)

func newJobRepo(t *testing.T) repository.JobRepository {
	t.Helper()

	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := NewJobRepository(db)
	require.NoError(t, repo.Init(context.Background()))
	return repo
}

func TestJobDueOrderingAndFiltering(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := newJobRepo(t)
	now := time.Now().UTC()

	late := &domain.Job{ID: uuid.NewString(), Kind: domain.JobKindWalletProvision, UserID: "u1",
		Status: domain.JobStatusPending, NextRunAt: now.Add(-time.Minute)}
	early := &domain.Job{ID: uuid.NewString(), Kind: domain.JobKindVerificationEmail, UserID: "u1",
		Status: domain.JobStatusPending, NextRunAt: now.Add(-time.Hour)}
	future := &domain.Job{ID: uuid.NewString(), Kind: domain.JobKindVerificationEmail, UserID: "u2",
		Status: domain.JobStatusPending, NextRunAt: now.Add(time.Hour)}
	done := &domain.Job{ID: uuid.NewString(), Kind: domain.JobKindWalletProvision, UserID: "u2",
		Status: domain.JobStatusDone, NextRunAt: now.Add(-time.Hour)}

	for _, job := range []*domain.Job{late, early, future, done} {
		require.NoError(t, repo.Create(ctx, job))
	}

	due, err := repo.Due(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 2, "future and finished jobs are not due")
	assert.Equal(t, early.ID, due[0].ID, "oldest first")
	assert.Equal(t, late.ID, due[1].ID)
}

func TestJobUpdate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := newJobRepo(t)

	job := &domain.Job{ID: uuid.NewString(), Kind: domain.JobKindWalletProvision, UserID: "u1",
		Status: domain.JobStatusPending}
	require.NoError(t, repo.Create(ctx, job))

	job.Status = domain.JobStatusFailed
	job.Attempts = 5
	job.LastError = "boom"
	require.NoError(t, repo.Update(ctx, job))

	got, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, got.Status)
	assert.Equal(t, 5, got.Attempts)
	assert.Equal(t, "boom", got.LastError)
}

func TestJobResetRunning(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := newJobRepo(t)
	now := time.Now().UTC()

	running := &domain.Job{ID: uuid.NewString(), Kind: domain.JobKindWalletProvision, UserID: "u1",
		Status: domain.JobStatusRunning, NextRunAt: now.Add(-time.Minute)}
	require.NoError(t, repo.Create(ctx, running))

	require.NoError(t, repo.ResetRunning(ctx))

	due, err := repo.Due(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, running.ID, due[0].ID)
}
