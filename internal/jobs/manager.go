package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"crypto-wallet/internal/domain"
	"crypto-wallet/internal/keystore"
	"crypto-wallet/internal/mailer"
	"crypto-wallet/internal/repository"
	"crypto-wallet/internal/token"
	"crypto-wallet/internal/wallet"
)

// Manager runs persisted background jobs (verification emails, wallet
// provisioning) with bounded concurrency and retry.
type Manager interface {
	Start(ctx context.Context) error
	Shutdown()
	Enqueue(ctx context.Context, kind domain.JobKind, userID string) error
	Resume(ctx context.Context) error
}

type Config struct {
	Workers      int
	PollInterval time.Duration
	MaxAttempts  int
	BackoffBase  time.Duration
	// VerifyURLBase is prepended to verification links, e.g.
	// "https://host/api/v1/users".
	VerifyURLBase  string
	VerifyTokenTTL time.Duration
	Logger         *logrus.Logger
}

type manager struct {
	cfg      Config
	jobs     repository.JobRepository
	users    repository.UserRepository
	wallet   wallet.Generator
	keystore keystore.Store
	mail     mailer.Sender

	sem    chan struct{}
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewManager(
	cfg Config,
	jobs repository.JobRepository,
	users repository.UserRepository,
	walletGen wallet.Generator,
	ks keystore.Store,
	mail mailer.Sender,
) Manager {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BackoffBase == 0 {
		cfg.BackoffBase = 30 * time.Second
	}
	if cfg.VerifyTokenTTL == 0 {
		cfg.VerifyTokenTTL = 10 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &manager{
		cfg:      cfg,
		jobs:     jobs,
		users:    users,
		wallet:   walletGen,
		keystore: ks,
		mail:     mail,
		sem:      make(chan struct{}, cfg.Workers),
	}
}

func (m *manager) Start(ctx context.Context) error {
	m.ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-m.ctx.Done():
				return
			case <-ticker.C:
				m.dispatchDue()
			}
		}
	}()

	m.cfg.Logger.Infof("job manager started, %d workers", m.cfg.Workers)
	return nil
}

func (m *manager) Shutdown() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	m.cfg.Logger.Info("job manager stopped")
}

func (m *manager) Enqueue(ctx context.Context, kind domain.JobKind, userID string) error {
	job := &domain.Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		UserID:    userID,
		Status:    domain.JobStatusPending,
		NextRunAt: time.Now().UTC(),
	}
	return m.jobs.Create(ctx, job)
}

// Resume recovers jobs that were mid-flight when the process last stopped.
func (m *manager) Resume(ctx context.Context) error {
	return m.jobs.ResetRunning(ctx)
}

func (m *manager) dispatchDue() {
	due, err := m.jobs.Due(m.ctx, time.Now().UTC(), cap(m.sem))
	if err != nil {
		m.cfg.Logger.WithError(err).Warn("list due jobs")
		return
	}
	for i := range due {
		m.spawnJob(due[i])
	}
}

func (m *manager) spawnJob(job domain.Job) {
	job.Status = domain.JobStatusRunning
	if err := m.jobs.Update(m.ctx, &job); err != nil {
		m.cfg.Logger.WithError(err).WithField("job_id", job.ID).Warn("mark job running")
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		select {
		case <-m.ctx.Done():
			return
		case m.sem <- struct{}{}:
			defer func() { <-m.sem }()
			m.runJob(job)
		}
	}()
}

func (m *manager) runJob(job domain.Job) {
	log := m.cfg.Logger.WithFields(logrus.Fields{
		"job_id":  job.ID,
		"kind":    job.Kind,
		"user_id": job.UserID,
		"attempt": job.Attempts + 1,
	})

	err := m.process(m.ctx, &job)
	job.Attempts++

	switch {
	case err == nil:
		job.Status = domain.JobStatusDone
		job.LastError = ""
		log.Info("job done")
	case job.Attempts >= m.cfg.MaxAttempts:
		job.Status = domain.JobStatusFailed
		job.LastError = err.Error()
		log.WithError(err).Error("job failed permanently")
	default:
		job.Status = domain.JobStatusPending
		job.LastError = err.Error()
		job.NextRunAt = time.Now().UTC().Add(m.backoff(job.Attempts))
		log.WithError(err).Warnf("job failed, retrying at %s", job.NextRunAt.Format(time.RFC3339))
	}

	if uerr := m.jobs.Update(m.ctx, &job); uerr != nil {
		log.WithError(uerr).Error("persist job state")
	}
}

// backoff doubles per attempt: base, 2*base, 4*base, ...
func (m *manager) backoff(attempts int) time.Duration {
	d := m.cfg.BackoffBase
	for i := 1; i < attempts; i++ {
		d *= 2
	}
	return d
}

func (m *manager) process(ctx context.Context, job *domain.Job) error {
	switch job.Kind {
	case domain.JobKindWalletProvision:
		return m.provisionWallet(ctx, job.UserID)
	case domain.JobKindVerificationEmail:
		return m.sendVerificationEmail(ctx, job.UserID)
	default:
		return fmt.Errorf("unknown job kind %q", job.Kind)
	}
}

// provisionWallet generates the user's first account, stores the encrypted
// key material, and links the address to the user record.
func (m *manager) provisionWallet(ctx context.Context, userID string) error {
	user, err := m.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if user.WalletAddress != "" {
		return nil
	}

	acct, err := m.wallet.Generate()
	if err != nil {
		return fmt.Errorf("generate account: %w", err)
	}
	if err := m.keystore.Put(ctx, user.ID, *acct); err != nil {
		return fmt.Errorf("store account: %w", err)
	}

	// targeted write: the verification email job may be touching the same
	// row concurrently
	if err := m.users.SetWalletAddress(ctx, user.ID, acct.Address); err != nil {
		return fmt.Errorf("link wallet address: %w", err)
	}
	return nil
}

// sendVerificationEmail issues a fresh opaque token, persists its digest and
// expiry, then dispatches the mail. On delivery failure the token fields are
// reverted so a retry issues a clean token.
func (m *manager) sendVerificationEmail(ctx context.Context, userID string) error {
	user, err := m.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if user.EmailVerified {
		return nil
	}

	plain, digest, err := token.NewOpaque()
	if err != nil {
		return err
	}
	expires := time.Now().UTC().Add(m.cfg.VerifyTokenTTL)
	if err := m.users.SetVerificationToken(ctx, user.ID, digest, &expires); err != nil {
		return fmt.Errorf("persist verification token: %w", err)
	}

	msg := mailer.Message{
		To:      user.Email,
		Subject: "Your email verification token (valid for 10 min)",
		Body: fmt.Sprintf("Welcome to your wallet! Submit a PATCH request by clicking the following URL: %s/verifyEmail/%s\n"+
			"If you didn't sign up, please ignore this email!", m.cfg.VerifyURLBase, plain),
	}
	if err := m.mail.Send(ctx, msg); err != nil {
		if uerr := m.users.SetVerificationToken(ctx, user.ID, "", nil); uerr != nil {
			m.cfg.Logger.WithError(uerr).WithField("user_id", user.ID).Error("roll back verification token")
		}
		return fmt.Errorf("send verification email: %w", err)
	}
	return nil
}
