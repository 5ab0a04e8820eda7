package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"crypto-wallet/internal/domain"
	"crypto-wallet/internal/repository"
)

const createUsersTable = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	user_name TEXT NOT NULL,
	email TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	balance REAL NOT NULL DEFAULT 0,
	wallet_address TEXT NOT NULL DEFAULT '',
	password_changed_at DATETIME,
	password_reset_digest TEXT NOT NULL DEFAULT '',
	password_reset_expires_at DATETIME,
	email_verification_digest TEXT NOT NULL DEFAULT '',
	email_verification_expires DATETIME,
	email_verified INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
`

const userColumns = `id, user_name, email, password_hash, balance, wallet_address,
password_changed_at, password_reset_digest, password_reset_expires_at,
email_verification_digest, email_verification_expires, email_verified,
created_at, updated_at`

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) repository.UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createUsersTable); err != nil {
		return fmt.Errorf("create users table: %w", err)
	}
	return nil
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
INSERT INTO users (`+userColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.UserName,
		user.Email,
		user.PasswordHash,
		user.Balance,
		user.WalletAddress,
		nullTime(user.PasswordChangedAt),
		user.PasswordResetDigest,
		nullTime(user.PasswordResetExpiresAt),
		user.EmailVerificationDigest,
		nullTime(user.EmailVerificationExpires),
		user.EmailVerified,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicateEmail
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	return scanUser(row)
}

func (r *UserRepository) GetByWalletAddress(ctx context.Context, address string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+userColumns+` FROM users WHERE wallet_address = ?`, address)
	return scanUser(row)
}

func (r *UserRepository) GetByResetDigest(ctx context.Context, digest string, now time.Time) (*domain.User, error) {
	if digest == "" {
		return nil, repository.ErrNotFound
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+userColumns+` FROM users
WHERE password_reset_digest = ? AND password_reset_expires_at > ?`,
		digest, now.UTC())
	return scanUser(row)
}

func (r *UserRepository) GetByVerificationDigest(ctx context.Context, digest string, now time.Time) (*domain.User, error) {
	if digest == "" {
		return nil, repository.ErrNotFound
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+userColumns+` FROM users
WHERE email_verification_digest = ? AND email_verification_expires > ?`,
		digest, now.UTC())
	return scanUser(row)
}

func (r *UserRepository) UpdateProfile(ctx context.Context, id, userName, email string, emailVerified bool) error {
	return r.execRow(ctx, `
UPDATE users SET user_name = ?, email = ?, email_verified = ?, updated_at = ?
WHERE id = ?`,
		userName, email, emailVerified, time.Now().UTC(), id)
}

func (r *UserRepository) SetPassword(ctx context.Context, id, passwordHash string, changedAt time.Time) error {
	return r.execRow(ctx, `
UPDATE users SET
	password_hash = ?,
	password_changed_at = ?,
	password_reset_digest = '',
	password_reset_expires_at = NULL,
	updated_at = ?
WHERE id = ?`,
		passwordHash, changedAt.UTC(), time.Now().UTC(), id)
}

func (r *UserRepository) SetPasswordResetToken(ctx context.Context, id, digest string, expiresAt *time.Time) error {
	return r.execRow(ctx, `
UPDATE users SET password_reset_digest = ?, password_reset_expires_at = ?, updated_at = ?
WHERE id = ?`,
		digest, nullTime(expiresAt), time.Now().UTC(), id)
}

func (r *UserRepository) SetVerificationToken(ctx context.Context, id, digest string, expiresAt *time.Time) error {
	return r.execRow(ctx, `
UPDATE users SET email_verification_digest = ?, email_verification_expires = ?, updated_at = ?
WHERE id = ?`,
		digest, nullTime(expiresAt), time.Now().UTC(), id)
}

func (r *UserRepository) MarkEmailVerified(ctx context.Context, id string) error {
	return r.execRow(ctx, `
UPDATE users SET
	email_verified = 1,
	email_verification_digest = '',
	email_verification_expires = NULL,
	updated_at = ?
WHERE id = ?`,
		time.Now().UTC(), id)
}

func (r *UserRepository) SetWalletAddress(ctx context.Context, id, address string) error {
	return r.execRow(ctx, `
UPDATE users SET wallet_address = ?, updated_at = ?
WHERE id = ?`,
		address, time.Now().UTC(), id)
}

func (r *UserRepository) Transfer(ctx context.Context, senderID, recipientID string, amount float64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transfer: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	res, err := tx.ExecContext(ctx, `
UPDATE users SET balance = balance - ?, updated_at = ?
WHERE id = ? AND balance >= ?`,
		amount, now, senderID, amount)
	if err != nil {
		return fmt.Errorf("debit sender: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("debit sender rows affected: %w", err)
	}
	if affected == 0 {
		var balance float64
		err := tx.QueryRowContext(ctx, `SELECT balance FROM users WHERE id = ?`, senderID).Scan(&balance)
		if errors.Is(err, sql.ErrNoRows) {
			return repository.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("check sender balance: %w", err)
		}
		return repository.ErrInsufficientBalance
	}

	res, err = tx.ExecContext(ctx, `
UPDATE users SET balance = balance + ?, updated_at = ?
WHERE id = ?`,
		amount, now, recipientID)
	if err != nil {
		return fmt.Errorf("credit recipient: %w", err)
	}
	affected, err = res.RowsAffected()
	if err != nil {
		return fmt.Errorf("credit recipient rows affected: %w", err)
	}
	if affected == 0 {
		return repository.ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transfer: %w", err)
	}
	return nil
}

func (r *UserRepository) List(ctx context.Context) ([]domain.User, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+userColumns+` FROM users ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

// execRow runs a single-row update, mapping zero affected rows to ErrNotFound.
func (r *UserRepository) execRow(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicateEmail
		}
		return fmt.Errorf("update user: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user rows affected: %w", err)
	}
	if affected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "unique")
}

func scanUser(row interface {
	Scan(dest ...any) error
}) (*domain.User, error) {
	var (
		user                                           domain.User
		passwordChangedAt, resetExpires, verifyExpires sql.NullTime
	)
	if err := row.Scan(
		&user.ID,
		&user.UserName,
		&user.Email,
		&user.PasswordHash,
		&user.Balance,
		&user.WalletAddress,
		&passwordChangedAt,
		&user.PasswordResetDigest,
		&resetExpires,
		&user.EmailVerificationDigest,
		&verifyExpires,
		&user.EmailVerified,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	user.PasswordChangedAt = timePtr(passwordChangedAt)
	user.PasswordResetExpiresAt = timePtr(resetExpires)
	user.EmailVerificationExpires = timePtr(verifyExpires)
	return &user, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
