package repository

import (
	"context"
	"errors"
	"time"

	"crypto-wallet/internal/domain"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// ErrDuplicateEmail is returned when a write violates email uniqueness.
var ErrDuplicateEmail = errors.New("email already registered")

// ErrInsufficientBalance is returned when a transfer would overdraw the sender.
var ErrInsufficientBalance = errors.New("insufficient balance")

// UserRepository defines persistence operations for User entities.
//
// Mutations are targeted: each writer touches only its own columns, so
// concurrent writers to the same row (background jobs, request handlers)
// cannot erase each other's fields.
type UserRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByWalletAddress(ctx context.Context, address string) (*domain.User, error)
	// GetByResetDigest only returns users whose reset token has not expired at now.
	GetByResetDigest(ctx context.Context, digest string, now time.Time) (*domain.User, error)
	// GetByVerificationDigest only returns users whose verification token has not expired at now.
	GetByVerificationDigest(ctx context.Context, digest string, now time.Time) (*domain.User, error)
	UpdateProfile(ctx context.Context, id, userName, email string, emailVerified bool) error
	// SetPassword replaces the password hash and clears any pending reset
	// token in the same statement, so a consumed token dies with the change.
	SetPassword(ctx context.Context, id, passwordHash string, changedAt time.Time) error
	// SetPasswordResetToken writes the digest and expiry together; an empty
	// digest with a nil expiry clears the pair.
	SetPasswordResetToken(ctx context.Context, id, digest string, expiresAt *time.Time) error
	// SetVerificationToken behaves like SetPasswordResetToken for the email
	// verification pair.
	SetVerificationToken(ctx context.Context, id, digest string, expiresAt *time.Time) error
	// MarkEmailVerified flips the flag and clears the verification token pair
	// in one statement, making the token single use.
	MarkEmailVerified(ctx context.Context, id string) error
	SetWalletAddress(ctx context.Context, id, address string) error
	// Transfer debits the sender and credits the recipient in a single
	// transaction; either both balances move or neither does.
	Transfer(ctx context.Context, senderID, recipientID string, amount float64) error
	List(ctx context.Context) ([]domain.User, error)
}
