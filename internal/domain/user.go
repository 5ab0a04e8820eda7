package domain

import "time"

// User represents a wallet account holder.
type User struct {
	ID           string
	UserName     string
	Email        string
	PasswordHash string
	Balance      float64

	WalletAddress string

	PasswordChangedAt        *time.Time
	PasswordResetDigest      string
	PasswordResetExpiresAt   *time.Time
	EmailVerificationDigest  string
	EmailVerificationExpires *time.Time
	EmailVerified            bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ClearPasswordReset drops the reset token pair; the two fields always move together.
func (u *User) ClearPasswordReset() {
	u.PasswordResetDigest = ""
	u.PasswordResetExpiresAt = nil
}

// ClearEmailVerification drops the verification token pair.
func (u *User) ClearEmailVerification() {
	u.EmailVerificationDigest = ""
	u.EmailVerificationExpires = nil
}

// PasswordChangedAfter reports whether the password was mutated after the
// given instant. Tokens issued before a password change are rejected.
func (u *User) PasswordChangedAfter(t time.Time) bool {
	if u.PasswordChangedAt == nil {
		return false
	}
	return t.Before(*u.PasswordChangedAt)
}
