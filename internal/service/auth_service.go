package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"crypto-wallet/internal/domain"
	"crypto-wallet/internal/mailer"
	"crypto-wallet/internal/repository"
	"crypto-wallet/internal/token"
	"crypto-wallet/internal/wallet"
)

const (
	bcryptCost  = 12
	minPassword = 8

	// opaqueTokenTTL bounds reset and verification tokens.
	opaqueTokenTTL = 10 * time.Minute

	// passwordChangeSkew backdates PasswordChangedAt so a session token
	// issued in the same second as the change still validates.
	passwordChangeSkew = time.Second
)

// JobQueue enqueues background work; signup must not block on email delivery
// or wallet provisioning.
type JobQueue interface {
	Enqueue(ctx context.Context, kind domain.JobKind, userID string) error
}

// SignupInput carries the signup form fields.
type SignupInput struct {
	UserName        string
	Email           string
	Password        string
	PasswordConfirm string
	Balance         float64
}

// AuthService drives the credential and token lifecycle: signup, login,
// email verification, password reset and change, and session authentication.
type AuthService interface {
	Signup(ctx context.Context, in SignupInput) (*domain.User, string, error)
	Login(ctx context.Context, email, password string) (*domain.User, string, error)
	VerifyEmail(ctx context.Context, plainToken string) (*domain.User, string, error)
	ResendVerification(ctx context.Context, email, verifyURLBase string) error
	ForgotPassword(ctx context.Context, email, resetURLBase string) error
	ResetPassword(ctx context.Context, plainToken, password, passwordConfirm string) (*domain.User, string, error)
	UpdatePassword(ctx context.Context, userID, currentPassword, password, passwordConfirm string) (*domain.User, string, error)
	RestoreWallet(ctx context.Context, mnemonic string) (*domain.User, string, error)
	AuthenticateToken(ctx context.Context, tokenString string) (*domain.User, error)
}

type authService struct {
	users  repository.UserRepository
	codec  *token.Codec
	queue  JobQueue
	mail   mailer.Sender
	wallet wallet.Generator
	logger *logrus.Logger
}

func NewAuthService(
	users repository.UserRepository,
	codec *token.Codec,
	queue JobQueue,
	mail mailer.Sender,
	walletGen wallet.Generator,
	logger *logrus.Logger,
) AuthService {
	if logger == nil {
		logger = logrus.New()
	}
	return &authService{
		users:  users,
		codec:  codec,
		queue:  queue,
		mail:   mail,
		wallet: walletGen,
		logger: logger,
	}
}

func (s *authService) Signup(ctx context.Context, in SignupInput) (*domain.User, string, error) {
	userName := strings.TrimSpace(in.UserName)
	if userName == "" {
		return nil, "", invalidInput("please tell us your name")
	}
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, "", err
	}
	if err := validatePassword(in.Password, in.PasswordConfirm); err != nil {
		return nil, "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcryptCost)
	if err != nil {
		return nil, "", fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		ID:           uuid.NewString(),
		UserName:     userName,
		Email:        email,
		PasswordHash: string(hash),
		Balance:      in.Balance,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, "", ErrEmailTaken
		}
		return nil, "", err
	}

	signed, err := s.codec.IssueSession(user.ID)
	if err != nil {
		return nil, "", err
	}

	// Verification email and wallet provisioning run as retried background
	// jobs; signup responds without waiting for either.
	if err := s.queue.Enqueue(ctx, domain.JobKindVerificationEmail, user.ID); err != nil {
		s.logger.WithError(err).WithField("user_id", user.ID).Warn("enqueue verification email")
	}
	if err := s.queue.Enqueue(ctx, domain.JobKindWalletProvision, user.ID); err != nil {
		s.logger.WithError(err).WithField("user_id", user.ID).Warn("enqueue wallet provisioning")
	}

	return user, signed, nil
}

func (s *authService) Login(ctx context.Context, email, password string) (*domain.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, "", invalidInput("please provide email and password")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, "", ErrInvalidCredentials
	}

	signed, err := s.codec.IssueSession(user.ID)
	if err != nil {
		return nil, "", err
	}
	return user, signed, nil
}

func (s *authService) VerifyEmail(ctx context.Context, plainToken string) (*domain.User, string, error) {
	user, err := s.users.GetByVerificationDigest(ctx, token.Digest(plainToken), time.Now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, "", ErrInvalidOrExpiredToken
		}
		return nil, "", err
	}

	if err := s.users.MarkEmailVerified(ctx, user.ID); err != nil {
		return nil, "", err
	}
	user.EmailVerified = true
	user.ClearEmailVerification()

	signed, err := s.codec.IssueSession(user.ID)
	if err != nil {
		return nil, "", err
	}
	return user, signed, nil
}

func (s *authService) ResendVerification(ctx context.Context, email, verifyURLBase string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNoSuchUser
		}
		return err
	}
	if user.EmailVerified {
		return invalidInput("email address is already verified")
	}

	plain, digest, err := token.NewOpaque()
	if err != nil {
		return err
	}
	expires := time.Now().UTC().Add(opaqueTokenTTL)
	if err := s.users.SetVerificationToken(ctx, user.ID, digest, &expires); err != nil {
		return err
	}

	msg := mailer.Message{
		To:      user.Email,
		Subject: "Your email verification token (valid for 10 min)",
		Body: fmt.Sprintf("Welcome to your wallet! Submit a PATCH request by clicking the following URL: %s/verifyEmail/%s\n"+
			"If you didn't sign up, please ignore this email!", verifyURLBase, plain),
	}
	if err := s.mail.Send(ctx, msg); err != nil {
		s.logger.WithError(err).WithField("user_id", user.ID).Error("send verification email")
		if uerr := s.users.SetVerificationToken(ctx, user.ID, "", nil); uerr != nil {
			s.logger.WithError(uerr).WithField("user_id", user.ID).Error("roll back verification token")
		}
		return ErrEmailDelivery
	}
	return nil
}

func (s *authService) ForgotPassword(ctx context.Context, email, resetURLBase string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNoSuchUser
		}
		return err
	}

	plain, digest, err := token.NewOpaque()
	if err != nil {
		return err
	}
	expires := time.Now().UTC().Add(opaqueTokenTTL)

	// Persist the token before dispatching mail; a crash in between leaves a
	// token the user can simply re-request.
	if err := s.users.SetPasswordResetToken(ctx, user.ID, digest, &expires); err != nil {
		return err
	}

	msg := mailer.Message{
		To:      user.Email,
		Subject: "Your password reset token (valid for 10 min)",
		Body: fmt.Sprintf("Forgot your password? Submit a PATCH request with your new password and passwordConfirm to: %s/resetPassword/%s\n"+
			"If you didn't forget your password, please ignore this email!", resetURLBase, plain),
	}
	if err := s.mail.Send(ctx, msg); err != nil {
		s.logger.WithError(err).WithField("user_id", user.ID).Error("send password reset email")
		if uerr := s.users.SetPasswordResetToken(ctx, user.ID, "", nil); uerr != nil {
			s.logger.WithError(uerr).WithField("user_id", user.ID).Error("roll back reset token")
		}
		return ErrEmailDelivery
	}
	return nil
}

func (s *authService) ResetPassword(ctx context.Context, plainToken, password, passwordConfirm string) (*domain.User, string, error) {
	user, err := s.users.GetByResetDigest(ctx, token.Digest(plainToken), time.Now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, "", ErrInvalidOrExpiredToken
		}
		return nil, "", err
	}

	if err := s.changePassword(ctx, user, password, passwordConfirm); err != nil {
		return nil, "", err
	}

	signed, err := s.codec.IssueSession(user.ID)
	if err != nil {
		return nil, "", err
	}
	return user, signed, nil
}

func (s *authService) UpdatePassword(ctx context.Context, userID, currentPassword, password, passwordConfirm string) (*domain.User, string, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, "", err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(currentPassword)) != nil {
		return nil, "", ErrInvalidCredentials
	}

	if err := s.changePassword(ctx, user, password, passwordConfirm); err != nil {
		return nil, "", err
	}

	signed, err := s.codec.IssueSession(user.ID)
	if err != nil {
		return nil, "", err
	}
	return user, signed, nil
}

func (s *authService) RestoreWallet(ctx context.Context, mnemonic string) (*domain.User, string, error) {
	acct, err := s.wallet.Restore(mnemonic)
	if err != nil {
		return nil, "", invalidInput("seed phrase is not valid")
	}

	user, err := s.users.GetByWalletAddress(ctx, acct.Address)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, "", ErrNoSuchUser
		}
		return nil, "", err
	}
	return user, acct.Address, nil
}

func (s *authService) AuthenticateToken(ctx context.Context, tokenString string) (*domain.User, error) {
	userID, issuedAt, err := s.codec.VerifySession(tokenString)
	if err != nil {
		return nil, ErrUnauthenticated
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, err
	}
	if user.PasswordChangedAfter(issuedAt) {
		return nil, ErrStaleToken
	}
	return user, nil
}

// changePassword validates and re-hashes the password, backdating
// PasswordChangedAt slightly so tokens issued in the same instant stay valid.
// SetPassword also clears any pending reset token, so a consumed token cannot
// be replayed.
func (s *authService) changePassword(ctx context.Context, user *domain.User, password, passwordConfirm string) error {
	if err := validatePassword(password, passwordConfirm); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	changedAt := time.Now().UTC().Add(-passwordChangeSkew)
	if err := s.users.SetPassword(ctx, user.ID, string(hash), changedAt); err != nil {
		return err
	}
	user.PasswordHash = string(hash)
	user.PasswordChangedAt = &changedAt
	user.ClearPasswordReset()
	return nil
}

func validatePassword(password, passwordConfirm string) error {
	if len(password) < minPassword {
		return invalidInput("password must be at least %d characters", minPassword)
	}
	if password != passwordConfirm {
		return invalidInput("passwords are not the same")
	}
	return nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", invalidInput("please provide your email")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", invalidInput("please provide a valid email")
	}
	return email, nil
}
