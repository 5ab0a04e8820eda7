package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"crypto-wallet/internal/domain"
	"crypto-wallet/internal/mailer"
	"crypto-wallet/internal/repository"
)

// ProfileUpdate is the typed partial update for /updateMe; only these two
// fields are user mutable.
type ProfileUpdate struct {
	UserName *string
	Email    *string
}

// UserService covers the non-credential user operations.
type UserService interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByWalletAddress(ctx context.Context, address string) (*domain.User, error)
	List(ctx context.Context) ([]domain.User, error)
	UpdateMe(ctx context.Context, userID string, update ProfileUpdate) (*domain.User, error)
	Transfer(ctx context.Context, senderID, recipientEmail string, amount float64) (*domain.User, error)
}

type userService struct {
	users  repository.UserRepository
	mail   mailer.Sender
	logger *logrus.Logger
}

func NewUserService(users repository.UserRepository, mail mailer.Sender, logger *logrus.Logger) UserService {
	if logger == nil {
		logger = logrus.New()
	}
	return &userService{users: users, mail: mail, logger: logger}
}

func (s *userService) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *userService) GetByWalletAddress(ctx context.Context, address string) (*domain.User, error) {
	user, err := s.users.GetByWalletAddress(ctx, strings.ToLower(strings.TrimSpace(address)))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNoSuchUser
		}
		return nil, err
	}
	return user, nil
}

func (s *userService) List(ctx context.Context) ([]domain.User, error) {
	return s.users.List(ctx)
}

func (s *userService) UpdateMe(ctx context.Context, userID string, update ProfileUpdate) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if update.UserName != nil {
		name := strings.TrimSpace(*update.UserName)
		if name == "" {
			return nil, invalidInput("please tell us your name")
		}
		user.UserName = name
	}
	if update.Email != nil {
		email, err := normalizeEmail(*update.Email)
		if err != nil {
			return nil, err
		}
		if email != user.Email {
			user.Email = email
			// A new address has not been through verification yet.
			user.EmailVerified = false
		}
	}

	if err := s.users.UpdateProfile(ctx, user.ID, user.UserName, user.Email, user.EmailVerified); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	return user, nil
}

func (s *userService) Transfer(ctx context.Context, senderID, recipientEmail string, amount float64) (*domain.User, error) {
	if amount <= 0 {
		return nil, invalidInput("transfer amount must be positive")
	}

	sender, err := s.users.GetByID(ctx, senderID)
	if err != nil {
		return nil, err
	}
	recipient, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(recipientEmail)))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNoSuchUser
		}
		return nil, err
	}
	if recipient.ID == sender.ID {
		return nil, invalidInput("cannot transfer to yourself")
	}

	// debit and credit commit together; the overdraft check happens inside
	// the same transaction so concurrent transfers cannot double-spend
	if err := s.users.Transfer(ctx, sender.ID, recipient.ID, amount); err != nil {
		if errors.Is(err, repository.ErrInsufficientBalance) {
			return nil, ErrInsufficientBalance
		}
		return nil, err
	}
	sender.Balance -= amount
	recipient.Balance += amount

	msg := mailer.Message{
		To:      recipient.Email,
		Subject: "Transaction successful!",
		Body: fmt.Sprintf("Your account received a transfer of %.2f from %s.\nYour new balance is %.2f.",
			amount, sender.Email, recipient.Balance),
	}
	if err := s.mail.Send(ctx, msg); err != nil {
		// confirmation mail is best effort
		s.logger.WithError(err).WithField("user_id", recipient.ID).Warn("send transfer confirmation")
	}

	return sender, nil
}
