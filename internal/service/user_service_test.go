package service

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto-wallet/internal/domain"
	"crypto-wallet/internal/repository"
)

type userFixture struct {
	svc  UserService
	auth *authFixture
	mail *recorderMailer
}

func newUserFixture(t *testing.T) *userFixture {
	t.Helper()
	auth := newAuthFixture(t)
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return &userFixture{
		svc:  NewUserService(auth.users, auth.mail, logger),
		auth: auth,
		mail: auth.mail,
	}
}

func (f *userFixture) signup(t *testing.T, name, email string, balance float64) *domain.User {
	t.Helper()
	user, _, err := f.auth.svc.Signup(context.Background(), SignupInput{
		UserName:        name,
		Email:           email,
		Password:        "pass1234",
		PasswordConfirm: "pass1234",
		Balance:         balance,
	})
	require.NoError(t, err)
	return user
}

func strPtr(s string) *string { return &s }

func TestUpdateMe(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newUserFixture(t)
	created := f.signup(t, "ashish", "hello@ashish.io", 1000)

	updated, err := f.svc.UpdateMe(ctx, created.ID, ProfileUpdate{UserName: strPtr("Ashish A")})
	require.NoError(t, err)
	assert.Equal(t, "Ashish A", updated.UserName)
	assert.Equal(t, "hello@ashish.io", updated.Email)
}

func TestUpdateMeEmailChangeResetsVerification(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newUserFixture(t)
	created := f.signup(t, "ashish", "hello@ashish.io", 1000)

	// mark the current address verified
	require.NoError(t, f.auth.users.MarkEmailVerified(ctx, created.ID))

	updated, err := f.svc.UpdateMe(ctx, created.ID, ProfileUpdate{Email: strPtr("new@ashish.io")})
	require.NoError(t, err)
	assert.Equal(t, "new@ashish.io", updated.Email)
	assert.False(t, updated.EmailVerified)

	// re-submitting the same address leaves verification alone
	require.NoError(t, f.auth.users.MarkEmailVerified(ctx, created.ID))
	updated, err = f.svc.UpdateMe(ctx, created.ID, ProfileUpdate{Email: strPtr("new@ashish.io")})
	require.NoError(t, err)
	assert.True(t, updated.EmailVerified)
}

func TestUpdateMeRejectsBadInput(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newUserFixture(t)
	created := f.signup(t, "ashish", "hello@ashish.io", 1000)

	var ve *ValidationError
	_, err := f.svc.UpdateMe(ctx, created.ID, ProfileUpdate{UserName: strPtr("   ")})
	assert.ErrorAs(t, err, &ve)
	_, err = f.svc.UpdateMe(ctx, created.ID, ProfileUpdate{Email: strPtr("not-an-email")})
	assert.ErrorAs(t, err, &ve)
}

func TestUpdateMeDuplicateEmail(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newUserFixture(t)
	f.signup(t, "ashish", "hello@ashish.io", 1000)
	other := f.signup(t, "bob", "bob@ashish.io", 500)

	_, err := f.svc.UpdateMe(ctx, other.ID, ProfileUpdate{Email: strPtr("hello@ashish.io")})
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestTransfer(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newUserFixture(t)
	sender := f.signup(t, "ashish", "hello@ashish.io", 1000)
	recipient := f.signup(t, "bob", "bob@ashish.io", 100)

	got, err := f.svc.Transfer(ctx, sender.ID, "bob@ashish.io", 250)
	require.NoError(t, err)
	assert.InDelta(t, 750, got.Balance, 0.001)

	after, err := f.auth.users.GetByID(ctx, recipient.ID)
	require.NoError(t, err)
	assert.InDelta(t, 350, after.Balance, 0.001)

	require.Len(t, f.mail.sent, 1)
	assert.Equal(t, "bob@ashish.io", f.mail.sent[0].To)
}

func TestTransferRejections(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newUserFixture(t)
	sender := f.signup(t, "ashish", "hello@ashish.io", 1000)
	f.signup(t, "bob", "bob@ashish.io", 100)

	var ve *ValidationError
	_, err := f.svc.Transfer(ctx, sender.ID, "bob@ashish.io", 0)
	assert.ErrorAs(t, err, &ve)
	_, err = f.svc.Transfer(ctx, sender.ID, "bob@ashish.io", -5)
	assert.ErrorAs(t, err, &ve)
	_, err = f.svc.Transfer(ctx, sender.ID, "hello@ashish.io", 10)
	assert.ErrorAs(t, err, &ve, "self transfer")

	_, err = f.svc.Transfer(ctx, sender.ID, "nobody@ashish.io", 10)
	assert.ErrorIs(t, err, ErrNoSuchUser)

	_, err = f.svc.Transfer(ctx, sender.ID, "bob@ashish.io", 2000)
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	// none of the rejected attempts moved money
	after, err := f.auth.users.GetByID(ctx, sender.ID)
	require.NoError(t, err)
	assert.InDelta(t, 1000, after.Balance, 0.001)
}

func TestTransferMailFailureDoesNotUndoTransfer(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newUserFixture(t)
	sender := f.signup(t, "ashish", "hello@ashish.io", 1000)
	f.signup(t, "bob", "bob@ashish.io", 100)

	f.mail.fail = assert.AnError
	got, err := f.svc.Transfer(ctx, sender.ID, "bob@ashish.io", 250)
	require.NoError(t, err)
	assert.InDelta(t, 750, got.Balance, 0.001)
}

func TestGetByWalletAddress(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newUserFixture(t)
	created := f.signup(t, "ashish", "hello@ashish.io", 1000)

	require.NoError(t, f.auth.users.SetWalletAddress(ctx, created.ID, "0xe31935cc053df03d922f3c5c56dec093141c4aaf"))

	// lookup normalizes case and whitespace
	got, err := f.svc.GetByWalletAddress(ctx, " 0xE31935CC053df03d922f3c5c56dec093141c4aaf ")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	_, err = f.svc.GetByWalletAddress(ctx, "0x0000000000000000000000000000000000000000")
	assert.ErrorIs(t, err, ErrNoSuchUser)
}

func TestList(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newUserFixture(t)
	f.signup(t, "ashish", "hello@ashish.io", 1000)
	f.signup(t, "bob", "bob@ashish.io", 100)

	users, err := f.svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 2)
}

func TestGetByIDNotFound(t *testing.T) {
	t.Parallel()
	f := newUserFixture(t)
	_, err := f.svc.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
