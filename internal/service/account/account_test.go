package account_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/mailcraft/internal/app/apptest"
	"github.com/ignite/mailcraft/internal/auth"
	"github.com/ignite/mailcraft/internal/pkg/apperr"
	"github.com/ignite/mailcraft/internal/service/account"
)

func TestRegisterAndLogin(t *testing.T) {
	f := apptest.New(t)
	ctx := context.Background()

	sess, err := f.Svc.Accounts.Register(ctx, account.RegisterInput{
		Email: "  New@Example.com ", Name: "New", Password: apptest.Password,
	})
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", sess.User.Email)
	assert.NotEmpty(t, sess.Token)

	claims, err := f.Svc.Tokens.Parse(sess.Token)
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, claims.Subject)

	login, err := f.Svc.Accounts.Login(ctx, "NEW@example.com", apptest.Password)
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, login.User.ID)

	me, err := f.Svc.Accounts.Me(ctx, sess.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "New", me.Name)
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	f := apptest.New(t)
	_, err := f.Svc.Accounts.Register(context.Background(), account.RegisterInput{
		Email: "owner@example.com", Password: apptest.Password,
	})
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestRegisterValidation(t *testing.T) {
	f := apptest.New(t)
	_, err := f.Svc.Accounts.Register(context.Background(), account.RegisterInput{
		Email: "not-an-email", Password: "short",
	})
	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "email")
	assert.NotContains(t, ve.Fields["password"], "invalid input")
}

func TestLoginFailuresLookAlike(t *testing.T) {
	f := apptest.New(t)
	ctx := context.Background()

	_, wrong := f.Svc.Accounts.Login(ctx, "owner@example.com", "not the password")
	_, missing := f.Svc.Accounts.Login(ctx, "nobody@example.com", apptest.Password)
	require.ErrorIs(t, wrong, apperr.ErrUnauthorized)
	require.ErrorIs(t, missing, apperr.ErrUnauthorized)
	assert.Equal(t, wrong.Error(), missing.Error())
}

func TestLoginGoogleLinksExistingAccount(t *testing.T) {
	f := apptest.New(t)
	ctx := context.Background()

	tok, err := f.Svc.Accounts.LoginGoogle(ctx, auth.GoogleUser{
		ID: "g-1", Email: "Owner@example.com", VerifiedEmail: true, Name: "Owner",
	})
	require.NoError(t, err)
	claims, err := f.Svc.Tokens.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, f.UserID, claims.Subject)

	// Second login finds the account by Google ID.
	tok, err = f.Svc.Accounts.LoginGoogle(ctx, auth.GoogleUser{ID: "g-1", Email: "changed@example.com"})
	require.NoError(t, err)
	claims, err = f.Svc.Tokens.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, f.UserID, claims.Subject)
}

func TestLoginGoogleCreatesAccount(t *testing.T) {
	f := apptest.New(t)
	ctx := context.Background()

	tok, err := f.Svc.Accounts.LoginGoogle(ctx, auth.GoogleUser{ID: "g-2", Email: "fresh@example.com", Name: "Fresh"})
	require.NoError(t, err)
	claims, err := f.Svc.Tokens.Parse(tok)
	require.NoError(t, err)
	assert.NotEqual(t, f.UserID, claims.Subject)

	// Google-only accounts cannot use password login.
	_, err = f.Svc.Accounts.Login(ctx, "fresh@example.com", "")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}
