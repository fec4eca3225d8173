package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/ignite/mailcraft/internal/config"
	"github.com/ignite/mailcraft/internal/domain"
	"github.com/ignite/mailcraft/internal/pkg/apperr"
	"github.com/ignite/mailcraft/internal/pkg/logger"
)

var testUser = &domain.User{ID: "u1", Email: "ada@example.com"}

func TestIssueAndParse(t *testing.T) {
	tokens := NewTokens("0123456789abcdef0123456789abcdef", time.Hour)
	raw, exp, err := tokens.Issue(testUser)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	claims, err := tokens.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, "ada@example.com", claims.Email)
}

func TestParseRejects(t *testing.T) {
	tokens := NewTokens("secret-one-secret-one-secret-one", time.Hour)

	other, _, err := NewTokens("secret-two-secret-two-secret-two", time.Hour).Issue(testUser)
	require.NoError(t, err)
	_, err = tokens.Parse(other)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	expired := NewTokens("secret-one-secret-one-secret-one", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, _, err := expired.Issue(testUser)
	require.NoError(t, err)
	_, err = tokens.Parse(old)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	assert.Contains(t, err.Error(), "expired")

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer: issuer, Subject: "u1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = tokens.Parse(none)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	_, err = tokens.Parse("not-a-jwt")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestPasswordHashing(t *testing.T) {
	_, err := HashPassword("short")
	assert.ErrorIs(t, err, apperr.ErrInvalid)
	_, err = HashPassword(strings.Repeat("x", 73))
	assert.ErrorIs(t, err, apperr.ErrInvalid)

	h, err := HashPassword("correct horse battery")
	require.NoError(t, err)
	assert.True(t, CheckPassword(h, "correct horse battery"))
	assert.False(t, CheckPassword(h, "wrong horse battery"))
	assert.False(t, CheckPassword("garbage", "correct horse battery"))
}

func TestMiddleware(t *testing.T) {
	logger.Discard()
	tokens := NewTokens("0123456789abcdef0123456789abcdef", time.Hour)
	var seen Principal
	h := tokens.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = PrincipalFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/brands", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req.Header.Set("Authorization", "Bearer nope")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	raw, _, _ := tokens.Issue(testUser)
	req.Header.Set("Authorization", "Bearer "+raw)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, Principal{UserID: "u1", Email: "ada@example.com"}, seen)
}

func TestGoogleLoginRedirectSetsState(t *testing.T) {
	g := NewGoogle(config.AuthConfig{GoogleClientID: "cid", GoogleClientSecret: "cs", GoogleRedirectURL: "http://x/cb"}, nil)
	w := httptest.NewRecorder()
	g.HandleLogin(w, httptest.NewRequest(http.MethodGet, "/auth/google/login", nil))

	assert.Equal(t, http.StatusTemporaryRedirect, w.Code)
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "accounts.google.com", loc.Host)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, cookies[0].Value, loc.Query().Get("state"))
}

func TestGoogleCallback(t *testing.T) {
	logger.Discard()
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/token":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"access_token":"at","token_type":"Bearer","expires_in":3600}`)
		case "/userinfo":
			assert.Equal(t, "Bearer at", r.Header.Get("Authorization"))
			fmt.Fprint(w, `{"id":"g1","email":"ada@example.com","verified_email":true,"name":"Ada"}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer provider.Close()

	var got GoogleUser
	g := NewGoogle(config.AuthConfig{GoogleClientID: "cid", GoogleClientSecret: "cs"}, func(_ context.Context, u GoogleUser) (string, error) {
		got = u
		return "api-token", nil
	})
	g.oauth.Endpoint = oauth2.Endpoint{AuthURL: provider.URL + "/auth", TokenURL: provider.URL + "/token"}
	g.infoURL = provider.URL + "/userinfo"

	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?state=s1&code=c1", nil)
	req.AddCookie(&http.Cookie{Name: stateCookie, Value: "s1"})
	w := httptest.NewRecorder()
	g.HandleCallback(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"token":"api-token"`)
	assert.Equal(t, "g1", got.ID)

	req = httptest.NewRequest(http.MethodGet, "/auth/google/callback?state=other&code=c1", nil)
	req.AddCookie(&http.Cookie{Name: stateCookie, Value: "s1"})
	w = httptest.NewRecorder()
	g.HandleCallback(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
