package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/ignite/mailcraft/internal/config"
	"github.com/ignite/mailcraft/internal/pkg/httputil"
	"github.com/ignite/mailcraft/internal/pkg/logger"
)

const (
	stateCookie = "oauth_state"
	userInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
)

// GoogleUser is the profile returned by Google's userinfo endpoint.
type GoogleUser struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
}

// GoogleLoginFunc exchanges a verified Google profile for an API token.
type GoogleLoginFunc func(ctx context.Context, u GoogleUser) (token string, err error)

// Google runs the OAuth2 authorization-code flow and answers the callback
// with a JSON API token.
type Google struct {
	oauth   *oauth2.Config
	infoURL string
	login   GoogleLoginFunc
}

func NewGoogle(cfg config.AuthConfig, login GoogleLoginFunc) *Google {
	return &Google{
		oauth: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
			Scopes: []string{
				"https://www.googleapis.com/auth/userinfo.email",
				"https://www.googleapis.com/auth/userinfo.profile",
			},
			Endpoint: google.Endpoint,
		},
		infoURL: userInfoURL,
		login:   login,
	}
}

func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func (g *Google) HandleLogin(w http.ResponseWriter, r *http.Request) {
	state, err := generateState()
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   300,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, g.oauth.AuthCodeURL(state, oauth2.AccessTypeOnline), http.StatusTemporaryRedirect)
}

func (g *Google) HandleCallback(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(stateCookie)
	if err != nil || c.Value == "" || r.URL.Query().Get("state") != c.Value {
		httputil.BadRequest(w, "invalid oauth state")
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/", MaxAge: -1})

	if e := r.URL.Query().Get("error"); e != "" {
		httputil.Unauthorized(w, "google sign-in failed: "+e)
		return
	}

	tok, err := g.oauth.Exchange(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		logger.Warn("auth: google code exchange", "error", err)
		httputil.Unauthorized(w, "google sign-in failed")
		return
	}
	user, err := g.userInfo(r.Context(), tok)
	if err != nil {
		logger.Warn("auth: google userinfo", "error", err)
		httputil.Unauthorized(w, "google sign-in failed")
		return
	}
	if !user.VerifiedEmail {
		httputil.Forbidden(w, "google account email is not verified")
		return
	}

	apiToken, err := g.login(r.Context(), *user)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.OK(w, map[string]string{"token": apiToken})
}

func (g *Google) userInfo(ctx context.Context, tok *oauth2.Token) (*GoogleUser, error) {
	resp, err := g.oauth.Client(ctx, tok).Get(g.infoURL)
	if err != nil {
		return nil, fmt.Errorf("get user info: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read user info: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google API error: %d", resp.StatusCode)
	}
	var u GoogleUser
	if err := json.Unmarshal(body, &u); err != nil {
		return nil, fmt.Errorf("parse user info: %w", err)
	}
	return &u, nil
}
