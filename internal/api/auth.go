package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/Joseda-hg/lazytodo/internal/model"
	"github.com/Joseda-hg/lazytodo/internal/tokenstore"
)

type authPayload struct {
	User      *model.User `json:"user"`
	Token     string      `json:"token"`
	ExpiresAt string      `json:"expiresAt"`
}

// AuthResponse is a successful signup, login or session lookup.
type AuthResponse struct {
	User      model.User
	Token     string
	ExpiresAt time.Time
}

func (r AuthResponse) Credential() *oauth2.Token {
	return tokenstore.NewCredential(r.Token, r.ExpiresAt)
}

func (r AuthResponse) Session() model.Session {
	return model.Session{User: r.User, Token: r.Token, ExpiresAt: r.ExpiresAt}
}

func (p *authPayload) response() (AuthResponse, error) {
	if p == nil || p.User == nil || p.User.ID == "" || p.Token == "" {
		return AuthResponse{}, ErrInvalidResponse
	}
	return AuthResponse{
		User:      *p.User,
		Token:     p.Token,
		ExpiresAt: parseExpiry(p.ExpiresAt, p.Token),
	}, nil
}

// parseExpiry accepts RFC 3339 with or without a zone, then falls back to the
// token's own exp claim.
func parseExpiry(raw, token string) time.Time {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999"} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts
		}
	}
	exp, _ := tokenstore.ExpiryFromJWT(token)
	return exp
}

type signupRequest struct {
	Email    string  `json:"email"`
	Password string  `json:"password"`
	Name     *string `json:"name,omitempty"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (c *Client) Signup(ctx context.Context, email, password string, name *string) (AuthResponse, error) {
	return c.authenticate(ctx, request{
		op:     "signup",
		method: http.MethodPost,
		path:   "/auth/signup",
		body:   signupRequest{Email: email, Password: password, Name: name},
	}, "Signup failed")
}

func (c *Client) Login(ctx context.Context, email, password string) (AuthResponse, error) {
	return c.authenticate(ctx, request{
		op:     "login",
		method: http.MethodPost,
		path:   "/auth/login",
		body:   loginRequest{Email: email, Password: password},
	}, "Login failed")
}

func (c *Client) authenticate(ctx context.Context, req request, fallback string) (AuthResponse, error) {
	resp, err := c.send(ctx, req)
	if err != nil {
		return AuthResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		message := serverMessage(resp)
		if message == "" {
			message = fallback
		}
		c.logger.Info("authentication rejected", "op", req.op, "status", resp.StatusCode)
		return AuthResponse{}, &AuthError{StatusCode: resp.StatusCode, Message: message}
	}

	var payload *authPayload
	if err := decodeBody(resp, &payload); err != nil {
		if errors.Is(err, ErrInvalidResponse) {
			return AuthResponse{}, err
		}
		return AuthResponse{}, &AuthError{StatusCode: resp.StatusCode, Message: fallback}
	}
	return payload.response()
}

// Logout is best-effort: the credential is attached when one is stored, and
// the caller decides what to do with a failure.
func (c *Client) Logout(ctx context.Context) error {
	req := request{op: "logout", method: http.MethodPost, path: "/auth/logout"}
	if token, ok, err := c.credentials.Get(ctx); err == nil && ok {
		req.token = token
	}

	resp, err := c.send(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return statusError(resp)
}

// Session exchanges the stored credential for the current user. The response
// may carry a refreshed token.
func (c *Client) Session(ctx context.Context) (AuthResponse, error) {
	token, ok, err := c.credentials.Get(ctx)
	if err != nil {
		return AuthResponse{}, err
	}
	if !ok {
		return AuthResponse{}, ErrUnauthenticated
	}

	resp, err := c.send(ctx, request{op: "session", method: http.MethodGet, path: "/auth/session", token: token})
	if err != nil {
		return AuthResponse{}, err
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		return AuthResponse{}, err
	}

	var payload *authPayload
	if err := decodeBody(resp, &payload); err != nil {
		return AuthResponse{}, err
	}
	if payload == nil {
		return AuthResponse{}, ErrNoSession
	}
	return payload.response()
}
