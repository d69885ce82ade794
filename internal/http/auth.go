package http

import (
	"context"
	"net/http"
	"net/url"

	"github.com/example/seat-booking-client/internal/application"
	"github.com/example/seat-booking-client/internal/eligibility"
)

type preflightRequest struct {
	Email string `json:"email"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type selfResponse struct {
	Email string `json:"email"`
}

// Preflight implements application.AuthAPI.
func (c *Client) Preflight(ctx context.Context, baseURL, email string) (application.PreflightResult, error) {
	var out application.PreflightResult
	err := c.do(ctx, request{method: http.MethodPost, baseURL: baseURL, path: "/auth/preflight", body: preflightRequest{Email: email}}, &out)
	return out, err
}

// PasswordLogin implements application.AuthAPI.
func (c *Client) PasswordLogin(ctx context.Context, baseURL, email, password string) (application.CredentialResponse, error) {
	return c.credentials(ctx, request{method: http.MethodPost, baseURL: baseURL, path: "/auth/login", body: loginRequest{Email: email, Password: password}})
}

// VerifyLogin implements application.AuthAPI.
func (c *Client) VerifyLogin(ctx context.Context, baseURL, verifyID string) (application.CredentialResponse, error) {
	return c.credentials(ctx, request{method: http.MethodGet, baseURL: baseURL, path: "/auth/verify/" + url.PathEscape(verifyID)})
}

// RefreshCredentials implements application.AuthAPI.
func (c *Client) RefreshCredentials(ctx context.Context, baseURL, refreshToken string) (application.CredentialResponse, error) {
	return c.credentials(ctx, request{method: http.MethodPost, baseURL: baseURL, path: "/auth/refresh", body: refreshRequest{RefreshToken: refreshToken}})
}

func (c *Client) credentials(ctx context.Context, req request) (application.CredentialResponse, error) {
	var out application.CredentialResponse
	if err := c.do(ctx, req, &out); err != nil {
		return application.CredentialResponse{}, err
	}
	if out.AccessToken != "" {
		out.AccessTokenExpiry = tokenExpiry(out.AccessToken)
	}
	return out, nil
}

// Logout implements application.AuthAPI.
func (c *Client) Logout(ctx context.Context, target application.Target, refreshToken string) error {
	return c.do(ctx, request{method: http.MethodPost, baseURL: target.BaseURL, path: "/auth/logout", token: target.AccessToken, body: refreshRequest{RefreshToken: refreshToken}}, nil)
}

// GetSelf implements application.AuthAPI.
func (c *Client) GetSelf(ctx context.Context, target application.Target) (application.Identity, error) {
	var out selfResponse
	if err := c.do(ctx, request{method: http.MethodGet, baseURL: target.BaseURL, path: "/users/self", token: target.AccessToken}, &out); err != nil {
		return application.Identity{}, err
	}
	return application.Identity{Username: out.Email}, nil
}

// ListSettings implements application.AuthAPI.
func (c *Client) ListSettings(ctx context.Context, target application.Target) ([]eligibility.Setting, error) {
	var out []eligibility.Setting
	err := c.do(ctx, request{method: http.MethodGet, baseURL: target.BaseURL, path: "/settings", token: target.AccessToken}, &out)
	return out, err
}
