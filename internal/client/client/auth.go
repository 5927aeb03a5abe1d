package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/propsync/internal/client/models"
	"github.com/dmitrijs2005/propsync/internal/common"
)

const (
	PathLogin   = "/auth/login/"
	PathRefresh = "/auth/refresh/"
	PathLogout  = "/auth/logout/"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// tokenResponse accepts both the camelCase pair and the short access/refresh
// names some deployments answer with.
type tokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	Access       string `json:"access"`
	Refresh      string `json:"refresh"`
}

func (r tokenResponse) tokens() models.Tokens {
	t := models.Tokens{AccessToken: r.AccessToken, RefreshToken: r.RefreshToken}
	if t.AccessToken == "" {
		t.AccessToken = r.Access
	}
	if t.RefreshToken == "" {
		t.RefreshToken = r.Refresh
	}
	return t
}

// AuthClient talks to the authentication endpoints. It goes straight to the
// transport, never through the Interceptor, so a 401 from these endpoints is
// final.
type AuthClient struct {
	transport Doer
}

func NewAuthClient(transport Doer) *AuthClient {
	return &AuthClient{transport: transport}
}

func (c *AuthClient) Login(ctx context.Context, creds models.Credentials) (models.Tokens, error) {
	req := Request{
		Method: http.MethodPost,
		Path:   PathLogin,
		Body:   loginRequest{Email: creds.Email, Password: string(creds.Password)},
	}
	resp, err := c.transport.Do(ctx, req, "")
	if err != nil {
		return models.Tokens{}, err
	}
	t, err := decodeTokens(resp.Body)
	if err != nil {
		return models.Tokens{}, err
	}
	if t.RefreshToken == "" {
		return models.Tokens{}, fmt.Errorf("%w: login answer has no refresh token", common.ErrMalformedResponse)
	}
	return t, nil
}

// Refresh exchanges refreshToken for a new pair. When the server does not
// rotate the refresh token, the old one is returned in its place.
func (c *AuthClient) Refresh(ctx context.Context, refreshToken string) (models.Tokens, error) {
	req := Request{
		Method: http.MethodPost,
		Path:   PathRefresh,
		Body:   refreshRequest{RefreshToken: refreshToken},
	}
	resp, err := c.transport.Do(ctx, req, "")
	if err != nil {
		return models.Tokens{}, err
	}
	t, err := decodeTokens(resp.Body)
	if err != nil {
		return models.Tokens{}, err
	}
	if t.RefreshToken == "" {
		t.RefreshToken = refreshToken
	}
	return t, nil
}

func (c *AuthClient) Logout(ctx context.Context, accessToken, refreshToken string) error {
	req := Request{
		Method: http.MethodPost,
		Path:   PathLogout,
		Body:   refreshRequest{RefreshToken: refreshToken},
	}
	_, err := c.transport.Do(ctx, req, accessToken)
	return err
}

func decodeTokens(body []byte) (models.Tokens, error) {
	var r tokenResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return models.Tokens{}, fmt.Errorf("%w: %w", common.ErrMalformedResponse, err)
	}
	t := r.tokens()
	if t.AccessToken == "" {
		return models.Tokens{}, fmt.Errorf("%w: answer has no access token", common.ErrMalformedResponse)
	}
	return t, nil
}
