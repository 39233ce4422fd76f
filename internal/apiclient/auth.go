package apiclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signupResponse struct {
	AccessToken string `json:"access_token"`
}

// Login exchanges email and password for a bearer token using the OAuth2
// password grant against /auth/token.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	cfg := oauth2.Config{
		Endpoint: oauth2.Endpoint{
			TokenURL:  c.baseURL + "/auth/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http.GetClient())

	tok, err := cfg.PasswordCredentialsToken(ctx, email, password)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			return "", newAPIError(re.Response.StatusCode, re.Body)
		}
		return "", fmt.Errorf("login: %w", err)
	}
	return tok.AccessToken, nil
}

// Register creates an account. When the server does not hand out a token
// on signup, Register logs in with the same credentials.
func (c *Client) Register(ctx context.Context, email, password string) (string, error) {
	var out signupResponse
	if _, err := c.do(ctx, http.MethodPost, "/auth/signup", credentials{Email: email, Password: password}, &out); err != nil {
		return "", err
	}
	if out.AccessToken != "" {
		return out.AccessToken, nil
	}
	return c.Login(ctx, email, password)
}
