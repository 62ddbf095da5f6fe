package google

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

// Exchange swaps an authorization code for tokens. Any provider error is
// terminal for this attempt; the user has to restart linking.
func (c *Client) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.HTTPClient)

	token, err := c.OAuth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("google: token exchange failed: %w", err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("google: token response missing access_token")
	}
	return token, nil
}

// FetchEmail resolves the email address the token belongs to.
func (c *Client) FetchEmail(ctx context.Context, token *oauth2.Token) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.UserInfoURL, nil)
	if err != nil {
		return "", fmt.Errorf("google: build userinfo request: %w", err)
	}
	token.SetAuthHeader(req)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("google: userinfo request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("google: userinfo returned status %d", resp.StatusCode)
	}

	var userInfo struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&userInfo); err != nil {
		return "", fmt.Errorf("google: decode userinfo: %w", err)
	}
	if userInfo.Email == "" {
		return "", fmt.Errorf("google: userinfo response missing email")
	}
	return userInfo.Email, nil
}

// TokenSource returns a source that mints fresh access tokens from a
// stored refresh token.
func (c *Client) TokenSource(ctx context.Context, refreshToken string) oauth2.TokenSource {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.HTTPClient)
	return c.OAuth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
}
