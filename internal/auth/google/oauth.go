// Package google talks to Google's OAuth and identity endpoints for
// mailbox linking.
package google

import (
	"net/http"
	"time"

	"golang.org/x/oauth2"
	googleOAuth "golang.org/x/oauth2/google"
)

// Scopes required for read-only mailbox access plus the linked address.
var Scopes = []string{
	"https://www.googleapis.com/auth/gmail.readonly",
	"https://www.googleapis.com/auth/userinfo.email",
}

// DefaultUserInfoURL resolves the linked account's email address.
const DefaultUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// requestTimeout bounds each provider round trip so a stuck exchange
// cannot stall the callback handler.
const requestTimeout = 10 * time.Second

// Client wraps the OAuth2 config and identity endpoint for one provider
// registration. Construct it once at startup and pass it explicitly; there
// is no ambient global.
type Client struct {
	OAuth       *oauth2.Config
	HTTPClient  *http.Client
	UserInfoURL string
}

// NewClient builds a Client from the configured credentials.
func NewClient(clientID, clientSecret, redirectURL string) *Client {
	return &Client{
		OAuth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       Scopes,
			Endpoint:     googleOAuth.Endpoint,
		},
		HTTPClient:  &http.Client{Timeout: requestTimeout},
		UserInfoURL: DefaultUserInfoURL,
	}
}

// ConsentURL returns the provider consent page URL for a link attempt.
// offline access + forced consent prompt make Google return a refresh
// token on first approval.
func (c *Client) ConsentURL(state string) string {
	return c.OAuth.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
	)
}
