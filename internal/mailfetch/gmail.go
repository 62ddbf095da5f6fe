// Package mailfetch retrieves new-message counts for a linked mailbox.
package mailfetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// DefaultBaseURL is the Gmail REST endpoint.
const DefaultBaseURL = "https://gmail.googleapis.com/gmail/v1"

const (
	defaultMaxResults = 10
	requestTimeout    = 30 * time.Second
)

// Result reports one fetch: how many messages were new since the stored
// marker, and the marker to store for the next cycle.
type Result struct {
	Count  int
	Marker string
}

// Fetcher is the external fetch operation the polling loop invokes once a
// valid access token is available.
type Fetcher interface {
	Fetch(ctx context.Context, email, marker, accessToken string) (Result, error)
}

// Client fetches unread-message summaries from Gmail.
type Client struct {
	httpClient *http.Client
	baseURL    string
	maxResults int
}

// NewClient creates a Gmail fetch client.
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		baseURL:    DefaultBaseURL,
		maxResults: defaultMaxResults,
	}
}

type messageList struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// Fetch lists recent unread messages and counts those newer than the
// stored marker. The newest message id becomes the next marker.
func (c *Client) Fetch(ctx context.Context, email, marker, accessToken string) (Result, error) {
	endpoint := fmt.Sprintf("%s/users/me/messages", c.baseURL)
	query := url.Values{
		"q":          {"is:unread"},
		"maxResults": {fmt.Sprint(c.maxResults)},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return Result{}, fmt.Errorf("mailfetch: build request for %s: %w", email, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("mailfetch: list messages for %s: %w", email, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("mailfetch: list messages for %s returned status %d", email, resp.StatusCode)
	}

	var list messageList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return Result{}, fmt.Errorf("mailfetch: decode message list for %s: %w", email, err)
	}
	if len(list.Messages) == 0 {
		return Result{Marker: marker}, nil
	}

	// Messages arrive newest first; everything before the stored marker
	// is new since the last cycle.
	count := 0
	for _, msg := range list.Messages {
		if msg.ID == marker {
			break
		}
		count++
	}
	return Result{Count: count, Marker: list.Messages[0].ID}, nil
}
