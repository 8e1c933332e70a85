package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/github/rollup-and-away/internal/config"
)

type Client struct {
	token   string
	channel string // default destination when no recipient is given
	http    *http.Client
	log     zerolog.Logger
}

func NewClient(cfg config.Config, log zerolog.Logger) *Client {
	return &Client{token: cfg.SlackToken, channel: cfg.SlackChannel, http: &http.Client{Timeout: 10 * time.Second}, log: log}
}

// SendDirectMessage delivers text to a recipient: an empty recipient means
// the configured default channel, an email is resolved to that user's id,
// anything else is taken as a channel or user id verbatim.
func (c *Client) SendDirectMessage(ctx context.Context, recipient, text string) error {
	dest := recipient
	if dest == "" { dest = c.channel }
	if strings.Contains(dest, "@") {
		id, err := c.LookupUserByEmail(ctx, dest)
		if err != nil { return err }
		dest = id
	}
	return c.PostMessage(ctx, dest, text)
}

// PostMessage posts markdown text to a channel via chat.postMessage. Slack
// reports API errors with HTTP 200 and ok=false, so both layers are checked.
func (c *Client) PostMessage(ctx context.Context, channel, text string) error {
	if c.token == "" || channel == "" { return fmt.Errorf("slack: missing token or channel") }
	body := map[string]any{"channel": channel, "text": text, "mrkdwn": true, "unfurl_links": false}
	b, _ := json.Marshal(body)
	req, _ := http.NewRequestWithContext(ctx, "POST", "https://slack.com/api/chat.postMessage", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+c.token)
	resp, err := c.http.Do(req)
	if err != nil { return err }
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("slack chat.postMessage status=%d body=%s", resp.StatusCode, string(bodyBytes))
	}
	var r struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil { return err }
	if !r.OK { return fmt.Errorf("slack chat.postMessage: %s", r.Error) }
	return nil
}

// LookupUserByEmail resolves an email to a Slack user id for mentions.
func (c *Client) LookupUserByEmail(ctx context.Context, email string) (string, error) {
	if c.token == "" || email == "" { return "", fmt.Errorf("slack: missing token or email") }
	u := "https://slack.com/api/users.lookupByEmail?email=" + url.QueryEscape(email)
	req, _ := http.NewRequestWithContext(ctx, "GET", u, nil)
	req.Header.Set("Authorization", "Bearer "+c.token)
	resp, err := c.http.Do(req)
	if err != nil { return "", err }
	defer resp.Body.Close()
	if resp.StatusCode >= 300 { return "", fmt.Errorf("slack users.lookupByEmail status=%d", resp.StatusCode) }
	var r struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
		User  struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil { return "", err }
	if !r.OK || r.User.ID == "" { return "", fmt.Errorf("slack users.lookupByEmail: %s", r.Error) }
	return r.User.ID, nil
}
