package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/hakim-ai/identity-gateway/internal/observability/notify"
)

// Config captures the subset of Slack webhook behaviour we need.
type Config struct {
	WebhookURL string
	Channel    string
	Username   string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
	// ReviewURLPrefix links each message to the account review page, e.g. https://portal/admin/accounts.
	ReviewURLPrefix string
}

// Client delivers pending registration notifications to a Slack webhook.
type Client struct {
	webhookURL      string
	channel         string
	username        string
	retryLimit      int
	reviewURLPrefix string
	client          *http.Client
}

// NewClient builds a Slack webhook client. Callers should pass a validated config.
func NewClient(cfg Config) (*Client, error) {
	webhookURL := strings.TrimSpace(cfg.WebhookURL)
	if webhookURL == "" {
		return nil, errors.New("slack webhook url is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}

	return &Client{
		webhookURL:      webhookURL,
		channel:         strings.TrimSpace(cfg.Channel),
		username:        fallbackString(strings.TrimSpace(cfg.Username), "hakim-identity"),
		retryLimit:      max(cfg.RetryLimit, 0),
		reviewURLPrefix: strings.TrimSpace(cfg.ReviewURLPrefix),
		client:          hc,
	}, nil
}

// SendPendingRegistration posts a formatted message to Slack.
// Server errors and transport failures are retried; 4xx responses are not.
func (c *Client) SendPendingRegistration(ctx context.Context, payload notify.RegistrationPayload) error {
	body, err := json.Marshal(c.formatMessage(payload))
	if err != nil {
		return fmt.Errorf("encode slack payload: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, c.post(ctx, body)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(c.retryLimit+1)))
	return err
}

func (c *Client) formatMessage(payload notify.RegistrationPayload) map[string]any {
	timestamp := payload.OccurredAt
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	text := strings.Builder{}
	text.WriteString("*Registration awaiting approval*")
	if payload.Role != "" {
		text.WriteString(" (")
		text.WriteString(escapeSlackText(payload.Role))
		text.WriteByte(')')
	}
	text.WriteByte('\n')
	fields := []struct {
		label string
		value string
	}{
		{"Account", c.formatAccountValue(payload.AccountID)},
		{"Name", escapeSlackText(payload.Name)},
		{"License", escapeSlackText(payload.LicenseNumber)},
		{"Hospital", escapeSlackText(payload.HospitalID)},
	}
	for _, field := range fields {
		appendSlackField(&text, field.label, field.value)
	}
	text.WriteString("• Submitted: ")
	text.WriteString(timestamp.UTC().Format(time.RFC3339))

	msg := map[string]any{
		"text":     text.String(),
		"username": c.username,
	}
	if c.channel != "" {
		msg["channel"] = c.channel
	}
	return msg
}

func fallbackString(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func (c *Client) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("create slack request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	statusErr := fmt.Errorf("slack webhook %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
	if resp.StatusCode < 500 {
		return backoff.Permanent(statusErr)
	}
	return statusErr
}

func (c *Client) formatAccountValue(accountID string) string {
	id := escapeSlackText(strings.TrimSpace(accountID))
	if id == "" {
		return ""
	}
	if link := c.buildReviewLink(accountID); link != "" {
		return fmt.Sprintf("<%s|%s>", link, id)
	}
	return id
}

func (c *Client) buildReviewLink(accountID string) string {
	if c.reviewURLPrefix == "" {
		return ""
	}
	u, err := url.Parse(c.reviewURLPrefix)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	link, err := url.JoinPath(u.String(), accountID)
	if err != nil {
		return ""
	}
	return link
}

func escapeSlackText(value string) string {
	if value == "" {
		return ""
	}
	return strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
	).Replace(value)
}

func appendSlackField(text *strings.Builder, label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	text.WriteString("• ")
	text.WriteString(label)
	text.WriteString(": ")
	text.WriteString(value)
	text.WriteByte('\n')
}
