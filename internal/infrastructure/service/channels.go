package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/eduhub/assessment-engine/internal/domain/notification"
	"github.com/eduhub/assessment-engine/pkg/clock"
)

// ══════════════════════════════════════════════════════════════════════════════
// WEBHOOK CHANNEL
// Pushes notifications to the platform's notification gateway, which owns
// the actual fan-out to mobile push, email, and the in-app inbox.
// ══════════════════════════════════════════════════════════════════════════════

// WebhookChannelConfig contains configuration for the webhook channel.
type WebhookChannelConfig struct {
	// URL is the notification gateway endpoint.
	URL string

	// APIKey authenticates the engine against the gateway.
	APIKey string

	// Timeout is the HTTP request timeout.
	Timeout time.Duration
}

// WebhookChannel delivers notifications over HTTP.
type WebhookChannel struct {
	config     WebhookChannelConfig
	httpClient *http.Client
	clock      clock.Clock
}

// NewWebhookChannel creates a webhook delivery channel.
func NewWebhookChannel(config WebhookChannelConfig, clk clock.Clock) *WebhookChannel {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &WebhookChannel{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		clock:      clk,
	}
}

// Type implements notification.Channel.
func (c *WebhookChannel) Type() notification.ChannelType {
	return notification.ChannelTypeWebhook
}

// IsAvailable implements notification.Channel.
func (c *WebhookChannel) IsAvailable(_ context.Context) bool {
	return c.config.URL != ""
}

// webhookPayload is the gateway's notification envelope.
type webhookPayload struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Role        string `json:"role"`
	RecipientID string `json:"recipient_id"`
	StudentID   string `json:"student_id,omitempty"`
	SubjectID   string `json:"subject_id,omitempty"`
	SubjectName string `json:"subject_name,omitempty"`
	Title       string `json:"title"`
	Body        string `json:"body"`
	Priority    string `json:"priority"`
	CreatedAt   string `json:"created_at"`
}

// Send implements notification.Channel.
func (c *WebhookChannel) Send(ctx context.Context, n *notification.Notification) notification.DeliveryResult {
	now := c.clock.Now()

	payload := webhookPayload{
		ID:          n.ID.String(),
		Type:        n.Type.String(),
		Role:        string(n.Role),
		RecipientID: n.RecipientID,
		StudentID:   n.StudentID.String(),
		SubjectID:   n.SubjectID.String(),
		SubjectName: n.SubjectName,
		Title:       n.Title,
		Body:        n.Body,
		Priority:    n.Priority.String(),
		CreatedAt:   n.CreatedAt.Format(time.RFC3339),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return notification.NewFailureResult(c.Type(), fmt.Errorf("marshal payload: %w", err), false, now)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.URL, bytes.NewReader(body))
	if err != nil {
		return notification.NewFailureResult(c.Type(), fmt.Errorf("create request: %w", err), false, now)
	}
	req.Header.Set("Content-Type", "application/json")
	// Gateway deduplicates on this key, so a retried send never doubles.
	req.Header.Set("Idempotency-Key", n.ID.String())
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return notification.NewFailureResult(c.Type(), fmt.Errorf("http request: %w", err), true, now)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := 30 * time.Second
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if seconds, err := strconv.Atoi(ra); err == nil {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}
		return notification.NewRateLimitedResult(c.Type(), retryAfter, now)

	case resp.StatusCode >= 500:
		return notification.NewFailureResult(c.Type(),
			fmt.Errorf("gateway status %d", resp.StatusCode), true, now)

	case resp.StatusCode >= 400:
		return notification.NewFailureResult(c.Type(),
			fmt.Errorf("gateway status %d", resp.StatusCode), false, now)
	}

	return notification.NewSuccessResult(c.Type(), now)
}

// ══════════════════════════════════════════════════════════════════════════════
// LOG CHANNEL
// Writes notifications to the log instead of delivering them. Used in
// development and as the terminal fallback when no gateway is configured.
// ══════════════════════════════════════════════════════════════════════════════

// LogChannel logs notifications instead of delivering them.
type LogChannel struct {
	logger *slog.Logger
	clock  clock.Clock
}

// NewLogChannel creates a log delivery channel.
func NewLogChannel(logger *slog.Logger, clk clock.Clock) *LogChannel {
	if logger == nil {
		logger = slog.Default()
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &LogChannel{
		logger: logger.With("component", "log_channel"),
		clock:  clk,
	}
}

// Type implements notification.Channel.
func (c *LogChannel) Type() notification.ChannelType {
	return notification.ChannelTypeLog
}

// IsAvailable implements notification.Channel.
func (c *LogChannel) IsAvailable(_ context.Context) bool {
	return true
}

// Send implements notification.Channel.
func (c *LogChannel) Send(_ context.Context, n *notification.Notification) notification.DeliveryResult {
	c.logger.Info("notification",
		"notification_id", n.ID.String(),
		"type", n.Type.String(),
		"role", string(n.Role),
		"recipient", n.RecipientID,
		"title", n.Title,
		"body", n.Body,
	)
	return notification.NewSuccessResult(c.Type(), c.clock.Now())
}
