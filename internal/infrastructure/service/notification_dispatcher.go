// Package service contains application services that sit between the domain
// and infrastructure: the notification dispatcher and its delivery channels.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/eduhub/assessment-engine/internal/domain/notification"
	"github.com/eduhub/assessment-engine/internal/domain/shared"
	"github.com/eduhub/assessment-engine/pkg/clock"
)

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATION DISPATCHER
// Applies the dispatch policy (quiet hours, per-recipient rate limits),
// journals every notification, and walks the channel chain until one
// delivers. Delivery is best-effort: channel failures are absorbed and
// recorded, never returned to the caller, because the progress record
// transition that produced the notification is already final.
// ══════════════════════════════════════════════════════════════════════════════

// NotificationDispatcher implements notification.Dispatcher.
type NotificationDispatcher struct {
	channels  []notification.Channel
	repo      notification.Repository
	policy    notification.DispatchPolicy
	publisher shared.EventPublisher
	clock     clock.Clock
	logger    *slog.Logger
}

// NewNotificationDispatcher creates a dispatcher. Channels are tried in the
// order given; the first available channel that delivers wins.
func NewNotificationDispatcher(
	channels []notification.Channel,
	repo notification.Repository,
	policy notification.DispatchPolicy,
	publisher shared.EventPublisher,
	clk clock.Clock,
	logger *slog.Logger,
) *NotificationDispatcher {
	if clk == nil {
		clk = clock.System{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationDispatcher{
		channels:  channels,
		repo:      repo,
		policy:    policy,
		publisher: publisher,
		clock:     clk,
		logger:    logger.With("component", "notification_dispatcher"),
	}
}

// Dispatch journals and delivers one notification. It returns an error only
// for an invalid notification; policy skips and channel failures settle in
// the journal instead.
func (d *NotificationDispatcher) Dispatch(ctx context.Context, n *notification.Notification) error {
	if n == nil {
		return fmt.Errorf("%w: nil notification", notification.ErrInvalidNotification)
	}
	if !n.Type.IsValid() {
		return fmt.Errorf("%w: unknown type %q", notification.ErrInvalidNotification, n.Type)
	}

	now := d.clock.Now()

	// Journal first: a notification that crashes mid-delivery is still
	// visible to operators as pending.
	if err := d.repo.Save(ctx, n); err != nil {
		d.logger.Error("failed to journal notification",
			"notification_id", n.ID.String(),
			"error", err,
		)
	}

	if skipped, reason := d.policyCheck(ctx, n, now); skipped {
		d.settleSkipped(ctx, n, reason)
		return nil
	}

	d.deliver(ctx, n)
	return nil
}

// policyCheck evaluates quiet hours and rate limits.
func (d *NotificationDispatcher) policyCheck(ctx context.Context, n *notification.Notification, now time.Time) (bool, string) {
	if !d.policy.AllowsAt(n, now) {
		return true, "quiet hours"
	}

	if d.policy.RateLimit != nil {
		count, err := d.repo.CountRecentByRecipient(ctx, n.RecipientID, n.Type, d.policy.RateLimit.Since(now))
		if err != nil {
			// The count is a throttle, not a gate; deliver on doubt.
			d.logger.Warn("rate limit count failed, delivering anyway",
				"notification_id", n.ID.String(),
				"error", err,
			)
			return false, ""
		}
		if d.policy.RateLimit.IsExceeded(count) {
			return true, fmt.Sprintf("rate limit: %d in window", count)
		}
	}

	return false, ""
}

// deliver walks the channel chain until one succeeds.
func (d *NotificationDispatcher) deliver(ctx context.Context, n *notification.Notification) {
	var lastResult notification.DeliveryResult

	for _, ch := range d.channels {
		if !ch.IsAvailable(ctx) {
			continue
		}

		if err := n.MarkSending(); err != nil {
			d.logger.Error("invalid notification state",
				"notification_id", n.ID.String(),
				"error", err,
			)
			return
		}

		result := ch.Send(ctx, n)
		lastResult = result

		if result.Success {
			d.settleDelivered(ctx, n, result)
			return
		}

		d.logger.Warn("channel delivery failed",
			"notification_id", n.ID.String(),
			"channel", ch.Type().String(),
			"retryable", result.Retryable,
			"error", result.Error,
		)
	}

	reason := "no channel available"
	if lastResult.Error != nil {
		reason = lastResult.Error.Error()
	}
	d.settleFailed(ctx, n, reason)
}

func (d *NotificationDispatcher) settleDelivered(ctx context.Context, n *notification.Notification, result notification.DeliveryResult) {
	if err := n.MarkDelivered(result.DeliveredAt); err != nil {
		d.logger.Error("failed to mark delivered", "notification_id", n.ID.String(), "error", err)
		return
	}
	d.saveSettled(ctx, n)

	d.logger.Info("notification delivered",
		"notification_id", n.ID.String(),
		"type", n.Type.String(),
		"recipient", n.RecipientID,
		"channel", result.Channel.String(),
		"attempts", n.Attempts,
	)
	d.publish(shared.EventNotificationSent, n)
}

func (d *NotificationDispatcher) settleFailed(ctx context.Context, n *notification.Notification, reason string) {
	if err := n.MarkFailed(reason); err != nil {
		d.logger.Error("failed to mark failed", "notification_id", n.ID.String(), "error", err)
		return
	}
	d.saveSettled(ctx, n)

	d.logger.Error("notification delivery failed",
		"notification_id", n.ID.String(),
		"type", n.Type.String(),
		"recipient", n.RecipientID,
		"reason", reason,
	)
	d.publish(shared.EventNotificationFailed, n)
}

func (d *NotificationDispatcher) settleSkipped(ctx context.Context, n *notification.Notification, reason string) {
	if err := n.MarkSkipped(reason); err != nil {
		d.logger.Error("failed to mark skipped", "notification_id", n.ID.String(), "error", err)
		return
	}
	d.saveSettled(ctx, n)

	d.logger.Info("notification skipped",
		"notification_id", n.ID.String(),
		"type", n.Type.String(),
		"recipient", n.RecipientID,
		"reason", reason,
	)
}

func (d *NotificationDispatcher) saveSettled(ctx context.Context, n *notification.Notification) {
	if err := d.repo.Save(ctx, n); err != nil {
		d.logger.Error("failed to journal settled notification",
			"notification_id", n.ID.String(),
			"status", string(n.Status),
			"error", err,
		)
	}
}

func (d *NotificationDispatcher) publish(eventType shared.EventType, n *notification.Notification) {
	if d.publisher == nil {
		return
	}
	event := notificationEvent{
		BaseEvent:   shared.NewBaseEvent(eventType, n.ID.String(), d.clock.Now()),
		RecipientID: n.RecipientID,
		Kind:        n.Type.String(),
	}
	if err := d.publisher.Publish(event); err != nil {
		d.logger.Warn("failed to publish notification event", "error", err)
	}
}

// notificationEvent reports a delivery outcome on the event bus.
type notificationEvent struct {
	shared.BaseEvent
	RecipientID string `json:"recipient_id"`
	Kind        string `json:"kind"`
}

// Payload implements shared.Event.
func (e notificationEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"recipient_id": e.RecipientID,
		"kind":         e.Kind,
	}
}
