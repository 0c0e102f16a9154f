// Package postgres implements PostgreSQL persistence for the assessment engine.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/eduhub/assessment-engine/internal/domain/notification"
	"github.com/eduhub/assessment-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATION REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// NotificationRepository implements notification.Repository for PostgreSQL.
type NotificationRepository struct {
	conn *Connection
}

// NewNotificationRepository creates a new NotificationRepository.
func NewNotificationRepository(conn *Connection) *NotificationRepository {
	return &NotificationRepository{conn: conn}
}

// Save upserts a notification. The dispatcher saves once on creation and
// again after the delivery attempt settles the status.
func (r *NotificationRepository) Save(ctx context.Context, n *notification.Notification) error {
	query := `
		INSERT INTO notifications (
			id, type, role, recipient_id, student_id, subject_id, subject_name,
			title, body, priority, status, attempts, last_error, created_at, delivered_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			attempts = EXCLUDED.attempts,
			last_error = EXCLUDED.last_error,
			delivered_at = EXCLUDED.delivered_at
	`

	var subjectID *string
	if n.SubjectID != "" {
		s := string(n.SubjectID)
		subjectID = &s
	}

	_, err := r.conn.Exec(ctx, query,
		n.ID.String(),
		n.Type.String(),
		string(n.Role),
		n.RecipientID,
		string(n.StudentID),
		subjectID,
		n.SubjectName,
		n.Title,
		n.Body,
		int(n.Priority),
		string(n.Status),
		n.Attempts,
		n.LastError,
		n.CreatedAt,
		n.DeliveredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save notification: %w", err)
	}

	return nil
}

// GetByID returns a notification by ID.
func (r *NotificationRepository) GetByID(ctx context.Context, id notification.NotificationID) (*notification.Notification, error) {
	query := `
		SELECT id, type, role, recipient_id, student_id, subject_id, subject_name,
		       title, body, priority, status, attempts, last_error, created_at, delivered_at
		FROM notifications
		WHERE id = $1
	`

	var (
		n           notification.Notification
		notifID     string
		notifType   string
		role        string
		studentID   string
		subjectID   *string
		priority    int
		status      string
	)

	err := r.conn.QueryRow(ctx, query, id.String()).Scan(
		&notifID,
		&notifType,
		&role,
		&n.RecipientID,
		&studentID,
		&subjectID,
		&n.SubjectName,
		&n.Title,
		&n.Body,
		&priority,
		&status,
		&n.Attempts,
		&n.LastError,
		&n.CreatedAt,
		&n.DeliveredAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, notification.ErrNotificationNotFound
		}
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}

	n.ID = notification.NotificationID(notifID)
	n.Type = notification.NotificationType(notifType)
	n.Role = notification.RecipientRole(role)
	n.StudentID = shared.StudentID(studentID)
	if subjectID != nil {
		n.SubjectID = shared.SubjectID(*subjectID)
	}
	n.Priority = notification.Priority(priority)
	n.Status = notification.Status(status)

	return &n, nil
}

// CountRecentByRecipient counts notifications of a type sent to a recipient
// after since. Used by the dispatcher to enforce rate limits.
func (r *NotificationRepository) CountRecentByRecipient(ctx context.Context, recipientID string, t notification.NotificationType, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM notifications
		WHERE recipient_id = $1
		  AND type = $2
		  AND created_at > $3
		  AND status NOT IN ('failed', 'skipped')
	`

	var count int
	err := r.conn.QueryRow(ctx, query, recipientID, t.String(), since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count notifications: %w", err)
	}

	return count, nil
}

// DeleteOlderThan removes settled notifications created before the cutoff.
// Pending and sending rows are kept: the dispatcher may still act on them.
func (r *NotificationRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	query := `
		DELETE FROM notifications
		WHERE created_at < $1
		  AND status IN ('delivered', 'failed', 'skipped')
	`

	tag, err := r.conn.Exec(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old notifications: %w", err)
	}

	return tag.RowsAffected(), nil
}
