package notification

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduhub/assessment-engine/internal/domain/shared"
)

func testNotification(t *testing.T, typ NotificationType, priority Priority) *Notification {
	t.Helper()

	n, err := NewNotification(NewNotificationParams{
		Type:        typ,
		RecipientID: "recipient-1",
		StudentID:   shared.StudentID("5f1c9d2a-3b4e-4c5d-8e9f-0a1b2c3d4e5f"),
		SubjectID:   shared.SubjectID("9c0d1e2f-3a4b-4c6d-8e0f-2a3b4c5d6e7f"),
		SubjectName: "Mathematics",
		Title:       "Assessment missed",
		Body:        "Assessment for Mathematics (period 2 of 3) was missed.",
		Priority:    priority,
		Now:         time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return n
}

func TestNewNotification(t *testing.T) {
	n := testNotification(t, TypeAssessmentExpiredStudent, PriorityNormal)

	assert.True(t, n.ID.IsValid())
	assert.Equal(t, StatusPending, n.Status)
	assert.Equal(t, 0, n.Attempts)
	// Роль выводится из типа, если не задана явно.
	assert.Equal(t, RoleStudent, n.Role)

	n2 := testNotification(t, TypeTopicMissing, PriorityNormal)
	assert.Equal(t, RoleTeacher, n2.Role)
}

func TestNewNotification_Validation(t *testing.T) {
	_, err := NewNotification(NewNotificationParams{
		Type:        NotificationType("bogus"),
		RecipientID: "r",
		Body:        "b",
	})
	assert.ErrorIs(t, err, ErrInvalidNotification)

	_, err = NewNotification(NewNotificationParams{
		Type: TypeTopicMissing,
		Body: "b",
	})
	assert.ErrorIs(t, err, ErrInvalidNotification)

	_, err = NewNotification(NewNotificationParams{
		Type:        TypeTopicMissing,
		RecipientID: "r",
	})
	assert.ErrorIs(t, err, ErrInvalidNotification)
}

func TestNotification_StatusTransitions(t *testing.T) {
	n := testNotification(t, TypeAssessmentExpiredStudent, PriorityNormal)

	require.NoError(t, n.MarkSending())
	assert.Equal(t, 1, n.Attempts)

	// Повторная попытка из статуса sending разрешена.
	require.NoError(t, n.MarkSending())
	assert.Equal(t, 2, n.Attempts)

	deliveredAt := time.Date(2024, 1, 15, 10, 0, 5, 0, time.UTC)
	require.NoError(t, n.MarkDelivered(deliveredAt))
	assert.Equal(t, StatusDelivered, n.Status)
	require.NotNil(t, n.DeliveredAt)
	assert.Equal(t, deliveredAt, *n.DeliveredAt)

	// Из финального статуса переходов нет.
	assert.ErrorIs(t, n.MarkSending(), ErrInvalidStatusTransition)
	assert.ErrorIs(t, n.MarkFailed("late failure"), ErrInvalidStatusTransition)
}

func TestNotification_MarkDeliveredRequiresSending(t *testing.T) {
	n := testNotification(t, TypeAssessmentExpiredStudent, PriorityNormal)

	err := n.MarkDelivered(time.Now())
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)
}

func TestNotification_MarkSkipped(t *testing.T) {
	n := testNotification(t, TypeAssessmentExpiredTeacher, PriorityLow)

	require.NoError(t, n.MarkSkipped("rate limit exceeded"))
	assert.Equal(t, StatusSkipped, n.Status)
	assert.True(t, n.Status.IsFinal())
}

func TestTimeConstraint_IsAllowed(t *testing.T) {
	// Обычное окно 08:00-21:00.
	tc, err := NewTimeConstraint(8, 21, "")
	require.NoError(t, err)

	assert.True(t, tc.IsAllowed(time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)))
	assert.True(t, tc.IsAllowed(time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)))
	assert.False(t, tc.IsAllowed(time.Date(2024, 1, 15, 21, 0, 0, 0, time.UTC)))
	assert.False(t, tc.IsAllowed(time.Date(2024, 1, 15, 3, 0, 0, 0, time.UTC)))

	// Окно через полночь 21:00-08:00.
	overnight, err := NewTimeConstraint(21, 8, "")
	require.NoError(t, err)

	assert.True(t, overnight.IsAllowed(time.Date(2024, 1, 15, 23, 0, 0, 0, time.UTC)))
	assert.True(t, overnight.IsAllowed(time.Date(2024, 1, 15, 3, 0, 0, 0, time.UTC)))
	assert.False(t, overnight.IsAllowed(time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)))

	_, err = NewTimeConstraint(-1, 8, "")
	assert.ErrorIs(t, err, ErrInvalidHours)
	_, err = NewTimeConstraint(8, 24, "")
	assert.ErrorIs(t, err, ErrInvalidHours)
}

func TestTimeConstraint_Timezone(t *testing.T) {
	tc, err := NewTimeConstraint(8, 21, "Asia/Almaty")
	require.NoError(t, err)

	// 04:00 UTC = 09:00 в Алматы (UTC+5) - внутри окна.
	assert.True(t, tc.IsAllowed(time.Date(2024, 1, 15, 4, 0, 0, 0, time.UTC)))
	// 18:00 UTC = 23:00 в Алматы - вне окна.
	assert.False(t, tc.IsAllowed(time.Date(2024, 1, 15, 18, 0, 0, 0, time.UTC)))
}

func TestRateLimit(t *testing.T) {
	rl, err := NewRateLimit(3, time.Hour)
	require.NoError(t, err)

	assert.False(t, rl.IsExceeded(0))
	assert.False(t, rl.IsExceeded(2))
	assert.True(t, rl.IsExceeded(3))

	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, now.Add(-time.Hour), rl.Since(now))

	_, err = NewRateLimit(0, time.Hour)
	assert.ErrorIs(t, err, ErrInvalidRateLimit)
	_, err = NewRateLimit(3, 0)
	assert.ErrorIs(t, err, ErrInvalidRateLimit)
}

func TestDispatchPolicy_AllowsAt(t *testing.T) {
	tc, err := NewTimeConstraint(8, 21, "")
	require.NoError(t, err)
	policy := DispatchPolicy{QuietHours: tc}

	night := time.Date(2024, 1, 15, 2, 0, 0, 0, time.UTC)
	day := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

	normal := testNotification(t, TypeAssessmentExpiredStudent, PriorityNormal)
	assert.False(t, policy.AllowsAt(normal, night))
	assert.True(t, policy.AllowsAt(normal, day))

	// Высокий приоритет игнорирует тихие часы.
	urgent := testNotification(t, TypeAssessmentExpiredStudent, PriorityHigh)
	assert.True(t, policy.AllowsAt(urgent, night))

	// Без ограничений отправка разрешена всегда.
	assert.True(t, DispatchPolicy{}.AllowsAt(normal, night))
}
