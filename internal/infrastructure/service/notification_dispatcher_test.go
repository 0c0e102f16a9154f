package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduhub/assessment-engine/internal/domain/notification"
	"github.com/eduhub/assessment-engine/pkg/clock"
)

// fakeRepo journals notifications in memory.
type fakeRepo struct {
	mu    sync.Mutex
	saved map[notification.NotificationID]*notification.Notification
	count int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{saved: make(map[notification.NotificationID]*notification.Notification)}
}

func (r *fakeRepo) Save(_ context.Context, n *notification.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot := *n
	r.saved[n.ID] = &snapshot
	return nil
}

func (r *fakeRepo) GetByID(_ context.Context, id notification.NotificationID) (*notification.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.saved[id]
	if !ok {
		return nil, notification.ErrNotificationNotFound
	}
	return n, nil
}

func (r *fakeRepo) CountRecentByRecipient(_ context.Context, _ string, _ notification.NotificationType, _ time.Time) (int, error) {
	return r.count, nil
}

func (r *fakeRepo) DeleteOlderThan(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var deleted int64
	for id, n := range r.saved {
		if n.Status.IsFinal() && n.CreatedAt.Before(before) {
			delete(r.saved, id)
			deleted++
		}
	}
	return deleted, nil
}

func (r *fakeRepo) status(id notification.NotificationID) notification.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saved[id].Status
}

// fakeChannel records sends and answers with a scripted result.
type fakeChannel struct {
	channelType notification.ChannelType
	available   bool
	fail        bool
	sent        []notification.NotificationID
}

func (c *fakeChannel) Type() notification.ChannelType     { return c.channelType }
func (c *fakeChannel) IsAvailable(_ context.Context) bool { return c.available }

func (c *fakeChannel) Send(_ context.Context, n *notification.Notification) notification.DeliveryResult {
	c.sent = append(c.sent, n.ID)
	if c.fail {
		return notification.NewFailureResult(c.channelType, errors.New("boom"), true, time.Now())
	}
	return notification.NewSuccessResult(c.channelType, time.Now())
}

func makeNotification(t *testing.T, priority notification.Priority) *notification.Notification {
	t.Helper()
	n, err := notification.NewNotification(notification.NewNotificationParams{
		Type:        notification.TypeAssessmentExpiredStudent,
		RecipientID: "student-1",
		SubjectName: "Mathematics",
		Title:       "Assessment missed",
		Body:        "The assessment for Mathematics (period 2 of 3) was missed.",
		Priority:    priority,
		Now:         time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return n
}

func TestDispatch_DeliversThroughFirstAvailableChannel(t *testing.T) {
	repo := newFakeRepo()
	down := &fakeChannel{channelType: notification.ChannelTypeWebhook, available: false}
	up := &fakeChannel{channelType: notification.ChannelTypeLog, available: true}

	d := NewNotificationDispatcher(
		[]notification.Channel{down, up},
		repo, notification.DispatchPolicy{}, nil,
		clock.NewFake(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)), nil,
	)

	n := makeNotification(t, notification.PriorityNormal)
	require.NoError(t, d.Dispatch(context.Background(), n))

	assert.Empty(t, down.sent)
	assert.Len(t, up.sent, 1)
	assert.Equal(t, notification.StatusDelivered, repo.status(n.ID))
}

func TestDispatch_FallsBackWhenChannelFails(t *testing.T) {
	repo := newFakeRepo()
	failing := &fakeChannel{channelType: notification.ChannelTypeWebhook, available: true, fail: true}
	working := &fakeChannel{channelType: notification.ChannelTypeLog, available: true}

	d := NewNotificationDispatcher(
		[]notification.Channel{failing, working},
		repo, notification.DispatchPolicy{}, nil,
		clock.NewFake(time.Now()), nil,
	)

	n := makeNotification(t, notification.PriorityNormal)
	require.NoError(t, d.Dispatch(context.Background(), n))

	assert.Len(t, failing.sent, 1)
	assert.Len(t, working.sent, 1)
	assert.Equal(t, notification.StatusDelivered, repo.status(n.ID))
}

func TestDispatch_AllChannelsFailSettlesFailed(t *testing.T) {
	repo := newFakeRepo()
	failing := &fakeChannel{channelType: notification.ChannelTypeWebhook, available: true, fail: true}

	d := NewNotificationDispatcher(
		[]notification.Channel{failing},
		repo, notification.DispatchPolicy{}, nil,
		clock.NewFake(time.Now()), nil,
	)

	n := makeNotification(t, notification.PriorityNormal)
	require.NoError(t, d.Dispatch(context.Background(), n))

	assert.Equal(t, notification.StatusFailed, repo.status(n.ID))
}

func TestDispatch_QuietHoursSkipNormalPriority(t *testing.T) {
	repo := newFakeRepo()
	ch := &fakeChannel{channelType: notification.ChannelTypeLog, available: true}

	quiet, err := notification.NewTimeConstraint(8, 21, "UTC")
	require.NoError(t, err)

	// 03:00 is outside the allowed window.
	clk := clock.NewFake(time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC))
	d := NewNotificationDispatcher(
		[]notification.Channel{ch},
		repo, notification.DispatchPolicy{QuietHours: quiet}, nil, clk, nil,
	)

	n := makeNotification(t, notification.PriorityNormal)
	require.NoError(t, d.Dispatch(context.Background(), n))

	assert.Empty(t, ch.sent)
	assert.Equal(t, notification.StatusSkipped, repo.status(n.ID))
}

func TestDispatch_HighPriorityIgnoresQuietHours(t *testing.T) {
	repo := newFakeRepo()
	ch := &fakeChannel{channelType: notification.ChannelTypeLog, available: true}

	quiet, err := notification.NewTimeConstraint(8, 21, "UTC")
	require.NoError(t, err)

	clk := clock.NewFake(time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC))
	d := NewNotificationDispatcher(
		[]notification.Channel{ch},
		repo, notification.DispatchPolicy{QuietHours: quiet}, nil, clk, nil,
	)

	n := makeNotification(t, notification.PriorityHigh)
	require.NoError(t, d.Dispatch(context.Background(), n))

	assert.Len(t, ch.sent, 1)
	assert.Equal(t, notification.StatusDelivered, repo.status(n.ID))
}

func TestDispatch_RateLimitSkips(t *testing.T) {
	repo := newFakeRepo()
	repo.count = 3
	ch := &fakeChannel{channelType: notification.ChannelTypeLog, available: true}

	limit, err := notification.NewRateLimit(3, time.Hour)
	require.NoError(t, err)

	d := NewNotificationDispatcher(
		[]notification.Channel{ch},
		repo, notification.DispatchPolicy{RateLimit: limit}, nil,
		clock.NewFake(time.Now()), nil,
	)

	n := makeNotification(t, notification.PriorityNormal)
	require.NoError(t, d.Dispatch(context.Background(), n))

	assert.Empty(t, ch.sent)
	assert.Equal(t, notification.StatusSkipped, repo.status(n.ID))
}

func TestDispatch_NilNotificationRejected(t *testing.T) {
	d := NewNotificationDispatcher(nil, newFakeRepo(), notification.DispatchPolicy{}, nil,
		clock.NewFake(time.Now()), nil)

	err := d.Dispatch(context.Background(), nil)
	assert.ErrorIs(t, err, notification.ErrInvalidNotification)
}
