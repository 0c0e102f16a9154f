package eventhandler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduhub/assessment-engine/internal/application/query"
	"github.com/eduhub/assessment-engine/internal/domain/notification"
	"github.com/eduhub/assessment-engine/internal/domain/progress"
	"github.com/eduhub/assessment-engine/internal/domain/schedule"
	"github.com/eduhub/assessment-engine/internal/domain/shared"
)

const (
	testStudentID = shared.StudentID("5f1c9d2a-3b4e-4c5d-8e9f-0a1b2c3d4e5f")
	testTopicID   = shared.LessonTopicID("7a2b3c4d-5e6f-4a8b-9c0d-1e2f3a4b5c6d")
	testSubjectID = shared.SubjectID("9c0d1e2f-3a4b-4c6d-8e0f-2a3b4c5d6e7f")
	testTeacherID = "teacher-42"
)

// fakeDispatcher записывает отправленные уведомления.
type fakeDispatcher struct {
	mu         sync.Mutex
	dispatched []*notification.Notification
}

func (d *fakeDispatcher) Dispatch(_ context.Context, n *notification.Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dispatched = append(d.dispatched, n)
	return nil
}

func (d *fakeDispatcher) byType(t notification.NotificationType) *notification.Notification {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, n := range d.dispatched {
		if n.Type == t {
			return n
		}
	}
	return nil
}

func (d *fakeDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dispatched)
}

// fakeTeachers отвечает одним учителем либо ошибкой.
type fakeTeachers struct {
	teacherID string
	err       error
}

func (t *fakeTeachers) TeacherForSubject(_ context.Context, _ shared.SubjectID) (string, error) {
	return t.teacherID, t.err
}

// fakeCache записывает сбросы проекций.
type fakeCache struct {
	mu          sync.Mutex
	invalidated []string
}

func (c *fakeCache) Get(_ context.Context, _ string) (*query.ScheduleDTO, error) { return nil, nil }
func (c *fakeCache) Set(_ context.Context, _ string, _ *query.ScheduleDTO) error { return nil }

func (c *fakeCache) InvalidateStudent(_ context.Context, studentID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, studentID)
	return nil
}

func testRecord(t *testing.T) *progress.Record {
	t.Helper()

	date := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	slot := schedule.Slot{
		StudentID:              testStudentID,
		LessonTopicID:          testTopicID,
		SubjectID:              testSubjectID,
		SubjectName:            "Mathematics",
		PeriodSequence:         2,
		TotalPeriodsInSequence: 3,
		ScheduledDate:          date,
		StartTime:              schedule.TimeOfDay{Hour: 9, Minute: 0},
		EndTime:                schedule.TimeOfDay{Hour: 9, Minute: 45},
		Category:               schedule.CategorySchool,
	}
	window, err := schedule.NewCalculator(30 * time.Minute).Compute(slot)
	require.NoError(t, err)

	return progress.NewRecord(slot, window, date)
}

func expiredEvent(t *testing.T) progress.AssessmentExpiredEvent {
	t.Helper()

	rec := testRecord(t)
	return progress.NewAssessmentExpiredEvent(rec, progress.ReasonMissedGracePeriod, rec.GraceEnd.Add(time.Minute))
}

func TestOnAssessmentExpired_NotifiesStudentAndTeacher(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	cache := &fakeCache{}
	h := NewOnAssessmentExpiredHandler(
		dispatcher,
		&fakeTeachers{teacherID: testTeacherID},
		cache,
		nil,
		DefaultAssessmentExpiredConfig(),
	)

	require.NoError(t, h.Handle()(expiredEvent(t)))
	require.Equal(t, 2, dispatcher.count())

	// Ученику - личное уведомление о пропуске.
	student := dispatcher.byType(notification.TypeAssessmentExpiredStudent)
	require.NotNil(t, student)
	assert.Equal(t, testStudentID.String(), student.RecipientID)
	assert.Equal(t, notification.RoleStudent, student.Role)
	assert.Contains(t, student.Body, "Mathematics")
	assert.Contains(t, student.Body, "период 2 из 3")

	// Учителю предмета - сводка.
	teacher := dispatcher.byType(notification.TypeAssessmentExpiredTeacher)
	require.NotNil(t, teacher)
	assert.Equal(t, testTeacherID, teacher.RecipientID)
	assert.Equal(t, notification.RoleTeacher, teacher.Role)

	// Проекция расписания ученика сброшена.
	assert.Equal(t, []string{testStudentID.String()}, cache.invalidated)
}

func TestOnAssessmentExpired_ConfigGatesRecipients(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	h := NewOnAssessmentExpiredHandler(
		dispatcher,
		&fakeTeachers{teacherID: testTeacherID},
		nil,
		nil,
		AssessmentExpiredConfig{NotifyStudent: false, NotifyTeacher: true, HandlerTimeout: time.Second},
	)

	require.NoError(t, h.Handle()(expiredEvent(t)))
	require.Equal(t, 1, dispatcher.count())
	assert.Nil(t, dispatcher.byType(notification.TypeAssessmentExpiredStudent))
	assert.NotNil(t, dispatcher.byType(notification.TypeAssessmentExpiredTeacher))
}

func TestOnAssessmentExpired_TeacherLookupFailureSkipsTeacherNotice(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	h := NewOnAssessmentExpiredHandler(
		dispatcher,
		&fakeTeachers{err: errors.New("authoring module down")},
		nil,
		nil,
		DefaultAssessmentExpiredConfig(),
	)

	// Сбой справочника не ломает обработку: ученик уведомлён, учитель - нет.
	require.NoError(t, h.Handle()(expiredEvent(t)))
	require.Equal(t, 1, dispatcher.count())
	assert.NotNil(t, dispatcher.byType(notification.TypeAssessmentExpiredStudent))
}

func TestOnAssessmentExpired_IgnoresForeignEvents(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	h := NewOnAssessmentExpiredHandler(
		dispatcher,
		&fakeTeachers{teacherID: testTeacherID},
		nil,
		nil,
		DefaultAssessmentExpiredConfig(),
	)

	date := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	foreign := schedule.NewTopicMissingEvent(schedule.Slot{
		StudentID:   testStudentID,
		SubjectID:   testSubjectID,
		SubjectName: "Mathematics",
	}, date)

	require.NoError(t, h.Handle()(foreign))
	assert.Zero(t, dispatcher.count())
}
