package eventhandler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduhub/assessment-engine/internal/domain/notification"
	"github.com/eduhub/assessment-engine/internal/domain/progress"
	"github.com/eduhub/assessment-engine/internal/domain/schedule"
	"github.com/eduhub/assessment-engine/internal/domain/shared"
)

func linkedEvent(t *testing.T) progress.SubmissionLinkedEvent {
	t.Helper()

	rec := testRecord(t)
	submissionID := shared.SubmissionID("1b2c3d4e-5f6a-4b8c-9d0e-1f2a3b4c5d6e")
	return progress.NewSubmissionLinkedEvent(rec, submissionID, rec.ScheduledDate.Add(9*time.Hour))
}

func topicMissingEvent() schedule.TopicMissingEvent {
	date := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	slot := schedule.Slot{
		StudentID:     testStudentID,
		SubjectID:     testSubjectID,
		SubjectName:   "Mathematics",
		ScheduledDate: date,
		StartTime:     schedule.TimeOfDay{Hour: 9, Minute: 0},
		EndTime:       schedule.TimeOfDay{Hour: 9, Minute: 45},
		Category:      schedule.CategorySchool,
	}
	return schedule.NewTopicMissingEvent(slot, date.Add(6*time.Hour))
}

func TestOnTopicMissing_NotifiesSubjectTeacher(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	h := NewOnTopicMissingHandler(dispatcher, &fakeTeachers{teacherID: testTeacherID}, nil)

	require.NoError(t, h.Handle()(topicMissingEvent()))
	require.Equal(t, 1, dispatcher.count())

	n := dispatcher.byType(notification.TypeTopicMissing)
	require.NotNil(t, n)
	assert.Equal(t, testTeacherID, n.RecipientID)
	assert.Equal(t, notification.RoleTeacher, n.Role)
	// Пробел в расписании блокирует создание аттестации - приоритет высокий.
	assert.Equal(t, notification.PriorityHigh, n.Priority)
	assert.Contains(t, n.Body, "15.01.2024")
}

func TestOnTopicMissing_NoTeacherNoNotice(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	h := NewOnTopicMissingHandler(dispatcher, &fakeTeachers{}, nil)

	require.NoError(t, h.Handle()(topicMissingEvent()))
	assert.Zero(t, dispatcher.count())
}

func TestOnSubmissionLinked_InvalidatesStudentProjections(t *testing.T) {
	cache := &fakeCache{}
	h := NewOnSubmissionLinkedHandler(cache, nil)

	event := linkedEvent(t)
	require.NoError(t, h.Handle()(event))
	assert.Equal(t, []string{testStudentID.String()}, cache.invalidated)

	// Без кэша обработчик - no-op.
	bare := NewOnSubmissionLinkedHandler(nil, nil)
	require.NoError(t, bare.Handle()(event))
}
