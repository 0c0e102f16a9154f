package schedule

import (
	"time"

	"github.com/eduhub/assessment-engine/internal/domain/shared"
)

// TopicMissingEvent - на слот расписания не назначена тема урока.
// Запись прогресса для такого слота не создаётся; учитель предмета
// получает уведомление о пробеле.
type TopicMissingEvent struct {
	shared.BaseEvent
	StudentID     shared.StudentID `json:"student_id"`
	SubjectID     shared.SubjectID `json:"subject_id"`
	SubjectName   string           `json:"subject_name"`
	ScheduledDate time.Time        `json:"scheduled_date"`
	LessonStart   string           `json:"lesson_start"`
}

// NewTopicMissingEvent создаёт событие пробела в расписании.
func NewTopicMissingEvent(slot Slot, occurredAt time.Time) TopicMissingEvent {
	return TopicMissingEvent{
		BaseEvent:     shared.NewBaseEvent(shared.EventTopicMissing, slot.StudentID.String(), occurredAt),
		StudentID:     slot.StudentID,
		SubjectID:     slot.SubjectID,
		SubjectName:   slot.SubjectName,
		ScheduledDate: slot.Day(),
		LessonStart:   slot.StartTime.String(),
	}
}

// Payload implements shared.Event.
func (e TopicMissingEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id":     e.StudentID.String(),
		"subject_id":     e.SubjectID.String(),
		"subject_name":   e.SubjectName,
		"scheduled_date": e.ScheduledDate,
		"lesson_start":   e.LessonStart,
	}
}
