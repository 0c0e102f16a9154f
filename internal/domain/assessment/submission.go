// Package assessment описывает контракт с внешним модулем аттестаций:
// сдачи учеников и признак выпуска учителем следующей аттестации.
// Движок прогресса читает эти данные, но не владеет ими.
package assessment

import (
	"context"
	"errors"
	"time"

	"github.com/eduhub/assessment-engine/internal/domain/shared"
)

// ErrSubmissionNotFound - сдача не найдена в модуле аттестаций.
var ErrSubmissionNotFound = errors.New("submission not found")

// Submission - завершённая сдача аттестации (read model).
type Submission struct {
	// ID - идентификатор сдачи.
	ID shared.SubmissionID

	// StudentID - ученик, выполнивший сдачу.
	StudentID shared.StudentID

	// LessonTopicID - тема урока, к которой относится сдача.
	LessonTopicID shared.LessonTopicID

	// SubmittedAt - момент завершения сдачи.
	SubmittedAt time.Time

	// Score - балл сдачи (nil, если ещё не оценена).
	Score *shared.Score
}

// Validate проверяет минимальную согласованность сдачи.
func (s Submission) Validate() error {
	if s.ID.IsEmpty() {
		return shared.NewDomainError("assessment", "Validate", shared.ErrEmptyValue, "submission ID is required")
	}
	if s.StudentID.IsEmpty() {
		return shared.NewDomainError("assessment", "Validate", shared.ErrEmptyValue, "student ID is required")
	}
	if s.LessonTopicID.IsEmpty() {
		return shared.NewDomainError("assessment", "Validate", shared.ErrEmptyValue, "lesson topic ID is required")
	}
	if s.SubmittedAt.IsZero() {
		return shared.NewDomainError("assessment", "Validate", shared.ErrEmptyValue, "submitted at is required")
	}
	return nil
}

// SubmissionSource - источник сдач внешнего модуля аттестаций.
type SubmissionSource interface {
	// GetByID возвращает сдачу по идентификатору.
	// Возвращает ErrSubmissionNotFound, если сдачи нет.
	GetByID(ctx context.Context, id shared.SubmissionID) (Submission, error)

	// FindUnprocessed возвращает не более limit сдач, ещё не привязанных
	// к записям прогресса, в порядке SubmittedAt.
	FindUnprocessed(ctx context.Context, limit int) ([]Submission, error)

	// FindByStudent возвращает не более limit сдач ученика
	// в порядке SubmittedAt (для ручной перепривязки).
	FindByStudent(ctx context.Context, studentID shared.StudentID, limit int) ([]Submission, error)
}

// FollowUpProvider сообщает, выпустил ли учитель аттестацию периода.
// Для многопериодных тем период k+1 открывается только после выпуска.
type FollowUpProvider interface {
	// FollowUpExists проверяет наличие аттестации периода periodSequence
	// темы topicID. При недоступности источника реализация обязана
	// возвращать (false, nil): безопасный отказ - период остаётся
	// заблокированным как "ожидает учителя", а не открывается досрочно.
	FollowUpExists(ctx context.Context, topicID shared.LessonTopicID, periodSequence int) (bool, error)
}
