package progress

import (
	"context"
	"time"

	"github.com/eduhub/assessment-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY CONTRACT
// Переходы Link/MarkMissed применяются условной записью: хранилище
// обновляет запись, только если она всё ещё в допустимом исходном
// состоянии. applied=false означает проигранную гонку - вызывающий
// перечитывает запись и классифицирует исход.
// ══════════════════════════════════════════════════════════════════════════════

// Repository - хранилище записей прогресса.
type Repository interface {
	// Create сохраняет новую запись.
	// Возвращает ErrRecordAlreadyExists при нарушении уникальности ключа
	// (ученик, тема, период).
	Create(ctx context.Context, record *Record) error

	// GetByID возвращает запись по идентификатору.
	// Возвращает ErrRecordNotFound, если записи нет.
	GetByID(ctx context.Context, id string) (*Record, error)

	// GetByKey возвращает запись по уникальному ключу.
	// Возвращает ErrRecordNotFound, если записи нет.
	GetByKey(ctx context.Context, key Key) (*Record, error)

	// FindByStudentAndTopic возвращает все записи ученика по теме,
	// отсортированные по номеру периода.
	FindByStudentAndTopic(ctx context.Context, studentID shared.StudentID, topicID shared.LessonTopicID) ([]*Record, error)

	// FindByStudentBetween возвращает записи ученика с датой урока
	// в интервале [from, to), отсортированные по дате и номеру периода.
	FindByStudentBetween(ctx context.Context, studentID shared.StudentID, from, to time.Time) ([]*Record, error)

	// FindUnlinkedByStudent возвращает открытые записи ученика без
	// привязанной сдачи (кандидаты на привязку).
	FindUnlinkedByStudent(ctx context.Context, studentID shared.StudentID) ([]*Record, error)

	// FindExpired возвращает не более limit открытых записей, чей льготный
	// период истёк до cutoff (кандидаты свипа), старейшие первыми.
	FindExpired(ctx context.Context, cutoff time.Time, limit int) ([]*Record, error)

	// LinkSubmission атомарно привязывает сдачу к записи:
	// запись обновляется, только если сдача ещё не привязана и причина
	// пропуска не выставлена. applied=false - условие не выполнено,
	// состояние записи не изменено.
	LinkSubmission(ctx context.Context, recordID string, submissionID shared.SubmissionID, completedAt time.Time, score *shared.Score, now time.Time) (applied bool, err error)

	// MarkMissed атомарно помечает запись пропущенной: запись обновляется,
	// только если она всё ещё открыта. applied=false - условие не
	// выполнено, состояние записи не изменено.
	MarkMissed(ctx context.Context, recordID string, reason IncompleteReason, markedAt time.Time) (applied bool, err error)

	// DeleteOpenByStudentBetween удаляет открытые записи ученика с датой
	// урока в интервале [from, to). Терминальные записи не трогаются:
	// перегенерация расписания не стирает историю завершений и пропусков.
	// Возвращает число удалённых записей.
	DeleteOpenByStudentBetween(ctx context.Context, studentID shared.StudentID, from, to time.Time) (int64, error)

	// CountByTerminal возвращает количество записей в каждом терминальном
	// состоянии (для админ-статистики).
	CountByTerminal(ctx context.Context) (map[Terminal]int64, error)
}
