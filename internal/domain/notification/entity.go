// Package notification содержит доменную модель уведомлений движка аттестаций.
// Уведомления информируют ученика и учителя о пропущенных аттестациях и
// пробелах в расписании. Доставка - best-effort: сбой уведомления никогда
// не откатывает переход состояния записи прогресса.
package notification

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/eduhub/assessment-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// NotificationID представляет уникальный идентификатор уведомления.
type NotificationID string

// IsValid проверяет, что ID не пустой.
func (id NotificationID) IsValid() bool {
	return len(id) > 0
}

// String возвращает строковое представление ID.
func (id NotificationID) String() string {
	return string(id)
}

// RecipientRole определяет роль получателя уведомления.
type RecipientRole string

const (
	// RoleStudent - уведомление адресовано ученику.
	RoleStudent RecipientRole = "student"

	// RoleTeacher - уведомление адресовано учителю предмета.
	RoleTeacher RecipientRole = "teacher"
)

// IsValid проверяет корректность роли.
func (r RecipientRole) IsValid() bool {
	return r == RoleStudent || r == RoleTeacher
}

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATION TYPE
// ══════════════════════════════════════════════════════════════════════════════

// NotificationType определяет тип уведомления.
type NotificationType string

const (
	// TypeAssessmentExpiredStudent - ученик пропустил аттестацию.
	// "Аттестация по Математике (период 2 из 3) пропущена."
	TypeAssessmentExpiredStudent NotificationType = "assessment_expired_student"

	// TypeAssessmentExpiredTeacher - сводка учителю о пропуске учеником.
	TypeAssessmentExpiredTeacher NotificationType = "assessment_expired_teacher"

	// TypeTopicMissing - на слот расписания не назначена тема урока.
	// Адресуется учителю предмета.
	TypeTopicMissing NotificationType = "topic_missing"
)

// IsValid проверяет корректность типа.
func (t NotificationType) IsValid() bool {
	switch t {
	case TypeAssessmentExpiredStudent, TypeAssessmentExpiredTeacher, TypeTopicMissing:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление типа.
func (t NotificationType) String() string {
	return string(t)
}

// DefaultRole возвращает роль получателя по умолчанию для типа.
func (t NotificationType) DefaultRole() RecipientRole {
	if t == TypeAssessmentExpiredStudent {
		return RoleStudent
	}
	return RoleTeacher
}

// ══════════════════════════════════════════════════════════════════════════════
// PRIORITY
// ══════════════════════════════════════════════════════════════════════════════

// Priority определяет приоритет доставки.
type Priority int

const (
	// PriorityLow - может подождать очереди.
	PriorityLow Priority = iota

	// PriorityNormal - обычная доставка.
	PriorityNormal

	// PriorityHigh - доставляется немедленно, минуя тихие часы.
	PriorityHigh
)

// String возвращает строковое представление приоритета.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityHigh:
		return "high"
	default:
		return "normal"
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// STATUS
// ══════════════════════════════════════════════════════════════════════════════

// Status - статус доставки уведомления.
type Status string

const (
	// StatusPending - уведомление создано, ещё не отправлялось.
	StatusPending Status = "pending"

	// StatusSending - идёт попытка доставки.
	StatusSending Status = "sending"

	// StatusDelivered - уведомление доставлено.
	StatusDelivered Status = "delivered"

	// StatusFailed - доставка не удалась после всех попыток.
	StatusFailed Status = "failed"

	// StatusSkipped - доставка пропущена (лимит частоты или тихие часы).
	StatusSkipped Status = "skipped"
)

// IsFinal сообщает, что статус окончательный.
func (s Status) IsFinal() bool {
	switch s {
	case StatusDelivered, StatusFailed, StatusSkipped:
		return true
	default:
		return false
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATION ENTITY
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrInvalidNotification - уведомление не прошло валидацию.
	ErrInvalidNotification = errors.New("invalid notification")

	// ErrInvalidStatusTransition - недопустимый переход статуса доставки.
	ErrInvalidStatusTransition = errors.New("invalid notification status transition")
)

// Notification - одно уведомление одному получателю.
type Notification struct {
	// ID - уникальный идентификатор уведомления.
	ID NotificationID

	// Type - тип уведомления.
	Type NotificationType

	// Role - роль получателя.
	Role RecipientRole

	// RecipientID - идентификатор получателя (ученик или учитель).
	RecipientID string

	// StudentID - ученик, которого касается уведомление.
	StudentID shared.StudentID

	// SubjectID - предмет.
	SubjectID shared.SubjectID

	// SubjectName - название предмета для текста сообщения.
	SubjectName string

	// Title - заголовок сообщения.
	Title string

	// Body - текст сообщения.
	Body string

	// Priority - приоритет доставки.
	Priority Priority

	// Status - текущий статус доставки.
	Status Status

	// Attempts - число выполненных попыток доставки.
	Attempts int

	// LastError - текст последней ошибки доставки.
	LastError string

	// CreatedAt - время создания.
	CreatedAt time.Time

	// DeliveredAt - время успешной доставки.
	DeliveredAt *time.Time
}

// NewNotificationParams - параметры создания уведомления.
type NewNotificationParams struct {
	Type        NotificationType
	Role        RecipientRole
	RecipientID string
	StudentID   shared.StudentID
	SubjectID   shared.SubjectID
	SubjectName string
	Title       string
	Body        string
	Priority    Priority
	Now         time.Time
}

// NewNotification создаёт уведомление в статусе pending.
func NewNotification(params NewNotificationParams) (*Notification, error) {
	if !params.Type.IsValid() {
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidNotification, params.Type)
	}
	if params.Role == "" {
		params.Role = params.Type.DefaultRole()
	}
	if !params.Role.IsValid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidNotification, params.Role)
	}
	if params.RecipientID == "" {
		return nil, fmt.Errorf("%w: recipient is required", ErrInvalidNotification)
	}
	if params.Body == "" {
		return nil, fmt.Errorf("%w: body is required", ErrInvalidNotification)
	}

	return &Notification{
		ID:          NotificationID(uuid.NewString()),
		Type:        params.Type,
		Role:        params.Role,
		RecipientID: params.RecipientID,
		StudentID:   params.StudentID,
		SubjectID:   params.SubjectID,
		SubjectName: params.SubjectName,
		Title:       params.Title,
		Body:        params.Body,
		Priority:    params.Priority,
		Status:      StatusPending,
		CreatedAt:   params.Now.UTC(),
	}, nil
}

// MarkSending переводит уведомление в статус sending и считает попытку.
func (n *Notification) MarkSending() error {
	if n.Status != StatusPending && n.Status != StatusSending {
		return fmt.Errorf("%w: %s -> sending", ErrInvalidStatusTransition, n.Status)
	}
	n.Status = StatusSending
	n.Attempts++
	return nil
}

// MarkDelivered переводит уведомление в статус delivered.
func (n *Notification) MarkDelivered(at time.Time) error {
	if n.Status != StatusSending {
		return fmt.Errorf("%w: %s -> delivered", ErrInvalidStatusTransition, n.Status)
	}
	deliveredAt := at.UTC()
	n.Status = StatusDelivered
	n.DeliveredAt = &deliveredAt
	return nil
}

// MarkFailed фиксирует окончательный сбой доставки.
func (n *Notification) MarkFailed(errText string) error {
	if n.Status.IsFinal() {
		return fmt.Errorf("%w: %s -> failed", ErrInvalidStatusTransition, n.Status)
	}
	n.Status = StatusFailed
	n.LastError = errText
	return nil
}

// MarkSkipped фиксирует пропуск доставки с причиной.
func (n *Notification) MarkSkipped(reason string) error {
	if n.Status.IsFinal() {
		return fmt.Errorf("%w: %s -> skipped", ErrInvalidStatusTransition, n.Status)
	}
	n.Status = StatusSkipped
	n.LastError = reason
	return nil
}

// String возвращает краткое описание уведомления для логов.
func (n *Notification) String() string {
	return fmt.Sprintf("Notification{%s %s -> %s, %s}", n.ID, n.Type, n.RecipientID, n.Status)
}
