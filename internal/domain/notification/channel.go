// Package notification содержит доменную модель уведомлений движка аттестаций.
package notification

import (
	"context"
	"errors"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// CHANNEL TYPE
// ══════════════════════════════════════════════════════════════════════════════

// ChannelType определяет тип канала доставки уведомлений.
type ChannelType string

const (
	// ChannelTypeWebhook - доставка через webhook платформы.
	ChannelTypeWebhook ChannelType = "webhook"

	// ChannelTypeEmail - доставка по email (на будущее).
	ChannelTypeEmail ChannelType = "email"

	// ChannelTypeInApp - уведомления внутри приложения.
	ChannelTypeInApp ChannelType = "in_app"

	// ChannelTypeLog - запись в журнал вместо доставки (dev-режим).
	ChannelTypeLog ChannelType = "log"
)

// IsValid проверяет корректность типа канала.
func (ct ChannelType) IsValid() bool {
	switch ct {
	case ChannelTypeWebhook, ChannelTypeEmail, ChannelTypeInApp, ChannelTypeLog:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление типа канала.
func (ct ChannelType) String() string {
	return string(ct)
}

// ══════════════════════════════════════════════════════════════════════════════
// DELIVERY RESULT
// ══════════════════════════════════════════════════════════════════════════════

// DeliveryResult представляет результат доставки уведомления.
type DeliveryResult struct {
	// Success - успешно ли доставлено.
	Success bool

	// Channel - канал, через который было отправлено.
	Channel ChannelType

	// DeliveredAt - время попытки доставки.
	DeliveredAt time.Time

	// Error - ошибка доставки (если Success = false).
	Error error

	// Retryable - можно ли повторить отправку.
	Retryable bool

	// RetryAfter - через сколько можно повторить (для rate limiting).
	RetryAfter time.Duration
}

// NewSuccessResult создаёт результат успешной доставки.
func NewSuccessResult(channel ChannelType, at time.Time) DeliveryResult {
	return DeliveryResult{
		Success:     true,
		Channel:     channel,
		DeliveredAt: at.UTC(),
	}
}

// NewFailureResult создаёт результат неудачной доставки.
func NewFailureResult(channel ChannelType, err error, retryable bool, at time.Time) DeliveryResult {
	return DeliveryResult{
		Success:     false,
		Channel:     channel,
		DeliveredAt: at.UTC(),
		Error:       err,
		Retryable:   retryable,
	}
}

// NewRateLimitedResult создаёт результат с rate limiting.
func NewRateLimitedResult(channel ChannelType, retryAfter time.Duration, at time.Time) DeliveryResult {
	return DeliveryResult{
		Success:     false,
		Channel:     channel,
		DeliveredAt: at.UTC(),
		Error:       ErrRateLimited,
		Retryable:   true,
		RetryAfter:  retryAfter,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// PORTS
// ══════════════════════════════════════════════════════════════════════════════

// Channel - канал доставки уведомлений.
type Channel interface {
	// Type возвращает тип канала.
	Type() ChannelType

	// Send доставляет уведомление получателю.
	Send(ctx context.Context, n *Notification) DeliveryResult

	// IsAvailable сообщает, готов ли канал к отправке.
	IsAvailable(ctx context.Context) bool
}

// Dispatcher - сервис отправки уведомлений.
// Реализация применяет тихие часы и лимиты частоты из DispatchPolicy.
type Dispatcher interface {
	// Dispatch ставит уведомление в доставку. Возвращает ошибку только
	// при невалидном уведомлении: сбои каналов поглощаются и логируются.
	Dispatch(ctx context.Context, n *Notification) error
}

// Repository - хранилище уведомлений (журнал доставки).
type Repository interface {
	// Save сохраняет уведомление.
	Save(ctx context.Context, n *Notification) error

	// GetByID возвращает уведомление по ID.
	GetByID(ctx context.Context, id NotificationID) (*Notification, error)

	// CountRecentByRecipient считает уведомления получателю типа t,
	// созданные после since (для лимитов частоты).
	CountRecentByRecipient(ctx context.Context, recipientID string, t NotificationType, since time.Time) (int, error)

	// DeleteOlderThan удаляет завершённые уведомления, созданные до before.
	// Возвращает число удалённых строк.
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrChannelUnavailable - канал доставки недоступен.
	ErrChannelUnavailable = errors.New("notification channel unavailable")

	// ErrRateLimited - превышен лимит частоты канала.
	ErrRateLimited = errors.New("notification rate limited")

	// ErrNotificationNotFound - уведомление не найдено.
	ErrNotificationNotFound = errors.New("notification not found")
)
