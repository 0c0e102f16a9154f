package notification

import (
	"errors"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// DISPATCH POLICY
// Правила отправки: тихие часы и лимиты частоты. Уведомление, попавшее
// под ограничение, помечается skipped - пропуск аттестации уже записан
// в прогрессе, уведомление лишь информирует.
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrInvalidHours - часы вне диапазона 0-23.
	ErrInvalidHours = errors.New("hours must be within 0-23")

	// ErrInvalidRateLimit - неположительный лимит частоты.
	ErrInvalidRateLimit = errors.New("rate limit must be positive")
)

// TimeConstraint - временное окно, в котором разрешена отправка.
type TimeConstraint struct {
	// HoursStart - начало окна отправки (0-23).
	HoursStart int

	// HoursEnd - конец окна отправки (0-23).
	HoursEnd int

	// Timezone - часовой пояс получателей (например, "Asia/Almaty").
	Timezone string
}

// NewTimeConstraint создаёт временное ограничение.
func NewTimeConstraint(hoursStart, hoursEnd int, timezone string) (*TimeConstraint, error) {
	if hoursStart < 0 || hoursStart > 23 || hoursEnd < 0 || hoursEnd > 23 {
		return nil, ErrInvalidHours
	}
	return &TimeConstraint{
		HoursStart: hoursStart,
		HoursEnd:   hoursEnd,
		Timezone:   timezone,
	}, nil
}

// IsAllowed проверяет, разрешена ли отправка в момент t.
func (tc *TimeConstraint) IsAllowed(t time.Time) bool {
	if tc.Timezone != "" {
		if loc, err := time.LoadLocation(tc.Timezone); err == nil {
			t = t.In(loc)
		}
	}

	hour := t.Hour()
	if tc.HoursStart <= tc.HoursEnd {
		// Обычное окно: 08:00 - 21:00.
		return hour >= tc.HoursStart && hour < tc.HoursEnd
	}
	// Окно через полночь: 21:00 - 08:00.
	return hour >= tc.HoursStart || hour < tc.HoursEnd
}

// RateLimit - лимит уведомлений одного типа на получателя.
type RateLimit struct {
	// MaxCount - максимум уведомлений за период.
	MaxCount int

	// Period - период, за который считается лимит.
	Period time.Duration
}

// NewRateLimit создаёт лимит частоты.
func NewRateLimit(maxCount int, period time.Duration) (*RateLimit, error) {
	if maxCount <= 0 || period <= 0 {
		return nil, ErrInvalidRateLimit
	}
	return &RateLimit{MaxCount: maxCount, Period: period}, nil
}

// IsExceeded проверяет, превышен ли лимит при currentCount отправленных.
func (rl *RateLimit) IsExceeded(currentCount int) bool {
	return currentCount >= rl.MaxCount
}

// Since возвращает начало окна лимита для момента now.
func (rl *RateLimit) Since(now time.Time) time.Time {
	return now.Add(-rl.Period)
}

// DispatchPolicy объединяет ограничения отправки.
type DispatchPolicy struct {
	// QuietHours - окно разрешённой отправки. nil - без ограничений.
	// Уведомления PriorityHigh игнорируют тихие часы.
	QuietHours *TimeConstraint

	// RateLimit - лимит частоты на (получатель, тип). nil - без лимита.
	RateLimit *RateLimit
}

// AllowsAt сообщает, разрешена ли отправка уведомления n в момент now
// по временным ограничениям.
func (p DispatchPolicy) AllowsAt(n *Notification, now time.Time) bool {
	if p.QuietHours == nil || n.Priority == PriorityHigh {
		return true
	}
	return p.QuietHours.IsAllowed(now)
}
