package notify

import (
	"time"

	"learner-retention/internal/domain"
)

// CooldownHours возвращает минимальный интервал между уведомлениями
// одного уровня для одного обучающегося. Чем дольше обучающийся не
// заходил, тем настойчивее допускается высокоуровневое вмешательство.
func CooldownHours(tier domain.RiskTier, hoursSinceLogin float64) float64 {
	switch tier {
	case domain.RiskHigh:
		switch {
		case hoursSinceLogin > 48:
			return 12
		case hoursSinceLogin > 24:
			return 24
		default:
			return 1
		}
	case domain.RiskMedium:
		if hoursSinceLogin > 48 {
			return 48
		}
		return 24
	default:
		return 72
	}
}

// Eligible решает, можно ли отправить уведомление данного уровня.
// Отсутствие предыдущего уведомления уровня означает безусловное «да».
func Eligible(last *domain.InterventionNotification, tier domain.RiskTier, hoursSinceLogin float64, now time.Time) bool {
	if last == nil {
		return true
	}
	elapsed := now.Sub(last.SentAt).Hours()
	return elapsed >= CooldownHours(tier, hoursSinceLogin)
}
