package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter задаёт равномерный темп обращений к внешнему сервису.
// Реализует domain.Pacer поверх token bucket.
type Limiter struct {
	limiter *rate.Limiter
}

// PerMinute создаёт ограничитель на указанное число вызовов в минуту.
// Burst равен единице: вызовы распределяются равномерно, а не пачками.
func PerMinute(calls int) *Limiter {
	if calls <= 0 {
		return &Limiter{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(float64(calls)/60.0), 1)}
}

// Wait блокирует до следующего разрешённого вызова.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}
