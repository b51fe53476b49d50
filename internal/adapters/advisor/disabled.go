package advisor

import (
	"context"
	"errors"

	"learner-retention/internal/domain"
)

// ErrDisabled возвращается выключенным консультантом.
var ErrDisabled = errors.New("консультант выключен")

// Disabled — нулевой консультант для развёртываний без LLM и для
// детерминированных тестов: конвейер всегда уходит на эвристику.
type Disabled struct{}

var _ domain.RiskAdvisor = Disabled{}

// NewDisabled создаёт выключенного консультанта.
func NewDisabled() Disabled {
	return Disabled{}
}

// AssessLearner всегда сообщает о недоступности.
func (Disabled) AssessLearner(context.Context, domain.Learner, domain.EngagementMetrics, []domain.ActivityRecord) (domain.RiskAdvice, error) {
	return domain.RiskAdvice{}, ErrDisabled
}

// AssessPlatform всегда сообщает о недоступности.
func (Disabled) AssessPlatform(context.Context, domain.DailyRiskSnapshot) (domain.PlatformAdvice, error) {
	return domain.PlatformAdvice{}, ErrDisabled
}
