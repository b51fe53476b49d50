package risk

import "learner-retention/internal/domain"

// Пороговые веса эвристической оценки. Таблица единая для всех путей
// вычисления: второй набор весов из старых резервных веток намеренно
// не воспроизводится.
const (
	weightInactive14d   = 0.40
	weightInactive7d    = 0.20
	weightCompletionLow = 0.25
	weightCompletionMid = 0.15
	weightNoRecent      = 0.20
	weightFewRecent     = 0.10
	weightNoStreak      = 0.10
	weightShortStreak   = 0.05
	weightNoCourses     = 0.05
)

// Тексты факторов риска, попадающие в аудит и уведомления.
const (
	FactorInactive14d   = "Inactive for more than 14 days"
	FactorInactive7d    = "Inactive for more than 7 days"
	FactorCompletionLow = "Low course completion rate"
	FactorCompletionMid = "Below average course completion rate"
	FactorNoRecent      = "No recent learning activity"
	FactorFewRecent     = "Low recent learning activity"
	FactorNoStreak      = "No current learning streak"
	FactorShortStreak   = "Short learning streak"
	FactorNoCourses     = "No active course enrollments"
)

// Estimate вычисляет эвристический риск по метрикам вовлечённости.
// Детерминированная чистая функция без ввода-вывода; каждый сработавший
// порог добавляет свой вес и читаемый фактор.
func Estimate(m domain.EngagementMetrics) (float64, []string) {
	var (
		score   float64
		factors []string
	)

	switch {
	case m.DaysSinceLastLogin > 14:
		score += weightInactive14d
		factors = append(factors, FactorInactive14d)
	case m.DaysSinceLastLogin > 7:
		score += weightInactive7d
		factors = append(factors, FactorInactive7d)
	}

	switch {
	case m.CompletionRate < 0.30:
		score += weightCompletionLow
		factors = append(factors, FactorCompletionLow)
	case m.CompletionRate < 0.60:
		score += weightCompletionMid
		factors = append(factors, FactorCompletionMid)
	}

	switch {
	case m.RecentCount7d == 0:
		score += weightNoRecent
		factors = append(factors, FactorNoRecent)
	case m.RecentCount7d <= 2:
		score += weightFewRecent
		factors = append(factors, FactorFewRecent)
	}

	switch {
	case m.CurrentStreak == 0:
		score += weightNoStreak
		factors = append(factors, FactorNoStreak)
	case m.CurrentStreak <= 2:
		score += weightShortStreak
		factors = append(factors, FactorShortStreak)
	}

	if m.ActiveCourses == 0 {
		score += weightNoCourses
		factors = append(factors, FactorNoCourses)
	}

	return clamp01(score), factors
}

// Recommend подбирает рекомендации по вмешательству без участия
// внешнего консультанта.
func Recommend(m domain.EngagementMetrics) []string {
	var out []string
	if m.DaysSinceLastLogin > 7 {
		out = append(out, "Schedule a re-engagement intervention - learner has not logged in recently")
	}
	if m.AverageProgress < 0.3 && m.TotalCourses > 0 {
		out = append(out, "Offer learning path guidance and goal setting")
	}
	if m.RecentCount7d == 0 {
		out = append(out, "Send a motivational nudge to increase activity")
	}
	if m.ActiveCourses == 0 {
		out = append(out, "Suggest a new course matching past interests")
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
