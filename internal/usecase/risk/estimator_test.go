package risk

import (
	"math"
	"testing"

	"learner-retention/internal/domain"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestEstimateFullyDisengaged(t *testing.T) {
	m := domain.EngagementMetrics{
		DaysSinceLastLogin: 30,
		CompletionRate:     0,
		RecentCount7d:      0,
		CurrentStreak:      0,
		ActiveCourses:      0,
	}
	score, factors := Estimate(m)
	if !almostEqual(score, 1.0) {
		t.Fatalf("ожидали 1.0, получили %v", score)
	}
	want := []string{FactorInactive14d, FactorCompletionLow, FactorNoRecent, FactorNoStreak, FactorNoCourses}
	if len(factors) != len(want) {
		t.Fatalf("ожидали %d факторов, получили %d: %v", len(want), len(factors), factors)
	}
	for i, f := range want {
		if factors[i] != f {
			t.Fatalf("фактор %d: ожидали %q, получили %q", i, f, factors[i])
		}
	}
}

func TestEstimateInactivityStreakAndCourses(t *testing.T) {
	m := domain.EngagementMetrics{
		DaysSinceLastLogin: 20,
		CompletionRate:     0.8,
		RecentCount7d:      5,
		CurrentStreak:      0,
		ActiveCourses:      0,
	}
	score, factors := Estimate(m)
	if !almostEqual(score, 0.55) {
		t.Fatalf("ожидали 0.55, получили %v", score)
	}
	if len(factors) != 3 {
		t.Fatalf("ожидали 3 фактора, получили %v", factors)
	}
}

func TestEstimateMidThresholds(t *testing.T) {
	m := domain.EngagementMetrics{
		DaysSinceLastLogin: 10,
		CompletionRate:     0.45,
		RecentCount7d:      2,
		CurrentStreak:      1,
		ActiveCourses:      2,
	}
	score, factors := Estimate(m)
	if !almostEqual(score, 0.50) {
		t.Fatalf("ожидали 0.50, получили %v", score)
	}
	want := []string{FactorInactive7d, FactorCompletionMid, FactorFewRecent, FactorShortStreak}
	if len(factors) != len(want) {
		t.Fatalf("ожидали %d фактора, получили %v", len(want), factors)
	}
}

func TestEstimateHealthyLearner(t *testing.T) {
	m := domain.EngagementMetrics{
		DaysSinceLastLogin: 1,
		CompletionRate:     0.85,
		RecentCount7d:      6,
		CurrentStreak:      5,
		ActiveCourses:      2,
	}
	score, factors := Estimate(m)
	if score != 0 {
		t.Fatalf("ожидали нулевой риск, получили %v", score)
	}
	if len(factors) != 0 {
		t.Fatalf("не ожидали факторов, получили %v", factors)
	}
}

func TestRecommend(t *testing.T) {
	m := domain.EngagementMetrics{
		DaysSinceLastLogin: 20,
		RecentCount7d:      0,
		ActiveCourses:      0,
		TotalCourses:       2,
		AverageProgress:    0.1,
	}
	recs := Recommend(m)
	if len(recs) != 4 {
		t.Fatalf("ожидали 4 рекомендации, получили %v", recs)
	}
	if recs[0] != "Schedule a re-engagement intervention - learner has not logged in recently" {
		t.Fatalf("неожиданная первая рекомендация: %q", recs[0])
	}

	healthy := domain.EngagementMetrics{
		DaysSinceLastLogin: 1,
		RecentCount7d:      4,
		ActiveCourses:      1,
		TotalCourses:       1,
		AverageProgress:    0.7,
	}
	if recs := Recommend(healthy); len(recs) != 0 {
		t.Fatalf("не ожидали рекомендаций, получили %v", recs)
	}
}

func TestClamp01(t *testing.T) {
	if got := clamp01(-0.2); got != 0 {
		t.Fatalf("ожидали 0, получили %v", got)
	}
	if got := clamp01(1.5); got != 1 {
		t.Fatalf("ожидали 1, получили %v", got)
	}
	if got := clamp01(0.4); got != 0.4 {
		t.Fatalf("ожидали 0.4, получили %v", got)
	}
}
