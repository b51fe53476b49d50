package engagement

import (
	"sort"
	"time"

	"learner-retention/internal/domain"
)

// staleDays присваивается, когда ни входов, ни активности не зафиксировано.
const staleDays = 30

// Aggregate сворачивает профиль и историю активности в метрики вовлечённости.
// Чистая функция: всё время берётся из аргумента now.
func Aggregate(learner domain.Learner, activities []domain.ActivityRecord, now time.Time) domain.EngagementMetrics {
	m := domain.EngagementMetrics{
		TotalHours:        learner.TotalHours,
		AvgSessionMinutes: learner.AvgSessionMinutes,
		CompletionRate:    learner.CompletionRate,
		TotalCourses:      len(learner.Enrollments),
		AverageProgress:   learner.AverageProgress(),
	}

	completed := 0
	for _, e := range learner.Enrollments {
		switch e.Status {
		case domain.EnrollmentActive, domain.EnrollmentAtRisk:
			m.ActiveCourses++
		case domain.EnrollmentCompleted:
			completed++
		}
	}
	if m.TotalCourses > 0 {
		m.CompletionRate = float64(completed) / float64(m.TotalCourses)
	}

	var (
		activityHours float64
		durations     []float64
		lastSeen      = learner.LastLogin
	)
	days := make(map[string]struct{})
	for _, a := range activities {
		activityHours += a.DurationMinutes / 60
		if a.DurationMinutes > 0 {
			durations = append(durations, a.DurationMinutes)
		}
		if a.OccurredAt.After(lastSeen) {
			lastSeen = a.OccurredAt
		}
		age := now.Sub(a.OccurredAt)
		if age >= 0 && age <= 7*24*time.Hour {
			m.RecentCount7d++
		}
		if age >= 0 && age <= 30*24*time.Hour {
			m.RecentCount30d++
		}
		days[a.OccurredAt.UTC().Format("2006-01-02")] = struct{}{}
	}

	if activityHours > m.TotalHours {
		m.TotalHours = activityHours
	}
	if len(durations) > 0 {
		var sum float64
		for _, d := range durations {
			sum += d
		}
		m.AvgSessionMinutes = sum / float64(len(durations))
	}

	switch {
	case !lastSeen.IsZero():
		m.DaysSinceLastLogin = daysBetween(lastSeen, now)
	case !learner.Profile.JoinDate.IsZero():
		m.DaysSinceLastLogin = daysBetween(learner.Profile.JoinDate, now)
	default:
		m.DaysSinceLastLogin = staleDays
	}

	m.CurrentStreak, m.LongestStreak = streaks(days, now)
	if learner.LongestStreak > m.LongestStreak {
		m.LongestStreak = learner.LongestStreak
	}

	return m
}

func daysBetween(from, to time.Time) int {
	diff := int(to.Sub(from).Hours() / 24)
	if diff < 0 {
		return 0
	}
	return diff
}

// streaks считает текущую и максимальную серии дней с активностью.
// Текущая серия не прерывается, если последний активный день — вчера.
func streaks(days map[string]struct{}, now time.Time) (current, longest int) {
	if len(days) == 0 {
		return 0, 0
	}

	ordered := make([]time.Time, 0, len(days))
	for day := range days {
		parsed, err := time.Parse("2006-01-02", day)
		if err != nil {
			continue
		}
		ordered = append(ordered, parsed)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Before(ordered[j]) })

	run := 1
	longest = 1
	for i := 1; i < len(ordered); i++ {
		if ordered[i].Sub(ordered[i-1]) == 24*time.Hour {
			run++
		} else {
			run = 1
		}
		if run > longest {
			longest = run
		}
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	last := ordered[len(ordered)-1]
	gap := today.Sub(last)
	if gap == 0 || gap == 24*time.Hour {
		current = run
	}
	return current, longest
}
