package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"learner-retention/internal/domain"
	"learner-retention/internal/infra/metrics"
)

// advisorTimeout ограничивает платформенный запрос к консультанту.
const advisorTimeout = 30 * time.Second

// Service строит идемпотентный дневной снимок платформенного риска.
type Service struct {
	risk      domain.RiskService
	learners  domain.LearnerRepo
	snapshots domain.SnapshotRepo
	advisor   domain.RiskAdvisor
	log       zerolog.Logger
}

var _ domain.SnapshotService = (*Service)(nil)

// NewService создаёт сервис снимков.
func NewService(risk domain.RiskService, learners domain.LearnerRepo, snapshots domain.SnapshotRepo, advisor domain.RiskAdvisor, logger zerolog.Logger) *Service {
	return &Service{risk: risk, learners: learners, snapshots: snapshots, advisor: advisor, log: logger}
}

// BuildToday пересчитывает риск всех обучающихся и записывает снимок
// за сегодняшнюю дату. Повторный запуск в тот же день перезаписывает
// содержимое, но не создаёт второй записи.
func (s *Service) BuildToday(ctx context.Context) (domain.DailyRiskSnapshot, error) {
	now := time.Now().UTC()
	date := Normalize(now)

	// Индивидуальный проход: свежие оценки до агрегации.
	batch, err := s.risk.RecomputeAll(ctx)
	if err != nil {
		metrics.SnapshotUpserts.WithLabelValues("error").Inc()
		return domain.DailyRiskSnapshot{}, fmt.Errorf("пересчёт риска: %w", err)
	}
	s.log.Info().Int("learners", batch.Processed).Msg("snapshot: индивидуальный проход завершён")

	// Агрегирующий проход по сохранённым оценкам записей на курсы.
	rows, err := s.learners.ListRiskAverages(ctx)
	if err != nil {
		metrics.SnapshotUpserts.WithLabelValues("error").Inc()
		return domain.DailyRiskSnapshot{}, fmt.Errorf("сводка риска: %w", err)
	}

	snap := domain.DailyRiskSnapshot{Date: date}
	var scoreSum float64
	for _, row := range rows {
		snap.TotalLearners++
		// Без записей на курсы обучающийся учитывается в низком риске.
		tier := domain.RiskLow
		if row.Enrollments > 0 {
			tier = domain.ClassifyTier(row.AvgRisk)
			scoreSum += row.AvgRisk
		}
		switch tier {
		case domain.RiskHigh:
			snap.Distribution.High++
		case domain.RiskMedium:
			snap.Distribution.Medium++
		default:
			snap.Distribution.Low++
		}
	}
	if snap.TotalLearners > 0 {
		snap.AverageRiskScore = scoreSum / float64(snap.TotalLearners)
	}

	snap.DailyChange = s.deltaAgainst(ctx, date.AddDate(0, 0, -1), snap.Distribution)
	snap.WeeklyChange = s.deltaAgainst(ctx, date.AddDate(0, 0, -7), snap.Distribution)
	snap.Analysis = s.platformAnalysis(ctx, snap)

	saved, err := s.snapshots.UpsertSnapshot(ctx, snap)
	if err != nil {
		metrics.SnapshotUpserts.WithLabelValues("error").Inc()
		return domain.DailyRiskSnapshot{}, fmt.Errorf("сохранение снимка: %w", err)
	}
	metrics.SnapshotUpserts.WithLabelValues("success").Inc()
	s.log.Info().
		Time("date", saved.Date).
		Int("total", saved.TotalLearners).
		Int("high", saved.Distribution.High).
		Float64("avg", saved.AverageRiskScore).
		Msg("snapshot: дневной снимок записан")
	return saved, nil
}

// deltaAgainst сравнивает текущее распределение со снимком за прошлую дату.
// Отсутствующий снимок даёт нулевые дельты.
func (s *Service) deltaAgainst(ctx context.Context, date time.Time, current domain.TierCounts) domain.TierDeltas {
	prev, err := s.snapshots.GetSnapshotByDate(ctx, date)
	if err != nil {
		if !errors.Is(err, domain.ErrSnapshotNotFound) {
			s.log.Warn().Err(err).Time("date", date).Msg("snapshot: не удалось прочитать прошлый снимок")
		}
		return domain.TierDeltas{}
	}
	return domain.TierDeltas{
		High:   current.High - prev.Distribution.High,
		Medium: current.Medium - prev.Distribution.Medium,
		Low:    current.Low - prev.Distribution.Low,
	}
}

func (s *Service) platformAnalysis(ctx context.Context, snap domain.DailyRiskSnapshot) domain.PlatformAdvice {
	if s.advisor == nil {
		return fallbackAnalysis()
	}
	adviceCtx, cancel := context.WithTimeout(ctx, advisorTimeout)
	defer cancel()
	advice, err := s.advisor.AssessPlatform(adviceCtx, snap)
	if err != nil {
		metrics.AdvisorFallbacks.Inc()
		s.log.Warn().Err(err).Msg("snapshot: платформенный анализ недоступен")
		return fallbackAnalysis()
	}
	return advice
}

func fallbackAnalysis() domain.PlatformAdvice {
	return domain.PlatformAdvice{
		Summary:    "Automated analysis is unavailable; figures reflect heuristic aggregates only.",
		Confidence: 0.3,
	}
}

// Normalize приводит дату снимка к полуночи UTC.
func Normalize(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
