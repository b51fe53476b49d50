package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"learner-retention/internal/domain"
	"learner-retention/internal/infra/metrics"
	"learner-retention/internal/usecase/engagement"
)

// neutralScore присваивается обучающемуся, которого не удалось обсчитать.
const neutralScore = 0.5

// FactorProcessingFailed помечает нейтральную оценку после сбоя обработки.
const FactorProcessingFailed = "Risk data unavailable - neutral score assigned"

// Service выполняет конвейер оценки риска: метрики → эвристика →
// консультант → смешивание → сохранение.
type Service struct {
	learners       domain.LearnerRepo
	activities     domain.ActivityRepo
	enrollments    domain.EnrollmentRepo
	advisor        domain.RiskAdvisor
	pacer          domain.Pacer
	advisorTimeout time.Duration
	activityWindow time.Duration
	log            zerolog.Logger
}

var _ domain.RiskService = (*Service)(nil)

// NewService создаёт сервис оценки риска.
func NewService(learners domain.LearnerRepo, activities domain.ActivityRepo, enrollments domain.EnrollmentRepo, advisor domain.RiskAdvisor, pacer domain.Pacer, advisorTimeout, activityWindow time.Duration, logger zerolog.Logger) *Service {
	if advisorTimeout <= 0 {
		advisorTimeout = 20 * time.Second
	}
	if activityWindow <= 0 {
		activityWindow = 90 * 24 * time.Hour
	}
	return &Service{
		learners:       learners,
		activities:     activities,
		enrollments:    enrollments,
		advisor:        advisor,
		pacer:          pacer,
		advisorTimeout: advisorTimeout,
		activityWindow: activityWindow,
		log:            logger,
	}
}

// AssessLearner прогоняет одного обучающегося через конвейер и сохраняет
// итоговый риск на все его записи на курсы.
func (s *Service) AssessLearner(ctx context.Context, learnerID int64) (domain.RiskAssessment, error) {
	now := time.Now().UTC()

	learner, err := s.learners.GetLearner(ctx, learnerID)
	if err != nil {
		return domain.RiskAssessment{}, fmt.Errorf("получение обучающегося: %w", err)
	}
	recent, err := s.activities.ListActivities(ctx, learnerID, now.Add(-s.activityWindow))
	if err != nil {
		return domain.RiskAssessment{}, fmt.Errorf("история активности: %w", err)
	}

	m := engagement.Aggregate(learner, recent, now)
	heuristic, factors := Estimate(m)
	recs := Recommend(m)

	advice := s.requestAdvice(ctx, learner, m, recent)
	assessment := Blend(learnerID, heuristic, factors, recs, advice, now)

	if len(learner.Enrollments) > 0 {
		if err := s.enrollments.UpdateEnrollmentRisk(ctx, learnerID, assessment.Score, now); err != nil {
			return domain.RiskAssessment{}, fmt.Errorf("сохранение риска: %w", err)
		}
	}
	return assessment, nil
}

// requestAdvice опрашивает консультанта с ограничением темпа и таймаутом.
// Любой сбой превращается в nil: конвейер продолжает работу на эвристике.
func (s *Service) requestAdvice(ctx context.Context, learner domain.Learner, m domain.EngagementMetrics, recent []domain.ActivityRecord) *domain.RiskAdvice {
	if s.advisor == nil {
		return nil
	}
	if s.pacer != nil {
		if err := s.pacer.Wait(ctx); err != nil {
			s.log.Warn().Err(err).Int64("learner", learner.ID).Msg("risk: ожидание темпа прервано")
			return nil
		}
	}
	adviceCtx, cancel := context.WithTimeout(ctx, s.advisorTimeout)
	defer cancel()
	advice, err := s.advisor.AssessLearner(adviceCtx, learner, m, recent)
	if err != nil {
		metrics.AdvisorFallbacks.Inc()
		s.log.Warn().Err(err).Int64("learner", learner.ID).Msg("risk: консультант недоступен, работаем на эвристике")
		return nil
	}
	return &advice
}

// RecomputeAll пересчитывает риск для всех обучающихся.
// Сбой одного обучающегося не прерывает пакет: ему присваивается
// нейтральная оценка, остальные обрабатываются дальше.
func (s *Service) RecomputeAll(ctx context.Context) (domain.BatchResult, error) {
	start := time.Now().UTC()
	defer func() {
		metrics.RiskBatchSeconds.Observe(time.Since(start).Seconds())
	}()

	ids, err := s.learners.ListLearnerIDs(ctx)
	if err != nil {
		return domain.BatchResult{}, fmt.Errorf("список обучающихся: %w", err)
	}

	result := domain.BatchResult{StartedAt: start}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		assessment, err := s.AssessLearner(ctx, id)
		if err != nil {
			metrics.RiskLearnerFailures.Inc()
			s.log.Error().Err(err).Int64("learner", id).Msg("risk: сбой обработки, назначаем нейтральный риск")
			assessment = neutralAssessment(id)
			result.Failed++
		}
		result.Assessments = append(result.Assessments, assessment)
		result.Processed++
	}
	result.FinishedAt = time.Now().UTC()
	s.log.Info().
		Int("processed", result.Processed).
		Int("failed", result.Failed).
		Dur("took", result.FinishedAt.Sub(result.StartedAt)).
		Msg("risk: пакетный пересчёт завершён")
	return result, nil
}

func neutralAssessment(learnerID int64) domain.RiskAssessment {
	return domain.RiskAssessment{
		LearnerID:  learnerID,
		Score:      neutralScore,
		Tier:       domain.ClassifyTier(neutralScore),
		Factors:    []string{FactorProcessingFailed},
		Confidence: 0.3,
		ComputedAt: time.Now().UTC(),
	}
}
