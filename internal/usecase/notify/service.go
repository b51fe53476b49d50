package notify

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"learner-retention/internal/domain"
	"learner-retention/internal/infra/metrics"
)

// smsEscalationHours — порог неактивности, после которого высокий риск
// дополнительно эскалируется через SMS.
const smsEscalationHours = 48

// Service решает, кого и как уведомлять, и фиксирует каждую попытку.
// Все зависимости внедряются при создании: глобального состояния нет.
type Service struct {
	learners      domain.LearnerRepo
	notifications domain.NotificationRepo
	inapp         domain.InAppStore
	email         domain.EmailSender
	sms           domain.SMSSender
	queue         domain.NotificationQueue
	rng           *rand.Rand
	log           zerolog.Logger
}

var _ domain.NotifyService = (*Service)(nil)

// NewService создаёт диспетчер уведомлений. Очередь опциональна: при её
// наличии пакетный обход ставит задачи вместо прямой доставки.
func NewService(learners domain.LearnerRepo, notifications domain.NotificationRepo, inapp domain.InAppStore, email domain.EmailSender, sms domain.SMSSender, queue domain.NotificationQueue, logger zerolog.Logger) *Service {
	return &Service{
		learners:      learners,
		notifications: notifications,
		inapp:         inapp,
		email:         email,
		sms:           sms,
		queue:         queue,
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
		log:           logger,
	}
}

// DispatchForLearner проверяет охлаждение и при праве на отправку
// доставляет вмешательство. Возвращает nil без ошибки, если уведомление
// сейчас не положено.
func (s *Service) DispatchForLearner(ctx context.Context, learnerID int64) (*domain.InterventionNotification, error) {
	learner, err := s.learners.GetLearner(ctx, learnerID)
	if err != nil {
		return nil, fmt.Errorf("получение обучающегося: %w", err)
	}

	now := time.Now().UTC()
	tier := domain.ClassifyTier(learner.AverageEnrollmentRisk())
	hoursSinceLogin := hoursSince(learner.LastLogin, now)

	last, err := s.notifications.LastNotification(ctx, learnerID, tier)
	if err != nil {
		return nil, fmt.Errorf("последнее уведомление: %w", err)
	}
	if !Eligible(last, tier, hoursSinceLogin, now) {
		s.log.Debug().Int64("learner", learnerID).Str("tier", string(tier)).Msg("notify: охлаждение не истекло")
		return nil, nil
	}
	return s.dispatch(ctx, learner, tier, hoursSinceLogin, now)
}

// dispatch доставляет уведомление по каналам уровня. Каналы независимы:
// отказ одного не мешает остальным, каждый исход фиксируется.
func (s *Service) dispatch(ctx context.Context, learner domain.Learner, tier domain.RiskTier, hoursSinceLogin float64, now time.Time) (*domain.InterventionNotification, error) {
	var results []domain.ChannelResult

	switch tier {
	case domain.RiskHigh:
		results = append(results, s.sendEmail(ctx, learner, highTierEmail(learner)))
		if hoursSinceLogin > smsEscalationHours {
			results = append(results, s.sendSMS(ctx, learner, highTierSMS(learner)))
		}
		results = append(results, s.saveInApp(ctx, domain.InAppMessage{
			LearnerID:      learner.ID,
			Title:          "Your learning needs attention",
			Body:           "Your course activity has dropped significantly. Here is how to get back on track:",
			Category:       "intervention",
			ActionRequired: true,
			Suggestions:    highTierSuggestions,
		}))
	case domain.RiskMedium:
		results = append(results, s.sendEmail(ctx, learner, mediumTierEmail(learner)))
		results = append(results, s.saveInApp(ctx, domain.InAppMessage{
			LearnerID:   learner.ID,
			Title:       "Keep your momentum going",
			Body:        "Your activity has slowed down. These resources can help:",
			Category:    "support",
			Suggestions: mediumTierSupport,
		}))
	default:
		body := pickMotivational(s.rng) + "\n\n" + nextMilestone(learner.AverageProgress())
		results = append(results, s.saveInApp(ctx, domain.InAppMessage{
			LearnerID: learner.ID,
			Title:     "Keep it up!",
			Body:      body,
			Category:  "motivation",
		}))
	}

	notification := domain.InterventionNotification{
		ID:             uuid.NewString(),
		LearnerID:      learner.ID,
		RiskTier:       tier,
		ChannelResults: results,
		Status:         overallStatus(results),
		SentAt:         now,
	}
	for _, r := range results {
		notification.Channels = append(notification.Channels, r.Channel)
	}

	if err := s.notifications.SaveNotification(ctx, notification); err != nil {
		return nil, fmt.Errorf("запись уведомления: %w", err)
	}
	s.log.Info().
		Int64("learner", learner.ID).
		Str("tier", string(tier)).
		Strs("channels", notification.Channels).
		Str("status", notification.Status).
		Msg("notify: вмешательство отправлено")
	return &notification, nil
}

// SweepAll обходит всех обучающихся и запускает решение об уведомлении
// для каждого. Сбои отдельных обучающихся не прерывают обход.
func (s *Service) SweepAll(ctx context.Context) (domain.SweepResult, error) {
	start := time.Now()
	defer func() {
		metrics.NotificationSweepSeconds.Observe(time.Since(start).Seconds())
	}()

	ids, err := s.learners.ListLearnerIDs(ctx)
	if err != nil {
		return domain.SweepResult{}, fmt.Errorf("список обучающихся: %w", err)
	}

	var result domain.SweepResult
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Processed++

		if s.queue != nil {
			if err := s.enqueue(ctx, id); err != nil {
				s.log.Error().Err(err).Int64("learner", id).Msg("notify: не удалось поставить задачу")
				result.Failed++
				continue
			}
			result.Sent++
			continue
		}

		sent, err := s.DispatchForLearner(ctx, id)
		switch {
		case err != nil:
			s.log.Error().Err(err).Int64("learner", id).Msg("notify: сбой доставки")
			result.Failed++
		case sent == nil:
			result.Skipped++
		default:
			result.Sent++
		}
	}
	s.log.Info().
		Int("processed", result.Processed).
		Int("sent", result.Sent).
		Int("skipped", result.Skipped).
		Int("failed", result.Failed).
		Msg("notify: пакетный обход завершён")
	return result, nil
}

// enqueue ставит задачу на доставку; право на отправку перепроверит
// потребитель очереди.
func (s *Service) enqueue(ctx context.Context, learnerID int64) error {
	return s.queue.Enqueue(ctx, domain.NotificationJob{
		JobID:      uuid.NewString(),
		LearnerID:  learnerID,
		EnqueuedAt: time.Now().UTC(),
	})
}

func (s *Service) sendEmail(ctx context.Context, learner domain.Learner, payload domain.MessagePayload) domain.ChannelResult {
	if s.email == nil || learner.Profile.Email == "" {
		return domain.ChannelResult{Channel: domain.ChannelEmail, Error: "адрес не задан или канал выключен"}
	}
	result, err := s.email.SendEmail(ctx, learner.Profile.Email, payload)
	if err != nil {
		s.log.Warn().Err(err).Int64("learner", learner.ID).Msg("notify: письмо не отправлено")
		result = domain.ChannelResult{Channel: domain.ChannelEmail, Error: err.Error()}
	}
	metrics.IncNotification(domain.ChannelEmail, result.Success)
	return result
}

func (s *Service) sendSMS(ctx context.Context, learner domain.Learner, payload domain.MessagePayload) domain.ChannelResult {
	if s.sms == nil || learner.Profile.Phone == "" {
		return domain.ChannelResult{Channel: domain.ChannelSMS, Error: "номер не задан или канал выключен"}
	}
	result, err := s.sms.SendSMS(ctx, learner.Profile.Phone, payload)
	if err != nil {
		s.log.Warn().Err(err).Int64("learner", learner.ID).Msg("notify: SMS не отправлено")
		result = domain.ChannelResult{Channel: domain.ChannelSMS, Error: err.Error()}
	}
	metrics.IncNotification(domain.ChannelSMS, result.Success)
	return result
}

func (s *Service) saveInApp(ctx context.Context, msg domain.InAppMessage) domain.ChannelResult {
	msg.ID = uuid.NewString()
	msg.CreatedAt = time.Now().UTC()
	id, err := s.inapp.SaveInAppMessage(ctx, msg)
	if err != nil {
		s.log.Warn().Err(err).Int64("learner", msg.LearnerID).Msg("notify: сообщение в приложении не сохранено")
		metrics.IncNotification(domain.ChannelInApp, false)
		return domain.ChannelResult{Channel: domain.ChannelInApp, Error: err.Error()}
	}
	metrics.IncNotification(domain.ChannelInApp, true)
	return domain.ChannelResult{Channel: domain.ChannelInApp, Success: true, MessageID: id}
}

func overallStatus(results []domain.ChannelResult) string {
	success := 0
	for _, r := range results {
		if r.Success {
			success++
		}
	}
	switch {
	case success == len(results) && len(results) > 0:
		return domain.NotificationSent
	case success > 0:
		return domain.NotificationPartial
	default:
		return domain.NotificationFailed
	}
}

func hoursSince(t, now time.Time) float64 {
	if t.IsZero() {
		// Ни одного входа: считаем неактивность максимальной.
		return float64(30 * 24)
	}
	h := now.Sub(t).Hours()
	if h < 0 {
		return 0
	}
	return h
}
