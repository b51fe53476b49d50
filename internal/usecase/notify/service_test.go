package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"learner-retention/internal/domain"
)

type stubLearners struct {
	learners map[int64]domain.Learner
}

func (s *stubLearners) ListLearnerIDs(context.Context) ([]int64, error) {
	ids := make([]int64, 0, len(s.learners))
	for id := range s.learners {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *stubLearners) GetLearner(_ context.Context, id int64) (domain.Learner, error) {
	l, ok := s.learners[id]
	if !ok {
		return domain.Learner{}, domain.ErrLearnerNotFound
	}
	return l, nil
}

func (s *stubLearners) ListRiskAverages(context.Context) ([]domain.LearnerRisk, error) {
	return nil, nil
}

type stubNotifications struct {
	saved []domain.InterventionNotification
	last  *domain.InterventionNotification
}

func (s *stubNotifications) SaveNotification(_ context.Context, n domain.InterventionNotification) error {
	s.saved = append(s.saved, n)
	return nil
}

func (s *stubNotifications) LastNotification(context.Context, int64, domain.RiskTier) (*domain.InterventionNotification, error) {
	return s.last, nil
}

type stubInApp struct {
	messages []domain.InAppMessage
	err      error
}

func (s *stubInApp) SaveInAppMessage(_ context.Context, msg domain.InAppMessage) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.messages = append(s.messages, msg)
	return "msg-1", nil
}

type fakeEmail struct {
	err  error
	sent int
}

func (f *fakeEmail) SendEmail(context.Context, string, domain.MessagePayload) (domain.ChannelResult, error) {
	if f.err != nil {
		return domain.ChannelResult{}, f.err
	}
	f.sent++
	return domain.ChannelResult{Channel: domain.ChannelEmail, Success: true, MessageID: "email-1"}, nil
}

type fakeSMS struct {
	err  error
	sent int
}

func (f *fakeSMS) SendSMS(context.Context, string, domain.MessagePayload) (domain.ChannelResult, error) {
	if f.err != nil {
		return domain.ChannelResult{}, f.err
	}
	f.sent++
	return domain.ChannelResult{Channel: domain.ChannelSMS, Success: true, MessageID: "sms-1"}, nil
}

type fakeQueue struct {
	jobs []domain.NotificationJob
}

func (f *fakeQueue) Enqueue(_ context.Context, job domain.NotificationJob) error {
	f.jobs = append(f.jobs, job)
	return nil
}

func (f *fakeQueue) Pop(context.Context) (domain.NotificationJob, error) {
	return domain.NotificationJob{}, errors.New("очередь пуста")
}

func learnerWithRisk(id int64, risk float64, lastLogin time.Time) domain.Learner {
	return domain.Learner{
		ID: id,
		Profile: domain.UserProfile{
			UserID:    id,
			Email:     "learner@example.com",
			Phone:     "+15550001122",
			FirstName: "Alex",
		},
		LastLogin: lastLogin,
		Enrollments: []domain.Enrollment{
			{LearnerID: id, CourseID: 1, Status: domain.EnrollmentActive, Progress: 0.3, RiskScore: risk},
		},
	}
}

func TestDispatchHighTierAllChannels(t *testing.T) {
	learners := &stubLearners{learners: map[int64]domain.Learner{
		1: learnerWithRisk(1, 0.8, time.Now().UTC().Add(-60*time.Hour)),
	}}
	notifications := &stubNotifications{}
	inapp := &stubInApp{}
	email := &fakeEmail{}
	sms := &fakeSMS{}
	svc := NewService(learners, notifications, inapp, email, sms, nil, zerolog.Nop())

	got, err := svc.DispatchForLearner(context.Background(), 1)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if got == nil {
		t.Fatalf("ожидали уведомление")
	}
	if got.RiskTier != domain.RiskHigh {
		t.Fatalf("ожидали high, получили %v", got.RiskTier)
	}
	if len(got.ChannelResults) != 3 {
		t.Fatalf("ожидали 3 канала, получили %v", got.Channels)
	}
	if got.Status != domain.NotificationSent {
		t.Fatalf("ожидали статус sent, получили %q", got.Status)
	}
	if email.sent != 1 || sms.sent != 1 {
		t.Fatalf("ожидали письмо и SMS, получили %d/%d", email.sent, sms.sent)
	}
	if len(inapp.messages) != 1 || !inapp.messages[0].ActionRequired {
		t.Fatalf("ожидали сообщение с требованием действия, получили %v", inapp.messages)
	}
	if len(notifications.saved) != 1 {
		t.Fatalf("ожидали 1 запись, получили %d", len(notifications.saved))
	}
}

func TestDispatchHighTierWithoutSMSEscalation(t *testing.T) {
	learners := &stubLearners{learners: map[int64]domain.Learner{
		1: learnerWithRisk(1, 0.8, time.Now().UTC().Add(-30*time.Hour)),
	}}
	sms := &fakeSMS{}
	svc := NewService(learners, &stubNotifications{}, &stubInApp{}, &fakeEmail{}, sms, nil, zerolog.Nop())

	got, err := svc.DispatchForLearner(context.Background(), 1)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(got.ChannelResults) != 2 {
		t.Fatalf("ожидали 2 канала без SMS, получили %v", got.Channels)
	}
	if sms.sent != 0 {
		t.Fatalf("SMS не положено до порога эскалации")
	}
}

func TestDispatchChannelFailureIndependence(t *testing.T) {
	learners := &stubLearners{learners: map[int64]domain.Learner{
		1: learnerWithRisk(1, 0.8, time.Now().UTC().Add(-60*time.Hour)),
	}}
	notifications := &stubNotifications{}
	inapp := &stubInApp{}
	sms := &fakeSMS{}
	svc := NewService(learners, notifications, inapp, &fakeEmail{err: errors.New("шлюз недоступен")}, sms, nil, zerolog.Nop())

	got, err := svc.DispatchForLearner(context.Background(), 1)
	if err != nil {
		t.Fatalf("сбой канала не должен ронять доставку: %v", err)
	}
	if got.Status != domain.NotificationPartial {
		t.Fatalf("ожидали статус partial, получили %q", got.Status)
	}
	if got.ChannelResults[0].Success || got.ChannelResults[0].Error == "" {
		t.Fatalf("ожидали зафиксированный сбой письма: %+v", got.ChannelResults[0])
	}
	if sms.sent != 1 || len(inapp.messages) != 1 {
		t.Fatalf("остальные каналы должны отработать")
	}
}

func TestDispatchThrottled(t *testing.T) {
	learners := &stubLearners{learners: map[int64]domain.Learner{
		1: learnerWithRisk(1, 0.8, time.Now().UTC().Add(-60*time.Hour)),
	}}
	notifications := &stubNotifications{
		last: &domain.InterventionNotification{RiskTier: domain.RiskHigh, SentAt: time.Now().UTC().Add(-time.Hour)},
	}
	svc := NewService(learners, notifications, &stubInApp{}, &fakeEmail{}, &fakeSMS{}, nil, zerolog.Nop())

	got, err := svc.DispatchForLearner(context.Background(), 1)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if got != nil {
		t.Fatalf("охлаждение не истекло, уведомление не положено")
	}
	if len(notifications.saved) != 0 {
		t.Fatalf("не ожидали записей, получили %d", len(notifications.saved))
	}
}

func TestDispatchMediumTier(t *testing.T) {
	learners := &stubLearners{learners: map[int64]domain.Learner{
		1: learnerWithRisk(1, 0.5, time.Now().UTC().Add(-20*time.Hour)),
	}}
	inapp := &stubInApp{}
	sms := &fakeSMS{}
	email := &fakeEmail{}
	svc := NewService(learners, &stubNotifications{}, inapp, email, sms, nil, zerolog.Nop())

	got, err := svc.DispatchForLearner(context.Background(), 1)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if got.RiskTier != domain.RiskMedium {
		t.Fatalf("ожидали medium, получили %v", got.RiskTier)
	}
	if email.sent != 1 || sms.sent != 0 {
		t.Fatalf("средний уровень: письмо без SMS")
	}
	if len(inapp.messages) != 1 || inapp.messages[0].Category != "support" {
		t.Fatalf("ожидали сообщение поддержки, получили %v", inapp.messages)
	}
	if inapp.messages[0].ActionRequired {
		t.Fatalf("средний уровень не требует действия")
	}
}

func TestDispatchLowTier(t *testing.T) {
	learners := &stubLearners{learners: map[int64]domain.Learner{
		1: learnerWithRisk(1, 0.1, time.Now().UTC().Add(-time.Hour)),
	}}
	inapp := &stubInApp{}
	email := &fakeEmail{}
	svc := NewService(learners, &stubNotifications{}, inapp, email, &fakeSMS{}, nil, zerolog.Nop())

	got, err := svc.DispatchForLearner(context.Background(), 1)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if got.RiskTier != domain.RiskLow {
		t.Fatalf("ожидали low, получили %v", got.RiskTier)
	}
	if email.sent != 0 {
		t.Fatalf("низкий уровень: только сообщение в приложении")
	}
	if len(inapp.messages) != 1 || inapp.messages[0].Category != "motivation" {
		t.Fatalf("ожидали мотивационное сообщение, получили %v", inapp.messages)
	}
	if !strings.Contains(inapp.messages[0].Body, "Next milestone") {
		t.Fatalf("ожидали подсказку о вехе, получили %q", inapp.messages[0].Body)
	}
}

func TestSweepAllDirect(t *testing.T) {
	learners := &stubLearners{learners: map[int64]domain.Learner{
		1: learnerWithRisk(1, 0.8, time.Now().UTC().Add(-60*time.Hour)),
		2: learnerWithRisk(2, 0.1, time.Now().UTC().Add(-time.Hour)),
	}}
	// Запись 13-часовой давности: охлаждение высокого уровня (12ч) уже
	// истекло, а низкого (72ч) ещё нет.
	notifications := &stubNotifications{
		last: &domain.InterventionNotification{SentAt: time.Now().UTC().Add(-13 * time.Hour)},
	}
	svc := NewService(learners, notifications, &stubInApp{}, &fakeEmail{}, &fakeSMS{}, nil, zerolog.Nop())

	result, err := svc.SweepAll(context.Background())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if result.Processed != 2 {
		t.Fatalf("ожидали 2 обработанных, получили %d", result.Processed)
	}
	if result.Sent != 1 || result.Skipped != 1 {
		t.Fatalf("ожидали 1 отправку и 1 пропуск, получили %d/%d", result.Sent, result.Skipped)
	}
}

func TestSweepAllEnqueues(t *testing.T) {
	learners := &stubLearners{learners: map[int64]domain.Learner{
		1: learnerWithRisk(1, 0.8, time.Now().UTC().Add(-60*time.Hour)),
		2: learnerWithRisk(2, 0.5, time.Now().UTC().Add(-20*time.Hour)),
	}}
	queue := &fakeQueue{}
	email := &fakeEmail{}
	svc := NewService(learners, &stubNotifications{}, &stubInApp{}, email, &fakeSMS{}, queue, zerolog.Nop())

	result, err := svc.SweepAll(context.Background())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if result.Sent != 2 || len(queue.jobs) != 2 {
		t.Fatalf("ожидали 2 задачи в очереди, получили %d/%d", result.Sent, len(queue.jobs))
	}
	if email.sent != 0 {
		t.Fatalf("при очереди прямой доставки быть не должно")
	}
}

func TestNextMilestone(t *testing.T) {
	cases := []struct {
		progress float64
		want     string
	}{
		{0.1, "25%"},
		{0.3, "50%"},
		{0.6, "75%"},
		{0.9, "100%"},
		{1.0, "complete"},
	}
	for _, tc := range cases {
		got := nextMilestone(tc.progress)
		if !strings.Contains(got, tc.want) {
			t.Fatalf("прогресс %v: ожидали упоминание %q, получили %q", tc.progress, tc.want, got)
		}
	}
}
