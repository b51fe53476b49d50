package domain

import (
	"context"
	"errors"
	"time"
)

// ErrLearnerNotFound возвращается, если обучающийся отсутствует.
var ErrLearnerNotFound = errors.New("обучающийся не найден")

// ErrSnapshotNotFound возвращается, если снимок за дату отсутствует.
var ErrSnapshotNotFound = errors.New("снимок за указанную дату не найден")

// LearnerRisk — строка сводки риска по записям одного обучающегося.
type LearnerRisk struct {
	LearnerID   int64
	Enrollments int
	AvgRisk     float64
}

// LearnerRepo управляет обучающимися.
type LearnerRepo interface {
	ListLearnerIDs(ctx context.Context) ([]int64, error)
	GetLearner(ctx context.Context, id int64) (Learner, error)
	ListRiskAverages(ctx context.Context) ([]LearnerRisk, error)
}

// ActivityRepo читает историю активности.
type ActivityRepo interface {
	ListActivities(ctx context.Context, learnerID int64, since time.Time) ([]ActivityRecord, error)
}

// EnrollmentRepo обновляет рисковые поля записей на курсы.
type EnrollmentRepo interface {
	UpdateEnrollmentRisk(ctx context.Context, learnerID int64, score float64, at time.Time) error
}

// SnapshotRepo сохраняет и возвращает дневные снимки риска.
type SnapshotRepo interface {
	UpsertSnapshot(ctx context.Context, snapshot DailyRiskSnapshot) (DailyRiskSnapshot, error)
	GetSnapshotByDate(ctx context.Context, date time.Time) (DailyRiskSnapshot, error)
	ListSnapshots(ctx context.Context, from time.Time) ([]DailyRiskSnapshot, error)
}

// NotificationRepo хранит попытки вмешательств.
type NotificationRepo interface {
	SaveNotification(ctx context.Context, n InterventionNotification) error
	LastNotification(ctx context.Context, learnerID int64, tier RiskTier) (*InterventionNotification, error)
}

// InAppStore сохраняет сообщения внутри приложения.
type InAppStore interface {
	SaveInAppMessage(ctx context.Context, msg InAppMessage) (string, error)
}

// RiskAdvisor — внешний AI-консультант по рискам.
// Любая ошибка означает недоступность: вызывающая сторона обязана
// продолжить работу на эвристике.
type RiskAdvisor interface {
	AssessLearner(ctx context.Context, learner Learner, metrics EngagementMetrics, recent []ActivityRecord) (RiskAdvice, error)
	AssessPlatform(ctx context.Context, snapshot DailyRiskSnapshot) (PlatformAdvice, error)
}

// EmailSender отправляет письмо.
type EmailSender interface {
	SendEmail(ctx context.Context, to string, payload MessagePayload) (ChannelResult, error)
}

// SMSSender отправляет SMS.
type SMSSender interface {
	SendSMS(ctx context.Context, to string, payload MessagePayload) (ChannelResult, error)
}

// Pacer ограничивает темп обращений к внешнему консультанту.
type Pacer interface {
	Wait(ctx context.Context) error
}

// NotificationQueue — очередь задач на доставку уведомлений.
type NotificationQueue interface {
	Enqueue(ctx context.Context, job NotificationJob) error
	Pop(ctx context.Context) (NotificationJob, error)
}

// RiskService пересчитывает риск оттока.
type RiskService interface {
	AssessLearner(ctx context.Context, learnerID int64) (RiskAssessment, error)
	RecomputeAll(ctx context.Context) (BatchResult, error)
}

// SnapshotService строит дневные снимки платформенного риска.
type SnapshotService interface {
	BuildToday(ctx context.Context) (DailyRiskSnapshot, error)
}

// NotifyService принимает решения о вмешательствах и доставляет их.
type NotifyService interface {
	DispatchForLearner(ctx context.Context, learnerID int64) (*InterventionNotification, error)
	SweepAll(ctx context.Context) (SweepResult, error)
}

// Cache используется для простых TTL-хранилищ и блокировок "однажды".
type Cache interface {
	Once(key string, ttl time.Duration, fn func() error) error
	Set(key string, value []byte, ttl time.Duration) error
	Get(key string) ([]byte, error)
}
