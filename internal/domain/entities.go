package domain

import "time"

// RiskTier — дискретный уровень риска оттока.
type RiskTier string

const (
	// RiskLow низкий риск.
	RiskLow RiskTier = "low"
	// RiskMedium средний риск.
	RiskMedium RiskTier = "medium"
	// RiskHigh высокий риск.
	RiskHigh RiskTier = "high"
)

// UserProfile описывает контактные данные обучающегося.
type UserProfile struct {
	UserID    int64
	Email     string
	Phone     string
	FirstName string
	LastName  string
	Timezone  string
	JoinDate  time.Time
}

// Learner описывает обучающегося с его записями на курсы.
type Learner struct {
	ID                int64
	Profile           UserProfile
	TotalHours        float64
	StreakDays        int
	LongestStreak     int
	AvgSessionMinutes float64
	CompletionRate    float64
	WeeklyGoalHours   float64
	LastLogin         time.Time
	Enrollments       []Enrollment
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Enrollment хранит состояние записи на курс.
type Enrollment struct {
	ID             int64
	LearnerID      int64
	CourseID       int64
	Status         string
	Progress       float64
	RiskScore      float64
	LastRiskUpdate *time.Time
	LastActivity   *time.Time
}

// Статусы записи на курс.
const (
	EnrollmentActive    = "active"
	EnrollmentCompleted = "completed"
	EnrollmentAtRisk    = "at-risk"
	EnrollmentDropped   = "dropped"
)

// ActivityRecord — неизменяемое атомарное событие активности.
type ActivityRecord struct {
	ID              int64
	LearnerID       int64
	Type            string
	OccurredAt      time.Time
	DurationMinutes float64
	RawMetaJSON     []byte
}

// EngagementMetrics — свёртка истории активности обучающегося.
type EngagementMetrics struct {
	TotalHours         float64
	AvgSessionMinutes  float64
	CompletionRate     float64
	DaysSinceLastLogin int
	CurrentStreak      int
	LongestStreak      int
	RecentCount7d      int
	RecentCount30d     int
	ActiveCourses      int
	TotalCourses       int
	AverageProgress    float64
}

// RiskAdvice — ответ внешнего AI-консультанта по одному обучающемуся.
type RiskAdvice struct {
	Score           float64
	Level           RiskTier
	Factors         []string
	Recommendations []string
	Confidence      float64
}

// PlatformAdvice — сводный анализ по всей платформе.
type PlatformAdvice struct {
	Summary     string   `json:"summary"`
	KeyInsights []string `json:"key_insights,omitempty"`
	Confidence  float64  `json:"confidence"`
}

// RiskAssessment — итоговая оценка риска после смешивания сигналов.
type RiskAssessment struct {
	LearnerID       int64
	Score           float64
	Tier            RiskTier
	Factors         []string
	Recommendations []string
	Confidence      float64
	ComputedAt      time.Time
}

// TierCounts — распределение обучающихся по уровням риска.
type TierCounts struct {
	High   int
	Medium int
	Low    int
}

// TierDeltas — изменение распределения относительно прошлого снимка.
type TierDeltas struct {
	High   int
	Medium int
	Low    int
}

// DailyRiskSnapshot — единственный на календарный день агрегат риска.
type DailyRiskSnapshot struct {
	ID               int64
	Date             time.Time
	TotalLearners    int
	Distribution     TierCounts
	AverageRiskScore float64
	DailyChange      TierDeltas
	WeeklyChange     TierDeltas
	Analysis         PlatformAdvice
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Каналы доставки уведомлений.
const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
	ChannelInApp = "in_app"
)

// ChannelResult — исход отправки по одному каналу.
type ChannelResult struct {
	Channel   string `json:"channel"`
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Статусы попытки уведомления.
const (
	NotificationSent    = "sent"
	NotificationPartial = "partial"
	NotificationFailed  = "failed"
)

// InterventionNotification — запись об одной попытке вмешательства.
type InterventionNotification struct {
	ID             string
	LearnerID      int64
	RiskTier       RiskTier
	Channels       []string
	ChannelResults []ChannelResult
	Status         string
	SentAt         time.Time
}

// InAppMessage — сообщение, сохраняемое для показа внутри приложения.
type InAppMessage struct {
	ID             string
	LearnerID      int64
	Title          string
	Body           string
	Category       string
	ActionRequired bool
	Suggestions    []string
	CreatedAt      time.Time
	ReadAt         *time.Time
}

// MessagePayload — содержимое для внешнего канала доставки.
type MessagePayload struct {
	Subject string
	Body    string
}

// AverageEnrollmentRisk возвращает средний риск по записям обучающегося.
// Без записей на курсы риск равен нулю.
func (l Learner) AverageEnrollmentRisk() float64 {
	if len(l.Enrollments) == 0 {
		return 0
	}
	var sum float64
	for _, e := range l.Enrollments {
		sum += e.RiskScore
	}
	return sum / float64(len(l.Enrollments))
}

// AverageProgress возвращает средний прогресс по записям обучающегося.
func (l Learner) AverageProgress() float64 {
	if len(l.Enrollments) == 0 {
		return 0
	}
	var sum float64
	for _, e := range l.Enrollments {
		sum += e.Progress
	}
	return sum / float64(len(l.Enrollments))
}

// ClassifyTier переводит непрерывный риск в дискретный уровень.
func ClassifyTier(score float64) RiskTier {
	switch {
	case score >= 0.7:
		return RiskHigh
	case score >= 0.4:
		return RiskMedium
	default:
		return RiskLow
	}
}
