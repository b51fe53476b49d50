package domain

import "time"

// Имена периодических задач планировщика.
const (
	JobRiskRecompute = "risk_recompute"
	JobDailySnapshot = "daily_snapshot"
	JobNotifySweep   = "notify_sweep"
)

// NotificationJob — задача на доставку уведомления одному обучающемуся.
type NotificationJob struct {
	JobID      string    `json:"job_id"`
	LearnerID  int64     `json:"learner_id"`
	RiskTier   RiskTier  `json:"risk_tier"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// BatchResult — итог пакетного пересчёта риска.
type BatchResult struct {
	Processed   int
	Failed      int
	Assessments []RiskAssessment
	StartedAt   time.Time
	FinishedAt  time.Time
}

// SweepResult — итог пакетного обхода уведомлений.
type SweepResult struct {
	Processed int
	Sent      int
	Skipped   int
	Failed    int
}
