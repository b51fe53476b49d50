package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"learner-retention/internal/domain"
	"learner-retention/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.LearnerRepo      = (*Postgres)(nil)
	_ domain.ActivityRepo     = (*Postgres)(nil)
	_ domain.EnrollmentRepo   = (*Postgres)(nil)
	_ domain.SnapshotRepo     = (*Postgres)(nil)
	_ domain.NotificationRepo = (*Postgres)(nil)
	_ domain.InAppStore       = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func (p *Postgres) connCtxWithParent(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return p.connCtx()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// ListLearnerIDs реализует domain.LearnerRepo.
func (p *Postgres) ListLearnerIDs(ctx context.Context) ([]int64, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT id FROM learners ORDER BY id`)
	metrics.ObserveNetworkRequest("postgres", "learners_list", "learners", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetLearner реализует domain.LearnerRepo: профиль плюс записи на курсы.
func (p *Postgres) GetLearner(ctx context.Context, id int64) (domain.Learner, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var (
		learner   domain.Learner
		lastLogin sql.NullTime
		phone     sql.NullString
		firstName sql.NullString
		lastName  sql.NullString
		timezone  sql.NullString
		joinDate  sql.NullTime
	)
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT l.id, l.total_hours, l.streak_days, l.longest_streak, l.avg_session_minutes,
       l.completion_rate, l.weekly_goal_hours, l.last_login, l.created_at, l.updated_at,
       u.id, u.email, u.phone, u.first_name, u.last_name, u.timezone, u.join_date
FROM learners l
JOIN users u ON u.id = l.user_id
WHERE l.id = $1
`, id).Scan(
		&learner.ID, &learner.TotalHours, &learner.StreakDays, &learner.LongestStreak, &learner.AvgSessionMinutes,
		&learner.CompletionRate, &learner.WeeklyGoalHours, &lastLogin, &learner.CreatedAt, &learner.UpdatedAt,
		&learner.Profile.UserID, &learner.Profile.Email, &phone, &firstName, &lastName, &timezone, &joinDate,
	)
	metrics.ObserveNetworkRequest("postgres", "learner_get", "learners", start, err)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Learner{}, domain.ErrLearnerNotFound
		}
		return domain.Learner{}, err
	}
	if lastLogin.Valid {
		learner.LastLogin = lastLogin.Time
	}
	learner.Profile.Phone = phone.String
	learner.Profile.FirstName = firstName.String
	learner.Profile.LastName = lastName.String
	learner.Profile.Timezone = timezone.String
	if joinDate.Valid {
		learner.Profile.JoinDate = joinDate.Time
	}

	enrollments, err := p.listEnrollments(ctx, id)
	if err != nil {
		return domain.Learner{}, fmt.Errorf("записи на курсы: %w", err)
	}
	learner.Enrollments = enrollments
	return learner, nil
}

func (p *Postgres) listEnrollments(ctx context.Context, learnerID int64) ([]domain.Enrollment, error) {
	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, learner_id, course_id, status, progress, risk_score, last_risk_update, last_activity
FROM enrollments
WHERE learner_id = $1
ORDER BY id
`, learnerID)
	metrics.ObserveNetworkRequest("postgres", "enrollments_list", "enrollments", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Enrollment
	for rows.Next() {
		var (
			e              domain.Enrollment
			lastRiskUpdate sql.NullTime
			lastActivity   sql.NullTime
		)
		if err := rows.Scan(&e.ID, &e.LearnerID, &e.CourseID, &e.Status, &e.Progress, &e.RiskScore, &lastRiskUpdate, &lastActivity); err != nil {
			return nil, err
		}
		if lastRiskUpdate.Valid {
			t := lastRiskUpdate.Time
			e.LastRiskUpdate = &t
		}
		if lastActivity.Valid {
			t := lastActivity.Time
			e.LastActivity = &t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListRiskAverages реализует domain.LearnerRepo: сводка одним запросом.
func (p *Postgres) ListRiskAverages(ctx context.Context) ([]domain.LearnerRisk, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT l.id, COUNT(e.id), COALESCE(AVG(e.risk_score), 0)
FROM learners l
LEFT JOIN enrollments e ON e.learner_id = l.id
GROUP BY l.id
ORDER BY l.id
`)
	metrics.ObserveNetworkRequest("postgres", "risk_averages", "enrollments", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.LearnerRisk
	for rows.Next() {
		var row domain.LearnerRisk
		if err := rows.Scan(&row.LearnerID, &row.Enrollments, &row.AvgRisk); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// ListActivities реализует domain.ActivityRepo.
func (p *Postgres) ListActivities(ctx context.Context, learnerID int64, since time.Time) ([]domain.ActivityRecord, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, learner_id, type, occurred_at, duration_minutes, COALESCE(meta, '{}'::jsonb)
FROM activities
WHERE learner_id = $1 AND occurred_at >= $2
ORDER BY occurred_at
`, learnerID, since)
	metrics.ObserveNetworkRequest("postgres", "activities_list", "activities", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ActivityRecord
	for rows.Next() {
		var a domain.ActivityRecord
		if err := rows.Scan(&a.ID, &a.LearnerID, &a.Type, &a.OccurredAt, &a.DurationMinutes, &a.RawMetaJSON); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpdateEnrollmentRisk реализует domain.EnrollmentRepo: один риск на все
// записи обучающегося, статус подстраивается под порог высокого риска.
func (p *Postgres) UpdateEnrollmentRisk(ctx context.Context, learnerID int64, score float64, at time.Time) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
UPDATE enrollments
SET risk_score = $2,
    last_risk_update = $3,
    status = CASE
        WHEN status = 'active' AND $2 >= 0.7 THEN 'at-risk'
        WHEN status = 'at-risk' AND $2 < 0.7 THEN 'active'
        ELSE status
    END
WHERE learner_id = $1
`, learnerID, score, at)
	metrics.ObserveNetworkRequest("postgres", "enrollment_risk_update", "enrollments", start, err)
	return err
}

// UpsertSnapshot реализует domain.SnapshotRepo: атомарная запись по дате.
func (p *Postgres) UpsertSnapshot(ctx context.Context, snap domain.DailyRiskSnapshot) (domain.DailyRiskSnapshot, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	analysis, err := json.Marshal(snap.Analysis)
	if err != nil {
		return domain.DailyRiskSnapshot{}, fmt.Errorf("marshal analysis: %w", err)
	}

	start := time.Now()
	err = p.pool.QueryRow(ctx, `
INSERT INTO daily_risk_snapshots (
    snapshot_date, total_learners, high_count, medium_count, low_count, average_risk_score,
    daily_change_high, daily_change_medium, daily_change_low,
    weekly_change_high, weekly_change_medium, weekly_change_low,
    ai_analysis, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now(), now())
ON CONFLICT (snapshot_date) DO UPDATE SET
    total_learners = EXCLUDED.total_learners,
    high_count = EXCLUDED.high_count,
    medium_count = EXCLUDED.medium_count,
    low_count = EXCLUDED.low_count,
    average_risk_score = EXCLUDED.average_risk_score,
    daily_change_high = EXCLUDED.daily_change_high,
    daily_change_medium = EXCLUDED.daily_change_medium,
    daily_change_low = EXCLUDED.daily_change_low,
    weekly_change_high = EXCLUDED.weekly_change_high,
    weekly_change_medium = EXCLUDED.weekly_change_medium,
    weekly_change_low = EXCLUDED.weekly_change_low,
    ai_analysis = EXCLUDED.ai_analysis,
    updated_at = now()
RETURNING id, created_at, updated_at
`, snap.Date, snap.TotalLearners, snap.Distribution.High, snap.Distribution.Medium, snap.Distribution.Low, snap.AverageRiskScore,
		snap.DailyChange.High, snap.DailyChange.Medium, snap.DailyChange.Low,
		snap.WeeklyChange.High, snap.WeeklyChange.Medium, snap.WeeklyChange.Low,
		analysis,
	).Scan(&snap.ID, &snap.CreatedAt, &snap.UpdatedAt)
	metrics.ObserveNetworkRequest("postgres", "snapshot_upsert", "daily_risk_snapshots", start, err)
	if err != nil {
		return domain.DailyRiskSnapshot{}, err
	}
	return snap, nil
}

// GetSnapshotByDate реализует domain.SnapshotRepo.
func (p *Postgres) GetSnapshotByDate(ctx context.Context, date time.Time) (domain.DailyRiskSnapshot, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	snap, err := p.scanSnapshot(p.pool.QueryRow(ctx, snapshotSelect+` WHERE snapshot_date = $1`, date))
	metrics.ObserveNetworkRequest("postgres", "snapshot_get", "daily_risk_snapshots", start, err)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.DailyRiskSnapshot{}, domain.ErrSnapshotNotFound
		}
		return domain.DailyRiskSnapshot{}, err
	}
	return snap, nil
}

// ListSnapshots реализует domain.SnapshotRepo.
func (p *Postgres) ListSnapshots(ctx context.Context, from time.Time) ([]domain.DailyRiskSnapshot, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, snapshotSelect+` WHERE snapshot_date >= $1 ORDER BY snapshot_date DESC`, from)
	metrics.ObserveNetworkRequest("postgres", "snapshots_list", "daily_risk_snapshots", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.DailyRiskSnapshot
	for rows.Next() {
		snap, err := p.scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

const snapshotSelect = `
SELECT id, snapshot_date, total_learners, high_count, medium_count, low_count, average_risk_score,
       daily_change_high, daily_change_medium, daily_change_low,
       weekly_change_high, weekly_change_medium, weekly_change_low,
       ai_analysis, created_at, updated_at
FROM daily_risk_snapshots`

func (p *Postgres) scanSnapshot(row pgx.Row) (domain.DailyRiskSnapshot, error) {
	var (
		snap     domain.DailyRiskSnapshot
		analysis []byte
	)
	err := row.Scan(
		&snap.ID, &snap.Date, &snap.TotalLearners, &snap.Distribution.High, &snap.Distribution.Medium, &snap.Distribution.Low, &snap.AverageRiskScore,
		&snap.DailyChange.High, &snap.DailyChange.Medium, &snap.DailyChange.Low,
		&snap.WeeklyChange.High, &snap.WeeklyChange.Medium, &snap.WeeklyChange.Low,
		&analysis, &snap.CreatedAt, &snap.UpdatedAt,
	)
	if err != nil {
		return domain.DailyRiskSnapshot{}, err
	}
	if len(analysis) > 0 {
		if err := json.Unmarshal(analysis, &snap.Analysis); err != nil {
			return domain.DailyRiskSnapshot{}, fmt.Errorf("распаковка анализа: %w", err)
		}
	}
	return snap, nil
}

// SaveNotification реализует domain.NotificationRepo.
func (p *Postgres) SaveNotification(ctx context.Context, n domain.InterventionNotification) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	results, err := json.Marshal(n.ChannelResults)
	if err != nil {
		return fmt.Errorf("marshal channel results: %w", err)
	}

	start := time.Now()
	_, err = p.pool.Exec(ctx, `
INSERT INTO intervention_notifications (id, learner_id, risk_tier, channels, channel_results, status, sent_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`, n.ID, n.LearnerID, string(n.RiskTier), n.Channels, results, n.Status, n.SentAt)
	metrics.ObserveNetworkRequest("postgres", "notification_insert", "intervention_notifications", start, err)
	return err
}

// LastNotification реализует domain.NotificationRepo.
// Отсутствие уведомлений уровня — не ошибка: возвращается nil.
func (p *Postgres) LastNotification(ctx context.Context, learnerID int64, tier domain.RiskTier) (*domain.InterventionNotification, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var (
		n       domain.InterventionNotification
		results []byte
	)
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT id, learner_id, risk_tier, channels, channel_results, status, sent_at
FROM intervention_notifications
WHERE learner_id = $1 AND risk_tier = $2
ORDER BY sent_at DESC
LIMIT 1
`, learnerID, string(tier)).Scan(&n.ID, &n.LearnerID, &n.RiskTier, &n.Channels, &results, &n.Status, &n.SentAt)
	metrics.ObserveNetworkRequest("postgres", "notification_last", "intervention_notifications", start, err)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if len(results) > 0 {
		if err := json.Unmarshal(results, &n.ChannelResults); err != nil {
			return nil, fmt.Errorf("распаковка результатов: %w", err)
		}
	}
	return &n, nil
}

// SaveInAppMessage реализует domain.InAppStore.
func (p *Postgres) SaveInAppMessage(ctx context.Context, msg domain.InAppMessage) (string, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO inapp_messages (id, learner_id, title, body, category, action_required, suggestions, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`, msg.ID, msg.LearnerID, msg.Title, msg.Body, msg.Category, msg.ActionRequired, msg.Suggestions, msg.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "inapp_insert", "inapp_messages", start, err)
	if err != nil {
		return "", err
	}
	return msg.ID, nil
}
