package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"learner-retention/internal/domain"
	openai "learner-retention/internal/infra/openai"
)

type chatCompletionClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// LLMAdvisor получает независимую оценку риска от LLM.
// Любая проблема — таймаут, пустой или кривой ответ — возвращается
// ошибкой: трактовать частично разобранный ответ как успех нельзя.
type LLMAdvisor struct {
	client  chatCompletionClient
	model   string
	timeout time.Duration
}

var _ domain.RiskAdvisor = (*LLMAdvisor)(nil)

// NewLLM создаёт консультанта на базе OpenAI Chat Completions.
func NewLLM(client chatCompletionClient, model string, timeout time.Duration) *LLMAdvisor {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &LLMAdvisor{client: client, model: model, timeout: timeout}
}

type learnerPayload struct {
	LearnerID          int64             `json:"learner_id"`
	DaysSinceJoin      int               `json:"days_since_join"`
	TotalHours         float64           `json:"total_hours"`
	AvgSessionMinutes  float64           `json:"avg_session_minutes"`
	CompletionRate     float64           `json:"completion_rate"`
	DaysSinceLastLogin int               `json:"days_since_last_login"`
	CurrentStreak      int               `json:"current_streak_days"`
	RecentActivities7d int               `json:"recent_activities_7d"`
	ActiveCourses      int               `json:"active_courses"`
	TotalCourses       int               `json:"total_courses"`
	AverageProgress    float64           `json:"average_progress"`
	RecentActivities   []activityPayload `json:"recent_activities"`
}

type activityPayload struct {
	Type            string  `json:"type"`
	OccurredAt      string  `json:"occurred_at"`
	DurationMinutes float64 `json:"duration_minutes"`
}

type learnerAdviceResponse struct {
	RiskScore       *float64 `json:"risk_score"`
	RiskLevel       string   `json:"risk_level"`
	RiskFactors     []string `json:"risk_factors"`
	Recommendations []string `json:"recommendations"`
	Confidence      *float64 `json:"confidence"`
}

const recentActivitiesLimit = 20

// AssessLearner запрашивает оценку риска по одному обучающемуся.
func (a *LLMAdvisor) AssessLearner(ctx context.Context, learner domain.Learner, m domain.EngagementMetrics, recent []domain.ActivityRecord) (domain.RiskAdvice, error) {
	payload := learnerPayload{
		LearnerID:          learner.ID,
		TotalHours:         m.TotalHours,
		AvgSessionMinutes:  m.AvgSessionMinutes,
		CompletionRate:     m.CompletionRate,
		DaysSinceLastLogin: m.DaysSinceLastLogin,
		CurrentStreak:      m.CurrentStreak,
		RecentActivities7d: m.RecentCount7d,
		ActiveCourses:      m.ActiveCourses,
		TotalCourses:       m.TotalCourses,
		AverageProgress:    m.AverageProgress,
	}
	if !learner.Profile.JoinDate.IsZero() {
		payload.DaysSinceJoin = int(time.Since(learner.Profile.JoinDate).Hours() / 24)
	}
	if len(recent) > recentActivitiesLimit {
		recent = recent[len(recent)-recentActivitiesLimit:]
	}
	for _, act := range recent {
		payload.RecentActivities = append(payload.RecentActivities, activityPayload{
			Type:            act.Type,
			OccurredAt:      act.OccurredAt.UTC().Format(time.RFC3339),
			DurationMinutes: act.DurationMinutes,
		})
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return domain.RiskAdvice{}, fmt.Errorf("marshal learner: %w", err)
	}

	userPrompt := fmt.Sprintf(`Analyze the learner engagement profile below and assess the dropout risk.
Return strictly a JSON object of the form:
{"risk_score": 0.0, "risk_level": "low|medium|high", "risk_factors": ["..."], "recommendations": ["..."], "confidence": 0.0}
risk_score and confidence must be numbers between 0 and 1. Base every factor on the data; do not invent facts.

Learner profile JSON:
%s`, string(body))

	content, err := a.complete(ctx, userPrompt)
	if err != nil {
		return domain.RiskAdvice{}, err
	}

	var parsed learnerAdviceResponse
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return domain.RiskAdvice{}, fmt.Errorf("распаковка ответа консультанта: %w", err)
	}
	return validateAdvice(parsed)
}

type platformPayload struct {
	Date             string  `json:"date"`
	TotalLearners    int     `json:"total_learners"`
	HighRisk         int     `json:"high_risk"`
	MediumRisk       int     `json:"medium_risk"`
	LowRisk          int     `json:"low_risk"`
	AverageRiskScore float64 `json:"average_risk_score"`
	DailyChangeHigh  int     `json:"daily_change_high"`
	WeeklyChangeHigh int     `json:"weekly_change_high"`
}

type platformAdviceResponse struct {
	Summary     string   `json:"summary"`
	KeyInsights []string `json:"key_insights"`
	Confidence  *float64 `json:"confidence"`
}

// AssessPlatform запрашивает сводный анализ по всей платформе.
func (a *LLMAdvisor) AssessPlatform(ctx context.Context, snap domain.DailyRiskSnapshot) (domain.PlatformAdvice, error) {
	payload := platformPayload{
		Date:             snap.Date.Format("2006-01-02"),
		TotalLearners:    snap.TotalLearners,
		HighRisk:         snap.Distribution.High,
		MediumRisk:       snap.Distribution.Medium,
		LowRisk:          snap.Distribution.Low,
		AverageRiskScore: snap.AverageRiskScore,
		DailyChangeHigh:  snap.DailyChange.High,
		WeeklyChangeHigh: snap.WeeklyChange.High,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return domain.PlatformAdvice{}, fmt.Errorf("marshal snapshot: %w", err)
	}

	userPrompt := fmt.Sprintf(`Analyze the platform-wide learner risk distribution below and summarize the retention situation.
Return strictly a JSON object of the form:
{"summary": "...", "key_insights": ["..."], "confidence": 0.0}
confidence must be a number between 0 and 1.

Platform snapshot JSON:
%s`, string(body))

	content, err := a.complete(ctx, userPrompt)
	if err != nil {
		return domain.PlatformAdvice{}, err
	}

	var parsed platformAdviceResponse
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return domain.PlatformAdvice{}, fmt.Errorf("распаковка платформенного анализа: %w", err)
	}
	summary := strings.TrimSpace(parsed.Summary)
	if summary == "" || parsed.Confidence == nil || *parsed.Confidence < 0 || *parsed.Confidence > 1 {
		return domain.PlatformAdvice{}, fmt.Errorf("платформенный анализ: неполный ответ")
	}
	return domain.PlatformAdvice{
		Summary:     summary,
		KeyInsights: filterNonEmpty(parsed.KeyInsights),
		Confidence:  *parsed.Confidence,
	}, nil
}

func (a *LLMAdvisor) complete(ctx context.Context, userPrompt string) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model:       a.model,
		Temperature: 0.2,
		Messages: []openai.ChatMessage{
			{
				Role:    openai.RoleSystem,
				Content: "You are a learner-retention analyst for an online education platform. Answer only with the requested JSON.",
			},
			{
				Role:    openai.RoleUser,
				Content: userPrompt,
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ResponseFormatTypeJSONObject,
		},
	}
	resp, err := a.client.CreateChatCompletion(reqCtx, req)
	if err != nil {
		return "", fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai completion: пустой ответ")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// validateAdvice отбрасывает ответы, не удовлетворяющие контракту.
func validateAdvice(parsed learnerAdviceResponse) (domain.RiskAdvice, error) {
	if parsed.RiskScore == nil || *parsed.RiskScore < 0 || *parsed.RiskScore > 1 {
		return domain.RiskAdvice{}, fmt.Errorf("консультант: risk_score вне [0,1]")
	}
	if parsed.Confidence == nil || *parsed.Confidence < 0 || *parsed.Confidence > 1 {
		return domain.RiskAdvice{}, fmt.Errorf("консультант: confidence вне [0,1]")
	}
	level := domain.RiskTier(strings.ToLower(strings.TrimSpace(parsed.RiskLevel)))
	switch level {
	case domain.RiskLow, domain.RiskMedium, domain.RiskHigh:
	default:
		return domain.RiskAdvice{}, fmt.Errorf("консультант: неизвестный risk_level %q", parsed.RiskLevel)
	}
	return domain.RiskAdvice{
		Score:           *parsed.RiskScore,
		Level:           level,
		Factors:         filterNonEmpty(parsed.RiskFactors),
		Recommendations: filterNonEmpty(parsed.Recommendations),
		Confidence:      *parsed.Confidence,
	}, nil
}

func filterNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}
