package advisor

import (
	"context"
	"testing"
	"time"

	"learner-retention/internal/domain"
	openai "learner-retention/internal/infra/openai"
)

type fakeChatClient struct {
	content string
	err     error
	lastReq openai.ChatCompletionRequest
}

func (f *fakeChatClient) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.lastReq = req
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatMessage{Content: f.content}}},
	}, nil
}

func testLearner() domain.Learner {
	return domain.Learner{
		ID:      1,
		Profile: domain.UserProfile{UserID: 1, JoinDate: time.Now().Add(-40 * 24 * time.Hour)},
	}
}

func TestAssessLearnerParsesResponse(t *testing.T) {
	client := &fakeChatClient{content: `{
		"risk_score": 0.82,
		"risk_level": "High",
		"risk_factors": ["Prolonged inactivity", "  "],
		"recommendations": ["Reach out by email"],
		"confidence": 0.9
	}`}
	a := NewLLM(client, "gpt-4o-mini", time.Second)

	advice, err := a.AssessLearner(context.Background(), testLearner(), domain.EngagementMetrics{}, nil)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if advice.Score != 0.82 {
		t.Fatalf("ожидали 0.82, получили %v", advice.Score)
	}
	if advice.Level != domain.RiskHigh {
		t.Fatalf("ожидали high, получили %v", advice.Level)
	}
	if len(advice.Factors) != 1 {
		t.Fatalf("пустые факторы должны отбрасываться: %v", advice.Factors)
	}
	if advice.Confidence != 0.9 {
		t.Fatalf("ожидали 0.9, получили %v", advice.Confidence)
	}
	if client.lastReq.ResponseFormat == nil || client.lastReq.ResponseFormat.Type != openai.ResponseFormatTypeJSONObject {
		t.Fatalf("ожидали запрос формата json_object")
	}
}

func TestAssessLearnerRejectsScoreOutOfRange(t *testing.T) {
	client := &fakeChatClient{content: `{"risk_score": 1.4, "risk_level": "high", "confidence": 0.9}`}
	a := NewLLM(client, "gpt-4o-mini", time.Second)

	if _, err := a.AssessLearner(context.Background(), testLearner(), domain.EngagementMetrics{}, nil); err == nil {
		t.Fatalf("ожидали отказ при risk_score вне [0,1]")
	}
}

func TestAssessLearnerRejectsMissingConfidence(t *testing.T) {
	client := &fakeChatClient{content: `{"risk_score": 0.4, "risk_level": "medium"}`}
	a := NewLLM(client, "gpt-4o-mini", time.Second)

	if _, err := a.AssessLearner(context.Background(), testLearner(), domain.EngagementMetrics{}, nil); err == nil {
		t.Fatalf("ожидали отказ без confidence")
	}
}

func TestAssessLearnerRejectsUnknownLevel(t *testing.T) {
	client := &fakeChatClient{content: `{"risk_score": 0.4, "risk_level": "critical", "confidence": 0.8}`}
	a := NewLLM(client, "gpt-4o-mini", time.Second)

	if _, err := a.AssessLearner(context.Background(), testLearner(), domain.EngagementMetrics{}, nil); err == nil {
		t.Fatalf("ожидали отказ при неизвестном risk_level")
	}
}

func TestAssessLearnerRejectsBrokenJSON(t *testing.T) {
	client := &fakeChatClient{content: `the learner seems fine`}
	a := NewLLM(client, "gpt-4o-mini", time.Second)

	if _, err := a.AssessLearner(context.Background(), testLearner(), domain.EngagementMetrics{}, nil); err == nil {
		t.Fatalf("ожидали отказ на нечитаемом ответе")
	}
}

func TestAssessPlatformParsesResponse(t *testing.T) {
	client := &fakeChatClient{content: `{
		"summary": "High-risk cohort grew by one learner.",
		"key_insights": ["Recent inactivity drives the shift"],
		"confidence": 0.75
	}`}
	a := NewLLM(client, "gpt-4o-mini", time.Second)

	advice, err := a.AssessPlatform(context.Background(), domain.DailyRiskSnapshot{Date: time.Now()})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if advice.Summary == "" || advice.Confidence != 0.75 {
		t.Fatalf("неверный разбор: %+v", advice)
	}
}

func TestAssessPlatformRequiresSummary(t *testing.T) {
	client := &fakeChatClient{content: `{"summary": "  ", "confidence": 0.75}`}
	a := NewLLM(client, "gpt-4o-mini", time.Second)

	if _, err := a.AssessPlatform(context.Background(), domain.DailyRiskSnapshot{}); err == nil {
		t.Fatalf("ожидали отказ без summary")
	}
}

func TestDisabledAdvisorAlwaysErrors(t *testing.T) {
	var d Disabled
	if _, err := d.AssessLearner(context.Background(), domain.Learner{}, domain.EngagementMetrics{}, nil); err == nil {
		t.Fatalf("выключенный консультант обязан возвращать ошибку")
	}
	if _, err := d.AssessPlatform(context.Background(), domain.DailyRiskSnapshot{}); err == nil {
		t.Fatalf("выключенный консультант обязан возвращать ошибку")
	}
}
