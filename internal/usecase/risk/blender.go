package risk

import (
	"time"

	"learner-retention/internal/domain"
)

// Параметры смешивания эвристики с сигналом консультанта.
const (
	// advisoryTrust — порог доверия, после которого голос консультанта доминирует.
	advisoryTrust = 0.7
	// baseConfidence — уверенность смешанной оценки при слабом сигнале консультанта.
	baseConfidence = 0.7
	// fallbackConfidence — уверенность чисто эвристической оценки.
	fallbackConfidence = 0.6
)

// FactorHeuristicOnly помечает оценку, построенную без консультанта.
const FactorHeuristicOnly = "Assessment based on learning patterns (heuristic only)"

// Blend смешивает эвристический риск с оценкой консультанта по её уверенности.
// Нулевой advice означает недоступность консультанта: итог — чистая эвристика
// с пониженной уверенностью, без весового смешивания.
func Blend(learnerID int64, heuristic float64, hFactors, hRecs []string, advice *domain.RiskAdvice, now time.Time) domain.RiskAssessment {
	if advice == nil {
		factors := append(append([]string(nil), hFactors...), FactorHeuristicOnly)
		score := clamp01(heuristic)
		return domain.RiskAssessment{
			LearnerID:       learnerID,
			Score:           score,
			Tier:            domain.ClassifyTier(score),
			Factors:         factors,
			Recommendations: hRecs,
			Confidence:      fallbackConfidence,
			ComputedAt:      now,
		}
	}

	var (
		final      float64
		confidence float64
	)
	if advice.Confidence > advisoryTrust {
		final = 0.7*advice.Score + 0.3*heuristic
		confidence = advice.Confidence
		if confidence < advisoryTrust {
			confidence = advisoryTrust
		}
	} else {
		final = 0.3*advice.Score + 0.7*heuristic
		confidence = baseConfidence
	}
	final = clamp01(final)

	assessment := domain.RiskAssessment{
		LearnerID:  learnerID,
		Score:      final,
		Tier:       domain.ClassifyTier(final),
		Confidence: confidence,
		ComputedAt: now,
	}
	// Факторы и рекомендации наследуются от доминирующего сигнала.
	if advice.Confidence > advisoryTrust {
		assessment.Factors = advice.Factors
		assessment.Recommendations = advice.Recommendations
	} else {
		assessment.Factors = hFactors
		assessment.Recommendations = hRecs
	}
	return assessment
}
