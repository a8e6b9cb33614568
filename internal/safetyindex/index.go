// Package safetyindex implements the Patient Safety Index: a composite
// 0-1 risk score aggregating biomarker, pathway, model, and clinical
// signal domains for a single patient and adverse event, plus its trend
// and category.
package safetyindex

import (
	"math"
	"time"
)

// RiskCategory stratifies a composite score.
type RiskCategory string

const (
	RiskLow      RiskCategory = "low"
	RiskModerate RiskCategory = "moderate"
	RiskHigh     RiskCategory = "high"
	RiskCritical RiskCategory = "critical"
)

// Categorize maps a composite score to a RiskCategory.
func Categorize(score float64) RiskCategory {
	switch {
	case score < 0.3:
		return RiskLow
	case score < 0.6:
		return RiskModerate
	case score < 0.8:
		return RiskHigh
	default:
		return RiskCritical
	}
}

// DomainScore is one of the four signal domains' contribution.
type DomainScore struct {
	Domain     string             `json:"domain"`
	Score      float64            `json:"score"`
	Confidence float64            `json:"confidence"`
	Components map[string]float64 `json:"components"`
	Timestamp  time.Time          `json:"timestamp"`
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// NewDomainScore clamps score and confidence to [0,1], mirroring
// DomainScore.__post_init__.
func NewDomainScore(domain string, score, confidence float64, components map[string]float64) DomainScore {
	return DomainScore{
		Domain:     domain,
		Score:      clamp01(score),
		Confidence: clamp01(confidence),
		Components: components,
		Timestamp:  time.Now().UTC(),
	}
}

// DefaultDomainWeights are the default domain importance weights.
var DefaultDomainWeights = map[string]float64{
	"biomarker": 0.30,
	"pathway":   0.25,
	"model":     0.25,
	"clinical":  0.20,
}

// Index is the composite Patient Safety Index for one (patient,
// adverse event) pair.
type Index struct {
	PatientID              string         `json:"patient_id"`
	AdverseEvent           string         `json:"adverse_event"`
	CompositeScore         float64        `json:"composite_score"`
	RiskCategory           RiskCategory   `json:"risk_category"`
	DomainScores           []DomainScore  `json:"domain_scores"`
	Trend                  float64        `json:"trend"`
	HoursSinceInfusion     float64        `json:"hours_since_infusion"`
	PredictionHorizonHours float64        `json:"prediction_horizon_hours"`
	ModelAgreement         float64        `json:"model_agreement"`
	Timestamp              time.Time      `json:"timestamp"`
	Metadata               map[string]any `json:"metadata"`
}

// ComputeComposite computes the confidence-weighted composite score: each
// domain's contribution is weighted by its importance weight times its
// own confidence, naturally down-weighting uncertain or missing data.
func ComputeComposite(domainScores []DomainScore, weights map[string]float64) float64 {
	if len(domainScores) == 0 {
		return 0
	}
	if weights == nil {
		weights = DefaultDomainWeights
	}

	weightedSum, weightTotal := 0.0, 0.0
	for _, ds := range domainScores {
		w, ok := weights[ds.Domain]
		if !ok {
			w = 1.0 / float64(len(domainScores))
		}
		effective := w * ds.Confidence
		weightedSum += ds.Score * effective
		weightTotal += effective
	}

	if weightTotal == 0 {
		return 0
	}
	return clamp01(weightedSum / weightTotal)
}

// ScorePoint is a (score, hoursAgo) historical sample, oldest to most
// recent, for trend analysis.
type ScorePoint struct {
	Score    float64 `json:"score"`
	HoursAgo float64 `json:"hours_ago"`
}

const trendDecayRate = 0.1

// ComputeTrend fits an exponentially-weighted linear regression over the
// previous score points plus the current score (at hoursAgo=0), and
// returns the slope in hours^-1. Positive means worsening.
func ComputeTrend(currentScore float64, previous []ScorePoint) float64 {
	if len(previous) == 0 {
		return 0
	}

	points := make([]ScorePoint, 0, len(previous)+1)
	points = append(points, previous...)
	points = append(points, ScorePoint{Score: currentScore, HoursAgo: 0})

	var sumW, sumWT, sumWS, sumWTT, sumWTS float64
	for _, p := range points {
		t := -p.HoursAgo
		w := math.Exp(-trendDecayRate * p.HoursAgo)
		sumW += w
		sumWT += w * t
		sumWS += w * p.Score
		sumWTT += w * t * t
		sumWTS += w * t * p.Score
	}

	denom := sumW*sumWTT - sumWT*sumWT
	if math.Abs(denom) < 1e-12 {
		return 0
	}
	return (sumW*sumWTS - sumWT*sumWS) / denom
}

// ModelAgreement computes inter-model agreement from a set of raw model
// scores: 1.0 with fewer than two scores, else max(0, 1 - 2*stddev).
func ModelAgreement(scores []float64) float64 {
	if len(scores) < 2 {
		return 1.0
	}
	mean := 0.0
	for _, s := range scores {
		mean += s
	}
	mean /= float64(len(scores))

	variance := 0.0
	for _, s := range scores {
		d := s - mean
		variance += d * d
	}
	variance /= float64(len(scores))

	agreement := 1.0 - math.Sqrt(variance)*2
	if agreement < 0 {
		agreement = 0
	}
	return agreement
}
