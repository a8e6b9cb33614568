package safetyindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategorize(t *testing.T) {
	assert.Equal(t, RiskLow, Categorize(0.1))
	assert.Equal(t, RiskModerate, Categorize(0.4))
	assert.Equal(t, RiskHigh, Categorize(0.7))
	assert.Equal(t, RiskCritical, Categorize(0.9))
}

func TestNewDomainScoreClamps(t *testing.T) {
	ds := NewDomainScore("biomarker", 1.5, -0.2, nil)
	assert.Equal(t, 1.0, ds.Score)
	assert.Equal(t, 0.0, ds.Confidence)
}

func TestComputeCompositeWeightsByConfidence(t *testing.T) {
	scores := []DomainScore{
		NewDomainScore("biomarker", 0.8, 1.0, nil),
		NewDomainScore("pathway", 0.2, 0.0, nil), // zero confidence excluded
		NewDomainScore("model", 0.5, 1.0, nil),
		NewDomainScore("clinical", 0.3, 1.0, nil),
	}
	composite := ComputeComposite(scores, nil)
	assert.Greater(t, composite, 0.0)
	assert.LessOrEqual(t, composite, 1.0)
}

func TestComputeCompositeEmpty(t *testing.T) {
	assert.Equal(t, 0.0, ComputeComposite(nil, nil))
}

func TestComputeCompositeAllZeroConfidence(t *testing.T) {
	scores := []DomainScore{NewDomainScore("biomarker", 0.9, 0.0, nil)}
	assert.Equal(t, 0.0, ComputeComposite(scores, nil))
}

func TestComputeTrendNoHistory(t *testing.T) {
	assert.Equal(t, 0.0, ComputeTrend(0.5, nil))
}

func TestComputeTrendWorsening(t *testing.T) {
	history := []ScorePoint{{Score: 0.2, HoursAgo: 24}, {Score: 0.3, HoursAgo: 12}}
	trend := ComputeTrend(0.6, history)
	assert.Greater(t, trend, 0.0, "rising scores over time should yield a positive (worsening) trend")
}

func TestComputeTrendImproving(t *testing.T) {
	history := []ScorePoint{{Score: 0.8, HoursAgo: 24}, {Score: 0.6, HoursAgo: 12}}
	trend := ComputeTrend(0.3, history)
	assert.Less(t, trend, 0.0)
}

func TestModelAgreementSingleScore(t *testing.T) {
	assert.Equal(t, 1.0, ModelAgreement([]float64{0.5}))
}

func TestModelAgreementHighVariance(t *testing.T) {
	agreement := ModelAgreement([]float64{0.1, 0.9})
	assert.Less(t, agreement, 1.0)
	assert.GreaterOrEqual(t, agreement, 0.0)
}
