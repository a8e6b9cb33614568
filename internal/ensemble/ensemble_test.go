package ensemble

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psp-engine/psp/internal/domain"
	"github.com/psp-engine/psp/internal/normalizer"
)

func pred(model string, score, conf float64, drivers ...string) normalizer.Prediction {
	return normalizer.Prediction{
		ModelID:    model,
		RiskScore:  score,
		Confidence: conf,
		Reasoning:  model + " reasoning",
		KeyDrivers: drivers,
	}
}

func TestAggregateEmptyReturnsError(t *testing.T) {
	_, err := Aggregate(nil, Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrEmptyEnsemble))
}

func TestAggregateSinglePredictionWidensInterval(t *testing.T) {
	p := pred("m1", 0.6, 0.5)
	result, err := Aggregate([]normalizer.Prediction{p}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0.6, result.Score)
	assert.False(t, result.Disagreement.IsDisagreement)
	assert.InDelta(t, 0.525, result.Interval[0], 1e-9)
	assert.InDelta(t, 0.675, result.Interval[1], 1e-9)
}

func TestAggregateConfidenceWeightedDefault(t *testing.T) {
	predictions := []normalizer.Prediction{
		pred("m1", 0.8, 0.9),
		pred("m2", 0.2, 0.1),
	}
	result, err := Aggregate(predictions, Options{})
	require.NoError(t, err)
	assert.Equal(t, ConfidenceWeighted, result.MethodUsed)
	// weighted toward m1 due to higher confidence
	assert.Greater(t, result.Score, 0.5)
}

func TestAggregateDetectsDisagreement(t *testing.T) {
	predictions := []normalizer.Prediction{
		pred("m1", 0.9, 0.8),
		pred("m2", 0.1, 0.8),
	}
	result, err := Aggregate(predictions, Options{})
	require.NoError(t, err)
	assert.True(t, result.Disagreement.IsDisagreement)
	assert.InDelta(t, 0.8, result.Disagreement.MaxDivergence, 1e-9)
}

func TestAggregateFallsBackToMedianOnDisagreement(t *testing.T) {
	predictions := []normalizer.Prediction{
		pred("m1", 0.9, 0.8),
		pred("m2", 0.1, 0.8),
		pred("m3", 0.5, 0.8),
	}
	result, err := Aggregate(predictions, Options{FallbackOnDisagreement: true})
	require.NoError(t, err)
	assert.Equal(t, Median, result.MethodUsed)
	assert.Equal(t, 0.5, result.Score)
}

func TestAggregateConservativeMax(t *testing.T) {
	predictions := []normalizer.Prediction{
		pred("m1", 0.3, 0.8),
		pred("m2", 0.7, 0.8),
	}
	result, err := Aggregate(predictions, Options{Method: ConservativeMax})
	require.NoError(t, err)
	assert.Equal(t, 0.7, result.Score)
}

func TestAggregateCalibrationAppliesMultiplierWithoutMutatingInput(t *testing.T) {
	predictions := []normalizer.Prediction{
		pred("m1", 0.5, 0.5),
	}
	_, err := Aggregate(predictions, Options{Calibration: map[string]float64{"m1": 0.5}})
	require.NoError(t, err)
	assert.Equal(t, 0.5, predictions[0].Confidence, "calibration must not mutate caller's input slice")
}

func TestAggregateMergesKeyDriversByFrequencyThenLex(t *testing.T) {
	predictions := []normalizer.Prediction{
		pred("m1", 0.5, 0.5, "fever", "IL-6 elevation"),
		pred("m2", 0.6, 0.6, "fever", "hypotension"),
	}
	result, err := Aggregate(predictions, Options{})
	require.NoError(t, err)
	require.NotEmpty(t, result.KeyDrivers)
	assert.Equal(t, "fever", result.KeyDrivers[0])
}

func TestAggregateMergesReasoningPerModel(t *testing.T) {
	predictions := []normalizer.Prediction{
		pred("m1", 0.5, 0.5),
		pred("m2", 0.6, 0.6),
	}
	result, err := Aggregate(predictions, Options{})
	require.NoError(t, err)
	assert.Contains(t, result.Reasoning, "m1:")
	assert.Contains(t, result.Reasoning, "m2:")
}
