// Package ensemble aggregates multiple model Predictions for the same
// (patient, adverse event) pair into a single calibrated assessment,
// detecting disagreement and widening the uncertainty interval
// accordingly.
package ensemble

import (
	"math"
	"sort"
	"strings"

	"github.com/psp-engine/psp/internal/domain"
	"github.com/psp-engine/psp/internal/normalizer"
)

// Method is an aggregation strategy.
type Method string

const (
	ConfidenceWeighted Method = "confidence_weighted"
	Median             Method = "median"
	ConservativeMax    Method = "conservative_max"
)

const confidenceFloor = 0.1

// Disagreement summarizes how much the ensemble's members diverge.
type Disagreement struct {
	MaxDivergence  float64 `json:"max_divergence"`
	Score          float64 `json:"score"`
	IsDisagreement bool    `json:"is_disagreement"`
}

// Result is the aggregated ensemble output.
type Result struct {
	Score              float64      `json:"score"`
	Confidence         float64      `json:"confidence"`
	Interval           [2]float64   `json:"interval"`
	Disagreement       Disagreement `json:"disagreement"`
	MethodUsed         Method       `json:"method_used"`
	Reasoning          string       `json:"reasoning"`
	KeyDrivers         []string     `json:"key_drivers"`
	ContributingModels []string     `json:"contributing_models"`
}

// Options tunes aggregation behavior.
type Options struct {
	Method                Method  // zero value means auto-select
	DisagreementThreshold float64 // default 0.25
	FallbackOnDisagreement bool
	// Calibration maps model id to a historical confidence multiplier,
	// applied to each prediction's confidence before aggregation without
	// mutating the caller's inputs.
	Calibration map[string]float64
}

func (o Options) withDefaults() Options {
	if o.DisagreementThreshold <= 0 {
		o.DisagreementThreshold = 0.25
	}
	return o
}

// Aggregate combines predictions per spec.md §4.6.
func Aggregate(predictions []normalizer.Prediction, opts Options) (Result, error) {
	if len(predictions) == 0 {
		return Result{}, domain.ErrEmptyEnsemble
	}
	opts = opts.withDefaults()

	calibrated := applyCalibration(predictions, opts.Calibration)

	if len(calibrated) == 1 {
		return aggregateSingle(calibrated[0]), nil
	}

	disagreement := computeDisagreement(calibrated, opts.DisagreementThreshold)

	method := opts.Method
	if method == "" {
		if disagreement.IsDisagreement && opts.FallbackOnDisagreement {
			method = Median
		} else {
			method = ConfidenceWeighted
		}
	}

	score := aggregateScore(calibrated, method)
	meanConf := meanConfidence(calibrated)

	adj := math.Max(0.5, 1-0.3*disagreement.Score-0.2*(1-meanConf))
	effective := math.Max(confidenceFloor, meanConf*adj)

	half := stddev(scoresOf(calibrated)) * (1 + 1.5*(1-meanConf) + disagreement.Score)
	interval := [2]float64{math.Max(0, score-half), math.Min(1, score+half)}

	return Result{
		Score:              score,
		Confidence:         effective,
		Interval:           interval,
		Disagreement:       disagreement,
		MethodUsed:         method,
		Reasoning:          mergeReasoning(calibrated),
		KeyDrivers:         mergeKeyDrivers(calibrated),
		ContributingModels: modelIDs(calibrated),
	}, nil
}

func applyCalibration(predictions []normalizer.Prediction, calibration map[string]float64) []normalizer.Prediction {
	if len(calibration) == 0 {
		return predictions
	}
	out := make([]normalizer.Prediction, len(predictions))
	copy(out, predictions)
	for i, p := range out {
		if mult, ok := calibration[p.ModelID]; ok {
			p.Confidence = clamp01(p.Confidence * mult)
			out[i] = p
		}
	}
	return out
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

func aggregateSingle(p normalizer.Prediction) Result {
	half := (1 - p.Confidence) * 0.15
	return Result{
		Score:      p.RiskScore,
		Confidence: p.Confidence,
		Interval:   [2]float64{math.Max(0, p.RiskScore-half), math.Min(1, p.RiskScore+half)},
		Disagreement: Disagreement{
			MaxDivergence:  0,
			Score:          0,
			IsDisagreement: false,
		},
		MethodUsed:         ConfidenceWeighted,
		Reasoning:          truncateReasoning(p.Reasoning),
		KeyDrivers:         p.KeyDrivers,
		ContributingModels: []string{p.ModelID},
	}
}

func computeDisagreement(predictions []normalizer.Prediction, threshold float64) Disagreement {
	scores := scoresOf(predictions)

	maxDiv := 0.0
	for i := 0; i < len(scores); i++ {
		for j := i + 1; j < len(scores); j++ {
			d := math.Abs(scores[i] - scores[j])
			if d > maxDiv {
				maxDiv = d
			}
		}
	}

	score := math.Min(1, 2*stddev(scores))

	return Disagreement{
		MaxDivergence:  maxDiv,
		Score:          score,
		IsDisagreement: maxDiv > threshold,
	}
}

func aggregateScore(predictions []normalizer.Prediction, method Method) float64 {
	scores := scoresOf(predictions)
	switch method {
	case Median:
		return median(scores)
	case ConservativeMax:
		return maxOf(scores)
	default:
		num, den := 0.0, 0.0
		for _, p := range predictions {
			w := math.Max(p.Confidence, confidenceFloor)
			num += p.RiskScore * w
			den += w
		}
		if den == 0 {
			return 0
		}
		return num / den
	}
}

func scoresOf(predictions []normalizer.Prediction) []float64 {
	out := make([]float64, len(predictions))
	for i, p := range predictions {
		out[i] = p.RiskScore
	}
	return out
}

func modelIDs(predictions []normalizer.Prediction) []string {
	out := make([]string, len(predictions))
	for i, p := range predictions {
		out[i] = p.ModelID
	}
	return out
}

func meanConfidence(predictions []normalizer.Prediction) float64 {
	sum := 0.0
	for _, p := range predictions {
		sum += p.Confidence
	}
	return sum / float64(len(predictions))
}

func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// stddev is the sample standard deviation (divides by n-1), not the
// population one.
func stddev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	sumSq := 0.0
	for _, v := range values {
		d := v - m
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(values)-1))
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func maxOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

const reasoningTruncateLen = 300

func truncateReasoning(s string) string {
	if len(s) <= reasoningTruncateLen {
		return s
	}
	return s[:reasoningTruncateLen]
}

func mergeReasoning(predictions []normalizer.Prediction) string {
	parts := make([]string, 0, len(predictions))
	for _, p := range predictions {
		if p.Reasoning == "" {
			continue
		}
		parts = append(parts, p.ModelID+": "+truncateReasoning(p.Reasoning))
	}
	return strings.Join(parts, " | ")
}

// mergeKeyDrivers merges per-model key drivers, ordering by descending
// frequency then lexicographically for ties.
func mergeKeyDrivers(predictions []normalizer.Prediction) []string {
	counts := map[string]int{}
	for _, p := range predictions {
		for _, d := range p.KeyDrivers {
			counts[d]++
		}
	}
	out := make([]string, 0, len(counts))
	for d := range counts {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if counts[out[i]] != counts[out[j]] {
			return counts[out[i]] > counts[out[j]]
		}
		return out[i] < out[j]
	})
	return out
}
