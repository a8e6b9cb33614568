// Package scorer computes the patient-level Safety Index by scoring
// biomarker trajectories, knowledge-graph pathway activation, foundation
// model predictions, and clinical context, then combining them into a
// composite score via internal/safetyindex.
package scorer

import (
	"math"
	"sort"
	"strconv"

	"github.com/psp-engine/psp/internal/graph"
	"github.com/psp-engine/psp/internal/safetyindex"
)

// BiomarkerSample is a historical (value, hoursAgo) observation used for
// rate-of-change scoring.
type BiomarkerSample struct {
	Value    float64 `json:"value"`
	HoursAgo float64 `json:"hours_ago"`
}

// ModelPrediction is the minimal shape the model domain needs from an
// external prediction.
type ModelPrediction struct {
	Score      float64 `json:"score"`
	Confidence float64 `json:"confidence"`
	ModelName  string  `json:"model_name"`
}

// PatientData is a single patient's data snapshot at a point in time.
type PatientData struct {
	PatientID             string                          `json:"patient_id"`
	HoursSinceInfusion    float64                         `json:"hours_since_infusion"`
	Biomarkers            map[string]float64              `json:"biomarkers"`
	BiomarkerHistory      map[string][]BiomarkerSample     `json:"biomarker_history,omitempty"`
	DiseaseBurden         float64                          `json:"disease_burden"` // 0 (none) to 1 (very high)
	PriorTherapies        int                              `json:"prior_therapies"`
	AgeYears              int                              `json:"age_years"`
	Comorbidities         []string                         `json:"comorbidities,omitempty"`
	CarTProduct           string                           `json:"car_t_product"`
	PreviousSafetyIndices []safetyindex.ScorePoint          `json:"previous_safety_indices,omitempty"`
}

// Scorer computes the patient-level Safety Index.
type Scorer struct {
	kg            *graph.Graph
	domainWeights map[string]float64
}

// New creates a Scorer backed by the given knowledge graph. A nil
// domainWeights map uses safetyindex.DefaultDomainWeights.
func New(kg *graph.Graph, domainWeights map[string]float64) *Scorer {
	if domainWeights == nil {
		domainWeights = safetyindex.DefaultDomainWeights
	}
	return &Scorer{kg: kg, domainWeights: domainWeights}
}

// Compute scores a patient for one adverse event, combining the four
// signal domains into a full Index.
func (s *Scorer) Compute(patient PatientData, adverseEvent string, modelPredictions []ModelPrediction) safetyindex.Index {
	biomarkerDomain := s.scoreBiomarkerDomain(patient, adverseEvent)
	pathwayDomain := s.scorePathwayDomain(patient, adverseEvent)
	modelDomain := scoreModelDomain(modelPredictions)
	clinicalDomain := scoreClinicalDomain(patient, adverseEvent)

	domainScores := []safetyindex.DomainScore{biomarkerDomain, pathwayDomain, modelDomain, clinicalDomain}

	composite := safetyindex.ComputeComposite(domainScores, s.domainWeights)
	trend := safetyindex.ComputeTrend(composite, patient.PreviousSafetyIndices)

	agreement := 1.0
	if len(modelPredictions) > 1 {
		scores := make([]float64, len(modelPredictions))
		for i, p := range modelPredictions {
			scores[i] = p.Score
		}
		agreement = safetyindex.ModelAgreement(scores)
	}

	return safetyindex.Index{
		PatientID:              patient.PatientID,
		AdverseEvent:           adverseEvent,
		CompositeScore:         composite,
		RiskCategory:           safetyindex.Categorize(composite),
		DomainScores:           domainScores,
		Trend:                  trend,
		HoursSinceInfusion:     patient.HoursSinceInfusion,
		PredictionHorizonHours: 24.0,
		ModelAgreement:         agreement,
		Metadata: map[string]any{
			"car_t_product":  patient.CarTProduct,
			"domain_weights": s.domainWeights,
		},
	}
}

func (s *Scorer) scoreBiomarkerDomain(patient PatientData, adverseEvent string) safetyindex.DomainScore {
	thresholds := ThresholdsFor(adverseEvent)
	if len(thresholds) == 0 {
		return safetyindex.NewDomainScore("biomarker", 0, 0, nil)
	}

	components := map[string]float64{}
	valuesFound := 0

	for _, th := range thresholds {
		value, ok := patient.Biomarkers[th.BiomarkerID]
		if !ok {
			continue
		}
		valuesFound++

		levelScore := biomarkerLevelScore(th, value)

		rocScore := 0.0
		if history := patient.BiomarkerHistory[th.BiomarkerID]; len(history) > 0 && th.RateOfChangeCritical != 0 {
			last := history[len(history)-1]
			if last.HoursAgo > 0 {
				rate := (value - last.Value) / last.HoursAgo
				rocScore = math.Min(0.2, math.Abs(rate/th.RateOfChangeCritical)*0.2)
			}
		}

		components[th.BiomarkerID] = math.Min(1.0, levelScore+rocScore)
	}

	if len(components) == 0 {
		return safetyindex.NewDomainScore("biomarker", 0, 0, nil)
	}

	confidence := math.Min(1.0, float64(valuesFound)/math.Max(1, float64(len(thresholds))))
	aggregate := aggregateTopTwoPlusRest(components)

	return safetyindex.NewDomainScore("biomarker", math.Min(1.0, aggregate), confidence, components)
}

// biomarkerLevelScore implements the piecewise-linear 0->0.2->0.5->0.8
// mapping (or its inverse for down-trending biomarkers like fibrinogen).
func biomarkerLevelScore(th BiomarkerThreshold, value float64) float64 {
	if th.Grade3Threshold > th.NormalUpper {
		switch {
		case value <= th.NormalUpper:
			return 0
		case value <= th.Grade1Threshold:
			return 0.2 * (value - th.NormalUpper) / (th.Grade1Threshold - th.NormalUpper)
		case value <= th.Grade2Threshold:
			return 0.2 + 0.3*(value-th.Grade1Threshold)/(th.Grade2Threshold-th.Grade1Threshold)
		case value <= th.Grade3Threshold:
			return 0.5 + 0.3*(value-th.Grade2Threshold)/(th.Grade3Threshold-th.Grade2Threshold)
		default:
			excess := (value - th.Grade3Threshold) / th.Grade3Threshold
			return math.Min(1.0, 0.8+0.2*excess)
		}
	}

	switch {
	case value >= th.NormalUpper:
		return 0
	case value >= th.Grade1Threshold:
		return 0.2 * (th.NormalUpper - value) / (th.NormalUpper - th.Grade1Threshold)
	case value >= th.Grade2Threshold:
		return 0.2 + 0.3*(th.Grade1Threshold-value)/(th.Grade1Threshold-th.Grade2Threshold)
	case value >= th.Grade3Threshold:
		return 0.5 + 0.3*(th.Grade2Threshold-value)/(th.Grade2Threshold-th.Grade3Threshold)
	default:
		return 1.0
	}
}

func aggregateTopTwoPlusRest(components map[string]float64) float64 {
	scores := make([]float64, 0, len(components))
	for _, v := range components {
		scores = append(scores, v)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(scores)))

	if len(scores) < 2 {
		return scores[0]
	}

	top := (scores[0] + scores[1]) / 2 * 0.6
	rest := 0.0
	if len(scores) > 2 {
		sum := 0.0
		for _, v := range scores[2:] {
			sum += v
		}
		rest = sum / float64(len(scores)-2) * 0.4
	}
	return top + rest
}

func (s *Scorer) scorePathwayDomain(patient PatientData, adverseEvent string) safetyindex.DomainScore {
	aeNodeID := "AE:" + adverseEvent
	upstream := s.kg.GetUpstreamCauses(aeNodeID, 4)
	if len(upstream) == 0 {
		return safetyindex.NewDomainScore("pathway", 0, 0.3, map[string]float64{"note": 0})
	}

	components := map[string]float64{}
	activatedWeight, totalWeight := 0.0, 0.0

	for _, wn := range upstream {
		totalWeight += wn.Weight
		value, ok := patient.Biomarkers[wn.Node.ID]
		if !ok {
			continue
		}
		_, high, _, found := wn.Node.PropertyRange("pg_ml", "ng_ml", "mg_l")
		if !found || value <= high {
			continue
		}
		fold := value / math.Max(high, 1e-9)
		activation := math.Min(1.0, math.Log2(math.Max(1.0, fold))/5.0)
		activatedWeight += wn.Weight * activation
		components[wn.Node.ID] = activation
	}

	score := 0.0
	if totalWeight > 0 {
		score = activatedWeight / totalWeight
	}
	confidence := math.Min(1.0, float64(len(components))/math.Max(1, math.Min(5, float64(len(upstream)))))

	return safetyindex.NewDomainScore("pathway", math.Min(1.0, score), confidence, components)
}

func scoreModelDomain(predictions []ModelPrediction) safetyindex.DomainScore {
	if len(predictions) == 0 {
		return safetyindex.NewDomainScore("model", 0, 0, nil)
	}

	components := map[string]float64{}
	weightedSum, weightTotal := 0.0, 0.0

	for i, p := range predictions {
		name := p.ModelName
		if name == "" {
			name = modelFallbackName(i)
		}
		weightedSum += p.Score * p.Confidence
		weightTotal += p.Confidence
		components[name] = p.Score
	}

	aggregate := 0.0
	if weightTotal > 0 {
		aggregate = weightedSum / weightTotal
	}
	avgConfidence := weightTotal / float64(len(predictions))

	return safetyindex.NewDomainScore("model", math.Min(1.0, aggregate), avgConfidence, components)
}

func modelFallbackName(i int) string {
	return "model_" + strconv.Itoa(i)
}

func scoreClinicalDomain(patient PatientData, adverseEvent string) safetyindex.DomainScore {
	components := map[string]float64{}

	components["disease_burden"] = patient.DiseaseBurden
	components["prior_therapies"] = math.Min(1.0, float64(patient.PriorTherapies)/6.0)

	var ageScore float64
	switch {
	case patient.AgeYears < 50:
		ageScore = 0.1
	case patient.AgeYears < 60:
		ageScore = 0.2
	case patient.AgeYears < 70:
		ageScore = 0.4
	default:
		ageScore = 0.6
	}
	components["age"] = ageScore

	components["comorbidities"] = math.Min(1.0, float64(len(patient.Comorbidities))*0.15)
	components["temporal_risk"] = temporalRiskCurve(patient.HoursSinceInfusion, adverseEvent)

	weights := map[string]float64{
		"disease_burden":  0.25,
		"prior_therapies": 0.15,
		"age":             0.15,
		"comorbidities":   0.15,
		"temporal_risk":   0.30,
	}

	aggregate := 0.0
	for k, v := range components {
		w, ok := weights[k]
		if !ok {
			w = 0.2
		}
		aggregate += v * w
	}

	return safetyindex.NewDomainScore("clinical", math.Min(1.0, aggregate), 0.85, components)
}

// temporalRiskCurve returns where hoursSinceInfusion falls relative to
// the adverse event's expected peak-risk window.
func temporalRiskCurve(hoursSinceInfusion float64, adverseEvent string) float64 {
	window, ok := peakWindows[adverseEvent]
	if !ok {
		window = [2]float64{24.0, 168.0}
	}
	peakStart, peakEnd := window[0], window[1]

	switch {
	case hoursSinceInfusion < 0:
		return 0.1
	case hoursSinceInfusion < peakStart:
		return 0.2 + 0.5*(hoursSinceInfusion/peakStart)
	case hoursSinceInfusion <= peakEnd:
		midpoint := (peakStart + peakEnd) / 2
		halfWidth := (peakEnd - peakStart) / 2
		distanceFromMid := math.Abs(hoursSinceInfusion-midpoint) / halfWidth
		return 0.7 + 0.3*(1.0-distanceFromMid)
	default:
		hoursPastPeak := hoursSinceInfusion - peakEnd
		decay := math.Exp(-0.01 * hoursPastPeak)
		return 0.3 * decay
	}
}
